package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/exchange_backend/config"
	"github.com/mmdatafocus/exchange_backend/middlewares"
	"github.com/mmdatafocus/exchange_backend/models"
	"github.com/mmdatafocus/exchange_backend/utils"
	"github.com/mmdatafocus/exchange_backend/workflow"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

// appHolder is set once dependencies are connected; until then the readiness gate answers 503.
type appHolder struct {
	mu  sync.RWMutex
	app *App
}

func (h *appHolder) get() *App {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.app
}

func (h *appHolder) set(a *App) {
	h.mu.Lock()
	h.app = a
	h.mu.Unlock()
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func corsConfig() cors.Config {
	corsConfig := cors.DefaultConfig()
	// In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// deny all when not configured
			corsConfig.AllowOriginFunc = func(string) bool { return false }
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", "X-Correlation-Id")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition", "X-Archive-Uri")
	corsConfig.AllowCredentials = true
	return corsConfig
}

// newRouter builds the HTTP surface. Routes resolve the App lazily through holder.
func newRouter(holder *appHolder, logger *logrus.Logger, limiter *RateLimiter) *gin.Engine {
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Header("X-Correlation-Id", cid)
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate app endpoints on dependency readiness.
		if holder.get() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.Use(cors.New(corsConfig()))
	if limiter != nil {
		r.Use(limiter.RateLimitMiddleware)
	}
	r.Use(middlewares.SessionMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	app := func(h func(a *App) gin.HandlerFunc) gin.HandlerFunc {
		return func(c *gin.Context) { h(holder.get())(c) }
	}

	r.POST("/login", app((*App).loginHandler))
	r.POST("/logout", middlewares.RequireSession(), logoutHandler)

	member := r.Group("/", middlewares.RequireSession())
	member.POST("/orders", app((*App).placeOrderHandler))
	member.GET("/orders/:id", app((*App).getOrderHandler))

	internal := r.Group("/internal", middlewares.RequireAdmin())
	internal.GET("/configs", app((*App).listConfigsHandler))
	internal.POST("/reconcile/:config_id", app((*App).reconcileHandler))
	internal.POST("/orders/:id/:action", app((*App).orderActionHandler))
	internal.POST("/contracts/snapshots", app((*App).upsertSnapshotsHandler))
	internal.GET("/stock/:config_id", app((*App).stockHandler))
	internal.GET("/transactions/:config_id/export", app((*App).exportTransactionsHandler))
	internal.GET("/outbox/:order_id", app((*App).outboxStatusHandler))
	internal.POST("/outbox/:order_id/revive", app((*App).outboxReviveHandler))

	r.NoRoute(customNotFoundHandler)
	return r
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		gin.SetMode(gin.ReleaseMode)
	}

	holder := &appHolder{}
	var limiter *RateLimiter
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		limiter = NewRateLimiter(config.GetRedisDB, limit, time.Duration(windowSec)*time.Second)
	}

	// Start listening immediately; the readiness gate answers 503 until the App is set.
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: newRouter(holder, logger, limiter),
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow running it as a separate job.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		if err := models.MigrateTable(db); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Fatal(err.Error())
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	rdb := config.GetRedisDB()
	pubsubEnabled := strings.TrimSpace(os.Getenv("NOTIFICATION_TOPIC")) != ""
	a := newApp(appDeps{
		DB:       db,
		Redis:    rdb,
		Locker:   config.GetRedisLock(),
		Prices:   defaultPriceSource(rdb, logger),
		Notifier: defaultNotifier(logger, pubsubEnabled),
		Logger:   logger,
	})
	holder.set(a)

	// Background workers stop before the HTTP drain.
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	var workers sync.WaitGroup
	if strings.TrimSpace(os.Getenv("EXCHANGE_EVENTS_TOPIC")) != "" {
		dispatcher := workflow.NewOutboxDispatcher(db, logger)
		workers.Add(1)
		go func() {
			defer workers.Done()
			dispatcher.Run(workerCtx)
		}()
	} else {
		logger.WithFields(logrus.Fields{"field": "OutboxDispatcher"}).Warn("EXCHANGE_EVENTS_TOPIC not set; outbox dispatcher disabled")
	}
	if config.ReconcilerEnabled() {
		workers.Add(1)
		go func() {
			defer workers.Done()
			a.Scheduler.Run(workerCtx)
		}()
	}

	if db.Dialector.Name() == "mysql" {
		for attempt := 1; ; attempt++ {
			err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
			if err == nil {
				break
			}
			sleep := config.RetryBackoff(attempt)
			logger.WithFields(logrus.Fields{
				"field":   "database",
				"attempt": attempt,
			}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
			time.Sleep(sleep)
		}
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("exchange backend listening on :", port)
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	cancelWorkers()
	workers.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}
	if rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && logger != nil {
			cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
			logger.WithFields(logrus.Fields{
				"field":          "http",
				"path":           c.FullPath(),
				"correlation_id": cid,
			}).Error(c.Errors.String())
		}
	}
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
