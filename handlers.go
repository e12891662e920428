package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/exchange_backend/middlewares"
	"github.com/mmdatafocus/exchange_backend/models"
	"github.com/mmdatafocus/exchange_backend/utils"
	"github.com/mmdatafocus/exchange_backend/workflow"
	"gorm.io/gorm"
)

// writeError maps domain errors onto HTTP status codes. Anything unknown is a 500
// and is recorded on the gin context for customErrorLogger.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrOrderNotFound),
		errors.Is(err, models.ErrConfigNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrConcurrentUpdate),
		errors.Is(err, models.ErrContractAlreadyClaimed),
		errors.Is(err, models.ErrInsufficientStock),
		errors.Is(err, workflow.ErrPassInProgress),
		errors.Is(err, workflow.ErrIdempotencyInProgress):
		status = http.StatusConflict
	case errors.Is(err, workflow.ErrInvalidOrder):
		status = http.StatusBadRequest
	case errors.Is(err, workflow.ErrNoMarketPrice):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func intParam(c *gin.Context, name string) (int, bool) {
	n, err := strconv.Atoi(c.Param(name))
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a positive integer"})
		return 0, false
	}
	return n, true
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (a *App) loginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		user, err := models.GetUserByUsername(c.Request.Context(), a.DB, req.Username)
		if err != nil || user.IsActive == nil || !*user.IsActive {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
			return
		}
		if err := utils.ComparePassword(user.Password, req.Password); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
			return
		}
		token, err := utils.JwtGenerate(user.ID, user.Username, string(user.Role))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "user_id": user.ID, "role": user.Role})
	}
}

func logoutHandler(c *gin.Context) {
	if err := middlewares.RevokeToken(c); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type placeOrderRequest struct {
	ConfigId  int                   `json:"config_id" binding:"required,gt=0"`
	Direction models.OrderDirection `json:"direction" binding:"required"`
	Lines     []workflow.IntakeLine `json:"lines" binding:"required,min=1,dive"`
}

func (a *App) placeOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req placeOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		ctx := c.Request.Context()
		ownerID, _ := utils.GetUserIdFromContext(ctx)
		cfg, err := models.GetExchangeConfig(ctx, a.DB, req.ConfigId)
		if err != nil {
			writeError(c, err)
			return
		}
		if !cfg.IsActive {
			c.JSON(http.StatusConflict, gin.H{"error": "exchange is not active"})
			return
		}
		ctx = utils.SetConfigIdInContext(ctx, cfg.ID)
		order, err := a.Intake.PlaceOrder(ctx, *cfg, ownerID, req.Direction, req.Lines)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, order)
	}
}

// getOrderHandler returns the order to its owner or to an admin.
func (a *App) getOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := intParam(c, "id")
		if !ok {
			return
		}
		ctx := c.Request.Context()
		order, err := a.Reconciler.GetOrder(ctx, id)
		if err != nil {
			writeError(c, err)
			return
		}
		userID, _ := utils.GetUserIdFromContext(ctx)
		isAdmin, _ := utils.GetIsAdminFromContext(ctx)
		if order.OwnerId != userID && !isAdmin {
			writeError(c, models.ErrOrderNotFound)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}
