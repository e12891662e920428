package main

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/exchange_backend/models"
	"github.com/mmdatafocus/exchange_backend/models/reports"
	"github.com/mmdatafocus/exchange_backend/utils"
	"github.com/sirupsen/logrus"
)

func (a *App) loadConfig(c *gin.Context) (*models.ExchangeConfig, bool) {
	id, ok := intParam(c, "config_id")
	if !ok {
		return nil, false
	}
	cfg, err := models.GetExchangeConfig(c.Request.Context(), a.DB, id)
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return cfg, true
}

func (a *App) listConfigsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		cfgs, err := models.ListActiveExchangeConfigs(c.Request.Context(), a.DB)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, cfgs)
	}
}

func (a *App) reconcileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg, ok := a.loadConfig(c)
		if !ok {
			return
		}
		summary, err := a.Reconciler.RunPass(c.Request.Context(), *cfg)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// orderActionHandler dispatches the admin lifecycle actions under /internal/orders/:id/:action.
func (a *App) orderActionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := intParam(c, "id")
		if !ok {
			return
		}
		ctx := c.Request.Context()
		actorID, _ := utils.GetUserIdFromContext(ctx)

		var (
			order *models.Order
			err   error
		)
		switch action := c.Param("action"); action {
		case "approve":
			order, err = a.Settlement.Approve(ctx, id, actorID)
		case "reject":
			var req rejectRequest
			// empty body is allowed
			_ = c.ShouldBindJSON(&req)
			order, err = a.Settlement.Reject(ctx, id, actorID, req.Reason)
		case "pay":
			order, err = a.Settlement.MarkPaid(ctx, id)
		case "deliver":
			order, err = a.Settlement.MarkDelivered(ctx, id)
		case "complete":
			order, err = a.Settlement.Complete(ctx, id)
		default:
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown order action %q", action)})
			return
		}
		if err != nil {
			writeError(c, err)
			return
		}
		if a.Logger != nil {
			a.Logger.WithFields(logrus.Fields{
				"field":    "AdminAction",
				"action":   c.Param("action"),
				"order_id": id,
				"actor_id": actorID,
				"status":   order.Status,
			}).Info("order action applied")
		}
		c.JSON(http.StatusOK, order)
	}
}

func (a *App) upsertSnapshotsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var snaps []models.ContractSnapshot
		if err := c.ShouldBindJSON(&snaps); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		for _, s := range snaps {
			if s.ContractId <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "contract_id is required"})
				return
			}
		}
		if err := a.Snapshots.UpsertSnapshots(c.Request.Context(), snaps); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"upserted": len(snaps)})
	}
}

func (a *App) stockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg, ok := a.loadConfig(c)
		if !ok {
			return
		}
		entries, err := a.Ledger.ListStock(c.Request.Context(), cfg.ID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, entries)
	}
}

// exportTransactionsHandler streams the settlement report as xlsx.
// Query: from, to (YYYY-MM-DD or RFC3339, to is exclusive), archive=true to also write to GCS.
func (a *App) exportTransactionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg, ok := a.loadConfig(c)
		if !ok {
			return
		}
		from, err := utils.ParseDateParam(c.Query("from"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date"})
			return
		}
		to, err := utils.ParseDateParam(c.Query("to"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date"})
			return
		}
		ctx := c.Request.Context()
		report, err := reports.GetTransactionReport(ctx, a.DB, cfg.ID, from, to)
		if err != nil {
			writeError(c, err)
			return
		}
		var buf bytes.Buffer
		if err := report.WriteExcel(&buf); err != nil {
			writeError(c, err)
			return
		}
		if strings.EqualFold(c.Query("archive"), "true") {
			object := fmt.Sprintf("exports/%s/%s", time.Now().UTC().Format("2006/01/02"), report.Filename())
			uri, err := utils.UploadBytesToGCS(ctx, object, buf.Bytes(), reports.XlsxContentType)
			if err != nil {
				writeError(c, err)
				return
			}
			c.Header("X-Archive-Uri", uri)
		}
		c.Header("Content-Disposition", "attachment; filename="+report.Filename())
		c.Data(http.StatusOK, reports.XlsxContentType, buf.Bytes())
	}
}

func (a *App) outboxStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := intParam(c, "order_id")
		if !ok {
			return
		}
		rows, err := models.ListOutboxStatus(c.Request.Context(), a.DB, id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

// outboxReviveHandler re-queues FAILED or DEAD events of one order.
func (a *App) outboxReviveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := intParam(c, "order_id")
		if !ok {
			return
		}
		rows, err := models.ReviveOutbox(c.Request.Context(), a.DB, id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}
