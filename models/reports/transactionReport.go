package reports

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mmdatafocus/exchange_backend/models"
	"github.com/mmdatafocus/exchange_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TypeSummary aggregates the settlement log per material.
type TypeSummary struct {
	TypeId         int             `json:"type_id"`
	TypeName       string          `json:"type_name"`
	QuantityIn     int64           `json:"quantity_in"`
	QuantityOut    int64           `json:"quantity_out"`
	ValuePaidOut   decimal.Decimal `json:"value_paid_out"`
	ValueCollected decimal.Decimal `json:"value_collected"`
	LastStockAfter int64           `json:"last_stock_after"`
}

type TransactionReport struct {
	ConfigId       int                          `json:"config_id"`
	From           time.Time                    `json:"from"`
	To             time.Time                    `json:"to"`
	Rows           []models.ExchangeTransaction `json:"rows"`
	Summary        []TypeSummary                `json:"summary"`
	TotalPaidOut   decimal.Decimal              `json:"total_paid_out"`
	TotalCollected decimal.Decimal              `json:"total_collected"`
}

func reportSlowMs() int64 {
	// Env: REPORT_SLOW_MS (default 500ms)
	ms := int64(500)
	if v := strings.TrimSpace(os.Getenv("REPORT_SLOW_MS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			ms = n
		}
	}
	return ms
}

func logSlowReport(ctx context.Context, name string, started time.Time, extra map[string]any) {
	d := time.Since(started)
	if d.Milliseconds() < reportSlowMs() {
		return
	}
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	log.Printf("slow_report name=%s ms=%d correlation_id=%s extra=%v", name, d.Milliseconds(), cid, extra)
}

// GetTransactionReport loads settlement rows completed in [from, to) for one config.
func GetTransactionReport(ctx context.Context, db *gorm.DB, configID int, from, to time.Time) (*TransactionReport, error) {
	started := time.Now()
	rows, err := models.ListExchangeTransactions(ctx, db, configID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list exchange transactions: %w", err)
	}
	logSlowReport(ctx, "TransactionReport", started, map[string]any{"config_id": configID, "rows": len(rows)})
	return BuildTransactionReport(configID, from, to, rows), nil
}

// BuildTransactionReport summarizes rows, which must be ordered oldest first.
// A sell row is stock coming in (the hub pays out); a buy row is stock going out.
func BuildTransactionReport(configID int, from, to time.Time, rows []models.ExchangeTransaction) *TransactionReport {
	r := &TransactionReport{
		ConfigId:       configID,
		From:           from,
		To:             to,
		Rows:           rows,
		TotalPaidOut:   decimal.Zero,
		TotalCollected: decimal.Zero,
	}
	byType := map[int]*TypeSummary{}
	for _, row := range rows {
		s := byType[row.TypeId]
		if s == nil {
			s = &TypeSummary{TypeId: row.TypeId, TypeName: row.TypeName, ValuePaidOut: decimal.Zero, ValueCollected: decimal.Zero}
			byType[row.TypeId] = s
		}
		switch row.Direction {
		case models.OrderDirectionSell:
			s.QuantityIn += row.Quantity
			s.ValuePaidOut = s.ValuePaidOut.Add(row.TotalPrice)
			r.TotalPaidOut = r.TotalPaidOut.Add(row.TotalPrice)
		case models.OrderDirectionBuy:
			s.QuantityOut += row.Quantity
			s.ValueCollected = s.ValueCollected.Add(row.TotalPrice)
			r.TotalCollected = r.TotalCollected.Add(row.TotalPrice)
		}
		s.LastStockAfter = row.StockAfter
	}
	for _, s := range byType {
		r.Summary = append(r.Summary, *s)
	}
	sort.Slice(r.Summary, func(i, j int) bool {
		if r.Summary[i].TypeName != r.Summary[j].TypeName {
			return r.Summary[i].TypeName < r.Summary[j].TypeName
		}
		return r.Summary[i].TypeId < r.Summary[j].TypeId
	})
	return r
}

// Filename is the suggested attachment / object name, e.g. exchange-3-20260101-20260201.xlsx.
func (r *TransactionReport) Filename() string {
	name := fmt.Sprintf("exchange-%d", r.ConfigId)
	if !r.From.IsZero() {
		name += "-" + r.From.UTC().Format("20060102")
	}
	if !r.To.IsZero() {
		name += "-" + r.To.UTC().Format("20060102")
	}
	return name + ".xlsx"
}
