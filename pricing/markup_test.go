package pricing

import (
	"testing"

	"github.com/mmdatafocus/exchange_backend/models"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestApplyMarkup(t *testing.T) {
	q := Quote{Buy: d("100"), Sell: d("110")}
	tests := []struct {
		name    string
		base    models.MarkupBase
		percent string
		bounds  bool
		want    string
	}{
		{"buy base no markup", models.MarkupBaseBuy, "0", false, "100"},
		{"buy base plus 5", models.MarkupBaseBuy, "5", false, "105"},
		{"buy base plus 20 unbounded", models.MarkupBaseBuy, "20", false, "120"},
		{"buy base plus 20 capped at jita sell", models.MarkupBaseBuy, "20", true, "110"},
		{"sell base minus 5", models.MarkupBaseSell, "-5", false, "104.5"},
		{"sell base minus 20 floored at jita buy", models.MarkupBaseSell, "-20", true, "100"},
		{"sell base minus 20 unbounded", models.MarkupBaseSell, "-20", false, "88"},
		{"buy base minus 10 not bounded", models.MarkupBaseBuy, "-10", true, "90"},
		{"rounds to cents", models.MarkupBaseBuy, "3.333", false, "103.33"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplyMarkup(q, tt.base, d(tt.percent), tt.bounds)
			if !got.Equal(d(tt.want)) {
				t.Fatalf("got %s want %s", got, tt.want)
			}
		})
	}
}

func TestUnitPriceUsesDirectionSettings(t *testing.T) {
	cfg := models.ExchangeConfig{
		SellMarkupBase:    models.MarkupBaseBuy,
		SellMarkupPercent: d("-10"),
		BuyMarkupBase:     models.MarkupBaseSell,
		BuyMarkupPercent:  d("10"),
	}
	q := Quote{Buy: d("100"), Sell: d("110")}
	if got := UnitPrice(cfg, models.OrderDirectionSell, q); !got.Equal(d("90")) {
		t.Fatalf("sell order unit price = %s", got)
	}
	if got := UnitPrice(cfg, models.OrderDirectionBuy, q); !got.Equal(d("121")) {
		t.Fatalf("buy order unit price = %s", got)
	}
}
