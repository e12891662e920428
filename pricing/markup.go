package pricing

import (
	"github.com/mmdatafocus/exchange_backend/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ApplyMarkup prices from the chosen Jita side: base * (1 + percent/100), rounded to cents.
// With bounds enforced, a negative markup on Jita sell never drops below Jita buy and a
// positive markup on Jita buy never rises above Jita sell.
func ApplyMarkup(q Quote, base models.MarkupBase, percent decimal.Decimal, enforceBounds bool) decimal.Decimal {
	from := q.Buy
	if base == models.MarkupBaseSell {
		from = q.Sell
	}
	price := from.Mul(decimal.NewFromInt(1).Add(percent.Div(hundred)))
	if enforceBounds {
		if base == models.MarkupBaseSell && percent.IsNegative() && q.Buy.IsPositive() {
			price = decimal.Max(price, q.Buy)
		}
		if base == models.MarkupBaseBuy && percent.IsPositive() && q.Sell.IsPositive() {
			price = decimal.Min(price, q.Sell)
		}
	}
	return price.Round(2)
}

// UnitPrice is what the hub pays (sell orders) or charges (buy orders) per unit.
func UnitPrice(cfg models.ExchangeConfig, direction models.OrderDirection, q Quote) decimal.Decimal {
	if direction == models.OrderDirectionSell {
		return ApplyMarkup(q, cfg.SellMarkupBase, cfg.SellMarkupPercent, cfg.EnforceJitaPriceBounds)
	}
	return ApplyMarkup(q, cfg.BuyMarkupBase, cfg.BuyMarkupPercent, cfg.EnforceJitaPriceBounds)
}
