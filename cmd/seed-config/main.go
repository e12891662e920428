// seed-config creates an exchange config for one hub corporation and structure.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/mmdatafocus/exchange_backend/config"
	"github.com/mmdatafocus/exchange_backend/models"
	"github.com/mmdatafocus/exchange_backend/utils"
	"github.com/shopspring/decimal"
)

func main() {
	corporationID := flag.Int64("corporation-id", 0, "Required: hub corporation id")
	structureID := flag.Int64("structure-id", 0, "Required: hub structure id")
	structureName := flag.String("structure-name", "", "Optional: structure display name")
	hangar := flag.Int("hangar-division", 1, "Corporation hangar division (1-7)")
	sellPct := flag.String("sell-markup", "0", "Markup percent for member sell orders")
	sellBase := flag.String("sell-base", "buy", "Price base for member sell orders (buy|sell)")
	buyPct := flag.String("buy-markup", "0", "Markup percent for member buy orders")
	buyBase := flag.String("buy-base", "buy", "Price base for member buy orders (buy|sell)")
	bounds := flag.Bool("enforce-jita-bounds", false, "Clamp markups to the Jita buy/sell spread")
	notifySell := flag.Bool("notify-admins-on-sell-anomaly", false, "Alert admins on sell order anomalies")
	flag.Parse()

	if *corporationID <= 0 || *structureID <= 0 {
		fmt.Fprintln(os.Stderr, "--corporation-id and --structure-id are required")
		os.Exit(1)
	}
	sellMarkup, err := utils.ParseDecimal(*sellPct)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --sell-markup: %v\n", err)
		os.Exit(1)
	}
	buyMarkup, err := utils.ParseDecimal(*buyPct)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --buy-markup: %v\n", err)
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	if err := models.MigrateTable(db); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	cfg := models.ExchangeConfig{
		CorporationId:             *corporationID,
		StructureId:               *structureID,
		StructureName:             *structureName,
		HangarDivision:            *hangar,
		SellMarkupPercent:         sellMarkup.Round(2),
		SellMarkupBase:            models.MarkupBase(*sellBase),
		BuyMarkupPercent:          buyMarkup.Round(2),
		BuyMarkupBase:             models.MarkupBase(*buyBase),
		EnforceJitaPriceBounds:    *bounds,
		NotifyAdminsOnSellAnomaly: *notifySell,
		IsActive:                  true,
	}
	if cfg.SellMarkupPercent.LessThan(decimal.NewFromInt(-100)) || cfg.BuyMarkupPercent.LessThan(decimal.NewFromInt(-100)) {
		fmt.Fprintln(os.Stderr, "markup below -100% would produce negative prices")
		os.Exit(1)
	}
	if err := db.WithContext(context.Background()).Create(&cfg).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to create exchange config: %v\n", err)
		os.Exit(1)
	}
	out, _ := json.MarshalIndent(cfg, "", "  ")
	fmt.Println(string(out))
}
