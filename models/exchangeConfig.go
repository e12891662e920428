package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ExchangeConfig is one hub instance: the corporation that runs it and the structure
// where contracts must be placed.
type ExchangeConfig struct {
	ID                        int             `gorm:"primary_key" json:"id"`
	CorporationId             int64           `gorm:"index;not null" json:"corporation_id"`
	StructureId               int64           `gorm:"not null" json:"structure_id"`
	StructureName             string          `gorm:"size:255" json:"structure_name"`
	HangarDivision            int             `gorm:"not null;default:1" json:"hangar_division"`
	SellMarkupPercent         decimal.Decimal `gorm:"type:decimal(8,2);not null;default:0" json:"sell_markup_percent"`
	SellMarkupBase            MarkupBase      `gorm:"size:10;not null;default:'buy'" json:"sell_markup_base"`
	BuyMarkupPercent          decimal.Decimal `gorm:"type:decimal(8,2);not null;default:0" json:"buy_markup_percent"`
	BuyMarkupBase             MarkupBase      `gorm:"size:10;not null;default:'buy'" json:"buy_markup_base"`
	EnforceJitaPriceBounds    bool            `gorm:"not null;default:false" json:"enforce_jita_price_bounds"`
	NotifyAdminsOnSellAnomaly bool            `gorm:"not null" json:"notify_admins_on_sell_anomaly"`
	IsActive                  bool            `gorm:"index;not null" json:"is_active"`
	CreatedAt                 time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                 time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *ExchangeConfig) BeforeSave(tx *gorm.DB) error {
	if c.CorporationId <= 0 {
		return errors.New("corporation_id is required")
	}
	if c.StructureId <= 0 {
		return errors.New("structure_id is required")
	}
	if c.HangarDivision == 0 {
		c.HangarDivision = 1
	}
	if c.SellMarkupBase == "" {
		c.SellMarkupBase = MarkupBaseBuy
	}
	if c.BuyMarkupBase == "" {
		c.BuyMarkupBase = MarkupBaseBuy
	}
	if c.HangarDivision < 1 || c.HangarDivision > 7 {
		return fmt.Errorf("hangar_division must be between 1 and 7, got %d", c.HangarDivision)
	}
	for _, base := range []MarkupBase{c.SellMarkupBase, c.BuyMarkupBase} {
		if base != MarkupBaseBuy && base != MarkupBaseSell {
			return fmt.Errorf("invalid markup base %q", base)
		}
	}
	c.StructureName = strings.TrimSpace(c.StructureName)
	return nil
}

// LocationLabel is the human-readable structure used in member-facing notes.
func (c ExchangeConfig) LocationLabel() string {
	if c.StructureName != "" {
		return c.StructureName
	}
	return fmt.Sprintf("Structure %d", c.StructureId)
}

func GetExchangeConfig(ctx context.Context, db *gorm.DB, id int) (*ExchangeConfig, error) {
	var cfg ExchangeConfig
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&cfg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}
	return &cfg, nil
}

func ListActiveExchangeConfigs(ctx context.Context, db *gorm.DB) ([]ExchangeConfig, error) {
	var cfgs []ExchangeConfig
	if err := db.WithContext(ctx).Where("is_active = ?", true).Order("id ASC").Find(&cfgs).Error; err != nil {
		return nil, err
	}
	return cfgs, nil
}
