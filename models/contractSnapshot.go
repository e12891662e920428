package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ContractSnapshot is the cached copy of an in-game contract, kept fresh by the
// external fetcher. Reconciliation only reads it.
type ContractSnapshot struct {
	ContractId          int64           `gorm:"primaryKey;autoIncrement:false" json:"contract_id"`
	CorporationId       int64           `gorm:"not null;index:idx_contract_corp_type,priority:1" json:"corporation_id"`
	IssuerId            int64           `gorm:"not null;index" json:"issuer_id"`
	IssuerCorporationId int64           `gorm:"not null;default:0" json:"issuer_corporation_id"`
	AssigneeId          int64           `gorm:"not null;default:0;index" json:"assignee_id"`
	AcceptorId          int64           `gorm:"not null;default:0" json:"acceptor_id"`
	Type                ContractType    `gorm:"column:contract_type;size:32;not null;index:idx_contract_corp_type,priority:2" json:"type"`
	Status              ContractStatus  `gorm:"size:32;not null;index" json:"status"`
	Title               string          `gorm:"size:255" json:"title"`
	StartLocationId     int64           `gorm:"not null;default:0" json:"start_location_id"`
	EndLocationId       int64           `gorm:"not null;default:0" json:"end_location_id"`
	Price               decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"price"`
	Reward              decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"reward"`
	Collateral          decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"collateral"`
	DateIssued          time.Time       `json:"date_issued"`
	DateExpired         *time.Time      `json:"date_expired"`
	DateCompleted       *time.Time      `json:"date_completed"`
	Items               []ContractItem  `gorm:"foreignKey:ContractId;references:ContractId" json:"items"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type ContractItem struct {
	ID          int   `gorm:"primary_key" json:"-"`
	ContractId  int64 `gorm:"not null;index" json:"contract_id"`
	RecordId    int64 `json:"record_id"`
	TypeId      int   `gorm:"not null" json:"type_id"`
	Quantity    int64 `gorm:"not null" json:"quantity"`
	IsIncluded  bool  `gorm:"not null" json:"is_included"`
	IsSingleton bool  `gorm:"not null" json:"is_singleton"`
}

// IncludedQuantities sums the items the issuer hands over, per type id.
func (c ContractSnapshot) IncludedQuantities() map[int]int64 {
	out := map[int]int64{}
	for _, it := range c.Items {
		if it.IsIncluded {
			out[it.TypeId] += it.Quantity
		}
	}
	return out
}

func (c ContractSnapshot) IncludedItems() []ContractItem {
	var out []ContractItem
	for _, it := range c.Items {
		if it.IsIncluded {
			out = append(out, it)
		}
	}
	return out
}

// AtLocation reports whether either end of the contract is the given structure.
func (c ContractSnapshot) AtLocation(structureID int64) bool {
	return c.StartLocationId == structureID || c.EndLocationId == structureID
}

// ContractSnapshotStore is the read-only accessor over cached contracts.
type ContractSnapshotStore struct {
	db *gorm.DB
}

func NewContractSnapshotStore(db *gorm.DB) *ContractSnapshotStore {
	return &ContractSnapshotStore{db: db}
}

// FindCandidates returns the item-exchange contracts at the config's structure whose parties
// fit the order direction:
//   - sell: issued by one of the owner's characters, assigned to (or accepted by) the hub corporation
//   - buy: issued by the hub corporation, assigned to (or accepted by) one of the owner's characters
//
// No candidates is a normal state and yields an empty slice, not an error.
func (s *ContractSnapshotStore) FindCandidates(ctx context.Context, cfg ExchangeConfig, direction OrderDirection, identityIDs []int64) ([]ContractSnapshot, error) {
	out := []ContractSnapshot{}
	if len(identityIDs) == 0 {
		return out, nil
	}
	q := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		Where("corporation_id = ? AND contract_type = ?", cfg.CorporationId, ContractTypeItemExchange).
		Where("(start_location_id = ? OR end_location_id = ?)", cfg.StructureId, cfg.StructureId)
	switch direction {
	case OrderDirectionSell:
		q = q.Where("issuer_id IN ?", identityIDs).
			Where("(assignee_id = ? OR acceptor_id = ?)", cfg.CorporationId, cfg.CorporationId)
	case OrderDirectionBuy:
		q = q.Where("issuer_corporation_id = ?", cfg.CorporationId).
			Where("(assignee_id IN ? OR acceptor_id IN ?)", identityIDs, identityIDs)
	default:
		return out, nil
	}
	if err := q.Order("contract_id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ContractSnapshotStore) GetSnapshot(ctx context.Context, contractID int64) (*ContractSnapshot, error) {
	var snap ContractSnapshot
	if err := s.db.WithContext(ctx).Preload("Items").Where("contract_id = ?", contractID).Take(&snap).Error; err != nil {
		return nil, err
	}
	return &snap, nil
}

// UpsertSnapshots replaces each snapshot and its item list atomically.
func (s *ContractSnapshotStore) UpsertSnapshots(ctx context.Context, snaps []ContractSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range snaps {
			snap := snaps[i]
			items := append([]ContractItem(nil), snap.Items...)
			snap.Items = nil
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "contract_id"}},
				UpdateAll: true,
			}).Create(&snap).Error; err != nil {
				return err
			}
			if err := tx.Where("contract_id = ?", snap.ContractId).Delete(&ContractItem{}).Error; err != nil {
				return err
			}
			if len(items) == 0 {
				continue
			}
			for j := range items {
				items[j].ID = 0
				items[j].ContractId = snap.ContractId
			}
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
