package models

import (
	"gorm.io/gorm"
)

// AllModels is the AutoMigrate set, shared by startup migrations and tests.
func AllModels() []interface{} {
	return []interface{}{
		&ExchangeConfig{},
		&User{}, &CharacterOwnership{},
		&Order{}, &OrderItem{},
		&ContractSnapshot{}, &ContractItem{},
		&StockEntry{}, &ExchangeTransaction{},
		&OutboxEvent{}, &IdempotencyKey{},
	}
}

func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}
