package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// CharacterOwnership links a member to an in-game character id.
// Unique constraint: (user_id, character_id).
type CharacterOwnership struct {
	ID            int       `gorm:"primary_key" json:"id"`
	UserId        int       `gorm:"not null;index:uniq_ownership,unique" json:"user_id"`
	CharacterId   int64     `gorm:"not null;index:uniq_ownership,unique;index" json:"character_id"`
	CharacterName string    `gorm:"size:255" json:"character_name"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// IdentityStore is the GORM-backed owner -> character id resolver.
type IdentityStore struct {
	db *gorm.DB
}

func NewIdentityStore(db *gorm.DB) *IdentityStore {
	return &IdentityStore{db: db}
}

func (s *IdentityStore) ListOwnedIdentities(ctx context.Context, userID int) ([]int64, error) {
	ids := []int64{}
	if err := s.db.WithContext(ctx).Model(&CharacterOwnership{}).
		Where("user_id = ?", userID).
		Order("character_id ASC").
		Pluck("character_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *IdentityStore) LinkCharacter(ctx context.Context, userID int, characterID int64, name string) error {
	link := CharacterOwnership{UserId: userID, CharacterId: characterID, CharacterName: name}
	return s.db.WithContext(ctx).
		Where("user_id = ? AND character_id = ?", userID, characterID).
		FirstOrCreate(&link).Error
}
