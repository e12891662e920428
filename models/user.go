package models

import (
	"context"
	"errors"
	"html"
	"strings"
	"time"

	"github.com/mmdatafocus/exchange_backend/config"
	"gorm.io/gorm"
)

type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Username  string    `gorm:"size:100;not null;unique" json:"username" binding:"required"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Password  string    `gorm:"size:255;not null" json:"-"`
	IsActive  *bool     `gorm:"not null" json:"is_active"`
	Role      UserRole  `gorm:"size:1;not null;default:'M'" json:"role"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (u *User) BeforeSave(tx *gorm.DB) error {
	u.Username = html.EscapeString(strings.TrimSpace(u.Username))
	if u.Username == "" {
		return errors.New("username is required")
	}
	if u.Role != UserRoleAdmin && u.Role != UserRoleMember {
		return errors.New("invalid user role")
	}
	return nil
}

func (u User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}

func GetUserByUsername(ctx context.Context, db *gorm.DB, username string) (*User, error) {
	var user User
	if err := db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).Take(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ListAdminUserIDs returns active admins, falling back to EXCHANGE_ADMIN_USER_IDS when none are stored.
func ListAdminUserIDs(ctx context.Context, db *gorm.DB) ([]int, error) {
	var ids []int
	if err := db.WithContext(ctx).Model(&User{}).
		Where("role = ? AND is_active = ?", UserRoleAdmin, true).
		Order("id ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		ids = config.ExchangeAdminUserIDs()
	}
	return ids, nil
}
