// seed-admin creates or updates an exchange admin user (role 'A').
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//	  go run ./cmd/seed-admin --username director --password '...'
//
// ADMIN_PASSWORD is read when --password is omitted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/exchange_backend/config"
	"github.com/mmdatafocus/exchange_backend/models"
	"github.com/mmdatafocus/exchange_backend/utils"
	"gorm.io/gorm"
)

func main() {
	username := flag.String("username", "exchangeAdmin", "Admin username")
	name := flag.String("name", "Exchange Admin", "Display name")
	password := flag.String("password", "", "Admin password (default: $ADMIN_PASSWORD)")
	flag.Parse()

	pw := *password
	if pw == "" {
		pw = os.Getenv("ADMIN_PASSWORD")
	}
	if len(strings.TrimSpace(pw)) < 8 {
		fmt.Fprintln(os.Stderr, "--password (or ADMIN_PASSWORD) of at least 8 characters is required")
		os.Exit(1)
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	if err := models.MigrateTable(db); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	hashed, err := utils.HashPassword(pw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}

	existing, err := models.GetUserByUsername(ctx, db, *username)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			fmt.Fprintf(os.Stderr, "failed to lookup user: %v\n", err)
			os.Exit(1)
		}
		u := models.User{
			Username: *username,
			Name:     *name,
			Password: string(hashed),
			IsActive: utils.NewTrue(),
			Role:     models.UserRoleAdmin,
		}
		if err := db.WithContext(ctx).Create(&u).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to create admin user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created admin user: id=%d username=%q\n", u.ID, u.Username)
		return
	}

	if err := db.WithContext(ctx).Model(&models.User{}).Where("id = ?", existing.ID).Updates(map[string]any{
		"password":  string(hashed),
		"name":      *name,
		"is_active": true,
		"role":      models.UserRoleAdmin,
	}).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to update admin user: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Updated admin user: id=%d username=%q\n", existing.ID, existing.Username)
}
