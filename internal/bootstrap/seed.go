package bootstrap

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vargamihaly/bottlebuddy/internal/entity"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	DemoEmail    = "demo@bottlebuddy.app"
	demoPassword = "demo1234"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(entity.Models()...)
}

// SeedDemoData creates a demo account with one open listing. It is a no-op
// when the account already exists.
func SeedDemoData(db *gorm.DB) error {
	var existing entity.User
	err := db.Where("email = ?", DemoEmail).First(&existing).Error
	if err == nil {
		log.Info().Msg("Demo user already exists, skipping seed")
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hashedPasswordBytes, err := bcrypt.GenerateFromPassword([]byte(demoPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash demo password: %w", err)
	}

	username := "demo"
	return db.Transaction(func(tx *gorm.DB) error {
		user := &entity.User{
			Email:        DemoEmail,
			PasswordHash: string(hashedPasswordBytes),
			Profile:      &entity.Profile{FullName: "Demo Owner", Username: &username},
		}
		if err := tx.Create(user).Error; err != nil {
			return err
		}

		listing := &entity.BottleListing{
			OwnerID:         user.ID,
			Title:           "Crate of beer bottles",
			Description:     "Two crates on the porch, ring the bell.",
			BottleCount:     40,
			LocationAddress: "Andrássy út 1, Budapest",
			EstimatedRefund: decimal.NewFromInt(2000),
			SplitPercentage: 50,
			Status:          entity.ListingStatusOpen,
		}
		if err := tx.Create(listing).Error; err != nil {
			return err
		}

		log.Info().Str("email", DemoEmail).Msg("Demo user seeded")
		return nil
	})
}
