// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vargamihaly/bottlebuddy/internal/entity"
	"github.com/vargamihaly/bottlebuddy/internal/events"
	"github.com/vargamihaly/bottlebuddy/pkg/database"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDB opens a private in-memory SQLite database with the full schema. A
// single connection serialises transactions the way row locks would.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), database.Config("silent"))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(entity.Models()...))
	return db
}

// CreateUser inserts a user with a profile.
func CreateUser(t *testing.T, db *gorm.DB, name string) *entity.User {
	t.Helper()
	user := &entity.User{
		Email:        name + "@example.com",
		PasswordHash: "x",
		Profile:      &entity.Profile{FullName: name},
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateListing inserts an open listing owned by owner.
func CreateListing(t *testing.T, db *gorm.DB, owner uuid.UUID, refund string, split int) *entity.BottleListing {
	t.Helper()
	listing := &entity.BottleListing{
		OwnerID:         owner,
		Title:           "Bottles",
		BottleCount:     20,
		LocationAddress: "Main street 1",
		EstimatedRefund: decimal.RequireFromString(refund),
		SplitPercentage: split,
		Status:          entity.ListingStatusOpen,
	}
	require.NoError(t, db.Create(listing).Error)
	return listing
}

// Recorder is an events.Publisher that keeps everything published.
type Recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *Recorder) Publish(evs ...events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evs...)
}

func (r *Recorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

// ActivityTypes lists the activity types published for user.
func (r *Recorder) ActivityTypes(user uuid.UUID) []entity.ActivityType {
	var out []entity.ActivityType
	for _, e := range r.Events() {
		if e.Kind == events.KindActivity && e.Activity.UserID == user {
			out = append(out, e.Activity.Type)
		}
	}
	return out
}
