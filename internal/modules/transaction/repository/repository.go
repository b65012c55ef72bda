package transaction

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vargamihaly/bottlebuddy/internal/entity"
	"github.com/vargamihaly/bottlebuddy/pkg/apperror"
	"github.com/vargamihaly/bottlebuddy/pkg/database"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, t *entity.Transaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Transaction, error)
	FindByUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]entity.Transaction, int64, error)
	Complete(ctx context.Context, id uuid.UUID, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, t *entity.Transaction) error {
	return apperror.FromDB(database.Conn(ctx, r.db).Omit("Listing", "PickupRequest").Create(t).Error)
}

// FindByID loads the transaction with its listing and pickup request, which
// identify the two parties.
func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Transaction, error) {
	var t entity.Transaction
	if err := database.Conn(ctx, r.db).
		Preload("Listing").
		Preload("PickupRequest").
		Where("id = ?", id).
		First(&t).Error; err != nil {
		return nil, apperror.FromDB(err)
	}
	return &t, nil
}

// FindByUser returns transactions where userID is the listing owner or the
// volunteer, newest first.
func (r *repository) FindByUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]entity.Transaction, int64, error) {
	db := database.Conn(ctx, r.db)
	query := db.Model(&entity.Transaction{}).
		Where("listing_id IN (?) OR pickup_request_id IN (?)",
			db.Model(&entity.BottleListing{}).Select("id").Where("owner_id = ?", userID),
			db.Model(&entity.PickupRequest{}).Select("id").Where("volunteer_id = ?", userID),
		)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []entity.Transaction
	err := query.
		Preload("Listing").
		Preload("PickupRequest").
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&items).Error
	return items, total, err
}

// Complete settles a pending transaction.
func (r *repository) Complete(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := database.Conn(ctx, r.db).Model(&entity.Transaction{}).
		Where("id = ? AND status = ?", id, entity.TransactionStatusPending).
		Updates(map[string]any{"status": entity.TransactionStatusCompleted, "completed_at": at})
	if res.Error != nil {
		return apperror.FromDB(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("transaction is no longer %s: %w", entity.TransactionStatusPending, apperror.ErrInvalidTransition)
	}
	return nil
}
