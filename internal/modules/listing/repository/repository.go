package listing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vargamihaly/bottlebuddy/internal/entity"
	"github.com/vargamihaly/bottlebuddy/pkg/apperror"
	"github.com/vargamihaly/bottlebuddy/pkg/database"
	"gorm.io/gorm"
)

// Filter narrows List. Zero values mean no filter.
type Filter struct {
	Status  entity.ListingStatus
	OwnerID uuid.UUID
	Query   string
}

type Repository interface {
	Create(ctx context.Context, listing *entity.BottleListing) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.BottleListing, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.BottleListing, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]entity.BottleListing, error)
	FindAll(ctx context.Context, filter Filter, offset, limit int) ([]entity.BottleListing, int64, error)
	FindOverdue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	Update(ctx context.Context, listing *entity.BottleListing) error
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to entity.ListingStatus) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, listing *entity.BottleListing) error {
	return apperror.FromDB(database.Conn(ctx, r.db).Create(listing).Error)
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*entity.BottleListing, error) {
	var listing entity.BottleListing
	if err := database.Conn(ctx, r.db).
		Preload("Owner.Profile").
		Where("id = ?", id).
		First(&listing).Error; err != nil {
		return nil, apperror.FromDB(err)
	}
	return &listing, nil
}

// FindByIDForUpdate locks the listing row until the surrounding transaction
// ends. Every pickup transition goes through this lock.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.BottleListing, error) {
	var listing entity.BottleListing
	if err := database.ForUpdate(database.Conn(ctx, r.db)).
		Where("id = ?", id).
		First(&listing).Error; err != nil {
		return nil, apperror.FromDB(err)
	}
	return &listing, nil
}

// FindByIDs keeps the order of ids and skips missing rows.
func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]entity.BottleListing, error) {
	if len(ids) == 0 {
		return []entity.BottleListing{}, nil
	}

	var listings []entity.BottleListing
	if err := database.Conn(ctx, r.db).
		Preload("Owner.Profile").
		Where("id IN ?", ids).
		Find(&listings).Error; err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]entity.BottleListing, len(listings))
	for _, l := range listings {
		byID[l.ID] = l
	}
	ordered := make([]entity.BottleListing, 0, len(ids))
	for _, id := range ids {
		if l, ok := byID[id]; ok {
			ordered = append(ordered, l)
		}
	}
	return ordered, nil
}

func (r *repository) FindAll(ctx context.Context, filter Filter, offset, limit int) ([]entity.BottleListing, int64, error) {
	query := database.Conn(ctx, r.db).Model(&entity.BottleListing{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.OwnerID != uuid.Nil {
		query = query.Where("owner_id = ?", filter.OwnerID)
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(location_address) LIKE ?", like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var listings []entity.BottleListing
	err := query.
		Preload("Owner.Profile").
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&listings).Error
	return listings, total, err
}

func (r *repository) FindOverdue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := database.Conn(ctx, r.db).Model(&entity.BottleListing{}).
		Where("status = ? AND pickup_deadline IS NOT NULL AND pickup_deadline < ?", entity.ListingStatusOpen, now).
		Order("pickup_deadline asc").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *repository) Update(ctx context.Context, listing *entity.BottleListing) error {
	return apperror.FromDB(database.Conn(ctx, r.db).Omit("Owner").Save(listing).Error)
}

// UpdateStatus fails with ErrInvalidTransition when the listing is no longer
// in from.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to entity.ListingStatus) error {
	res := database.Conn(ctx, r.db).Model(&entity.BottleListing{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return apperror.FromDB(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("listing is no longer %s: %w", from, apperror.ErrInvalidTransition)
	}
	return nil
}

// Delete removes the listing and everything hanging off it, children first:
// messages, ratings, transactions, pickup requests, then the listing itself.
func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	db := database.Conn(ctx, r.db)
	requestIDs := db.Model(&entity.PickupRequest{}).Select("id").Where("listing_id = ?", id)
	transactionIDs := db.Model(&entity.Transaction{}).Select("id").Where("listing_id = ?", id)

	steps := []struct {
		name string
		run  func() error
	}{
		{"messages", func() error {
			return db.Where("pickup_request_id IN (?)", requestIDs).Delete(&entity.Message{}).Error
		}},
		{"ratings", func() error {
			return db.Where("transaction_id IN (?)", transactionIDs).Delete(&entity.Rating{}).Error
		}},
		{"transactions", func() error {
			return db.Where("listing_id = ?", id).Delete(&entity.Transaction{}).Error
		}},
		{"pickup requests", func() error {
			return db.Where("listing_id = ?", id).Delete(&entity.PickupRequest{}).Error
		}},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return fmt.Errorf("delete listing %s: %w", step.name, err)
		}
	}

	res := db.Where("id = ?", id).Delete(&entity.BottleListing{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("listing: %w", apperror.ErrNotFound)
	}
	return nil
}
