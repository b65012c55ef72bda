package pickup

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/vargamihaly/bottlebuddy/internal/entity"
	"github.com/vargamihaly/bottlebuddy/pkg/apperror"
	"github.com/vargamihaly/bottlebuddy/pkg/database"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, request *entity.PickupRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.PickupRequest, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.PickupRequest, error)
	HasActive(ctx context.Context, listingID, volunteerID uuid.UUID) (bool, error)
	FindByListingAndStatus(ctx context.Context, listingID uuid.UUID, statuses ...entity.PickupRequestStatus) ([]entity.PickupRequest, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to entity.PickupRequestStatus) error
	ResolvePending(ctx context.Context, listingID uuid.UUID, exceptID uuid.UUID) ([]entity.PickupRequest, error)
	FindByListing(ctx context.Context, listingID uuid.UUID, status entity.PickupRequestStatus, offset, limit int) ([]entity.PickupRequest, int64, error)
	FindByVolunteer(ctx context.Context, volunteerID uuid.UUID, status entity.PickupRequestStatus, offset, limit int) ([]entity.PickupRequest, int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, request *entity.PickupRequest) error {
	return apperror.FromDB(database.Conn(ctx, r.db).Create(request).Error)
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*entity.PickupRequest, error) {
	var request entity.PickupRequest
	if err := database.Conn(ctx, r.db).Where("id = ?", id).First(&request).Error; err != nil {
		return nil, apperror.FromDB(err)
	}
	return &request, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.PickupRequest, error) {
	var request entity.PickupRequest
	if err := database.ForUpdate(database.Conn(ctx, r.db)).Where("id = ?", id).First(&request).Error; err != nil {
		return nil, apperror.FromDB(err)
	}
	return &request, nil
}

func (r *repository) HasActive(ctx context.Context, listingID, volunteerID uuid.UUID) (bool, error) {
	var count int64
	err := database.Conn(ctx, r.db).Model(&entity.PickupRequest{}).
		Where("listing_id = ? AND volunteer_id = ? AND status IN ?", listingID, volunteerID, entity.ActivePickupStatuses).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) FindByListingAndStatus(ctx context.Context, listingID uuid.UUID, statuses ...entity.PickupRequestStatus) ([]entity.PickupRequest, error) {
	var requests []entity.PickupRequest
	err := database.Conn(ctx, r.db).
		Where("listing_id = ? AND status IN ?", listingID, statuses).
		Order("created_at asc").
		Find(&requests).Error
	return requests, err
}

// UpdateStatus moves a request from one status to another. It fails with
// ErrInvalidTransition when the row is no longer in from.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to entity.PickupRequestStatus) error {
	res := database.Conn(ctx, r.db).Model(&entity.PickupRequest{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return apperror.FromDB(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("pickup request is no longer %s: %w", from, apperror.ErrInvalidTransition)
	}
	return nil
}

// ResolvePending rejects every pending request on the listing except exceptID
// and returns the rejected rows.
func (r *repository) ResolvePending(ctx context.Context, listingID uuid.UUID, exceptID uuid.UUID) ([]entity.PickupRequest, error) {
	var pending []entity.PickupRequest
	if err := database.Conn(ctx, r.db).
		Where("listing_id = ? AND status = ? AND id <> ?", listingID, entity.PickupRequestStatusPending, exceptID).
		Find(&pending).Error; err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, len(pending))
	for i := range pending {
		ids[i] = pending[i].ID
		pending[i].Status = entity.PickupRequestStatusRejected
	}

	if err := database.Conn(ctx, r.db).Model(&entity.PickupRequest{}).
		Where("id IN ? AND status = ?", ids, entity.PickupRequestStatusPending).
		Update("status", entity.PickupRequestStatusRejected).Error; err != nil {
		return nil, err
	}
	return pending, nil
}

func (r *repository) FindByListing(ctx context.Context, listingID uuid.UUID, status entity.PickupRequestStatus, offset, limit int) ([]entity.PickupRequest, int64, error) {
	query := database.Conn(ctx, r.db).Model(&entity.PickupRequest{}).Where("listing_id = ?", listingID)
	return r.page(query, status, offset, limit, "Volunteer.Profile")
}

func (r *repository) FindByVolunteer(ctx context.Context, volunteerID uuid.UUID, status entity.PickupRequestStatus, offset, limit int) ([]entity.PickupRequest, int64, error) {
	query := database.Conn(ctx, r.db).Model(&entity.PickupRequest{}).Where("volunteer_id = ?", volunteerID)
	return r.page(query, status, offset, limit, "Listing")
}

func (r *repository) page(query *gorm.DB, status entity.PickupRequestStatus, offset, limit int, preload string) ([]entity.PickupRequest, int64, error) {
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var requests []entity.PickupRequest
	err := query.
		Preload(preload).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&requests).Error
	return requests, total, err
}
