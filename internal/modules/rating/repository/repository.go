package rating

import (
	"context"

	"github.com/google/uuid"
	"github.com/vargamihaly/bottlebuddy/internal/entity"
	"github.com/vargamihaly/bottlebuddy/pkg/apperror"
	"github.com/vargamihaly/bottlebuddy/pkg/database"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, rating *entity.Rating) error
	Exists(ctx context.Context, transactionID, raterID uuid.UUID) (bool, error)
	FindByRatedUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]entity.Rating, int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, rating *entity.Rating) error {
	return apperror.FromDB(database.Conn(ctx, r.db).Omit("Rater", "RatedUser", "Transaction").Create(rating).Error)
}

func (r *repository) Exists(ctx context.Context, transactionID, raterID uuid.UUID) (bool, error) {
	var count int64
	err := database.Conn(ctx, r.db).Model(&entity.Rating{}).
		Where("transaction_id = ? AND rater_id = ?", transactionID, raterID).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) FindByRatedUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]entity.Rating, int64, error) {
	query := database.Conn(ctx, r.db).Model(&entity.Rating{}).Where("rated_user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var ratings []entity.Rating
	err := query.
		Preload("Rater.Profile").
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&ratings).Error
	return ratings, total, err
}
