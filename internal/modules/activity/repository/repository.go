package activity

import (
	"context"

	"github.com/google/uuid"
	"github.com/vargamihaly/bottlebuddy/internal/entity"
	"github.com/vargamihaly/bottlebuddy/pkg/database"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, activities ...*entity.UserActivity) error
	FindByUserID(ctx context.Context, userID uuid.UUID, unreadOnly bool, offset, limit int) ([]entity.UserActivity, int64, error)
	MarkAsRead(ctx context.Context, userID, id uuid.UUID) (int64, error)
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int64, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, activities ...*entity.UserActivity) error {
	if len(activities) == 0 {
		return nil
	}
	return database.Conn(ctx, r.db).Create(activities).Error
}

func (r *repository) FindByUserID(ctx context.Context, userID uuid.UUID, unreadOnly bool, offset, limit int) ([]entity.UserActivity, int64, error) {
	query := database.Conn(ctx, r.db).Model(&entity.UserActivity{}).Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var activities []entity.UserActivity
	err := query.
		Order("created_at desc").
		Order("id desc").
		Offset(offset).
		Limit(limit).
		Find(&activities).Error
	return activities, total, err
}

func (r *repository) MarkAsRead(ctx context.Context, userID, id uuid.UUID) (int64, error) {
	res := database.Conn(ctx, r.db).Model(&entity.UserActivity{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

func (r *repository) MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	res := database.Conn(ctx, r.db).Model(&entity.UserActivity{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

func (r *repository) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := database.Conn(ctx, r.db).Model(&entity.UserActivity{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

func (r *repository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := database.Conn(ctx, r.db).Model(&entity.UserActivity{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}
