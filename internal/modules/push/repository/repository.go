package push

import (
	"context"

	"github.com/google/uuid"
	"github.com/vargamihaly/bottlebuddy/internal/entity"
	"github.com/vargamihaly/bottlebuddy/pkg/apperror"
	"github.com/vargamihaly/bottlebuddy/pkg/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	// Upsert stores the token, moving it to userID when another account had it.
	Upsert(ctx context.Context, token *entity.DeviceToken) error
	FindByUser(ctx context.Context, userID uuid.UUID) ([]entity.DeviceToken, error)
	Delete(ctx context.Context, userID uuid.UUID, token string) (int64, error)
	DeleteToken(ctx context.Context, token string) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Upsert(ctx context.Context, token *entity.DeviceToken) error {
	err := database.Conn(ctx, r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id", "platform"}),
		}).
		Create(token).Error
	if err != nil {
		return apperror.FromDB(err)
	}

	var stored entity.DeviceToken
	if err := database.Conn(ctx, r.db).Where("token = ?", token.Token).First(&stored).Error; err != nil {
		return apperror.FromDB(err)
	}
	*token = stored
	return nil
}

func (r *repository) FindByUser(ctx context.Context, userID uuid.UUID) ([]entity.DeviceToken, error) {
	var tokens []entity.DeviceToken
	err := database.Conn(ctx, r.db).
		Where("user_id = ?", userID).
		Order("created_at asc").
		Find(&tokens).Error
	return tokens, err
}

func (r *repository) Delete(ctx context.Context, userID uuid.UUID, token string) (int64, error) {
	res := database.Conn(ctx, r.db).
		Where("user_id = ? AND token = ?", userID, token).
		Delete(&entity.DeviceToken{})
	return res.RowsAffected, res.Error
}

func (r *repository) DeleteToken(ctx context.Context, token string) error {
	return database.Conn(ctx, r.db).Where("token = ?", token).Delete(&entity.DeviceToken{}).Error
}
