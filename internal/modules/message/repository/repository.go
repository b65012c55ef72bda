package message

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vargamihaly/bottlebuddy/internal/entity"
	"github.com/vargamihaly/bottlebuddy/pkg/apperror"
	"github.com/vargamihaly/bottlebuddy/pkg/database"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, message *entity.Message) error
	FindByRequest(ctx context.Context, requestID uuid.UUID, offset, limit int) ([]entity.Message, int64, error)
	// MarkConversationRead marks the messages of a conversation that were sent
	// by someone other than readerID.
	MarkConversationRead(ctx context.Context, requestID, readerID uuid.UUID, at time.Time) (int64, error)
	CountUnread(ctx context.Context, requestID, readerID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, message *entity.Message) error {
	return apperror.FromDB(database.Conn(ctx, r.db).Omit("PickupRequest", "Sender").Create(message).Error)
}

// FindByRequest pages through a conversation oldest first.
func (r *repository) FindByRequest(ctx context.Context, requestID uuid.UUID, offset, limit int) ([]entity.Message, int64, error) {
	query := database.Conn(ctx, r.db).Model(&entity.Message{}).Where("pickup_request_id = ?", requestID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var messages []entity.Message
	err := query.
		Order("created_at asc").
		Order("id asc").
		Offset(offset).
		Limit(limit).
		Find(&messages).Error
	return messages, total, err
}

func (r *repository) MarkConversationRead(ctx context.Context, requestID, readerID uuid.UUID, at time.Time) (int64, error) {
	res := database.Conn(ctx, r.db).Model(&entity.Message{}).
		Where("pickup_request_id = ? AND sender_id <> ? AND is_read = ?", requestID, readerID, false).
		Updates(map[string]any{"is_read": true, "read_at": at})
	return res.RowsAffected, res.Error
}

func (r *repository) CountUnread(ctx context.Context, requestID, readerID uuid.UUID) (int64, error) {
	var count int64
	err := database.Conn(ctx, r.db).Model(&entity.Message{}).
		Where("pickup_request_id = ? AND sender_id <> ? AND is_read = ?", requestID, readerID, false).
		Count(&count).Error
	return count, err
}
