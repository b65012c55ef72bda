package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message belongs to the conversation of a pickup request. Deleting the sender
// is restricted so conversations survive.
type Message struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	PickupRequestID uuid.UUID      `gorm:"type:uuid;not null;index:idx_messages_request_created,priority:1" json:"pickup_request_id"`
	PickupRequest   *PickupRequest `gorm:"foreignKey:PickupRequestID;constraint:OnDelete:CASCADE" json:"-"`
	SenderID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"sender_id"`
	Sender          *User          `gorm:"foreignKey:SenderID;constraint:OnDelete:RESTRICT" json:"-"`
	Content         string         `gorm:"size:1000" json:"content"`
	ImageURL        *string        `gorm:"type:text" json:"image_url,omitempty"`
	IsRead          bool           `gorm:"not null;default:false" json:"is_read"`
	ReadAt          *time.Time     `json:"read_at,omitempty"`
	CreatedAt       time.Time      `gorm:"autoCreateTime;index:idx_messages_request_created,priority:2" json:"created_at"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == uuid.Nil {
		m.ID, err = uuid.NewV7()
	}
	return
}
