package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Rating struct {
	ID            uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	RaterID       uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_rating_transaction_rater,priority:2" json:"rater_id"`
	Rater         *User        `gorm:"foreignKey:RaterID;constraint:OnDelete:CASCADE" json:"rater,omitempty"`
	RatedUserID   uuid.UUID    `gorm:"type:uuid;not null;index" json:"rated_user_id"`
	RatedUser     *User        `gorm:"foreignKey:RatedUserID;constraint:OnDelete:CASCADE" json:"-"`
	TransactionID uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_rating_transaction_rater,priority:1" json:"transaction_id"`
	Transaction   *Transaction `gorm:"foreignKey:TransactionID;constraint:OnDelete:CASCADE" json:"-"`
	Value         int          `gorm:"not null;check:chk_ratings_value,value >= 1 AND value <= 5" json:"value"`
	Comment       string       `gorm:"size:500" json:"comment"`
	CreatedAt     time.Time    `gorm:"autoCreateTime" json:"created_at"`
}

func (r *Rating) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == uuid.Nil {
		r.ID, err = uuid.NewV7()
	}
	return
}
