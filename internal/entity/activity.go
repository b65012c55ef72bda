package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ActivityType string

const (
	ActivityListingCreated               ActivityType = "listing_created"
	ActivityListingCancelled             ActivityType = "listing_cancelled"
	ActivityPickupRequestSent            ActivityType = "pickup_request_sent"
	ActivityPickupRequestReceived        ActivityType = "pickup_request_received"
	ActivityPickupRequestAccepted        ActivityType = "pickup_request_accepted"
	ActivityPickupRequestAcceptedByOwner ActivityType = "pickup_request_accepted_by_owner"
	ActivityPickupRequestRejected        ActivityType = "pickup_request_rejected"
	ActivityPickupRequestCancelled       ActivityType = "pickup_request_cancelled"
	ActivityPickupCompleted              ActivityType = "pickup_completed"
	ActivityTransactionCompleted         ActivityType = "transaction_completed"
	ActivityRatingReceived               ActivityType = "rating_received"
	ActivityRatingGiven                  ActivityType = "rating_given"
)

// UserActivity is an append-only feed entry. Only IsRead changes after insert.
type UserActivity struct {
	ID              uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	UserID          uuid.UUID         `gorm:"type:uuid;not null;index:idx_activities_user_created,priority:1" json:"user_id"`
	Type            ActivityType      `gorm:"size:50;not null" json:"type"`
	Title           string            `gorm:"size:200;not null" json:"title"`
	Description     string            `gorm:"type:text" json:"description"`
	IsRead          bool              `gorm:"not null;default:false" json:"is_read"`
	ListingID       *uuid.UUID        `gorm:"type:uuid;index" json:"listing_id,omitempty"`
	PickupRequestID *uuid.UUID        `gorm:"type:uuid" json:"pickup_request_id,omitempty"`
	TransactionID   *uuid.UUID        `gorm:"type:uuid" json:"transaction_id,omitempty"`
	RatingID        *uuid.UUID        `gorm:"type:uuid" json:"rating_id,omitempty"`
	Metadata        datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt       time.Time         `gorm:"autoCreateTime;index:idx_activities_user_created,priority:2" json:"created_at"`
}

func (UserActivity) TableName() string {
	return "user_activities"
}

func (a *UserActivity) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == uuid.Nil {
		a.ID, err = uuid.NewV7()
	}
	return
}
