package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PickupRequestStatus string

const (
	PickupRequestStatusPending   PickupRequestStatus = "pending"
	PickupRequestStatusAccepted  PickupRequestStatus = "accepted"
	PickupRequestStatusRejected  PickupRequestStatus = "rejected"
	PickupRequestStatusCompleted PickupRequestStatus = "completed"
	PickupRequestStatusCancelled PickupRequestStatus = "cancelled"
)

func (s PickupRequestStatus) Valid() bool {
	switch s {
	case PickupRequestStatusPending, PickupRequestStatusAccepted, PickupRequestStatusRejected,
		PickupRequestStatusCompleted, PickupRequestStatusCancelled:
		return true
	}
	return false
}

// ActivePickupStatuses are the statuses covered by the one-active-request-per-volunteer index.
var ActivePickupStatuses = []PickupRequestStatus{PickupRequestStatusPending, PickupRequestStatusAccepted}

// PickupRequest is a volunteer's offer to collect a listing. The partial unique
// index idx_pickup_active_request allows a single pending or accepted request
// per (listing, volunteer).
type PickupRequest struct {
	ID          uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	ListingID   uuid.UUID           `gorm:"type:uuid;not null;index;uniqueIndex:idx_pickup_active_request,priority:1,where:status = 'pending' OR status = 'accepted'" json:"listing_id"`
	Listing     *BottleListing      `gorm:"foreignKey:ListingID;constraint:OnDelete:CASCADE" json:"listing,omitempty"`
	VolunteerID uuid.UUID           `gorm:"type:uuid;not null;index;uniqueIndex:idx_pickup_active_request,priority:2,where:status = 'pending' OR status = 'accepted'" json:"volunteer_id"`
	Volunteer   *User               `gorm:"foreignKey:VolunteerID;constraint:OnDelete:CASCADE" json:"volunteer,omitempty"`
	Message     string              `gorm:"type:text" json:"message"`
	PickupTime  *time.Time          `json:"pickup_time,omitempty"`
	Status      PickupRequestStatus `gorm:"size:20;not null;index" json:"status"`
	CreatedAt   time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *PickupRequest) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == uuid.Nil {
		p.ID, err = uuid.NewV7()
	}
	return
}
