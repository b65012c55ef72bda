package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
)

func (s TransactionStatus) Valid() bool {
	return s == TransactionStatusPending || s == TransactionStatusCompleted
}

// Transaction settles a completed pickup. VolunteerAmount + OwnerAmount always
// equals TotalRefund.
type Transaction struct {
	ID              uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	ListingID       uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex" json:"listing_id"`
	Listing         *BottleListing    `gorm:"foreignKey:ListingID;constraint:OnDelete:CASCADE" json:"listing,omitempty"`
	PickupRequestID uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex" json:"pickup_request_id"`
	PickupRequest   *PickupRequest    `gorm:"foreignKey:PickupRequestID;constraint:OnDelete:CASCADE" json:"pickup_request,omitempty"`
	VolunteerAmount decimal.Decimal   `gorm:"type:numeric(12,2);not null" json:"volunteer_amount"`
	OwnerAmount     decimal.Decimal   `gorm:"type:numeric(12,2);not null" json:"owner_amount"`
	TotalRefund     decimal.Decimal   `gorm:"type:numeric(12,2);not null" json:"total_refund"`
	Status          TransactionStatus `gorm:"size:20;not null;index" json:"status"`
	CreatedAt       time.Time         `gorm:"autoCreateTime" json:"created_at"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) (err error) {
	if t.ID == uuid.Nil {
		t.ID, err = uuid.NewV7()
	}
	return
}
