package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ListingStatus string

const (
	ListingStatusOpen      ListingStatus = "open"
	ListingStatusClaimed   ListingStatus = "claimed"
	ListingStatusCompleted ListingStatus = "completed"
	ListingStatusCancelled ListingStatus = "cancelled"
)

func (s ListingStatus) Valid() bool {
	switch s {
	case ListingStatusOpen, ListingStatusClaimed, ListingStatusCompleted, ListingStatusCancelled:
		return true
	}
	return false
}

type BottleListing struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID         uuid.UUID       `gorm:"type:uuid;not null;index" json:"owner_id"`
	Owner           *User           `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE" json:"owner,omitempty"`
	Title           string          `gorm:"size:120;not null" json:"title"`
	Description     string          `gorm:"type:text" json:"description"`
	BottleCount     int             `gorm:"not null;check:chk_bottle_listings_bottle_count,bottle_count >= 1 AND bottle_count <= 10000" json:"bottle_count"`
	LocationAddress string          `gorm:"size:255;not null" json:"location_address"`
	Latitude        *float64        `json:"latitude,omitempty"`
	Longitude       *float64        `json:"longitude,omitempty"`
	EstimatedRefund decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"estimated_refund"`
	SplitPercentage int             `gorm:"not null;check:chk_bottle_listings_split,split_percentage >= 0 AND split_percentage <= 100" json:"split_percentage"`
	PickupDeadline  *time.Time      `json:"pickup_deadline,omitempty"`
	Status          ListingStatus   `gorm:"size:20;not null;index" json:"status"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (BottleListing) TableName() string {
	return "bottle_listings"
}

func (l *BottleListing) BeforeCreate(tx *gorm.DB) (err error) {
	if l.ID == uuid.Nil {
		l.ID, err = uuid.NewV7()
	}
	return
}
