package dto

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/vargamihaly/bottlebuddy/internal/entity"
	commonDto "github.com/vargamihaly/bottlebuddy/pkg/dto"
)

type CreateListingRequest struct {
	Title           string          `json:"title" validate:"required,max=120"`
	Description     string          `json:"description" validate:"max=2000"`
	BottleCount     int             `json:"bottle_count" validate:"min=1,max=10000"`
	LocationAddress string          `json:"location_address" validate:"required,min=3,max=255"`
	Latitude        *float64        `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude       *float64        `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	EstimatedRefund decimal.Decimal `json:"estimated_refund"`
	SplitPercentage *int            `json:"split_percentage" validate:"omitempty,min=0,max=100"`
	PickupDeadline  *time.Time      `json:"pickup_deadline"`
}

// UpdateListingRequest only changes the fields that are set.
type UpdateListingRequest struct {
	Title           *string          `json:"title" validate:"omitempty,min=1,max=120"`
	Description     *string          `json:"description" validate:"omitempty,max=2000"`
	BottleCount     *int             `json:"bottle_count" validate:"omitempty,min=1,max=10000"`
	LocationAddress *string          `json:"location_address" validate:"omitempty,min=3,max=255"`
	Latitude        *float64         `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude       *float64         `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	EstimatedRefund *decimal.Decimal `json:"estimated_refund"`
	SplitPercentage *int             `json:"split_percentage" validate:"omitempty,min=0,max=100"`
	PickupDeadline  *time.Time       `json:"pickup_deadline"`
}

type ListListingsQuery struct {
	commonDto.PageQuery
	Status  string `form:"status" binding:"omitempty,oneof=open claimed completed cancelled"`
	OwnerID string `form:"owner_id" binding:"omitempty,uuid"`
}

type SearchListingsQuery struct {
	commonDto.PageQuery
	Q string `form:"q" binding:"required,max=200"`
}

type ListingPage = commonDto.Paginated[entity.BottleListing]
