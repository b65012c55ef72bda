package dto

import (
	"time"

	"github.com/vargamihaly/bottlebuddy/internal/entity"
	commonDto "github.com/vargamihaly/bottlebuddy/pkg/dto"
)

type CreatePickupRequest struct {
	Message    string     `json:"message" validate:"max=1000"`
	PickupTime *time.Time `json:"pickup_time"`
}

type ListPickupRequestsQuery struct {
	commonDto.PageQuery
	Status string `form:"status" binding:"omitempty,oneof=pending accepted rejected completed cancelled"`
}

// CompletePickupResponse is returned by the complete endpoint.
type CompletePickupResponse struct {
	Request     *entity.PickupRequest `json:"pickup_request"`
	Transaction *entity.Transaction   `json:"transaction"`
}

type PickupRequestPage = commonDto.Paginated[entity.PickupRequest]
