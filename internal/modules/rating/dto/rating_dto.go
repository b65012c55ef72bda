package dto

import (
	"github.com/vargamihaly/bottlebuddy/internal/entity"
	commonDto "github.com/vargamihaly/bottlebuddy/pkg/dto"
)

type CreateRatingRequest struct {
	Value   int    `json:"value" validate:"min=1,max=5"`
	Comment string `json:"comment" validate:"max=500"`
}

type RatingPage = commonDto.Paginated[entity.Rating]
