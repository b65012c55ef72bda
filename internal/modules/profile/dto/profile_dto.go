package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/vargamihaly/bottlebuddy/internal/entity"
)

// UpdateProfileInput is bound from JSON or a multipart form with an optional
// avatar file.
type UpdateProfileInput struct {
	FullName *string `json:"full_name" form:"full_name" binding:"omitempty,min=1,max=100"`
	Username *string `json:"username" form:"username" binding:"omitempty,max=50"`
	Phone    *string `json:"phone" form:"phone" binding:"omitempty,max=30"`
}

// ProfileResponse is returned for the authenticated user.
type ProfileResponse struct {
	User    *entity.User    `json:"user"`
	Profile *entity.Profile `json:"profile"`
}

// PublicProfileResponse is what other users see.
type PublicProfileResponse struct {
	UserID       uuid.UUID `json:"user_id"`
	FullName     string    `json:"full_name"`
	Username     *string   `json:"username,omitempty"`
	AvatarURL    *string   `json:"avatar_url,omitempty"`
	Rating       *float64  `json:"rating"`
	TotalRatings int       `json:"total_ratings"`
	CreatedAt    time.Time `json:"created_at"`
}
