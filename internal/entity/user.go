package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string    `gorm:"size:100;uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	Profile      *Profile  `gorm:"constraint:OnDelete:CASCADE" json:"profile,omitempty"`
}

func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == uuid.Nil {
		u.ID, err = uuid.NewV7()
	}
	return
}

// Profile carries the public identity and the rating aggregate of a user.
// Rating is nil exactly when TotalRatings is zero.
type Profile struct {
	UserID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	FullName     string    `gorm:"size:100;not null" json:"full_name"`
	Username     *string   `gorm:"size:50;uniqueIndex" json:"username,omitempty"`
	Phone        *string   `gorm:"size:30" json:"phone,omitempty"`
	AvatarURL    *string   `gorm:"type:text" json:"avatar_url,omitempty"`
	Rating       *float64  `json:"rating"`
	TotalRatings int       `gorm:"not null;default:0;check:chk_profiles_total_ratings,total_ratings >= 0" json:"total_ratings"`
	RatingSum    int       `gorm:"not null;default:0" json:"-"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
