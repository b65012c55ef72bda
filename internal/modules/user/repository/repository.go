package user

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/vargamihaly/bottlebuddy/internal/entity"
	"github.com/vargamihaly/bottlebuddy/pkg/apperror"
	"github.com/vargamihaly/bottlebuddy/pkg/database"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, user *entity.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error)
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
	FindByUsername(ctx context.Context, username string) (*entity.User, error)
	UpdateProfile(ctx context.Context, profile *entity.Profile) error

	// FindProfileForUpdate locks the profile row for the rating aggregate.
	FindProfileForUpdate(ctx context.Context, userID uuid.UUID) (*entity.Profile, error)
	// UpdateRating writes a new aggregate only if total_ratings still equals
	// prevCount. It reports whether the row was updated.
	UpdateRating(ctx context.Context, userID uuid.UUID, prevCount, sum, count int, rating *float64) (bool, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// Create inserts the user and its profile.
func (r *repository) Create(ctx context.Context, user *entity.User) error {
	return apperror.FromDB(database.Conn(ctx, r.db).Create(user).Error)
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	var user entity.User
	if err := database.Conn(ctx, r.db).Preload("Profile").Where("id = ?", id).First(&user).Error; err != nil {
		return nil, apperror.FromDB(err)
	}
	return &user, nil
}

func (r *repository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	var user entity.User
	if err := database.Conn(ctx, r.db).
		Preload("Profile").
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error; err != nil {
		return nil, apperror.FromDB(err)
	}
	return &user, nil
}

func (r *repository) FindByUsername(ctx context.Context, username string) (*entity.User, error) {
	var profile entity.Profile
	if err := database.Conn(ctx, r.db).Where("username = ?", username).First(&profile).Error; err != nil {
		return nil, apperror.FromDB(err)
	}
	return r.FindByID(ctx, profile.UserID)
}

func (r *repository) UpdateProfile(ctx context.Context, profile *entity.Profile) error {
	res := database.Conn(ctx, r.db).Model(&entity.Profile{}).
		Where("user_id = ?", profile.UserID).
		Updates(map[string]any{
			"full_name":  profile.FullName,
			"username":   profile.Username,
			"phone":      profile.Phone,
			"avatar_url": profile.AvatarURL,
		})
	if res.Error != nil {
		return apperror.FromDB(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("profile: %w", apperror.ErrNotFound)
	}
	return nil
}

func (r *repository) FindProfileForUpdate(ctx context.Context, userID uuid.UUID) (*entity.Profile, error) {
	var profile entity.Profile
	if err := database.ForUpdate(database.Conn(ctx, r.db)).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		return nil, apperror.FromDB(err)
	}
	return &profile, nil
}

func (r *repository) UpdateRating(ctx context.Context, userID uuid.UUID, prevCount, sum, count int, rating *float64) (bool, error) {
	res := database.Conn(ctx, r.db).Model(&entity.Profile{}).
		Where("user_id = ? AND total_ratings = ?", userID, prevCount).
		Updates(map[string]any{
			"rating":        rating,
			"rating_sum":    sum,
			"total_ratings": count,
		})
	if res.Error != nil {
		return false, apperror.FromDB(res.Error)
	}
	return res.RowsAffected == 1, nil
}
