package profile

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	profileDto "github.com/vargamihaly/bottlebuddy/internal/modules/profile/dto"
	userRepo "github.com/vargamihaly/bottlebuddy/internal/modules/user/repository"
	"github.com/vargamihaly/bottlebuddy/pkg/apperror"
	"github.com/vargamihaly/bottlebuddy/pkg/storage"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9_.]{3,50}$`)

type ProfileService interface {
	UpdateProfile(ctx context.Context, userID uuid.UUID, input profileDto.UpdateProfileInput, avatar *storage.Upload) (*profileDto.ProfileResponse, error)
	GetProfileByUsername(ctx context.Context, username string) (*profileDto.PublicProfileResponse, error)
	GetCurrentProfile(ctx context.Context, userID uuid.UUID) (*profileDto.ProfileResponse, error)
}

type profileService struct {
	repo         userRepo.Repository
	imageStorage storage.ImageStorage
	folder       string
}

func NewProfileService(repo userRepo.Repository, imageStorage storage.ImageStorage, uploadFolder string) ProfileService {
	return &profileService{
		repo:         repo,
		imageStorage: imageStorage,
		folder:       strings.Trim(uploadFolder+"/avatars", "/"),
	}
}

func (s *profileService) UpdateProfile(ctx context.Context, userID uuid.UUID, input profileDto.UpdateProfileInput, avatar *storage.Upload) (*profileDto.ProfileResponse, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user: %w", err)
	}
	if user.Profile == nil {
		return nil, fmt.Errorf("profile: %w", apperror.ErrNotFound)
	}
	profile := user.Profile

	if input.FullName != nil {
		name := strings.TrimSpace(*input.FullName)
		if name == "" {
			return nil, apperror.Validation("full_name cannot be empty")
		}
		profile.FullName = name
	}

	if input.Username != nil {
		username := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(*input.Username), " ", "_"))
		switch {
		case username == "":
			profile.Username = nil
		case !usernamePattern.MatchString(username):
			return nil, apperror.Validation("username must be 3-50 characters of letters, digits, '_' or '.'")
		case profile.Username == nil || *profile.Username != username:
			if _, err := s.repo.FindByUsername(ctx, username); err == nil {
				return nil, fmt.Errorf("username already taken: %w", apperror.ErrConflict)
			} else if !errors.Is(err, apperror.ErrNotFound) {
				return nil, err
			}
			profile.Username = &username
		}
	}

	if input.Phone != nil {
		profile.Phone = normalizeOptional(input.Phone)
	}

	var oldAvatar *string
	if avatar != nil && avatar.Reader != nil {
		if s.imageStorage == nil {
			return nil, apperror.Validation("image uploads are not configured")
		}
		if err := storage.ValidateImage(avatar); err != nil {
			return nil, err
		}
		url, err := s.imageStorage.UploadImage(ctx, avatar.Reader, s.folder, avatar.FileName)
		if err != nil {
			return nil, fmt.Errorf("upload avatar: %w", err)
		}
		oldAvatar = profile.AvatarURL
		profile.AvatarURL = &url
	}

	if err := s.repo.UpdateProfile(ctx, profile); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, fmt.Errorf("username already taken: %w", apperror.ErrConflict)
		}
		return nil, err
	}

	if oldAvatar != nil && *oldAvatar != "" {
		if err := s.imageStorage.DeleteImage(ctx, *oldAvatar); err != nil {
			log.Warn().Err(err).Str("user_id", userID.String()).Msg("Failed to delete old avatar")
		}
	}

	return s.GetCurrentProfile(ctx, userID)
}

func (s *profileService) GetProfileByUsername(ctx context.Context, username string) (*profileDto.PublicProfileResponse, error) {
	user, err := s.repo.FindByUsername(ctx, strings.ToLower(strings.TrimSpace(username)))
	if err != nil {
		return nil, fmt.Errorf("user: %w", err)
	}
	if user.Profile == nil {
		return nil, fmt.Errorf("profile: %w", apperror.ErrNotFound)
	}

	return &profileDto.PublicProfileResponse{
		UserID:       user.ID,
		FullName:     user.Profile.FullName,
		Username:     user.Profile.Username,
		AvatarURL:    user.Profile.AvatarURL,
		Rating:       user.Profile.Rating,
		TotalRatings: user.Profile.TotalRatings,
		CreatedAt:    user.CreatedAt,
	}, nil
}

func (s *profileService) GetCurrentProfile(ctx context.Context, userID uuid.UUID) (*profileDto.ProfileResponse, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user: %w", err)
	}

	user.PasswordHash = ""

	return &profileDto.ProfileResponse{
		User:    user,
		Profile: user.Profile,
	}, nil
}

func normalizeOptional(value *string) *string {
	if value == nil {
		return nil
	}

	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}

	result := trimmed
	return &result
}
