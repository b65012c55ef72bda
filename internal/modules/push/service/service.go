package push

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/vargamihaly/bottlebuddy/internal/entity"
	pushDto "github.com/vargamihaly/bottlebuddy/internal/modules/push/dto"
	pushRepo "github.com/vargamihaly/bottlebuddy/internal/modules/push/repository"
	"github.com/vargamihaly/bottlebuddy/pkg/apperror"
)

type Service interface {
	RegisterDeviceToken(ctx context.Context, userID uuid.UUID, req pushDto.RegisterDeviceTokenRequest) (*entity.DeviceToken, error)
	UnregisterDeviceToken(ctx context.Context, userID uuid.UUID, token string) error
}

type service struct {
	repo pushRepo.Repository
}

func NewService(repo pushRepo.Repository) Service {
	return &service{repo: repo}
}

func (s *service) RegisterDeviceToken(ctx context.Context, userID uuid.UUID, req pushDto.RegisterDeviceTokenRequest) (*entity.DeviceToken, error) {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return nil, apperror.Validation("token is required")
	}
	platform := req.Platform
	if platform == "" {
		platform = entity.PlatformIOS
	}

	dt := &entity.DeviceToken{UserID: userID, Token: token, Platform: platform}
	if err := s.repo.Upsert(ctx, dt); err != nil {
		return nil, fmt.Errorf("register device token: %w", err)
	}
	return dt, nil
}

func (s *service) UnregisterDeviceToken(ctx context.Context, userID uuid.UUID, token string) error {
	n, err := s.repo.Delete(ctx, userID, strings.TrimSpace(token))
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.ErrNotFound
	}
	return nil
}
