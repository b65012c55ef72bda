package activity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/vargamihaly/bottlebuddy/internal/entity"
	"github.com/vargamihaly/bottlebuddy/internal/events"
	activityRepo "github.com/vargamihaly/bottlebuddy/internal/modules/activity/repository"
	"github.com/vargamihaly/bottlebuddy/pkg/apperror"
	commonDto "github.com/vargamihaly/bottlebuddy/pkg/dto"
)

// Recorder is the durable activity sink used by lifecycle services. Record
// joins the transaction carried by ctx.
type Recorder interface {
	Record(ctx context.Context, activities ...*entity.UserActivity) error
}

type Service interface {
	Recorder
	List(ctx context.Context, userID uuid.UUID, unreadOnly bool, page commonDto.PageQuery) (*commonDto.Paginated[entity.UserActivity], error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
	MarkAsRead(ctx context.Context, userID, id uuid.UUID) error
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

type service struct {
	repo activityRepo.Repository
}

func NewService(repo activityRepo.Repository) Service {
	return &service{repo: repo}
}

func (s *service) Record(ctx context.Context, activities ...*entity.UserActivity) error {
	if err := s.repo.Create(ctx, activities...); err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	return nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, page commonDto.PageQuery) (*commonDto.Paginated[entity.UserActivity], error) {
	page = page.Normalize()
	items, total, err := s.repo.FindByUserID(ctx, userID, unreadOnly, page.Offset(), page.Limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []entity.UserActivity{}
	}
	return &commonDto.Paginated[entity.UserActivity]{
		Data: items,
		Meta: commonDto.NewPaginationMeta(page, total),
	}, nil
}

func (s *service) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}

// MarkAsRead only touches activities owned by userID. Another user's activity
// is reported as forbidden, an unknown id as not found.
func (s *service) MarkAsRead(ctx context.Context, userID, id uuid.UUID) error {
	affected, err := s.repo.MarkAsRead(ctx, userID, id)
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	exists, err := s.repo.Exists(ctx, id)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("activity belongs to another user: %w", apperror.ErrForbidden)
	}
	return fmt.Errorf("activity: %w", apperror.ErrNotFound)
}

func (s *service) MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.MarkAllAsRead(ctx, userID)
}

// Events wraps recorded activities for post-commit delivery.
func Events(activities []*entity.UserActivity) []events.Event {
	out := make([]events.Event, 0, len(activities))
	for _, a := range activities {
		out = append(out, events.ActivityEvent(a))
	}
	return out
}
