package rating

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog/log"
	"github.com/vargamihaly/bottlebuddy/internal/entity"
	"github.com/vargamihaly/bottlebuddy/internal/events"
	"github.com/vargamihaly/bottlebuddy/internal/lifecycle"
	activity "github.com/vargamihaly/bottlebuddy/internal/modules/activity/service"
	ratingDto "github.com/vargamihaly/bottlebuddy/internal/modules/rating/dto"
	ratingRepo "github.com/vargamihaly/bottlebuddy/internal/modules/rating/repository"
	transactionRepo "github.com/vargamihaly/bottlebuddy/internal/modules/transaction/repository"
	transaction "github.com/vargamihaly/bottlebuddy/internal/modules/transaction/service"
	userRepo "github.com/vargamihaly/bottlebuddy/internal/modules/user/repository"
	"github.com/vargamihaly/bottlebuddy/pkg/apperror"
	"github.com/vargamihaly/bottlebuddy/pkg/database"
	commonDto "github.com/vargamihaly/bottlebuddy/pkg/dto"
	"github.com/vargamihaly/bottlebuddy/pkg/validator"
)

const DefaultUpdateRetries = 3

type Service interface {
	CreateRating(ctx context.Context, raterID, transactionID uuid.UUID, req ratingDto.CreateRatingRequest) (*entity.Rating, error)
	ListRatingsForUser(ctx context.Context, userID uuid.UUID, page commonDto.PageQuery) (*ratingDto.RatingPage, error)
}

type service struct {
	repo         ratingRepo.Repository
	transactions transactionRepo.Repository
	users        userRepo.Repository
	activities   activity.Recorder
	tx           database.Transactor
	publisher    events.Publisher
	sanitizer    *bluemonday.Policy
	retries      int
}

func NewService(
	repo ratingRepo.Repository,
	transactions transactionRepo.Repository,
	users userRepo.Repository,
	activities activity.Recorder,
	tx database.Transactor,
	publisher events.Publisher,
	retries int,
) Service {
	if retries <= 0 {
		retries = DefaultUpdateRetries
	}
	return &service{
		repo:         repo,
		transactions: transactions,
		users:        users,
		activities:   activities,
		tx:           tx,
		publisher:    publisher,
		sanitizer:    bluemonday.StrictPolicy(),
		retries:      retries,
	}
}

func (s *service) CreateRating(ctx context.Context, raterID, transactionID uuid.UUID, req ratingDto.CreateRatingRequest) (*entity.Rating, error) {
	req.Comment = strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(req.Comment)))
	if err := validator.Struct(req); err != nil {
		return nil, err
	}

	var (
		rating   *entity.Rating
		recorded []*entity.UserActivity
	)
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		t, err := s.transactions.FindByID(ctx, transactionID)
		if err != nil {
			return fmt.Errorf("transaction: %w", err)
		}

		owner, volunteer := transaction.Parties(t)
		var ratedID uuid.UUID
		switch raterID {
		case owner:
			ratedID = volunteer
		case volunteer:
			ratedID = owner
		default:
			return fmt.Errorf("only the parties of a transaction can rate it: %w", apperror.ErrForbidden)
		}
		if t.Status != entity.TransactionStatusCompleted {
			return fmt.Errorf("transaction is %s: %w", t.Status, apperror.ErrInvalidTransition)
		}

		exists, err := s.repo.Exists(ctx, transactionID, raterID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("you already rated this transaction: %w", apperror.ErrConflict)
		}

		rating = &entity.Rating{
			RaterID:       raterID,
			RatedUserID:   ratedID,
			TransactionID: transactionID,
			Value:         req.Value,
			Comment:       req.Comment,
		}
		if err := s.repo.Create(ctx, rating); err != nil {
			return fmt.Errorf("create rating: %w", err)
		}

		if err := s.applyToProfile(ctx, ratedID, req.Value); err != nil {
			return err
		}

		recorded = []*entity.UserActivity{activity.RatingReceived(rating), activity.RatingGiven(rating)}
		return s.activities.Record(ctx, recorded...)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(activity.Events(recorded)...)
	log.Info().
		Str("rating_id", rating.ID.String()).
		Str("rated_user_id", rating.RatedUserID.String()).
		Int("value", rating.Value).
		Msg("Rating created")
	return rating, nil
}

// applyToProfile folds value into the rated user's aggregate. The row is
// locked first; the write is still conditional on the count that was read and
// is retried when another writer got there first.
func (s *service) applyToProfile(ctx context.Context, userID uuid.UUID, value int) error {
	for attempt := 1; attempt <= s.retries; attempt++ {
		profile, err := s.users.FindProfileForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("rated profile: %w", err)
		}

		next, err := lifecycle.Aggregate{Sum: profile.RatingSum, Count: profile.TotalRatings}.Add(value)
		if err != nil {
			return err
		}

		ok, err := s.users.UpdateRating(ctx, userID, profile.TotalRatings, next.Sum, next.Count, next.Mean())
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		log.Warn().Str("user_id", userID.String()).Int("attempt", attempt).Msg("Rating aggregate changed concurrently, retrying")
	}
	return fmt.Errorf("rating aggregate kept changing: %w", apperror.ErrConflict)
}

func (s *service) ListRatingsForUser(ctx context.Context, userID uuid.UUID, page commonDto.PageQuery) (*ratingDto.RatingPage, error) {
	page = page.Normalize()
	items, total, err := s.repo.FindByRatedUser(ctx, userID, page.Offset(), page.Limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []entity.Rating{}
	}
	return &ratingDto.RatingPage{
		Data: items,
		Meta: commonDto.NewPaginationMeta(page, total),
	}, nil
}
