package pickup

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog/log"
	"github.com/vargamihaly/bottlebuddy/internal/entity"
	"github.com/vargamihaly/bottlebuddy/internal/events"
	"github.com/vargamihaly/bottlebuddy/internal/lifecycle"
	activity "github.com/vargamihaly/bottlebuddy/internal/modules/activity/service"
	listingRepo "github.com/vargamihaly/bottlebuddy/internal/modules/listing/repository"
	listing "github.com/vargamihaly/bottlebuddy/internal/modules/listing/service"
	pickupDto "github.com/vargamihaly/bottlebuddy/internal/modules/pickup/dto"
	pickupRepo "github.com/vargamihaly/bottlebuddy/internal/modules/pickup/repository"
	transaction "github.com/vargamihaly/bottlebuddy/internal/modules/transaction/service"
	"github.com/vargamihaly/bottlebuddy/pkg/apperror"
	"github.com/vargamihaly/bottlebuddy/pkg/database"
	commonDto "github.com/vargamihaly/bottlebuddy/pkg/dto"
	"github.com/vargamihaly/bottlebuddy/pkg/ratelimiter"
	"github.com/vargamihaly/bottlebuddy/pkg/validator"
)

const rateLimitAction = "pickup_request"

type Service interface {
	CreatePickupRequest(ctx context.Context, volunteerID, listingID uuid.UUID, req pickupDto.CreatePickupRequest) (*entity.PickupRequest, error)
	AcceptRequest(ctx context.Context, ownerID, id uuid.UUID) (*entity.PickupRequest, error)
	RejectRequest(ctx context.Context, ownerID, id uuid.UUID) (*entity.PickupRequest, error)
	CancelRequest(ctx context.Context, volunteerID, id uuid.UUID) (*entity.PickupRequest, error)
	CompleteRequest(ctx context.Context, ownerID, id uuid.UUID) (*pickupDto.CompletePickupResponse, error)
	GetRequest(ctx context.Context, userID, id uuid.UUID) (*entity.PickupRequest, error)
	ListByListing(ctx context.Context, ownerID, listingID uuid.UUID, status entity.PickupRequestStatus, page commonDto.PageQuery) (*pickupDto.PickupRequestPage, error)
	ListMine(ctx context.Context, volunteerID uuid.UUID, status entity.PickupRequestStatus, page commonDto.PageQuery) (*pickupDto.PickupRequestPage, error)
	// Participants returns the request with its listing when userID is the
	// listing owner or the volunteer.
	Participants(ctx context.Context, userID, id uuid.UUID) (*entity.PickupRequest, *entity.BottleListing, error)
}

type Config struct {
	RateLimitWindow time.Duration
}

type service struct {
	repo         pickupRepo.Repository
	listingRepo  listingRepo.Repository
	listings     listing.Lifecycle
	transactions transaction.Service
	activities   activity.Recorder
	tx           database.Transactor
	publisher    events.Publisher
	limiter      ratelimiter.Limiter
	sanitizer    *bluemonday.Policy
	cfg          Config
}

func NewService(
	repo pickupRepo.Repository,
	listingRepo listingRepo.Repository,
	listings listing.Lifecycle,
	transactions transaction.Service,
	activities activity.Recorder,
	tx database.Transactor,
	publisher events.Publisher,
	limiter ratelimiter.Limiter,
	cfg Config,
) Service {
	return &service{
		repo:         repo,
		listingRepo:  listingRepo,
		listings:     listings,
		transactions: transactions,
		activities:   activities,
		tx:           tx,
		publisher:    publisher,
		limiter:      limiter,
		sanitizer:    bluemonday.StrictPolicy(),
		cfg:          cfg,
	}
}

func (s *service) CreatePickupRequest(ctx context.Context, volunteerID, listingID uuid.UUID, req pickupDto.CreatePickupRequest) (*entity.PickupRequest, error) {
	req.Message = strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(req.Message)))
	if err := validator.Struct(req); err != nil {
		return nil, err
	}
	if req.PickupTime != nil && req.PickupTime.Before(time.Now()) {
		return nil, apperror.Validation("pickup_time must be in the future")
	}
	if err := s.limiter.Allow(ctx, volunteerID, rateLimitAction, s.cfg.RateLimitWindow); err != nil {
		return nil, err
	}

	request := &entity.PickupRequest{
		ListingID:   listingID,
		VolunteerID: volunteerID,
		Message:     req.Message,
		PickupTime:  req.PickupTime,
		Status:      entity.PickupRequestStatusPending,
	}
	if request.PickupTime != nil {
		t := request.PickupTime.UTC()
		request.PickupTime = &t
	}

	var (
		l        *entity.BottleListing
		recorded []*entity.UserActivity
	)
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		l, err = s.listings.LockListing(ctx, listingID)
		if err != nil {
			return err
		}
		if l.OwnerID == volunteerID {
			return fmt.Errorf("cannot request a pickup of your own listing: %w", apperror.ErrForbidden)
		}
		if l.Status != entity.ListingStatusOpen {
			return fmt.Errorf("listing is %s: %w", l.Status, apperror.ErrInvalidTransition)
		}

		active, err := s.repo.HasActive(ctx, listingID, volunteerID)
		if err != nil {
			return err
		}
		if active {
			return fmt.Errorf("an active pickup request for this listing already exists: %w", apperror.ErrConflict)
		}

		if err := s.repo.Create(ctx, request); err != nil {
			return fmt.Errorf("create pickup request: %w", err)
		}

		recorded = []*entity.UserActivity{
			activity.PickupRequestSent(l, request),
			activity.PickupRequestReceived(l, request),
		}
		return s.activities.Record(ctx, recorded...)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(activity.Events(recorded)...)
	log.Info().
		Str("request_id", request.ID.String()).
		Str("listing_id", listingID.String()).
		Str("volunteer_id", volunteerID.String()).
		Msg("Pickup request created")
	return request, nil
}

// transitionFunc runs with the listing and the request locked. It returns the
// activities to record.
type transitionFunc func(ctx context.Context, l *entity.BottleListing, r *entity.PickupRequest) ([]*entity.UserActivity, error)

// transition locks the listing before the request so every operation touching
// one listing acquires locks in the same order.
func (s *service) transition(ctx context.Context, id uuid.UUID, fn transitionFunc) (*entity.PickupRequest, *entity.BottleListing, error) {
	var (
		l        *entity.BottleListing
		r        *entity.PickupRequest
		recorded []*entity.UserActivity
	)
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		current, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return fmt.Errorf("pickup request: %w", err)
		}
		l, err = s.listings.LockListing(ctx, current.ListingID)
		if err != nil {
			return err
		}
		r, err = s.repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("pickup request: %w", err)
		}

		recorded, err = fn(ctx, l, r)
		if err != nil {
			return err
		}
		return s.activities.Record(ctx, recorded...)
	})
	if err != nil {
		return nil, nil, err
	}

	s.publisher.Publish(append(activity.Events(recorded), events.ListingEvent(l))...)
	return r, l, nil
}

func (s *service) setStatus(ctx context.Context, r *entity.PickupRequest, to entity.PickupRequestStatus) error {
	if err := lifecycle.PickupRequests.Validate(r.Status, to); err != nil {
		return err
	}
	if err := s.repo.UpdateStatus(ctx, r.ID, r.Status, to); err != nil {
		return err
	}
	r.Status = to
	return nil
}

func requireOwner(l *entity.BottleListing, userID uuid.UUID, action string) error {
	if l.OwnerID != userID {
		return fmt.Errorf("only the listing owner can %s a pickup request: %w", action, apperror.ErrForbidden)
	}
	return nil
}

func (s *service) AcceptRequest(ctx context.Context, ownerID, id uuid.UUID) (*entity.PickupRequest, error) {
	r, _, err := s.transition(ctx, id, func(ctx context.Context, l *entity.BottleListing, r *entity.PickupRequest) ([]*entity.UserActivity, error) {
		if err := requireOwner(l, ownerID, "accept"); err != nil {
			return nil, err
		}
		if l.Status != entity.ListingStatusOpen {
			return nil, fmt.Errorf("listing is %s: %w", l.Status, apperror.ErrInvalidTransition)
		}
		if err := s.setStatus(ctx, r, entity.PickupRequestStatusAccepted); err != nil {
			return nil, err
		}
		if err := s.listings.Claim(ctx, l); err != nil {
			return nil, err
		}

		rejected, err := s.repo.ResolvePending(ctx, l.ID, r.ID)
		if err != nil {
			return nil, fmt.Errorf("reject competing requests: %w", err)
		}

		recorded := []*entity.UserActivity{
			activity.PickupRequestAccepted(l, r),
			activity.PickupRequestAcceptedByOwner(l, r),
		}
		for i := range rejected {
			recorded = append(recorded, activity.PickupRequestRejected(l, &rejected[i]))
		}
		return recorded, nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("request_id", id.String()).Msg("Pickup request accepted")
	return r, nil
}

func (s *service) RejectRequest(ctx context.Context, ownerID, id uuid.UUID) (*entity.PickupRequest, error) {
	r, _, err := s.transition(ctx, id, func(ctx context.Context, l *entity.BottleListing, r *entity.PickupRequest) ([]*entity.UserActivity, error) {
		if err := requireOwner(l, ownerID, "reject"); err != nil {
			return nil, err
		}
		// Accepted requests are released by cancelling the listing instead.
		if r.Status != entity.PickupRequestStatusPending {
			return nil, fmt.Errorf("pickup request is %s, only pending requests can be rejected: %w", r.Status, apperror.ErrInvalidTransition)
		}
		if err := s.setStatus(ctx, r, entity.PickupRequestStatusRejected); err != nil {
			return nil, err
		}
		return []*entity.UserActivity{activity.PickupRequestRejected(l, r)}, nil
	})
	return r, err
}

func (s *service) CancelRequest(ctx context.Context, volunteerID, id uuid.UUID) (*entity.PickupRequest, error) {
	r, _, err := s.transition(ctx, id, func(ctx context.Context, l *entity.BottleListing, r *entity.PickupRequest) ([]*entity.UserActivity, error) {
		if r.VolunteerID != volunteerID {
			return nil, fmt.Errorf("only the volunteer can cancel a pickup request: %w", apperror.ErrForbidden)
		}

		wasAccepted := r.Status == entity.PickupRequestStatusAccepted
		if err := s.setStatus(ctx, r, entity.PickupRequestStatusCancelled); err != nil {
			return nil, err
		}
		if wasAccepted && l.Status == entity.ListingStatusClaimed {
			if err := s.listings.Reopen(ctx, l); err != nil {
				return nil, err
			}
		}

		return []*entity.UserActivity{
			activity.PickupRequestCancelled(l, r, l.OwnerID),
			activity.PickupRequestCancelled(l, r, r.VolunteerID),
		}, nil
	})
	return r, err
}

func (s *service) CompleteRequest(ctx context.Context, ownerID, id uuid.UUID) (*pickupDto.CompletePickupResponse, error) {
	var t *entity.Transaction
	r, _, err := s.transition(ctx, id, func(ctx context.Context, l *entity.BottleListing, r *entity.PickupRequest) ([]*entity.UserActivity, error) {
		if err := requireOwner(l, ownerID, "complete"); err != nil {
			return nil, err
		}
		if err := s.setStatus(ctx, r, entity.PickupRequestStatusCompleted); err != nil {
			return nil, err
		}
		if err := s.listings.Complete(ctx, l); err != nil {
			return nil, err
		}

		var (
			split lifecycle.Split
			err   error
		)
		t, split, err = s.transactions.Settle(ctx, l, r)
		if err != nil {
			return nil, err
		}

		return []*entity.UserActivity{
			activity.PickupCompleted(l, r, l.OwnerID),
			activity.PickupCompleted(l, r, r.VolunteerID),
			activity.TransactionCompleted(l, t, l.OwnerID, split.Owner.StringFixed(2)),
			activity.TransactionCompleted(l, t, r.VolunteerID, split.Volunteer.StringFixed(2)),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("request_id", id.String()).
		Str("transaction_id", t.ID.String()).
		Str("total_refund", t.TotalRefund.StringFixed(2)).
		Msg("Pickup completed")
	return &pickupDto.CompletePickupResponse{Request: r, Transaction: t}, nil
}

func (s *service) Participants(ctx context.Context, userID, id uuid.UUID) (*entity.PickupRequest, *entity.BottleListing, error) {
	r, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("pickup request: %w", err)
	}
	l, err := s.listingRepo.FindByID(ctx, r.ListingID)
	if err != nil {
		return nil, nil, fmt.Errorf("listing: %w", err)
	}
	if userID != l.OwnerID && userID != r.VolunteerID {
		return nil, nil, fmt.Errorf("not a party of this pickup request: %w", apperror.ErrForbidden)
	}
	return r, l, nil
}

func (s *service) GetRequest(ctx context.Context, userID, id uuid.UUID) (*entity.PickupRequest, error) {
	r, l, err := s.Participants(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	r.Listing = l
	return r, nil
}

func (s *service) ListByListing(ctx context.Context, ownerID, listingID uuid.UUID, status entity.PickupRequestStatus, page commonDto.PageQuery) (*pickupDto.PickupRequestPage, error) {
	l, err := s.listingRepo.FindByID(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("listing: %w", err)
	}
	if l.OwnerID != ownerID {
		return nil, fmt.Errorf("only the listing owner can see its requests: %w", apperror.ErrForbidden)
	}
	if status != "" && !status.Valid() {
		return nil, apperror.Validation(fmt.Sprintf("unknown pickup request status %q", status))
	}

	page = page.Normalize()
	items, total, err := s.repo.FindByListing(ctx, listingID, status, page.Offset(), page.Limit)
	if err != nil {
		return nil, err
	}
	return toPage(items, page, total), nil
}

func (s *service) ListMine(ctx context.Context, volunteerID uuid.UUID, status entity.PickupRequestStatus, page commonDto.PageQuery) (*pickupDto.PickupRequestPage, error) {
	if status != "" && !status.Valid() {
		return nil, apperror.Validation(fmt.Sprintf("unknown pickup request status %q", status))
	}

	page = page.Normalize()
	items, total, err := s.repo.FindByVolunteer(ctx, volunteerID, status, page.Offset(), page.Limit)
	if err != nil {
		return nil, err
	}
	return toPage(items, page, total), nil
}

func toPage(items []entity.PickupRequest, page commonDto.PageQuery, total int64) *pickupDto.PickupRequestPage {
	if items == nil {
		items = []entity.PickupRequest{}
	}
	return &pickupDto.PickupRequestPage{
		Data: items,
		Meta: commonDto.NewPaginationMeta(page, total),
	}
}
