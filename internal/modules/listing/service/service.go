package listing

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vargamihaly/bottlebuddy/internal/entity"
	"github.com/vargamihaly/bottlebuddy/internal/events"
	"github.com/vargamihaly/bottlebuddy/internal/lifecycle"
	activity "github.com/vargamihaly/bottlebuddy/internal/modules/activity/service"
	listingDto "github.com/vargamihaly/bottlebuddy/internal/modules/listing/dto"
	listingRepo "github.com/vargamihaly/bottlebuddy/internal/modules/listing/repository"
	pickupRepo "github.com/vargamihaly/bottlebuddy/internal/modules/pickup/repository"
	search "github.com/vargamihaly/bottlebuddy/internal/modules/search/service"
	"github.com/vargamihaly/bottlebuddy/pkg/apperror"
	"github.com/vargamihaly/bottlebuddy/pkg/database"
	commonDto "github.com/vargamihaly/bottlebuddy/pkg/dto"
	"github.com/vargamihaly/bottlebuddy/pkg/validator"
)

type Service interface {
	Lifecycle
	CreateListing(ctx context.Context, ownerID uuid.UUID, req listingDto.CreateListingRequest) (*entity.BottleListing, error)
	GetListing(ctx context.Context, id uuid.UUID) (*entity.BottleListing, error)
	ListListings(ctx context.Context, filter listingRepo.Filter, page commonDto.PageQuery) (*listingDto.ListingPage, error)
	ListMyListings(ctx context.Context, ownerID uuid.UUID, status entity.ListingStatus, page commonDto.PageQuery) (*listingDto.ListingPage, error)
	SearchListings(ctx context.Context, query string, page commonDto.PageQuery) (*listingDto.ListingPage, error)
	UpdateListing(ctx context.Context, ownerID, id uuid.UUID, req listingDto.UpdateListingRequest) (*entity.BottleListing, error)
	DeleteListing(ctx context.Context, ownerID, id uuid.UUID) error
	CancelListing(ctx context.Context, ownerID, id uuid.UUID) (*entity.BottleListing, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int, error)
}

// Lifecycle holds the listing transitions driven by pickup requests. Callers
// must hold the listing row lock inside the current transaction.
type Lifecycle interface {
	LockListing(ctx context.Context, id uuid.UUID) (*entity.BottleListing, error)
	Claim(ctx context.Context, listing *entity.BottleListing) error
	Complete(ctx context.Context, listing *entity.BottleListing) error
	Reopen(ctx context.Context, listing *entity.BottleListing) error
}

type service struct {
	repo       listingRepo.Repository
	pickupRepo pickupRepo.Repository
	activities activity.Recorder
	tx         database.Transactor
	publisher  events.Publisher
	search     search.Service
	sanitizer  *bluemonday.Policy
}

func NewService(
	repo listingRepo.Repository,
	pickupRepo pickupRepo.Repository,
	activities activity.Recorder,
	tx database.Transactor,
	publisher events.Publisher,
	searchService search.Service,
) Service {
	return &service{
		repo:       repo,
		pickupRepo: pickupRepo,
		activities: activities,
		tx:         tx,
		publisher:  publisher,
		search:     searchService,
		sanitizer:  bluemonday.StrictPolicy(),
	}
}

func (s *service) clean(v string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(v)))
}

func validateRefund(refund decimal.Decimal) error {
	if refund.IsNegative() || refund.GreaterThan(lifecycle.MaxRefund) {
		return apperror.Validation("estimated_refund must be between 0 and 1000000")
	}
	if !refund.Equal(refund.Round(2)) {
		return apperror.Validation("estimated_refund must have at most 2 decimal places")
	}
	return nil
}

func validateDeadline(deadline *time.Time) error {
	if deadline != nil && deadline.Before(time.Now()) {
		return apperror.Validation("pickup_deadline must be in the future")
	}
	return nil
}

func (s *service) CreateListing(ctx context.Context, ownerID uuid.UUID, req listingDto.CreateListingRequest) (*entity.BottleListing, error) {
	req.Title = s.clean(req.Title)
	req.Description = s.clean(req.Description)
	req.LocationAddress = s.clean(req.LocationAddress)

	if err := validator.Struct(req); err != nil {
		return nil, err
	}
	if err := validateRefund(req.EstimatedRefund); err != nil {
		return nil, err
	}
	if err := validateDeadline(req.PickupDeadline); err != nil {
		return nil, err
	}

	split := lifecycle.DefaultSplitPercentage
	if req.SplitPercentage != nil {
		split = *req.SplitPercentage
	}

	listing := &entity.BottleListing{
		OwnerID:         ownerID,
		Title:           req.Title,
		Description:     req.Description,
		BottleCount:     req.BottleCount,
		LocationAddress: req.LocationAddress,
		Latitude:        req.Latitude,
		Longitude:       req.Longitude,
		EstimatedRefund: req.EstimatedRefund,
		SplitPercentage: split,
		PickupDeadline:  utc(req.PickupDeadline),
		Status:          entity.ListingStatusOpen,
	}

	var recorded []*entity.UserActivity
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, listing); err != nil {
			return fmt.Errorf("create listing: %w", err)
		}
		recorded = []*entity.UserActivity{activity.ListingCreated(listing)}
		return s.activities.Record(ctx, recorded...)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(append(activity.Events(recorded), events.ListingEvent(listing))...)
	log.Info().Str("listing_id", listing.ID.String()).Str("owner_id", ownerID.String()).Msg("Listing created")
	return listing, nil
}

func (s *service) GetListing(ctx context.Context, id uuid.UUID) (*entity.BottleListing, error) {
	listing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("listing: %w", err)
	}
	return listing, nil
}

func (s *service) ListListings(ctx context.Context, filter listingRepo.Filter, page commonDto.PageQuery) (*listingDto.ListingPage, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperror.Validation(fmt.Sprintf("unknown listing status %q", filter.Status))
	}
	page = page.Normalize()
	items, total, err := s.repo.FindAll(ctx, filter, page.Offset(), page.Limit)
	if err != nil {
		return nil, err
	}
	return toPage(items, page, total), nil
}

func (s *service) ListMyListings(ctx context.Context, ownerID uuid.UUID, status entity.ListingStatus, page commonDto.PageQuery) (*listingDto.ListingPage, error) {
	return s.ListListings(ctx, listingRepo.Filter{OwnerID: ownerID, Status: status}, page)
}

// SearchListings asks the search index for open listings and loads them from
// the database. Without an index it falls back to a LIKE query.
func (s *service) SearchListings(ctx context.Context, query string, page commonDto.PageQuery) (*listingDto.ListingPage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperror.Validation("q is required")
	}
	page = page.Normalize()

	ids, total, err := s.search.SearchListings(ctx, query, page.Offset(), page.Limit)
	if err != nil {
		if !errors.Is(err, search.ErrDisabled) {
			log.Warn().Err(err).Msg("Search index unavailable, falling back to database")
		}
		items, total, err := s.repo.FindAll(ctx, listingRepo.Filter{Status: entity.ListingStatusOpen, Query: query}, page.Offset(), page.Limit)
		if err != nil {
			return nil, err
		}
		return toPage(items, page, total), nil
	}

	items, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return toPage(items, page, total), nil
}

func (s *service) UpdateListing(ctx context.Context, ownerID, id uuid.UUID, req listingDto.UpdateListingRequest) (*entity.BottleListing, error) {
	if req.Title != nil {
		*req.Title = s.clean(*req.Title)
	}
	if req.Description != nil {
		*req.Description = s.clean(*req.Description)
	}
	if req.LocationAddress != nil {
		*req.LocationAddress = s.clean(*req.LocationAddress)
	}
	if err := validator.Struct(req); err != nil {
		return nil, err
	}
	if req.EstimatedRefund != nil {
		if err := validateRefund(*req.EstimatedRefund); err != nil {
			return nil, err
		}
	}
	if err := validateDeadline(req.PickupDeadline); err != nil {
		return nil, err
	}

	var listing *entity.BottleListing
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		listing, err = s.repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("listing: %w", err)
		}
		if listing.OwnerID != ownerID {
			return fmt.Errorf("only the owner can edit a listing: %w", apperror.ErrForbidden)
		}
		if listing.Status != entity.ListingStatusOpen {
			return fmt.Errorf("listing is %s, only open listings can be edited: %w", listing.Status, apperror.ErrInvalidTransition)
		}

		applyUpdate(listing, req)
		return s.repo.Update(ctx, listing)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(events.ListingEvent(listing))
	return listing, nil
}

func applyUpdate(l *entity.BottleListing, req listingDto.UpdateListingRequest) {
	if req.Title != nil {
		l.Title = *req.Title
	}
	if req.Description != nil {
		l.Description = *req.Description
	}
	if req.BottleCount != nil {
		l.BottleCount = *req.BottleCount
	}
	if req.LocationAddress != nil {
		l.LocationAddress = *req.LocationAddress
	}
	if req.Latitude != nil {
		l.Latitude = req.Latitude
	}
	if req.Longitude != nil {
		l.Longitude = req.Longitude
	}
	if req.EstimatedRefund != nil {
		l.EstimatedRefund = *req.EstimatedRefund
	}
	if req.SplitPercentage != nil {
		l.SplitPercentage = *req.SplitPercentage
	}
	if req.PickupDeadline != nil {
		l.PickupDeadline = utc(req.PickupDeadline)
	}
}

// DeleteListing removes an open or cancelled listing together with its
// requests and messages. Claimed and completed listings are refused so that
// settled transactions and ratings survive.
func (s *service) DeleteListing(ctx context.Context, ownerID, id uuid.UUID) error {
	var listing *entity.BottleListing
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		listing, err = s.repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("listing: %w", err)
		}
		if listing.OwnerID != ownerID {
			return fmt.Errorf("only the owner can delete a listing: %w", apperror.ErrForbidden)
		}
		if listing.Status == entity.ListingStatusClaimed {
			return fmt.Errorf("a claimed listing cannot be deleted, cancel it first: %w", apperror.ErrInvalidTransition)
		}
		if listing.Status == entity.ListingStatusCompleted {
			return fmt.Errorf("a completed listing keeps its settlement history: %w", apperror.ErrInvalidTransition)
		}
		return s.repo.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.publisher.Publish(events.Event{Kind: events.KindListingDeleted, Listing: listing})
	log.Info().Str("listing_id", id.String()).Msg("Listing deleted")
	return nil
}

func (s *service) CancelListing(ctx context.Context, ownerID, id uuid.UUID) (*entity.BottleListing, error) {
	var (
		listing  *entity.BottleListing
		recorded []*entity.UserActivity
	)
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		listing, err = s.repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("listing: %w", err)
		}
		if listing.OwnerID != ownerID {
			return fmt.Errorf("only the owner can cancel a listing: %w", apperror.ErrForbidden)
		}
		recorded, err = s.cancel(ctx, listing)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(append(activity.Events(recorded), events.ListingEvent(listing))...)
	return listing, nil
}

// cancel closes the listing and resolves its open requests: pending ones are
// rejected, the accepted one is cancelled.
func (s *service) cancel(ctx context.Context, listing *entity.BottleListing) ([]*entity.UserActivity, error) {
	if err := s.transition(ctx, listing, entity.ListingStatusCancelled); err != nil {
		return nil, err
	}

	recorded := []*entity.UserActivity{activity.ListingCancelled(listing, listing.OwnerID)}

	rejected, err := s.pickupRepo.ResolvePending(ctx, listing.ID, uuid.Nil)
	if err != nil {
		return nil, fmt.Errorf("reject pending requests: %w", err)
	}
	for i := range rejected {
		recorded = append(recorded, activity.PickupRequestRejected(listing, &rejected[i]))
	}

	accepted, err := s.pickupRepo.FindByListingAndStatus(ctx, listing.ID, entity.PickupRequestStatusAccepted)
	if err != nil {
		return nil, err
	}
	for i := range accepted {
		req := &accepted[i]
		if err := s.pickupRepo.UpdateStatus(ctx, req.ID, entity.PickupRequestStatusAccepted, entity.PickupRequestStatusCancelled); err != nil {
			return nil, err
		}
		req.Status = entity.PickupRequestStatusCancelled
		a := activity.ListingCancelled(listing, req.VolunteerID)
		reqID := req.ID
		a.PickupRequestID = &reqID
		recorded = append(recorded, a)
	}

	if err := s.activities.Record(ctx, recorded...); err != nil {
		return nil, err
	}
	return recorded, nil
}

// ExpireOverdue cancels open listings whose pickup deadline has passed.
func (s *service) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.repo.FindOverdue(ctx, now.UTC(), 100)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		var (
			listing  *entity.BottleListing
			recorded []*entity.UserActivity
		)
		err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
			var err error
			listing, err = s.repo.FindByIDForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if listing.Status != entity.ListingStatusOpen {
				return nil
			}
			recorded, err = s.cancel(ctx, listing)
			return err
		})
		if err != nil {
			log.Error().Err(err).Str("listing_id", id.String()).Msg("Failed to expire listing")
			continue
		}
		if len(recorded) == 0 {
			continue
		}
		expired++
		s.publisher.Publish(append(activity.Events(recorded), events.ListingEvent(listing))...)
	}
	return expired, nil
}

func (s *service) LockListing(ctx context.Context, id uuid.UUID) (*entity.BottleListing, error) {
	listing, err := s.repo.FindByIDForUpdate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("listing: %w", err)
	}
	return listing, nil
}

func (s *service) Claim(ctx context.Context, listing *entity.BottleListing) error {
	return s.transition(ctx, listing, entity.ListingStatusClaimed)
}

func (s *service) Complete(ctx context.Context, listing *entity.BottleListing) error {
	return s.transition(ctx, listing, entity.ListingStatusCompleted)
}

func (s *service) Reopen(ctx context.Context, listing *entity.BottleListing) error {
	return s.transition(ctx, listing, entity.ListingStatusOpen)
}

func (s *service) transition(ctx context.Context, listing *entity.BottleListing, to entity.ListingStatus) error {
	if !database.InTransaction(ctx) {
		return fmt.Errorf("listing transition outside a transaction: %w", apperror.ErrInternal)
	}
	if err := lifecycle.Listings.Validate(listing.Status, to); err != nil {
		return err
	}
	if err := s.repo.UpdateStatus(ctx, listing.ID, listing.Status, to); err != nil {
		return err
	}
	listing.Status = to
	return nil
}

func toPage(items []entity.BottleListing, page commonDto.PageQuery, total int64) *listingDto.ListingPage {
	if items == nil {
		items = []entity.BottleListing{}
	}
	return &listingDto.ListingPage{
		Data: items,
		Meta: commonDto.NewPaginationMeta(page, total),
	}
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
