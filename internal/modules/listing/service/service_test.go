package listing_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vargamihaly/bottlebuddy/internal/entity"
	"github.com/vargamihaly/bottlebuddy/internal/events"
	activityRepo "github.com/vargamihaly/bottlebuddy/internal/modules/activity/repository"
	activity "github.com/vargamihaly/bottlebuddy/internal/modules/activity/service"
	listingDto "github.com/vargamihaly/bottlebuddy/internal/modules/listing/dto"
	listingRepo "github.com/vargamihaly/bottlebuddy/internal/modules/listing/repository"
	listing "github.com/vargamihaly/bottlebuddy/internal/modules/listing/service"
	pickupRepo "github.com/vargamihaly/bottlebuddy/internal/modules/pickup/repository"
	search "github.com/vargamihaly/bottlebuddy/internal/modules/search/service"
	"github.com/vargamihaly/bottlebuddy/internal/testutil"
	"github.com/vargamihaly/bottlebuddy/pkg/apperror"
	"github.com/vargamihaly/bottlebuddy/pkg/database"
	commonDto "github.com/vargamihaly/bottlebuddy/pkg/dto"
	"gorm.io/gorm"
)

type fixture struct {
	db        *gorm.DB
	svc       listing.Service
	published *testutil.Recorder
	tx        database.Transactor
}

func newFixture(t *testing.T) *fixture {
	db := testutil.NewDB(t)
	published := &testutil.Recorder{}
	tx := database.NewTransactor(db)
	svc := listing.NewService(
		listingRepo.NewRepository(db),
		pickupRepo.NewRepository(db),
		activity.NewService(activityRepo.NewRepository(db)),
		tx,
		published,
		search.NewMeiliSearchService("", ""),
	)
	return &fixture{db: db, svc: svc, published: published, tx: tx}
}

func validRequest() listingDto.CreateListingRequest {
	return listingDto.CreateListingRequest{
		Title:           "  <b>Beer</b> bottles ",
		BottleCount:     40,
		LocationAddress: "Kossuth tér 1",
		EstimatedRefund: decimal.RequireFromString("20.00"),
	}
}

func TestCreateListing(t *testing.T) {
	f := newFixture(t)
	owner := testutil.CreateUser(t, f.db, "owner")

	deadline := time.Now().Add(48 * time.Hour)
	req := validRequest()
	req.PickupDeadline = &deadline

	created, err := f.svc.CreateListing(context.Background(), owner.ID, req)
	require.NoError(t, err)

	assert.Equal(t, "Beer bottles", created.Title)
	assert.Equal(t, entity.ListingStatusOpen, created.Status)
	assert.Equal(t, 50, created.SplitPercentage)
	assert.Equal(t, time.UTC, created.PickupDeadline.Location())
	assert.Equal(t, []entity.ActivityType{entity.ActivityListingCreated}, f.published.ActivityTypes(owner.ID))

	evs := f.published.Events()
	require.NotEmpty(t, evs)
	assert.Equal(t, events.KindListingChanged, evs[len(evs)-1].Kind)

	zero := 0
	req = validRequest()
	req.SplitPercentage = &zero
	created, err = f.svc.CreateListing(context.Background(), owner.ID, req)
	require.NoError(t, err)
	assert.Equal(t, 0, created.SplitPercentage)
}

func TestCreateListingValidation(t *testing.T) {
	f := newFixture(t)
	owner := testutil.CreateUser(t, f.db, "owner")
	past := time.Now().Add(-time.Hour)
	tooHigh := 101

	cases := map[string]func(r *listingDto.CreateListingRequest){
		"no bottles":      func(r *listingDto.CreateListingRequest) { r.BottleCount = 0 },
		"too many":        func(r *listingDto.CreateListingRequest) { r.BottleCount = 10001 },
		"negative refund": func(r *listingDto.CreateListingRequest) { r.EstimatedRefund = decimal.NewFromInt(-1) },
		"huge refund":     func(r *listingDto.CreateListingRequest) { r.EstimatedRefund = decimal.NewFromInt(1_000_001) },
		"fractional cent": func(r *listingDto.CreateListingRequest) { r.EstimatedRefund = decimal.RequireFromString("1.005") },
		"split":           func(r *listingDto.CreateListingRequest) { r.SplitPercentage = &tooHigh },
		"past deadline":   func(r *listingDto.CreateListingRequest) { r.PickupDeadline = &past },
		"markup only":     func(r *listingDto.CreateListingRequest) { r.Title = "<script>x</script>" },
		"short address":   func(r *listingDto.CreateListingRequest) { r.LocationAddress = "ab" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := validRequest()
			mutate(&req)
			_, err := f.svc.CreateListing(context.Background(), owner.ID, req)
			assert.ErrorIs(t, err, apperror.ErrValidation)
		})
	}

	var count int64
	require.NoError(t, f.db.Model(&entity.BottleListing{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestUpdateListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, f.db, "owner")
	other := testutil.CreateUser(t, f.db, "other")
	l := testutil.CreateListing(t, f.db, owner.ID, "10.00", 50)

	count := 55
	updated, err := f.svc.UpdateListing(ctx, owner.ID, l.ID, listingDto.UpdateListingRequest{BottleCount: &count})
	require.NoError(t, err)
	assert.Equal(t, 55, updated.BottleCount)
	assert.Equal(t, "Bottles", updated.Title)

	_, err = f.svc.UpdateListing(ctx, other.ID, l.ID, listingDto.UpdateListingRequest{BottleCount: &count})
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	require.NoError(t, f.db.Model(l).Update("status", entity.ListingStatusClaimed).Error)
	_, err = f.svc.UpdateListing(ctx, owner.ID, l.ID, listingDto.UpdateListingRequest{BottleCount: &count})
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
}

func TestCancelListingResolvesRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, f.db, "owner")
	accepted := testutil.CreateUser(t, f.db, "accepted")
	pending := testutil.CreateUser(t, f.db, "pending")
	l := testutil.CreateListing(t, f.db, owner.ID, "10.00", 50)

	acceptedReq := &entity.PickupRequest{ListingID: l.ID, VolunteerID: accepted.ID, Status: entity.PickupRequestStatusAccepted}
	pendingReq := &entity.PickupRequest{ListingID: l.ID, VolunteerID: pending.ID, Status: entity.PickupRequestStatusPending}
	require.NoError(t, f.db.Create(acceptedReq).Error)
	require.NoError(t, f.db.Create(pendingReq).Error)
	require.NoError(t, f.db.Model(l).Update("status", entity.ListingStatusClaimed).Error)

	_, err := f.svc.CancelListing(ctx, accepted.ID, l.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	cancelled, err := f.svc.CancelListing(ctx, owner.ID, l.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ListingStatusCancelled, cancelled.Status)

	var got entity.PickupRequest
	require.NoError(t, f.db.First(&got, "id = ?", acceptedReq.ID).Error)
	assert.Equal(t, entity.PickupRequestStatusCancelled, got.Status)
	require.NoError(t, f.db.First(&got, "id = ?", pendingReq.ID).Error)
	assert.Equal(t, entity.PickupRequestStatusRejected, got.Status)

	assert.Equal(t, []entity.ActivityType{entity.ActivityListingCancelled}, f.published.ActivityTypes(owner.ID))
	assert.Equal(t, []entity.ActivityType{entity.ActivityListingCancelled}, f.published.ActivityTypes(accepted.ID))
	assert.Equal(t, []entity.ActivityType{entity.ActivityPickupRequestRejected}, f.published.ActivityTypes(pending.ID))

	_, err = f.svc.CancelListing(ctx, owner.ID, l.ID)
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
}

func TestDeleteListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, f.db, "owner")
	volunteer := testutil.CreateUser(t, f.db, "volunteer")

	claimed := testutil.CreateListing(t, f.db, owner.ID, "10.00", 50)
	require.NoError(t, f.db.Model(claimed).Update("status", entity.ListingStatusClaimed).Error)
	assert.ErrorIs(t, f.svc.DeleteListing(ctx, owner.ID, claimed.ID), apperror.ErrInvalidTransition)

	open := testutil.CreateListing(t, f.db, owner.ID, "10.00", 50)
	require.NoError(t, f.db.Create(&entity.PickupRequest{ListingID: open.ID, VolunteerID: volunteer.ID, Status: entity.PickupRequestStatusPending}).Error)

	assert.ErrorIs(t, f.svc.DeleteListing(ctx, volunteer.ID, open.ID), apperror.ErrForbidden)
	require.NoError(t, f.svc.DeleteListing(ctx, owner.ID, open.ID))

	_, err := f.svc.GetListing(ctx, open.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	var requests int64
	require.NoError(t, f.db.Model(&entity.PickupRequest{}).Where("listing_id = ?", open.ID).Count(&requests).Error)
	assert.Zero(t, requests)

	assert.ErrorIs(t, f.svc.DeleteListing(ctx, owner.ID, uuid.New()), apperror.ErrNotFound)
}

func TestDeleteListingKeepsSettledHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, f.db, "owner")
	volunteer := testutil.CreateUser(t, f.db, "volunteer")

	l := testutil.CreateListing(t, f.db, owner.ID, "10.00", 50)
	require.NoError(t, f.db.Model(l).Update("status", entity.ListingStatusCompleted).Error)
	req := &entity.PickupRequest{ListingID: l.ID, VolunteerID: volunteer.ID, Status: entity.PickupRequestStatusCompleted}
	require.NoError(t, f.db.Create(req).Error)
	settled := &entity.Transaction{
		ListingID:       l.ID,
		PickupRequestID: req.ID,
		VolunteerAmount: decimal.RequireFromString("5.00"),
		OwnerAmount:     decimal.RequireFromString("5.00"),
		TotalRefund:     decimal.RequireFromString("10.00"),
		Status:          entity.TransactionStatusCompleted,
	}
	require.NoError(t, f.db.Create(settled).Error)
	require.NoError(t, f.db.Create(&entity.Rating{RaterID: owner.ID, RatedUserID: volunteer.ID, TransactionID: settled.ID, Value: 5}).Error)

	assert.ErrorIs(t, f.svc.DeleteListing(ctx, owner.ID, l.ID), apperror.ErrInvalidTransition)

	var transactions, ratings int64
	require.NoError(t, f.db.Model(&entity.Transaction{}).Where("listing_id = ?", l.ID).Count(&transactions).Error)
	require.NoError(t, f.db.Model(&entity.Rating{}).Where("transaction_id = ?", settled.ID).Count(&ratings).Error)
	assert.EqualValues(t, 1, transactions)
	assert.EqualValues(t, 1, ratings)
	assert.Empty(t, f.published.Events())

	_, err := f.svc.GetListing(ctx, l.ID)
	assert.NoError(t, err)
}

func TestListAndSearchFallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, f.db, "owner")
	other := testutil.CreateUser(t, f.db, "other")

	wine := testutil.CreateListing(t, f.db, owner.ID, "5.00", 50)
	require.NoError(t, f.db.Model(wine).Update("title", "Wine bottles").Error)
	testutil.CreateListing(t, f.db, owner.ID, "5.00", 50)
	testutil.CreateListing(t, f.db, other.ID, "5.00", 50)

	mine, err := f.svc.ListMyListings(ctx, owner.ID, "", commonDto.PageQuery{Page: 1, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, mine.Data, 1)
	assert.EqualValues(t, 2, mine.Meta.TotalItems)
	assert.Equal(t, 2, mine.Meta.TotalPages)

	_, err = f.svc.ListListings(ctx, listingRepo.Filter{Status: "bogus"}, commonDto.PageQuery{})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	found, err := f.svc.SearchListings(ctx, "WINE", commonDto.PageQuery{})
	require.NoError(t, err)
	require.Len(t, found.Data, 1)
	assert.Equal(t, wine.ID, found.Data[0].ID)

	_, err = f.svc.SearchListings(ctx, "   ", commonDto.PageQuery{})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestExpireOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, f.db, "owner")

	overdue := testutil.CreateListing(t, f.db, owner.ID, "5.00", 50)
	past := time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, f.db.Model(overdue).Update("pickup_deadline", past).Error)

	future := testutil.CreateListing(t, f.db, owner.ID, "5.00", 50)
	later := time.Now().UTC().Add(2 * time.Hour)
	require.NoError(t, f.db.Model(future).Update("pickup_deadline", later).Error)

	expired, err := f.svc.ExpireOverdue(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	got, err := f.svc.GetListing(ctx, overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ListingStatusCancelled, got.Status)

	got, err = f.svc.GetListing(ctx, future.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ListingStatusOpen, got.Status)
}

func TestLifecycleRequiresTransaction(t *testing.T) {
	f := newFixture(t)
	owner := testutil.CreateUser(t, f.db, "owner")
	l := testutil.CreateListing(t, f.db, owner.ID, "5.00", 50)

	assert.ErrorIs(t, f.svc.Claim(context.Background(), l), apperror.ErrInternal)

	err := f.tx.WithinTransaction(context.Background(), func(ctx context.Context) error {
		locked, err := f.svc.LockListing(ctx, l.ID)
		if err != nil {
			return err
		}
		if err := f.svc.Claim(ctx, locked); err != nil {
			return err
		}
		assert.ErrorIs(t, f.svc.Claim(ctx, locked), apperror.ErrInvalidTransition)
		return f.svc.Complete(ctx, locked)
	})
	require.NoError(t, err)

	got, err := f.svc.GetListing(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ListingStatusCompleted, got.Status)
}
