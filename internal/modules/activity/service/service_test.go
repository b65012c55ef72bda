package activity_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vargamihaly/bottlebuddy/internal/entity"
	"github.com/vargamihaly/bottlebuddy/internal/events"
	activityRepo "github.com/vargamihaly/bottlebuddy/internal/modules/activity/repository"
	activity "github.com/vargamihaly/bottlebuddy/internal/modules/activity/service"
	"github.com/vargamihaly/bottlebuddy/internal/testutil"
	"github.com/vargamihaly/bottlebuddy/pkg/apperror"
	"github.com/vargamihaly/bottlebuddy/pkg/database"
	commonDto "github.com/vargamihaly/bottlebuddy/pkg/dto"
)

func TestReadUnreadFlow(t *testing.T) {
	db := testutil.NewDB(t)
	svc := activity.NewService(activityRepo.NewRepository(db))
	ctx := context.Background()

	owner := testutil.CreateUser(t, db, "owner")
	other := testutil.CreateUser(t, db, "other")
	listing := testutil.CreateListing(t, db, owner.ID, "12.50", 50)

	created := activity.ListingCreated(listing)
	require.NoError(t, svc.Record(ctx, created, activity.ListingCancelled(listing, owner.ID)))

	count, err := svc.UnreadCount(ctx, owner.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	page, err := svc.List(ctx, owner.ID, false, commonDto.PageQuery{})
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	assert.EqualValues(t, 2, page.Meta.TotalItems)
	assert.Equal(t, listing.Title, page.Data[0].Metadata["listing_title"])

	assert.ErrorIs(t, svc.MarkAsRead(ctx, other.ID, created.ID), apperror.ErrForbidden)
	assert.ErrorIs(t, svc.MarkAsRead(ctx, owner.ID, uuid.New()), apperror.ErrNotFound)
	require.NoError(t, svc.MarkAsRead(ctx, owner.ID, created.ID))

	unread, err := svc.List(ctx, owner.ID, true, commonDto.PageQuery{})
	require.NoError(t, err)
	require.Len(t, unread.Data, 1)
	assert.Equal(t, entity.ActivityListingCancelled, unread.Data[0].Type)

	updated, err := svc.MarkAllAsRead(ctx, owner.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, updated)

	count, err = svc.UnreadCount(ctx, owner.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRecordJoinsAmbientTransaction(t *testing.T) {
	db := testutil.NewDB(t)
	svc := activity.NewService(activityRepo.NewRepository(db))
	tr := database.NewTransactor(db)
	owner := testutil.CreateUser(t, db, "owner")
	listing := testutil.CreateListing(t, db, owner.ID, "1", 50)

	err := tr.WithinTransaction(context.Background(), func(ctx context.Context) error {
		require.NoError(t, svc.Record(ctx, activity.ListingCreated(listing)))
		return apperror.ErrConflict
	})
	require.ErrorIs(t, err, apperror.ErrConflict)

	count, err := svc.UnreadCount(context.Background(), owner.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestEventsWrapsActivities(t *testing.T) {
	a := &entity.UserActivity{ID: uuid.New()}
	evs := activity.Events([]*entity.UserActivity{a})
	require.Len(t, evs, 1)
	assert.Equal(t, events.KindActivity, evs[0].Kind)
	assert.Same(t, a, evs[0].Activity)
}
