package rating_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vargamihaly/bottlebuddy/internal/entity"
	activityRepo "github.com/vargamihaly/bottlebuddy/internal/modules/activity/repository"
	activity "github.com/vargamihaly/bottlebuddy/internal/modules/activity/service"
	ratingDto "github.com/vargamihaly/bottlebuddy/internal/modules/rating/dto"
	ratingRepo "github.com/vargamihaly/bottlebuddy/internal/modules/rating/repository"
	rating "github.com/vargamihaly/bottlebuddy/internal/modules/rating/service"
	transactionRepo "github.com/vargamihaly/bottlebuddy/internal/modules/transaction/repository"
	userRepo "github.com/vargamihaly/bottlebuddy/internal/modules/user/repository"
	"github.com/vargamihaly/bottlebuddy/internal/testutil"
	"github.com/vargamihaly/bottlebuddy/pkg/apperror"
	"github.com/vargamihaly/bottlebuddy/pkg/database"
	commonDto "github.com/vargamihaly/bottlebuddy/pkg/dto"
	"gorm.io/gorm"
)

func newService(db *gorm.DB, users userRepo.Repository, published *testutil.Recorder) rating.Service {
	return rating.NewService(
		ratingRepo.NewRepository(db),
		transactionRepo.NewRepository(db),
		users,
		activity.NewService(activityRepo.NewRepository(db)),
		database.NewTransactor(db),
		published,
		3,
	)
}

// completedTransaction builds a settled pickup of a listing owned by owner.
func completedTransaction(t *testing.T, db *gorm.DB, owner, volunteer uuid.UUID, status entity.TransactionStatus) *entity.Transaction {
	t.Helper()
	listing := testutil.CreateListing(t, db, owner, "10.00", 50)
	request := &entity.PickupRequest{ListingID: listing.ID, VolunteerID: volunteer, Status: entity.PickupRequestStatusCompleted}
	require.NoError(t, db.Create(request).Error)

	now := time.Now().UTC()
	tx := &entity.Transaction{
		ListingID:       listing.ID,
		PickupRequestID: request.ID,
		VolunteerAmount: decimal.RequireFromString("5.00"),
		OwnerAmount:     decimal.RequireFromString("5.00"),
		TotalRefund:     decimal.RequireFromString("10.00"),
		Status:          status,
	}
	if status == entity.TransactionStatusCompleted {
		tx.CompletedAt = &now
	}
	require.NoError(t, db.Create(tx).Error)
	return tx
}

func profileOf(t *testing.T, db *gorm.DB, userID uuid.UUID) entity.Profile {
	t.Helper()
	var p entity.Profile
	require.NoError(t, db.First(&p, "user_id = ?", userID).Error)
	return p
}

func TestCreateRating(t *testing.T) {
	db := testutil.NewDB(t)
	published := &testutil.Recorder{}
	svc := newService(db, userRepo.NewRepository(db), published)
	ctx := context.Background()

	owner := testutil.CreateUser(t, db, "owner")
	volunteer := testutil.CreateUser(t, db, "volunteer")
	stranger := testutil.CreateUser(t, db, "stranger")
	tx := completedTransaction(t, db, owner.ID, volunteer.ID, entity.TransactionStatusCompleted)

	_, err := svc.CreateRating(ctx, stranger.ID, tx.ID, ratingDto.CreateRatingRequest{Value: 5})
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = svc.CreateRating(ctx, volunteer.ID, tx.ID, ratingDto.CreateRatingRequest{Value: 6})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = svc.CreateRating(ctx, volunteer.ID, uuid.New(), ratingDto.CreateRatingRequest{Value: 4})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	r, err := svc.CreateRating(ctx, volunteer.ID, tx.ID, ratingDto.CreateRatingRequest{Value: 4, Comment: " <i>Friendly</i> "})
	require.NoError(t, err)
	assert.Equal(t, owner.ID, r.RatedUserID)
	assert.Equal(t, "Friendly", r.Comment)
	assert.Equal(t, []entity.ActivityType{entity.ActivityRatingReceived}, published.ActivityTypes(owner.ID))
	assert.Equal(t, []entity.ActivityType{entity.ActivityRatingGiven}, published.ActivityTypes(volunteer.ID))

	_, err = svc.CreateRating(ctx, volunteer.ID, tx.ID, ratingDto.CreateRatingRequest{Value: 1})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	back, err := svc.CreateRating(ctx, owner.ID, tx.ID, ratingDto.CreateRatingRequest{Value: 5})
	require.NoError(t, err)
	assert.Equal(t, volunteer.ID, back.RatedUserID)

	p := profileOf(t, db, owner.ID)
	require.NotNil(t, p.Rating)
	assert.InDelta(t, 4.0, *p.Rating, 1e-9)
	assert.Equal(t, 1, p.TotalRatings)

	page, err := svc.ListRatingsForUser(ctx, owner.ID, commonDto.PageQuery{})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, r.ID, page.Data[0].ID)
}

func TestRatingPendingTransaction(t *testing.T) {
	db := testutil.NewDB(t)
	svc := newService(db, userRepo.NewRepository(db), &testutil.Recorder{})
	owner := testutil.CreateUser(t, db, "owner")
	volunteer := testutil.CreateUser(t, db, "volunteer")
	tx := completedTransaction(t, db, owner.ID, volunteer.ID, entity.TransactionStatusPending)

	_, err := svc.CreateRating(context.Background(), volunteer.ID, tx.ID, ratingDto.CreateRatingRequest{Value: 3})
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
	assert.Nil(t, profileOf(t, db, owner.ID).Rating)
}

// rateAll has one volunteer per value rate owner, concurrently when parallel
// is set, and returns the owner's final profile.
func rateAll(t *testing.T, values []int, parallel bool) entity.Profile {
	db := testutil.NewDB(t)
	svc := newService(db, userRepo.NewRepository(db), &testutil.Recorder{})
	owner := testutil.CreateUser(t, db, "owner")

	type job struct {
		rater uuid.UUID
		tx    uuid.UUID
		value int
	}
	jobs := make([]job, len(values))
	for i, v := range values {
		volunteer := testutil.CreateUser(t, db, fmt.Sprintf("volunteer%d", i))
		tx := completedTransaction(t, db, owner.ID, volunteer.ID, entity.TransactionStatusCompleted)
		jobs[i] = job{rater: volunteer.ID, tx: tx.ID, value: v}
	}

	var wg sync.WaitGroup
	for _, j := range jobs {
		run := func(j job) {
			_, err := svc.CreateRating(context.Background(), j.rater, j.tx, ratingDto.CreateRatingRequest{Value: j.value})
			assert.NoError(t, err)
		}
		if !parallel {
			run(j)
			continue
		}
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			run(j)
		}(j)
	}
	wg.Wait()

	return profileOf(t, db, owner.ID)
}

func TestRatingMeanIsOrderIndependent(t *testing.T) {
	values := []int{5, 1, 4, 4, 2, 3, 5}
	reversed := make([]int, len(values))
	for i, v := range values {
		reversed[len(values)-1-i] = v
	}

	sum := 0
	for _, v := range values {
		sum += v
	}
	want := float64(sum) / float64(len(values))

	for name, p := range map[string]entity.Profile{
		"forward":    rateAll(t, values, false),
		"reversed":   rateAll(t, reversed, false),
		"concurrent": rateAll(t, values, true),
	} {
		require.NotNil(t, p.Rating, name)
		assert.Equal(t, want, *p.Rating, name)
		assert.Equal(t, len(values), p.TotalRatings, name)
		assert.Equal(t, sum, p.RatingSum, name)
	}
}

// racingUsers loses the first lose compare-and-swap writes.
type racingUsers struct {
	userRepo.Repository
	lose int
}

func (r *racingUsers) UpdateRating(ctx context.Context, userID uuid.UUID, prevCount, sum, count int, mean *float64) (bool, error) {
	if r.lose > 0 {
		r.lose--
		return false, nil
	}
	return r.Repository.UpdateRating(ctx, userID, prevCount, sum, count, mean)
}

func TestRatingRetriesLostUpdates(t *testing.T) {
	for _, tc := range []struct {
		lose    int
		wantErr error
	}{
		{lose: 2},
		{lose: 3, wantErr: apperror.ErrConflict},
	} {
		t.Run(fmt.Sprintf("lose %d", tc.lose), func(t *testing.T) {
			db := testutil.NewDB(t)
			svc := newService(db, &racingUsers{Repository: userRepo.NewRepository(db), lose: tc.lose}, &testutil.Recorder{})
			owner := testutil.CreateUser(t, db, "owner")
			volunteer := testutil.CreateUser(t, db, "volunteer")
			tx := completedTransaction(t, db, owner.ID, volunteer.ID, entity.TransactionStatusCompleted)

			_, err := svc.CreateRating(context.Background(), volunteer.ID, tx.ID, ratingDto.CreateRatingRequest{Value: 2})
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)

				var count int64
				require.NoError(t, db.Model(&entity.Rating{}).Count(&count).Error)
				assert.Zero(t, count, "the rating insert rolls back with the aggregate")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 1, profileOf(t, db, owner.ID).TotalRatings)
		})
	}
}
