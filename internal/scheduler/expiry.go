package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Expirer cancels open listings whose pickup deadline passed.
type Expirer interface {
	ExpireOverdue(ctx context.Context, now time.Time) (int, error)
}

type ListingExpiryJob struct {
	listings Expirer
	schedule string
	now      func() time.Time
}

func NewListingExpiryJob(listings Expirer, schedule string) *ListingExpiryJob {
	return &ListingExpiryJob{listings: listings, schedule: schedule, now: time.Now}
}

func (j *ListingExpiryJob) Name() string     { return "listing_expiry" }
func (j *ListingExpiryJob) Schedule() string { return j.schedule }

func (j *ListingExpiryJob) Run(ctx context.Context) error {
	n, err := j.listings.ExpireOverdue(ctx, j.now())
	if n > 0 {
		log.Info().Int("count", n).Msg("Expired overdue listings")
	}
	return err
}
