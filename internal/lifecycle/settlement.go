package lifecycle

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vargamihaly/bottlebuddy/pkg/apperror"
)

const (
	DefaultSplitPercentage = 50
	MinRating              = 1
	MaxRating              = 5
)

var (
	hundred   = decimal.NewFromInt(100)
	MaxRefund = decimal.NewFromInt(1_000_000)
)

// Split is the settlement of a refund between volunteer and owner.
type Split struct {
	Volunteer decimal.Decimal
	Owner     decimal.Decimal
	Total     decimal.Decimal
}

// SplitRefund rounds the volunteer share half away from zero to cents and gives
// the remainder to the owner, so the two shares always sum to total.
func SplitRefund(total decimal.Decimal, splitPercentage int) (Split, error) {
	if splitPercentage < 0 || splitPercentage > 100 {
		return Split{}, apperror.Validation(fmt.Sprintf("split_percentage must be between 0 and 100, got %d", splitPercentage))
	}
	if total.IsNegative() {
		return Split{}, apperror.Validation("estimated refund cannot be negative")
	}

	total = total.Round(2)
	volunteer := total.Mul(decimal.NewFromInt(int64(splitPercentage))).Div(hundred).Round(2)
	return Split{
		Volunteer: volunteer,
		Owner:     total.Sub(volunteer),
		Total:     total,
	}, nil
}

// Aggregate is the running rating state of a profile.
type Aggregate struct {
	Sum   int
	Count int
}

// Add folds one more rating into the aggregate.
func (a Aggregate) Add(value int) (Aggregate, error) {
	if value < MinRating || value > MaxRating {
		return a, apperror.Validation(fmt.Sprintf("rating must be between %d and %d", MinRating, MaxRating))
	}
	return Aggregate{Sum: a.Sum + value, Count: a.Count + 1}, nil
}

// Mean returns nil for an empty aggregate.
func (a Aggregate) Mean() *float64 {
	if a.Count <= 0 {
		return nil
	}
	mean := float64(a.Sum) / float64(a.Count)
	return &mean
}
