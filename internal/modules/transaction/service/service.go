package transaction

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vargamihaly/bottlebuddy/internal/entity"
	"github.com/vargamihaly/bottlebuddy/internal/lifecycle"
	transactionRepo "github.com/vargamihaly/bottlebuddy/internal/modules/transaction/repository"
	"github.com/vargamihaly/bottlebuddy/pkg/apperror"
	"github.com/vargamihaly/bottlebuddy/pkg/database"
	commonDto "github.com/vargamihaly/bottlebuddy/pkg/dto"
)

type Service interface {
	// Settle creates the transaction of a completed pickup and marks it
	// completed. It must run inside the pickup's transaction.
	Settle(ctx context.Context, listing *entity.BottleListing, request *entity.PickupRequest) (*entity.Transaction, lifecycle.Split, error)
	GetTransaction(ctx context.Context, userID, id uuid.UUID) (*entity.Transaction, error)
	ListMyTransactions(ctx context.Context, userID uuid.UUID, page commonDto.PageQuery) (*commonDto.Paginated[entity.Transaction], error)
}

type service struct {
	repo transactionRepo.Repository
	now  func() time.Time
}

func NewService(repo transactionRepo.Repository) Service {
	return &service{repo: repo, now: time.Now}
}

func (s *service) Settle(ctx context.Context, listing *entity.BottleListing, request *entity.PickupRequest) (*entity.Transaction, lifecycle.Split, error) {
	if !database.InTransaction(ctx) {
		return nil, lifecycle.Split{}, fmt.Errorf("settle outside a transaction: %w", apperror.ErrInternal)
	}

	split, err := lifecycle.SplitRefund(listing.EstimatedRefund, listing.SplitPercentage)
	if err != nil {
		return nil, lifecycle.Split{}, err
	}

	t := &entity.Transaction{
		ListingID:       listing.ID,
		PickupRequestID: request.ID,
		VolunteerAmount: split.Volunteer,
		OwnerAmount:     split.Owner,
		TotalRefund:     split.Total,
		Status:          entity.TransactionStatusPending,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, lifecycle.Split{}, fmt.Errorf("create transaction: %w", err)
	}

	if err := lifecycle.Transactions.Validate(t.Status, entity.TransactionStatusCompleted); err != nil {
		return nil, lifecycle.Split{}, err
	}
	completedAt := s.now().UTC()
	if err := s.repo.Complete(ctx, t.ID, completedAt); err != nil {
		return nil, lifecycle.Split{}, err
	}
	t.Status = entity.TransactionStatusCompleted
	t.CompletedAt = &completedAt

	return t, split, nil
}

func (s *service) GetTransaction(ctx context.Context, userID, id uuid.UUID) (*entity.Transaction, error) {
	t, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("transaction: %w", err)
	}
	if !IsParty(t, userID) {
		return nil, fmt.Errorf("not a party of this transaction: %w", apperror.ErrForbidden)
	}
	return t, nil
}

func (s *service) ListMyTransactions(ctx context.Context, userID uuid.UUID, page commonDto.PageQuery) (*commonDto.Paginated[entity.Transaction], error) {
	page = page.Normalize()
	items, total, err := s.repo.FindByUser(ctx, userID, page.Offset(), page.Limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []entity.Transaction{}
	}
	return &commonDto.Paginated[entity.Transaction]{
		Data: items,
		Meta: commonDto.NewPaginationMeta(page, total),
	}, nil
}

// Parties returns the listing owner and the volunteer of a transaction loaded
// with its listing and pickup request.
func Parties(t *entity.Transaction) (owner, volunteer uuid.UUID) {
	if t.Listing != nil {
		owner = t.Listing.OwnerID
	}
	if t.PickupRequest != nil {
		volunteer = t.PickupRequest.VolunteerID
	}
	return owner, volunteer
}

func IsParty(t *entity.Transaction, userID uuid.UUID) bool {
	owner, volunteer := Parties(t)
	return userID != uuid.Nil && (userID == owner || userID == volunteer)
}
