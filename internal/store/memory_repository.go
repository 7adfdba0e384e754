/**
 * @description
 * An in-memory implementation of the `Repository` interface. It backs the
 * orchestrator tests and local development without a database; the semantics
 * mirror the PostgreSQL implementation, including the unique transaction
 * reference constraint on payments.
 */

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nmdasso/donation-service/internal/domain"
)

// MemoryRepository is a thread-safe in-memory Repository.
type MemoryRepository struct {
	mu            sync.Mutex
	payments      []domain.Payment
	members       []domain.Member
	contributions []domain.Contribution
	attempts      map[uuid.UUID]*domain.DepositAttempt
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		attempts: make(map[uuid.UUID]*domain.DepositAttempt),
	}
}

func (r *MemoryRepository) CreatePayment(ctx context.Context, payment *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.TransactionID == payment.TransactionID {
			return ErrDuplicateTransaction
		}
	}
	r.payments = append(r.payments, *payment)
	return nil
}

func (r *MemoryRepository) FindPaymentByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.payments {
		if r.payments[i].TransactionID == transactionID {
			p := r.payments[i]
			return &p, nil
		}
	}
	return nil, ErrPaymentNotFound
}

func (r *MemoryRepository) ListPayments(ctx context.Context, opts domain.ListOptions) ([]domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Payment, len(r.payments))
	copy(out, r.payments)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, opts), nil
}

func (r *MemoryRepository) CreateMember(ctx context.Context, member *domain.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members = append(r.members, *member)
	return nil
}

func (r *MemoryRepository) ListMembers(ctx context.Context, opts domain.ListOptions) ([]domain.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Member, len(r.members))
	copy(out, r.members)
	sort.Slice(out, func(i, j int) bool { return out[i].RegistrationDate.After(out[j].RegistrationDate) })
	return page(out, opts), nil
}

func (r *MemoryRepository) CreateContribution(ctx context.Context, contribution *domain.Contribution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contributions = append(r.contributions, *contribution)
	return nil
}

func (r *MemoryRepository) ListContributions(ctx context.Context, opts domain.ListOptions) ([]domain.Contribution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Contribution, len(r.contributions))
	copy(out, r.contributions)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, opts), nil
}

func (r *MemoryRepository) CreateDepositAttempt(ctx context.Context, attempt *domain.DepositAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *attempt
	r.attempts[attempt.ID] = &copied
	return nil
}

func (r *MemoryRepository) SettleDepositAttempt(ctx context.Context, attemptID uuid.UUID, status string, failureReason *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	attempt, ok := r.attempts[attemptID]
	if !ok {
		return ErrDepositAttemptNotFound
	}
	attempt.Status = status
	attempt.FailureReason = failureReason
	attempt.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryRepository) ListUnsettledDepositAttempts(ctx context.Context, olderThan time.Time, limit int) ([]domain.DepositAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.DepositAttempt
	for _, a := range r.attempts {
		if (a.Status == domain.AttemptInitiated || a.Status == domain.AttemptTimedOut) && a.CreatedAt.Before(olderThan) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func page[T any](items []T, opts domain.ListOptions) []T {
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items
}
