/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract
 * for all data access operations required by the donation-service. By defining
 * an interface, we decouple the payment orchestration from the specific
 * database implementation, making the core swappable against an in-memory
 * store in tests.
 *
 * @notes
 * - All record writes are append-only from the orchestrator's point of view.
 *   The only mutable rows are deposit-attempt audit entries, whose status is
 *   settled exactly once per attempt.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 * - github.com/google/uuid: For record identifiers.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nmdasso/donation-service/internal/domain"
)

var (
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrDepositAttemptNotFound = errors.New("deposit attempt not found")
	ErrDuplicateTransaction   = errors.New("transaction reference already recorded")
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Payment methods
	CreatePayment(ctx context.Context, payment *domain.Payment) error
	FindPaymentByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error)
	ListPayments(ctx context.Context, opts domain.ListOptions) ([]domain.Payment, error)

	// Member methods
	CreateMember(ctx context.Context, member *domain.Member) error
	ListMembers(ctx context.Context, opts domain.ListOptions) ([]domain.Member, error)

	// Contribution methods
	CreateContribution(ctx context.Context, contribution *domain.Contribution) error
	ListContributions(ctx context.Context, opts domain.ListOptions) ([]domain.Contribution, error)

	// Deposit-attempt audit methods
	CreateDepositAttempt(ctx context.Context, attempt *domain.DepositAttempt) error
	SettleDepositAttempt(ctx context.Context, attemptID uuid.UUID, status string, failureReason *string) error
	ListUnsettledDepositAttempts(ctx context.Context, olderThan time.Time, limit int) ([]domain.DepositAttempt, error)
}
