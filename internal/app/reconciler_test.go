package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nmdasso/donation-service/internal/domain"
	"github.com/nmdasso/donation-service/internal/store"
)

func seedAttempt(t *testing.T, repo *store.MemoryRepository, status string, age time.Duration) uuid.UUID {
	t.Helper()
	attempt := &domain.DepositAttempt{
		ID:             uuid.New(),
		DepositID:      uuid.NewString(),
		TransactionRef: "TXN-" + uuid.NewString()[:8],
		FlowType:       domain.FlowContribution,
		Amount:         5000,
		Currency:       "XAF",
		Status:         status,
		CreatedAt:      time.Now().UTC().Add(-age),
		UpdatedAt:      time.Now().UTC().Add(-age),
	}
	if err := repo.CreateDepositAttempt(context.Background(), attempt); err != nil {
		t.Fatalf("failed to seed attempt: %v", err)
	}
	return attempt.ID
}

func unsettled(t *testing.T, repo *store.MemoryRepository) []domain.DepositAttempt {
	t.Helper()
	attempts, err := repo.ListUnsettledDepositAttempts(context.Background(), time.Now().UTC().Add(time.Minute), 100)
	if err != nil {
		t.Fatalf("failed to list attempts: %v", err)
	}
	return attempts
}

func TestReconciler_SettlesLateConfirmedAttempt(t *testing.T) {
	repo := store.NewMemoryRepository()
	seedAttempt(t, repo, domain.AttemptTimedOut, time.Hour)

	querier := &querierStub{statuses: []string{"COMPLETED"}}
	NewReconciler(repo, querier, 30*time.Minute, 10).Run(context.Background())

	if remaining := unsettled(t, repo); len(remaining) != 0 {
		t.Fatalf("expected attempt to be settled, %d still unsettled", len(remaining))
	}
}

func TestReconciler_LeavesRecentAttemptsAlone(t *testing.T) {
	repo := store.NewMemoryRepository()
	seedAttempt(t, repo, domain.AttemptInitiated, time.Minute)

	querier := &querierStub{statuses: []string{"COMPLETED"}}
	NewReconciler(repo, querier, 30*time.Minute, 10).Run(context.Background())

	if querier.calls != 0 {
		t.Fatal("attempts inside the grace period must not be re-queried")
	}
	if remaining := unsettled(t, repo); len(remaining) != 1 {
		t.Fatalf("expected the recent attempt to stay unsettled, got %d", len(remaining))
	}
}

func TestReconciler_MarksUnresolvedWhenGatewayUnreachable(t *testing.T) {
	repo := store.NewMemoryRepository()
	id := seedAttempt(t, repo, domain.AttemptTimedOut, time.Hour)

	querier := &querierStub{err: errors.New("connection refused")}
	NewReconciler(repo, querier, 30*time.Minute, 10).Run(context.Background())

	if remaining := unsettled(t, repo); len(remaining) != 0 {
		t.Fatalf("expected attempt %s to be settled as unresolved, %d still unsettled", id, len(remaining))
	}
}

func TestReconciler_StillPendingBecomesUnresolved(t *testing.T) {
	repo := store.NewMemoryRepository()
	seedAttempt(t, repo, domain.AttemptInitiated, time.Hour)

	querier := &querierStub{} // always PENDING
	NewReconciler(repo, querier, 30*time.Minute, 10).Run(context.Background())

	if remaining := unsettled(t, repo); len(remaining) != 0 {
		t.Fatalf("expected pending attempt to be handed to support, %d still unsettled", len(remaining))
	}
}
