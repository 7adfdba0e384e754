package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nmdasso/donation-service/pkg/pawapay"
)

type querierStub struct {
	statuses []string
	err      error
	errAfter int // return err once this many calls have happened (0 = first call)
	calls    int
}

func (q *querierStub) GetDepositStatus(ctx context.Context, depositID string) (*pawapay.DepositStatusResponse, error) {
	call := q.calls
	q.calls++
	if q.err != nil && call >= q.errAfter {
		return nil, q.err
	}
	status := "PENDING"
	if call < len(q.statuses) {
		status = q.statuses[call]
	}
	resp := &pawapay.DepositStatusResponse{}
	resp.Data.DepositID = depositID
	resp.Data.Status = status
	if status == "FAILED" {
		resp.Data.FailureReason = &pawapay.FailureReason{
			FailureCode:    "INSUFFICIENT_BALANCE",
			FailureMessage: "Payer has insufficient balance",
		}
	}
	return resp, nil
}

func newTestPoller(q StatusQuerier, maxAttempts int) *StatusPoller {
	return NewStatusPoller(q, time.Millisecond, maxAttempts)
}

func TestPoll_ReturnsConfirmedOnFirstSuccessWithoutFurtherQueries(t *testing.T) {
	querier := &querierStub{statuses: []string{"COMPLETED", "COMPLETED"}}
	result := newTestPoller(querier, 10).Poll(context.Background(), "dep-1")

	if result.Outcome != PollConfirmed {
		t.Fatalf("expected confirmed outcome, got %s", result.Outcome)
	}
	if result.Attempts != 1 || querier.calls != 1 {
		t.Fatalf("expected exactly one status query, got attempts=%d calls=%d", result.Attempts, querier.calls)
	}
}

func TestPoll_SuccessfulStatusAlsoCountsAsConfirmed(t *testing.T) {
	querier := &querierStub{statuses: []string{"SUCCESSFUL"}}
	result := newTestPoller(querier, 10).Poll(context.Background(), "dep-1")
	if result.Outcome != PollConfirmed {
		t.Fatalf("expected confirmed outcome for SUCCESSFUL, got %s", result.Outcome)
	}
}

func TestPoll_ReturnsDeclinedWithFailureReason(t *testing.T) {
	querier := &querierStub{statuses: []string{"PENDING", "FAILED"}}
	result := newTestPoller(querier, 10).Poll(context.Background(), "dep-1")

	if result.Outcome != PollDeclined {
		t.Fatalf("expected declined outcome, got %s", result.Outcome)
	}
	if result.Attempts != 2 {
		t.Fatalf("expected polling to stop at the terminal response, got %d attempts", result.Attempts)
	}
	if result.FailureCode != "INSUFFICIENT_BALANCE" {
		t.Fatalf("expected failure code to be carried through, got %q", result.FailureCode)
	}
}

func TestPoll_TimesOutAfterExactlyMaxAttempts(t *testing.T) {
	querier := &querierStub{} // always PENDING
	result := newTestPoller(querier, 5).Poll(context.Background(), "dep-1")

	if result.Outcome != PollTimedOut {
		t.Fatalf("expected timed out outcome, got %s", result.Outcome)
	}
	if querier.calls != 5 {
		t.Fatalf("expected exactly 5 status queries, got %d", querier.calls)
	}
}

func TestPoll_TransportErrorStopsImmediately(t *testing.T) {
	transportErr := errors.New("connection refused")
	querier := &querierStub{statuses: []string{"PENDING"}, err: transportErr, errAfter: 1}
	result := newTestPoller(querier, 10).Poll(context.Background(), "dep-1")

	if result.Outcome != PollErrored {
		t.Fatalf("expected errored outcome, got %s", result.Outcome)
	}
	if querier.calls != 2 {
		t.Fatalf("expected no retry after transport error, got %d calls", querier.calls)
	}
	if !errors.Is(result.Err, transportErr) {
		t.Fatalf("expected transport error to be carried, got %v", result.Err)
	}
}

func TestPoll_CancelledContextUnblocksSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	poller := NewStatusPoller(&querierStub{}, time.Hour, 10)

	done := make(chan PollResult, 1)
	go func() { done <- poller.Poll(ctx, "dep-1") }()

	select {
	case result := <-done:
		if result.Outcome != PollErrored {
			t.Fatalf("expected errored outcome on cancellation, got %s", result.Outcome)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not unblock after context cancellation")
	}
}

func TestClassifyDepositStatus_UnknownStatusesAreNonTerminal(t *testing.T) {
	for _, status := range []string{"PENDING", "SUBMITTED", "IN_RECONCILIATION", "", "garbage"} {
		if outcome := classifyDepositStatus(status); outcome != "" {
			t.Fatalf("expected %q to be non-terminal, got %s", status, outcome)
		}
	}
}
