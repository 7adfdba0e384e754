/**
 * @description
 * The deposit status poller. After a deposit is accepted by the gateway, the
 * orchestrator blocks on this poller until the deposit reaches a terminal
 * state or the attempt budget runs out.
 *
 * @notes
 * - Polling is sequential: one outstanding status query at a time, with a
 *   cooperative sleep between attempts. The sleep selects on ctx.Done so a
 *   cancelled context unblocks the flow at the next boundary.
 * - A transport error on any single query ends polling immediately with an
 *   errored result. This is deliberate: an unreachable gateway makes further
 *   polling pointless, and the caller must treat the outcome as ambiguous
 *   failure, not as a clean timeout.
 */

package app

import (
	"context"
	"log"
	"time"

	"github.com/nmdasso/donation-service/pkg/pawapay"
)

// PollOutcome classifies how a polling run ended.
type PollOutcome string

const (
	PollConfirmed PollOutcome = "confirmed"
	PollDeclined  PollOutcome = "declined"
	PollTimedOut  PollOutcome = "timed_out"
	PollErrored   PollOutcome = "errored"
)

// PollResult is the terminal result of one polling run.
type PollResult struct {
	Outcome        PollOutcome
	Status         string
	FailureCode    string
	FailureMessage string
	Attempts       int
	Err            error
}

// StatusQuerier is the single gateway operation the poller depends on.
type StatusQuerier interface {
	GetDepositStatus(ctx context.Context, depositID string) (*pawapay.DepositStatusResponse, error)
}

// StatusPoller polls a deposit until it reaches a terminal status.
type StatusPoller struct {
	querier     StatusQuerier
	interval    time.Duration
	maxAttempts int
}

// NewStatusPoller creates a poller with the given cadence. Non-positive
// arguments fall back to the gateway-recommended defaults.
func NewStatusPoller(querier StatusQuerier, interval time.Duration, maxAttempts int) *StatusPoller {
	if interval <= 0 {
		interval = 4 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &StatusPoller{querier: querier, interval: interval, maxAttempts: maxAttempts}
}

// classifyDepositStatus buckets a gateway status string. Unknown statuses are
// non-terminal: the gateway may introduce intermediate states at any time.
func classifyDepositStatus(status string) PollOutcome {
	switch status {
	case "COMPLETED", "SUCCESSFUL":
		return PollConfirmed
	case "FAILED", "DECLINED":
		return PollDeclined
	}
	return ""
}

// Poll queries the deposit status until terminal success, terminal failure,
// a transport error, or attempt exhaustion.
func (p *StatusPoller) Poll(ctx context.Context, depositID string) PollResult {
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		resp, err := p.querier.GetDepositStatus(ctx, depositID)
		if err != nil {
			log.Printf("level=warn component=status_poller deposit_id=%s attempt=%d msg=\"status query failed\" err=%v", depositID, attempt, err)
			return PollResult{Outcome: PollErrored, Attempts: attempt, Err: err}
		}

		status := resp.Data.Status
		switch classifyDepositStatus(status) {
		case PollConfirmed:
			log.Printf("level=info component=status_poller deposit_id=%s attempt=%d status=%s msg=\"deposit confirmed\"", depositID, attempt, status)
			return PollResult{Outcome: PollConfirmed, Status: status, Attempts: attempt}
		case PollDeclined:
			result := PollResult{Outcome: PollDeclined, Status: status, Attempts: attempt}
			if reason := resp.Data.FailureReason; reason != nil {
				result.FailureCode = reason.FailureCode
				result.FailureMessage = reason.FailureMessage
			}
			log.Printf("level=info component=status_poller deposit_id=%s attempt=%d status=%s failure_code=%s msg=\"deposit declined\"", depositID, attempt, status, result.FailureCode)
			return result
		}

		if attempt == p.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return PollResult{Outcome: PollErrored, Attempts: attempt, Err: ctx.Err()}
		case <-time.After(p.interval):
		}
	}

	log.Printf("level=warn component=status_poller deposit_id=%s attempts=%d msg=\"confirmation timed out\"", depositID, p.maxAttempts)
	return PollResult{Outcome: PollTimedOut, Attempts: p.maxAttempts}
}
