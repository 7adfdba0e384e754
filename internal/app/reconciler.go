/**
 * @description
 * The deposit-attempt reconciliation job. Attempts that ended ambiguously
 * (confirmation timed out, or the process died between initiation and a
 * terminal poll result) leave audit rows in "initiated" or "timed_out". This
 * job re-queries the gateway for those rows after a grace period and settles
 * them so support staff see each attempt's real fate.
 *
 * @notes
 * - The job only settles the audit trail. It never creates payment records
 *   retroactively: a late-confirmed charge is flagged as "confirmed_late"
 *   for manual reconciliation, because the user was already told to contact
 *   support and an automatic write here could race a manual refund.
 */

package app

import (
	"context"
	"log"
	"time"

	"github.com/nmdasso/donation-service/internal/domain"
	"github.com/nmdasso/donation-service/internal/store"
)

// Reconciler settles stale deposit-attempt audit rows against the gateway.
type Reconciler struct {
	repo    store.Repository
	querier StatusQuerier
	grace   time.Duration
	limit   int
}

// NewReconciler creates a reconciler. Attempts younger than grace are left
// alone so the job never races a still-running payment flow.
func NewReconciler(repo store.Repository, querier StatusQuerier, grace time.Duration, limit int) *Reconciler {
	if grace <= 0 {
		grace = 30 * time.Minute
	}
	if limit <= 0 {
		limit = 100
	}
	return &Reconciler{repo: repo, querier: querier, grace: grace, limit: limit}
}

// Run processes one reconciliation batch. Designed to be invoked from a cron
// schedule; errors are logged per attempt and never abort the batch.
func (r *Reconciler) Run(ctx context.Context) {
	olderThan := time.Now().UTC().Add(-r.grace)
	attempts, err := r.repo.ListUnsettledDepositAttempts(ctx, olderThan, r.limit)
	if err != nil {
		log.Printf("level=error component=reconciler msg=\"failed to list unsettled attempts\" err=%v", err)
		return
	}
	if len(attempts) == 0 {
		return
	}
	log.Printf("level=info component=reconciler msg=\"reconciling deposit attempts\" count=%d", len(attempts))

	for _, attempt := range attempts {
		status, reason := r.resolve(ctx, attempt)
		if err := r.repo.SettleDepositAttempt(ctx, attempt.ID, status, reason); err != nil {
			log.Printf("level=warn component=reconciler attempt_id=%s msg=\"failed to settle attempt\" err=%v", attempt.ID, err)
			continue
		}
		reconciledAttemptsTotal.WithLabelValues(status).Inc()
		if status == domain.AttemptConfirmedLate {
			log.Printf("level=warn component=reconciler deposit_id=%s txn=%s msg=\"late-confirmed deposit needs manual reconciliation\"", attempt.DepositID, attempt.TransactionRef)
		}
	}
}

// resolve queries the gateway once for the attempt's current status and maps
// it to a settled audit status.
func (r *Reconciler) resolve(ctx context.Context, attempt domain.DepositAttempt) (string, *string) {
	resp, err := r.querier.GetDepositStatus(ctx, attempt.DepositID)
	if err != nil {
		log.Printf("level=warn component=reconciler deposit_id=%s msg=\"status query failed\" err=%v", attempt.DepositID, err)
		return domain.AttemptUnresolved, strPtr("status query failed: " + err.Error())
	}

	switch classifyDepositStatus(resp.Data.Status) {
	case PollConfirmed:
		return domain.AttemptConfirmedLate, nil
	case PollDeclined:
		reason := resp.Data.Status
		if fr := resp.Data.FailureReason; fr != nil && fr.FailureCode != "" {
			reason = fr.FailureCode
		}
		return domain.AttemptDeclined, strPtr(reason)
	}
	// Still pending after the grace period: give up and hand it to support.
	return domain.AttemptUnresolved, strPtr("still pending after grace period, last status " + resp.Data.Status)
}
