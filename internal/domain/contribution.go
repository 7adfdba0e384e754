/**
 * @description
 * This file defines the core domain models for contributions: the contribution
 * categories a donor can pick, the allocation breakdown derived from a
 * category and amount, and the persisted contribution record.
 *
 * @notes
 * - Amounts are float64 values in the contribution currency (XAF by default),
 *   always rounded to 2 decimal places at the point of computation. The
 *   allocation contract is defined in fractions of the amount, so minor-unit
 *   integers would force a second rounding layer without removing the first.
 * - AllocationBreakdown is a derived value: it is recomputed from
 *   (category, amount) and only ever stored alongside its source amount.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// ContributionCategory identifies which allocation rule applies to a contribution.
type ContributionCategory string

const (
	CategoryMission  ContributionCategory = "Mission"
	CategoryTraining ContributionCategory = "Training"
	CategoryOpen     ContributionCategory = "Open"
)

// Valid reports whether the category is one of the known allocation categories.
func (c ContributionCategory) Valid() bool {
	switch c {
	case CategoryMission, CategoryTraining, CategoryOpen:
		return true
	}
	return false
}

// AllocationBreakdown is the split of a contribution amount across the three
// association funds. Each bucket is rounded to 2 decimal places independently;
// the three buckets sum to the source amount within ±0.02.
type AllocationBreakdown struct {
	Mission     float64 `json:"mission"`
	Training    float64 `json:"training"`
	Functioning float64 `json:"functioning"`
}

// Total returns the sum of the three allocation buckets.
func (a AllocationBreakdown) Total() float64 {
	return a.Mission + a.Training + a.Functioning
}

// Contribution is the persisted record of a confirmed contribution payment.
// Written exactly once per successful payment attempt and never mutated by
// this service afterwards.
type Contribution struct {
	ID              uuid.UUID            `json:"id"`
	UserID          string               `json:"user_id"`
	Category        ContributionCategory `json:"category"`
	Amount          float64              `json:"amount"`
	Currency        string               `json:"currency"`
	PaymentProvider PaymentProvider      `json:"payment_provider"`
	PaymentStatus   PaymentStatus        `json:"payment_status"`
	TransactionID   string               `json:"transaction_id"`
	CreatedAt       time.Time            `json:"created_at"`
	Allocation      AllocationBreakdown  `json:"allocation"`
	UserInfo        UserInfo             `json:"user_info"`
}
