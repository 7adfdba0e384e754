/**
 * @description
 * The allocation engine: a pure computation that partitions a contribution
 * amount into the association's three funds according to the chosen category.
 *
 * Mission:  75% mission, 25% functioning
 * Training: 90% training, 10% functioning
 * Open:     30% mission, 45% training, 25% functioning
 *
 * @notes
 * - Each bucket is rounded to 2 decimal places independently with
 *   round-half-away-from-zero (math.Round). No remainder redistribution is
 *   performed, so the rounded buckets may drift up to ±0.02 from the source
 *   amount. That tolerance is part of the contract, not an accident.
 */

package allocation

import (
	"errors"
	"math"

	"github.com/nmdasso/donation-service/internal/domain"
)

// ErrInvalidAmount is returned when the contribution amount is zero or negative.
var ErrInvalidAmount = errors.New("contribution amount must be greater than zero")

// ErrUnknownCategory is returned when the category is not one of the known
// allocation categories.
var ErrUnknownCategory = errors.New("unknown contribution category")

// Membership pricing in the reference currency (XAF).
const (
	RegistrationFeeXAF = 15000
	VotingFeeXAF       = 65000

	// MemberNumberThresholdXAF is the minimum confirmed amount at which a
	// member number is assigned during provisioning.
	MemberNumberThresholdXAF = 15000
)

// Allocate computes the fund split for a contribution amount under the given
// category.
func Allocate(category domain.ContributionCategory, amount float64) (domain.AllocationBreakdown, error) {
	if amount <= 0 {
		return domain.AllocationBreakdown{}, ErrInvalidAmount
	}

	var mission, training, functioning float64
	switch category {
	case domain.CategoryMission:
		mission = amount * 0.75
		functioning = amount * 0.25
	case domain.CategoryTraining:
		training = amount * 0.90
		functioning = amount * 0.10
	case domain.CategoryOpen:
		mission = amount * 0.30
		training = amount * 0.45
		functioning = amount * 0.25
	default:
		return domain.AllocationBreakdown{}, ErrUnknownCategory
	}

	return domain.AllocationBreakdown{
		Mission:     roundCents(mission),
		Training:    roundCents(training),
		Functioning: roundCents(functioning),
	}, nil
}

// roundCents rounds to 2 decimal places, half away from zero.
func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
