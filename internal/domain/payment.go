/**
 * @description
 * This file defines the payment-side domain models: persisted payment records,
 * the transient deposit-attempt audit entries, and the DTOs that carry a
 * validated payment flow request into the orchestrator.
 *
 * @notes
 * - A Payment row is only written after the external deposit reached a
 *   terminal successful state; its status is write-once "confirmed". Failed
 *   attempts never become Payment rows, they only appear in the
 *   deposit_attempts audit log.
 * - Deposit ids are caller-generated and never reused: every attempt, even a
 *   retry of a failed payment, gets a fresh id.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// FlowType distinguishes the two payment flows the orchestrator drives.
type FlowType string

const (
	FlowMembership   FlowType = "membership"
	FlowContribution FlowType = "contribution"
)

// Valid reports whether the flow type is one of the supported flows.
func (f FlowType) Valid() bool {
	return f == FlowMembership || f == FlowContribution
}

// PaymentMethod selects how the payer settles: a mobile-money deposit driven
// by this service, or an externally driven wallet-provider checkout.
type PaymentMethod string

const (
	MethodMobileMoney PaymentMethod = "mobile_money"
	MethodWallet      PaymentMethod = "wallet"
)

// PaymentProvider names the external provider a payment settled through.
type PaymentProvider string

const (
	ProviderPawaPay PaymentProvider = "pawapay"
	ProviderPayPal  PaymentProvider = "paypal"
)

// PaymentStatus is the lifecycle state of a persisted payment record.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentFailed    PaymentStatus = "failed"
)

// UserInfo carries the payer identity captured on the payment form.
type UserInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Payment is the persisted outcome of one confirmed payment attempt.
type Payment struct {
	ID            uuid.UUID       `json:"id"`
	UserID        string          `json:"user_id"`
	Amount        float64         `json:"amount"`
	Currency      string          `json:"currency"`
	Provider      PaymentProvider `json:"provider"`
	Status        PaymentStatus   `json:"status"`
	TransactionID string          `json:"transaction_id"`
	PhoneNumber   *string         `json:"phone_number,omitempty"`
	Email         *string         `json:"email,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UserInfo      UserInfo        `json:"user_info"`
}

// Deposit-attempt audit statuses. The audit log is append-per-attempt and
// exists so support staff can reconcile ambiguous outcomes; it never stands
// in for a Payment row.
const (
	AttemptInitiated     = "initiated"
	AttemptConfirmed     = "confirmed"
	AttemptDeclined      = "declined"
	AttemptTimedOut      = "timed_out"
	AttemptConfirmedLate = "confirmed_late"
	AttemptUnresolved    = "unresolved"
)

// DepositAttempt is one orchestrator attempt against the mobile-money
// gateway, tracked from initiation to a settled audit status.
type DepositAttempt struct {
	ID             uuid.UUID `json:"id"`
	DepositID      string    `json:"deposit_id"`
	TransactionRef string    `json:"transaction_ref"`
	FlowType       FlowType  `json:"flow_type"`
	Amount         float64   `json:"amount"`
	Currency       string    `json:"currency"`
	PhoneNumber    string    `json:"phone_number"`
	Provider       string    `json:"provider"`
	Status         string    `json:"status"`
	FailureReason  *string   `json:"failure_reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PaymentFlowRequest is the DTO for a user-initiated "pay" action. The API
// layer validates transport concerns (JSON shape); field-level business
// validation happens in the orchestrator's Validating step.
type PaymentFlowRequest struct {
	FlowType       FlowType             `json:"flow_type"`
	Amount         float64              `json:"amount"`
	Currency       string               `json:"currency"`
	Category       ContributionCategory `json:"category,omitempty"`
	MembershipType MembershipType       `json:"membership_type,omitempty"`
	PaymentMethod  PaymentMethod        `json:"payment_method"`
	PhoneNumber    string               `json:"phone_number,omitempty"`
	MobileProvider string               `json:"mobile_provider,omitempty"`
	CreateAccount  bool                 `json:"create_account,omitempty"`
	UserInfo       UserInfo             `json:"user_info"`
}

// WalletCompletionRequest is the DTO for the wallet provider's completion
// callback. The provider already collected the money; this request enters
// the state machine at the Persisting step.
type WalletCompletionRequest struct {
	FlowType       FlowType             `json:"flow_type"`
	Amount         float64              `json:"amount"`
	Currency       string               `json:"currency"`
	Category       ContributionCategory `json:"category,omitempty"`
	MembershipType MembershipType       `json:"membership_type,omitempty"`
	CreateAccount  bool                 `json:"create_account,omitempty"`
	ProviderTxID   string               `json:"provider_tx_id"`
	UserInfo       UserInfo             `json:"user_info"`
}

// WalletFailureRequest is the DTO for the wallet provider's error callback.
type WalletFailureRequest struct {
	FailureCode    string `json:"failure_code,omitempty"`
	FailureMessage string `json:"failure_message,omitempty"`
}

// PaymentOutcome is what the orchestrator returns when a flow reaches the
// Succeeded state.
type PaymentOutcome struct {
	TransactionID string        `json:"transaction_id"`
	DepositID     string        `json:"deposit_id,omitempty"`
	Payment       *Payment      `json:"payment"`
	Member        *Member       `json:"member,omitempty"`
	Contribution  *Contribution `json:"contribution,omitempty"`
}

// ListOptions carries paging parameters for the admin listing endpoints.
type ListOptions struct {
	Limit  int
	Offset int
}
