/**
 * @description
 * This file defines the failure taxonomy for the payment flow. Every failed
 * attempt surfaces as a FlowError carrying a machine-readable kind and a
 * user-facing message; the kinds where money has already moved
 * (ConfirmationTimeout, PersistenceError, ProvisioningError) carry wording
 * that never implies the payer was not charged.
 */

package app

import (
	"errors"
	"fmt"
	"strings"
)

// FailureKind classifies why a payment flow reached the Failed state.
type FailureKind string

const (
	KindValidation          FailureKind = "validation_error"
	KindInitiationFailed    FailureKind = "initiation_failed"
	KindPaymentDeclined     FailureKind = "payment_declined"
	KindConfirmationTimeout FailureKind = "confirmation_timeout"
	KindPersistence         FailureKind = "persistence_error"
	KindProvisioning        FailureKind = "provisioning_error"
)

// MoneyMoved reports whether this failure kind can occur after the payer has
// been (or may have been) charged. Callers must never present these kinds as
// retryable payment errors.
func (k FailureKind) MoneyMoved() bool {
	switch k {
	case KindConfirmationTimeout, KindPersistence, KindProvisioning:
		return true
	}
	return false
}

// FlowError is a failed payment flow outcome.
type FlowError struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (e *FlowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *FlowError) Unwrap() error { return e.Err }

func flowErr(kind FailureKind, message string, err error) *FlowError {
	return &FlowError{Kind: kind, Message: message, Err: err}
}

// AsFlowError unwraps a FlowError from an error chain.
func AsFlowError(err error) (*FlowError, bool) {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// ErrRateLimited is returned when a payer exceeds the payment initiation rate
// limit. It is a transport-level rejection, not part of the flow taxonomy: no
// attempt was started.
var ErrRateLimited = errors.New("payment rate limit exceeded")

// Fixed user-facing messages for the kinds where money has moved. Wording is
// deliberate: never "payment failed" once the charge may have happened.
const (
	msgConfirmationTimeout = "We could not confirm your payment in time. Please check your mobile money account before retrying: if you were charged, do not pay again and contact support with your transaction reference."
	msgPersistenceFailed   = "Your payment was received, but we could not record it on our side. Please contact support with your transaction reference; do not pay again."
	msgProvisioningFailed  = "Your payment was received, but we could not finish setting up your account. Please contact support with your transaction reference; do not pay again."
	msgInitiationFailed    = "We could not start your payment with the mobile money provider. You have not been charged; please try again."
	msgDeclinedGeneric     = "Payment failed. Please try again."
)

// declineMessage maps a provider failure code (or, failing that, substrings of
// the raw provider message) to a human-readable explanation.
func declineMessage(failureCode, failureMessage string) string {
	switch failureCode {
	case "INSUFFICIENT_BALANCE":
		return "Insufficient balance in your mobile money account. Please top up and try again."
	case "TRANSACTION_LIMIT_EXCEEDED":
		return "Transaction amount exceeds your account limit. Please try a smaller amount or contact your mobile provider."
	case "INVALID_ACCOUNT":
		return "Invalid phone number or mobile money account. Please check your number and try again."
	case "NETWORK_ERROR", "TIMEOUT":
		return "Network error. Please check your connection and try again."
	case "USER_CANCELLED":
		return "Payment was cancelled. Please try again if you wish to complete the payment."
	case "SERVICE_UNAVAILABLE":
		return "Mobile money service is temporarily unavailable. Please try again later."
	}

	lower := strings.ToLower(failureMessage)
	switch {
	case strings.Contains(lower, "insufficient") || strings.Contains(lower, "balance"):
		return "Insufficient balance in your mobile money account. Please top up and try again."
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "network"):
		return "Network error. Please check your connection and try again."
	case strings.Contains(lower, "invalid") || strings.Contains(lower, "number"):
		return "Invalid phone number. Please check your number and try again."
	}
	return msgDeclinedGeneric
}
