/**
 * @description
 * This file contains the HTTP handlers for the donation-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as the
 * bridge between the web layer and the payment orchestration layer.
 *
 * @notes
 * - Flow failures surface as structured JSON carrying a machine-readable kind
 *   and a money_moved flag so the frontend never presents a post-charge
 *   failure as a retryable payment error.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain: For service logic, models, and the failure taxonomy.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/nmdasso/donation-service/internal/allocation"
	"github.com/nmdasso/donation-service/internal/app"
	"github.com/nmdasso/donation-service/internal/currency"
	"github.com/nmdasso/donation-service/internal/domain"
)

// PaymentHandlers holds the application service that handlers will use.
type PaymentHandlers struct {
	service *app.Service
}

// NewPaymentHandlers creates a new instance of PaymentHandlers.
func NewPaymentHandlers(service *app.Service) *PaymentHandlers {
	return &PaymentHandlers{service: service}
}

// paymentFlowResponse is sent back once a payment flow reaches a terminal
// successful state. It mirrors the structure the frontend payment modal reads.
type paymentFlowResponse struct {
	Status        string               `json:"status"`
	Message       string               `json:"message"`
	TransactionID string               `json:"transaction_id"`
	DepositID     string               `json:"deposit_id,omitempty"`
	Payment       *domain.Payment      `json:"payment,omitempty"`
	Member        *domain.Member       `json:"member,omitempty"`
	Contribution  *domain.Contribution `json:"contribution,omitempty"`
}

// flowErrorResponse is the structured body for a failed payment flow.
type flowErrorResponse struct {
	Status     string `json:"status"`
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	MoneyMoved bool   `json:"money_moved"`
}

// allocationPreviewResponse shows a donor how a contribution amount would be
// split before they commit to paying.
type allocationPreviewResponse struct {
	Category        domain.ContributionCategory `json:"category"`
	Amount          float64                     `json:"amount"`
	AmountFormatted string                      `json:"amount_formatted"`
	Allocation      domain.AllocationBreakdown  `json:"allocation"`
	Formatted       struct {
		Mission     string `json:"mission"`
		Training    string `json:"training"`
		Functioning string `json:"functioning"`
	} `json:"formatted"`
}

// MobileMoneyPaymentHandler handles requests to start a mobile-money payment.
// The call blocks until the flow reaches a terminal state, mirroring the
// synchronous UX of the payment modal.
func (h *PaymentHandlers) MobileMoneyPaymentHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.PaymentFlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=mobile_money outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	req.PaymentMethod = domain.MethodMobileMoney

	outcome, err := h.service.ProcessMobileMoneyPayment(r.Context(), req)
	if err != nil {
		h.writeFlowError(w, "mobile_money", err)
		return
	}

	log.Printf("level=info component=api endpoint=mobile_money outcome=confirmed flow=%s transaction_id=%s", req.FlowType, outcome.TransactionID)
	h.writeJSON(w, http.StatusOK, buildPaymentFlowResponse(outcome))
}

// WalletCompleteHandler handles the wallet provider's completion callback. The
// provider already collected the money, so this enters the flow at the
// record-keeping stage.
func (h *PaymentHandlers) WalletCompleteHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.WalletCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=wallet_complete outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	outcome, err := h.service.CompleteWalletPayment(r.Context(), req)
	if err != nil {
		h.writeFlowError(w, "wallet_complete", err)
		return
	}

	log.Printf("level=info component=api endpoint=wallet_complete outcome=confirmed flow=%s transaction_id=%s", req.FlowType, outcome.TransactionID)
	h.writeJSON(w, http.StatusOK, buildPaymentFlowResponse(outcome))
}

// WalletFailureHandler handles the wallet provider's error callback and maps
// the provider failure to a user-facing decline message.
func (h *PaymentHandlers) WalletFailureHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.WalletFailureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=wallet_failure outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	fe := h.service.FailWalletPayment(r.Context(), req)
	log.Printf("level=info component=api endpoint=wallet_failure outcome=recorded failure_code=%s", req.FailureCode)

	// The callback itself succeeded; the body carries the decline the
	// frontend shows the payer.
	h.writeJSON(w, http.StatusOK, flowErrorResponse{
		Status:     "failed",
		Kind:       string(fe.Kind),
		Message:    fe.Message,
		MoneyMoved: fe.Kind.MoneyMoved(),
	})
}

// AllocationPreviewHandler computes the fund split for a prospective
// contribution without touching any payment state.
func (h *PaymentHandlers) AllocationPreviewHandler(w http.ResponseWriter, r *http.Request) {
	category := domain.ContributionCategory(r.URL.Query().Get("category"))
	amountStr := r.URL.Query().Get("amount")

	amount, err := strconv.ParseFloat(amountStr, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid amount")
		return
	}

	breakdown, err := allocation.Allocate(category, amount)
	if err != nil {
		if errors.Is(err, allocation.ErrUnknownCategory) {
			h.writeError(w, http.StatusBadRequest, "Unknown contribution category")
			return
		}
		h.writeError(w, http.StatusBadRequest, "Amount must be greater than zero")
		return
	}

	resp := allocationPreviewResponse{
		Category:        category,
		Amount:          amount,
		AmountFormatted: currency.FormatDual(amount),
		Allocation:      breakdown,
	}
	resp.Formatted.Mission = currency.Format(breakdown.Mission, "XAF")
	resp.Formatted.Training = currency.Format(breakdown.Training, "XAF")
	resp.Formatted.Functioning = currency.Format(breakdown.Functioning, "XAF")

	h.writeJSON(w, http.StatusOK, resp)
}

// ListPaymentsHandler returns persisted payments, newest first.
func (h *PaymentHandlers) ListPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	payments, err := h.service.ListPayments(r.Context(), parseListOptions(r))
	if err != nil {
		log.Printf("level=error component=api endpoint=list_payments admin=%s msg=\"failed to list payments\" err=%v", adminSubject(r), err)
		h.writeError(w, http.StatusInternalServerError, "Unable to list payments")
		return
	}
	log.Printf("level=info component=api endpoint=list_payments admin=%s count=%d", adminSubject(r), len(payments))
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"payments": payments})
}

// ListContributionsHandler returns recorded contributions, newest first.
func (h *PaymentHandlers) ListContributionsHandler(w http.ResponseWriter, r *http.Request) {
	contributions, err := h.service.ListContributions(r.Context(), parseListOptions(r))
	if err != nil {
		log.Printf("level=error component=api endpoint=list_contributions admin=%s msg=\"failed to list contributions\" err=%v", adminSubject(r), err)
		h.writeError(w, http.StatusInternalServerError, "Unable to list contributions")
		return
	}
	log.Printf("level=info component=api endpoint=list_contributions admin=%s count=%d", adminSubject(r), len(contributions))
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"contributions": contributions})
}

// ListMembersHandler returns provisioned members, newest first.
func (h *PaymentHandlers) ListMembersHandler(w http.ResponseWriter, r *http.Request) {
	members, err := h.service.ListMembers(r.Context(), parseListOptions(r))
	if err != nil {
		log.Printf("level=error component=api endpoint=list_members admin=%s msg=\"failed to list members\" err=%v", adminSubject(r), err)
		h.writeError(w, http.StatusInternalServerError, "Unable to list members")
		return
	}
	log.Printf("level=info component=api endpoint=list_members admin=%s count=%d", adminSubject(r), len(members))
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"members": members})
}

// adminSubject reads the authenticated admin's subject for audit log lines.
func adminSubject(r *http.Request) string {
	if sub, ok := GetAdminUserID(r.Context()); ok {
		return sub
	}
	return "unknown"
}

func buildPaymentFlowResponse(outcome *domain.PaymentOutcome) paymentFlowResponse {
	return paymentFlowResponse{
		Status:        "confirmed",
		Message:       "Payment confirmed",
		TransactionID: outcome.TransactionID,
		DepositID:     outcome.DepositID,
		Payment:       outcome.Payment,
		Member:        outcome.Member,
		Contribution:  outcome.Contribution,
	}
}

// writeFlowError maps the flow failure taxonomy onto HTTP statuses and writes
// the structured error body.
func (h *PaymentHandlers) writeFlowError(w http.ResponseWriter, endpoint string, err error) {
	if errors.Is(err, app.ErrRateLimited) {
		log.Printf("level=warn component=api endpoint=%s outcome=reject reason=rate_limited", endpoint)
		h.writeError(w, http.StatusTooManyRequests, "Too many payment attempts. Please wait a moment and try again.")
		return
	}

	fe, ok := app.AsFlowError(err)
	if !ok {
		log.Printf("level=error component=api endpoint=%s msg=\"unexpected error\" err=%v", endpoint, err)
		h.writeError(w, http.StatusInternalServerError, "An unexpected error occurred")
		return
	}

	status := http.StatusInternalServerError
	switch fe.Kind {
	case app.KindValidation:
		status = http.StatusBadRequest
	case app.KindInitiationFailed:
		status = http.StatusBadGateway
	case app.KindPaymentDeclined:
		status = http.StatusPaymentRequired
	case app.KindConfirmationTimeout:
		status = http.StatusGatewayTimeout
	}

	log.Printf("level=warn component=api endpoint=%s outcome=failed kind=%s money_moved=%t", endpoint, fe.Kind, fe.Kind.MoneyMoved())
	h.writeJSON(w, status, flowErrorResponse{
		Status:     "failed",
		Kind:       string(fe.Kind),
		Message:    fe.Message,
		MoneyMoved: fe.Kind.MoneyMoved(),
	})
}

func parseListOptions(r *http.Request) domain.ListOptions {
	// Negative values are treated like an absent parameter.
	opts := domain.ListOptions{}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.Offset = n
		}
	}
	return opts
}

// writeJSON is a helper for writing JSON responses.
func (h *PaymentHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *PaymentHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
