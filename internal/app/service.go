/**
 * @description
 * This file contains the core business logic for the donation-service. The
 * `Service` struct is the payment orchestrator: it drives a validated payment
 * request through initiation against the mobile-money gateway, status
 * polling, persistence of the confirmed payment, and conditional member
 * provisioning, producing a terminal success or a classified failure.
 *
 * State machine:
 *   Idle -> Validating -> Initiating -> Polling -> Persisting -> Provisioning -> Succeeded
 * with failure edges from every non-terminal state. The wallet-provider path
 * enters the same machine at Persisting via CompleteWalletPayment.
 *
 * @notes
 * - Every attempt gets a freshly generated deposit id and transaction
 *   reference; a retry after failure is a new attempt, never a resumption.
 * - A Payment row is written only after the deposit is terminally confirmed.
 * - Persistence and provisioning failures happen after money has moved and
 *   are surfaced with their own kinds so they are never presented as
 *   retryable payment errors.
 *
 * @dependencies
 * - context, fmt, log, strings, time: Standard Go libraries.
 * - github.com/google/uuid: For deposit and record identifiers.
 * - internal/allocation, internal/domain, internal/store: Core logic and data access.
 * - pkg/authclient, pkg/pawapay, pkg/rabbitmq: External collaborators.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nmdasso/donation-service/internal/allocation"
	"github.com/nmdasso/donation-service/internal/domain"
	"github.com/nmdasso/donation-service/internal/store"
	"github.com/nmdasso/donation-service/pkg/authclient"
	"github.com/nmdasso/donation-service/pkg/pawapay"
	"github.com/nmdasso/donation-service/pkg/rabbitmq"
)

// Gateway is the deposit-creation side of the mobile-money gateway.
type Gateway interface {
	CreateDeposit(ctx context.Context, req pawapay.DepositRequest) (*pawapay.DepositResponse, error)
}

// Provisioner creates member accounts in the auth subsystem.
type Provisioner interface {
	CreateMemberAccount(ctx context.Context, req authclient.CreateMemberAccountRequest) (*authclient.CreateMemberAccountResponse, error)
}

// RateLimiter bounds payment initiations per payer. A nil limiter disables
// rate limiting.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service provides the core business logic for payments.
type Service struct {
	repo          store.Repository
	gateway       Gateway
	poller        *StatusPoller
	provisioner   Provisioner
	eventProducer rabbitmq.Publisher

	rateLimiter     RateLimiter
	ratePerMinute   int
	defaultCurrency string
}

// NewService creates a new payment orchestration service.
func NewService(repo store.Repository, gateway Gateway, poller *StatusPoller, provisioner Provisioner, producer rabbitmq.Publisher) *Service {
	return &Service{
		repo:            repo,
		gateway:         gateway,
		poller:          poller,
		provisioner:     provisioner,
		eventProducer:   producer,
		defaultCurrency: "XAF",
	}
}

// SetRateLimiter enables distributed rate limiting on payment initiation.
func (s *Service) SetRateLimiter(limiter RateLimiter, perMinute int) {
	s.rateLimiter = limiter
	s.ratePerMinute = perMinute
}

// ProcessMobileMoneyPayment drives one mobile-money payment attempt from
// validation to a terminal state. The returned error, when non-nil, is always
// a *FlowError (or ErrRateLimited before any attempt starts).
func (s *Service) ProcessMobileMoneyPayment(ctx context.Context, req domain.PaymentFlowRequest) (*domain.PaymentOutcome, error) {
	// Validating
	if err := validateFlowRequest(req, true); err != nil {
		return nil, err
	}

	if s.rateLimiter != nil && s.ratePerMinute > 0 {
		count, _, err := s.rateLimiter.ConsumeRateLimit(ctx, "payment_initiation", normalizePhone(req.PhoneNumber), s.ratePerMinute, time.Minute)
		if err != nil {
			log.Printf("level=warn component=payment_service msg=\"rate limiter unavailable; allowing request\" err=%v", err)
		} else if count > s.ratePerMinute {
			return nil, ErrRateLimited
		}
	}

	currency := req.Currency
	if currency == "" {
		currency = s.defaultCurrency
	}

	// Fresh identifiers per attempt. A deposit id is never reused, even when
	// the user retries the same payment after a failure.
	depositID := uuid.NewString()
	transactionRef := generateTransactionRef()
	phone := normalizePhone(req.PhoneNumber)

	attempt := &domain.DepositAttempt{
		ID:             uuid.New(),
		DepositID:      depositID,
		TransactionRef: transactionRef,
		FlowType:       req.FlowType,
		Amount:         req.Amount,
		Currency:       currency,
		PhoneNumber:    phone,
		Provider:       req.MobileProvider,
		Status:         domain.AttemptInitiated,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	if err := s.repo.CreateDepositAttempt(ctx, attempt); err != nil {
		// The audit row is bookkeeping; do not block the payment on it.
		log.Printf("level=warn component=payment_service deposit_id=%s msg=\"failed to record deposit attempt\" err=%v", depositID, err)
	}

	// Initiating
	depositReq := pawapay.DepositRequest{
		DepositID: depositID,
		Payer: pawapay.Payer{
			Type:           "MMO",
			AccountDetails: pawapay.PayerAccountDetails{PhoneNumber: phone, Provider: req.MobileProvider},
		},
		ClientReferenceID: transactionRef,
		CustomerMessage:   string(req.FlowType),
		Amount:            formatAmount(req.Amount),
		Currency:          currency,
		Metadata: []map[string]string{{
			"orderId":   transactionRef,
			"flowType":  string(req.FlowType),
			"userName":  req.UserInfo.Name,
			"userEmail": req.UserInfo.Email,
		}},
	}

	depositResp, err := s.gateway.CreateDeposit(ctx, depositReq)
	if err != nil {
		s.settleAttempt(ctx, attempt.ID, domain.AttemptDeclined, strPtr("initiation failed: "+err.Error()))
		recordOutcome(string(req.FlowType), string(domain.MethodMobileMoney), string(KindInitiationFailed))
		return nil, flowErr(KindInitiationFailed, msgInitiationFailed, err)
	}
	if !depositResp.Accepted() {
		// Business-level rejection inside a 2xx response.
		s.settleAttempt(ctx, attempt.ID, domain.AttemptDeclined, strPtr("gateway status "+depositResp.Status))
		recordOutcome(string(req.FlowType), string(domain.MethodMobileMoney), string(KindInitiationFailed))
		return nil, flowErr(KindInitiationFailed, msgInitiationFailed, fmt.Errorf("gateway returned status %q", depositResp.Status))
	}

	// Polling
	pollResult := s.poller.Poll(ctx, depositID)
	pollAttempts.Observe(float64(pollResult.Attempts))

	switch pollResult.Outcome {
	case PollDeclined:
		reason := pollResult.FailureCode
		if reason == "" {
			reason = pollResult.Status
		}
		s.settleAttempt(ctx, attempt.ID, domain.AttemptDeclined, strPtr(reason))
		recordOutcome(string(req.FlowType), string(domain.MethodMobileMoney), string(KindPaymentDeclined))
		return nil, flowErr(KindPaymentDeclined, declineMessage(pollResult.FailureCode, pollResult.FailureMessage), nil)
	case PollTimedOut:
		s.settleAttempt(ctx, attempt.ID, domain.AttemptTimedOut, nil)
		recordOutcome(string(req.FlowType), string(domain.MethodMobileMoney), string(KindConfirmationTimeout))
		return nil, flowErr(KindConfirmationTimeout, msgConfirmationTimeout, nil)
	case PollErrored:
		s.settleAttempt(ctx, attempt.ID, domain.AttemptTimedOut, strPtr("status query failed"))
		recordOutcome(string(req.FlowType), string(domain.MethodMobileMoney), string(KindConfirmationTimeout))
		return nil, flowErr(KindConfirmationTimeout, msgConfirmationTimeout, pollResult.Err)
	}

	s.settleAttempt(ctx, attempt.ID, domain.AttemptConfirmed, nil)

	// Persisting / Provisioning
	outcome, err := s.finalizeConfirmedPayment(ctx, confirmedPayment{
		flowType:       req.FlowType,
		amount:         req.Amount,
		currency:       currency,
		provider:       domain.ProviderPawaPay,
		method:         domain.MethodMobileMoney,
		transactionRef: transactionRef,
		depositID:      depositID,
		phoneNumber:    &phone,
		category:       req.Category,
		membershipType: req.MembershipType,
		createAccount:  req.CreateAccount,
		userInfo:       req.UserInfo,
	})
	if err != nil {
		return nil, err
	}
	recordOutcome(string(req.FlowType), string(domain.MethodMobileMoney), "succeeded")
	return outcome, nil
}

// CompleteWalletPayment is the second entry point into the state machine: the
// wallet provider already collected the money, so the flow enters directly at
// Persisting and shares all semantics from there on.
func (s *Service) CompleteWalletPayment(ctx context.Context, req domain.WalletCompletionRequest) (*domain.PaymentOutcome, error) {
	flowReq := domain.PaymentFlowRequest{
		FlowType:       req.FlowType,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Category:       req.Category,
		MembershipType: req.MembershipType,
		PaymentMethod:  domain.MethodWallet,
		CreateAccount:  req.CreateAccount,
		UserInfo:       req.UserInfo,
	}
	if err := validateFlowRequest(flowReq, false); err != nil {
		return nil, err
	}

	currency := req.Currency
	if currency == "" {
		currency = s.defaultCurrency
	}
	transactionRef := req.ProviderTxID
	if transactionRef == "" {
		transactionRef = generateTransactionRef()
	}

	outcome, err := s.finalizeConfirmedPayment(ctx, confirmedPayment{
		flowType:       req.FlowType,
		amount:         req.Amount,
		currency:       currency,
		provider:       domain.ProviderPayPal,
		method:         domain.MethodWallet,
		transactionRef: transactionRef,
		category:       req.Category,
		membershipType: req.MembershipType,
		createAccount:  req.CreateAccount,
		userInfo:       req.UserInfo,
	})
	if err != nil {
		return nil, err
	}
	recordOutcome(string(req.FlowType), string(domain.MethodWallet), "succeeded")
	return outcome, nil
}

// FailWalletPayment maps the wallet provider's error callback onto the
// declined taxonomy. No money moved; the caller renders the message and the
// user may retry as a brand-new attempt.
func (s *Service) FailWalletPayment(ctx context.Context, req domain.WalletFailureRequest) *FlowError {
	recordOutcome("wallet_callback", string(domain.MethodWallet), string(KindPaymentDeclined))
	return flowErr(KindPaymentDeclined, declineMessage(req.FailureCode, req.FailureMessage), nil)
}

// confirmedPayment carries everything the Persisting and Provisioning steps
// need once a payment is externally confirmed.
type confirmedPayment struct {
	flowType       domain.FlowType
	amount         float64
	currency       string
	provider       domain.PaymentProvider
	method         domain.PaymentMethod
	transactionRef string
	depositID      string
	phoneNumber    *string
	category       domain.ContributionCategory
	membershipType domain.MembershipType
	createAccount  bool
	userInfo       domain.UserInfo
}

// finalizeConfirmedPayment runs Persisting and (conditionally) Provisioning.
// Money has moved before this function is entered: every failure path here
// must surface as a support case, never as a retryable payment error.
func (s *Service) finalizeConfirmedPayment(ctx context.Context, cp confirmedPayment) (*domain.PaymentOutcome, error) {
	userID := "guest-" + strings.ToLower(strings.TrimSpace(cp.userInfo.Email))

	provisioningRequired := cp.flowType == domain.FlowMembership ||
		(cp.flowType == domain.FlowContribution && cp.createAccount)

	payment := &domain.Payment{
		ID:            uuid.New(),
		UserID:        userID,
		Amount:        cp.amount,
		Currency:      cp.currency,
		Provider:      cp.provider,
		Status:        domain.PaymentConfirmed,
		TransactionID: cp.transactionRef,
		PhoneNumber:   cp.phoneNumber,
		Email:         strPtr(cp.userInfo.Email),
		CreatedAt:     time.Now().UTC(),
		UserInfo:      cp.userInfo,
	}
	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		if errors.Is(err, store.ErrDuplicateTransaction) {
			// A replayed wallet callback carries the same provider
			// transaction id. The first delivery already ran persistence and
			// provisioning, so answer idempotently with the existing record.
			existing, findErr := s.repo.FindPaymentByTransactionID(ctx, cp.transactionRef)
			if findErr == nil {
				log.Printf("level=info component=payment_service txn=%s msg=\"duplicate transaction; returning existing payment\"", cp.transactionRef)
				return &domain.PaymentOutcome{
					TransactionID: cp.transactionRef,
					DepositID:     cp.depositID,
					Payment:       existing,
				}, nil
			}
			log.Printf("level=error component=payment_service txn=%s msg=\"duplicate transaction but existing payment lookup failed\" err=%v", cp.transactionRef, findErr)
		}
		log.Printf("level=error component=payment_service txn=%s msg=\"payment record write failed after confirmed payment\" err=%v", cp.transactionRef, err)
		recordOutcome(string(cp.flowType), string(cp.method), string(KindPersistence))
		return nil, flowErr(KindPersistence, msgPersistenceFailed, err)
	}

	if s.eventProducer != nil {
		s.eventProducer.Publish(ctx, rabbitmq.EventsExchange, rabbitmq.RoutingPaymentConfirmed, rabbitmq.PaymentConfirmedEvent{
			PaymentID:     payment.ID,
			TransactionID: cp.transactionRef,
			FlowType:      string(cp.flowType),
			Amount:        cp.amount,
			Currency:      cp.currency,
			Provider:      string(cp.provider),
			PayerName:     cp.userInfo.Name,
			PayerEmail:    cp.userInfo.Email,
			Timestamp:     time.Now().UTC(),
		})
	}

	// Provisioning. The payment record is already durable at this point: a
	// failure here is an account-bookkeeping problem on top of a successful
	// payment, never a payment failure.
	var member *domain.Member
	if provisioningRequired {
		if s.provisioner == nil {
			log.Printf("level=error component=payment_service txn=%s msg=\"provisioning required but auth-service client not configured\"", cp.transactionRef)
			recordOutcome(string(cp.flowType), string(cp.method), string(KindProvisioning))
			return nil, flowErr(KindProvisioning, msgProvisioningFailed, nil)
		}
		created, err := s.provisioner.CreateMemberAccount(ctx, authclient.CreateMemberAccountRequest{
			Email:              cp.userInfo.Email,
			Name:               cp.userInfo.Name,
			MembershipType:     string(cp.membershipType),
			ContributionAmount: cp.amount,
		})
		if err != nil {
			log.Printf("level=error component=payment_service txn=%s msg=\"provisioning failed after confirmed payment\" err=%v", cp.transactionRef, err)
			recordOutcome(string(cp.flowType), string(cp.method), string(KindProvisioning))
			return nil, flowErr(KindProvisioning, msgProvisioningFailed, err)
		}
		userID = created.UserID

		member = buildMember(userID, cp)
		if err := s.repo.CreateMember(ctx, member); err != nil {
			log.Printf("level=error component=payment_service txn=%s msg=\"member record write failed after confirmed payment\" err=%v", cp.transactionRef, err)
			recordOutcome(string(cp.flowType), string(cp.method), string(KindProvisioning))
			return nil, flowErr(KindProvisioning, msgProvisioningFailed, err)
		}
		if s.eventProducer != nil {
			s.eventProducer.Publish(ctx, rabbitmq.EventsExchange, rabbitmq.RoutingMemberProvisioned, rabbitmq.MemberProvisionedEvent{
				MemberID:       member.ID,
				UserID:         userID,
				MembershipType: string(member.MembershipType),
				MemberNumber:   member.MemberNumber,
				Email:          cp.userInfo.Email,
				Timestamp:      time.Now().UTC(),
			})
		}
	}

	var contribution *domain.Contribution
	if cp.flowType == domain.FlowContribution {
		breakdown, err := allocation.Allocate(cp.category, cp.amount)
		if err != nil {
			// Unreachable for a validated request; classified as persistence
			// because the payment is confirmed but cannot be recorded.
			recordOutcome(string(cp.flowType), string(cp.method), string(KindPersistence))
			return nil, flowErr(KindPersistence, msgPersistenceFailed, err)
		}
		contribution = &domain.Contribution{
			ID:              uuid.New(),
			UserID:          userID,
			Category:        cp.category,
			Amount:          cp.amount,
			Currency:        cp.currency,
			PaymentProvider: cp.provider,
			PaymentStatus:   domain.PaymentConfirmed,
			TransactionID:   cp.transactionRef,
			CreatedAt:       time.Now().UTC(),
			Allocation:      breakdown,
			UserInfo:        cp.userInfo,
		}
		if err := s.repo.CreateContribution(ctx, contribution); err != nil {
			log.Printf("level=error component=payment_service txn=%s msg=\"contribution record write failed after confirmed payment\" err=%v", cp.transactionRef, err)
			recordOutcome(string(cp.flowType), string(cp.method), string(KindPersistence))
			return nil, flowErr(KindPersistence, msgPersistenceFailed, err)
		}
		if s.eventProducer != nil {
			s.eventProducer.Publish(ctx, rabbitmq.EventsExchange, rabbitmq.RoutingContributionCreated, contribution)
		}
	}

	return &domain.PaymentOutcome{
		TransactionID: cp.transactionRef,
		DepositID:     cp.depositID,
		Payment:       payment,
		Member:        member,
		Contribution:  contribution,
	}, nil
}

// buildMember assembles the member record provisioned for a confirmed
// payment. The member number is assigned only when the amount meets the
// registration threshold; voting rights are stamped now, at provisioning
// time, and only for the voting tier.
func buildMember(userID string, cp confirmedPayment) *domain.Member {
	now := time.Now().UTC()

	var memberNumber *string
	if cp.amount >= allocation.MemberNumberThresholdXAF {
		memberNumber = strPtr(generateMemberNumber())
	}

	var votingRightsDate *time.Time
	if cp.membershipType == domain.MembershipVoting {
		votingRightsDate = &now
	}

	membershipType := cp.membershipType
	if membershipType == "" {
		// Contribution opt-in accounts start on the non-voting tier.
		membershipType = domain.MembershipNonVoting
	}

	return &domain.Member{
		ID:               uuid.New(),
		UserID:           userID,
		MemberNumber:     memberNumber,
		MembershipType:   membershipType,
		RegistrationDate: now,
		VotingRightsDate: votingRightsDate,
		Status:           domain.MemberActive,
		UserInfo:         cp.userInfo,
	}
}

// validateFlowRequest is the Validating state: field-level checks before any
// external call is made. requirePayerAccount is true for the mobile-money
// path, where the phone number and operator are charged directly.
func validateFlowRequest(req domain.PaymentFlowRequest, requirePayerAccount bool) error {
	if !req.FlowType.Valid() {
		return flowErr(KindValidation, "Unknown payment flow.", nil)
	}
	if req.Amount <= 0 {
		return flowErr(KindValidation, "Amount must be greater than zero.", nil)
	}
	if strings.TrimSpace(req.UserInfo.Name) == "" {
		return flowErr(KindValidation, "Name is required.", nil)
	}
	if _, err := mail.ParseAddress(req.UserInfo.Email); err != nil {
		return flowErr(KindValidation, "Please enter a valid email address.", nil)
	}

	switch req.FlowType {
	case domain.FlowContribution:
		if !req.Category.Valid() {
			return flowErr(KindValidation, "Please select a contribution category.", nil)
		}
	case domain.FlowMembership:
		if !req.MembershipType.Valid() {
			return flowErr(KindValidation, "Please select a membership type.", nil)
		}
	}

	if requirePayerAccount {
		if len(normalizePhone(req.PhoneNumber)) < 8 {
			return flowErr(KindValidation, "Phone number must be at least 8 digits.", nil)
		}
		if strings.TrimSpace(req.MobileProvider) == "" {
			return flowErr(KindValidation, "Please select a mobile provider.", nil)
		}
	}

	return nil
}

func (s *Service) settleAttempt(ctx context.Context, attemptID uuid.UUID, status string, reason *string) {
	if err := s.repo.SettleDepositAttempt(ctx, attemptID, status, reason); err != nil {
		log.Printf("level=warn component=payment_service attempt_id=%s msg=\"failed to settle deposit attempt\" status=%s err=%v", attemptID, status, err)
	}
}

// normalizePhone strips spaces and a leading "+": the gateway expects bare
// digits including the country code.
func normalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// generateTransactionRef builds the client reference attached to every
// attempt, unique per attempt like the deposit id.
func generateTransactionRef() string {
	return fmt.Sprintf("TXN-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// generateMemberNumber returns a random 8-digit member number.
func generateMemberNumber() string {
	return fmt.Sprintf("%d", rand.Intn(90000000)+10000000)
}

func formatAmount(amount float64) string {
	// Whole XAF amounts serialize without a decimal point; the gateway
	// rejects "15000.00" style values for zero-decimal currencies.
	if amount == float64(int64(amount)) {
		return fmt.Sprintf("%d", int64(amount))
	}
	return fmt.Sprintf("%.2f", amount)
}

func strPtr(s string) *string { return &s }

// ListPayments returns persisted payments for the admin listing endpoint.
func (s *Service) ListPayments(ctx context.Context, opts domain.ListOptions) ([]domain.Payment, error) {
	return s.repo.ListPayments(ctx, opts)
}

// ListContributions returns recorded contributions for the admin listing endpoint.
func (s *Service) ListContributions(ctx context.Context, opts domain.ListOptions) ([]domain.Contribution, error) {
	return s.repo.ListContributions(ctx, opts)
}

// ListMembers returns provisioned members for the admin listing endpoint.
func (s *Service) ListMembers(ctx context.Context, opts domain.ListOptions) ([]domain.Member, error) {
	return s.repo.ListMembers(ctx, opts)
}
