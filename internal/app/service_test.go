package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nmdasso/donation-service/internal/domain"
	"github.com/nmdasso/donation-service/internal/store"
	"github.com/nmdasso/donation-service/pkg/authclient"
	"github.com/nmdasso/donation-service/pkg/pawapay"
)

type gatewayStub struct {
	acceptStatus string
	err          error
	depositIDs   []string
}

func (g *gatewayStub) CreateDeposit(ctx context.Context, req pawapay.DepositRequest) (*pawapay.DepositResponse, error) {
	g.depositIDs = append(g.depositIDs, req.DepositID)
	if g.err != nil {
		return nil, g.err
	}
	status := g.acceptStatus
	if status == "" {
		status = pawapay.StatusAccepted
	}
	return &pawapay.DepositResponse{DepositID: req.DepositID, Status: status}, nil
}

type provisionerStub struct {
	calls []authclient.CreateMemberAccountRequest
	err   error
}

func (p *provisionerStub) CreateMemberAccount(ctx context.Context, req authclient.CreateMemberAccountRequest) (*authclient.CreateMemberAccountResponse, error) {
	p.calls = append(p.calls, req)
	if p.err != nil {
		return nil, p.err
	}
	return &authclient.CreateMemberAccountResponse{UserID: "user-xyz"}, nil
}

// failingPaymentRepo wraps the in-memory repository and fails payment writes.
type failingPaymentRepo struct {
	*store.MemoryRepository
}

func (r *failingPaymentRepo) CreatePayment(ctx context.Context, payment *domain.Payment) error {
	return errors.New("database unavailable")
}

func newTestService(repo store.Repository, gateway Gateway, querier StatusQuerier, provisioner Provisioner) *Service {
	return NewService(repo, gateway, NewStatusPoller(querier, time.Millisecond, 3), provisioner, nil)
}

func mobileMoneyRequest(flow domain.FlowType) domain.PaymentFlowRequest {
	req := domain.PaymentFlowRequest{
		FlowType:       flow,
		Amount:         20000,
		PaymentMethod:  domain.MethodMobileMoney,
		PhoneNumber:    "+237 650 000 001",
		MobileProvider: "MTN_MOMO_CMR",
		UserInfo:       domain.UserInfo{Name: "Ada Bell", Email: "ada@example.com"},
	}
	if flow == domain.FlowContribution {
		req.Category = domain.CategoryMission
	} else {
		req.MembershipType = domain.MembershipNonVoting
	}
	return req
}

func TestProcessMobileMoneyPayment_ContributionHappyPath(t *testing.T) {
	repo := store.NewMemoryRepository()
	gateway := &gatewayStub{}
	querier := &querierStub{statuses: []string{"COMPLETED"}}
	provisioner := &provisionerStub{}
	svc := newTestService(repo, gateway, querier, provisioner)

	outcome, err := svc.ProcessMobileMoneyPayment(context.Background(), mobileMoneyRequest(domain.FlowContribution))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	if outcome.Payment == nil || outcome.Payment.Status != domain.PaymentConfirmed {
		t.Fatalf("expected a confirmed payment record, got %+v", outcome.Payment)
	}
	if outcome.Contribution == nil {
		t.Fatal("expected a contribution record for the contribution flow")
	}
	if outcome.Contribution.Allocation.Mission != 15000 || outcome.Contribution.Allocation.Functioning != 5000 {
		t.Fatalf("unexpected allocation for Mission/20000: %+v", outcome.Contribution.Allocation)
	}
	if outcome.Member != nil {
		t.Fatal("contribution without opt-in must not provision a member")
	}
	if len(provisioner.calls) != 0 {
		t.Fatalf("provisioning must be skipped without opt-in, got %d calls", len(provisioner.calls))
	}

	payments, _ := repo.ListPayments(context.Background(), domain.ListOptions{})
	if len(payments) != 1 {
		t.Fatalf("expected exactly one persisted payment, got %d", len(payments))
	}
}

func TestProcessMobileMoneyPayment_ValidationFailureMakesNoExternalCall(t *testing.T) {
	repo := store.NewMemoryRepository()
	gateway := &gatewayStub{}
	svc := newTestService(repo, gateway, &querierStub{}, &provisionerStub{})

	req := mobileMoneyRequest(domain.FlowContribution)
	req.PhoneNumber = "1234"

	_, err := svc.ProcessMobileMoneyPayment(context.Background(), req)
	fe, ok := AsFlowError(err)
	if !ok || fe.Kind != KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(gateway.depositIDs) != 0 {
		t.Fatal("validation failure must not reach the gateway")
	}
}

func TestProcessMobileMoneyPayment_NonAcceptedStatusIsInitiationFailed(t *testing.T) {
	repo := store.NewMemoryRepository()
	gateway := &gatewayStub{acceptStatus: "REJECTED"}
	querier := &querierStub{}
	svc := newTestService(repo, gateway, querier, &provisionerStub{})

	_, err := svc.ProcessMobileMoneyPayment(context.Background(), mobileMoneyRequest(domain.FlowContribution))
	fe, ok := AsFlowError(err)
	if !ok || fe.Kind != KindInitiationFailed {
		t.Fatalf("expected initiation failure for non-ACCEPTED status, got %v", err)
	}
	if querier.calls != 0 {
		t.Fatal("polling must not start when initiation was not accepted")
	}
}

func TestProcessMobileMoneyPayment_DeclinedNeverPersistsPayment(t *testing.T) {
	repo := store.NewMemoryRepository()
	querier := &querierStub{statuses: []string{"FAILED"}}
	svc := newTestService(repo, &gatewayStub{}, querier, &provisionerStub{})

	_, err := svc.ProcessMobileMoneyPayment(context.Background(), mobileMoneyRequest(domain.FlowContribution))
	fe, ok := AsFlowError(err)
	if !ok || fe.Kind != KindPaymentDeclined {
		t.Fatalf("expected payment declined, got %v", err)
	}
	if !strings.Contains(fe.Message, "Insufficient balance") {
		t.Fatalf("expected provider-specific decline message, got %q", fe.Message)
	}

	payments, _ := repo.ListPayments(context.Background(), domain.ListOptions{})
	if len(payments) != 0 {
		t.Fatal("declined payment must not be persisted")
	}
}

func TestProcessMobileMoneyPayment_TimeoutNeverPersistsPayment(t *testing.T) {
	repo := store.NewMemoryRepository()
	querier := &querierStub{} // always pending
	svc := newTestService(repo, &gatewayStub{}, querier, &provisionerStub{})

	_, err := svc.ProcessMobileMoneyPayment(context.Background(), mobileMoneyRequest(domain.FlowContribution))
	fe, ok := AsFlowError(err)
	if !ok || fe.Kind != KindConfirmationTimeout {
		t.Fatalf("expected confirmation timeout, got %v", err)
	}
	if !fe.Kind.MoneyMoved() {
		t.Fatal("confirmation timeout must be treated as money-possibly-moved")
	}

	payments, _ := repo.ListPayments(context.Background(), domain.ListOptions{})
	if len(payments) != 0 {
		t.Fatal("timed-out payment must not be persisted")
	}
}

func TestProcessMobileMoneyPayment_MembershipProvisionsMember(t *testing.T) {
	repo := store.NewMemoryRepository()
	querier := &querierStub{statuses: []string{"COMPLETED"}}
	provisioner := &provisionerStub{}
	svc := newTestService(repo, &gatewayStub{}, querier, provisioner)

	req := mobileMoneyRequest(domain.FlowMembership)
	req.MembershipType = domain.MembershipVoting
	req.Amount = 65000

	outcome, err := svc.ProcessMobileMoneyPayment(context.Background(), req)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	if len(provisioner.calls) != 1 {
		t.Fatalf("expected exactly one provisioning call, got %d", len(provisioner.calls))
	}
	if outcome.Member == nil {
		t.Fatal("expected a member record for the membership flow")
	}
	if outcome.Member.UserID != "user-xyz" {
		t.Fatalf("member must carry the provisioned account id, got %q", outcome.Member.UserID)
	}
	if outcome.Member.MemberNumber == nil {
		t.Fatal("expected a member number for an amount at or above the threshold")
	}
	if outcome.Member.VotingRightsDate == nil {
		t.Fatal("expected voting rights date for the voting tier")
	}
	if outcome.Contribution != nil {
		t.Fatal("membership flow must not record a contribution")
	}
}

func TestProcessMobileMoneyPayment_BelowThresholdGetsNoMemberNumber(t *testing.T) {
	repo := store.NewMemoryRepository()
	querier := &querierStub{statuses: []string{"COMPLETED"}}
	svc := newTestService(repo, &gatewayStub{}, querier, &provisionerStub{})

	req := mobileMoneyRequest(domain.FlowMembership)
	req.Amount = 10000

	outcome, err := svc.ProcessMobileMoneyPayment(context.Background(), req)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if outcome.Member.MemberNumber != nil {
		t.Fatalf("amount below threshold must not get a member number, got %q", *outcome.Member.MemberNumber)
	}
	if outcome.Member.VotingRightsDate != nil {
		t.Fatal("non-voting tier must not get a voting rights date")
	}
}

func TestProcessMobileMoneyPayment_ContributionOptInProvisionsAccount(t *testing.T) {
	repo := store.NewMemoryRepository()
	querier := &querierStub{statuses: []string{"COMPLETED"}}
	provisioner := &provisionerStub{}
	svc := newTestService(repo, &gatewayStub{}, querier, provisioner)

	req := mobileMoneyRequest(domain.FlowContribution)
	req.CreateAccount = true

	outcome, err := svc.ProcessMobileMoneyPayment(context.Background(), req)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(provisioner.calls) != 1 {
		t.Fatalf("opted-in contribution must provision, got %d calls", len(provisioner.calls))
	}
	if outcome.Member == nil || outcome.Member.MembershipType != domain.MembershipNonVoting {
		t.Fatalf("opted-in contributor must become a non-voting member, got %+v", outcome.Member)
	}
	if outcome.Contribution == nil {
		t.Fatal("opted-in contribution must still record the contribution")
	}
}

func TestProcessMobileMoneyPayment_ProvisioningFailureIsDistinctAndKeepsPayment(t *testing.T) {
	repo := store.NewMemoryRepository()
	querier := &querierStub{statuses: []string{"COMPLETED"}}
	provisioner := &provisionerStub{err: errors.New("auth service down")}
	svc := newTestService(repo, &gatewayStub{}, querier, provisioner)

	_, err := svc.ProcessMobileMoneyPayment(context.Background(), mobileMoneyRequest(domain.FlowMembership))
	fe, ok := AsFlowError(err)
	if !ok || fe.Kind != KindProvisioning {
		t.Fatalf("expected provisioning error, got %v", err)
	}
	if !fe.Kind.MoneyMoved() {
		t.Fatal("provisioning failure happens after the charge and must say so")
	}

	// The confirmed payment record must survive the provisioning failure.
	payments, _ := repo.ListPayments(context.Background(), domain.ListOptions{})
	if len(payments) != 1 {
		t.Fatalf("expected the confirmed payment to be persisted, got %d records", len(payments))
	}
}

func TestProcessMobileMoneyPayment_PersistenceFailureIsSurfacedDistinctly(t *testing.T) {
	repo := &failingPaymentRepo{store.NewMemoryRepository()}
	querier := &querierStub{statuses: []string{"COMPLETED"}}
	svc := newTestService(repo, &gatewayStub{}, querier, &provisionerStub{})

	_, err := svc.ProcessMobileMoneyPayment(context.Background(), mobileMoneyRequest(domain.FlowContribution))
	fe, ok := AsFlowError(err)
	if !ok || fe.Kind != KindPersistence {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if strings.Contains(strings.ToLower(fe.Message), "payment failed") {
		t.Fatalf("persistence failure wording must not imply the charge failed: %q", fe.Message)
	}
}

func TestProcessMobileMoneyPayment_RetryUsesFreshDepositID(t *testing.T) {
	repo := store.NewMemoryRepository()
	gateway := &gatewayStub{acceptStatus: "REJECTED"}
	svc := newTestService(repo, gateway, &querierStub{}, &provisionerStub{})

	req := mobileMoneyRequest(domain.FlowContribution)
	for i := 0; i < 2; i++ {
		if _, err := svc.ProcessMobileMoneyPayment(context.Background(), req); err == nil {
			t.Fatal("expected initiation failure")
		}
	}

	if len(gateway.depositIDs) != 2 {
		t.Fatalf("expected two deposit creations, got %d", len(gateway.depositIDs))
	}
	if gateway.depositIDs[0] == gateway.depositIDs[1] {
		t.Fatalf("a retry must never reuse a deposit id, got %q twice", gateway.depositIDs[0])
	}
}

func TestCompleteWalletPayment_EntersAtPersistingWithSameSemantics(t *testing.T) {
	repo := store.NewMemoryRepository()
	gateway := &gatewayStub{}
	provisioner := &provisionerStub{}
	svc := newTestService(repo, gateway, &querierStub{}, provisioner)

	outcome, err := svc.CompleteWalletPayment(context.Background(), domain.WalletCompletionRequest{
		FlowType:       domain.FlowMembership,
		Amount:         65000,
		MembershipType: domain.MembershipVoting,
		ProviderTxID:   "PAYPAL-123",
		UserInfo:       domain.UserInfo{Name: "Ada Bell", Email: "ada@example.com"},
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	if len(gateway.depositIDs) != 0 {
		t.Fatal("wallet completion must not touch the mobile-money gateway")
	}
	if outcome.Payment.Provider != domain.ProviderPayPal {
		t.Fatalf("expected paypal provider, got %s", outcome.Payment.Provider)
	}
	if outcome.Payment.TransactionID != "PAYPAL-123" {
		t.Fatalf("expected provider transaction id to be kept, got %q", outcome.Payment.TransactionID)
	}
	if outcome.Member == nil || outcome.Member.VotingRightsDate == nil {
		t.Fatal("wallet membership must provision with the same rules as mobile money")
	}
}

func TestCompleteWalletPayment_ReplayedCallbackIsIdempotent(t *testing.T) {
	repo := store.NewMemoryRepository()
	provisioner := &provisionerStub{}
	svc := newTestService(repo, &gatewayStub{}, &querierStub{}, provisioner)

	req := domain.WalletCompletionRequest{
		FlowType:       domain.FlowMembership,
		Amount:         65000,
		MembershipType: domain.MembershipVoting,
		ProviderTxID:   "PAYPAL-77",
		UserInfo:       domain.UserInfo{Name: "Ada Bell", Email: "ada@example.com"},
	}

	first, err := svc.CompleteWalletPayment(context.Background(), req)
	if err != nil {
		t.Fatalf("expected first delivery to succeed, got %v", err)
	}
	second, err := svc.CompleteWalletPayment(context.Background(), req)
	if err != nil {
		t.Fatalf("expected replayed delivery to succeed, got %v", err)
	}

	if second.Payment == nil || second.Payment.ID != first.Payment.ID {
		t.Fatal("replayed callback must answer with the payment persisted on first delivery")
	}
	payments, _ := repo.ListPayments(context.Background(), domain.ListOptions{})
	if len(payments) != 1 {
		t.Fatalf("expected exactly one persisted payment after a replay, got %d", len(payments))
	}
	members, _ := repo.ListMembers(context.Background(), domain.ListOptions{})
	if len(members) != 1 {
		t.Fatalf("expected the member to be provisioned exactly once, got %d", len(members))
	}
	if len(provisioner.calls) != 1 {
		t.Fatalf("expected one provisioning call across both deliveries, got %d", len(provisioner.calls))
	}
}

func TestFailWalletPayment_MapsProviderCodes(t *testing.T) {
	svc := newTestService(store.NewMemoryRepository(), &gatewayStub{}, &querierStub{}, &provisionerStub{})

	fe := svc.FailWalletPayment(context.Background(), domain.WalletFailureRequest{FailureCode: "USER_CANCELLED"})
	if fe.Kind != KindPaymentDeclined {
		t.Fatalf("expected declined kind, got %s", fe.Kind)
	}
	if !strings.Contains(fe.Message, "cancelled") {
		t.Fatalf("expected cancellation wording, got %q", fe.Message)
	}
}

type rateLimiterStub struct {
	count int
}

func (r *rateLimiterStub) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	r.count++
	return r.count, 30, nil
}

func TestProcessMobileMoneyPayment_RateLimitRejectsBeforeAnyAttempt(t *testing.T) {
	repo := store.NewMemoryRepository()
	gateway := &gatewayStub{}
	querier := &querierStub{statuses: []string{"COMPLETED"}}
	svc := newTestService(repo, gateway, querier, &provisionerStub{})
	svc.SetRateLimiter(&rateLimiterStub{}, 1)

	req := mobileMoneyRequest(domain.FlowContribution)
	if _, err := svc.ProcessMobileMoneyPayment(context.Background(), req); err != nil {
		t.Fatalf("first attempt should pass the limiter, got %v", err)
	}
	_, err := svc.ProcessMobileMoneyPayment(context.Background(), req)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limit rejection, got %v", err)
	}
	if len(gateway.depositIDs) != 1 {
		t.Fatalf("rate-limited request must not reach the gateway, got %d deposits", len(gateway.depositIDs))
	}
}

func TestDeclineMessage_FallsBackToSubstringsAndGeneric(t *testing.T) {
	if msg := declineMessage("", "payer balance too low"); !strings.Contains(msg, "Insufficient balance") {
		t.Fatalf("expected balance heuristic, got %q", msg)
	}
	if msg := declineMessage("SOMETHING_NEW", ""); msg != msgDeclinedGeneric {
		t.Fatalf("expected generic fallback, got %q", msg)
	}
}
