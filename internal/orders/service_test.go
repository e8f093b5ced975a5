package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gamecredit-platform/internal/apperr"
	"gamecredit-platform/internal/ledger"
	"gamecredit-platform/internal/referral"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type hookCall struct {
	clientID string
	amount   decimal.Decimal
}

type fakeHook struct {
	calls   []hookCall
	outcome referral.DepositOutcome
	err     error
}

func (h *fakeHook) OnDepositConfirmed(ctx context.Context, clientID string, amount decimal.Decimal) (referral.DepositOutcome, error) {
	h.calls = append(h.calls, hookCall{clientID, amount})
	if h.err != nil {
		return referral.DepositOutcome{}, h.err
	}
	out := h.outcome
	out.ClientID = clientID
	return out, nil
}

type published struct {
	event, owner string
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *fakePublisher) Publish(ctx context.Context, event, ownerID string, data any) {
	p.mu.Lock()
	p.events = append(p.events, published{event, ownerID})
	p.mu.Unlock()
}

func (p *fakePublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.event)
	}
	return out
}

type fakeAudit struct{ events []AuditEvent }

func (a *fakeAudit) LogOrderAction(ctx context.Context, e AuditEvent) error {
	a.events = append(a.events, e)
	return nil
}

type fixture struct {
	svc   *Service
	repo  *MemoryRepo
	hook  *fakeHook
	pub   *fakePublisher
	audit *fakeAudit
}

func newFixture(clients ...string) fixture {
	f := fixture{repo: NewMemoryRepo(clients...), hook: &fakeHook{}, pub: &fakePublisher{}, audit: &fakeAudit{}}
	f.svc = NewService(f.repo, f.hook, f.pub, f.audit)
	f.svc.clock = func() time.Time { return time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC) }
	return f
}

func (f fixture) fund(clientID, amount string) {
	f.repo.Seed(ledger.Transaction{
		ID: "seed-" + clientID + amount, ClientID: clientID, Type: ledger.TypeIn, Amount: dec(amount),
		WalletType: ledger.WalletReal, Status: ledger.StatusConfirmed, Source: ledger.SourceOrder,
	})
}

func TestCreateOrder_InitialStatesAndLedgerTypes(t *testing.T) {
	f := newFixture("c1")
	f.fund("c1", "100")
	f.repo.Seed(ledger.Transaction{ID: "b1", ClientID: "c1", Type: ledger.TypeBonusEarn, Amount: dec("10"),
		WalletType: ledger.WalletBonus, Status: ledger.StatusConfirmed})
	ctx := context.Background()

	cases := []struct {
		req    CreateRequest
		status Status
		typ    ledger.Type
	}{
		{CreateRequest{Type: TypeCreate, Amount: dec("20")}, StatusPendingConfirmation, ledger.TypeIn},
		{CreateRequest{Type: TypeCreate, Amount: dec("20"), RequireScreenshot: true}, StatusPendingScreenshot, ledger.TypeIn},
		{CreateRequest{Type: TypeRedeem, Amount: dec("10")}, StatusPendingPayout, ledger.TypeOut},
		{CreateRequest{Type: TypeLoad, Amount: dec("10")}, StatusPendingConfirmation, ledger.TypeRealLoad},
		{CreateRequest{Type: TypeLoad, Amount: dec("5"), WalletType: ledger.WalletBonus}, StatusPendingConfirmation, ledger.TypeBonusLoad},
		{CreateRequest{Type: TypeCreate, Amount: dec("5"), Draft: true}, StatusDraft, ledger.TypeIn},
	}
	for i, tc := range cases {
		tc.req.ClientID = "c1"
		v, err := f.svc.CreateOrder(ctx, tc.req)
		if err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		if v.Order.Status != tc.status || v.Transaction.Type != tc.typ {
			t.Fatalf("case %d: got status %s type %s", i, v.Order.Status, v.Transaction.Type)
		}
		if v.Transaction.Status != ledger.StatusPending || v.Transaction.OrderID == nil || *v.Transaction.OrderID != v.Order.ID {
			t.Fatalf("case %d: ledger row not paired: %+v", i, v.Transaction)
		}
	}
	// drafts publish nothing until submitted
	if got := len(f.pub.names()); got != 5 {
		t.Fatalf("expected 5 order.created events, got %d", got)
	}
}

func TestCreateOrder_Validation(t *testing.T) {
	f := newFixture("c1")
	ctx := context.Background()
	bad := []CreateRequest{
		{ClientID: "c1", Type: "gift", Amount: dec("1")},
		{ClientID: "c1", Type: TypeCreate, Amount: dec("0")},
		{ClientID: "c1", Type: TypeCreate, Amount: dec("-3")},
		{ClientID: "c1", Type: TypeCreate, Amount: dec("1.005")},
		{ClientID: "c1", Type: TypeCreate, Amount: dec("1"), WalletType: ledger.WalletBonus},
		{ClientID: "", Type: TypeCreate, Amount: dec("1")},
	}
	for i, req := range bad {
		if _, err := f.svc.CreateOrder(ctx, req); !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
	if _, err := f.svc.CreateOrder(ctx, CreateRequest{ClientID: "ghost", Type: TypeCreate, Amount: dec("1")}); !errors.Is(err, ErrClientNotFound) {
		t.Fatalf("expected client not found, got %v", err)
	}
}

func TestCreateOrder_Idempotent(t *testing.T) {
	f := newFixture("c1", "c2")
	ctx := context.Background()
	req := CreateRequest{ClientID: "c1", Type: TypeCreate, Amount: dec("25"), IdempotencyKey: "key-1"}

	first, err := f.svc.CreateOrder(ctx, req)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := f.svc.CreateOrder(ctx, req)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.Order.ID != second.Order.ID || first.Transaction.ID != second.Transaction.ID {
		t.Fatalf("expected same pair, got %s/%s", first.Order.ID, second.Order.ID)
	}
	if len(f.repo.Rows()) != 1 {
		t.Fatalf("expected one ledger row, got %d", len(f.repo.Rows()))
	}
	if len(f.pub.names()) != 1 {
		t.Fatalf("replay must not publish again")
	}

	other := req
	other.ClientID = "c2"
	if _, err := f.svc.CreateOrder(ctx, other); !errors.Is(err, ErrIdempotencyReuse) {
		t.Fatalf("expected key reuse conflict, got %v", err)
	}
}

func TestCreateOrder_InsufficientFunds(t *testing.T) {
	f := newFixture("c1")
	f.fund("c1", "100")
	ctx := context.Background()

	if _, err := f.svc.CreateOrder(ctx, CreateRequest{ClientID: "c1", Type: TypeRedeem, Amount: dec("80")}); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	// 80 is reserved by the pending payout
	_, err := f.svc.CreateOrder(ctx, CreateRequest{ClientID: "c1", Type: TypeLoad, Amount: dec("30")})
	if !errors.Is(err, ErrInsufficientFunds) || !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if _, err := f.svc.CreateOrder(ctx, CreateRequest{ClientID: "c1", Type: TypeLoad, Amount: dec("5"), WalletType: ledger.WalletBonus}); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected empty bonus wallet to refuse, got %v", err)
	}
}

func TestConfirmOrder_DepositRunsReferralWithEditedAmount(t *testing.T) {
	f := newFixture("c1")
	f.hook.outcome = referral.DepositOutcome{BecameValid: true, ReferrerID: "r1"}
	ctx := context.Background()

	v, err := f.svc.CreateOrder(ctx, CreateRequest{ClientID: "c1", Type: TypeCreate, Amount: dec("50")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.EditOrderAmount(ctx, EditRequest{OrderID: v.Order.ID, Amount: dec("45"), Reason: "screenshot shows 45", ActorID: "admin"}); err != nil {
		t.Fatalf("edit: %v", err)
	}
	edited, err := f.svc.EditOrderAmount(ctx, EditRequest{OrderID: v.Order.ID, Amount: dec("40"), Reason: "fee", ActorID: "admin"})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if !edited.Order.OriginalAmount.Equal(dec("50")) || !edited.Transaction.OriginalAmount.Equal(dec("50")) {
		t.Fatalf("original amount must keep the first value")
	}
	if !edited.Transaction.Amount.Equal(dec("40")) {
		t.Fatalf("ledger row must mirror the edit")
	}

	res, err := f.svc.ConfirmOrder(ctx, v.Order.ID, "admin")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if res.Order.Status != StatusConfirmed || res.Transaction.Status != ledger.StatusConfirmed || res.Order.ConfirmedAt == nil {
		t.Fatalf("unexpected result: %+v", res.View)
	}
	if len(f.hook.calls) != 1 || !f.hook.calls[0].amount.Equal(dec("40")) {
		t.Fatalf("referral hook must see the final amount once, got %+v", f.hook.calls)
	}

	got := f.pub.names()
	want := []string{EventOrderCreated, EventOrderConfirmed, EventReferralValid}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if f.pub.events[2].owner != "r1" {
		t.Fatalf("referral.valid goes to the referrer, got %s", f.pub.events[2].owner)
	}
	if len(f.audit.events) != 3 {
		t.Fatalf("expected 2 edits + confirm audited, got %d", len(f.audit.events))
	}

	bal := ledger.ComputeBalances(f.repo.Rows())
	if !bal.RealBalance.Equal(dec("40")) {
		t.Fatalf("expected real balance 40, got %s", bal.RealBalance)
	}
}

func TestConfirmOrder_TerminalStatesRejectTransitions(t *testing.T) {
	f := newFixture("c1")
	ctx := context.Background()
	v, _ := f.svc.CreateOrder(ctx, CreateRequest{ClientID: "c1", Type: TypeCreate, Amount: dec("10")})

	if _, err := f.svc.ConfirmOrder(ctx, v.Order.ID, "admin"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := f.svc.ConfirmOrder(ctx, v.Order.ID, "admin"); !errors.Is(err, ErrInvalidState) || !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("second confirm must conflict, got %v", err)
	}
	if _, err := f.svc.EditOrderAmount(ctx, EditRequest{OrderID: v.Order.ID, Amount: dec("5"), Reason: "late"}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("edit after confirm must fail, got %v", err)
	}
	if _, err := f.svc.RejectOrder(ctx, v.Order.ID, "nope", "admin"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("reject after confirm must fail, got %v", err)
	}
	if _, err := f.svc.CancelOrder(ctx, v.Order.ID, "c1"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("cancel after confirm must fail, got %v", err)
	}
	if len(f.hook.calls) != 1 {
		t.Fatalf("referral protocol must run once, got %d", len(f.hook.calls))
	}
	if _, err := f.svc.ConfirmOrder(ctx, "missing", "admin"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConfirmOrder_RollsBackOnFailure(t *testing.T) {
	f := newFixture("c1")
	ctx := context.Background()
	v, _ := f.svc.CreateOrder(ctx, CreateRequest{ClientID: "c1", Type: TypeCreate, Amount: dec("10")})

	f.hook.err = errors.New("db down")
	if _, err := f.svc.ConfirmOrder(ctx, v.Order.ID, "admin"); err == nil {
		t.Fatalf("expected error")
	}
	got, err := f.svc.GetOrder(ctx, v.Order.ID, "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Order.Status != StatusPendingConfirmation || got.Transaction.Status != ledger.StatusPending {
		t.Fatalf("expected both still pending, got %s / %s", got.Order.Status, got.Transaction.Status)
	}

	f.hook.err = nil
	f.repo.FailUpdateTransaction = errors.New("write failed")
	if _, err := f.svc.ConfirmOrder(ctx, v.Order.ID, "admin"); err == nil {
		t.Fatalf("expected error")
	}
	got, _ = f.svc.GetOrder(ctx, v.Order.ID, "")
	if got.Order.Status != StatusPendingConfirmation {
		t.Fatalf("order must not stay confirmed when the ledger write fails")
	}
}

func TestConfirmOrder_DebitRechecksFunds(t *testing.T) {
	f := newFixture("c1")
	f.fund("c1", "50")
	ctx := context.Background()
	v, err := f.svc.CreateOrder(ctx, CreateRequest{ClientID: "c1", Type: TypeRedeem, Amount: dec("40")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// an admin correction lands before payout
	f.repo.Seed(ledger.Transaction{ID: "adj", ClientID: "c1", Type: ledger.TypeAdjust, Amount: dec("-20"),
		WalletType: ledger.WalletReal, Status: ledger.StatusConfirmed})

	if _, err := f.svc.ConfirmOrder(ctx, v.Order.ID, "admin"); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if len(f.hook.calls) != 0 {
		t.Fatalf("redeem must never touch the referral engine")
	}
}

func TestRejectAndCancel(t *testing.T) {
	f := newFixture("c1", "c2")
	ctx := context.Background()

	v, _ := f.svc.CreateOrder(ctx, CreateRequest{ClientID: "c1", Type: TypeCreate, Amount: dec("10")})
	if _, err := f.svc.RejectOrder(ctx, v.Order.ID, " ", "admin"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("reject requires a reason, got %v", err)
	}
	rej, err := f.svc.RejectOrder(ctx, v.Order.ID, "blurry screenshot", "admin")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rej.Order.Status != StatusRejected || rej.Transaction.Status != ledger.StatusRejected || rej.Order.RejectionReason != "blurry screenshot" {
		t.Fatalf("unexpected rejection: %+v", rej)
	}
	if len(f.hook.calls) != 0 {
		t.Fatalf("reject has no referral side effects")
	}

	d, _ := f.svc.CreateOrder(ctx, CreateRequest{ClientID: "c1", Type: TypeCreate, Amount: dec("10"), Draft: true})
	if _, err := f.svc.CancelOrder(ctx, d.Order.ID, "c2"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("foreign cancel must look like not found, got %v", err)
	}
	c, err := f.svc.CancelOrder(ctx, d.Order.ID, "c1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if c.Order.Status != StatusCancelled || c.Transaction.Status != ledger.StatusRejected {
		t.Fatalf("unexpected cancel: %+v", c)
	}
	if bal := ledger.ComputeBalances(f.repo.Rows()); !bal.PendingIn.IsZero() {
		t.Fatalf("closed orders must not count as pending, got %s", bal.PendingIn)
	}
}

func TestSubmitAndScreenshot(t *testing.T) {
	f := newFixture("c1")
	ctx := context.Background()

	d, _ := f.svc.CreateOrder(ctx, CreateRequest{ClientID: "c1", Type: TypeCreate, Amount: dec("10"), Draft: true, RequireScreenshot: true})
	if _, err := f.svc.ConfirmOrder(ctx, d.Order.ID, "admin"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("drafts cannot be confirmed, got %v", err)
	}
	s, err := f.svc.Submit(ctx, d.Order.ID, "c1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if s.Order.Status != StatusPendingScreenshot {
		t.Fatalf("expected pending_screenshot, got %s", s.Order.Status)
	}
	if _, err := f.svc.Submit(ctx, d.Order.ID, "c1"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second submit must conflict, got %v", err)
	}
	a, err := f.svc.AttachScreenshot(ctx, d.Order.ID, "c1", "https://img.example/p.png")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if a.Order.Status != StatusPendingConfirmation || a.Order.ScreenshotURL == "" {
		t.Fatalf("unexpected order: %+v", a.Order)
	}
	if got := f.pub.names(); len(got) != 1 || got[0] != EventOrderCreated {
		t.Fatalf("submit publishes order.created, got %v", got)
	}
}

func TestReconcile(t *testing.T) {
	f := newFixture("c1")
	ctx := context.Background()
	v, _ := f.svc.CreateOrder(ctx, CreateRequest{ClientID: "c1", Type: TypeCreate, Amount: dec("10")})
	if _, err := f.svc.ConfirmOrder(ctx, v.Order.ID, "admin"); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	// simulate a ledger row left pending by an interrupted write
	tx, _ := f.repo.GetTransactionByOrder(ctx, v.Order.ID)
	tx.Status = ledger.StatusPending
	_ = f.repo.UpdateTransaction(ctx, tx)

	out, changed, err := f.svc.Reconcile(ctx, v.Order.ID)
	if err != nil || !changed {
		t.Fatalf("expected repair, got changed=%v err=%v", changed, err)
	}
	if out.Transaction.Status != ledger.StatusConfirmed {
		t.Fatalf("order status is authoritative, got %s", out.Transaction.Status)
	}
	if _, changed, _ := f.svc.Reconcile(ctx, v.Order.ID); changed {
		t.Fatalf("second reconcile must be a no-op")
	}
}

func TestListClientOrders(t *testing.T) {
	f := newFixture("c1", "c2")
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := f.svc.CreateOrder(ctx, CreateRequest{ClientID: "c1", Type: TypeCreate, Amount: dec("1")}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	got, err := f.svc.ListClientOrders(ctx, "c1")
	if err != nil || len(got) != 3 {
		t.Fatalf("expected 3 orders, got %d %v", len(got), err)
	}
	empty, err := f.svc.ListClientOrders(ctx, "c2")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty list, got %v %v", empty, err)
	}
	if _, err := f.svc.ListClientOrders(ctx, "ghost"); !errors.Is(err, ErrClientNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCanTransition(t *testing.T) {
	for _, from := range []Status{StatusConfirmed, StatusRejected, StatusCancelled} {
		for _, to := range []Status{StatusDraft, StatusPendingConfirmation, StatusConfirmed, StatusRejected, StatusCancelled} {
			if CanTransition(from, to) {
				t.Fatalf("terminal %s must not move to %s", from, to)
			}
		}
	}
	if CanTransition(StatusPendingPayout, StatusPendingConfirmation) {
		t.Fatalf("pending states never move backwards")
	}
}
