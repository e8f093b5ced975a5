package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gamecredit-platform/internal/apperr"
	"gamecredit-platform/internal/ledger"
	"gamecredit-platform/internal/referral"
	"gamecredit-platform/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound     = fmt.Errorf("%w: order", apperr.ErrNotFound)
	ErrClientNotFound    = fmt.Errorf("%w: client", apperr.ErrNotFound)
	ErrInvalidArgument   = fmt.Errorf("%w: invalid argument", apperr.ErrValidation)
	ErrInvalidState      = fmt.Errorf("%w: order is not in a state that allows this action", apperr.ErrConflict)
	ErrInsufficientFunds = fmt.Errorf("%w: insufficient funds", apperr.ErrConflict)
	ErrIdempotencyReuse  = fmt.Errorf("%w: idempotency key already used by another client", apperr.ErrConflict)
)

// Repository is the persistence contract for orders and their ledger rows.
// Every method joins the transaction carried by ctx when called inside WithinTx.
type Repository interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error

	ClientExists(ctx context.Context, clientID string) (bool, error)
	LockWalletOwner(ctx context.Context, clientID string) error

	FindOrderByIdempotency(ctx context.Context, key string) (Order, bool, error)
	InsertOrder(ctx context.Context, o Order) error
	GetOrder(ctx context.Context, orderID string) (Order, error)
	// LockOrder reads the order FOR UPDATE.
	LockOrder(ctx context.Context, orderID string) (Order, error)
	UpdateOrder(ctx context.Context, o Order) error
	ListOrdersByClient(ctx context.Context, clientID string) ([]Order, error)

	ListTransactions(ctx context.Context, clientID string) ([]ledger.Transaction, error)
	InsertTransaction(ctx context.Context, t ledger.Transaction) error
	GetTransactionByOrder(ctx context.Context, orderID string) (ledger.Transaction, error)
	UpdateTransaction(ctx context.Context, t ledger.Transaction) error
}

// ReferralHook runs the deposit protocol inside the confirmation transaction.
type ReferralHook interface {
	OnDepositConfirmed(ctx context.Context, clientID string, amount decimal.Decimal) (referral.DepositOutcome, error)
}

// EventPublisher fans events out to webhooks. Called after commit; it must not fail
// the business operation.
type EventPublisher interface {
	Publish(ctx context.Context, event, ownerID string, data any)
}

// Event names.
const (
	EventOrderCreated   = "order.created"
	EventOrderConfirmed = "order.confirmed"
	EventOrderRejected  = "order.rejected"
	EventOrderCancelled = "order.cancelled"
	EventReferralValid  = "referral.valid"
)

type Service struct {
	repo     Repository
	referral ReferralHook
	events   EventPublisher
	audit    AuditLogger
	clock    func() time.Time
}

func NewService(repo Repository, hook ReferralHook, events EventPublisher, audit AuditLogger) *Service {
	return &Service{repo: repo, referral: hook, events: events, audit: audit, clock: time.Now}
}

type CreateRequest struct {
	ClientID   string            `json:"-"`
	Type       Type              `json:"order_type"`
	Amount     decimal.Decimal   `json:"amount"`
	WalletType ledger.WalletType `json:"wallet_type,omitempty"`
	Notes      string            `json:"notes,omitempty"`
	// RequireScreenshot starts a deposit in pending_screenshot.
	RequireScreenshot bool `json:"require_screenshot,omitempty"`
	// Draft keeps the order editable by the client until Submit.
	Draft          bool   `json:"draft,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

func (r CreateRequest) validate() (ledger.WalletType, error) {
	if strings.TrimSpace(r.ClientID) == "" || !r.Type.Valid() {
		return "", ErrInvalidArgument
	}
	if err := validAmount(r.Amount); err != nil {
		return "", err
	}
	switch r.WalletType {
	case "", ledger.WalletReal:
		return ledger.WalletReal, nil
	case ledger.WalletBonus:
		if r.Type != TypeLoad {
			return "", fmt.Errorf("%w: only load orders may use the bonus wallet", ErrInvalidArgument)
		}
		return ledger.WalletBonus, nil
	default:
		return "", ErrInvalidArgument
	}
}

func validAmount(a decimal.Decimal) error {
	if !a.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidArgument)
	}
	if a.Exponent() < -2 && !a.Equal(a.Round(2)) {
		return fmt.Errorf("%w: amount has more than 2 decimals", ErrInvalidArgument)
	}
	return nil
}

// CreateOrder opens an order with its pending ledger row. A repeated idempotency
// key returns the stored pair instead of writing a second one.
func (s *Service) CreateOrder(ctx context.Context, req CreateRequest) (View, error) {
	wallet, err := req.validate()
	if err != nil {
		return View{}, err
	}
	key := strings.TrimSpace(req.IdempotencyKey)

	var out View
	replayed := false
	err = s.repo.WithinTx(ctx, func(ctx context.Context) error {
		if key != "" {
			v, ok, err := s.findByKey(ctx, key, req.ClientID)
			if err != nil {
				return err
			}
			if ok {
				out, replayed = v, true
				return nil
			}
		}

		if err := s.repo.LockWalletOwner(ctx, req.ClientID); err != nil {
			return s.clientErr(err)
		}
		if req.Type.Debit() {
			if err := s.ensureFunds(ctx, req.ClientID, wallet, req.Amount, ""); err != nil {
				return err
			}
		}

		now := s.clock().UTC()
		status := initialStatus(req.Type, req.RequireScreenshot)
		if req.Draft {
			status = StatusDraft
		}
		o := Order{
			ID:                 uuid.NewString(),
			ClientID:           req.ClientID,
			Type:               req.Type,
			WalletType:         wallet,
			Amount:             req.Amount,
			Status:             status,
			IdempotencyKey:     ledger.StringPtr(key),
			Notes:              strings.TrimSpace(req.Notes),
			ScreenshotRequired: req.RequireScreenshot,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		t := ledger.Transaction{
			ID:             uuid.NewString(),
			ClientID:       o.ClientID,
			Type:           o.Type.LedgerType(wallet),
			Amount:         o.Amount,
			WalletType:     wallet,
			Status:         ledger.StatusPending,
			Source:         ledger.SourceOrder,
			OrderID:        &o.ID,
			IdempotencyKey: ledger.StringPtr(key),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.repo.InsertOrder(ctx, o); err != nil {
			return err
		}
		if err := s.repo.InsertTransaction(ctx, t); err != nil {
			return err
		}
		out = View{Order: o, Transaction: t}
		return nil
	})

	// Lost a race on the same key: the winner's pair is the answer.
	if err != nil && key != "" && errors.Is(err, apperr.ErrConflict) && !errors.Is(err, ErrInsufficientFunds) {
		v, ok, ferr := s.findByKey(ctx, key, req.ClientID)
		if ferr == nil && ok {
			return v, nil
		}
	}
	if err != nil {
		return View{}, err
	}

	if !replayed {
		logger.From(ctx).Info("order created", "order_id", out.Order.ID, "client_id", out.Order.ClientID,
			"order_type", out.Order.Type, "status", out.Order.Status)
		if out.Order.Status != StatusDraft {
			s.publish(ctx, EventOrderCreated, out)
		}
	}
	return out, nil
}

func (s *Service) findByKey(ctx context.Context, key, clientID string) (View, bool, error) {
	o, ok, err := s.repo.FindOrderByIdempotency(ctx, key)
	if err != nil || !ok {
		return View{}, false, err
	}
	if o.ClientID != clientID {
		return View{}, false, ErrIdempotencyReuse
	}
	t, err := s.repo.GetTransactionByOrder(ctx, o.ID)
	if err != nil {
		return View{}, false, err
	}
	return View{Order: o, Transaction: t}, true, nil
}

// ensureFunds checks that wallet can cover amount on top of the other pending debits.
// skipOrderID excludes the order being confirmed from the reservation.
func (s *Service) ensureFunds(ctx context.Context, clientID string, wallet ledger.WalletType, amount decimal.Decimal, skipOrderID string) error {
	rows, err := s.repo.ListTransactions(ctx, clientID)
	if err != nil {
		return err
	}
	reserved := decimal.Zero
	for _, r := range rows {
		if r.Status != ledger.StatusPending || r.WalletType != wallet || !ledger.Effect(r.Type, r.Amount).IsNegative() {
			continue
		}
		if skipOrderID != "" && r.OrderID != nil && *r.OrderID == skipOrderID {
			continue
		}
		reserved = reserved.Add(r.Amount)
	}
	available := ledger.ComputeBalances(rows).Available(wallet).Sub(reserved)
	if available.LessThan(amount) {
		return ErrInsufficientFunds
	}
	return nil
}

// Submit moves a draft into its first pending state.
func (s *Service) Submit(ctx context.Context, orderID, clientID string) (View, error) {
	var out View
	err := s.repo.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.lockOwned(ctx, orderID, clientID)
		if err != nil {
			return err
		}
		next := initialStatus(o.Type, o.ScreenshotRequired)
		if !CanTransition(o.Status, next) || o.Status != StatusDraft {
			return ErrInvalidState
		}
		t, err := s.repo.GetTransactionByOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		o.Status = next
		o.UpdatedAt = s.clock().UTC()
		if err := s.repo.UpdateOrder(ctx, o); err != nil {
			return err
		}
		out = View{Order: o, Transaction: t}
		return nil
	})
	if err != nil {
		return View{}, err
	}
	s.publish(ctx, EventOrderCreated, out)
	return out, nil
}

// AttachScreenshot records the payment proof and moves the order on to confirmation.
func (s *Service) AttachScreenshot(ctx context.Context, orderID, clientID, url string) (View, error) {
	if strings.TrimSpace(url) == "" {
		return View{}, ErrInvalidArgument
	}
	var out View
	err := s.repo.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.lockOwned(ctx, orderID, clientID)
		if err != nil {
			return err
		}
		if o.Status != StatusPendingScreenshot {
			return ErrInvalidState
		}
		t, err := s.repo.GetTransactionByOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		o.ScreenshotURL = strings.TrimSpace(url)
		o.Status = StatusPendingConfirmation
		o.UpdatedAt = s.clock().UTC()
		if err := s.repo.UpdateOrder(ctx, o); err != nil {
			return err
		}
		out = View{Order: o, Transaction: t}
		return nil
	})
	return out, err
}

type EditRequest struct {
	OrderID string          `json:"-"`
	Amount  decimal.Decimal `json:"amount"`
	Reason  string          `json:"reason"`
	ActorID string          `json:"-"`
}

// EditOrderAmount changes the amount of a pending order and its ledger row.
// The first pre-edit amount is kept in OriginalAmount.
func (s *Service) EditOrderAmount(ctx context.Context, req EditRequest) (View, error) {
	if err := validAmount(req.Amount); err != nil {
		return View{}, err
	}
	if strings.TrimSpace(req.Reason) == "" {
		return View{}, fmt.Errorf("%w: reason is required", ErrInvalidArgument)
	}

	var out View
	var previous decimal.Decimal
	err := s.repo.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.lock(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if !o.Status.Pending() {
			return ErrInvalidState
		}
		t, err := s.repo.GetTransactionByOrder(ctx, o.ID)
		if err != nil {
			return err
		}

		now := s.clock().UTC()
		previous = o.Amount
		if o.OriginalAmount == nil {
			first := o.Amount
			o.OriginalAmount = &first
		}
		if t.OriginalAmount == nil {
			first := t.Amount
			t.OriginalAmount = &first
		}
		o.Amount = req.Amount
		o.EditReason = strings.TrimSpace(req.Reason)
		o.UpdatedAt = now
		t.Amount = req.Amount
		t.Reason = o.EditReason
		t.UpdatedAt = now

		if err := s.repo.UpdateOrder(ctx, o); err != nil {
			return err
		}
		if err := s.repo.UpdateTransaction(ctx, t); err != nil {
			return err
		}
		out = View{Order: o, Transaction: t}
		return nil
	})
	if err != nil {
		return View{}, err
	}
	s.logAudit(ctx, AuditEvent{
		Action: ActionEdited, OrderID: out.Order.ID, ClientID: out.Order.ClientID, ActorID: req.ActorID,
		Metadata: map[string]string{"from": previous.String(), "to": req.Amount.String(), "reason": out.Order.EditReason},
	})
	return out, nil
}

// ConfirmResult is the outcome of ConfirmOrder.
type ConfirmResult struct {
	View
	Referral *referral.DepositOutcome `json:"referral,omitempty"`
}

// ConfirmOrder confirms the order and its ledger row in one transaction. A deposit
// also runs the referral deposit protocol, with the final (possibly edited) amount,
// inside that same transaction.
func (s *Service) ConfirmOrder(ctx context.Context, orderID, confirmedBy string) (ConfirmResult, error) {
	var out ConfirmResult
	err := s.repo.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.lock(ctx, orderID)
		if err != nil {
			return err
		}
		if !o.Status.Pending() || !CanTransition(o.Status, StatusConfirmed) {
			return ErrInvalidState
		}
		if o.Type.Debit() {
			if err := s.repo.LockWalletOwner(ctx, o.ClientID); err != nil {
				return s.clientErr(err)
			}
			if err := s.ensureFunds(ctx, o.ClientID, o.WalletType, o.Amount, o.ID); err != nil {
				return err
			}
		}
		t, err := s.repo.GetTransactionByOrder(ctx, o.ID)
		if err != nil {
			return err
		}

		now := s.clock().UTC()
		o.Status = StatusConfirmed
		o.ConfirmedAt = &now
		o.ConfirmedBy = confirmedBy
		o.UpdatedAt = now
		t.Status = ledger.StatusConfirmed
		t.UpdatedAt = now
		if err := s.repo.UpdateOrder(ctx, o); err != nil {
			return err
		}
		if err := s.repo.UpdateTransaction(ctx, t); err != nil {
			return err
		}
		out.View = View{Order: o, Transaction: t}

		if o.Type == TypeCreate && s.referral != nil {
			res, err := s.referral.OnDepositConfirmed(ctx, o.ClientID, o.Amount)
			if err != nil {
				return fmt.Errorf("referral deposit protocol: %w", err)
			}
			out.Referral = &res
		}
		return nil
	})
	if err != nil {
		return ConfirmResult{}, err
	}

	logger.From(ctx).Info("order confirmed", "order_id", out.Order.ID, "client_id", out.Order.ClientID,
		"amount", out.Order.Amount.StringFixed(2))
	s.logAudit(ctx, AuditEvent{Action: ActionConfirmed, OrderID: out.Order.ID, ClientID: out.Order.ClientID, ActorID: confirmedBy})
	s.publish(ctx, EventOrderConfirmed, out.View)
	if r := out.Referral; r != nil && r.BecameValid && s.events != nil {
		s.events.Publish(ctx, EventReferralValid, r.ReferrerID, map[string]any{
			"referrer_client_id": r.ReferrerID,
			"referred_client_id": r.ClientID,
			"order_id":           out.Order.ID,
			"milestone_bonus":    r.Milestone,
			"commission":         r.Commission,
		})
	}
	return out, nil
}

// RejectOrder rejects a pending order and its ledger row. No referral side effects.
func (s *Service) RejectOrder(ctx context.Context, orderID, reason, rejectedBy string) (View, error) {
	if strings.TrimSpace(reason) == "" {
		return View{}, fmt.Errorf("%w: reason is required", ErrInvalidArgument)
	}
	out, err := s.close(ctx, orderID, "", StatusRejected, func(o *Order) {
		o.RejectionReason = strings.TrimSpace(reason)
		o.RejectedBy = rejectedBy
	})
	if err != nil {
		return View{}, err
	}
	s.logAudit(ctx, AuditEvent{
		Action: ActionRejected, OrderID: out.Order.ID, ClientID: out.Order.ClientID, ActorID: rejectedBy,
		Metadata: map[string]string{"reason": out.Order.RejectionReason},
	})
	s.publish(ctx, EventOrderRejected, out)
	return out, nil
}

// CancelOrder withdraws a draft or pending order. clientID, when set, must own it.
func (s *Service) CancelOrder(ctx context.Context, orderID, clientID string) (View, error) {
	out, err := s.close(ctx, orderID, clientID, StatusCancelled, nil)
	if err != nil {
		return View{}, err
	}
	s.publish(ctx, EventOrderCancelled, out)
	return out, nil
}

// close moves an order into rejected or cancelled and rejects its ledger row.
func (s *Service) close(ctx context.Context, orderID, clientID string, to Status, mutate func(*Order)) (View, error) {
	var out View
	err := s.repo.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.lockOwned(ctx, orderID, clientID)
		if err != nil {
			return err
		}
		if !CanTransition(o.Status, to) {
			return ErrInvalidState
		}
		t, err := s.repo.GetTransactionByOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		now := s.clock().UTC()
		o.Status = to
		o.UpdatedAt = now
		if mutate != nil {
			mutate(&o)
		}
		t.Status = ledger.StatusRejected
		t.UpdatedAt = now
		if err := s.repo.UpdateOrder(ctx, o); err != nil {
			return err
		}
		if err := s.repo.UpdateTransaction(ctx, t); err != nil {
			return err
		}
		out = View{Order: o, Transaction: t}
		return nil
	})
	if err != nil {
		return View{}, err
	}
	logger.From(ctx).Info("order closed", "order_id", out.Order.ID, "status", out.Order.Status)
	return out, nil
}

// Reconcile re-derives the ledger row status from a terminal order. It repairs rows
// left behind by writes made outside ConfirmOrder/RejectOrder/CancelOrder and
// reports whether anything changed.
func (s *Service) Reconcile(ctx context.Context, orderID string) (View, bool, error) {
	var out View
	changed := false
	err := s.repo.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.lock(ctx, orderID)
		if err != nil {
			return err
		}
		t, err := s.repo.GetTransactionByOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		var want ledger.Status
		switch o.Status {
		case StatusConfirmed:
			want = ledger.StatusConfirmed
		case StatusRejected, StatusCancelled:
			want = ledger.StatusRejected
		default:
			want = ledger.StatusPending
		}
		if !t.Amount.Equal(o.Amount) {
			t.Amount = o.Amount
			changed = true
		}
		if t.Status != want {
			t.Status = want
			changed = true
		}
		if changed {
			t.UpdatedAt = s.clock().UTC()
			if err := s.repo.UpdateTransaction(ctx, t); err != nil {
				return err
			}
			logger.From(ctx).Warn("ledger row reconciled with order", "order_id", o.ID, "transaction_id", t.ID, "status", t.Status)
		}
		out = View{Order: o, Transaction: t}
		return nil
	})
	return out, changed, err
}

// GetOrder returns the order with its ledger row. clientID, when set, must own it.
func (s *Service) GetOrder(ctx context.Context, orderID, clientID string) (View, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return View{}, s.orderErr(err)
	}
	if clientID != "" && o.ClientID != clientID {
		return View{}, ErrOrderNotFound
	}
	t, err := s.repo.GetTransactionByOrder(ctx, o.ID)
	if err != nil {
		return View{}, err
	}
	return View{Order: o, Transaction: t}, nil
}

func (s *Service) ListClientOrders(ctx context.Context, clientID string) ([]Order, error) {
	if clientID == "" {
		return nil, ErrInvalidArgument
	}
	ok, err := s.repo.ClientExists(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrClientNotFound
	}
	out, err := s.repo.ListOrdersByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Order{}
	}
	return out, nil
}

func (s *Service) lock(ctx context.Context, orderID string) (Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return Order{}, ErrInvalidArgument
	}
	o, err := s.repo.LockOrder(ctx, orderID)
	if err != nil {
		return Order{}, s.orderErr(err)
	}
	return o, nil
}

func (s *Service) lockOwned(ctx context.Context, orderID, clientID string) (Order, error) {
	o, err := s.lock(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if clientID != "" && o.ClientID != clientID {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

func (s *Service) orderErr(err error) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return ErrOrderNotFound
	}
	return err
}

func (s *Service) clientErr(err error) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return ErrClientNotFound
	}
	return err
}

func (s *Service) publish(ctx context.Context, event string, v View) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, event, v.Order.ClientID, v)
}
