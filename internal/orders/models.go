package orders

import (
	"time"

	"gamecredit-platform/internal/ledger"

	"github.com/shopspring/decimal"
)

type Type string

const (
	// TypeCreate is a deposit: it credits the real wallet and drives the referral engine.
	TypeCreate Type = "create"
	// TypeLoad moves wallet funds into a game.
	TypeLoad Type = "load"
	// TypeRedeem pays real funds out.
	TypeRedeem Type = "redeem"
)

func (t Type) Valid() bool {
	return t == TypeCreate || t == TypeLoad || t == TypeRedeem
}

// Debit reports whether confirming the order takes money out of a wallet.
func (t Type) Debit() bool { return t == TypeLoad || t == TypeRedeem }

// LedgerType maps an order to the type of its paired ledger row.
func (t Type) LedgerType(w ledger.WalletType) ledger.Type {
	switch t {
	case TypeLoad:
		if w == ledger.WalletBonus {
			return ledger.TypeBonusLoad
		}
		return ledger.TypeRealLoad
	case TypeRedeem:
		return ledger.TypeOut
	default:
		return ledger.TypeIn
	}
}

type Status string

const (
	StatusDraft               Status = "draft"
	StatusPendingScreenshot   Status = "pending_screenshot"
	StatusPendingConfirmation Status = "pending_confirmation"
	StatusPendingPayout       Status = "pending_payout"
	StatusConfirmed           Status = "confirmed"
	StatusRejected            Status = "rejected"
	StatusCancelled           Status = "cancelled"
)

// Order is the user-intent envelope around exactly one ledger row.
//
// Invariants:
// - Amount edits only happen in a pending state; OriginalAmount keeps the first value.
// - Terminal states (confirmed, rejected, cancelled) never change again.
// - Order status is authoritative over the paired ledger row's status.
type Order struct {
	ID             string            `json:"order_id" db:"order_id"`
	ClientID       string            `json:"client_id" db:"client_id"`
	Type           Type              `json:"order_type" db:"order_type"`
	WalletType     ledger.WalletType `json:"wallet_type" db:"wallet_type"`
	Amount         decimal.Decimal   `json:"amount" db:"amount"`
	OriginalAmount *decimal.Decimal  `json:"original_amount,omitempty" db:"original_amount"`
	Status         Status            `json:"status" db:"status"`
	IdempotencyKey *string           `json:"idempotency_key,omitempty" db:"idempotency_key"`
	Notes          string            `json:"notes,omitempty" db:"notes"`

	ScreenshotRequired bool   `json:"screenshot_required" db:"screenshot_required"`
	ScreenshotURL      string `json:"screenshot_url,omitempty" db:"screenshot_url"`

	EditReason      string     `json:"edit_reason,omitempty" db:"edit_reason"`
	ConfirmedAt     *time.Time `json:"confirmed_at,omitempty" db:"confirmed_at"`
	ConfirmedBy     string     `json:"confirmed_by,omitempty" db:"confirmed_by"`
	RejectionReason string     `json:"rejection_reason,omitempty" db:"rejection_reason"`
	RejectedBy      string     `json:"rejected_by,omitempty" db:"rejected_by"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// View is an order with its paired ledger row.
type View struct {
	Order       Order              `json:"order"`
	Transaction ledger.Transaction `json:"transaction"`
}
