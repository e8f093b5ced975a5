package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one row of the append-only ledger.
//
// Money invariants:
// - Amount is never negative; direction comes from Type. ADJUST and BONUS_ADJUST
//   are the exception: they carry a signed amount (manual corrections).
// - Balances are derived only from rows with Status confirmed.
// - The only permitted mutations are the pending -> confirmed/rejected status flip
//   and a pre-confirmation amount correction that keeps the first OriginalAmount.
type Transaction struct {
	ID             string           `json:"transaction_id" db:"transaction_id"`
	ClientID       string           `json:"client_id" db:"client_id"`
	Type           Type             `json:"type" db:"type"`
	Amount         decimal.Decimal  `json:"amount" db:"amount"`
	OriginalAmount *decimal.Decimal `json:"original_amount,omitempty" db:"original_amount"`
	WalletType     WalletType       `json:"wallet_type" db:"wallet_type"`
	Status         Status           `json:"status" db:"status"`
	Source         string           `json:"source" db:"source"`

	// OrderID links the primary row of an order. At most one row per order.
	OrderID *string `json:"order_id,omitempty" db:"order_id"`
	// IdempotencyKey is unique when present.
	IdempotencyKey *string `json:"idempotency_key,omitempty" db:"idempotency_key"`

	Reason   string `json:"reason,omitempty" db:"reason"`
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Type string

const (
	TypeIn           Type = "IN"
	TypeOut          Type = "OUT"
	TypeAdjust       Type = "ADJUST"
	TypeReferralEarn Type = "REFERRAL_EARN"
	TypeRealLoad     Type = "REAL_LOAD"
	TypeBonusEarn    Type = "BONUS_EARN"
	TypeBonusLoad    Type = "BONUS_LOAD"
	TypeBonusAdjust  Type = "BONUS_ADJUST"
)

func (t Type) Valid() bool {
	switch t {
	case TypeIn, TypeOut, TypeAdjust, TypeReferralEarn, TypeRealLoad, TypeBonusEarn, TypeBonusLoad, TypeBonusAdjust:
		return true
	default:
		return false
	}
}

// Wallet returns the wallet a type posts to.
func (t Type) Wallet() WalletType {
	switch t {
	case TypeBonusEarn, TypeBonusLoad, TypeBonusAdjust:
		return WalletBonus
	default:
		return WalletReal
	}
}

type WalletType string

const (
	WalletReal  WalletType = "real"
	WalletBonus WalletType = "bonus"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
)

// Source values written by this service.
const (
	SourceOrder              = "order"
	SourceReferralCommission = "referral_commission"
	SourceReferralMilestone  = "referral_milestone"
	SourceAdmin              = "admin_adjustment"
)

// Signed reports whether the type may carry a negative amount.
func (t Type) Signed() bool { return t == TypeAdjust || t == TypeBonusAdjust }

// StringPtr is a small helper for the optional text columns.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
