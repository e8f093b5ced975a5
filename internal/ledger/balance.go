package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrNegativeBalance is an invariant violation: confirmed rows add up below zero.
// It is not part of the caller-facing taxonomy; it signals a bug or a bad manual edit.
var ErrNegativeBalance = errors.New("ledger invariant violated: negative balance")

// Balances is the wallet snapshot derived from one client's ledger rows.
type Balances struct {
	RealBalance  decimal.Decimal `json:"real_balance"`
	BonusBalance decimal.Decimal `json:"bonus_balance"`

	PendingIn  decimal.Decimal `json:"pending_in"`
	PendingOut decimal.Decimal `json:"pending_out"`

	TotalIn          decimal.Decimal `json:"total_in"`
	TotalOut         decimal.Decimal `json:"total_out"`
	TotalRealLoaded  decimal.Decimal `json:"total_real_loaded"`
	TotalBonusLoaded decimal.Decimal `json:"total_bonus_loaded"`
	TotalBonusEarned decimal.Decimal `json:"total_bonus_earned"`
	ReferralEarnings decimal.Decimal `json:"referral_earnings"`
	TotalAdjust      decimal.Decimal `json:"total_adjust"`
	TotalBonusAdjust decimal.Decimal `json:"total_bonus_adjust"`

	// Unclamped results of the two wallet formulas.
	RawReal  decimal.Decimal `json:"-"`
	RawBonus decimal.Decimal `json:"-"`
}

// ComputeBalances aggregates rows by type:
//
//	real  = IN - OUT - REAL_LOAD + REFERRAL_EARN + ADJUST
//	bonus = BONUS_EARN - BONUS_LOAD + BONUS_ADJUST
//
// Only confirmed rows count. Pending IN/OUT rows feed PendingIn/PendingOut.
// Rejected rows are ignored. The exported balances are clamped at zero; use
// Check to surface a negative raw result.
func ComputeBalances(rows []Transaction) Balances {
	totals := make(map[Type]decimal.Decimal, 8)
	var b Balances

	for _, r := range rows {
		switch r.Status {
		case StatusConfirmed:
			totals[r.Type] = totals[r.Type].Add(r.Amount)
		case StatusPending:
			switch r.Type {
			case TypeIn:
				b.PendingIn = b.PendingIn.Add(r.Amount)
			case TypeOut:
				b.PendingOut = b.PendingOut.Add(r.Amount)
			}
		}
	}

	b.TotalIn = totals[TypeIn]
	b.TotalOut = totals[TypeOut]
	b.TotalRealLoaded = totals[TypeRealLoad]
	b.ReferralEarnings = totals[TypeReferralEarn]
	b.TotalAdjust = totals[TypeAdjust]
	b.TotalBonusEarned = totals[TypeBonusEarn]
	b.TotalBonusLoaded = totals[TypeBonusLoad]
	b.TotalBonusAdjust = totals[TypeBonusAdjust]

	b.RawReal = b.TotalIn.
		Sub(b.TotalOut).
		Sub(b.TotalRealLoaded).
		Add(b.ReferralEarnings).
		Add(b.TotalAdjust)
	b.RawBonus = b.TotalBonusEarned.
		Sub(b.TotalBonusLoaded).
		Add(b.TotalBonusAdjust)

	b.RealBalance = decimal.Max(decimal.Zero, b.RawReal)
	b.BonusBalance = decimal.Max(decimal.Zero, b.RawBonus)
	return b
}

// Check returns ErrNegativeBalance when either unclamped wallet is below zero.
func (b Balances) Check() error {
	if b.RawReal.IsNegative() {
		return fmt.Errorf("%w: real wallet %s", ErrNegativeBalance, b.RawReal.StringFixed(2))
	}
	if b.RawBonus.IsNegative() {
		return fmt.Errorf("%w: bonus wallet %s", ErrNegativeBalance, b.RawBonus.StringFixed(2))
	}
	return nil
}

// Available returns the spendable balance of one wallet (clamped).
func (b Balances) Available(w WalletType) decimal.Decimal {
	if w == WalletBonus {
		return b.BonusBalance
	}
	return b.RealBalance
}

// Effect is the signed change a confirmed row of type t and amount a applies to its wallet.
func Effect(t Type, a decimal.Decimal) decimal.Decimal {
	switch t {
	case TypeOut, TypeRealLoad, TypeBonusLoad:
		return a.Neg()
	default:
		return a
	}
}
