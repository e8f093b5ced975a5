package referral

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"gamecredit-platform/internal/ledger"

	"github.com/shopspring/decimal"
)

// Client is a wallet owner together with its referral bookkeeping.
//
// The counters live outside the ledger and are only mutated with the row locked:
// - ReferredByCode is write-once and cannot be set after ReferralLocked.
// - ValidReferralCount moves +1 per referred client's first confirmed deposit;
//   only an admin status correction may decrement it.
// - BonusClaims counts milestone payouts, not milestones.
type Client struct {
	ID             string  `json:"client_id" db:"client_id"`
	DisplayName    string  `json:"display_name" db:"display_name"`
	ReferralCode   string  `json:"referral_code" db:"referral_code"`
	ReferredByCode *string `json:"referred_by_code,omitempty" db:"referred_by_code"`
	ReferralLocked bool    `json:"referral_locked" db:"referral_locked"`

	ReferralCount      int `json:"referral_count" db:"referral_count"`
	ValidReferralCount int `json:"valid_referral_count" db:"valid_referral_count"`
	BonusClaims        int `json:"bonus_claims" db:"bonus_claims"`

	SignupIP string `json:"-" db:"signup_ip"`
	LastIP   string `json:"-" db:"last_ip"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusValid     Status = "valid"
	StatusFraud     Status = "fraud"
	StatusSuspected Status = "suspected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusValid, StatusFraud, StatusSuspected:
		return true
	default:
		return false
	}
}

// Record links one referred client to its referrer. ReferredID is unique.
type Record struct {
	ID         string `json:"referral_id" db:"referral_id"`
	ReferrerID string `json:"referrer_client_id" db:"referrer_client_id"`
	ReferredID string `json:"referred_client_id" db:"referred_client_id"`
	Code       string `json:"referral_code" db:"referral_code"`
	Status     Status `json:"status" db:"status"`

	IsSuspicious bool  `json:"is_suspicious" db:"is_suspicious"`
	FraudFlags   Flags `json:"fraud_flags" db:"fraud_flags"`

	TotalDeposits decimal.Decimal `json:"total_deposits" db:"total_deposits"`
	ReferredIP    string          `json:"-" db:"referred_ip"`

	ValidatedAt *time.Time `json:"validated_at,omitempty" db:"validated_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// Flags is stored as a comma separated text column.
type Flags []string

func (f Flags) Value() (driver.Value, error) {
	return strings.Join(f, ","), nil
}

func (f *Flags) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case nil:
		*f = nil
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("referral: cannot scan %T into Flags", src)
	}
	if s == "" {
		*f = nil
		return nil
	}
	*f = strings.Split(s, ",")
	return nil
}

// Fraud flags.
const (
	FlagSameIPAsReferrer = "SAME_IP_AS_REFERRER"
	FlagRapidSignup      = "RAPID_SIGNUP"
	FlagAccountTooNew    = "ACCOUNT_TOO_NEW"
)

// DepositOutcome reports what the deposit protocol did for one confirmed deposit.
type DepositOutcome struct {
	ClientID string `json:"client_id"`
	// Locked is true when this deposit locked referral application.
	Locked bool `json:"referral_locked"`

	ReferrerID  string   `json:"referrer_client_id,omitempty"`
	BecameValid bool     `json:"referral_activated"`
	Fraud       bool     `json:"fraud,omitempty"`
	Flags       []string `json:"fraud_flags,omitempty"`

	Commission *ledger.Transaction `json:"commission,omitempty"`
	Milestone  *ledger.Transaction `json:"milestone_bonus,omitempty"`
}
