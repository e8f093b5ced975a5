package referral

import (
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"gamecredit-platform/internal/settings"

	"github.com/shopspring/decimal"
)

const (
	codeLength   = 8
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// GenerateCode returns a random referral code of 8 characters from A-Z0-9.
func GenerateCode() (string, error) {
	base := big.NewInt(int64(len(codeAlphabet)))
	var b strings.Builder
	b.Grow(codeLength)
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeCode trims and upper-cases a user supplied code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

var hundred = decimal.NewFromInt(100)

// TierFor returns the index of the highest tier whose MinReferrals <= validCount.
// tiers must be sorted ascending; -1 means no tiers are configured.
func TierFor(tiers []settings.Tier, validCount int) int {
	idx := -1
	for i, t := range tiers {
		if t.MinReferrals <= validCount {
			idx = i
		}
	}
	return idx
}

// Commission is amount * pct / 100 rounded to cents.
func Commission(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(hundred).Round(2)
}

// EligibleBonus sums every milestone reached at validCount.
func EligibleBonus(milestones []settings.Milestone, validCount int) decimal.Decimal {
	total := decimal.Zero
	for _, m := range milestones {
		if m.ReferralsRequired <= validCount {
			total = total.Add(m.BonusAmount)
		}
	}
	return total
}

// UnclaimedBonus is what is still owed after paid has been credited. Never negative.
func UnclaimedBonus(milestones []settings.Milestone, validCount int, paid decimal.Decimal) decimal.Decimal {
	return decimal.Max(decimal.Zero, EligibleBonus(milestones, validCount).Sub(paid))
}

// NextMilestone returns the first milestone not yet reached.
func NextMilestone(milestones []settings.Milestone, validCount int) (settings.Milestone, bool) {
	for _, m := range milestones {
		if m.ReferralsRequired > validCount {
			return m, true
		}
	}
	return settings.Milestone{}, false
}

// FraudResult is the advisory outcome of CheckFraud.
type FraudResult struct {
	Flags        []string
	IsSuspicious bool
	ShouldReject bool
}

// CheckFraud scores a referral at deposit time. Account ages are measured from the
// referred client's signup to now.
func CheckFraud(cfg settings.AntiFraud, referrer, referred Client, now time.Time) FraudResult {
	if !cfg.Enabled {
		return FraudResult{}
	}
	var flags []string

	if cfg.FlagSameIPReferrals && referrer.LastIP != "" && referrer.LastIP == referred.LastIP {
		flags = append(flags, FlagSameIPAsReferrer)
	}

	age := now.Sub(referred.CreatedAt)
	if cfg.FlagRapidSignups && !referred.CreatedAt.IsZero() &&
		age < time.Duration(cfg.RapidSignupThresholdMinutes)*time.Minute {
		flags = append(flags, FlagRapidSignup)
	}
	if cfg.MinAccountAgeHours > 0 && !referred.CreatedAt.IsZero() &&
		age < time.Duration(cfg.MinAccountAgeHours)*time.Hour {
		flags = append(flags, FlagAccountTooNew)
	}

	suspicious := len(flags) > 0
	return FraudResult{
		Flags:        flags,
		IsSuspicious: suspicious,
		ShouldReject: suspicious && cfg.AutoRejectFraud,
	}
}
