package settings

import (
	"github.com/shopspring/decimal"
)

// Settings is the platform configuration the referral engine and webhook
// dispatcher read on every decision. It is stored as one JSON document.
type Settings struct {
	BonusSystemEnabled    bool `json:"bonus_system_enabled" yaml:"bonus_system_enabled"`
	ReferralSystemEnabled bool `json:"referral_system_enabled" yaml:"referral_system_enabled"`

	// Tiers are ordered ascending by MinReferrals; the first tier starts at 0.
	Tiers []Tier `json:"tiers" yaml:"tiers"`
	// Milestones are ordered ascending by ReferralsRequired.
	Milestones []Milestone `json:"milestones" yaml:"milestones"`

	AntiFraud AntiFraud     `json:"anti_fraud" yaml:"anti_fraud"`
	Webhooks  WebhookPolicy `json:"webhooks" yaml:"webhooks"`
}

// Tier is a commission band keyed by the referrer's valid-referral count.
type Tier struct {
	Number        int             `json:"tier_number" yaml:"tier_number"`
	Name          string          `json:"name" yaml:"name"`
	MinReferrals  int             `json:"min_referrals" yaml:"min_referrals"`
	CommissionPct decimal.Decimal `json:"commission_percentage" yaml:"commission_percentage"`
}

// Milestone is a one-time bonus paid when the valid-referral count reaches ReferralsRequired.
type Milestone struct {
	Number            int             `json:"milestone_number" yaml:"milestone_number"`
	ReferralsRequired int             `json:"referrals_required" yaml:"referrals_required"`
	BonusAmount       decimal.Decimal `json:"bonus_amount" yaml:"bonus_amount"`
	BonusType         string          `json:"bonus_type" yaml:"bonus_type"`
	Description       string          `json:"description,omitempty" yaml:"description"`
}

type AntiFraud struct {
	Enabled                     bool `json:"enabled" yaml:"enabled"`
	FlagSameIPReferrals         bool `json:"flag_same_ip_referrals" yaml:"flag_same_ip_referrals"`
	FlagRapidSignups            bool `json:"flag_rapid_signups" yaml:"flag_rapid_signups"`
	RapidSignupThresholdMinutes int  `json:"rapid_signup_threshold_minutes" yaml:"rapid_signup_threshold_minutes"`
	MinAccountAgeHours          int  `json:"min_account_age_hours" yaml:"min_account_age_hours"`
	AutoFlagSuspicious          bool `json:"auto_flag_suspicious" yaml:"auto_flag_suspicious"`
	AutoRejectFraud             bool `json:"auto_reject_fraud" yaml:"auto_reject_fraud"`
}

// WebhookPolicy overrides the process-level retry defaults when non-zero.
type WebhookPolicy struct {
	MaxRetries        int `json:"max_retries" yaml:"max_retries"`
	RetryDelaySeconds int `json:"retry_delay_seconds" yaml:"retry_delay_seconds"`
	TimeoutSeconds    int `json:"timeout_seconds" yaml:"timeout_seconds"`
	FailureThreshold  int `json:"failure_threshold" yaml:"failure_threshold"`
}

// Defaults returns the settings used before an admin has saved any.
func Defaults() Settings {
	pct := func(v int64) decimal.Decimal { return decimal.NewFromInt(v) }
	amt := func(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

	return Settings{
		BonusSystemEnabled:    true,
		ReferralSystemEnabled: true,
		Tiers: []Tier{
			{Number: 0, Name: "Starter", MinReferrals: 0, CommissionPct: pct(5)},
			{Number: 1, Name: "Bronze", MinReferrals: 5, CommissionPct: pct(6)},
			{Number: 2, Name: "Silver", MinReferrals: 10, CommissionPct: pct(7)},
			{Number: 3, Name: "Gold", MinReferrals: 20, CommissionPct: pct(8)},
			{Number: 4, Name: "Platinum", MinReferrals: 50, CommissionPct: pct(10)},
		},
		Milestones: []Milestone{
			{Number: 1, ReferralsRequired: 5, BonusAmount: amt(5), BonusType: "bonus", Description: "First milestone bonus"},
			{Number: 2, ReferralsRequired: 10, BonusAmount: amt(2), BonusType: "bonus", Description: "10 referrals bonus"},
			{Number: 3, ReferralsRequired: 15, BonusAmount: amt(2), BonusType: "bonus", Description: "15 referrals bonus"},
			{Number: 4, ReferralsRequired: 20, BonusAmount: amt(3), BonusType: "bonus", Description: "20 referrals bonus"},
			{Number: 5, ReferralsRequired: 30, BonusAmount: amt(5), BonusType: "bonus", Description: "30 referrals bonus"},
			{Number: 6, ReferralsRequired: 50, BonusAmount: amt(10), BonusType: "bonus", Description: "50 referrals bonus"},
		},
		AntiFraud: AntiFraud{
			Enabled:                     true,
			FlagSameIPReferrals:         true,
			FlagRapidSignups:            true,
			RapidSignupThresholdMinutes: 5,
			MinAccountAgeHours:          1,
			AutoFlagSuspicious:          true,
			AutoRejectFraud:             false,
		},
		Webhooks: WebhookPolicy{
			MaxRetries:        3,
			RetryDelaySeconds: 5,
			TimeoutSeconds:    10,
			FailureThreshold:  10,
		},
	}
}
