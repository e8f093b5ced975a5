package settings

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gamecredit-platform/internal/apperr"

	"github.com/shopspring/decimal"
)

var ErrInvalidSettings = fmt.Errorf("%w: invalid settings", apperr.ErrValidation)

var hundred = decimal.NewFromInt(100)

// Normalize orders tiers and milestones by threshold. Validate still rejects
// duplicate thresholds, so normalizing never hides a bad table.
func (s *Settings) Normalize() {
	sort.SliceStable(s.Tiers, func(i, j int) bool { return s.Tiers[i].MinReferrals < s.Tiers[j].MinReferrals })
	sort.SliceStable(s.Milestones, func(i, j int) bool {
		return s.Milestones[i].ReferralsRequired < s.Milestones[j].ReferralsRequired
	})
}

// Validate checks the typed tables: ascending thresholds, no duplicates, a base tier at 0.
func (s Settings) Validate() error {
	var errs []string

	if len(s.Tiers) == 0 {
		errs = append(errs, "at least one tier is required")
	} else if s.Tiers[0].MinReferrals != 0 {
		errs = append(errs, "base tier must start at min_referrals 0")
	}
	for i, t := range s.Tiers {
		if t.MinReferrals < 0 {
			errs = append(errs, fmt.Sprintf("tier %d: min_referrals must be >= 0", i))
		}
		if t.CommissionPct.IsNegative() || t.CommissionPct.GreaterThan(hundred) {
			errs = append(errs, fmt.Sprintf("tier %d: commission_percentage must be within 0..100", i))
		}
		if i > 0 {
			prev := s.Tiers[i-1].MinReferrals
			switch {
			case t.MinReferrals == prev:
				errs = append(errs, fmt.Sprintf("tier %d: duplicate min_referrals %d", i, t.MinReferrals))
			case t.MinReferrals < prev:
				errs = append(errs, fmt.Sprintf("tier %d: tiers must be sorted by min_referrals", i))
			}
		}
	}

	for i, m := range s.Milestones {
		if m.ReferralsRequired <= 0 {
			errs = append(errs, fmt.Sprintf("milestone %d: referrals_required must be > 0", i))
		}
		if m.BonusAmount.IsNegative() {
			errs = append(errs, fmt.Sprintf("milestone %d: bonus_amount must be >= 0", i))
		}
		if i > 0 {
			prev := s.Milestones[i-1].ReferralsRequired
			switch {
			case m.ReferralsRequired == prev:
				errs = append(errs, fmt.Sprintf("milestone %d: duplicate referrals_required %d", i, m.ReferralsRequired))
			case m.ReferralsRequired < prev:
				errs = append(errs, fmt.Sprintf("milestone %d: milestones must be sorted by referrals_required", i))
			}
		}
	}

	af := s.AntiFraud
	if af.RapidSignupThresholdMinutes < 0 || af.MinAccountAgeHours < 0 {
		errs = append(errs, "anti_fraud thresholds must be >= 0")
	}

	w := s.Webhooks
	if w.MaxRetries < 0 || w.MaxRetries > 10 {
		errs = append(errs, "webhooks.max_retries must be within 0..10")
	}
	if w.RetryDelaySeconds < 0 || w.TimeoutSeconds < 0 || w.FailureThreshold < 0 {
		errs = append(errs, "webhooks values must be >= 0")
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidSettings, errors.New(strings.Join(errs, "; ")))
}
