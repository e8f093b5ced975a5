package referral

import (
	"context"

	"gamecredit-platform/internal/ledger"
	"gamecredit-platform/internal/settings"

	"github.com/shopspring/decimal"
)

type TierProgress struct {
	Current        settings.Tier   `json:"current"`
	Next           *settings.Tier  `json:"next,omitempty"`
	ProgressToNext decimal.Decimal `json:"progress_to_next"`
	UntilNext      int             `json:"referrals_until_next_tier"`
}

type MilestoneProgress struct {
	Eligible  decimal.Decimal     `json:"total_bonus_eligible"`
	Paid      decimal.Decimal     `json:"total_bonus_paid"`
	Unclaimed decimal.Decimal     `json:"unclaimed_bonus"`
	Claims    int                 `json:"bonus_claims"`
	Next      *settings.Milestone `json:"next,omitempty"`
	UntilNext int                 `json:"referrals_until_next"`
}

// Summary is the referral view for one client.
type Summary struct {
	Client           Client            `json:"client"`
	Tier             TierProgress      `json:"tier"`
	Milestones       MilestoneProgress `json:"milestones"`
	ReferralEarnings decimal.Decimal   `json:"referral_earnings"`
	Referrals        []Record          `json:"referrals"`
}

func (s *Service) GetReferralSummary(ctx context.Context, clientID string) (Summary, error) {
	if clientID == "" {
		return Summary{}, ErrInvalidArgument
	}
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return Summary{}, err
	}
	c, err := s.getClient(ctx, clientID)
	if err != nil {
		return Summary{}, err
	}
	earned, err := s.repo.SumTransactions(ctx, clientID, ledger.TypeReferralEarn, "")
	if err != nil {
		return Summary{}, err
	}
	paid, err := s.repo.SumTransactions(ctx, clientID, ledger.TypeBonusEarn, ledger.SourceReferralMilestone)
	if err != nil {
		return Summary{}, err
	}
	refs, err := s.repo.ListReferralsByReferrer(ctx, clientID)
	if err != nil {
		return Summary{}, err
	}

	out := Summary{
		Client:           c,
		Tier:             tierProgress(cfg.Tiers, c.ValidReferralCount),
		ReferralEarnings: earned,
		Referrals:        refs,
		Milestones: MilestoneProgress{
			Eligible:  EligibleBonus(cfg.Milestones, c.ValidReferralCount),
			Paid:      paid,
			Unclaimed: UnclaimedBonus(cfg.Milestones, c.ValidReferralCount, paid),
			Claims:    c.BonusClaims,
		},
	}
	if m, ok := NextMilestone(cfg.Milestones, c.ValidReferralCount); ok {
		out.Milestones.Next = &m
		out.Milestones.UntilNext = m.ReferralsRequired - c.ValidReferralCount
	}
	if out.Referrals == nil {
		out.Referrals = []Record{}
	}
	return out, nil
}

func tierProgress(tiers []settings.Tier, count int) TierProgress {
	var p TierProgress
	idx := TierFor(tiers, count)
	if idx < 0 {
		p.ProgressToNext = hundred
		return p
	}
	p.Current = tiers[idx]
	if idx+1 >= len(tiers) {
		p.ProgressToNext = hundred
		return p
	}
	next := tiers[idx+1]
	p.Next = &next
	p.UntilNext = next.MinReferrals - count

	span := next.MinReferrals - p.Current.MinReferrals
	if span <= 0 {
		p.ProgressToNext = hundred
		return p
	}
	pct := decimal.NewFromInt(int64(count - p.Current.MinReferrals)).
		Mul(hundred).
		Div(decimal.NewFromInt(int64(span))).
		Round(2)
	p.ProgressToNext = decimal.Min(pct, hundred)
	return p
}
