package postgres

import (
	"context"

	"gamecredit-platform/internal/referral"
)

const referralColumns = `referral_id, referrer_client_id, referred_client_id, referral_code, status, is_suspicious,
	fraud_flags, total_deposits, referred_ip, validated_at, created_at, updated_at`

func (s *Store) InsertReferral(ctx context.Context, r referral.Record) error {
	_, err := s.named(ctx, `
		INSERT INTO referrals (`+referralColumns+`)
		VALUES (:referral_id, :referrer_client_id, :referred_client_id, :referral_code, :status, :is_suspicious,
			:fraud_flags, :total_deposits, :referred_ip, :validated_at, :created_at, :updated_at)`, r)
	return classify(err, "referral for "+r.ReferredID)
}

func (s *Store) GetReferralByReferred(ctx context.Context, referredID string) (referral.Record, error) {
	var r referral.Record
	err := s.get(ctx, &r, `SELECT `+referralColumns+` FROM referrals WHERE referred_client_id = $1`, referredID)
	return r, classify(err, "referral for "+referredID)
}

func (s *Store) UpdateReferral(ctx context.Context, r referral.Record) error {
	res, err := s.named(ctx, `
		UPDATE referrals SET
			status = :status,
			is_suspicious = :is_suspicious,
			fraud_flags = :fraud_flags,
			total_deposits = :total_deposits,
			validated_at = :validated_at,
			updated_at = :updated_at
		WHERE referral_id = :referral_id`, r)
	return mustAffect(res, err, "referral for "+r.ReferredID)
}

func (s *Store) ListReferralsByReferrer(ctx context.Context, referrerID string) ([]referral.Record, error) {
	var out []referral.Record
	err := s.sel(ctx, &out, `SELECT `+referralColumns+` FROM referrals
		WHERE referrer_client_id = $1 ORDER BY created_at DESC`, referrerID)
	return out, classify(err, "list referrals")
}
