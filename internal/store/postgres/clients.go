package postgres

import (
	"context"

	"gamecredit-platform/internal/referral"
)

const clientColumns = `client_id, display_name, referral_code, referred_by_code, referral_locked,
	referral_count, valid_referral_count, bonus_claims, signup_ip, last_ip, created_at, updated_at`

func (s *Store) ClientExists(ctx context.Context, clientID string) (bool, error) {
	var ok bool
	err := s.get(ctx, &ok, `SELECT EXISTS (SELECT 1 FROM clients WHERE client_id = $1)`, clientID)
	return ok, classify(err, "client exists")
}

// LockWalletOwner serializes money writes for one client.
func (s *Store) LockWalletOwner(ctx context.Context, clientID string) error {
	var id string
	err := s.get(ctx, &id, `SELECT client_id FROM clients WHERE client_id = $1 FOR UPDATE`, clientID)
	return classify(err, "client "+clientID)
}

func (s *Store) InsertClient(ctx context.Context, c referral.Client) error {
	_, err := s.named(ctx, `
		INSERT INTO clients (`+clientColumns+`)
		VALUES (:client_id, :display_name, :referral_code, :referred_by_code, :referral_locked,
			:referral_count, :valid_referral_count, :bonus_claims, :signup_ip, :last_ip, :created_at, :updated_at)`, c)
	return classify(err, "client "+c.ID)
}

func (s *Store) GetClient(ctx context.Context, clientID string) (referral.Client, error) {
	var c referral.Client
	err := s.get(ctx, &c, `SELECT `+clientColumns+` FROM clients WHERE client_id = $1`, clientID)
	return c, classify(err, "client "+clientID)
}

func (s *Store) GetClientByCode(ctx context.Context, code string) (referral.Client, error) {
	var c referral.Client
	err := s.get(ctx, &c, `SELECT `+clientColumns+` FROM clients WHERE referral_code = $1`, code)
	return c, classify(err, "referral code "+code)
}

func (s *Store) LockClient(ctx context.Context, clientID string) (referral.Client, error) {
	var c referral.Client
	err := s.get(ctx, &c, `SELECT `+clientColumns+` FROM clients WHERE client_id = $1 FOR UPDATE`, clientID)
	return c, classify(err, "client "+clientID)
}

func (s *Store) UpdateClient(ctx context.Context, c referral.Client) error {
	res, err := s.named(ctx, `
		UPDATE clients SET
			display_name = :display_name,
			referred_by_code = :referred_by_code,
			referral_locked = :referral_locked,
			referral_count = :referral_count,
			valid_referral_count = :valid_referral_count,
			bonus_claims = :bonus_claims,
			last_ip = :last_ip,
			updated_at = :updated_at
		WHERE client_id = :client_id`, c)
	return mustAffect(res, err, "client "+c.ID)
}

func (s *Store) SetClientIP(ctx context.Context, clientID, ip string) error {
	res, err := s.exec(ctx,
		`UPDATE clients SET last_ip = $2, updated_at = NOW() WHERE client_id = $1`, clientID, ip)
	return mustAffect(res, err, "client "+clientID)
}
