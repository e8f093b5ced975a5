package postgres

import (
	"context"

	"gamecredit-platform/internal/ledger"

	"github.com/shopspring/decimal"
)

const txColumns = `transaction_id, client_id, type, amount, original_amount, wallet_type, status, source,
	order_id, idempotency_key, reason, metadata, created_at, updated_at`

// ListTransactions returns every row of the client, newest first.
func (s *Store) ListTransactions(ctx context.Context, clientID string) ([]ledger.Transaction, error) {
	var out []ledger.Transaction
	err := s.sel(ctx, &out, `SELECT `+txColumns+` FROM ledger_transactions
		WHERE client_id = $1 ORDER BY created_at DESC, transaction_id`, clientID)
	return out, classify(err, "list transactions")
}

func (s *Store) FindTransactionByIdempotency(ctx context.Context, key string) (ledger.Transaction, bool, error) {
	var rows []ledger.Transaction
	if err := s.sel(ctx, &rows, `SELECT `+txColumns+` FROM ledger_transactions WHERE idempotency_key = $1`, key); err != nil {
		return ledger.Transaction{}, false, classify(err, "find transaction")
	}
	if len(rows) == 0 {
		return ledger.Transaction{}, false, nil
	}
	return rows[0], true, nil
}

func (s *Store) InsertTransaction(ctx context.Context, t ledger.Transaction) error {
	_, err := s.named(ctx, `
		INSERT INTO ledger_transactions (`+txColumns+`)
		VALUES (:transaction_id, :client_id, :type, :amount, :original_amount, :wallet_type, :status, :source,
			:order_id, :idempotency_key, :reason, :metadata, :created_at, :updated_at)`, t)
	return classify(err, "transaction "+t.ID)
}

func (s *Store) GetTransactionByOrder(ctx context.Context, orderID string) (ledger.Transaction, error) {
	var t ledger.Transaction
	err := s.get(ctx, &t, `SELECT `+txColumns+` FROM ledger_transactions WHERE order_id = $1`, orderID)
	return t, classify(err, "ledger row for order "+orderID)
}

// UpdateTransaction writes the mutable fields only: status, amount correction
// and reason. Everything else is immutable once inserted.
func (s *Store) UpdateTransaction(ctx context.Context, t ledger.Transaction) error {
	res, err := s.named(ctx, `
		UPDATE ledger_transactions SET
			status = :status,
			amount = :amount,
			original_amount = :original_amount,
			reason = :reason,
			updated_at = :updated_at
		WHERE transaction_id = :transaction_id`, t)
	return mustAffect(res, err, "transaction "+t.ID)
}

func (s *Store) SumTransactions(ctx context.Context, clientID string, typ ledger.Type, source string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.get(ctx, &total, `
		SELECT COALESCE(SUM(amount), 0) FROM ledger_transactions
		WHERE client_id = $1 AND type = $2 AND status = 'confirmed' AND ($3::text = '' OR source = $3)`,
		clientID, typ, source)
	return total, classify(err, "sum transactions")
}
