package postgres

import (
	"context"

	"gamecredit-platform/internal/orders"
)

const orderColumns = `order_id, client_id, order_type, wallet_type, amount, original_amount, status, idempotency_key,
	notes, screenshot_required, screenshot_url, edit_reason, confirmed_at, confirmed_by, rejection_reason,
	rejected_by, created_at, updated_at`

func (s *Store) FindOrderByIdempotency(ctx context.Context, key string) (orders.Order, bool, error) {
	var rows []orders.Order
	if err := s.sel(ctx, &rows, `SELECT `+orderColumns+` FROM orders WHERE idempotency_key = $1`, key); err != nil {
		return orders.Order{}, false, classify(err, "find order")
	}
	if len(rows) == 0 {
		return orders.Order{}, false, nil
	}
	return rows[0], true, nil
}

func (s *Store) InsertOrder(ctx context.Context, o orders.Order) error {
	_, err := s.named(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (:order_id, :client_id, :order_type, :wallet_type, :amount, :original_amount, :status, :idempotency_key,
			:notes, :screenshot_required, :screenshot_url, :edit_reason, :confirmed_at, :confirmed_by, :rejection_reason,
			:rejected_by, :created_at, :updated_at)`, o)
	return classify(err, "order "+o.ID)
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (orders.Order, error) {
	var o orders.Order
	err := s.get(ctx, &o, `SELECT `+orderColumns+` FROM orders WHERE order_id = $1`, orderID)
	return o, classify(err, "order "+orderID)
}

func (s *Store) LockOrder(ctx context.Context, orderID string) (orders.Order, error) {
	var o orders.Order
	err := s.get(ctx, &o, `SELECT `+orderColumns+` FROM orders WHERE order_id = $1 FOR UPDATE`, orderID)
	return o, classify(err, "order "+orderID)
}

func (s *Store) UpdateOrder(ctx context.Context, o orders.Order) error {
	res, err := s.named(ctx, `
		UPDATE orders SET
			amount = :amount,
			original_amount = :original_amount,
			status = :status,
			notes = :notes,
			screenshot_url = :screenshot_url,
			edit_reason = :edit_reason,
			confirmed_at = :confirmed_at,
			confirmed_by = :confirmed_by,
			rejection_reason = :rejection_reason,
			rejected_by = :rejected_by,
			updated_at = :updated_at
		WHERE order_id = :order_id`, o)
	return mustAffect(res, err, "order "+o.ID)
}

func (s *Store) ListOrdersByClient(ctx context.Context, clientID string) ([]orders.Order, error) {
	var out []orders.Order
	err := s.sel(ctx, &out, `SELECT `+orderColumns+` FROM orders WHERE client_id = $1 ORDER BY created_at DESC`, clientID)
	return out, classify(err, "list orders")
}
