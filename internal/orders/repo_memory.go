package orders

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"gamecredit-platform/internal/apperr"
	"gamecredit-platform/internal/ledger"
	"gamecredit-platform/pkg/utils"
)

// MemoryRepo is an in-memory Repository for tests. Orders and ledger rows roll back
// together when WithinTx fails.
type MemoryRepo struct {
	tx utils.MemoryTx

	mu      sync.Mutex
	clients map[string]struct{}
	orders  map[string]Order
	rows    []ledger.Transaction

	// FailUpdateTransaction makes UpdateTransaction fail, to exercise rollback.
	FailUpdateTransaction error
}

func NewMemoryRepo(clientIDs ...string) *MemoryRepo {
	r := &MemoryRepo{clients: map[string]struct{}{}, orders: map[string]Order{}}
	for _, id := range clientIDs {
		r.clients[id] = struct{}{}
	}
	return r
}

func (r *MemoryRepo) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.tx.Run(ctx, r.snapshot, fn)
}

func (r *MemoryRepo) snapshot() func() {
	r.mu.Lock()
	orders := make(map[string]Order, len(r.orders))
	for k, v := range r.orders {
		orders[k] = v
	}
	rows := append([]ledger.Transaction(nil), r.rows...)
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		r.orders, r.rows = orders, rows
		r.mu.Unlock()
	}
}

func (r *MemoryRepo) ClientExists(ctx context.Context, clientID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.clients[clientID]
	return ok, nil
}

func (r *MemoryRepo) LockWalletOwner(ctx context.Context, clientID string) error {
	if ok, _ := r.ClientExists(ctx, clientID); !ok {
		return fmt.Errorf("client %s: %w", clientID, apperr.ErrNotFound)
	}
	return nil
}

func (r *MemoryRepo) FindOrderByIdempotency(ctx context.Context, key string) (Order, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			return o, true, nil
		}
	}
	return Order{}, false, nil
}

func (r *MemoryRepo) InsertOrder(ctx context.Context, o Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o.IdempotencyKey != nil {
		for _, e := range r.orders {
			if e.IdempotencyKey != nil && *e.IdempotencyKey == *o.IdempotencyKey {
				return fmt.Errorf("order idempotency key: %w", apperr.ErrConflict)
			}
		}
	}
	r.orders[o.ID] = o
	return nil
}

func (r *MemoryRepo) GetOrder(ctx context.Context, orderID string) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return Order{}, fmt.Errorf("order %s: %w", orderID, apperr.ErrNotFound)
	}
	return o, nil
}

func (r *MemoryRepo) LockOrder(ctx context.Context, orderID string) (Order, error) {
	return r.GetOrder(ctx, orderID)
}

func (r *MemoryRepo) UpdateOrder(ctx context.Context, o Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[o.ID]; !ok {
		return fmt.Errorf("order %s: %w", o.ID, apperr.ErrNotFound)
	}
	r.orders[o.ID] = o
	return nil
}

func (r *MemoryRepo) ListOrdersByClient(ctx context.Context, clientID string) ([]Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Order
	for _, o := range r.orders {
		if o.ClientID == clientID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) ListTransactions(ctx context.Context, clientID string) ([]ledger.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ledger.Transaction
	for _, t := range r.rows {
		if t.ClientID == clientID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *MemoryRepo) InsertTransaction(ctx context.Context, t ledger.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.rows {
		if t.OrderID != nil && e.OrderID != nil && *e.OrderID == *t.OrderID {
			return fmt.Errorf("ledger row for order %s: %w", *t.OrderID, apperr.ErrConflict)
		}
	}
	r.rows = append(r.rows, t)
	return nil
}

func (r *MemoryRepo) GetTransactionByOrder(ctx context.Context, orderID string) (ledger.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.rows {
		if t.OrderID != nil && *t.OrderID == orderID {
			return t, nil
		}
	}
	return ledger.Transaction{}, fmt.Errorf("ledger row for order %s: %w", orderID, apperr.ErrNotFound)
}

func (r *MemoryRepo) UpdateTransaction(ctx context.Context, t ledger.Transaction) error {
	if r.FailUpdateTransaction != nil {
		return r.FailUpdateTransaction
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.rows {
		if e.ID == t.ID {
			r.rows[i] = t
			return nil
		}
	}
	return fmt.Errorf("transaction %s: %w", t.ID, apperr.ErrNotFound)
}

// Seed appends ledger rows directly. Test setup only.
func (r *MemoryRepo) Seed(rows ...ledger.Transaction) {
	r.mu.Lock()
	r.rows = append(r.rows, rows...)
	r.mu.Unlock()
}

// Rows returns a copy of the stored ledger rows.
func (r *MemoryRepo) Rows() []ledger.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ledger.Transaction(nil), r.rows...)
}
