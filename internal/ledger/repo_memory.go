package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"gamecredit-platform/internal/apperr"
	"gamecredit-platform/pkg/utils"
)

// MemoryRepo is an in-memory ledger for tests. Rows are returned newest first,
// matching the Postgres repository.
type MemoryRepo struct {
	tx utils.MemoryTx

	mu      sync.Mutex
	clients map[string]struct{}
	rows    []Transaction
}

func NewMemoryRepo(clientIDs ...string) *MemoryRepo {
	r := &MemoryRepo{clients: map[string]struct{}{}}
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
	saved := append([]Transaction(nil), r.rows...)
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		r.rows = saved
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
	ok, _ := r.ClientExists(ctx, clientID)
	if !ok {
		return fmt.Errorf("client %s: %w", clientID, apperr.ErrNotFound)
	}
	return nil
}

func (r *MemoryRepo) ListTransactions(ctx context.Context, clientID string) ([]Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Transaction, 0)
	for _, t := range r.rows {
		if t.ClientID == clientID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) FindTransactionByIdempotency(ctx context.Context, key string) (Transaction, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.rows {
		if t.IdempotencyKey != nil && *t.IdempotencyKey == key {
			return t, true, nil
		}
	}
	return Transaction{}, false, nil
}

func (r *MemoryRepo) InsertTransaction(ctx context.Context, t Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.IdempotencyKey != nil {
		for _, e := range r.rows {
			if e.IdempotencyKey != nil && *e.IdempotencyKey == *t.IdempotencyKey {
				return fmt.Errorf("idempotency key %s: %w", *t.IdempotencyKey, apperr.ErrConflict)
			}
		}
	}
	r.rows = append(r.rows, t)
	return nil
}

// Rows returns a copy of every stored row in insertion order.
func (r *MemoryRepo) Rows() []Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Transaction(nil), r.rows...)
}
