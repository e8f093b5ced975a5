// Package memory is the in-memory counterpart of store/postgres: one Store backs
// the orders, referral and ledger services, and WithinTx spans all of them.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"gamecredit-platform/internal/apperr"
	"gamecredit-platform/internal/ledger"
	"gamecredit-platform/internal/orders"
	"gamecredit-platform/internal/referral"
	"gamecredit-platform/pkg/utils"

	"github.com/shopspring/decimal"
)

type Store struct {
	tx utils.MemoryTx

	mu        sync.Mutex
	clients   map[string]referral.Client
	orders    map[string]orders.Order
	referrals map[string]referral.Record // by referred client id
	rows      []ledger.Transaction
}

func New() *Store {
	return &Store{
		clients:   map[string]referral.Client{},
		orders:    map[string]orders.Order{},
		referrals: map[string]referral.Record{},
	}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.tx.Run(ctx, s.snapshot, fn)
}

func (s *Store) snapshot() func() {
	s.mu.Lock()
	clients := make(map[string]referral.Client, len(s.clients))
	for k, v := range s.clients {
		clients[k] = v
	}
	ords := make(map[string]orders.Order, len(s.orders))
	for k, v := range s.orders {
		ords[k] = v
	}
	refs := make(map[string]referral.Record, len(s.referrals))
	for k, v := range s.referrals {
		refs[k] = v
	}
	rows := append([]ledger.Transaction(nil), s.rows...)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		s.clients, s.orders, s.referrals, s.rows = clients, ords, refs, rows
		s.mu.Unlock()
	}
}

// PutClient stores c as-is. Test setup only.
func (s *Store) PutClient(c referral.Client) {
	s.mu.Lock()
	s.clients[c.ID] = c
	s.mu.Unlock()
}

// Rows returns every ledger row in insertion order.
func (s *Store) Rows() []ledger.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ledger.Transaction(nil), s.rows...)
}

// clients

func (s *Store) ClientExists(ctx context.Context, clientID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.clients[clientID]
	return ok, nil
}

func (s *Store) LockWalletOwner(ctx context.Context, clientID string) error {
	_, err := s.GetClient(ctx, clientID)
	return err
}

func (s *Store) InsertClient(ctx context.Context, c referral.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c.ID]; ok {
		return fmt.Errorf("client %s: %w", c.ID, apperr.ErrConflict)
	}
	for _, e := range s.clients {
		if e.ReferralCode == c.ReferralCode {
			return fmt.Errorf("referral code %s: %w", c.ReferralCode, apperr.ErrConflict)
		}
	}
	s.clients[c.ID] = c
	return nil
}

func (s *Store) GetClient(ctx context.Context, clientID string) (referral.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[clientID]
	if !ok {
		return referral.Client{}, fmt.Errorf("client %s: %w", clientID, apperr.ErrNotFound)
	}
	return c, nil
}

func (s *Store) GetClientByCode(ctx context.Context, code string) (referral.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		if c.ReferralCode == code {
			return c, nil
		}
	}
	return referral.Client{}, fmt.Errorf("referral code %s: %w", code, apperr.ErrNotFound)
}

// LockClient does not block; WithinTx already runs one transaction at a time.
func (s *Store) LockClient(ctx context.Context, clientID string) (referral.Client, error) {
	return s.GetClient(ctx, clientID)
}

func (s *Store) UpdateClient(ctx context.Context, c referral.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c.ID]; !ok {
		return fmt.Errorf("client %s: %w", c.ID, apperr.ErrNotFound)
	}
	s.clients[c.ID] = c
	return nil
}

func (s *Store) SetClientIP(ctx context.Context, clientID, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[clientID]
	if !ok {
		return fmt.Errorf("client %s: %w", clientID, apperr.ErrNotFound)
	}
	c.LastIP = ip
	s.clients[clientID] = c
	return nil
}

// orders

func (s *Store) FindOrderByIdempotency(ctx context.Context, key string) (orders.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			return o, true, nil
		}
	}
	return orders.Order{}, false, nil
}

func (s *Store) InsertOrder(ctx context.Context, o orders.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.IdempotencyKey != nil {
		for _, e := range s.orders {
			if e.IdempotencyKey != nil && *e.IdempotencyKey == *o.IdempotencyKey {
				return fmt.Errorf("order idempotency key: %w", apperr.ErrConflict)
			}
		}
	}
	s.orders[o.ID] = o
	return nil
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return orders.Order{}, fmt.Errorf("order %s: %w", orderID, apperr.ErrNotFound)
	}
	return o, nil
}

func (s *Store) LockOrder(ctx context.Context, orderID string) (orders.Order, error) {
	return s.GetOrder(ctx, orderID)
}

func (s *Store) UpdateOrder(ctx context.Context, o orders.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; !ok {
		return fmt.Errorf("order %s: %w", o.ID, apperr.ErrNotFound)
	}
	s.orders[o.ID] = o
	return nil
}

func (s *Store) ListOrdersByClient(ctx context.Context, clientID string) ([]orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []orders.Order
	for _, o := range s.orders {
		if o.ClientID == clientID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// referrals

func (s *Store) InsertReferral(ctx context.Context, r referral.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.referrals[r.ReferredID]; ok {
		return fmt.Errorf("referral for %s: %w", r.ReferredID, apperr.ErrConflict)
	}
	s.referrals[r.ReferredID] = r
	return nil
}

func (s *Store) GetReferralByReferred(ctx context.Context, referredID string) (referral.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.referrals[referredID]
	if !ok {
		return referral.Record{}, fmt.Errorf("referral for %s: %w", referredID, apperr.ErrNotFound)
	}
	return r, nil
}

func (s *Store) UpdateReferral(ctx context.Context, r referral.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.referrals[r.ReferredID]; !ok {
		return fmt.Errorf("referral for %s: %w", r.ReferredID, apperr.ErrNotFound)
	}
	s.referrals[r.ReferredID] = r
	return nil
}

func (s *Store) ListReferralsByReferrer(ctx context.Context, referrerID string) ([]referral.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []referral.Record
	for _, r := range s.referrals {
		if r.ReferrerID == referrerID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ledger

// ListTransactions returns the client's rows newest first, like the Postgres store.
func (s *Store) ListTransactions(ctx context.Context, clientID string) ([]ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ledger.Transaction, 0)
	for _, t := range s.rows {
		if t.ClientID == clientID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) FindTransactionByIdempotency(ctx context.Context, key string) (ledger.Transaction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.rows {
		if t.IdempotencyKey != nil && *t.IdempotencyKey == key {
			return t, true, nil
		}
	}
	return ledger.Transaction{}, false, nil
}

func (s *Store) InsertTransaction(ctx context.Context, t ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.rows {
		if t.IdempotencyKey != nil && e.IdempotencyKey != nil && *e.IdempotencyKey == *t.IdempotencyKey {
			return fmt.Errorf("idempotency key %s: %w", *t.IdempotencyKey, apperr.ErrConflict)
		}
		if t.OrderID != nil && e.OrderID != nil && *e.OrderID == *t.OrderID {
			return fmt.Errorf("ledger row for order %s: %w", *t.OrderID, apperr.ErrConflict)
		}
	}
	s.rows = append(s.rows, t)
	return nil
}

func (s *Store) GetTransactionByOrder(ctx context.Context, orderID string) (ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.rows {
		if t.OrderID != nil && *t.OrderID == orderID {
			return t, nil
		}
	}
	return ledger.Transaction{}, fmt.Errorf("ledger row for order %s: %w", orderID, apperr.ErrNotFound)
}

func (s *Store) UpdateTransaction(ctx context.Context, t ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.rows {
		if e.ID == t.ID {
			s.rows[i] = t
			return nil
		}
	}
	return fmt.Errorf("transaction %s: %w", t.ID, apperr.ErrNotFound)
}

func (s *Store) SumTransactions(ctx context.Context, clientID string, typ ledger.Type, source string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, t := range s.rows {
		if t.ClientID != clientID || t.Type != typ || t.Status != ledger.StatusConfirmed {
			continue
		}
		if source != "" && t.Source != source {
			continue
		}
		total = total.Add(t.Amount)
	}
	return total, nil
}
