package referral

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"gamecredit-platform/internal/apperr"
	"gamecredit-platform/internal/ledger"
	"gamecredit-platform/pkg/utils"

	"github.com/shopspring/decimal"
)

// MemoryRepo is an in-memory Repository for tests. LockClient does not block;
// WithinTx already runs one transaction at a time.
type MemoryRepo struct {
	tx utils.MemoryTx

	mu        sync.Mutex
	clients   map[string]Client
	referrals map[string]Record // by referred client id
	rows      []ledger.Transaction
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{clients: map[string]Client{}, referrals: map[string]Record{}}
}

func (r *MemoryRepo) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.tx.Run(ctx, r.snapshot, fn)
}

func (r *MemoryRepo) snapshot() func() {
	r.mu.Lock()
	clients := make(map[string]Client, len(r.clients))
	for k, v := range r.clients {
		clients[k] = v
	}
	refs := make(map[string]Record, len(r.referrals))
	for k, v := range r.referrals {
		refs[k] = v
	}
	rows := append([]ledger.Transaction(nil), r.rows...)
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		r.clients, r.referrals, r.rows = clients, refs, rows
		r.mu.Unlock()
	}
}

func (r *MemoryRepo) InsertClient(ctx context.Context, c Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c.ID]; ok {
		return fmt.Errorf("client %s: %w", c.ID, apperr.ErrConflict)
	}
	for _, e := range r.clients {
		if e.ReferralCode == c.ReferralCode {
			return fmt.Errorf("referral code %s: %w", c.ReferralCode, apperr.ErrConflict)
		}
	}
	r.clients[c.ID] = c
	return nil
}

func (r *MemoryRepo) GetClient(ctx context.Context, clientID string) (Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[clientID]
	if !ok {
		return Client{}, fmt.Errorf("client %s: %w", clientID, apperr.ErrNotFound)
	}
	return c, nil
}

func (r *MemoryRepo) GetClientByCode(ctx context.Context, code string) (Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.clients {
		if c.ReferralCode == code {
			return c, nil
		}
	}
	return Client{}, fmt.Errorf("referral code %s: %w", code, apperr.ErrNotFound)
}

func (r *MemoryRepo) LockClient(ctx context.Context, clientID string) (Client, error) {
	return r.GetClient(ctx, clientID)
}

func (r *MemoryRepo) UpdateClient(ctx context.Context, c Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c.ID]; !ok {
		return fmt.Errorf("client %s: %w", c.ID, apperr.ErrNotFound)
	}
	r.clients[c.ID] = c
	return nil
}

func (r *MemoryRepo) SetClientIP(ctx context.Context, clientID, ip string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[clientID]
	if !ok {
		return fmt.Errorf("client %s: %w", clientID, apperr.ErrNotFound)
	}
	c.LastIP = ip
	r.clients[clientID] = c
	return nil
}

func (r *MemoryRepo) InsertReferral(ctx context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.referrals[rec.ReferredID]; ok {
		return fmt.Errorf("referral for %s: %w", rec.ReferredID, apperr.ErrConflict)
	}
	r.referrals[rec.ReferredID] = rec
	return nil
}

func (r *MemoryRepo) GetReferralByReferred(ctx context.Context, referredID string) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.referrals[referredID]
	if !ok {
		return Record{}, fmt.Errorf("referral for %s: %w", referredID, apperr.ErrNotFound)
	}
	return rec, nil
}

func (r *MemoryRepo) UpdateReferral(ctx context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.referrals[rec.ReferredID]; !ok {
		return fmt.Errorf("referral for %s: %w", rec.ReferredID, apperr.ErrNotFound)
	}
	r.referrals[rec.ReferredID] = rec
	return nil
}

func (r *MemoryRepo) ListReferralsByReferrer(ctx context.Context, referrerID string) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Record
	for _, rec := range r.referrals {
		if rec.ReferrerID == referrerID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) InsertTransaction(ctx context.Context, t ledger.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, t)
	return nil
}

func (r *MemoryRepo) SumTransactions(ctx context.Context, clientID string, typ ledger.Type, source string) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := decimal.Zero
	for _, t := range r.rows {
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

// Rows returns the ledger rows written so far, in insertion order.
func (r *MemoryRepo) Rows() []ledger.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ledger.Transaction(nil), r.rows...)
}

// Put stores c as-is. Test setup only.
func (r *MemoryRepo) Put(c Client) {
	r.mu.Lock()
	r.clients[c.ID] = c
	r.mu.Unlock()
}
