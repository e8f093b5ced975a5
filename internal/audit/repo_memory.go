package audit

import (
	"context"
	"fmt"
	"sync"

	"gamecredit-platform/internal/apperr"
)

// MemoryRepo holds the admin trail in process memory. Like audit_events it is
// insert-only and keyed by event id.
type MemoryRepo struct {
	mu     sync.Mutex
	events []Event
	ids    map[string]struct{}
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{ids: map[string]struct{}{}} }

func (r *MemoryRepo) AppendEvent(ctx context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.ids[e.ID]; dup {
		return fmt.Errorf("audit event %s: %w", e.ID, apperr.ErrConflict)
	}
	r.ids[e.ID] = struct{}{}
	r.events = append(r.events, e)
	return nil
}

// Events returns the whole trail, oldest first.
func (r *MemoryRepo) Events() []Event {
	return r.filter(func(Event) bool { return true })
}

// ForTarget returns what was done to one order, wallet, webhook or setting.
func (r *MemoryRepo) ForTarget(targetType, targetID string) []Event {
	return r.filter(func(e Event) bool { return e.TargetType == targetType && e.TargetID == targetID })
}

// ForClient returns every admin action that touched clientID.
func (r *MemoryRepo) ForClient(clientID string) []Event {
	return r.filter(func(e Event) bool { return e.ClientID == clientID })
}

func (r *MemoryRepo) filter(keep func(Event) bool) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
