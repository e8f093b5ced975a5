package utils

import (
	"context"
	"sync"
)

// MemoryTx gives in-memory repositories the same unit-of-work shape as WithTx:
// one transaction at a time, nested calls join the outer one, and state is
// restored when fn fails.
type MemoryTx struct {
	mu sync.Mutex
}

type memTxKey struct{ owner *MemoryTx }

// Run executes fn. snapshot captures state and returns the function that restores it.
func (m *MemoryTx) Run(ctx context.Context, snapshot func() (restore func()), fn func(ctx context.Context) error) (err error) {
	if ctx.Value(memTxKey{m}) != nil {
		return fn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	restore := snapshot()
	defer func() {
		if p := recover(); p != nil {
			restore()
			panic(p)
		}
		if err != nil {
			restore()
		}
	}()
	return fn(context.WithValue(ctx, memTxKey{m}, true))
}
