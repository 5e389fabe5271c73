package testutil

import (
	"context"
	"sync"
	"time"
)

// FakeSleeper records requested delays and returns immediately unless the
// context is already done.
type FakeSleeper struct {
	mu     sync.Mutex
	Delays []time.Duration
}

func (f *FakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	f.Delays = append(f.Delays, d)
	f.mu.Unlock()
	return ctx.Err()
}

func (f *FakeSleeper) Calls() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.Delays...)
}
