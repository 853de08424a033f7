package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type countingFetcher struct {
	calls int32
}

func (f *countingFetcher) WarmResources(ctx context.Context) {
	atomic.AddInt32(&f.calls, 1)
}

// TestWarmer_Warm verifies one warming pass invokes the fetcher once.
func TestWarmer_Warm(t *testing.T) {
	fetcher := &countingFetcher{}
	w := NewWarmer(fetcher, zap.NewNop())

	w.Warm(context.Background())

	assert.Equal(t, int32(1), atomic.LoadInt32(&fetcher.calls))
}

// TestWarmer_WarmPeriodic verifies the periodic loop refreshes on the
// interval and stops when the context is cancelled.
func TestWarmer_WarmPeriodic(t *testing.T) {
	fetcher := &countingFetcher{}
	w := NewWarmer(fetcher, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.WarmPeriodic(ctx, 10*time.Millisecond) }()

	// Initial pass plus at least one tick.
	deadline := time.After(time.Second)
	for atomic.LoadInt32(&fetcher.calls) < 2 {
		select {
		case <-deadline:
			t.Fatal("periodic warming did not run a second pass in time")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("WarmPeriodic did not stop after cancel")
	}
}

// TestWarmer_NilLogger verifies warming works without a logger.
func TestWarmer_NilLogger(t *testing.T) {
	fetcher := &countingFetcher{}
	w := NewWarmer(fetcher, nil)

	w.Warm(context.Background())
	assert.Equal(t, int32(1), atomic.LoadInt32(&fetcher.calls))
}
