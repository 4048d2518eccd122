package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingFlusher struct {
	n   atomic.Int32
	err error
}

func (c *countingFlusher) Flush(ctx context.Context) error {
	c.n.Add(1)
	return c.err
}

func TestScheduler_FlushesPeriodically(t *testing.T) {
	f := &countingFlusher{err: errors.New("disk full")}
	s := NewScheduler(10*time.Millisecond, f, nil)
	s.Start(context.Background())
	s.Start(context.Background()) // no-op

	deadline := time.Now().Add(time.Second)
	for f.n.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()
	if f.n.Load() < 3 {
		t.Fatalf("want at least 3 flushes, got %d", f.n.Load())
	}

	after := f.n.Load()
	time.Sleep(30 * time.Millisecond)
	if f.n.Load() != after {
		t.Fatal("flushes continued after Stop")
	}
	s.Stop() // idempotent
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	NewScheduler(0, &countingFlusher{}, nil).Stop()
}
