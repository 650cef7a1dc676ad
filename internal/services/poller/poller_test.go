package poller

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	logx "bosstimer/pkg/logx"
)

func TestTickRunsPass(t *testing.T) {
	t.Parallel()
	var n atomic.Int32
	s := New(Config{Interval: time.Hour}, func(ctx context.Context) error {
		n.Add(1)
		return nil
	}, logx.Nop())

	ctx := context.Background()
	s.Start(ctx)
	defer s.Stop(ctx)

	s.mu.Lock()
	runCtx := s.runCtx
	s.mu.Unlock()

	s.tick(runCtx)
	s.tick(runCtx)
	if got := n.Load(); got != 2 {
		t.Fatalf("pass ran %d times, want 2", got)
	}
}

func TestTickSkipsWhileBusy(t *testing.T) {
	t.Parallel()
	block := make(chan struct{})
	started := make(chan struct{})
	var n atomic.Int32
	s := New(Config{Interval: time.Hour}, func(ctx context.Context) error {
		n.Add(1)
		close(started)
		<-block
		return nil
	}, logx.Nop())

	ctx := context.Background()
	s.Start(ctx)
	defer s.Stop(ctx)

	s.mu.Lock()
	runCtx := s.runCtx
	s.mu.Unlock()

	go s.tick(runCtx)
	<-started
	s.tick(runCtx) // overlapping tick must be skipped
	close(block)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if !s.busy.TryLock() {
			time.Sleep(time.Millisecond)
			continue
		}
		s.busy.Unlock()
		break
	}
	if got := n.Load(); got != 1 {
		t.Fatalf("pass ran %d times, want 1", got)
	}
}

func TestTickAfterStopIsNoop(t *testing.T) {
	t.Parallel()
	var n atomic.Int32
	s := New(Config{Interval: time.Hour}, func(ctx context.Context) error {
		n.Add(1)
		return nil
	}, logx.Nop())

	ctx := context.Background()
	s.Start(ctx)
	s.mu.Lock()
	runCtx := s.runCtx
	s.mu.Unlock()
	s.Stop(ctx)

	s.tick(runCtx)
	if got := n.Load(); got != 0 {
		t.Fatalf("pass ran %d times after stop", got)
	}
}
