package dashboard

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunEveryRearmsAfterCompletion(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		block    time.Duration
	}{
		{name: "fast run", interval: 20 * time.Millisecond},
		{name: "slow run pushes next tick", interval: 20 * time.Millisecond, block: 60 * time.Millisecond},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			var mu sync.Mutex
			var starts []time.Time
			second := make(chan struct{})
			done := make(chan struct{})
			go func() {
				defer close(done)
				runEvery(ctx, tt.interval, func(context.Context) {
					mu.Lock()
					starts = append(starts, time.Now())
					n := len(starts)
					mu.Unlock()
					switch n {
					case 1:
						time.Sleep(tt.block)
					case 2:
						close(second)
					}
				})
			}()

			select {
			case <-second:
			case <-time.After(2 * time.Second):
				t.Fatal("second run never happened")
			}
			cancel()
			<-done

			mu.Lock()
			defer mu.Unlock()
			if gap := starts[1].Sub(starts[0]); gap < tt.block+tt.interval {
				t.Fatalf("gap between runs = %v, want >= %v", gap, tt.block+tt.interval)
			}
		})
	}
}

func TestRunEverySlowTaskDoesNotDelayOthers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	release := make(chan struct{})
	var slowRuns, fastRuns atomic.Int64
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		runEvery(ctx, 5*time.Millisecond, func(ctx context.Context) {
			slowRuns.Add(1)
			select {
			case <-release:
			case <-ctx.Done():
			}
		})
	}()
	go func() {
		defer wg.Done()
		runEvery(ctx, 5*time.Millisecond, func(context.Context) { fastRuns.Add(1) })
	}()

	deadline := time.Now().Add(2 * time.Second)
	for fastRuns.Load() < 10 {
		if time.Now().After(deadline) {
			t.Fatalf("fast loop stalled at %d runs", fastRuns.Load())
		}
		time.Sleep(time.Millisecond)
	}
	if got := slowRuns.Load(); got != 1 {
		t.Fatalf("slow loop runs while blocked = %d, want 1", got)
	}

	close(release)
	cancel()
	wg.Wait()
}

func TestRunEveryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var runs atomic.Int64
	done := make(chan struct{})
	go func() {
		defer close(done)
		runEvery(ctx, time.Hour, func(context.Context) { runs.Add(1) })
	}()

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first run did not happen immediately")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runEvery did not return after cancel")
	}
}
