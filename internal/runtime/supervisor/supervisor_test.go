package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	logx "netprobe/pkg/logx"
)

func TestGoRecoversPanicAndRecordsError(t *testing.T) {
	s := New(context.Background(), WithLogger(logx.Nop()))
	s.Go0("boom", func(ctx context.Context) { panic("kaboom") })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	if err == nil {
		t.Fatal("expected panic to be reported as error")
	}

	snap := s.Snapshot()
	if len(snap.Goroutines) != 1 || snap.Goroutines[0].Panics != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.Counters.Active != 0 {
		t.Fatalf("active = %d, want 0", snap.Counters.Active)
	}
}

func TestStopCancelsLoops(t *testing.T) {
	s := New(context.Background())
	started := make(chan struct{})
	s.Go("loop", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestCancelOnError(t *testing.T) {
	s := New(context.Background(), WithCancelOnError(true))
	s.Go("fail", func(ctx context.Context) error { return errors.New("nope") })

	select {
	case <-s.Context().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("expected supervisor context to be canceled")
	}
}
