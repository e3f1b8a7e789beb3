package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStopWaitsForGoroutines(t *testing.T) {
	s := New(context.Background())
	done := make(chan struct{})
	s.Go("worker", func(ctx context.Context) error {
		<-ctx.Done()
		close(done)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	select {
	case <-done:
	default:
		t.Fatal("goroutine still running after Stop returned")
	}
}

func TestWaitTimesOutOnStuckGoroutine(t *testing.T) {
	s := New(context.Background())
	release := make(chan struct{})
	s.Go("stuck", func(context.Context) error {
		<-release
		return nil
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestFirstErrorIsKept(t *testing.T) {
	s := New(context.Background())
	wantErr := errors.New("boom")
	s.Go("failing", func(context.Context) error { return wantErr })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Stop(ctx)
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want wrapped %v", err, wantErr)
	}
}

func TestCanceledReturnIsClean(t *testing.T) {
	s := New(context.Background())
	s.Go("clean", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("context.Canceled should not surface as failure, got %v", err)
	}
}

func TestPanicIsRecovered(t *testing.T) {
	s := New(context.Background())
	s.Go("panicky", func(context.Context) error { panic("kaboom") })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Stop(ctx)
	if err == nil {
		t.Fatal("panic must surface as the supervisor error")
	}
}

func TestCancelOnError(t *testing.T) {
	s := New(context.Background(), WithCancelOnError(true))
	stopped := make(chan struct{})
	s.Go("observer", func(ctx context.Context) error {
		<-ctx.Done()
		close(stopped)
		return nil
	})
	s.Go("failing", func(context.Context) error { return errors.New("boom") })

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("first error did not cancel sibling goroutines")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.Wait(ctx)
}

func TestGoRestartRetriesUntilSuccess(t *testing.T) {
	s := New(context.Background())
	attempts := 0
	ran := make(chan struct{})
	s.GoRestart("flaky", func(context.Context) error {
		attempts++
		if attempts < 2 {
			return errors.New("transient")
		}
		close(ran)
		return nil
	})

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("restart loop never recovered")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	// Transient errors are absorbed by the restart loop; a clean stop follows.
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestSnapshotCounters(t *testing.T) {
	s := New(context.Background())
	release := make(chan struct{})
	for i := 0; i < 3; i++ {
		s.Go("w", func(context.Context) error {
			<-release
			return nil
		})
	}
	snap := s.Snapshot()
	if snap.Started != 3 || snap.Active != 3 {
		t.Fatalf("snapshot = %+v, want 3 started and active", snap)
	}
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if got := s.Snapshot().Active; got != 0 {
		t.Fatalf("active = %d after drain, want 0", got)
	}
}
