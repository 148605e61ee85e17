package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPool_RunsSubmittedTasks(t *testing.T) {
	var ran atomic.Int64

	pool := NewPool(2, 10)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	for i := 0; i < 5; i++ {
		if !pool.Submit(func(ctx context.Context) {
			ran.Add(1)
		}) {
			t.Error("Submit rejected a task with buffer space left")
		}
	}

	time.Sleep(50 * time.Millisecond)

	cancel()
	pool.Stop()

	if ran.Load() != 5 {
		t.Errorf("expected 5 tasks run, got %d", ran.Load())
	}
}

func TestPool_SubmitDropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	pool := NewPool(1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	// Occupy the single worker and fill the buffer.
	pool.Submit(func(ctx context.Context) {
		<-block
	})
	time.Sleep(20 * time.Millisecond)
	pool.Submit(func(ctx context.Context) {})

	// Best effort: the pool sheds load instead of blocking the caller.
	if pool.Submit(func(ctx context.Context) {}) {
		t.Error("expected Submit to drop task when buffer is full")
	}

	close(block)
	cancel()
	pool.Stop()
}

func TestPool_GracefulStop(t *testing.T) {
	var ran atomic.Int64

	pool := NewPool(2, 50)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	for i := 0; i < 20; i++ {
		pool.Submit(func(ctx context.Context) {
			time.Sleep(5 * time.Millisecond)
			ran.Add(1)
		})
	}

	cancel()

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pool.Stop() timed out")
	}

	t.Logf("ran %d tasks before shutdown", ran.Load())
}
