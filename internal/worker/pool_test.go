package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_RunsTask(t *testing.T) {
	p := NewPool(context.Background(), 2, 4, nil)
	defer p.Close()

	var ran atomic.Bool
	h, err := p.Submit(func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := h.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !ran.Load() {
		t.Error("task did not run")
	}
}

func TestPool_PropagatesTaskError(t *testing.T) {
	p := NewPool(context.Background(), 1, 1, nil)
	defer p.Close()

	wantErr := errors.New("leg failed")
	h, err := p.Submit(func(ctx context.Context) error { return wantErr })
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got := h.Wait(context.Background()); !errors.Is(got, wantErr) {
		t.Errorf("Wait() = %v, want %v", got, wantErr)
	}
}

func TestPool_FullQueue(t *testing.T) {
	p := NewPool(context.Background(), 1, 0, nil)
	defer p.Close()

	block := make(chan struct{})
	started := make(chan struct{})
	if _, err := p.Submit(func(ctx context.Context) error {
		close(started)
		<-block
		return nil
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-started

	if _, err := p.Submit(func(ctx context.Context) error { return nil }); !errors.Is(err, ErrPoolFull) {
		t.Errorf("Submit on full queue = %v, want ErrPoolFull", err)
	}
	close(block)
}

func TestPool_ZeroQueueDepthUsesIdleWorkers(t *testing.T) {
	p := NewPool(context.Background(), 2, 0, nil)
	defer p.Close()

	block := make(chan struct{})
	defer close(block)

	// Both workers are idle, so both submissions must be admitted even
	// though the queue depth is zero.
	for i := 0; i < 2; i++ {
		if _, err := p.Submit(func(ctx context.Context) error {
			<-block
			return nil
		}); err != nil {
			t.Fatalf("Submit %d with idle workers: %v", i, err)
		}
	}

	if _, err := p.Submit(func(ctx context.Context) error { return nil }); !errors.Is(err, ErrPoolFull) {
		t.Errorf("Submit beyond capacity = %v, want ErrPoolFull", err)
	}
}

func TestPool_CapacityFreesAfterCompletion(t *testing.T) {
	p := NewPool(context.Background(), 1, 0, nil)
	defer p.Close()

	h, err := p.Submit(func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := h.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	if _, err := p.Submit(func(ctx context.Context) error { return nil }); err != nil {
		t.Errorf("Submit after completion = %v, want accepted", err)
	}
}

func TestPool_ClosedRejectsSubmissions(t *testing.T) {
	p := NewPool(context.Background(), 1, 1, nil)
	p.Close()

	if _, err := p.Submit(func(ctx context.Context) error { return nil }); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Submit after Close = %v, want ErrPoolClosed", err)
	}
}

func TestPool_CloseDrainsQueue(t *testing.T) {
	p := NewPool(context.Background(), 1, 8, nil)

	var count atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		h, err := p.Submit(func(ctx context.Context) error {
			time.Sleep(time.Millisecond)
			count.Add(1)
			return nil
		})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Wait(context.Background())
		}()
	}

	p.Close()
	wg.Wait()

	if got := count.Load(); got != 5 {
		t.Errorf("completed = %d, want 5", got)
	}
}

func TestHandle_WaitRespectsContext(t *testing.T) {
	p := NewPool(context.Background(), 1, 1, nil)
	defer p.Close()

	block := make(chan struct{})
	defer close(block)
	h, err := p.Submit(func(ctx context.Context) error {
		<-block
		return nil
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := h.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() = %v, want deadline exceeded", err)
	}
}
