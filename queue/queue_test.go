package queue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestQueue_Enqueue_And_Close(t *testing.T) {
	q := New(8)
	q.Start()
	defer q.Close()

	var count int64
	for i := 0; i < 10; i++ {
		if err := q.Enqueue(Func(func(ctx context.Context) error {
			atomic.AddInt64(&count, 1)
			return nil
		})); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt64(&count) >= 10 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("want 10 ops applied, got %d", atomic.LoadInt64(&count))
}

func TestQueue_FIFOOrder(t *testing.T) {
	q := New(32)
	q.Start()
	defer q.Close()

	var (
		order = make([]int, 0, 20)
		done  = make(chan struct{})
	)
	for i := 0; i < 20; i++ {
		i := i
		if err := q.Enqueue(Func(func(ctx context.Context) error {
			order = append(order, i) // worker goroutine only
			if i == 19 {
				close(done)
			}
			return nil
		})); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ops to drain")
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("op %d ran out of order: got %d", i, got)
		}
	}
}

func TestQueue_RunSync(t *testing.T) {
	q := New(4)
	q.Start()
	defer q.Close()

	ran := false
	if err := q.RunSync(func(ctx context.Context) error {
		ran = true
		return nil
	}); err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if !ran {
		t.Fatal("RunSync returned before the op ran")
	}
}

func TestQueue_EnqueueAfterClose(t *testing.T) {
	q := New(4)
	q.Start()
	q.Close()

	err := q.Enqueue(Func(func(ctx context.Context) error { return nil }))
	if err != ErrClosed {
		t.Fatalf("enqueue after close: got %v, want ErrClosed", err)
	}
}

func TestQueue_CloseIsIdempotent(t *testing.T) {
	q := New(4)
	q.Start()
	q.Close()
	q.Close() // must not panic or hang
}
