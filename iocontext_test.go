package tempolink

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestQueueIoContextRunsHandlersInOrder(t *testing.T) {
	io := NewQueueIoContext(nil)
	defer io.Close()

	var (
		mu    sync.Mutex
		order []int
		done  = make(chan struct{})
	)
	for i := 0; i < 10; i++ {
		i := i
		io.Async(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			if i == 9 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handlers did not run")
	}
	mu.Lock()
	defer mu.Unlock()
	for i, got := range order {
		if got != i {
			t.Fatalf("handler %d ran out of order: got %d", i, got)
		}
	}
}

func TestQueueIoContextAsyncAfterCloseDoesNotPanic(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel) // keep the dropped-handler line quiet
	io := NewQueueIoContext(log)
	io.Close()
	io.Async(func() { t.Error("handler ran after close") })
	time.Sleep(10 * time.Millisecond)
}

func TestQueueIoContextLogSink(t *testing.T) {
	log := logrus.New()
	io := NewQueueIoContext(log)
	defer io.Close()
	if io.Log() != log {
		t.Fatal("Log must return the injected sink")
	}

	withDefault := NewQueueIoContext(nil)
	defer withDefault.Close()
	if withDefault.Log() == nil {
		t.Fatal("nil logger must be replaced with a default sink")
	}
}

func TestSyncIoContextRunsInline(t *testing.T) {
	ran := false
	SyncIoContext{}.Async(func() { ran = true })
	if !ran {
		t.Fatal("SyncIoContext must run the handler before returning")
	}
	if (SyncIoContext{}).Log() == nil {
		t.Fatal("SyncIoContext must always have a log sink")
	}
}
