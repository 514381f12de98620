// Package peers tracks which remote session members are currently alive.
//
// The discovery layer (outside this module) announces peers by node id;
// the registry keeps each one alive for a fixed time-to-live, expires the
// quiet ones, and reports the live count to an observer exactly when it
// changes. The controller's SetNumPeers is the intended observer.
package peers

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// NodeID identifies one process in the session mesh.
type NodeID = uuid.UUID

// NewNodeID returns a fresh random node id.
func NewNodeID() NodeID { return uuid.New() }

// Registry is a TTL-based liveness table. Safe for concurrent use; the
// observer is invoked without the registry's state lock held, and a
// separate notify lock keeps deliveries in count order, so the observer
// always ends on the current count.
type Registry struct {
	ttl     time.Duration
	now     func() time.Time
	onCount func(uint64)

	// notify spans a count change and its delivery; mu guards the table.
	notify sync.Mutex
	mu     sync.Mutex
	alive  map[NodeID]time.Time // expiry deadline per peer
	last   uint64               // last reported count

	sweep  *time.Ticker
	done   chan struct{}
	closed sync.Once
}

// NewRegistry creates a registry whose entries live for ttl after their
// last announcement. onCount may be nil. A background sweeper expires
// peers that stop announcing; Seen and Count also expire lazily, so tests
// with a short ttl need not wait for the sweeper.
func NewRegistry(ttl time.Duration, onCount func(uint64)) *Registry {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	r := &Registry{
		ttl:     ttl,
		now:     time.Now,
		onCount: onCount,
		alive:   map[NodeID]time.Time{},
		sweep:   time.NewTicker(ttl / 2),
		done:    make(chan struct{}),
	}
	go r.sweepLoop()
	return r
}

// Seen marks a peer alive until now+ttl, adding it if new.
func (r *Registry) Seen(id NodeID) {
	r.notify.Lock()
	r.mu.Lock()
	r.expireLocked()
	r.alive[id] = r.now().Add(r.ttl)
	count, changed := r.countLocked()
	r.mu.Unlock()
	r.report(count, changed)
	r.notify.Unlock()
}

// Forget drops a peer immediately, e.g. on an explicit bye-bye message.
func (r *Registry) Forget(id NodeID) {
	r.notify.Lock()
	r.mu.Lock()
	delete(r.alive, id)
	r.expireLocked()
	count, changed := r.countLocked()
	r.mu.Unlock()
	r.report(count, changed)
	r.notify.Unlock()
}

// Count returns the number of currently live peers. Like the sweeper, it
// reports a change to the observer if lazy expiry uncovered one.
func (r *Registry) Count() uint64 {
	r.notify.Lock()
	r.mu.Lock()
	r.expireLocked()
	count, changed := r.countLocked()
	r.mu.Unlock()
	r.report(count, changed)
	r.notify.Unlock()
	return count
}

// Close stops the sweeper. The registry stays usable; it just no longer
// expires peers in the background.
func (r *Registry) Close() {
	r.closed.Do(func() {
		r.sweep.Stop()
		close(r.done)
	})
}

func (r *Registry) sweepLoop() {
	for {
		select {
		case <-r.done:
			return
		case <-r.sweep.C:
			r.notify.Lock()
			r.mu.Lock()
			r.expireLocked()
			count, changed := r.countLocked()
			r.mu.Unlock()
			r.report(count, changed)
			r.notify.Unlock()
		}
	}
}

func (r *Registry) expireLocked() {
	now := r.now()
	for id, deadline := range r.alive {
		if now.After(deadline) {
			delete(r.alive, id)
		}
	}
}

// countLocked updates the last reported count and says whether it moved.
func (r *Registry) countLocked() (uint64, bool) {
	count := uint64(len(r.alive))
	changed := count != r.last
	r.last = count
	return count, changed
}

func (r *Registry) report(count uint64, changed bool) {
	if changed && r.onCount != nil {
		r.onCount(count)
	}
}
