package pipeline

import (
	"errors"
	"sync"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/jellydator/ttlcache/v3"
)

// ErrRunInFlight is returned when a partition already has a live run.
var ErrRunInFlight = errors.New("run already in flight for partition")

// registry enforces at most one live run per partition and remembers
// finished runs for a while.
type registry struct {
	mu      sync.Mutex
	live    map[domain.PartitionKey]Run
	history *ttlcache.Cache[domain.PartitionKey, Run]
}

func newRegistry(ttl time.Duration) *registry {
	return &registry{
		live: make(map[domain.PartitionKey]Run),
		history: ttlcache.New(
			ttlcache.WithTTL[domain.PartitionKey, Run](ttl),
			ttlcache.WithDisableTouchOnHit[domain.PartitionKey, Run](),
		),
	}
}

func (r *registry) acquire(run Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.live[run.Partition]; ok {
		return ErrRunInFlight
	}
	r.live[run.Partition] = run
	return nil
}

// update replaces the live snapshot. Snapshots for runs that were already
// released are dropped.
func (r *registry) update(run Run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.live[run.Partition]; ok && cur.ID == run.ID {
		r.live[run.Partition] = run
	}
}

func (r *registry) release(run Run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.live[run.Partition]; ok && cur.ID == run.ID {
		delete(r.live, run.Partition)
	}
	r.history.Set(run.Partition, run, ttlcache.DefaultTTL)
}

// lookup returns the live run for p if there is one, else the last
// finished run still in history.
func (r *registry) lookup(p domain.PartitionKey) (Run, bool) {
	r.mu.Lock()
	run, ok := r.live[p]
	r.mu.Unlock()
	if ok {
		return run, true
	}
	if item := r.history.Get(p); item != nil {
		return item.Value(), true
	}
	return Run{}, false
}

func (r *registry) inFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// prune drops expired history. Unexpired runs stay visible to lookup.
func (r *registry) prune() {
	r.history.DeleteExpired()
}
