package stats

import (
	"fmt"
	"sync"
)

// Registry maps live worker identities to their metric contexts and
// owns the history accumulator for workers that already terminated.
// Contexts are owned by their workers; the registry holds only the
// association for the worker's registration span.
type Registry struct {
	mu        sync.Mutex
	live      map[WorkerID]*MetricsContext
	history   *Snapshot
	liveCount int
}

func NewRegistry() *Registry {
	return &Registry{
		live:    make(map[WorkerID]*MetricsContext),
		history: NewSnapshot(),
	}
}

// Register associates a worker's context with its identity. Registering
// an identity twice is a programming error and panics.
func (r *Registry) Register(id WorkerID, ctx *MetricsContext) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.live[id]; exists {
		panic(fmt.Sprintf("stats: worker %d already registered", id))
	}
	r.live[id] = ctx
	r.liveCount++
}

// Unregister folds the worker's final counts into the history
// accumulator and removes the association. Unregistering an unknown or
// already removed identity is a no-op.
func (r *Registry) Unregister(id WorkerID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, ok := r.live[id]
	if !ok {
		return
	}
	ctx.mergeInto(r.history)
	delete(r.live, id)
	r.liveCount--
}

// LiveWorkers reports the number of currently registered workers.
func (r *Registry) LiveWorkers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.liveCount
}

// mergeLive merges every live context except exclude, then the history
// accumulator, into s. Runs entirely under the registry lock so the
// snapshot observes a consistent registration set.
func (r *Registry) mergeLive(s *Snapshot, exclude WorkerID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, ctx := range r.live {
		if id == exclude {
			continue
		}
		ctx.mergeInto(s)
	}
	s.mergeSnapshot(r.history)
}

// Merger builds the per-interval snapshot. It owns one Snapshot whose
// storage is reused across cycles.
type Merger struct {
	registry *Registry
	snap     *Snapshot
}

func NewMerger(registry *Registry) *Merger {
	return &Merger{registry: registry, snap: NewSnapshot()}
}

// BuildSnapshot resets the reusable snapshot and repopulates it from
// every live context except exclude plus the history accumulator. The
// returned Snapshot is valid until the next BuildSnapshot call.
func (m *Merger) BuildSnapshot(exclude WorkerID) *Snapshot {
	m.snap.Reset()
	m.registry.mergeLive(m.snap, exclude)
	return m.snap
}
