package engine

import (
	"sort"
	"sync"

	"biofilter_monitor/internal/clock"
	"biofilter_monitor/internal/models"
)

// DefaultHistorySize bounds the in-memory history.
const DefaultHistorySize = 100

// OwnershipMask is the set of fields currently owned by a simulation run.
// Fetched data never overwrites an owned field.
type OwnershipMask map[models.Field]struct{}

// Has reports whether f is owned.
func (m OwnershipMask) Has(f models.Field) bool {
	_, ok := m[f]
	return ok
}

// Fields returns the owned fields sorted by name.
func (m OwnershipMask) Fields() []models.Field {
	out := make([]models.Field, 0, len(m))
	for f := range m {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Store is the single shared holder of the current snapshot and the ownership mask.
// Readers never wait on I/O; writers hold the lock only for the in-memory update.
type Store struct {
	mu         sync.RWMutex
	clock      clock.Scheduler
	snap       models.Snapshot
	origin     models.Origin
	owned      OwnershipMask
	history    []models.Sample
	historyCap int
}

// NewStore returns a store initialized to the baseline snapshot.
func NewStore(sched clock.Scheduler, historySize int) *Store {
	if sched == nil {
		sched = clock.Real{}
	}
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	s := &Store{
		clock:      sched,
		snap:       models.BaselineSnapshot(),
		origin:     models.OriginBaseline,
		owned:      OwnershipMask{},
		historyCap: historySize,
	}
	s.recordLocked()
	return s
}

// Merge writes every field present in r into cur, except fields in mask.
func Merge(cur models.Snapshot, r models.Reading, mask OwnershipMask) models.Snapshot {
	for f, v := range r {
		if !f.Valid() || mask.Has(f) {
			continue
		}
		cur = cur.With(f, v)
	}
	return cur
}

// Current returns the latest merged snapshot.
func (s *Store) Current() models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Latest returns the current snapshot with its origin and update time.
func (s *Store) Latest() models.Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history[len(s.history)-1]
}

// MergeFetched merges r into the store. The ownership mask is consulted under
// the same lock as the write, so a field owned at merge time keeps its staged value.
func (s *Store) MergeFetched(r models.Reading, origin models.Origin) models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = Merge(s.snap, r, s.owned)
	s.origin = origin
	s.recordLocked()
	return s.snap
}

// ApplyOverride writes fields unconditionally. Only the mask owner calls it.
func (s *Store) ApplyOverride(fields map[models.Field]float64) {
	s.apply(fields, models.OriginOverride)
}

// Restore writes back previously captured values.
func (s *Store) Restore(fields map[models.Field]float64) {
	s.apply(fields, models.OriginRestore)
}

func (s *Store) apply(fields map[models.Field]float64, origin models.Origin) {
	if len(fields) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for f, v := range fields {
		s.snap = s.snap.With(f, v)
	}
	s.origin = origin
	s.recordLocked()
}

// SnapshotFor captures the current values of the named fields.
func (s *Store) SnapshotFor(fields ...models.Field) map[models.Field]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[models.Field]float64, len(fields))
	for _, f := range fields {
		out[f] = s.snap.Get(f)
	}
	return out
}

// Acquire adds fields to the ownership mask.
func (s *Store) Acquire(fields ...models.Field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range fields {
		s.owned[f] = struct{}{}
	}
}

// Release removes fields from the ownership mask.
func (s *Store) Release(fields ...models.Field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range fields {
		delete(s.owned, f)
	}
}

// Mask returns a copy of the ownership mask.
func (s *Store) Mask() OwnershipMask {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(OwnershipMask, len(s.owned))
	for f := range s.owned {
		out[f] = struct{}{}
	}
	return out
}

// Owns reports whether f is currently owned.
func (s *Store) Owns(f models.Field) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owned.Has(f)
}

// History returns up to limit recent samples, oldest first. limit <= 0 returns all.
func (s *Store) History(limit int) []models.Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if limit > 0 && limit < len(s.history) {
		start = len(s.history) - limit
	}
	out := make([]models.Sample, len(s.history)-start)
	copy(out, s.history[start:])
	return out
}

func (s *Store) recordLocked() {
	s.history = append(s.history, models.Sample{
		Snapshot: s.snap,
		Origin:   s.origin,
		At:       s.clock.Now(),
	})
	if over := len(s.history) - s.historyCap; over > 0 {
		s.history = append(s.history[:0], s.history[over:]...)
	}
}
