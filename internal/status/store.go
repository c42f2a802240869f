package status

import (
	"sync"
	"time"
)

// Store holds the last known Record of every tracked device. All access goes
// through its methods; a single map-wide lock is enough since every update is
// a map lookup and a struct write.
type Store struct {
	mu      sync.RWMutex
	records map[DeviceID]Record
	now     func() time.Time

	// generation advances on every Evict. evicted keeps the generation at
	// which an id was removed so a cycle that read the roster earlier does
	// not re-track it.
	generation uint64
	evicted    map[DeviceID]uint64
}

func NewStore() *Store {
	return NewStoreWithClock(time.Now)
}

func NewStoreWithClock(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		records: make(map[DeviceID]Record),
		evicted: make(map[DeviceID]uint64),
		now:     now,
	}
}

// EnsureTracked inserts {Checking, now} for id if it is not tracked yet.
func (s *Store) EnsureTracked(id DeviceID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trackLocked(id)
}

// Generation returns the current eviction generation. Read it before
// fetching a roster and pass it to EnsureTrackedSince.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.generation
}

// EnsureTrackedSince behaves like EnsureTracked, except that ids evicted
// after gen are left alone. It reports whether id is tracked afterwards.
func (s *Store) EnsureTrackedSince(gen uint64, id DeviceID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if at, ok := s.evicted[id]; ok {
		if at > gen {
			return false
		}
		delete(s.evicted, id)
	}

	s.trackLocked(id)
	return true
}

func (s *Store) trackLocked(id DeviceID) {
	if _, ok := s.records[id]; ok {
		return
	}
	s.records[id] = Record{Status: Checking, ChangedAt: s.now()}
}

// RecordResult applies one probe outcome. The record is replaced only when
// the status changes; a result that agrees with the stored status keeps the
// original ChangedAt. Results for untracked ids are dropped.
//
// It returns the record as it was before the call and whether a transition
// happened.
func (s *Store) RecordResult(id DeviceID, reachable bool, now time.Time) (Record, bool) {
	next := FromReachable(reachable)

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	if prev.Status == next {
		return prev, false
	}

	s.records[id] = Record{Status: next, ChangedAt: now}
	return prev, true
}

// Get returns the record for a single device.
func (s *Store) Get(id DeviceID) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	return r, ok
}

// Snapshot returns a point-in-time copy safe to hold onto.
func (s *Store) Snapshot() map[DeviceID]Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[DeviceID]Record, len(s.records))
	for id, r := range s.records {
		out[id] = r
	}
	return out
}

// Evict forgets id. Safe to call for unknown ids.
func (s *Store) Evict(id DeviceID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.evicted[id] = s.generation
	delete(s.records, id)
}

// Prune drops eviction markers that no cycle started at or after gen can
// observe anymore.
func (s *Store) Prune(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, at := range s.evicted {
		if at <= gen {
			delete(s.evicted, id)
		}
	}
}
