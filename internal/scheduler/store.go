package scheduler

import (
	"context"

	"github.com/ironhaven/worldserver/internal/clock"
	"github.com/ironhaven/worldserver/internal/domain"
)

// Action is the callback invoked when an event fires. Actions are behavior,
// not data: they are never persisted, only reconstructed from the event's
// ActionType after a restart.
type Action func(ctx context.Context, event *domain.TimeEvent) error

type entry struct {
	event  *domain.TimeEvent
	action Action
}

// eventStore holds all live events: one-shot events keyed by id, periodic
// events keyed by id, and a time-bucket index mapping a coarse bucket key
// to the set of one-shot ids due in that bucket. Lookup of due events is
// O(events in bucket) instead of O(total events).
//
// Invariants: an active one-shot is in exactly one bucket, keyed by its
// ExecuteAtMs; a paused one-shot is in the id map but in no bucket; a
// bucket's member set is discarded once empty. The store is not
// goroutine-safe; the TimeManager's mutex covers all access.
type eventStore struct {
	once     map[string]*entry
	periodic map[string]*entry
	buckets  map[int64]map[string]struct{}
}

func newEventStore() *eventStore {
	return &eventStore{
		once:     make(map[string]*entry),
		periodic: make(map[string]*entry),
		buckets:  make(map[int64]map[string]struct{}),
	}
}

// addOnce inserts a one-shot entry into the id map and, when active, its
// bucket. Paused entries are tracked without a bucket so they cannot fire.
// A live id is evicted from its old bucket first, so re-registering or
// re-arming an event never leaves it reachable from two buckets.
func (s *eventStore) addOnce(en *entry) {
	if prev, ok := s.once[en.event.ID]; ok {
		s.removeFromBucket(en.event.ID, prev.event.ExecuteAtMs)
	}
	s.once[en.event.ID] = en
	if en.event.Status == domain.EventActive {
		s.addToBucket(en.event.ID, en.event.ExecuteAtMs)
	}
}

func (s *eventStore) addToBucket(id string, executeAtMs int64) {
	key := clock.BucketKey(executeAtMs)
	if s.buckets[key] == nil {
		s.buckets[key] = make(map[string]struct{})
	}
	s.buckets[key][id] = struct{}{}
}

func (s *eventStore) removeFromBucket(id string, executeAtMs int64) {
	key := clock.BucketKey(executeAtMs)
	if members, ok := s.buckets[key]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(s.buckets, key)
		}
	}
}

// removeOnce drops a one-shot entry from both the id map and its bucket.
func (s *eventStore) removeOnce(id string) (*entry, bool) {
	en, ok := s.once[id]
	if !ok {
		return nil, false
	}
	delete(s.once, id)
	s.removeFromBucket(id, en.event.ExecuteAtMs)
	return en, true
}

// reschedule moves a one-shot entry between buckets atomically.
func (s *eventStore) reschedule(en *entry, newExecuteAtMs int64) {
	s.removeFromBucket(en.event.ID, en.event.ExecuteAtMs)
	en.event.ExecuteAtMs = newExecuteAtMs
	s.addToBucket(en.event.ID, newExecuteAtMs)
}

func (s *eventStore) addPeriodic(en *entry) {
	s.periodic[en.event.ID] = en
}

func (s *eventStore) removePeriodic(id string) (*entry, bool) {
	en, ok := s.periodic[id]
	if !ok {
		return nil, false
	}
	delete(s.periodic, id)
	return en, true
}

// get looks an id up in either map.
func (s *eventStore) get(id string) (*entry, bool) {
	if en, ok := s.once[id]; ok {
		return en, true
	}
	en, ok := s.periodic[id]
	return en, ok
}

// drainDue removes and returns every one-shot entry due at nowMs. All
// buckets with key at or below the current one are scanned, so a stall
// longer than one bucket width cannot orphan events. Entries in the
// current bucket whose ExecuteAtMs is still in the future stay put.
func (s *eventStore) drainDue(nowMs int64) []*entry {
	currentKey := clock.BucketKey(nowMs)
	var due []*entry
	for key, members := range s.buckets {
		if key > currentKey {
			continue
		}
		for id := range members {
			en, ok := s.once[id]
			if !ok {
				delete(members, id)
				continue
			}
			if en.event.IsDue(nowMs) {
				due = append(due, en)
				delete(s.once, id)
				delete(members, id)
			}
		}
		if len(members) == 0 {
			delete(s.buckets, key)
		}
	}
	return due
}

func (s *eventStore) stats() domain.TimeManagerStats {
	paused := 0
	for _, en := range s.once {
		if en.event.Status == domain.EventPaused {
			paused++
		}
	}
	return domain.TimeManagerStats{
		PeriodicEvents: len(s.periodic),
		OnceEvents:     len(s.once),
		PausedEvents:   paused,
		Buckets:        len(s.buckets),
	}
}
