package engine

import (
	"container/list"
	"hash/fnv"
	"sync"
	"time"
)

const windowShards = 16

// WindowStore owns per-user request timestamps and their synchronization.
type WindowStore interface {
	// Update applies fn to the user's window atomically and stores the result.
	// fn receives nil for users without a window. Returning an empty slice
	// releases the entry.
	Update(userID string, fn func(window []time.Time) []time.Time)
}

// MemoryWindowStore is a process-local WindowStore.
//
// Users are spread over striped shards so different users rarely contend.
// Each shard keeps an LRU list and evicts the least recently active user
// once it holds more than its share of maxUsers.
type MemoryWindowStore struct {
	shards      [windowShards]windowShard
	maxPerShard int
}

type windowShard struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
}

type windowEntry struct {
	userID string
	times  []time.Time
}

// NewMemoryWindowStore returns a store bounded to roughly maxUsers windows.
// A non-positive maxUsers disables the bound.
func NewMemoryWindowStore(maxUsers int) *MemoryWindowStore {
	s := &MemoryWindowStore{}
	if maxUsers > 0 {
		s.maxPerShard = (maxUsers + windowShards - 1) / windowShards
	}
	for i := range s.shards {
		s.shards[i].entries = make(map[string]*list.Element)
		s.shards[i].order = list.New()
	}
	return s
}

// Update implements WindowStore.
func (s *MemoryWindowStore) Update(userID string, fn func(window []time.Time) []time.Time) {
	shard := s.shard(userID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	var current []time.Time
	elem, ok := shard.entries[userID]
	if ok {
		current = elem.Value.(*windowEntry).times
	}

	next := fn(current)
	if len(next) == 0 {
		if ok {
			shard.order.Remove(elem)
			delete(shard.entries, userID)
		}
		return
	}

	if ok {
		elem.Value.(*windowEntry).times = next
		shard.order.MoveToFront(elem)
		return
	}

	shard.entries[userID] = shard.order.PushFront(&windowEntry{userID: userID, times: next})
	if s.maxPerShard > 0 {
		for shard.order.Len() > s.maxPerShard {
			oldest := shard.order.Back()
			shard.order.Remove(oldest)
			delete(shard.entries, oldest.Value.(*windowEntry).userID)
		}
	}
}

// Sweep drops windows whose newest timestamp has aged out and returns how
// many were removed.
func (s *MemoryWindowStore) Sweep(now time.Time, window time.Duration) int {
	removed := 0
	for i := range s.shards {
		shard := &s.shards[i]
		shard.mu.Lock()
		for elem := shard.order.Back(); elem != nil; {
			prev := elem.Prev()
			entry := elem.Value.(*windowEntry)
			if len(entry.times) == 0 || now.Sub(entry.times[len(entry.times)-1]) >= window {
				shard.order.Remove(elem)
				delete(shard.entries, entry.userID)
				removed++
			}
			elem = prev
		}
		shard.mu.Unlock()
	}
	return removed
}

// Len returns the number of tracked users.
func (s *MemoryWindowStore) Len() int {
	n := 0
	for i := range s.shards {
		shard := &s.shards[i]
		shard.mu.Lock()
		n += len(shard.entries)
		shard.mu.Unlock()
	}
	return n
}

func (s *MemoryWindowStore) shard(userID string) *windowShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &s.shards[h.Sum32()%windowShards]
}
