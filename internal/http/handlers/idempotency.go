package handlers

import (
	"encoding/json"
	"hash/fnv"
	"sync"
	"time"
)

const idempotencyTTL = 24 * time.Hour

type idempotencyEntry struct {
	PayloadHash uint64
	JobID       string
	CreatedAt   time.Time
}

// idempotencyStore remembers which job an Idempotency-Key created. Entries
// expire after idempotencyTTL.
type idempotencyStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]idempotencyEntry
}

func newIdempotencyStore() *idempotencyStore {
	return &idempotencyStore{
		ttl:     idempotencyTTL,
		now:     time.Now,
		entries: make(map[string]idempotencyEntry),
	}
}

// claim returns the entry stored for key, creating it with create when the
// key is new or expired. The bool reports whether an existing entry was
// replayed. create runs under the store lock so concurrent duplicates start
// a single job.
func (s *idempotencyStore) claim(key string, payloadHash uint64, create func() string) (idempotencyEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if entry, ok := s.entries[key]; ok && now.Sub(entry.CreatedAt) < s.ttl {
		return entry, true
	}
	s.evictExpired(now)

	entry := idempotencyEntry{PayloadHash: payloadHash, JobID: create(), CreatedAt: now}
	s.entries[key] = entry
	return entry, false
}

func (s *idempotencyStore) evictExpired(now time.Time) {
	for key, entry := range s.entries {
		if now.Sub(entry.CreatedAt) >= s.ttl {
			delete(s.entries, key)
		}
	}
}

func hashPayload(value any) uint64 {
	payload, _ := json.Marshal(value)
	hasher := fnv.New64a()
	_, _ = hasher.Write(payload)
	return hasher.Sum64()
}
