// Package quota tracks how many chat requests have been served during the
// current calendar day. State is process-local and lost on restart, which
// is acceptable for a demo: the worst case is a fresh allowance after a
// deploy.
package quota

import (
	"sync"
	"time"
)

const dayFormat = "2006-01-02"

// Store is a mutex-guarded daily counter with a lazy calendar-day reset:
// the counter zeroes on the first touch after midnight, with no background
// timer. All methods perform the reset check first, so a cross-midnight
// caller always sees a fresh counter.
type Store struct {
	mu    sync.Mutex
	limit int
	count int
	day   string
	now   func() time.Time
}

// NewStore creates a store allowing limit requests per calendar day.
func NewStore(limit int) *Store {
	return NewStoreWithClock(limit, time.Now)
}

// NewStoreWithClock is NewStore with an injectable clock for tests.
func NewStoreWithClock(limit int, now func() time.Time) *Store {
	return &Store{
		limit: limit,
		day:   now().Format(dayFormat),
		now:   now,
	}
}

// Allow reports whether another request fits under today's limit. It does
// not consume a slot; Increment does, and only on upstream success.
func (s *Store) Allow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetIfNewDay()
	return s.count < s.limit
}

// Increment consumes one slot of today's allowance.
func (s *Store) Increment() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetIfNewDay()
	s.count++
}

// Count returns the number of requests served today.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetIfNewDay()
	return s.count
}

// Remaining returns how many requests are left today, never negative.
func (s *Store) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetIfNewDay()
	if s.count >= s.limit {
		return 0
	}
	return s.limit - s.count
}

// Limit returns the configured daily maximum.
func (s *Store) Limit() int {
	return s.limit
}

func (s *Store) resetIfNewDay() {
	today := s.now().Format(dayFormat)
	if today != s.day {
		s.count = 0
		s.day = today
	}
}
