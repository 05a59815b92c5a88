package sample

import (
	"sync"
)

// CallOutcome describes the value we record for each attempted call.
type CallOutcome struct {
	Success       bool
	ElapsedMillis float64
}

// Store is an append-only collection of successful call outcomes. It is safe
// for concurrent use; failed calls only bump a counter.
type Store struct {
	mu       sync.Mutex
	outcomes []CallOutcome
	failures int
}

// NewStore returns a Store with room for capacity outcomes.
func NewStore(capacity int) *Store {
	if capacity < 0 {
		capacity = 0
	}
	return &Store{outcomes: make([]CallOutcome, 0, capacity)}
}

// Record adds o to the store. Unsuccessful outcomes never reach the latency series.
func (s *Store) Record(o CallOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !o.Success {
		s.failures++
		return
	}
	s.outcomes = append(s.outcomes, o)
}

// Len is the number of successful samples.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outcomes)
}

// Failures is the number of recorded failed calls.
func (s *Store) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

// Outcomes returns a copy of the successful outcomes.
func (s *Store) Outcomes() []CallOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CallOutcome, len(s.outcomes))
	copy(out, s.outcomes)
	return out
}

// Latencies returns the elapsed times in milliseconds of every successful call.
func (s *Store) Latencies() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	lat := make([]float64, len(s.outcomes))
	for i, o := range s.outcomes {
		lat[i] = o.ElapsedMillis
	}
	return lat
}
