package sample

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordSeparatesFailures(t *testing.T) {
	s := NewStore(4)
	s.Record(CallOutcome{Success: true, ElapsedMillis: 1.5})
	s.Record(CallOutcome{Success: false, ElapsedMillis: 99})
	s.Record(CallOutcome{Success: true, ElapsedMillis: 2.5})

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 1, s.Failures())
	assert.Equal(t, []float64{1.5, 2.5}, s.Latencies())
}

func TestConcurrentRecordLosesNothing(t *testing.T) {
	const writers, perWriter = 50, 200
	s := NewStore(0)
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				s.Record(CallOutcome{Success: true, ElapsedMillis: float64(w*perWriter + i)})
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, writers*perWriter, s.Len())
	seen := make(map[float64]bool, writers*perWriter)
	for _, l := range s.Latencies() {
		assert.False(t, seen[l], "duplicate sample %v", l)
		seen[l] = true
	}
}

func TestOutcomesIsACopy(t *testing.T) {
	s := NewStore(1)
	s.Record(CallOutcome{Success: true, ElapsedMillis: 3})
	out := s.Outcomes()
	out[0].ElapsedMillis = 42
	assert.Equal(t, []float64{3}, s.Latencies())
}
