package monitor

import (
	"sync"
	"time"
)

// Stopwatch measures running time, excluding the periods spent paused.
type Stopwatch struct {
	now func() time.Time

	mu            sync.RWMutex
	lastStartTime time.Time
	cumulative    time.Duration
	paused        bool
}

// NewStopwatch returns a running stopwatch. A nil clock means time.Now.
func NewStopwatch(now func() time.Time) *Stopwatch {
	if now == nil {
		now = time.Now
	}
	return &Stopwatch{
		now:           now,
		lastStartTime: now(),
	}
}

// Toggle flips between running and paused and returns the new paused state.
func (s *Stopwatch) Toggle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.paused {
		s.lastStartTime = now
	} else {
		s.cumulative += now.Sub(s.lastStartTime)
	}
	s.paused = !s.paused
	return s.paused
}

func (s *Stopwatch) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

func (s *Stopwatch) Elapsed() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.paused {
		return s.cumulative
	}
	return s.cumulative + s.now().Sub(s.lastStartTime)
}

// Read returns the elapsed time together with the paused state it was
// computed from.
func (s *Stopwatch) Read() (time.Duration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.paused {
		return s.cumulative, true
	}
	return s.cumulative + s.now().Sub(s.lastStartTime), false
}
