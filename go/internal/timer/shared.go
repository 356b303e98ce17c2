package timer

import "sync"

// SharedTimer is the single access point to the timer. Writes take the lock
// exclusively for one whole operation, so no operation ever observes a
// partially applied one; reads may run concurrently with each other.
type SharedTimer struct {
	mu    sync.RWMutex
	timer *Timer
}

// NewShared wraps t. The caller must not use t directly afterwards.
func NewShared(t *Timer) *SharedTimer {
	return &SharedTimer{timer: t}
}

// Read runs fn with shared access. fn must not mutate the timer or keep
// references into it after returning.
func (s *SharedTimer) Read(fn func(t *Timer)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.timer)
}

// Write runs fn with exclusive access.
func (s *SharedTimer) Write(fn func(t *Timer)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.timer)
}

// ReadWith is Read for functions that produce a value.
func ReadWith[T any](s *SharedTimer, fn func(t *Timer) T) T {
	var out T
	s.Read(func(t *Timer) { out = fn(t) })
	return out
}

// WriteWith is Write for functions that produce a value.
func WriteWith[T any](s *SharedTimer, fn func(t *Timer) T) T {
	var out T
	s.Write(func(t *Timer) { out = fn(t) })
	return out
}
