package sched

import (
	"context"

	"golang.org/x/sync/semaphore"

	"nucleuscore/defs"
)

// Sem_t is the counting-semaphore scoped primitive (spec.md §5,
// "semaphore wait on zero count"). Unlike Mutex_t and Futex_t it is
// not scheduler-native: golang.org/x/sync/semaphore.Weighted already
// implements exactly this — FIFO-fair weighted acquire/release over a
// context — and nothing about its blocking needs to compose with
// Sched_t.Block/Unblock's ordering guarantee the way a lock primitive
// used from inside the scheduler itself would (SPEC_FULL.md §3).
type Sem_t struct {
	w *semaphore.Weighted
}

// MkSem returns a semaphore initialized to count.
func MkSem(count int64) *Sem_t {
	return &Sem_t{w: semaphore.NewWeighted(count)}
}

// Wait decrements the count, blocking while it is zero, until ctx is
// canceled (spec.md §5's cancellation contract: a timed wait surfaces
// defs.ETIMEDOUT when its deadline elapses).
func (s *Sem_t) Wait(ctx context.Context) defs.Err_t {
	if err := s.w.Acquire(ctx, 1); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return -defs.ETIMEDOUT
		}
		return -defs.EINTR
	}
	return 0
}

// TryWait decrements the count without blocking, reporting whether it
// succeeded.
func (s *Sem_t) TryWait() bool {
	return s.w.TryAcquire(1)
}

// Post increments the count, waking a waiter if any is parked.
func (s *Sem_t) Post() {
	s.w.Release(1)
}
