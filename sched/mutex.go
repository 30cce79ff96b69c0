package sched

import "nucleuscore/defs"

// Mutex_t is a blocking mutex whose acquire-on-held-lock path is a
// scheduler suspension point (spec.md §5, "mutex-acquire-on-held-lock"),
// built on Block/Unblock rather than sync.Mutex so a contended
// Lock composes with the same happens-before guarantee every other
// suspension point gets: a concurrent Unlock can never be missed
// between a waiter's predicate check and it parking.
type Mutex_t struct {
	held bool
}

// MkMutex returns an unheld Mutex_t.
func MkMutex() *Mutex_t {
	return &Mutex_t{}
}

// Lock blocks t until the mutex is free, then claims it. The claim
// happens inside the wake predicate itself, which Block evaluates
// under the scheduler lock, so two tasks racing to acquire a
// just-released mutex can never both believe they got it.
func (m *Mutex_t) Lock(s *Sched_t, t *Task_t) defs.Err_t {
	s.Block(t, func() bool {
		if t.Killed() {
			return true
		}
		if m.held {
			return false
		}
		m.held = true
		return true
	})
	if t.Killed() {
		return -defs.EINTR
	}
	return 0
}

// TryLock claims the mutex without blocking, reporting whether it
// succeeded. Like Lock, the check-and-set runs under the scheduler
// lock so it cannot race a concurrent Lock/TryLock/Unlock.
func (m *Mutex_t) TryLock(s *Sched_t) bool {
	ok := false
	s.withLock(func() {
		if !m.held {
			m.held = true
			ok = true
		}
	})
	return ok
}

// Unlock releases the mutex and wakes any task blocked in Lock.
func (m *Mutex_t) Unlock(s *Sched_t) {
	s.withLock(func() { m.held = false })
	s.Unblock()
}
