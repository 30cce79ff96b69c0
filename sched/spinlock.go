package sched

import "sync"

// Spinlock_t is the busy-wait mutual-exclusion primitive named
// alongside futex/mutex/semaphore in spec.md §5's "Scoped primitives".
// A hosted kernel has no way to disable interrupts around a real
// spin loop, and Go's runtime already parks a goroutine blocked on
// sync.Mutex instead of busy-waiting it on a real CPU — reinventing a
// spin loop on top of goroutines would only burn host CPU for no
// semantic gain, so this is sync.Mutex directly, documented as the
// kernel's spinlock rather than replaced by one.
type Spinlock_t = sync.Mutex
