// Package accnt accumulates per-task CPU-time accounting and renders it
// as an rusage-shaped byte buffer, wired to wait4's optional usage output
// (SPEC_FULL.md §4, "Supplemented features").
package accnt

import "sync"
import "sync/atomic"
import "time"

import "nucleuscore/util"

// Accnt_t accumulates per-task accounting information. Both Userns and
// Sysns store runtime in nanoseconds. The embedded mutex lets callers take
// a consistent snapshot when exporting usage statistics.
type Accnt_t struct {
	Userns int64 /// nanoseconds of user time consumed
	Sysns  int64 /// nanoseconds of system time consumed
	sync.Mutex
}

// Utadd adds delta nanoseconds to the user-time counter.
func (a *Accnt_t) Utadd(delta int) {
	atomic.AddInt64(&a.Userns, int64(delta))
}

// Systadd adds delta nanoseconds to the system-time counter.
func (a *Accnt_t) Systadd(delta int) {
	atomic.AddInt64(&a.Sysns, int64(delta))
}

// Now returns the current time in nanoseconds.
func (a *Accnt_t) Now() int {
	return int(time.Now().UnixNano())
}

// Io_time removes time spent waiting for I/O from system time.
func (a *Accnt_t) Io_time(since int) {
	a.Systadd(-(a.Now() - since))
}

// Sleep_time removes time spent sleeping from system time.
func (a *Accnt_t) Sleep_time(since int) {
	a.Systadd(-(a.Now() - since))
}

// Finish finalizes accounting by adding time since inttime to system time.
func (a *Accnt_t) Finish(inttime int) {
	a.Systadd(a.Now() - inttime)
}

// Add merges another accounting record into this one (used when a parent
// collects a reaped child's usage, per spec.md §4.3 "wait").
func (a *Accnt_t) Add(n *Accnt_t) {
	n.Lock()
	du, ds := n.Userns, n.Sysns
	n.Unlock()
	a.Lock()
	a.Userns += du
	a.Sysns += ds
	a.Unlock()
}

// Fetch returns a snapshot of the accounting information encoded as rusage.
func (a *Accnt_t) Fetch() []uint8 {
	a.Lock()
	ru := a.to_rusage()
	a.Unlock()
	return ru
}

// to_rusage converts the accounting data into a byte slice formatted as
// the {user,sys} timeval pairs of a POSIX rusage structure.
func (a *Accnt_t) to_rusage() []uint8 {
	words := 4
	ret := make([]uint8, words*8)
	totv := func(nano int64) (int, int) {
		secs := int(nano / 1e9)
		usecs := int((nano % 1e9) / 1000)
		return secs, usecs
	}
	off := 0
	s, us := totv(a.Userns)
	util.Writen(ret, 8, off, s)
	off += 8
	util.Writen(ret, 8, off, us)
	off += 8
	s, us = totv(a.Sysns)
	util.Writen(ret, 8, off, s)
	off += 8
	util.Writen(ret, 8, off, us)
	return ret
}
