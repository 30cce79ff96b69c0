// Package sig implements per-task signal state and delivery: pending
// and blocked bitmasks, per-signal disposition, and the resume-frame
// bookkeeping sigreturn needs to restore the pre-signal blocked mask
// (spec.md §3, "Signal delivery"; SPEC_FULL.md §3 wires this package's
// signal numbers to golang.org/x/sys/unix for Linux rt_sigframe ABI
// compatibility).
package sig

import (
	"sync"

	"nucleuscore/defs"
)

// Action_t is one signal's configured disposition and flags, the
// sigaction(2)-equivalent record.
type Action_t struct {
	Disp    defs.Disposition_t
	Handler uintptr // opaque user handler address; 0 for SigDefault/SigIgnore
	Flags   uint
	Mask    uint64 // additional signals blocked while the handler runs
}

// Frame_t is the state saved when a signal is delivered and restored
// by sigreturn, standing in for the Linux-ABI rt_sigframe spec.md
// names as the on-stack layout a real delivery path would construct.
type Frame_t struct {
	Sig        defs.Signal_t
	SavedBlocked uint64 // blocked mask to restore on sigreturn
	SavedPC    uintptr // where execution resumes after the handler returns
}

// Sigstate_t is one task's complete signal state.
type Sigstate_t struct {
	mu      sync.Mutex
	pending uint64
	blocked uint64
	actions [defs.NSIG + 1]Action_t
	frames  []Frame_t // stack of in-progress deliveries, for nested signals
}

// MkSigstate returns a freshly initialized Sigstate_t with every
// signal at its default disposition.
func MkSigstate() *Sigstate_t {
	return &Sigstate_t{}
}

func bit(s defs.Signal_t) uint64 { return 1 << uint(s) }

// Raise marks sig pending. Returns false if sig is out of range.
func (ss *Sigstate_t) Raise(s defs.Signal_t) bool {
	if s <= 0 || int(s) > defs.NSIG {
		return false
	}
	ss.mu.Lock()
	ss.pending |= bit(s)
	ss.mu.Unlock()
	return true
}

// SetAction installs the disposition for a catchable signal. Setting a
// handler or ignoring an uncatchable signal (SIGKILL/SIGSTOP) is
// rejected with EINVAL (spec.md §3, "uncatchable enforcement").
func (ss *Sigstate_t) SetAction(s defs.Signal_t, a Action_t) defs.Err_t {
	if defs.Uncatchable(s) && a.Disp != defs.SigDefault {
		return -defs.EINVAL
	}
	ss.mu.Lock()
	ss.actions[s] = a
	ss.mu.Unlock()
	return 0
}

// Action returns the configured disposition for s.
func (ss *Sigstate_t) Action(s defs.Signal_t) Action_t {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.actions[s]
}

// SetBlocked replaces the blocked-signal mask, as sigprocmask does,
// and returns the previous mask.
func (ss *Sigstate_t) SetBlocked(mask uint64) uint64 {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	old := ss.blocked
	// SIGKILL and SIGSTOP can never be blocked.
	ss.blocked = mask &^ (bit(defs.SIGKILL) | bit(defs.SIGSTOP))
	return old
}

// Next returns the lowest-numbered pending, unblocked signal and
// clears it from pending, or ok=false if none is deliverable.
func (ss *Sigstate_t) Next() (s defs.Signal_t, ok bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	deliverable := ss.pending &^ ss.blocked
	if deliverable == 0 {
		return 0, false
	}
	for i := 1; i <= defs.NSIG; i++ {
		if deliverable&bit(defs.Signal_t(i)) != 0 {
			ss.pending &^= bit(defs.Signal_t(i))
			return defs.Signal_t(i), true
		}
	}
	panic("unreachable")
}

// HasDeliverable reports whether any unblocked signal is pending,
// without consuming it — used by blocking syscalls to decide whether
// to return EINTR instead of going to sleep.
func (ss *Sigstate_t) HasDeliverable() bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.pending&^ss.blocked != 0
}

// Enter pushes a delivery frame, blocking the signal itself (unless
// SA_NODEFER) and any signals in the handler's mask for the handler's
// duration.
func (ss *Sigstate_t) Enter(s defs.Signal_t, a Action_t, pc uintptr) Frame_t {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	fr := Frame_t{Sig: s, SavedBlocked: ss.blocked, SavedPC: pc}
	ss.frames = append(ss.frames, fr)
	newblocked := ss.blocked | a.Mask
	if a.Flags&defs.SA_NODEFER == 0 {
		newblocked |= bit(s)
	}
	ss.blocked = newblocked &^ (bit(defs.SIGKILL) | bit(defs.SIGSTOP))
	return fr
}

// Return pops the most recent delivery frame (sigreturn) and restores
// the blocked mask it saved.
func (ss *Sigstate_t) Return() (Frame_t, bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	n := len(ss.frames)
	if n == 0 {
		return Frame_t{}, false
	}
	fr := ss.frames[n-1]
	ss.frames = ss.frames[:n-1]
	ss.blocked = fr.SavedBlocked
	return fr, true
}

// Disposition classifies what should happen when s is delivered with
// no frame active: terminate the task, terminate and dump core, stop,
// continue, or ignore — the POSIX default-action table restricted to
// the signals spec.md §7 names.
type Disposition int

const (
	D_TERM Disposition = iota
	D_CORE
	D_STOP
	D_CONT
	D_IGN
)

// DefaultDisposition returns the POSIX default action for s when its
// configured disposition is SigDefault.
func DefaultDisposition(s defs.Signal_t) Disposition {
	switch s {
	case defs.SIGSTOP, defs.SIGTSTP:
		return D_STOP
	case defs.SIGCONT:
		return D_CONT
	case defs.SIGCHLD:
		return D_IGN
	case defs.SIGQUIT, defs.SIGILL, defs.SIGABRT, defs.SIGFPE, defs.SIGSEGV, defs.SIGBUS, defs.SIGTRAP:
		return D_CORE
	default:
		return D_TERM
	}
}
