package defs

import "golang.org/x/sys/unix"

// Signal_t is a signal number. The resume frame built by package sig
// mirrors the Linux x86-64 rt_sigframe (spec.md §4.7) so that an
// unmodified user-space restorer works; that only holds if the signal
// numbers themselves also match Linux's, which is why these are sourced
// from golang.org/x/sys/unix rather than renumbered locally.
type Signal_t int

const (
	SIGHUP    Signal_t = Signal_t(unix.SIGHUP)
	SIGINT    Signal_t = Signal_t(unix.SIGINT)
	SIGQUIT   Signal_t = Signal_t(unix.SIGQUIT)
	SIGILL    Signal_t = Signal_t(unix.SIGILL)
	SIGTRAP   Signal_t = Signal_t(unix.SIGTRAP)
	SIGABRT   Signal_t = Signal_t(unix.SIGABRT)
	SIGBUS    Signal_t = Signal_t(unix.SIGBUS)
	SIGFPE    Signal_t = Signal_t(unix.SIGFPE)
	SIGKILL   Signal_t = Signal_t(unix.SIGKILL)
	SIGUSR1   Signal_t = Signal_t(unix.SIGUSR1)
	SIGSEGV   Signal_t = Signal_t(unix.SIGSEGV)
	SIGUSR2   Signal_t = Signal_t(unix.SIGUSR2)
	SIGPIPE   Signal_t = Signal_t(unix.SIGPIPE)
	SIGALRM   Signal_t = Signal_t(unix.SIGALRM)
	SIGTERM   Signal_t = Signal_t(unix.SIGTERM)
	SIGCHLD   Signal_t = Signal_t(unix.SIGCHLD)
	SIGCONT   Signal_t = Signal_t(unix.SIGCONT)
	SIGSTOP   Signal_t = Signal_t(unix.SIGSTOP)
	SIGTSTP   Signal_t = Signal_t(unix.SIGTSTP)
	NSIG               = 32
)

// SigAction_t flags (spec.md §4.7).
const (
	SA_NODEFER   uint = 1 << 0
	SA_RESETHAND uint = 1 << 1
	SA_RESTART   uint = 1 << 2
)

// Disposition_t is what a task does when a signal it is not blocking
// becomes pending (spec.md §3, Task: "per-signal disposition").
type Disposition_t int

const (
	SigDefault Disposition_t = iota
	SigIgnore
	SigHandler
)

// Uncatchable reports whether sig can be caught or ignored. SIGKILL and
// SIGSTOP cannot be, per spec.md §4.7.
func Uncatchable(sig Signal_t) bool {
	return sig == SIGKILL || sig == SIGSTOP
}
