package sig

import (
	"testing"

	"nucleuscore/defs"
)

func TestRaiseAndNextRespectsBlockedMask(t *testing.T) {
	ss := MkSigstate()
	ss.SetBlocked(bit(defs.SIGUSR1))
	ss.Raise(defs.SIGUSR1)
	if ss.HasDeliverable() {
		t.Fatal("blocked signal should not be deliverable")
	}
	ss.SetBlocked(0)
	if !ss.HasDeliverable() {
		t.Fatal("unblocking should make the pending signal deliverable")
	}
	s, ok := ss.Next()
	if !ok || s != defs.SIGUSR1 {
		t.Fatalf("Next() = (%v, %v), want (SIGUSR1, true)", s, ok)
	}
}

// SIGKILL/SIGSTOP cannot be caught, ignored, or blocked (spec.md §4.6).
func TestUncatchableRejectsHandler(t *testing.T) {
	ss := MkSigstate()
	err := ss.SetAction(defs.SIGKILL, Action_t{Disp: defs.SigHandler, Handler: 0x1000})
	if err == 0 {
		t.Fatal("SetAction should reject a custom handler for SIGKILL")
	}
}

// Default disposition for most signals is termination (spec.md §8
// scenario 6, "signal default-terminate").
func TestDefaultDispositionTerminates(t *testing.T) {
	if got := DefaultDisposition(defs.SIGTERM); got != D_TERM {
		t.Fatalf("SIGTERM default disposition = %v, want D_TERM", got)
	}
	if got := DefaultDisposition(defs.SIGCHLD); got != D_IGN {
		t.Fatalf("SIGCHLD default disposition = %v, want D_IGN", got)
	}
}
