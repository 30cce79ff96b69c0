package sched

import (
	"context"
	"sync"
	"testing"
	"time"

	"nucleuscore/defs"
	"nucleuscore/mem"
)

func mksched(t *testing.T, ncpu int) *Sched_t {
	t.Helper()
	phys := mem.Mkphysmem(256)
	phys.InitZeropg()
	return MkSched(ncpu, phys)
}

// Round-trip law from spec.md §8: "fork in parent returns child's id;
// in child returns 0" and wait4 observes the child's exit status.
func TestForkExitWait(t *testing.T) {
	s := mksched(t, 2)
	done := make(chan struct{})

	parent := s.Create(nil, func(ctx context.Context, pt *Task_t) {
		child, err := s.Fork(pt, func(ctx context.Context, ct *Task_t) {
			s.Exit(ct, 7)
		})
		if err != 0 {
			t.Errorf("fork failed: %v", err)
			close(done)
			return
		}
		gotpid, status, _, werr := s.Wait(pt, child.Pid)
		if werr != 0 {
			t.Errorf("wait failed: %v", werr)
		}
		if gotpid != child.Pid {
			t.Errorf("wait returned pid %v, want %v", gotpid, child.Pid)
		}
		if status != 7 {
			t.Errorf("wait returned status %v, want 7", status)
		}
		close(done)
	})
	if parent == nil {
		t.Fatal("Create failed")
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for fork/wait scenario")
	}
}

// Quantified invariant from spec.md §8: kill(T, SIGKILL) when T is
// Blocked must result in T reaching Terminated.
func TestKillWakesBlockedTask(t *testing.T) {
	s := mksched(t, 1)
	reached := make(chan struct{})
	var target *Task_t
	var mu sync.Mutex

	parent := s.Create(nil, func(ctx context.Context, pt *Task_t) {
		mu.Lock()
		target = pt
		mu.Unlock()
		close(reached)
		// blocks forever unless killed
		s.Block(pt, func() bool { return pt.Killed() })
	})
	if parent == nil {
		t.Fatal("Create failed")
	}

	select {
	case <-reached:
	case <-time.After(5 * time.Second):
		t.Fatal("task never reached its block point")
	}

	mu.Lock()
	tgt := target
	mu.Unlock()
	s.Kill(tgt)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if tgt.State() == ST_ZOMBIE || tgt.State() == ST_DEAD {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("killed task never reached a terminal state, got %v", tgt.State())
}

// Capability inheritance (spec.md §6): init gets every capability;
// children inherit the inheritable subset of their parent's set.
func TestCapabilityInheritance(t *testing.T) {
	s := mksched(t, 1)
	done := make(chan defs.Cap_t, 1)
	parent := s.Create(nil, func(ctx context.Context, pt *Task_t) {
		if pt.Caps != defs.CapAll {
			t.Errorf("init task caps = %v, want CapAll", pt.Caps)
		}
		child, err := s.Fork(pt, func(ctx context.Context, ct *Task_t) {
			done <- ct.Caps
			s.Exit(ct, 0)
		})
		if err != 0 {
			t.Errorf("fork failed: %v", err)
			done <- 0
			return
		}
		s.Wait(pt, child.Pid)
	})
	if parent == nil {
		t.Fatal("Create failed")
	}

	select {
	case got := <-done:
		if got != defs.CapAll&defs.CapInheritable {
			t.Errorf("child caps = %v, want %v", got, defs.CapAll&defs.CapInheritable)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
}
