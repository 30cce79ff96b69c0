package kernel

import (
	"context"
	"testing"
	"time"

	"nucleuscore/defs"
	"nucleuscore/fd"
	"nucleuscore/mem"
	"nucleuscore/sched"
	"nucleuscore/sys"
)

// End-to-end scenario 1 from spec.md §8: "hello world." A user task
// executes write(1, "hi\n", 3); exit(0). The bytes reach the console
// device; wait in the parent returns the child's id with status 0.
func TestHelloWorldEndToEnd(t *testing.T) {
	k := New(DefaultConfig())
	done := make(chan struct{})
	var gotpid int
	var gotstatus int

	_, err := k.CreateUser("^1.0.0", func(ctx context.Context, pt *sched.Task_t) {
		console := fd.MkConsole()
		pt.AddFd(&fd.Fd_t{Fops: console, Perms: fd.FD_READ})
		pt.AddFd(&fd.Fd_t{Fops: console, Perms: fd.FD_WRITE})
		pt.AddFd(&fd.Fd_t{Fops: console, Perms: fd.FD_WRITE})

		const msg = "hi\n"
		childPid, ferr := k.Trap(ctx, sys.Frame_t{
			Sysno: defs.SYS_FORK,
			Cont: func(ctx context.Context, ct *sched.Task_t) {
				va, ok := ct.Vm.FindFreeRegion(mem.PGSIZE)
				if !ok {
					t.Errorf("no free VA region in child")
					return
				}
				ct.Vm.Vmadd_anon(va, mem.PGSIZE, mem.PTE_U|mem.PTE_W)
				if werr := ct.Vm.K2user([]byte(msg), va); werr != 0 {
					t.Errorf("K2user failed: %v", werr)
					return
				}
				if _, werr := k.Trap(ctx, sys.Frame_t{
					Sysno: defs.SYS_WRITE,
					Args:  [6]int{1, va, len(msg)},
				}); werr != 0 {
					t.Errorf("write failed: %v", werr)
				}
				k.Trap(ctx, sys.Frame_t{Sysno: defs.SYS_EXIT, Args: [6]int{0}})
			},
		})
		if ferr != 0 {
			t.Errorf("fork failed: %v", ferr)
			close(done)
			return
		}

		statusva, ok := pt.Vm.FindFreeRegion(mem.PGSIZE)
		if !ok {
			t.Errorf("no free VA region for status")
			close(done)
			return
		}
		pt.Vm.Vmadd_anon(statusva, mem.PGSIZE, mem.PTE_U|mem.PTE_W)

		pid, werr := k.Trap(ctx, sys.Frame_t{
			Sysno: defs.SYS_WAIT4,
			Args:  [6]int{childPid, statusva, 0},
		})
		if werr != 0 {
			t.Errorf("wait4 failed: %v", werr)
			close(done)
			return
		}
		status, _ := pt.Vm.Userreadn(statusva, 8)
		gotpid = pid
		gotstatus = status
		close(done)
	})
	if err != 0 {
		t.Fatalf("CreateUser failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for hello-world scenario")
	}

	if gotpid == 0 {
		t.Fatal("wait4 returned pid 0")
	}
	if gotstatus != 0 {
		t.Fatalf("wait4 status = %d, want 0", gotstatus)
	}
}

func TestCheckAbiRejectsUnsatisfiedConstraint(t *testing.T) {
	k := New(DefaultConfig())
	_, err := k.CreateUser(">=99.0.0", func(ctx context.Context, t *sched.Task_t) {})
	if err == 0 {
		t.Fatal("CreateUser should reject an unsatisfiable ABI constraint")
	}
}
