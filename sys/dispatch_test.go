package sys

import (
	"context"
	"testing"
	"time"

	"nucleuscore/defs"
	"nucleuscore/fd"
	"nucleuscore/ipc"
	"nucleuscore/mem"
	"nucleuscore/sched"
)

// Boundary behavior from spec.md §8: write to a pipe with no readers
// fails with BrokenPipe and raises SIGPIPE — default disposition for
// SIGPIPE is terminate (sig.DefaultDisposition), so the raised signal
// should be observable as the child exiting with status 128+SIGPIPE.
func TestDoReadWriteRaisesSigpipeOnBrokenPipe(t *testing.T) {
	phys := mem.Mkphysmem(16)
	phys.InitZeropg()
	s := sched.MkSched(2, phys)
	d := MkDispatcher(s, ipc.MkTable(s), ipc.MkShmTable(phys), sched.MkFutex(), phys, nil)

	rfd, wfd := fd.MkPipeFds(phys)
	if err := rfd.Fops.Close(); err != 0 {
		t.Fatalf("closing reader failed: %v", err)
	}

	done := make(chan struct{})
	var gotstatus int
	var waiterr defs.Err_t

	parent := s.Create(nil, func(ctx context.Context, pt *sched.Task_t) {
		child, ferr := s.Fork(pt, func(ctx context.Context, ct *sched.Task_t) {
			wfdn := ct.AddFd(wfd)

			va, ok := ct.Vm.FindFreeRegion(mem.PGSIZE)
			if !ok {
				t.Error("no free VA region")
				return
			}
			ct.Vm.Vmadd_anon(va, mem.PGSIZE, mem.PTE_U|mem.PTE_W)
			if werr := ct.Vm.K2user([]byte{1}, va); werr != 0 {
				t.Errorf("K2user failed: %v", werr)
				return
			}

			_, err := d.Dispatch(ctx, Frame_t{
				Sysno: defs.SYS_WRITE,
				Args:  [6]int{wfdn, va, 1},
			})
			if err != -defs.EPIPE {
				t.Errorf("write to broken pipe = %v, want EPIPE", err)
			}
		})
		if ferr != 0 {
			t.Errorf("fork failed: %v", ferr)
			close(done)
			return
		}
		_, status, _, werr := s.Wait(pt, child.Pid)
		gotstatus = status
		waiterr = werr
		close(done)
	})
	if parent == nil {
		t.Fatal("Create failed")
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}

	if waiterr != 0 {
		t.Fatalf("wait failed: %v", waiterr)
	}
	want := 128 + int(defs.SIGPIPE)
	if gotstatus != want {
		t.Fatalf("child exit status = %d, want %d (SIGPIPE default-terminate)", gotstatus, want)
	}
}
