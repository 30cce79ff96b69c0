// Command kernel boots a nucleuscore instance and runs the "hello
// world" end-to-end scenario from spec.md §8: a child task writes
// "hi\n" to the console and exits 0; its parent waits for it and
// reports the exit status it observed.
package main

import (
	"context"
	"fmt"
	"runtime"

	"nucleuscore/defs"
	"nucleuscore/fd"
	"nucleuscore/kernel"
	"nucleuscore/mem"
	"nucleuscore/sched"
	"nucleuscore/sys"
)

func main() {
	k := kernel.New(kernel.DefaultConfig())

	parent, err := k.CreateUser("^1.0.0", func(ctx context.Context, t *sched.Task_t) {
		// The init task owns fd 0/1/2 onto the console device, the
		// way biscuit's first process inherits its console fds at
		// boot rather than opening them itself.
		console := fd.MkConsole()
		t.AddFd(&fd.Fd_t{Fops: console, Perms: fd.FD_READ})
		t.AddFd(&fd.Fd_t{Fops: console, Perms: fd.FD_WRITE})
		t.AddFd(&fd.Fd_t{Fops: console, Perms: fd.FD_WRITE})

		childFrame := sys.Frame_t{
			Sysno: defs.SYS_FORK,
			Cont: func(ctx context.Context, child *sched.Task_t) {
				const msg = "hi\n"
				va, ok := child.Vm.FindFreeRegion(mem.PGSIZE)
				if !ok {
					kernel.Panic("child: no free VA region")
				}
				child.Vm.Vmadd_anon(va, mem.PGSIZE, mem.PTE_U|mem.PTE_W)
				if werr := child.Vm.K2user([]byte(msg), va); werr != 0 {
					kernel.Panic("child: K2user failed: %v", werr)
				}

				if _, werr := k.Trap(ctx, sys.Frame_t{
					Sysno: defs.SYS_WRITE,
					Args:  [6]int{1, va, len(msg)},
				}); werr != 0 {
					kernel.Panic("child: write failed: %v", werr)
				}
				k.Trap(ctx, sys.Frame_t{Sysno: defs.SYS_EXIT, Args: [6]int{0}})
			},
		}
		childPid, ferr := k.Trap(ctx, childFrame)
		if ferr != 0 {
			kernel.Panic("parent: fork failed: %v", ferr)
		}

		statusva, ok := t.Vm.FindFreeRegion(mem.PGSIZE)
		if !ok {
			kernel.Panic("parent: no free VA region for wait status")
		}
		t.Vm.Vmadd_anon(statusva, mem.PGSIZE, mem.PTE_U|mem.PTE_W)

		gotpid, werr := k.Trap(ctx, sys.Frame_t{
			Sysno: defs.SYS_WAIT4,
			Args:  [6]int{childPid, statusva, 0},
		})
		if werr != 0 {
			kernel.Panic("parent: wait4 failed: %v", werr)
		}
		status, _ := t.Vm.Userreadn(statusva, 8)
		fmt.Printf("wait4 returned pid=%d status=%d\n", gotpid, status)
	})
	if err != 0 {
		kernel.Panic("CreateUser failed: %v", err)
	}

	// Spin until the init task reaches its terminal state, standing
	// in for the idle loop a real kernel's bootstrap CPU would run
	// while other CPUs execute user code.
	for parent.State() != sched.ST_ZOMBIE && parent.State() != sched.ST_DEAD {
		runtime.Gosched()
	}
}
