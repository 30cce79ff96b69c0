// Package kernel wires every subsystem package into one bootable
// context: frame allocator, scheduler, IPC tables, VFS tree, and the
// syscall dispatcher (SPEC_FULL.md §2, "A single kernel.Config struct
// ... mirroring §9's 'global mutable state → explicit roots' guidance:
// one Kernel context struct replaces the teacher's file-scope
// globals"). Nothing outside this package constructs those subsystems
// directly.
package kernel

import (
	"context"
	"fmt"
	"os"

	"nucleuscore/defs"
	"nucleuscore/ipc"
	"nucleuscore/mem"
	"nucleuscore/sched"
	"nucleuscore/sys"
	"nucleuscore/vfs"
)

// Config is the boot-time sizing the teacher's lineage otherwise reads
// out of ad hoc globals or a multiboot header.
type Config struct {
	NFrames int // physical frame count (spec.md §4.1)
	NCPU    int // logical CPU count (spec.md §4.3)
}

// DefaultConfig returns sane sizing for tests and the demo entry
// point.
func DefaultConfig() Config {
	return Config{NFrames: 4096, NCPU: 2}
}

// Kernel is the fully wired system: every subsystem plus the
// dispatcher that fans syscalls out to them.
type Kernel struct {
	Phys  *mem.Physmem_t
	Sched *sched.Sched_t
	Ports *ipc.Table_t
	Shms  *ipc.ShmTable_t
	Futex *sched.Futex_t
	Root  vfs.Node_i
	Disp  *sys.Dispatcher_t

	disk *vfs.RamDisk_t
}

// taskLister adapts *sched.Sched_t to vfs.TaskLister_i without vfs
// needing to import sched (sched already imports fd, so a
// vfs -> sched import would close fd -> vfs -> sched -> fd).
type taskLister struct{ s *sched.Sched_t }

func (tl taskLister) Tasks() []vfs.TaskInfo_t {
	tasks := tl.s.Tasks()
	out := make([]vfs.TaskInfo_t, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, vfs.TaskInfo_t{
			Pid:    int(t.Pid),
			Tid:    int(t.Tid),
			State:  t.State().String(),
			Cpu:    t.Cpu(),
			Rusage: t.Acct.Fetch(),
		})
	}
	return out
}

// New constructs a fully wired kernel: frame allocator, scheduler,
// port and shared-memory tables, and a VFS tree with /dev and /proc
// mounted over an in-memory root filesystem (spec.md §6).
func New(cfg Config) *Kernel {
	phys := mem.Mkphysmem(cfg.NFrames)
	phys.InitZeropg()
	s := sched.MkSched(cfg.NCPU, phys)

	disk := vfs.MkRamDisk(vfs.BSIZE, 4096)
	memfs := vfs.MkMemfs(disk)
	mounts := map[string]vfs.Node_i{
		"dev":  vfs.MkDevfs(),
		"proc": vfs.MkProcfs(taskLister{s: s}),
	}
	root := vfs.MkRootWithMounts(memfs.Root(), mounts)

	k := &Kernel{
		Phys:  phys,
		Sched: s,
		Ports: ipc.MkTable(s),
		Shms:  ipc.MkShmTable(phys),
		Futex: sched.MkFutex(),
		Root:  root,
		disk:  disk,
	}
	k.Disp = sys.MkDispatcher(s, k.Ports, k.Shms, k.Futex, phys, root)
	return k
}

// CreateUser builds the init task (or any subsequent user task)
// running entry, after validating the loader-supplied abi constraint
// against the kernel's advertised ABI (spec.md §4.3, create_user;
// SPEC_FULL.md §3's github.com/Masterminds/semver/v3 wiring). entry
// stands in for the loaded binary's layout-and-jump-to-_start sequence
// a real loader would perform — building an ELF/argv/auxv stack is out
// of scope (spec.md §1 non-goals, "ELF/loader mechanics beyond what
// exec needs").
func (k *Kernel) CreateUser(abi string, entry func(ctx context.Context, t *sched.Task_t)) (*sched.Task_t, defs.Err_t) {
	if err := sys.CheckAbi(abi); err != 0 {
		return nil, err
	}
	t := k.Sched.Create(nil, entry)
	if t == nil {
		return nil, -defs.ENOMEM
	}
	return t, 0
}

// Trap is this module's stand-in for the hardware SYSCALL/SYSRET
// trampoline: the single entry point a user task's syscall instruction
// reaches (spec.md §4.6). Callers already running inside a task's
// goroutine (i.e. holding a context built by sched.WithTask) invoke
// this directly; it is the one seam between "simulated user code" and
// the dispatcher.
func (k *Kernel) Trap(ctx context.Context, f sys.Frame_t) (int, defs.Err_t) {
	return k.Disp.Dispatch(ctx, f)
}

// Panic reports a fatal kernel-internal invariant violation and halts
// (spec.md §7, "a GPF in kernel mode is fatal... log and halt"; §9,
// "exceptions/panics → explicit result types" plus one designated halt
// path). os.Exit stands in for the hardware halt instruction.
func Panic(msg string, args ...any) {
	fmt.Fprintf(os.Stderr, "panic: "+msg+"\n", args...)
	os.Exit(1)
}
