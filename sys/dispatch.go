package sys

import (
	"context"

	"nucleuscore/defs"
	"nucleuscore/fd"
	"nucleuscore/ipc"
	"nucleuscore/limits"
	"nucleuscore/mem"
	"nucleuscore/sched"
	"nucleuscore/sig"
	"nucleuscore/ustr"
	"nucleuscore/vfs"
	"nucleuscore/vm"
)

// Frame_t stands in for the register file a real SYSCALL trampoline
// would hand the dispatcher: a syscall number plus up to six integer
// arguments (spec.md §4.6, "number in %rax; arguments in %rdi, %rsi,
// %rdx, %r10, %r8, %r9"). Cont is this module's accommodation for the
// one place the register-frame analogy breaks down: fork and execve
// do not return into the calling register frame, they start one —
// Cont is the Go closure that stands in for that new instruction
// stream, exactly the way sched.Create/Fork already take an entry
// func instead of a real %rip. A fork Dispatch returns the child's pid
// to the caller while Cont runs as the child's entry; an execve
// Dispatch runs Cont on the calling goroutine in place of the old
// program and returns only after Cont does.
type Frame_t struct {
	Sysno defs.Sysno_t
	Args  [6]int
	Cont  func(ctx context.Context, t *sched.Task_t)
}

// Dispatcher_t wires every subsystem the syscall table in spec.md
// §4.6 touches: the scheduler, the port/shared-memory tables, the
// futex wait/wake table, and the VFS root every path argument
// resolves against.
type Dispatcher_t struct {
	Sched *sched.Sched_t
	Ports *ipc.Table_t
	Shms  *ipc.ShmTable_t
	Futex *sched.Futex_t
	Phys  *mem.Physmem_t
	Root  vfs.Node_i
}

// MkDispatcher constructs a Dispatcher_t over already-initialized
// subsystems (the kernel wiring package owns their construction).
func MkDispatcher(s *sched.Sched_t, ports *ipc.Table_t, shms *ipc.ShmTable_t, futex *sched.Futex_t, phys *mem.Physmem_t, root vfs.Node_i) *Dispatcher_t {
	return &Dispatcher_t{Sched: s, Ports: ports, Shms: shms, Futex: futex, Phys: phys, Root: root}
}

// Dispatch implements the dispatcher contract of spec.md §4.6: look up
// the current task, execute the named operation (steps 2-3, user
// pointer validation and copy-in/copy-out, happen inline in each
// syscall's own argument handling via vm.Userbuf_t/Userstr), check
// capabilities where required, and deliver any pending unblocked
// signal before returning.
func (d *Dispatcher_t) Dispatch(ctx context.Context, f Frame_t) (int, defs.Err_t) {
	t, ok := sched.FromContext(ctx)
	if !ok {
		return 0, -defs.ESRCH
	}
	ret, err := d.exec(ctx, t, f)
	d.deliverPending(t)
	return ret, err
}

func (d *Dispatcher_t) exec(ctx context.Context, t *sched.Task_t, f Frame_t) (int, defs.Err_t) {
	a := f.Args
	switch f.Sysno {
	case defs.SYS_EXIT:
		d.Sched.Exit(t, a[0])
		return 0, 0
	case defs.SYS_READ:
		return d.doReadWrite(t, a[0], a[1], a[2], false)
	case defs.SYS_WRITE:
		return d.doReadWrite(t, a[0], a[1], a[2], true)
	case defs.SYS_OPEN:
		return d.doOpen(t, a[0], a[1], a[2])
	case defs.SYS_CLOSE:
		return d.doClose(t, a[0])
	case defs.SYS_LSEEK:
		return d.doLseek(t, a[0], a[1], a[2])
	case defs.SYS_MMAP:
		return d.doMmap(t, a[0], a[1], a[2], a[3], a[4], a[5])
	case defs.SYS_MUNMAP:
		return 0, t.Vm.Munmap(a[0], a[1])
	case defs.SYS_BRK:
		return d.doBrk(t, a[0])
	case defs.SYS_FORK:
		return d.doFork(t, f.Cont)
	case defs.SYS_EXECVE:
		return d.doExecve(ctx, t, a[0], f.Cont)
	case defs.SYS_WAIT4:
		return d.doWait4(t, a[0], a[1], a[2])
	case defs.SYS_YIELD:
		d.Sched.Yield(t)
		return 0, 0
	case defs.SYS_KILL:
		return d.doKill(t, a[0], a[1])
	case defs.SYS_RT_SIGACTION:
		return d.doSigaction(t, a[0], a[1], a[2])
	case defs.SYS_RT_SIGRETURN:
		return d.doSigreturn(t)
	case defs.SYS_PIPE2:
		return d.doPipe2(t, a[0])
	case defs.SYS_DUP:
		return d.doDup(t, a[0])
	case defs.SYS_DUP2:
		return d.doDup2(t, a[0], a[1])
	case defs.SYS_IPC_CREATE:
		return d.doIpcCreate(t)
	case defs.SYS_IPC_SEND:
		return d.doIpcSend(t, a[0], a[1], a[2])
	case defs.SYS_IPC_RECV:
		return d.doIpcRecv(t, a[0], a[1], a[2])
	case defs.SYS_IPC_LOOKUP:
		return d.doIpcLookup(t, a[0])
	case defs.SYS_IPC_REGISTER:
		return d.doIpcRegister(t, a[0], a[1])
	case defs.SYS_SHMEM_CREATE:
		return d.doShmCreate(t, a[0])
	case defs.SYS_SHMEM_MAP:
		return d.doShmMap(t, a[0])
	case defs.SYS_SHMEM_UNMAP:
		return 0, d.Shms.Unmap(defs.Shmid_t(a[0]), t.Pid, t.Vm)
	case defs.SYS_SHMEM_DESTROY:
		return 0, d.Shms.Destroy(defs.Shmid_t(a[0]), t.Pid)
	case defs.SYS_FUTEX:
		return d.doFutex(t, a[0], a[1], a[2])
	case defs.SYS_CLOCK_GETTIME:
		return d.doClockGettime(t, a[0])
	case defs.SYS_NANOSLEEP:
		return d.doNanosleep(t, a[0])
	case defs.SYS_ARCH_PRCTL:
		return d.doArchPrctl(t, a[0], a[1])
	case defs.SYS_GETPID:
		return int(t.Pid), 0
	case defs.SYS_GETPPID:
		if t.Parent == nil {
			return 0, 0
		}
		return int(t.Parent.Pid), 0
	default:
		return 0, -defs.ENOSYS
	}
}

// deliverPending implements dispatcher step 6: before returning to
// user mode, act on the next deliverable signal. A handler-disposition
// signal would need a real user stack to build an rt_sigframe on,
// which this hosted dispatcher does not drive directly (package sig's
// Enter/Return keep the saved state as a Frame_t inside the task's
// signal state, not on a user stack, and nothing here calls them) —
// here only the default dispositions that don't require
// resuming user code are carried out: terminate and stop/continue are
// visible side effects on Task_t, ignore is a no-op, and handler
// dispositions are left pending for the caller to act on via
// t.Sig.Next()/Enter directly.
func (d *Dispatcher_t) deliverPending(t *sched.Task_t) {
	if !t.Sig.HasDeliverable() {
		return
	}
	s, ok := t.Sig.Next()
	if !ok {
		return
	}
	act := t.Sig.Action(s)
	if act.Disp == sig.SigIgnore {
		return
	}
	if act.Disp == sig.SigHandler {
		t.Sig.Raise(s) // leave pending for the real delivery path to consume
		return
	}
	switch sig.DefaultDisposition(s) {
	case sig.D_TERM, sig.D_CORE:
		d.Sched.Exit(t, 128+int(s))
	case sig.D_IGN:
	default:
		// STOP/CONT have no user-visible effect in this hosted model
		// beyond the scheduling state a real STOP/CONT would touch,
		// which is out of scope (spec.md §1 non-goals).
	}
}

func userPath(t *sched.Task_t, uva int) (ustr.Ustr, defs.Err_t) {
	b, err := t.Vm.Userstr(uva, 4096)
	if err != 0 {
		return nil, err
	}
	return t.Cwd.Canonicalpath(ustr.MkUstrSlice(b)), 0
}

func (d *Dispatcher_t) doReadWrite(t *sched.Task_t, fdn, uva, n int, write bool) (int, defs.Err_t) {
	fobj, ok := t.Fd(fdn)
	if !ok {
		return 0, -defs.EBADF
	}
	ub := t.Vm.Mkuserbuf(uva, n)
	if write {
		nw, werr := fobj.Fops.Write(ub)
		if werr == -defs.EPIPE {
			t.Sig.Raise(defs.SIGPIPE)
		}
		return nw, werr
	}
	return fobj.Fops.Read(ub)
}

func (d *Dispatcher_t) doOpen(t *sched.Task_t, pathva, flags, mode int) (int, defs.Err_t) {
	path, err := userPath(t, pathva)
	if err != 0 {
		return 0, err
	}
	node, ferr := resolve(d.Root, path)
	if ferr != 0 {
		if ferr != -defs.ENOENT || flags&defs.O_CREAT == 0 {
			return 0, ferr
		}
		parent, name, perr := resolveParent(d.Root, path)
		if perr != 0 {
			return 0, perr
		}
		node, perr = parent.Create(name)
		if perr != 0 {
			return 0, perr
		}
	} else if flags&defs.O_EXCL != 0 && flags&defs.O_CREAT != 0 {
		return 0, -defs.EEXIST
	}
	if node.Type() == vfs.T_DIR && flags&defs.O_ACCMODE != defs.O_RDONLY {
		return 0, -defs.EISDIR
	}
	if flags&defs.O_TRUNC != 0 {
		node.Truncate(0)
	}
	perms := fd.FD_READ
	switch flags & defs.O_ACCMODE {
	case defs.O_WRONLY:
		perms = fd.FD_WRITE
	case defs.O_RDWR:
		perms = fd.FD_READ | fd.FD_WRITE
	}
	file := vfs.MkFile(node, flags&defs.O_APPEND != 0)
	return t.AddFd(&fd.Fd_t{Fops: file, Perms: perms}), 0
}

func (d *Dispatcher_t) doClose(t *sched.Task_t, fdn int) (int, defs.Err_t) {
	f, ok := t.CloseFd(fdn)
	if !ok {
		return 0, -defs.EBADF
	}
	return 0, f.Fops.Close()
}

func (d *Dispatcher_t) doLseek(t *sched.Task_t, fdn, off, whence int) (int, defs.Err_t) {
	f, ok := t.Fd(fdn)
	if !ok {
		return 0, -defs.EBADF
	}
	return f.Fops.Lseek(off, whence)
}

func (d *Dispatcher_t) doMmap(t *sched.Task_t, addr, sz, prot, flags, fdn, off int) (int, defs.Err_t) {
	if sz <= 0 {
		return 0, -defs.EINVAL
	}
	length := sz
	if length%mem.PGSIZE != 0 {
		length += mem.PGSIZE - length%mem.PGSIZE
	}
	va := addr
	if va == 0 {
		found, ok := t.Vm.FindFreeRegion(length)
		if !ok {
			return 0, -defs.ENOMEM
		}
		va = found
	}
	perms := mem.Pa_t(0)
	if prot&defs.PROT_WRITE != 0 {
		perms |= mem.PTE_W
	}
	if flags&defs.MAP_ANONYMOUS != 0 {
		t.Vm.Vmadd_anon(va, length, perms|mem.PTE_U)
		return va, 0
	}
	f, ok := t.Fd(fdn)
	if !ok {
		return 0, -defs.EBADF
	}
	t.Vm.Vmadd_file(va, length, perms|mem.PTE_U, f.Fops, off)
	return va, 0
}

func (d *Dispatcher_t) doBrk(t *sched.Task_t, newbrk int) (int, defs.Err_t) {
	if newbrk == 0 {
		return t.Brk, 0
	}
	if t.Brk == 0 {
		t.Brk = newbrk
		if newbrk > 0 {
			t.Vm.Vmadd_anon(0, newbrk, mem.PTE_U|mem.PTE_W)
		}
		return t.Brk, 0
	}
	if newbrk > t.Brk {
		t.Vm.Vmadd_anon(t.Brk, newbrk-t.Brk, mem.PTE_U|mem.PTE_W)
	} else if newbrk < t.Brk {
		t.Vm.Munmap(newbrk, t.Brk-newbrk)
	}
	t.Brk = newbrk
	return t.Brk, 0
}

func (d *Dispatcher_t) doFork(t *sched.Task_t, cont func(context.Context, *sched.Task_t)) (int, defs.Err_t) {
	if !t.Caps.Has(defs.CAP_PROC_FORK) {
		return 0, -defs.EPERM
	}
	if cont == nil {
		return 0, -defs.EINVAL
	}
	child, err := d.Sched.Fork(t, cont)
	if err != 0 {
		return 0, err
	}
	return int(child.Pid), 0
}

func (d *Dispatcher_t) doExecve(ctx context.Context, t *sched.Task_t, pathva int, cont func(context.Context, *sched.Task_t)) (int, defs.Err_t) {
	if !t.Caps.Has(defs.CAP_PROC_EXEC) {
		return 0, -defs.EPERM
	}
	path, err := userPath(t, pathva)
	if err != 0 {
		return 0, err
	}
	if _, ferr := resolve(d.Root, path); ferr != 0 {
		return 0, ferr
	}
	if cont == nil {
		return 0, -defs.EINVAL
	}
	t.Vm.Uvmfree()
	t.Vm = vm.Mkvm(d.Phys)
	t.Brk = 0
	cont(ctx, t)
	return 0, 0
}

func (d *Dispatcher_t) doWait4(t *sched.Task_t, wantpid, statusva, rusageva int) (int, defs.Err_t) {
	pid, status, acc, err := d.Sched.Wait(t, defs.Pid_t(wantpid))
	if err != 0 {
		return 0, err
	}
	if statusva != 0 {
		t.Vm.Userwriten(statusva, 8, status)
	}
	if rusageva != 0 && acc != nil {
		t.Vm.K2user(acc.Fetch(), rusageva)
	}
	return int(pid), 0
}

func (d *Dispatcher_t) doKill(t *sched.Task_t, pid, signo int) (int, defs.Err_t) {
	if !t.Caps.Has(defs.CAP_PROC_KILL) {
		return 0, -defs.EPERM
	}
	target, ok := d.Sched.Lookup(defs.Pid_t(pid))
	if !ok {
		return 0, -defs.ESRCH
	}
	if defs.Signal_t(signo) == defs.SIGKILL {
		d.Sched.Kill(target)
		return 0, 0
	}
	target.Sig.Raise(defs.Signal_t(signo))
	d.Sched.Unblock()
	return 0, 0
}

func (d *Dispatcher_t) doSigaction(t *sched.Task_t, signo, handler, flags int) (int, defs.Err_t) {
	s := defs.Signal_t(signo)
	disp := sig.SigHandler
	if handler == 0 {
		disp = sig.SigDefault
	}
	err := t.Sig.SetAction(s, sig.Action_t{Disp: disp, Handler: uintptr(handler), Flags: uint(flags)})
	return 0, err
}

func (d *Dispatcher_t) doSigreturn(t *sched.Task_t) (int, defs.Err_t) {
	_, ok := t.Sig.Return()
	if !ok {
		return 0, -defs.EINVAL
	}
	return 0, 0
}

func (d *Dispatcher_t) doPipe2(t *sched.Task_t, fdsva int) (int, defs.Err_t) {
	rfd, wfd := fd.MkPipeFds(t.Vm.Phys)
	if rfd == nil {
		return 0, -defs.ENOMEM
	}
	rn := t.AddFd(rfd)
	wn := t.AddFd(wfd)
	if fdsva != 0 {
		t.Vm.Userwriten(fdsva, 4, rn)
		t.Vm.Userwriten(fdsva+4, 4, wn)
	}
	return 0, 0
}

func (d *Dispatcher_t) doDup(t *sched.Task_t, fdn int) (int, defs.Err_t) {
	f, ok := t.Fd(fdn)
	if !ok {
		return 0, -defs.EBADF
	}
	nf, err := fd.Copyfd(f)
	if err != 0 {
		return 0, err
	}
	return t.AddFd(nf), 0
}

func (d *Dispatcher_t) doDup2(t *sched.Task_t, oldfdn, newfdn int) (int, defs.Err_t) {
	f, ok := t.Fd(oldfdn)
	if !ok {
		return 0, -defs.EBADF
	}
	nf, err := fd.Copyfd(f)
	if err != 0 {
		return 0, err
	}
	if old := t.SetFd(newfdn, nf); old != nil {
		fd.Close_panic(old)
	}
	return newfdn, 0
}

func (d *Dispatcher_t) doIpcCreate(t *sched.Task_t) (int, defs.Err_t) {
	if !t.Caps.Has(defs.CAP_IPC_CREATE) {
		return 0, -defs.EPERM
	}
	id, err := d.Ports.Create(t.Pid)
	return int(id), err
}

func (d *Dispatcher_t) doIpcSend(t *sched.Task_t, dest, payloadva, payloadsz int) (int, defs.Err_t) {
	if !t.Caps.Has(defs.CAP_IPC_SEND) {
		return 0, -defs.EPERM
	}
	if payloadsz < 0 || payloadsz > limits.IPC_MAX_MSG_SIZE {
		return 0, -defs.EINVAL
	}
	var msg ipc.Message_t
	msg.PayloadSize = payloadsz
	if err := t.Vm.User2k(msg.Payload[:payloadsz], payloadva); err != 0 {
		return 0, err
	}
	err := d.Ports.Send(defs.Portid_t(dest), msg, t.Tid)
	return 0, err
}

func (d *Dispatcher_t) doIpcRecv(t *sched.Task_t, id, payloadva, block int) (int, defs.Err_t) {
	if !t.Caps.Has(defs.CAP_IPC_RECV) {
		return 0, -defs.EPERM
	}
	msg, err := d.Ports.Recv(defs.Portid_t(id), t, block != 0)
	if err != 0 {
		return 0, err
	}
	if payloadva != 0 {
		t.Vm.K2user(msg.Payload[:msg.PayloadSize], payloadva)
	}
	return msg.PayloadSize, 0
}

func (d *Dispatcher_t) doIpcLookup(t *sched.Task_t, nameva int) (int, defs.Err_t) {
	name, err := t.Vm.Userstr(nameva, 32)
	if err != 0 {
		return 0, err
	}
	id, lerr := d.Ports.Lookup(string(name))
	return int(id), lerr
}

func (d *Dispatcher_t) doIpcRegister(t *sched.Task_t, id, nameva int) (int, defs.Err_t) {
	name, err := t.Vm.Userstr(nameva, 32)
	if err != 0 {
		return 0, err
	}
	return 0, d.Ports.Register(defs.Portid_t(id), string(name))
}

func (d *Dispatcher_t) doShmCreate(t *sched.Task_t, size int) (int, defs.Err_t) {
	if !t.Caps.Has(defs.CAP_IPC_SHMEM) {
		return 0, -defs.EPERM
	}
	id, err := d.Shms.Create(size, t.Pid, mem.PTE_U|mem.PTE_W)
	return int(id), err
}

func (d *Dispatcher_t) doShmMap(t *sched.Task_t, id int) (int, defs.Err_t) {
	if !t.Caps.Has(defs.CAP_IPC_SHMEM) {
		return 0, -defs.EPERM
	}
	return d.Shms.Map(defs.Shmid_t(id), t.Pid, t.Vm)
}

func (d *Dispatcher_t) doFutex(t *sched.Task_t, addr, op, val int) (int, defs.Err_t) {
	const FUTEX_WAIT = 0
	const FUTEX_WAKE = 1
	switch op {
	case FUTEX_WAIT:
		read := func() uint32 {
			v, _ := t.Vm.Userreadn(addr, 4)
			return uint32(v)
		}
		return 0, d.Futex.Wait(d.Sched, t, uintptr(addr), read, uint32(val))
	case FUTEX_WAKE:
		d.Futex.Wake(d.Sched, uintptr(addr), val)
		return 0, 0
	default:
		return 0, -defs.EINVAL
	}
}

func (d *Dispatcher_t) doClockGettime(t *sched.Task_t, tsva int) (int, defs.Err_t) {
	now := t.Acct.Now()
	if tsva != 0 {
		t.Vm.Userwriten(tsva, 8, now/1e9)
		t.Vm.Userwriten(tsva+8, 8, now%1e9)
	}
	return 0, 0
}

func (d *Dispatcher_t) doNanosleep(t *sched.Task_t, nanos int) (int, defs.Err_t) {
	// Polls the task's clock, calling Yield between checks, until the
	// deadline passes or the task is killed; there is no timer
	// structure and the task is never parked in the blocked state.
	deadline := t.Acct.Now() + nanos
	for t.Acct.Now() < deadline {
		if t.Killed() {
			return 0, -defs.EINTR
		}
		d.Sched.Yield(t)
	}
	return 0, 0
}

func (d *Dispatcher_t) doArchPrctl(t *sched.Task_t, code, addr int) (int, defs.Err_t) {
	const ARCH_SET_FS = 0x1002
	const ARCH_GET_FS = 0x1003
	switch code {
	case ARCH_SET_FS:
		t.FsBase = addr
		return 0, 0
	case ARCH_GET_FS:
		return t.FsBase, 0
	default:
		return 0, -defs.EINVAL
	}
}
