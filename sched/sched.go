package sched

import (
	"context"
	"sync"
	"time"

	"nucleuscore/accnt"
	"nucleuscore/defs"
	"nucleuscore/fd"
	"nucleuscore/limits"
	"nucleuscore/mem"
	"nucleuscore/sig"
	"nucleuscore/vm"
)

// Sched_t is the whole-system scheduler: the task table, the per-CPU
// ready queues, and the single lock that makes every block/unblock
// transition atomic with the condition it depends on (spec.md §4.3,
// "Shared resources", lock ordering "frame < page-tables < scheduler
// < fd-table < port").
type Sched_t struct {
	mu   sync.Mutex
	cond *sync.Cond

	ncpu int
	rq   [][]defs.Tid_t // rq[cpu] is a FIFO of runnable tids

	tasks map[defs.Tid_t]*Task_t
	byPid map[defs.Pid_t]*Task_t

	nexttid defs.Tid_t
	nextpid defs.Pid_t

	Phys *mem.Physmem_t

	// quantum is how many ticks a task runs before Yield requeues it
	// behind its CPU's other runnable tasks (spec.md §4.3, "a periodic
	// timer interrupt rotates the per-CPU ready queue").
	quantum int32
}

// MkSched constructs a scheduler with ncpu logical CPUs, backed by
// phys for every address space it creates.
func MkSched(ncpu int, phys *mem.Physmem_t) *Sched_t {
	if ncpu <= 0 {
		ncpu = 1
	}
	s := &Sched_t{
		ncpu:    ncpu,
		rq:      make([][]defs.Tid_t, ncpu),
		tasks:   make(map[defs.Tid_t]*Task_t),
		byPid:   make(map[defs.Pid_t]*Task_t),
		nexttid: 1,
		nextpid: defs.InitPid,
		Phys:    phys,
		quantum: 10,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *Sched_t) pickcpu() int {
	// least-loaded assignment: spec.md doesn't mandate a specific
	// placement policy, only that ready queues are per-CPU.
	best := 0
	for i := 1; i < s.ncpu; i++ {
		if len(s.rq[i]) < len(s.rq[best]) {
			best = i
		}
	}
	return best
}

func (s *Sched_t) enqueue(t *Task_t) {
	t.state = ST_RUNNABLE
	s.rq[t.cpu] = append(s.rq[t.cpu], t.Tid)
}

func (s *Sched_t) dequeue(t *Task_t) {
	q := s.rq[t.cpu]
	for i, tid := range q {
		if tid == t.Tid {
			s.rq[t.cpu] = append(q[:i], q[i+1:]...)
			return
		}
	}
}

// Newtask creates a fresh Task_t with a new address space, empty fd
// table, and a new pid equal to its tid (every task created through
// Newtask is a distinct process; Clone-style thread creation is out of
// scope per spec.md §1 non-goals around SMP/threading nuances).
func (s *Sched_t) Newtask(parent *Task_t) *Task_t {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tasks) >= limits.MAX_TASKS {
		return nil
	}
	tid := s.nexttid
	s.nexttid++
	pid := s.nextpid
	s.nextpid++

	t := &Task_t{
		Tid:      tid,
		Pid:      pid,
		Parent:   parent,
		cpu:      s.pickcpu(),
		Vm:       vm.Mkvm(s.Phys),
		fds:      make(map[int]*fd.Fd_t),
		children: make(map[defs.Pid_t]*Task_t),
		zombies:  make(map[defs.Pid_t]*Task_t),
		Acct:     &accnt.Accnt_t{},
		Sig:      sig.MkSigstate(),
		quantum:  s.quantum,
	}
	t.Cwd = fd.MkRootCwd(nil)
	if parent == nil {
		t.Caps = defs.CapAll
	} else {
		t.Caps = parent.Caps & defs.CapInheritable
	}
	s.tasks[tid] = t
	s.byPid[pid] = t
	if parent != nil {
		parent.childmu.Lock()
		parent.children[pid] = t
		parent.childmu.Unlock()
	}
	s.enqueue(t)
	return t
}

// Create spawns task t's goroutine running entry, and blocks the
// caller until the task has been placed on a ready queue's accounting
// so State()/Cpu() are immediately observable (spec.md §8 scenario 1,
// "hello world").
func (s *Sched_t) Create(parent *Task_t, entry func(ctx context.Context, t *Task_t)) *Task_t {
	t := s.Newtask(parent)
	if t == nil {
		return nil
	}
	go func() {
		ctx := WithTask(context.Background(), t)
		s.mu.Lock()
		for !s.atHead(t) {
			s.cond.Wait()
		}
		s.dequeue(t)
		t.state = ST_RUNNING
		s.mu.Unlock()

		entry(ctx, t)

		s.Exit(t, 0)
	}()
	return t
}

func (s *Sched_t) atHead(t *Task_t) bool {
	q := s.rq[t.cpu]
	return len(q) > 0 && q[0] == t.Tid
}

// Yield voluntarily gives up the CPU, honoring a pending preemption
// request by requeuing at the back of the ready queue; otherwise it
// only decrements t's quantum and returns, matching "preempted ...
// current task is re-enqueued Ready and the next Ready task is
// selected" (spec.md §4.3).
func (s *Sched_t) Yield(t *Task_t) {
	s.mu.Lock()
	t.quantum--
	if t.quantum > 0 {
		s.mu.Unlock()
		return
	}
	t.quantum = s.quantum
	s.enqueue(t)
	s.cond.Broadcast()
	for !s.atHead(t) {
		s.cond.Wait()
	}
	s.dequeue(t)
	t.state = ST_RUNNING
	s.mu.Unlock()
}

// Block suspends t until wake(), evaluated under the scheduler lock,
// returns true — the condition-variable pattern that gives spec.md
// §4.3's "happens-before" guarantee: a concurrent Unblock that runs
// between the caller's check and the call to Block can never be
// missed, because both the check and the parking happen while s.mu is
// held continuously by the wait loop.
func (s *Sched_t) Block(t *Task_t, wake func() bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !wake() {
		t.state = ST_BLOCKED
		s.dequeue(t)
		s.cond.Wait()
	}
	t.state = ST_RUNNING
}

// Unblock wakes every task parked in Block whose wake predicate may
// now be satisfied. Callers typically change the shared state the
// predicate reads immediately before calling Unblock, still holding
// whatever lock protects that state; Unblock itself takes the
// scheduler lock independently; (b) "after unblock(T), T's resumption
// happens-after the call that unblocked it" — Cond.Broadcast's memory
// model already guarantees that ordering for its waiters.
func (s *Sched_t) Unblock() {
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Fork clones parent's address space (copy-on-write per vm.Vm_t.Clone)
// and fd table into a new task, then spawns childEntry as its
// goroutine (spec.md §4.2 "Cloning (for fork)", §4.6 fork()).
func (s *Sched_t) Fork(parent *Task_t, childEntry func(ctx context.Context, t *Task_t)) (*Task_t, defs.Err_t) {
	child := s.Newtask(parent)
	if child == nil {
		return nil, -defs.ENOMEM
	}
	child.Vm.Uvmfree()
	child.Vm = parent.Vm.Clone()
	if err := parent.CopyFdTable(child); err != 0 {
		return nil, err
	}
	child.Cwd = &fd.Cwd_t{Fd: parent.Cwd.Fd, Path: append([]byte{}, parent.Cwd.Path...)}

	go func() {
		ctx := WithTask(context.Background(), child)
		s.mu.Lock()
		for !s.atHead(child) {
			s.cond.Wait()
		}
		s.dequeue(child)
		child.state = ST_RUNNING
		s.mu.Unlock()

		childEntry(ctx, child)

		s.Exit(child, 0)
	}()
	return child, 0
}

// Exit transitions t to ZOMBIE, recording status, moving t into its
// parent's zombie set, reparenting t's own live children and
// zombies to the init task (spec.md §4.3, "orphans are re-parented to
// task 1"), and waking anyone blocked in Wait on t.
func (s *Sched_t) Exit(t *Task_t, status int) {
	s.mu.Lock()
	if t.state == ST_ZOMBIE || t.state == ST_DEAD {
		// Already exited — e.g. a fatal signal delivered mid-syscall
		// (sys.Dispatcher_t.deliverPending) races the task's own
		// entry function returning and calling Exit again. The first
		// call's status wins.
		s.mu.Unlock()
		return
	}
	t.exitstatus = status
	t.state = ST_ZOMBIE
	s.dequeue(t)
	delete(s.byPid, t.Pid)
	if p := t.Parent; p != nil {
		p.childmu.Lock()
		delete(p.children, t.Pid)
		p.zombies[t.Pid] = t
		p.childmu.Unlock()
	}

	t.childmu.Lock()
	children := t.children
	zombies := t.zombies
	t.children = make(map[defs.Pid_t]*Task_t)
	t.zombies = make(map[defs.Pid_t]*Task_t)
	t.childmu.Unlock()

	if len(children) > 0 || len(zombies) > 0 {
		if init, ok := s.byPid[defs.InitPid]; ok && init != t {
			init.childmu.Lock()
			for pid, child := range children {
				child.Parent = init
				init.children[pid] = child
			}
			for pid, z := range zombies {
				z.Parent = init
				init.zombies[pid] = z
			}
			init.childmu.Unlock()
		}
	}

	s.cond.Broadcast()
	s.mu.Unlock()
}

// Wait blocks until any child of parent has exited, reaps the first
// zombie found, and returns its pid, exit status, and accounting
// (spec.md §4.6 wait/waitpid; SPEC_FULL.md §4 "accnt-based rusage").
func (s *Sched_t) Wait(parent *Task_t, wantpid defs.Pid_t) (defs.Pid_t, int, *accnt.Accnt_t, defs.Err_t) {
	parent.childmu.Lock()
	if len(parent.children) == 0 && len(parent.zombies) == 0 {
		parent.childmu.Unlock()
		return 0, 0, nil, -defs.ECHILD
	}
	if wantpid != 0 {
		_, knownChild := parent.children[wantpid]
		_, knownZombie := parent.zombies[wantpid]
		if !knownChild && !knownZombie {
			parent.childmu.Unlock()
			return 0, 0, nil, -defs.ECHILD
		}
	}
	parent.childmu.Unlock()

	var reaped *Task_t
	s.Block(parent, func() bool {
		parent.childmu.Lock()
		defer parent.childmu.Unlock()
		if wantpid != 0 {
			z, ok := parent.zombies[wantpid]
			if ok {
				reaped = z
				delete(parent.zombies, wantpid)
				return true
			}
			return false
		}
		for pid, z := range parent.zombies {
			reaped = z
			delete(parent.zombies, pid)
			return true
		}
		return false
	})
	if reaped == nil {
		panic("woke with no zombie reaped")
	}
	parent.Acct.Add(reaped.Acct)
	return reaped.Pid, reaped.exitstatus, reaped.Acct, 0
}

// Lookup returns the task with the given pid, if live.
func (s *Sched_t) Lookup(pid defs.Pid_t) (*Task_t, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byPid[pid]
	return t, ok
}

// Kill marks t killed and raises SIGKILL-equivalent teardown; the
// task observes this the next time it checks Killed() at a syscall
// boundary (spec.md §4.7, delivery of an uncatchable signal).
func (s *Sched_t) Kill(t *Task_t) {
	s.mu.Lock()
	t.killed = true
	s.mu.Unlock()
	t.Sig.Raise(defs.SIGKILL)
	s.Unblock()
}

// Killed reports whether t has been marked for teardown.
func (t *Task_t) Killed() bool {
	return t.killed
}

// StartTicker launches the background goroutine that periodically
// decrements every running task's quantum, simulating the timer
// interrupt that drives preemption (spec.md §4.3). It returns a stop
// function.
func (s *Sched_t) StartTicker(period time.Duration) func() {
	stop := make(chan struct{})
	go func() {
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				s.mu.Lock()
				for _, task := range s.tasks {
					if task.state == ST_RUNNING {
						task.quantum--
					}
				}
				s.mu.Unlock()
			}
		}
	}()
	return func() { close(stop) }
}

// withLock runs f with the scheduler lock held, for small scoped
// primitives (Mutex_t) that need to check-and-set state atomically
// with respect to Block's wake-predicate evaluation.
func (s *Sched_t) withLock(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f()
}

// Ntasks reports the number of live (non-dead) tasks, for /proc and
// tests.
func (s *Sched_t) Ntasks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Tasks returns a snapshot slice of every live task, for /proc's
// per-task inspection nodes (spec.md §6, "/proc exposes... generated
// by a process-inspection module").
func (s *Sched_t) Tasks() []*Task_t {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := make([]*Task_t, 0, len(s.tasks))
	for _, t := range s.tasks {
		ts = append(ts, t)
	}
	return ts
}
