// Package ipc implements named ports with bounded message queues and
// shared memory regions (spec.md §4.4). Ports use package sched's
// Block/Unblock rather than a private condition variable, unlike
// fd.Pipe_t, because ipc already sits above sched in the import graph
// (sched has no reason to know about ports) so no cycle results.
package ipc

import (
	"sync"
	"sync/atomic"
	"time"

	"nucleuscore/defs"
	"nucleuscore/hashtable"
	"nucleuscore/limits"
	"nucleuscore/sched"
)

// MaxPortName is the longest name a port can register (spec.md §3,
// Port: "optional registered name (≤31 chars, unique)").
const MaxPortName = 31

// Message_t is the fixed-layout record exchanged over a port (spec.md
// §3, Message). Payload is a byte array rather than a slice so a
// Message_t can be copied by value into and out of a port's ring with
// no aliasing between the sender's buffer and the queued copy.
type Message_t struct {
	MsgId       uint64
	SenderId    defs.Tid_t
	ReplyPort   defs.Portid_t
	PayloadSize int
	Timestamp   int64
	Payload     [limits.IPC_MAX_MSG_SIZE]byte
}

// Port_t is a kernel-owned IPC endpoint: a bounded ring of Message_t
// plus the single waiting receiver a blocking recv records (spec.md
// §3, Port).
type Port_t struct {
	mu sync.Mutex

	id    defs.Portid_t
	owner defs.Pid_t

	ring  [limits.IPC_PORT_QUEUE_SIZE]Message_t
	head  int
	tail  int
	count int

	waiting defs.Tid_t // receiver parked in a blocking Recv, or defs.NoTask
	dead    atomic.Bool // set by Destroy so a parked Recv stops waiting
}

func (p *Port_t) full() bool  { return p.count == limits.IPC_PORT_QUEUE_SIZE }
func (p *Port_t) empty() bool { return p.count == 0 }

// Table_t is the system-wide port table: the id-keyed map of live
// ports and the name-keyed registry backing port_register/port_lookup
// (spec.md §4.4).
type Table_t struct {
	mu     sync.Mutex
	s      *sched.Sched_t
	ports  map[defs.Portid_t]*Port_t
	names  *hashtable.Hashtable_t[string, defs.Portid_t]
	nextid defs.Portid_t
	msgid  uint64
}

// MkTable constructs an empty port table. s is the scheduler whose
// Block/Unblock implement blocking recv.
func MkTable(s *sched.Sched_t) *Table_t {
	return &Table_t{
		s:      s,
		ports:  make(map[defs.Portid_t]*Port_t),
		names:  hashtable.MkHash[string, defs.Portid_t](64),
		nextid: 1,
	}
}

// Create allocates the lowest free port id ≥1, owned by owner (spec.md
// §4.4, port_create).
func (t *Table_t) Create(owner defs.Pid_t) (defs.Portid_t, defs.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.ports) >= limits.Syslimit.Ports {
		return 0, -defs.ENOMEM
	}
	id := defs.Portid_t(1)
	for {
		if _, taken := t.ports[id]; !taken {
			break
		}
		id++
	}
	t.nextid = id + 1
	t.ports[id] = &Port_t{id: id, owner: owner, waiting: defs.NoTask}
	return id, 0
}

// Destroy removes port id, only if caller is its owner (spec.md §4.4,
// port_destroy).
func (t *Table_t) Destroy(id defs.Portid_t, caller defs.Pid_t) defs.Err_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.ports[id]
	if !ok {
		return -defs.ENOPORT
	}
	if p.owner != caller {
		return -defs.EPERM
	}
	delete(t.ports, id)
	for _, pair := range t.names.Elems() {
		if pair.Value == id {
			t.names.Del(pair.Key)
		}
	}
	p.dead.Store(true)
	t.s.Unblock() // wake anyone blocked recv'ing on a now-dead port
	return 0
}

func (t *Table_t) lookupLocked(id defs.Portid_t) (*Port_t, bool) {
	p, ok := t.ports[id]
	return p, ok
}

// Register binds name to port id, replacing any previous name for
// that port but failing if name is already bound to a different port
// (spec.md §4.4, port_register).
func (t *Table_t) Register(id defs.Portid_t, name string) defs.Err_t {
	if len(name) == 0 || len(name) > MaxPortName {
		return -defs.EINVAL
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.ports[id]; !ok {
		return -defs.ENOPORT
	}
	if existing, ok := t.names.Get(name); ok && existing != id {
		return -defs.EEXIST
	}
	for _, pair := range t.names.Elems() {
		if pair.Value == id && pair.Key != name {
			t.names.Del(pair.Key)
		}
	}
	t.names.Set(name, id)
	return 0
}

// Lookup resolves a registered name to a port id (spec.md §4.4,
// port_lookup).
func (t *Table_t) Lookup(name string) (defs.Portid_t, defs.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.names.Get(name)
	if !ok {
		return 0, -defs.ENOPORT
	}
	return id, 0
}

// Send enqueues a copy of msg onto port dest, stamping msg_id,
// sender_id and timestamp (spec.md §4.4, send; invariant (c)). It
// never blocks: a full queue fails immediately with QueueFull, and a
// successful send wakes the port's waiting receiver, if any.
func (t *Table_t) Send(dest defs.Portid_t, msg Message_t, sender defs.Tid_t) defs.Err_t {
	t.mu.Lock()
	p, ok := t.lookupLocked(dest)
	t.mu.Unlock()
	if !ok {
		return -defs.ENOPORT
	}
	if msg.PayloadSize > limits.IPC_MAX_MSG_SIZE {
		return -defs.EINVAL
	}

	p.mu.Lock()
	if p.full() {
		p.mu.Unlock()
		return -defs.EQFULL
	}
	t.mu.Lock()
	t.msgid++
	msg.MsgId = t.msgid
	t.mu.Unlock()
	msg.SenderId = sender
	msg.Timestamp = time.Now().UnixNano()

	p.ring[p.tail] = msg
	p.tail = (p.tail + 1) % limits.IPC_PORT_QUEUE_SIZE
	p.count++
	p.mu.Unlock()

	t.s.Unblock()
	return 0
}

// Recv dequeues the oldest message from port id, only succeeding for
// its registered owner (spec.md §4.4 invariant (b)). If the ring is
// empty and block is true, the caller is parked via sched.Block until
// a message arrives; otherwise it fails immediately with NoMessage.
func (t *Table_t) Recv(id defs.Portid_t, receiver *sched.Task_t, block bool) (Message_t, defs.Err_t) {
	t.mu.Lock()
	p, ok := t.lookupLocked(id)
	t.mu.Unlock()
	if !ok {
		return Message_t{}, -defs.ENOPORT
	}
	if p.owner != receiver.Pid {
		return Message_t{}, -defs.EPERM
	}

	p.mu.Lock()
	if p.empty() {
		if !block {
			p.mu.Unlock()
			return Message_t{}, -defs.ENOMSG
		}
		p.waiting = receiver.Tid
		p.mu.Unlock()

		t.s.Block(receiver, func() bool {
			p.mu.Lock()
			defer p.mu.Unlock()
			return !p.empty() || receiver.Killed() || p.dead.Load()
		})

		p.mu.Lock()
		p.waiting = defs.NoTask
		if p.empty() {
			p.mu.Unlock()
			if p.dead.Load() {
				return Message_t{}, -defs.ENOPORT
			}
			return Message_t{}, -defs.EINTR
		}
	}
	defer p.mu.Unlock()

	msg := p.ring[p.head]
	p.head = (p.head + 1) % limits.IPC_PORT_QUEUE_SIZE
	p.count--
	return msg, 0
}
