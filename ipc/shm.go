package ipc

import (
	"sync"

	"nucleuscore/defs"
	"nucleuscore/limits"
	"nucleuscore/mem"
	"nucleuscore/util"
	"nucleuscore/vm"
)

// Shm_t is a shared memory region: a fixed set of physical frames plus
// the bookkeeping shmem_map/shmem_unmap need (spec.md §3, "Shared
// memory region").
type Shm_t struct {
	mu     sync.Mutex
	id     defs.Shmid_t
	owner  defs.Pid_t
	frames []mem.Pa_t
	perms  mem.Pa_t
	mapped map[defs.Pid_t]int // task id -> user va it was mapped at
}

// ShmTable_t is the system-wide shared-memory-region table.
type ShmTable_t struct {
	mu     sync.Mutex
	phys   *mem.Physmem_t
	shms   map[defs.Shmid_t]*Shm_t
	nextid defs.Shmid_t
}

// MkShmTable constructs an empty shared-memory table backed by phys.
func MkShmTable(phys *mem.Physmem_t) *ShmTable_t {
	return &ShmTable_t{phys: phys, shms: make(map[defs.Shmid_t]*Shm_t), nextid: 1}
}

// Create allocates ceil(size/PGSIZE) frames for a new region owned by
// owner (spec.md §4.4, shmem_create).
func (t *ShmTable_t) Create(size int, owner defs.Pid_t, perms mem.Pa_t) (defs.Shmid_t, defs.Err_t) {
	if size <= 0 {
		return 0, -defs.EINVAL
	}
	npg := util.Roundup(size, mem.PGSIZE) / mem.PGSIZE
	if !limits.Syslimit.Shms.Taken(uint(npg)) {
		return 0, -defs.ENOMEM
	}
	frames := make([]mem.Pa_t, 0, npg)
	for i := 0; i < npg; i++ {
		_, pa, ok := t.phys.Refpg_new()
		if !ok {
			for _, f := range frames {
				t.phys.Refdown(f)
			}
			limits.Syslimit.Shms.Given(uint(npg))
			return 0, -defs.ENOMEM
		}
		frames = append(frames, pa)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextid
	t.nextid++
	t.shms[id] = &Shm_t{
		id:     id,
		owner:  owner,
		frames: frames,
		perms:  perms,
		mapped: make(map[defs.Pid_t]int),
	}
	return id, 0
}

// Map installs the region's frames into task's address space at the
// first free VMA-sized gap vm.Vm_t can find, returning that user
// virtual address (spec.md §4.4, shmem_map).
func (t *ShmTable_t) Map(id defs.Shmid_t, task defs.Pid_t, as *vm.Vm_t) (int, defs.Err_t) {
	t.mu.Lock()
	s, ok := t.shms[id]
	t.mu.Unlock()
	if !ok {
		return 0, -defs.ENOPORT
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, already := s.mapped[task]; already {
		return 0, -defs.EEXIST
	}
	length := len(s.frames) * mem.PGSIZE
	va, ok := as.FindFreeRegion(length)
	if !ok {
		return 0, -defs.ENOMEM
	}
	if err := as.MapShared(va, s.frames, s.perms); err != 0 {
		return 0, err
	}
	s.mapped[task] = va
	return va, 0
}

// Unmap removes task's mapping of region id, if any (spec.md §4.4,
// shmem_unmap).
func (t *ShmTable_t) Unmap(id defs.Shmid_t, task defs.Pid_t, as *vm.Vm_t) defs.Err_t {
	t.mu.Lock()
	s, ok := t.shms[id]
	t.mu.Unlock()
	if !ok {
		return -defs.ENOPORT
	}

	s.mu.Lock()
	va, mapped := s.mapped[task]
	if mapped {
		delete(s.mapped, task)
	}
	s.mu.Unlock()
	if !mapped {
		return -defs.ENOENT
	}
	return as.UnmapShared(va, len(s.frames))
}

// Destroy frees region id's frames, only once every task has unmapped
// it and caller is the owner (spec.md §4.4, shmem_destroy).
func (t *ShmTable_t) Destroy(id defs.Shmid_t, owner defs.Pid_t) defs.Err_t {
	t.mu.Lock()
	s, ok := t.shms[id]
	if !ok {
		t.mu.Unlock()
		return -defs.ENOPORT
	}
	if s.owner != owner {
		t.mu.Unlock()
		return -defs.EPERM
	}

	s.mu.Lock()
	if len(s.mapped) != 0 {
		s.mu.Unlock()
		t.mu.Unlock()
		return -defs.EINVAL
	}
	delete(t.shms, id)
	t.mu.Unlock()
	defer s.mu.Unlock()
	for _, f := range s.frames {
		t.phys.Refdown(f)
	}
	limits.Syslimit.Shms.Given(uint(len(s.frames)))
	return 0
}
