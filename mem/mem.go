// Package mem implements the frame allocator: a free-list-and-refcount
// manager over a fixed arena of physical pages, standing in for the
// frame allocator spec.md §2 describes as owning the machine's entire
// usable physical address range (grounded on the teacher's
// biscuit/src/mem/mem.go Physmem_t).
//
// A freestanding kernel's frame allocator hands out real physical
// pages discovered from the boot protocol's memory map and manages
// them through a CR3-mapped direct map. Hosted in a single process,
// there is no boot memory map and no MMU to program; this package
// instead carves a single large byte arena out of the Go heap at
// construction and treats offsets into it as "physical addresses",
// preserving every other contract (allocation, refcounting, OOM
// notification) byte for byte.
package mem

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

// PGSHIFT is the base-2 exponent for the page size.
const PGSHIFT uint = 12

// PGSIZE is the size of a single page in bytes.
const PGSIZE int = 1 << PGSHIFT

// PGOFFSET masks offsets within a page.
const PGOFFSET Pa_t = 0xfff

// PGMASK masks the page number of an address.
const PGMASK Pa_t = ^(PGOFFSET)

// Page table entry flag bits, carried from the teacher's mem.go even
// though no hardware MMU consumes them here: the vm package's
// pagetable-walk simulation sets and tests them exactly as a real
// walker would, so permission-check bugs in that logic are caught the
// same way they would be on real hardware.
const (
	PTE_P   Pa_t = 1 << 0
	PTE_W   Pa_t = 1 << 1
	PTE_U   Pa_t = 1 << 2
	PTE_PCD Pa_t = 1 << 4
	PTE_PS  Pa_t = 1 << 7
	PTE_G   Pa_t = 1 << 8
	PTE_COW Pa_t = 1 << 9 // software-defined: copy-on-write pending
	PTE_ADDR Pa_t = PGMASK
)

// Pa_t represents a physical address: a byte offset into the arena.
type Pa_t uintptr

// Bytepg_t is a byte-addressed page.
type Bytepg_t [PGSIZE]uint8

// Pg_t is a page viewed as 512 64-bit words.
type Pg_t [512]int

// Pmap_t is a page-table page: 512 page-table entries.
type Pmap_t [512]Pa_t

// Page_i abstracts physical page allocation so that circbuf and vm do
// not depend on Physmem_t directly, only on the operations they use.
type Page_i interface {
	Refpg_new() (*Pg_t, Pa_t, bool)
	Refpg_new_nozero() (*Pg_t, Pa_t, bool)
	Refcnt(Pa_t) int
	Dmap(Pa_t) *Pg_t
	Refup(Pa_t)
	Refdown(Pa_t) bool
}

// Pg2bytes reinterprets a page of words as a page of bytes.
func Pg2bytes(pg *Pg_t) *Bytepg_t {
	return (*Bytepg_t)(unsafe.Pointer(pg))
}

// Bytepg2pg reinterprets a byte page back to a Pg_t.
func Bytepg2pg(pg *Bytepg_t) *Pg_t {
	return (*Pg_t)(unsafe.Pointer(pg))
}

func pg2pmap(pg *Pg_t) *Pmap_t {
	return (*Pmap_t)(unsafe.Pointer(pg))
}

func pmap2pg(pm *Pmap_t) *Pg_t {
	return (*Pg_t)(unsafe.Pointer(pm))
}

// Physpg_t accounts for a single physical page.
type Physpg_t struct {
	Refcnt int32
}

// Physmem_t manages the arena of physical pages backing every address
// space and page-table page in the core. Zero value is not usable;
// construct with Mkphysmem.
type Physmem_t struct {
	arena []uint8
	pgs   []Physpg_t
	npg   uint32
	free  []uint32 // stack of free page indices
	sync.Mutex
	// Oom is signaled (non-blocking) whenever Refpg_new fails to find
	// a free page, giving callers (e.g. a reaper daemon) a chance to
	// reclaim memory, mirroring spec.md §8's OutOfMemory error path.
	Oom chan bool
}

// Mkphysmem allocates an arena of npages physical pages and returns a
// ready-to-use Physmem_t.
func Mkphysmem(npages int) *Physmem_t {
	if npages <= 0 {
		panic("bad arena size")
	}
	p := &Physmem_t{
		arena: make([]uint8, npages*PGSIZE),
		pgs:   make([]Physpg_t, npages),
		npg:   uint32(npages),
		Oom:   make(chan bool, 1),
	}
	p.free = make([]uint32, npages)
	for i := range p.free {
		p.free[i] = uint32(npages - 1 - i)
	}
	return p
}

func (phys *Physmem_t) pg2pa(idx uint32) Pa_t {
	return Pa_t(idx) << PGSHIFT
}

func (phys *Physmem_t) pa2idx(p_pg Pa_t) uint32 {
	idx := uint32(p_pg >> PGSHIFT)
	if idx >= phys.npg {
		panic("physical address out of arena")
	}
	return idx
}

// Dmap returns the in-process page corresponding to a physical
// address, standing in for the direct map a real kernel installs at
// boot (biscuit's mem.Dmaplen).
func (phys *Physmem_t) Dmap(p_pg Pa_t) *Pg_t {
	idx := phys.pa2idx(p_pg)
	off := idx * uint32(PGSIZE)
	bpg := (*Bytepg_t)(unsafe.Pointer(&phys.arena[off]))
	return Bytepg2pg(bpg)
}

// Dmap8 is like Dmap but returns the page viewed as bytes.
func (phys *Physmem_t) Dmap8(p_pg Pa_t) *Bytepg_t {
	idx := phys.pa2idx(p_pg)
	off := idx * uint32(PGSIZE)
	return (*Bytepg_t)(unsafe.Pointer(&phys.arena[off]))
}

func (phys *Physmem_t) refpg_new(zero bool) (*Pg_t, Pa_t, bool) {
	phys.Lock()
	n := len(phys.free)
	if n == 0 {
		phys.Unlock()
		select {
		case phys.Oom <- true:
		default:
		}
		return nil, 0, false
	}
	idx := phys.free[n-1]
	phys.free = phys.free[:n-1]
	phys.pgs[idx].Refcnt = 1
	phys.Unlock()

	pg := phys.Dmap(phys.pg2pa(idx))
	if zero {
		for i := range pg {
			pg[i] = 0
		}
	}
	return pg, phys.pg2pa(idx), true
}

// Refpg_new allocates a zeroed page and returns it along with its
// physical address. The returned page has refcount 1.
func (phys *Physmem_t) Refpg_new() (*Pg_t, Pa_t, bool) {
	return phys.refpg_new(true)
}

// Refpg_new_nozero is like Refpg_new but skips zeroing, for callers
// (e.g. circbuf) that immediately overwrite the page.
func (phys *Physmem_t) Refpg_new_nozero() (*Pg_t, Pa_t, bool) {
	return phys.refpg_new(false)
}

// Refcnt returns the current reference count of the physical page.
func (phys *Physmem_t) Refcnt(p_pg Pa_t) int {
	idx := phys.pa2idx(p_pg)
	return int(atomic.LoadInt32(&phys.pgs[idx].Refcnt))
}

// Refup increments the reference count of the physical page.
func (phys *Physmem_t) Refup(p_pg Pa_t) {
	idx := phys.pa2idx(p_pg)
	atomic.AddInt32(&phys.pgs[idx].Refcnt, 1)
}

// Refdown decrements the reference count, freeing the page back to
// the allocator when it reaches zero. Returns true if the page was
// freed by this call.
func (phys *Physmem_t) Refdown(p_pg Pa_t) bool {
	idx := phys.pa2idx(p_pg)
	nv := atomic.AddInt32(&phys.pgs[idx].Refcnt, -1)
	if nv < 0 {
		panic("refcount underflow")
	}
	if nv != 0 {
		return false
	}
	phys.Lock()
	phys.free = append(phys.free, idx)
	phys.Unlock()
	return true
}

// Nfree reports the number of free pages, used by tests and the
// /proc diagnostics node.
func (phys *Physmem_t) Nfree() int {
	phys.Lock()
	defer phys.Unlock()
	return len(phys.free)
}

// Npages reports the arena's total page count.
func (phys *Physmem_t) Npages() int {
	return int(phys.npg)
}
