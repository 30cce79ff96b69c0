// Package vm implements the per-process address-space manager: a
// four-level pagetable walk, a sorted VMA list, and the page-fault
// resolution policy spec.md §4.2 describes (grounded on the teacher's
// biscuit/src/vm/as.go Vm_t and Sys_pgfault).
//
// The teacher walks a real CR3-rooted, hardware-read page table
// reached through a recursive self-mapping slot (mem.VREC) and
// shoots down stale TLB entries on other CPUs via IPIs. Hosted in a
// single process there is no CR3, no TLB, and no other CPUs to
// interrupt: this package instead allocates Pmap_t pages straight out
// of the mem.Physmem_t arena and walks them with ordinary slice
// indexing. Every other contract — VMA lookup, demand paging,
// copy-on-write, guard pages — is preserved exactly.
package vm

import (
	"sort"
	"sync"

	"nucleuscore/defs"
	"nucleuscore/fdops"
	"nucleuscore/mem"
	"nucleuscore/util"
)

// Pa_t-valued PTE flags, mirrored from mem so callers write PTE_W,
// not mem.PTE_W, the way the teacher's vm package does.
const (
	PTE_P    = mem.PTE_P
	PTE_W    = mem.PTE_W
	PTE_U    = mem.PTE_U
	PTE_COW  = mem.PTE_COW
	PTE_ADDR = mem.PTE_ADDR
	PGOFFSET = mem.PGOFFSET
	PGSHIFT  = mem.PGSHIFT
)

// PTE_WASCOW marks a page that was copy-on-write and has since been
// claimed writable by a single-owner fault, so a later write fault
// does not re-run the COW check.
const PTE_WASCOW mem.Pa_t = 1 << 10

// MMAPBASE is the default search start for mmap(addr=0)-style
// allocation and shared-memory mapping (find_free_region), chosen well
// above any fixed low-memory layout a loaded binary uses.
const MMAPBASE = 0x0000700000000000

// mtype_t tags a VMA's backing kind.
type mtype_t uint8

const (
	VANON  mtype_t = iota // private anonymous memory
	VFILE                 // file-backed memory (mmap)
	VSANON                // shared anonymous memory (spec.md §4.4 shared memory regions)
)

// Mfile_t describes a file-backed VMA's source.
type Mfile_t struct {
	foff  int
	fops  fdops.Fdops_i
	shared bool
}

// Vminfo_t is one VMA: a half-open page range plus its type and
// permissions (spec.md §4.2, "VMA").
type Vminfo_t struct {
	Mtype mtype_t
	Pgn   uintptr // starting page number
	Pglen int     // length in pages
	Perms uint    // PTE_U[|PTE_W]; 0 means guard page
	file  Mfile_t
}

func (vmi *Vminfo_t) start() uintptr { return vmi.Pgn << PGSHIFT }
func (vmi *Vminfo_t) end() uintptr {
	return (vmi.Pgn + uintptr(vmi.Pglen)) << PGSHIFT
}

// Ptefor returns the page table entry for va within this VMA,
// allocating intermediate page-table levels as needed.
func (vmi *Vminfo_t) Ptefor(pmap *mem.Pmap_t, phys *mem.Physmem_t, va uintptr) (*mem.Pa_t, bool) {
	pte, err := pmap_walk(pmap, phys, int(va), PTE_U|PTE_W)
	if err != 0 {
		return nil, false
	}
	return pte, true
}

// Filepage reads the file-backed page covering faultaddr and returns
// it along with its physical address. The caller owns the returned
// page's reference and must Refdown it when done, mirroring how the
// teacher's vmi.Filepage is consumed in Sys_pgfault.
func (vmi *Vminfo_t) Filepage(phys *mem.Physmem_t, faultaddr uintptr) (*mem.Pg_t, mem.Pa_t, defs.Err_t) {
	pg, p_pg, ok := phys.Refpg_new_nozero()
	if !ok {
		return nil, 0, -defs.ENOMEM
	}
	bpg := mem.Pg2bytes(pg)
	pgoff := int(faultaddr) - int(vmi.start()) + vmi.file.foff
	fb := &Fakeubuf_t{}
	fb.Fake_init(bpg[:])
	n, err := vmi.file.fops.Pread(fb, pgoff)
	if err != 0 {
		phys.Refdown(p_pg)
		return nil, 0, err
	}
	for i := n; i < len(bpg); i++ {
		bpg[i] = 0
	}
	return pg, p_pg, 0
}

// Vmregion_t is the sorted, non-overlapping list of VMAs making up one
// address space's user half (spec.md §4.2, "vma_list is sorted by
// start address with no gaps of zero-permission pages", and §9's
// "VMAs form a sorted list").
type Vmregion_t struct {
	regions []*Vminfo_t
}

// Lookup returns the VMA containing va, if any.
func (r *Vmregion_t) Lookup(va uintptr) (*Vminfo_t, bool) {
	pgn := va >> PGSHIFT
	i := sort.Search(len(r.regions), func(i int) bool {
		return r.regions[i].Pgn+uintptr(r.regions[i].Pglen) > pgn
	})
	if i >= len(r.regions) || r.regions[i].Pgn > pgn {
		return nil, false
	}
	return r.regions[i], true
}

// insert adds a VMA, keeping the list sorted and rejecting overlap.
func (r *Vmregion_t) insert(vmi *Vminfo_t) {
	i := sort.Search(len(r.regions), func(i int) bool {
		return r.regions[i].Pgn >= vmi.Pgn
	})
	if i > 0 && r.regions[i-1].Pgn+uintptr(r.regions[i-1].Pglen) > vmi.Pgn {
		panic("overlapping vma")
	}
	if i < len(r.regions) && vmi.Pgn+uintptr(vmi.Pglen) > r.regions[i].Pgn {
		panic("overlapping vma")
	}
	r.regions = append(r.regions, nil)
	copy(r.regions[i+1:], r.regions[i:])
	r.regions[i] = vmi
}

// remove deletes the VMA covering [start, start+len) exactly.
func (r *Vmregion_t) remove(start uintptr, len int) bool {
	pgn := start >> PGSHIFT
	npg := util.Roundup(len, mem.PGSIZE) >> PGSHIFT
	for i, vmi := range r.regions {
		if vmi.Pgn == pgn && vmi.Pglen == npg {
			r.regions = append(r.regions[:i], r.regions[i+1:]...)
			return true
		}
	}
	return false
}

// empty finds a free page-aligned range of the requested length at or
// after startva, for mmap(addr=0) and brk-style allocation.
func (r *Vmregion_t) empty(startva, l uintptr) (uintptr, uintptr) {
	cur := startva
	for _, vmi := range r.regions {
		if vmi.Pgn<<PGSHIFT >= cur+l {
			break
		}
		if vmi.end() > cur {
			cur = vmi.end()
		}
	}
	return cur, l
}

// Clear empties the VMA list (used when tearing down an address
// space).
func (r *Vmregion_t) Clear() {
	r.regions = nil
}

// copy deep-copies the VMA list for Vm_t.Clone (fork).
func (r *Vmregion_t) copy() Vmregion_t {
	nr := Vmregion_t{regions: make([]*Vminfo_t, len(r.regions))}
	for i, vmi := range r.regions {
		cp := *vmi
		nr.regions[i] = &cp
	}
	return nr
}

// Vm_t represents one process's address space: a root page-table
// page plus the sorted VMA list describing what each mapped range
// means (spec.md §4.2, "Address space").
type Vm_t struct {
	sync.Mutex

	Phys *mem.Physmem_t

	Vmregion Vmregion_t

	Pmap   *mem.Pmap_t
	P_pmap mem.Pa_t

	pgfltaken bool
}

// Mkvm allocates a fresh, empty address space backed by phys.
func Mkvm(phys *mem.Physmem_t) *Vm_t {
	pg, p_pg, ok := phys.Refpg_new()
	if !ok {
		panic("oom creating address space")
	}
	as := &Vm_t{Phys: phys}
	as.Pmap = (*mem.Pmap_t)(pg2pmapptr(pg))
	as.P_pmap = p_pg
	return as
}

// Lock_pmap acquires the address space lock and marks that page-fault
// handling code, which assumes the lock is already held, may run.
func (as *Vm_t) Lock_pmap() {
	as.Lock()
	as.pgfltaken = true
}

// Unlock_pmap releases the address space lock.
func (as *Vm_t) Unlock_pmap() {
	as.pgfltaken = false
	as.Unlock()
}

// Lockassert_pmap panics if the address space lock is not held.
func (as *Vm_t) Lockassert_pmap() {
	if !as.pgfltaken {
		panic("pgfl lock must be held")
	}
}

// Vmadd_anon adds a private anonymous VMA (spec.md §4.6, mmap/brk).
func (as *Vm_t) Vmadd_anon(start, length int, perms mem.Pa_t) {
	as.Vmregion.insert(as.mkvmi(VANON, start, length, perms, 0, nil))
}

// Vmadd_guard adds a zero-permission guard VMA: any access faults.
func (as *Vm_t) Vmadd_guard(start, length int) {
	as.Vmregion.insert(as.mkvmi(VANON, start, length, 0, 0, nil))
}

// Vmadd_file adds a private file-backed VMA (spec.md §4.6, mmap).
func (as *Vm_t) Vmadd_file(start, length int, perms mem.Pa_t, fops fdops.Fdops_i, foff int) {
	as.Vmregion.insert(as.mkvmi(VFILE, start, length, perms, foff, fops))
}

// Vmadd_shareanon adds a shared anonymous VMA backed by already
// physically-resident frames (spec.md §4.4, "shared memory region").
func (as *Vm_t) Vmadd_shareanon(start, length int, perms mem.Pa_t) {
	as.Vmregion.insert(as.mkvmi(VSANON, start, length, perms, 0, nil))
}

func (as *Vm_t) mkvmi(mt mtype_t, start, length int, perms mem.Pa_t, foff int, fops fdops.Fdops_i) *Vminfo_t {
	if length <= 0 {
		panic("bad vma length")
	}
	if mem.Pa_t(start|length)&PGOFFSET != 0 {
		panic("start and length must be page aligned")
	}
	ret := &Vminfo_t{
		Mtype: mt,
		Pgn:   uintptr(start) >> PGSHIFT,
		Pglen: util.Roundup(length, mem.PGSIZE) >> PGSHIFT,
		Perms: uint(perms),
	}
	if mt == VFILE {
		ret.file = Mfile_t{foff: foff, fops: fops}
	}
	return ret
}

// FindFreeRegion returns an unused, page-aligned virtual address range
// of length bytes at or after MMAPBASE (spec.md §4.2, vma_find_free_region).
func (as *Vm_t) FindFreeRegion(length int) (int, bool) {
	as.Lock_pmap()
	defer as.Unlock_pmap()
	va := as.Unusedva_inner(MMAPBASE, length)
	return va, true
}

// MapShared adds a VSANON VMA at [start, start+len(frames)*PGSIZE) and
// eagerly installs a PTE for each of frames, in order — shared-memory
// pages must already be present at insertion time since Sys_pgfault
// refuses to service a fault in a VSANON region (spec.md §4.4,
// shmem_map "installs user-visible PTEs ... immediately").
func (as *Vm_t) MapShared(start int, frames []mem.Pa_t, perms mem.Pa_t) defs.Err_t {
	as.Lock_pmap()
	defer as.Unlock_pmap()
	length := len(frames) * mem.PGSIZE
	as.Vmregion.insert(as.mkvmi(VSANON, start, length, perms, 0, nil))
	for i, pa := range frames {
		va := start + i*mem.PGSIZE
		pte, err := pmap_walk(as.Pmap, as.Phys, va, PTE_U|PTE_W)
		if err != 0 {
			return -defs.ENOMEM
		}
		as.page_insert(va, pa, (perms&(PTE_W|PTE_U))|PTE_U, true, pte)
	}
	return 0
}

// UnmapShared removes npages of VSANON mapping starting at start,
// dropping a reference on each backing frame without freeing it (the
// caller, ipc.Shm_t, owns the frames' lifetime via its own refcount).
func (as *Vm_t) UnmapShared(start int, npages int) defs.Err_t {
	as.Lock_pmap()
	defer as.Unlock_pmap()
	if !as.Vmregion.remove(uintptr(start), npages*mem.PGSIZE) {
		return -defs.ENOENT
	}
	for i := 0; i < npages; i++ {
		as.page_remove(start + i*mem.PGSIZE)
	}
	return 0
}

// Munmap removes the VMA at [start, start+length) and unmaps its
// pages, returning ENOENT if no such VMA exists.
func (as *Vm_t) Munmap(start, length int) defs.Err_t {
	as.Lock_pmap()
	defer as.Unlock_pmap()
	if !as.Vmregion.remove(uintptr(start), length) {
		return -defs.ENOENT
	}
	pg := util.Roundup(length, mem.PGSIZE) >> PGSHIFT
	for i := 0; i < pg; i++ {
		as.page_remove(start + i*mem.PGSIZE)
	}
	return 0
}

// Sys_pgfault resolves a page fault at faultaddr for VMA vmi,
// implementing the four-step resolution policy of spec.md §4.2.
func Sys_pgfault(as *Vm_t, vmi *Vminfo_t, faultaddr, ecode uintptr) defs.Err_t {
	isguard := vmi.Perms == 0
	iswrite := ecode&uintptr(PTE_W) != 0
	writeok := vmi.Perms&uint(PTE_W) != 0
	if isguard || (iswrite && !writeok) {
		return -defs.EFAULT
	}
	if vmi.Mtype == VSANON {
		panic("shared anon pages must always be mapped at insertion")
	}

	pte, ok := vmi.Ptefor(as.Pmap, as.Phys, faultaddr)
	if !ok {
		return -defs.ENOMEM
	}
	if (iswrite && *pte&PTE_WASCOW != 0) || (!iswrite && *pte&PTE_P != 0) {
		// two threads raced on the same page; the other one won
		return 0
	}

	var p_pg mem.Pa_t
	perms := PTE_U | PTE_P
	isempty := true
	fresh := false // p_pg carries an allocation reference of its own

	if iswrite {
		if *pte&PTE_W != 0 {
			panic("writable pte should not fault")
		}
		var pgsrc *mem.Pg_t
		cow := *pte&PTE_COW != 0
		if cow {
			phys := *pte & PTE_ADDR
			if vmi.Mtype == VANON && as.Phys.Refcnt(phys) == 1 {
				zpg, zpa := as.Phys.Zeropg()
				_ = zpg
				if phys != zpa {
					// sole owner: claim in place, skip the copy
					*pte = (*pte &^ PTE_COW) | PTE_W | PTE_WASCOW
					return 0
				}
			}
			pgsrc = as.Phys.Dmap(phys)
			isempty = false
		} else {
			if *pte != 0 {
				panic("pte should be empty before first fault")
			}
			switch vmi.Mtype {
			case VANON:
				zpg, _ := as.Phys.Zeropg()
				pgsrc = zpg
			case VFILE:
				var err defs.Err_t
				var p_bpg mem.Pa_t
				pgsrc, p_bpg, err = vmi.Filepage(as.Phys, faultaddr)
				if err != 0 {
					return err
				}
				defer as.Phys.Refdown(p_bpg)
			}
		}
		pg, pa, ok := as.Phys.Refpg_new_nozero()
		if !ok {
			return -defs.ENOMEM
		}
		*pg = *pgsrc
		p_pg = pa
		fresh = true
		perms |= PTE_WASCOW | PTE_W
	} else {
		if *pte != 0 {
			panic("pte should be empty before first fault")
		}
		switch vmi.Mtype {
		case VANON:
			_, zpa := as.Phys.Zeropg()
			p_pg = zpa
		case VFILE:
			var err defs.Err_t
			_, p_pg, err = vmi.Filepage(as.Phys, faultaddr)
			if err != 0 {
				return err
			}
			fresh = true
		}
		if vmi.Perms&uint(PTE_W) != 0 {
			perms |= PTE_COW
		}
	}

	ok2 := as.page_insert(int(faultaddr), p_pg, perms, isempty, pte)
	if fresh {
		// page_insert took the mapping's own reference
		as.Phys.Refdown(p_pg)
	}
	if !ok2 {
		return -defs.ENOMEM
	}
	return 0
}

// page_insert maps p_pg at va with perms, taking a reference on p_pg.
// vempty asserts the destination pte was unmapped, matching the
// teacher's XXXPANIC invariant check.
func (as *Vm_t) page_insert(va int, p_pg mem.Pa_t, perms mem.Pa_t, vempty bool, pte *mem.Pa_t) bool {
	as.Lockassert_pmap()
	as.Phys.Refup(p_pg)
	if pte == nil {
		var err defs.Err_t
		pte, err = pmap_walk(as.Pmap, as.Phys, va, PTE_U|PTE_W)
		if err != 0 {
			as.Phys.Refdown(p_pg)
			return false
		}
	}
	if *pte&PTE_P != 0 {
		if vempty {
			panic("pte not empty")
		}
		old := *pte & PTE_ADDR
		*pte = p_pg | perms | PTE_P
		as.Phys.Refdown(old)
		return true
	}
	*pte = p_pg | perms | PTE_P
	return true
}

// page_remove unmaps the page at va, if any, dropping its reference.
func (as *Vm_t) page_remove(va int) bool {
	as.Lockassert_pmap()
	pte := pmap_lookup(as.Pmap, as.Phys, va)
	if pte != nil && *pte&PTE_P != 0 {
		old := *pte & PTE_ADDR
		as.Phys.Refdown(old)
		*pte = 0
		return true
	}
	return false
}

// Pgfault looks up the VMA covering fa and resolves the fault; it is
// the entry point the syscall dispatcher's Trap calls on EFAULT-class
// traps (spec.md §4.2, numbered resolution steps).
func (as *Vm_t) Pgfault(fa, ecode uintptr) defs.Err_t {
	as.Lock_pmap()
	defer as.Unlock_pmap()
	vmi, ok := as.Vmregion.Lookup(fa)
	if !ok {
		return -defs.EFAULT
	}
	return Sys_pgfault(as, vmi, fa, ecode)
}

// Clone duplicates this address space for fork: every VMA is copied,
// every present anonymous PTE is marked copy-on-write in both the
// parent and the child and the underlying frame's refcount is bumped,
// realizing copy-on-write without eagerly duplicating pages (spec.md
// §4.2, "Cloning (for fork)").
func (as *Vm_t) Clone() *Vm_t {
	as.Lock_pmap()
	defer as.Unlock_pmap()

	nas := Mkvm(as.Phys)
	nas.Vmregion = as.Vmregion.copy()

	for _, vmi := range nas.Vmregion.regions {
		if vmi.Mtype == VSANON {
			// shared regions are mapped identically, not COW'd
			for pn := vmi.Pgn; pn < vmi.Pgn+uintptr(vmi.Pglen); pn++ {
				va := int(pn << PGSHIFT)
				srcpte := pmap_lookup(as.Pmap, as.Phys, va)
				if srcpte == nil || *srcpte&PTE_P == 0 {
					continue
				}
				dstpte, err := pmap_walk(nas.Pmap, nas.Phys, va, PTE_U|PTE_W)
				if err != 0 {
					panic("oom cloning shared vma")
				}
				as.Phys.Refup(*srcpte & PTE_ADDR)
				*dstpte = *srcpte
			}
			continue
		}
		for pn := vmi.Pgn; pn < vmi.Pgn+uintptr(vmi.Pglen); pn++ {
			va := int(pn << PGSHIFT)
			srcpte := pmap_lookup(as.Pmap, as.Phys, va)
			if srcpte == nil || *srcpte&PTE_P == 0 {
				continue
			}
			np := (*srcpte &^ (PTE_W | PTE_WASCOW)) | PTE_COW
			*srcpte = np
			dstpte, err := pmap_walk(nas.Pmap, nas.Phys, va, PTE_U|PTE_W)
			if err != 0 {
				panic("oom cloning vma")
			}
			as.Phys.Refup(np & PTE_ADDR)
			*dstpte = np
		}
	}
	return nas
}

// Uvmfree releases every user mapping, every page-table page, and the
// root pmap page itself.
func (as *Vm_t) Uvmfree() {
	as.Lock_pmap()
	defer as.Unlock_pmap()
	for _, vmi := range as.Vmregion.regions {
		for pn := vmi.Pgn; pn < vmi.Pgn+uintptr(vmi.Pglen); pn++ {
			as.page_remove(int(pn << PGSHIFT))
		}
	}
	as.Vmregion.Clear()
	freepmap(as.Pmap, as.Phys)
	as.Phys.Refdown(as.P_pmap)
}
