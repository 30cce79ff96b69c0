package vm

import (
	"nucleuscore/defs"
	"nucleuscore/mem"
	"unsafe"
)

// pg2pmapptr reinterprets a page of words as a page-table page.
func pg2pmapptr(pg *mem.Pg_t) unsafe.Pointer {
	return unsafe.Pointer(pg)
}

// pgbits splits a virtual address into its four 9-bit page-table
// indices, mirroring the teacher's mem.pgbits bit-slicing (PML4,
// PDPT, PD, PT).
func pgbits(va uintptr) (l4, l3, l2, l1 uint) {
	shl := func(c uint) uint { return 12 + 9*c }
	lb := func(c uint) uint { return uint(va>>shl(c)) & 0x1ff }
	return lb(3), lb(2), lb(1), lb(0)
}

// pmap_walk walks the four-level page table rooted at pmap, allocating
// any missing intermediate level with the given permissions, and
// returns a pointer to the leaf PTE for va.
func pmap_walk(pmap *mem.Pmap_t, phys *mem.Physmem_t, va int, perms mem.Pa_t) (*mem.Pa_t, defs.Err_t) {
	l4, l3, l2, l1 := pgbits(uintptr(va))

	next := func(tbl *mem.Pmap_t, idx uint) (*mem.Pmap_t, defs.Err_t) {
		e := &tbl[idx]
		if *e&mem.PTE_P == 0 {
			pg, p_pg, ok := phys.Refpg_new()
			if !ok {
				return nil, -defs.ENOMEM
			}
			*e = p_pg | perms | mem.PTE_P
			return (*mem.Pmap_t)(pg2pmapptr(pg)), 0
		}
		child := phys.Dmap(*e & mem.PTE_ADDR)
		return (*mem.Pmap_t)(pg2pmapptr(child)), 0
	}

	pdpt, err := next(pmap, l4)
	if err != 0 {
		return nil, err
	}
	pd, err := next(pdpt, l3)
	if err != 0 {
		return nil, err
	}
	pt, err := next(pd, l2)
	if err != 0 {
		return nil, err
	}
	return &pt[l1], 0
}

// pmap_lookup is like pmap_walk but never allocates; it returns nil if
// any intermediate level is missing.
func pmap_lookup(pmap *mem.Pmap_t, phys *mem.Physmem_t, va int) *mem.Pa_t {
	l4, l3, l2, l1 := pgbits(uintptr(va))
	tbl := pmap
	for _, idx := range []uint{l4, l3, l2} {
		e := &tbl[idx]
		if *e&mem.PTE_P == 0 {
			return nil
		}
		tbl = (*mem.Pmap_t)(pg2pmapptr(phys.Dmap(*e & mem.PTE_ADDR)))
	}
	return &tbl[l1]
}

// freepmap releases every page-table page reachable from pmap. It
// walks only entries actually present; since every mapping made by
// this package lives at a real present PML4 slot with no shared kernel
// half, freeing all present entries at every level is safe.
func freepmap(pmap *mem.Pmap_t, phys *mem.Physmem_t) {
	for _, e3 := range pmap {
		if e3&mem.PTE_P == 0 {
			continue
		}
		pdpt := (*mem.Pmap_t)(pg2pmapptr(phys.Dmap(e3 & mem.PTE_ADDR)))
		for _, e2 := range pdpt {
			if e2&mem.PTE_P == 0 {
				continue
			}
			pd := (*mem.Pmap_t)(pg2pmapptr(phys.Dmap(e2 & mem.PTE_ADDR)))
			for _, e1 := range pd {
				if e1&mem.PTE_P == 0 {
					continue
				}
				phys.Refdown(e1 & mem.PTE_ADDR)
			}
			phys.Refdown(e2 & mem.PTE_ADDR)
		}
		phys.Refdown(e3 & mem.PTE_ADDR)
	}
}
