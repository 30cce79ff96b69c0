package ipc

import (
	"testing"

	"nucleuscore/defs"
	"nucleuscore/mem"
	"nucleuscore/vm"
)

func mkshmharness(t *testing.T) (*mem.Physmem_t, *ShmTable_t) {
	t.Helper()
	phys := mem.Mkphysmem(64)
	phys.InitZeropg()
	return phys, MkShmTable(phys)
}

// Round-trip: create, map into an address space, write through the
// mapping, unmap, then destroy — the owning task never sees the
// region mapped once Unmap returns, so Destroy must succeed.
func TestShmCreateMapUnmapDestroy(t *testing.T) {
	phys, tbl := mkshmharness(t)
	const owner defs.Pid_t = 1

	id, err := tbl.Create(mem.PGSIZE, owner, mem.PTE_U|mem.PTE_W)
	if err != 0 {
		t.Fatalf("Create failed: %v", err)
	}

	as := vm.Mkvm(phys)
	va, err := tbl.Map(id, owner, as)
	if err != 0 {
		t.Fatalf("Map failed: %v", err)
	}
	if err := as.Userwriten(va, 8, 0x1234); err != 0 {
		t.Fatalf("write through mapping failed: %v", err)
	}
	got, err := as.Userreadn(va, 8)
	if err != 0 || got != 0x1234 {
		t.Fatalf("readback = (%#x, %v), want (0x1234, nil)", got, err)
	}

	if err := tbl.Unmap(id, owner, as); err != 0 {
		t.Fatalf("Unmap failed: %v", err)
	}
	if err := tbl.Destroy(id, owner); err != 0 {
		t.Fatalf("Destroy after unmap should succeed, got %v", err)
	}
}

// Quantified invariant from spec.md §8: "∀ shared-memory regions R:
// refcount = |mapped_pids|" — Destroy must reject while any task
// still has the region mapped, and the table entry must still exist
// afterward so a later Unmap+Destroy can still complete (the bug this
// test guards against: an unconditional delete before the mapped-count
// check left the entry gone with frames never freed).
func TestShmDestroyRejectedWhileMapped(t *testing.T) {
	phys, tbl := mkshmharness(t)
	const owner defs.Pid_t = 1

	id, err := tbl.Create(mem.PGSIZE, owner, mem.PTE_U|mem.PTE_W)
	if err != 0 {
		t.Fatalf("Create failed: %v", err)
	}

	as := vm.Mkvm(phys)
	va, err := tbl.Map(id, owner, as)
	if err != 0 {
		t.Fatalf("Map failed: %v", err)
	}

	if err := tbl.Destroy(id, owner); err != -defs.EINVAL {
		t.Fatalf("Destroy while mapped = %v, want EINVAL", err)
	}

	// The region must still be live: Unmap should still find it and
	// succeed, and Destroy should now complete.
	if err := tbl.Unmap(id, owner, as); err != 0 {
		t.Fatalf("Unmap after rejected Destroy failed: %v (region was dropped)", err)
	}
	_ = va
	if err := tbl.Destroy(id, owner); err != 0 {
		t.Fatalf("Destroy after unmap should now succeed, got %v", err)
	}
}

func TestShmDestroyRequiresOwner(t *testing.T) {
	_, tbl := mkshmharness(t)
	const owner defs.Pid_t = 1
	const other defs.Pid_t = 2

	id, err := tbl.Create(mem.PGSIZE, owner, mem.PTE_U|mem.PTE_W)
	if err != 0 {
		t.Fatalf("Create failed: %v", err)
	}
	if err := tbl.Destroy(id, other); err != -defs.EPERM {
		t.Fatalf("Destroy by non-owner = %v, want EPERM", err)
	}
}
