package vm

import (
	"testing"

	"nucleuscore/mem"
)

func TestAnonMmapWriteRead(t *testing.T) {
	phys := mem.Mkphysmem(64)
	phys.InitZeropg()
	as := Mkvm(phys)
	va := MMAPBASE
	as.Vmadd_anon(va, mem.PGSIZE, PTE_U|PTE_W)

	if err := as.Userwriten(va, 8, 0x1122334455667788); err != 0 {
		t.Fatalf("Userwriten failed: %v", err)
	}
	got, err := as.Userreadn(va, 8)
	if err != 0 {
		t.Fatalf("Userreadn failed: %v", err)
	}
	if got != 0x1122334455667788 {
		t.Fatalf("got %#x, want %#x", got, 0x1122334455667788)
	}
}

// Round-trip law from spec.md §8: "mmap(sz); write pattern; munmap"
// then "mmap(sz) yields a region that reads as zero."
func TestMunmapThenRemapReadsZero(t *testing.T) {
	phys := mem.Mkphysmem(64)
	phys.InitZeropg()
	as := Mkvm(phys)
	va := MMAPBASE

	as.Vmadd_anon(va, mem.PGSIZE, PTE_U|PTE_W)
	if err := as.Userwriten(va, 8, 0xdeadbeef); err != 0 {
		t.Fatalf("write failed: %v", err)
	}
	if err := as.Munmap(va, mem.PGSIZE); err != 0 {
		t.Fatalf("munmap failed: %v", err)
	}

	as.Vmadd_anon(va, mem.PGSIZE, PTE_U|PTE_W)
	got, err := as.Userreadn(va, 8)
	if err != 0 {
		t.Fatalf("re-read failed: %v", err)
	}
	if got != 0 {
		t.Fatalf("remapped region not zero: got %#x", got)
	}
}

// Fork invariant from spec.md §8: "Fork produces two tasks whose
// user-visible memory is bitwise identical immediately after, despite
// sharing physical frames" and the round-trip law "diverging only on
// first write."
func TestCloneCowDivergesOnWrite(t *testing.T) {
	phys := mem.Mkphysmem(64)
	phys.InitZeropg()
	parent := Mkvm(phys)
	va := MMAPBASE
	parent.Vmadd_anon(va, mem.PGSIZE, PTE_U|PTE_W)
	if err := parent.Userwriten(va, 1, 0xAA); err != 0 {
		t.Fatalf("parent write failed: %v", err)
	}

	child := parent.Clone()

	cval, err := child.Userreadn(va, 1)
	if err != 0 || cval != 0xAA {
		t.Fatalf("child should see 0xAA immediately after clone, got %#x err=%v", cval, err)
	}

	if err := parent.Userwriten(va, 1, 0xBB); err != 0 {
		t.Fatalf("parent write failed: %v", err)
	}
	if err := child.Userwriten(va, 1, 0xCC); err != 0 {
		t.Fatalf("child write failed: %v", err)
	}

	pval, _ := parent.Userreadn(va, 1)
	cval2, _ := child.Userreadn(va, 1)
	if pval != 0xBB {
		t.Fatalf("parent page = %#x, want 0xBB", pval)
	}
	if cval2 != 0xCC {
		t.Fatalf("child page = %#x, want 0xCC", cval2)
	}
}

func TestFindFreeRegionNonOverlapping(t *testing.T) {
	phys := mem.Mkphysmem(64)
	as := Mkvm(phys)
	va1, ok := as.FindFreeRegion(mem.PGSIZE)
	if !ok {
		t.Fatal("FindFreeRegion failed")
	}
	as.Vmadd_anon(va1, mem.PGSIZE, PTE_U|PTE_W)

	va2, ok := as.FindFreeRegion(mem.PGSIZE)
	if !ok {
		t.Fatal("second FindFreeRegion failed")
	}
	if va2 == va1 {
		t.Fatal("FindFreeRegion returned overlapping region")
	}
}
