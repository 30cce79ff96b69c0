// Package vfs implements the polymorphic VFS node interface (spec.md
// §3, "VFS node") and a minimal in-memory filesystem sufficient to
// exercise it end to end, since on-disk layout parsing is an explicit
// Non-goal (spec.md §6: "the core does not parse on-disk formats").
//
// memfs's block storage still goes through a Disk_i, grounded on the
// teacher's biscuit/src/fs/blk.go Bdev_block_t/Disk_i block-device
// contract — kept and repurposed against a RAM-backed disk instead of
// AHCI/NVMe (SPEC_FULL.md §1, "[FD] File-descriptor layer + VFS").
package vfs

import "sync"

// BSIZE is the block size memfs reads and writes, matching the
// teacher's disk block size.
const BSIZE = 4096

// Disk_i is the block-device interface a storage driver supplies to a
// mounted filesystem (spec.md §6, "read_sectors, write_sectors,
// sector_size, sector_count").
type Disk_i interface {
	ReadSectors(lba int, dst []byte) error
	WriteSectors(lba int, src []byte) error
	SectorSize() int
	SectorCount() int
}

// RamDisk_t is a Disk_i backed by an in-process byte arena rather than
// a real storage controller, standing in for the AHCI/NVMe driver the
// teacher's Disk_i would otherwise be wired to.
type RamDisk_t struct {
	mu       sync.Mutex
	sectsz   int
	nsectors int
	data     []byte
}

// MkRamDisk allocates a RamDisk_t of the given sector geometry.
func MkRamDisk(sectsz, nsectors int) *RamDisk_t {
	return &RamDisk_t{
		sectsz:   sectsz,
		nsectors: nsectors,
		data:     make([]byte, sectsz*nsectors),
	}
}

func (d *RamDisk_t) bounds(lba, n int) (int, int, bool) {
	off := lba * d.sectsz
	end := off + n*d.sectsz
	if lba < 0 || n < 0 || end > len(d.data) {
		return 0, 0, false
	}
	return off, end, true
}

func (d *RamDisk_t) ReadSectors(lba int, dst []byte) error {
	n := (len(dst) + d.sectsz - 1) / d.sectsz
	d.mu.Lock()
	defer d.mu.Unlock()
	off, _, ok := d.bounds(lba, n)
	if !ok {
		return errOOB
	}
	copy(dst, d.data[off:off+len(dst)])
	return nil
}

func (d *RamDisk_t) WriteSectors(lba int, src []byte) error {
	n := (len(src) + d.sectsz - 1) / d.sectsz
	d.mu.Lock()
	defer d.mu.Unlock()
	off, _, ok := d.bounds(lba, n)
	if !ok {
		return errOOB
	}
	copy(d.data[off:off+len(src)], src)
	return nil
}

func (d *RamDisk_t) SectorSize() int  { return d.sectsz }
func (d *RamDisk_t) SectorCount() int { return d.nsectors }

type oobError struct{}

func (oobError) Error() string { return "sector range out of bounds" }

var errOOB = oobError{}

// BlockCache_t is a tiny write-through block cache over a Disk_i, the
// simplified descendant of the teacher's Bdev_block_t cache: memfs
// reads and writes whole BSIZE blocks through it rather than touching
// Disk_i directly on every call.
type BlockCache_t struct {
	mu    sync.Mutex
	disk  Disk_i
	cache map[int][]byte
}

// MkBlockCache constructs a cache in front of disk.
func MkBlockCache(disk Disk_i) *BlockCache_t {
	return &BlockCache_t{disk: disk, cache: make(map[int][]byte)}
}

// Get returns block n, reading through to disk on a cache miss.
func (bc *BlockCache_t) Get(n int) []byte {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if b, ok := bc.cache[n]; ok {
		return b
	}
	sectsz := bc.disk.SectorSize()
	secPerBlk := BSIZE / sectsz
	b := make([]byte, BSIZE)
	bc.disk.ReadSectors(n*secPerBlk, b)
	bc.cache[n] = b
	return b
}

// Put marks block n dirty and writes it back immediately
// (write-through — memfs has no journal to batch against).
func (bc *BlockCache_t) Put(n int, b []byte) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	cp := make([]byte, BSIZE)
	copy(cp, b)
	bc.cache[n] = cp
	sectsz := bc.disk.SectorSize()
	secPerBlk := BSIZE / sectsz
	bc.disk.WriteSectors(n*secPerBlk, cp)
}
