// Package fdops declares the interfaces a file descriptor's backing
// object (a VFS node, a pipe, or a device) must implement, and the
// user-memory transfer interface those objects read and write through.
// It exists as its own package, rather than living in fd or vfs,
// because circbuf, vm and vfs all depend on it without depending on
// each other.
package fdops

import "nucleuscore/defs"

// Userio_i abstracts a user-memory region so that circbuf, pipe, and
// device backends can copy bytes in and out without knowing whether
// the other end is a real user page range or an in-kernel byte slice.
type Userio_i interface {
	// Uioread copies into dst, stopping when dst is full or the
	// region is exhausted, and returns bytes copied.
	Uioread(dst []uint8) (int, defs.Err_t)
	// Uiowrite copies from src, stopping when the region is full,
	// and returns bytes copied.
	Uiowrite(src []uint8) (int, defs.Err_t)
	// Remain reports bytes left unread/unwritten in the region.
	Remain() int
	// Totalsz reports the region's original total size.
	Totalsz() int
}

// Stat_i is implemented by stat.Stat_t; declared as an interface here
// so this package does not import stat.
type Stat_i interface {
	Wdev(uint)
	Wino(uint)
	Wmode(uint)
	Wsize(uint)
	Wrdev(uint)
}

// Inum_i identifies the VFS node a file descriptor refers to.
type Inum_i interface {
	Inum() int
}

// Fdops_i is the operation set every fd.Fd_t backing object implements.
// Not every operation is meaningful for every kind of backing object
// (e.g. Truncate on a pipe); those return -defs.EINVAL.
type Fdops_i interface {
	Close() defs.Err_t
	Fstat(st Stat_i) defs.Err_t
	Lseek(off, whence int) (int, defs.Err_t)
	Pathi() Inum_i
	Read(dst Userio_i) (int, defs.Err_t)
	Reopen() defs.Err_t
	Write(src Userio_i) (int, defs.Err_t)
	Truncate(newlen uint) defs.Err_t
	Pread(dst Userio_i, offset int) (int, defs.Err_t)
	Pwrite(src Userio_i, offset int) (int, defs.Err_t)
}
