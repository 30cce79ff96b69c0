package vfs

import (
	"sync"

	"nucleuscore/defs"
	"nucleuscore/fdops"
	"nucleuscore/stat"
)

// File_t adapts an open Node_i into an fdops.Fdops_i, the bridge the
// fd-descriptor layer uses to dispatch read/write/seek to whichever
// concrete VFS node backs a descriptor (spec.md §4.5, "dispatched by
// the entry's type tag to the appropriate handler (VFS node...)").
type File_t struct {
	mu     sync.Mutex
	node   Node_i
	offset int
	append bool
}

// MkFile opens node as a seekable fd backing object. If appendMode is
// set, every write first seeks to the current end of file (spec.md
// §4.5, "O_APPEND sets offset to current length on every write").
func MkFile(node Node_i, appendMode bool) *File_t {
	return &File_t{node: node, append: appendMode}
}

func (f *File_t) Close() defs.Err_t  { return 0 }
func (f *File_t) Reopen() defs.Err_t { return 0 }

func (f *File_t) Pathi() fdops.Inum_i { return nil }

func (f *File_t) Fstat(st fdops.Stat_i) defs.Err_t {
	cast, ok := st.(*stat.Stat_t)
	if !ok {
		return -defs.EINVAL
	}
	return f.node.Stat(cast)
}

func (f *File_t) Lseek(off, whence int) (int, defs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch whence {
	case 0: // SEEK_SET
		f.offset = off
	case 1: // SEEK_CUR
		f.offset += off
	case 2: // SEEK_END
		var st stat.Stat_t
		f.node.Stat(&st)
		f.offset = int(st.Size()) + off
	default:
		return 0, -defs.EINVAL
	}
	if f.offset < 0 {
		f.offset = 0
		return 0, -defs.EINVAL
	}
	return f.offset, 0
}

func (f *File_t) Truncate(newlen uint) defs.Err_t {
	return f.node.Truncate(newlen)
}

func (f *File_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	f.mu.Lock()
	off := f.offset
	f.mu.Unlock()
	return f.Pread(dst, off)
}

func (f *File_t) Pread(dst fdops.Userio_i, offset int) (int, defs.Err_t) {
	buf := make([]byte, dst.Remain())
	n, err := f.node.Read(buf, offset)
	if err != 0 {
		return 0, err
	}
	wn, werr := dst.Uiowrite(buf[:n])
	if werr != 0 {
		return 0, werr
	}
	f.mu.Lock()
	if offset == f.offset {
		f.offset += wn
	}
	f.mu.Unlock()
	return wn, 0
}

func (f *File_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	f.mu.Lock()
	if f.append {
		var st stat.Stat_t
		f.node.Stat(&st)
		f.offset = int(st.Size())
	}
	off := f.offset
	f.mu.Unlock()
	return f.Pwrite(src, off)
}

func (f *File_t) Pwrite(src fdops.Userio_i, offset int) (int, defs.Err_t) {
	buf := make([]byte, src.Remain())
	rn, rerr := src.Uioread(buf)
	if rerr != 0 {
		return 0, rerr
	}
	n, err := f.node.Write(buf[:rn], offset)
	if err != 0 {
		return 0, err
	}
	f.mu.Lock()
	if offset == f.offset {
		f.offset += n
	}
	f.mu.Unlock()
	return n, 0
}
