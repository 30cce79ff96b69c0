// Package fd implements the file descriptor layer: Fd_t wraps a
// backing fdops.Fdops_i object with open-mode permission bits, and
// Cwd_t tracks a task's current working directory (spec.md §3, "File
// descriptor"; grounded on the teacher's biscuit/src/fd/fd.go).
package fd

import "sync"

import "nucleuscore/bpath"
import "nucleuscore/defs"
import "nucleuscore/fdops"
import "nucleuscore/ustr"

// File descriptor permission bits.
const (
	FD_READ    = 0x1
	FD_WRITE   = 0x2
	FD_CLOEXEC = 0x4
)

// Fd_t represents an open file descriptor: a reference to a backing
// object plus the permission bits this particular open() or dup()
// granted.
type Fd_t struct {
	// Fops is an interface implemented via a pointer receiver, so
	// Fops is a reference, not a value.
	Fops  fdops.Fdops_i
	Perms int
}

// Copyfd duplicates an open file descriptor by reopening its backing
// object (increasing its refcount) rather than copying the Fd_t
// value naively, since the backing object owns shared state (e.g. a
// pipe's circbuf).
func Copyfd(fd *Fd_t) (*Fd_t, defs.Err_t) {
	nfd := &Fd_t{}
	*nfd = *fd
	if err := nfd.Fops.Reopen(); err != 0 {
		return nil, err
	}
	return nfd, 0
}

// Close_panic closes the descriptor and panics if that fails, for call
// sites where failure would indicate a kernel bug rather than a
// recoverable error.
func Close_panic(f *Fd_t) {
	if f.Fops.Close() != 0 {
		panic("close must succeed")
	}
}

// Cwd_t tracks the current working directory for a task. The mutex
// serializes concurrent chdir calls.
type Cwd_t struct {
	sync.Mutex
	Fd   *Fd_t
	Path ustr.Ustr
}

// Fullpath joins cwd with p if p is not already absolute.
func (cwd *Cwd_t) Fullpath(p ustr.Ustr) ustr.Ustr {
	if p.IsAbsolute() {
		return p
	}
	full := append(append(ustr.Ustr{}, cwd.Path...), '/')
	return append(full, p...)
}

// Canonicalpath resolves path components (".", "..") relative to cwd.
func (cwd *Cwd_t) Canonicalpath(p ustr.Ustr) ustr.Ustr {
	return bpath.Canonicalize(cwd.Fullpath(p))
}

// MkRootCwd constructs a Cwd_t rooted at "/".
func MkRootCwd(rootfd *Fd_t) *Cwd_t {
	return &Cwd_t{Fd: rootfd, Path: ustr.MkUstrRoot()}
}
