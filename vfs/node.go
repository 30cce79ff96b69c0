package vfs

import (
	"nucleuscore/defs"
	"nucleuscore/stat"
)

// Dirent_t is one entry returned by Readdir.
type Dirent_t struct {
	Name string
	Ino  int
}

// Node_i is the polymorphic VFS node interface spec.md §3 names: every
// mounted filesystem, /dev endpoint, and /proc entry implements it. Per
// SPEC_FULL.md §1's [FD] entry this is a single tagged interface, not an
// open-ended class hierarchy — Type() lets callers dispatch without
// type-asserting to a concrete struct.
type Node_i interface {
	Type() NodeType
	Stat(st *stat.Stat_t) defs.Err_t
	Read(dst []byte, offset int) (int, defs.Err_t)
	Write(src []byte, offset int) (int, defs.Err_t)
	Readdir(index int) (Dirent_t, defs.Err_t)
	Finddir(name string) (Node_i, defs.Err_t)
	Create(name string) (Node_i, defs.Err_t)
	Mkdir(name string) (Node_i, defs.Err_t)
	Unlink(name string) defs.Err_t
	Rmdir(name string) defs.Err_t
	Rename(oldname, newname string) defs.Err_t
	Truncate(newlen uint) defs.Err_t
}

// NodeType tags what kind of object a Node_i represents.
type NodeType int

const (
	T_FILE NodeType = iota
	T_DIR
	T_MOUNT
	T_DEV
)

// notDir implements the directory-only operations with ENOTDIR, for
// embedding into file/device nodes.
type notDir struct{}

func (notDir) Readdir(int) (Dirent_t, defs.Err_t)       { return Dirent_t{}, -defs.ENOTDIR }
func (notDir) Finddir(string) (Node_i, defs.Err_t)      { return nil, -defs.ENOTDIR }
func (notDir) Create(string) (Node_i, defs.Err_t)       { return nil, -defs.ENOTDIR }
func (notDir) Mkdir(string) (Node_i, defs.Err_t)        { return nil, -defs.ENOTDIR }
func (notDir) Unlink(string) defs.Err_t                 { return -defs.ENOTDIR }
func (notDir) Rmdir(string) defs.Err_t                  { return -defs.ENOTDIR }
func (notDir) Rename(string, string) defs.Err_t         { return -defs.ENOTDIR }

// notFile implements the file-only operations with EISDIR, for
// embedding into directory nodes.
type notFile struct{}

func (notFile) Read([]byte, int) (int, defs.Err_t)  { return 0, -defs.EISDIR }
func (notFile) Write([]byte, int) (int, defs.Err_t) { return 0, -defs.EISDIR }
func (notFile) Truncate(uint) defs.Err_t            { return -defs.EISDIR }
