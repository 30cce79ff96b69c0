package vfs

import (
	"nucleuscore/defs"
	"nucleuscore/stat"
)

// devnode_t adapts a named device to a read-only directory entry under
// /dev (spec.md §6, "A VFS node for /dev containing character-device
// endpoints implemented by outside drivers"). It does not itself read
// or write — a device's actual I/O goes through its fdops.Fdops_i
// object once opened; the VFS node here only exists so /dev/console
// and /dev/null can be looked up by path.
type devnode_t struct {
	notDir
	name  string
	major int
}

func (d *devnode_t) Type() NodeType { return T_DEV }
func (d *devnode_t) Stat(st *stat.Stat_t) defs.Err_t {
	st.Wmode(stat.S_IFCHR)
	st.Wrdev(uint(d.major))
	return 0
}
func (d *devnode_t) Read([]byte, int) (int, defs.Err_t)  { return 0, -defs.EINVAL }
func (d *devnode_t) Write([]byte, int) (int, defs.Err_t) { return 0, -defs.EINVAL }
func (d *devnode_t) Truncate(uint) defs.Err_t            { return -defs.EINVAL }

// devdir_t is the static /dev directory: console and null, the two
// devices the core itself implements (spec.md §6 reserves the rest —
// /dev/sd*, ptys — for outside drivers this core has no access to).
type devdir_t struct {
	notFile
	entries []*devnode_t
}

// MkDevfs constructs the /dev directory node.
func MkDevfs() Node_i {
	return &devdir_t{entries: []*devnode_t{
		{name: "console", major: defs.D_CONSOLE},
		{name: "null", major: defs.D_DEVNULL},
	}}
}

func (d *devdir_t) Type() NodeType { return T_DIR }
func (d *devdir_t) Stat(st *stat.Stat_t) defs.Err_t {
	st.Wmode(stat.S_IFDIR)
	return 0
}

func (d *devdir_t) Readdir(index int) (Dirent_t, defs.Err_t) {
	if index < 0 || index >= len(d.entries) {
		return Dirent_t{}, -defs.ENOENT
	}
	e := d.entries[index]
	return Dirent_t{Name: e.name, Ino: e.major}, 0
}

func (d *devdir_t) Finddir(name string) (Node_i, defs.Err_t) {
	for _, e := range d.entries {
		if e.name == name {
			return e, 0
		}
	}
	return nil, -defs.ENOENT
}

func (d *devdir_t) Create(string) (Node_i, defs.Err_t) { return nil, -defs.EPERM }
func (d *devdir_t) Mkdir(string) (Node_i, defs.Err_t)  { return nil, -defs.EPERM }
func (d *devdir_t) Unlink(string) defs.Err_t           { return -defs.EPERM }
func (d *devdir_t) Rmdir(string) defs.Err_t            { return -defs.EPERM }
func (d *devdir_t) Rename(string, string) defs.Err_t   { return -defs.EPERM }
