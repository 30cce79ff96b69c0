package vfs

import (
	"nucleuscore/defs"
	"nucleuscore/stat"
)

// mountdir_t overlays a set of named mount points onto an underlying
// root directory, the way the teacher's biscuit mounts /dev and /proc
// onto the root of its ext2 tree at boot. Lookups for a mounted name
// resolve to the mount's root node instead of descending into the
// underlying directory; everything else passes through (spec.md §6,
// "/dev ... endpoints implemented by outside drivers", "/proc exposes
// one file per live task").
type mountdir_t struct {
	notFile
	root   Node_i
	mounts map[string]Node_i
}

// MkRootWithMounts overlays mounts (name -> mount root node) onto root.
func MkRootWithMounts(root Node_i, mounts map[string]Node_i) Node_i {
	return &mountdir_t{root: root, mounts: mounts}
}

func (m *mountdir_t) Type() NodeType { return T_DIR }
func (m *mountdir_t) Stat(st *stat.Stat_t) defs.Err_t {
	st.Wmode(stat.S_IFDIR)
	return 0
}

func (m *mountdir_t) Finddir(name string) (Node_i, defs.Err_t) {
	if mnt, ok := m.mounts[name]; ok {
		return mnt, 0
	}
	return m.root.Finddir(name)
}

func (m *mountdir_t) Readdir(index int) (Dirent_t, defs.Err_t) {
	n := len(m.mounts)
	if index < n {
		i := 0
		for name := range m.mounts {
			if i == index {
				return Dirent_t{Name: name}, 0
			}
			i++
		}
	}
	return m.root.Readdir(index - n)
}

func (m *mountdir_t) Create(name string) (Node_i, defs.Err_t) {
	if _, ok := m.mounts[name]; ok {
		return nil, -defs.EEXIST
	}
	return m.root.Create(name)
}

func (m *mountdir_t) Mkdir(name string) (Node_i, defs.Err_t) {
	if _, ok := m.mounts[name]; ok {
		return nil, -defs.EEXIST
	}
	return m.root.Mkdir(name)
}

func (m *mountdir_t) Unlink(name string) defs.Err_t {
	if _, ok := m.mounts[name]; ok {
		return -defs.EPERM
	}
	return m.root.Unlink(name)
}

func (m *mountdir_t) Rmdir(name string) defs.Err_t {
	if _, ok := m.mounts[name]; ok {
		return -defs.EPERM
	}
	return m.root.Rmdir(name)
}

func (m *mountdir_t) Rename(oldname, newname string) defs.Err_t {
	return m.root.Rename(oldname, newname)
}
