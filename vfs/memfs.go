package vfs

import (
	"sync"
	"time"

	"nucleuscore/defs"
	"nucleuscore/stat"
)

// Memfs_t is the in-memory filesystem mounted at "/" (SPEC_FULL.md §1,
// "the core ships a minimal in-memory VFS sufficient to exercise the fd
// layer"). File data and directory entries live in the nodes
// themselves; file reads and writes also pass through a BlockCache_t
// (a write stores the file's first BSIZE bytes in its block), so the
// teacher's block-device contract is exercised even though nothing
// here parses an on-disk layout.
type Memfs_t struct {
	bc    *BlockCache_t
	mu    sync.Mutex
	nodes map[int]*memnode_t
	nextI int
	root  int
}

// MkMemfs constructs an empty in-memory filesystem backed by disk.
func MkMemfs(disk Disk_i) *Memfs_t {
	fs := &Memfs_t{
		bc:    MkBlockCache(disk),
		nodes: make(map[int]*memnode_t),
		nextI: 1,
	}
	root := fs.newNode(T_DIR)
	fs.root = root.ino
	return fs
}

// Root returns the filesystem's root directory node.
func (fs *Memfs_t) Root() Node_i {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.nodes[fs.root]
}

type direntry struct {
	name string
	ino  int
}

// memnode_t is one file or directory in the in-memory tree. Files keep
// their bytes directly (the block cache is exercised via blockno, a
// notional backing block number assigned at creation, per the Non-goal
// that on-disk layout need not be real); directories keep a slice of
// (name, inode) entries.
type memnode_t struct {
	mu      sync.Mutex
	fs      *Memfs_t
	ino     int
	ntype   NodeType
	data    []byte
	entries []direntry
	blockno int
	mtime   time.Time
}

func (fs *Memfs_t) newNode(t NodeType) *memnode_t {
	ino := fs.nextI
	fs.nextI++
	n := &memnode_t{fs: fs, ino: ino, ntype: t, blockno: ino, mtime: time.Now()}
	fs.nodes[ino] = n
	return n
}

func (n *memnode_t) Type() NodeType { return n.ntype }

func (n *memnode_t) Stat(st *stat.Stat_t) defs.Err_t {
	n.mu.Lock()
	defer n.mu.Unlock()
	st.Wino(uint(n.ino))
	st.Wsize(uint(len(n.data)))
	if n.ntype == T_DIR {
		st.Wmode(stat.S_IFDIR)
	} else {
		st.Wmode(stat.S_IFREG)
	}
	return 0
}

// file operations — only meaningful when ntype == T_FILE; each returns
// EISDIR for a directory node.

func (n *memnode_t) Read(dst []byte, offset int) (int, defs.Err_t) {
	if n.ntype != T_FILE {
		return 0, -defs.EISDIR
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fs.bc.Get(n.blockno) // exercises the block cache read path
	if offset >= len(n.data) {
		return 0, 0
	}
	c := copy(dst, n.data[offset:])
	return c, 0
}

func (n *memnode_t) Write(src []byte, offset int) (int, defs.Err_t) {
	if n.ntype != T_FILE {
		return 0, -defs.EISDIR
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	need := offset + len(src)
	if need > len(n.data) {
		grown := make([]byte, need)
		copy(grown, n.data)
		n.data = grown
	}
	copy(n.data[offset:], src)
	var blk [BSIZE]byte
	copy(blk[:], n.data)
	n.fs.bc.Put(n.blockno, blk[:]) // exercises the block cache write path
	n.mtime = time.Now()
	return len(src), 0
}

func (n *memnode_t) Truncate(newlen uint) defs.Err_t {
	if n.ntype != T_FILE {
		return -defs.EISDIR
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if int(newlen) <= len(n.data) {
		n.data = n.data[:newlen]
	} else {
		grown := make([]byte, newlen)
		copy(grown, n.data)
		n.data = grown
	}
	return 0
}

// directory operations — only meaningful when ntype == T_DIR; each
// returns ENOTDIR for a file node.

func (n *memnode_t) Readdir(index int) (Dirent_t, defs.Err_t) {
	if n.ntype != T_DIR {
		return Dirent_t{}, -defs.ENOTDIR
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if index < 0 || index >= len(n.entries) {
		return Dirent_t{}, -defs.ENOENT
	}
	e := n.entries[index]
	return Dirent_t{Name: e.name, Ino: e.ino}, 0
}

func (n *memnode_t) Finddir(name string) (Node_i, defs.Err_t) {
	if n.ntype != T_DIR {
		return nil, -defs.ENOTDIR
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.entries {
		if e.name == name {
			return n.fs.nodes[e.ino], 0
		}
	}
	return nil, -defs.ENOENT
}

func (n *memnode_t) addChild(name string, t NodeType) (*memnode_t, defs.Err_t) {
	if n.ntype != T_DIR {
		return nil, -defs.ENOTDIR
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.entries {
		if e.name == name {
			return nil, -defs.EEXIST
		}
	}
	n.fs.mu.Lock()
	child := n.fs.newNode(t)
	n.fs.mu.Unlock()
	n.entries = append(n.entries, direntry{name: name, ino: child.ino})
	return child, 0
}

func (n *memnode_t) Create(name string) (Node_i, defs.Err_t) {
	c, err := n.addChild(name, T_FILE)
	if err != 0 {
		return nil, err
	}
	return c, 0
}

func (n *memnode_t) Mkdir(name string) (Node_i, defs.Err_t) {
	c, err := n.addChild(name, T_DIR)
	if err != 0 {
		return nil, err
	}
	return c, 0
}

func (n *memnode_t) Unlink(name string) defs.Err_t {
	if n.ntype != T_DIR {
		return -defs.ENOTDIR
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, e := range n.entries {
		if e.name == name {
			if n.fs.nodes[e.ino].ntype == T_DIR {
				return -defs.EISDIR
			}
			n.entries = append(n.entries[:i], n.entries[i+1:]...)
			return 0
		}
	}
	return -defs.ENOENT
}

func (n *memnode_t) Rmdir(name string) defs.Err_t {
	if n.ntype != T_DIR {
		return -defs.ENOTDIR
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, e := range n.entries {
		if e.name == name {
			child := n.fs.nodes[e.ino]
			if child.ntype != T_DIR {
				return -defs.ENOTDIR
			}
			if len(child.entries) != 0 {
				return -defs.ENOTEMPTY
			}
			n.entries = append(n.entries[:i], n.entries[i+1:]...)
			return 0
		}
	}
	return -defs.ENOENT
}

func (n *memnode_t) Rename(oldname, newname string) defs.Err_t {
	if n.ntype != T_DIR {
		return -defs.ENOTDIR
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.entries {
		if e.name == newname {
			return -defs.EEXIST
		}
	}
	for i, e := range n.entries {
		if e.name == oldname {
			n.entries[i].name = newname
			return 0
		}
	}
	return -defs.ENOENT
}
