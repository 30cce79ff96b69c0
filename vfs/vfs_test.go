package vfs

import (
	"strings"
	"testing"

	"nucleuscore/defs"
)

func mkmemfs(t *testing.T) *Memfs_t {
	t.Helper()
	disk := MkRamDisk(BSIZE, 64)
	return MkMemfs(disk)
}

func TestMemfsCreateWriteReadFile(t *testing.T) {
	fs := mkmemfs(t)
	root := fs.Root()

	node, err := root.Create("hello.txt")
	if err != 0 {
		t.Fatalf("Create failed: %v", err)
	}
	if node.Type() != T_FILE {
		t.Fatalf("Type() = %v, want T_FILE", node.Type())
	}

	data := []byte("hello, kernel")
	n, err := node.Write(data, 0)
	if err != 0 {
		t.Fatalf("Write failed: %v", err)
	}
	if n != len(data) {
		t.Fatalf("wrote %d bytes, want %d", n, len(data))
	}

	out := make([]byte, len(data))
	n, err = node.Read(out, 0)
	if err != 0 {
		t.Fatalf("Read failed: %v", err)
	}
	if n != len(data) || string(out) != string(data) {
		t.Fatalf("read %q, want %q", out[:n], data)
	}
}

func TestMemfsFinddirAndUnlink(t *testing.T) {
	fs := mkmemfs(t)
	root := fs.Root()

	if _, err := root.Create("a"); err != 0 {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := root.Finddir("a"); err != 0 {
		t.Fatalf("Finddir should find freshly created file: %v", err)
	}
	if _, err := root.Finddir("nope"); err != -defs.ENOENT {
		t.Fatalf("Finddir on missing name = %v, want ENOENT", err)
	}
	if err := root.Unlink("a"); err != 0 {
		t.Fatalf("Unlink failed: %v", err)
	}
	if _, err := root.Finddir("a"); err != -defs.ENOENT {
		t.Fatalf("Finddir after unlink = %v, want ENOENT", err)
	}
}

func TestMemfsMkdirAndRmdir(t *testing.T) {
	fs := mkmemfs(t)
	root := fs.Root()

	dir, err := root.Mkdir("sub")
	if err != 0 {
		t.Fatalf("Mkdir failed: %v", err)
	}
	if dir.Type() != T_DIR {
		t.Fatalf("Type() = %v, want T_DIR", dir.Type())
	}
	if _, err := dir.Create("child"); err != 0 {
		t.Fatalf("Create inside subdir failed: %v", err)
	}
	// Rmdir on a non-empty directory must fail with ENOTEMPTY and
	// leave the directory in place.
	if err := root.Rmdir("sub"); err != -defs.ENOTEMPTY {
		t.Fatalf("Rmdir on non-empty dir = %v, want ENOTEMPTY", err)
	}
	if _, ferr := root.Finddir("sub"); ferr != 0 {
		t.Fatal("Rmdir removed a non-empty directory")
	}
}

// Boundary behavior analogue: open on a nonexistent file without
// CREATE returns NoSuchFile (spec.md §8).
func TestMemfsFinddirMissingIsENOENT(t *testing.T) {
	fs := mkmemfs(t)
	if _, err := fs.Root().Finddir("missing"); err != -defs.ENOENT {
		t.Fatalf("Finddir on missing file = %v, want ENOENT", err)
	}
}

func TestDevfsConsoleAndNull(t *testing.T) {
	dev := MkDevfs()
	if dev.Type() != T_DIR {
		t.Fatalf("devfs root Type() = %v, want T_DIR", dev.Type())
	}
	console, err := dev.Finddir("console")
	if err != 0 {
		t.Fatalf("Finddir(console) failed: %v", err)
	}
	if console.Type() != T_DEV {
		t.Fatalf("console Type() = %v, want T_DEV", console.Type())
	}
	if _, err := dev.Finddir("null"); err != 0 {
		t.Fatalf("Finddir(null) failed: %v", err)
	}
	if _, err := dev.Create("whatever"); err != -defs.EPERM {
		t.Fatalf("devfs Create = %v, want EPERM", err)
	}
}

type fakeLister struct{ tasks []TaskInfo_t }

func (f fakeLister) Tasks() []TaskInfo_t { return f.tasks }

func TestProcfsListsTasksAndRendersRusage(t *testing.T) {
	lister := fakeLister{tasks: []TaskInfo_t{
		{Pid: 1, Tid: 1, State: "RUNNING", Cpu: 0, Rusage: []byte{0xab, 0xcd}},
	}}
	proc := MkProcfs(lister)
	if proc.Type() != T_DIR {
		t.Fatalf("procfs root Type() = %v, want T_DIR", proc.Type())
	}
	node, err := proc.Finddir("1")
	if err != 0 {
		t.Fatalf("Finddir(1) failed: %v", err)
	}
	buf := make([]byte, 4096)
	n, err := node.Read(buf, 0)
	if err != 0 {
		t.Fatalf("Read failed: %v", err)
	}
	if !strings.Contains(string(buf[:n]), "RUNNING") {
		t.Fatalf("rendered task file missing state: %q", buf[:n])
	}
	if !strings.Contains(string(buf[:n]), "rusage abcd") {
		t.Fatalf("rendered task file missing rusage: %q", buf[:n])
	}
}

// Grounds vfs/mount.go: a mounted name resolves to the mount's root
// instead of the underlying directory, and everything else still
// passes through (spec.md §6, "/dev"/"/proc" mounted over the root).
func TestMountOverlayResolvesMountsAndPassesThrough(t *testing.T) {
	fs := mkmemfs(t)
	if _, err := fs.Root().Create("plain.txt"); err != 0 {
		t.Fatalf("Create failed: %v", err)
	}

	mounts := map[string]Node_i{
		"dev": MkDevfs(),
	}
	root := MkRootWithMounts(fs.Root(), mounts)

	dev, err := root.Finddir("dev")
	if err != 0 {
		t.Fatalf("Finddir(dev) failed: %v", err)
	}
	if dev.Type() != T_DIR {
		t.Fatalf("mounted dev Type() = %v, want T_DIR", dev.Type())
	}
	if _, err := dev.Finddir("console"); err != 0 {
		t.Fatalf("Finddir(console) through mount failed: %v", err)
	}

	if _, err := root.Finddir("plain.txt"); err != 0 {
		t.Fatalf("Finddir passthrough to underlying root failed: %v", err)
	}

	if err := root.Unlink("dev"); err != -defs.EPERM {
		t.Fatalf("Unlink on a mount point = %v, want EPERM", err)
	}
}
