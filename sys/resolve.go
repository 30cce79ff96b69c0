// Package sys implements the syscall dispatcher: per spec.md §4.6, it
// looks up the calling task, validates and copies user memory, checks
// capabilities, executes the operation (possibly blocking), and
// delivers any pending signal before return (grounded on the
// teacher's biscuit/src/sys dispatch functions, one per syscall,
// fanned out from a single entry point).
package sys

import (
	"nucleuscore/defs"
	"nucleuscore/ustr"
	"nucleuscore/vfs"
)

// resolve walks path (already absolute and canonical) from root,
// returning the final node.
func resolve(root vfs.Node_i, path ustr.Ustr) (vfs.Node_i, defs.Err_t) {
	n := root
	for _, c := range path.Split() {
		next, err := n.Finddir(c.String())
		if err != 0 {
			return nil, err
		}
		n = next
	}
	return n, 0
}

// resolveParent walks all but the last component of path, returning
// the parent directory node and the final component's name.
func resolveParent(root vfs.Node_i, path ustr.Ustr) (vfs.Node_i, string, defs.Err_t) {
	parts := path.Split()
	if len(parts) == 0 {
		return nil, "", -defs.EINVAL
	}
	n := root
	for _, c := range parts[:len(parts)-1] {
		next, err := n.Finddir(c.String())
		if err != 0 {
			return nil, "", err
		}
		n = next
	}
	return n, parts[len(parts)-1].String(), 0
}
