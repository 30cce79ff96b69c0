// Package bpath canonicalizes VFS paths: it resolves "." and ".."
// components purely lexically, the way fd.Cwd_t.Canonicalpath requires
// before a path reaches the VFS node-lookup walk (spec.md §3, VFS node).
package bpath

import "nucleuscore/ustr"

// Canonicalize resolves "." and ".." components of an absolute path
// without touching the filesystem (no symlinks are resolved; the VFS
// in this core does not model them). The result is always absolute and
// never contains "." or ".." components.
func Canonicalize(p ustr.Ustr) ustr.Ustr {
	parts := p.Split()
	stack := make([]ustr.Ustr, 0, len(parts))
	for _, c := range parts {
		switch {
		case c.Isdot():
			continue
		case c.Isdotdot():
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			stack = append(stack, c)
		}
	}
	out := ustr.MkUstrRoot()
	for i, c := range stack {
		if i > 0 {
			out = append(out, '/')
		}
		out = append(out, c...)
	}
	return out
}
