package sys

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// DumpFault disassembles up to a handful of instructions starting at
// the faulting instruction pointer within text, for the panic dump a
// kernel-mode general-protection fault produces (spec.md §7, "a GPF in
// kernel mode is fatal... log and halt"; SPEC_FULL.md §3 wires
// golang.org/x/arch/x86/x86asm for exactly this diagnostic).
func DumpFault(text []byte, rip int) string {
	out := fmt.Sprintf("fatal fault at rip=%#x\n", rip)
	off := 0
	for i := 0; i < 8 && off < len(text); i++ {
		inst, err := x86asm.Decode(text[off:], 64)
		if err != nil {
			out += fmt.Sprintf("  %#x: <undecodable: %v>\n", rip+off, err)
			break
		}
		out += fmt.Sprintf("  %#x: %s\n", rip+off, x86asm.GNUSyntax(inst, uint64(rip+off), nil))
		if inst.Len == 0 {
			break
		}
		off += inst.Len
	}
	return out
}
