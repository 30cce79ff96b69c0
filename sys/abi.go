package sys

import (
	"github.com/Masterminds/semver/v3"

	"nucleuscore/defs"
)

// KernelABI is the ABI version this core advertises to loaded user
// binaries (spec.md §4.3, create_user's "abi" parameter).
const KernelABI = "1.0.0"

// CheckAbi validates a semver constraint string (e.g. ">=1.0.0, <2.0.0")
// supplied by the loader against KernelABI, so a binary built against
// an incompatible ABI fails fast with InvalidArgument instead of
// faulting deep in argv/auxv setup (SPEC_FULL.md §3,
// github.com/Masterminds/semver/v3 wiring).
func CheckAbi(constraint string) defs.Err_t {
	kv, err := semver.NewVersion(KernelABI)
	if err != nil {
		panic("bad kernel abi literal")
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return -defs.EINVAL
	}
	if !c.Check(kv) {
		return -defs.EINVAL
	}
	return 0
}
