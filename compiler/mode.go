package compiler

// CompileMode selects how much runtime safety CodeGen inserts (spec §5):
// Debug adds null-dereference and divide-by-zero checks and keeps panic
// position strings; Release and ReleaseUnsafe drop both and emit the same
// code, differing only in the value of `COMPILE_MODE`. Mirrors the
// three-way switch `original_source/src/macro_expander.rs` encodes as the
// builtin `COMPILE_MODE` macro.
type CompileMode int

const (
	Debug CompileMode = iota
	Release
	ReleaseUnsafe
)

// String renders the mode the way diagnostics and `--mode` flag parsing use.
func (m CompileMode) String() string {
	switch m {
	case Debug:
		return "debug"
	case Release:
		return "release"
	case ReleaseUnsafe:
		return "release-unsafe"
	default:
		return "unknown"
	}
}

// ParseCompileMode parses the `--mode` CLI flag value (spec §6 Options).
func ParseCompileMode(s string) (CompileMode, bool) {
	switch s {
	case "debug", "":
		return Debug, true
	case "release":
		return Release, true
	case "release-unsafe":
		return ReleaseUnsafe, true
	default:
		return 0, false
	}
}
