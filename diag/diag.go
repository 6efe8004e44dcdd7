// Package diag reports compiler diagnostics, mirroring the color-aware
// formatError/NO_COLOR convention the teacher's cmd package uses for its own
// terminal output (rubiojr/rugo cmd/cmd.go), generalized into a reusable
// Sink abstraction so the same diagnostics can go to a terminal, a test
// buffer, or (once collected) drive the process exit code.
package diag

import (
	"fmt"

	"github.com/skyelang/skyec/ast"
)

// Severity classifies a diagnostic.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	default:
		return "unknown"
	}
}

// Kind is a stable gate ID for the warning/info classes spec §7 names, so
// messages carry a grep-able prefix and tests can assert on the class
// rather than the prose.
type Kind string

const (
	KindConstnessLoss  Kind = "W-constness-loss"
	KindUselessConcat  Kind = "W-useless-concat"
	KindMacroNamespace Kind = "W-macro-namespace"
	KindCopies         Kind = "I-copies"
	KindDestructors    Kind = "I-destructors"
)

// Diagnostic is one reported message, optionally attributed to a macro
// expansion site (spec §7's "as a result of this macro expansion" note).
type Diagnostic struct {
	Severity  Severity
	Pos       ast.Pos
	Message   string
	MacroNote *ast.Pos
}

// Sink receives diagnostics as the compiler produces them. CodeGen and
// MacroExpander both hold a Sink rather than writing to stderr directly, the
// same indirection the teacher keeps between compiler/ and cmd/ so that the
// same pipeline can run under `skyec emit` or under a test harness.
type Sink interface {
	Report(d Diagnostic)
	ErrorCount() int
	WarningCount() int
}

// Errorf reports a SeverityError diagnostic at pos.
func Errorf(s Sink, pos ast.Pos, format string, args ...any) {
	s.Report(Diagnostic{Severity: SeverityError, Pos: pos, Message: fmt.Sprintf(format, args...)})
}

// Warnf reports a SeverityWarning diagnostic at pos.
func Warnf(s Sink, pos ast.Pos, format string, args ...any) {
	s.Report(Diagnostic{Severity: SeverityWarning, Pos: pos, Message: fmt.Sprintf(format, args...)})
}

// Infof reports a SeverityInfo diagnostic at pos (spec §7 `I-copies` /
// `I-destructors` gate IDs).
func Infof(s Sink, pos ast.Pos, format string, args ...any) {
	s.Report(Diagnostic{Severity: SeverityInfo, Pos: pos, Message: fmt.Sprintf(format, args...)})
}

// ErrorInMacro reports an error attributing itself back to a macro
// expansion site, per spec §7.
func ErrorInMacro(s Sink, pos ast.Pos, macroSite ast.Pos, format string, args ...any) {
	site := macroSite
	s.Report(Diagnostic{Severity: SeverityError, Pos: pos, Message: fmt.Sprintf(format, args...), MacroNote: &site})
}
