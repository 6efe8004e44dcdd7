package diag

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// TermSink writes diagnostics to w, colorizing them when w is a real
// terminal and the user hasn't opted out. Ported from the teacher's
// formatError (cmd/cmd.go): same NO_COLOR / *_FORCE_COLOR environment
// variable precedence, renamed for this compiler.
type TermSink struct {
	w            io.Writer
	color        bool
	errorCount   int
	warningCount int
}

// NewTermSink builds a TermSink writing to w. fd is the underlying file
// descriptor used for the terminal probe (pass os.Stderr.Fd() in
// production; a test can pass any non-terminal fd to force plain text).
func NewTermSink(w io.Writer, fd uintptr) *TermSink {
	color := os.Getenv("NO_COLOR") == "" &&
		(os.Getenv("SKYEC_FORCE_COLOR") != "" || term.IsTerminal(int(fd)))
	return &TermSink{w: w, color: color}
}

const (
	ansiRed    = "\033[31m"
	ansiYellow = "\033[33m"
	ansiBlue   = "\033[34m"
	ansiBold   = "\033[1m"
	ansiDim    = "\033[2m"
	ansiReset  = "\033[0m"
)

func (t *TermSink) Report(d Diagnostic) {
	switch d.Severity {
	case SeverityError:
		t.errorCount++
	case SeverityWarning:
		t.warningCount++
	}
	label, color := d.Severity.String(), ansiRed
	if d.Severity == SeverityWarning {
		color = ansiYellow
	} else if d.Severity == SeverityInfo {
		color = ansiBlue
	}
	if t.color {
		fmt.Fprintf(t.w, "%s%s%s%s: %s%s: %s\n", color, ansiBold, label, ansiReset, ansiBold, d.Pos.String(), ansiReset)
		fmt.Fprintf(t.w, "  %s\n", d.Message)
	} else {
		fmt.Fprintf(t.w, "%s: %s: %s\n", label, d.Pos.String(), d.Message)
	}
	if d.MacroNote != nil {
		if t.color {
			fmt.Fprintf(t.w, "  %snote%s: as a result of this macro expansion at %s\n", ansiDim, ansiReset, d.MacroNote.String())
		} else {
			fmt.Fprintf(t.w, "  note: as a result of this macro expansion at %s\n", d.MacroNote.String())
		}
	}
}

func (t *TermSink) ErrorCount() int   { return t.errorCount }
func (t *TermSink) WarningCount() int { return t.warningCount }
