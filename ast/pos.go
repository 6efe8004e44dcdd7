// Package ast defines the typed node tree the parser (an external
// collaborator, out of scope for this module) hands to MacroExpander and
// CodeGen. Every node carries enough source position information for
// diagnostics without depending on the concrete lexer that produced it.
package ast

import (
	"strconv"

	"modernc.org/token"
)

// Pos is the source span attached to every node, per spec §6:
// (file, line, start, end).
type Pos struct {
	File  string
	Line  int
	Start int
	End   int
}

// FromToken builds a Pos from a modernc token.Position, the position type
// a real Skye scanner would hand back.
func FromToken(file string, p token.Position) Pos {
	return Pos{File: file, Line: p.Line, Start: p.Offset, End: p.Offset}
}

func (p Pos) String() string {
	if p.File == "" {
		return "<unknown>"
	}
	if p.Line == 0 {
		return p.File
	}
	return p.File + ":" + strconv.Itoa(p.Line)
}
