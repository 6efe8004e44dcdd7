package diag

import (
	"testing"

	"github.com/skyelang/skyec/ast"
	"github.com/stretchr/testify/assert"
)

func TestCollectSink_Counts(t *testing.T) {
	s := NewCollectSink()
	Errorf(s, ast.Pos{File: "a.skye", Line: 1}, "bad thing")
	Warnf(s, ast.Pos{File: "a.skye", Line: 2}, "suspicious thing")
	Errorf(s, ast.Pos{File: "a.skye", Line: 3}, "other bad thing")

	assert.Equal(t, 2, s.ErrorCount())
	assert.Equal(t, 1, s.WarningCount())
	assert.Equal(t, []string{"bad thing", "suspicious thing", "other bad thing"}, s.Messages())
}

func TestErrorInMacro_AttachesNote(t *testing.T) {
	s := NewCollectSink()
	site := ast.Pos{File: "a.skye", Line: 10}
	ErrorInMacro(s, ast.Pos{File: "a.skye", Line: 1}, site, "macro expansion failed")

	assert.Len(t, s.Diagnostics, 1)
	assert.NotNil(t, s.Diagnostics[0].MacroNote)
	assert.Equal(t, site, *s.Diagnostics[0].MacroNote)
}
