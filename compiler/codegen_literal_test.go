package compiler

import (
	"strings"
	"testing"

	"github.com/skyelang/skyec/ast"
	"github.com/skyelang/skyec/diag"
	"github.com/stretchr/testify/assert"
)

// TestEvalLiteral_CookedStringInternsAndWrapsInStringStruct covers spec
// §4.4.1's raw/cooked string distinction: a cooked literal must intern its
// bytes once (buffers.go InternString) and evaluate to a String-typed
// compound literal, not a bare char pointer.
func TestEvalLiteral_CookedStringInternsAndWrapsInStringStruct(t *testing.T) {
	sink := diag.NewCollectSink()
	env := NewEnvironment()
	g := NewCodeGen(env, Options{Mode: Debug}, sink)

	v, err := g.evalLiteral(&ast.Literal{Kind: ast.LitStringCooked, Value: "hi"})
	assert.NoError(t, err)
	assert.Equal(t, 0, sink.ErrorCount())
	assert.Equal(t, "((String){ .ptr = SKYE_STRING_0, .length = 2 })", v.CValue)
	assert.Equal(t, stringType(), v.Type)
	assert.True(t, v.IsConst)

	// Repeating the same literal must reuse the interned storage, not
	// declare it twice.
	v2, err := g.evalLiteral(&ast.Literal{Kind: ast.LitStringCooked, Value: "hi"})
	assert.NoError(t, err)
	assert.Equal(t, v.CValue, v2.CValue)
}

// TestEvalLiteral_RawStringStaysBareCharPointer covers the other half of
// the same distinction: a raw string literal must not be wrapped in String.
func TestEvalLiteral_RawStringStaysBareCharPointer(t *testing.T) {
	sink := diag.NewCollectSink()
	env := NewEnvironment()
	g := NewCodeGen(env, Options{Mode: Debug}, sink)

	v, err := g.evalLiteral(&ast.Literal{Kind: ast.LitStringRaw, Value: "hi"})
	assert.NoError(t, err)
	assert.Equal(t, `"hi"`, v.CValue)
	ptr, ok := v.Type.(*Pointer)
	if assert.True(t, ok) {
		assert.Equal(t, Char, ptr.Inner)
		assert.True(t, ptr.IsConst)
	}
}

// TestGenerate_EmitsStringStructUnconditionally covers spec §4.4.1: the
// String layout is available even to a translation unit that never uses a
// cooked string literal directly.
func TestGenerate_EmitsStringStructUnconditionally(t *testing.T) {
	sink := diag.NewCollectSink()
	env := NewEnvironment()
	g := NewCodeGen(env, Options{Mode: Debug}, sink)

	out, err := g.Generate(nil)
	assert.NoError(t, err)
	assert.Equal(t, 0, sink.ErrorCount())
	assert.True(t, strings.Contains(out, "typedef struct String {"))
	assert.True(t, strings.Contains(out, "const char *ptr;"))
	assert.True(t, strings.Contains(out, "size_t length;"))
}
