package compiler

import (
	"testing"

	"github.com/skyelang/skyec/ast"
	"github.com/skyelang/skyec/diag"
	"github.com/stretchr/testify/assert"
)

// TestCastMacro_InjectsIntoMatchingVariant covers spec Scenario 5: casting a
// value whose type matches one of an enum's variant payloads builds a tagged
// compound literal instead of a plain C cast.
func TestCastMacro_InjectsIntoMatchingVariant(t *testing.T) {
	sink := diag.NewCollectSink()
	env := NewEnvironment()
	g := NewCodeGen(env, Options{Mode: Debug}, sink)

	result := &Enum{FullName: "Result", Variants: map[string]Type{"Ok": I32, "Err": Void{}}}
	g.defineType("Result", result)
	env.Define("x", Binding{Value: SpecialValue("x", I32, false)})

	call := &ast.Call{
		Args: []ast.Expr{
			&ast.Variable{Name: "Result"},
			&ast.Variable{Name: "x"},
		},
	}
	v, err := g.evalCastMacro(env, call)
	assert.NoError(t, err)
	assert.Equal(t, 0, sink.ErrorCount())
	assert.Contains(t, v.CValue, ".tag = Result_Ok")
	assert.Contains(t, v.CValue, ".data = { .ok = x }")
	assert.Equal(t, result, v.Type)
}

// TestCastMacro_FallsBackToOrdinaryCast covers the non-injection path: no
// variant payload matches, so IsCastableTo decides (here, a widening int
// cast, which is unconditionally allowed).
func TestCastMacro_FallsBackToOrdinaryCast(t *testing.T) {
	sink := diag.NewCollectSink()
	env := NewEnvironment()
	g := NewCodeGen(env, Options{Mode: Debug}, sink)

	env.Define("x", Binding{Value: SpecialValue("x", I32, false)})
	call := &ast.Call{
		Args: []ast.Expr{
			&ast.Variable{Name: "i64"},
			&ast.Variable{Name: "x"},
		},
	}
	v, err := g.evalCastMacro(env, call)
	assert.NoError(t, err)
	assert.Equal(t, 0, sink.ErrorCount())
	assert.Equal(t, "((int64_t)x)", v.CValue)
	assert.Equal(t, I64, v.Type)
}

// TestCastMacro_RejectsUncastableTypes covers the error path: no injection,
// no ordinary castability.
func TestCastMacro_RejectsUncastableTypes(t *testing.T) {
	sink := diag.NewCollectSink()
	env := NewEnvironment()
	g := NewCodeGen(env, Options{Mode: Debug}, sink)

	box := &Struct{FullName: "Box", Fields: map[string]StructField{"v": {Type: I32}}}
	g.defineType("Box", box)
	env.Define("x", Binding{Value: SpecialValue("x", I32, false)})
	call := &ast.Call{
		Args: []ast.Expr{
			&ast.Variable{Name: "Box"},
			&ast.Variable{Name: "x"},
		},
	}
	_, err := g.evalCastMacro(env, call)
	assert.NoError(t, err)
	assert.Equal(t, 1, sink.ErrorCount())
	assert.Contains(t, sink.Messages()[0], "cannot cast")
}

// TestConstCastMacro_DropsConstFromRawPointer covers spec §4.4.4
// `@constCast`: a non-reference const pointer loses its const.
func TestConstCastMacro_DropsConstFromRawPointer(t *testing.T) {
	sink := diag.NewCollectSink()
	env := NewEnvironment()
	g := NewCodeGen(env, Options{Mode: Debug}, sink)

	ptrType := &Pointer{Inner: I32, IsConst: true}
	env.Define("p", Binding{Value: SpecialValue("p", ptrType, false)})

	call := &ast.Call{Args: []ast.Expr{&ast.Variable{Name: "p"}}}
	v, err := g.evalConstCastMacro(env, call)
	assert.NoError(t, err)
	assert.Equal(t, 0, sink.ErrorCount())
	out, ok := v.Type.(*Pointer)
	assert.True(t, ok)
	assert.False(t, out.IsConst)
}

// TestConstCastMacro_RejectsReferences covers the reference-receiver rule:
// @constCast only applies to raw pointers.
func TestConstCastMacro_RejectsReferences(t *testing.T) {
	sink := diag.NewCollectSink()
	env := NewEnvironment()
	g := NewCodeGen(env, Options{Mode: Debug}, sink)

	refType := &Pointer{Inner: I32, IsConst: true, IsReference: true}
	env.Define("p", Binding{Value: SpecialValue("p", refType, false)})

	call := &ast.Call{Args: []ast.Expr{&ast.Variable{Name: "p"}}}
	_, err := g.evalConstCastMacro(env, call)
	assert.NoError(t, err)
	assert.Equal(t, 1, sink.ErrorCount())
	assert.Contains(t, sink.Messages()[0], "non-reference pointer")
}

// TestTypeOfMacro_RejectsVoid covers the CanBeInstantiated gate: a Void
// value (e.g. the result of a call with no return value) has no runtime
// type for @typeOf to name.
func TestTypeOfMacro_RejectsVoid(t *testing.T) {
	sink := diag.NewCollectSink()
	env := NewEnvironment()
	g := NewCodeGen(env, Options{Mode: Debug}, sink)

	env.Define("v", Binding{Value: SpecialValue("v", Void{}, false)})
	call := &ast.Call{Args: []ast.Expr{&ast.Variable{Name: "v"}}}
	_, err := g.evalTypeOfMacro(env, call)
	assert.NoError(t, err)
	assert.Equal(t, 1, sink.ErrorCount())
	assert.Contains(t, sink.Messages()[0], "no runtime type")
}

// TestTypeOfMacro_AcceptsOrdinaryValue is the control case: a primitive
// value resolves to a *TypeValue wrapping its (finalized) type.
func TestTypeOfMacro_AcceptsOrdinaryValue(t *testing.T) {
	sink := diag.NewCollectSink()
	env := NewEnvironment()
	g := NewCodeGen(env, Options{Mode: Debug}, sink)

	env.Define("x", Binding{Value: SpecialValue("x", I32, false)})
	call := &ast.Call{Args: []ast.Expr{&ast.Variable{Name: "x"}}}
	v, err := g.evalTypeOfMacro(env, call)
	assert.NoError(t, err)
	assert.Equal(t, 0, sink.ErrorCount())
	tv, ok := v.Type.(*TypeValue)
	assert.True(t, ok)
	assert.Equal(t, I32, tv.Inner)
}

// TestSplitFormatChunks_HandlesEscapesAndInterpolation covers the balanced-
// brace scan `@format`/`@fprint`/`@fprintln` share: `{{`/`}}` are literal
// brace escapes, anything else inside `{...}` is the interpolated name.
func TestSplitFormatChunks_HandlesEscapesAndInterpolation(t *testing.T) {
	chunks := splitFormatChunks("count={{{n}}} done")
	assert.Equal(t, []formatChunk{
		{text: "count={", expr: false},
		{text: "n", expr: true},
		{text: "} done", expr: false},
	}, chunks)
}

// TestFormatMacro_EmitsPushStringPerChunk covers @format's full pipeline:
// dest/format-literal argument validation, chunk splitting, and per-chunk
// numeric dispatch via intToBuf.
func TestFormatMacro_EmitsPushStringPerChunk(t *testing.T) {
	sink := diag.NewCollectSink()
	env := NewEnvironment()
	g := NewCodeGen(env, Options{Mode: Debug}, sink)

	env.Define("buf", Binding{Value: SpecialValue("buf", &Pointer{Inner: I32}, false)})
	env.Define("n", Binding{Value: SpecialValue("n", I32, false)})

	call := &ast.Call{Args: []ast.Expr{
		&ast.Variable{Name: "buf"},
		&ast.Literal{Kind: ast.LitStringCooked, Value: "n={n}"},
	}}
	v, err := g.evalFormatMacro(env, call, "pushString", false)
	assert.NoError(t, err)
	assert.Equal(t, 0, sink.ErrorCount())
	assert.Contains(t, v.CValue, `pushString(buf, "n=");`)
	assert.Contains(t, v.CValue, "pushString(buf, intToBuf(n));")
}

// TestFormatMacro_FprintlnAppendsNewline covers the @fprintln/@fprint split:
// only @fprintln appends a trailing newline write.
func TestFormatMacro_FprintlnAppendsNewline(t *testing.T) {
	sink := diag.NewCollectSink()
	env := NewEnvironment()
	g := NewCodeGen(env, Options{Mode: Debug}, sink)

	env.Define("f", Binding{Value: SpecialValue("f", &Pointer{Inner: I32}, false)})
	call := &ast.Call{Args: []ast.Expr{
		&ast.Variable{Name: "f"},
		&ast.Literal{Kind: ast.LitStringCooked, Value: "done"},
	}}
	v, err := g.evalFormatMacro(env, call, "write", true)
	assert.NoError(t, err)
	assert.Equal(t, 0, sink.ErrorCount())
	assert.Contains(t, v.CValue, `write(f, "\n");`)
}

// TestFormatMacro_RejectsNonLiteralFormatArg covers the argument-shape
// validation: the second argument must be a string literal, not an
// arbitrary expression.
func TestFormatMacro_RejectsNonLiteralFormatArg(t *testing.T) {
	sink := diag.NewCollectSink()
	env := NewEnvironment()
	g := NewCodeGen(env, Options{Mode: Debug}, sink)

	env.Define("f", Binding{Value: SpecialValue("f", &Pointer{Inner: I32}, false)})
	env.Define("s", Binding{Value: SpecialValue("s", I32, false)})
	call := &ast.Call{Args: []ast.Expr{
		&ast.Variable{Name: "f"},
		&ast.Variable{Name: "s"},
	}}
	_, err := g.evalFormatMacro(env, call, "write", false)
	assert.NoError(t, err)
	assert.Equal(t, 1, sink.ErrorCount())
	assert.Contains(t, sink.Messages()[0], "string literal")
}
