package compiler

import (
	"testing"

	"github.com/skyelang/skyec/ast"
	"github.com/skyelang/skyec/diag"
	"github.com/stretchr/testify/assert"
)

func noArgsVoidMain() *ast.Function {
	return &ast.Function{
		Name:       "main",
		ReturnType: &ast.Variable{Name: "void"},
		Body:       &ast.Block{},
	}
}

func TestGenerate_SynthesizesEntryPointForNoArgMain(t *testing.T) {
	sink := diag.NewCollectSink()
	env := NewEnvironment()
	g := NewCodeGen(env, Options{Mode: Debug}, sink)

	out, err := g.Generate([]ast.Statement{noArgsVoidMain()})

	assert.NoError(t, err)
	assert.Equal(t, 0, sink.ErrorCount())
	assert.Contains(t, out, "_SKYE_MAIN(void) {")
	assert.Contains(t, out, "void _SKYE_INIT(void) {")
	assert.Contains(t, out, "int main(int argc, char** argv) {")
	assert.Contains(t, out, "_SKYE_INIT();")
	assert.Contains(t, out, "_SKYE_MAIN();")
	assert.Contains(t, out, "return 0;")
}

func TestGenerate_InitFunctionsRunBeforeMain(t *testing.T) {
	sink := diag.NewCollectSink()
	env := NewEnvironment()
	g := NewCodeGen(env, Options{Mode: Debug}, sink)

	setup := &ast.Function{
		Name:       "setup",
		ReturnType: &ast.Variable{Name: "void"},
		Body:       &ast.Block{},
		Qualifiers: []ast.Qualifier{ast.QualInit},
	}

	out, err := g.Generate([]ast.Statement{setup, noArgsVoidMain()})

	assert.NoError(t, err)
	assert.Contains(t, out, "setup();")
	assert.Contains(t, out, "void _SKYE_INIT(void) {\n\tsetup();\n}")
}

func TestGenerate_I32MainReturnsItsValue(t *testing.T) {
	sink := diag.NewCollectSink()
	env := NewEnvironment()
	g := NewCodeGen(env, Options{Mode: Debug}, sink)

	main := &ast.Function{
		Name:       "main",
		ReturnType: &ast.Variable{Name: "i32"},
		Body:       &ast.Block{},
	}

	out, err := g.Generate([]ast.Statement{main})

	assert.NoError(t, err)
	assert.Contains(t, out, "int32_t _SKYE_MAIN(void)")
	assert.Contains(t, out, "return _SKYE_MAIN();")
}

func TestGenerate_ArgcArgvMainPassesThrough(t *testing.T) {
	sink := diag.NewCollectSink()
	env := NewEnvironment()
	g := NewCodeGen(env, Options{Mode: Debug}, sink)

	main := &ast.Function{
		Name:       "main",
		ReturnType: &ast.Variable{Name: "void"},
		Params: []ast.Param{
			{Name: "argc", Type: &ast.Variable{Name: "i32"}},
			{Name: "argv", Type: &ast.Unary{Op: "*", Operand: &ast.Unary{Op: "*", Operand: &ast.Variable{Name: "char"}}}},
		},
		Body: &ast.Block{},
	}

	out, err := g.Generate([]ast.Statement{main})

	assert.NoError(t, err)
	assert.Contains(t, out, "_SKYE_MAIN(argc, argv);")
}

func TestGenerate_NoUserMainOmitsSynthesizedEntry(t *testing.T) {
	sink := diag.NewCollectSink()
	env := NewEnvironment()
	g := NewCodeGen(env, Options{Mode: Debug}, sink)

	helper := &ast.Function{
		Name:       "helper",
		ReturnType: &ast.Variable{Name: "void"},
		Body:       &ast.Block{},
	}

	out, err := g.Generate([]ast.Statement{helper})

	assert.NoError(t, err)
	assert.Contains(t, out, "void _SKYE_INIT(void) {")
	assert.NotContains(t, out, "int main(")
}
