package compiler

import (
	"testing"

	"github.com/skyelang/skyec/ast"
	"github.com/skyelang/skyec/diag"
	"github.com/stretchr/testify/assert"
)

func TestMacroExpander_SubstitutesExpressionBody(t *testing.T) {
	sink := diag.NewCollectSink()
	m := NewMacroExpander(Debug, sink)

	prog := &ast.Program{Statements: []ast.Statement{
		&ast.Macro{
			Name:       "double",
			ParamKind:  ast.MacroParamsFixed,
			ParamNames: []string{"x"},
			BodyKind:   ast.MacroBodyExpression,
			Expression: &ast.Binary{Left: &ast.Variable{Name: "x"}, Op: "+", Right: &ast.Variable{Name: "x"}},
		},
		&ast.ExpressionStmt{Expression: &ast.Call{
			Callee: &ast.Variable{Name: "double"},
			Args:   []ast.Expr{&ast.Literal{Kind: ast.LitSignedInt, Value: "21"}},
		}},
	}}

	out := m.Expand(prog)
	assert.Equal(t, 0, sink.ErrorCount())

	exprStmt, ok := out[1].(*ast.ExpressionStmt)
	assert.True(t, ok)
	inMacro, ok := exprStmt.Expression.(*ast.InMacro)
	assert.True(t, ok)
	bin, ok := inMacro.Inner.(*ast.Binary)
	assert.True(t, ok)
	left, ok := bin.Left.(*ast.Literal)
	assert.True(t, ok)
	assert.Equal(t, "21", left.Value)
}

func TestMacroExpander_ConcatStrings(t *testing.T) {
	sink := diag.NewCollectSink()
	m := NewMacroExpander(Debug, sink)

	call := &ast.Call{
		Callee: &ast.Variable{Name: "@concat"},
		Args: []ast.Expr{
			&ast.Literal{Kind: ast.LitStringCooked, Value: "foo"},
			&ast.Literal{Kind: ast.LitStringCooked, Value: "bar"},
		},
	}
	got := m.expandExpression(call)
	lit, ok := got.(*ast.Literal)
	assert.True(t, ok)
	assert.Equal(t, "foobar", lit.Value)
	assert.Equal(t, 0, sink.ErrorCount())
}

func TestMacroExpander_ConcatMixedKindsErrors(t *testing.T) {
	sink := diag.NewCollectSink()
	m := NewMacroExpander(Debug, sink)

	call := &ast.Call{
		Callee: &ast.Variable{Name: "@concat"},
		Args: []ast.Expr{
			&ast.Literal{Kind: ast.LitStringCooked, Value: "foo"},
			&ast.Slice{Items: []ast.Expr{&ast.Literal{Kind: ast.LitSignedInt, Value: "1"}}},
		},
	}
	m.expandExpression(call)
	assert.Equal(t, 1, sink.ErrorCount())
}

func TestMacroExpander_BlockBodyMacroExpandsStatements(t *testing.T) {
	sink := diag.NewCollectSink()
	m := NewMacroExpander(Debug, sink)

	prog := &ast.Program{Statements: []ast.Statement{
		&ast.Macro{
			Name:      "logTwice",
			ParamKind: ast.MacroParamsFixed,
			ParamNames: []string{"msg"},
			BodyKind:  ast.MacroBodyBlock,
			Block: []ast.Statement{
				&ast.ExpressionStmt{Expression: &ast.Variable{Name: "msg"}},
				&ast.ExpressionStmt{Expression: &ast.Variable{Name: "msg"}},
			},
		},
		&ast.ExpressionStmt{Expression: &ast.Call{
			Callee: &ast.Variable{Name: "logTwice"},
			Args:   []ast.Expr{&ast.Literal{Kind: ast.LitStringCooked, Value: "hi"}},
		}},
	}}

	out := m.Expand(prog)
	assert.Equal(t, 0, sink.ErrorCount())
	exprStmt := out[1].(*ast.ExpressionStmt)
	mes, ok := exprStmt.Expression.(*ast.MacroExpandedStatements)
	assert.True(t, ok)
	assert.Len(t, mes.Inner, 2)
}

func TestMacroExpander_WrongArityErrors(t *testing.T) {
	sink := diag.NewCollectSink()
	m := NewMacroExpander(Debug, sink)

	prog := &ast.Program{Statements: []ast.Statement{
		&ast.Macro{
			Name:       "double",
			ParamKind:  ast.MacroParamsFixed,
			ParamNames: []string{"x"},
			BodyKind:   ast.MacroBodyExpression,
			Expression: &ast.Variable{Name: "x"},
		},
		&ast.ExpressionStmt{Expression: &ast.Call{Callee: &ast.Variable{Name: "double"}}},
	}}

	m.Expand(prog)
	assert.Equal(t, 1, sink.ErrorCount())
}
