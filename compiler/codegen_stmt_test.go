package compiler

import (
	"strings"
	"testing"

	"github.com/skyelang/skyec/ast"
	"github.com/skyelang/skyec/diag"
	"github.com/stretchr/testify/assert"
)

// boxWithDestructAndCopy declares a Box struct plus an impl carrying both
// __destruct__ and __copy__, the fixture Scenario 2/3 in spec.md build on.
func boxWithDestructAndCopy() []ast.Statement {
	box := &ast.Struct{Name: "Box", Fields: []ast.Field{{Name: "v", Type: &ast.Variable{Name: "i32"}}}}
	impl := &ast.Impl{
		Object: &ast.Variable{Name: "Box"},
		Declarations: []ast.Statement{
			&ast.Function{
				Name: "__destruct__",
				Params: []ast.Param{
					{Name: "self", Type: &ast.Unary{Op: "&", Operand: &ast.Variable{Name: "Box"}}},
				},
				ReturnType: &ast.Variable{Name: "void"},
				Body:       &ast.Block{},
			},
			&ast.Function{
				Name: "__copy__",
				Params: []ast.Param{
					{Name: "self", Type: &ast.Unary{Op: "&", Operand: &ast.Variable{Name: "Box"}}},
				},
				ReturnType: &ast.Variable{Name: "Box"},
				Body: &ast.Block{Statements: []ast.Statement{
					&ast.Return{Value: &ast.Unary{Op: "*", Operand: &ast.Variable{Name: "self"}, IsPrefix: true}},
				}},
			},
		},
	}
	return []ast.Statement{box, impl}
}

// TestGenBlockBody_DestructorsRunInReverseDeclarationOrder covers spec
// Scenario 3: two struct locals `a`, `b` declared in order must tear down as
// `b.__destruct__(); a.__destruct__();` at block exit.
func TestGenBlockBody_DestructorsRunInReverseDeclarationOrder(t *testing.T) {
	sink := diag.NewCollectSink()
	env := NewEnvironment()
	g := NewCodeGen(env, Options{Mode: Debug}, sink)

	stmts := boxWithDestructAndCopy()
	fn := &ast.Function{
		Name:       "run",
		ReturnType: &ast.Variable{Name: "void"},
		Body: &ast.Block{Statements: []ast.Statement{
			&ast.VarDecl{Name: "a", Type: &ast.Variable{Name: "Box"}},
			&ast.VarDecl{Name: "b", Type: &ast.Variable{Name: "Box"}},
		}},
	}
	stmts = append(stmts, fn)

	out, err := g.Generate(stmts)
	assert.NoError(t, err)
	assert.Equal(t, 0, sink.ErrorCount())

	bIdx := strings.Index(out, "Box_DOT___destruct__((&b))")
	aIdx := strings.Index(out, "Box_DOT___destruct__((&a))")
	assert.GreaterOrEqual(t, bIdx, 0)
	assert.GreaterOrEqual(t, aIdx, 0)
	assert.Less(t, bIdx, aIdx, "b must be destructed before a")
}

// TestGenBlockBody_DefersRunBeforeDestructors covers spec §4.4.2 Defer/Block:
// a block's deferred statements run before its local destructors at exit.
func TestGenBlockBody_DefersRunBeforeDestructors(t *testing.T) {
	sink := diag.NewCollectSink()
	env := NewEnvironment()
	g := NewCodeGen(env, Options{Mode: Debug}, sink)

	logFn := &ast.Function{
		Name:       "log",
		ReturnType: &ast.Variable{Name: "void"},
		Body:       &ast.Block{},
	}
	stmts := boxWithDestructAndCopy()
	stmts = append(stmts, logFn)

	fn := &ast.Function{
		Name:       "run",
		ReturnType: &ast.Variable{Name: "void"},
		Body: &ast.Block{Statements: []ast.Statement{
			&ast.VarDecl{Name: "a", Type: &ast.Variable{Name: "Box"}},
			&ast.Defer{Body: &ast.ExpressionStmt{Expression: &ast.Call{Callee: &ast.Variable{Name: "log"}}}},
		}},
	}
	stmts = append(stmts, fn)

	out, err := g.Generate(stmts)
	assert.NoError(t, err)
	assert.Equal(t, 0, sink.ErrorCount())

	deferIdx := strings.Index(out, "log();")
	destructIdx := strings.Index(out, "Box_DOT___destruct__((&a))")
	assert.GreaterOrEqual(t, deferIdx, 0)
	assert.GreaterOrEqual(t, destructIdx, 0)
	assert.Less(t, deferIdx, destructIdx, "deferred statements run before destructors")
}

// TestGenLocalVarDecl_InsertsCopyConstructor covers Scenario 2: `let b = a;`
// where Box declares __copy__ must call it on the RHS rather than assigning
// the struct directly.
func TestGenLocalVarDecl_InsertsCopyConstructor(t *testing.T) {
	sink := diag.NewCollectSink()
	env := NewEnvironment()
	g := NewCodeGen(env, Options{Mode: Debug}, sink)

	stmts := boxWithDestructAndCopy()
	fn := &ast.Function{
		Name:       "run",
		ReturnType: &ast.Variable{Name: "void"},
		Body: &ast.Block{Statements: []ast.Statement{
			&ast.VarDecl{Name: "a", Type: &ast.Variable{Name: "Box"}},
			&ast.VarDecl{Name: "b", Initializer: &ast.Variable{Name: "a"}},
		}},
	}
	stmts = append(stmts, fn)

	out, err := g.Generate(stmts)
	assert.NoError(t, err)
	assert.Equal(t, 0, sink.ErrorCount())
	assert.Contains(t, out, "Box_DOT___copy__((&a))")

	infoFound := false
	for _, m := range sink.Messages() {
		if strings.Contains(m, "I-copies") {
			infoFound = true
		}
	}
	assert.True(t, infoFound, "expected an I-copies info note")
}

// TestGenBlockBody_ReturnEvaluatesBeforeDestructors covers spec.md line 164:
// the return value is computed into a temporary before any defer/destructor
// unwind runs, so unwind code can't observe or clobber it.
func TestGenBlockBody_ReturnEvaluatesBeforeDestructors(t *testing.T) {
	sink := diag.NewCollectSink()
	env := NewEnvironment()
	g := NewCodeGen(env, Options{Mode: Debug}, sink)

	stmts := boxWithDestructAndCopy()
	fn := &ast.Function{
		Name:       "run",
		ReturnType: &ast.Variable{Name: "i32"},
		Body: &ast.Block{Statements: []ast.Statement{
			&ast.VarDecl{Name: "a", Type: &ast.Variable{Name: "Box"}},
			&ast.Return{Value: &ast.Get{Object: &ast.Variable{Name: "a"}, Name: "v"}},
		}},
	}
	stmts = append(stmts, fn)

	out, err := g.Generate(stmts)
	assert.NoError(t, err)
	assert.Equal(t, 0, sink.ErrorCount())

	tmpIdx := strings.Index(out, "a.v;")
	destructIdx := strings.Index(out, "Box_DOT___destruct__((&a))")
	// The fixture's __copy__ body emits its own earlier `return _skye_ret_`;
	// run's return is the last one in the output.
	returnIdx := strings.LastIndex(out, "return _skye_ret_")
	assert.GreaterOrEqual(t, tmpIdx, 0)
	assert.GreaterOrEqual(t, destructIdx, 0)
	assert.GreaterOrEqual(t, returnIdx, 0)
	assert.Less(t, tmpIdx, destructIdx, "value must be captured before destructors run")
	assert.Less(t, destructIdx, returnIdx, "destructors must run before the return statement")
}

// TestGenBlockBody_ReturnInsideNestedIfFlushesOuterBlockDestructor covers
// spec §8 Invariant 4: a return reached from inside a nested If body must
// still flush the enclosing function block's own destructors/defers, not
// just the If body's own (empty) frame.
func TestGenBlockBody_ReturnInsideNestedIfFlushesOuterBlockDestructor(t *testing.T) {
	sink := diag.NewCollectSink()
	env := NewEnvironment()
	g := NewCodeGen(env, Options{Mode: Debug}, sink)

	stmts := boxWithDestructAndCopy()
	fn := &ast.Function{
		Name:       "run",
		ReturnType: &ast.Variable{Name: "void"},
		Body: &ast.Block{Statements: []ast.Statement{
			&ast.VarDecl{Name: "a", Type: &ast.Variable{Name: "Box"}},
			&ast.If{
				Condition: &ast.Literal{Kind: ast.LitBool, Value: "true"},
				Body: &ast.Block{Statements: []ast.Statement{
					&ast.Return{},
				}},
			},
		}},
	}
	stmts = append(stmts, fn)

	out, err := g.Generate(stmts)
	assert.NoError(t, err)
	assert.Equal(t, 0, sink.ErrorCount())

	destructIdx := strings.Index(out, "Box_DOT___destruct__((&a))")
	returnIdx := strings.Index(out, "return;")
	assert.GreaterOrEqual(t, destructIdx, 0, "return inside the nested if must still flush the outer block's destructor")
	assert.GreaterOrEqual(t, returnIdx, 0)
	assert.Less(t, destructIdx, returnIdx, "outer destructor must run before the nested return")
}

// TestGenBlockBody_BreakInsideNestedIfFlushesLoopBodyOnly covers the
// Break/Continue half of spec §8 Invariant 4: a break reached from inside
// an If nested in a While must flush the while body's own destructor, but
// must not touch the enclosing function block's destructor (the loop
// variable stays alive after the break).
func TestGenBlockBody_BreakInsideNestedIfFlushesLoopBodyOnly(t *testing.T) {
	sink := diag.NewCollectSink()
	env := NewEnvironment()
	g := NewCodeGen(env, Options{Mode: Debug}, sink)

	stmts := boxWithDestructAndCopy()
	fn := &ast.Function{
		Name:       "run",
		ReturnType: &ast.Variable{Name: "void"},
		Body: &ast.Block{Statements: []ast.Statement{
			&ast.VarDecl{Name: "outer", Type: &ast.Variable{Name: "Box"}},
			&ast.While{
				Condition: &ast.Literal{Kind: ast.LitBool, Value: "true"},
				Body: &ast.Block{Statements: []ast.Statement{
					&ast.VarDecl{Name: "inner", Type: &ast.Variable{Name: "Box"}},
					&ast.If{
						Condition: &ast.Literal{Kind: ast.LitBool, Value: "true"},
						Body: &ast.Block{Statements: []ast.Statement{
							&ast.Break{},
						}},
					},
				}},
			},
		}},
	}
	stmts = append(stmts, fn)

	out, err := g.Generate(stmts)
	assert.NoError(t, err)
	assert.Equal(t, 0, sink.ErrorCount())

	innerDestructIdx := strings.Index(out, "Box_DOT___destruct__((&inner))")
	breakIdx := strings.Index(out, "break;")
	outerDestructIdx := strings.Index(out, "Box_DOT___destruct__((&outer))")
	assert.GreaterOrEqual(t, innerDestructIdx, 0, "break must flush the while body's own destructor")
	assert.GreaterOrEqual(t, breakIdx, 0)
	assert.Less(t, innerDestructIdx, breakIdx, "inner destructor must run before the break")
	assert.GreaterOrEqual(t, outerDestructIdx, 0, "outer destructor must still be emitted at function exit")
	assert.Greater(t, outerDestructIdx, breakIdx, "outer destructor belongs to the function's own exit, after the loop")
}
// TestGenTypeSwitch_DefaultFiresOnlyWhenNoArmMatches covers §4.4.2 Switch's
// compile-time type switch: a default arm written before a matching type arm
// must still lose to it; with no matching arm it fires.
func TestGenTypeSwitch_DefaultFiresOnlyWhenNoArmMatches(t *testing.T) {
	sink := diag.NewCollectSink()
	env := NewEnvironment()
	g := NewCodeGen(env, Options{Mode: Debug}, sink)
	g.cur = &cWriter{}

	env.Define("T", Binding{Value: Value{Type: &TypeValue{Inner: I32}}})
	sw := &ast.Switch{
		Operand: &ast.Variable{Name: "T"},
		Cases: []ast.SwitchCase{
			{Cases: nil, Body: []ast.Statement{
				&ast.ExpressionStmt{Expression: &ast.Literal{Kind: ast.LitSignedInt, Value: "999", Bits: 32}},
			}},
			{Cases: []ast.Expr{&ast.Variable{Name: "i32"}}, Body: []ast.Statement{
				&ast.ExpressionStmt{Expression: &ast.Literal{Kind: ast.LitSignedInt, Value: "111", Bits: 32}},
			}},
		},
	}
	assert.NoError(t, g.genSwitch(env, sw))
	out := g.cur.String()
	assert.Contains(t, out, "111;")
	assert.NotContains(t, out, "999;", "default must lose to a matching type arm")

	// With no matching arm, the default body is the one emitted.
	g.cur = &cWriter{}
	env.Define("U", Binding{Value: Value{Type: &TypeValue{Inner: F64}}})
	sw.Operand = &ast.Variable{Name: "U"}
	assert.NoError(t, g.genSwitch(env, sw))
	out = g.cur.String()
	assert.Contains(t, out, "999;")
	assert.NotContains(t, out, "111;")
}

// resultEnumFixture declares `enum Result { Ok(i32), Err }` plus a bodyless
// `other` returning it, the pieces spec Scenario 4 is built from.
func resultEnumFixture() []ast.Statement {
	result := &ast.Enum{Name: "Result", Variants: []ast.EnumVariant{
		{Name: "Ok", Type: &ast.Variable{Name: "i32"}},
		{Name: "Err", Type: &ast.Variable{Name: "void"}},
	}}
	other := &ast.Function{Name: "other", ReturnType: &ast.Variable{Name: "Result"}}
	return []ast.Statement{result, other}
}

// TestGenerate_TryPropagatesThroughResultFunction covers spec Scenario 4:
// `let x = try other();` inside a Result-returning function emits a tag
// test, an early return of the tried value, and binds the success payload.
func TestGenerate_TryPropagatesThroughResultFunction(t *testing.T) {
	sink := diag.NewCollectSink()
	env := NewEnvironment()
	g := NewCodeGen(env, Options{Mode: Debug}, sink)

	read := &ast.Function{
		Name:       "read",
		ReturnType: &ast.Variable{Name: "Result"},
		Body: &ast.Block{Statements: []ast.Statement{
			&ast.VarDecl{Name: "x", Initializer: &ast.Unary{
				Op: "try", IsPrefix: true,
				Operand: &ast.Call{Callee: &ast.Variable{Name: "other"}},
			}},
		}},
	}
	stmts := append(resultEnumFixture(), read)

	out, err := g.Generate(stmts)
	assert.NoError(t, err)
	assert.Equal(t, 0, sink.ErrorCount())
	assert.Contains(t, out, ".tag != Result_Ok")
	assert.Contains(t, out, "return _skye_try_")
	assert.Contains(t, out, ".data.ok")
}

// TestGenerate_TryFlushesDefersBeforePropagating covers the other half of
// Scenario 4 plus §8 Invariant 4: the error-branch return inside a try must
// run the scope chain's deferred statements first.
func TestGenerate_TryFlushesDefersBeforePropagating(t *testing.T) {
	sink := diag.NewCollectSink()
	env := NewEnvironment()
	g := NewCodeGen(env, Options{Mode: Debug}, sink)

	logFn := &ast.Function{Name: "log", ReturnType: &ast.Variable{Name: "void"}, Body: &ast.Block{}}
	read := &ast.Function{
		Name:       "read",
		ReturnType: &ast.Variable{Name: "Result"},
		Body: &ast.Block{Statements: []ast.Statement{
			&ast.Defer{Body: &ast.ExpressionStmt{Expression: &ast.Call{Callee: &ast.Variable{Name: "log"}}}},
			&ast.VarDecl{Name: "x", Initializer: &ast.Unary{
				Op: "try", IsPrefix: true,
				Operand: &ast.Call{Callee: &ast.Variable{Name: "other"}},
			}},
		}},
	}
	stmts := append(resultEnumFixture(), logFn, read)

	out, err := g.Generate(stmts)
	assert.NoError(t, err)
	assert.Equal(t, 0, sink.ErrorCount())
	assert.Contains(t, out, "log(); return _skye_try_", "the deferred call must precede the propagation return")
}

// TestGenLocalVarDecl_RejectsSameScopeRedefinition covers §4.2: define
// rejects same-scope redefinition (outer-scope shadowing stays legal).
func TestGenLocalVarDecl_RejectsSameScopeRedefinition(t *testing.T) {
	sink := diag.NewCollectSink()
	env := NewEnvironment()
	g := NewCodeGen(env, Options{Mode: Debug}, sink)

	fn := &ast.Function{
		Name:       "run",
		ReturnType: &ast.Variable{Name: "void"},
		Body: &ast.Block{Statements: []ast.Statement{
			&ast.VarDecl{Name: "a", Type: &ast.Variable{Name: "i32"}},
			&ast.VarDecl{Name: "a", Type: &ast.Variable{Name: "i32"}},
		}},
	}

	_, err := g.Generate([]ast.Statement{fn})
	assert.NoError(t, err)
	assert.Equal(t, 1, sink.ErrorCount())
	assert.Contains(t, sink.Messages()[0], "redefinition")
}

// TestGenLocalUse_DefineWithAutoUndef covers §4.4.2 Use: a function-local
// alias lowers to a #define whose matching #undef is emitted at block exit.
func TestGenLocalUse_DefineWithAutoUndef(t *testing.T) {
	sink := diag.NewCollectSink()
	env := NewEnvironment()
	g := NewCodeGen(env, Options{Mode: Debug}, sink)

	box := &ast.Struct{Name: "Box", Fields: []ast.Field{{Name: "v", Type: &ast.Variable{Name: "i32"}}}}
	fn := &ast.Function{
		Name:       "run",
		ReturnType: &ast.Variable{Name: "void"},
		Body: &ast.Block{Statements: []ast.Statement{
			&ast.UseStmt{Name: "B", Target: &ast.Variable{Name: "Box"}, Local: true},
		}},
	}

	out, err := g.Generate([]ast.Statement{box, fn})
	assert.NoError(t, err)
	assert.Equal(t, 0, sink.ErrorCount())
	defIdx := strings.Index(out, "#define B Box")
	undefIdx := strings.Index(out, "#undef B")
	assert.GreaterOrEqual(t, defIdx, 0)
	assert.GreaterOrEqual(t, undefIdx, 0)
	assert.Less(t, defIdx, undefIdx)
}

// TestGenSwitch_CaseBodyRunsDestructors covers spec §8 Invariant 5 inside a
// switch arm: a struct local declared in a case body is a block local like
// any other, so its destructor must run when the case falls off its end.
func TestGenSwitch_CaseBodyRunsDestructors(t *testing.T) {
	sink := diag.NewCollectSink()
	env := NewEnvironment()
	g := NewCodeGen(env, Options{Mode: Debug}, sink)

	stmts := boxWithDestructAndCopy()
	fn := &ast.Function{
		Name:       "run",
		Params:     []ast.Param{{Name: "n", Type: &ast.Variable{Name: "i32"}}},
		ReturnType: &ast.Variable{Name: "void"},
		Body: &ast.Block{Statements: []ast.Statement{
			&ast.Switch{
				Operand: &ast.Variable{Name: "n"},
				Cases: []ast.SwitchCase{
					{
						Cases: []ast.Expr{&ast.Literal{Kind: ast.LitSignedInt, Value: "1", Bits: 32}},
						Body: []ast.Statement{
							&ast.VarDecl{Name: "a", Type: &ast.Variable{Name: "Box"}},
						},
					},
				},
			},
		}},
	}
	stmts = append(stmts, fn)

	out, err := g.Generate(stmts)
	assert.NoError(t, err)
	assert.Equal(t, 0, sink.ErrorCount())

	destructIdx := strings.Index(out, "Box_DOT___destruct__((&a))")
	breakIdx := strings.Index(out, "break;")
	assert.GreaterOrEqual(t, destructIdx, 0, "case-local struct must be destructed at case exit")
	assert.GreaterOrEqual(t, breakIdx, 0)
	assert.Less(t, destructIdx, breakIdx, "destructor must run before the case's break")
}

// TestGenSwitch_ReturnInsideCaseFlushesEnclosingFrames covers the other half
// of the same gap: a return inside a case body must flush the enclosing
// function block's destructors, exactly as a return nested in an If does.
func TestGenSwitch_ReturnInsideCaseFlushesEnclosingFrames(t *testing.T) {
	sink := diag.NewCollectSink()
	env := NewEnvironment()
	g := NewCodeGen(env, Options{Mode: Debug}, sink)

	stmts := boxWithDestructAndCopy()
	fn := &ast.Function{
		Name:       "run",
		Params:     []ast.Param{{Name: "n", Type: &ast.Variable{Name: "i32"}}},
		ReturnType: &ast.Variable{Name: "void"},
		Body: &ast.Block{Statements: []ast.Statement{
			&ast.VarDecl{Name: "outer", Type: &ast.Variable{Name: "Box"}},
			&ast.Switch{
				Operand: &ast.Variable{Name: "n"},
				Cases: []ast.SwitchCase{
					{
						Cases: []ast.Expr{&ast.Literal{Kind: ast.LitSignedInt, Value: "1", Bits: 32}},
						Body:  []ast.Statement{&ast.Return{}},
					},
				},
			},
		}},
	}
	stmts = append(stmts, fn)

	out, err := g.Generate(stmts)
	assert.NoError(t, err)
	assert.Equal(t, 0, sink.ErrorCount())

	destructIdx := strings.Index(out, "Box_DOT___destruct__((&outer))")
	returnIdx := strings.Index(out, "return;")
	assert.GreaterOrEqual(t, destructIdx, 0, "return inside the case must flush the function block's destructor")
	assert.GreaterOrEqual(t, returnIdx, 0)
	assert.Less(t, destructIdx, returnIdx, "outer destructor must run before the nested return")
}
