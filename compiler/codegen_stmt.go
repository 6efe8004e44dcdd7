package compiler

import (
	"fmt"
	"strings"

	"github.com/skyelang/skyec/ast"
	"github.com/skyelang/skyec/diag"
)

// unwindFrame is one block scope's pending exit work: its own deferred
// statements and auto-destructor calls, plus the Environment they must
// evaluate/dispatch against. One is pushed onto CodeGen.frames per active
// genBlockBody call (mirroring the actual Go call stack of nested
// If/While/For/Foreach bodies), so Return/Break/Continue can unwind every
// enclosing block that is still open, not just the innermost one.
type unwindFrame struct {
	env       *Environment
	deferred  []ast.Statement
	destructs []destructRecord
	// undefs are the `use`-introduced #define aliases to #undef when this
	// block exits (spec §4.4.2 Use "local scope + auto-#undef").
	undefs []string
}

// genBlockBody emits every statement of b into the active buffer (g.cur),
// opening blockEnv as a child scope and unwinding, at every exit (a normal
// fall-through, and an explicit Return/Break/Continue), first any Defer
// statements registered directly in this block in LIFO order, then
// auto-destructor calls for its struct/enum locals exposing __destruct__, in
// reverse-declaration order (spec §4.4.2 Defer/Block, §8 Invariant 5). The
// defer unwind runs through g.deferTr rather than a recursive call, the
// Trampoline's intended use (trampoline.go); destructor unwind needs no
// trampoline since it never re-enters genStmt.
func (g *CodeGen) genBlockBody(env *Environment, b *ast.Block) error {
	blockEnv := env.Child()
	frame := &unwindFrame{env: blockEnv}
	g.frames = append(g.frames, frame)
	defer func() { g.frames = g.frames[:len(g.frames)-1] }()

	unwindSelf := func() error {
		if err := g.flushDefers(frame.env, frame.deferred); err != nil {
			return err
		}
		g.flushDestructors(frame.destructs)
		g.flushUndefs(frame.undefs)
		return nil
	}

	for _, s := range b.Statements {
		switch st := s.(type) {
		case *ast.Defer:
			frame.deferred = append(frame.deferred, st.Body)
		case *ast.Return:
			// The returned value is computed into a temporary before any
			// unwind runs, so deferred/destructor code can't observe or
			// clobber it (spec §4.4.2 Return "places result in a temporary
			// so deferred code may run first"). Return leaves the whole
			// function, so every frame still open (this one and every
			// enclosing block since function entry) must flush, not just
			// this block's own (spec §8 Invariant 4).
			var tmp string
			if st.Value != nil {
				v, err := g.evalExpr(blockEnv, st.Value)
				if err != nil {
					return err
				}
				if g.fnRet != nil && !Equals(g.fnRet, v.Type, Strict) {
					g.errorf(st.StmtPos(), "cannot return %s from a function returning %s", Stringify(v.Type), Stringify(g.fnRet))
				}
				v = g.maybeCopyConstruct(blockEnv, v, st.StmtPos())
				tmp = g.newLabel("ret")
				g.cur.Line("%s = %s;", cDeclaration(Finalize(v.Type), tmp, false), v.CValue)
			} else if g.fnRet != nil {
				if _, isVoid := g.fnRet.(Void); !isVoid {
					g.errorf(st.StmtPos(), "bare return in a function returning %s", Stringify(g.fnRet))
				}
			}
			if err := g.unwindFramesFrom(0); err != nil {
				return err
			}
			if tmp == "" {
				g.cur.Line("return;")
			} else {
				g.cur.Line("return %s;", tmp)
			}
			return nil
		case *ast.Break:
			if err := g.unwindFramesFrom(g.currentLoopBase()); err != nil {
				return err
			}
			g.cur.Line("break;")
			return nil
		case *ast.Continue:
			if err := g.unwindFramesFrom(g.currentLoopBase()); err != nil {
				return err
			}
			g.cur.Line("continue;")
			return nil
		default:
			if err := g.genStmt(blockEnv, s); err != nil {
				return err
			}
			if vd, ok := s.(*ast.VarDecl); ok && vd.Name != "_" {
				if rec, ok := g.destructorRecordFor(blockEnv, vd); ok {
					frame.destructs = append(frame.destructs, rec)
				}
			}
		}
	}
	return unwindSelf()
}

// unwindFramesFrom flushes every open frame from the innermost (top of
// g.frames) down to and including index base, in that order — innermost
// defers/destructors first, matching the nesting a return/break/continue
// actually passes through. base is 0 for Return (the whole function's
// frames since its top-level body was entered) and the current loop's own
// body-frame index for Break/Continue (currentLoopBase).
func (g *CodeGen) unwindFramesFrom(base int) error {
	for i := len(g.frames) - 1; i >= base && i < len(g.frames); i-- {
		f := g.frames[i]
		if err := g.flushDefers(f.env, f.deferred); err != nil {
			return err
		}
		g.flushDestructors(f.destructs)
		g.flushUndefs(f.undefs)
	}
	return nil
}

func (g *CodeGen) flushUndefs(names []string) {
	for i := len(names) - 1; i >= 0; i-- {
		g.cur.Line("#undef %s", names[i])
	}
}

// currentLoopBase returns the frames index a Break/Continue must unwind
// down to: the frame belonging to the innermost loop's own body block. A
// Break/Continue outside any loop (which a prior pass should already have
// rejected) falls back to unwinding only the current frame.
func (g *CodeGen) currentLoopBase() int {
	if len(g.loopBases) == 0 {
		return len(g.frames) - 1
	}
	return g.loopBases[len(g.loopBases)-1]
}

// pushLoopBase records where the loop body about to be generated will push
// its own frame, and returns the pop function the caller must defer.
func (g *CodeGen) pushLoopBase() func() {
	g.loopBases = append(g.loopBases, len(g.frames))
	return func() { g.loopBases = g.loopBases[:len(g.loopBases)-1] }
}

// destructRecord is one pending auto-destructor call, along with the
// position of the local that introduced it (for the I-destructors info
// note).
type destructRecord struct {
	call string
	pos  ast.Pos
}

// destructorRecordFor reports the __destruct__ call for vd's just-declared
// binding, if its type is a struct or enum exposing one.
func (g *CodeGen) destructorRecordFor(env *Environment, vd *ast.VarDecl) (destructRecord, bool) {
	b, ok := env.Get(vd.Name)
	if !ok {
		return destructRecord{}, false
	}
	switch b.Value.Type.(type) {
	case *Struct, *Enum:
	default:
		return destructRecord{}, false
	}
	mb, selfVal, found := GetMethod(env, b.Value, "__destruct__", false)
	if !found {
		return destructRecord{}, false
	}
	fn, isFn := mb.Value.Type.(*Function)
	if !isFn {
		return destructRecord{}, false
	}
	wantRef, wantConst := false, false
	if len(fn.Params) > 0 {
		if p, ok := fn.Params[0].Type.(*Pointer); ok {
			wantRef, wantConst = p.IsReference, p.IsConst
		} else {
			wantConst = fn.Params[0].IsConst
		}
	}
	arg := GetSelf(selfVal, wantRef, wantConst)
	call := fmt.Sprintf("%s_DOT___destruct__(%s);", typeQualifierName(selfVal.Type), arg.CValue)
	return destructRecord{call: call, pos: vd.StmtPos()}, true
}

// flushDestructors emits records in reverse-declaration order (spec
// Scenario 3: "exit emits b.__destruct__(); a.__destruct__();").
func (g *CodeGen) flushDestructors(records []destructRecord) {
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		diag.Infof(g.sink, r.pos, "%s: inserted destructor call %s", diag.KindDestructors, strings.TrimSuffix(r.call, ";"))
		g.cur.Line("%s", r.call)
	}
}

// flushDefers runs deferred, most-recently-registered first. Pushing them
// onto g.deferTr in registration order and draining it achieves LIFO order
// since Trampoline.Run pops from the top of its stack.
func (g *CodeGen) flushDefers(env *Environment, deferred []ast.Statement) error {
	var firstErr error
	for _, s := range deferred {
		stmt := s
		g.deferTr.Push(func() []frame {
			if err := g.genStmt(env, stmt); err != nil && firstErr == nil {
				firstErr = err
			}
			return nil
		})
	}
	g.deferTr.Run()
	return firstErr
}

// genLocalUse aliases a symbol inside a function body via a C #define whose
// matching #undef is emitted when the enclosing block exits (spec §4.4.2
// Use). `_` as the name binds nothing and emits nothing.
func (g *CodeGen) genLocalUse(env *Environment, d *ast.UseStmt) error {
	target, err := g.evalExpr(env, d.Target)
	if err != nil {
		return err
	}
	if d.Name == "_" {
		return nil
	}
	env.Define(d.Name, Binding{Value: Value{CValue: d.Name, Type: target.Type, IsConst: target.IsConst}, IsVar: true})
	cv := target.CValue
	if cv == "" {
		cv = cTypeName(unwrapTypeValue(target.Type))
	}
	g.cur.Line("#define %s %s", d.Name, cv)
	if len(g.frames) > 0 {
		f := g.frames[len(g.frames)-1]
		f.undefs = append(f.undefs, d.Name)
	}
	return nil
}

// genStmtInto temporarily redirects output to w, used by expression-position
// macro-expanded statement blocks (codegen_expr.go's evalMacroExpandedStatements).
func (g *CodeGen) genStmtInto(w *cWriter, env *Environment, s ast.Statement) error {
	prev := g.cur
	g.cur = w
	defer func() { g.cur = prev }()
	return g.genStmt(env, s)
}

func (g *CodeGen) genStmt(env *Environment, s ast.Statement) error {
	switch st := s.(type) {
	case *ast.ExpressionStmt:
		v, err := g.evalExpr(env, st.Expression)
		if err != nil {
			return err
		}
		if v.CValue != "" {
			g.cur.Line("%s;", v.CValue)
		}
		return nil
	case *ast.VarDecl:
		return g.genLocalVarDecl(env, st)
	case *ast.Block:
		g.cur.Line("{")
		g.cur.Indent()
		err := g.genBlockBody(env, st)
		g.cur.Dedent()
		g.cur.Line("}")
		return err
	case *ast.If:
		return g.genIf(env, st)
	case *ast.While:
		return g.genWhile(env, st)
	case *ast.DoWhile:
		return g.genDoWhile(env, st)
	case *ast.For:
		return g.genFor(env, st)
	case *ast.Foreach:
		return g.genForeach(env, st)
	case *ast.Break:
		g.cur.Line("break;")
		return nil
	case *ast.Continue:
		g.cur.Line("continue;")
		return nil
	case *ast.Return:
		if st.Value == nil {
			g.cur.Line("return;")
			return nil
		}
		v, err := g.evalExpr(env, st.Value)
		if err != nil {
			return err
		}
		g.cur.Line("return %s;", v.CValue)
		return nil
	case *ast.Switch:
		return g.genSwitch(env, st)
	case *ast.Defer:
		// Reached only when a Defer appears outside genBlockBody's scan (no
		// enclosing block to unwind against); run it in place as the
		// least-wrong fallback.
		return g.genStmt(env, st.Body)
	case *ast.UseStmt:
		return g.genLocalUse(env, st)
	case *ast.Undef:
		env.Undef(st.Name)
		return nil
	case *ast.Empty:
		return nil
	default:
		return fmt.Errorf("%s: unsupported statement", s.StmtPos())
	}
}

func (g *CodeGen) genLocalVarDecl(env *Environment, d *ast.VarDecl) error {
	if d.Name == "_" {
		if d.Initializer != nil {
			v, err := g.evalExpr(env, d.Initializer)
			if err != nil {
				return err
			}
			if v.CValue != "" {
				g.cur.Line("(void)(%s);", v.CValue)
			}
		}
		return nil
	}

	if _, exists := env.GetInScope(d.Name); exists {
		g.errorf(d.StmtPos(), "redefinition of %q in the same scope", d.Name)
	}

	var typ Type
	var initText string
	if d.Initializer != nil {
		v, err := g.evalExpr(env, d.Initializer)
		if err != nil {
			return err
		}
		v = g.maybeCopyConstruct(env, v, d.StmtPos())
		typ = Finalize(v.Type)
		if d.Type != nil {
			if explicit, ok := g.EvalTypeExpr(env, d.Type); ok {
				if !Equals(explicit, v.Type, Strict) {
					g.errorf(d.StmtPos(), "cannot initialize %s with %s", Stringify(explicit), Stringify(v.Type))
				}
				typ = explicit
			}
		}
		initText = v.CValue
	} else if d.Type != nil {
		typ, _ = g.EvalTypeExpr(env, d.Type)
	} else {
		typ = Unknown{}
	}

	env.Define(d.Name, Binding{Value: SpecialValue(d.Name, typ, d.IsConst), IsVar: true})
	decl := cDeclaration(typ, d.Name, d.IsConst)
	if initText != "" {
		g.cur.Line("%s = %s;", decl, initText)
	} else {
		g.cur.Line("%s;", decl)
	}
	return nil
}

func (g *CodeGen) genIf(env *Environment, d *ast.If) error {
	cond, err := g.evalExpr(env, d.Condition)
	if err != nil {
		return err
	}
	g.cur.Line("if (%s) {", cond.CValue)
	g.cur.Indent()
	if err := g.genBlockBody(env, d.Body); err != nil {
		return err
	}
	g.cur.Dedent()
	g.cur.Line("}")

	for _, elif := range d.Elifs {
		econd, err := g.evalExpr(env, elif.Condition)
		if err != nil {
			return err
		}
		g.cur.Line("else if (%s) {", econd.CValue)
		g.cur.Indent()
		if err := g.genBlockBody(env, elif.Body); err != nil {
			return err
		}
		g.cur.Dedent()
		g.cur.Line("}")
	}

	if d.Else != nil {
		g.cur.Line("else {")
		g.cur.Indent()
		if err := g.genBlockBody(env, d.Else); err != nil {
			return err
		}
		g.cur.Dedent()
		g.cur.Line("}")
	}
	return nil
}

func (g *CodeGen) genWhile(env *Environment, d *ast.While) error {
	cond, err := g.evalExpr(env, d.Condition)
	if err != nil {
		return err
	}
	g.cur.Line("while (%s) {", cond.CValue)
	g.cur.Indent()
	popLoop := g.pushLoopBase()
	err = g.genBlockBody(env, d.Body)
	popLoop()
	if err != nil {
		return err
	}
	g.cur.Dedent()
	g.cur.Line("}")
	return nil
}

func (g *CodeGen) genDoWhile(env *Environment, d *ast.DoWhile) error {
	g.cur.Line("do {")
	g.cur.Indent()
	popLoop := g.pushLoopBase()
	err := g.genBlockBody(env, d.Body)
	popLoop()
	if err != nil {
		return err
	}
	g.cur.Dedent()
	cond, err := g.evalExpr(env, d.Condition)
	if err != nil {
		return err
	}
	g.cur.Line("} while (%s);", cond.CValue)
	return nil
}

func (g *CodeGen) genFor(env *Environment, d *ast.For) error {
	forEnv := env.Child()

	var initErr, postErr error
	initText := ""
	if d.Init != nil {
		initText = stripHeaderFragment(g.cur.Capture(func() {
			if err := g.genStmt(forEnv, d.Init); err != nil {
				initErr = err
			}
		}))
	}
	if initErr != nil {
		return initErr
	}

	condText := ""
	if d.Condition != nil {
		cond, err := g.evalExpr(forEnv, d.Condition)
		if err != nil {
			return err
		}
		condText = cond.CValue
	}

	postText := ""
	if d.Post != nil {
		postText = stripHeaderFragment(g.cur.Capture(func() {
			if err := g.genStmt(forEnv, d.Post); err != nil {
				postErr = err
			}
		}))
	}
	if postErr != nil {
		return postErr
	}

	g.cur.Line("for (%s; %s; %s) {", initText, condText, postText)
	g.cur.Indent()
	popLoop := g.pushLoopBase()
	err := g.genBlockBody(forEnv, d.Body)
	popLoop()
	if err != nil {
		return err
	}
	g.cur.Dedent()
	g.cur.Line("}")
	return nil
}

// stripHeaderFragment turns one genStmt-emitted line (indented, trailing
// ";\n") into the bare fragment a C for(...) header needs between its
// semicolons.
func stripHeaderFragment(s string) string {
	s = strings.TrimRight(s, "\n")
	s = strings.TrimSuffix(s, ";")
	return strings.TrimSpace(s)
}

// genForeach desugars `for name in iterator { body }` into the iterator
// protocol's next() call: iterator's type must expose a `next` method
// returning a sum-type Enum whose non-"None"/"Done" variant carries the
// element (spec §4.4.2 Foreach; exact protocol left to CodeGen per §9 since
// the distilled spec names the desugaring but not the enum's variant names).
func (g *CodeGen) genForeach(env *Environment, d *ast.Foreach) error {
	iter, err := g.evalExpr(env, d.Iterator)
	if err != nil {
		return err
	}
	iterLabel := g.newLabel("iter")
	g.cur.Line("%s = %s;", cDeclaration(iter.Type, iterLabel, false), iter.CValue)

	iterVal := SpecialValue(iterLabel, iter.Type, false)
	b, selfVal, found := GetMethod(env, iterVal, "next", false)
	if !found {
		// The iterable may instead expose iter() returning the actual
		// iterator, which then exposes next (spec §4.4.2 Foreach).
		iterVal, found = g.foreachViaIterMethod(env, iterVal)
		if !found {
			g.errorf(d.StmtPos(), "type %s has no next() method required by foreach", Stringify(iter.Type))
			return nil
		}
		b, selfVal, found = GetMethod(env, iterVal, "next", false)
		if !found {
			g.errorf(d.StmtPos(), "iter() result %s has no next() method", Stringify(iterVal.Type))
			return nil
		}
	}
	fnType, ok := b.Value.Type.(*Function)
	if !ok {
		g.errorf(d.StmtPos(), "next is not a function on %s", Stringify(iter.Type))
		return nil
	}
	en, isEnum := fnType.Return.(*Enum)
	if !isEnum || en.Variants == nil {
		g.errorf(d.StmtPos(), "next() must return a sum-type enum, got %s", Stringify(fnType.Return))
		return nil
	}
	payloadType, someVariant, noneVariant := pickIteratorVariants(en)

	nextCall := fmt.Sprintf("%s_DOT_next(%s)", typeQualifierName(selfVal.Type), selfVal.CValue)
	nextLabel := g.newLabel("next")

	g.cur.Line("for (;;) {")
	g.cur.Indent()
	g.cur.Line("%s = %s;", cDeclaration(en, nextLabel, false), nextCall)
	g.cur.Line("if (%s.tag == %s_%s) break;", nextLabel, en.FullName, noneVariant)

	bodyEnv := env.Child()
	if d.VarName != "" && d.VarName != "_" {
		payloadCV := fmt.Sprintf("%s.data.%s", nextLabel, strings.ToLower(someVariant))
		bodyEnv.Define(d.VarName, Binding{Value: SpecialValue(d.VarName, payloadType, false), IsVar: true})
		g.cur.Line("%s = %s;", cDeclaration(payloadType, d.VarName, false), payloadCV)
	}
	popLoop := g.pushLoopBase()
	err = g.genBlockBody(bodyEnv, d.Body)
	popLoop()
	if err != nil {
		return err
	}
	g.cur.Dedent()
	g.cur.Line("}")
	return nil
}

// foreachViaIterMethod materializes `iterable.iter()` into a fresh local and
// returns it as the value the foreach protocol continues on.
func (g *CodeGen) foreachViaIterMethod(env *Environment, iterable Value) (Value, bool) {
	b, selfVal, found := GetMethod(env, iterable, "iter", false)
	if !found {
		return Value{}, false
	}
	fnType, ok := b.Value.Type.(*Function)
	if !ok {
		return Value{}, false
	}
	wantRef, wantConst := false, false
	if len(fnType.Params) > 0 {
		if p, isPtr := fnType.Params[0].Type.(*Pointer); isPtr {
			wantRef, wantConst = p.IsReference, p.IsConst
		}
	}
	arg := GetSelf(selfVal, wantRef, wantConst)
	label := g.newLabel("iter")
	g.cur.Line("%s = %s_DOT_iter(%s);", cDeclaration(fnType.Return, label, false), typeQualifierName(selfVal.Type), arg.CValue)
	return SpecialValue(label, fnType.Return, false), true
}

func pickIteratorVariants(en *Enum) (payload Type, someName, noneName string) {
	for name := range en.Variants {
		if strings.EqualFold(name, "None") || strings.EqualFold(name, "Done") {
			noneName = name
		}
	}
	for name, t := range en.Variants {
		if name != noneName {
			payload, someName = t, name
		}
	}
	return
}

func (g *CodeGen) genSwitch(env *Environment, d *ast.Switch) error {
	operand, err := g.evalExpr(env, d.Operand)
	if err != nil {
		return err
	}
	if IsType(operand.Type) {
		return g.genTypeSwitch(env, operand, d)
	}

	g.cur.Line("switch (%s) {", operand.CValue)
	g.cur.Indent()
	for _, c := range d.Cases {
		if c.Cases == nil {
			g.cur.Line("default: {")
		} else {
			for _, ce := range c.Cases {
				cv, err := g.evalExpr(env, ce)
				if err != nil {
					return err
				}
				g.cur.Line("case %s:", cv.CValue)
			}
			g.cur.Line("{")
		}
		g.cur.Indent()
		// A case body is a block like any other: it owns a defer/destructor
		// frame, and a return inside it must unwind every enclosing frame.
		if err := g.genBlockBody(env, caseBlock(d, c)); err != nil {
			return err
		}
		g.cur.Line("break;")
		g.cur.Dedent()
		g.cur.Line("}")
	}
	g.cur.Dedent()
	g.cur.Line("}")
	return nil
}

// caseBlock wraps one switch arm's statement list as a Block so both switch
// flavors route it through genBlockBody's frame handling.
func caseBlock(d *ast.Switch, c ast.SwitchCase) *ast.Block {
	return &ast.Block{BaseStmt: ast.BaseStmt{SourcePos: d.StmtPos()}, Statements: c.Body}
}

// genTypeSwitch resolves a `switch` over a Type(inner) operand entirely at
// compile time (spec §4.4.2 Switch "type switch"): the first case whose
// evaluated type matches operand Typewise has its body emitted directly,
// with no runtime dispatch construct at all.
func (g *CodeGen) genTypeSwitch(env *Environment, operand Value, d *ast.Switch) error {
	tv, ok := operand.Type.(*TypeValue)
	if !ok {
		return fmt.Errorf("%s: type switch requires a type-value operand", d.StmtPos())
	}
	var defaultCase *ast.SwitchCase
	for i, c := range d.Cases {
		if c.Cases == nil {
			// The default arm fires iff no type arm matched, regardless of
			// where it appears in the source (spec §4.4.2 Switch).
			defaultCase = &d.Cases[i]
			continue
		}
		for _, ce := range c.Cases {
			ct, ok := g.EvalTypeExpr(env, ce)
			if !ok {
				continue
			}
			if Equals(tv.Inner, ct, Typewise) {
				return g.genBlockBody(env, caseBlock(d, c))
			}
		}
	}
	if defaultCase != nil {
		return g.genBlockBody(env, caseBlock(d, *defaultCase))
	}
	return nil
}
