package compiler

import (
	"strconv"
	"strings"

	"github.com/skyelang/skyec/ast"
	"github.com/skyelang/skyec/diag"
)

// codegenBuiltins names the `@`-macros CodeGen itself resolves (they need
// type information MacroExpander doesn't have); MacroExpander passes calls
// to them straight through. Ported from macro_expander.rs's
// `irgen::BUILTIN_MACROS` skip-list.
var codegenBuiltins = map[string]bool{
	"@format":    true,
	"@fprint":    true,
	"@fprintln":  true,
	"@typeOf":    true,
	"@cast":      true,
	"@constCast": true,
}

// MacroExpander performs the compile-time text-substitution pass between
// parsing and code generation (spec §4.3), ported from
// original_source/src/macro_expander.rs. Unlike the Rust original it does
// not need an explicit coroutine stack (reblessive::Stk): Go's goroutine
// stacks grow on demand, so the same recursive-descent shape the teacher
// uses for ast/transform.go's Walk is both idiomatic and safe here.
type MacroExpander struct {
	globals     map[string]Type
	currName    string
	inImpl      bool
	inInterface bool
	inFunction  bool
	compileMode CompileMode
	sink        diag.Sink
	errorDelta  int
	factory     *ast.Factory
}

// NewMacroExpander builds an expander pre-registering the builtin
// `COMPILE_MODE` zero-arg macro, whose expansion is the integer literal
// 0 (debug), 1 (release) or 2 (release-unsafe).
func NewMacroExpander(mode CompileMode, sink diag.Sink) *MacroExpander {
	m := &MacroExpander{
		globals:     make(map[string]Type),
		compileMode: mode,
		sink:        sink,
		factory:     ast.NewFactory(),
	}
	m.globals["COMPILE_MODE"] = &Macro{
		Name:       "COMPILE_MODE",
		ParamKind:  ast.MacroParamsNone,
		BodyKind:   ast.MacroBodyExpression,
		Expression: &ast.Literal{Kind: ast.LitSignedInt, Value: strconv.Itoa(int(mode))},
	}
	return m
}

func (m *MacroExpander) getName(name string) string {
	if m.currName == "" {
		return name
	}
	return m.currName + "_DOT_" + name
}

func (m *MacroExpander) errorf(pos ast.Pos, format string, args ...any) {
	m.errorDelta++
	diag.Errorf(m.sink, pos, format, args...)
}

// Expand runs the pass over an entire program, returning the rewritten
// statement list. It never mutates prog's own slice header in place; each
// rewritten statement is a fresh node per ast.ReplaceVariable*'s
// copy-on-write discipline.
func (m *MacroExpander) Expand(prog *ast.Program) []ast.Statement {
	out := make([]ast.Statement, 0, len(prog.Statements))
	for _, s := range prog.Statements {
		out = append(out, m.expandStatement(s))
	}
	return out
}

// --- statements --------------------------------------------------------

func (m *MacroExpander) expandBlock(b *ast.Block) *ast.Block {
	if b == nil {
		return nil
	}
	stmts := make([]ast.Statement, 0, len(b.Statements))
	for _, s := range b.Statements {
		stmts = append(stmts, m.expandStatement(s))
	}
	return &ast.Block{BaseStmt: b.BaseStmt, Statements: stmts}
}

func (m *MacroExpander) expandStatements(stmts []ast.Statement) []ast.Statement {
	out := make([]ast.Statement, 0, len(stmts))
	for _, s := range stmts {
		out = append(out, m.expandStatement(s))
	}
	return out
}

func (m *MacroExpander) expandStatement(stmt ast.Statement) ast.Statement {
	switch s := stmt.(type) {
	case *ast.ExpressionStmt:
		return &ast.ExpressionStmt{BaseStmt: s.BaseStmt, Expression: m.expandExpression(s.Expression)}
	case *ast.VarDecl:
		cp := *s
		cp.Type = m.expandExpression(s.Type)
		cp.Initializer = m.expandExpression(s.Initializer)
		if s.IsGlobal {
			m.globals[m.getName(s.Name)] = Unknown{Name: s.Name}
		}
		return &cp
	case *ast.Block:
		return m.expandBlock(s)
	case *ast.If:
		cp := *s
		cp.Condition = m.expandExpression(s.Condition)
		cp.Body = m.expandBlock(s.Body)
		elifs := make([]ast.ElifClause, len(s.Elifs))
		for i, el := range s.Elifs {
			elifs[i] = ast.ElifClause{Condition: m.expandExpression(el.Condition), Body: m.expandBlock(el.Body)}
		}
		cp.Elifs = elifs
		cp.Else = m.expandBlock(s.Else)
		return &cp
	case *ast.While:
		cp := *s
		cp.Condition = m.expandExpression(s.Condition)
		cp.Body = m.expandBlock(s.Body)
		return &cp
	case *ast.DoWhile:
		cp := *s
		cp.Condition = m.expandExpression(s.Condition)
		cp.Body = m.expandBlock(s.Body)
		return &cp
	case *ast.For:
		cp := *s
		if s.Init != nil {
			cp.Init = m.expandStatement(s.Init)
		}
		cp.Condition = m.expandExpression(s.Condition)
		if s.Post != nil {
			cp.Post = m.expandStatement(s.Post)
		}
		cp.Body = m.expandBlock(s.Body)
		return &cp
	case *ast.Foreach:
		cp := *s
		cp.Iterator = m.expandExpression(s.Iterator)
		cp.Body = m.expandBlock(s.Body)
		return &cp
	case *ast.Return:
		cp := *s
		cp.Value = m.expandExpression(s.Value)
		return &cp
	case *ast.Defer:
		cp := *s
		cp.Body = m.expandStatement(s.Body)
		return &cp
	case *ast.Switch:
		cp := *s
		cp.Operand = m.expandExpression(s.Operand)
		cases := make([]ast.SwitchCase, len(s.Cases))
		for i, c := range s.Cases {
			cs := make([]ast.Expr, len(c.Cases))
			for j, ce := range c.Cases {
				cs[j] = m.expandExpression(ce)
			}
			cases[i] = ast.SwitchCase{Cases: cs, Body: m.expandStatements(c.Body)}
		}
		cp.Cases = cases
		return &cp
	case *ast.Function:
		cp := *s
		prevFn := m.inFunction
		m.inFunction = true
		params := make([]ast.Param, len(s.Params))
		for i, p := range s.Params {
			params[i] = ast.Param{Name: p.Name, IsConst: p.IsConst, Type: m.expandExpression(p.Type)}
		}
		cp.Params = params
		cp.ReturnType = m.expandExpression(s.ReturnType)
		if s.Body != nil {
			cp.Body = m.expandBlock(s.Body)
		}
		m.inFunction = prevFn
		if !m.inImpl && !m.inInterface {
			m.globals[m.getName(s.Name)] = Unknown{Name: s.Name}
		}
		return &cp
	case *ast.Struct:
		cp := *s
		if s.Fields != nil {
			fields := make([]ast.Field, len(s.Fields))
			for i, f := range s.Fields {
				fields[i] = ast.Field{Name: f.Name, IsConst: f.IsConst, Bits: f.Bits, Type: m.expandExpression(f.Type)}
			}
			cp.Fields = fields
		}
		m.globals[m.getName(s.Name)] = Unknown{Name: s.Name}
		return &cp
	case *ast.Union:
		cp := *s
		if s.Fields != nil {
			fields := make([]ast.Field, len(s.Fields))
			for i, f := range s.Fields {
				fields[i] = ast.Field{Name: f.Name, IsConst: f.IsConst, Bits: f.Bits, Type: m.expandExpression(f.Type)}
			}
			cp.Fields = fields
		}
		m.globals[m.getName(s.Name)] = Unknown{Name: s.Name}
		return &cp
	case *ast.Bitfield:
		cp := *s
		if s.Fields != nil {
			fields := make([]ast.Field, len(s.Fields))
			for i, f := range s.Fields {
				fields[i] = ast.Field{Name: f.Name, IsConst: f.IsConst, Bits: f.Bits, Type: m.expandExpression(f.Type)}
			}
			cp.Fields = fields
		}
		m.globals[m.getName(s.Name)] = Unknown{Name: s.Name}
		return &cp
	case *ast.Enum:
		cp := *s
		if s.Variants != nil {
			variants := make([]ast.EnumVariant, len(s.Variants))
			for i, v := range s.Variants {
				variants[i] = ast.EnumVariant{Name: v.Name, Type: m.expandExpression(v.Type)}
			}
			cp.Variants = variants
		}
		m.globals[m.getName(s.Name)] = Unknown{Name: s.Name}
		return &cp
	case *ast.Impl:
		cp := *s
		cp.Object = m.expandExpression(s.Object)
		prev := m.inImpl
		m.inImpl = true
		cp.Declarations = m.expandStatements(s.Declarations)
		m.inImpl = prev
		return &cp
	case *ast.Interface:
		cp := *s
		types := make([]ast.Expr, len(s.Types))
		for i, t := range s.Types {
			types[i] = m.expandExpression(t)
		}
		cp.Types = types
		prev := m.inInterface
		m.inInterface = true
		cp.Declarations = m.expandStatements(s.Declarations)
		m.inInterface = prev
		m.globals[m.getName(s.Name)] = Unknown{Name: s.Name}
		return &cp
	case *ast.Namespace:
		cp := *s
		prevName := m.currName
		m.currName = m.getName(s.Name)
		m.globals[m.currName] = &Namespace{FullName: m.currName}
		cp.Body = m.expandStatements(s.Body)
		m.currName = prevName
		return &cp
	case *ast.Template:
		cp := *s
		prevName := m.currName
		m.currName = m.getName(s.Name)
		cp.Declaration = m.expandStatement(s.Declaration)
		m.currName = prevName
		m.globals[m.getName(s.Name)] = Unknown{Name: s.Name}
		return &cp
	case *ast.Macro:
		if m.inImpl || m.inInterface {
			m.errorf(s.StmtPos(), "macro declarations are not allowed inside impl or interface blocks")
			return s
		}
		if m.currName != "" {
			diag.Warnf(m.sink, s.StmtPos(), "%s: macro %q is declared inside a namespace but expands unqualified", diag.KindMacroNamespace, s.Name)
		}
		cp := *s
		switch s.BodyKind {
		case ast.MacroBodyExpression:
			cp.Expression = m.expandExpression(s.Expression)
		case ast.MacroBodyBlock:
			cp.Block = m.expandStatements(s.Block)
		case ast.MacroBodyBinding:
			cp.BindingType = m.expandExpression(s.BindingType)
		}
		m.globals[m.getName(s.Name)] = macroTypeFromAST(&cp)
		return &cp
	case *ast.UseStmt:
		cp := *s
		cp.Target = m.expandExpression(s.Target)
		if s.Name != "_" {
			m.globals[m.getName(s.Name)] = Unknown{Name: s.Name}
		}
		return &cp
	case *ast.ImportedBlock:
		cp := *s
		cp.Statements = m.expandStatements(s.Statements)
		return &cp
	default:
		return stmt
	}
}

func macroTypeFromAST(m *ast.Macro) *Macro {
	return &Macro{
		Name:        m.Name,
		ParamKind:   m.ParamKind,
		ParamNames:  m.ParamNames,
		BodyKind:    m.BodyKind,
		Expression:  m.Expression,
		Block:       m.Block,
		BindingType: m.BindingType,
	}
}

// --- expressions ---------------------------------------------------------

func (m *MacroExpander) expandExpression(expr ast.Expr) ast.Expr {
	if expr == nil {
		return nil
	}
	switch e := expr.(type) {
	case *ast.Literal:
		return e
	case *ast.Variable:
		return e
	case *ast.Grouping:
		cp := *e
		cp.Inner = m.expandExpression(e.Inner)
		return &cp
	case *ast.Unary:
		cp := *e
		cp.Operand = m.expandExpression(e.Operand)
		if e.Op == "@" && e.IsPrefix {
			return m.expandAtOperator(cp.Operand, e.ExprPos())
		}
		return &cp
	case *ast.Binary:
		cp := *e
		cp.Left = m.expandExpression(e.Left)
		cp.Right = m.expandExpression(e.Right)
		return &cp
	case *ast.Assign:
		cp := *e
		cp.Target = m.expandExpression(e.Target)
		cp.Value = m.expandExpression(e.Value)
		return &cp
	case *ast.Ternary:
		cp := *e
		cp.Condition = m.expandExpression(e.Condition)
		cp.Then = m.expandExpression(e.Then)
		cp.Else = m.expandExpression(e.Else)
		return &cp
	case *ast.Subscript:
		cp := *e
		cp.Object = m.expandExpression(e.Object)
		cp.Args = m.expandExprSlice(e.Args)
		return &cp
	case *ast.Get:
		cp := *e
		cp.Object = m.expandExpression(e.Object)
		return &cp
	case *ast.StaticGet:
		cp := *e
		cp.Object = m.expandExpression(e.Object)
		if e.GetsMacro {
			return m.expandAtOperator(&cp, e.ExprPos())
		}
		return &cp
	case *ast.FnPtr:
		cp := *e
		params := make([]ast.Param, len(e.Params))
		for i, p := range e.Params {
			params[i] = ast.Param{Name: p.Name, IsConst: p.IsConst, Type: m.expandExpression(p.Type)}
		}
		cp.Params = params
		cp.ReturnType = m.expandExpression(e.ReturnType)
		return &cp
	case *ast.Slice:
		cp := *e
		cp.Items = m.expandExprSlice(e.Items)
		return &cp
	case *ast.Array:
		cp := *e
		cp.Item = m.expandExpression(e.Item)
		cp.Size = m.expandExpression(e.Size)
		return &cp
	case *ast.ArrayLiteral:
		cp := *e
		cp.Items = m.expandExprSlice(e.Items)
		return &cp
	case *ast.CompoundLiteral:
		cp := *e
		cp.Type = m.expandExpression(e.Type)
		fields := make([]ast.CompoundField, len(e.Fields))
		for i, f := range e.Fields {
			fields[i] = ast.CompoundField{Name: f.Name, Expr: m.expandExpression(f.Expr)}
		}
		cp.Fields = fields
		return &cp
	case *ast.InMacro:
		before := m.errorDelta
		cp := *e
		cp.Inner = m.expandExpression(e.Inner)
		if m.errorDelta > before {
			diag.ErrorInMacro(m.sink, e.ExprPos(), e.Source, "error during macro expansion")
		}
		return &cp
	case *ast.MacroExpandedStatements:
		before := m.errorDelta
		cp := *e
		cp.Inner = m.expandStatements(e.Inner)
		if m.errorDelta > before {
			diag.ErrorInMacro(m.sink, e.ExprPos(), e.Source, "error during macro expansion")
		}
		return &cp
	case *ast.Call:
		return m.expandCall(e)
	default:
		return expr
	}
}

func (m *MacroExpander) expandExprSlice(items []ast.Expr) []ast.Expr {
	out := make([]ast.Expr, len(items))
	for i, it := range items {
		out[i] = m.expandExpression(it)
	}
	return out
}

// expandAtOperator implements the Rust `at_operator!` rule: a prefix `@` on
// a zero-param macro reference wraps the macro's body for deferred
// re-evaluation (Expression/Block) or is left untouched for a codegen-time
// Binding body.
func (m *MacroExpander) expandAtOperator(target ast.Expr, at ast.Pos) ast.Expr {
	name, ok := macroNameOf(target)
	if !ok {
		return target
	}
	mt, isMacro := m.globals[m.getName(name)].(*Macro)
	if !isMacro {
		if mt, isMacro = m.globals[name].(*Macro); !isMacro {
			return target
		}
	}
	if mt.ParamKind != ast.MacroParamsNone {
		m.errorf(at, "macro %q requires arguments", name)
		return target
	}
	switch mt.BodyKind {
	case ast.MacroBodyExpression:
		return m.expandExpression(m.factory.InMacro(mt.Expression, at))
	case ast.MacroBodyBlock:
		return m.factory.MacroExpandedStatements(m.expandStatements(mt.Block), at)
	default:
		return target
	}
}

func macroNameOf(e ast.Expr) (string, bool) {
	switch v := e.(type) {
	case *ast.Variable:
		return v.Name, true
	case *ast.StaticGet:
		return v.Name, true
	default:
		return "", false
	}
}

// expandCall resolves callee+args, splices `unpack` arguments, and either
// substitutes a user macro's body or passes a codegen builtin through.
func (m *MacroExpander) expandCall(c *ast.Call) ast.Expr {
	name, isMacroRef := macroNameOf(c.Callee)
	if isMacroRef && codegenBuiltins[name] {
		cp := *c
		cp.Args = m.expandExprSlice(c.Args)
		cp.Generics = m.expandExprSlice(c.Generics)
		return &cp
	}

	callee := m.expandExpression(c.Callee)
	args := m.expandCallArgs(c.Args)
	generics := m.expandExprSlice(c.Generics)

	if !isMacroRef {
		cp := *c
		cp.Callee = callee
		cp.Args = args
		cp.Generics = generics
		return &cp
	}

	if built, handled := m.handleBuiltinMacro(name, args, c.ExprPos()); handled {
		return built
	}

	mt, ok := m.globals[m.getName(name)].(*Macro)
	if !ok {
		mt, ok = m.globals[name].(*Macro)
	}
	if !ok {
		cp := *c
		cp.Callee = callee
		cp.Args = args
		cp.Generics = generics
		return &cp
	}

	if !checkMacroArity(mt.ParamKind, len(mt.ParamNames), len(args)) {
		m.errorf(c.ExprPos(), "wrong number of arguments to macro %q", name)
		return c
	}

	return m.substituteMacroBody(mt, args, name, c.ExprPos())
}

// expandCallArgs expands every argument, splicing in the elements of a
// single `unpack`-marked Slice/ArrayLiteral argument in place (spec §4.3
// unpack). The external parser represents `unpack expr` as a Unary with
// Op=="unpack"; CodeGen never sees that node, only the spliced result.
func (m *MacroExpander) expandCallArgs(args []ast.Expr) []ast.Expr {
	out := make([]ast.Expr, 0, len(args))
	for _, a := range args {
		u, ok := a.(*ast.Unary)
		if !ok || u.Op != "unpack" {
			out = append(out, m.expandExpression(a))
			continue
		}
		inner := m.expandExpression(u.Operand)
		switch iv := inner.(type) {
		case *ast.Slice:
			out = append(out, iv.Items...)
		case *ast.ArrayLiteral:
			out = append(out, iv.Items...)
		default:
			m.errorf(u.ExprPos(), "unpack requires a slice or array literal")
			out = append(out, inner)
		}
	}
	return out
}

func checkMacroArity(kind ast.MacroParamKind, want, got int) bool {
	switch kind {
	case ast.MacroParamsNone:
		return got == 0
	case ast.MacroParamsFixed:
		return got == want
	case ast.MacroParamsOneOrMore:
		return got >= 1
	case ast.MacroParamsZeroOrMore:
		return true
	default:
		return false
	}
}

// substituteMacroBody binds each parameter name to its call-site argument
// inside a fresh copy of the macro's body (ast.ReplaceVariable* never
// mutates the shared declaration), then re-expands the result so nested
// macro calls inside the substituted arguments are handled too.
func (m *MacroExpander) substituteMacroBody(mt *Macro, args []ast.Expr, name string, at ast.Pos) ast.Expr {
	switch mt.BodyKind {
	case ast.MacroBodyExpression:
		body := mt.Expression
		if name == "panic" || name == "@panic" {
			body = substitutePanicPos(body, at, m.compileMode)
		}
		variadic := mt.ParamKind == ast.MacroParamsOneOrMore || mt.ParamKind == ast.MacroParamsZeroOrMore
		for i, pn := range mt.ParamNames {
			if i >= len(args) || (variadic && i == len(mt.ParamNames)-1) {
				break
			}
			body = ast.ReplaceVariableExpr(body, pn, args[i])
		}
		if variadic {
			variadicStart := 0
			if len(mt.ParamNames) > 0 {
				variadicStart = len(mt.ParamNames) - 1
			}
			rest := args[variadicStart:]
			if len(mt.ParamNames) > 0 {
				body = ast.ReplaceVariableExpr(body, mt.ParamNames[len(mt.ParamNames)-1], m.factory.SliceOf(rest, at))
			}
		}
		return m.expandExpression(m.factory.InMacro(body, at))
	case ast.MacroBodyBlock:
		stmts := mt.Block
		for i, pn := range mt.ParamNames {
			if i >= len(args) {
				break
			}
			stmts = substituteBlockParam(stmts, pn, args[i])
		}
		return m.factory.MacroExpandedStatements(m.expandStatements(stmts), at)
	default:
		// Binding-bodied macros resolve at codegen time; leave the call
		// form in place so CodeGen can see the original argument list.
		return &ast.Call{BaseExpr: ast.BaseExpr{SourcePos: at}, Callee: &ast.Variable{Name: name}, Args: args}
	}
}

func substituteBlockParam(stmts []ast.Statement, name string, with ast.Expr) []ast.Statement {
	out := make([]ast.Statement, len(stmts))
	for i, s := range stmts {
		out[i] = ast.ReplaceVariableStmt(s, name, with)
	}
	return out
}

// substitutePanicPos replaces the well-known `PANIC_POS` placeholder
// variable inside @panic's body with a string literal describing where the
// panic occurred, but only in Debug mode (Release/ReleaseUnsafe keep the
// panic message minimal, per skye_type.rs's PANIC_POS handling).
func substitutePanicPos(body ast.Expr, at ast.Pos, mode CompileMode) ast.Expr {
	if mode != Debug {
		return ast.ReplaceVariableExpr(body, "PANIC_POS", &ast.Literal{Kind: ast.LitStringCooked, Value: ""})
	}
	return ast.ReplaceVariableExpr(body, "PANIC_POS", &ast.Literal{
		Kind:  ast.LitStringCooked,
		Value: at.File + ":" + strconv.Itoa(at.Line) + ": ",
	})
}

// handleBuiltinMacro implements `@concat`, the one builtin macro that is
// resolved during expansion rather than at codegen time (it needs to see
// literal AST shapes, not types). Ported from macro_expander.rs's
// `handle_builtin_macros`.
func (m *MacroExpander) handleBuiltinMacro(name string, args []ast.Expr, at ast.Pos) (ast.Expr, bool) {
	if name != "@concat" {
		return nil, false
	}
	if len(args) == 1 {
		diag.Warnf(m.sink, at, "%s: @concat with a single argument has no effect", diag.KindUselessConcat)
		return args[0], true
	}
	isSliceLike := func(e ast.Expr) bool {
		switch e.(type) {
		case *ast.Slice, *ast.ArrayLiteral:
			return true
		default:
			return false
		}
	}
	allString := true
	allSliceLike := true
	for _, a := range args {
		if lit, ok := a.(*ast.Literal); !ok || (lit.Kind != ast.LitStringCooked && lit.Kind != ast.LitStringRaw) {
			allString = false
		}
		if !isSliceLike(a) {
			allSliceLike = false
		}
	}
	switch {
	case allString:
		var b strings.Builder
		for _, a := range args {
			b.WriteString(a.(*ast.Literal).Value)
		}
		return m.factory.StringLiteral(b.String(), at), true
	case allSliceLike:
		var items []ast.Expr
		for _, a := range args {
			switch v := a.(type) {
			case *ast.Slice:
				items = append(items, v.Items...)
			case *ast.ArrayLiteral:
				items = append(items, v.Items...)
			}
		}
		return m.factory.SliceOf(items, at), true
	default:
		m.errorf(at, "argument for @concat macro must be a literal, slice or array literal, and all arguments must share the same kind")
		return args[0], true
	}
}
