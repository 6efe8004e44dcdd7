package compiler

import (
	"fmt"

	"github.com/skyelang/skyec/ast"
	"github.com/skyelang/skyec/diag"
)

// Options configures one compilation run (spec §6), the counterpart of the
// teacher's plain-struct Compiler options read by cmd/cmd.go.
type Options struct {
	SourceFile  string
	Mode        CompileMode
	ImportPaths []string // extra search roots for ImportLib resolution
}

// CodeGen lowers an already-macro-expanded Program into C source text,
// generalizing the teacher's codeGen struct (compiler/codegen.go) from a
// single Go-output stream to the named-buffer model of buffers.go, and
// from dynamic RugoType inference to Skye's static TypeModel.
type CodeGen struct {
	opts    Options
	env     *Environment
	buf     *Buffers
	sink    diag.Sink
	cur     *cWriter
	deferTr *Trampoline

	breakLabels    []string
	continueLabels []string
	labelCounter   int

	// frames is the stack of currently-active block scopes (spec §8
	// Invariant 4): one *unwindFrame per genBlockBody call still on the Go
	// call stack, pushed on entry and popped on normal exit, so a Return
	// reached from inside arbitrarily nested If/While/For/Foreach bodies
	// can flush every enclosing block's pending defers/destructors, not
	// just its own innermost frame.
	frames []*unwindFrame
	// loopBases records, for each loop currently being generated, the
	// frames index a Break/Continue inside it must unwind down to (the
	// loop body's own frame), so a jump out of a loop never flushes
	// defers/destructors belonging to blocks outside that loop.
	loopBases []int

	templates map[string]*Template

	// fnRet is the return Type of the function body currently being
	// generated, nil at global scope. Return statements check against it;
	// `try` expressions require it to be a sum-type enum with a compatible
	// error variant (spec §4.4.1 "Invalid propagation context").
	fnRet Type
	// inCopyCtor suppresses __copy__ insertion while generating a __copy__
	// body, which would otherwise call itself on its own return value.
	inCopyCtor bool

	// sliceTypes memoizes which element types already have their
	// `{ptr, length}` view struct emitted, keyed by mangled element name.
	sliceTypes map[string]*Struct

	// initFuncs collects the C names of every top-level function qualified
	// #init (spec §6 item 6: "_SKYE_INIT constructor that invokes every
	// #init function"), in declaration order.
	initFuncs []string
	// mainFunc records the user-defined `main`'s signature, if any was
	// declared with a body at the top level, so Generate can synthesize
	// the platform `int main(...)` entry point (spec §6 "synthesized
	// main").
	mainFunc *mainInfo
}

// mainInfo is the signature CodeGen needs to pick one of the six
// synthesized-main variants spec §6 describes.
type mainInfo struct {
	Params []FuncParam
	Return Type
}

// NewCodeGen builds a CodeGen sharing env (populated by prior declaration
// scanning) and reporting diagnostics to sink.
func NewCodeGen(env *Environment, opts Options, sink diag.Sink) *CodeGen {
	return &CodeGen{
		opts:      opts,
		env:       env,
		buf:       NewBuffers(),
		sink:      sink,
		deferTr:    &Trampoline{},
		templates:  make(map[string]*Template),
		sliceTypes: make(map[string]*Struct),
	}
}

// Generate runs the full two-pass scheme: first register every top-level
// declaration's Type into the global Environment (so forward references
// and mutual recursion resolve regardless of source order), then emit each
// statement's C text. Mirrors the teacher's generate()'s "collect idents,
// then write" shape (compiler/codegen.go), generalized to type
// declarations instead of closure-capture sets.
func (g *CodeGen) Generate(stmts []ast.Statement) (string, error) {
	g.buf.Include("stdint.h", true)
	g.buf.Include("stddef.h", true)
	g.buf.Include("stdbool.h", true)
	g.emitStringType()

	for _, s := range stmts {
		g.declareTop(s)
	}
	for _, s := range stmts {
		if err := g.genTopStatement(s); err != nil {
			return "", err
		}
	}
	g.synthesizeEntry()
	return g.buf.Render(), nil
}

// emitStringType declares the standard `{ptr, length}` layout a cooked
// string literal evaluates to (spec §4.4.1 Literals "cooked ... wraps in
// the standard String struct"), unconditionally so it is available even to
// a translation unit whose own source never names it directly (an imported
// header might).
func (g *CodeGen) emitStringType() {
	g.buf.StructDefinitions.Line("typedef struct String {")
	g.buf.StructDefinitions.Indent()
	g.buf.StructDefinitions.Line("const char *ptr;")
	g.buf.StructDefinitions.Line("size_t length;")
	g.buf.StructDefinitions.Dedent()
	g.buf.StructDefinitions.Line("} String;")
}

// stringType returns the Type cooked string literals carry. Equals compares
// Struct values by FullName (equals.go), so a fresh instance here compares
// equal to any other reference to "String" without needing a shared
// pointer.
func stringType() *Struct {
	return &Struct{
		FullName: "String",
		BaseName: "String",
		Fields: map[string]StructField{
			"ptr":    {Type: &Pointer{Inner: Char, IsConst: true}},
			"length": {Type: Usz},
		},
	}
}

func (g *CodeGen) errorf(pos ast.Pos, format string, args ...any) {
	diag.Errorf(g.sink, pos, format, args...)
}

func (g *CodeGen) newLabel(prefix string) string {
	g.labelCounter++
	return fmt.Sprintf("_skye_%s_%d", prefix, g.labelCounter)
}

// zeroCheck builds the Debug-mode null-pointer guard Get/FollowReference
// splice before a dereference (spec §4.1, §7 "Null dereference"). Disabled
// outside Debug mode.
func (g *CodeGen) zeroCheck(cv Expr) Expr {
	if g.opts.Mode != Debug {
		return cv
	}
	g.buf.Include("stdio.h", true)
	g.buf.Include("stdlib.h", true)
	label := g.newLabel("nullcheck")
	return fmt.Sprintf("({ __auto_type %s = (%s); if (!%s) { fprintf(stderr, \"null dereference\\n\"); abort(); } %s; })", label, cv, label, label)
}

// divZeroCheck guards a `/` or `%` right operand in Debug mode (spec §8
// Invariant 6), emitting a runtime panic when the divisor is zero.
func (g *CodeGen) divZeroCheck(cv Expr) Expr {
	if g.opts.Mode != Debug {
		return cv
	}
	g.buf.Include("stdio.h", true)
	g.buf.Include("stdlib.h", true)
	label := g.newLabel("divcheck")
	return fmt.Sprintf("({ __auto_type %s = (%s); if (%s == 0) { fprintf(stderr, \"division by zero\\n\"); abort(); } %s; })", label, cv, label, label)
}

// sliceTypeFor returns the `{ptr, length}` view struct a slice expression of
// elem produces (spec §4.4.1 "slices synthesize a temporary typed array and
// produce {.ptr=…, .length=…}"), emitting its definition the first time a
// given element type is seen. The mangled instantiation name keeps sibling
// element types distinct and repeat uses idempotent.
func (g *CodeGen) sliceTypeFor(elem Type) *Struct {
	mangled := "Slice_GENOF_" + Mangle(elem) + "_GENEND_"
	if st, ok := g.sliceTypes[mangled]; ok {
		return st
	}
	g.buf.StructDefinitions.Line("typedef struct %s {", mangled)
	g.buf.StructDefinitions.Indent()
	g.buf.StructDefinitions.Line("%s;", cDeclaration(&Pointer{Inner: elem}, "ptr", false))
	g.buf.StructDefinitions.Line("size_t length;")
	g.buf.StructDefinitions.Dedent()
	g.buf.StructDefinitions.Line("} %s;", mangled)
	st := &Struct{
		FullName: mangled,
		BaseName: "Slice",
		Fields: map[string]StructField{
			"ptr":    {Type: &Pointer{Inner: elem}},
			"length": {Type: Usz},
		},
	}
	g.sliceTypes[mangled] = st
	return st
}
