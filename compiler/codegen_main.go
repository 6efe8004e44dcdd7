package compiler

import (
	"fmt"
	"strings"
)

// synthesizeEntry emits the `_SKYE_INIT` constructor (invoking every
// #init-qualified function, spec §6 output-layout item 6) and, when a
// top-level `main` was declared with a body, a synthesized platform
// `int main(...)` that dispatches to it. Run once, after every top-level
// declaration has been generated, so mainFunc/initFuncs are fully populated
// (spec §9 "global-scope ordered emission": this is the very last thing
// written, after every declaration it might reference).
func (g *CodeGen) synthesizeEntry() {
	init := g.buf.NewDefinition()
	init.Line("void _SKYE_INIT(void) {")
	init.Indent()
	for _, fn := range g.initFuncs {
		init.Line("%s();", fn)
	}
	init.Dedent()
	init.Line("}")

	if g.mainFunc == nil {
		return
	}
	g.emitSynthesizedMain(g.buf.NewDefinition(), g.mainFunc)
}

// emitSynthesizedMain picks one of the six signatures spec §6 names: the
// return dimension ({void, i32, Result<void,void>, Result<void,i32>},
// read off mainFunc.Return) crossed with the argument dimension ({no args,
// (argc, argv), Array<Slice<char>>}, read off mainFunc.Params' arity).
func (g *CodeGen) emitSynthesizedMain(w *cWriter, m *mainInfo) {
	w.Line("int main(int argc, char** argv) {")
	w.Indent()
	w.Line("_SKYE_INIT();")

	callArgs := g.mainCallArgs(w, m.Params)
	call := fmt.Sprintf("_SKYE_MAIN(%s)", callArgs)

	switch ret := m.Return.(type) {
	case Void:
		w.Line("%s;", call)
		w.Line("return 0;")
	case Primitive:
		if ret == I32 {
			w.Line("return %s;", call)
		} else {
			w.Line("%s;", call)
			w.Line("return 0;")
		}
	case *Enum:
		// Result<void,void> / Result<void,i32>: a sum-type enum whose
		// non-error variant (pickOkVariant, codegen_expr.go) carries either
		// no payload or an i32 exit code.
		okPayload, okVariant := pickOkVariant(ret)
		label := "_skye_main_result"
		w.Line("%s %s = %s;", cTypeName(ret), label, call)
		if _, isVoid := okPayload.(Void); isVoid {
			w.Line("return %s.tag == %s_%s ? 0 : 1;", label, ret.FullName, okVariant)
		} else {
			w.Line("if (%s.tag != %s_%s) return 1;", label, ret.FullName, okVariant)
			w.Line("return (int)%s.data.%s;", label, strings.ToLower(okVariant))
		}
	default:
		w.Line("%s;", call)
		w.Line("return 0;")
	}

	w.Dedent()
	w.Line("}")
}

// mainCallArgs writes whatever setup _SKYE_MAIN's argument shape needs into
// w and returns the C argument-list text for the call itself.
func (g *CodeGen) mainCallArgs(w *cWriter, params []FuncParam) string {
	switch len(params) {
	case 0:
		return ""
	case 2:
		// (i32 argc, **char argv) passed straight through.
		return "argc, argv"
	case 1:
		// Array<Slice<char>> (spec §6): built from the platform argv,
		// excluding argv[0] (the program name), using the same {.ptr,
		// .length} shape spec §4.4.1 gives every slice/array literal —
		// CodeGen never needs to know Slice<char>'s concrete field types
		// beyond that convention, so `sizeof(*_skye_args.ptr)` sizes each
		// element without naming it.
		g.buf.Include("stdlib.h", true)
		g.buf.Include("string.h", true)
		w.Line("%s _skye_args;", cTypeName(params[0].Type))
		w.Line("_skye_args.length = (size_t)(argc > 0 ? argc - 1 : 0);")
		w.Line("_skye_args.ptr = malloc(sizeof(*_skye_args.ptr) * _skye_args.length);")
		w.Line("for (size_t _skye_i = 0; _skye_i < _skye_args.length; _skye_i++) {")
		w.Indent()
		w.Line("_skye_args.ptr[_skye_i].ptr = argv[_skye_i + 1];")
		w.Line("_skye_args.ptr[_skye_i].length = strlen(argv[_skye_i + 1]);")
		w.Dedent()
		w.Line("}")
		return "_skye_args"
	default:
		return ""
	}
}
