package compiler

import (
	"fmt"
	"strings"

	"github.com/skyelang/skyec/ast"
)

// Monomorphize instantiates tmpl with the given generic arguments, emitting
// the concrete struct/function/enum declaration the first time a given
// (template, args) combination is requested and returning its Type on every
// subsequent request (spec §4.4.3). The mangled name doubles as the memo
// key, the same approach Mangle is built to support.
func (g *CodeGen) Monomorphize(tmpl *Template, args []Type, at ast.Pos) (Type, bool) {
	if len(args) != len(tmpl.Generics) {
		g.errorf(at, "template %q expects %d generic argument(s), got %d", tmpl.Name, len(tmpl.Generics), len(args))
		return Unknown{}, false
	}

	instEnv := tmpl.CapturedEnv.Child()
	for i, gen := range tmpl.Generics {
		bound := args[i]
		if gen.Bounds != nil {
			boundType, ok := g.EvalTypeExpr(instEnv, gen.Bounds)
			if ok && !IsRespectedBy(boundType, bound) {
				g.errorf(at, "type %s does not satisfy bound %s for generic %q", Stringify(bound), Stringify(boundType), gen.Name)
			}
		}
		instEnv.Define(gen.Name, Binding{Value: Value{Type: &TypeValue{Inner: bound}}})
	}

	mangledName := templateMangledName(tmpl, args)
	if strings.Contains(mangledName, "_UNKNOWN_") {
		// A failed inference already produced a diagnostic; emitting the
		// declaration would leak _UNKNOWN_ into the output text.
		return Unknown{}, false
	}

	if existing, ok := g.env.Root().Get(mangledName); ok {
		return unwrapTypeValue(existing.Value.Type), true
	}

	// Reserve the name before generating the body, so a recursive template
	// (a struct whose field type instantiates itself) terminates instead of
	// looping: subsequent lookups of the same instantiation see the
	// forward-declared Type immediately.
	placeholder := Binding{}
	g.env.Root().Define(mangledName, placeholder)

	renamed := renameDeclaration(tmpl.Definition, tmpl.Name, mangledName)
	instEnv.currentBaseName = tmpl.Name
	resultType, err := g.genMonomorphizedDeclaration(instEnv, renamed, tmpl.Name, mangledName)
	if err != nil {
		g.errorf(at, "%s", err.Error())
		return Unknown{}, false
	}

	g.env.Root().Define(mangledName, Binding{Value: Value{Type: &TypeValue{Inner: resultType}}})
	return resultType, true
}

// templateMangledName computes the deterministic instantiated name for tmpl
// applied to args (spec §8 Invariant 2: idempotent across calls), shared by
// Monomorphize (which registers the instantiation under it) and evalCall's
// template-call path (which needs it as the emitted C callee text without
// going through another env lookup).
func templateMangledName(tmpl *Template, args []Type) string {
	name := tmpl.Name
	for _, a := range args {
		name += "_GENOF_" + Mangle(a) + "_GENEND_"
	}
	return name
}

// renameDeclaration swaps a template's own name (as it appears in its
// Struct/Enum/Function node) for the mangled instantiation name, a purely
// textual substitution since ast.Statement carries names as plain strings.
// genMonomorphizedDeclaration emits renamed (an already-renamed copy of the
// template's Definition) and returns the resulting Type, tagged with
// baseName for Permissive equality between sibling instantiations.
func (g *CodeGen) genMonomorphizedDeclaration(instEnv *Environment, renamed ast.Statement, baseName, mangledName string) (Type, error) {
	instEnv.currentBaseName = baseName
	switch d := renamed.(type) {
	case *ast.Struct:
		if err := g.genStruct(instEnv, d); err != nil {
			return nil, err
		}
	case *ast.Enum:
		if err := g.genEnum(instEnv, d); err != nil {
			return nil, err
		}
	case *ast.Union:
		if err := g.genUnion(instEnv, d); err != nil {
			return nil, err
		}
	case *ast.Bitfield:
		if err := g.genBitfield(instEnv, d); err != nil {
			return nil, err
		}
	case *ast.Function:
		if err := g.genFunction(instEnv, d, ""); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("template body is not instantiable")
	}
	b, ok := instEnv.Root().Get(mangledName)
	if !ok {
		return nil, fmt.Errorf("internal error: %s not registered after instantiation", mangledName)
	}
	if tv, ok := b.Value.Type.(*TypeValue); ok {
		return tv.Inner, nil
	}
	return b.Value.Type, nil
}

func renameDeclaration(decl ast.Statement, from, to string) ast.Statement {
	switch d := decl.(type) {
	case *ast.Struct:
		cp := *d
		cp.Name = to
		return &cp
	case *ast.Enum:
		cp := *d
		cp.Name = to
		return &cp
	case *ast.Union:
		cp := *d
		cp.Name = to
		return &cp
	case *ast.Bitfield:
		cp := *d
		cp.Name = to
		return &cp
	case *ast.Function:
		cp := *d
		cp.Name = to
		return &cp
	default:
		return decl
	}
}
