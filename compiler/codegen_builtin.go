package compiler

import (
	"fmt"
	"strings"

	"github.com/skyelang/skyec/ast"
	"github.com/skyelang/skyec/diag"
)

// evalBuiltinMacroCall resolves one of the codegen builtins MacroExpander
// leaves unexpanded (macro.go's codegenBuiltins): `@format`/`@fprint`/
// `@fprintln` need a value's type to pick an emission strategy, `@typeOf`
// needs CanBeInstantiated, and `@cast`/`@constCast` need TypeModel
// castability — none of which MacroExpander has access to. Ported from
// skye_type.rs's codegen-time builtin dispatch (spec §4.4.4).
func (g *CodeGen) evalBuiltinMacroCall(env *Environment, name string, c *ast.Call) (Value, error) {
	switch name {
	case "@format":
		return g.evalFormatMacro(env, c, "pushString", false)
	case "@fprint":
		return g.evalFormatMacro(env, c, "write", false)
	case "@fprintln":
		return g.evalFormatMacro(env, c, "write", true)
	case "@typeOf":
		return g.evalTypeOfMacro(env, c)
	case "@cast":
		return g.evalCastMacro(env, c)
	case "@constCast":
		return g.evalConstCastMacro(env, c)
	default:
		return Value{}, fmt.Errorf("%s: unhandled builtin macro %q", c.ExprPos(), name)
	}
}

// formatChunk is one piece of a `@format`/`@fprint`/`@fprintln` literal: a
// run of plain text, or (expr==true) the identifier inside a `{...}`
// interpolation.
type formatChunk struct {
	text string
	expr bool
}

// splitFormatChunks performs the balanced-brace scan spec §4.4.4 describes,
// with `{{`/`}}` as escapes for a literal brace. This module has no lexer of
// its own (parsing is an external collaborator per spec §1), so an
// interpolated chunk is taken to be a bare identifier rather than a full
// re-lexed sub-expression — the common case, and the one every example in
// spec.md uses.
func splitFormatChunks(s string) []formatChunk {
	var chunks []formatChunk
	var buf strings.Builder
	r := []rune(s)
	flush := func() {
		if buf.Len() > 0 {
			chunks = append(chunks, formatChunk{text: buf.String()})
			buf.Reset()
		}
	}
	for i := 0; i < len(r); {
		switch r[i] {
		case '{':
			if i+1 < len(r) && r[i+1] == '{' {
				buf.WriteRune('{')
				i += 2
				continue
			}
			flush()
			j := i + 1
			for j < len(r) && r[j] != '}' {
				j++
			}
			chunks = append(chunks, formatChunk{text: strings.TrimSpace(string(r[i+1 : j])), expr: true})
			i = j + 1
		case '}':
			if i+1 < len(r) && r[i+1] == '}' {
				buf.WriteRune('}')
				i += 2
				continue
			}
			buf.WriteRune('}')
			i++
		default:
			buf.WriteRune(r[i])
			i++
		}
	}
	flush()
	return chunks
}

// evalFormatMacro implements `@format`/`@fprint`/`@fprintln`: its first
// argument is the destination (a string buffer for @format, a file handle
// for @fprint/@fprintln), its second the format-string literal. Every piece
// (literal text and resolved interpolation) is emitted as its own
// sinkFn(dest, piece) call inside a GNU statement expression, matching how
// evalTry/zeroCheck already splice statement-like control flow into a single
// expression fragment.
func (g *CodeGen) evalFormatMacro(env *Environment, c *ast.Call, sinkFn string, newline bool) (Value, error) {
	if len(c.Args) != 2 {
		g.errorf(c.ExprPos(), "%s expects exactly 2 arguments", formatMacroDisplayName(sinkFn, newline))
		return GetUnknown(), nil
	}
	dest, err := g.evalExpr(env, c.Args[0])
	if err != nil {
		return Value{}, err
	}
	lit, ok := c.Args[1].(*ast.Literal)
	if !ok || (lit.Kind != ast.LitStringCooked && lit.Kind != ast.LitStringRaw) {
		g.errorf(c.ExprPos(), "%s requires a string literal format argument", formatMacroDisplayName(sinkFn, newline))
		return GetUnknown(), nil
	}

	var stmts []string
	for _, chunk := range splitFormatChunks(lit.Value) {
		if !chunk.expr {
			stmts = append(stmts, fmt.Sprintf("%s(%s, %s);", sinkFn, dest.CValue, fmt.Sprintf("%q", chunk.text)))
			continue
		}
		v, err := g.evalExpr(env, &ast.Variable{BaseExpr: ast.BaseExpr{SourcePos: c.ExprPos()}, Name: chunk.text})
		if err != nil {
			return Value{}, err
		}
		piece, err := g.formatPiece(v, c.ExprPos())
		if err != nil {
			return Value{}, err
		}
		stmts = append(stmts, fmt.Sprintf("%s(%s, %s);", sinkFn, dest.CValue, piece))
	}
	if newline {
		stmts = append(stmts, fmt.Sprintf("%s(%s, %q);", sinkFn, dest.CValue, "\n"))
	}

	return Value{CValue: fmt.Sprintf("({ %s })", strings.Join(stmts, " ")), Type: Void{}}, nil
}

func formatMacroDisplayName(sinkFn string, newline bool) string {
	if sinkFn == "pushString" {
		return "@format"
	}
	if newline {
		return "@fprintln"
	}
	return "@fprint"
}

// formatPiece dispatches a single interpolated value to the runtime
// conversion spec §4.4.4 names: numeric types go through intToBuf/floatToBuf,
// a string-slice passes through untouched, a lone char is wrapped into a
// one-element slice, and anything else must supply an asString or toString
// method.
func (g *CodeGen) formatPiece(v Value, at ast.Pos) (string, error) {
	t := Finalize(v.Type)
	switch p, isPrim := t.(Primitive); {
	case isPrim && p.IsInt():
		return fmt.Sprintf("intToBuf(%s)", v.CValue), nil
	case isPrim && p.IsFloat():
		return fmt.Sprintf("floatToBuf(%s)", v.CValue), nil
	case isPrim && p == Char:
		return fmt.Sprintf("((char[]){%s})", v.CValue), nil
	}
	if ptr, isPtr := t.(*Pointer); isPtr {
		if ch, ok := ptr.Inner.(Primitive); ok && ch == Char {
			return v.CValue, nil
		}
	}
	if st, isStruct := t.(*Struct); isStruct && st.FullName == "String" {
		return v.CValue, nil
	}
	for _, name := range []string{"asString", "toString"} {
		b, selfVal, found := GetMethod(g.env, v, name, false)
		if !found {
			continue
		}
		if _, isFn := b.Value.Type.(*Function); isFn {
			return fmt.Sprintf("%s_DOT_%s(%s)", typeQualifierName(selfVal.Type), name, selfVal.CValue), nil
		}
	}
	g.errorf(at, "%s has no string conversion (asString/toString) for @format/@fprint", Stringify(v.Type))
	return "", nil
}

// evalTypeOfMacro implements `@typeOf(x)`: fails on any value with no
// runtime type, the same CanBeInstantiated(asType=false) predicate that
// rejects Void/Type/Namespace/Template/Macro/Group values elsewhere.
func (g *CodeGen) evalTypeOfMacro(env *Environment, c *ast.Call) (Value, error) {
	if len(c.Args) != 1 {
		g.errorf(c.ExprPos(), "@typeOf expects exactly 1 argument")
		return GetUnknown(), nil
	}
	v, err := g.evalExpr(env, c.Args[0])
	if err != nil {
		return Value{}, err
	}
	if !CanBeInstantiated(v.Type, false) {
		g.errorf(c.ExprPos(), "%s has no runtime type", Stringify(v.Type))
		return GetUnknown(), nil
	}
	return Value{Type: &TypeValue{Inner: Finalize(v.Type)}}, nil
}

// evalCastMacro implements `@cast(T, e)`. Before falling back to ordinary
// TypeModel castability it checks for sum-type injection: casting a value
// whose type matches one of T's variant payloads directly into that variant
// of T (spec's "Enum::Variant(e)" shorthand), the construct the Scenario 5
// cast round-trip test relies on.
func (g *CodeGen) evalCastMacro(env *Environment, c *ast.Call) (Value, error) {
	if len(c.Args) != 2 {
		g.errorf(c.ExprPos(), "@cast expects exactly 2 arguments")
		return GetUnknown(), nil
	}
	target, ok := g.EvalTypeExpr(env, c.Args[0])
	if !ok {
		return GetUnknown(), nil
	}
	val, err := g.evalExpr(env, c.Args[1])
	if err != nil {
		return Value{}, err
	}

	if en, isEnum := target.(*Enum); isEnum && en.Variants != nil && !Equals(val.Type, target, Typewise) {
		if cv, ok := injectIntoVariant(en, val); ok {
			return Value{CValue: cv, Type: target}, nil
		}
	}

	how := IsCastableTo(val.Type, target)
	if how == CastNo {
		g.errorf(c.ExprPos(), "cannot cast %s to %s", Stringify(val.Type), Stringify(target))
		return GetUnknown(), nil
	}
	if how == CastConstnessLoss {
		diag.Warnf(g.sink, c.ExprPos(), "%s: cast from %s to %s discards const; use @constCast if intentional", diag.KindConstnessLoss, Stringify(val.Type), Stringify(target))
	}
	return Value{CValue: fmt.Sprintf("((%s)%s)", cTypeName(target), val.CValue), Type: target}, nil
}

// injectIntoVariant builds a compound literal tagging val as the variant of
// en whose payload type matches val.Type, mirroring the tag/data layout
// genEnum emits (enum { Name_Variant, ... } tag; union { ... } data;).
func injectIntoVariant(en *Enum, val Value) (string, bool) {
	for name, payload := range en.Variants {
		if _, isVoid := payload.(Void); isVoid {
			continue
		}
		if !Equals(Finalize(val.Type), payload, Typewise) {
			continue
		}
		return fmt.Sprintf("((%s){ .tag = %s_%s, .data = { .%s = %s } })",
			en.FullName, en.FullName, name, strings.ToLower(name), val.CValue), true
	}
	return "", false
}

// evalConstCastMacro implements `@constCast(p)`: drops const from a
// non-reference pointer only, per spec §4.4.4.
func (g *CodeGen) evalConstCastMacro(env *Environment, c *ast.Call) (Value, error) {
	if len(c.Args) != 1 {
		g.errorf(c.ExprPos(), "@constCast expects exactly 1 argument")
		return GetUnknown(), nil
	}
	val, err := g.evalExpr(env, c.Args[0])
	if err != nil {
		return Value{}, err
	}
	p, isPtr := val.Type.(*Pointer)
	if !isPtr || p.IsReference {
		g.errorf(c.ExprPos(), "@constCast requires a non-reference pointer argument")
		return GetUnknown(), nil
	}
	result := &Pointer{Inner: p.Inner}
	return Value{CValue: fmt.Sprintf("((%s)%s)", cTypeName(result), val.CValue), Type: result}, nil
}
