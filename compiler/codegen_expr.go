package compiler

import (
	"fmt"
	"strings"

	"github.com/skyelang/skyec/ast"
	"github.com/skyelang/skyec/diag"
)

// evalExpr lowers an already-macro-expanded expression into a Value
// (C-text fragment + Type), the counterpart of the teacher's
// exprString(e ast.Expr) (string, error) (compiler/codegen.go), generalized
// to carry a Type alongside the text so operator/cast/field resolution has
// something to dispatch on.
func (g *CodeGen) evalExpr(env *Environment, e ast.Expr) (Value, error) {
	switch expr := e.(type) {
	case *ast.Literal:
		return g.evalLiteral(expr)
	case *ast.Variable:
		return g.evalVariable(env, expr)
	case *ast.Grouping:
		inner, err := g.evalExpr(env, expr.Inner)
		if err != nil {
			return Value{}, err
		}
		return Value{CValue: "(" + inner.CValue + ")", Type: inner.Type, IsConst: inner.IsConst}, nil
	case *ast.Unary:
		return g.evalUnary(env, expr)
	case *ast.Binary:
		return g.evalBinary(env, expr)
	case *ast.Assign:
		return g.evalAssign(env, expr)
	case *ast.Ternary:
		cond, err := g.evalExpr(env, expr.Condition)
		if err != nil {
			return Value{}, err
		}
		then, err := g.evalExpr(env, expr.Then)
		if err != nil {
			return Value{}, err
		}
		els, err := g.evalExpr(env, expr.Else)
		if err != nil {
			return Value{}, err
		}
		return Value{CValue: fmt.Sprintf("(%s ? %s : %s)", cond.CValue, then.CValue, els.CValue), Type: Finalize(then.Type)}, nil
	case *ast.Call:
		return g.evalCall(env, expr)
	case *ast.Subscript:
		return g.evalSubscript(env, expr)
	case *ast.Get:
		return g.evalGet(env, expr)
	case *ast.StaticGet:
		return g.evalStaticGet(env, expr)
	case *ast.Slice:
		return g.evalSlice(env, expr)
	case *ast.ArrayLiteral:
		return g.evalArrayLiteral(env, expr)
	case *ast.CompoundLiteral:
		return g.evalCompoundLiteral(env, expr)
	case *ast.InMacro:
		v, err := g.evalExpr(env, expr.Inner)
		return v, err
	case *ast.MacroExpandedStatements:
		return g.evalMacroExpandedStatements(env, expr)
	case *ast.FnPtr:
		t, _ := g.EvalTypeExpr(env, expr)
		return Value{Type: &TypeValue{Inner: t}}, nil
	default:
		return Value{}, fmt.Errorf("%s: unsupported expression", e.ExprPos())
	}
}

func (g *CodeGen) evalLiteral(lit *ast.Literal) (Value, error) {
	switch lit.Kind {
	case ast.LitSignedInt:
		t := Type(AnyInt)
		if lit.Bits != 0 {
			t = bitsToInt(lit.Bits)
		}
		return Value{CValue: lit.Value, Type: t, IsConst: true}, nil
	case ast.LitUnsignedInt:
		t := Type(AnyInt)
		if lit.Bits != 0 {
			t = bitsToUint(lit.Bits)
		}
		return Value{CValue: lit.Value + "u", Type: t, IsConst: true}, nil
	case ast.LitFloat:
		t := Type(AnyFloat)
		if lit.Bits == 64 {
			t = F64
		} else if lit.Bits == 32 {
			t = F32
		}
		return Value{CValue: lit.Value, Type: t, IsConst: true}, nil
	case ast.LitChar:
		return Value{CValue: "'" + lit.Value + "'", Type: Char, IsConst: true}, nil
	case ast.LitStringRaw:
		return Value{CValue: fmt.Sprintf("%q", lit.Value), Type: &Pointer{Inner: Char, IsConst: true}, IsConst: true}, nil
	case ast.LitStringCooked:
		name := g.buf.InternString(lit.Value)
		cv := fmt.Sprintf("((String){ .ptr = %s, .length = %d })", name, len(lit.Value))
		return Value{CValue: cv, Type: stringType(), IsConst: true}, nil
	case ast.LitBool:
		v := "false"
		if lit.Value == "true" {
			v = "true"
		}
		return Value{CValue: v, Type: U8, IsConst: true}, nil
	case ast.LitVoid:
		return Value{CValue: "", Type: Void{}, IsConst: true}, nil
	default:
		return Value{}, fmt.Errorf("unknown literal kind")
	}
}

func bitsToInt(bits int) Type {
	switch bits {
	case 8:
		return I8
	case 16:
		return I16
	case 64:
		return I64
	default:
		return I32
	}
}

func bitsToUint(bits int) Type {
	switch bits {
	case 8:
		return U8
	case 16:
		return U16
	case 64:
		return U64
	default:
		return U32
	}
}

func (g *CodeGen) evalVariable(env *Environment, v *ast.Variable) (Value, error) {
	b, ok := env.Get(v.Name)
	if !ok {
		g.errorf(v.ExprPos(), "undefined variable %q", v.Name)
		return GetUnknown(), nil
	}
	return b.Value, nil
}

func (g *CodeGen) evalUnary(env *Environment, u *ast.Unary) (Value, error) {
	operand, err := g.evalExpr(env, u.Operand)
	if err != nil {
		return Value{}, err
	}
	if tv, isTypeVal := operand.Type.(*TypeValue); isTypeVal {
		return g.evalUnaryOnType(env, u, tv.Inner)
	}
	switch u.Op {
	case "&":
		return operand.toRef(false), nil
	case "&const":
		return operand.toRef(true), nil
	case "*":
		p, isPtr := operand.Type.(*Pointer)
		if !isPtr {
			if v, ok := g.evalUnaryOperatorCall(env, operand, OpDeref, u.ExprPos()); ok {
				return v, nil
			}
			g.errorf(u.ExprPos(), "cannot dereference non-pointer type %s", Stringify(operand.Type))
			return GetUnknown(), nil
		}
		cv := operand.CValue
		if g.opts.Mode == Debug {
			cv = g.zeroCheck(cv)
		}
		return Value{CValue: "(*" + cv + ")", Type: p.Inner, IsConst: p.IsConst}, nil
	case "*const":
		p, isPtr := operand.Type.(*Pointer)
		if !isPtr {
			if v, ok := g.evalUnaryOperatorCall(env, operand, OpConstDeref, u.ExprPos()); ok {
				return v, nil
			}
			g.errorf(u.ExprPos(), "cannot dereference non-pointer type %s", Stringify(operand.Type))
			return GetUnknown(), nil
		}
		return Value{CValue: "(*" + operand.CValue + ")", Type: p.Inner, IsConst: true}, nil
	case "!":
		if v, ok := g.evalUnaryOperatorCall(env, operand, OpNot, u.ExprPos()); ok {
			return v, nil
		}
		return Value{CValue: "(!" + operand.CValue + ")", Type: U8}, nil
	case "-":
		if v, ok := g.evalUnaryOperatorCall(env, operand, OpNeg, u.ExprPos()); ok {
			return v, nil
		}
		return Value{CValue: "(-" + operand.CValue + ")", Type: operand.Type}, nil
	case "~":
		if v, ok := g.evalUnaryOperatorCall(env, operand, OpInv, u.ExprPos()); ok {
			return v, nil
		}
		return Value{CValue: "(~" + operand.CValue + ")", Type: operand.Type}, nil
	case "++":
		if v, ok := g.evalUnaryOperatorCall(env, operand, OpInc, u.ExprPos()); ok {
			return v, nil
		}
		if u.IsPrefix {
			return Value{CValue: "(++" + operand.CValue + ")", Type: operand.Type}, nil
		}
		return Value{CValue: "(" + operand.CValue + "++)", Type: operand.Type}, nil
	case "--":
		if v, ok := g.evalUnaryOperatorCall(env, operand, OpDec, u.ExprPos()); ok {
			return v, nil
		}
		if u.IsPrefix {
			return Value{CValue: "(--" + operand.CValue + ")", Type: operand.Type}, nil
		}
		return Value{CValue: "(" + operand.CValue + "--)", Type: operand.Type}, nil
	case "try":
		return g.evalTry(env, operand, u.ExprPos())
	case "?":
		return operand, nil
	default:
		return Value{}, fmt.Errorf("%s: unsupported unary operator %q", u.ExprPos(), u.Op)
	}
}

// evalUnaryOnType handles a unary operator whose operand is a first-class
// type value: `&`/`*` (and const forms) construct pointer types, `?`/`!`
// desugar to Option/Result instantiations (spec §4.4.1 "Unary ? / !").
func (g *CodeGen) evalUnaryOnType(env *Environment, u *ast.Unary, inner Type) (Value, error) {
	wrap := func(t Type) (Value, error) {
		return Value{Type: &TypeValue{Inner: t}}, nil
	}
	switch u.Op {
	case "&":
		return wrap(&Pointer{Inner: inner, IsReference: true})
	case "&const":
		return wrap(&Pointer{Inner: inner, IsReference: true, IsConst: true})
	case "*":
		return wrap(&Pointer{Inner: inner})
	case "*const":
		return wrap(&Pointer{Inner: inner, IsConst: true})
	case "?":
		return wrap(g.stdSumType(env, "Option", []Type{inner}, u.ExprPos()))
	case "!":
		// `!T` is a Result whose success payload is T and whose error
		// payload defaults to void (the `!void` return shape of spec §6's
		// synthesized-main signatures).
		return wrap(g.stdSumType(env, "Result", []Type{Void{}, inner}, u.ExprPos()))
	default:
		g.errorf(u.ExprPos(), "operator %q cannot apply to a type", u.Op)
		return GetUnknown(), nil
	}
}

// stdSumType instantiates the library template name (Option/Result) with
// args. The template must be in scope — the spec desugars `?`/`!` to
// subscripts over these names rather than defining builtin equivalents.
func (g *CodeGen) stdSumType(env *Environment, name string, args []Type, at ast.Pos) Type {
	b, ok := env.Get(name)
	if !ok {
		g.errorf(at, "%s is not defined; import the core library to use ?/! sugar", name)
		return Unknown{Name: name}
	}
	tmpl, isTemplate := unwrapTypeValue(b.Value.Type).(*Template)
	if !isTemplate {
		return unwrapTypeValue(b.Value.Type)
	}
	t, ok := g.Monomorphize(tmpl, args, at)
	if !ok {
		return Unknown{Name: name}
	}
	return t
}

// evalUnaryOperatorCall dispatches a unary operator on a struct/enum operand
// to its __neg__-style method, reporting whether the operand's type routes
// this operator through ThirdParty dispatch at all (a false return means the
// caller should fall back to the native lowering or its own error).
func (g *CodeGen) evalUnaryOperatorCall(env *Environment, operand Value, op Operator, at ast.Pos) (Value, bool) {
	switch operand.Type.(type) {
	case *Struct, *Enum:
	default:
		return Value{}, false
	}
	if res := ImplementsOp(operand.Type, op); res.How != ImplementsThirdParty {
		return Value{}, false
	}
	b, selfVal, found := GetMethod(env, operand, op.MethodName(), false)
	if !found {
		return Value{}, false
	}
	fnType, isFn := b.Value.Type.(*Function)
	if !isFn {
		return Value{}, false
	}
	wantRef, wantConst := false, false
	if len(fnType.Params) > 0 {
		if p, ok := fnType.Params[0].Type.(*Pointer); ok {
			wantRef, wantConst = p.IsReference, p.IsConst
		}
	}
	arg := GetSelf(selfVal, wantRef, wantConst)
	cv := fmt.Sprintf("%s_DOT_%s(%s)", typeQualifierName(selfVal.Type), op.MethodName(), arg.CValue)
	ret := fnType.Return
	// A deref-family method returns a pointer to the element; the operator's
	// result is the pointee (spec §4.4.1 Subscript/deref dispatch).
	if op == OpDeref || op == OpConstDeref {
		if p, isPtr := ret.(*Pointer); isPtr {
			return Value{CValue: "(*" + cv + ")", Type: p.Inner, IsConst: p.IsConst || op == OpConstDeref}, true
		}
	}
	return Value{CValue: cv, Type: ret}, true
}

func (g *CodeGen) zeroCheckFn() ZeroCheck {
	if g.opts.Mode != Debug {
		return nil
	}
	return g.zeroCheck
}

// evalTry implements `try expr` sum-type error propagation (spec §4.4.1):
// expr must evaluate to a sum-type Enum, inside a function whose return type
// is itself a compatible sum-type Enum. On the error-like tag, every open
// defer/destructor frame flushes (the whole scope chain, same as Return)
// before the propagation return; on success the expression unwraps to its
// payload.
func (g *CodeGen) evalTry(env *Environment, v Value, at ast.Pos) (Value, error) {
	en, ok := v.Type.(*Enum)
	if !ok || !en.IsSumType() {
		g.errorf(at, "try requires a sum-type enum expression, got %s", Stringify(v.Type))
		return GetUnknown(), nil
	}
	retEnum, ok := g.fnRet.(*Enum)
	if !ok || !retEnum.IsSumType() {
		g.errorf(at, "try is only valid in a function returning a sum-type enum")
		return GetUnknown(), nil
	}

	label := g.newLabel("try")
	okPayload, okVariant := pickOkVariant(en)
	propagate, ok := g.tryPropagationValue(en, retEnum, label, at)
	if !ok {
		return GetUnknown(), nil
	}

	unwind := g.cur.Capture(func() {
		_ = g.unwindFramesFrom(0)
	})
	unwind = strings.TrimSpace(strings.ReplaceAll(unwind, "\n", " "))
	if unwind != "" {
		unwind += " "
	}

	cv := fmt.Sprintf("({ %s %s = (%s); if (%s.tag != %s_%s) { %sreturn %s; } %s.data.%s; })",
		cTypeName(en), label, v.CValue, label, en.FullName, okVariant, unwind, propagate, label, strings.ToLower(okVariant))
	return Value{CValue: cv, Type: okPayload}, nil
}

// tryPropagationValue builds the C expression a failing `try` returns. The
// simple case is a function whose return type is the tried enum itself (the
// tagged value flows through unchanged); otherwise the error payload must
// re-tag into the return enum's own error variant, and the payload shapes
// must agree (spec §4.4.1 "Payload-shape compatibility ... is enforced").
func (g *CodeGen) tryPropagationValue(from, into *Enum, label string, at ast.Pos) (string, bool) {
	if Equals(from, into, Typewise) {
		return label, true
	}
	fromPayload, fromVariant := pickErrVariant(from)
	intoPayload, intoVariant := pickErrVariant(into)
	if fromVariant == "" || intoVariant == "" {
		g.errorf(at, "try cannot propagate %s into %s: no error variant", Stringify(from), Stringify(into))
		return "", false
	}
	if !Equals(fromPayload, intoPayload, Typewise) {
		g.errorf(at, "try cannot propagate error payload %s into %s", Stringify(fromPayload), Stringify(intoPayload))
		return "", false
	}
	if _, isVoid := intoPayload.(Void); isVoid {
		return fmt.Sprintf("((%s){ .tag = %s_%s })", into.FullName, into.FullName, intoVariant), true
	}
	return fmt.Sprintf("((%s){ .tag = %s_%s, .data = { .%s = %s.data.%s } })",
		into.FullName, into.FullName, intoVariant, strings.ToLower(intoVariant), label, strings.ToLower(fromVariant)), true
}

func pickOkVariant(en *Enum) (Type, string) {
	for name, t := range en.Variants {
		if !isErrVariantName(name) {
			return t, name
		}
	}
	for name, t := range en.Variants {
		return t, name
	}
	return Void{}, ""
}

func pickErrVariant(en *Enum) (Type, string) {
	for name, t := range en.Variants {
		if isErrVariantName(name) {
			return t, name
		}
	}
	return Void{}, ""
}

func isErrVariantName(name string) bool {
	return strings.EqualFold(name, "Error") || strings.EqualFold(name, "Err") || strings.EqualFold(name, "None")
}

func (g *CodeGen) evalBinary(env *Environment, b *ast.Binary) (Value, error) {
	left, err := g.evalExpr(env, b.Left)
	if err != nil {
		return Value{}, err
	}
	right, err := g.evalExpr(env, b.Right)
	if err != nil {
		return Value{}, err
	}
	left = left.FollowReference(g.zeroCheckFn())
	right = right.FollowReference(g.zeroCheckFn())

	// Equality on two first-class type values resolves at compile time
	// (spec §4.4.1): the emitted text is a plain 1 or 0.
	if IsType(left.Type) && IsType(right.Type) && (b.Op == "==" || b.Op == "!=") {
		same := Equals(left.Type, right.Type, Typewise)
		folded := "0"
		if same == (b.Op == "==") {
			folded = "1"
		}
		return Value{CValue: folded, Type: U8, IsConst: true}, nil
	}

	if st, ok := left.Type.(*Struct); ok {
		if op, isOp := binaryOperatorOf(b.Op); isOp {
			if res := ImplementsOp(st, op); res.How == ImplementsThirdParty {
				return g.evalOperatorCall(env, left, right, op, b.ExprPos())
			}
		}
	}
	if en, ok := left.Type.(*Enum); ok {
		if op, isOp := binaryOperatorOf(b.Op); isOp {
			if res := ImplementsOp(en, op); res.How == ImplementsThirdParty {
				return g.evalOperatorCall(env, left, right, op, b.ExprPos())
			}
		}
	}

	lp, leftIsPrim := left.Type.(Primitive)
	_, rightIsPrim := right.Type.(Primitive)
	if leftIsPrim && rightIsPrim && !Equals(left.Type, right.Type, Typewise) {
		g.errorf(b.ExprPos(), "operand type mismatch: %s %s %s", Stringify(left.Type), b.Op, Stringify(right.Type))
		return GetUnknown(), nil
	}

	resultType := left.Type
	if Equals(left.Type, right.Type, Typewise) {
		resultType = Finalize(left.Type)
		if leftIsPrim && (lp == AnyInt || lp == AnyFloat) {
			// A concrete right operand wins over the literal's "any" kind.
			resultType = Finalize(right.Type)
		}
	}
	switch b.Op {
	case "==", "!=", "<", "<=", ">", ">=", "&&", "||":
		resultType = U8
	}

	rightText := right.CValue
	if (b.Op == "/" || b.Op == "%") && leftIsPrim {
		rightText = g.divZeroCheck(rightText)
	}
	return Value{CValue: fmt.Sprintf("(%s %s %s)", left.CValue, b.Op, rightText), Type: resultType}, nil
}

func binaryOperatorOf(op string) (Operator, bool) {
	switch op {
	case "+":
		return OpAdd, true
	case "-":
		return OpSub, true
	case "*":
		return OpMul, true
	case "/":
		return OpDiv, true
	case "%":
		return OpMod, true
	case "==":
		return OpEq, true
	case "!=":
		return OpNe, true
	case ">":
		return OpGt, true
	case ">=":
		return OpGe, true
	case "<":
		return OpLt, true
	case "<=":
		return OpLe, true
	default:
		return 0, false
	}
}

func (g *CodeGen) evalOperatorCall(env *Environment, left, right Value, op Operator, at ast.Pos) (Value, error) {
	b, selfVal, found := GetMethod(env, left, op.MethodName(), false)
	if !found {
		g.errorf(at, "type %s does not implement operator %s", Stringify(left.Type), op.MethodName())
		return GetUnknown(), nil
	}
	fnType, ok := b.Value.Type.(*Function)
	if !ok {
		return GetUnknown(), nil
	}
	wantRef, wantConst := false, false
	if len(fnType.Params) > 0 {
		if p, isPtr := fnType.Params[0].Type.(*Pointer); isPtr {
			wantRef, wantConst = p.IsReference, p.IsConst
		}
	}
	self := GetSelf(selfVal, wantRef, wantConst)
	return Value{CValue: fmt.Sprintf("%s_DOT_%s(%s, %s)", typeQualifierName(selfVal.Type), op.MethodName(), self.CValue, right.CValue), Type: fnType.Return}, nil
}

func (g *CodeGen) evalAssign(env *Environment, a *ast.Assign) (Value, error) {
	target, err := g.evalExpr(env, a.Target)
	if err != nil {
		return Value{}, err
	}
	value, err := g.evalExpr(env, a.Value)
	if err != nil {
		return Value{}, err
	}
	if target.IsConst {
		g.errorf(a.ExprPos(), "cannot assign to const binding")
	}
	if !Equals(target.Type, value.Type, Strict) {
		g.errorf(a.ExprPos(), "cannot assign %s to %s", Stringify(value.Type), Stringify(target.Type))
	}
	return Value{CValue: fmt.Sprintf("(%s %s %s)", target.CValue, a.Op, value.CValue), Type: target.Type}, nil
}

func (g *CodeGen) evalSubscript(env *Environment, s *ast.Subscript) (Value, error) {
	obj, err := g.evalExpr(env, s.Object)
	if err != nil {
		return Value{}, err
	}
	if IsType(obj.Type) {
		t, ok := g.evalGenericSubscriptType(env, s)
		if !ok {
			return GetUnknown(), nil
		}
		return Value{Type: &TypeValue{Inner: t}}, nil
	}
	if len(s.Args) != 1 {
		g.errorf(s.ExprPos(), "subscript expects exactly one index")
		return GetUnknown(), nil
	}
	idx, err := g.evalExpr(env, s.Args[0])
	if err != nil {
		return Value{}, err
	}
	obj = obj.FollowReference(g.zeroCheckFn())
	if p, isPtr := obj.Type.(*Pointer); isPtr {
		return Value{CValue: fmt.Sprintf("%s[%s]", obj.CValue, idx.CValue), Type: p.Inner, IsConst: p.IsConst}, nil
	}
	if v, ok := g.evalSubscriptMethod(env, obj, idx, s.ExprPos()); ok {
		return v, nil
	}
	g.errorf(s.ExprPos(), "type %s does not support subscript", Stringify(obj.Type))
	return GetUnknown(), nil
}

// evalSubscriptMethod dispatches `obj[idx]` on a struct operand to
// __subscript__ (or __constsubscript__ when the operand is const), then
// dereferences the pointer the method returns — the method yields a slot
// address so the same dispatch serves reads and writes (spec §4.4.1
// Subscript).
func (g *CodeGen) evalSubscriptMethod(env *Environment, obj, idx Value, at ast.Pos) (Value, bool) {
	if _, isStruct := obj.Type.(*Struct); !isStruct {
		return Value{}, false
	}
	name := "__subscript__"
	if obj.IsConst {
		name = "__constsubscript__"
	}
	b, selfVal, found := GetMethod(env, obj, name, false)
	if !found {
		return Value{}, false
	}
	fnType, isFn := b.Value.Type.(*Function)
	if !isFn {
		return Value{}, false
	}
	wantRef, wantConst := false, obj.IsConst
	if len(fnType.Params) > 0 {
		if p, ok := fnType.Params[0].Type.(*Pointer); ok {
			wantRef, wantConst = p.IsReference, p.IsConst
		}
	}
	self := GetSelf(selfVal, wantRef, wantConst)
	cv := fmt.Sprintf("%s_DOT_%s(%s, %s)", typeQualifierName(selfVal.Type), name, self.CValue, idx.CValue)
	if p, isPtr := fnType.Return.(*Pointer); isPtr {
		return Value{CValue: "(*" + cv + ")", Type: p.Inner, IsConst: p.IsConst || obj.IsConst}, true
	}
	return Value{CValue: cv, Type: fnType.Return}, true
}

func (g *CodeGen) evalGet(env *Environment, get *ast.Get) (Value, error) {
	obj, err := g.evalExpr(env, get.Object)
	if err != nil {
		return Value{}, err
	}
	if _, isUnknown := obj.Type.(Unknown); isUnknown {
		// The operand already failed to resolve and reported; don't cascade.
		return GetUnknown(), nil
	}
	v, outcome := Get(obj, get.Name, g.zeroCheckFn())
	switch outcome {
	case GetOk:
		return v, nil
	case GetInvalidType:
		g.errorf(get.ExprPos(), "type %s has no members", Stringify(obj.Type))
		return GetUnknown(), nil
	}
	// FieldNotFound may still resolve as a method on the same receiver.
	if b, selfVal, ok := GetMethod(env, obj, get.Name, false); ok {
		if fnType, ok := b.Value.Type.(*Function); ok {
			return Value{CValue: fmt.Sprintf("%s_DOT_%s", typeQualifierName(selfVal.Type), get.Name), Type: fnType}.WithSelfInfo(selfVal.CValue, selfVal.Type, ""), nil
		}
	}
	g.errorf(get.ExprPos(), "no member %q in %s", get.Name, Stringify(obj.Type))
	return GetUnknown(), nil
}

func (g *CodeGen) evalStaticGet(env *Environment, sg *ast.StaticGet) (Value, error) {
	obj, err := g.evalExpr(env, sg.Object)
	if err != nil {
		return Value{}, err
	}
	var t Type = obj.Type
	if tv, ok := obj.Type.(*TypeValue); ok {
		t = tv.Inner
	}
	if en, isEnum := t.(*Enum); isEnum {
		if payload, isVariant := en.Variants[sg.Name]; isVariant {
			if _, isVoid := payload.(Void); isVoid {
				if en.IsSumType() {
					// A void variant of a sum type is a ready-made tagged
					// value; a tag-only enum's variant is its bare C tag.
					return Value{CValue: fmt.Sprintf("((%s){ .tag = %s_%s })", en.FullName, en.FullName, sg.Name), Type: en, IsConst: true}, nil
				}
				return Value{CValue: fmt.Sprintf("%s_%s", en.FullName, sg.Name), Type: en, IsConst: true}, nil
			}
			// A payload variant resolves to its generated constructor
			// function (genEnum registers Name_DOT_Variant), so
			// `E::A(7)` evaluates like any other call.
		}
	}
	b, ok := StaticGet(env, t, sg.Name)
	if !ok {
		g.errorf(sg.ExprPos(), "no static member %q in %s", sg.Name, Stringify(t))
		return GetUnknown(), nil
	}
	return b.Value, nil
}

// evalSlice materializes `[a, b, ...]` as a temporary typed array wrapped in
// a `{.ptr, .length}` view (spec §4.4.1). The element type is inferred from
// the first item; every subsequent item must match it strictly.
func (g *CodeGen) evalSlice(env *Environment, s *ast.Slice) (Value, error) {
	texts, elemType, err := g.evalElementList(env, s.Items, s.ExprPos())
	if err != nil {
		return Value{}, err
	}
	st := g.sliceTypeFor(elemType)
	arr := fmt.Sprintf("((%s[]){%s})", cTypeName(elemType), strings.Join(texts, ", "))
	cv := fmt.Sprintf("((%s){ .ptr = %s, .length = %d })", st.FullName, arr, len(texts))
	return Value{CValue: cv, Type: st}, nil
}

func (g *CodeGen) evalArrayLiteral(env *Environment, a *ast.ArrayLiteral) (Value, error) {
	texts, elemType, err := g.evalElementList(env, a.Items, a.ExprPos())
	if err != nil {
		return Value{}, err
	}
	cv := fmt.Sprintf("((%s[]){%s})", cTypeName(elemType), strings.Join(texts, ", "))
	return Value{CValue: cv, Type: &Pointer{Inner: elemType}}, nil
}

// evalElementList evaluates a slice/array literal's items left to right,
// taking the first item's finalized type as the element type and rejecting
// any later item that doesn't match it strictly.
func (g *CodeGen) evalElementList(env *Environment, items []ast.Expr, at ast.Pos) ([]string, Type, error) {
	texts := make([]string, len(items))
	var elemType Type = Unknown{}
	for i, it := range items {
		v, err := g.evalExpr(env, it)
		if err != nil {
			return nil, nil, err
		}
		texts[i] = v.CValue
		if i == 0 {
			elemType = Finalize(v.Type)
			continue
		}
		if !Equals(elemType, v.Type, Strict) {
			g.errorf(it.ExprPos(), "element type mismatch: expected %s, got %s", Stringify(elemType), Stringify(v.Type))
		}
	}
	return texts, elemType, nil
}

// evalCompoundLiteral lowers `Type{field: value, ...}`. Field names and
// value types are validated against the target's definition; a Template
// target first infers its generics from the field expressions' types, then
// monomorphizes, so `Box{value: 42}` works without spelling `Box[i32]`
// (spec §4.4.1 Compound literal).
func (g *CodeGen) evalCompoundLiteral(env *Environment, c *ast.CompoundLiteral) (Value, error) {
	t, ok := g.EvalTypeExpr(env, c.Type)
	if !ok {
		return GetUnknown(), nil
	}

	vals := make([]Value, len(c.Fields))
	for i, f := range c.Fields {
		v, err := g.evalExpr(env, f.Expr)
		if err != nil {
			return Value{}, err
		}
		vals[i] = v
	}

	if tmpl, isTemplate := t.(*Template); isTemplate {
		t, ok = g.inferTemplateFromFields(env, tmpl, c, vals)
		if !ok {
			return GetUnknown(), nil
		}
	}

	var fields []string
	for i, f := range c.Fields {
		g.checkCompoundField(t, f.Name, vals[i].Type, c.ExprPos())
		fields = append(fields, fmt.Sprintf(".%s = %s", f.Name, vals[i].CValue))
	}
	cv := fmt.Sprintf("((%s){%s})", cTypeName(t), strings.Join(fields, ", "))
	return Value{CValue: cv, Type: t}, nil
}

// checkCompoundField validates one `name: value` pair of a compound literal
// against the target aggregate's declared member of that name.
func (g *CodeGen) checkCompoundField(t Type, name string, valType Type, at ast.Pos) {
	var declared Type
	switch tv := t.(type) {
	case *Struct:
		if tv.Fields == nil {
			return // forward-declared; genStruct already reported elsewhere
		}
		f, ok := tv.Fields[name]
		if !ok {
			g.errorf(at, "no field %q in %s", name, Stringify(t))
			return
		}
		declared = f.Type
	case *Union:
		ft, ok := tv.Fields[name]
		if !ok {
			g.errorf(at, "no field %q in %s", name, Stringify(t))
			return
		}
		declared = ft
	case *Bitfield:
		ft, ok := tv.Fields[name]
		if !ok {
			g.errorf(at, "no field %q in %s", name, Stringify(t))
			return
		}
		declared = ft
	default:
		g.errorf(at, "%s is not a struct, union or bitfield", Stringify(t))
		return
	}
	if !Equals(declared, valType, Strict) {
		g.errorf(at, "field %q expects %s, got %s", name, Stringify(declared), Stringify(valType))
	}
}

// inferTemplateFromFields resolves a compound literal over an
// un-monomorphized Template by unifying each declared field's (possibly
// generic) type against the corresponding initializer's concrete type, then
// monomorphizing the inferred instantiation (spec §4.4.1).
func (g *CodeGen) inferTemplateFromFields(env *Environment, tmpl *Template, c *ast.CompoundLiteral, vals []Value) (Type, bool) {
	def, isStruct := tmpl.Definition.(*ast.Struct)
	if !isStruct {
		g.errorf(c.ExprPos(), "%q is not a struct template", tmpl.Name)
		return nil, false
	}

	patternEnv := tmpl.CapturedEnv.Child()
	for _, gp := range tmpl.Generics {
		patternEnv.Define(gp.Name, Binding{Value: Value{Type: &TypeValue{Inner: Unknown{Name: gp.Name}}}})
	}
	declared := make(map[string]ast.Expr, len(def.Fields))
	for _, f := range def.Fields {
		declared[f.Name] = f.Type
	}

	bindings := map[string]Type{}
	for i, f := range c.Fields {
		fieldTypeExpr, ok := declared[f.Name]
		if !ok {
			continue // reported by checkCompoundField after instantiation
		}
		pattern, ok := g.EvalTypeExpr(patternEnv, fieldTypeExpr)
		if !ok {
			continue
		}
		InferTypeFromSimilar(pattern, Finalize(vals[i].Type), bindings)
	}

	args := make([]Type, len(tmpl.Generics))
	for i, gp := range tmpl.Generics {
		if t, bound := bindings[gp.Name]; bound {
			args[i] = t
			continue
		}
		if gp.Default != nil {
			t, _ := g.EvalTypeExpr(tmpl.CapturedEnv, gp.Default)
			args[i] = t
			continue
		}
		g.errorf(c.ExprPos(), "cannot infer generic parameter %q of template %q", gp.Name, tmpl.Name)
		args[i] = Unknown{}
	}
	return g.Monomorphize(tmpl, args, c.ExprPos())
}

// evalCall lowers a Call expression (spec §4.4.1 "Call"): a codegen-resolved
// builtin macro (`@format`/`@fprint`/`@fprintln`/`@typeOf`/`@cast`/
// `@constCast`, passed through unexpanded by MacroExpander per
// codegenBuiltins, macro.go), a direct Function call, or a Template call
// that triggers monomorphization (§4.4.3). Anything else is not callable.
func (g *CodeGen) evalCall(env *Environment, c *ast.Call) (Value, error) {
	if name, ok := builtinMacroName(c.Callee); ok {
		return g.evalBuiltinMacroCall(env, name, c)
	}

	calleeVal, err := g.evalExpr(env, c.Callee)
	if err != nil {
		return Value{}, err
	}

	switch callee := unwrapTypeValue(calleeVal.Type).(type) {
	case *Function:
		args, err := g.evalArgValues(env, c.Args)
		if err != nil {
			return Value{}, err
		}
		return g.buildCall(env, calleeVal, callee, args, c.ExprPos())
	case *Template:
		return g.evalTemplateCall(env, callee, c)
	case *Macro:
		return g.evalMacroCall(env, callee, c)
	default:
		g.errorf(c.ExprPos(), "%s is not callable", Stringify(calleeVal.Type))
		return GetUnknown(), nil
	}
}

// evalMacroCall handles a macro invocation that survived MacroExpander: the
// Binding body form, which names an external C function-like macro the
// generated code calls verbatim, typed by its declared return type (spec
// §4.3/§4.4.1 Call "Macro"). Expression/Block bodies never reach here — the
// expansion pass substitutes them away.
func (g *CodeGen) evalMacroCall(env *Environment, m *Macro, c *ast.Call) (Value, error) {
	if m.BodyKind != ast.MacroBodyBinding {
		g.errorf(c.ExprPos(), "macro %q was not expanded; invoke it with ! or @", m.Name)
		return GetUnknown(), nil
	}
	if !checkMacroArity(m.ParamKind, len(m.ParamNames), len(c.Args)) {
		g.errorf(c.ExprPos(), "wrong number of arguments to macro %q", m.Name)
		return GetUnknown(), nil
	}
	args, err := g.evalArgValues(env, c.Args)
	if err != nil {
		return Value{}, err
	}
	texts := make([]string, len(args))
	for i, a := range args {
		texts[i] = a.CValue
	}
	ret, _ := g.EvalTypeExpr(env, m.BindingType)
	return Value{CValue: fmt.Sprintf("%s(%s)", m.Name, strings.Join(texts, ", ")), Type: ret}, nil
}

// unwrapTypeValue strips one layer of TypeValue, the wrapping defineType
// uses for struct/enum/template names registered only for type-position use
// (spec §4.1 "Type(inner)"); function bindings are stored unwrapped (they are
// callable values, not type values), so this is a no-op for them.
func unwrapTypeValue(t Type) Type {
	if tv, ok := t.(*TypeValue); ok {
		return tv.Inner
	}
	return t
}

// builtinMacroName reports the `@name` a Call's callee names, if it is a
// bare Variable referencing one of the codegen-resolved builtins MacroExpander
// leaves unexpanded (macro.go's codegenBuiltins).
func builtinMacroName(callee ast.Expr) (string, bool) {
	v, ok := callee.(*ast.Variable)
	if !ok {
		return "", false
	}
	if codegenBuiltins[v.Name] {
		return v.Name, true
	}
	return "", false
}

// evalArgValues evaluates every call argument left to right, stopping at the
// first hard evaluation error (an unsupported-expression failure, not a
// reported-and-continued semantic error per spec §7's "report, don't raise").
func (g *CodeGen) evalArgValues(env *Environment, exprs []ast.Expr) ([]Value, error) {
	out := make([]Value, len(exprs))
	for i, e := range exprs {
		v, err := g.evalExpr(env, e)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// buildCall composes `callee(args...)`, handling the three automatic
// behaviors spec §4.4.1 names for Call: first-argument method binding via
// calleeVal.SelfInfo, reference-parameter auto-address-of, and __copy__
// insertion when a by-value struct argument has a user-defined copy
// constructor. Unlike the spec prose's "materialized into a temporary unless
// void", this module composes calls as nested C expression text throughout
// (consistent with how evalExpr's Ternary case and evalBinary already work); a genStmt
// ExpressionStmt still gets its own top-level statement line, which is the
// only place a bare call's result needs discarding.
func (g *CodeGen) buildCall(env *Environment, calleeVal Value, fn *Function, args []Value, at ast.Pos) (Value, error) {
	params := fn.Params
	var cArgs []string

	if calleeVal.SelfInfo != nil {
		wantRef, wantConst := false, false
		if len(params) > 0 {
			if p, ok := params[0].Type.(*Pointer); ok {
				wantRef, wantConst = p.IsReference, p.IsConst
			} else {
				wantConst = params[0].IsConst
			}
			params = params[1:]
		}
		selfVal := SpecialValue(calleeVal.SelfInfo.Name, calleeVal.SelfInfo.SelfType, wantConst)
		cArgs = append(cArgs, GetSelf(selfVal, wantRef, wantConst).CValue)
	}

	if len(args) != len(params) {
		g.errorf(at, "expected %d argument(s), got %d", len(params), len(args))
	}
	for i, a := range args {
		if i >= len(params) {
			cArgs = append(cArgs, a.CValue)
			continue
		}
		prepared := g.prepareArg(env, a, params[i], at)
		if params[i].Type != nil && !Equals(params[i].Type, prepared.Type, Strict) {
			g.errorf(at, "argument %d: expected %s, got %s", i+1, Stringify(params[i].Type), Stringify(a.Type))
		}
		cArgs = append(cArgs, prepared.CValue)
	}

	cv := fmt.Sprintf("%s(%s)", calleeVal.CValue, strings.Join(cArgs, ", "))
	return Value{CValue: cv, Type: fn.Return}, nil
}

// prepareArg applies reference-parameter auto-address-of and __copy__
// insertion to one call argument, in that order (an argument passed by
// reference is never copied; only by-value struct arguments are).
func (g *CodeGen) prepareArg(env *Environment, a Value, param FuncParam, at ast.Pos) Value {
	if p, ok := param.Type.(*Pointer); ok && p.IsReference {
		return GetSelf(a, true, p.IsConst)
	}
	return g.maybeCopyConstruct(env, a, at)
}

// maybeCopyConstruct wraps v in a call to its type's __copy__ method, if it
// has one (spec §4.4.1 Call / §4.4.2 Return/VarDecl "Insertion of __copy__
// when a[n argument/returned/bound] value has a user-defined copy
// constructor"), reporting the I-copies info note. Values without a
// __copy__ method (including non-struct values) pass through unchanged.
func (g *CodeGen) maybeCopyConstruct(env *Environment, v Value, at ast.Pos) Value {
	st, ok := v.Type.(*Struct)
	if !ok {
		return v
	}
	if g.inCopyCtor {
		// Never inside __copy__ itself: copying the value being returned
		// would recurse into the constructor forever.
		return v
	}
	b, selfVal, found := GetMethod(env, v, "__copy__", false)
	if !found {
		return v
	}
	fn, isFn := b.Value.Type.(*Function)
	if !isFn {
		return v
	}
	wantRef, wantConst := false, false
	if len(fn.Params) > 0 {
		if p, ok := fn.Params[0].Type.(*Pointer); ok {
			wantRef, wantConst = p.IsReference, p.IsConst
		}
	}
	arg := GetSelf(selfVal, wantRef, wantConst)
	diag.Infof(g.sink, at, "%s: inserted %s.__copy__()", diag.KindCopies, st.FullName)
	return Value{
		CValue: fmt.Sprintf("%s_DOT___copy__(%s)", typeQualifierName(selfVal.Type), arg.CValue),
		Type:   st,
	}
}

// evalTemplateCall instantiates tmpl (inferring unspecified generics from
// argument types when the call gives none explicitly, spec §4.4.3 step 2)
// and calls the resulting function.
func (g *CodeGen) evalTemplateCall(env *Environment, tmpl *Template, c *ast.Call) (Value, error) {
	args, err := g.evalArgValues(env, c.Args)
	if err != nil {
		return Value{}, err
	}

	generics := make([]Type, len(tmpl.Generics))
	if len(c.Generics) > 0 {
		for i, ge := range c.Generics {
			t, ok := g.EvalTypeExpr(env, ge)
			if !ok {
				return GetUnknown(), nil
			}
			if i < len(generics) {
				generics[i] = t
			}
		}
	} else {
		generics = g.inferTemplateGenerics(env, tmpl, args, c.ExprPos())
	}

	resultType, ok := g.Monomorphize(tmpl, generics, c.ExprPos())
	if !ok {
		return GetUnknown(), nil
	}
	fnType, isFn := resultType.(*Function)
	if !isFn {
		g.errorf(c.ExprPos(), "%q is not callable", tmpl.Name)
		return GetUnknown(), nil
	}
	mangled := templateMangledName(tmpl, generics)
	return g.buildCall(env, Value{CValue: mangled, Type: fnType}, fnType, args, c.ExprPos())
}

// inferTemplateGenerics unifies each declared parameter's (possibly
// Unknown-bearing) type against the matching argument's concrete type, left
// to right, the first occurrence of a generic name winning ties per spec
// §4.4.3 step 2; unresolved generics fall back to their declared default,
// then to a reported inference failure.
func (g *CodeGen) inferTemplateGenerics(env *Environment, tmpl *Template, args []Value, at ast.Pos) []Type {
	result := make([]Type, len(tmpl.Generics))
	fn, ok := tmpl.Definition.(*ast.Function)
	if !ok {
		return result
	}

	patternEnv := tmpl.CapturedEnv.Child()
	for _, gp := range tmpl.Generics {
		patternEnv.Define(gp.Name, Binding{Value: Value{Type: &TypeValue{Inner: Unknown{Name: gp.Name}}}})
	}

	bindings := map[string]Type{}
	for i, p := range fn.Params {
		if i >= len(args) {
			break
		}
		pattern, ok := g.EvalTypeExpr(patternEnv, p.Type)
		if !ok {
			continue
		}
		InferTypeFromSimilar(pattern, Finalize(args[i].Type), bindings)
	}

	for i, gp := range tmpl.Generics {
		if t, bound := bindings[gp.Name]; bound {
			result[i] = t
			continue
		}
		if gp.Default != nil {
			t, _ := g.EvalTypeExpr(tmpl.CapturedEnv, gp.Default)
			result[i] = t
			continue
		}
		g.errorf(at, "cannot infer generic parameter %q of template %q", gp.Name, tmpl.Name)
		result[i] = Unknown{}
	}
	return result
}

func (g *CodeGen) evalMacroExpandedStatements(env *Environment, mes *ast.MacroExpandedStatements) (Value, error) {
	// A block-bodied macro used in expression position behaves like a GNU C
	// statement expression: the last ExpressionStmt's value is the result.
	w := &cWriter{}
	var result Value
	for i, s := range mes.Inner {
		if i == len(mes.Inner)-1 {
			if es, ok := s.(*ast.ExpressionStmt); ok {
				v, err := g.evalExpr(env, es.Expression)
				if err != nil {
					return Value{}, err
				}
				result = v
				continue
			}
		}
		if err := g.genStmtInto(w, env, s); err != nil {
			return Value{}, err
		}
	}
	prelude := w.String()
	if prelude == "" {
		return result, nil
	}
	return Value{CValue: fmt.Sprintf("({ %s %s; })", prelude, result.CValue), Type: result.Type}, nil
}
