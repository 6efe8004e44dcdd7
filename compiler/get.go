package compiler

import "strings"

// ZeroCheck is invoked by Get/FollowReference when a Debug-mode null guard
// must be spliced before a pointer dereference (spec §4.1, §7 "Null
// dereference"). CodeGen supplies the real implementation; nil disables it
// (Release/ReleaseUnsafe).
type ZeroCheck func(cvalue Expr) Expr

// GetOutcome is the three-way result of Get, ported from skye_type.rs's
// GetResult: InvalidType means the operand has no members at all (a harder
// error than a missing field), FieldNotFound that the member name didn't
// resolve — which the caller may still satisfy via a method lookup.
type GetOutcome int

const (
	GetOk GetOutcome = iota
	GetInvalidType
	GetFieldNotFound
)

// Get resolves `object.name`, auto-dereferencing through any number of
// Pointer/reference layers first, then looking up name as a struct field,
// enum variant payload, or union/bitfield member. Ported from
// skye_type.rs's `get_internal`/`get`.
func Get(v Value, name string, zc ZeroCheck) (Value, GetOutcome) {
	t := v.Type
	cv := v.CValue
	isConst := v.IsConst
	for {
		p, ok := t.(*Pointer)
		if !ok {
			break
		}
		if zc != nil {
			cv = zc(cv)
		}
		if p.IsReference {
			cv = "(*" + cv + ")"
		} else {
			cv = "(*" + cv + ")"
		}
		t = p.Inner
		isConst = isConst || p.IsConst
	}
	switch tv := t.(type) {
	case *Struct:
		f, ok := tv.Fields[name]
		if !ok {
			return Value{}, GetFieldNotFound
		}
		return Value{CValue: cv + "." + name, Type: f.Type, IsConst: isConst || f.IsConst}, GetOk
	case *Union:
		ft, ok := tv.Fields[name]
		if !ok {
			return Value{}, GetFieldNotFound
		}
		return Value{CValue: cv + "." + name, Type: ft, IsConst: isConst}, GetOk
	case *Bitfield:
		ft, ok := tv.Fields[name]
		if !ok {
			return Value{}, GetFieldNotFound
		}
		return Value{CValue: cv + "." + name, Type: ft, IsConst: isConst}, GetOk
	case *Enum:
		if tv.Variants == nil {
			return Value{}, GetFieldNotFound
		}
		payload, ok := tv.Variants[name]
		if !ok {
			return Value{}, GetFieldNotFound
		}
		// A sum-type enum's payload lives behind the tagged union member
		// CodeGen names after the variant; a tag-only enum has none.
		if _, isVoid := payload.(Void); isVoid {
			return Value{}, GetFieldNotFound
		}
		return Value{CValue: cv + ".data." + strings.ToLower(name), Type: payload, IsConst: isConst}, GetOk
	default:
		return Value{}, GetInvalidType
	}
}

// StaticGet resolves `object::name` — namespace-path and struct/enum static
// member lookup — without auto-dereferencing. It searches the global
// Environment for the `_DOT_`-joined qualified name. Ported from
// skye_type.rs's `static_get_internal`/`static_get`.
func StaticGet(env *Environment, t Type, name string) (Binding, bool) {
	var qualifier string
	switch tv := t.(type) {
	case *Namespace:
		qualifier = tv.FullName
	case *Struct:
		qualifier = tv.FullName
	case *Enum:
		qualifier = tv.FullName
		if tv.Variants != nil {
			if payload, ok := tv.Variants[name]; ok {
				if _, isVoid := payload.(Void); isVoid {
					// Bare `Enum::Variant` with no payload constructs the tag
					// value directly; codegen fills in the concrete C value.
					return Binding{Value: Value{Type: tv}}, true
				}
				// Payload variants fall through to the env lookup: genEnum
				// registered a Name_DOT_Variant constructor function there.
			}
		}
	case *Union:
		qualifier = tv.FullName
	case *Bitfield:
		qualifier = tv.FullName
	case *Template:
		qualifier = tv.Name
	default:
		return Binding{}, false
	}
	b, ok := env.Root().Get(qualifier + "_DOT_" + name)
	return b, ok
}

// GetMethod resolves a method name on t via its Impl-registered bindings in
// env, following references (and, when strict is false, raw pointers too)
// to reach the underlying Struct/Enum. Ported from
// skye_type.rs's `get_method`.
func GetMethod(env *Environment, v Value, name string, strict bool) (Binding, Value, bool) {
	t := v.Type
	cur := v
	for {
		p, ok := t.(*Pointer)
		if !ok {
			break
		}
		if strict && !p.IsReference {
			break
		}
		if p.IsReference {
			cur = cur.FollowReference(nil)
		} else {
			cur = Value{CValue: "(*" + cur.CValue + ")", Type: p.Inner, IsConst: p.IsConst}
		}
		t = cur.Type
	}
	var qualifier string
	switch tv := t.(type) {
	case *Struct:
		qualifier = tv.FullName
	case *Enum:
		qualifier = tv.FullName
	default:
		return Binding{}, Value{}, false
	}
	b, ok := env.Root().Get(qualifier + "_DOT_" + name)
	return b, cur, ok
}

// GetSelf auto-wraps v in exactly the reference/pointer form the resolved
// method's receiver parameter declares, so a call site never has to spell
// out `&self`/`*self` manually. Ported from skye_type.rs's `get_self`.
func GetSelf(v Value, wantRef bool, wantConst bool) Value {
	p, isPtr := v.Type.(*Pointer)
	if isPtr && p.IsReference == wantRef {
		return v
	}
	if wantRef {
		return v.toRef(wantConst)
	}
	return v
}

func (v Value) toRef(wantConst bool) Value {
	return Value{
		CValue:  "(&" + v.CValue + ")",
		Type:    &Pointer{Inner: v.Type, IsConst: wantConst || v.IsConst, IsReference: true},
		IsConst: v.IsConst,
	}
}
