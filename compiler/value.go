package compiler

// SelfInfo records how a method receiver reached its current form, needed
// to undo an auto-&/auto-* wrap when emitting the call (spec §4.1 GetSelf).
type SelfInfo struct {
	Name        string
	SelfType    Type
	BitfieldVal Expr // set only when the receiver came out of a bitfield field
}

// Expr is re-exported locally to keep this file decoupled from package ast
// import churn; CodeGen fills it with the emitted C text fragment for the
// value's storage (an lvalue expression string) once generation begins.
type Expr = string

// Value pairs a compile-time Type with the C-text fragment CodeGen should
// emit to reference it, mirroring skye_type.rs's SkyeValue. IsConst is
// distinct from Type's own constness: it additionally tracks whether this
// particular binding (not just its pointee) may be reassigned.
type Value struct {
	CValue   Expr
	Type     Type
	IsConst  bool
	SelfInfo *SelfInfo
}

// NewValue builds a plain, non-const, no-self-info Value.
func NewValue(cvalue Expr, typ Type) Value {
	return Value{CValue: cvalue, Type: typ}
}

// SpecialValue builds a Value carrying explicit constness, used for
// declarations and fields whose constness is known at the binding site.
func SpecialValue(cvalue Expr, typ Type, isConst bool) Value {
	return Value{CValue: cvalue, Type: typ, IsConst: isConst}
}

// WithSelfInfo attaches receiver-unwrapping metadata to a copy of v.
func (v Value) WithSelfInfo(name string, selfType Type, bitfieldVal Expr) Value {
	v.SelfInfo = &SelfInfo{Name: name, SelfType: selfType, BitfieldVal: bitfieldVal}
	return v
}

// FollowReference returns v with one layer of Pointer{IsReference: true}
// stripped and its CValue auto-dereferenced, or v unchanged if its Type
// isn't a reference. zeroCheck, when non-nil, is invoked to splice a
// Debug-mode null guard before the dereference (spec §4.1 follow_reference).
func (v Value) FollowReference(zeroCheck func(Expr) string) Value {
	p, ok := v.Type.(*Pointer)
	if !ok || !p.IsReference {
		return v
	}
	cv := v.CValue
	if zeroCheck != nil {
		cv = zeroCheck(cv)
	}
	return Value{CValue: "(*" + cv + ")", Type: p.Inner, IsConst: p.IsConst}
}

// GetUnknown is the sentinel Value returned on a lookup/member-access
// failure once a diagnostic has already been raised, so evaluation can keep
// walking the tree without cascading unrelated errors.
func GetUnknown() Value {
	return Value{Type: Unknown{}}
}
