package compiler

// EqualsLevel is the strictness tier used to compare two Types, from
// skye_type.rs's four-level scheme (spec §4.1).
type EqualsLevel int

const (
	// ConstStrict additionally requires pointer/reference constness to match.
	ConstStrict EqualsLevel = iota
	// Strict requires structural equality with covariant pointer constness:
	// a non-const pointee may flow into a const slot, not the reverse.
	Strict
	// Typewise ignores pointer/reference constness entirely and compares
	// Struct/Enum/Union/Bitfield by full name. At every level, AnyInt and
	// AnyFloat unify with any concrete kind of the same family.
	Typewise
	// Permissive additionally compares Struct/Enum by BaseName, so two
	// different instantiations of the same template compare equal.
	Permissive
)

// Equals compares a and b at the given strictness level, porting
// skye_type.rs's `SkyeType::equals`. An Unknown on either side equals
// anything (spec §4.1): it is an inference placeholder, and rejecting it
// would cascade errors from a declaration that already reported one.
func Equals(a, b Type, level EqualsLevel) bool {
	if _, ok := a.(Unknown); ok {
		return true
	}
	if _, ok := b.(Unknown); ok {
		return true
	}
	switch av := a.(type) {
	case Primitive:
		bv, ok := b.(Primitive)
		if !ok {
			return false
		}
		if av == bv {
			return true
		}
		// AnyInt unifies with any concrete int, AnyFloat with any concrete
		// float, bidirectionally and at every level: a literal's "any" kind
		// must still match an i32 parameter under Strict argument matching.
		if av == AnyInt && bv.IsInt() {
			return true
		}
		if bv == AnyInt && av.IsInt() {
			return true
		}
		if av == AnyFloat && bv.IsFloat() {
			return true
		}
		if bv == AnyFloat && av.IsFloat() {
			return true
		}
		return false
	case Void:
		_, ok := b.(Void)
		return ok
	case *Pointer:
		bv, ok := b.(*Pointer)
		if !ok {
			return false
		}
		if bv.IsReference != av.IsReference {
			return false
		}
		switch level {
		case ConstStrict:
			if av.IsConst != bv.IsConst {
				return false
			}
		case Strict:
			// Covariance: a `&T` value flows into a `&const T` slot, never
			// the reverse (a is the target here, b the source).
			if !av.IsConst && bv.IsConst {
				return false
			}
		default:
			// Typewise/Permissive ignore pointer constness entirely.
		}
		return Equals(av.Inner, bv.Inner, level)
	case *TypeValue:
		bv, ok := b.(*TypeValue)
		if !ok {
			return false
		}
		return Equals(av.Inner, bv.Inner, level)
	case *Group:
		// A Group is a bound set, not a concrete type: equality degrades to
		// "b equals either branch" so Groups can appear on either side.
		if Equals(av.Left, b, level) {
			return true
		}
		return Equals(av.Right, b, level)
	case *Function:
		bv, ok := b.(*Function)
		if !ok {
			return false
		}
		if len(av.Params) != len(bv.Params) {
			return false
		}
		for i := range av.Params {
			if av.Params[i].IsConst != bv.Params[i].IsConst {
				return false
			}
			if !Equals(av.Params[i].Type, bv.Params[i].Type, level) {
				return false
			}
		}
		return Equals(av.Return, bv.Return, level)
	case *Struct:
		bv, ok := b.(*Struct)
		if !ok {
			return false
		}
		if level == Permissive {
			return av.BaseName == bv.BaseName
		}
		return av.FullName == bv.FullName
	case *Namespace:
		bv, ok := b.(*Namespace)
		return ok && av.FullName == bv.FullName
	case *Enum:
		bv, ok := b.(*Enum)
		if !ok {
			return false
		}
		if level == Permissive {
			return av.BaseName == bv.BaseName
		}
		return av.FullName == bv.FullName
	case *Union:
		bv, ok := b.(*Union)
		return ok && av.FullName == bv.FullName
	case *Bitfield:
		bv, ok := b.(*Bitfield)
		return ok && av.FullName == bv.FullName
	case *Template:
		bv, ok := b.(*Template)
		return ok && av.Name == bv.Name
	case *Macro:
		bv, ok := b.(*Macro)
		return ok && av.Name == bv.Name
	default:
		return false
	}
}

// IsRespectedBy reports whether candidate satisfies bound (a Group union of
// Types, or a single Type), the predicate behind generic-argument checking.
func IsRespectedBy(bound, candidate Type) bool {
	if g, ok := bound.(*Group); ok {
		return IsRespectedBy(g.Left, candidate) || IsRespectedBy(g.Right, candidate)
	}
	return Equals(bound, candidate, Typewise)
}
