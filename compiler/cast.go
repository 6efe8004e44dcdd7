package compiler

// CastableHow classifies the outcome of IsCastableTo.
type CastableHow int

const (
	// CastNo means the cast is rejected outright.
	CastNo CastableHow = iota
	// CastYes means the cast is allowed without reservation.
	CastYes
	// CastConstnessLoss means the cast is allowed but strips a `const`
	// qualifier, which `@cast` emission warns about in every mode (spec §7).
	CastConstnessLoss
)

// IsCastableTo reports whether a value of type from can be `@cast` to to,
// ported from skye_type.rs's `is_castable_to`.
func IsCastableTo(from, to Type) CastableHow {
	if Equals(from, to, ConstStrict) {
		return CastYes
	}
	switch fv := from.(type) {
	case Primitive:
		if fv == Usz {
			if p, ok := to.(*Pointer); ok {
				// Only raw pointers round-trip through usz; a reference is
				// non-null by contract and can't be conjured from an integer.
				if p.IsReference {
					return CastNo
				}
				return CastYes
			}
		}
		tv, ok := to.(Primitive)
		if !ok {
			return CastNo
		}
		if (fv.IsInt() || fv.IsFloat() || fv == Char) && (tv.IsInt() || tv.IsFloat() || tv == Char) {
			return CastYes
		}
		return CastNo
	case *Pointer:
		tv, ok := to.(*Pointer)
		if !ok {
			if fv.IsReference {
				return CastNo
			}
			if p, ok := to.(Primitive); ok && p == Usz {
				return CastYes
			}
			return CastNo
		}
		if fv.IsReference != tv.IsReference {
			return CastNo
		}
		inner := IsCastableTo(fv.Inner, tv.Inner)
		if inner == CastNo && !Equals(fv.Inner, tv.Inner, Typewise) {
			// Raw pointer reinterpretation between unrelated pointee types
			// is still permitted (it is, after all, just a C cast) unless
			// either side is a reference.
			if fv.IsReference {
				return CastNo
			}
			inner = CastYes
		}
		if fv.IsConst && !tv.IsConst {
			if inner == CastYes {
				return CastConstnessLoss
			}
			return CastConstnessLoss
		}
		return inner
	case *Enum:
		if p, ok := to.(Primitive); ok && p.IsInt() {
			// Tag-only enums cast to their underlying integer tag; sum-type
			// enums do not (no single integer represents the payload).
			if !fv.IsSumType() {
				return CastYes
			}
		}
		return CastNo
	default:
		return CastNo
	}
}
