package compiler

// InferTypeFromSimilar unifies want against have, writing any generic-name
// binding it discovers into bindings (keyed by the Unknown.Name it matches
// against). It reports whether want and have are compatible at all,
// independent of whether any binding was produced. Ported from
// skye_type.rs's `infer_type_from_similar_internal`/`infer_type_from_similar`,
// used by CodeGen to infer a Template's generics from call-site argument
// types when they are not given explicitly (spec §4.4.3).
func InferTypeFromSimilar(want, have Type, bindings map[string]Type) bool {
	if u, ok := want.(Unknown); ok {
		if u.Name != "" {
			if existing, bound := bindings[u.Name]; bound {
				return Equals(existing, have, Permissive)
			}
			bindings[u.Name] = have
		}
		return true
	}
	switch wv := want.(type) {
	case *Pointer:
		hv, ok := have.(*Pointer)
		if !ok {
			return false
		}
		if wv.IsReference != hv.IsReference {
			return false
		}
		return InferTypeFromSimilar(wv.Inner, hv.Inner, bindings)
	case *TypeValue:
		hv, ok := have.(*TypeValue)
		if !ok {
			return false
		}
		return InferTypeFromSimilar(wv.Inner, hv.Inner, bindings)
	case *Function:
		hv, ok := have.(*Function)
		if !ok || len(wv.Params) != len(hv.Params) {
			return false
		}
		for i := range wv.Params {
			if !InferTypeFromSimilar(wv.Params[i].Type, hv.Params[i].Type, bindings) {
				return false
			}
		}
		return InferTypeFromSimilar(wv.Return, hv.Return, bindings)
	case *Enum:
		hv, ok := have.(*Enum)
		if !ok {
			return false
		}
		if wv.BaseName != "" && hv.BaseName != "" && wv.BaseName == hv.BaseName {
			// Same template instantiation family: unify matching variant
			// payloads positionally by name; a variant missing on either
			// side (commonly Void-default arms) is simply skipped.
			for name, wt := range wv.Variants {
				if ht, ok := hv.Variants[name]; ok {
					if !InferTypeFromSimilar(wt, ht, bindings) {
						return false
					}
				}
			}
			return true
		}
		return Equals(want, have, Permissive)
	case *Struct:
		hv, ok := have.(*Struct)
		if !ok {
			return false
		}
		if wv.BaseName != "" && hv.BaseName != "" && wv.BaseName == hv.BaseName {
			for name, wf := range wv.Fields {
				if hf, ok := hv.Fields[name]; ok {
					if !InferTypeFromSimilar(wf.Type, hf.Type, bindings) {
						return false
					}
				}
			}
			return true
		}
		return Equals(want, have, Permissive)
	default:
		return Equals(want, have, Permissive)
	}
}

// Substitute replaces every Unknown(name) inside t with its binding (if
// any), used after InferTypeFromSimilar to materialize a Template's
// generics into a concrete instantiation type.
func Substitute(t Type, bindings map[string]Type) Type {
	switch tv := t.(type) {
	case Unknown:
		if tv.Name != "" {
			if bound, ok := bindings[tv.Name]; ok {
				return bound
			}
		}
		return t
	case *Pointer:
		cp := *tv
		cp.Inner = Substitute(tv.Inner, bindings)
		return &cp
	case *TypeValue:
		cp := *tv
		cp.Inner = Substitute(tv.Inner, bindings)
		return &cp
	case *Function:
		cp := *tv
		params := make([]FuncParam, len(tv.Params))
		for i, p := range tv.Params {
			params[i] = FuncParam{Type: Substitute(p.Type, bindings), IsConst: p.IsConst}
		}
		cp.Params = params
		cp.Return = Substitute(tv.Return, bindings)
		return &cp
	case *Group:
		cp := *tv
		cp.Left = Substitute(tv.Left, bindings)
		cp.Right = Substitute(tv.Right, bindings)
		return &cp
	default:
		return t
	}
}
