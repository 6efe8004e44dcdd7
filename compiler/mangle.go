package compiler

import "strings"

// Mangle produces a C-safe identifier fragment for t, used both to name
// monomorphized templates and to build the textual type-tag CodeGen embeds
// in generated struct/function names (spec §4.4.3), ported from
// skye_type.rs's `mangle`.
func Mangle(t Type) string {
	switch tv := t.(type) {
	case Primitive:
		return mangleString(Stringify(tv))
	case Void:
		return "void"
	case Unknown:
		return "_UNKNOWN_"
	case *Pointer:
		prefix := "_PTROF_"
		if tv.IsConst {
			prefix = "_CONSTPTROF_"
		}
		if tv.IsReference {
			prefix = "_REFOF_"
			if tv.IsConst {
				prefix = "_CONSTREFOF_"
			}
		}
		return prefix + Mangle(tv.Inner) + "_PTREND_"
	case *TypeValue:
		return "_TYPEOF_" + Mangle(tv.Inner) + "_TYPEEND_"
	case *Function:
		var b strings.Builder
		b.WriteString("_FNPTR_")
		for _, p := range tv.Params {
			b.WriteString(Mangle(p.Type))
			b.WriteString("_PARAM_AND_")
		}
		b.WriteString("_PARAM_END_")
		b.WriteString(Mangle(tv.Return))
		b.WriteString("_FNPTR_END_")
		return b.String()
	case *Struct:
		return mangleString(tv.FullName)
	case *Enum:
		return mangleString(tv.FullName)
	case *Union:
		return mangleString(tv.FullName)
	case *Bitfield:
		return mangleString(tv.FullName)
	case *Namespace, *Template, *Macro, *Group:
		// Not instantiable/mangleable (spec §3.1 Invariants, §4.1
		// Mangling): empty mangling signals "never a runtime value", so a
		// caller that accidentally threads one of these into a mangled
		// name sees the gap rather than a plausible-looking identifier.
		return ""
	default:
		return "_UNKNOWN_"
	}
}

// mangleString rewrites the namespace separator and any remaining character
// C identifiers can't carry.
func mangleString(s string) string {
	s = strings.ReplaceAll(s, "::", "_DOT_")
	s = strings.ReplaceAll(s, ".", "_DOT_")
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteString("_")
		}
	}
	return b.String()
}

// Stringify renders t for diagnostics in Skye surface syntax (spec §7
// diagnostic text), the counterpart to Mangle's C-identifier form.
func Stringify(t Type) string {
	switch tv := t.(type) {
	case Primitive:
		switch tv {
		case U8:
			return "u8"
		case U16:
			return "u16"
		case U32:
			return "u32"
		case U64:
			return "u64"
		case Usz:
			return "usz"
		case I8:
			return "i8"
		case I16:
			return "i16"
		case I32:
			return "i32"
		case I64:
			return "i64"
		case AnyInt:
			return "{integer}"
		case F32:
			return "f32"
		case F64:
			return "f64"
		case AnyFloat:
			return "{float}"
		case Char:
			return "char"
		}
		return "?"
	case Void:
		return "void"
	case Unknown:
		if tv.Name != "" {
			return tv.Name
		}
		return "<unknown>"
	case *Pointer:
		sigil := "*"
		if tv.IsReference {
			sigil = "&"
		}
		if tv.IsConst {
			sigil += "const "
		}
		return sigil + Stringify(tv.Inner)
	case *TypeValue:
		return "Type(" + Stringify(tv.Inner) + ")"
	case *Group:
		return Stringify(tv.Left) + " | " + Stringify(tv.Right)
	case *Function:
		var b strings.Builder
		b.WriteString("fn(")
		for i, p := range tv.Params {
			if i > 0 {
				b.WriteString(", ")
			}
			if p.IsConst {
				b.WriteString("const ")
			}
			b.WriteString(Stringify(p.Type))
		}
		b.WriteString(") ")
		b.WriteString(Stringify(tv.Return))
		return b.String()
	case *Struct:
		return tv.FullName
	case *Namespace:
		return tv.FullName
	case *Enum:
		return tv.FullName
	case *Union:
		return tv.FullName
	case *Bitfield:
		return tv.FullName
	case *Template:
		return tv.Name
	case *Macro:
		return "macro " + tv.Name
	default:
		return "?"
	}
}
