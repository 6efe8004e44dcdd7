package compiler

import "strings"

// cTypeName renders t as a bare C type name, valid anywhere a type (not a
// declarator) is needed: a cast, a return type, sizeof.
func cTypeName(t Type) string {
	return cDeclaration(t, "", false)
}

// cDeclaration renders t as a full C declaration of name ("" for an
// abstract declarator), threading `const` and pointer/array nesting the
// way a C declarator reads right-to-left. This is CodeGen's only
// type-to-text path, used for every field, parameter, global, and local.
func cDeclaration(t Type, name string, isConst bool) string {
	base, declarator := cDeclParts(t)
	constPrefix := ""
	if isConst {
		constPrefix = "const "
	}
	if name == "" {
		if declarator == "" {
			return constPrefix + base
		}
		return constPrefix + base + " " + declarator
	}
	if declarator == "" {
		return constPrefix + base + " " + name
	}
	return constPrefix + base + " " + declarator + name
}

// cDeclParts splits t into its base type keyword and a pointer/array
// declarator prefix (e.g. Pointer{Pointer{I32}} -> ("int32_t", "**")).
func cDeclParts(t Type) (base string, declarator string) {
	switch tv := t.(type) {
	case Primitive:
		return cPrimitiveName(tv), ""
	case Void:
		return "void", ""
	case Unknown:
		return "void", "*" // an unresolved type degrades to an opaque pointer
	case *Pointer:
		innerBase, innerDecl := cDeclParts(tv.Inner)
		prefix := "*"
		if tv.IsConst {
			prefix = "*const "
		}
		return innerBase, prefix + innerDecl
	case *Function:
		var params []string
		for _, p := range tv.Params {
			params = append(params, cDeclaration(p.Type, "", p.IsConst))
		}
		if len(params) == 0 {
			params = []string{"void"}
		}
		retBase, retDecl := cDeclParts(tv.Return)
		sig := retBase
		if retDecl != "" {
			sig += " " + retDecl
		}
		return sig + " (*", ")(" + strings.Join(params, ", ") + ")"
	case *Struct:
		return tv.FullName, ""
	case *Enum:
		return tv.FullName, ""
	case *Union:
		return tv.FullName, ""
	case *Bitfield:
		return tv.FullName, ""
	case *Namespace:
		return "void", ""
	case *TypeValue:
		return cDeclParts(tv.Inner)
	default:
		return "void", ""
	}
}

func cPrimitiveName(p Primitive) string {
	switch p {
	case U8:
		return "uint8_t"
	case U16:
		return "uint16_t"
	case U32:
		return "uint32_t"
	case U64:
		return "uint64_t"
	case Usz:
		return "size_t"
	case I8:
		return "int8_t"
	case I16:
		return "int16_t"
	case I32, AnyInt:
		return "int32_t"
	case I64:
		return "int64_t"
	case F32, AnyFloat:
		return "float"
	case F64:
		return "double"
	case Char:
		return "char"
	default:
		return "int32_t"
	}
}
