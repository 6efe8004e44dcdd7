package compiler

import "github.com/skyelang/skyec/ast"

// Type is the closed sum type of spec §3.1. Every concrete type is one of
// the structs below; Type itself carries no behavior beyond the marker
// method, the same shape the teacher uses for ast.Node/ast.Expr (interface +
// one struct per case), generalized here from Rugo's 9-case dynamic
// RugoType (compiler/types.go in the teacher) to Skye's static ~15-case one.
// Semantics below are ported from original_source/src/skye_type.rs.
type Type interface {
	typeNode()
}

// Primitive is one of the fixed-width numeric kinds, the two "any" numeric
// bottoms, or Char.
type Primitive int

const (
	U8 Primitive = iota
	U16
	U32
	U64
	Usz
	I8
	I16
	I32
	I64
	AnyInt
	F32
	F64
	AnyFloat
	Char
)

func (Primitive) typeNode() {}

// IsInt reports whether p is a concrete or "any" integer kind.
func (p Primitive) IsInt() bool {
	switch p {
	case U8, U16, U32, U64, Usz, I8, I16, I32, I64, AnyInt:
		return true
	default:
		return false
	}
}

// IsFloat reports whether p is a concrete or "any" float kind.
func (p Primitive) IsFloat() bool {
	return p == F32 || p == F64 || p == AnyFloat
}

// Void is the zero-sized terminal type.
type Void struct{}

func (Void) typeNode() {}

// Unknown is an inference placeholder, optionally named after the
// identifier that introduced it (a generic parameter, a `var` slot, ...).
type Unknown struct {
	Name string
}

func (Unknown) typeNode() {}

// Pointer covers both raw pointers (`*T`/`*const T`) and safe references
// (`&T`/`&const T`, IsReference=true): auto-dereferenced, non-null in Debug.
type Pointer struct {
	Inner       Type
	IsConst     bool
	IsReference bool
}

func (*Pointer) typeNode() {}

// TypeValue is a first-class type value: `Type(inner)` lets types be named,
// passed to generics, and compared.
type TypeValue struct {
	Inner Type
}

func (*TypeValue) typeNode() {}

// Group is a type-set used as a generic bound: the union of Left and Right
// (itself possibly a Group, forming an n-ary union via right-recursion).
type Group struct {
	Left, Right Type
}

func (*Group) typeNode() {}

// FuncParam is one parameter of a Function type; constness travels with the
// parameter, not just the pointee.
type FuncParam struct {
	Type    Type
	IsConst bool
}

// Function is a function signature. HasBody distinguishes a forward
// declaration from a definition.
type Function struct {
	Params  []FuncParam
	Return  Type
	HasBody bool
}

func (*Function) typeNode() {}

// StructField is one member of a Struct.
type StructField struct {
	Type    Type
	IsConst bool
}

// Struct is a named product type. Fields == nil means forward-declared
// (incomplete); BaseName is the non-generic stem used for Permissive
// equality (e.g. "Box" for "Box_GENOF_i32_GENEND_").
type Struct struct {
	FullName string
	Fields   map[string]StructField
	BaseName string
}

func (*Struct) typeNode() {}

// Namespace is a named grouping of declarations; never instantiable.
type Namespace struct {
	FullName string
}

func (*Namespace) typeNode() {}

// Enum is a tag-only or sum-type enum. Variants == nil means
// forward-declared. A Void-payload variant is tag-only; anything else makes
// the whole enum a sum type.
type Enum struct {
	FullName string
	Variants map[string]Type
	BaseName string
}

func (*Enum) typeNode() {}

// IsSumType reports whether e is a sum-type enum: defined, with at least one
// variant carrying a non-Void payload. A tag-only enum (every payload Void)
// lowers to a plain C enum and keeps native equality/integer casts.
func (e *Enum) IsSumType() bool {
	if e.Variants == nil {
		return false
	}
	for _, v := range e.Variants {
		if _, isVoid := v.(Void); !isVoid {
			return true
		}
	}
	return false
}

// Template is an un-monomorphized generic declaration; never a runtime
// value (spec §3.1 invariants). CapturedEnv snapshots the defining scope so
// instantiation can re-open it later (spec §9).
type Template struct {
	Name                string
	Definition          ast.Statement
	Generics            []ast.Generic
	GenericNames        []string
	ContainingNamespace string
	CapturedEnv         *Environment
}

func (*Template) typeNode() {}

// Union and Bitfield are C-style overlapping/packed aggregates.
type Union struct {
	FullName string
	Fields   map[string]Type
}

func (*Union) typeNode() {}

type Bitfield struct {
	FullName string
	Fields   map[string]Type
	Widths   map[string]int
}

func (*Bitfield) typeNode() {}

// Macro is a compile-time text-substitution declaration; never a runtime
// value. Body shape mirrors ast.Macro. BindingType holds the declared
// return type of a Binding-bodied macro (an external C macro the generated
// code calls by name), kept as AST because CodeGen resolves it lazily
// against the scope the call appears in.
type Macro struct {
	Name        string
	ParamKind   ast.MacroParamKind
	ParamNames  []string
	BodyKind    ast.MacroBodyKind
	Expression  ast.Expr
	Block       []ast.Statement
	BindingType ast.Expr
}

func (*Macro) typeNode() {}

// Finalize resolves AnyInt/AnyFloat to their default concrete width
// (spec §4.4.2 VarDecl); every other type is returned unchanged.
func Finalize(t Type) Type {
	switch t {
	case AnyInt:
		return I32
	case AnyFloat:
		return F32
	default:
		return t
	}
}

// CheckCompleteness reports whether t is a fully-defined type that can be
// laid out in C (spec §7 "Incomplete type instantiated").
func CheckCompleteness(t Type) bool {
	switch tt := t.(type) {
	case *TypeValue:
		return CheckCompleteness(tt.Inner)
	case Primitive, Void, Unknown, *Pointer, *Function, *Enum:
		return true
	case *Group, *Namespace, *Template, *Macro:
		return false
	case *Struct:
		return tt.Fields != nil
	case *Union:
		return tt.Fields != nil
	case *Bitfield:
		return tt.Fields != nil
	default:
		return false
	}
}

// CanBeInstantiated is the predicate behind spec §7's "Cannot instantiate
// type" error: Group/Namespace/Template/Macro are never runtime values;
// Void and Type(inner) are only valid in a type-value position (asType).
func CanBeInstantiated(t Type, asType bool) bool {
	switch tt := t.(type) {
	case *Group, *Namespace, *Template, *Macro:
		return false
	case Void:
		return asType
	case *TypeValue:
		if !asType {
			return false
		}
		return CanBeInstantiated(tt.Inner, asType)
	default:
		return true
	}
}

// IsType reports whether t is itself a first-class type value or bound set
// (used to route Call/Subscript/Unary toward type-construction rather than
// value evaluation).
func IsType(t Type) bool {
	switch t.(type) {
	case *TypeValue, *Group:
		return true
	default:
		return false
	}
}
