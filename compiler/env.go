package compiler

// Binding is one name's compile-time state: its Value (when it is a value
// binding) and/or its Type (when the name instead names a type, namespace,
// template or macro). Exactly mirrors the dual nature of skye_type.rs
// globals, which stores SkyeType and lets call sites project out a Value
// via SkyeType::get_self / TypeValue unwrapping.
type Binding struct {
	Value Value
	IsVar bool // true: Value.CValue is an lvalue; false: constant-folded/type-only
}

// Environment is a chain of lexical scopes, generalized from the teacher's
// compiler/codegen_scope.go stack-of-maps pattern to carry Binding instead
// of a single Go value, and to additionally track the nearest enclosing
// Self type (needed by Impl/Interface method bodies) and the template stem
// being monomorphized. It does not track a namespace path.
type Environment struct {
	parent *Environment
	vars   map[string]Binding
	// Self is non-nil inside an Impl/Interface/Template-with-receiver body.
	Self Type
	// currentBaseName names the template stem a Struct/Enum declared in
	// this scope is being monomorphized from, so its BaseName field can be
	// set for Permissive equality (spec §4.1).
	currentBaseName string
}

// NewEnvironment returns the root (global) scope.
func NewEnvironment() *Environment {
	return &Environment{vars: make(map[string]Binding)}
}

// Child opens a new nested scope under e.
func (e *Environment) Child() *Environment {
	return &Environment{parent: e, vars: make(map[string]Binding), Self: e.Self}
}

// WithSelf returns a child scope with Self bound to t.
func (e *Environment) WithSelf(t Type) *Environment {
	child := e.Child()
	child.Self = t
	return child
}

// Define binds name to b in the current (innermost) scope, shadowing any
// outer binding of the same name.
func (e *Environment) Define(name string, b Binding) {
	e.vars[name] = b
}

// Get looks up name, searching outward through enclosing scopes.
func (e *Environment) Get(name string) (Binding, bool) {
	for s := e; s != nil; s = s.parent {
		if b, ok := s.vars[name]; ok {
			return b, true
		}
	}
	return Binding{}, false
}

// GetInScope looks up name in this scope only, without walking outward
// (used to detect shadowing/redeclaration errors, spec §7).
func (e *Environment) GetInScope(name string) (Binding, bool) {
	b, ok := e.vars[name]
	return b, ok
}

// Undef removes name from the current scope only (spec §4.4.2 Undef).
func (e *Environment) Undef(name string) {
	delete(e.vars, name)
}

// Root walks up to the global scope, where top-level declarations live.
func (e *Environment) Root() *Environment {
	s := e
	for s.parent != nil {
		s = s.parent
	}
	return s
}
