package compiler

// frame is one pending unit of deferred work.
type frame func() []frame

// Trampoline runs a tree of continuations via an explicit stack instead of
// the native call stack. It is the Go counterpart of the Rust original's
// reblessive::Stk coroutine stack (original_source/src/macro_expander.rs
// drives expand_expression/expand_statement through Stk::enter for exactly
// this reason). Go's own goroutine stacks grow on demand, so MacroExpander
// doesn't need this — but a block's deferred-statement stack (spec §4.4.2
// Defer/Block) is a genuine LIFO unwind, arbitrarily deep when a deferred
// statement is itself a block that defers further statements, so CodeGen
// drives that unwind through a Trampoline rather than recursive calls.
type Trampoline struct {
	stack []frame
}

// Push schedules f to run. If f returns more frames, they run before
// whatever was already queued, preserving depth-first order.
func (t *Trampoline) Push(f frame) {
	t.stack = append(t.stack, f)
}

// Run drains the stack to completion.
func (t *Trampoline) Run() {
	for len(t.stack) > 0 {
		n := len(t.stack) - 1
		f := t.stack[n]
		t.stack = t.stack[:n]
		more := f()
		for i := len(more) - 1; i >= 0; i-- {
			t.stack = append(t.stack, more[i])
		}
	}
}
