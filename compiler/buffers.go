package compiler

import (
	"fmt"
	"sort"
	"strings"
)

// Buffers is CodeGen's output model (spec §3.3): a fixed set of ordered,
// named text sections rather than a single tree, because a forward
// declaration must be fully emitted before any body that references it, and
// Skye lets declarations appear in any order in source. Generalizes the
// teacher's single goWriter stream (compiler/writer.go) into the several
// streams a one-pass-over-a-statically-ordered-C-file scheme needs.
type Buffers struct {
	Includes          *cWriter
	StringPool        *cWriter
	Declarations      *cWriter
	StructDefinitions *cWriter
	Definitions       []*cWriter

	internedStrings map[string]string
	internCounter   int
	includeSeen     map[string]bool
}

// NewBuffers returns an empty Buffers ready for CodeGen to write into.
func NewBuffers() *Buffers {
	return &Buffers{
		Includes:          &cWriter{},
		StringPool:        &cWriter{},
		Declarations:      &cWriter{},
		StructDefinitions: &cWriter{},
		internedStrings:   make(map[string]string),
		includeSeen:       make(map[string]bool),
	}
}

// Include emits `#include <path>` (or "path" for a relative include) at
// most once per path.
func (b *Buffers) Include(path string, system bool) {
	if b.includeSeen[path] {
		return
	}
	b.includeSeen[path] = true
	if system {
		b.Includes.Line("#include <%s>", path)
	} else {
		b.Includes.Line("#include %q", path)
	}
}

// InternString deduplicates a cooked string literal into a single static
// storage declaration and returns the C identifier referencing it, so the
// same literal used twice doesn't produce two definitions.
func (b *Buffers) InternString(value string) string {
	if name, ok := b.internedStrings[value]; ok {
		return name
	}
	name := fmt.Sprintf("SKYE_STRING_%d", b.internCounter)
	b.internCounter++
	b.internedStrings[value] = name
	b.StringPool.Line("static const char %s[] = %q;", name, value)
	return name
}

// NewDefinition opens a fresh output buffer for one top-level definition
// (a function body, a global's initializer, a monomorphized template
// instance, ...) and appends it to the ordered Definitions list.
func (b *Buffers) NewDefinition() *cWriter {
	w := &cWriter{}
	b.Definitions = append(b.Definitions, w)
	return w
}

// Render concatenates every section in the fixed order the spec requires:
// includes, interned string pool, forward declarations, struct/union/enum
// definitions, then every top-level definition in discovery order.
func (b *Buffers) Render() string {
	var out strings.Builder
	out.WriteString("/* generated by skyec; do not edit by hand */\n\n")
	out.WriteString(b.Includes.String())
	if b.Includes.String() != "" {
		out.WriteByte('\n')
	}
	out.WriteString(b.StringPool.String())
	if b.StringPool.String() != "" {
		out.WriteByte('\n')
	}
	out.WriteString(b.Declarations.String())
	if b.Declarations.String() != "" {
		out.WriteByte('\n')
	}
	out.WriteString(b.StructDefinitions.String())
	if b.StructDefinitions.String() != "" {
		out.WriteByte('\n')
	}
	for _, d := range b.Definitions {
		out.WriteString(d.String())
		out.WriteByte('\n')
	}
	return out.String()
}

// SortedIncludes returns every included path in a stable order, for tests
// that assert on include sets without depending on discovery order.
func (b *Buffers) SortedIncludes() []string {
	paths := make([]string, 0, len(b.includeSeen))
	for p := range b.includeSeen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
