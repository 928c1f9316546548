// Package compiler translates a validated timeline document into a single
// FFmpeg invocation: an ordered input list, one filter_complex graph, and
// output arguments. Compile is a pure function of its inputs; given identical
// inputs it emits byte-identical args and filter-graph strings.
package compiler

import (
	"strings"
)

// node is one filter in the graph with its input and output label slots.
// Building the graph as nodes instead of concatenating DSL fragments keeps
// ordering testable by structural equality before serialization.
type node struct {
	inputs  []string
	filter  string
	outputs []string
}

// graph accumulates filter nodes and serializes them at the end.
type graph struct {
	nodes []node
	seq   int
}

// add appends a filter node with the given input and output labels.
func (g *graph) add(filter string, inputs []string, outputs ...string) {
	g.nodes = append(g.nodes, node{inputs: inputs, filter: filter, outputs: outputs})
}

// label returns a fresh unique link label with the given prefix.
func (g *graph) label(prefix string) string {
	g.seq++
	return prefix + itoa(g.seq-1)
}

// String serializes the graph into filter_complex syntax.
func (g *graph) String() string {
	var b strings.Builder
	for i, n := range g.nodes {
		if i > 0 {
			b.WriteByte(';')
		}
		for _, in := range n.inputs {
			b.WriteByte('[')
			b.WriteString(in)
			b.WriteByte(']')
		}
		b.WriteString(n.filter)
		for _, out := range n.outputs {
			b.WriteByte('[')
			b.WriteString(out)
			b.WriteByte(']')
		}
	}
	return b.String()
}

// itoa is a small allocation-free int formatter for label generation.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// escapeText escapes a string for use inside a drawtext text= value.
// The filter DSL treats backslash, quote, colon, brackets, percent and
// semicolon specially.
func escapeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\\', '\'', ':', '[', ']', '"', '%', ';':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// hexColor converts a "#rrggbb" color into FFmpeg's 0xrrggbb form.
// Named colors pass through unchanged.
func hexColor(c string) string {
	if strings.HasPrefix(c, "#") {
		return "0x" + strings.TrimPrefix(c, "#")
	}
	if c == "" {
		return "white"
	}
	return c
}
