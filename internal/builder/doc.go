// Package builder provides the graph construction helper used by hosts and
// tests to assemble node graphs by type name and port index.
//
// # Why Builder Exists
//
// The graph itself works with node ids and port ids. Callers assembling a
// graph think in type names and port positions ("connect output 0 of the
// source to input 1 of the adder"). The builder bridges the two and reports
// construction errors synchronously, without partial changes:
//   - unknown type name (registry.ErrUnknownType)
//   - endpoint not part of the graph (ErrNotInGraph)
//   - port index out of range (ErrPortIndexOutOfRange)
//   - type tag mismatch or duplicate connection (graph errors)
//
// Example:
//
//	b := builder.New(g, reg)
//	src, _ := b.AddNode("NumberSource")
//	disp, _ := b.AddNode("Display")
//	_, err := b.Connect(src, 0, disp, 0)
package builder
