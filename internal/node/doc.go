// Package node defines the unit of computation of a node graph.
//
// A node owns two ordered sequences of ports (inputs and outputs). Every port
// carries a stable PortID and an opaque type tag; its PortIndex is derived from
// its position and shifts when ports are inserted or removed.
//
// Concrete node types embed Base, which manages identity, ports and structural
// notifications, and implement one of the computation capabilities:
//
//   - Evaluator computes all outputs of a node in a single call.
//   - PortEvaluator computes one output port at a time.
//
// A node implementing neither is evaluated for its side effects only. Port
// values are immutable cty.Value payloads; absent data is represented by a
// null value, and normal business failures (e.g. a division by zero) are
// modeled as absent data rather than errors.
package node
