// Package graph provides the ownership container of a node graph.
//
// # Structure
//
// A Graph owns a set of nodes and a set of connections. Nodes are keyed by a
// NodeID local to the graph; connections are immutable
// (outNode, outPort, inNode, inPort) tuples. A Graph is itself a node (it
// embeds node.Base), so graphs nest: a Graph appended to another Graph is a
// group node whose inner graph is the Graph itself.
//
//	┌──────────────── root Graph ────────────────┐
//	│                                            │
//	│   A ──▶ B ──▶ ┌──── group Graph ────┐ ──▶ D │
//	│               │ in ──▶ X ──▶ out    │       │
//	│               └─────────────────────┘       │
//	└────────────────────────────────────────────┘
//
// Every group owns exactly one InputProvider and one OutputProvider. The
// output ports of the InputProvider mirror the group's input ports by index,
// and the input ports of the OutputProvider mirror the group's output ports.
// The providers' ports are changed only through the group's own ports.
//
// # Connectivity
//
// Each Graph keeps a connectivity index (package dag) with the incoming and
// outgoing connections of every node. The index answers FindDependencies,
// FindDependentNodes and IsAcyclic. Acyclicity is not enforced on edit:
// intermediate edit states may be cyclic, and evaluation is refused instead.
//
// # Observation
//
// Structural changes are reported to observers registered with Observe.
// Deleting a node deletes every connection touching it and is reported as a
// single NodeDeleted event carrying the removed connections. Port events of
// child nodes are forwarded with the child attached. Events are delivered
// synchronously after the graph's lock has been released, so observers may
// query the graph.
//
// # Thread-Safety
//
// All Graph methods are safe for concurrent use.
package graph
