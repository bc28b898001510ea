// Package dag is the connectivity index of a node graph.
//
// It keeps, per node, the incoming and outgoing connections at port level and
// answers the structural questions the graph and the execution model ask:
// direct predecessors and successors, transitive dependency closures, and
// whether the connection set is acyclic.
//
// The index never rejects an edge because it would close a cycle. Graphs pass
// through transient cyclic states while being edited; acyclicity is checked
// on demand with DetectCycles.
package dag
