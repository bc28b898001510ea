// internal/nodeid/doc.go

/*
Package nodeid provides strong, non-interchangeable handles for the entities
of a node graph.

  - NodeID identifies a node within its owning graph. Ids are allocated
    monotonically by the graph and are never shared between graphs.
  - NodeUUID identifies a node for its entire lifetime, independent of the
    graph that currently owns it.
  - PortID identifies a port of a node. It is assigned once and never reused
    while the node lives.
  - PortIndex is the positional index of a port among ports of the same
    direction. It is derived and shifts when ports are inserted or removed.
  - ConnectionID is the (outNode, outPort, inNode, inPort) tuple that
    identifies a connection. A connection with an unset endpoint is a draft.
  - Path addresses a node across nested graphs as a dot-separated sequence of
    NodeIDs, e.g. `3.1.7`.

All formatting and parsing of these handles lives here.
*/
package nodeid
