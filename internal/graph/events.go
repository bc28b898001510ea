package graph

import (
	"sync"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/node"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/nodeid"
)

// EventKind enumerates the structural notifications of a graph.
type EventKind int

const (
	NodeAppended EventKind = iota
	NodeAboutToBeDeleted
	// NodeDeleted carries the connections removed together with the node.
	NodeDeleted
	ConnectionAppended
	ConnectionAboutToBeDeleted
	ConnectionDeleted
	PortAboutToBeInserted
	PortInserted
	PortAboutToBeDeleted
	PortDeleted
	PortChanged
	NodeChanged
	// Disposed is the last event a graph emits.
	Disposed
)

var eventKindNames = map[EventKind]string{
	NodeAppended:               "node_appended",
	NodeAboutToBeDeleted:       "node_about_to_be_deleted",
	NodeDeleted:                "node_deleted",
	ConnectionAppended:         "connection_appended",
	ConnectionAboutToBeDeleted: "connection_about_to_be_deleted",
	ConnectionDeleted:          "connection_deleted",
	PortAboutToBeInserted:      "port_about_to_be_inserted",
	PortInserted:               "port_inserted",
	PortAboutToBeDeleted:       "port_about_to_be_deleted",
	PortDeleted:                "port_deleted",
	PortChanged:                "port_changed",
	NodeChanged:                "node_changed",
	Disposed:                   "disposed",
}

func (k EventKind) String() string {
	if s, ok := eventKindNames[k]; ok {
		return s
	}
	return "unknown"
}

var nodeEventKinds = map[node.EventKind]EventKind{
	node.PortAboutToBeInserted: PortAboutToBeInserted,
	node.PortInserted:          PortInserted,
	node.PortAboutToBeDeleted:  PortAboutToBeDeleted,
	node.PortDeleted:           PortDeleted,
	node.PortChanged:           PortChanged,
	node.NodeChanged:           NodeChanged,
}

// Event describes one structural change of a graph.
type Event struct {
	Kind  EventKind
	Graph *Graph
	// Node is set for node and port events.
	Node   node.Node
	NodeID nodeid.NodeID
	// Connection is set for connection events.
	Connection nodeid.ConnectionID
	// Removed lists the connections deleted together with a node.
	Removed []nodeid.ConnectionID

	Direction node.Direction
	Port      nodeid.PortID
	Index     nodeid.PortIndex
}

// Listener receives graph events.
type Listener func(Event)

type listeners struct {
	mu   sync.Mutex
	next int
	fns  map[int]Listener
}

func (l *listeners) add(fn Listener) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]Listener)
	}
	key := l.next
	l.next++
	l.fns[key] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.fns, key)
	}
}

func (l *listeners) emit(ev Event) {
	l.mu.Lock()
	fns := make([]Listener, 0, len(l.fns))
	for i := 0; i < l.next; i++ {
		if fn, ok := l.fns[i]; ok {
			fns = append(fns, fn)
		}
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
