package node

import (
	"sync"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/nodeid"
)

// EventKind enumerates structural notifications emitted by a node.
type EventKind int

const (
	PortAboutToBeInserted EventKind = iota
	PortInserted
	PortAboutToBeDeleted
	PortDeleted
	// PortChanged is emitted when a port's type tag or caption changes.
	PortChanged
	// NodeChanged is emitted when the node's own settings change and its
	// outputs must be considered outdated.
	NodeChanged
)

var eventKindNames = map[EventKind]string{
	PortAboutToBeInserted: "port_about_to_be_inserted",
	PortInserted:          "port_inserted",
	PortAboutToBeDeleted:  "port_about_to_be_deleted",
	PortDeleted:           "port_deleted",
	PortChanged:           "port_changed",
	NodeChanged:           "node_changed",
}

func (k EventKind) String() string {
	if s, ok := eventKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Event describes a structural change of a node's ports.
type Event struct {
	Kind      EventKind
	Direction Direction
	Port      nodeid.PortID
	Index     nodeid.PortIndex
}

// Listener receives node events. Listeners run synchronously on the goroutine
// that caused the change and must not block.
type Listener func(Event)

// listeners is a small copy-on-write observer list.
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

func (l *listeners) snapshot() []Listener {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Listener, 0, len(l.fns))
	for i := 0; i < l.next; i++ {
		if fn, ok := l.fns[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func (l *listeners) emit(ev Event) {
	for _, fn := range l.snapshot() {
		fn(ev)
	}
}
