package exec

import (
	"sync"
	"time"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/nodeid"
)

// EventKind enumerates the observation events of a model.
type EventKind int

const (
	// NodeEvalStateChanged reports a new NodeEvalState of a node.
	NodeEvalStateChanged EventKind = iota
	// NodeDataChanged reports new data on a port.
	NodeDataChanged
	// NodeEvaluated reports a finished evaluation with its duration and error.
	NodeEvaluated
	PassStarted
	PassFinished
)

func (k EventKind) String() string {
	switch k {
	case NodeEvalStateChanged:
		return "node_eval_state_changed"
	case NodeDataChanged:
		return "node_data_changed"
	case NodeEvaluated:
		return "node_evaluated"
	case PassStarted:
		return "pass_started"
	case PassFinished:
		return "pass_finished"
	default:
		return "unknown"
	}
}

// Event is one observation of the model.
type Event struct {
	Kind     EventKind
	UUID     nodeid.NodeUUID
	TypeName string
	State    NodeEvalState
	Port     nodeid.PortID

	// set for NodeEvaluated and PassFinished
	Duration time.Duration
	Err      error

	// set for pass events
	Pass    uint64
	Targets int
	Auto    bool
}

// Listener receives model events.
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

func (l *listeners) emit(evs []Event) {
	if len(evs) == 0 {
		return
	}
	l.mu.Lock()
	fns := make([]Listener, 0, len(l.fns))
	for i := 0; i < l.next; i++ {
		if fn, ok := l.fns[i]; ok {
			fns = append(fns, fn)
		}
	}
	l.mu.Unlock()

	for _, ev := range evs {
		for _, fn := range fns {
			fn(ev)
		}
	}
}
