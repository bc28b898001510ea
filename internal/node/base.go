package node

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/nodeid"
)

var (
	// ErrPortNotFound is returned when a port id or index does not resolve.
	ErrPortNotFound = errors.New("port not found")
)

// EvalMode selects how the execution model runs a node.
type EvalMode int

const (
	// Inline nodes run on the goroutine that requested the evaluation.
	Inline EvalMode = iota
	// Detached nodes run on the worker pool.
	Detached
	// ExclusiveDetached nodes run on the worker pool and hold their
	// exclusivity domain's token while running.
	ExclusiveDetached
)

func (m EvalMode) String() string {
	switch m {
	case Inline:
		return "inline"
	case Detached:
		return "detached"
	case ExclusiveDetached:
		return "exclusive_detached"
	default:
		return fmt.Sprintf("EvalMode(%d)", int(m))
	}
}

// DefaultDomain is the exclusivity domain used when a node sets none.
const DefaultDomain = "default"

// Position is the editor position of a node.
type Position struct {
	X float64
	Y float64
}

// Node is the capability every graph node provides. Concrete types satisfy it
// by embedding Base.
type Node interface {
	ID() nodeid.NodeID
	UUID() nodeid.NodeUUID
	TypeName() string
	Ports(dir Direction) []Port
	NodeBase() *Base
}

// Base carries the identity and ports of a node. It must be initialized with
// Init before use and must not be copied afterwards.
type Base struct {
	mu       sync.RWMutex
	id       nodeid.NodeID
	uuid     nodeid.NodeUUID
	typeName string
	caption  string
	pos      Position
	ports    [2][]Port
	nextPort nodeid.PortID
	mode     EvalMode
	domain   string
	target   bool

	observers listeners
}

// Init prepares the base for a node of the given type name. A fresh uuid is
// generated; the id is assigned when the node is appended to a graph.
func (b *Base) Init(typeName string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.id = nodeid.InvalidNodeID
	b.uuid = nodeid.NewUUID()
	b.typeName = typeName
	b.caption = typeName
	b.mode = Inline
}

// NodeBase returns the base itself.
func (b *Base) NodeBase() *Base { return b }

func (b *Base) ID() nodeid.NodeID {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.id
}

// SetID presets the node id. A graph honors it on append if it is still free.
func (b *Base) SetID(id nodeid.NodeID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.id = id
}

func (b *Base) UUID() nodeid.NodeUUID {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.uuid
}

// SetUUID replaces the node uuid, e.g. when restoring a persisted graph.
func (b *Base) SetUUID(uuid nodeid.NodeUUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uuid = uuid
}

func (b *Base) TypeName() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.typeName
}

func (b *Base) Caption() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.caption
}

func (b *Base) SetCaption(caption string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.caption = caption
}

func (b *Base) Position() Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pos
}

func (b *Base) SetPosition(pos Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pos = pos
}

func (b *Base) EvalMode() EvalMode {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mode
}

func (b *Base) SetEvalMode(mode EvalMode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mode = mode
}

// ExclusivityDomain returns the key shared by all exclusive nodes that must
// never run concurrently.
func (b *Base) ExclusivityDomain() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.domain == "" {
		return DefaultDomain
	}
	return b.domain
}

func (b *Base) SetExclusivityDomain(domain string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.domain = domain
}

// IsTarget reports whether the node is an explicit evaluation target of its graph.
func (b *Base) IsTarget() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.target
}

func (b *Base) SetTarget(target bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.target = target
}

// Ports returns a copy of the ports of one direction in index order.
func (b *Base) Ports(dir Direction) []Port {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.ports[dir])
}

// Port looks up a port by id in either direction.
func (b *Base) Port(id nodeid.PortID) (Port, Direction, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, dir := range []Direction{In, Out} {
		for _, p := range b.ports[dir] {
			if p.ID == id {
				return p, dir, true
			}
		}
	}
	return Port{}, In, false
}

// PortIndex resolves a port id to its current index.
func (b *Base) PortIndex(id nodeid.PortID) (Direction, nodeid.PortIndex) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, dir := range []Direction{In, Out} {
		for i, p := range b.ports[dir] {
			if p.ID == id {
				return dir, nodeid.PortIndex(i)
			}
		}
	}
	return In, nodeid.InvalidPortIndex
}

// PortID resolves a port index to its id.
func (b *Base) PortID(dir Direction, idx nodeid.PortIndex) nodeid.PortID {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if idx < 0 || int(idx) >= len(b.ports[dir]) {
		return nodeid.InvalidPortID
	}
	return b.ports[dir][idx].ID
}

// AddInPort appends an input port and returns its id.
func (b *Base) AddInPort(typeID string, opts ...PortOption) nodeid.PortID {
	return b.InsertPort(In, NewPort(typeID, opts...), nodeid.InvalidPortIndex)
}

// AddOutPort appends an output port and returns its id.
func (b *Base) AddOutPort(typeID string, opts ...PortOption) nodeid.PortID {
	return b.InsertPort(Out, NewPort(typeID, opts...), nodeid.InvalidPortIndex)
}

// InsertPort inserts a port at idx, or appends it if idx is out of range.
// The port's id is assigned here. Ports after idx shift their index, never their id.
func (b *Base) InsertPort(dir Direction, port Port, idx nodeid.PortIndex) nodeid.PortID {
	b.mu.Lock()
	if idx < 0 || int(idx) > len(b.ports[dir]) {
		idx = nodeid.PortIndex(len(b.ports[dir]))
	}
	port.ID = b.nextPort
	b.nextPort++
	b.mu.Unlock()

	b.observers.emit(Event{Kind: PortAboutToBeInserted, Direction: dir, Port: port.ID, Index: idx})

	b.mu.Lock()
	if int(idx) > len(b.ports[dir]) {
		idx = nodeid.PortIndex(len(b.ports[dir]))
	}
	b.ports[dir] = slices.Insert(b.ports[dir], int(idx), port)
	b.mu.Unlock()

	b.observers.emit(Event{Kind: PortInserted, Direction: dir, Port: port.ID, Index: idx})
	return port.ID
}

// RemovePort deletes the port with the given id.
func (b *Base) RemovePort(id nodeid.PortID) error {
	dir, idx := b.PortIndex(id)
	if !idx.IsValid() {
		return fmt.Errorf("remove port %s: %w", id, ErrPortNotFound)
	}

	b.observers.emit(Event{Kind: PortAboutToBeDeleted, Direction: dir, Port: id, Index: idx})

	b.mu.Lock()
	// the index may have moved while listeners ran
	i := slices.IndexFunc(b.ports[dir], func(p Port) bool { return p.ID == id })
	if i >= 0 {
		b.ports[dir] = slices.Delete(b.ports[dir], i, i+1)
	}
	b.mu.Unlock()

	b.observers.emit(Event{Kind: PortDeleted, Direction: dir, Port: id, Index: idx})
	return nil
}

// SetPortType changes the type tag of a port.
func (b *Base) SetPortType(id nodeid.PortID, typeID string) error {
	return b.updatePort(id, func(p *Port) { p.TypeID = typeID })
}

// SetPortCaption changes the caption of a port.
func (b *Base) SetPortCaption(id nodeid.PortID, caption string) error {
	return b.updatePort(id, func(p *Port) { p.Caption = caption })
}

func (b *Base) updatePort(id nodeid.PortID, fn func(*Port)) error {
	b.mu.Lock()
	var (
		dir   Direction
		index = nodeid.InvalidPortIndex
	)
	for _, d := range []Direction{In, Out} {
		for i := range b.ports[d] {
			if b.ports[d][i].ID == id {
				fn(&b.ports[d][i])
				dir, index = d, nodeid.PortIndex(i)
			}
		}
	}
	b.mu.Unlock()

	if !index.IsValid() {
		return fmt.Errorf("update port %s: %w", id, ErrPortNotFound)
	}
	b.observers.emit(Event{Kind: PortChanged, Direction: dir, Port: id, Index: index})
	return nil
}

// NotifyChanged tells observers that the node's settings changed and its
// results are outdated.
func (b *Base) NotifyChanged() {
	b.observers.emit(Event{Kind: NodeChanged, Port: nodeid.InvalidPortID, Index: nodeid.InvalidPortIndex})
}

// Observe registers fn for structural events and returns a function that
// removes the registration.
func (b *Base) Observe(fn Listener) (unsubscribe func()) {
	return b.observers.add(fn)
}
