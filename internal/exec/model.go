package exec

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/ctxlog"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/exclusive"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/graph"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/node"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/nodeid"
	"github.com/zclconf/go-cty/cty"
	"golang.org/x/sync/semaphore"
)

type portEntry struct {
	dir   node.Direction
	value cty.Value
	state PortDataState
}

// entry is the model's record of one node.
type entry struct {
	n node.Node
	// owner is the graph containing n, nil for the root graph.
	owner *graph.Graph
	ports map[nodeid.PortID]*portEntry

	// state is Outdated or Valid; running and paused overlay it.
	state   NodeEvalState
	visible NodeEvalState
	running bool
	paused  bool
	pending bool
	// gen is bumped on every invalidation; results of older generations are
	// discarded.
	gen    uint64
	failed error
}

func (e *entry) evalState() NodeEvalState {
	switch {
	case e.paused:
		return Paused
	case e.running:
		return Evaluating
	default:
		return e.state
	}
}

func (e *entry) isGroup() bool {
	_, ok := e.n.(*graph.Graph)
	return ok
}

// Model schedules the evaluation of one graph tree.
type Model struct {
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
	root   *graph.Graph

	entries    map[nodeid.NodeUUID]*entry
	watched    map[*graph.Graph]func()
	passes     map[*pass]struct{}
	nextPass   uint64
	autoNodes  map[nodeid.NodeUUID]*autoTarget
	autoGraphs map[*graph.Graph]*autoTarget
	changed    chan struct{}
	closed     bool

	workers *semaphore.Weighted
	broker  exclusive.Broker
	turns   map[string]chan struct{}

	observers listeners
	events    []Event
	running   sync.WaitGroup
}

// New attaches a model to root and every graph nested in it. The model stops
// when ctx is cancelled, when Close is called or when root is disposed.
func New(ctx context.Context, root *graph.Graph, opts ...Option) *Model {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	mctx, cancel := context.WithCancel(ctx)
	m := &Model{
		ctx:        mctx,
		cancel:     cancel,
		logger:     ctxlog.FromContext(ctx),
		root:       root,
		entries:    make(map[nodeid.NodeUUID]*entry),
		watched:    make(map[*graph.Graph]func()),
		turns:      make(map[string]chan struct{}),
		passes:     make(map[*pass]struct{}),
		autoNodes:  make(map[nodeid.NodeUUID]*autoTarget),
		autoGraphs: make(map[*graph.Graph]*autoTarget),
		changed:    make(chan struct{}),
		workers:    semaphore.NewWeighted(cfg.workers),
		broker:     cfg.broker,
	}
	for _, fn := range cfg.observers {
		m.observers.add(fn)
	}

	m.mu.Lock()
	m.watchLocked(root, nil)
	unsubRoot := root.NodeBase().Observe(m.onRootEvent)
	unsubGraph := m.watched[root]
	m.watched[root] = func() {
		unsubGraph()
		unsubRoot()
	}
	m.unlock()

	go func() {
		<-mctx.Done()
		m.Close()
	}()

	m.logger.Debug("Execution model attached.", "graph", root.UUID(), "workers", cfg.workers)
	return m
}

// Root returns the graph the model is attached to.
func (m *Model) Root() *graph.Graph { return m.root }

// Observe registers fn for model events and returns a function removing the
// registration.
func (m *Model) Observe(fn Listener) (unsubscribe func()) {
	return m.observers.add(fn)
}

// Close fails every outstanding pass with ErrClosed and detaches the model
// from its graph tree. Evaluations still running finish in the background;
// their results are dropped.
func (m *Model) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	for p := range m.passes {
		m.finishLocked(p, ErrClosed)
	}
	for _, unsub := range m.watched {
		unsub()
	}
	clear(m.watched)
	clear(m.entries)
	clear(m.autoNodes)
	clear(m.autoGraphs)
	m.notifyLocked()
	m.unlock()

	m.cancel()
	m.logger.Debug("Execution model closed.", "graph", m.root.UUID())
}

// Wait blocks until every detached evaluation started by the model has
// returned. It is meant for shutdown after Close.
func (m *Model) Wait() {
	m.running.Wait()
}

// unlock releases the lock and delivers the events collected while it was
// held.
func (m *Model) unlock() {
	evs := m.events
	m.events = nil
	m.mu.Unlock()
	m.observers.emit(evs)
}

func (m *Model) emitLocked(ev Event) {
	m.events = append(m.events, ev)
}

// notifyLocked wakes everyone waiting for a change of the model.
func (m *Model) notifyLocked() {
	close(m.changed)
	m.changed = make(chan struct{})
}

func (m *Model) syncStateLocked(e *entry) {
	s := e.evalState()
	if s == e.visible {
		return
	}
	e.visible = s
	m.emitLocked(Event{
		Kind:     NodeEvalStateChanged,
		UUID:     e.n.UUID(),
		TypeName: e.n.TypeName(),
		State:    s,
	})
	m.notifyLocked()
}

func (m *Model) setStateLocked(e *entry, s NodeEvalState) {
	e.state = s
	m.syncStateLocked(e)
}

func (m *Model) setPortLocked(e *entry, port nodeid.PortID, dir node.Direction, v cty.Value) {
	pe, ok := e.ports[port]
	if !ok {
		pe = &portEntry{dir: dir}
		e.ports[port] = pe
	}
	pe.value = v
	pe.state = PortValid
	m.emitLocked(Event{
		Kind:     NodeDataChanged,
		UUID:     e.n.UUID(),
		TypeName: e.n.TypeName(),
		Port:     port,
		State:    e.evalState(),
	})
	m.notifyLocked()
}

// watchLocked records g and everything nested in it and subscribes to its
// structural events. owner is nil for the root graph.
func (m *Model) watchLocked(g *graph.Graph, owner *graph.Graph) {
	if _, ok := m.watched[g]; ok {
		return
	}
	m.watched[g] = g.Observe(m.onGraphEvent)
	m.addEntryLocked(g, owner)
	for _, n := range g.Nodes() {
		if sub, ok := n.(*graph.Graph); ok {
			m.watchLocked(sub, g)
			continue
		}
		m.addEntryLocked(n, g)
	}
}

func (m *Model) addEntryLocked(n node.Node, owner *graph.Graph) {
	if _, ok := m.entries[n.UUID()]; ok {
		return
	}
	e := &entry{
		n:       n,
		owner:   owner,
		ports:   make(map[nodeid.PortID]*portEntry),
		state:   Outdated,
		visible: Invalid,
	}
	for _, dir := range []node.Direction{node.In, node.Out} {
		for _, p := range n.Ports(dir) {
			e.ports[p.ID] = &portEntry{dir: dir, value: cty.NilVal}
		}
	}
	m.entries[n.UUID()] = e
	m.syncStateLocked(e)
}

func (m *Model) removeEntryLocked(n node.Node) {
	if sub, ok := n.(*graph.Graph); ok {
		for _, child := range sub.Nodes() {
			m.removeEntryLocked(child)
		}
		if unsub, ok := m.watched[sub]; ok {
			unsub()
			delete(m.watched, sub)
		}
		if a, ok := m.autoGraphs[sub]; ok {
			if a.pass != nil {
				a.pass.auto = nil
			}
			delete(m.autoGraphs, sub)
		}
	}
	e, ok := m.entries[n.UUID()]
	if !ok || e.n != n {
		return
	}
	delete(m.entries, n.UUID())
	if a, ok := m.autoNodes[n.UUID()]; ok {
		if a.pass != nil {
			a.pass.auto = nil
		}
		delete(m.autoNodes, n.UUID())
	}
	e.visible = Invalid
	m.emitLocked(Event{Kind: NodeEvalStateChanged, UUID: n.UUID(), TypeName: n.TypeName(), State: Invalid})
	m.notifyLocked()
}

func (m *Model) entryOf(n node.Node) *entry {
	if n == nil {
		return nil
	}
	e, ok := m.entries[n.UUID()]
	if !ok || e.n != n {
		return nil
	}
	return e
}

func (m *Model) inputProviderEntry(g *graph.Graph) *entry {
	if ip := g.InputProvider(); ip != nil {
		return m.entryOf(ip)
	}
	return nil
}

func (m *Model) outputProviderEntry(g *graph.Graph) *entry {
	if op := g.OutputProvider(); op != nil {
		return m.entryOf(op)
	}
	return nil
}

// groupOf returns the entry of the group owning a provider.
func (m *Model) groupOf(e *entry) *entry {
	if e.owner == nil {
		return nil
	}
	return m.entryOf(e.owner)
}

// depsLocked returns the entries that must be Valid before e can be
// evaluated.
func (m *Model) depsLocked(e *entry) []*entry {
	switch n := e.n.(type) {
	case *graph.Graph:
		if op := m.outputProviderEntry(n); op != nil {
			return []*entry{op}
		}
		return nil
	case *graph.InputProvider:
		ge := m.groupOf(e)
		if ge == nil || ge.owner == nil {
			return nil
		}
		return m.producersLocked(ge.owner, ge.n.ID())
	default:
		if e.owner == nil {
			return nil
		}
		return m.producersLocked(e.owner, n.ID())
	}
}

func (m *Model) producersLocked(owner *graph.Graph, id nodeid.NodeID) []*entry {
	ids, err := owner.FindDirectDependencies(id)
	if err != nil {
		return nil
	}
	out := make([]*entry, 0, len(ids))
	for _, dep := range ids {
		n, ok := owner.Node(dep)
		if !ok {
			continue
		}
		if de := m.entryOf(n); de != nil {
			out = append(out, de)
		}
	}
	return out
}

// dependentsLocked returns the entries consuming data produced by e. Data
// flowing into a group is consumed by the group's input provider.
func (m *Model) dependentsLocked(e *entry) []*entry {
	if _, ok := e.n.(*graph.OutputProvider); ok {
		if ge := m.groupOf(e); ge != nil {
			return []*entry{ge}
		}
		return nil
	}
	if e.owner == nil {
		return nil
	}
	ids, err := e.owner.FindDirectDependents(e.n.ID())
	if err != nil {
		return nil
	}
	out := make([]*entry, 0, len(ids))
	for _, id := range ids {
		n, ok := e.owner.Node(id)
		if !ok {
			continue
		}
		if sub, ok := n.(*graph.Graph); ok {
			if ip := m.inputProviderEntry(sub); ip != nil {
				out = append(out, ip)
			}
			continue
		}
		if ce := m.entryOf(n); ce != nil {
			out = append(out, ce)
		}
	}
	return out
}

func (m *Model) depsValidLocked(e *entry) bool {
	for _, d := range m.depsLocked(e) {
		if d.evalState() != Valid {
			return false
		}
	}
	return true
}

// invalidateLocked marks start and everything downstream of it Outdated.
// Running evaluations keep running; their results are discarded.
func (m *Model) invalidateLocked(start *entry) {
	seen := map[*entry]bool{start: true}
	queue := []*entry{start}
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]

		e.gen++
		e.failed = nil
		switch e.n.(type) {
		case *graph.Graph:
			outdatePorts(e, node.Out)
		case *graph.InputProvider:
			outdatePorts(e, node.Out)
			if ge := m.groupOf(e); ge != nil {
				outdatePorts(ge, node.In)
			}
		default:
			outdatePorts(e, node.In)
			outdatePorts(e, node.Out)
		}
		if e.state == Valid {
			m.logger.Debug("Invalidating node.", "node", e.n.UUID(), "type", e.n.TypeName())
			m.setStateLocked(e, Outdated)
		}

		for _, d := range m.dependentsLocked(e) {
			if !seen[d] {
				seen[d] = true
				queue = append(queue, d)
			}
		}
	}
	m.touchLocked()
}

func outdatePorts(e *entry, dir node.Direction) {
	for _, pe := range e.ports {
		if pe.dir == dir {
			pe.state = PortOutdated
		}
	}
}

// inputChangedLocked handles a changed input of n: the input's data is
// dropped if drop is set and n, or the input provider of a group, is
// invalidated.
func (m *Model) inputChangedLocked(n node.Node, port nodeid.PortID, drop bool) {
	e := m.entryOf(n)
	if e == nil {
		return
	}
	if pe, ok := e.ports[port]; ok && drop {
		pe.value = cty.NilVal
		pe.state = PortOutdated
	}
	m.invalidateInputsLocked(e)
}

func (m *Model) invalidateInputsLocked(e *entry) {
	if g, ok := e.n.(*graph.Graph); ok {
		if ip := m.inputProviderEntry(g); ip != nil {
			m.invalidateLocked(ip)
			return
		}
		m.touchLocked()
		return
	}
	m.invalidateLocked(e)
}

func (m *Model) onRootEvent(ev node.Event) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if e := m.entryOf(m.root); e != nil {
		m.portEventLocked(e, ev.Kind, ev.Direction, ev.Port)
	}
	jobs := m.advanceLocked()
	m.unlock()
	m.execute(jobs)
}

func (m *Model) portEventLocked(e *entry, kind node.EventKind, dir node.Direction, port nodeid.PortID) {
	switch kind {
	case node.PortInserted:
		e.ports[port] = &portEntry{dir: dir, value: cty.NilVal}
	case node.PortDeleted:
		delete(e.ports, port)
	case node.PortChanged, node.NodeChanged:
	default:
		return
	}
	if e.isGroup() && kind != node.NodeChanged {
		// the group's ports are mirrored onto its providers, which report
		// their own changes
		if dir == node.In {
			m.invalidateInputsLocked(e)
		} else {
			m.invalidateLocked(e)
		}
		return
	}
	m.invalidateLocked(e)
}

func (m *Model) onGraphEvent(ev graph.Event) {
	if ev.Kind == graph.Disposed && ev.Graph == m.root {
		m.Close()
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	switch ev.Kind {
	case graph.NodeAppended:
		if sub, ok := ev.Node.(*graph.Graph); ok {
			m.watchLocked(sub, ev.Graph)
		} else {
			m.addEntryLocked(ev.Node, ev.Graph)
		}
		m.touchLocked()

	case graph.NodeDeleted:
		for _, c := range ev.Removed {
			if c.OutNodeID != ev.NodeID || c.InNodeID == ev.NodeID {
				continue
			}
			if consumer, ok := ev.Graph.Node(c.InNodeID); ok {
				m.inputChangedLocked(consumer, c.InPort, true)
			}
		}
		if _, ok := ev.Node.(*graph.OutputProvider); ok {
			if ge := m.entryOf(ev.Graph); ge != nil {
				m.invalidateLocked(ge)
			}
		}
		m.removeEntryLocked(ev.Node)
		m.touchLocked()

	case graph.ConnectionAppended, graph.ConnectionDeleted:
		if consumer, ok := ev.Graph.Node(ev.Connection.InNodeID); ok {
			m.inputChangedLocked(consumer, ev.Connection.InPort, ev.Kind == graph.ConnectionDeleted)
		}
		if ev.Kind == graph.ConnectionAppended {
			if err := m.root.CheckAcyclic(); err != nil {
				m.failPassesLocked(fmt.Errorf("%w: %w", ErrCyclicGraph, err))
			}
		}

	case graph.PortInserted, graph.PortDeleted, graph.PortChanged, graph.NodeChanged:
		kind := map[graph.EventKind]node.EventKind{
			graph.PortInserted: node.PortInserted,
			graph.PortDeleted:  node.PortDeleted,
			graph.PortChanged:  node.PortChanged,
			graph.NodeChanged:  node.NodeChanged,
		}[ev.Kind]
		if e := m.entryOf(ev.Node); e != nil {
			m.portEventLocked(e, kind, ev.Direction, ev.Port)
		}
	}

	jobs := m.advanceLocked()
	m.unlock()
	m.execute(jobs)
}

// graphTargetsLocked returns the terminal nodes of g and of every graph
// nested in it.
func (m *Model) graphTargetsLocked(g *graph.Graph) []nodeid.NodeUUID {
	var out []nodeid.NodeUUID
	for _, id := range g.TerminalNodes() {
		if n, ok := g.Node(id); ok {
			out = append(out, n.UUID())
		}
	}
	for _, sub := range g.Subgraphs() {
		for _, u := range m.graphTargetsLocked(sub) {
			if !slices.Contains(out, u) {
				out = append(out, u)
			}
		}
	}
	return out
}

// treeEntriesLocked returns the entries of every node nested in g.
func (m *Model) treeEntriesLocked(g *graph.Graph) []*entry {
	var out []*entry
	for _, n := range g.Nodes() {
		if e := m.entryOf(n); e != nil {
			out = append(out, e)
		}
		if sub, ok := n.(*graph.Graph); ok {
			out = append(out, m.treeEntriesLocked(sub)...)
		}
	}
	return out
}
