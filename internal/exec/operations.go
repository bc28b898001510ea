package exec

import (
	"fmt"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/graph"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/node"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/nodeid"
	"github.com/zclconf/go-cty/cty"
)

// request creates a pass over the given targets and drives it as far as
// possible. Inline nodes run before request returns.
func (m *Model) request(targets func() ([]nodeid.NodeUUID, error)) *Future {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return resolvedFuture(m, ErrClosed)
	}
	uuids, err := targets()
	if err != nil {
		m.mu.Unlock()
		return resolvedFuture(m, err)
	}
	if err := m.root.CheckAcyclic(); err != nil {
		m.mu.Unlock()
		m.logger.Warn("Evaluation rejected.", "error", err)
		return resolvedFuture(m, fmt.Errorf("%w: %w", ErrCyclicGraph, err))
	}
	if len(uuids) == 0 {
		m.mu.Unlock()
		return resolvedFuture(m, nil)
	}

	m.resetFailuresLocked(uuids)
	p := m.newPassLocked(uuids, nil)
	jobs := m.advanceLocked()
	m.unlock()
	m.execute(jobs)
	return newFuture(m, p)
}

func (m *Model) nodeTarget(uuid nodeid.NodeUUID) func() ([]nodeid.NodeUUID, error) {
	return func() ([]nodeid.NodeUUID, error) {
		if _, ok := m.entries[uuid]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, uuid)
		}
		return []nodeid.NodeUUID{uuid}, nil
	}
}

func (m *Model) graphTarget(g *graph.Graph) func() ([]nodeid.NodeUUID, error) {
	return func() ([]nodeid.NodeUUID, error) {
		if _, ok := m.watched[g]; !ok {
			return nil, ErrNotInTree
		}
		return m.graphTargetsLocked(g), nil
	}
}

// EvaluateNode evaluates the node and everything it depends on. Valid nodes
// are not evaluated again. Requesting a node that is already evaluating joins
// the running evaluation.
func (m *Model) EvaluateNode(uuid nodeid.NodeUUID) *Future {
	return m.request(m.nodeTarget(uuid))
}

// EvaluateGraph evaluates the terminal nodes of g and of every graph nested
// in it. The future of an empty graph is finished immediately.
func (m *Model) EvaluateGraph(g *graph.Graph) *Future {
	return m.request(m.graphTarget(g))
}

// AutoEvaluateNode keeps the node Valid: every change that makes it Outdated
// starts a new evaluation. The returned future tracks the first pass.
func (m *Model) AutoEvaluateNode(uuid nodeid.NodeUUID) *Future {
	return m.auto(m.nodeTarget(uuid), func() *autoTarget {
		a, ok := m.autoNodes[uuid]
		if !ok {
			a = &autoTarget{uuid: uuid}
			m.autoNodes[uuid] = a
		}
		return a
	})
}

// AutoEvaluateGraph keeps the terminal nodes of g Valid.
func (m *Model) AutoEvaluateGraph(g *graph.Graph) *Future {
	return m.auto(m.graphTarget(g), func() *autoTarget {
		a, ok := m.autoGraphs[g]
		if !ok {
			a = &autoTarget{graph: g}
			m.autoGraphs[g] = a
		}
		return a
	})
}

func (m *Model) auto(targets func() ([]nodeid.NodeUUID, error), register func() *autoTarget) *Future {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return resolvedFuture(m, ErrClosed)
	}
	uuids, err := targets()
	if err != nil {
		m.mu.Unlock()
		return resolvedFuture(m, err)
	}
	if err := m.root.CheckAcyclic(); err != nil {
		m.mu.Unlock()
		m.logger.Warn("Auto evaluation rejected.", "error", err)
		return resolvedFuture(m, fmt.Errorf("%w: %w", ErrCyclicGraph, err))
	}

	a := register()
	a.failed = false
	m.resetFailuresLocked(uuids)
	p := a.pass
	if p == nil {
		p = m.newPassLocked(uuids, a)
	}
	jobs := m.advanceLocked()
	m.unlock()
	m.execute(jobs)
	return newFuture(m, p)
}

// StopAutoEvaluatingNode stops keeping the node Valid. A running pass is
// allowed to finish.
func (m *Model) StopAutoEvaluatingNode(uuid nodeid.NodeUUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.autoNodes[uuid]; ok {
		if a.pass != nil {
			a.pass.auto = nil
		}
		delete(m.autoNodes, uuid)
	}
}

// StopAutoEvaluatingGraph stops keeping g Valid.
func (m *Model) StopAutoEvaluatingGraph(g *graph.Graph) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.autoGraphs[g]; ok {
		if a.pass != nil {
			a.pass.auto = nil
		}
		delete(m.autoGraphs, g)
	}
}

// IsAutoEvaluatingNode reports whether the node is kept Valid.
func (m *Model) IsAutoEvaluatingNode(uuid nodeid.NodeUUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.autoNodes[uuid]
	return ok
}

// IsAutoEvaluatingGraph reports whether g is kept Valid.
func (m *Model) IsAutoEvaluatingGraph(g *graph.Graph) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.autoGraphs[g]
	return ok
}

// InvalidateNode marks the node and everything downstream of it Outdated.
// Invalidating a group invalidates its content too.
func (m *Model) InvalidateNode(uuid nodeid.NodeUUID) error {
	m.mu.Lock()
	e, err := m.lookupLocked(uuid)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if g, ok := e.n.(*graph.Graph); ok {
		if ip := m.inputProviderEntry(g); ip != nil {
			m.invalidateLocked(ip)
		}
	}
	m.invalidateLocked(e)
	jobs := m.advanceLocked()
	m.unlock()
	m.execute(jobs)
	return nil
}

// SetNodeData places a value on a port. Data set on an output port is Valid
// and read by connected inputs, whose nodes become Outdated. Data set on
// an input port makes the node Outdated; for a group it feeds the group's
// input provider.
func (m *Model) SetNodeData(uuid nodeid.NodeUUID, port nodeid.PortID, v cty.Value) error {
	m.mu.Lock()
	e, err := m.lookupLocked(uuid)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	_, dir, ok := e.n.NodeBase().Port(port)
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s on %s", ErrPortNotFound, port, uuid)
	}

	if dir == node.Out {
		for _, d := range m.dependentsLocked(e) {
			m.invalidateLocked(d)
		}
		m.setOutputLocked(e, port, v)
	} else {
		m.invalidateInputsLocked(e)
		m.setPortLocked(e, port, node.In, v)
	}
	m.touchLocked()

	jobs := m.advanceLocked()
	m.unlock()
	m.execute(jobs)
	return nil
}

// PauseNode stops the node from being evaluated. Its cached data stays
// readable; passes depending on it fail.
func (m *Model) PauseNode(uuid nodeid.NodeUUID) error {
	m.mu.Lock()
	e, err := m.lookupLocked(uuid)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	e.paused = true
	m.syncStateLocked(e)
	jobs := m.advanceLocked()
	m.unlock()
	m.execute(jobs)
	return nil
}

// ResumeNode makes a paused node Outdated again, together with everything
// downstream of it.
func (m *Model) ResumeNode(uuid nodeid.NodeUUID) error {
	m.mu.Lock()
	e, err := m.lookupLocked(uuid)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if e.paused {
		e.paused = false
		if e.isGroup() {
			if ip := m.inputProviderEntry(e.n.(*graph.Graph)); ip != nil {
				m.invalidateLocked(ip)
			}
		}
		m.invalidateLocked(e)
		m.syncStateLocked(e)
	}
	jobs := m.advanceLocked()
	m.unlock()
	m.execute(jobs)
	return nil
}

func (m *Model) lookupLocked(uuid nodeid.NodeUUID) (*entry, error) {
	if m.closed {
		return nil, ErrClosed
	}
	e, ok := m.entries[uuid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, uuid)
	}
	return e, nil
}

// NodeEvalState returns the evaluation state of a node. Unknown nodes are
// Invalid.
func (m *Model) NodeEvalState(uuid nodeid.NodeUUID) NodeEvalState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[uuid]; ok {
		return e.evalState()
	}
	return Invalid
}

// NodeData returns the cached data of a port. A null value means no data.
func (m *Model) NodeData(uuid nodeid.NodeUUID, port nodeid.PortID) (PortData, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[uuid]
	if !ok {
		return PortData{Value: cty.NilVal}, false
	}
	pe, ok := e.ports[port]
	if !ok {
		return PortData{Value: cty.NilVal}, false
	}
	return PortData{Value: pe.value, State: pe.state}, true
}

// IsNodeEvaluated reports whether the node is Valid.
func (m *Model) IsNodeEvaluated(uuid nodeid.NodeUUID) bool {
	return m.NodeEvalState(uuid) == Valid
}

// IsGraphEvaluated reports whether every node nested in g is Valid. An empty
// graph is evaluated.
func (m *Model) IsGraphEvaluated(g *graph.Graph) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.watched[g]; !ok {
		return false
	}
	for _, e := range m.treeEntriesLocked(g) {
		if e.evalState() != Valid {
			return false
		}
	}
	return true
}
