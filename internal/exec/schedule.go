package exec

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/ctxlog"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/graph"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/node"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/nodeid"
	"github.com/zclconf/go-cty/cty"
)

// pass is one evaluation request over a set of target nodes.
type pass struct {
	id      uint64
	targets []nodeid.NodeUUID
	auto    *autoTarget
	started time.Time
	done    chan struct{}
	err     error
}

func (p *pass) finished() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// autoTarget keeps a node or graph evaluated until it is stopped.
type autoTarget struct {
	uuid  nodeid.NodeUUID
	graph *graph.Graph
	pass  *pass
	// failed suppresses re-arming until the next change of the model.
	failed bool
}

// job is a dispatched evaluation of one node generation.
type job struct {
	e      *entry
	gen    uint64
	mode   node.EvalMode
	domain string

	// exclusive jobs of one domain take the token in dispatch order: after
	// is closed once the previous job holds or gave up the token, turn once
	// this one does.
	after <-chan struct{}
	turn  chan struct{}
}

func (m *Model) newPassLocked(targets []nodeid.NodeUUID, auto *autoTarget) *pass {
	m.nextPass++
	p := &pass{
		id:      m.nextPass,
		targets: targets,
		auto:    auto,
		started: time.Now(),
		done:    make(chan struct{}),
	}
	m.passes[p] = struct{}{}
	if auto != nil {
		auto.pass = p
		m.logger.Debug("Auto evaluation pass started.", "pass", p.id, "targets", len(targets))
	} else {
		m.logger.Info("▶️ Evaluation pass started.", "pass", p.id, "targets", len(targets))
	}
	m.emitLocked(Event{Kind: PassStarted, Pass: p.id, Targets: len(targets), Auto: auto != nil})
	return p
}

func (m *Model) finishLocked(p *pass, err error) {
	if p.finished() {
		return
	}
	p.err = err
	close(p.done)
	delete(m.passes, p)
	if a := p.auto; a != nil && a.pass == p {
		a.pass = nil
		a.failed = err != nil
	}

	elapsed := time.Since(p.started)
	switch {
	case err != nil:
		m.logger.Warn("❌ Evaluation pass failed.", "pass", p.id, "error", err)
	case p.auto != nil:
		m.logger.Debug("Auto evaluation pass finished.", "pass", p.id, "duration", elapsed)
	default:
		m.logger.Info("✅ Evaluation pass finished.", "pass", p.id, "duration", elapsed)
	}
	m.emitLocked(Event{Kind: PassFinished, Pass: p.id, Targets: len(p.targets), Auto: p.auto != nil, Duration: elapsed, Err: err})
	m.notifyLocked()
}

// failPassesLocked finishes every open pass with err. Running evaluations
// are left to complete.
func (m *Model) failPassesLocked(err error) {
	passes := make([]*pass, 0, len(m.passes))
	for p := range m.passes {
		passes = append(passes, p)
	}
	slices.SortFunc(passes, func(a, b *pass) int { return cmp.Compare(a.id, b.id) })
	for _, p := range passes {
		m.finishLocked(p, err)
	}
}

// touchLocked lets failed auto targets retry after a change.
func (m *Model) touchLocked() {
	for _, a := range m.autoNodes {
		a.failed = false
	}
	for _, a := range m.autoGraphs {
		a.failed = false
	}
}

func (m *Model) autoTargetsLocked(a *autoTarget) []nodeid.NodeUUID {
	if a.graph != nil {
		return m.graphTargetsLocked(a.graph)
	}
	return []nodeid.NodeUUID{a.uuid}
}

// rearmLocked starts a pass for every auto target that is no longer Valid.
// On a cyclic tree the passes fail at once and nothing is dispatched.
func (m *Model) rearmLocked() bool {
	armed := false
	checked := false
	var cyclic error
	rearm := func(a *autoTarget) {
		if a.pass != nil || a.failed {
			return
		}
		targets := m.autoTargetsLocked(a)
		if m.allValidLocked(targets) {
			return
		}
		if !checked {
			checked = true
			if err := m.root.CheckAcyclic(); err != nil {
				cyclic = fmt.Errorf("%w: %w", ErrCyclicGraph, err)
			}
		}
		p := m.newPassLocked(targets, a)
		if cyclic != nil {
			m.finishLocked(p, cyclic)
		}
		armed = true
	}
	for _, a := range m.autoNodes {
		rearm(a)
	}
	for _, a := range m.autoGraphs {
		rearm(a)
	}
	return armed
}

func (m *Model) allValidLocked(targets []nodeid.NodeUUID) bool {
	for _, u := range targets {
		e, ok := m.entries[u]
		if !ok || e.evalState() != Valid {
			return false
		}
	}
	return true
}

// advanceLocked drives every pass as far as possible and returns the jobs to
// execute once the lock is released.
func (m *Model) advanceLocked() []job {
	if m.closed {
		return nil
	}
	var jobs []job
	for {
		progressed := m.rearmLocked()
		passes := make([]*pass, 0, len(m.passes))
		for p := range m.passes {
			passes = append(passes, p)
		}
		slices.SortFunc(passes, func(a, b *pass) int { return cmp.Compare(a.id, b.id) })

		for _, p := range passes {
			j, prog := m.progressLocked(p)
			jobs = append(jobs, j...)
			progressed = progressed || prog
		}
		if !progressed {
			return jobs
		}
	}
}

// progressLocked dispatches the ready nodes of a pass and finishes the pass
// once its targets are Valid or nothing can move anymore.
func (m *Model) progressLocked(p *pass) ([]job, bool) {
	targets := make([]*entry, 0, len(p.targets))
	for _, u := range p.targets {
		e, ok := m.entries[u]
		if !ok {
			m.finishLocked(p, fmt.Errorf("%w: %s", ErrNodeNotFound, u))
			return nil, true
		}
		targets = append(targets, e)
	}
	if m.allValidLocked(p.targets) {
		m.finishLocked(p, nil)
		return nil, true
	}

	var (
		jobs       []job
		inFlight   bool
		progressed bool
		cause      error
	)
	for _, e := range m.closureLocked(targets) {
		switch {
		case e.running || e.pending:
			inFlight = true
		case e.paused:
			if cause == nil {
				cause = fmt.Errorf("%w: %s (%s)", ErrPaused, e.n.TypeName(), e.n.UUID())
			}
		case e.state == Valid:
		case e.failed != nil:
			if cause == nil {
				cause = e.failed
			}
		case !m.depsValidLocked(e):
		case e.isGroup():
			m.completeGroupLocked(e)
			progressed = true
		default:
			jobs = append(jobs, m.dispatchLocked(e))
			inFlight = true
		}
	}
	if len(jobs) > 0 || inFlight || progressed {
		return jobs, progressed
	}
	if cause == nil {
		cause = ErrStalled
	}
	m.finishLocked(p, cause)
	return nil, true
}

// closureLocked returns targets and everything they depend on, targets first.
func (m *Model) closureLocked(targets []*entry) []*entry {
	seen := make(map[*entry]bool, len(targets))
	out := make([]*entry, 0, len(targets))
	for _, t := range targets {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for i := 0; i < len(out); i++ {
		for _, d := range m.depsLocked(out[i]) {
			if !seen[d] {
				seen[d] = true
				out = append(out, d)
			}
		}
	}
	return out
}

// resetFailuresLocked clears the failures in the closure of an explicit
// request so the failed nodes are retried.
func (m *Model) resetFailuresLocked(targets []nodeid.NodeUUID) {
	var es []*entry
	for _, u := range targets {
		if e, ok := m.entries[u]; ok {
			es = append(es, e)
		}
	}
	for _, e := range m.closureLocked(es) {
		e.failed = nil
	}
}

// completeGroupLocked routes the values collected by the output provider to
// the group's output ports.
func (m *Model) completeGroupLocked(ge *entry) {
	g := ge.n.(*graph.Graph)
	if op := m.outputProviderEntry(g); op != nil {
		for i, p := range op.n.Ports(node.In) {
			outer := g.PortID(node.Out, nodeid.PortIndex(i))
			if !outer.IsValid() {
				continue
			}
			v := cty.NilVal
			if pe, ok := op.ports[p.ID]; ok {
				v = pe.value
			}
			m.setOutputLocked(ge, outer, v)
		}
	}
	m.setStateLocked(ge, Valid)
	m.logger.Debug("Group evaluated.", "node", g.UUID())
}

// setOutputLocked stores an output value. Consumers read it when they are
// evaluated; their own port data is left untouched.
func (m *Model) setOutputLocked(e *entry, port nodeid.PortID, v cty.Value) {
	m.setPortLocked(e, port, node.Out, v)
}

func (m *Model) dispatchLocked(e *entry) job {
	e.pending = true
	b := e.n.NodeBase()
	j := job{e: e, gen: e.gen, mode: b.EvalMode(), domain: b.ExclusivityDomain()}
	if j.mode == node.ExclusiveDetached {
		j.after = m.turns[j.domain]
		j.turn = make(chan struct{})
		m.turns[j.domain] = j.turn
	}
	m.logger.Debug("Dispatching node.", "node", e.n.UUID(), "type", e.n.TypeName(), "mode", j.mode)
	return j
}

// execute runs inline jobs on the calling goroutine and hands detached jobs
// to the worker pool.
func (m *Model) execute(jobs []job) {
	for len(jobs) > 0 {
		j := jobs[0]
		jobs = jobs[1:]
		if j.mode == node.Inline {
			jobs = append(jobs, m.run(j)...)
			continue
		}
		m.spawn(j)
	}
}

func (m *Model) spawn(j job) {
	m.running.Add(1)
	go func() {
		defer m.running.Done()

		var release func()
		if j.mode == node.ExclusiveDetached {
			r, err := m.acquireExclusive(j)
			if err != nil {
				m.execute(m.abandon(j, err))
				return
			}
			release = r
		}
		if err := m.workers.Acquire(m.ctx, 1); err != nil {
			if release != nil {
				release()
			}
			m.execute(m.abandon(j, err))
			return
		}

		next := m.run(j)
		m.workers.Release(1)
		if release != nil {
			release()
		}
		m.execute(next)
	}()
}

func (m *Model) acquireExclusive(j job) (func(), error) {
	defer close(j.turn)
	if j.after != nil {
		select {
		case <-j.after:
		case <-m.ctx.Done():
			return nil, m.ctx.Err()
		}
	}
	return m.broker.Acquire(m.ctx, j.domain)
}

// abandon gives up a job that never started.
func (m *Model) abandon(j job, err error) []job {
	m.mu.Lock()
	j.e.pending = false
	if m.closed {
		m.unlock()
		return nil
	}
	if j.e.gen == j.gen {
		j.e.failed = fmt.Errorf("%w: %w", ErrEvalCancelled, err)
	}
	jobs := m.advanceLocked()
	m.unlock()
	return jobs
}

func (m *Model) run(j job) []job {
	inv, ok, jobs := m.start(j)
	if !ok {
		return jobs
	}

	e := j.e
	ctx := ctxlog.WithLogger(m.ctx, m.logger.With("node", e.n.UUID(), "type", e.n.TypeName()))
	started := time.Now()
	err := invoke(ctx, e.n, inv)
	return m.complete(j, inv, err, time.Since(started))
}

// start marks the node Evaluating and snapshots its inputs, unless the job
// became obsolete while it was queued.
func (m *Model) start(j job) (*node.Invocation, bool, []job) {
	m.mu.Lock()
	e := j.e
	e.pending = false
	if m.closed {
		m.unlock()
		return nil, false, nil
	}
	if m.entryOf(e.n) != e || e.gen != j.gen || e.paused || e.state == Valid || e.running || !m.depsValidLocked(e) {
		jobs := m.advanceLocked()
		m.unlock()
		return nil, false, jobs
	}

	inv, err := m.snapshotLocked(e)
	if err != nil {
		e.failed = fmt.Errorf("evaluate %s (%s): %w", e.n.TypeName(), e.n.UUID(), err)
		m.logger.Warn("Node cannot be evaluated.", "node", e.n.UUID(), "type", e.n.TypeName(), "error", err)
		jobs := m.advanceLocked()
		m.unlock()
		return nil, false, jobs
	}

	e.running = true
	m.syncStateLocked(e)
	m.recordInputsLocked(e)
	m.logger.Debug("Node evaluation started.", "node", e.n.UUID(), "type", e.n.TypeName())
	m.unlock()
	return inv, true, nil
}

// snapshotLocked collects the input values of e.
func (m *Model) snapshotLocked(e *entry) (*node.Invocation, error) {
	ins := e.n.Ports(node.In)
	outs := e.n.Ports(node.Out)
	inputs := make(map[nodeid.PortID][]cty.Value, len(ins))

	if _, ok := e.n.(*graph.InputProvider); ok {
		ge := m.groupOf(e)
		if ge == nil {
			return node.NewInvocation(ins, outs, inputs), nil
		}
		g := ge.n.(*graph.Graph)
		for i, p := range outs {
			outer := g.PortID(node.In, nodeid.PortIndex(i))
			if vals := m.inputValuesLocked(ge, outer); len(vals) > 0 {
				inputs[p.ID] = vals[:1]
			}
		}
		return node.NewInvocation(ins, outs, inputs), nil
	}

	for _, p := range ins {
		if vals := m.inputValuesLocked(e, p.ID); len(vals) > 0 {
			inputs[p.ID] = vals
			continue
		}
		if !p.Optional {
			caption := p.Caption
			if caption == "" {
				caption = p.ID.String()
			}
			return nil, fmt.Errorf("%w: port %s", ErrMissingInput, caption)
		}
	}
	return node.NewInvocation(ins, outs, inputs), nil
}

// inputValuesLocked returns the present values reaching an input port of e.
// Connected ports read their producers' outputs; unconnected ports read data
// set on the port itself.
func (m *Model) inputValuesLocked(e *entry, port nodeid.PortID) []cty.Value {
	var conns []nodeid.ConnectionID
	if e.owner != nil {
		for _, c := range e.owner.ConnectionsOf(e.n.ID(), node.In) {
			if c.InPort == port {
				conns = append(conns, c)
			}
		}
	}
	var vals []cty.Value
	if len(conns) == 0 {
		if pe, ok := e.ports[port]; ok && !pe.value.IsNull() {
			vals = append(vals, pe.value)
		}
		return vals
	}
	for _, c := range conns {
		src, ok := e.owner.Node(c.OutNodeID)
		if !ok {
			continue
		}
		se := m.entryOf(src)
		if se == nil {
			continue
		}
		if pe, ok := se.ports[c.OutPort]; ok && !pe.value.IsNull() {
			vals = append(vals, pe.value)
		}
	}
	return vals
}

// recordInputsLocked stores the values e is about to be evaluated with on its
// own connected input ports. An input provider records the outer inputs of
// its group.
func (m *Model) recordInputsLocked(e *entry) {
	target := e
	if _, ok := e.n.(*graph.InputProvider); ok {
		if target = m.groupOf(e); target == nil {
			return
		}
	}
	if target.owner == nil {
		return
	}
	for _, p := range target.n.Ports(node.In) {
		if len(target.owner.PortConnections(target.n.ID(), p.ID)) == 0 {
			continue
		}
		v := cty.NilVal
		if vals := m.inputValuesLocked(target, p.ID); len(vals) > 0 {
			v = vals[0]
		}
		m.setPortLocked(target, p.ID, node.In, v)
	}
}

func invoke(ctx context.Context, n node.Node, inv *node.Invocation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrNodePanicked, r)
		}
	}()
	return node.Run(ctx, n, inv)
}

// complete records the result of an evaluation.
func (m *Model) complete(j job, inv *node.Invocation, err error, elapsed time.Duration) []job {
	m.mu.Lock()
	e := j.e
	e.running = false
	if m.closed {
		m.unlock()
		return nil
	}
	if m.entryOf(e.n) != e {
		jobs := m.advanceLocked()
		m.unlock()
		return jobs
	}

	uuid, typeName := e.n.UUID(), e.n.TypeName()
	switch {
	case e.gen != j.gen:
		m.logger.Debug("Discarding stale evaluation result.", "node", uuid, "type", typeName)
		m.setStateLocked(e, Outdated)
	case err != nil:
		e.failed = fmt.Errorf("evaluate %s (%s): %w", typeName, uuid, err)
		m.logger.Warn("Node evaluation failed.", "node", uuid, "type", typeName, "error", err)
		m.setStateLocked(e, Outdated)
		m.emitLocked(Event{Kind: NodeEvaluated, UUID: uuid, TypeName: typeName, State: e.evalState(), Duration: elapsed, Err: err})
	default:
		outputs := inv.Outputs()
		for _, p := range e.n.Ports(node.Out) {
			v, ok := outputs[p.ID]
			if !ok {
				v = cty.NilVal
			}
			m.setOutputLocked(e, p.ID, v)
		}
		if _, ok := e.n.(*graph.OutputProvider); ok {
			// the collected inputs are what the group forwards
			for id, v := range outputs {
				if pe, ok := e.ports[id]; ok && pe.dir == node.In {
					pe.value = v
				}
			}
		}
		m.setStateLocked(e, Valid)
		m.logger.Debug("Node evaluation finished.", "node", uuid, "type", typeName, "duration", elapsed)
		m.emitLocked(Event{Kind: NodeEvaluated, UUID: uuid, TypeName: typeName, State: e.evalState(), Duration: elapsed})
	}

	jobs := m.advanceLocked()
	m.unlock()
	return jobs
}
