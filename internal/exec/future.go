package exec

import (
	"context"
	"sync"
	"time"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/nodeid"
	"github.com/zclconf/go-cty/cty"
)

// Future tracks one or more evaluation passes. The zero value is not usable;
// futures are returned by the evaluation requests of a Model.
type Future struct {
	m       *Model
	passes  []*pass
	targets []nodeid.NodeUUID

	doneOnce sync.Once
	done     chan struct{}
}

func newFuture(m *Model, p *pass) *Future {
	return &Future{m: m, passes: []*pass{p}, targets: p.targets}
}

// resolvedFuture returns a future that is already finished with err.
func resolvedFuture(m *Model, err error) *Future {
	p := &pass{done: make(chan struct{}), err: err, started: time.Now()}
	close(p.done)
	return newFuture(m, p)
}

// Targets returns the nodes the future waits for.
func (f *Future) Targets() []nodeid.NodeUUID {
	return append([]nodeid.NodeUUID(nil), f.targets...)
}

// Done returns a channel that is closed once every pass has finished.
func (f *Future) Done() <-chan struct{} {
	if len(f.passes) == 1 {
		return f.passes[0].done
	}
	f.doneOnce.Do(func() {
		f.done = make(chan struct{})
		go func() {
			for _, p := range f.passes {
				<-p.done
			}
			close(f.done)
		}()
	})
	return f.done
}

// Finished reports whether every pass has finished.
func (f *Future) Finished() bool {
	for _, p := range f.passes {
		if !p.finished() {
			return false
		}
	}
	return true
}

// Err returns nil once every pass succeeded, the first failure once all
// passes have finished, and ErrNotFinished before that.
func (f *Future) Err() error {
	if !f.Finished() {
		return ErrNotFinished
	}
	for _, p := range f.passes {
		if p.err != nil {
			return p.err
		}
	}
	return nil
}

// Wait blocks until every pass finished or the timeout expired and reports
// whether all targets were evaluated. A negative timeout waits forever.
func (f *Future) Wait(timeout time.Duration) bool {
	ctx := context.Background()
	if timeout >= 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return f.WaitContext(ctx) == nil
}

// WaitContext blocks until every pass finished or ctx is done.
func (f *Future) WaitContext(ctx context.Context) error {
	for _, p := range f.passes {
		if p.finished() {
			continue
		}
		select {
		case <-p.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.Err()
}

// Then calls fn exactly once with the outcome after every pass finished. fn
// runs on its own goroutine.
func (f *Future) Then(fn func(ok bool)) *Future {
	go func() {
		fn(f.WaitContext(context.Background()) == nil)
	}()
	return f
}

// Join returns a future that finishes once both f and other have finished.
// It succeeds only if both succeed.
func (f *Future) Join(other *Future) *Future {
	joined := &Future{m: f.m}
	joined.passes = append(append(joined.passes, f.passes...), other.passes...)
	joined.targets = append(append(joined.targets, f.targets...), other.targets...)
	return joined
}

// Detach gives up waiting. The evaluation continues; a failure is logged.
func (f *Future) Detach() {
	go func() {
		if err := f.WaitContext(context.Background()); err != nil && f.m != nil {
			f.m.logger.Warn("Detached evaluation failed.", "error", err)
		}
	}()
}

// Get waits until the given node alone is Valid and returns the data of one
// of its ports. Other targets of the future may still be evaluating. It
// reports false on timeout, if the node failed or was removed, or if the
// future finished without evaluating the node. A negative timeout waits
// forever.
func (f *Future) Get(uuid nodeid.NodeUUID, port nodeid.PortID, timeout time.Duration) (cty.Value, bool) {
	if f.m == nil {
		return cty.NilVal, false
	}
	var expired <-chan time.Time
	if timeout >= 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	m := f.m
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return cty.NilVal, false
		}
		e, ok := m.entries[uuid]
		if !ok || e.failed != nil {
			m.mu.Unlock()
			return cty.NilVal, false
		}
		if e.state == Valid && !e.running {
			v := cty.NilVal
			if pe, ok := e.ports[port]; ok {
				v = pe.value
			}
			m.mu.Unlock()
			return v, true
		}
		if f.Finished() && !e.running && !e.pending {
			m.mu.Unlock()
			return cty.NilVal, false
		}
		changed := m.changed
		m.mu.Unlock()

		select {
		case <-changed:
		case <-expired:
			return cty.NilVal, false
		}
	}
}
