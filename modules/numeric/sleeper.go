package numeric

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/ctxlog"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/node"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/nodeid"
	"github.com/zclconf/go-cty/cty"
)

// SleeperType is the registered type name of Sleeper.
const SleeperType = "Sleeper"

type sleeperSettings struct {
	DelayMS   int    `mapstructure:"delay_ms"`
	Exclusive bool   `mapstructure:"exclusive"`
	Domain    string `mapstructure:"domain"`
}

// Sleeper waits for a configured delay and forwards its input. It always runs
// detached; with Exclusive set it runs in its exclusivity domain.
type Sleeper struct {
	node.Base

	mu       sync.RWMutex
	settings sleeperSettings
	in, out  nodeid.PortID
	running  atomic.Int32
	evals    atomic.Int32
}

// NewSleeper creates a sleeper waiting delay before forwarding its input.
func NewSleeper(delay time.Duration, exclusive bool) *Sleeper {
	n := &Sleeper{}
	n.Init(SleeperType)
	n.in = n.AddInPort(TypeDouble, node.WithCaption("in"))
	n.out = n.AddOutPort(TypeDouble, node.WithCaption("out"))
	n.apply(sleeperSettings{DelayMS: int(delay / time.Millisecond), Exclusive: exclusive})
	return n
}

func (n *Sleeper) apply(s sleeperSettings) {
	n.mu.Lock()
	n.settings = s
	n.mu.Unlock()
	if s.Exclusive {
		n.SetEvalMode(node.ExclusiveDetached)
	} else {
		n.SetEvalMode(node.Detached)
	}
	n.SetExclusivityDomain(s.Domain)
}

// Delay returns the configured delay.
func (n *Sleeper) Delay() time.Duration {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return time.Duration(n.settings.DelayMS) * time.Millisecond
}

func (n *Sleeper) Eval(ctx context.Context, inv *node.Invocation) error {
	n.running.Add(1)
	defer n.running.Add(-1)
	n.evals.Add(1)

	logger := ctxlog.FromContext(ctx)
	logger.Debug("Sleeper started.", "delay", n.Delay())

	t := time.NewTimer(n.Delay())
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	inv.Set(n.out, inv.Input(n.in))
	logger.Debug("Sleeper finished.")
	return nil
}

// Running reports whether an evaluation is in progress.
func (n *Sleeper) Running() bool { return n.running.Load() > 0 }

// EvalCount returns how often the sleeper was evaluated.
func (n *Sleeper) EvalCount() int { return int(n.evals.Load()) }

func (n *Sleeper) Properties() (map[string]cty.Value, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return node.EncodeProperties(n.settings)
}

func (n *Sleeper) SetProperties(props map[string]cty.Value) error {
	n.mu.RLock()
	s := n.settings
	n.mu.RUnlock()
	if err := node.DecodeProperties(props, &s); err != nil {
		return err
	}
	n.apply(s)
	n.NotifyChanged()
	return nil
}
