package numeric

import (
	"context"
	"sync"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/ctxlog"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/node"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/nodeid"
	"github.com/zclconf/go-cty/cty"
)

// DisplayType is the registered type name of Display.
const DisplayType = "Display"

// Display is a sink with one required input. It keeps the last value it saw.
type Display struct {
	node.Base

	mu    sync.RWMutex
	in    nodeid.PortID
	last  cty.Value
	evals int
}

func NewDisplay() *Display {
	n := &Display{last: cty.NilVal}
	n.Init(DisplayType)
	n.in = n.AddInPort(TypeDouble, node.WithCaption("value"))
	return n
}

func (n *Display) Eval(ctx context.Context, inv *node.Invocation) error {
	v := inv.Input(n.in)
	n.mu.Lock()
	n.last = v
	n.evals++
	n.mu.Unlock()

	if present(v) {
		ctxlog.FromContext(ctx).Info("Displaying value.", "value", number(v))
	} else {
		ctxlog.FromContext(ctx).Info("Displaying value.", "value", nil)
	}
	return nil
}

// Last returns the last displayed value and whether one was present.
func (n *Display) Last() (float64, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return number(n.last), present(n.last)
}

// EvalCount returns how often the display was evaluated.
func (n *Display) EvalCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.evals
}
