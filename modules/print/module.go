// Package print provides the Print sink, which writes every value it
// receives to the application output.
package print

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/ctxlog"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/node"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/nodeid"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/registry"
	"github.com/dlr-gtlab/intelligraph-module-sub000/modules/numeric"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// PrintType is the registered type name of Print.
const PrintType = "Print"

// Module implements the registry.Module interface for this package. Out
// defaults to os.Stdout.
type Module struct {
	Out io.Writer
}

// Register registers the node type with the engine.
func (m *Module) Register(r *registry.Registry) {
	out := m.Out
	if out == nil {
		out = os.Stdout
	}
	r.RegisterNode(PrintType, func() node.Node { return NewPrint(out) })
}

type printSettings struct {
	Label string `mapstructure:"label"`
}

// Print writes the values of its input, one line per connection.
type Print struct {
	node.Base

	mu       sync.RWMutex
	settings printSettings
	out      io.Writer
	in       nodeid.PortID
}

// NewPrint creates a printer writing to w.
func NewPrint(w io.Writer) *Print {
	n := &Print{out: w}
	n.Init(PrintType)
	n.in = n.AddInPort(numeric.TypeDouble, node.Optional(), node.Multiple(), node.WithCaption("value"))
	return n
}

func (n *Print) label() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.settings.Label != "" {
		return n.settings.Label
	}
	return n.Caption()
}

func (n *Print) Eval(ctx context.Context, inv *node.Invocation) error {
	ctxlog.FromContext(ctx).Info("Printing input.")

	values := inv.InputAll(n.in)
	var b strings.Builder
	if len(values) == 0 {
		fmt.Fprintf(&b, "%s: (null)\n", n.label())
	}
	for i, v := range values {
		s, err := render(v)
		if err != nil {
			return fmt.Errorf("render value %d: %w", i, err)
		}
		fmt.Fprintf(&b, "%s[%d] = %s\n", n.label(), i, s)
	}
	_, err := io.WriteString(n.out, b.String())
	return err
}

func (n *Print) Properties() (map[string]cty.Value, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return node.EncodeProperties(n.settings)
}

func (n *Print) SetProperties(props map[string]cty.Value) error {
	var s printSettings
	if err := node.DecodeProperties(props, &s); err != nil {
		return err
	}
	n.mu.Lock()
	n.settings = s
	n.mu.Unlock()
	n.NotifyChanged()
	return nil
}

func render(v cty.Value) (string, error) {
	if v.IsNull() {
		return "(null)", nil
	}
	if !v.IsWhollyKnown() {
		return "", fmt.Errorf("value is not known")
	}
	raw, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
