package numeric

import (
	"context"
	"sync"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/node"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/nodeid"
	"github.com/zclconf/go-cty/cty"
)

// NumberSourceType is the registered type name of NumberSource.
const NumberSourceType = "NumberSource"

type sourceSettings struct {
	Value float64 `mapstructure:"value"`
}

// NumberSource emits a constant configured value.
type NumberSource struct {
	node.Base

	mu       sync.RWMutex
	settings sourceSettings
	out      nodeid.PortID
}

// NewNumberSource creates a source emitting v.
func NewNumberSource(v float64) *NumberSource {
	n := &NumberSource{settings: sourceSettings{Value: v}}
	n.Init(NumberSourceType)
	n.out = n.AddOutPort(TypeDouble, node.WithCaption("value"))
	return n
}

// Value returns the configured value.
func (n *NumberSource) Value() float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.settings.Value
}

// SetValue changes the emitted value and marks the node changed.
func (n *NumberSource) SetValue(v float64) {
	n.mu.Lock()
	changed := n.settings.Value != v
	n.settings.Value = v
	n.mu.Unlock()
	if changed {
		n.NotifyChanged()
	}
}

func (n *NumberSource) Eval(_ context.Context, inv *node.Invocation) error {
	inv.Set(n.out, cty.NumberFloatVal(n.Value()))
	return nil
}

func (n *NumberSource) Properties() (map[string]cty.Value, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return node.EncodeProperties(n.settings)
}

func (n *NumberSource) SetProperties(props map[string]cty.Value) error {
	s := sourceSettings{Value: n.Value()}
	if err := node.DecodeProperties(props, &s); err != nil {
		return err
	}
	n.SetValue(s.Value)
	return nil
}
