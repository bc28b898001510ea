// Package env_vars provides the EnvNumber source, which reads a number from
// an environment variable of the process.
package env_vars

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/ctxlog"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/node"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/nodeid"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/registry"
	"github.com/dlr-gtlab/intelligraph-module-sub000/modules/numeric"
	"github.com/zclconf/go-cty/cty"
)

// EnvNumberType is the registered type name of EnvNumber.
const EnvNumberType = "EnvNumber"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the node type with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterNode(EnvNumberType, func() node.Node { return NewEnvNumber("") })
}

type envSettings struct {
	Name     string  `mapstructure:"name"`
	Fallback float64 `mapstructure:"fallback"`
	Required bool    `mapstructure:"required"`
}

// EnvNumber outputs the numeric value of an environment variable. An unset
// variable yields the fallback, or fails the node when it is required.
type EnvNumber struct {
	node.Base

	mu       sync.RWMutex
	settings envSettings
	out      nodeid.PortID
}

// NewEnvNumber creates a source reading the variable name.
func NewEnvNumber(name string) *EnvNumber {
	n := &EnvNumber{settings: envSettings{Name: name}}
	n.Init(EnvNumberType)
	n.out = n.AddOutPort(numeric.TypeDouble, node.WithCaption("value"))
	return n
}

func (n *EnvNumber) Eval(ctx context.Context, inv *node.Invocation) error {
	n.mu.RLock()
	s := n.settings
	n.mu.RUnlock()

	if s.Name == "" {
		return fmt.Errorf("no environment variable configured")
	}
	raw, ok := os.LookupEnv(s.Name)
	if !ok {
		if s.Required {
			return fmt.Errorf("environment variable %s is not set", s.Name)
		}
		ctxlog.FromContext(ctx).Debug("Environment variable not set, using fallback.", "name", s.Name, "fallback", s.Fallback)
		inv.Set(n.out, cty.NumberFloatVal(s.Fallback))
		return nil
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("environment variable %s: %w", s.Name, err)
	}
	inv.Set(n.out, cty.NumberFloatVal(v))
	return nil
}

func (n *EnvNumber) Properties() (map[string]cty.Value, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return node.EncodeProperties(n.settings)
}

func (n *EnvNumber) SetProperties(props map[string]cty.Value) error {
	n.mu.RLock()
	s := n.settings
	n.mu.RUnlock()
	if err := node.DecodeProperties(props, &s); err != nil {
		return err
	}
	n.mu.Lock()
	n.settings = s
	n.mu.Unlock()
	n.NotifyChanged()
	return nil
}
