package node

import (
	"context"
	"fmt"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/nodeid"
	"github.com/zclconf/go-cty/cty"
)

// Evaluator computes all outputs of a node in one call.
type Evaluator interface {
	Eval(ctx context.Context, inv *Invocation) error
}

// PortEvaluator computes a single output port. Returning a null value marks
// the output as absent without failing the node.
type PortEvaluator interface {
	EvalPort(ctx context.Context, inv *Invocation, port nodeid.PortID) (cty.Value, error)
}

// Invocation is the view a node gets of its inputs during one evaluation.
// Inputs are a snapshot taken when the evaluation was dispatched; outputs are
// collected and handed back to the execution model when the call returns.
type Invocation struct {
	inputs  map[nodeid.PortID][]cty.Value
	outputs map[nodeid.PortID]cty.Value
	ports   [2][]Port
}

// NewInvocation creates an invocation over a snapshot of input values and
// port layout.
func NewInvocation(ins, outs []Port, inputs map[nodeid.PortID][]cty.Value) *Invocation {
	if inputs == nil {
		inputs = make(map[nodeid.PortID][]cty.Value)
	}
	return &Invocation{
		inputs:  inputs,
		outputs: make(map[nodeid.PortID]cty.Value, len(outs)),
		ports:   [2][]Port{ins, outs},
	}
}

// Input returns the value of an input port, or cty.NilVal when absent.
// For ports with several connections the first value is returned.
func (inv *Invocation) Input(id nodeid.PortID) cty.Value {
	vals := inv.inputs[id]
	if len(vals) == 0 {
		return cty.NilVal
	}
	return vals[0]
}

// InputAll returns every value delivered to an input port.
func (inv *Invocation) InputAll(id nodeid.PortID) []cty.Value {
	return inv.inputs[id]
}

// InputAt returns the value of the input port at idx.
func (inv *Invocation) InputAt(idx nodeid.PortIndex) cty.Value {
	if idx < 0 || int(idx) >= len(inv.ports[In]) {
		return cty.NilVal
	}
	return inv.Input(inv.ports[In][idx].ID)
}

// Set stores the result of an output port.
func (inv *Invocation) Set(id nodeid.PortID, v cty.Value) {
	inv.outputs[id] = v
}

// SetAt stores the result of the output port at idx.
func (inv *Invocation) SetAt(idx nodeid.PortIndex, v cty.Value) {
	if idx < 0 || int(idx) >= len(inv.ports[Out]) {
		return
	}
	inv.Set(inv.ports[Out][idx].ID, v)
}

// InPorts returns the input port layout of the snapshot.
func (inv *Invocation) InPorts() []Port { return inv.ports[In] }

// OutPorts returns the output port layout of the snapshot.
func (inv *Invocation) OutPorts() []Port { return inv.ports[Out] }

// Outputs returns the collected results.
func (inv *Invocation) Outputs() map[nodeid.PortID]cty.Value {
	return inv.outputs
}

// Run evaluates n against inv using the capability the node implements.
func Run(ctx context.Context, n Node, inv *Invocation) error {
	switch impl := n.(type) {
	case Evaluator:
		return impl.Eval(ctx, inv)
	case PortEvaluator:
		for _, p := range inv.ports[Out] {
			if !p.Evaluate {
				continue
			}
			v, err := impl.EvalPort(ctx, inv, p.ID)
			if err != nil {
				return fmt.Errorf("port %s: %w", p.ID, err)
			}
			inv.Set(p.ID, v)
		}
		return nil
	default:
		return nil
	}
}
