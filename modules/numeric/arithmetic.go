package numeric

import (
	"context"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/node"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/nodeid"
	"github.com/zclconf/go-cty/cty"
)

const (
	AdderType       = "Adder"
	DividerType     = "Divider"
	SumType         = "Sum"
	PassthroughType = "Passthrough"
)

// Adder adds two optional inputs. Absent inputs count as zero.
type Adder struct {
	node.Base
	a, b, out nodeid.PortID
}

func NewAdder() *Adder {
	n := &Adder{}
	n.Init(AdderType)
	n.a = n.AddInPort(TypeDouble, node.Optional(), node.WithCaption("a"))
	n.b = n.AddInPort(TypeDouble, node.Optional(), node.WithCaption("b"))
	n.out = n.AddOutPort(TypeDouble, node.WithCaption("sum"))
	return n
}

func (n *Adder) EvalPort(_ context.Context, inv *node.Invocation, port nodeid.PortID) (cty.Value, error) {
	if port != n.out {
		return cty.NilVal, nil
	}
	return cty.NumberFloatVal(number(inv.Input(n.a)) + number(inv.Input(n.b))), nil
}

// Divider divides its first input by the second. Division by zero yields
// absent data.
type Divider struct {
	node.Base
	dividend, divisor, out nodeid.PortID
}

func NewDivider() *Divider {
	n := &Divider{}
	n.Init(DividerType)
	n.dividend = n.AddInPort(TypeDouble, node.WithCaption("dividend"))
	n.divisor = n.AddInPort(TypeDouble, node.WithCaption("divisor"))
	n.out = n.AddOutPort(TypeDouble, node.WithCaption("quotient"))
	return n
}

func (n *Divider) Eval(_ context.Context, inv *node.Invocation) error {
	num, den := inv.Input(n.dividend), inv.Input(n.divisor)
	if !present(num) || !present(den) || number(den) == 0 {
		inv.Set(n.out, cty.NullVal(cty.Number))
		return nil
	}
	inv.Set(n.out, cty.NumberFloatVal(number(num)/number(den)))
	return nil
}

// Sum adds every value connected to its single multi-connection input.
type Sum struct {
	node.Base
	in, out nodeid.PortID
}

func NewSum() *Sum {
	n := &Sum{}
	n.Init(SumType)
	n.in = n.AddInPort(TypeDouble, node.Optional(), node.Multiple(), node.WithCaption("values"))
	n.out = n.AddOutPort(TypeDouble, node.WithCaption("sum"))
	return n
}

func (n *Sum) Eval(_ context.Context, inv *node.Invocation) error {
	var total float64
	for _, v := range inv.InputAll(n.in) {
		total += number(v)
	}
	inv.Set(n.out, cty.NumberFloatVal(total))
	return nil
}

// Passthrough forwards its input unchanged.
type Passthrough struct {
	node.Base
	in, out nodeid.PortID
}

func NewPassthrough() *Passthrough {
	n := &Passthrough{}
	n.Init(PassthroughType)
	n.in = n.AddInPort(TypeDouble)
	n.out = n.AddOutPort(TypeDouble)
	return n
}

func (n *Passthrough) EvalPort(_ context.Context, inv *node.Invocation, _ nodeid.PortID) (cty.Value, error) {
	return inv.Input(n.in), nil
}
