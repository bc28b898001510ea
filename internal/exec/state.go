package exec

import (
	"errors"
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

var (
	ErrClosed        = errors.New("execution model is closed")
	ErrNodeNotFound  = errors.New("node not found")
	ErrPortNotFound  = errors.New("port not found")
	ErrCyclicGraph   = errors.New("graph is cyclic")
	ErrMissingInput  = errors.New("required input has no data")
	ErrPaused        = errors.New("node is paused")
	ErrStalled       = errors.New("evaluation cannot make progress")
	ErrNodePanicked  = errors.New("node panicked during evaluation")
	ErrNotFinished   = errors.New("evaluation still in progress")
	ErrNotInTree     = errors.New("graph is not part of the model's tree")
	ErrEvalCancelled = errors.New("evaluation was cancelled")
)

// NodeEvalState is the evaluation state of a node.
type NodeEvalState int

const (
	Invalid NodeEvalState = iota
	Outdated
	Evaluating
	Paused
	Valid
)

func (s NodeEvalState) String() string {
	switch s {
	case Invalid:
		return "invalid"
	case Outdated:
		return "outdated"
	case Evaluating:
		return "evaluating"
	case Paused:
		return "paused"
	case Valid:
		return "valid"
	default:
		return fmt.Sprintf("NodeEvalState(%d)", int(s))
	}
}

// PortDataState tells whether cached port data is current.
type PortDataState int

const (
	PortOutdated PortDataState = iota
	PortValid
)

func (s PortDataState) String() string {
	if s == PortValid {
		return "valid"
	}
	return "outdated"
}

// PortData is the cached value of a port. A null Value means absent data.
type PortData struct {
	Value cty.Value
	State PortDataState
}
