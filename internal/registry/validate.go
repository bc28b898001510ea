package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/ctxlog"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/node"
)

// ValidateRegistry instantiates every registered type once and checks that
// the node reports the name it was registered under and that all of its
// ports carry a type tag.
func (r *Registry) ValidateRegistry(ctx context.Context) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	for _, name := range r.Types() {
		n, err := r.Create(name)
		if err != nil {
			errs = append(errs, fmt.Sprintf("type '%s': %v", name, err))
			continue
		}
		if n == nil {
			errs = append(errs, fmt.Sprintf("type '%s': factory returned nil", name))
			continue
		}
		if n.TypeName() != name {
			errs = append(errs, fmt.Sprintf("type '%s': factory produced a node named '%s'", name, n.TypeName()))
		}
		if !n.UUID().IsValid() {
			errs = append(errs, fmt.Sprintf("type '%s': node has no uuid, was Init called?", name))
		}
		for _, dir := range []node.Direction{node.In, node.Out} {
			for i, p := range n.Ports(dir) {
				if p.TypeID == "" {
					errs = append(errs, fmt.Sprintf("type '%s': %s port %d has no type tag", name, dir, i))
				}
			}
		}
		if _, ok := n.(node.Evaluator); !ok {
			if _, ok := n.(node.PortEvaluator); !ok && len(n.Ports(node.Out)) > 0 {
				logger.Warn("Node type has output ports but no evaluation capability, its outputs will stay empty.", "type", name)
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}

	logger.Debug("Registry validated.", "types", len(r.Types()))
	return nil
}
