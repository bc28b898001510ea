package app

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/exec"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/graph"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/node"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/nodeid"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// writeReport prints one line per port of the target nodes:
//
//	<path> <type> <state> <dir>[<index>] = <json value>
//
// Ports without data are printed as null. Lines are sorted by path.
func (a *App) writeReport(model *exec.Model, g *graph.Graph, targets []nodeid.NodeUUID) {
	if err := writeReport(a.outW, model, g, targets); err != nil {
		a.logger.Warn("Failed to write report.", "error", err)
	}
}

func writeReport(w io.Writer, model *exec.Model, g *graph.Graph, targets []nodeid.NodeUUID) error {
	var lines []string
	for _, uuid := range targets {
		n, owner, ok := g.FindNodeByUUID(uuid)
		if !ok {
			continue
		}
		path := graph.Path(n, owner).String()
		state := model.NodeEvalState(uuid)
		for _, dir := range []node.Direction{node.In, node.Out} {
			for i, p := range n.Ports(dir) {
				value := "null"
				if data, ok := model.NodeData(uuid, p.ID); ok {
					value = formatValue(data.Value)
				}
				lines = append(lines, fmt.Sprintf("%s %s %s %s[%d] = %s", path, n.TypeName(), state, dir, i, value))
			}
		}
	}
	if len(lines) == 0 {
		return nil
	}
	slices.Sort(lines)

	_, err := io.WriteString(w, strings.Join(lines, "\n")+"\n")
	return err
}

// formatValue renders v as JSON. Absent data is null.
func formatValue(v cty.Value) string {
	if v.IsNull() {
		return "null"
	}
	if !v.IsWhollyKnown() {
		return "(unknown)"
	}
	raw, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		return fmt.Sprintf("(%v)", err)
	}
	return string(raw)
}
