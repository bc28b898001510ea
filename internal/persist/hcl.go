package persist

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/ctxlog"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/node"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/nodeid"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// --- HCL schema ---

type hclFile struct {
	Graph *hclGraph `hcl:"graph,block"`
}

type hclGraph struct {
	Inputs      []*hclPort       `hcl:"input,block"`
	Outputs     []*hclPort       `hcl:"output,block"`
	Nodes       []*hclNode       `hcl:"node,block"`
	Connections []*hclConnection `hcl:"connection,block"`
}

type hclPort struct {
	Type    string `hcl:"type,label"`
	Caption string `hcl:"caption,optional"`
}

type hclProperties struct {
	Body hcl.Body `hcl:",remain"`
}

type hclNode struct {
	Type       string         `hcl:"type,label"`
	ID         uint32         `hcl:"id"`
	UUID       string         `hcl:"uuid,optional"`
	Caption    string         `hcl:"caption,optional"`
	Position   []float64      `hcl:"position,optional"`
	Target     bool           `hcl:"target,optional"`
	Properties *hclProperties `hcl:"properties,block"`
	Graph      *hclGraph      `hcl:"graph,block"`
}

type hclConnection struct {
	From uint32 `hcl:"from"`
	Out  int    `hcl:"out"`
	To   uint32 `hcl:"to"`
	In   int    `hcl:"in"`
}

// EncodeHCL renders rec in the HCL graph format.
func EncodeHCL(rec *GraphRecord) []byte {
	f := hclwrite.NewEmptyFile()
	writeGraph(f.Body().AppendNewBlock("graph", nil).Body(), rec)
	return f.Bytes()
}

func writeGraph(body *hclwrite.Body, rec *GraphRecord) {
	for _, p := range rec.Inputs {
		writePort(body, "input", p)
	}
	for _, p := range rec.Outputs {
		writePort(body, "output", p)
	}

	for _, n := range rec.Nodes {
		body.AppendNewline()
		nb := body.AppendNewBlock("node", []string{n.Type}).Body()
		nb.SetAttributeValue("id", cty.NumberUIntVal(uint64(n.ID)))
		nb.SetAttributeValue("uuid", cty.StringVal(string(n.UUID)))
		if n.Caption != "" && n.Caption != n.Type {
			nb.SetAttributeValue("caption", cty.StringVal(n.Caption))
		}
		if n.Position != (node.Position{}) {
			nb.SetAttributeValue("position", cty.TupleVal([]cty.Value{
				cty.NumberFloatVal(n.Position.X),
				cty.NumberFloatVal(n.Position.Y),
			}))
		}
		if n.Target {
			nb.SetAttributeValue("target", cty.True)
		}
		if len(n.Properties) > 0 {
			pb := nb.AppendNewBlock("properties", nil).Body()
			for _, k := range slices.Sorted(maps.Keys(n.Properties)) {
				pb.SetAttributeValue(k, n.Properties[k])
			}
		}
		if n.Graph != nil {
			writeGraph(nb.AppendNewBlock("graph", nil).Body(), n.Graph)
		}
	}

	for _, c := range rec.Connections {
		body.AppendNewline()
		cb := body.AppendNewBlock("connection", nil).Body()
		cb.SetAttributeValue("from", cty.NumberUIntVal(uint64(c.From)))
		cb.SetAttributeValue("out", cty.NumberIntVal(int64(c.Out)))
		cb.SetAttributeValue("to", cty.NumberUIntVal(uint64(c.To)))
		cb.SetAttributeValue("in", cty.NumberIntVal(int64(c.In)))
	}
}

func writePort(body *hclwrite.Body, kind string, p PortRecord) {
	pb := body.AppendNewBlock(kind, []string{p.Type}).Body()
	if p.Caption != "" {
		pb.SetAttributeValue("caption", cty.StringVal(p.Caption))
	}
}

// DecodeHCL parses src in the HCL graph format. filename is used in
// diagnostics only.
func DecodeHCL(src []byte, filename string) (*GraphRecord, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse graph file %s: %s", filename, diags.Error())
	}
	return decodeBody(file.Body, filename)
}

func decodeBody(body hcl.Body, filename string) (*GraphRecord, error) {
	var f hclFile
	if diags := gohcl.DecodeBody(body, nil, &f); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode graph file %s: %s", filename, diags.Error())
	}
	if f.Graph == nil {
		return nil, fmt.Errorf("%w: %s has no graph block", ErrInvalidRecord, filename)
	}
	return convertGraph(f.Graph)
}

func convertGraph(hg *hclGraph) (*GraphRecord, error) {
	rec := &GraphRecord{}
	for _, p := range hg.Inputs {
		rec.Inputs = append(rec.Inputs, PortRecord{Type: p.Type, Caption: p.Caption})
	}
	for _, p := range hg.Outputs {
		rec.Outputs = append(rec.Outputs, PortRecord{Type: p.Type, Caption: p.Caption})
	}

	for _, hn := range hg.Nodes {
		nr := NodeRecord{
			Type:    hn.Type,
			ID:      nodeid.NodeID(hn.ID),
			UUID:    nodeid.NodeUUID(hn.UUID),
			Caption: hn.Caption,
			Target:  hn.Target,
		}
		switch len(hn.Position) {
		case 0:
		case 2:
			nr.Position = node.Position{X: hn.Position[0], Y: hn.Position[1]}
		default:
			return nil, fmt.Errorf("%w: node %d: position needs two coordinates", ErrInvalidRecord, hn.ID)
		}
		if hn.Properties != nil {
			props, err := decodeProperties(hn.Properties.Body)
			if err != nil {
				return nil, fmt.Errorf("node %d: %w", hn.ID, err)
			}
			nr.Properties = props
		}
		if hn.Graph != nil {
			sub, err := convertGraph(hn.Graph)
			if err != nil {
				return nil, err
			}
			nr.Graph = sub
		}
		rec.Nodes = append(rec.Nodes, nr)
	}

	for _, hc := range hg.Connections {
		rec.Connections = append(rec.Connections, ConnectionRecord{
			From: nodeid.NodeID(hc.From),
			Out:  nodeid.PortIndex(hc.Out),
			To:   nodeid.NodeID(hc.To),
			In:   nodeid.PortIndex(hc.In),
		})
	}
	return rec, nil
}

// decodeProperties evaluates every attribute of a properties block without
// variables or functions.
func decodeProperties(body hcl.Body) (map[string]cty.Value, error) {
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("invalid properties: %s", diags.Error())
	}
	props := make(map[string]cty.Value, len(attrs))
	for name, attr := range attrs {
		v, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("property %q: %s", name, diags.Error())
		}
		props[name] = v
	}
	return props, nil
}

// LoadFile reads a graph record from an HCL file.
func LoadFile(ctx context.Context, path string) (*GraphRecord, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Decoding graph file.", "path", path)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse graph file %s: %s", path, diags.Error())
	}
	rec, err := decodeBody(file.Body, path)
	if err != nil {
		return nil, err
	}

	logger.Debug("Successfully decoded graph file.", "path", path, "nodes_found", rec.NodeCount(), "connections_found", len(rec.Connections))
	return rec, nil
}

// SaveFile writes rec to path in the HCL graph format.
func SaveFile(ctx context.Context, path string, rec *GraphRecord) error {
	if err := os.WriteFile(path, EncodeHCL(rec), 0o644); err != nil {
		return fmt.Errorf("failed to write graph file %s: %w", path, err)
	}
	ctxlog.FromContext(ctx).Debug("Graph file written.", "path", path, "nodes", rec.NodeCount())
	return nil
}
