package integration_tests

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/app"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/graph"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/node"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/registry"
	"github.com/dlr-gtlab/intelligraph-module-sub000/modules/numeric"
	"github.com/stretchr/testify/require"
)

// mockPanicModule registers a node type whose evaluation always panics.
type mockPanicModule struct{}

func (m *mockPanicModule) Register(r *registry.Registry) {
	r.RegisterNode("Panicker", func() node.Node { return newPanicker() })
}

type panicker struct {
	node.Base
}

func newPanicker() *panicker {
	p := &panicker{}
	p.Init("Panicker")
	p.AddOutPort(numeric.TypeDouble)
	return p
}

func (p *panicker) Eval(context.Context, *node.Invocation) error {
	panic("boom")
}

func runGraph(t *testing.T, cfg *app.Config, src string) (string, error) {
	t.Helper()
	cfg.GraphPath = filepath.Join(t.TempDir(), "main.hcl")
	require.NoError(t, os.WriteFile(cfg.GraphPath, []byte(src), 0o600))

	testApp, logBuffer := app.SetupAppTest(t, cfg, &graph.Module{}, &numeric.Module{}, &mockPanicModule{})
	err := testApp.Run(context.Background())
	return logBuffer.String(), err
}
