package integration_tests

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/app"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/graph"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/node"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/registry"
	"github.com/dlr-gtlab/intelligraph-module-sub000/modules/numeric"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

const stageType = "Stage"

// mockStageModule registers the "Stage" node type. Every stage sleeps, records
// when it ran and outputs the number of values it received plus one.
type mockStageModule struct {
	mu             sync.Mutex
	executionTimes map[string]*app.ExecutionRecord
	sleepDuration  time.Duration
}

func newMockStageModule(sleep time.Duration) *mockStageModule {
	return &mockStageModule{
		executionTimes: make(map[string]*app.ExecutionRecord),
		sleepDuration:  sleep,
	}
}

func (m *mockStageModule) Register(r *registry.Registry) {
	r.RegisterNode(stageType, func() node.Node { return newStage(m) })
}

func (m *mockStageModule) record(name string) *app.ExecutionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.executionTimes[name]
}

type stageSettings struct {
	Name      string `mapstructure:"name"`
	Exclusive bool   `mapstructure:"exclusive"`
	Domain    string `mapstructure:"domain"`
}

type stage struct {
	node.Base

	module   *mockStageModule
	settings stageSettings
}

func newStage(m *mockStageModule) *stage {
	p := &stage{module: m}
	p.Init(stageType)
	p.AddInPort(numeric.TypeDouble, node.Optional(), node.Multiple(), node.WithCaption("in"))
	p.AddOutPort(numeric.TypeDouble, node.WithCaption("out"))
	p.SetEvalMode(node.Detached)
	return p
}

func (p *stage) Properties() (map[string]cty.Value, error) {
	return node.EncodeProperties(p.settings)
}

func (p *stage) SetProperties(props map[string]cty.Value) error {
	if err := node.DecodeProperties(props, &p.settings); err != nil {
		return err
	}
	if p.settings.Exclusive {
		p.SetEvalMode(node.ExclusiveDetached)
	}
	p.SetExclusivityDomain(p.settings.Domain)
	return nil
}

func (p *stage) Eval(ctx context.Context, inv *node.Invocation) error {
	startTime := time.Now()
	select {
	case <-time.After(p.module.sleepDuration):
	case <-ctx.Done():
		return ctx.Err()
	}
	endTime := time.Now()

	p.module.mu.Lock()
	p.module.executionTimes[p.settings.Name] = &app.ExecutionRecord{Start: startTime, End: endTime}
	p.module.mu.Unlock()

	received := len(inv.InputAll(inv.InPorts()[0].ID))
	inv.SetAt(0, cty.NumberIntVal(int64(received+1)))
	return nil
}

// runGraph writes src to a temporary graph file and runs the app on it.
func runGraph(t *testing.T, src string, stages *mockStageModule) (string, error) {
	t.Helper()
	graphPath := filepath.Join(t.TempDir(), "main.hcl")
	require.NoError(t, os.WriteFile(graphPath, []byte(src), 0o600))

	cfg := &app.Config{GraphPath: graphPath}
	testApp, logBuffer := app.SetupAppTest(t, cfg, &graph.Module{}, &numeric.Module{}, stages)
	err := testApp.Run(context.Background())
	return logBuffer.String(), err
}
