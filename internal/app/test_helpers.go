package app

import (
	"bytes"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/registry"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// ExecutionRecord holds the start and end times of one node evaluation. It
// is shared by the integration test packages.
type ExecutionRecord struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether both evaluations were running at the same time.
func (r *ExecutionRecord) Overlaps(other *ExecutionRecord) bool {
	return r.Start.Before(other.End) && other.Start.Before(r.End)
}

// SetupAppTest creates a new app instance for system testing. Unset config
// fields take their defaults; the log level is always debug.
func SetupAppTest(t *testing.T, cfg *Config, modules ...registry.Module) (*App, *SafeBuffer) {
	t.Helper()

	defaults := DefaultConfig()
	if cfg.LogFormat == "" {
		cfg.LogFormat = defaults.LogFormat
	}
	if cfg.Exclusive.Backend == "" {
		cfg.Exclusive = defaults.Exclusive
	}
	cfg.LogLevel = "debug"

	logBuffer := &SafeBuffer{}
	testApp := NewApp(logBuffer, cfg, modules...)

	t.Cleanup(func() {
		if os.Getenv("INTELLIGRAPH_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, logBuffer
}
