package integration_tests

import (
	"errors"
	"testing"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/app"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/persist"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test for: Malformed or inconsistent graph files are rejected before any
// node is evaluated.
func TestErrorHandling_InvalidGraphIsRejected(t *testing.T) {
	testCases := []struct {
		name    string
		src     string
		wantErr error
		wantMsg string
	}{
		{
			name:    "syntax error",
			src:     `graph { node "Display" { id = 0 `,
			wantMsg: "failed to parse graph file",
		},
		{
			name:    "missing graph block",
			src:     `# empty`,
			wantErr: persist.ErrInvalidRecord,
		},
		{
			name:    "unknown node type",
			src:     `graph { node "Teleporter" { id = 1 } }`,
			wantErr: registry.ErrUnknownType,
		},
		{
			name: "connection to a missing node",
			src: `
				graph {
				  node "NumberSource" {
				    id = 1
				  }
				  connection {
				    from = 1
				    out  = 0
				    to   = 9
				    in   = 0
				  }
				}
			`,
			wantErr: persist.ErrInvalidRecord,
		},
		{
			name: "duplicate node id",
			src: `
				graph {
				  node "NumberSource" {
				    id = 1
				  }
				  node "Display" {
				    id = 1
				  }
				}
			`,
			wantErr: persist.ErrInvalidRecord,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// --- Arrange ---
			cfg := &app.Config{}

			// --- Act ---
			output, err := runGraph(t, cfg, tc.src)

			// --- Assert ---
			require.Error(t, err)
			if tc.wantErr != nil {
				assert.True(t, errors.Is(err, tc.wantErr), "got %v", err)
			}
			if tc.wantMsg != "" {
				assert.Contains(t, err.Error(), tc.wantMsg)
			}
			assert.NotContains(t, output, "Starting graph evaluation")
		})
	}
}
