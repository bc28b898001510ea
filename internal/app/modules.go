package app

import (
	"io"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/graph"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/registry"
	"github.com/dlr-gtlab/intelligraph-module-sub000/modules/env_vars"
	"github.com/dlr-gtlab/intelligraph-module-sub000/modules/numeric"
	"github.com/dlr-gtlab/intelligraph-module-sub000/modules/print"
)

// coreModules is the definitive list of all modules that are compiled into
// the binary. Printed values go to outW.
func coreModules(outW io.Writer) []registry.Module {
	return []registry.Module{
		&graph.Module{},
		&numeric.Module{},
		&env_vars.Module{},
		&print.Module{Out: outW},
	}
}
