package cli

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/app"
	"github.com/spf13/cobra"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

type flagValues struct {
	graph           string
	configFile      string
	save            string
	healthcheckPort int
	logFormat       string
	logLevel        string
	workers         int
	timeout         time.Duration
	editorURL       string
	editorNamespace string
	backend         string
	redisAddr       string
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")

	var (
		flags  flagValues
		result *app.Config
	)
	cmd := &cobra.Command{
		Use:   "intelligraph [flags] [GRAPH_PATH]",
		Short: "Evaluate a dataflow graph file.",
		Long: `Intelligraph loads a dataflow graph from an HCL file, evaluates every
terminal node and prints the data on their ports.

GRAPH_PATH is the graph file. It can also be set with --graph or in the
configuration file.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(cmd, args, &flags)
			if err != nil {
				return err
			}
			if cfg == nil {
				slog.Debug("No graph path provided, printing usage and exiting.")
				return cmd.Usage()
			}
			result = cfg
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.graph, "graph", "g", "", "Path to the graph file.")
	f.StringVarP(&flags.configFile, "config", "c", "", "Path to a YAML configuration file. Flags override its values.")
	f.StringVar(&flags.save, "save", "", "Write the evaluated graph to this file.")
	f.IntVar(&flags.healthcheckPort, "healthcheck-port", 0, "Port for the HTTP health check and metrics server. 0 is disabled.")
	f.StringVar(&flags.logFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")
	f.StringVar(&flags.logLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	f.IntVar(&flags.workers, "workers", 0, "Number of concurrent detached evaluations. 0 uses the number of CPUs.")
	f.DurationVar(&flags.timeout, "timeout", time.Minute, "Maximum time to wait for the evaluation. 0 waits forever.")
	f.StringVar(&flags.editorURL, "editor-url", "", "socket.io URL of an editor receiving evaluation events.")
	f.StringVar(&flags.editorNamespace, "editor-namespace", "", "socket.io namespace of the editor.")
	f.StringVar(&flags.backend, "exclusive-backend", app.BackendLocal, "Where exclusivity tokens live. Options: 'local' or 'redis'.")
	f.StringVar(&flags.redisAddr, "redis-addr", "", "Redis address for the redis exclusivity backend.")

	if args == nil {
		// cobra falls back to os.Args for nil
		args = []string{}
	}
	cmd.SetArgs(args)
	cmd.SetOut(output)
	cmd.SetErr(output)

	if err := cmd.Execute(); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return nil, false, exitErr
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if result == nil {
		// help or usage was printed
		return nil, true, nil
	}

	slog.Debug("CLI parser finished successfully.", "config", result)
	return result, false, nil
}

// buildConfig merges defaults, the configuration file and explicitly set
// flags, in that order. It returns nil if no graph path was given.
func buildConfig(cmd *cobra.Command, args []string, flags *flagValues) (*app.Config, error) {
	cfg := app.DefaultConfig()
	if flags.configFile != "" {
		if err := app.LoadConfigFile(flags.configFile, &cfg); err != nil {
			return nil, &ExitError{Code: 2, Message: err.Error()}
		}
		slog.Debug("Configuration file loaded.", "path", flags.configFile)
	}

	changed := cmd.Flags().Changed
	if changed("save") {
		cfg.SavePath = flags.save
	}
	if changed("healthcheck-port") {
		cfg.HealthcheckPort = flags.healthcheckPort
	}
	if changed("log-format") {
		cfg.LogFormat = flags.logFormat
	}
	if changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}
	if changed("workers") {
		cfg.WorkerCount = flags.workers
	}
	if changed("timeout") {
		cfg.Timeout = flags.timeout
	}
	if changed("editor-url") {
		cfg.Editor.URL = flags.editorURL
	}
	if changed("editor-namespace") {
		cfg.Editor.Namespace = flags.editorNamespace
	}
	if changed("exclusive-backend") {
		cfg.Exclusive.Backend = flags.backend
	}
	if changed("redis-addr") {
		cfg.Exclusive.RedisAddr = flags.redisAddr
	}

	switch {
	case flags.graph != "":
		cfg.GraphPath = flags.graph
	case len(args) > 0:
		cfg.GraphPath = args[0]
	}
	slog.Debug("Graph path determined.", "path", cfg.GraphPath)
	if cfg.GraphPath == "" {
		return nil, nil
	}

	validated, err := app.NewConfig(cfg)
	if err != nil {
		return nil, &ExitError{Code: 2, Message: err.Error()}
	}
	return validated, nil
}
