package app

import (
	"context"
	"fmt"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/ctxlog"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/editorlink"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/exec"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/graph"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/persist"
)

// Run loads the configured graph, evaluates it and writes a report of the
// evaluated nodes to the app's output.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if _, err := a.startHealthCheckServer(); err != nil {
		return err
	}
	defer a.closeHealthCheckServer()

	g, err := a.loadGraph(ctx)
	if err != nil {
		return err
	}

	broker, release, err := a.newBroker(ctx)
	if err != nil {
		return err
	}
	defer release()

	opts := []exec.Option{
		exec.WithBroker(broker),
		exec.WithObserver(a.collector.Observe),
	}
	if a.config.WorkerCount > 0 {
		opts = append(opts, exec.WithWorkers(a.config.WorkerCount))
	}
	model := exec.New(ctx, g, opts...)
	defer func() {
		model.Close()
		model.Wait()
	}()

	if a.config.Editor.URL != "" {
		link, err := editorlink.Dial(ctx, editorlink.Options{
			URL:                a.config.Editor.URL,
			Namespace:          a.config.Editor.Namespace,
			InsecureSkipVerify: a.config.Editor.InsecureSkipVerify,
		}, model)
		if err != nil {
			a.logger.Warn("Editor link unavailable, continuing without it.", "error", err)
		} else {
			unsubscribe := model.Observe(link.Observe)
			defer func() {
				unsubscribe()
				link.Close()
			}()
		}
	}

	if g.NodeCount() == 0 {
		a.logger.Warn("No nodes found in graph, evaluation not required.")
		return nil
	}

	a.logger.Info("🚀 Starting graph evaluation...", "nodes", g.NodeCount())
	future := model.EvaluateGraph(g)

	waitCtx := ctx
	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}
	if err := future.WaitContext(waitCtx); err != nil {
		a.writeReport(model, g, future.Targets())
		return fmt.Errorf("evaluation failed: %w", err)
	}
	a.logger.Info("🏁 Evaluation finished.")
	a.writeReport(model, g, future.Targets())

	if a.config.SavePath != "" {
		rec, err := persist.Capture(g)
		if err != nil {
			return fmt.Errorf("failed to capture graph: %w", err)
		}
		if err := persist.SaveFile(ctx, a.config.SavePath, rec); err != nil {
			return err
		}
		a.logger.Info("Graph saved.", "path", a.config.SavePath)
	}

	a.logger.Debug("App.Run method finished.")
	return nil
}

// loadGraph decodes the graph file and instantiates its nodes.
func (a *App) loadGraph(ctx context.Context) (*graph.Graph, error) {
	a.logger.Debug("Loading graph...", "graph_path", a.config.GraphPath)
	rec, err := persist.LoadFile(ctx, a.config.GraphPath)
	if err != nil {
		return nil, err
	}
	g, err := persist.Restore(a.registry, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to build graph: %w", err)
	}
	a.logger.Info("Graph loaded successfully.", "nodes_found", rec.NodeCount())
	return g, nil
}
