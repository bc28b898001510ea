// Package app contains the host application: it loads a graph file, restores
// the graph through the node registry, evaluates it on an Execution Model and
// reports the results. It also serves health and metrics endpoints and can
// mirror the evaluation to a remote editor. It is decoupled from any specific
// entrypoint like a CLI.
package app
