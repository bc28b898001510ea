// Package exec implements the execution model: the scheduler that tracks the
// evaluation state of every node in a graph tree and decides what to
// (re-)evaluate, in which order and on which goroutine.
//
// # State
//
// A Model is attached to one root graph and, transitively, to every nested
// group graph. Per node, addressed by NodeUUID so that identity survives
// nesting, it keeps a NodeEvalState and per port a cached cty.Value together
// with a PortDataState.
//
//	Outdated --(requested, deps ready)--> Evaluating --(success)--> Valid
//	   ^                                      |                       |
//	   +-------------(failure)----------------+                       |
//	   +<---------------------(any upstream change)-------------------+
//	Paused (explicit; back to Outdated on resume)
//
// Unknown or deleted nodes report Invalid.
//
// # Passes
//
// Every evaluation request creates a pass over a set of target nodes. A pass
// walks the dependency closure of its targets and dispatches every node
// whose dependencies are all Valid. It succeeds once all targets are Valid
// and fails as soon as no further progress is possible (a failed node, a
// paused dependency, an unconnected required input). Sibling nodes keep
// evaluating when one of them fails.
//
// Group graphs are flattened: a group depends on its output provider, and
// the group's input provider depends on the producers feeding the group in
// the parent graph. A group never runs itself; it becomes Valid when its
// output provider is Valid and the provider's values have been routed to the
// group's output ports.
//
// # Strategies
//
// Inline nodes run on the goroutine that triggered the dispatch. Detached
// nodes run on a bounded worker pool. ExclusiveDetached nodes additionally
// hold their exclusivity domain's token (see package exclusive) from before
// they are marked Evaluating until their result has been recorded.
//
// # Futures
//
// Every request returns a Future that can be waited on, composed with Join,
// or observed with Then. Future.Get waits for a single node only.
//
// # Thread-Safety
//
// All state lives behind one model-owned lock. Structural changes of the
// graph tree are observed synchronously; observation events are delivered
// after the lock has been released.
package exec
