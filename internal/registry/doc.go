// Package registry provides the central "glue" for the module system.
//
// The Registry maps the type names used in persisted graphs (e.g. "Adder") to
// factories producing fresh node instances. The execution core never knows
// concrete node types; it only asks the registry to instantiate one by name.
//
// During application startup, every module registers its node types and the
// registry is then validated, ensuring that each factory produces a node of
// the name it was registered under.
package registry
