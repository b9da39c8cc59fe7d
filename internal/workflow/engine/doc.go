// Package engine runs a pipeline definition. It asks the resolver which
// stages are stale, executes them in dependency order, records each result,
// and persists a snapshot so `paneler status` can report on the last run.
package engine
