// Package resolver turns a pipeline definition into a graph of module
// instances and decides, from the artifacts on disk, which stages are
// complete, which are stale, and which can run next.
package resolver
