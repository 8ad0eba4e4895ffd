// Package registry holds the capability descriptors of all workers and
// supervisors and is the single mutation point for per-agent load counters
// and performance history. It is the only shared mutable state in the
// routing core; all reads return copies.
package registry
