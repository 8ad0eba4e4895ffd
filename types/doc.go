// Package types defines the shared data model of the teamflow routing core:
// tasks, agent capability descriptors, routing decisions, execution results,
// and the unified error taxonomy.
package types
