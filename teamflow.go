// Package teamflow provides a top-level convenience entry point for building
// a hierarchy coordinator with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/teamflow"
//
//	cfg, err := teamflow.Load("teams.yaml")
//	h, err := teamflow.New(cfg, myExecutor)
//	result, err := h.Run(ctx, types.NewTask("research the latest AI news"))
//
// This is a thin wrapper around [hierarchy.NewBuilder]; both produce identical
// results. Use this package when you prefer the shorter import path.
package teamflow

import (
	"github.com/BaSui01/teamflow/config"
	"github.com/BaSui01/teamflow/hierarchy"
	"github.com/BaSui01/teamflow/history"
	"github.com/BaSui01/teamflow/internal/metrics"
	"github.com/BaSui01/teamflow/routing"
	"github.com/BaSui01/teamflow/team"
	"go.uber.org/zap"
)

// Option configures the coordinator created by [New].
type Option func(*builderOptions)

type builderOptions struct {
	logger    *zap.Logger
	model     routing.DecisionModel
	collector *metrics.Collector
	store     history.DecisionStore
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *builderOptions) { o.logger = logger }
}

// WithDecisionModel sets the external model backing llm_based strategies.
func WithDecisionModel(model routing.DecisionModel) Option {
	return func(o *builderOptions) { o.model = model }
}

// WithCollector sets the Prometheus metrics collector.
func WithCollector(collector *metrics.Collector) Option {
	return func(o *builderOptions) { o.collector = collector }
}

// WithDecisionStore overrides the decision history backend from the config.
func WithDecisionStore(store history.DecisionStore) Option {
	return func(o *builderOptions) { o.store = store }
}

// New assembles a [hierarchy.Coordinator] from a validated configuration.
// The executor is invoked for every dispatched task; wire it to your agents.
func New(cfg *config.Config, executor team.Executor, opts ...Option) (*hierarchy.Coordinator, error) {
	var o builderOptions
	for _, opt := range opts {
		opt(&o)
	}

	b := hierarchy.NewBuilder(cfg, executor, o.logger)
	if o.model != nil {
		b = b.WithDecisionModel(o.model)
	}
	if o.collector != nil {
		b = b.WithCollector(o.collector)
	}
	if o.store != nil {
		b = b.WithDecisionStore(o.store)
	}
	return b.Build()
}

// Load reads and validates a configuration file. Defaults and environment
// overrides apply the same way they do for the teamflow CLI.
func Load(path string) (*config.Config, error) {
	loader := config.NewLoader().WithValidator((*config.Config).Validate)
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	return loader.Load()
}
