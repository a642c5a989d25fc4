package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/rahul/whatsmap/internal/agent"
	"github.com/rahul/whatsmap/internal/classify"
	"github.com/rahul/whatsmap/internal/engine"
	"github.com/rahul/whatsmap/internal/governance"
	"github.com/rahul/whatsmap/internal/observability"
	"github.com/rahul/whatsmap/internal/plan"
	"github.com/rahul/whatsmap/internal/provider"
	"github.com/rahul/whatsmap/internal/store"
	"github.com/rahul/whatsmap/internal/tools"
	"github.com/rahul/whatsmap/pkg/config"
)

// app holds everything a command needs once booted.
type app struct {
	catalog      *store.CatalogStore
	registry     *tools.Registry
	promRegistry *prometheus.Registry
	orchestrator *agent.Orchestrator
}

func (a *app) Close() error {
	return a.catalog.Close()
}

func openCatalog(ctx context.Context, c *config.Config) (*store.CatalogStore, error) {
	if c.Memory.Type != "sqlite" {
		return nil, fmt.Errorf("memory type %q not supported", c.Memory.Type)
	}
	catalog, err := store.NewCatalogStore(c.Memory.Path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	if c.Memory.Seed == "" {
		return catalog, nil
	}

	existing, err := catalog.All(ctx)
	if err != nil {
		catalog.Close()
		return nil, err
	}
	if len(existing) == 0 {
		n, err := catalog.ImportSeed(ctx, c.Memory.Seed)
		if err != nil {
			catalog.Close()
			return nil, fmt.Errorf("seed catalog: %w", err)
		}
		logger.Info("catalog seeded", zap.Int("projects", n), zap.String("seed", c.Memory.Seed))
	}
	return catalog, nil
}

// newApp wires the catalog, model, tool registry, engine and orchestrator.
// The registry is sealed before it is returned.
func newApp(ctx context.Context, c *config.Config) (*app, error) {
	catalog, err := openCatalog(ctx, c)
	if err != nil {
		return nil, err
	}

	pName, pCfg := c.GetDefaultProvider()
	if pName == "" {
		catalog.Close()
		return nil, fmt.Errorf("no enabled provider found in config")
	}
	model, err := provider.NewModel(ctx, pName, pCfg)
	if err != nil {
		catalog.Close()
		return nil, err
	}
	logger.Info("provider ready", zap.String("provider", pName), zap.String("model", pCfg.Model))

	prompts := agent.NewPromptManager(c.Prompts.Dir, logger)

	registry := tools.NewRegistry()
	registry.MustRegister(tools.NewListingTool(catalog))
	registry.MustRegister(tools.NewMatchTool(catalog))
	for _, spec := range prompts.BlockSpecs() {
		registry.MustRegister(tools.NewGenerativeTool(spec, model, catalog))
	}
	if search, err := tools.NewDuckDuckGo(c.Search.MaxResults); err != nil {
		// Without search the lead pipeline fails to compile; briefings still work.
		logger.Warn("search unavailable, lead enrichment disabled", zap.Error(err))
	} else {
		registry.MustRegister(tools.NewInvestigateTool(search, model))
	}
	registry.Seal()

	policy, err := governance.NewCapabilityPolicy(c.Governance.DeniedTools, c.Governance.DeniedArguments)
	if err != nil {
		catalog.Close()
		return nil, err
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(promRegistry)
	events := observability.NewLogger(logger).WithLLMLog(c.Logging.LLMLog)

	eng := engine.New(registry,
		engine.WithPolicy(policy),
		engine.WithLogger(events),
		engine.WithMetrics(metrics),
		engine.WithFanOutLimit(c.Engine.FanOutLimit),
		engine.WithStepTimeout(c.Engine.StepTimeout.Duration),
	)

	classifierPrompt, err := prompts.GetClassifierPrompt()
	if err != nil {
		logger.Debug("using built-in classifier prompt", zap.Error(err))
	}
	classifier := classify.New(model, classifierPrompt, events)

	compiler := plan.NewCompiler(registry).WithPipelines(c.Pipelines)

	orch := agent.NewOrchestrator(classifier, catalog, compiler, eng,
		agent.WithLogger(events),
		agent.WithMetrics(metrics),
		agent.WithRequestTimeout(c.Engine.RequestTimeout.Duration),
	)

	return &app{
		catalog:      catalog,
		registry:     registry,
		promRegistry: promRegistry,
		orchestrator: orch,
	}, nil
}
