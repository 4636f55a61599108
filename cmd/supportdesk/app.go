package main

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/pkg/errors"

	agent "github.com/hrygo/supportdesk/ai/agents"
	"github.com/hrygo/supportdesk/ai/configloader"
	ctxpkg "github.com/hrygo/supportdesk/ai/context"
	"github.com/hrygo/supportdesk/ai/core/llm"
	"github.com/hrygo/supportdesk/ai/escalation"
	"github.com/hrygo/supportdesk/ai/filter"
	"github.com/hrygo/supportdesk/ai/metrics"
	"github.com/hrygo/supportdesk/ai/observability"
	"github.com/hrygo/supportdesk/ai/orchestrator"
	"github.com/hrygo/supportdesk/ai/routing"
	"github.com/hrygo/supportdesk/ai/session"
	"github.com/hrygo/supportdesk/internal/profile"
	"github.com/hrygo/supportdesk/plugin/ticket"
	"github.com/hrygo/supportdesk/store"
	"github.com/hrygo/supportdesk/store/db"
)

// app holds the wired support pipeline and the resources it owns.
type app struct {
	store        *store.Store
	orchestrator *orchestrator.Service
	sessions     *session.Registry
	metrics      *metrics.PrometheusExporter
	logger       *slog.Logger
}

func (a *app) Close() error {
	return a.store.Close()
}

// policies are the optional YAML files that tune the pipeline.
type policies struct {
	filter     filter.FilterConfig
	knowledge  agent.KnowledgeConfig
	escalation escalation.RulesConfig
	routing    routing.RuleConfig
}

func loadPolicies(p *profile.Profile, logger *slog.Logger) (*policies, error) {
	loader := configloader.NewLoader(p.PolicyDir)
	out := &policies{
		filter:    filter.DefaultConfig(),
		knowledge: agent.DefaultKnowledge(),
		routing:   routing.DefaultRuleConfig(),
	}

	files := []struct {
		name   string
		target any
	}{
		{p.SanitizerFile, &out.filter},
		{p.KnowledgeFile, &out.knowledge},
		{p.EscalationRulesFile, &out.escalation},
		{p.RoutingFile, &out.routing},
	}
	for _, f := range files {
		found, err := loader.LoadOptional(f.name, f.target)
		if err != nil {
			return nil, err
		}
		if found {
			logger.Info("loaded policy file", "path", filepath.Join(p.PolicyDir, f.name))
		} else if f.name != "" {
			logger.Debug("policy file not found, using defaults", "path", filepath.Join(p.PolicyDir, f.name))
		}
	}
	return out, nil
}

// newGateway builds the inference fallback chain. It returns nil when no
// backend is usable, which turns handlers and routing to their offline paths.
func newGateway(p *profile.Profile, observer observability.Observer, logger *slog.Logger) (llm.Completer, error) {
	if !p.IsInferenceEnabled() {
		logger.Warn("no inference backend configured, running rule-based only")
		return nil, nil
	}
	var backends []llm.Backend
	for _, b := range p.Backends {
		if b.APIKey == "" && b.Provider != "ollama" {
			logger.Warn("skipping backend without credentials", "provider", b.Provider)
			continue
		}
		backend, err := llm.NewOpenAIBackend(&llm.Config{
			Provider:    b.Provider,
			Model:       b.Model,
			APIKey:      b.APIKey,
			BaseURL:     b.BaseURL,
			MaxTokens:   p.MaxTokens,
			Temperature: p.Temperature,
			RPS:         b.RPS,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create backend %s", b.Provider)
		}
		backends = append(backends, backend)
	}
	gateway := llm.NewGateway(backends,
		llm.WithAttemptTimeout(p.AttemptTimeout),
		llm.WithObserver(observer),
		llm.WithLogger(logger),
	)
	logger.Info("inference gateway ready", "backends", gateway.Backends())
	return gateway, nil
}

func newTicketing(p *profile.Profile, s *store.Store) escalation.Ticketing {
	if p.Ticketing == "webhook" {
		return ticket.NewWebhookTicketing(p.TicketWebhookURL)
	}
	return ticket.NewStoreTicketing(s, p.TicketWebhookURL)
}

// newApp opens the store and wires every collaborator of the orchestrator.
func newApp(ctx context.Context, p *profile.Profile, logger *slog.Logger) (*app, error) {
	pol, err := loadPolicies(p, logger)
	if err != nil {
		return nil, err
	}

	sanitizer, err := filter.NewFilter(pol.filter)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build sanitizer")
	}
	rules, err := escalation.NewRuleSet(pol.escalation.Rules)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compile escalation rules")
	}
	sessionPolicy, err := session.ParsePolicy(p.SessionPolicy)
	if err != nil {
		return nil, err
	}

	dbDriver, err := db.NewDBDriver(p)
	if err != nil {
		printDatabaseError(err, p)
		return nil, err
	}
	storeInstance := store.New(dbDriver, p)
	if err := storeInstance.Migrate(ctx); err != nil {
		_ = storeInstance.Close()
		return nil, errors.Wrap(err, "failed to migrate")
	}

	exporter := metrics.NewPrometheusExporter(metrics.DefaultConfig())
	observer := observability.Multi{observability.NewSlogObserver(logger), exporter}

	completer, err := newGateway(p, observer, logger)
	if err != nil {
		_ = storeInstance.Close()
		return nil, err
	}

	window := ctxpkg.NewWindow(p.WindowSize)
	states := ctxpkg.NewStoreAdapter(storeInstance, sanitizer)

	controller := escalation.NewController(escalation.Policy{
		DisputeKeywords:        p.DisputeKeywords,
		LowConfidenceThreshold: p.EscalationThreshold,
		TicketTimeout:          p.StoreTimeout,
		SaveTimeout:            p.StoreTimeout,
	}, newTicketing(p, storeInstance), states,
		escalation.WithRules(rules),
		escalation.WithObserver(observer),
		escalation.WithLogger(logger),
	)

	handlers, err := agent.NewRegistry(
		agent.NewOrderHandler(storeInstance),
		agent.NewTechHandler(agent.NewKnowledgeBase(pol.knowledge)),
		agent.NewBillingHandler(completer, controller.Disputes()),
		agent.NewGeneralistHandler(completer),
	)
	if err != nil {
		_ = storeInstance.Close()
		return nil, err
	}

	dispatcher := routing.NewDispatcher(routing.Config{
		Completer: completer,
		Observer:  observer,
		Logger:    logger,
		Window:    window,
		Rules:     pol.routing,
	})

	sessions := session.NewRegistry(sessionPolicy, p.SessionIdleTTL, logger)

	orch, err := orchestrator.New(orchestrator.Config{
		Sanitizer:    sanitizer,
		Window:       window,
		Dispatcher:   dispatcher,
		Handlers:     handlers,
		Escalation:   controller,
		States:       states,
		Customers:    storeInstance,
		Sessions:     sessions,
		Observer:     observer,
		Logger:       logger,
		CostPerToken: p.CostPerToken,
		TurnTimeout:  p.TurnTimeout(),
		StoreTimeout: p.StoreTimeout,
	})
	if err != nil {
		_ = storeInstance.Close()
		return nil, err
	}

	return &app{
		store:        storeInstance,
		orchestrator: orch,
		sessions:     sessions,
		metrics:      exporter,
		logger:       logger,
	}, nil
}
