package cli

import (
	"context"
	"fmt"

	"github.com/soyeahso/huddle/internal/catalog"
	"github.com/soyeahso/huddle/internal/config"
	"github.com/soyeahso/huddle/internal/conversation"
	"github.com/soyeahso/huddle/internal/hooks"
	"github.com/soyeahso/huddle/internal/llm"
	"github.com/soyeahso/huddle/internal/logging"
	"github.com/soyeahso/huddle/internal/store"
)

// runtime holds the wired conversation engine shared by run and serve.
type runtime struct {
	cfg         config.Config
	db          *store.DB // nil with the memory driver
	history     *store.TranscriptStore
	agentStore  *store.AgentStore
	usage       *store.UsageStore
	transcripts conversation.TranscriptStore
	catalog     *catalog.Catalog
	hooks       *hooks.Manager
	registry    *llm.Registry
	orch        *conversation.Orchestrator
	log         *logging.Logger
}

// openRuntime wires storage, the agent catalog, model providers, hooks and
// the orchestrator from config.
func openRuntime(cfg config.Config, log *logging.Logger) (*runtime, error) {
	rt := &runtime{cfg: cfg, log: log}

	switch cfg.Store.Driver {
	case "memory":
		rt.transcripts = conversation.NewMemoryTranscriptStore()
		if cfg.Credits.TokenBudget > 0 {
			log.Warn().Msg("credit budget is not enforced with the memory store")
		}
		log.Info().Msg("using in-memory transcript store")
	default:
		if err := paths.EnsureDirs(); err != nil {
			return nil, fmt.Errorf("creating data directories: %w", err)
		}
		dbPath := paths.StorePath(cfg.Store)
		db, err := store.Open(dbPath, log)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		rt.db = db
		rt.history = store.NewTranscriptStore(db)
		rt.agentStore = store.NewAgentStore(db)
		rt.usage = store.NewUsageStore(db, cfg.Credits.TokenBudget)
		rt.transcripts = rt.history
		log.Info().Str("path", dbPath).Msg("using SQLite transcript store")
	}

	cat, err := catalog.New(paths.CatalogPath(cfg.Agents), cfg.Agents.List, log)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("loading agent catalog: %w", err)
	}
	rt.catalog = cat

	var agents conversation.AgentRepository
	if rt.agentStore != nil {
		agents = catalog.NewChain(rt.agentStore, cat)
	} else {
		agents = catalog.NewChain(cat)
	}

	rt.hooks = hooks.NewManager(log)
	if n := hooks.RegisterCommands(rt.hooks, cfg.Hooks); n > 0 {
		log.Info().Int("hooks", n).Msg("command hooks registered")
	}

	rt.registry = llm.NewRegistryFromConfig(cfg.Models, log)
	var ledger llm.Ledger
	if rt.usage != nil {
		ledger = rt.usage
	}
	provider := llm.NewProvider(rt.registry, ledger, log)

	rt.orch = conversation.NewOrchestrator(agents, rt.transcripts, provider, orchestratorOptions(cfg.Orchestrator), rt.hooks, log)
	return rt, nil
}

func orchestratorOptions(oc config.OrchestratorConfig) conversation.Options {
	return conversation.Options{
		MaxTurns:         oc.MaxTurns,
		HistoryWindow:    oc.HistoryWindow,
		SupervisorWindow: oc.SupervisorWindow,
		EndSignalWindow:  oc.EndSignalWindow,
		StreamDelay:      oc.StreamDelay,
		CallTimeout:      oc.CallTimeout,
		CoordinatorModel: oc.Coordinator,
	}
}

// watchCatalog hot reloads the catalog file when enabled in config.
func (rt *runtime) watchCatalog(ctx context.Context) {
	if !rt.cfg.Agents.Watch {
		return
	}
	if err := rt.catalog.Watch(ctx, 0); err != nil {
		rt.log.Warn().Err(err).Msg("catalog hot reload disabled")
	}
}

// Close releases the database.
func (rt *runtime) Close() error {
	if rt.db != nil {
		return rt.db.Close()
	}
	return nil
}
