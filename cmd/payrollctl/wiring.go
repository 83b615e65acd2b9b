package main

import (
	"context"
	"errors"
	"fmt"

	rds "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/KamdynS/payroll-agents/agent/aggregate"
	"github.com/KamdynS/payroll-agents/agent/catalog"
	core "github.com/KamdynS/payroll-agents/agent/core"
	"github.com/KamdynS/payroll-agents/agent/relevance"
	"github.com/KamdynS/payroll-agents/agent/supervisor"
	"github.com/KamdynS/payroll-agents/config"
	"github.com/KamdynS/payroll-agents/llm"
	"github.com/KamdynS/payroll-agents/llm/anthropic"
	"github.com/KamdynS/payroll-agents/llm/openai"
	"github.com/KamdynS/payroll-agents/logging"
	"github.com/KamdynS/payroll-agents/memory"
	"github.com/KamdynS/payroll-agents/memory/badger"
	"github.com/KamdynS/payroll-agents/memory/inmemory"
	"github.com/KamdynS/payroll-agents/memory/redis"
	"github.com/KamdynS/payroll-agents/memory/sqlite"
	"github.com/KamdynS/payroll-agents/memory/vector/pgvector"
	obs "github.com/KamdynS/payroll-agents/observability"
	otelobs "github.com/KamdynS/payroll-agents/observability/otel"
	"github.com/KamdynS/payroll-agents/observability/prom"
	"github.com/KamdynS/payroll-agents/rag"
	"github.com/KamdynS/payroll-agents/tools"
)

var errNoProvider = errors.New("no LLM provider configured: set OPENAI_API_KEY or ANTHROPIC_API_KEY")

// stack holds everything needed to answer queries, plus the resources to
// release afterwards.
type stack struct {
	orch    *supervisor.Orchestrator
	metrics *prom.Exporter
	closers []func()
}

// Close releases resources in reverse order of acquisition.
func (s *stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func buildStack(ctx context.Context, cfg *config.Config, log *zap.Logger) (_ *stack, err error) {
	s := &stack{}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	cat, err := catalog.LoadFile(cfg.Agents.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	client, err := newLLMClient(cfg)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := openStore(cfg.Store)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, closeStore)

	retriever, closeKB, err := openRetriever(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, closeKB)

	analyzer, err := newAnalyzer(cfg.Relevance, cat, client, log)
	if err != nil {
		return nil, err
	}
	if c, ok := analyzer.(*relevance.Cached); ok {
		s.closers = append(s.closers, c.Close)
	}

	agg := &aggregate.Aggregator{Logger: log}
	if cfg.Aggregate.Synthesize {
		agg.Synthesizer = &aggregate.LLMSynthesizer{Client: client, Model: cfg.Aggregate.Model}
	}

	s.metrics = prom.New()
	obs.SetMetrics(s.metrics)
	if cfg.Trace.Enabled {
		obs.SetTracer(otelobs.NewTracer(cfg.Trace.ServiceName))
	}

	s.orch = supervisor.New(supervisor.Options{
		Catalog:    cat,
		Analyzer:   analyzer,
		Aggregator: agg,
		Deps: core.Deps{
			LLM:       client,
			Store:     store,
			Retriever: retriever,
			Tools:     tools.NewDefaultRegistry(),
			Guardrails: &core.SimpleGuardrails{
				DenySubstrings: cfg.Agents.DenyTerms,
				MaxInputChars:  cfg.Agents.MaxInputChars,
			},
			Logger: log,
		},
		Policy:          relevancePolicy(cfg.Relevance),
		UnitTimeout:     cfg.Agents.Timeout,
		AnalyzerTimeout: cfg.Relevance.Timeout,
	})

	log.Info("orchestrator ready",
		zap.String("store", cfg.Store.Backend),
		zap.String("relevance", cfg.Relevance.Mode),
		zap.Bool("synthesize", cfg.Aggregate.Synthesize),
		zap.Bool("knowledge", cfg.Knowledge.Enabled))
	return s, nil
}

// newLLMClient routes each request to the provider owning its model. The
// first configured provider serves requests without a model.
func newLLMClient(cfg *config.Config) (llm.Client, error) {
	policy := llm.StaticPolicy{ByProvider: map[llm.Provider]llm.Client{}}

	if cfg.OpenAI.APIKey != "" {
		c, err := openai.NewClient(cfg.OpenAI)
		if err != nil {
			return nil, fmt.Errorf("openai client: %w", err)
		}
		policy.ByProvider[llm.ProviderOpenAI] = c
		policy.Default = c
	}
	if cfg.Anthropic.APIKey != "" {
		c, err := anthropic.NewClient(cfg.Anthropic)
		if err != nil {
			return nil, fmt.Errorf("anthropic client: %w", err)
		}
		policy.ByProvider[llm.ProviderAnthropic] = c
		if policy.Default == nil {
			policy.Default = c
		}
	}
	if policy.Default == nil {
		return nil, errNoProvider
	}
	return llm.NewRouterClient(policy), nil
}

func openStore(cfg config.StoreConfig) (memory.ConversationStore, func(), error) {
	switch cfg.Backend {
	case "", "memory":
		return inmemory.NewConversationStore(), func() {}, nil
	case "sqlite":
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	case "badger":
		s, err := badger.Open(badger.Options{Path: cfg.BadgerPath, TTL: cfg.TTL})
		if err != nil {
			return nil, nil, fmt.Errorf("open badger store: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	case "redis":
		client := rds.NewClient(&rds.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return redis.NewConversationStore(client, cfg.Redis.Prefix, cfg.TTL), func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func openRetriever(ctx context.Context, cfg *config.Config) (rag.Retriever, func(), error) {
	if !cfg.Knowledge.Enabled {
		return rag.NopRetriever{}, func() {}, nil
	}
	store, emb, err := openKnowledge(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	r := &rag.VectorRetriever{
		Store:    store,
		Embedder: emb,
		TopK:     cfg.Knowledge.TopK,
		MinScore: cfg.Knowledge.MinScore,
	}
	return r, store.Close, nil
}

// openKnowledge connects the pgvector store and the embedder used to index
// and query it.
func openKnowledge(ctx context.Context, cfg *config.Config) (*pgvector.Store, rag.Embedder, error) {
	if cfg.Knowledge.DSN == "" {
		return nil, nil, errors.New("knowledge base dsn is not set")
	}
	emb, err := rag.NewOpenAIEmbedder(cfg.OpenAI, cfg.Knowledge.EmbeddingModel)
	if err != nil {
		return nil, nil, fmt.Errorf("embedder: %w", err)
	}
	store, err := pgvector.Connect(ctx, cfg.Knowledge.DSN, cfg.Knowledge.Table)
	if err != nil {
		return nil, nil, fmt.Errorf("connect knowledge base: %w", err)
	}
	return store, emb, nil
}

func relevancePolicy(cfg config.RelevanceConfig) relevance.Policy {
	return relevance.Policy{Cutoff: cfg.Cutoff, MaxAgents: cfg.MaxAgents, Default: catalog.Default}
}

func newAnalyzer(cfg config.RelevanceConfig, cat *catalog.Catalog, client llm.Client, log *zap.Logger) (relevance.Analyzer, error) {
	policy := relevancePolicy(cfg)

	var a relevance.Analyzer
	switch cfg.Mode {
	case "keyword":
		a = relevance.NewKeywordAnalyzer(cat, policy)
	case "", "llm":
		a = &relevance.LLMAnalyzer{Client: client, Catalog: cat, Model: cfg.Model, Policy: policy, Logger: log}
	default:
		return nil, fmt.Errorf("unknown relevance mode %q", cfg.Mode)
	}
	if cfg.CacheTTL <= 0 {
		return a, nil
	}
	return relevance.NewCached(a, int64(cfg.CacheSize), cfg.CacheTTL)
}
