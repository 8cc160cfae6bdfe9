// Package app wires configuration into the running services.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/lessonplanner/config"
	"github.com/mohammad-safakhou/lessonplanner/internal/agent/core"
	"github.com/mohammad-safakhou/lessonplanner/internal/agent/telemetry"
	"github.com/mohammad-safakhou/lessonplanner/internal/logger"
	"github.com/mohammad-safakhou/lessonplanner/internal/prompts"
	"github.com/mohammad-safakhou/lessonplanner/internal/retrieval"
	"github.com/mohammad-safakhou/lessonplanner/internal/server"
	"github.com/mohammad-safakhou/lessonplanner/internal/store"
	"github.com/mohammad-safakhou/lessonplanner/internal/wizard"
	"github.com/mohammad-safakhou/lessonplanner/provider"
	gemini_provider "github.com/mohammad-safakhou/lessonplanner/provider/gemini"
	openai_provider "github.com/mohammad-safakhou/lessonplanner/provider/openai"
	"github.com/mohammad-safakhou/lessonplanner/repository/redis_repository"
	"github.com/mohammad-safakhou/lessonplanner/session"
	"github.com/mohammad-safakhou/lessonplanner/session/session_models"
	"github.com/mohammad-safakhou/lessonplanner/tools/embedding"
	"github.com/mohammad-safakhou/lessonplanner/tools/web_fetch"
	"github.com/mohammad-safakhou/lessonplanner/tools/web_search"
	"github.com/redis/go-redis/v9"
)

// App holds the wired services of one process.
type App struct {
	Config       *config.Config
	Log          *logger.Logger
	Provider     provider.Provider
	Metrics      *telemetry.Metrics
	Retriever    *retrieval.Retriever
	Refresher    *retrieval.Refresher
	Sessions     session_models.Store
	Orchestrator *core.Orchestrator
	Wizard       *wizard.Service

	closers []func() error
}

// NewProvider builds the configured LLM backend.
func NewProvider(ctx context.Context, cfg config.LLMConfig) (provider.Provider, error) {
	p, err := cfg.Active()
	if err != nil {
		return nil, err
	}
	switch provider.Client(p.Type) {
	case provider.OpenAI:
		return openai_provider.NewOpenAIClient(openai_provider.Config{
			APIKey:         p.APIKey,
			BaseURL:        p.BaseURL,
			Model:          p.Model,
			EmbeddingModel: p.EmbeddingModel,
			Temperature:    p.Temperature,
			MaxTokens:      p.MaxTokens,
			Timeout:        p.Timeout,
		}), nil
	case provider.Gemini:
		c, err := gemini_provider.NewGeminiClient(ctx, gemini_provider.Config{
			APIKey:         p.APIKey,
			Model:          p.Model,
			EmbeddingModel: p.EmbeddingModel,
			Temperature:    p.Temperature,
			MaxTokens:      p.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: %s", provider.ErrUnsupportedProvider, p.Type)
	}
}

// Build opens storage, the LLM backend and the search tools and assembles the
// orchestrator and wizard. Close releases everything Build opened.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.Nop()
	}
	a := &App{Config: cfg, Log: log, Metrics: telemetry.NewMetrics()}

	p, err := NewProvider(ctx, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}
	a.Provider = p

	rdb, err := a.openRedis(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openSessions(ctx, rdb); err != nil {
		a.Close()
		return nil, err
	}

	embedOpts := []embedding.Option{embedding.WithBatchSize(cfg.Retrieval.EmbedBatchSize)}
	if rdb != nil && cfg.Retrieval.EmbeddingCache {
		embedOpts = append(embedOpts, embedding.WithCache(redis_repository.NewEmbeddingCache(rdb, cfg.Retrieval.EmbeddingTTL)))
	}
	a.Retriever = retrieval.NewRetriever(cfg.Retrieval, embedding.NewEmbedding(p, embedOpts...), log.With("component", "retriever"))
	a.closers = append(a.closers, a.Retriever.Close)
	if cfg.Retrieval.RefreshCron != "" {
		a.Refresher, err = retrieval.NewRefresher(cfg.Retrieval.RefreshCron, a.Retriever, log.With("component", "refresher"),
			retrieval.WithMaxAge(cfg.Retrieval.RefreshMaxAge))
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	searcher, fetcher, err := newSearchTools(cfg.Search)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Orchestrator = newOrchestrator(cfg, p, a.Retriever, searcher, fetcher, a.Metrics, log)
	a.Wizard = wizard.NewService(a.Sessions, wizard.NewHandler(a.Orchestrator), cfg.Wizard.HistoryTurns, a.Metrics, log.With("component", "wizard"))
	return a, nil
}

func (a *App) openRedis(ctx context.Context) (*redis.Client, error) {
	cfg := a.Config
	wantRedis := cfg.Storage.Backend == string(session.RedisStore) || cfg.Retrieval.EmbeddingCache
	if !wantRedis || !cfg.Storage.Redis.Configured() {
		if cfg.Storage.Backend == string(session.RedisStore) {
			return nil, errors.New("storage.redis host and port required for the redis backend")
		}
		return nil, nil
	}
	rdb, err := redis_repository.Conn(ctx, cfg.Storage.Redis)
	if err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	a.closers = append(a.closers, rdb.Close)
	return rdb, nil
}

func (a *App) openSessions(ctx context.Context, rdb *redis.Client) error {
	cfg := a.Config.Storage
	b := session.Backends{Redis: rdb, SessionTTL: cfg.Redis.SessionTTL}
	if cfg.Backend == string(session.PostgresStore) {
		st, err := store.New(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres connection failed: %w", err)
		}
		a.closers = append(a.closers, st.Close)
		b.Postgres = st
	}
	s, err := session.NewStore(session.StoreType(cfg.Backend), b)
	if err != nil {
		return err
	}
	a.Sessions = s
	return nil
}

func newSearchTools(cfg config.SearchConfig) (web_search.WebSearcher, web_fetch.WebFetcher, error) {
	if cfg.Provider == "" {
		return nil, nil, nil
	}
	searcher, err := web_search.NewWebSearcher(web_search.Provider(cfg.Provider), cfg.APIKey(), web_search.Options{
		Timeout: cfg.Timeout,
		Retries: cfg.Retries,
	})
	if err != nil {
		return nil, nil, err
	}
	if cfg.FetchTop <= 0 {
		return searcher, nil, nil
	}
	fetcher, err := web_fetch.NewWebFetcher(web_fetch.FetcherType(cfg.Fetcher), cfg.FetchTimeout, cfg.FetchMaxChars)
	if err != nil {
		return nil, nil, err
	}
	return searcher, fetcher, nil
}

func newOrchestrator(cfg *config.Config, p provider.Provider, r *retrieval.Retriever, searcher web_search.WebSearcher, fetcher web_fetch.WebFetcher, metrics *telemetry.Metrics, log *logger.Logger) *core.Orchestrator {
	reg := prompts.NewRegistry()
	routing := cfg.LLM.Routing
	wf := cfg.Workflow

	tasks := core.NewTaskProcessor(p, reg, provider.Options{Model: routing.Analysis, Temperature: wf.AnalysisTemperature}, metrics)
	docs := core.NewDocumentQueryAgent(p, reg, r, provider.Options{Model: routing.Retrieval, Temperature: wf.AnalysisTemperature}, metrics, log.With("agent", "document_query"))
	search := core.NewInformationSearchAgent(p, reg, searcher, fetcher, core.SearchOptions{
		Provider:       cfg.Search.Provider,
		MaxResults:     cfg.Search.MaxResults,
		FetchTop:       cfg.Search.FetchTop,
		Domains:        cfg.Search.Domains,
		QueryOptions:   provider.Options{Model: routing.Search, Temperature: wf.AnalysisTemperature},
		SummaryOptions: provider.Options{Model: routing.Search, Temperature: wf.AnalysisTemperature},
	}, metrics, log.With("agent", "information_search"))
	synth := core.NewSynthesizer(p, reg, provider.Options{Model: routing.Synthesis, Temperature: wf.SynthesisTemperature}, metrics)
	return core.NewOrchestrator(tasks, docs, search, synth, core.OptionsFromConfig(wf), metrics, log.With("component", "orchestrator"))
}

// HTTP returns the API server for the app.
func (a *App) HTTP() *echo.Echo {
	return server.New(server.Deps{
		Sessions:     a.Sessions,
		Wizard:       a.Wizard,
		Workflow:     a.Orchestrator,
		Metrics:      a.Metrics,
		Log:          a.Log.With("component", "http"),
		StepTimeout:  a.Config.Server.StepTimeout,
		AllowOrigins: a.Config.Server.AllowOrigins,
	})
}

// Warm builds the index of every configured source.
func (a *App) Warm(ctx context.Context) error {
	var errs []error
	for _, name := range a.Retriever.Sources() {
		n, err := a.Retriever.Warm(ctx, name, "")
		if err != nil {
			errs = append(errs, fmt.Errorf("warm %s: %w", name, err))
			continue
		}
		a.Log.Info("source indexed", "source", name, "chunks", n)
	}
	return errors.Join(errs...)
}

// Close stops the refresher and releases connections in reverse order.
func (a *App) Close() error {
	if a.Refresher != nil {
		a.Refresher.Stop()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
