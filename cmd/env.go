package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/plateful/plateful/internal/persist"
	"github.com/plateful/plateful/internal/pipeline"
	"github.com/plateful/plateful/internal/resilience"
	"github.com/plateful/plateful/internal/resolver"
	"github.com/plateful/plateful/internal/scrape"
	"github.com/plateful/plateful/internal/store"
	"github.com/plateful/plateful/internal/structure"
	"github.com/plateful/plateful/internal/vision"
	anthropicpkg "github.com/plateful/plateful/pkg/anthropic"
	"github.com/plateful/plateful/pkg/firecrawl"
	"github.com/plateful/plateful/pkg/gemini"
	"github.com/plateful/plateful/pkg/jina"
)

// pipelineEnv holds the initialized store, clients, and pipeline shared by
// the serve/ingest/recipes commands.
type pipelineEnv struct {
	Store    store.Store
	Saver    *persist.Saver
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Saver != nil {
		pe.Saver.Close()
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens the configured store backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("PLATEFUL_STORE_DATABASE_URL is required for the postgres driver")
		}
		return store.NewPostgresStore(ctx, cfg.Store.DatabaseURL)
	case "sqlite":
		return store.NewSQLiteStore(cfg.Store.SQLitePath)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// retryPolicy builds the provider retry policy from config.
func retryPolicy() resilience.Policy {
	p := resilience.DefaultPolicy()
	if cfg.Retry.MaxAttempts > 0 {
		p.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.InitialBackoffMS > 0 {
		p.InitialBackoff = time.Duration(cfg.Retry.InitialBackoffMS) * time.Millisecond
	}
	if cfg.Retry.MaxBackoffMS > 0 {
		p.MaxBackoff = time.Duration(cfg.Retry.MaxBackoffMS) * time.Millisecond
	}
	if cfg.Retry.BackoffMultiplier > 0 {
		p.Multiplier = cfg.Retry.BackoffMultiplier
	}
	return p
}

// initPipeline sets up the store and all provider clients and assembles the
// pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	jinaClient := jina.NewClient(cfg.Jina.Key,
		jina.WithBaseURL(cfg.Jina.BaseURL),
		jina.WithRateLimit(cfg.Jina.RatePerSec, cfg.Jina.RateBurst),
	)
	firecrawlClient := firecrawl.NewClient(cfg.Firecrawl.Key,
		firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL),
	)

	// Gemini is optional: without it there is no vision fallback and no
	// fuzzy matching, but URL and text ingestion still work.
	var geminiClient gemini.Client
	if cfg.Gemini.Key != "" {
		geminiClient, err = gemini.NewClient(ctx, gemini.Config{
			APIKey:         cfg.Gemini.Key,
			VisionModel:    cfg.Gemini.VisionModel,
			EmbedModel:     cfg.Gemini.EmbedModel,
			EmbedDimension: cfg.Gemini.EmbedDimension,
		})
		if err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "init gemini client")
		}
	} else {
		zap.L().Warn("PLATEFUL_GEMINI_KEY not set, vision fallback and fuzzy matching disabled")
	}

	policy := retryPolicy()

	// Scrape chain: Jina Reader primary, Firecrawl fallback.
	chain := scrape.NewChain(
		scrape.NewJinaScraper(jinaClient),
		scrape.NewFirecrawlScraper(firecrawlClient),
	)

	// Vision: Claude primary, Gemini fallback when configured.
	var fallback vision.Provider
	if geminiClient != nil {
		fallback = vision.NewGeminiProvider(geminiClient)
	}
	extractor := vision.NewExtractor(
		vision.NewClaudeProvider(anthropicClient, cfg.Anthropic.VisionModel),
		fallback,
		policy,
	)

	parser := structure.NewParser(anthropicClient, cfg.Anthropic.ParseModel, policy)

	res := resolver.New(st, geminiClient,
		resolver.WithThreshold(cfg.Match.SimilarityThreshold),
		resolver.WithMaxCandidates(cfg.Match.MaxCandidates),
	)
	saver := persist.New(st, geminiClient)

	p := pipeline.New(st, res, chain, extractor, parser, saver)

	return &pipelineEnv{Store: st, Saver: saver, Pipeline: p}, nil
}
