package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/meridian-research/prism/internal/aggregator"
	"github.com/meridian-research/prism/internal/analyzer"
	"github.com/meridian-research/prism/internal/api"
	"github.com/meridian-research/prism/internal/config"
	"github.com/meridian-research/prism/internal/crossstudy"
	"github.com/meridian-research/prism/internal/embeddings"
	"github.com/meridian-research/prism/internal/events"
	"github.com/meridian-research/prism/internal/extractor"
	"github.com/meridian-research/prism/internal/indexer"
	"github.com/meridian-research/prism/internal/ingest"
	"github.com/meridian-research/prism/internal/llm"
	"github.com/meridian-research/prism/internal/pipeline"
	"github.com/meridian-research/prism/internal/segmenter"
	"github.com/meridian-research/prism/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("prism starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database connected")

	// Model client
	if cfg.OpenAIAPIKey == "" {
		slog.Error("OPENAI_API_KEY is required")
		os.Exit(1)
	}
	modelClient := llm.NewClient(llm.Config{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.Model,
		Timeout: cfg.LLMTimeout,
	})
	slog.Info("model client ready", "model", cfg.Model)

	// Pipeline stages
	seg := segmenter.New(segmenter.Config{
		MaxSegmentTokens: cfg.ChunkSize,
		OverlapTokens:    cfg.ChunkOverlap,
	})
	ext := extractor.New(modelClient, slog.Default())
	an := analyzer.New(ext, cfg.Concurrency, slog.Default())
	agg := aggregator.New(modelClient, aggregator.Config{}, slog.Default())
	comparator := crossstudy.New(modelClient, crossstudy.Config{}, slog.Default())

	// Embedding indexer
	embedder := embeddings.NewClient(embeddings.Config{
		APIKey: cfg.OpenAIAPIKey,
		Model:  cfg.EmbedModel,
	})
	ix := indexer.New(embedder, db, indexer.Config{}, slog.Default())
	slog.Info("embedding indexer ready", "model", cfg.EmbedModel)

	// Events are optional, the pipeline runs without a broker.
	var bus *events.Client
	if cfg.NatsURL != "" {
		bus, err = events.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer bus.Close()
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS not configured, running without events")
	}

	runner := pipeline.NewRunner(db, db, seg, an, agg, ix, bus, slog.Default())

	// HTTP API
	srv := api.NewServer(api.Deps{
		Port:       cfg.Port,
		Store:      db,
		Runner:     runner,
		Analyzer:   an,
		Aggregator: agg,
		Comparator: comparator,
		Search:     ix,
		Ingest:     ingest.NewTextExtractor(),
		Events:     bus,
		Logger:     slog.Default(),
	})
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("prism ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("prism stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
