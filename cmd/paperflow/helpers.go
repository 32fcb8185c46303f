package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/paperflow/internal/analyze"
	"github.com/Veraticus/paperflow/internal/categorize"
	"github.com/Veraticus/paperflow/internal/config"
	"github.com/Veraticus/paperflow/internal/extract"
	"github.com/Veraticus/paperflow/internal/llm"
	"github.com/Veraticus/paperflow/internal/pipeline"
	"github.com/Veraticus/paperflow/internal/service"
	"github.com/Veraticus/paperflow/internal/storage"
)

// openStorage opens and migrates the configured database. Callers own Close.
func openStorage(ctx context.Context, cfg *config.Config) (service.Storage, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// buildProcessor wires the full pipeline from configuration. LLM and OCR are
// optional; missing keys degrade those stages rather than failing startup.
func buildProcessor(cfg *config.Config, store service.Storage, dryRun bool) (*pipeline.Processor, error) {
	logger := slog.Default()

	var llmClient service.LLMClient
	if cfg.LLM.APIKey != "" {
		client, err := llm.NewClient(llm.Config{
			Provider:          cfg.LLM.Provider,
			APIKey:            cfg.LLM.APIKey,
			Model:             cfg.LLM.Model,
			Temperature:       cfg.LLM.Temperature,
			MaxTokens:         cfg.LLM.MaxTokens,
			RequestsPerMinute: cfg.LLM.RequestsPerMinute,
			Timeout:           cfg.LLM.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create LLM client: %w", err)
		}
		llmClient = client
	} else {
		logger.Warn("no LLM API key configured; categorization and summaries will be rule-based only")
	}

	var ocrClient service.OCRClient
	if cfg.OCR.APIKey != "" {
		client, err := extract.NewOCRSpaceClient(extract.OCRSpaceConfig{
			APIKey:   cfg.OCR.APIKey,
			Endpoint: cfg.OCR.Endpoint,
			Timeout:  cfg.OCR.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create OCR client: %w", err)
		}
		ocrClient = client
	} else {
		logger.Warn("no OCR API key configured; scanned documents without a text layer will fail")
	}

	router := extract.NewRouter(ocrClient, extract.Config{MaxFileSize: cfg.Pipeline.MaxFileSize}, logger)
	engine := categorize.NewEngine(store, llmClient, nil, nil, logger)
	summarizer := analyze.NewSummarizer(llmClient, logger)

	return pipeline.NewProcessor(router, engine, summarizer, store, pipeline.Config{
		Timeout:            cfg.Pipeline.Timeout,
		SuspectAmountRatio: cfg.Pipeline.SuspectAmountRatio,
		RedactedDir:        cfg.Pipeline.RedactedDir,
		DryRun:             dryRun,
	}, logger), nil
}
