package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/vidcoach/internal/config"
	"github.com/nextlevelbuilder/vidcoach/internal/providers"
	"github.com/nextlevelbuilder/vidcoach/internal/store"
	"github.com/nextlevelbuilder/vidcoach/internal/store/pg"
	"github.com/nextlevelbuilder/vidcoach/internal/store/sqlite"
	"github.com/nextlevelbuilder/vidcoach/internal/tools"
	"github.com/nextlevelbuilder/vidcoach/internal/tracing"
)

// buildProvider creates the model client, rate limited when configured.
func buildProvider(cfg *config.Config) (providers.Provider, error) {
	if cfg.Provider.APIKey == "" {
		return nil, errors.New("no API key: set ANTHROPIC_API_KEY or provider.api_key")
	}
	var p providers.Provider = providers.NewAnthropicProvider(cfg.Provider.APIKey, cfg.Provider.APIBase, cfg.Provider.Model)
	if rpm := cfg.Provider.RequestsPerMinute; rpm > 0 {
		p = providers.WithRateLimit(p, rpm, cfg.Provider.Burst)
		slog.Debug("provider rate limit enabled", "rpm", rpm, "burst", cfg.Provider.Burst)
	}
	return p, nil
}

// buildRegistry registers the three pipeline capabilities. provider may be
// nil for commands that only list schemas.
func buildRegistry(cfg *config.Config, provider providers.Provider) (*tools.Registry, error) {
	runner := tools.ExecRunner{}
	media := tools.NewMediaStore(cfg.Tools.MediaCacheSize)
	frames := tools.NewFrameStore()

	visionModel := cfg.Tools.Vision.Model
	if visionModel == "" {
		visionModel = cfg.Provider.Model
	}

	reg := tools.NewRegistry()
	reg.SetScrubbing(cfg.Tools.ScrubResults)
	if b := tools.NewCallBudget(cfg.Tools.MaxCallsPerHour, time.Hour); b != nil {
		reg.SetCallBudget(b)
	}

	capabilities := []tools.Tool{
		tools.NewMediaDownloadTool(tools.MediaDownloadConfig{
			YtDlpPath:   cfg.Tools.YtDlpPath,
			FFprobePath: cfg.Tools.FFprobePath,
			OutputDir:   config.ExpandHome(cfg.Tools.MediaDir),
			Format:      cfg.Tools.Format,
		}, runner, media),
		tools.NewFrameExtractTool(tools.FrameExtractConfig{
			FFmpegPath:  cfg.Tools.FFmpegPath,
			FFprobePath: cfg.Tools.FFprobePath,
			MaxSide:     cfg.Tools.Frames.MaxSide,
			MaxBytes:    cfg.Tools.Frames.MaxBytes,
		}, runner, media, frames),
		tools.NewVisionAnalyzeTool(tools.VisionAnalyzeConfig{
			Model:           visionModel,
			MaxTokens:       cfg.Tools.Vision.MaxTokens,
			MaxObservations: cfg.Tools.Vision.MaxObservations,
		}, provider, frames),
	}
	for _, t := range capabilities {
		if err := reg.Register(t); err != nil {
			return nil, fmt.Errorf("register %s: %w", t.Name(), err)
		}
	}
	return reg, nil
}

// openStore opens the configured run archive. It returns nil when archiving
// is disabled.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "", "none":
		return nil, nil
	case "postgres":
		return pg.Open(ctx, cfg.Store.DSN)
	default:
		return sqlite.Open(config.ExpandHome(cfg.Store.Path))
	}
}

// startCollector starts span collection into st (which may be nil) and the
// OTLP exporter when built with the otel tag.
func startCollector(ctx context.Context, cfg *config.Config, st store.TracingStore) *tracing.Collector {
	if st == nil && !cfg.Telemetry.Enabled {
		return nil
	}
	c := tracing.NewCollector(st)
	initOTelExporter(ctx, cfg, c)
	c.Start()
	return c
}
