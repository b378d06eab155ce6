package cli

import (
	"log/slog"
	"time"

	"github.com/amixaam/transcoder-win/internal/config"
	"github.com/amixaam/transcoder-win/internal/encoder"
	"github.com/amixaam/transcoder-win/internal/media"
	"github.com/amixaam/transcoder-win/internal/pipeline"
	"github.com/amixaam/transcoder-win/internal/sampler"
	"github.com/amixaam/transcoder-win/internal/search"
	"github.com/amixaam/transcoder-win/pkg/models"
)

// newEncoderFactory binds the encoder configuration so each file gets a
// strategy chain matching its color profile.
func newEncoderFactory(cfg *config.Config, log *slog.Logger) pipeline.EncoderFactory {
	stratCfg := encoder.StrategyConfig{
		Hardware8Bit:   cfg.Encoder.Hardware8Bit,
		Hardware10Bit:  cfg.Encoder.Hardware10Bit,
		Software8Bit:   cfg.Encoder.Software8Bit,
		Software10Bit:  cfg.Encoder.Software10Bit,
		EnableHardware: cfg.Encoder.EnableHardware,
		ExtraFlags:     cfg.Encoder.ExtraFlags,
	}
	backoff := time.Duration(cfg.Encoder.BackoffSeconds * float64(time.Second))

	return func(profile models.ColorProfile) pipeline.Encoder {
		return encoder.NewInvoker(
			cfg.Encoder.Binary,
			cfg.Encoder.HardwareDecodeFlag,
			encoder.StrategiesFor(profile, stratCfg),
			backoff,
			log,
		)
	}
}

// newFinderFactory builds the sampler+search stack over a per-file encoder.
func newFinderFactory(cfg *config.Config, prober *media.Prober, scratchDir string, log *slog.Logger) pipeline.FinderFactory {
	searchCfg := search.Config{
		LowQuality:     cfg.Search.LowQuality,
		HighQuality:    cfg.Search.HighQuality,
		Granularity:    cfg.Search.Granularity,
		DefaultQuality: cfg.Search.DefaultQuality,
		MaxAttempts:    cfg.Search.MaxAttempts,
		SampleCount:    cfg.Sampling.Count,
		SampleLength:   cfg.Sampling.LengthSeconds,
	}
	delay := time.Duration(cfg.Sampling.DelaySeconds * float64(time.Second))

	return func(enc pipeline.Encoder) pipeline.QualityFinder {
		smp := sampler.New(enc, prober, scratchDir, delay, log)
		return search.New(smp, searchCfg, log)
	}
}
