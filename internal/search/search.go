// Package search finds a quality value whose estimated output fits the
// source size/bitrate envelope and a category bitrate band.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/amixaam/transcoder-win/pkg/models"
)

// Margin applied against the source size and bitrate: a candidate within 5%
// of the source is treated as too large, since transcoding it would not be
// worth the quality loss.
const sourceMargin = 0.95

// Sampler is the probing surface the engine drives.
type Sampler interface {
	Sample(ctx context.Context, src models.SourceMetadata, quality float64, count int, length float64) (models.SampleResult, error)
}

// Config bounds the search. Lower quality numbers mean higher visual
// fidelity in the encoder convention used here, so tightening toward a
// smaller output moves the window upward.
type Config struct {
	LowQuality     float64
	HighQuality    float64
	Granularity    float64
	DefaultQuality float64
	MaxAttempts    int
	SampleCount    int
	SampleLength   float64
}

// Result reports the outcome of one search.
type Result struct {
	Quality     float64
	BitrateMbps float64
	Attempts    int
	FromDefault bool // no feasible or below-band candidate was ever found
	BelowBand   bool // best candidate sits under the band floor
}

type classification int

const (
	classTooLarge classification = iota
	classBelowBand
	classFeasible
)

// state carries the bounds and the best candidates seen so far.
type state struct {
	low, high float64
	attempts  int

	feasibleQuality float64
	feasibleBitrate float64
	hasFeasible     bool

	fallbackQuality float64
	fallbackBitrate float64
	hasFallback     bool
}

// Engine drives the bounded binary search.
type Engine struct {
	sampler Sampler
	cfg     Config
	log     *slog.Logger
}

// New creates a search engine.
func New(sampler Sampler, cfg Config, log *slog.Logger) *Engine {
	return &Engine{sampler: sampler, cfg: cfg, log: log}
}

// FindQuality searches the configured quality window for the candidate with
// the highest bitrate that still satisfies the band and the source margins.
// When the window is exhausted without any usable candidate, the configured
// default quality is returned instead.
func (e *Engine) FindQuality(ctx context.Context, src models.SourceMetadata, band models.BitrateRange) (Result, error) {
	if err := src.Validate(); err != nil {
		return Result{}, err
	}
	if err := band.Validate(); err != nil {
		return Result{}, err
	}
	if e.cfg.LowQuality >= e.cfg.HighQuality {
		return Result{}, fmt.Errorf("search: invalid quality window [%.1f, %.1f]", e.cfg.LowQuality, e.cfg.HighQuality)
	}

	st := state{low: e.cfg.LowQuality, high: e.cfg.HighQuality}

	for st.attempts < e.cfg.MaxAttempts && st.high-st.low >= e.cfg.Granularity {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		mid := e.round((st.low + st.high) / 2)
		st.attempts++

		res, err := e.sampler.Sample(ctx, src, mid, e.cfg.SampleCount, e.cfg.SampleLength)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			// A failed sampling pass wastes the attempt but must not move
			// the bounds; the next iteration retries the same midpoint.
			e.log.Warn("sampling failed, attempt wasted",
				slog.Float64("quality", mid),
				slog.Int("attempt", st.attempts),
				slog.Any("error", err))
			continue
		}

		class := classify(res, src, band)
		e.log.Debug("candidate evaluated",
			slog.Float64("quality", mid),
			slog.Float64("bitrate_mbps", res.AverageBitrateMbps),
			slog.Float64("estimated_mb", res.EstimatedSizeMegabytes),
			slog.Int("class", int(class)))

		switch class {
		case classTooLarge:
			st.low = mid + e.cfg.Granularity
		case classBelowBand:
			if !st.hasFallback || res.AverageBitrateMbps > st.fallbackBitrate {
				st.fallbackQuality = mid
				st.fallbackBitrate = res.AverageBitrateMbps
				st.hasFallback = true
			}
			st.high = mid - e.cfg.Granularity
		case classFeasible:
			if !st.hasFeasible || res.AverageBitrateMbps > st.feasibleBitrate {
				st.feasibleQuality = mid
				st.feasibleBitrate = res.AverageBitrateMbps
				st.hasFeasible = true
			}
			// Keep looking for a feasible candidate nearer the band
			// ceiling: higher bitrate within the band is better quality.
			st.high = mid - e.cfg.Granularity
		}
	}

	return e.conclude(st, src), nil
}

// classify applies the constraint checks in priority order; first match wins.
func classify(res models.SampleResult, src models.SourceMetadata, band models.BitrateRange) classification {
	switch {
	case res.EstimatedSizeMegabytes > src.SizeMegabytes*sourceMargin:
		return classTooLarge
	case res.AverageBitrateMbps > src.BitrateMbps*sourceMargin:
		return classTooLarge
	case res.AverageBitrateMbps > band.Max:
		return classTooLarge
	case res.AverageBitrateMbps < band.Min:
		return classBelowBand
	default:
		return classFeasible
	}
}

func (e *Engine) conclude(st state, src models.SourceMetadata) Result {
	switch {
	case st.hasFeasible:
		e.log.Info("search converged",
			slog.String("source", src.Path),
			slog.Float64("quality", st.feasibleQuality),
			slog.Float64("bitrate_mbps", st.feasibleBitrate),
			slog.Int("attempts", st.attempts))
		return Result{Quality: st.feasibleQuality, BitrateMbps: st.feasibleBitrate, Attempts: st.attempts}
	case st.hasFallback:
		e.log.Info("no in-band candidate, using below-band fallback",
			slog.String("source", src.Path),
			slog.Float64("quality", st.fallbackQuality),
			slog.Float64("bitrate_mbps", st.fallbackBitrate),
			slog.Int("attempts", st.attempts))
		return Result{Quality: st.fallbackQuality, BitrateMbps: st.fallbackBitrate, Attempts: st.attempts, BelowBand: true}
	default:
		e.log.Warn("search exhausted, falling back to default quality",
			slog.String("source", src.Path),
			slog.Float64("quality", e.cfg.DefaultQuality),
			slog.Int("attempts", st.attempts))
		return Result{Quality: e.cfg.DefaultQuality, Attempts: st.attempts, FromDefault: true}
	}
}

// round snaps a midpoint to the configured granularity.
func (e *Engine) round(q float64) float64 {
	if e.cfg.Granularity <= 0 {
		return q
	}
	return math.Round(q/e.cfg.Granularity) * e.cfg.Granularity
}
