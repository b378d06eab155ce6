// Package sampler estimates the full-file bitrate at a quality value by
// encoding short windows spread across the source.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/amixaam/transcoder-win/internal/encoder"
	"github.com/amixaam/transcoder-win/pkg/models"
)

// ErrNoValidSamples reports that every sample at a quality value failed to
// produce a measurable bitrate. It is an expected runtime condition: the
// search treats it as a wasted attempt, not a fatal error.
var ErrNoValidSamples = errors.New("no valid samples")

// Encoder is the invoker surface the sampler needs.
type Encoder interface {
	Encode(ctx context.Context, req encoder.Request) error
}

// Prober measures a produced sample file.
type Prober interface {
	Probe(ctx context.Context, path string) (models.SourceMetadata, error)
}

// Sampler runs sample passes for one source file.
type Sampler struct {
	enc        Encoder
	prober     Prober
	scratchDir string
	delay      time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	log        *slog.Logger
}

// New creates a Sampler writing scratch files under scratchDir.
func New(enc Encoder, prober Prober, scratchDir string, delay time.Duration, log *slog.Logger) *Sampler {
	return &Sampler{
		enc:        enc,
		prober:     prober,
		scratchDir: scratchDir,
		delay:      delay,
		log:        log,
	}
}

// WithSleeper sets a custom inter-sample sleeper (for testing).
func (s *Sampler) WithSleeper(sleep func(ctx context.Context, d time.Duration) error) {
	s.sleep = sleep
}

// BuildSpecs computes the probe points for one sampling pass. Offsets are
// spread evenly across the duration; the first is nudged to at least one
// second because sampling at timestamp zero is unreliable for some
// containers. The effective sample length never exceeds duration/count, so
// windows cannot overlap or run past the end of the source.
func BuildSpecs(duration float64, count int, length float64, scratchDir string) ([]models.SampleSpec, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("sampler: duration must be positive, got %.2f", duration)
	}
	if count <= 0 {
		return nil, fmt.Errorf("sampler: sample count must be positive, got %d", count)
	}
	if length <= 0 {
		return nil, fmt.Errorf("sampler: sample length must be positive, got %.2f", length)
	}

	// The first second is excluded before dividing so the 1-second nudge on
	// the first offset cannot push windows into each other.
	effective := math.Min(length, math.Floor((duration-1)/float64(count)))
	if effective < 1 {
		effective = 1
	}

	interval := duration / float64(count)
	prevEnd := 0.0
	specs := make([]models.SampleSpec, 0, count)
	for i := 0; i < count; i++ {
		start := float64(i) * interval
		if start < 1 {
			start = 1
		}
		if start < prevEnd {
			start = prevEnd
		}
		if max := duration - effective; start > max && max >= 1 {
			start = max
		}
		prevEnd = start + effective
		specs = append(specs, models.SampleSpec{
			StartSecond:     start,
			DurationSeconds: effective,
			OutputPath:      filepath.Join(scratchDir, fmt.Sprintf("sample_%02d.mp4", i)),
		})
	}
	return specs, nil
}

// Sample encodes count short windows at the given quality and aggregates the
// measured bitrates into a whole-file estimate. Individual sample failures
// are logged and excluded; Sample fails only when no sample at all produced
// a valid measurement.
func (s *Sampler) Sample(ctx context.Context, src models.SourceMetadata, quality float64, count int, length float64) (models.SampleResult, error) {
	if quality <= 0 || quality > 51 {
		return models.SampleResult{}, fmt.Errorf("sampler: quality %.2f outside encoder range (0, 51]", quality)
	}
	if err := src.Validate(); err != nil {
		return models.SampleResult{}, err
	}

	specs, err := BuildSpecs(src.DurationSeconds, count, length, s.scratchDir)
	if err != nil {
		return models.SampleResult{}, err
	}

	var sumBitrate float64
	valid := 0
	for i, spec := range specs {
		if i > 0 {
			if err := s.pause(ctx); err != nil {
				return models.SampleResult{}, err
			}
		}

		bitrate, err := s.measure(ctx, src.Path, quality, spec)
		if err != nil {
			if ctx.Err() != nil {
				return models.SampleResult{}, ctx.Err()
			}
			s.log.Warn("sample unreliable, excluded from aggregate",
				slog.Float64("start", spec.StartSecond),
				slog.Float64("quality", quality),
				slog.Any("error", err))
			continue
		}
		sumBitrate += bitrate
		valid++
	}

	if valid == 0 {
		return models.SampleResult{}, fmt.Errorf("%w: quality %.2f, %d samples attempted", ErrNoValidSamples, quality, len(specs))
	}

	avg := sumBitrate / float64(valid)
	return models.SampleResult{
		AverageBitrateMbps:     avg,
		EstimatedSizeMegabytes: avg * src.DurationSeconds / 8,
		ValidSamples:           valid,
	}, nil
}

// measure encodes one window and probes the result. The scratch file is
// removed before returning, on every path, so long batches never leak disk.
func (s *Sampler) measure(ctx context.Context, input string, quality float64, spec models.SampleSpec) (float64, error) {
	defer os.Remove(spec.OutputPath)

	req := encoder.Request{
		InputPath:  input,
		OutputPath: spec.OutputPath,
		Quality:    quality,
		Range: &encoder.TimeRange{
			StartSecond:     spec.StartSecond,
			DurationSeconds: spec.DurationSeconds,
		},
	}
	if err := s.enc.Encode(ctx, req); err != nil {
		return 0, err
	}

	meta, err := s.prober.Probe(ctx, spec.OutputPath)
	if err != nil {
		return 0, err
	}
	if meta.BitrateMbps <= 0 {
		return 0, fmt.Errorf("sample at %.0fs: measured bitrate not positive", spec.StartSecond)
	}
	return meta.BitrateMbps, nil
}

func (s *Sampler) pause(ctx context.Context) error {
	if s.delay <= 0 {
		return nil
	}
	if s.sleep != nil {
		return s.sleep(ctx, s.delay)
	}
	timer := time.NewTimer(s.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
