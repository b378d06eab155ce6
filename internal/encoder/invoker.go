// Package encoder invokes the external encoder binary with an ordered
// fallback chain of encoder strategies.
package encoder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"time"

	"github.com/amixaam/transcoder-win/pkg/models"
)

// ErrAllStrategiesFailed reports that every enabled strategy in the chain
// exited non-zero or failed to spawn.
var ErrAllStrategiesFailed = errors.New("all encoder strategies failed")

// RunFunc executes a command to completion. Tests substitute this to avoid
// launching real encoder processes.
type RunFunc func(ctx context.Context, name string, args ...string) error

// TimeRange bounds an encode to a window of the source, in seconds.
type TimeRange struct {
	StartSecond     float64
	DurationSeconds float64
}

// Request describes one encode attempt handed to the invoker.
type Request struct {
	InputPath  string
	OutputPath string
	Quality    float64
	Range      *TimeRange // nil for a full-length encode
}

// Invoker runs encode attempts through the strategy chain. It never
// interprets the produced file; measuring output is the caller's job.
type Invoker struct {
	binary             string
	strategies         []models.EncoderStrategy
	hardwareDecodeFlag string
	backoff            time.Duration
	run                RunFunc
	sleep              func(ctx context.Context, d time.Duration) error
	log                *slog.Logger
}

// NewInvoker builds an Invoker for one file, with the strategy chain already
// fixed by color profile.
func NewInvoker(binary, hardwareDecodeFlag string, strategies []models.EncoderStrategy, backoff time.Duration, log *slog.Logger) *Invoker {
	if binary == "" {
		binary = "HandBrakeCLI"
	}
	return &Invoker{
		binary:             binary,
		strategies:         strategies,
		hardwareDecodeFlag: hardwareDecodeFlag,
		backoff:            backoff,
		log:                log,
	}
}

// WithRunner sets a custom command runner (for testing).
func (iv *Invoker) WithRunner(run RunFunc) { iv.run = run }

// WithSleeper sets a custom backoff sleeper (for testing).
func (iv *Invoker) WithSleeper(sleep func(ctx context.Context, d time.Duration) error) {
	iv.sleep = sleep
}

// Encode tries each enabled strategy in order until one exits successfully.
// On total failure the output file may be partially written or absent; the
// caller must validate it before use.
func (iv *Invoker) Encode(ctx context.Context, req Request) error {
	if req.InputPath == "" || req.OutputPath == "" {
		return errors.New("encoder: input and output paths are required")
	}

	var lastErr error
	attempted := 0
	for _, strat := range iv.strategies {
		if !strat.Enabled {
			continue
		}
		if attempted > 0 {
			if err := iv.wait(ctx); err != nil {
				return err
			}
		}
		attempted++

		args := iv.buildArgs(req, strat)
		iv.log.Debug("encode attempt",
			slog.String("strategy", strat.Name),
			slog.String("encoder", strat.Encoder),
			slog.Float64("quality", req.Quality),
			slog.String("output", req.OutputPath))

		if err := iv.exec(ctx, args); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			iv.log.Warn("encoder strategy failed",
				slog.String("strategy", strat.Name),
				slog.String("input", req.InputPath),
				slog.Any("error", err))
			lastErr = err
			continue
		}
		return nil
	}

	if attempted == 0 {
		return fmt.Errorf("%w: no enabled strategies", ErrAllStrategiesFailed)
	}
	return fmt.Errorf("%w: last error: %v", ErrAllStrategiesFailed, lastErr)
}

// buildArgs assembles the encoder command line for one strategy.
func (iv *Invoker) buildArgs(req Request, strat models.EncoderStrategy) []string {
	args := []string{
		"-i", req.InputPath,
		"-o", req.OutputPath,
		"-e", strat.Encoder,
		"-q", strconv.FormatFloat(req.Quality, 'f', -1, 64),
	}
	if strat.HardwareDecode && iv.hardwareDecodeFlag != "" {
		args = append(args, "--enable-hw-decoding", iv.hardwareDecodeFlag)
	}
	if req.Range != nil {
		args = append(args,
			"--start-at", "seconds:"+strconv.Itoa(int(req.Range.StartSecond)),
			"--stop-at", "seconds:"+strconv.Itoa(int(req.Range.DurationSeconds)),
		)
	}
	return append(args, strat.ExtraFlags...)
}

func (iv *Invoker) exec(ctx context.Context, args []string) error {
	if iv.run != nil {
		return iv.run(ctx, iv.binary, args...)
	}
	cmd := exec.CommandContext(ctx, iv.binary, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", iv.binary, err, tail(output))
	}
	return nil
}

// wait applies the inter-attempt backoff so hardware resources can settle.
func (iv *Invoker) wait(ctx context.Context) error {
	if iv.backoff <= 0 {
		return nil
	}
	if iv.sleep != nil {
		return iv.sleep(ctx, iv.backoff)
	}
	timer := time.NewTimer(iv.backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func tail(output []byte) string {
	const limit = 512
	if len(output) > limit {
		output = output[len(output)-limit:]
	}
	return string(output)
}
