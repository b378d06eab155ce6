package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/amixaam/transcoder-win/internal/media"
	"github.com/amixaam/transcoder-win/internal/monitor"
	"github.com/amixaam/transcoder-win/internal/notify"
	"github.com/amixaam/transcoder-win/internal/pathmap"
	"github.com/amixaam/transcoder-win/internal/pipeline"
	"github.com/amixaam/transcoder-win/internal/schedule"
	"github.com/amixaam/transcoder-win/internal/subtitles"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <working-directory>",
		Short: "Transcode every eligible file under a working directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, _ := cmd.Flags().GetString("category")
			return runBatch(cmd, args[0], category)
		},
	}
	cmd.Flags().String("category", "movies", "Media category selecting the bitrate band (e.g. anime, shows, movies)")
	return cmd
}

func runBatch(cmd *cobra.Command, workDir, category string) error {
	cfg, log, err := loadEnv(cmd)
	if err != nil {
		return err
	}

	// One encoder, one instance: a second batch would starve the first.
	lock := flock.New(cfg.LockFile)
	locked, err := lock.TryLock()
	if err != nil {
		return &ExitError{Code: ExitCLIError, Err: fmt.Errorf("acquire lock %s: %w", cfg.LockFile, err)}
	}
	if !locked {
		return &ExitError{Code: ExitLocked, Err: errors.New("another transcoder-win instance is already running")}
	}
	defer func() { _ = lock.Unlock() }()

	scratchDir := cfg.ScratchDir
	if scratchDir == "" {
		tmp, err := os.MkdirTemp("", "transcoder-win-*")
		if err != nil {
			return &ExitError{Code: ExitCLIError, Err: fmt.Errorf("create scratch dir: %w", err)}
		}
		defer os.RemoveAll(tmp)
		scratchDir = tmp
	}

	window, err := schedule.ParseWindow(cfg.Schedule.Start, cfg.Schedule.End)
	if err != nil {
		return &ExitError{Code: ExitCLIError, Err: err}
	}

	runID := uuid.NewString()
	log = log.With(slog.String("run_id", runID))

	prober := media.NewProber(cfg.Encoder.ProbeBinary)
	orch := pipeline.New(pipeline.Options{
		Files:          cfg.Files,
		Bands:          cfg.Bands,
		Prober:         prober,
		EncoderFactory: newEncoderFactory(cfg, log),
		FinderFactory:  newFinderFactory(cfg, prober, scratchDir, log),
		Subtitles:      subtitles.NewExtractor("", cfg.Encoder.ProbeBinary, log),
		Waiter:         schedule.NewWaiter(window, log),
		Monitor:        monitor.New(cfg.Monitor.MaxCPUPercent, cfg.Monitor.MaxMemPercent),
		Notifier:       notify.New(cfg.Notify.WebhookURL, runID, time.Duration(cfg.Notify.TimeoutSeconds)*time.Second, log),
		Translator:     pathmap.New(cfg.Paths.HostRoot, cfg.Paths.EncoderRoot),
		RunID:          runID,
		Log:            log,
	})

	report, err := orch.Run(cmd.Context(), workDir, category)
	pipeline.WriteSummary(cmd.OutOrStdout(), report)
	if err != nil {
		return &ExitError{Code: ExitBatchError, Err: err}
	}
	return nil
}
