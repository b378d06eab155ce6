package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/amixaam/transcoder-win/internal/media"
)

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <file>",
		Short: "Run the quality search for a single file and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, _ := cmd.Flags().GetString("category")
			return runSearch(cmd, args[0], category)
		},
	}
	cmd.Flags().String("category", "movies", "Media category selecting the bitrate band")
	return cmd
}

func runSearch(cmd *cobra.Command, path, category string) error {
	cfg, log, err := loadEnv(cmd)
	if err != nil {
		return err
	}

	scratchDir, err := os.MkdirTemp("", "transcoder-win-*")
	if err != nil {
		return &ExitError{Code: ExitCLIError, Err: fmt.Errorf("create scratch dir: %w", err)}
	}
	defer os.RemoveAll(scratchDir)

	prober := media.NewProber(cfg.Encoder.ProbeBinary)
	meta, err := prober.Probe(cmd.Context(), path)
	if err != nil {
		return &ExitError{Code: ExitBatchError, Err: err}
	}

	band := cfg.Bands.For(category)
	enc := newEncoderFactory(cfg, log)(meta.ColorProfile)
	finder := newFinderFactory(cfg, prober, scratchDir, log)(enc)

	result, err := finder.FindQuality(cmd.Context(), meta, band)
	if err != nil {
		return &ExitError{Code: ExitBatchError, Err: err}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "quality: %.1f\n", result.Quality)
	fmt.Fprintf(out, "estimated bitrate: %.2f Mb/s (band %.1f–%.1f)\n", result.BitrateMbps, band.Min, band.Max)
	fmt.Fprintf(out, "attempts: %d\n", result.Attempts)
	if result.FromDefault {
		fmt.Fprintln(out, "note: search exhausted, value is the configured default")
	} else if result.BelowBand {
		fmt.Fprintln(out, "note: best candidate sits below the band floor")
	}
	return nil
}
