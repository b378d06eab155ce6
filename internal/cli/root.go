// Package cli wires configuration and components behind the command surface.
package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/amixaam/transcoder-win/internal/config"
	"github.com/amixaam/transcoder-win/internal/logging"
)

// Process exit codes.
const (
	ExitOK         = 0
	ExitCLIError   = 1
	ExitLocked     = 2
	ExitBatchError = 3
)

// ExitError wraps an error with a process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "transcoder-win",
		Short:         "Batch transcoder that discovers a size-fitting quality before encoding",
		Long:          "transcoder-win searches for an encoder quality value that keeps output inside the source size and a category bitrate band, using short sample encodes instead of full-length trials, then performs the final transcode for every file in a working directory.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "Path to config file (YAML/TOML)")
	root.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	root.AddCommand(newRunCmd())
	root.AddCommand(newSearchCmd())
	root.AddCommand(newProbeCmd())
	root.AddCommand(newDoctorCmd())

	return root
}

// Execute runs the CLI with the provided context.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

// loadEnv resolves config and logger from the persistent flags.
func loadEnv(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, &ExitError{Code: ExitCLIError, Err: err}
	}

	level := cfg.LogLevel
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = "debug"
	}
	log := logging.New(os.Stderr, level, cfg.LogFormat)
	return cfg, log, nil
}
