package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/amixaam/transcoder-win/internal/media"
)

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe <file>",
		Short: "Print the source metadata the pipeline would compute for a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadEnv(cmd)
			if err != nil {
				return err
			}

			meta, err := media.NewProber(cfg.Encoder.ProbeBinary).Probe(cmd.Context(), args[0])
			if err != nil {
				return &ExitError{Code: ExitBatchError, Err: err}
			}

			payload := map[string]any{
				"path":             meta.Path,
				"codec":            meta.Codec,
				"color_profile":    string(meta.ColorProfile),
				"eight_bit":        meta.ColorProfile.EightBit(),
				"duration_seconds": meta.DurationSeconds,
				"size_megabytes":   meta.SizeMegabytes,
				"bitrate_mbps":     meta.BitrateMbps,
			}
			encoded, err := json.MarshalIndent(payload, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
			return nil
		},
	}
}
