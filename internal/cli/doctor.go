package cli

import (
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that the external encoder and probe binaries are reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadEnv(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			missing := 0
			for _, binary := range []string{cfg.Encoder.Binary, cfg.Encoder.ProbeBinary} {
				path, err := exec.LookPath(binary)
				if err != nil {
					fmt.Fprintf(out, "MISSING  %s\n", binary)
					missing++
					continue
				}
				fmt.Fprintf(out, "ok       %s -> %s\n", binary, path)
			}
			if missing > 0 {
				return &ExitError{Code: ExitCLIError, Err: fmt.Errorf("%d required binaries missing", missing)}
			}
			return nil
		},
	}
}
