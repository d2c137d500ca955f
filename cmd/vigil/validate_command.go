package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"vigil/internal/daemonrun"
	"vigil/internal/preflight"
)

func newValidateCommand(ctx *commandContext) *cobra.Command {
	var offline bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and check the source, detector and storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if ctx.configPath != "" {
				fmt.Fprintf(out, "Config path: %s\n", ctx.configPath)
			} else {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}
			fmt.Fprintln(out, "Configuration valid")
			if offline {
				return nil
			}

			checkCtx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			results, err := daemonrun.Preflight(checkCtx, cfg)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, renderPreflight(results))
			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d of %d checks failed", len(failed), len(results))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Only parse and validate the configuration file")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Upper bound for all checks")
	return cmd
}

func renderPreflight(results []preflight.Result) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status := "ok"
		if !r.Passed {
			status = "FAIL"
		}
		rows = append(rows, []string{r.Name, status, r.Detail})
	}
	return renderTable([]string{"Check", "Status", "Detail"}, rows, nil)
}
