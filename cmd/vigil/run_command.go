package main

import (
	"github.com/spf13/cobra"

	"vigil/internal/daemonrun"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var development bool
	var skipPreflight bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline in the foreground until interrupted",
		Long: "Run the pipeline in the foreground until interrupted.\n\n" +
			"Exit codes: 0 clean shutdown, 2 startup or preflight failure, " +
			"3 source unreachable, 4 storage exhausted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			err = daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				ConfigPath:    ctx.configPath,
				LogLevel:      logLevel,
				Development:   development,
				SkipPreflight: skipPreflight,
			})
			if err != nil {
				return &daemonError{err: err}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level for this run")
	cmd.Flags().BoolVar(&development, "dev", false, "Enable development logging (source locations)")
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Start without running preflight checks")
	return cmd
}
