// Command vigild runs the vigil pipeline as a service. It is equivalent to
// "vigil run" with the configuration path taken from VIGIL_CONFIG.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"vigil/internal/config"
	"vigil/internal/daemonrun"
	"vigil/internal/services"
)

func main() {
	os.Exit(run(context.Background(), strings.TrimSpace(os.Getenv("VIGIL_CONFIG"))))
}

func run(ctx context.Context, configPath string) int {
	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return services.ExitStartup
	}
	opts := daemonrun.Options{}
	if exists {
		opts.ConfigPath = resolved
	}
	if err := daemonrun.Run(ctx, cfg, opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return services.ExitCode(err)
	}
	return services.ExitOK
}
