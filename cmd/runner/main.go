// Command runner hosts user scripts for a workflow host: it serves the
// RunnerService and calls back into the host's Handler service.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"scriptrunner/internal/config"
	"scriptrunner/internal/logger"
)

func main() {
	os.Exit(execute())
}

func execute() int {
	config.LoadDotEnv()
	v := viper.New()
	code := 0

	cmd := &cobra.Command{
		Use:          "runner",
		Short:        "Run durable workflow scripts on behalf of a host",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			l := logger.New(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: os.Stderr})
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			code, err = serve(ctx, cfg, l)
			return err
		},
	}
	if err := config.BindFlags(cmd, v); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "runner:", err)
		return 1
	}
	return code
}
