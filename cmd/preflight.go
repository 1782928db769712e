package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openclaw/clawbench/internal/config"
	"github.com/openclaw/clawbench/internal/preflight"
)

func newPreflightCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Check the environment without running trials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rep := preflight.Run(ctx, cfg)
			preflight.Print(os.Stdout, rep)
			if !rep.AllPassed() {
				return &exitError{code: 2, msg: "preflight checks failed"}
			}
			return nil
		},
	}
}
