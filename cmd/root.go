package cmd

import (
	"errors"

	"github.com/spf13/cobra"
)

var cfgFile string

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "clawbench",
		Short: "Benchmark harness for the OpenClaw bootstrap ritual",
		Long: `clawbench drives local models through OpenClaw's first-run bootstrap
conversation and scores how completely each one fills in the agent's
workspace files.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file path")
	root.AddCommand(newRunCmd())
	root.AddCommand(newPreflightCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newListCmd())
	return root
}

// exitError carries a process exit code through cobra's RunE chain.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

// ExitCode maps an Execute error to the process exit code.
func ExitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}
