package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openclaw/clawbench/internal/config"
	"github.com/openclaw/clawbench/internal/report"
)

var flagFormat string

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [report-file]",
		Short: "Render a stored report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			var rep *report.Report
			if len(args) > 0 {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}
				rep = &report.Report{}
				if err := json.Unmarshal(data, rep); err != nil {
					return fmt.Errorf("parsing %s: %w", args[0], err)
				}
			} else {
				rep, err = report.LoadLatest(cfg.Results.Dir)
				if err != nil {
					return err
				}
				if rep == nil {
					return fmt.Errorf("no report found in %s; run the benchmark first", cfg.Results.Dir)
				}
			}

			switch flagFormat {
			case "table":
				report.WriteTable(os.Stdout, rep.Models)
			case "markdown":
				report.WriteMarkdown(os.Stdout, rep.Models, rep.Version)
			case "json":
				return report.WriteJSON(os.Stdout, rep.Models)
			default:
				return fmt.Errorf("unknown format %q (table, markdown, json)", flagFormat)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flagFormat, "format", "table", "output format (table, markdown, json)")
	return cmd
}
