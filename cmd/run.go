package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openclaw/clawbench/internal/aggregate"
	"github.com/openclaw/clawbench/internal/config"
	"github.com/openclaw/clawbench/internal/driver"
	"github.com/openclaw/clawbench/internal/preflight"
	"github.com/openclaw/clawbench/internal/report"
	"github.com/openclaw/clawbench/internal/trial"
)

var (
	flagModels        string
	flagRuns          int
	flagTimeout       int
	flagKeepEnv       bool
	flagSkipCompleted bool
	flagSkipPreflight bool
	flagPreflightOnly bool
	flagVerbose       bool
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the benchmark matrix",
		RunE:  runBenchmark,
	}
	cmd.Flags().StringVar(&flagModels, "models", "", "comma-separated model names to run (default all)")
	cmd.Flags().IntVar(&flagRuns, "runs", 0, "override runs per model/variant")
	cmd.Flags().IntVar(&flagTimeout, "timeout", 0, "override bootstrap timeout in seconds")
	cmd.Flags().BoolVar(&flagKeepEnv, "keep-env", false, "keep trial workspaces for inspection")
	cmd.Flags().BoolVar(&flagSkipCompleted, "skip-completed", false, "reuse previous results for unchanged model/variant pairs")
	cmd.Flags().BoolVar(&flagSkipPreflight, "skip-preflight", false, "skip environment checks")
	cmd.Flags().BoolVar(&flagPreflightOnly, "preflight-only", false, "run environment checks and exit")
	cmd.Flags().BoolVar(&flagVerbose, "verbose", false, "print per-run outcomes")
	return cmd
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if flagRuns > 0 {
		cfg.RunsPerModel = flagRuns
	}
	if flagTimeout > 0 {
		cfg.BootstrapTimeoutS = flagTimeout
	}

	models, err := filterModels(cfg.Models, flagModels)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !flagSkipPreflight || flagPreflightOnly {
		pfCfg := *cfg
		pfCfg.Models = models
		rep := preflight.Run(ctx, &pfCfg)
		preflight.Print(os.Stdout, rep)
		if !rep.AllPassed() {
			return &exitError{code: 2, msg: "preflight checks failed"}
		}
	}
	if flagPreflightOnly {
		return nil
	}

	d := driver.New()
	version := d.Version(ctx)
	fmt.Printf("OpenClaw version: %s\n", version)

	var prev *report.Report
	if flagSkipCompleted {
		prev, err = report.LoadLatest(cfg.Results.Dir)
		if err != nil {
			log.Printf("warning: ignoring unreadable previous report: %v", err)
		}
	}

	for _, m := range models {
		if err := preflight.WarmUp(ctx, m); err != nil {
			log.Printf("warning: %v", err)
		}
	}

	entries, infraTotal := runMatrix(ctx, trial.NewRunner(d), cfg, models, prev, version)

	fmt.Println("\n--- Results ---")
	report.WriteTable(os.Stdout, entries)

	path, err := report.Save(cfg.Results.Dir, version, entries)
	if err != nil {
		return err
	}
	fmt.Printf("Report written to %s\n", path)

	mdPath := filepath.Join(cfg.Results.Dir, "latest.md")
	if err := writeMarkdownFile(mdPath, entries, version); err != nil {
		log.Printf("warning: writing %s: %v", mdPath, err)
	}
	if updated, err := report.UpdateReadme("README.md", entries, version); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("warning: updating README: %v", err)
		}
	} else if updated {
		fmt.Println("README results updated")
	}

	if ctx.Err() != nil {
		return &exitError{code: 130, msg: "run cancelled"}
	}
	if infraTotal > 0 {
		return &exitError{code: 1, msg: fmt.Sprintf("%d trial(s) hit infrastructure failures", infraTotal)}
	}
	return nil
}

// runMatrix executes the model × variant matrix sequentially. On
// cancellation the variant in progress still finalizes, so trials that
// already completed stay in the report; only unstarted work is dropped.
func runMatrix(ctx context.Context, runner *trial.Runner, cfg *config.Config, models []config.Model, prev *report.Report, version string) (entries []report.Entry, infraTotal int) {
	for _, m := range models {
		if ctx.Err() != nil {
			break
		}
		for _, variant := range cfg.PromptVariants {
			if ctx.Err() != nil {
				break
			}
			if prevEntry := prev.Lookup(m.ModelID, variant.Name); prevEntry != nil &&
				shouldSkip(prevEntry, prev.Version, version, variant.Prompts) {
				fmt.Printf("Skipping %s × %s (completed in previous run)\n", m.Name, variant.Name)
				entries = append(entries, *prevEntry)
				continue
			}

			col := aggregate.NewCollector(m.ModelID, variant.Name, variant.Prompts)
			for run := 1; run <= cfg.RunsPerModel; run++ {
				if ctx.Err() != nil {
					break
				}
				fmt.Printf("Running %s × %s (run %d/%d)...\n", m.Name, variant.Name, run, cfg.RunsPerModel)
				res := runTrialWithRetries(ctx, runner, trial.Config{
					Model:        m,
					Variant:      variant,
					TurnTimeout:  cfg.TurnTimeout(),
					Timeout:      cfg.BootstrapTimeout(),
					TemplatesDir: cfg.Workspace.TemplatesDir,
					PortBase:     cfg.Gateway.Port,
					PortAttempts: cfg.Gateway.PortAttempts,
					Bind:         cfg.Gateway.Bind,
					Keep:         flagKeepEnv,
				}, cfg.Retries)
				col.Add(res)
				if res.Infra {
					infraTotal++
					fmt.Printf("  infrastructure failure: %s\n", res.InfraErr)
				} else if flagVerbose {
					fmt.Printf("  %s  score %.0f%%  (%.1fs)\n",
						res.Outcome.Status, res.Score()*100, res.Duration.Seconds())
				}
			}
			entries = append(entries, report.FromVariant(col.Finalize()))
		}
	}
	return entries, infraTotal
}

// runTrialWithRetries re-runs only infrastructure-failed trials: a model
// that scored poorly earned its score, a harness crash did not.
func runTrialWithRetries(ctx context.Context, r *trial.Runner, cfg trial.Config, retries int) *trial.Result {
	res := r.Run(ctx, cfg)
	for attempt := 0; attempt < retries && res.Infra && ctx.Err() == nil; attempt++ {
		fmt.Printf("  retrying after infrastructure failure (%d/%d): %s\n",
			attempt+1, retries, res.InfraErr)
		res = r.Run(ctx, cfg)
	}
	return res
}

// shouldSkip reports whether a previous entry still stands in for a fresh
// run: same tool version, same prompts, and every run scored.
func shouldSkip(prevEntry *report.Entry, prevVersion, version string, prompts []string) bool {
	if prevVersion != version || version == "unknown" {
		return false
	}
	if prevEntry.NumRuns == 0 || prevEntry.InfraFailures > 0 {
		return false
	}
	return slices.Equal(prevEntry.Prompts, prompts)
}

func filterModels(models []config.Model, filter string) ([]config.Model, error) {
	if filter == "" {
		return models, nil
	}
	wanted := map[string]bool{}
	for _, name := range strings.Split(filter, ",") {
		wanted[strings.TrimSpace(name)] = true
	}
	var out []config.Model
	for _, m := range models {
		if wanted[m.Name] || wanted[m.ModelID] {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no configured model matches %q", filter)
	}
	return out, nil
}

func writeMarkdownFile(path string, entries []report.Entry, version string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var sb strings.Builder
	report.WriteMarkdown(&sb, entries, version)
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}
