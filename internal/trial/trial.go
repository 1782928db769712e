// Package trial composes provisioner, driver and verifier into one trial:
// provision, drive, verify, tear down. Cleanup runs on every exit path,
// including cancellation, unless the keep-workspace debug flag is set.
package trial

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openclaw/clawbench/internal/config"
	"github.com/openclaw/clawbench/internal/driver"
	"github.com/openclaw/clawbench/internal/verify"
	"github.com/openclaw/clawbench/internal/workspace"
)

// Config is the immutable input to one trial.
type Config struct {
	Model        config.Model
	Variant      config.PromptVariant
	TurnTimeout  time.Duration // per prompt
	Timeout      time.Duration // whole conversation
	TemplatesDir string
	PortBase     int
	PortAttempts int
	Bind         string
	Keep         bool
}

// Result is produced once per trial and consumed by the aggregator.
// Infra marks trials that never produced a scoreable conversation
// (provisioning error, gateway or agent launch failure); they are
// reported distinctly and excluded from score averaging.
type Result struct {
	ID       string
	Model    string
	Variant  string
	Outcome  driver.Outcome
	Checks   [verify.NumChecks]verify.CheckResult
	Duration time.Duration
	Infra    bool
	InfraErr string
}

// Score is the fraction of checks passed, always in [0, 1].
func (r *Result) Score() float64 {
	passed := 0
	for _, c := range r.Checks {
		if c.Passed {
			passed++
		}
	}
	return float64(passed) / float64(verify.NumChecks)
}

// Perfect reports whether every check passed.
func (r *Result) Perfect() bool {
	for _, c := range r.Checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

// Env is the slice of the workspace the runner needs; the concrete
// *workspace.Workspace satisfies it, tests substitute fakes to exercise
// the cleanup invariant without touching subprocesses.
type Env interface {
	WorkspaceDir() string
	SoulTemplatePath() string
	Teardown()
}

// Runner's collaborators are injected as functions so the state machine
// is testable in isolation.
type Runner struct {
	Provision  func(cfg Config) (Env, error)
	StartAgent func(ctx context.Context, env Env) (stop func(), err error)
	Drive      func(ctx context.Context, env Env, prompt string, timeout time.Duration) driver.Outcome
	Verify     func(workspaceDir, soulTemplatePath string) [verify.NumChecks]verify.CheckResult
}

// NewRunner wires the production provisioner, driver and verifier.
func NewRunner(d *driver.Driver) *Runner {
	return &Runner{
		Provision: func(cfg Config) (Env, error) {
			ws, err := workspace.Provision(workspace.Opts{
				Model:        cfg.Model,
				TemplatesDir: cfg.TemplatesDir,
				PortBase:     cfg.PortBase,
				PortAttempts: cfg.PortAttempts,
				Bind:         cfg.Bind,
				Keep:         cfg.Keep,
			})
			if err != nil {
				return nil, err
			}
			return &wsEnv{ws: ws, templatesDir: cfg.TemplatesDir}, nil
		},
		StartAgent: func(ctx context.Context, env Env) (func(), error) {
			ws := env.(*wsEnv).ws
			gw, err := d.StartGateway(ctx, ws)
			if err != nil {
				return nil, err
			}
			if err := gw.WaitReady(ctx, 30*time.Second); err != nil {
				gw.Stop()
				return nil, err
			}
			return gw.Stop, nil
		},
		Drive: func(ctx context.Context, env Env, prompt string, timeout time.Duration) driver.Outcome {
			return d.Drive(ctx, env.(*wsEnv).ws, prompt, timeout)
		},
		Verify: verify.Verify,
	}
}

type wsEnv struct {
	ws           *workspace.Workspace
	templatesDir string
}

func (e *wsEnv) WorkspaceDir() string { return e.ws.Dir }
func (e *wsEnv) SoulTemplatePath() string {
	return filepath.Join(e.templatesDir, verify.SoulPersonalised.File())
}
func (e *wsEnv) Teardown() { e.ws.Teardown() }

// Run executes one trial. It always returns a Result; infrastructure
// problems are carried on it rather than as an error so a crashed trial
// cannot corrupt the surrounding run.
func (r *Runner) Run(ctx context.Context, cfg Config) *Result {
	res := &Result{
		ID:      uuid.NewString(),
		Model:   cfg.Model.ModelID,
		Variant: cfg.Variant.Name,
	}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	env, err := r.Provision(cfg)
	if err != nil {
		res.Infra = true
		res.InfraErr = fmt.Sprintf("provisioning: %v", err)
		res.Outcome = driver.Outcome{Status: driver.StatusFailed, Err: res.InfraErr}
		res.Checks = verify.FailedAll("trial did not run")
		return res
	}
	defer env.Teardown()

	stop, err := r.StartAgent(ctx, env)
	if err != nil {
		res.Infra = true
		res.InfraErr = fmt.Sprintf("starting agent: %v", err)
		res.Outcome = driver.Outcome{Status: driver.StatusFailed, Err: res.InfraErr}
		res.Checks = verify.FailedAll("trial did not run")
		return res
	}
	defer stop()

	res.Outcome = r.converse(ctx, env, cfg)

	if res.Outcome.Status == driver.StatusFailed {
		// Never ran to a scoreable state: checks fail by definition and
		// the trial is flagged, not zero-scored.
		res.Infra = true
		res.InfraErr = res.Outcome.Err
		res.Checks = verify.FailedAll("conversation failed")
		return res
	}

	res.Checks = r.Verify(env.WorkspaceDir(), env.SoulTemplatePath())
	return res
}

// converse sends each of the variant's prompts in order (usually one),
// sharing the trial-wide timeout budget across turns. The first failure
// ends the conversation; a timeout on any turn makes the whole outcome
// TimedOut with whatever transcript was captured.
func (r *Runner) converse(ctx context.Context, env Env, cfg Config) driver.Outcome {
	deadline := time.Now().Add(cfg.Timeout)
	combined := driver.Outcome{Status: driver.StatusCompleted}
	var transcript []string

	for _, prompt := range cfg.Variant.Prompts {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			combined.Status = driver.StatusTimedOut
			break
		}
		turnTimeout := cfg.TurnTimeout
		if turnTimeout > remaining {
			turnTimeout = remaining
		}

		outcome := r.Drive(ctx, env, prompt, turnTimeout)
		combined.Elapsed += outcome.Elapsed
		if outcome.Transcript != "" {
			transcript = append(transcript, outcome.Transcript)
		}
		if outcome.Status != driver.StatusCompleted {
			combined.Status = outcome.Status
			combined.Err = outcome.Err
			break
		}
	}
	combined.Transcript = strings.Join(transcript, "\n\n")
	return combined
}
