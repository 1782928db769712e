package trial_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openclaw/clawbench/internal/config"
	"github.com/openclaw/clawbench/internal/driver"
	"github.com/openclaw/clawbench/internal/trial"
	"github.com/openclaw/clawbench/internal/verify"
)

type fakeEnv struct {
	teardowns int
}

func (e *fakeEnv) WorkspaceDir() string     { return "/fake/workspace" }
func (e *fakeEnv) SoulTemplatePath() string { return "/fake/templates/SOUL.md" }
func (e *fakeEnv) Teardown()                { e.teardowns++ }

func passedChecks() [verify.NumChecks]verify.CheckResult {
	var out [verify.NumChecks]verify.CheckResult
	for i := range out {
		out[i] = verify.CheckResult{Check: verify.Check(i), Passed: true}
	}
	return out
}

func testConfig() trial.Config {
	return trial.Config{
		Model:       config.Model{Name: "tiny", ModelID: "tiny:1b"},
		Variant:     config.PromptVariant{Name: "guided", Prompts: []string{"do the ritual"}},
		TurnTimeout: time.Second,
		Timeout:     5 * time.Second,
	}
}

// runner returning happy-path collaborators; tests override fields.
func testRunner(env *fakeEnv, stops *int) *trial.Runner {
	return &trial.Runner{
		Provision: func(trial.Config) (trial.Env, error) { return env, nil },
		StartAgent: func(context.Context, trial.Env) (func(), error) {
			return func() { *stops++ }, nil
		},
		Drive: func(_ context.Context, _ trial.Env, prompt string, _ time.Duration) driver.Outcome {
			return driver.Outcome{Status: driver.StatusCompleted, Transcript: "ok: " + prompt}
		},
		Verify: func(string, string) [verify.NumChecks]verify.CheckResult {
			return passedChecks()
		},
	}
}

func TestRunHappyPath(t *testing.T) {
	env := &fakeEnv{}
	stops := 0
	r := testRunner(env, &stops)

	res := r.Run(context.Background(), testConfig())
	if res.Infra {
		t.Fatalf("unexpected infra failure: %s", res.InfraErr)
	}
	if res.Outcome.Status != driver.StatusCompleted {
		t.Errorf("expected completed, got %v", res.Outcome.Status)
	}
	if res.Score() != 1.0 || !res.Perfect() {
		t.Errorf("expected perfect score, got %f", res.Score())
	}
	if env.teardowns != 1 {
		t.Errorf("expected 1 teardown, got %d", env.teardowns)
	}
	if stops != 1 {
		t.Errorf("expected agent stopped once, got %d", stops)
	}
	if res.ID == "" {
		t.Error("expected a trial id")
	}
	if res.Duration <= 0 {
		t.Error("expected positive duration")
	}
}

func TestRunProvisionFailure(t *testing.T) {
	env := &fakeEnv{}
	stops := 0
	r := testRunner(env, &stops)
	r.Provision = func(trial.Config) (trial.Env, error) {
		return nil, errors.New("no free port")
	}

	res := r.Run(context.Background(), testConfig())
	if !res.Infra {
		t.Fatal("expected infra failure")
	}
	if res.Score() != 0 {
		t.Errorf("expected zero score, got %f", res.Score())
	}
	if stops != 0 {
		t.Error("agent must not be started after provision failure")
	}
}

func TestRunStartAgentFailure(t *testing.T) {
	env := &fakeEnv{}
	stops := 0
	r := testRunner(env, &stops)
	r.StartAgent = func(context.Context, trial.Env) (func(), error) {
		return nil, errors.New("gateway never became ready")
	}

	res := r.Run(context.Background(), testConfig())
	if !res.Infra {
		t.Fatal("expected infra failure")
	}
	if env.teardowns != 1 {
		t.Errorf("workspace must be torn down after agent failure, got %d teardowns", env.teardowns)
	}
}

func TestRunDriveFailure(t *testing.T) {
	env := &fakeEnv{}
	stops := 0
	r := testRunner(env, &stops)
	r.Drive = func(context.Context, trial.Env, string, time.Duration) driver.Outcome {
		return driver.Outcome{Status: driver.StatusFailed, Err: "agent crashed"}
	}

	res := r.Run(context.Background(), testConfig())
	if !res.Infra {
		t.Fatal("expected failed conversation to be an infra failure")
	}
	if res.InfraErr != "agent crashed" {
		t.Errorf("expected crash detail, got %q", res.InfraErr)
	}
	if env.teardowns != 1 || stops != 1 {
		t.Errorf("cleanup skipped: teardowns=%d stops=%d", env.teardowns, stops)
	}
}

func TestRunTimeoutScoresPartialState(t *testing.T) {
	env := &fakeEnv{}
	stops := 0
	r := testRunner(env, &stops)
	r.Drive = func(context.Context, trial.Env, string, time.Duration) driver.Outcome {
		return driver.Outcome{Status: driver.StatusTimedOut, Transcript: "got halfway"}
	}
	r.Verify = func(string, string) [verify.NumChecks]verify.CheckResult {
		checks := passedChecks()
		checks[verify.BootstrapDeleted].Passed = false
		checks[verify.SoulPersonalised].Passed = false
		return checks
	}

	res := r.Run(context.Background(), testConfig())
	if res.Infra {
		t.Fatal("a timeout is a measurement, not an infra failure")
	}
	if res.Outcome.Status != driver.StatusTimedOut {
		t.Errorf("expected timed_out, got %v", res.Outcome.Status)
	}
	if res.Score() != 0.5 {
		t.Errorf("expected partial credit 0.5, got %f", res.Score())
	}
}

func TestRunMultiPromptConversation(t *testing.T) {
	env := &fakeEnv{}
	stops := 0
	r := testRunner(env, &stops)

	var driven []string
	r.Drive = func(_ context.Context, _ trial.Env, prompt string, _ time.Duration) driver.Outcome {
		driven = append(driven, prompt)
		return driver.Outcome{Status: driver.StatusCompleted, Transcript: prompt}
	}

	cfg := testConfig()
	cfg.Variant.Prompts = []string{"first", "second"}
	res := r.Run(context.Background(), cfg)

	if len(driven) != 2 || driven[0] != "first" || driven[1] != "second" {
		t.Errorf("prompts driven out of order: %v", driven)
	}
	if res.Outcome.Transcript != "first\n\nsecond" {
		t.Errorf("unexpected combined transcript %q", res.Outcome.Transcript)
	}
}

func TestRunStopsAfterFirstNonCompletedTurn(t *testing.T) {
	env := &fakeEnv{}
	stops := 0
	r := testRunner(env, &stops)

	calls := 0
	r.Drive = func(context.Context, trial.Env, string, time.Duration) driver.Outcome {
		calls++
		return driver.Outcome{Status: driver.StatusTimedOut}
	}

	cfg := testConfig()
	cfg.Variant.Prompts = []string{"first", "second"}
	res := r.Run(context.Background(), cfg)

	if calls != 1 {
		t.Errorf("expected conversation to stop after first timeout, drove %d turns", calls)
	}
	if res.Outcome.Status != driver.StatusTimedOut {
		t.Errorf("expected timed_out, got %v", res.Outcome.Status)
	}
}

func TestRunTurnTimeoutCappedByBudget(t *testing.T) {
	env := &fakeEnv{}
	stops := 0
	r := testRunner(env, &stops)

	var got time.Duration
	r.Drive = func(_ context.Context, _ trial.Env, _ string, timeout time.Duration) driver.Outcome {
		got = timeout
		return driver.Outcome{Status: driver.StatusCompleted}
	}

	cfg := testConfig()
	cfg.TurnTimeout = time.Hour
	cfg.Timeout = 100 * time.Millisecond
	r.Run(context.Background(), cfg)

	if got > 100*time.Millisecond {
		t.Errorf("turn timeout %v exceeds conversation budget", got)
	}
}
