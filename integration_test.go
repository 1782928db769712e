//go:build integration

package main

import (
	"context"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/openclaw/clawbench/internal/config"
	"github.com/openclaw/clawbench/internal/driver"
	"github.com/openclaw/clawbench/internal/trial"
)

// TestLiveTrial runs one real trial end to end: openclaw on PATH, a local
// model server, gateway startup, one bootstrap prompt, verification and
// teardown. Gated because it needs a live model.
func TestLiveTrial(t *testing.T) {
	if os.Getenv("CLAWBENCH_LIVE_TESTS") == "" {
		t.Skip("set CLAWBENCH_LIVE_TESTS=1 to run live integration tests")
	}
	if _, err := exec.LookPath("openclaw"); err != nil {
		t.Skip("openclaw not on PATH")
	}

	cfg, err := config.Load("config.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	model := cfg.Models[0]
	variant := cfg.PromptVariants[0]

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	r := trial.NewRunner(driver.New())
	res := r.Run(ctx, trial.Config{
		Model:        model,
		Variant:      variant,
		TurnTimeout:  cfg.TurnTimeout(),
		Timeout:      cfg.BootstrapTimeout(),
		TemplatesDir: cfg.Workspace.TemplatesDir,
		PortBase:     cfg.Gateway.Port,
		PortAttempts: cfg.Gateway.PortAttempts,
		Bind:         cfg.Gateway.Bind,
	})

	if res.Infra {
		t.Fatalf("infrastructure failure: %s", res.InfraErr)
	}
	t.Logf("outcome=%s score=%.2f duration=%s", res.Outcome.Status, res.Score(), res.Duration)
	for _, c := range res.Checks {
		t.Logf("  %-18s passed=%-5v %s", c.Check, c.Passed, c.Detail)
	}
}
