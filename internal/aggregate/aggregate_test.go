package aggregate_test

import (
	"math"
	"testing"
	"time"

	"github.com/openclaw/clawbench/internal/aggregate"
	"github.com/openclaw/clawbench/internal/driver"
	"github.com/openclaw/clawbench/internal/trial"
	"github.com/openclaw/clawbench/internal/verify"
)

// scoredTrial builds a completed trial with the given per-check outcomes.
func scoredTrial(passed [verify.NumChecks]bool, d time.Duration) *trial.Result {
	res := &trial.Result{
		Model:    "tiny:1b",
		Variant:  "guided",
		Outcome:  driver.Outcome{Status: driver.StatusCompleted},
		Duration: d,
	}
	for i := range res.Checks {
		res.Checks[i] = verify.CheckResult{Check: verify.Check(i), Passed: passed[i]}
	}
	return res
}

func infraTrial() *trial.Result {
	return &trial.Result{
		Model:    "tiny:1b",
		Variant:  "guided",
		Outcome:  driver.Outcome{Status: driver.StatusFailed, Err: "gateway died"},
		Infra:    true,
		InfraErr: "gateway died",
		Checks:   verify.FailedAll("trial did not run"),
	}
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestFinalize(t *testing.T) {
	perfect := [verify.NumChecks]bool{true, true, true, true}
	half := [verify.NumChecks]bool{true, true, false, false}

	col := aggregate.NewCollector("tiny:1b", "guided", []string{"p"})
	for i := 0; i < 3; i++ {
		col.Add(scoredTrial(perfect, 10*time.Second))
	}
	for i := 0; i < 2; i++ {
		col.Add(scoredTrial(half, 20*time.Second))
	}

	vr := col.Finalize()
	if vr.NumRuns != 5 || vr.InfraFailures != 0 {
		t.Fatalf("expected 5 scored runs, got %d (+%d infra)", vr.NumRuns, vr.InfraFailures)
	}
	if !almostEqual(vr.MeanScore, 0.8) {
		t.Errorf("expected mean score 0.8, got %f", vr.MeanScore)
	}
	if vr.PerfectCount != 3 || !almostEqual(vr.PerfectRate, 0.6) {
		t.Errorf("expected 3 perfect (rate 0.6), got %d (%f)", vr.PerfectCount, vr.PerfectRate)
	}
	if vr.AllPerfect {
		t.Error("AllPerfect must be false with mixed outcomes")
	}
	if vr.MeanDuration != 14*time.Second {
		t.Errorf("expected mean duration 14s, got %v", vr.MeanDuration)
	}

	wantRates := [verify.NumChecks]float64{1.0, 1.0, 0.6, 0.6}
	for i, want := range wantRates {
		if !almostEqual(vr.CheckRates[i], want) {
			t.Errorf("check %v rate = %f, want %f", verify.Check(i), vr.CheckRates[i], want)
		}
	}
}

func TestFinalizeExcludesInfraFailures(t *testing.T) {
	perfect := [verify.NumChecks]bool{true, true, true, true}

	col := aggregate.NewCollector("tiny:1b", "guided", nil)
	col.Add(scoredTrial(perfect, 10*time.Second))
	col.Add(infraTrial())
	col.Add(scoredTrial(perfect, 10*time.Second))

	vr := col.Finalize()
	if vr.NumRuns != 2 {
		t.Errorf("expected 2 scored runs, got %d", vr.NumRuns)
	}
	if vr.InfraFailures != 1 {
		t.Errorf("expected 1 infra failure, got %d", vr.InfraFailures)
	}
	if !almostEqual(vr.MeanScore, 1.0) {
		t.Errorf("infra trial must not drag the mean: got %f", vr.MeanScore)
	}
	if !vr.AllPerfect {
		t.Error("expected AllPerfect over the scored runs")
	}
	if len(vr.Trials) != 3 {
		t.Errorf("all trials must remain in the record, got %d", len(vr.Trials))
	}
}

func TestFinalizeAllInfra(t *testing.T) {
	col := aggregate.NewCollector("tiny:1b", "guided", nil)
	col.Add(infraTrial())
	col.Add(infraTrial())

	vr := col.Finalize()
	if vr.NumRuns != 0 || vr.InfraFailures != 2 {
		t.Fatalf("expected 0 runs and 2 infra, got %d/%d", vr.NumRuns, vr.InfraFailures)
	}
	if vr.MeanScore != 0 || vr.PerfectRate != 0 {
		t.Errorf("expected zeroed statistics, got score %f perfect %f", vr.MeanScore, vr.PerfectRate)
	}
	if vr.AllPerfect {
		t.Error("AllPerfect must be false with no scored runs")
	}
}

func TestFinalizeEmpty(t *testing.T) {
	vr := aggregate.NewCollector("tiny:1b", "guided", nil).Finalize()
	if vr.NumRuns != 0 || vr.MeanScore != 0 {
		t.Errorf("expected empty aggregate, got %+v", vr)
	}
}
