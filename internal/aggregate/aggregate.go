// Package aggregate combines the trials of one (model, variant) pair into
// averaged statistics.
//
// Policy for infrastructure-failed trials: they are excluded from the
// score denominator and counted separately. A harness crash says nothing
// about the model, so it must neither zero the average nor vanish from
// the report.
package aggregate

import (
	"time"

	"github.com/openclaw/clawbench/internal/trial"
	"github.com/openclaw/clawbench/internal/verify"
)

// VariantResult is the finalized statistics for one (model, variant)
// pair. NumRuns counts only scored trials; InfraFailures the rest.
type VariantResult struct {
	Model   string
	Variant string
	Prompts []string
	Trials  []*trial.Result

	NumRuns       int
	InfraFailures int
	MeanScore     float64
	MeanDuration  time.Duration
	PerfectCount  int
	PerfectRate   float64
	AllPerfect    bool
	CheckRates    [verify.NumChecks]float64
}

// Collector builds a VariantResult incrementally as trials complete.
type Collector struct {
	model   string
	variant string
	prompts []string
	trials  []*trial.Result
}

func NewCollector(model, variant string, prompts []string) *Collector {
	return &Collector{model: model, variant: variant, prompts: prompts}
}

func (c *Collector) Add(r *trial.Result) {
	c.trials = append(c.trials, r)
}

// Finalize computes the aggregate. Heterogeneous outcome mixes (completed,
// timed out, infrastructure-failed) are handled without special cases: a
// variant whose trials all failed on infrastructure has NumRuns 0 and no
// mean score.
func (c *Collector) Finalize() *VariantResult {
	vr := &VariantResult{
		Model:   c.model,
		Variant: c.variant,
		Prompts: c.prompts,
		Trials:  c.trials,
	}

	var scoreSum float64
	var durationSum time.Duration
	var checkPassed [verify.NumChecks]int

	for _, t := range c.trials {
		if t.Infra {
			vr.InfraFailures++
			continue
		}
		vr.NumRuns++
		scoreSum += t.Score()
		durationSum += t.Duration
		if t.Perfect() {
			vr.PerfectCount++
		}
		for i, chk := range t.Checks {
			if chk.Passed {
				checkPassed[i]++
			}
		}
	}

	if vr.NumRuns > 0 {
		n := float64(vr.NumRuns)
		vr.MeanScore = scoreSum / n
		vr.MeanDuration = durationSum / time.Duration(vr.NumRuns)
		vr.PerfectRate = float64(vr.PerfectCount) / n
		for i := range vr.CheckRates {
			vr.CheckRates[i] = float64(checkPassed[i]) / n
		}
		vr.AllPerfect = vr.PerfectCount == vr.NumRuns
	}
	return vr
}
