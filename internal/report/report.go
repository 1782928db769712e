// Package report persists benchmark results and renders them for
// operators. The on-disk report is the contract the skip-completed policy
// keys on: (tool version, model, prompt variant, prompt text).
package report

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/openclaw/clawbench/internal/aggregate"
	"github.com/openclaw/clawbench/internal/verify"
)

const LatestName = "benchmark_latest.json"

type Report struct {
	Timestamp string  `json:"timestamp"`
	Version   string  `json:"openclaw_version"`
	Models    []Entry `json:"models"`
}

// Entry is one (model, variant) aggregate. Infrastructure failures are
// carried separately from the score so a crashed trial shows up as an
// anomaly, not as model performance.
type Entry struct {
	Model         string             `json:"model"`
	Variant       string             `json:"prompt_variant"`
	Prompts       []string           `json:"prompt_variant_prompts"`
	NumRuns       int                `json:"num_runs"`
	InfraFailures int                `json:"infra_failures"`
	AvgScore      float64            `json:"avg_score"`
	AvgDurationS  float64            `json:"avg_duration_s"`
	PerfectRate   float64            `json:"perfect_rate"`
	PerCheckRates map[string]float64 `json:"per_check_rates"`
	Runs          []RunEntry         `json:"runs"`
}

type RunEntry struct {
	Outcome    string       `json:"outcome"`
	Score      float64      `json:"score"`
	DurationS  float64      `json:"duration_s"`
	Infra      bool         `json:"infrastructure_failure,omitempty"`
	Error      string       `json:"error,omitempty"`
	Transcript string       `json:"transcript,omitempty"`
	Checks     []CheckEntry `json:"checks"`
}

type CheckEntry struct {
	Name   string `json:"name"`
	File   string `json:"file"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// Secret-looking substrings (Bearer tokens, api_key assignments) are
// redacted before transcripts hit disk.
var secretRe = regexp.MustCompile(
	`(?i)(Bearer\s+)\S+|(api[_-]?key["':\s=]+)\S+`)

func Scrub(text string) string {
	return secretRe.ReplaceAllString(text, "$1$2***")
}

// FromVariant converts an aggregate into its persisted form, scrubbing
// transcripts and error text.
func FromVariant(vr *aggregate.VariantResult) Entry {
	e := Entry{
		Model:         vr.Model,
		Variant:       vr.Variant,
		Prompts:       vr.Prompts,
		NumRuns:       vr.NumRuns,
		InfraFailures: vr.InfraFailures,
		AvgScore:      round4(vr.MeanScore),
		AvgDurationS:  round2(vr.MeanDuration.Seconds()),
		PerfectRate:   round4(vr.PerfectRate),
		PerCheckRates: map[string]float64{},
	}
	for i, rate := range vr.CheckRates {
		e.PerCheckRates[verify.Check(i).File()] = round4(rate)
	}
	for _, t := range vr.Trials {
		run := RunEntry{
			Outcome:    t.Outcome.Status.String(),
			Score:      t.Score(),
			DurationS:  round2(t.Duration.Seconds()),
			Infra:      t.Infra,
			Error:      Scrub(t.InfraErr),
			Transcript: Scrub(t.Outcome.Transcript),
		}
		if t.Infra {
			run.Score = 0
		}
		for _, c := range t.Checks {
			run.Checks = append(run.Checks, CheckEntry{
				Name:   c.Check.String(),
				File:   c.Check.File(),
				Passed: c.Passed,
				Detail: Scrub(c.Detail),
			})
		}
		e.Runs = append(e.Runs, run)
	}
	return e
}

// Save writes a timestamped report plus benchmark_latest.json, both via
// atomic replace-on-write so a crash mid-save cannot corrupt prior
// results. Returns the timestamped path.
func Save(dir, version string, entries []Entry) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating results dir: %w", err)
	}
	rep := Report{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   version,
		Models:    entries,
	}
	data, err := json.MarshalIndent(&rep, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling report: %w", err)
	}

	stamp := time.Now().UTC().Format("20060102_150405")
	path := filepath.Join(dir, fmt.Sprintf("benchmark_%s.json", stamp))
	if err := writeFileAtomic(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, LatestName), data, 0o644); err != nil {
		return "", fmt.Errorf("writing latest report: %w", err)
	}
	return path, nil
}

// LoadLatest reads benchmark_latest.json. A missing file is not an error:
// it returns (nil, nil) so callers can treat "nothing to skip" uniformly.
func LoadLatest(dir string) (*Report, error) {
	data, err := os.ReadFile(filepath.Join(dir, LatestName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading latest report: %w", err)
	}
	var rep Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("parsing latest report: %w", err)
	}
	return &rep, nil
}

// Lookup finds a previous entry by (model, variant).
func (r *Report) Lookup(model, variant string) *Entry {
	if r == nil {
		return nil
	}
	for i := range r.Models {
		if r.Models[i].Model == model && r.Models[i].Variant == variant {
			return &r.Models[i]
		}
	}
	return nil
}

// writeFileAtomic writes via temp file + rename in the target directory
// so readers never observe a partial report.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".clawbench-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func round4(f float64) float64 { return math.Round(f*10000) / 10000 }
func round2(f float64) float64 { return math.Round(f*100) / 100 }
