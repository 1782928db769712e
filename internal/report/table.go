package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/openclaw/clawbench/internal/verify"
)

// README markers for auto-injected results.
const (
	resultsStart = "<!-- BENCHMARK RESULTS -->"
	resultsEnd   = "<!-- /BENCHMARK RESULTS -->"
)

var checkColumns = []verify.Check{
	verify.BootstrapDeleted,
	verify.IdentityPopulated,
	verify.UserPopulated,
	verify.SoulPersonalised,
}

// rateStr renders a pass rate; exact 1 and 0 collapse to all/none marks.
func rateStr(rate float64) string {
	switch rate {
	case 1.0:
		return "✅"
	case 0.0:
		return "❌"
	default:
		return fmt.Sprintf("%.0f%%", rate*100)
	}
}

func runsCell(e Entry) string {
	if e.InfraFailures > 0 {
		// Distinct anomaly marker: tooling problems must not read as a
		// low model score.
		return fmt.Sprintf("%d (+%d infra)", e.NumRuns, e.InfraFailures)
	}
	return fmt.Sprintf("%d", e.NumRuns)
}

func scoreCell(e Entry) string {
	if e.NumRuns == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.0f%%", e.AvgScore*100)
}

// rateCell guards against reading "all failed" out of an entry with no
// scored runs: without data the rate is unknown, not zero.
func rateCell(e Entry, rate float64) string {
	if e.NumRuns == 0 {
		return "n/a"
	}
	return rateStr(rate)
}

// WriteTable renders the summary the operator sees after a run.
func WriteTable(w io.Writer, entries []Entry) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{
		"Model", "Variant", "Runs", "Avg Score", "Perfect",
		"BOOTSTRAP", "IDENTITY", "USER", "SOUL", "Avg Duration",
	})
	for _, e := range entries {
		row := table.Row{e.Model, e.Variant, runsCell(e), scoreCell(e), rateCell(e, e.PerfectRate)}
		for _, c := range checkColumns {
			row = append(row, rateCell(e, e.PerCheckRates[c.File()]))
		}
		row = append(row, fmt.Sprintf("%.1fs", e.AvgDurationS))
		tw.AppendRow(row)
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 10, Align: text.AlignRight},
	})
	tw.Render()
}

// WriteJSON emits the entries for programmatic consumption.
func WriteJSON(w io.Writer, entries []Entry) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

// WriteMarkdown renders the results as a markdown table with a column
// legend, suitable for README injection.
func WriteMarkdown(w io.Writer, entries []Entry, version string) {
	ts := time.Now().UTC().Format("2006-01-02 15:04 UTC")
	versionNote := ""
	if version != "" && version != "unknown" {
		versionNote = fmt.Sprintf(" · OpenClaw **%s**", version)
	}
	fmt.Fprintf(w, "### Latest results\n\n")
	fmt.Fprintf(w, "> Ran on **%s** against a local model server (averaged)%s.\n\n", ts, versionNote)
	fmt.Fprintln(w, "| Model | Variant | Runs | Avg Score | Perfect | BOOTSTRAP | IDENTITY | USER | SOUL | Avg Duration |")
	fmt.Fprintln(w, "|-------|---------|:----:|:---------:|:-------:|:---------:|:--------:|:----:|:----:|-------------:|")
	for _, e := range entries {
		cells := []string{e.Model, e.Variant, runsCell(e), scoreCell(e), rateCell(e, e.PerfectRate)}
		for _, c := range checkColumns {
			cells = append(cells, rateCell(e, e.PerCheckRates[c.File()]))
		}
		cells = append(cells, fmt.Sprintf("%.1fs", e.AvgDurationS))
		fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | "))
	}

	perfect := 0
	for _, e := range entries {
		if e.NumRuns > 0 && e.PerfectRate == 1.0 {
			perfect++
		}
	}
	fmt.Fprintf(w, "\n**%d/%d** model/variant pairs completed the bootstrap perfectly in every run.\n\n", perfect, len(entries))
	fmt.Fprintln(w, "<details><summary>Column legend</summary>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "| Column | Meaning |")
	fmt.Fprintln(w, "|--------|---------|")
	fmt.Fprintln(w, "| **Runs** | Scored runs; `+n infra` marks runs lost to harness failures, excluded from averages |")
	fmt.Fprintln(w, "| **Avg Score** | Average fraction of checks passed across scored runs |")
	fmt.Fprintln(w, "| **Perfect** | Fraction of runs where all 4 checks passed |")
	fmt.Fprintln(w, "| **BOOTSTRAP** | Rate at which `BOOTSTRAP.md` was deleted |")
	fmt.Fprintln(w, "| **IDENTITY** | Rate at which `IDENTITY.md` has real Name, Creature, Vibe, Emoji |")
	fmt.Fprintln(w, "| **USER** | Rate at which `USER.md` has real Name, Timezone |")
	fmt.Fprintln(w, "| **SOUL** | Rate at which `SOUL.md` was personalised beyond the template |")
	fmt.Fprintln(w, "| **Avg Duration** | Average wall-clock time for the bootstrap conversation |")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "</details>")
}

// UpdateReadme replaces the content between the result markers in the
// README. Returns false (without error) when the markers are absent.
func UpdateReadme(readmePath string, entries []Entry, version string) (bool, error) {
	content, err := os.ReadFile(readmePath)
	if err != nil {
		return false, err
	}
	if !strings.Contains(string(content), resultsStart) || !strings.Contains(string(content), resultsEnd) {
		return false, nil
	}

	var md strings.Builder
	WriteMarkdown(&md, entries, version)

	pattern := regexp.MustCompile(
		`(?s)` + regexp.QuoteMeta(resultsStart) + `.*?` + regexp.QuoteMeta(resultsEnd))
	updated := pattern.ReplaceAllString(string(content),
		resultsStart+"\n"+md.String()+"\n"+resultsEnd)

	return true, writeFileAtomic(readmePath, []byte(updated), 0o644)
}
