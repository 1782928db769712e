package preflight

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Print renders the check results as a table, one row per check, with
// the fix hint on failing rows.
func Print(w io.Writer, rep *Report) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Check", "Status", "Detail"})
	for _, c := range rep.Checks {
		status := "✅"
		detail := c.Message
		if !c.Passed {
			status = "❌"
			if c.FixHint != "" {
				detail = c.Message + " · " + c.FixHint
			}
		}
		tw.AppendRow(table.Row{c.Name, status, detail})
	}
	tw.Render()
}
