package pipeline

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/amixaam/transcoder-win/pkg/models"
)

// WriteSummary renders the batch report as a table.
func WriteSummary(w io.Writer, report models.BatchReport) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("run %s: %s", report.RunID, report.Directory))
	t.AppendHeader(table.Row{"File", "Status", "Quality", "Detail"})

	var transcoded, skipped, failed int
	for _, f := range report.Files {
		quality := ""
		if f.Quality > 0 {
			quality = fmt.Sprintf("%.1f", f.Quality)
		}
		t.AppendRow(table.Row{f.Path, f.Status, quality, f.Reason})

		switch f.Status {
		case statusTranscoded:
			transcoded++
		case statusSkipped:
			skipped++
		case statusFailed:
			failed++
		}
	}

	t.AppendFooter(table.Row{
		fmt.Sprintf("%d files", len(report.Files)),
		fmt.Sprintf("%d ok / %d skipped / %d failed", transcoded, skipped, failed),
		"", "",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})
	t.SetStyle(table.StyleLight)
	t.Render()
}
