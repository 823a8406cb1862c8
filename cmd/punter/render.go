package main

import (
	"fmt"
	"io"
	"math"
	"path/filepath"
	"time"

	"github.com/aluiziolira/saturday-punter/models"
	"github.com/aluiziolira/saturday-punter/workflow"
	"github.com/jedib0t/go-pretty/v6/table"
)

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle(title)
	return t
}

func renderDownload(w io.Writer, result models.DownloadResult) {
	t := newTable(w, "Download "+result.RunID)
	t.AppendHeader(table.Row{"Attempt", "Outcome", "Error type", "Elapsed", "Detail"})
	for _, a := range result.Attempts {
		detail := a.Reason
		if a.Outcome == models.OutcomeSuccess {
			detail = filepath.Base(a.Path)
		}
		t.AppendRow(table.Row{a.Index, a.Outcome, a.ErrorType, a.Elapsed.Round(time.Millisecond), detail})
	}
	if result.Fatal != "" {
		t.AppendFooter(table.Row{"", "fatal", "precondition", "", result.Fatal})
	}
	t.Render()
}

func renderSelections(w io.Writer, set *models.SelectionSet, top int, metrics map[string]interface{}) {
	stats := newTable(w, filepath.Base(set.Source))
	stats.AppendHeader(table.Row{"Runners", "Venues", "Ultimates (> 90)", "Validation"})
	stats.AppendRow(table.Row{set.Stats.Rows, set.Stats.Venues, set.Stats.Ultimates, metrics["validation_errors"]})
	stats.Render()

	if top <= 0 || len(set.Runners) == 0 {
		return
	}
	runners := newTable(w, "")
	runners.AppendHeader(table.Row{"Venue", "RN", "Horse Name", "Ultimrating"})
	for i, r := range set.Runners {
		if i == top {
			break
		}
		runners.AppendRow(table.Row{r.Venue(), number(r.RaceNumber), r.HorseName(), number(r.UltimRating)})
	}
	if len(set.Runners) > top {
		runners.AppendFooter(table.Row{"", "", fmt.Sprintf("+%d more", len(set.Runners)-top), ""})
	}
	runners.Render()
}

func renderCandidates(w io.Writer, ranked []models.FileCandidate, nearMisses []string) {
	t := newTable(w, "Export candidates")
	t.AppendHeader(table.Row{"Rank", "Name", "Timestamp", "Position"})
	for i, c := range ranked {
		t.AppendRow(table.Row{i + 1, c.Name, c.Timestamp, c.Position})
	}
	for _, name := range nearMisses {
		t.AppendFooter(table.Row{"near miss", name, "", ""})
	}
	t.Render()
}

func renderProbe(w io.Writer, report models.ProbeReport) {
	t := newTable(w, "Preflight")
	t.AppendHeader(table.Row{"URL", "Status", "Reachable", "Missing controls", "Error type", "Duration"})
	t.AppendRow(table.Row{report.URL, report.StatusCode, report.Reachable, report.Missing, report.ErrorType, report.Duration.Round(time.Millisecond)})
	t.Render()
}

func renderSummary(w io.Writer, s workflow.Summary) {
	t := newTable(w, "Saturday Punter run "+s.RunID)
	t.AppendRow(table.Row{"File", filepath.Base(s.Path)})
	t.AppendRow(table.Row{"Attempts", len(s.Download.Attempts)})
	t.AppendRow(table.Row{"Runners", s.Stats.Rows})
	t.AppendRow(table.Row{"Venues", s.Stats.Venues})
	t.AppendRow(table.Row{"Ultimates", s.Stats.Ultimates})
	if s.OutputFile != "" {
		t.AppendRow(table.Row{"Cleaned output", s.OutputFile})
	}
	t.AppendRow(table.Row{"Notified", s.Notified})
	if s.Probe != nil {
		t.AppendRow(table.Row{"Preflight healthy", s.Probe.Healthy()})
	}
	t.AppendRow(table.Row{"Duration", s.Duration().Round(time.Millisecond)})
	t.Render()
}

func number(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return fmt.Sprint(v)
}
