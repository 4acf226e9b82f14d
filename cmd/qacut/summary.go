package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tiroq/qacut/internal/embed"
	"github.com/tiroq/qacut/internal/errlog"
	"github.com/tiroq/qacut/internal/ipc"
	"github.com/tiroq/qacut/internal/pipeline"
)

var (
	colorRed    = lipgloss.Color("#FF5F5F")
	colorGreen  = lipgloss.Color("#5FD75F")
	colorYellow = lipgloss.Color("#FFD75F")
	colorCyan   = lipgloss.Color("#5FD7FF")
	colorGray   = lipgloss.Color("#808080")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	labelStyle = lipgloss.NewStyle().Foreground(colorGray).Width(16)
	okStyle    = lipgloss.NewStyle().Foreground(colorGreen)
	warnStyle  = lipgloss.NewStyle().Foreground(colorYellow)
	failStyle  = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorGray).
			Padding(0, 1)
)

func row(label, value string) string {
	return labelStyle.Render(label) + value
}

// renderSummary formats a run report for the terminal.
func renderSummary(rep *pipeline.Report) string {
	lines := []string{
		titleStyle.Render("qacut run " + rep.RunID),
		row("output", rep.OutDir),
		row("chunks", fmt.Sprintf("%d", rep.Chunks)),
	}

	tracks := okStyle.Render(fmt.Sprintf("%d ok", rep.TracksOK))
	if rep.TracksFailed > 0 {
		tracks += ", " + failStyle.Render(fmt.Sprintf("%d failed", rep.TracksFailed))
	}
	lines = append(lines, row("tracks", tracks))

	if rep.Warnings == 0 {
		lines = append(lines, row("errors.json", okStyle.Render("clean")))
	} else {
		kinds := make([]string, 0, len(rep.ByKind))
		for k, n := range rep.ByKind {
			kinds = append(kinds, fmt.Sprintf("%s=%d", k, n))
		}
		sort.Strings(kinds)
		style := warnStyle
		if rep.ByKind[errlog.KindIOFailure] > 0 {
			style = failStyle
		}
		lines = append(lines, row("errors.json", style.Render(fmt.Sprintf("%d (%s)", rep.Warnings, strings.Join(kinds, ", ")))))
	}
	for _, m := range rep.Missing {
		lines = append(lines, row("not written", failStyle.Render(m)))
	}
	lines = append(lines, row("elapsed", rep.Elapsed.Round(1e6).String()))

	return boxStyle.Render(strings.Join(lines, "\n"))
}

// renderHealth formats backend health checks.
func renderHealth(statuses []*embed.HealthStatus) string {
	lines := []string{titleStyle.Render("embedding backends")}
	for _, s := range statuses {
		state := okStyle.Render("ok")
		if !s.OK {
			state = failStyle.Render("down")
		}
		detail := s.Latency.Round(1e6).String()
		if s.Message != "" {
			detail += "  " + s.Message
		}
		lines = append(lines, row(s.Backend, state+"  "+detail))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

// renderStatus formats a watcher snapshot.
func renderStatus(st *ipc.StatusSnapshot) string {
	var state string
	switch st.State {
	case ipc.StateProcessing:
		state = okStyle.Render("processing " + st.Current)
	case ipc.StatePaused:
		state = warnStyle.Render("paused")
	case ipc.StateStopped:
		state = failStyle.Render("stopped")
	default:
		state = okStyle.Render(string(st.State))
	}

	lines := []string{
		titleStyle.Render("qacut watch " + st.Inbox),
		row("state", state),
		row("pid", fmt.Sprintf("%d", st.PID)),
		row("processed", fmt.Sprintf("%d", st.Processed)),
	}
	if st.Failed > 0 {
		lines = append(lines, row("failed", failStyle.Render(fmt.Sprintf("%d", st.Failed))))
	}
	if st.LastRunID != "" {
		lines = append(lines, row("last run", st.LastRunID))
	}
	if st.LastError != "" {
		lines = append(lines, row("last error", warnStyle.Render(st.LastError)))
	}
	lines = append(lines, row("updated", st.Timestamp.Format("2006-01-02 15:04:05")))
	return boxStyle.Render(strings.Join(lines, "\n"))
}
