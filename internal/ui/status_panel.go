package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/litescript/ls-mms/internal/state"
)

// Viewer state colors
const (
	colorReady   = "#7CFC00" // Lawn green
	colorLoading = "#FFD700" // Gold
	colorFailed  = "#FF4500" // Orange-red
	colorEmpty   = "#444444" // Dark gray
)

func viewerColor(s state.ViewerState) string {
	switch s {
	case state.ViewerReady:
		return colorReady
	case state.ViewerLoading:
		return colorLoading
	case state.ViewerFailed:
		return colorFailed
	default:
		return colorEmpty
	}
}

// RenderStatusPanel renders viewer states, tracks, the last whisker build
// and the most recent reload events.
//
//	main       ready      gen 3  full-recreate
//	formation  empty
//	mms1   2880 samples
//	mms2   2880 samples  degraded
func RenderStatusPanel(snap state.Snapshot, maxEvents int) string {
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("135")).Bold(true)

	var lines []string
	for _, name := range []string{state.MainViewer, state.FormationViewer} {
		vs := snap.Viewers[name]
		line := labelStyle.Render(fmt.Sprintf("%-10s ", name)) +
			lipgloss.NewStyle().Foreground(lipgloss.Color(viewerColor(vs))).Render(fmt.Sprintf("%-8s", vs))
		if name == state.MainViewer && snap.Target.Generation > 0 {
			line += dimStyle.Render(fmt.Sprintf("  gen %d  %s  %s", snap.Target.Generation, snap.Target.Action, snap.Target.Frame))
		}
		lines = append(lines, line)
	}

	for _, t := range snap.Tracks {
		line := labelStyle.Render(fmt.Sprintf("%-6s", t.ID))
		switch {
		case t.Err != nil:
			line += errorStyle.Render(" unavailable")
		case !t.Loaded:
			line += dimStyle.Render(" loading")
		default:
			line += rowStyle.Render(fmt.Sprintf(" %d samples", t.Samples))
			if t.Degraded {
				line += pendingStyle.Render("  degraded")
			}
		}
		lines = append(lines, line)
	}

	if w := snap.Whiskers; w.Parameter != "" {
		lines = append(lines, dimStyle.Render(fmt.Sprintf("whiskers %s: %d/%d built, %d dropped, %d skipped",
			w.Parameter, w.Built, w.Total, w.Dropped, w.Skipped)))
	}
	if snap.LastError != nil {
		lines = append(lines, errorStyle.Render("ERROR: "+snap.LastError.Error()))
	}

	events := snap.Events
	if len(events) > maxEvents {
		events = events[len(events)-maxEvents:]
	}
	if len(events) > 0 {
		lines = append(lines, "")
		lines = append(lines, titleStyle.Render("Events"))
	}
	for _, e := range events {
		line := dimStyle.Render(e.Timestamp.Format("15:04:05")) + " " + eventLabel(e.Type) + dimStyle.Render(fmt.Sprintf(" gen %d", e.Generation))
		if e.Duration > 0 {
			line += dimStyle.Render(" " + e.Duration.Round(time.Millisecond).String())
		}
		if e.Detail != "" {
			line += dimStyle.Render(" " + e.Detail)
		}
		lines = append(lines, line)
	}

	return strings.Join(lines, "\n")
}

func eventLabel(t state.EventType) string {
	c := colorLoading
	switch t {
	case state.EventReloadCompleted:
		c = colorReady
	case state.EventReloadFailed, state.EventDataUnavailable:
		c = colorFailed
	case state.EventSuperseded:
		c = colorEmpty
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(c)).Render(string(t))
}
