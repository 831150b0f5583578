package ui

import (
	"fmt"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/litescript/ls-mms/internal/colors"
	"github.com/litescript/ls-mms/internal/datasource"
	"github.com/litescript/ls-mms/internal/frame"
	"github.com/litescript/ls-mms/internal/viewer"
)

// Styles for the control panel
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	rowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	selectedRowStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("229")).
				Background(lipgloss.Color("57"))

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("60"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

type field int

const (
	fieldDate field = iota
	fieldFrame
	fieldDataset1D
	fieldDataset3D
	fieldPalette1D
	fieldPalette3D
	fieldFormation
	numFields
)

var fieldLabels = [numFields]string{
	fieldDate:      "Date",
	fieldFrame:     "Frame",
	fieldDataset1D: "Path color",
	fieldDataset3D: "Whiskers",
	fieldPalette1D: "Path palette",
	fieldPalette3D: "Whisker palette",
	fieldFormation: "Formation",
}

// ApplyMsg asks the root model to apply the panel's pending settings.
type ApplyMsg struct {
	Settings viewer.Settings
}

// ControlPanelModel accumulates pending selections. Nothing is reloaded
// until the apply key is pressed, and the apply key does nothing while the
// pending settings would not change anything.
type ControlPanelModel struct {
	width   int
	cursor  field
	applied viewer.Settings
	pending viewer.Settings
	latest  time.Time
	lastErr error
	// retry allows applying unchanged settings after a failed reload.
	retry bool
}

// NewControlPanelModel creates a panel showing s as both applied and pending.
func NewControlPanelModel(s viewer.Settings, latest time.Time) ControlPanelModel {
	return ControlPanelModel{applied: s, pending: s, latest: latest}
}

// SetSize updates the panel width.
func (m ControlPanelModel) SetSize(width int) ControlPanelModel {
	m.width = width
	return m
}

// SetApplied records the settings the controller accepted.
func (m ControlPanelModel) SetApplied(s viewer.Settings) ControlPanelModel {
	m.applied = s
	m.retry = false
	return m
}

// SetFailed records that applying the accepted settings failed, so they
// can be applied again.
func (m ControlPanelModel) SetFailed() ControlPanelModel {
	m.retry = true
	return m
}

// SetError shows a rejected apply.
func (m ControlPanelModel) SetError(err error) ControlPanelModel {
	m.lastErr = err
	return m
}

// Pending returns the pending settings.
func (m ControlPanelModel) Pending() viewer.Settings {
	return m.pending
}

// Dirty reports whether applying would do any work.
func (m ControlPanelModel) Dirty() bool {
	return m.retry || viewer.Decide(viewer.Diff(m.applied, m.pending)) != viewer.ActionNoOp
}

// Update handles input messages.
func (m ControlPanelModel) Update(msg tea.Msg) (ControlPanelModel, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < numFields-1 {
			m.cursor++
		}
	case "left", "h":
		m.change(-1)
	case "right", "l", " ":
		m.change(1)
	case "f":
		m.pending.FormationVisible = !m.pending.FormationVisible
	case "r":
		m.pending = m.applied
	case "enter", "a":
		if !m.Dirty() {
			return m, nil
		}
		m.lastErr = nil
		m.retry = false
		s := m.pending
		return m, func() tea.Msg { return ApplyMsg{Settings: s} }
	}
	return m, nil
}

func (m *ControlPanelModel) change(d int) {
	p := &m.pending
	switch m.cursor {
	case fieldDate:
		next := datasource.TimeRange{Start: p.Range.Start.AddDate(0, 0, d), End: p.Range.End.AddDate(0, 0, d)}
		if m.latest.IsZero() || !next.Start.After(m.latest) {
			p.Range = next
		}
	case fieldFrame:
		p.Frame = p.Frame.Toggle()
	case fieldDataset1D:
		p.Dataset1D = cycle(parameterIDs(datasource.OrbitColorParameters), p.Dataset1D, d)
	case fieldDataset3D:
		p.Dataset3D = cycle(parameterIDs(datasource.WhiskerParameters), p.Dataset3D, d)
	case fieldPalette1D:
		p.Palette1D = cycle(colors.Names(), p.Palette1D, d)
	case fieldPalette3D:
		p.Palette3D = cycle(colors.Names(), p.Palette3D, d)
	case fieldFormation:
		p.FormationVisible = !p.FormationVisible
	}
}

// parameterIDs lists catalog ids with "" (none) first.
func parameterIDs(params []datasource.Parameter) []string {
	ids := []string{""}
	for _, p := range params {
		ids = append(ids, p.ID)
	}
	return ids
}

func cycle(opts []string, cur string, d int) string {
	if len(opts) == 0 {
		return cur
	}
	i := slices.Index(opts, cur)
	if i < 0 && d < 0 {
		i = 0
	}
	n := len(opts)
	return opts[((i+d)%n+n)%n]
}

// View renders the panel.
func (m ControlPanelModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Settings"))
	b.WriteString("\n")

	for f := field(0); f < numFields; f++ {
		pending := m.value(m.pending, f)
		applied := m.value(m.applied, f)

		label := fmt.Sprintf("%-16s", fieldLabels[f])
		line := label + pending
		style := rowStyle
		if f == m.cursor {
			style = selectedRowStyle
		}
		b.WriteString(style.Render(line))
		if pending != applied {
			b.WriteString(pendingStyle.Render("  (was " + applied + ")"))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	action := viewer.Decide(viewer.Diff(m.applied, m.pending))
	switch {
	case action != viewer.ActionNoOp:
		b.WriteString(pendingStyle.Render(fmt.Sprintf("[enter] apply: %s", action)))
	case m.retry:
		b.WriteString(pendingStyle.Render("[enter] retry"))
	default:
		b.WriteString(dimStyle.Render("[enter] apply: nothing to apply"))
	}
	if m.lastErr != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("Rejected: " + m.lastErr.Error()))
	}
	return b.String()
}

func (m ControlPanelModel) value(s viewer.Settings, f field) string {
	switch f {
	case fieldDate:
		days := int(s.Range.Duration() / (24 * time.Hour))
		v := s.Range.Start.UTC().Format("2006-01-02")
		if days > 1 {
			v += fmt.Sprintf(" +%dd", days-1)
		}
		return v
	case fieldFrame:
		if s.Frame == frame.Fixed {
			return "Earth-fixed"
		}
		return "inertial"
	case fieldDataset1D:
		return parameterName(s.Dataset1D)
	case fieldDataset3D:
		return parameterName(s.Dataset3D)
	case fieldPalette1D:
		return s.Palette1D
	case fieldPalette3D:
		return s.Palette3D
	case fieldFormation:
		if s.FormationVisible {
			return "shown"
		}
		return "hidden"
	}
	return ""
}

func parameterName(id string) string {
	p, ok, err := datasource.LookupParameter(id)
	if err != nil {
		return id
	}
	if !ok {
		return "none"
	}
	return fmt.Sprintf("%s (%s)", p.Name, p.Units)
}
