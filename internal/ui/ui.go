// Package ui provides the terminal user interface using Bubble Tea.
package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/litescript/ls-mms/internal/colors"
	"github.com/litescript/ls-mms/internal/scene"
	"github.com/litescript/ls-mms/internal/state"
	"github.com/litescript/ls-mms/internal/version"
	"github.com/litescript/ls-mms/internal/viewer"
)

// ViewMode represents the viewer shown in the orbit pane.
type ViewMode int

const (
	ViewMain ViewMode = iota
	ViewFormation
)

// panelWidth is the width of the left column.
const panelWidth = 52

// Controller is the part of the viewer controller the UI drives.
type Controller interface {
	Apply(ctx context.Context, desired viewer.Settings) (viewer.Action, error)
	Tick(dt time.Duration)
	Main() scene.Scene
	Formation() scene.Scene
	Target() (viewer.Settings, bool)
	State() *state.Manager
}

// Msg types for Bubble Tea
type (
	// TickMsg advances the simulation clock and refreshes status.
	TickMsg time.Time

	// appliedMsg carries the outcome of an Apply.
	appliedMsg struct {
		action viewer.Action
		err    error
	}
)

// Model is the root Bubble Tea model.
type Model struct {
	ctx  context.Context
	ctrl Controller

	// UI state
	viewMode ViewMode
	width    int
	height   int
	ready    bool
	animTick int
	lastTick time.Time
	applying int // Applies in flight
	status   string

	// Sub-models
	panel     ControlPanelModel
	mainView  OrbitViewModel
	formation OrbitViewModel

	snapshot state.Snapshot
}

// New creates a root UI model starting from initial. latest bounds date
// selection.
func New(ctx context.Context, ctrl Controller, initial viewer.Settings, latest time.Time) Model {
	applied := initial
	if target, ok := ctrl.Target(); ok {
		applied = target
	}
	return Model{
		ctx:       ctx,
		ctrl:      ctrl,
		viewMode:  ViewMain,
		panel:     NewControlPanelModel(applied, latest),
		mainView:  NewOrbitViewModel(),
		formation: NewOrbitViewModel(),
	}
}

// Init implements tea.Model. Settings not yet accepted by the controller
// are applied at once.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd()}
	if _, ok := m.ctrl.Target(); !ok {
		cmds = append(cmds, func() tea.Msg { return ApplyMsg{Settings: m.panel.Pending()} })
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.viewMode = (m.viewMode + 1) % 2
		case "+", "=", "-", "0", "z":
			cmds = append(cmds, m.updateActiveView(msg))
		default:
			var cmd tea.Cmd
			m.panel, cmd = m.panel.Update(msg)
			cmds = append(cmds, cmd)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

		// Title takes 3 lines, footer 2
		contentHeight := max(msg.Height-5, 5)
		viewWidth := max(msg.Width-panelWidth-2, 10)
		m.panel = m.panel.SetSize(panelWidth)
		m.mainView = m.mainView.SetSize(viewWidth, contentHeight)
		m.formation = m.formation.SetSize(viewWidth, contentHeight)

	case TickMsg:
		now := time.Time(msg)
		if !m.lastTick.IsZero() {
			dt := now.Sub(m.lastTick)
			// a stalled terminal must not make the clock jump
			m.ctrl.Tick(min(max(dt, 0), time.Second))
		}
		m.lastTick = now
		m.animTick++
		m.snapshot = m.ctrl.State().Snapshot()
		cmds = append(cmds, tickCmd())

	case ApplyMsg:
		m.applying++
		m.status = ""
		cmds = append(cmds, applyCmd(m.ctx, m.ctrl, msg.Settings))

	case appliedMsg:
		m.applying = max(m.applying-1, 0)
		switch {
		case errors.Is(msg.err, viewer.ErrSuperseded):
		case errors.Is(msg.err, viewer.ErrInvalidSettings):
			m.panel = m.panel.SetError(msg.err)
		default:
			if target, ok := m.ctrl.Target(); ok {
				m.panel = m.panel.SetApplied(target)
			}
			if msg.err != nil {
				m.panel = m.panel.SetFailed()
				m.status = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
			} else {
				m.status = fmt.Sprintf("%s done", msg.action)
			}
		}
		m.snapshot = m.ctrl.State().Snapshot()
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) updateActiveView(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch m.viewMode {
	case ViewMain:
		m.mainView, cmd = m.mainView.Update(msg)
	case ViewFormation:
		m.formation, cmd = m.formation.Update(msg)
	}
	return cmd
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	left := lipgloss.NewStyle().Width(panelWidth).Render(
		m.panel.View() + "\n\n" + RenderStatusPanel(m.snapshot, 8))

	var right string
	switch m.viewMode {
	case ViewMain:
		right = m.mainView.View(m.ctrl.Main(), "No viewer yet")
	case ViewFormation:
		right = m.formation.View(m.ctrl.Formation(), "Formation view hidden (f, then enter)")
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right)
	return m.renderHeader() + "\n" + body + "\n" + m.renderFooter()
}

func (m Model) renderHeader() string {
	return m.renderTitle() + "\n" + m.renderTabs()
}

// renderTitle draws the name with the default palette as a gradient.
func (m Model) renderTitle() string {
	title := []rune("  LS-MMS  Magnetospheric Multiscale orbit viewer")
	pal := colors.MustLookup(colors.DefaultPalette)

	var b strings.Builder
	for i, r := range title {
		c := pal[i*(len(pal)-1)/max(len(title)-1, 1)]
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(c.Hex())).Bold(true).Render(string(r)))
	}
	b.WriteString(dimStyle.Render(fmt.Sprintf("  v%s", version.Version)))
	return b.String()
}

func (m Model) renderTabs() string {
	tabs := []string{"Main", "Formation"}
	activeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#9D4EDD")).Bold(true)

	var parts []string
	for i, tab := range tabs {
		if ViewMode(i) == m.viewMode {
			parts = append(parts, activeStyle.Render("▶ "+tab))
		} else {
			parts = append(parts, dimStyle.Render("  "+tab))
		}
	}
	return "  " + strings.Join(parts, "  ")
}

func (m Model) renderFooter() string {
	accentStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#7B2CBF"))

	// Animated spinner frames
	spinnerFrames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

	var status string
	switch {
	case m.applying > 0:
		status = accentStyle.Render(spinnerFrames[m.animTick%len(spinnerFrames)]) + dimStyle.Render(" loading...")
	case m.status != "":
		status = dimStyle.Render(m.status)
	default:
		status = dimStyle.Render("idle")
	}

	help := dimStyle.Render("↑↓: field | ←→: change | f: formation | enter: apply | r: revert | tab: view | +/-: zoom | z: scale | q: quit")
	return "  " + status + "  " + dimStyle.Render("|") + "  " + help
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func applyCmd(ctx context.Context, ctrl Controller, s viewer.Settings) tea.Cmd {
	return func() tea.Msg {
		action, err := ctrl.Apply(ctx, s)
		return appliedMsg{action: action, err: err}
	}
}
