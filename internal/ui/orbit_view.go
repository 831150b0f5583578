package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/litescript/ls-mms/internal/astro"
	"github.com/litescript/ls-mms/internal/scene"
)

// renderer is a scene that can draw itself into the terminal.
type renderer interface {
	Render(v scene.View) string
}

// OrbitViewModel draws one viewer's scene top-down.
type OrbitViewModel struct {
	width     int
	height    int
	zoomLevel int // Index into zoomLevels
	scaleMode astro.ScaleMode
}

// Discrete zoom levels for clean stepping
var zoomLevels = []float64{0.25, 0.5, 0.75, 1.0, 1.5, 2.0, 3.0, 5.0, 10.0}

// NewOrbitViewModel creates an orbit view at zoom 1 with linear scaling.
func NewOrbitViewModel() OrbitViewModel {
	return OrbitViewModel{
		zoomLevel: 3, // Index of 1.0 in zoomLevels
		scaleMode: astro.ScaleLinear,
	}
}

// scale returns the current zoom scale.
func (m OrbitViewModel) scale() float64 {
	if m.zoomLevel < 0 || m.zoomLevel >= len(zoomLevels) {
		return 1.0
	}
	return zoomLevels[m.zoomLevel]
}

// SetSize updates the viewport size.
func (m OrbitViewModel) SetSize(width, height int) OrbitViewModel {
	m.width = width
	m.height = height
	return m
}

// Update handles input messages.
func (m OrbitViewModel) Update(msg tea.Msg) (OrbitViewModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "+", "=":
			if m.zoomLevel < len(zoomLevels)-1 {
				m.zoomLevel++
			}
		case "-":
			if m.zoomLevel > 0 {
				m.zoomLevel--
			}
		case "0":
			m.zoomLevel = 3
		case "z":
			if m.scaleMode == astro.ScaleLinear {
				m.scaleMode = astro.ScaleLogR
			} else {
				m.scaleMode = astro.ScaleLinear
			}
		}
	}
	return m, nil
}

// View renders sc, or placeholder when there is nothing drawable.
func (m OrbitViewModel) View(sc scene.Scene, placeholder string) string {
	r, ok := sc.(renderer)
	if sc == nil || !ok || sc.Destroyed() {
		return dimStyle.Render(placeholder)
	}
	// leave a line for the scene's HUD
	return r.Render(scene.View{
		Width:  m.width,
		Height: m.height - 1,
		Mode:   m.scaleMode,
		Zoom:   m.scale(),
	})
}
