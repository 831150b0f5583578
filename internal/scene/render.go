package scene

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"gonum.org/v1/gonum/mat"

	"github.com/litescript/ls-mms/internal/astro"
	"github.com/litescript/ls-mms/internal/colors"
)

// View sizes and scales a rendering.
type View struct {
	Width  int
	Height int
	Mode   astro.ScaleMode
	Zoom   float64
}

const (
	glyphEarth  = '⊕'
	glyphLimb   = '∘'
	glyphPath   = '•'
	glyphVector = '·'
	glyphTip    = '∙'
	glyphMarker = '◆'
)

// vectorSteps is the number of dots drawn along each whisker.
const vectorSteps = 6

// point is a prepared drawable in model coordinates.
type point struct {
	pos   astro.Vec3
	color colors.RGBA
	glyph rune
}

type cell struct {
	ch  rune
	hex string
}

// prepare flattens paths and whiskers into drawable points.
func prepare(paths []Path, vectors []Segment) []point {
	n := len(vectors) * (vectorSteps + 1)
	for _, p := range paths {
		n += len(p.Positions)
	}
	out := make([]point, 0, n)

	gray := colors.Gray(colors.PathAlpha)
	for _, p := range paths {
		for i, pos := range p.Positions {
			col := gray
			if i < len(p.Colors) {
				col = p.Colors[i]
			}
			out = append(out, point{pos: pos, color: col, glyph: glyphPath})
		}
	}
	for _, v := range vectors {
		for s := 1; s <= vectorSteps; s++ {
			f := float64(s) / vectorSteps
			g := glyphVector
			if s == vectorSteps {
				g = glyphTip
			}
			out = append(out, point{pos: v.Origin.Add(v.Offset.Scale(f)), color: v.Color, glyph: g})
		}
	}
	return out
}

// Render draws the scene top-down onto a character grid with the origin at
// the center. The model rotation is applied to paths, whiskers and markers.
func (c *Canvas) Render(v View) string {
	if v.Width < 10 || v.Height < 5 {
		return "Terminal too small for orbit view"
	}
	if v.Zoom <= 0 {
		v.Zoom = 1
	}

	c.mu.RLock()
	pts := c.prepared
	markers := append([]Marker(nil), c.markers...)
	rot := c.rotation
	camera, hasCamera := c.camera, c.hasCamera
	c.mu.RUnlock()
	now := c.clock.Now()

	cfg := astro.ProjectionConfig{Scale: 1, Mode: v.Mode}
	project := func(p astro.Vec3) astro.ProjectedPoint {
		if rot != nil {
			p = rotate(rot, p)
		}
		return astro.ProjectTopDown(p, cfg)
	}

	// Fit the camera target, or everything, into 90% of the half-width.
	extent := 0.0
	if hasCamera {
		pp := project(camera)
		extent = math.Hypot(pp.X, pp.Y)
	} else {
		for _, p := range pts {
			pp := project(p.pos)
			extent = math.Max(extent, math.Hypot(pp.X, pp.Y))
		}
	}
	earth := astro.ProjectTopDown(astro.Vec3{X: astro.EarthRadius}, cfg).X
	if c.earth {
		extent = math.Max(extent, 1.5*earth)
	}
	if extent == 0 {
		extent = 1
	}

	cx, cy := v.Width/2, v.Height/2
	maxDisplayR := float64(min(cx, cy*2)) * 0.9
	displayScale := maxDisplayR / extent * v.Zoom

	grid := make([][]cell, v.Height)
	for y := range grid {
		grid[y] = make([]cell, v.Width)
		for x := range grid[y] {
			grid[y][x] = cell{ch: ' '}
		}
	}
	plot := func(pp astro.ProjectedPoint, ch rune, hex string, overwrite bool) (int, int, bool) {
		sx := cx + int(math.Round(pp.X*displayScale))
		sy := cy - int(math.Round(pp.Y*displayScale*0.5))
		if sx < 0 || sx >= v.Width || sy < 0 || sy >= v.Height {
			return 0, 0, false
		}
		if overwrite || grid[sy][sx].ch == ' ' {
			grid[sy][sx] = cell{ch: ch, hex: hex}
		}
		return sx, sy, true
	}

	if c.earth {
		drawLimb(grid, cx, cy, earth*displayScale)
		grid[cy][cx] = cell{ch: glyphEarth, hex: "#3b82f6"}
	}

	for _, p := range pts {
		plot(project(p.pos), p.glyph, p.color.Hex(), p.glyph == glyphPath)
	}
	for _, m := range markers {
		pos, ok := m.Loc.PositionAt(now)
		if !ok {
			continue
		}
		sx, sy, ok := plot(project(pos), glyphMarker, m.Color.Hex(), true)
		if !ok {
			continue
		}
		for i, r := range m.Label {
			x := sx + 2 + i
			if x >= v.Width {
				break
			}
			if grid[sy][x].ch == ' ' {
				grid[sy][x] = cell{ch: r, hex: "#d4d4d4"}
			}
		}
	}

	var b strings.Builder
	b.WriteString(renderGrid(grid))
	b.WriteString(c.hud(now, extent))
	return b.String()
}

func (c *Canvas) hud(now time.Time, extent float64) string {
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)

	s := c.Stats()
	var b strings.Builder
	b.WriteString(headerStyle.Render(c.name))
	b.WriteString("  ")
	b.WriteString(dimStyle.Render("Time:"))
	b.WriteString(valueStyle.Render(now.UTC().Format("2006-01-02 15:04:05Z")))
	b.WriteString("  ")
	b.WriteString(dimStyle.Render("Paths:"))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d", s.Paths)))
	b.WriteString("  ")
	b.WriteString(dimStyle.Render("Whiskers:"))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d", s.Vectors)))
	b.WriteString("  ")
	b.WriteString(dimStyle.Render("Extent:"))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%.1f Re", extent)))
	return b.String()
}

func drawLimb(grid [][]cell, cx, cy int, r float64) {
	if r < 1 {
		return
	}
	h, w := len(grid), len(grid[0])
	steps := int(2 * math.Pi * r)
	if steps < 8 {
		steps = 8
	}
	if steps > 360 {
		steps = 360
	}
	for i := 0; i < steps; i++ {
		theta := 2 * math.Pi * float64(i) / float64(steps)
		x := cx + int(r*math.Cos(theta))
		y := cy - int(r*math.Sin(theta)*0.5)
		if x >= 0 && x < w && y >= 0 && y < h && grid[y][x].ch == ' ' {
			grid[y][x] = cell{ch: glyphLimb, hex: "#1e40af"}
		}
	}
}

func renderGrid(grid [][]cell) string {
	var b strings.Builder
	styles := make(map[string]lipgloss.Style)
	for _, row := range grid {
		for _, cl := range row {
			if cl.ch == ' ' || cl.hex == "" {
				b.WriteRune(cl.ch)
				continue
			}
			st, ok := styles[cl.hex]
			if !ok {
				st = lipgloss.NewStyle().Foreground(lipgloss.Color(cl.hex))
				styles[cl.hex] = st
			}
			b.WriteString(st.Render(string(cl.ch)))
		}
		b.WriteRune('\n')
	}
	return b.String()
}

func rotate(m mat.Matrix, p astro.Vec3) astro.Vec3 {
	var out mat.VecDense
	out.MulVec(m, mat.NewVecDense(3, p.Array()))
	return astro.Vec3{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
}
