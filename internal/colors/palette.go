// Package colors maps scalar series onto color palettes.
package colors

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// DefaultShades is the number of entries generated per palette.
const DefaultShades = 250

// DefaultPalette is used when no palette is selected.
const DefaultPalette = "bluered"

// Alpha values for neutral gray, by use.
const (
	PathAlpha    = 0.7
	WhiskerAlpha = 0.3
)

// RGBA is a color with channels in [0, 1].
type RGBA struct {
	R, G, B, A float64
}

// Gray returns the neutral gray used for absent or degenerate values.
func Gray(alpha float64) RGBA {
	return RGBA{R: 0.5, G: 0.5, B: 0.5, A: alpha}
}

// Hex returns the color as #rrggbb, ignoring alpha.
func (c RGBA) Hex() string {
	return colorful.Color{R: c.R, G: c.G, B: c.B}.Clamped().Hex()
}

// WithAlpha returns c with its alpha replaced.
func (c RGBA) WithAlpha(a float64) RGBA {
	c.A = a
	return c
}

// Palette is an ordered list of colors from low to high values.
type Palette []RGBA

// stop is a gradient control point; rgb channels are 0-255.
type stop struct {
	at  float64
	rgb [3]float64
}

var gradients = map[string][]stop{
	"bluered": {
		{0, [3]float64{0, 0, 255}},
		{1, [3]float64{255, 0, 0}},
	},
	"cool": {
		{0, [3]float64{0, 255, 255}},
		{1, [3]float64{255, 0, 255}},
	},
	"spring": {
		{0, [3]float64{255, 0, 255}},
		{1, [3]float64{255, 255, 0}},
	},
	"viridis": {
		{0, [3]float64{68, 1, 84}},
		{0.13, [3]float64{71, 44, 122}},
		{0.25, [3]float64{59, 81, 139}},
		{0.38, [3]float64{44, 113, 142}},
		{0.5, [3]float64{33, 144, 141}},
		{0.63, [3]float64{39, 173, 129}},
		{0.75, [3]float64{92, 200, 99}},
		{0.88, [3]float64{170, 220, 50}},
		{1, [3]float64{253, 231, 37}},
	},
	"inferno": {
		{0, [3]float64{0, 0, 4}},
		{0.13, [3]float64{31, 12, 72}},
		{0.25, [3]float64{85, 15, 109}},
		{0.38, [3]float64{136, 34, 106}},
		{0.5, [3]float64{186, 54, 85}},
		{0.63, [3]float64{227, 89, 51}},
		{0.75, [3]float64{249, 140, 10}},
		{0.88, [3]float64{249, 201, 50}},
		{1, [3]float64{252, 255, 164}},
	},
	"plasma": {
		{0, [3]float64{13, 8, 135}},
		{0.13, [3]float64{75, 3, 161}},
		{0.25, [3]float64{125, 3, 168}},
		{0.38, [3]float64{168, 34, 150}},
		{0.5, [3]float64{203, 70, 121}},
		{0.63, [3]float64{229, 107, 93}},
		{0.75, [3]float64{248, 148, 65}},
		{0.88, [3]float64{253, 195, 40}},
		{1, [3]float64{240, 249, 33}},
	},
}

// Names returns the catalog palette names in sorted order.
func Names() []string {
	names := make([]string, 0, len(gradients))
	for name := range gradients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup builds the named palette with the given number of shades.
// Shades below 2 are raised to 2.
func Lookup(name string, shades int) (Palette, error) {
	stops, ok := gradients[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPalette, name)
	}
	if shades < 2 {
		shades = 2
	}

	p := make(Palette, shades)
	for i := range p {
		t := float64(i) / float64(shades-1)
		p[i] = sample(stops, t)
	}
	return p, nil
}

// MustLookup is Lookup for catalog names known at compile time.
func MustLookup(name string) Palette {
	p, err := Lookup(name, DefaultShades)
	if err != nil {
		panic(err)
	}
	return p
}

func sample(stops []stop, t float64) RGBA {
	i := sort.Search(len(stops), func(i int) bool { return stops[i].at >= t })
	if i == 0 {
		return fromStop(stops[0])
	}
	if i >= len(stops) {
		return fromStop(stops[len(stops)-1])
	}

	lo, hi := stops[i-1], stops[i]
	f := (t - lo.at) / (hi.at - lo.at)
	c := toColorful(lo).BlendRgb(toColorful(hi), f)
	return RGBA{R: c.R, G: c.G, B: c.B, A: 1}
}

func toColorful(s stop) colorful.Color {
	return colorful.Color{R: s.rgb[0] / 255, G: s.rgb[1] / 255, B: s.rgb[2] / 255}
}

func fromStop(s stop) RGBA {
	c := toColorful(s)
	return RGBA{R: c.R, G: c.G, B: c.B, A: 1}
}

// lerp blends two colors channel by channel, alpha included.
func lerp(a, b RGBA, f float64) RGBA {
	return RGBA{
		R: a.R + (b.R-a.R)*f,
		G: a.G + (b.G-a.G)*f,
		B: a.B + (b.B-a.B)*f,
		A: a.A + (b.A-a.A)*f,
	}
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
