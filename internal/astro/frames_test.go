package astro

import (
	"math"
	"testing"
)

func TestVec3Norm(t *testing.T) {
	tests := []struct {
		name string
		v    Vec3
		want float64
	}{
		{"zero", Vec3{0, 0, 0}, 0},
		{"unit x", Vec3{1, 0, 0}, 1},
		{"3-4-5", Vec3{3, 4, 0}, 5},
		{"negative", Vec3{-3, -4, 0}, 5},
		{"3D", Vec3{1, 2, 2}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.v.Norm()
			if math.Abs(got-tt.want) > 1e-10 {
				t.Errorf("Norm() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVec3Normalized(t *testing.T) {
	tests := []struct {
		name string
		v    Vec3
		want Vec3
	}{
		{"unit x", Vec3{5, 0, 0}, Vec3{1, 0, 0}},
		{"diagonal", Vec3{1, 1, 0}, Vec3{1 / math.Sqrt(2), 1 / math.Sqrt(2), 0}},
		{"zero", Vec3{0, 0, 0}, Vec3{0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.v.Normalized()
			if !approxVec(got, tt.want, 1e-10) {
				t.Errorf("Normalized() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVec3Lerp(t *testing.T) {
	a := Vec3{0, 0, 0}
	b := Vec3{10, -20, 4}

	tests := []struct {
		f    float64
		want Vec3
	}{
		{0, a},
		{1, b},
		{0.5, Vec3{5, -10, 2}},
		{0.25, Vec3{2.5, -5, 1}},
	}

	for _, tt := range tests {
		got := a.Lerp(b, tt.f)
		if !approxVec(got, tt.want, 1e-12) {
			t.Errorf("Lerp(%v) = %v, want %v", tt.f, got, tt.want)
		}
	}
}

func TestVec3Dot(t *testing.T) {
	if got := (Vec3{1, 2, 3}).Dot(Vec3{4, -5, 6}); got != 12 {
		t.Errorf("Dot = %v, want 12", got)
	}
}

func TestVec3FromSlice(t *testing.T) {
	v := Vec3{1.5, -2, 3}
	if got := Vec3FromSlice(v.Array()); got != v {
		t.Errorf("Vec3FromSlice(Array()) = %v, want %v", got, v)
	}
	if got := Vec3FromSlice([]float64{1}); got != (Vec3{}) {
		t.Errorf("short slice should give zero vector, got %v", got)
	}
}

func TestKmToMeters(t *testing.T) {
	got := KmToMeters(Vec3{1, -2, 0.5})
	want := Vec3{1000, -2000, 500}
	if !approxVec(got, want, 1e-9) {
		t.Errorf("KmToMeters = %v, want %v", got, want)
	}
}

func TestProjectTopDown(t *testing.T) {
	cfg := DefaultProjectionConfig()

	tests := []struct {
		name  string
		v     Vec3
		wantX float64
		wantY float64
	}{
		{"origin", Vec3{}, 0, 0},
		{"+x one radius", Vec3{EarthRadius, 0, 0}, 1, 0},
		{"+y two radii", Vec3{0, 2 * EarthRadius, 0}, 0, 2},
		{"-x with z offset", Vec3{-3 * EarthRadius, 0, EarthRadius}, -3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ProjectTopDown(tt.v, cfg)
			if math.Abs(p.X-tt.wantX) > 1e-9 || math.Abs(p.Y-tt.wantY) > 1e-9 {
				t.Errorf("ProjectTopDown = (%v, %v), want (%v, %v)", p.X, p.Y, tt.wantX, tt.wantY)
			}
		})
	}
}

func TestProjectTopDownLog(t *testing.T) {
	cfg := ProjectionConfig{Scale: 1, Mode: ScaleLogR}
	p := ProjectTopDown(Vec3{9 * EarthRadius, 0, 0}, cfg)
	if math.Abs(p.X-1) > 1e-9 {
		t.Errorf("log projection of 9 Re = %v, want 1", p.X)
	}
	if math.Abs(p.R-9) > 1e-9 {
		t.Errorf("R = %v, want 9", p.R)
	}
}

func approxVec(a, b Vec3, tol float64) bool {
	return math.Abs(a.X-b.X) <= tol && math.Abs(a.Y-b.Y) <= tol && math.Abs(a.Z-b.Z) <= tol
}
