package geom

import (
	"math"
	"testing"
)

const eps = 1e-9

func near(a, b float64) bool { return math.Abs(a-b) < eps }

func TestVector_Arithmetic(t *testing.T) {
	a := Vec(1, 2)
	b := Vec(4, -6)

	if got := a.Add(b); got != Vec(5, -4) {
		t.Errorf("Add failed: got %v", got)
	}
	if got := b.Sub(a); got != Vec(3, -8) {
		t.Errorf("Sub failed: got %v", got)
	}
	if got := a.Scale(-2); got != Vec(-2, -4) {
		t.Errorf("Scale failed: got %v", got)
	}
	if got := a.Dot(b); got != -8 {
		t.Errorf("Dot failed: got %v", got)
	}
}

func TestVector_Magnitude(t *testing.T) {
	tests := []struct {
		v        Vector2
		expected float64
	}{
		{Vec(3, 4), 5},
		{Vec(-3, -4), 5},
		{Vec(0, 0), 0},
		{Vec(0, -2), 2},
	}

	for _, tt := range tests {
		if got := tt.v.Magnitude(); !near(got, tt.expected) {
			t.Errorf("Magnitude(%v) = %v, want %v", tt.v, got, tt.expected)
		}
	}
}

func TestVector_Angle(t *testing.T) {
	tests := []struct {
		v        Vector2
		expected float64
	}{
		{Vec(1, 0), 0},
		{Vec(0, 1), math.Pi / 2},
		{Vec(-1, 0), math.Pi},
		{Vec(0, -1), -math.Pi / 2},
		{Vec(1, 1), math.Pi / 4},
	}

	for _, tt := range tests {
		if got := tt.v.Angle(); !near(got, tt.expected) {
			t.Errorf("Angle(%v) = %v, want %v", tt.v, got, tt.expected)
		}
	}
}

func TestVector_Normalize(t *testing.T) {
	vectors := []Vector2{Vec(3, 4), Vec(-0.001, 0.002), Vec(1e6, -1e6), Vec(0, -7)}
	for _, v := range vectors {
		n := v.Normalize()
		if !near(n.Magnitude(), 1) {
			t.Errorf("Normalize(%v) magnitude = %v, want 1", v, n.Magnitude())
		}
		if !near(n.Angle(), v.Angle()) {
			t.Errorf("Normalize(%v) angle = %v, want %v", v, n.Angle(), v.Angle())
		}
	}
}

func TestVector_NormalizeZero(t *testing.T) {
	n := Zero.Normalize()
	if !n.IsZero() {
		t.Errorf("Normalize(zero) = %v, want zero", n)
	}
	if !n.IsValid() {
		t.Error("Normalize(zero) produced NaN/Inf")
	}
}

func TestRotateVector_RoundTrip(t *testing.T) {
	vectors := []Vector2{Vec(1, 0), Vec(3, -4), Vec(-2.5, 7.25), Zero}
	angles := []float64{0, 0.1, math.Pi / 2, -math.Pi, 3.7, -12.4}

	for _, v := range vectors {
		for _, a := range angles {
			got := RotateVector(RotateVector(v, a), -a)
			if !near(got.X, v.X) || !near(got.Y, v.Y) {
				t.Errorf("round trip of %v by %v = %v", v, a, got)
			}
		}
	}
}

func TestRotateVector_QuarterTurn(t *testing.T) {
	got := RotateVector(Vec(1, 0), math.Pi/2)
	if !near(got.X, 0) || !near(got.Y, 1) {
		t.Errorf("expected (0, 1), got %v", got)
	}
}

func TestWrapAngle(t *testing.T) {
	tests := []struct {
		in, expected float64
	}{
		{0, 0},
		{math.Pi, math.Pi},
		{-math.Pi, math.Pi},
		{3 * math.Pi / 2, -math.Pi / 2},
		{-3 * math.Pi / 2, math.Pi / 2},
		{DegToRad(-340), DegToRad(20)},
	}

	for _, tt := range tests {
		if got := WrapAngle(tt.in); !near(got, tt.expected) {
			t.Errorf("WrapAngle(%v) = %v, want %v", tt.in, got, tt.expected)
		}
	}
}

func TestShortestTarget(t *testing.T) {
	tests := []struct {
		name            string
		current, target float64
		expectedTarget  float64
	}{
		{"across the seam", DegToRad(170), DegToRad(-170), DegToRad(190)},
		{"other side of the seam", DegToRad(-170), DegToRad(170), DegToRad(-190)},
		{"short way already", DegToRad(10), DegToRad(80), DegToRad(80)},
		{"long raw distance", DegToRad(10), DegToRad(200), DegToRad(-160)},
		{"wound up heading", DegToRad(720 + 30), DegToRad(0), DegToRad(720)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ShortestTarget(tt.current, tt.target)
			if !near(got, tt.expectedTarget) {
				t.Errorf("ShortestTarget = %v°, want %v°", RadToDeg(got), RadToDeg(tt.expectedTarget))
			}
			if math.Abs(got-tt.current) > math.Pi+eps {
				t.Errorf("turn of %v° is longer than half a turn", RadToDeg(got-tt.current))
			}
		})
	}
}

func TestFrameConversion(t *testing.T) {
	forward := Vec(0, 1)

	// Facing +x: local forward is global +x.
	got := LocalToGlobal(forward, 0)
	if !near(got.X, 1) || !near(got.Y, 0) {
		t.Errorf("heading 0: expected (1, 0), got %v", got)
	}

	// Facing +y: local and global agree.
	got = LocalToGlobal(Vec(2, 3), math.Pi/2)
	if !near(got.X, 2) || !near(got.Y, 3) {
		t.Errorf("heading 90°: expected (2, 3), got %v", got)
	}

	for _, h := range []float64{0, 1, -2, 4} {
		v := Vec(1.5, -0.5)
		back := GlobalToLocal(LocalToGlobal(v, h), h)
		if !near(back.X, v.X) || !near(back.Y, v.Y) {
			t.Errorf("frame round trip at %v: got %v", h, back)
		}
	}
}

func TestDegRad(t *testing.T) {
	if !near(DegToRad(180), math.Pi) {
		t.Error("DegToRad(180) != pi")
	}
	if !near(RadToDeg(math.Pi/2), 90) {
		t.Error("RadToDeg(pi/2) != 90")
	}
}
