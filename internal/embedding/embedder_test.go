package embedding

import (
	"math"
	"testing"
)

func TestNormalize_UnitLength(t *testing.T) {
	cases := [][]float32{
		{3, 4},
		{1, 0, 0},
		{0.2, -0.7, 0.1, 0.9},
	}
	for _, v := range cases {
		n := Normalize(append([]float32(nil), v...))
		var sum float64
		for _, x := range n {
			sum += float64(x) * float64(x)
		}
		if math.Abs(math.Sqrt(sum)-1.0) > 1e-6 {
			t.Errorf("Normalize(%v) has length %f, want 1", v, math.Sqrt(sum))
		}
	}
}

func TestNormalize_ZeroVector(t *testing.T) {
	v := []float32{0, 0, 0}
	n := Normalize(v)
	for i, x := range n {
		if x != 0 {
			t.Errorf("Normalize(zero)[%d] = %f, want 0", i, x)
		}
	}
}

func TestToFloat32(t *testing.T) {
	f64 := []float64{0.5, -1.25, 2.0}
	f32 := toFloat32(f64)
	if len(f32) != 3 {
		t.Fatalf("expected 3 elements, got %d", len(f32))
	}
	for i := range f64 {
		if float64(f32[i]) != f64[i] {
			t.Errorf("element %d = %f, want %f", i, f32[i], f64[i])
		}
	}
}
