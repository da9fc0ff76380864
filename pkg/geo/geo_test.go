package geo

import (
	"math"
	"testing"
)

func TestDistanceKm(t *testing.T) {
	tests := []struct {
		name string
		a    Point
		b    Point
		want float64
	}{
		{"shanghai block", Point{31.23, 121.47}, Point{31.24, 121.48}, 1.4630},
		{"one degree on equator", Point{0, 0}, Point{0, 1}, 111.1949},
		{"london to paris", Point{51.5074, -0.1278}, Point{48.8566, 2.3522}, 343.5561},
		{"same point", Point{10, 10}, Point{10, 10}, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := DistanceKm(tc.a, tc.b)
			if tc.want == 0 {
				if got != 0 {
					t.Fatalf("DistanceKm(%v, %v) = %v, want 0", tc.a, tc.b, got)
				}
				return
			}
			// 0.1% tolerance, matching the gameplay precision contract.
			if math.Abs(got-tc.want)/tc.want > 0.001 {
				t.Errorf("DistanceKm(%v, %v) = %v, want %v ±0.1%%", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestDistanceKmSymmetric(t *testing.T) {
	a := Point{31.23, 121.47}
	b := Point{30.0, 120.0}
	if DistanceKm(a, b) != DistanceKm(b, a) {
		t.Error("distance is not symmetric")
	}
}
