package trigger

import (
	"math"
	"testing"
)

func TestHaversineDistance(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
		tolerance              float64
	}{
		{"same point", 40.7580, -73.9855, 40.7580, -73.9855, 0, 0.001},
		// One degree of longitude on the equator
		{"equator degree", 0, 0, 0, 1, 111194.93, 1},
		// ~997m north-south step
		{"just under a kilometer", 0, 0, 0.008970, 0, 997.42, 0.5},
		// ~1001m north-south step
		{"just over a kilometer", 0, 0, 0.009002, 0, 1000.97, 0.5},
		{"antipodal points", 0, 0, 0, 180, math.Pi * earthRadiusM, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineDistance(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("HaversineDistance() = %.3f, want %.3f ± %.3f", got, tt.want, tt.tolerance)
			}
		})
	}
}

func TestHaversineDistance_Symmetric(t *testing.T) {
	ab := HaversineDistance(40.7580, -73.9855, 40.7484, -73.9857)
	ba := HaversineDistance(40.7484, -73.9857, 40.7580, -73.9855)
	if math.Abs(ab-ba) > 1e-9 {
		t.Errorf("distance must be symmetric: %.9f vs %.9f", ab, ba)
	}
}
