package geo

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
)

var (
	dhaka      = orb.Point{90.4125, 23.8103}
	chittagong = orb.Point{91.7832, 22.3569}
	sylhet     = orb.Point{91.8687, 24.8949}
)

func TestDistanceIdentityAndSymmetry(t *testing.T) {
	pts := []orb.Point{dhaka, chittagong, sylhet, {0, 0}, {-179.9, -89.9}, {179.9, 89.9}}
	for _, a := range pts {
		assert.Equal(t, 0.0, Distance(a, a))
		for _, b := range pts {
			assert.Equal(t, Distance(a, b), Distance(b, a))
		}
	}
}

func TestDistanceKnownValues(t *testing.T) {
	// one degree of latitude on a 6,371 km sphere
	assert.InDelta(t, 111194.93, Distance(orb.Point{90, 23}, orb.Point{90, 24}), 0.01)
	assert.InDelta(t, 213952, Distance(dhaka, chittagong), 1)
	assert.InDelta(t, math.Pi*EarthRadiusMeters, Distance(orb.Point{0, 0}, orb.Point{180, 0}), 1e-6)
}

func TestBearingNormalized(t *testing.T) {
	assert.InDelta(t, 0, Bearing(orb.Point{90, 23}, orb.Point{90, 24}), 1e-9)
	assert.InDelta(t, 180, Bearing(orb.Point{90, 24}, orb.Point{90, 23}), 1e-9)
	w := Bearing(orb.Point{91, 0}, orb.Point{90, 0})
	assert.InDelta(t, 270, w, 1e-9)
	for _, p := range []orb.Point{chittagong, sylhet, {80, 30}, {100, 10}} {
		b := Bearing(dhaka, p)
		assert.GreaterOrEqual(t, b, 0.0)
		assert.Less(t, b, 360.0)
	}
}

func TestBucketOf(t *testing.T) {
	cases := []struct {
		bearing  float64
		expected Direction
	}{
		{0, North},
		{22.4, North},
		{22.5, NorthEast},
		{45, NorthEast},
		{90, East},
		{135, SouthEast},
		{180, South},
		{225, SouthWest},
		{270, West},
		{315, NorthWest},
		{337.4, NorthWest},
		{337.5, North},
		{359.9, North},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.expected, BucketOf(tc.bearing), "bearing %v", tc.bearing)
	}
}

func TestDueNorth(t *testing.T) {
	assert.Equal(t, North, BucketOf(Bearing(orb.Point{90, 23}, orb.Point{90, 24})))
	assert.Equal(t, "north", North.Name())
}

func TestCellKey(t *testing.T) {
	k := CellKey(dhaka, 0)
	assert.Len(t, k, 7)
	assert.Equal(t, k, CellKey(orb.Point{90.41251, 23.81031}, 7))
	assert.NotEqual(t, k, CellKey(chittagong, 7))
	assert.Len(t, CellKey(dhaka, 5), 5)
}
