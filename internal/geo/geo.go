// Package geo is the single home for distance, bearing and cell-key math.
package geo

import (
	"math"

	"github.com/mmcloughlin/geohash"
	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// EarthRadiusMeters is the mean radius used by Distance. orb.EarthRadius differs and is not used.
const EarthRadiusMeters = 6371000.0

func deg2rad(d float64) float64 { return d * math.Pi / 180 }

// Distance is the haversine great-circle distance in meters between two [lon, lat] points.
func Distance(a, b orb.Point) float64 {
	phi1 := deg2rad(a[1])
	phi2 := deg2rad(b[1])
	dPhi := deg2rad(b[1] - a[1])
	dLambda := deg2rad(b[0] - a[0])

	s1 := math.Sin(dPhi / 2)
	s2 := math.Sin(dLambda / 2)
	h := s1*s1 + math.Cos(phi1)*math.Cos(phi2)*s2*s2
	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Bearing is the initial compass bearing from -> to in degrees, normalized to [0,360).
func Bearing(from, to orb.Point) float64 {
	b := math.Mod(orbgeo.Bearing(from, to)+360, 360)
	if b >= 360 {
		b = 0
	}
	return b
}

// Direction is one of eight compass buckets.
type Direction string

const (
	North     Direction = "N"
	NorthEast Direction = "NE"
	East      Direction = "E"
	SouthEast Direction = "SE"
	South     Direction = "S"
	SouthWest Direction = "SW"
	West      Direction = "W"
	NorthWest Direction = "NW"
)

var buckets = [8]Direction{North, NorthEast, East, SouthEast, South, SouthWest, West, NorthWest}

// BucketOf maps a bearing to round(bearing/45) mod 8. Halfway values round away from zero.
func BucketOf(bearing float64) Direction {
	i := int(math.Round(bearing/45)) % 8
	if i < 0 {
		i += 8
	}
	return buckets[i]
}

// Name is the long form used in textual instructions.
func (d Direction) Name() string {
	switch d {
	case North:
		return "north"
	case NorthEast:
		return "northeast"
	case East:
		return "east"
	case SouthEast:
		return "southeast"
	case South:
		return "south"
	case SouthWest:
		return "southwest"
	case West:
		return "west"
	case NorthWest:
		return "northwest"
	}
	return string(d)
}

// CellKey quantizes a point to a geohash cell; precision 7 is about 150 m.
func CellKey(p orb.Point, precision uint) string {
	if precision == 0 {
		precision = 7
	}
	return geohash.EncodeWithPrecision(p[1], p[0], precision)
}
