package discovery

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"health-geo/internal/geo"

	"github.com/paulmach/orb"
)

var ErrUnknownMode = errors.New("unknown travel mode")

// Mode is a travel mode for straight-line time estimates.
type Mode string

const (
	Walking Mode = "walking"
	Cycling Mode = "cycling"
	Driving Mode = "driving"
	Transit Mode = "transit"
)

var speedsKmh = map[Mode]float64{Walking: 5, Cycling: 15, Driving: 40, Transit: 25}

// ParseMode accepts the mode names case-insensitively; empty means walking.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if m == "" {
		return Walking, nil
	}
	if _, ok := speedsKmh[m]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
	return m, nil
}

// Directions is a straight-line estimate; no road network is consulted.
type Directions struct {
	DistanceMeters   float64       `json:"distanceMeters"`
	Bearing          float64       `json:"bearing"`
	Bucket           geo.Direction `json:"direction"`
	Mode             Mode          `json:"mode"`
	EstimatedMinutes int           `json:"estimatedMinutes"`
	Instructions     []string      `json:"instructions"`
}

// Direct computes distance, bearing and a time estimate from -> to.
func Direct(from, to orb.Point, mode Mode) (Directions, error) {
	if err := checkOrigin(from); err != nil {
		return Directions{}, err
	}
	if err := checkOrigin(to); err != nil {
		return Directions{}, fmt.Errorf("destination: %w", err)
	}
	if mode == "" {
		mode = Walking
	}
	kmh, ok := speedsKmh[mode]
	if !ok {
		return Directions{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	d := geo.Distance(from, to)
	b := geo.Bearing(from, to)
	out := Directions{
		DistanceMeters:   d,
		Bearing:          b,
		Bucket:           geo.BucketOf(b),
		Mode:             mode,
		EstimatedMinutes: int(math.Ceil(d / 1000 / kmh * 60)),
	}
	if d < 1 {
		out.Bucket = geo.North
		out.Instructions = []string{"You are at the destination"}
		return out, nil
	}
	out.Instructions = []string{
		fmt.Sprintf("Head %s (%.0f°) for %s", out.Bucket.Name(), b, formatDistance(d)),
		fmt.Sprintf("Arrive at the destination in about %d min by %s", out.EstimatedMinutes, mode),
	}
	return out, nil
}

func formatDistance(m float64) string {
	if m < 1000 {
		return fmt.Sprintf("%.0f m", m)
	}
	return fmt.Sprintf("%.1f km", m/1000)
}
