// Package scoring is the shared proximity scoring library: accessibility and the combined rank.
package scoring

import (
	"strings"

	"health-geo/internal/models"
)

const (
	accessibilityBase     = 50
	roadAccessBonus       = 20
	publicTransportBonus  = 20
	transportOptionBonus  = 5
	maxAccessibilityScore = 100

	distanceWeight      = 0.6
	accessibilityWeight = 40.0
)

// Accessibility scores a facility's accessibility record in [0,100]: base 50, +20 for road
// access, +20 for public transport, +5 per distinct transport option, clamped.
func Accessibility(a models.Accessibility) int {
	score := accessibilityBase
	if a.RoadAccess {
		score += roadAccessBonus
	}
	if a.PublicTransport {
		score += publicTransportBonus
	}
	score += transportOptionBonus * DistinctOptions(a.TransportOptions)
	if score > maxAccessibilityScore {
		score = maxAccessibilityScore
	}
	if score < 0 {
		score = 0
	}
	return score
}

// DistinctOptions counts transport options after trimming and case folding; blanks are ignored.
func DistinctOptions(opts []string) int {
	seen := make(map[string]struct{}, len(opts))
	for _, o := range opts {
		k := strings.ToLower(strings.TrimSpace(o))
		if k == "" {
			continue
		}
		seen[k] = struct{}{}
	}
	return len(seen)
}

// Combined is the ranking key, lower is better: 0.6*distance + 40*(100-accessibility).
// Distance in meters dominates the accessibility term; the weighting is kept as is for parity
// with existing rankings.
func Combined(distanceMeters float64, accessibility int) float64 {
	return distanceWeight*distanceMeters + accessibilityWeight*float64(maxAccessibilityScore-accessibility)
}
