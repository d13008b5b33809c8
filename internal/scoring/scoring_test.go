package scoring

import (
	"fmt"
	"testing"

	"health-geo/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestAccessibility(t *testing.T) {
	cases := []struct {
		name     string
		in       models.Accessibility
		expected int
	}{
		{"base", models.Accessibility{}, 50},
		{"road", models.Accessibility{RoadAccess: true}, 70},
		{"transport", models.Accessibility{PublicTransport: true}, 70},
		{"both", models.Accessibility{RoadAccess: true, PublicTransport: true}, 90},
		{"options", models.Accessibility{TransportOptions: []string{"bus", "rickshaw"}}, 60},
		{"duplicates folded", models.Accessibility{TransportOptions: []string{"Bus", " bus ", "BUS", ""}}, 55},
		{"clamped", models.Accessibility{RoadAccess: true, PublicTransport: true, TransportOptions: []string{"bus", "cng", "boat"}}, 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Accessibility(tc.in))
		})
	}
}

func TestAccessibilityClampsManyOptions(t *testing.T) {
	opts := make([]string, 0, 25)
	for i := 0; i < 25; i++ {
		opts = append(opts, fmt.Sprintf("mode-%d", i))
	}
	for _, a := range []models.Accessibility{
		{TransportOptions: opts},
		{RoadAccess: true, TransportOptions: opts},
		{RoadAccess: true, PublicTransport: true, TransportOptions: opts},
	} {
		s := Accessibility(a)
		assert.GreaterOrEqual(t, s, 0)
		assert.LessOrEqual(t, s, 100)
		assert.Equal(t, 100, s)
	}
}

func TestCombined(t *testing.T) {
	a := Combined(500, 50)
	b := Combined(1500, 100)
	assert.Equal(t, 2300.0, a)
	assert.Equal(t, 900.0, b)
	assert.Less(t, b, a)
	assert.Equal(t, 4000.0, Combined(0, 0))
}
