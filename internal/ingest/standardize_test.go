package ingest

import (
	"testing"

	"health-geo/internal/models"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square(minLon, minLat, maxLon, maxLat float64) orb.Polygon {
	return orb.Polygon{{{minLon, minLat}, {maxLon, minLat}, {maxLon, maxLat}, {minLon, maxLat}, {minLon, minLat}}}
}

func testBoundaries() []models.Boundary {
	return []models.Boundary{
		models.NewBoundary("dhaka", "Dhaka", "district", models.Admin{District: "Dhaka", Division: "Dhaka"},
			square(90.10, 23.55, 90.55, 23.95), "test", testTime),
		models.NewBoundary("savar", "Savar", "upazila", models.Admin{Upazila: "Savar", District: "Dhaka", Division: "Dhaka"},
			square(90.15, 23.80, 90.33, 23.95), "test", testTime),
	}
}

func TestStandardizeDedupesNearbySameName(t *testing.T) {
	curated := []models.Facility{{
		ID: "c1", Name: "Dhaka Medical College Hospital", Type: models.FacilityHospital,
		Location: models.NewPoint(90.3976, 23.7258), Verified: true,
		Services: []string{"Emergency"},
	}}
	osm := []models.Facility{
		{
			ID: "o1", Name: "  dhaka medical college   hospital", Type: models.FacilityHospital,
			Location: models.NewPoint(90.39772, 23.72585),
			Contact:  models.Contact{Phone: "+880255165001"}, Services: []string{"emergency", "Burn unit"},
		},
		{ID: "o2", Name: "Dhaka Medical College Hospital", Type: models.FacilityHospital, Location: models.NewPoint(90.41, 23.74)},
		{ID: "o3", Name: "Square Hospital", Type: models.FacilityHospital, Location: models.NewPoint(90.3763, 23.7516)},
	}

	out := Standardize(curated, osm, nil, 0)
	require.Len(t, out, 3)
	assert.Equal(t, "c1", out[0].ID)
	assert.Equal(t, "+880255165001", out[0].Contact.Phone)
	assert.Equal(t, []string{"Emergency", "Burn unit"}, out[0].Services)
	assert.Equal(t, "o2", out[1].ID)
	assert.Equal(t, "o3", out[2].ID)
}

func TestStandardizePrefersVerified(t *testing.T) {
	curated := []models.Facility{{ID: "c1", Name: "Clinic", Type: models.FacilityClinic, Location: models.NewPoint(90.4, 23.7)}}
	osm := []models.Facility{{ID: "o1", Name: "Clinic", Type: models.FacilityClinic, Location: models.NewPoint(90.4, 23.7), Verified: true}}
	out := Standardize(curated, osm, nil, 100)
	require.Len(t, out, 1)
	assert.Equal(t, "o1", out[0].ID)
}

func TestStandardizeFillsAdminFromBoundaries(t *testing.T) {
	curated := []models.Facility{
		{ID: "savar", Name: "Savar UHC", Type: models.FacilityUpazilaHealthComplex, Location: models.NewPoint(90.2667, 23.8583)},
		{ID: "dmch", Name: "DMCH", Type: models.FacilityHospital, Location: models.NewPoint(90.3976, 23.7258), Admin: models.Admin{Upazila: "Kotwali"}},
		{ID: "far", Name: "Sylhet", Type: models.FacilityHospital, Location: models.NewPoint(91.85, 24.90)},
	}
	out := Standardize(curated, nil, testBoundaries(), 100)
	require.Len(t, out, 3)
	assert.Equal(t, models.Admin{Upazila: "Savar", District: "Dhaka", Division: "Dhaka"}, out[0].Admin)
	assert.Equal(t, models.Admin{Upazila: "Kotwali", District: "Dhaka", Division: "Dhaka"}, out[1].Admin)
	assert.True(t, out[2].Admin.Empty())
}

func TestStandardizeDropsRepeatedIDs(t *testing.T) {
	f := models.Facility{ID: "same", Name: "A", Type: models.FacilityClinic, Location: models.NewPoint(90.4, 23.7)}
	g := f
	g.Name = "B"
	g.Location = models.NewPoint(91, 24)
	assert.Len(t, Standardize([]models.Facility{f}, []models.Facility{g}, nil, 100), 1)
}

func TestBoundaryGeocoder(t *testing.T) {
	g := NewBoundaryGeocoder(testBoundaries())

	loc, ok := g.Geocode(models.Admin{Upazila: "SAVAR"})
	require.True(t, ok)
	assert.InDelta(t, 90.24, loc.Lon(), 1e-9)
	assert.InDelta(t, 23.875, loc.Lat(), 1e-9)

	loc, ok = g.Geocode(models.Admin{Upazila: "Nowhere", District: "dhaka"})
	require.True(t, ok)
	assert.InDelta(t, 90.325, loc.Lon(), 1e-9)

	_, ok = g.Geocode(models.Admin{Division: "Sylhet"})
	assert.False(t, ok)
	_, ok = g.Geocode(models.Admin{})
	assert.False(t, ok)
}

func TestLiveGeocoderRefresh(t *testing.T) {
	g := NewLiveGeocoder()
	_, ok := g.Geocode(models.Admin{Upazila: "Savar"})
	assert.False(t, ok)
	g.Refresh(testBoundaries())
	_, ok = g.Geocode(models.Admin{Upazila: "Savar"})
	assert.True(t, ok)
}
