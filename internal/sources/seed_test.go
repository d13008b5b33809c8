package sources

import (
	"context"
	"testing"

	"health-geo/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedServesEveryCategory(t *testing.T) {
	want := map[models.Category]int{
		models.CategoryFacilities:    12,
		models.CategoryOSMFacilities: 6,
		models.CategoryBoundaries:    7,
		models.CategoryWorkers:       8,
		models.CategoryStandardized:  12,
	}
	s := NewSeed()
	for _, cat := range models.AllCategories {
		b, out := s.Fetch(context.Background(), cat, Query{})
		require.Equal(t, Success, out, cat)
		assert.Equal(t, want[cat], b.Len(), cat)
		valid, dropped := b.Valid()
		assert.Zero(t, dropped, cat)
		assert.Equal(t, b.Len(), valid.Len())
	}
}

func TestSeedVocabularyIsNormalized(t *testing.T) {
	b, out := NewSeed().Fetch(context.Background(), models.CategoryFacilities, Query{})
	require.Equal(t, Success, out)
	types := map[string]models.FacilityType{}
	for _, f := range b.Facilities {
		types[f.Name] = f.Type
		assert.Equal(t, SeedName, f.Source)
	}
	assert.Equal(t, models.FacilityHospital, types["Dhaka Medical College Hospital"])
	assert.Equal(t, models.FacilityUpazilaHealthComplex, types["Savar Upazila Health Complex"])
	assert.Equal(t, models.FacilityCommunityClinic, types["Bhakurta Community Clinic"])
	assert.Equal(t, models.FacilityUnionHealthCenter, types["Keraniganj Union Health and Family Welfare Centre"])

	w, out := NewSeed().Fetch(context.Background(), models.CategoryWorkers, Query{})
	require.Equal(t, Success, out)
	assert.Equal(t, models.AvailabilityFullTime, w.Workers[4].Availability)
	assert.Equal(t, models.WorkerVolunteer, w.Workers[4].Type)
}

func TestSeedRejectsUnknownCategory(t *testing.T) {
	_, out := NewSeed().Fetch(context.Background(), models.Category("mood_journal"), Query{})
	assert.Equal(t, EmptyResult, out)
}
