package discovery

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"health-geo/internal/geo"
	"health-geo/internal/models"
	"health-geo/internal/store"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var origin = orb.Point{90.4, 23.7}

// northOf returns a point m meters due north of origin.
func northOf(m float64) models.Location {
	return models.NewPoint(origin.Lon(), origin.Lat()+m/geo.EarthRadiusMeters*180/math.Pi)
}

func TestRankPreservesCombinedWeighting(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	require.NoError(t, s.Replace(ctx, models.CategoryStandardized, models.Batch{Facilities: []models.Facility{
		{ID: "A", Name: "Near, basic", Type: models.FacilityClinic, Location: northOf(500)},
		{ID: "B", Name: "Far, accessible", Type: models.FacilityHospital, Location: northOf(1500),
			Accessibility: models.Accessibility{RoadAccess: true, PublicTransport: true, TransportOptions: []string{"bus", "rickshaw"}}},
	}}))

	got, err := NewRanker(s).Rank(ctx, origin, 5000, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "B", got[0].Facility.ID)
	assert.Equal(t, 100, got[0].AccessibilityScore)
	assert.InDelta(t, 1500, got[0].DistanceMeters, 0.01)
	assert.InDelta(t, 900, got[0].CombinedScore, 0.01)
	assert.Equal(t, geo.North, got[0].Direction)

	assert.Equal(t, "A", got[1].Facility.ID)
	assert.Equal(t, 50, got[1].AccessibilityScore)
	assert.InDelta(t, 2300, got[1].CombinedScore, 0.01)
}

func TestRankTruncatesAndFiltersByDistance(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	var fs []models.Facility
	for i := 1; i <= 30; i++ {
		fs = append(fs, models.Facility{ID: fmt.Sprint(i), Name: "f", Type: models.FacilityClinic, Location: northOf(float64(i) * 500)})
	}
	require.NoError(t, s.Replace(ctx, models.CategoryStandardized, models.Batch{Facilities: fs}))

	got, err := NewRanker(s).Rank(ctx, origin, 0, 0)
	require.NoError(t, err)
	require.Len(t, got, DefaultLimit)
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1].CombinedScore, got[i].CombinedScore)
	}

	got, err = NewRanker(s).Rank(ctx, origin, 2600, 50)
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

type recordingStore struct {
	store.GeoStore
	queries []store.NearQuery
	err     error
}

func (r *recordingStore) NearFacilities(ctx context.Context, cat models.Category, q store.NearQuery) ([]models.Facility, error) {
	r.queries = append(r.queries, q)
	if r.err != nil {
		return nil, r.err
	}
	return r.GeoStore.NearFacilities(ctx, cat, q)
}

func (r *recordingStore) NearWorkers(ctx context.Context, q store.NearQuery, f store.WorkerFilter) ([]models.Worker, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.GeoStore.NearWorkers(ctx, q, f)
}

func TestRankOverFetchesTwiceTheLimit(t *testing.T) {
	rs := &recordingStore{GeoStore: store.NewMemory()}
	_, err := NewRanker(rs).Rank(context.Background(), origin, 1234, 7)
	require.NoError(t, err)
	require.Len(t, rs.queries, 1)
	assert.Equal(t, 14, rs.queries[0].Limit)
	assert.Equal(t, 1234.0, rs.queries[0].MaxDistanceMeters)
	assert.Equal(t, origin, rs.queries[0].Origin)
}

func TestRankStoreFailure(t *testing.T) {
	rs := &recordingStore{GeoStore: store.NewMemory(), err: errors.New("connection refused")}
	_, err := NewRanker(rs).Rank(context.Background(), origin, 0, 0)
	require.ErrorIs(t, err, ErrDataUnavailable)
	assert.ErrorContains(t, err, "connection refused")
	assert.Len(t, rs.queries, 1)
}

func TestRankRejectsInvalidOrigin(t *testing.T) {
	_, err := NewRanker(store.NewMemory()).Rank(context.Background(), orb.Point{200, 10}, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidOrigin)
}

func TestNearestWorkers(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	require.NoError(t, s.Replace(ctx, models.CategoryWorkers, models.Batch{Workers: []models.Worker{
		{ID: "w1", Type: models.WorkerCHW, Availability: models.AvailabilityFullTime, Location: northOf(800), Skills: []string{"Immunization"}, Admin: models.Admin{Upazila: "Savar"}},
		{ID: "w2", Type: models.WorkerNurse, Availability: models.AvailabilityOnCall, Location: northOf(300), Skills: []string{"wound care"}, Admin: models.Admin{Upazila: "Savar"}},
		{ID: "w3", Type: models.WorkerCHW, Availability: models.AvailabilityFullTime, Location: northOf(100), Skills: []string{"immunization"}, Admin: models.Admin{Upazila: "Dhamrai"}},
		{ID: "w4", Type: models.WorkerCHW, Availability: models.AvailabilityFullTime, Location: northOf(20000), Skills: []string{"immunization"}},
	}}))
	svc := NewService(s)

	hits, err := svc.NearestWorkers(ctx, origin, 5000, store.WorkerFilter{Skill: "IMMUNIZATION"}, 0)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "w3", hits[0].Worker.ID)
	assert.Equal(t, "w1", hits[1].Worker.ID)
	assert.InDelta(t, 800, hits[1].DistanceMeters, 0.01)

	hits, err = svc.NearestWorkers(ctx, origin, 5000, store.WorkerFilter{Upazila: "savar"}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "w2", hits[0].Worker.ID)

	_, err = NewService(&recordingStore{GeoStore: s, err: errors.New("timeout")}).NearestWorkers(ctx, origin, 0, store.WorkerFilter{}, 0)
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestServiceNearestFacilitiesEmptyStore(t *testing.T) {
	got, err := NewService(store.NewMemory()).NearestFacilities(context.Background(), origin, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}
