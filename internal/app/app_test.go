package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"health-geo/internal/cache"
	"health-geo/internal/config"
	"health-geo/internal/models"
	"health-geo/internal/sources"
	"health-geo/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(as []sources.Adapter) []string {
	out := make([]string, 0, len(as))
	for _, a := range as {
		out = append(out, a.Name())
	}
	return out
}

func TestSourcesBuildsChainsInPriorityOrder(t *testing.T) {
	cfg := config.Config{Sources: config.SourcesConfig{
		Timeout:               time.Second,
		FacilitiesCSVURL:      "https://example.org/facilities.csv",
		FacilitiesHTMLURL:     "https://example.org/facilities.html",
		OverpassURL:           sources.DefaultOverpassEndpoint,
		OverpassMirrorURL:     sources.OverpassMirror,
		HealthsitesURL:        "https://healthsites.io/api/v3/facilities/",
		HealthsitesAPIKey:     "k",
		BoundariesURL:         "https://example.org/adm.geojson",
		BoundariesFallbackURL: "testdata/adm.geojson",
		WorkersCSVURL:         "https://example.org/workers.csv",
		BBox:                  "23,90,24,91",
		Country:               "Bangladesh",
	}}
	reg, chains, err := Sources(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.Len(t, chains, len(models.SourceCategories))

	byCat := map[models.Category][]string{}
	for _, ch := range chains {
		byCat[ch.Category] = names(ch.Adapters)
		require.NotNil(t, ch.Seed)
		assert.Equal(t, sources.SeedName, ch.Seed.Name())
		assert.Equal(t, sources.BBox{South: 23, West: 90, North: 24, East: 91}, ch.Query.BBox)
	}
	assert.Equal(t, []string{"facilities_csv", "facilities_html"}, byCat[models.CategoryFacilities])
	assert.Equal(t, []string{"overpass", "overpass_mirror", "healthsites"}, byCat[models.CategoryOSMFacilities])
	assert.Equal(t, []string{"boundaries_geojson", "boundaries_fallback"}, byCat[models.CategoryBoundaries])
	assert.Equal(t, []string{"workers_csv"}, byCat[models.CategoryWorkers])

	_, ok := reg.Get("healthsites")
	assert.True(t, ok)
	assert.Len(t, reg.Snapshot(), 9)
}

func TestSourcesWithNothingConfiguredFallsBackToSeed(t *testing.T) {
	_, chains, err := Sources(context.Background(), config.Config{}, nil)
	require.NoError(t, err)
	for _, ch := range chains {
		assert.Empty(t, ch.Adapters, ch.Category)
		assert.NotNil(t, ch.Seed)
		assert.Equal(t, sources.BangladeshBBox, ch.Query.BBox)
		assert.Equal(t, "Bangladesh", ch.Query.Country)
	}
}

func TestPipelineIngestsFromConfiguredCSV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("facility_name,facility_type,latitude,longitude\nTest Clinic,clinic,23.75,90.39\n"))
	}))
	defer srv.Close()

	ctx := context.Background()
	s := store.NewMemory()
	cfg := config.Config{Sources: config.SourcesConfig{Timeout: time.Second, FacilitiesCSVURL: srv.URL}}
	p, reg, err := Pipeline(ctx, cfg, s)
	require.NoError(t, err)

	counts, err := p.RunFull(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Facilities)
	assert.Equal(t, 6, counts.OSMFacilities, "osm falls back to the seed")

	var csv sources.Status
	for _, st := range reg.Snapshot() {
		if st.Name == "facilities_csv" {
			csv = st
		}
	}
	assert.Equal(t, sources.Success.String(), csv.LastOutcome)
	assert.Equal(t, 1, csv.LastRecords)
}

func TestWithParam(t *testing.T) {
	assert.Equal(t, "https://h.io/api?api-key=abc", withParam("https://h.io/api", "api-key", "abc"))
	assert.Equal(t, "https://h.io/api?a=1&api-key=abc", withParam("https://h.io/api?a=1", "api-key", "abc"))
	assert.Equal(t, "https://h.io/api", withParam("https://h.io/api", "api-key", ""))
}

func TestOpenCacheAndStoreDefaults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, backend := OpenCache(ctx, config.Config{Cache: config.CacheConfig{Driver: "memory", Capacity: 10, TTL: time.Minute, SweepInterval: time.Hour}})
	assert.Equal(t, "memory", backend)
	assert.IsType(t, &cache.Memory{}, c)

	c, backend = OpenCache(ctx, config.Config{Cache: config.CacheConfig{Driver: "none"}})
	assert.Equal(t, "none", backend)
	assert.IsType(t, cache.Nop{}, c)

	s, err := OpenStore(ctx, config.Config{Store: config.StoreConfig{Driver: "memory"}})
	require.NoError(t, err)
	assert.IsType(t, &store.Memory{}, s)
}

func TestSchedule(t *testing.T) {
	s, err := Schedule(config.IngestConfig{Interval: time.Hour})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, s.Every)

	s, err = Schedule(config.IngestConfig{Weekday: "tue", Hour: 3, TZ: "Asia/Dhaka"})
	require.NoError(t, err)
	assert.Equal(t, time.Tuesday, s.Weekday)
	assert.Equal(t, 3, s.Hour)
	assert.Equal(t, "Asia/Dhaka", s.Location.String())

	_, err = Schedule(config.IngestConfig{Weekday: "funday"})
	assert.ErrorIs(t, err, config.ErrInvalid)
}
