package sources

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"health-geo/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverpassQL(t *testing.T) {
	ql := OverpassQL(BBox{South: 23.5, West: 90.1, North: 24, East: 90.6}, 30*time.Second)
	assert.True(t, strings.HasPrefix(ql, "[out:json][timeout:30];"))
	assert.Contains(t, ql, `way["healthcare"](23.5,90.1,24,90.6);`)
	assert.Contains(t, ql, `node["amenity"~"^(hospital|clinic|doctors|health_post)$"](23.5,90.1,24,90.6);`)
	assert.True(t, strings.HasSuffix(ql, "out center tags;"))
}

func TestOverpassFetch(t *testing.T) {
	fixture, err := seedFS.ReadFile("seed/osm_facilities.json")
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(body))
		assert.Contains(t, form.Get("data"), "(20.5,88,26.7,92.7)")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(fixture)
	}))
	defer srv.Close()

	a := NewOverpass("overpass_primary", srv.URL, srv.Client(), 5*time.Second)
	b, out := a.Fetch(context.Background(), models.CategoryOSMFacilities, Query{})
	require.Equal(t, Success, out)
	require.Len(t, b.Facilities, 6)

	byName := map[string]models.Facility{}
	for _, f := range b.Facilities {
		byName[f.Name] = f
	}
	way := byName["Square Hospital"]
	assert.Equal(t, models.StableID("osm", "way/148512311"), way.ID)
	assert.Equal(t, models.FacilityHospital, way.Type)
	assert.Equal(t, models.NewPoint(90.3763, 23.7516), way.Location)
	assert.Equal(t, "+88028144400", way.Contact.Phone)
	assert.Equal(t, "wheelchair: yes", way.Accessibility.Notes)

	assert.Equal(t, models.FacilityClinic, byName["Banani Family Practice"].Type)
	assert.Equal(t, "Chattogram", byName["Chattogram General Hospital"].Admin.District)
	assert.Contains(t, byName, "Sylhet Community Health Centre")
}

func TestParseOverpassSkipsUnusableElements(t *testing.T) {
	raw := []byte(`{"elements":[
		{"type":"node","id":1,"tags":{"amenity":"hospital","name":"No coordinates"}},
		{"type":"node","id":2,"lat":23.7,"lon":90.4,"tags":{"shop":"bakery"}},
		{"type":"node","id":3,"lat":23.7,"lon":90.4,"tags":{"amenity":"clinic"}}
	]}`)
	b, err := parseOverpass(raw, "osm", time.Unix(0, 0))
	require.NoError(t, err)
	require.Len(t, b.Facilities, 1)
	assert.Equal(t, "amenity=clinic", b.Facilities[0].Name)
}

func TestParseOverpassRejectsNullIsland(t *testing.T) {
	raw := []byte(`{"elements":[
		{"type":"node","id":1,"lat":0,"lon":0,"tags":{"amenity":"hospital","name":"Zero"}},
		{"type":"node","id":2,"lat":"23.7","lon":"n/a","tags":{"amenity":"hospital","name":"Text"}},
		{"type":"way","id":3,"center":{"lat":0,"lon":0},"tags":{"amenity":"clinic","name":"Zero center"}},
		{"type":"node","id":4,"lat":95,"lon":90.4,"tags":{"amenity":"clinic","name":"Out of range"}},
		{"type":"way","id":5,"center":{"lat":23.79,"lon":90.41},"tags":{"amenity":"clinic","name":"Kept"}}
	]}`)
	b, err := parseOverpass(raw, "osm", time.Unix(0, 0))
	require.NoError(t, err)
	require.Len(t, b.Facilities, 1)
	assert.Equal(t, "Kept", b.Facilities[0].Name)
	assert.Equal(t, models.NewPoint(90.41, 23.79), b.Facilities[0].Location)

	_, err = parseOverpass([]byte(`{"elements":[{"type":"node","id":1,"lat":0,"lon":0,"tags":{"amenity":"hospital"}}]}`), "osm", time.Unix(0, 0))
	assert.ErrorIs(t, err, ErrEmptyResult)
}

func TestOverpassFailures(t *testing.T) {
	ctx := context.Background()
	serve := func(body string) *httptest.Server {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		t.Cleanup(srv.Close)
		return srv
	}

	srv := serve(`<html>rate limited</html>`)
	_, out := NewOverpass("o", srv.URL, srv.Client(), time.Second).Fetch(ctx, models.CategoryOSMFacilities, Query{})
	assert.Equal(t, ParseError, out)

	srv = serve(`{"remark":"runtime error: Query timed out"}`)
	_, out = NewOverpass("o", srv.URL, srv.Client(), time.Second).Fetch(ctx, models.CategoryOSMFacilities, Query{})
	assert.Equal(t, NetworkError, out)

	srv = serve(`{"elements":[]}`)
	_, out = NewOverpass("o", srv.URL, srv.Client(), time.Second).Fetch(ctx, models.CategoryOSMFacilities, Query{})
	assert.Equal(t, EmptyResult, out)

	_, out = NewOverpass("o", srv.URL, srv.Client(), time.Second).Fetch(ctx, models.CategoryWorkers, Query{})
	assert.Equal(t, EmptyResult, out)
}
