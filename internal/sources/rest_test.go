package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"health-geo/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthsitesItem(id int, name string, lon, lat float64) string {
	return fmt.Sprintf(`{"osm_type_id":"node/%d","attributes":{"name":%q,"healthcare":"hospital","addr_city":"Dhaka"},"centroid":{"type":"Point","coordinates":[%v,%v]}}`, id, name, lon, lat)
}

func pagedServer(t *testing.T, pages map[string]string, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		assert.Equal(t, "secret", r.URL.Query().Get("api-key"))
		assert.Equal(t, "Bangladesh", r.URL.Query().Get("country"))
		body, ok := pages[r.URL.Query().Get("page")]
		if !ok {
			body = "[]"
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRESTPagesUntilEmpty(t *testing.T) {
	var hits int32
	srv := pagedServer(t, map[string]string{
		"1": "[" + healthsitesItem(1, "Alpha Hospital", 90.40, 23.70) + "," + healthsitesItem(2, "Beta Hospital", 90.41, 23.71) + "]",
		"2": "[" + healthsitesItem(3, "Gamma Hospital", 90.42, 23.72) + "]",
	}, &hits)

	a := NewREST("healthsites", RESTConfig{URL: srv.URL + "?api-key=secret", CountryParam: "country"}, srv.Client(), time.Second)
	b, out := a.Fetch(context.Background(), models.CategoryOSMFacilities, Query{})
	require.Equal(t, Success, out)
	require.Len(t, b.Facilities, 3)
	assert.EqualValues(t, 3, atomic.LoadInt32(&hits))

	f := b.Facilities[0]
	assert.Equal(t, "Alpha Hospital", f.Name)
	assert.Equal(t, models.FacilityHospital, f.Type)
	assert.Equal(t, models.NewPoint(90.40, 23.70), f.Location)
	assert.Equal(t, "Dhaka", f.Admin.District)
	assert.Equal(t, models.StableID("healthsites", "node/1"), f.ID)
}

func TestRESTPageCap(t *testing.T) {
	var hits int32
	srv := pagedServer(t, map[string]string{
		"1": "[" + healthsitesItem(1, "Alpha", 90.40, 23.70) + "]",
		"2": "[" + healthsitesItem(2, "Beta", 90.41, 23.71) + "]",
	}, &hits)

	a := NewREST("capped", RESTConfig{URL: srv.URL + "?api-key=secret", CountryParam: "country", MaxPages: 1}, srv.Client(), time.Second)
	b, out := a.Fetch(context.Background(), models.CategoryFacilities, Query{})
	require.Equal(t, Success, out)
	assert.Len(t, b.Facilities, 1)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestRESTCustomItemsPathAndFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("p") != "1" {
			_, _ = w.Write([]byte(`{"data":{"workers":[]}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{"workers":[
			{"ref":"A-1","who":"Shirin","role":"midwife","pos":{"x":90.34,"y":23.69},"skills":["newborn care","family planning"]}
		]}}`))
	}))
	defer srv.Close()

	cfg := RESTConfig{
		URL:       srv.URL,
		ItemsPath: "data.workers",
		PageParam: "p",
		Fields: map[string][]string{
			"id":     {"ref"},
			"name":   {"who"},
			"type":   {"role"},
			"lon":    {"pos.x"},
			"lat":    {"pos.y"},
			"skills": {"skills"},
		},
	}
	b, out := NewREST("hrm_api", cfg, srv.Client(), time.Second).Fetch(context.Background(), models.CategoryWorkers, Query{})
	require.Equal(t, Success, out)
	require.Len(t, b.Workers, 1)
	assert.Equal(t, models.WorkerMidwife, b.Workers[0].Type)
	assert.Equal(t, "Shirin", b.Workers[0].Name)
	assert.Equal(t, []string{"newborn care", "family planning"}, b.Workers[0].Skills)
}

func TestRESTFailures(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"detail":"not a list"}`))
	}))
	defer srv.Close()
	_, out := NewREST("r", RESTConfig{URL: srv.URL}, srv.Client(), time.Second).Fetch(ctx, models.CategoryFacilities, Query{})
	assert.Equal(t, ParseError, out)

	_, out = NewREST("r", RESTConfig{URL: "not a url"}, nil, time.Second).Fetch(ctx, models.CategoryFacilities, Query{})
	assert.Equal(t, ParseError, out)

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer empty.Close()
	_, out = NewREST("r", RESTConfig{URL: empty.URL}, empty.Client(), time.Second).Fetch(ctx, models.CategoryFacilities, Query{})
	assert.Equal(t, EmptyResult, out)
}
