package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"health-geo/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const facilitiesCSV = `Facility Name,Facility Type,Latitude,Longitude,District,Road Access,Transport Options
Savar UHC,Upazila Health Complex,23.8583,90.2667,Dhaka,yes,bus;rickshaw
Broken Row,clinic,23.1
No Coordinates,hospital,,,Dhaka,no,
Zero Island,clinic,0,0,,,
Mirpur Clinic,diagnostic center,23.8223,90.3654,Dhaka,no,
`

func csvServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTabularFacilities(t *testing.T) {
	srv := csvServer(t, facilitiesCSV, http.StatusOK)
	a := NewTabular("dghs_csv", srv.URL, srv.Client(), time.Second)

	b, out := a.Fetch(context.Background(), models.CategoryFacilities, Query{})
	require.Equal(t, Success, out)
	require.Len(t, b.Facilities, 2)

	f := b.Facilities[0]
	assert.Equal(t, "Savar UHC", f.Name)
	assert.Equal(t, models.FacilityUpazilaHealthComplex, f.Type)
	assert.Equal(t, 90.2667, f.Location.Lon())
	assert.Equal(t, 23.8583, f.Location.Lat())
	assert.True(t, f.Accessibility.RoadAccess)
	assert.Equal(t, []string{"bus", "rickshaw"}, f.Accessibility.TransportOptions)
	assert.Equal(t, "Dhaka", f.Admin.District)
	assert.Equal(t, "dghs_csv", f.Source)
	assert.Equal(t, models.FacilityClinic, b.Facilities[1].Type)
}

func TestTabularStableIDs(t *testing.T) {
	srv := csvServer(t, facilitiesCSV, http.StatusOK)
	a := NewTabular("dghs_csv", srv.URL, srv.Client(), time.Second)
	first, _ := a.Fetch(context.Background(), models.CategoryFacilities, Query{})
	second, _ := a.Fetch(context.Background(), models.CategoryFacilities, Query{})
	require.Len(t, second.Facilities, len(first.Facilities))
	for i := range first.Facilities {
		assert.Equal(t, first.Facilities[i].ID, second.Facilities[i].ID)
	}
}

func TestTabularWorkersFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workers.csv")
	require.NoError(t, os.WriteFile(path, []byte(
		"worker_id,name,designation,lat,lon,skills,availability\n"+
			"W1,Rahima,Community Health Worker,23.84,90.26,immunization; maternal care,on call\n"+
			"W2,Karim,Medical Officer,23.85,90.27,,sometimes\n"), 0o644))

	b, out := NewTabular("hrm_csv", "file://"+path, nil, time.Second).Fetch(context.Background(), models.CategoryWorkers, Query{})
	require.Equal(t, Success, out)
	require.Len(t, b.Workers, 2)
	assert.Equal(t, models.WorkerCHW, b.Workers[0].Type)
	assert.Equal(t, models.AvailabilityOnCall, b.Workers[0].Availability)
	assert.Equal(t, []string{"immunization", "maternal care"}, b.Workers[0].Skills)
	assert.Equal(t, models.WorkerDoctor, b.Workers[1].Type)
	assert.Equal(t, models.AvailabilityFullTime, b.Workers[1].Availability)
	assert.Equal(t, models.StableID("hrm_csv", "W1"), b.Workers[0].ID)
}

func TestTabularFailures(t *testing.T) {
	ctx := context.Background()

	srv := csvServer(t, "oops", http.StatusInternalServerError)
	_, out := NewTabular("down", srv.URL, srv.Client(), time.Second).Fetch(ctx, models.CategoryFacilities, Query{})
	assert.Equal(t, NetworkError, out)

	srv = csvServer(t, "name,lat,lon\n", http.StatusOK)
	_, out = NewTabular("header_only", srv.URL, srv.Client(), time.Second).Fetch(ctx, models.CategoryFacilities, Query{})
	assert.Equal(t, EmptyResult, out)

	srv = csvServer(t, "name,lat,lon\nx,\"23.1,90\n", http.StatusOK)
	_, out = NewTabular("bad_quote", srv.URL, srv.Client(), time.Second).Fetch(ctx, models.CategoryFacilities, Query{})
	assert.Equal(t, ParseError, out)

	_, out = NewTabular("missing", filepath.Join(t.TempDir(), "nope.csv"), nil, time.Second).Fetch(ctx, models.CategoryFacilities, Query{})
	assert.Equal(t, NetworkError, out)

	_, out = NewTabular("wrong_kind", srv.URL, srv.Client(), time.Second).Fetch(ctx, models.CategoryBoundaries, Query{})
	assert.Equal(t, EmptyResult, out)
}
