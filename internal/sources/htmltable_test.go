package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"health-geo/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const directoryPage = `<html><body>
<h1>Upazila contact list</h1>
<table class="contacts">
  <thead><tr><th>Name</th><th>Designation</th><th>Upazila</th><th>Mobile</th><th>Latitude</th><th>Longitude</th></tr></thead>
  <tbody>
    <tr><td>Dr. Tanvir   Ahmed</td><td>Medical Officer</td><td>Savar</td><td>01711000002</td><td>23.8583</td><td>90.2667</td></tr>
    <tr><td>Rahima Khatun</td><td>Health Assistant</td><td>Keraniganj</td><td>01711000001</td><td></td><td></td></tr>
    <tr><td>Unknown Place</td><td>Nurse</td><td>Nowhere</td><td>01711000009</td><td></td><td></td></tr>
  </tbody>
</table>
<table class="footer"><tr><td>Updated</td></tr><tr><td>2024</td></tr></table>
</body></html>`

type mapGeocoder map[string]models.Location

func (m mapGeocoder) Geocode(a models.Admin) (models.Location, bool) {
	l, ok := m[a.Upazila]
	return l, ok
}

func TestHTMLTableWorkers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(directoryPage))
	}))
	defer srv.Close()

	geo := mapGeocoder{"Keraniganj": models.NewPoint(90.315, 23.655)}
	a := NewHTMLTable("dghs_contacts", srv.URL, "table.contacts", srv.Client(), geo, time.Second)
	b, out := a.Fetch(context.Background(), models.CategoryWorkers, Query{})
	require.Equal(t, Success, out)
	require.Len(t, b.Workers, 2)

	assert.Equal(t, "Dr. Tanvir Ahmed", b.Workers[0].Name)
	assert.Equal(t, models.WorkerDoctor, b.Workers[0].Type)
	assert.Equal(t, "01711000002", b.Workers[0].Contact.Phone)
	assert.Equal(t, "Savar", b.Workers[0].Admin.Upazila)

	assert.Equal(t, "Rahima Khatun", b.Workers[1].Name)
	assert.Equal(t, models.WorkerCHW, b.Workers[1].Type)
	assert.Equal(t, models.NewPoint(90.315, 23.655), b.Workers[1].Location)
}

func TestHTMLTableWithoutGeocoderSkipsUnlocated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(directoryPage))
	}))
	defer srv.Close()

	b, out := NewHTMLTable("dghs_contacts", srv.URL, "", srv.Client(), nil, time.Second).Fetch(context.Background(), models.CategoryWorkers, Query{})
	require.Equal(t, Success, out)
	assert.Len(t, b.Workers, 1)
}

func TestScrapeTables(t *testing.T) {
	rows, err := scrapeTables([]byte(directoryPage), "table.contacts")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Medical Officer", rows[0].Field("type"))
	assert.Equal(t, "Nowhere", rows[2].Field("upazila"))

	rows, err = scrapeTables([]byte(`<p>no tables here</p>`), "table")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestHTMLTableEmptyPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body>maintenance</body></html>`))
	}))
	defer srv.Close()
	_, out := NewHTMLTable("h", srv.URL, "", srv.Client(), nil, time.Second).Fetch(context.Background(), models.CategoryFacilities, Query{})
	assert.Equal(t, EmptyResult, out)
}
