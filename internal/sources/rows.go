package sources

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"health-geo/internal/models"
	"health-geo/internal/normalize"
)

// Row is one tabular record keyed by normalized column name.
type Row map[string]string

// Column aliases seen across provider spreadsheets, scraped tables and REST payloads.
var aliases = map[string][]string{
	"id":               {"id", "uid", "uuid", "code", "facility_code", "facility_id", "worker_id", "hrm_id", "osm_id"},
	"name":             {"name", "facility_name", "facility", "hospital_name", "worker_name", "full_name", "name_en"},
	"lat":              {"lat", "latitude", "y", "lat_dd", "gps_latitude"},
	"lon":              {"lon", "lng", "long", "longitude", "x", "lon_dd", "gps_longitude"},
	"type":             {"type", "facility_type", "worker_type", "category", "amenity", "healthcare", "designation", "role", "cadre"},
	"upazila":          {"upazila", "thana", "sub_district", "upazila_name", "adm3_en"},
	"district":         {"district", "zila", "zilla", "district_name", "adm2_en"},
	"division":         {"division", "division_name", "adm1_en"},
	"phone":            {"phone", "mobile", "contact", "phone_number", "contact_number", "contact_no", "mobile_no"},
	"email":            {"email", "e_mail", "email_address"},
	"services":         {"services", "service", "specialities", "speciality"},
	"skills":           {"skills", "skill", "expertise", "training"},
	"availability":     {"availability", "schedule", "duty", "duty_type"},
	"road_access":      {"road_access", "roadaccess", "road"},
	"public_transport": {"public_transport", "publictransport", "transit"},
	"transport":        {"transport_options", "transportoptions", "transport"},
	"notes":            {"notes", "access_notes", "accessibility_notes", "remarks"},
	"verified":         {"verified", "is_verified"},
}

var headerReplacer = strings.NewReplacer(" ", "_", "-", "_", ".", "_", "/", "_", "\ufeff", "")

// NormalizeHeader maps "Facility Name " to "facility_name".
func NormalizeHeader(h string) string {
	return strings.Trim(headerReplacer.Replace(strings.ToLower(strings.TrimSpace(h))), "_")
}

// NewRow copies m with normalized keys and trimmed values.
func NewRow(m map[string]string) Row {
	r := make(Row, len(m))
	for k, v := range m {
		nk := NormalizeHeader(k)
		if _, seen := r[nk]; seen && strings.TrimSpace(v) == "" {
			continue
		}
		r[nk] = strings.TrimSpace(v)
	}
	return r
}

// Field returns the first non-empty value among the aliases of a canonical field.
func (r Row) Field(name string) string {
	for _, k := range aliases[name] {
		if v := r[k]; v != "" {
			return v
		}
	}
	return ""
}

func parseDegrees(s string) (float64, bool) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "°"))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Location extracts a usable point. Missing, unparsable, out-of-range and (0,0) coordinates are
// ErrValidation.
func (r Row) Location() (models.Location, error) {
	lon, okLon := parseDegrees(r.Field("lon"))
	lat, okLat := parseDegrees(r.Field("lat"))
	if !okLon || !okLat {
		return models.Location{}, ErrValidation
	}
	if (lon == 0 && lat == 0) || !models.ValidCoordinates(lon, lat) {
		return models.Location{}, fmt.Errorf("%w: (%v, %v)", ErrValidation, lon, lat)
	}
	return models.NewPoint(lon, lat), nil
}

func (r Row) Admin() models.Admin {
	return models.Admin{Upazila: r.Field("upazila"), District: r.Field("district"), Division: r.Field("division")}
}

// Geocoder resolves an administrative area to a representative point.
type Geocoder interface {
	Geocode(a models.Admin) (models.Location, bool)
}

// rowMapper turns rows into canonical records for one provider.
type rowMapper struct {
	source   string
	now      time.Time
	geocoder Geocoder
}

func (m rowMapper) locate(r Row) (models.Location, error) {
	loc, err := r.Location()
	if err == nil || m.geocoder == nil {
		return loc, err
	}
	if g, ok := m.geocoder.Geocode(r.Admin()); ok {
		return g, nil
	}
	return models.Location{}, err
}

func (m rowMapper) id(r Row, loc models.Location) string {
	key := r.Field("id")
	if key == "" {
		key = normalize.Key(r.Field("name")) + "@" + strconv.FormatFloat(loc.Lon(), 'f', 5, 64) + "," + strconv.FormatFloat(loc.Lat(), 'f', 5, 64)
	}
	return models.StableID(m.source, key)
}

func (m rowMapper) facility(r Row) (models.Facility, error) {
	loc, err := m.locate(r)
	if err != nil {
		return models.Facility{}, err
	}
	return models.Facility{
		ID:       m.id(r, loc),
		Name:     r.Field("name"),
		Type:     normalize.FacilityType(r.Field("type")),
		Location: loc,
		Admin:    r.Admin(),
		Services: normalize.List(r.Field("services")),
		Contact:  models.Contact{Phone: r.Field("phone"), Email: r.Field("email")},
		Accessibility: models.Accessibility{
			RoadAccess:       normalize.Bool(r.Field("road_access")),
			PublicTransport:  normalize.Bool(r.Field("public_transport")),
			TransportOptions: normalize.List(r.Field("transport")),
			Notes:            r.Field("notes"),
		},
		Verified:    normalize.Bool(r.Field("verified")),
		Source:      m.source,
		LastUpdated: m.now,
	}, nil
}

func (m rowMapper) worker(r Row) (models.Worker, error) {
	loc, err := m.locate(r)
	if err != nil {
		return models.Worker{}, err
	}
	return models.Worker{
		ID:           m.id(r, loc),
		Name:         r.Field("name"),
		Type:         normalize.WorkerType(r.Field("type")),
		Location:     loc,
		Admin:        r.Admin(),
		Contact:      models.Contact{Phone: r.Field("phone"), Email: r.Field("email")},
		Skills:       normalize.List(r.Field("skills")),
		Availability: normalize.Availability(r.Field("availability")),
		Verified:     normalize.Bool(r.Field("verified")),
		Source:       m.source,
		LastUpdated:  m.now,
	}, nil
}

// batch maps rows for a facility or worker category, skipping rows without a usable location.
func (m rowMapper) batch(cat models.Category, rows []Row) (models.Batch, int, error) {
	var (
		b       models.Batch
		skipped int
	)
	switch cat.Kind() {
	case models.KindFacility:
		for _, r := range rows {
			f, err := m.facility(r)
			if err != nil {
				skipped++
				continue
			}
			b.Facilities = append(b.Facilities, f)
		}
	case models.KindWorker:
		for _, r := range rows {
			w, err := m.worker(r)
			if err != nil {
				skipped++
				continue
			}
			b.Workers = append(b.Workers, w)
		}
	default:
		return models.Batch{}, 0, unsupported(m.source, cat)
	}
	return b, skipped, nil
}
