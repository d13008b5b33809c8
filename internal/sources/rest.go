package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"health-geo/internal/models"

	"github.com/tidwall/gjson"
)

// RESTConfig describes a paged JSON API. Fields maps a canonical row field (name, lat, lon,
// type, district, ...) to gjson paths tried in order inside each item.
type RESTConfig struct {
	URL          string
	ItemsPath    string
	Fields       map[string][]string
	PageParam    string
	CountryParam string
	MaxPages     int
}

// HealthsitesFields matches the healthsites.io v2 facility listing.
func HealthsitesFields() map[string][]string {
	return map[string][]string{
		"id":       {"osm_type_id", "uuid", "osm_id"},
		"name":     {"attributes.name", "name"},
		"lon":      {"centroid.coordinates.0", "geometry.coordinates.0"},
		"lat":      {"centroid.coordinates.1", "geometry.coordinates.1"},
		"type":     {"attributes.healthcare", "attributes.amenity"},
		"upazila":  {"attributes.addr_subdistrict"},
		"district": {"attributes.addr_city", "attributes.addr_district"},
		"division": {"attributes.addr_province"},
		"phone":    {"attributes.contact_number", "attributes.phone"},
		"email":    {"attributes.email"},
		"services": {"attributes.speciality"},
	}
}

const defaultMaxPages = 20

func (c RESTConfig) withDefaults() RESTConfig {
	if c.PageParam == "" {
		c.PageParam = "page"
	}
	if c.MaxPages <= 0 {
		c.MaxPages = defaultMaxPages
	}
	if len(c.Fields) == 0 {
		c.Fields = HealthsitesFields()
	}
	return c
}

// REST pages through a JSON listing until an empty page or the page cap.
type REST struct {
	name    string
	cfg     RESTConfig
	client  *http.Client
	timeout time.Duration
	now     func() time.Time
}

func NewREST(name string, cfg RESTConfig, client *http.Client, timeout time.Duration) *REST {
	return &REST{name: name, cfg: cfg.withDefaults(), client: defaultClient(client), timeout: timeout, now: time.Now}
}

func (r *REST) Name() string { return r.name }

func (r *REST) Fetch(ctx context.Context, cat models.Category, q Query) (models.Batch, Outcome) {
	return guard(ctx, r.name, r.timeout, cat, q, r.fetch)
}

func (r *REST) pageURL(page int, country string) (string, error) {
	u, err := url.Parse(r.cfg.URL)
	if err != nil || !isHTTP(r.cfg.URL) {
		return "", fmt.Errorf("%w: bad endpoint %q", ErrParse, r.cfg.URL)
	}
	v := u.Query()
	v.Set(r.cfg.PageParam, strconv.Itoa(page))
	if r.cfg.CountryParam != "" && country != "" {
		v.Set(r.cfg.CountryParam, country)
	}
	u.RawQuery = v.Encode()
	return u.String(), nil
}

func (r *REST) fetch(ctx context.Context, cat models.Category, q Query) (models.Batch, error) {
	if k := cat.Kind(); k != models.KindFacility && k != models.KindWorker {
		return models.Batch{}, unsupported(r.name, cat)
	}
	var rows []Row
	for page := 1; page <= r.cfg.MaxPages; page++ {
		u, err := r.pageURL(page, q.Country)
		if err != nil {
			return models.Batch{}, err
		}
		raw, err := get(ctx, r.client, u)
		if err != nil {
			return models.Batch{}, err
		}
		items, err := r.items(raw)
		if err != nil {
			return models.Batch{}, fmt.Errorf("page %d: %w", page, err)
		}
		if len(items) == 0 {
			break
		}
		for _, it := range items {
			rows = append(rows, r.row(it))
		}
	}
	if len(rows) == 0 {
		return models.Batch{}, fmt.Errorf("%w: no items", ErrEmptyResult)
	}
	m := rowMapper{source: r.name, now: r.now().UTC()}
	b, _, err := m.batch(cat, rows)
	return b, err
}

func (r *REST) items(raw []byte) ([]gjson.Result, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: response is not json", ErrParse)
	}
	res := gjson.ParseBytes(raw)
	if r.cfg.ItemsPath != "" {
		res = res.Get(r.cfg.ItemsPath)
	}
	if !res.IsArray() {
		return nil, fmt.Errorf("%w: items at %q are not an array", ErrParse, r.cfg.ItemsPath)
	}
	return res.Array(), nil
}

func (r *REST) row(item gjson.Result) Row {
	row := make(Row, len(r.cfg.Fields))
	for field, paths := range r.cfg.Fields {
		for _, p := range paths {
			if v := scalar(item.Get(p)); v != "" {
				row[field] = v
				break
			}
		}
	}
	return row
}

// scalar flattens arrays of scalars to a ";" list so they split like tabular cells.
func scalar(v gjson.Result) string {
	if !v.IsArray() {
		return v.String()
	}
	var parts []string
	for _, e := range v.Array() {
		if s := e.String(); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ";")
}
