package sources

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"health-geo/internal/models"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// GeoJSON reads a FeatureCollection from http(s), s3://bucket/key or a local file. Areal
// features become boundaries; for facilities and workers each feature becomes one record at
// its point (or polygon centroid).
type GeoJSON struct {
	name     string
	location string
	client   *http.Client
	objects  ObjectGetter
	timeout  time.Duration
	now      func() time.Time
}

func NewGeoJSON(name, location string, client *http.Client, objects ObjectGetter, timeout time.Duration) *GeoJSON {
	return &GeoJSON{name: name, location: location, client: defaultClient(client), objects: objects, timeout: timeout, now: time.Now}
}

func (g *GeoJSON) Name() string { return g.name }

func (g *GeoJSON) Fetch(ctx context.Context, cat models.Category, q Query) (models.Batch, Outcome) {
	return guard(ctx, g.name, g.timeout, cat, q, g.fetch)
}

func (g *GeoJSON) fetch(ctx context.Context, cat models.Category, _ Query) (models.Batch, error) {
	if !cat.Valid() {
		return models.Batch{}, unsupported(g.name, cat)
	}
	raw, err := readLocation(ctx, g.client, g.objects, g.location)
	if err != nil {
		return models.Batch{}, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return models.Batch{}, fmt.Errorf("%w: feature collection: %v", ErrParse, err)
	}
	at := g.now().UTC()
	var b models.Batch
	if cat.Kind() == models.KindBoundary {
		b.Boundaries = featureBoundaries(fc, g.name, at)
	} else {
		b = featureRecords(fc, cat, rowMapper{source: g.name, now: at})
	}
	if b.Len() == 0 {
		return models.Batch{}, fmt.Errorf("%w: %d features, none usable for %s", ErrEmptyResult, len(fc.Features), cat)
	}
	return b, nil
}

var admKeys = []struct {
	prop  string
	level string
}{
	{"ADM4_EN", "union"},
	{"ADM3_EN", "upazila"},
	{"ADM2_EN", "district"},
	{"ADM1_EN", "division"},
}

var shapeLevels = map[string]string{"ADM1": "division", "ADM2": "district", "ADM3": "upazila", "ADM4": "union"}

func propString(p geojson.Properties, keys ...string) string {
	for _, k := range keys {
		v, ok := p[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case float64:
			s = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			s = strconv.FormatBool(t)
		default:
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

func boundaryLevel(p geojson.Properties) string {
	if l := strings.ToLower(propString(p, "level", "admin_type")); l != "" {
		return l
	}
	if l, ok := shapeLevels[strings.ToUpper(propString(p, "shapeType"))]; ok {
		return l
	}
	for _, k := range admKeys {
		if propString(p, k.prop) != "" {
			return k.level
		}
	}
	return ""
}

func featureBoundaries(fc *geojson.FeatureCollection, source string, at time.Time) []models.Boundary {
	var out []models.Boundary
	for i, f := range fc.Features {
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			continue
		}
		p := f.Properties
		admin := models.Admin{
			Upazila:  propString(p, "upazila", "ADM3_EN"),
			District: propString(p, "district", "ADM2_EN"),
			Division: propString(p, "division", "ADM1_EN"),
		}
		name := propString(p, "name", "shapeName", "NAME", "ADM4_EN", "ADM3_EN", "ADM2_EN", "ADM1_EN")
		key := propString(p, "id", "shapeID", "ADM4_PCODE", "ADM3_PCODE", "ADM2_PCODE", "ADM1_PCODE")
		if key == "" && f.ID != nil {
			key = fmt.Sprint(f.ID)
		}
		if key == "" {
			key = name + "#" + strconv.Itoa(i)
		}
		out = append(out, models.NewBoundary(models.StableID(source, key), name, boundaryLevel(p), admin, f.Geometry, source, at))
	}
	return out
}

// featureRow flattens scalar properties and the representative point into a Row.
func featureRow(f *geojson.Feature) (Row, bool) {
	var pt orb.Point
	switch g := f.Geometry.(type) {
	case orb.Point:
		pt = g
	case orb.Polygon, orb.MultiPolygon:
		pt, _ = planar.CentroidArea(g)
	default:
		return nil, false
	}
	m := make(map[string]string, len(f.Properties)+2)
	for k := range f.Properties {
		if v := propString(f.Properties, k); v != "" {
			m[k] = v
		}
	}
	if f.ID != nil {
		if _, ok := m["id"]; !ok {
			m["id"] = fmt.Sprint(f.ID)
		}
	}
	r := NewRow(m)
	r["lon"] = strconv.FormatFloat(pt.Lon(), 'f', -1, 64)
	r["lat"] = strconv.FormatFloat(pt.Lat(), 'f', -1, 64)
	return r, true
}

func featureRecords(fc *geojson.FeatureCollection, cat models.Category, m rowMapper) models.Batch {
	var b models.Batch
	for _, f := range fc.Features {
		r, ok := featureRow(f)
		if !ok {
			continue
		}
		switch cat.Kind() {
		case models.KindFacility:
			if rec, err := m.facility(r); err == nil {
				b.Facilities = append(b.Facilities, rec)
			}
		case models.KindWorker:
			rec, err := m.worker(r)
			if err != nil {
				continue
			}
			if _, isPoint := f.Geometry.(orb.Point); !isPoint {
				rec.ServiceArea = geojson.NewGeometry(f.Geometry)
			}
			b.Workers = append(b.Workers, rec)
		}
	}
	return b
}
