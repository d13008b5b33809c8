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
	"health-geo/internal/normalize"

	"github.com/tidwall/gjson"
)

// DefaultOverpassEndpoint and OverpassMirror are the public Overpass interpreters.
const (
	DefaultOverpassEndpoint = "https://overpass-api.de/api/interpreter"
	OverpassMirror          = "https://overpass.kumi.systems/api/interpreter"
)

var overpassFilters = []string{
	`["amenity"~"^(hospital|clinic|doctors|health_post)$"]`,
	`["healthcare"]`,
}

// Overpass queries an Overpass interpreter for health amenities inside the query bbox.
type Overpass struct {
	name     string
	endpoint string
	client   *http.Client
	timeout  time.Duration
	now      func() time.Time
}

func NewOverpass(name, endpoint string, client *http.Client, timeout time.Duration) *Overpass {
	if endpoint == "" {
		endpoint = DefaultOverpassEndpoint
	}
	return &Overpass{name: name, endpoint: endpoint, client: defaultClient(client), timeout: timeout, now: time.Now}
}

func (o *Overpass) Name() string { return o.name }

func (o *Overpass) Fetch(ctx context.Context, cat models.Category, q Query) (models.Batch, Outcome) {
	return guard(ctx, o.name, o.timeout, cat, q, o.fetch)
}

// OverpassQL builds the query text for bbox; the server-side timeout tracks the client one.
func OverpassQL(b BBox, timeout time.Duration) string {
	secs := int(timeout.Seconds())
	if secs <= 0 {
		secs = int(DefaultTimeout.Seconds())
	}
	box := fmt.Sprintf("(%s,%s,%s,%s)", ftoa(b.South), ftoa(b.West), ftoa(b.North), ftoa(b.East))
	var sb strings.Builder
	fmt.Fprintf(&sb, "[out:json][timeout:%d];\n(\n", secs)
	for _, f := range overpassFilters {
		for _, el := range []string{"node", "way", "relation"} {
			sb.WriteString("  " + el + f + box + ";\n")
		}
	}
	sb.WriteString(");\nout center tags;")
	return sb.String()
}

func ftoa(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func (o *Overpass) fetch(ctx context.Context, cat models.Category, q Query) (models.Batch, error) {
	if cat.Kind() != models.KindFacility {
		return models.Batch{}, unsupported(o.name, cat)
	}
	form := url.Values{"data": {OverpassQL(q.BBox, o.timeout)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return models.Batch{}, fmt.Errorf("%w: build request: %v", ErrParse, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	raw, err := do(o.client, req)
	if err != nil {
		return models.Batch{}, err
	}
	return parseOverpass(raw, o.name, o.now().UTC())
}

// parseOverpass maps the node/way/relation graph. Ways and relations carry a center from
// "out center"; elements with no coordinate or no health tag are skipped.
func parseOverpass(raw []byte, source string, at time.Time) (models.Batch, error) {
	if !gjson.ValidBytes(raw) {
		return models.Batch{}, fmt.Errorf("%w: overpass response is not json", ErrParse)
	}
	doc := gjson.ParseBytes(raw)
	elements := doc.Get("elements")
	if !elements.IsArray() {
		if remark := doc.Get("remark").String(); remark != "" {
			return models.Batch{}, fmt.Errorf("%w: overpass remark: %s", ErrNetwork, remark)
		}
		return models.Batch{}, fmt.Errorf("%w: missing elements array", ErrParse)
	}
	var b models.Batch
	elements.ForEach(func(_, el gjson.Result) bool {
		if f, ok := overpassFacility(el, source, at); ok {
			b.Facilities = append(b.Facilities, f)
		}
		return true
	})
	if len(b.Facilities) == 0 {
		return models.Batch{}, fmt.Errorf("%w: %d elements, none usable", ErrEmptyResult, len(elements.Array()))
	}
	return b, nil
}

// overpassPoint reads a node's position or a way/relation center. Non-numeric, out of range and
// (0,0) coordinates are unusable.
func overpassPoint(el gjson.Result) (models.Location, bool) {
	lat, lon := el.Get("lat"), el.Get("lon")
	if !lat.Exists() || !lon.Exists() {
		lat, lon = el.Get("center.lat"), el.Get("center.lon")
	}
	if lat.Type != gjson.Number || lon.Type != gjson.Number {
		return models.Location{}, false
	}
	x, y := lon.Float(), lat.Float()
	if (x == 0 && y == 0) || !models.ValidCoordinates(x, y) {
		return models.Location{}, false
	}
	return models.NewPoint(x, y), true
}

func overpassFacility(el gjson.Result, source string, at time.Time) (models.Facility, bool) {
	loc, ok := overpassPoint(el)
	if !ok {
		return models.Facility{}, false
	}
	tags := map[string]string{}
	el.Get("tags").ForEach(func(k, v gjson.Result) bool {
		tags[k.String()] = v.String()
		return true
	})
	label := normalize.OSMFacilityLabel(tags)
	if label == "" {
		return models.Facility{}, false
	}
	name := firstTag(tags, "name:en", "name", "official_name")
	if name == "" {
		name = label
	}
	return models.Facility{
		ID:       models.StableID("osm", el.Get("type").String()+"/"+el.Get("id").String()),
		Name:     name,
		Type:     normalize.FacilityType(label),
		Location: loc,
		Admin: models.Admin{
			Upazila:  firstTag(tags, "addr:subdistrict", "is_in:upazila"),
			District: firstTag(tags, "addr:district", "is_in:district", "addr:city"),
			Division: firstTag(tags, "addr:state", "addr:province", "is_in:division"),
		},
		Services: normalize.List(firstTag(tags, "healthcare:speciality")),
		Contact:  models.Contact{Phone: firstTag(tags, "phone", "contact:phone"), Email: firstTag(tags, "email", "contact:email")},
		Accessibility: models.Accessibility{
			TransportOptions: []string{},
			Notes:            wheelchairNote(tags["wheelchair"]),
		},
		Source:      source,
		LastUpdated: at,
	}, true
}

func firstTag(tags map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(tags[k]); v != "" {
			return v
		}
	}
	return ""
}

func wheelchairNote(v string) string {
	if v == "" {
		return ""
	}
	return "wheelchair: " + v
}
