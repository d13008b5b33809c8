package ingest

import (
	"sort"
	"strings"
	"sync"

	"health-geo/internal/geo"
	"health-geo/internal/models"
	"health-geo/internal/normalize"
)

// DefaultDedupeRadius is how close two same-named facilities must be to count as one.
const DefaultDedupeRadius = 100.0

var levelRank = map[string]int{"union": 0, "upazila": 1, "district": 2, "division": 3}

func rankOf(level string) int {
	if r, ok := levelRank[strings.ToLower(level)]; ok {
		return r
	}
	return len(levelRank)
}

// Standardize merges curated and OSM facilities into one deduplicated set. Records are kept in
// preference order (verified first, then curated before OSM); a later record with the same
// normalized name within radius meters is folded into the kept one, filling its gaps. Missing
// admin fields are then filled from the most specific boundary containing the point.
func Standardize(curated, osm []models.Facility, boundaries []models.Boundary, radius float64) []models.Facility {
	if radius <= 0 {
		radius = DefaultDedupeRadius
	}
	all := make([]models.Facility, 0, len(curated)+len(osm))
	all = append(all, curated...)
	all = append(all, osm...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Verified && !all[j].Verified })

	var out []models.Facility
	byName := map[string][]int{}
	seenID := map[string]bool{}
	for _, f := range all {
		if seenID[f.ID] {
			continue
		}
		key := normalize.Key(f.Name)
		merged := false
		if key != "" {
			for _, i := range byName[key] {
				if geo.Distance(out[i].Location.Point(), f.Location.Point()) <= radius {
					out[i] = fold(out[i], f)
					merged = true
					break
				}
			}
		}
		if merged {
			continue
		}
		seenID[f.ID] = true
		byName[key] = append(byName[key], len(out))
		out = append(out, f)
	}

	areas := append([]models.Boundary(nil), boundaries...)
	sort.SliceStable(areas, func(i, j int) bool { return rankOf(areas[i].Level) < rankOf(areas[j].Level) })
	for i := range out {
		out[i].Admin = fillAdmin(out[i].Admin, out[i].Location, areas)
	}
	return out
}

// fold fills the gaps of kept from dup.
func fold(kept, dup models.Facility) models.Facility {
	kept.Admin = mergeAdmin(kept.Admin, dup.Admin)
	if kept.Contact.Phone == "" {
		kept.Contact.Phone = dup.Contact.Phone
	}
	if kept.Contact.Email == "" {
		kept.Contact.Email = dup.Contact.Email
	}
	kept.Services = union(kept.Services, dup.Services)
	kept.Accessibility.TransportOptions = union(kept.Accessibility.TransportOptions, dup.Accessibility.TransportOptions)
	kept.Accessibility.RoadAccess = kept.Accessibility.RoadAccess || dup.Accessibility.RoadAccess
	kept.Accessibility.PublicTransport = kept.Accessibility.PublicTransport || dup.Accessibility.PublicTransport
	if kept.Accessibility.Notes == "" {
		kept.Accessibility.Notes = dup.Accessibility.Notes
	}
	return kept
}

func mergeAdmin(a, b models.Admin) models.Admin {
	if a.Upazila == "" {
		a.Upazila = b.Upazila
	}
	if a.District == "" {
		a.District = b.District
	}
	if a.Division == "" {
		a.Division = b.Division
	}
	return a
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	out := append([]string{}, a...)
	for _, s := range a {
		seen[normalize.Key(s)] = true
	}
	for _, s := range b {
		if k := normalize.Key(s); k != "" && !seen[k] {
			seen[k] = true
			out = append(out, s)
		}
	}
	return out
}

// fillAdmin walks areas most specific first and fills whatever is still empty.
func fillAdmin(a models.Admin, loc models.Location, areas []models.Boundary) models.Admin {
	if a.Upazila != "" && a.District != "" && a.Division != "" {
		return a
	}
	pt := loc.Point()
	for _, b := range areas {
		if !b.Contains(pt) {
			continue
		}
		a = mergeAdmin(a, b.Admin)
		if a.Upazila != "" && a.District != "" && a.Division != "" {
			break
		}
	}
	return a
}

// BoundaryGeocoder places an admin area at its boundary centroid, trying upazila, then
// district, then division.
type BoundaryGeocoder struct {
	upazila  map[string]models.Location
	district map[string]models.Location
	division map[string]models.Location
}

func NewBoundaryGeocoder(bs []models.Boundary) *BoundaryGeocoder {
	g := &BoundaryGeocoder{
		upazila:  map[string]models.Location{},
		district: map[string]models.Location{},
		division: map[string]models.Location{},
	}
	for _, b := range bs {
		var m map[string]models.Location
		var name string
		switch strings.ToLower(b.Level) {
		case "upazila":
			m, name = g.upazila, b.Admin.Upazila
		case "district":
			m, name = g.district, b.Admin.District
		case "division":
			m, name = g.division, b.Admin.Division
		default:
			continue
		}
		if name == "" {
			name = b.Name
		}
		if k := normalize.Key(name); k != "" {
			if _, dup := m[k]; !dup {
				m[k] = b.Location
			}
		}
	}
	return g
}

func (g *BoundaryGeocoder) Geocode(a models.Admin) (models.Location, bool) {
	for _, c := range []struct {
		m    map[string]models.Location
		name string
	}{{g.upazila, a.Upazila}, {g.district, a.District}, {g.division, a.Division}} {
		if l, ok := c.m[normalize.Key(c.name)]; ok && c.name != "" {
			return l, true
		}
	}
	return models.Location{}, false
}

// LiveGeocoder is a BoundaryGeocoder that the pipeline refreshes whenever boundaries change.
// Adapters hold it for their whole lifetime.
type LiveGeocoder struct {
	mu sync.RWMutex
	g  *BoundaryGeocoder
}

func NewLiveGeocoder() *LiveGeocoder { return &LiveGeocoder{g: NewBoundaryGeocoder(nil)} }

func (l *LiveGeocoder) Refresh(bs []models.Boundary) {
	g := NewBoundaryGeocoder(bs)
	l.mu.Lock()
	l.g = g
	l.mu.Unlock()
}

func (l *LiveGeocoder) Geocode(a models.Admin) (models.Location, bool) {
	l.mu.RLock()
	g := l.g
	l.mu.RUnlock()
	return g.Geocode(a)
}
