// Package models holds the canonical record shapes shared by ingestion, storage and discovery.
package models

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

var (
	ErrInvalidLocation = errors.New("invalid point geometry")
	ErrInvalidType     = errors.New("type is not a canonical enum member")
	ErrMissingID       = errors.New("record id is empty")
)

// Category names one independently ingested dataset.
type Category string

const (
	CategoryFacilities    Category = "facilities"
	CategoryOSMFacilities Category = "osm_facilities"
	CategoryBoundaries    Category = "boundaries"
	CategoryWorkers       Category = "workers"
	CategoryStandardized  Category = "standardized_facilities"
)

// SourceCategories are the categories fed by adapter chains, in ingestion order.
var SourceCategories = []Category{CategoryBoundaries, CategoryFacilities, CategoryOSMFacilities, CategoryWorkers}

// AllCategories includes the derived standardized view.
var AllCategories = []Category{CategoryFacilities, CategoryOSMFacilities, CategoryBoundaries, CategoryWorkers, CategoryStandardized}

// Kind is the record shape a category holds.
type Kind int

const (
	KindUnknown Kind = iota
	KindFacility
	KindWorker
	KindBoundary
)

func (c Category) Kind() Kind {
	switch c {
	case CategoryFacilities, CategoryOSMFacilities, CategoryStandardized:
		return KindFacility
	case CategoryWorkers:
		return KindWorker
	case CategoryBoundaries:
		return KindBoundary
	}
	return KindUnknown
}

func (c Category) Valid() bool { return c.Kind() != KindUnknown }

// ParseCategory accepts the canonical names plus a few short aliases.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "facilities", "facility":
		return CategoryFacilities, nil
	case "osm_facilities", "osm", "osmfacilities":
		return CategoryOSMFacilities, nil
	case "boundaries", "boundary":
		return CategoryBoundaries, nil
	case "workers", "worker", "chw":
		return CategoryWorkers, nil
	case "standardized_facilities", "standardized":
		return CategoryStandardized, nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Location is a GeoJSON point; Coordinates are always [lon, lat].
type Location struct {
	Type        string     `json:"type" bson:"type"`
	Coordinates [2]float64 `json:"coordinates" bson:"coordinates"`
}

func NewPoint(lon, lat float64) Location {
	return Location{Type: "Point", Coordinates: [2]float64{lon, lat}}
}

func (l Location) Lon() float64 { return l.Coordinates[0] }
func (l Location) Lat() float64 { return l.Coordinates[1] }

// Point converts to orb's [lon, lat] order.
func (l Location) Point() orb.Point { return orb.Point{l.Coordinates[0], l.Coordinates[1]} }

// Valid reports whether l is a finite point with lon in [-180,180] and lat in [-90,90].
func (l Location) Valid() bool {
	return l.Type == "Point" && ValidCoordinates(l.Coordinates[0], l.Coordinates[1])
}

func ValidCoordinates(lon, lat float64) bool {
	if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
		return false
	}
	return lon >= -180 && lon <= 180 && lat >= -90 && lat <= 90
}

// Admin is the best-effort administrative hierarchy, free text.
type Admin struct {
	Upazila  string `json:"upazila,omitempty" bson:"upazila,omitempty"`
	District string `json:"district,omitempty" bson:"district,omitempty"`
	Division string `json:"division,omitempty" bson:"division,omitempty"`
}

func (a Admin) Empty() bool { return a.Upazila == "" && a.District == "" && a.Division == "" }

type Contact struct {
	Phone string `json:"phone,omitempty" bson:"phone,omitempty"`
	Email string `json:"email,omitempty" bson:"email,omitempty"`
}

// Accessibility is the only input to the accessibility score.
type Accessibility struct {
	RoadAccess       bool     `json:"roadAccess" bson:"roadAccess"`
	PublicTransport  bool     `json:"publicTransport" bson:"publicTransport"`
	TransportOptions []string `json:"transportOptions" bson:"transportOptions"`
	Notes            string   `json:"notes,omitempty" bson:"notes,omitempty"`
}

type Facility struct {
	ID            string        `json:"id" bson:"_id"`
	Name          string        `json:"name" bson:"name"`
	Type          FacilityType  `json:"type" bson:"type"`
	Location      Location      `json:"location" bson:"location"`
	Admin         Admin         `json:"admin" bson:"admin"`
	Services      []string      `json:"services" bson:"services"`
	Contact       Contact       `json:"contact" bson:"contact"`
	Accessibility Accessibility `json:"accessibility" bson:"accessibility"`
	Verified      bool          `json:"verified" bson:"verified"`
	Source        string        `json:"source" bson:"source"`
	LastUpdated   time.Time     `json:"lastUpdated" bson:"lastUpdated"`
}

func (f Facility) Validate() error {
	if f.ID == "" {
		return ErrMissingID
	}
	if !f.Location.Valid() {
		return fmt.Errorf("facility %s: %w", f.ID, ErrInvalidLocation)
	}
	if !f.Type.Valid() {
		return fmt.Errorf("facility %s type %q: %w", f.ID, f.Type, ErrInvalidType)
	}
	return nil
}

type Worker struct {
	ID           string            `json:"id" bson:"_id"`
	Name         string            `json:"name" bson:"name"`
	Type         WorkerType        `json:"type" bson:"type"`
	Location     Location          `json:"location" bson:"location"`
	ServiceArea  *geojson.Geometry `json:"serviceArea,omitempty" bson:"serviceArea,omitempty"`
	Admin        Admin             `json:"admin" bson:"admin"`
	Contact      Contact           `json:"contact" bson:"contact"`
	Skills       []string          `json:"skills" bson:"skills"`
	Availability Availability      `json:"availability" bson:"availability"`
	Verified     bool              `json:"verified" bson:"verified"`
	Source       string            `json:"source" bson:"source"`
	LastUpdated  time.Time         `json:"lastUpdated" bson:"lastUpdated"`
}

func (w Worker) Validate() error {
	if w.ID == "" {
		return ErrMissingID
	}
	if !w.Location.Valid() {
		return fmt.Errorf("worker %s: %w", w.ID, ErrInvalidLocation)
	}
	if !w.Type.Valid() {
		return fmt.Errorf("worker %s type %q: %w", w.ID, w.Type, ErrInvalidType)
	}
	if !w.Availability.Valid() {
		return fmt.Errorf("worker %s availability %q: %w", w.ID, w.Availability, ErrInvalidType)
	}
	return nil
}

// HasSkill matches case-insensitively.
func (w Worker) HasSkill(skill string) bool {
	for _, s := range w.Skills {
		if strings.EqualFold(strings.TrimSpace(s), strings.TrimSpace(skill)) {
			return true
		}
	}
	return false
}

// Boundary is an administrative area. Location is its centroid so boundaries share the
// point-geometry invariant and the spatial index of the other categories.
type Boundary struct {
	ID          string            `json:"id" bson:"_id"`
	Name        string            `json:"name" bson:"name"`
	Level       string            `json:"level" bson:"level"`
	Admin       Admin             `json:"admin" bson:"admin"`
	Location    Location          `json:"location" bson:"location"`
	Geometry    *geojson.Geometry `json:"geometry,omitempty" bson:"geometry,omitempty"`
	Source      string            `json:"source" bson:"source"`
	LastUpdated time.Time         `json:"lastUpdated" bson:"lastUpdated"`
}

func (b Boundary) Validate() error {
	if b.ID == "" {
		return ErrMissingID
	}
	if !b.Location.Valid() {
		return fmt.Errorf("boundary %s: %w", b.ID, ErrInvalidLocation)
	}
	return nil
}

// Contains reports whether pt lies inside the boundary polygon(s).
func (b Boundary) Contains(pt orb.Point) bool {
	if b.Geometry == nil {
		return false
	}
	switch g := b.Geometry.Geometry().(type) {
	case orb.Polygon:
		return g.Bound().Contains(pt) && planar.PolygonContains(g, pt)
	case orb.MultiPolygon:
		return g.Bound().Contains(pt) && planar.MultiPolygonContains(g, pt)
	}
	return false
}

// NewBoundary derives the centroid Location from an areal geometry.
func NewBoundary(id, name, level string, admin Admin, g orb.Geometry, source string, at time.Time) Boundary {
	c, _ := planar.CentroidArea(g)
	return Boundary{
		ID:          id,
		Name:        name,
		Level:       level,
		Admin:       admin,
		Location:    NewPoint(c[0], c[1]),
		Geometry:    geojson.NewGeometry(g),
		Source:      source,
		LastUpdated: at,
	}
}

// Batch is the unit an adapter returns and a store replaces. Only the slice matching the
// category kind is used.
type Batch struct {
	Facilities []Facility `json:"facilities,omitempty"`
	Workers    []Worker   `json:"workers,omitempty"`
	Boundaries []Boundary `json:"boundaries,omitempty"`
}

func (b Batch) Len() int { return len(b.Facilities) + len(b.Workers) + len(b.Boundaries) }

// Valid returns a copy without the records that fail validation, and how many were dropped.
func (b Batch) Valid() (Batch, int) {
	var out Batch
	dropped := 0
	for _, f := range b.Facilities {
		if f.Validate() != nil {
			dropped++
			continue
		}
		out.Facilities = append(out.Facilities, f)
	}
	for _, w := range b.Workers {
		if w.Validate() != nil {
			dropped++
			continue
		}
		out.Workers = append(out.Workers, w)
	}
	for _, bd := range b.Boundaries {
		if bd.Validate() != nil {
			dropped++
			continue
		}
		out.Boundaries = append(out.Boundaries, bd)
	}
	return out, dropped
}

// For keeps only the slice a category of kind k stores.
func (b Batch) For(k Kind) Batch {
	switch k {
	case KindFacility:
		return Batch{Facilities: b.Facilities}
	case KindWorker:
		return Batch{Workers: b.Workers}
	case KindBoundary:
		return Batch{Boundaries: b.Boundaries}
	}
	return Batch{}
}

var idNamespace = uuid.MustParse("5b3f2c1e-8a7d-4e57-9c1b-6d0f4a2e9b10")

// StableID derives a deterministic record id from provenance and a provider key, so re-ingesting
// the same provider row yields the same id.
func StableID(source, key string) string {
	return uuid.NewSHA1(idNamespace, []byte(source+"|"+key)).String()
}
