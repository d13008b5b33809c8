// Package normalize maps provider vocabulary onto the canonical enums. Lookups never fail:
// unknown input falls back to clinic, volunteer or full_time.
package normalize

import (
	"strings"

	"health-geo/internal/models"
)

const (
	FallbackFacility     = models.FacilityClinic
	FallbackWorker       = models.WorkerVolunteer
	FallbackAvailability = models.AvailabilityFullTime
)

type keywordRule[T any] struct {
	keyword string
	value   T
}

var facilityExact = map[string]models.FacilityType{
	"hospital":               models.FacilityHospital,
	"hospitals":              models.FacilityHospital,
	"amenity=hospital":       models.FacilityHospital,
	"healthcare=hospital":    models.FacilityHospital,
	"district hospital":      models.FacilityHospital,
	"general hospital":       models.FacilityHospital,
	"medical college":        models.FacilityHospital,
	"clinic":                 models.FacilityClinic,
	"clinics":                models.FacilityClinic,
	"amenity=clinic":         models.FacilityClinic,
	"healthcare=clinic":      models.FacilityClinic,
	"amenity=doctors":        models.FacilityClinic,
	"healthcare=doctor":      models.FacilityClinic,
	"doctors":                models.FacilityClinic,
	"pharmacy":               models.FacilityClinic,
	"amenity=pharmacy":       models.FacilityClinic,
	"healthcare=pharmacy":    models.FacilityClinic,
	"diagnostic centre":      models.FacilityClinic,
	"diagnostic center":      models.FacilityClinic,
	"community clinic":       models.FacilityCommunityClinic,
	"community_clinic":       models.FacilityCommunityClinic,
	"cc":                     models.FacilityCommunityClinic,
	"uhc":                    models.FacilityUpazilaHealthComplex,
	"upazila health complex": models.FacilityUpazilaHealthComplex,
	"upazila_health_complex": models.FacilityUpazilaHealthComplex,
	"thana health complex":   models.FacilityUpazilaHealthComplex,
	"union health center":    models.FacilityUnionHealthCenter,
	"union health centre":    models.FacilityUnionHealthCenter,
	"union_health_center":    models.FacilityUnionHealthCenter,
	"uh&fwc":                 models.FacilityUnionHealthCenter,
	"union sub centre":       models.FacilityUnionHealthCenter,
	"health post":            models.FacilityCommunityClinic,
	"healthcare=centre":      models.FacilityClinic,
	"amenity=health_post":    models.FacilityCommunityClinic,
	"healthcare=health_post": models.FacilityCommunityClinic,
}

// Keyword rules run in order; more specific phrases come first.
var facilityKeywords = []keywordRule[models.FacilityType]{
	{"upazila", models.FacilityUpazilaHealthComplex},
	{"health complex", models.FacilityUpazilaHealthComplex},
	{"union", models.FacilityUnionHealthCenter},
	{"family welfare", models.FacilityUnionHealthCenter},
	{"community", models.FacilityCommunityClinic},
	{"hospital", models.FacilityHospital},
	{"medical college", models.FacilityHospital},
	{"clinic", models.FacilityClinic},
}

var workerExact = map[string]models.WorkerType{
	"chw":                      models.WorkerCHW,
	"community health worker":  models.WorkerCHW,
	"health assistant":         models.WorkerCHW,
	"family welfare assistant": models.WorkerCHW,
	"fwa":                      models.WorkerCHW,
	"ha":                       models.WorkerCHW,
	"shasthya shebika":         models.WorkerCHW,
	"doctor":                   models.WorkerDoctor,
	"doctors":                  models.WorkerDoctor,
	"physician":                models.WorkerDoctor,
	"mbbs":                     models.WorkerDoctor,
	"medical officer":          models.WorkerDoctor,
	"healthcare=doctor":        models.WorkerDoctor,
	"amenity=doctors":          models.WorkerDoctor,
	"nurse":                    models.WorkerNurse,
	"nurses":                   models.WorkerNurse,
	"staff nurse":              models.WorkerNurse,
	"senior staff nurse":       models.WorkerNurse,
	"healthcare=nurse":         models.WorkerNurse,
	"midwife":                  models.WorkerMidwife,
	"midwives":                 models.WorkerMidwife,
	"healthcare=midwife":       models.WorkerMidwife,
	"family welfare visitor":   models.WorkerMidwife,
	"fwv":                      models.WorkerMidwife,
	"volunteer":                models.WorkerVolunteer,
}

var workerKeywords = []keywordRule[models.WorkerType]{
	{"community health", models.WorkerCHW},
	{"chw", models.WorkerCHW},
	{"midwi", models.WorkerMidwife},
	{"nurs", models.WorkerNurse},
	{"doctor", models.WorkerDoctor},
	{"physician", models.WorkerDoctor},
	{"surgeon", models.WorkerDoctor},
	{"volunteer", models.WorkerVolunteer},
}

var availabilityExact = map[string]models.Availability{
	"full_time": models.AvailabilityFullTime,
	"full time": models.AvailabilityFullTime,
	"fulltime":  models.AvailabilityFullTime,
	"full-time": models.AvailabilityFullTime,
	"24/7":      models.AvailabilityFullTime,
	"part_time": models.AvailabilityPartTime,
	"part time": models.AvailabilityPartTime,
	"parttime":  models.AvailabilityPartTime,
	"part-time": models.AvailabilityPartTime,
	"on_call":   models.AvailabilityOnCall,
	"on call":   models.AvailabilityOnCall,
	"oncall":    models.AvailabilityOnCall,
	"on-call":   models.AvailabilityOnCall,
	"emergency": models.AvailabilityOnCall,
}

// Key lowercases and collapses whitespace so table lookups are insensitive to formatting.
func Key(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), " ")
}

func lookup[T any](raw string, exact map[string]T, rules []keywordRule[T], fallback T) T {
	k := Key(raw)
	if k == "" {
		return fallback
	}
	if v, ok := exact[k]; ok {
		return v
	}
	// tag pairs like "amenity=hospital" also match on their value alone
	if i := strings.IndexByte(k, '='); i >= 0 {
		if v, ok := exact[k[i+1:]]; ok {
			return v
		}
	}
	spaced := strings.NewReplacer("_", " ", "-", " ").Replace(k)
	if v, ok := exact[spaced]; ok {
		return v
	}
	for _, r := range rules {
		if strings.Contains(spaced, r.keyword) {
			return r.value
		}
	}
	return fallback
}

// FacilityType maps any provider facility label; unknown labels become clinic.
func FacilityType(raw string) models.FacilityType {
	return lookup(raw, facilityExact, facilityKeywords, FallbackFacility)
}

// WorkerType maps any provider worker label; unknown labels become volunteer.
func WorkerType(raw string) models.WorkerType {
	return lookup(raw, workerExact, workerKeywords, FallbackWorker)
}

// Availability maps free-text availability; unknown text becomes full_time.
func Availability(raw string) models.Availability {
	return lookup[models.Availability](raw, availabilityExact, nil, FallbackAvailability)
}

var osmTagKeys = []string{"healthcare", "amenity"}

// OSMFacilityLabel picks the most specific facility tag pair ("healthcare=hospital") from an
// element's tag set, or "" when none is present.
func OSMFacilityLabel(tags map[string]string) string {
	for _, k := range osmTagKeys {
		if v := strings.TrimSpace(tags[k]); v != "" {
			return k + "=" + v
		}
	}
	return ""
}

// List splits a delimited cell ("a; b, c|d") into trimmed, non-empty items.
func List(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' || r == '|' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Bool reads the usual truthy spellings found in spreadsheets.
func Bool(raw string) bool {
	switch Key(raw) {
	case "1", "true", "yes", "y", "t", "available", "paved":
		return true
	}
	return false
}
