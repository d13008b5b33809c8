package api

import (
	"encoding/json"

	"health-geo/internal/discovery"
	"health-geo/internal/ingest"
	"health-geo/internal/sources"
)

// Origin is the resolved query position and where it came from (query, ip, edge, geoip).
type Origin struct {
	Lon    float64 `json:"lon"`
	Lat    float64 `json:"lat"`
	Source string  `json:"source"`
}

// page is the cacheable part of a nearest-* response; the origin is added per request.
type page struct {
	Count   int             `json:"count"`
	Results json.RawMessage `json:"results"`
}

type nearestResponse struct {
	Origin  Origin          `json:"origin"`
	Count   int             `json:"count"`
	Results json.RawMessage `json:"results"`
}

// emptyState is every error body on the discovery routes, so clients always find a results array.
type emptyState struct {
	Results []struct{} `json:"results"`
	Error   string     `json:"error"`
}

type directionsResponse struct {
	From Origin `json:"from"`
	To   Origin `json:"to"`
	discovery.Directions
}

type ingestResponse struct {
	Counts *ingest.Counts `json:"counts,omitempty"`
	Report *ingest.Report `json:"report,omitempty"`
	Error  string         `json:"error,omitempty"`
}

type healthResponse struct {
	Status  string           `json:"status"`
	Counts  *ingest.Counts   `json:"counts,omitempty"`
	Sources []sources.Status `json:"sources,omitempty"`
	Error   string           `json:"error,omitempty"`
}
