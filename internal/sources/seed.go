package sources

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"time"

	"health-geo/internal/models"

	"github.com/paulmach/orb/geojson"
)

//go:embed seed/*
var seedFS embed.FS

const SeedName = "seed"

// Seed serves the bundled fixture dataset. It performs no I/O beyond the embedded files and is
// the last resort of every ingestion chain.
type Seed struct {
	now func() time.Time
}

func NewSeed() *Seed { return &Seed{now: time.Now} }

func (s *Seed) Name() string { return SeedName }

func (s *Seed) Fetch(ctx context.Context, cat models.Category, q Query) (models.Batch, Outcome) {
	return guard(ctx, SeedName, 0, cat, q, s.fetch)
}

func (s *Seed) fetch(_ context.Context, cat models.Category, _ Query) (models.Batch, error) {
	at := s.now().UTC()
	switch cat {
	case models.CategoryFacilities, models.CategoryStandardized:
		return seedRows("seed/facilities.csv", models.CategoryFacilities, at)
	case models.CategoryWorkers:
		return seedRows("seed/workers.csv", cat, at)
	case models.CategoryOSMFacilities:
		raw, err := seedFS.ReadFile("seed/osm_facilities.json")
		if err != nil {
			return models.Batch{}, fmt.Errorf("%w: %v", ErrParse, err)
		}
		return parseOverpass(raw, SeedName, at)
	case models.CategoryBoundaries:
		raw, err := seedFS.ReadFile("seed/boundaries.geojson")
		if err != nil {
			return models.Batch{}, fmt.Errorf("%w: %v", ErrParse, err)
		}
		fc, err := geojson.UnmarshalFeatureCollection(raw)
		if err != nil {
			return models.Batch{}, fmt.Errorf("%w: %v", ErrParse, err)
		}
		return models.Batch{Boundaries: featureBoundaries(fc, SeedName, at)}, nil
	}
	return models.Batch{}, unsupported(SeedName, cat)
}

func seedRows(file string, cat models.Category, at time.Time) (models.Batch, error) {
	raw, err := seedFS.ReadFile(file)
	if err != nil {
		return models.Batch{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	rows, _, err := readRows(bytes.NewReader(raw))
	if err != nil {
		return models.Batch{}, err
	}
	b, _, err := rowMapper{source: SeedName, now: at}.batch(cat, rows)
	return b, err
}
