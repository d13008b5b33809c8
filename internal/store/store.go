// Package store defines the GeoStore contract and its in-memory backend. Postgres and MongoDB
// backends live in pgstore and mongostore.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"health-geo/internal/models"

	"github.com/paulmach/orb"
)

var (
	ErrUnknownCategory = errors.New("unknown category")
	ErrKindMismatch    = errors.New("category does not hold this record kind")
)

// NearQuery selects records within MaxDistanceMeters of Origin, nearest first, at most Limit.
type NearQuery struct {
	Origin            orb.Point
	MaxDistanceMeters float64
	Limit             int
}

// WorkerFilter narrows worker lookups. Empty fields match everything; matching is case-insensitive.
type WorkerFilter struct {
	Skill    string
	Upazila  string
	District string
	Division string
}

// Match applies the filter to one worker.
func (f WorkerFilter) Match(w models.Worker) bool {
	if f.Skill != "" && !w.HasSkill(f.Skill) {
		return false
	}
	if f.Upazila != "" && !strings.EqualFold(strings.TrimSpace(w.Admin.Upazila), strings.TrimSpace(f.Upazila)) {
		return false
	}
	if f.District != "" && !strings.EqualFold(strings.TrimSpace(w.Admin.District), strings.TrimSpace(f.District)) {
		return false
	}
	if f.Division != "" && !strings.EqualFold(strings.TrimSpace(w.Admin.Division), strings.TrimSpace(f.Division)) {
		return false
	}
	return true
}

// GeoStore persists one live generation of records per category.
//
// Replace stages the batch and swaps it in atomically: concurrent readers see either the old or
// the new generation, never an empty or partial one. Callers serialize Replace per category.
type GeoStore interface {
	Replace(ctx context.Context, cat models.Category, b models.Batch) error
	NearFacilities(ctx context.Context, cat models.Category, q NearQuery) ([]models.Facility, error)
	NearWorkers(ctx context.Context, q NearQuery, f WorkerFilter) ([]models.Worker, error)
	Load(ctx context.Context, cat models.Category) (models.Batch, error)
	Count(ctx context.Context, cat models.Category) (int, error)
	Close() error
}

// CheckKind validates that cat exists and stores records of kind k.
func CheckKind(cat models.Category, k models.Kind) error {
	if !cat.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, cat)
	}
	if cat.Kind() != k {
		return fmt.Errorf("%w: %s", ErrKindMismatch, cat)
	}
	return nil
}
