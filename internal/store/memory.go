package store

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"health-geo/internal/geo"
	"health-geo/internal/models"
)

type generation struct {
	batch   models.Batch
	swapped time.Time
}

// Memory keeps each category's generation behind an atomic pointer. Readers never block and a
// Replace becomes visible in one pointer store.
type Memory struct {
	gens map[models.Category]*atomic.Pointer[generation]
}

func NewMemory() *Memory {
	m := &Memory{gens: make(map[models.Category]*atomic.Pointer[generation], len(models.AllCategories))}
	for _, c := range models.AllCategories {
		m.gens[c] = &atomic.Pointer[generation]{}
	}
	return m
}

func (m *Memory) slot(cat models.Category) (*atomic.Pointer[generation], error) {
	p, ok := m.gens[cat]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, cat)
	}
	return p, nil
}

func (m *Memory) current(cat models.Category) (models.Batch, error) {
	p, err := m.slot(cat)
	if err != nil {
		return models.Batch{}, err
	}
	g := p.Load()
	if g == nil {
		return models.Batch{}, nil
	}
	return g.batch, nil
}

// Replace copies the category's slice of b into a fresh generation and publishes it.
func (m *Memory) Replace(ctx context.Context, cat models.Category, b models.Batch) error {
	p, err := m.slot(cat)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	staged := b.For(cat.Kind())
	staged = models.Batch{
		Facilities: append([]models.Facility(nil), staged.Facilities...),
		Workers:    append([]models.Worker(nil), staged.Workers...),
		Boundaries: append([]models.Boundary(nil), staged.Boundaries...),
	}
	p.Store(&generation{batch: staged, swapped: time.Now()})
	return nil
}

type scored[T any] struct {
	rec  T
	dist float64
}

func nearest[T any](recs []T, loc func(T) models.Location, keep func(T) bool, q NearQuery) []T {
	hits := make([]scored[T], 0, len(recs))
	for _, r := range recs {
		if keep != nil && !keep(r) {
			continue
		}
		d := geo.Distance(q.Origin, loc(r).Point())
		if q.MaxDistanceMeters > 0 && d > q.MaxDistanceMeters {
			continue
		}
		hits = append(hits, scored[T]{rec: r, dist: d})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })
	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	out := make([]T, len(hits))
	for i, h := range hits {
		out[i] = h.rec
	}
	return out
}

func (m *Memory) NearFacilities(ctx context.Context, cat models.Category, q NearQuery) ([]models.Facility, error) {
	if err := CheckKind(cat, models.KindFacility); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := m.current(cat)
	if err != nil {
		return nil, err
	}
	return nearest(b.Facilities, func(f models.Facility) models.Location { return f.Location }, nil, q), nil
}

func (m *Memory) NearWorkers(ctx context.Context, q NearQuery, f WorkerFilter) ([]models.Worker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := m.current(models.CategoryWorkers)
	if err != nil {
		return nil, err
	}
	return nearest(b.Workers, func(w models.Worker) models.Location { return w.Location }, f.Match, q), nil
}

// Load returns the live generation. Slices are shared; callers must not mutate them.
func (m *Memory) Load(ctx context.Context, cat models.Category) (models.Batch, error) {
	if err := ctx.Err(); err != nil {
		return models.Batch{}, err
	}
	return m.current(cat)
}

func (m *Memory) Count(ctx context.Context, cat models.Category) (int, error) {
	b, err := m.Load(ctx, cat)
	if err != nil {
		return 0, err
	}
	return b.Len(), nil
}

func (m *Memory) Close() error { return nil }
