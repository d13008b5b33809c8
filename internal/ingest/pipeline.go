package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"health-geo/internal/logger"
	"health-geo/internal/metrics"
	"health-geo/internal/models"
	"health-geo/internal/store"
)

// Counts is the number of live records per category after a full run.
type Counts struct {
	Facilities    int `json:"facilities"`
	OSMFacilities int `json:"osmFacilities"`
	Boundaries    int `json:"boundaries"`
	Workers       int `json:"workers"`
	Standardized  int `json:"standardized"`
}

func (c *Counts) set(cat models.Category, n int) {
	switch cat {
	case models.CategoryFacilities:
		c.Facilities = n
	case models.CategoryOSMFacilities:
		c.OSMFacilities = n
	case models.CategoryBoundaries:
		c.Boundaries = n
	case models.CategoryWorkers:
		c.Workers = n
	case models.CategoryStandardized:
		c.Standardized = n
	}
}

// Pipeline owns the chains of every source category and serializes runs per category.
type Pipeline struct {
	orch     *Orchestrator
	store    store.GeoStore
	chains   map[models.Category]Chain
	locks    map[models.Category]*sync.Mutex
	geocoder *LiveGeocoder
	radius   float64

	// OnComplete runs after a full run that refreshed the standardized view.
	OnComplete func(ctx context.Context, c Counts)
}

type Option func(*Pipeline)

// WithGeocoder keeps g in sync with the boundaries category.
func WithGeocoder(g *LiveGeocoder) Option { return func(p *Pipeline) { p.geocoder = g } }

// WithDedupeRadius overrides DefaultDedupeRadius.
func WithDedupeRadius(m float64) Option { return func(p *Pipeline) { p.radius = m } }

func NewPipeline(s store.GeoStore, chains []Chain, opts ...Option) *Pipeline {
	p := &Pipeline{
		orch:   NewOrchestrator(s),
		store:  s,
		chains: make(map[models.Category]Chain, len(chains)),
		locks:  make(map[models.Category]*sync.Mutex, len(models.AllCategories)),
		radius: DefaultDedupeRadius,
	}
	for _, c := range models.AllCategories {
		p.locks[c] = &sync.Mutex{}
	}
	for _, ch := range chains {
		p.chains[ch.Category] = ch
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Pipeline) lock(cat models.Category) (func(), error) {
	mu, ok := p.locks[cat]
	if !ok {
		return nil, fmt.Errorf("%w: %q", store.ErrUnknownCategory, cat)
	}
	if !mu.TryLock() {
		return nil, fmt.Errorf("%s: %w", cat, ErrRunInProgress)
	}
	return mu.Unlock, nil
}

// RunCategory refreshes one category. The standardized category is derived from the stored
// facilities, osm_facilities and boundaries instead of an adapter chain.
func (p *Pipeline) RunCategory(ctx context.Context, cat models.Category) (Report, error) {
	unlock, err := p.lock(cat)
	if err != nil {
		return Report{Category: cat}, err
	}
	defer unlock()

	if cat == models.CategoryStandardized {
		return p.standardize(ctx)
	}
	ch, ok := p.chains[cat]
	if !ok {
		return Report{Category: cat}, fmt.Errorf("%w: no chain configured for %s", store.ErrUnknownCategory, cat)
	}
	rep, err := p.orch.Run(ctx, ch)
	if err == nil && cat == models.CategoryBoundaries {
		p.refreshGeocoder(ctx)
	}
	return rep, err
}

func (p *Pipeline) refreshGeocoder(ctx context.Context) {
	if p.geocoder == nil {
		return
	}
	b, err := p.store.Load(ctx, models.CategoryBoundaries)
	if err != nil {
		logger.L().Warn("geocoder_refresh_error", "err", err)
		return
	}
	p.geocoder.Refresh(b.Boundaries)
}

func (p *Pipeline) standardize(ctx context.Context) (Report, error) {
	start := time.Now()
	rep := Report{Category: models.CategoryStandardized, Source: "standardize"}
	load := func(cat models.Category) (models.Batch, error) {
		b, err := p.store.Load(ctx, cat)
		if err != nil {
			return models.Batch{}, fmt.Errorf("load %s: %w", cat, err)
		}
		return b, nil
	}
	cur, err := load(models.CategoryFacilities)
	if err != nil {
		return rep, err
	}
	osm, err := load(models.CategoryOSMFacilities)
	if err != nil {
		return rep, err
	}
	bounds, err := load(models.CategoryBoundaries)
	if err != nil {
		return rep, err
	}
	merged := Standardize(cur.Facilities, osm.Facilities, bounds.Boundaries, p.radius)
	if len(merged) == 0 {
		metrics.IngestRunsTotal.WithLabelValues(string(models.CategoryStandardized), "exhausted").Inc()
		return rep, fmt.Errorf("%s: %w", models.CategoryStandardized, ErrIngestionExhausted)
	}
	if err := p.store.Replace(ctx, models.CategoryStandardized, models.Batch{Facilities: merged}); err != nil {
		metrics.IngestRunsTotal.WithLabelValues(string(models.CategoryStandardized), "error").Inc()
		return rep, fmt.Errorf("persist %s: %w", models.CategoryStandardized, err)
	}
	rep.States = []State{StateDone}
	rep.Count = len(merged)
	rep.Duration = time.Since(start)
	metrics.IngestRunsTotal.WithLabelValues(string(models.CategoryStandardized), "ok").Inc()
	metrics.StoreRecords.WithLabelValues(string(models.CategoryStandardized)).Set(float64(rep.Count))
	logger.L().Info("standardize_done", "curated", len(cur.Facilities), "osm", len(osm.Facilities),
		"boundaries", len(bounds.Boundaries), "count", rep.Count, "duration_ms", rep.Duration.Milliseconds())
	return rep, nil
}

// RunFull refreshes every source category in order, then the standardized view. A failing
// category does not stop the others; its count is the untouched live count and its error is
// joined into the result.
func (p *Pipeline) RunFull(ctx context.Context) (Counts, error) {
	var (
		counts Counts
		errs   []error
	)
	l := logger.L()
	l.Info("ingest_full_start")
	for _, cat := range append(append([]models.Category{}, models.SourceCategories...), models.CategoryStandardized) {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		rep, err := p.RunCategory(ctx, cat)
		if err != nil {
			errs = append(errs, err)
			l.Error("ingest_category_error", "category", cat, "err", err)
			n, cerr := p.store.Count(ctx, cat)
			if cerr == nil {
				counts.set(cat, n)
			}
			continue
		}
		counts.set(cat, rep.Count)
		if cat == models.CategoryStandardized && p.OnComplete != nil {
			p.OnComplete(ctx, counts)
		}
	}
	err := errors.Join(errs...)
	l.Info("ingest_full_done", "counts", counts, "failed", len(errs))
	return counts, err
}

// Counts reads the live record count of every category.
func (p *Pipeline) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	for _, cat := range models.AllCategories {
		n, err := p.store.Count(ctx, cat)
		if err != nil {
			return c, fmt.Errorf("count %s: %w", cat, err)
		}
		c.set(cat, n)
	}
	return c, nil
}

// EnsureInitialized runs a full ingestion when the standardized view is empty, so a fresh
// deployment can answer queries without waiting for the first scheduled run.
func (p *Pipeline) EnsureInitialized(ctx context.Context) (bool, error) {
	p.refreshGeocoder(ctx)
	n, err := p.store.Count(ctx, models.CategoryStandardized)
	if err != nil {
		return false, fmt.Errorf("count %s: %w", models.CategoryStandardized, err)
	}
	if n > 0 {
		logger.L().Info("ingest_already_initialized", "standardized", n)
		return false, nil
	}
	_, err = p.RunFull(ctx)
	return true, err
}
