// Package discovery answers proximity queries over the live GeoStore generation.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"health-geo/internal/geo"
	"health-geo/internal/logger"
	"health-geo/internal/metrics"
	"health-geo/internal/models"
	"health-geo/internal/scoring"
	"health-geo/internal/store"

	"github.com/paulmach/orb"
)

var (
	ErrDataUnavailable = errors.New("facility data unavailable")
	ErrInvalidOrigin   = errors.New("origin is not a valid coordinate")
)

const (
	DefaultLimit       = 10
	DefaultMaxDistance = 10000.0
)

// Ranked is one facility with the figures it was ordered by.
type Ranked struct {
	Facility           models.Facility `json:"facility"`
	DistanceMeters     float64         `json:"distanceMeters"`
	AccessibilityScore int             `json:"accessibilityScore"`
	CombinedScore      float64         `json:"combinedScore"`
	Bearing            float64         `json:"bearing"`
	Direction          geo.Direction   `json:"direction"`
}

// WorkerHit is one worker with its straight-line distance from the origin.
type WorkerHit struct {
	Worker         models.Worker `json:"worker"`
	DistanceMeters float64       `json:"distanceMeters"`
	Bearing        float64       `json:"bearing"`
	Direction      geo.Direction `json:"direction"`
}

func defaults(maxDistance float64, limit int) (float64, int) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if maxDistance <= 0 {
		maxDistance = DefaultMaxDistance
	}
	return maxDistance, limit
}

func checkOrigin(p orb.Point) error {
	if !models.ValidCoordinates(p.Lon(), p.Lat()) {
		return fmt.Errorf("%w: (%v, %v)", ErrInvalidOrigin, p.Lon(), p.Lat())
	}
	return nil
}

// Ranker orders facilities by the combined distance and accessibility score.
type Ranker struct {
	store    store.GeoStore
	category models.Category
}

// NewRanker reads the standardized facility view.
func NewRanker(s store.GeoStore) *Ranker {
	return &Ranker{store: s, category: models.CategoryStandardized}
}

// Rank fetches up to 2×limit candidates within maxDistanceMeters, scores them and returns the
// limit lowest combined scores. Ties keep the store's distance order. A store failure is
// ErrDataUnavailable and is not retried.
func (r *Ranker) Rank(ctx context.Context, origin orb.Point, maxDistanceMeters float64, limit int) ([]Ranked, error) {
	if err := checkOrigin(origin); err != nil {
		return nil, err
	}
	maxDistanceMeters, limit = defaults(maxDistanceMeters, limit)
	start := time.Now()
	defer func() { metrics.RankDurationMs.Observe(float64(time.Since(start).Milliseconds())) }()

	cands, err := r.store.NearFacilities(ctx, r.category, store.NearQuery{
		Origin:            origin,
		MaxDistanceMeters: maxDistanceMeters,
		Limit:             2 * limit,
	})
	if err != nil {
		metrics.RankFailTotal.Inc()
		logger.L().Error("rank_store_error", "category", r.category, "err", err)
		return nil, fmt.Errorf("%w: %w", ErrDataUnavailable, err)
	}

	out := make([]Ranked, 0, len(cands))
	for _, f := range cands {
		d := geo.Distance(origin, f.Location.Point())
		acc := scoring.Accessibility(f.Accessibility)
		b := geo.Bearing(origin, f.Location.Point())
		out = append(out, Ranked{
			Facility:           f,
			DistanceMeters:     d,
			AccessibilityScore: acc,
			CombinedScore:      scoring.Combined(d, acc),
			Bearing:            b,
			Direction:          geo.BucketOf(b),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CombinedScore < out[j].CombinedScore })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Service is the query surface used by the HTTP layer.
type Service struct {
	store  store.GeoStore
	ranker *Ranker
}

func NewService(s store.GeoStore) *Service {
	return &Service{store: s, ranker: NewRanker(s)}
}

func (s *Service) NearestFacilities(ctx context.Context, origin orb.Point, maxDistanceMeters float64, limit int) ([]Ranked, error) {
	return s.ranker.Rank(ctx, origin, maxDistanceMeters, limit)
}

// NearestWorkers returns workers within radiusMeters matching f, nearest first.
func (s *Service) NearestWorkers(ctx context.Context, origin orb.Point, radiusMeters float64, f store.WorkerFilter, limit int) ([]WorkerHit, error) {
	if err := checkOrigin(origin); err != nil {
		return nil, err
	}
	radiusMeters, limit = defaults(radiusMeters, limit)
	ws, err := s.store.NearWorkers(ctx, store.NearQuery{Origin: origin, MaxDistanceMeters: radiusMeters, Limit: limit}, f)
	if err != nil {
		logger.L().Error("workers_store_error", "err", err)
		return nil, fmt.Errorf("%w: %w", ErrDataUnavailable, err)
	}
	out := make([]WorkerHit, 0, len(ws))
	for _, w := range ws {
		b := geo.Bearing(origin, w.Location.Point())
		out = append(out, WorkerHit{Worker: w, DistanceMeters: geo.Distance(origin, w.Location.Point()), Bearing: b, Direction: geo.BucketOf(b)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceMeters < out[j].DistanceMeters })
	return out, nil
}

func (s *Service) Direction(from, to orb.Point, mode Mode) (Directions, error) {
	return Direct(from, to, mode)
}
