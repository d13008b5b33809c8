// Package sources holds one adapter per external provider. Every adapter shares the Fetch
// contract: it returns canonical records and an Outcome and never returns an error or panics.
package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"health-geo/internal/logger"
	"health-geo/internal/metrics"
	"health-geo/internal/models"
)

// Outcome is the only failure signal that leaves an adapter.
type Outcome int

const (
	Success Outcome = iota
	EmptyResult
	NetworkError
	ParseError
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case EmptyResult:
		return "empty_result"
	case NetworkError:
		return "network_error"
	case ParseError:
		return "parse_error"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Internal taxonomy; absorbed into an Outcome at the adapter boundary.
var (
	ErrNetwork     = errors.New("provider unreachable")
	ErrParse       = errors.New("unexpected payload")
	ErrValidation  = errors.New("record has no usable coordinate")
	ErrEmptyResult = errors.New("no usable records")
)

// BBox is a south/west/north/east rectangle in degrees.
type BBox struct {
	South, West, North, East float64
}

// BangladeshBBox is the default ingestion extent.
var BangladeshBBox = BBox{South: 20.5, West: 88.0, North: 26.7, East: 92.7}

func (b BBox) Empty() bool { return b == BBox{} }

// Query scopes a fetch.
type Query struct {
	BBox    BBox
	Country string
}

// WithDefaults fills an empty bbox and country.
func (q Query) WithDefaults() Query {
	if q.BBox.Empty() {
		q.BBox = BangladeshBBox
	}
	if q.Country == "" {
		q.Country = "Bangladesh"
	}
	return q
}

type Adapter interface {
	Name() string
	Fetch(ctx context.Context, cat models.Category, q Query) (models.Batch, Outcome)
}

// DefaultTimeout bounds one adapter call when none is configured.
const DefaultTimeout = 20 * time.Second

type fetchFunc func(ctx context.Context, cat models.Category, q Query) (models.Batch, error)

func outcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, ErrEmptyResult):
		return EmptyResult
	case errors.Is(err, ErrNetwork), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return NetworkError
	}
	return ParseError
}

// guard runs fn under a per-call deadline, converts errors and panics to an Outcome, drops
// invalid records and records metrics. A Success with zero valid records becomes EmptyResult.
func guard(ctx context.Context, name string, timeout time.Duration, cat models.Category, q Query, fn fetchFunc) (b models.Batch, out Outcome) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	l := logger.L().With("adapter", name, "category", cat)
	start := time.Now()
	metrics.AdapterRequestsTotal.WithLabelValues(name, string(cat)).Inc()
	defer func() {
		if r := recover(); r != nil {
			l.Error("adapter_panic", "panic", fmt.Sprint(r))
			b, out = models.Batch{}, ParseError
		}
		metrics.AdapterOutcomeTotal.WithLabelValues(name, out.String()).Inc()
		metrics.AdapterDurationMs.WithLabelValues(name).Observe(float64(time.Since(start).Milliseconds()))
	}()

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := fn(cctx, cat, q.WithDefaults())
	if err != nil {
		out = outcomeOf(err)
		l.Warn("adapter_fetch_failed", "outcome", out.String(), "err", err, "duration_ms", time.Since(start).Milliseconds())
		return models.Batch{}, out
	}
	valid, dropped := raw.For(cat.Kind()).Valid()
	if dropped > 0 {
		metrics.AdapterSkippedTotal.WithLabelValues(name).Add(float64(dropped))
		l.Debug("adapter_records_dropped", "dropped", dropped)
	}
	if valid.Len() == 0 {
		l.Info("adapter_fetch_empty", "duration_ms", time.Since(start).Milliseconds())
		return models.Batch{}, EmptyResult
	}
	l.Info("adapter_fetch_ok", "records", valid.Len(), "duration_ms", time.Since(start).Milliseconds())
	return valid, Success
}

func defaultClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{}
}

func unsupported(name string, cat models.Category) error {
	return fmt.Errorf("%w: %s does not serve %s", ErrEmptyResult, name, cat)
}
