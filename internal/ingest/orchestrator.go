// Package ingest refreshes the GeoStore from external providers. The Orchestrator walks one
// category's adapter chain; the Pipeline runs every category, derives the standardized view and
// is driven by the Scheduler or the geo-ingest CLI.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"health-geo/internal/logger"
	"health-geo/internal/metrics"
	"health-geo/internal/models"
	"health-geo/internal/sources"
	"health-geo/internal/store"
)

var (
	ErrIngestionExhausted = errors.New("every source and the seed returned no records")
	ErrRunInProgress      = errors.New("ingestion already running for category")
)

// State is one step of the fallback walk.
type State string

const (
	StateTryPrimary   State = "try_primary"
	StateTrySecondary State = "try_secondary"
	StateTryTertiary  State = "try_tertiary"
	StateUseSeed      State = "use_seed"
	StateDone         State = "done"
)

func tryState(i int) State {
	switch i {
	case 0:
		return StateTryPrimary
	case 1:
		return StateTrySecondary
	case 2:
		return StateTryTertiary
	}
	return State(fmt.Sprintf("try_fallback_%d", i+1))
}

// Chain is the ordered provider list for one category. Seed runs only after every adapter failed.
type Chain struct {
	Category models.Category
	Adapters []sources.Adapter
	Seed     sources.Adapter
	Query    sources.Query
}

type Attempt struct {
	State   State  `json:"state"`
	Adapter string `json:"adapter"`
	Outcome string `json:"outcome"`
	Records int    `json:"records"`
}

// Report describes one run: the states visited, every attempt and what was persisted.
type Report struct {
	Category models.Category `json:"category"`
	Source   string          `json:"source,omitempty"`
	States   []State         `json:"states"`
	Attempts []Attempt       `json:"attempts"`
	Count    int             `json:"count"`
	UsedSeed bool            `json:"usedSeed"`
	Duration time.Duration   `json:"durationNs"`
}

// Orchestrator holds no locks; callers serialize runs per category.
type Orchestrator struct {
	store store.GeoStore
}

func NewOrchestrator(s store.GeoStore) *Orchestrator { return &Orchestrator{store: s} }

// Run tries each adapter in order and persists the first batch with at least one valid record.
// When all adapters fail the seed is used; when the seed is empty too the run ends with
// ErrIngestionExhausted and the stored category is left as it was.
func (o *Orchestrator) Run(ctx context.Context, ch Chain) (Report, error) {
	start := time.Now()
	rep := Report{Category: ch.Category}
	l := logger.L().With("category", ch.Category)
	if !ch.Category.Valid() {
		return rep, fmt.Errorf("%w: %q", store.ErrUnknownCategory, ch.Category)
	}
	kind := ch.Category.Kind()

	attempt := func(st State, a sources.Adapter) (models.Batch, bool) {
		rep.States = append(rep.States, st)
		b, out := a.Fetch(ctx, ch.Category, ch.Query)
		b, _ = b.For(kind).Valid()
		rep.Attempts = append(rep.Attempts, Attempt{State: st, Adapter: a.Name(), Outcome: out.String(), Records: b.Len()})
		l.Info("ingest_attempt", "state", st, "adapter", a.Name(), "outcome", out.String(), "records", b.Len())
		return b, out == sources.Success && b.Len() > 0
	}

	var (
		batch models.Batch
		ok    bool
	)
	for i, a := range ch.Adapters {
		if err := ctx.Err(); err != nil {
			metrics.IngestRunsTotal.WithLabelValues(string(ch.Category), "canceled").Inc()
			return rep, err
		}
		if batch, ok = attempt(tryState(i), a); ok {
			rep.Source = a.Name()
			break
		}
	}
	if !ok && ch.Seed != nil {
		if batch, ok = attempt(StateUseSeed, ch.Seed); ok {
			rep.Source = ch.Seed.Name()
			rep.UsedSeed = true
			metrics.IngestSeedTotal.WithLabelValues(string(ch.Category)).Inc()
		}
	}
	if !ok {
		rep.Duration = time.Since(start)
		metrics.IngestRunsTotal.WithLabelValues(string(ch.Category), "exhausted").Inc()
		l.Error("ingest_exhausted", "attempts", len(rep.Attempts))
		return rep, fmt.Errorf("%s: %w", ch.Category, ErrIngestionExhausted)
	}

	if err := o.store.Replace(ctx, ch.Category, batch); err != nil {
		rep.Duration = time.Since(start)
		metrics.IngestRunsTotal.WithLabelValues(string(ch.Category), "error").Inc()
		return rep, fmt.Errorf("persist %s: %w", ch.Category, err)
	}
	rep.States = append(rep.States, StateDone)
	rep.Count = batch.Len()
	rep.Duration = time.Since(start)
	result := "ok"
	if rep.UsedSeed {
		result = "seed"
	}
	metrics.IngestRunsTotal.WithLabelValues(string(ch.Category), result).Inc()
	metrics.StoreRecords.WithLabelValues(string(ch.Category)).Set(float64(rep.Count))
	l.Info("ingest_done", "source", rep.Source, "count", rep.Count, "seed", rep.UsedSeed, "duration_ms", rep.Duration.Milliseconds())
	return rep, nil
}
