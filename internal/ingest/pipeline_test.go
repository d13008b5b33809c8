package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"health-geo/internal/models"
	"health-geo/internal/sources"
	"health-geo/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func seedChains(extra ...sources.Adapter) []Chain {
	seed := sources.NewSeed()
	var chains []Chain
	for _, cat := range models.SourceCategories {
		chains = append(chains, Chain{Category: cat, Adapters: extra, Seed: seed})
	}
	return chains
}

func TestRunFullFromSeed(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	geo := NewLiveGeocoder()
	p := NewPipeline(s, seedChains(&stubAdapter{name: "offline", out: sources.NetworkError}), WithGeocoder(geo))

	var hooked Counts
	p.OnComplete = func(_ context.Context, c Counts) { hooked = c }

	counts, err := p.RunFull(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, counts.Facilities)
	assert.Equal(t, 6, counts.OSMFacilities)
	assert.Equal(t, 7, counts.Boundaries)
	assert.Equal(t, 8, counts.Workers)
	assert.Equal(t, 17, counts.Standardized)
	assert.Equal(t, counts, hooked)

	_, ok := geo.Geocode(models.Admin{Upazila: "Keraniganj"})
	assert.True(t, ok)

	b, err := s.Load(ctx, models.CategoryStandardized)
	require.NoError(t, err)
	for _, f := range b.Facilities {
		if f.Name == "Bhakurta Community Clinic" {
			assert.Equal(t, models.Admin{Upazila: "Savar", District: "Dhaka", Division: "Dhaka"}, f.Admin)
		}
	}

	live, err := p.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, counts, live)
}

func TestRunFullJoinsCategoryErrors(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	empty := &stubAdapter{name: "seedless", out: sources.EmptyResult}
	chains := []Chain{
		{Category: models.CategoryFacilities, Adapters: []sources.Adapter{&stubAdapter{name: "ok", out: sources.Success, batch: facilities("f", 2)}}},
		{Category: models.CategoryOSMFacilities, Adapters: []sources.Adapter{empty}},
		{Category: models.CategoryBoundaries, Adapters: []sources.Adapter{empty}},
		{Category: models.CategoryWorkers, Adapters: []sources.Adapter{empty}},
	}
	called := false
	p := NewPipeline(s, chains)
	p.OnComplete = func(context.Context, Counts) { called = true }

	counts, err := p.RunFull(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIngestionExhausted)
	assert.Equal(t, Counts{Facilities: 2, Standardized: 2}, counts)
	assert.True(t, called)
}

func TestRunCategoryRejectsConcurrentRun(t *testing.T) {
	s := store.NewMemory()
	release := make(chan struct{})
	started := make(chan struct{})
	slow := &blockingAdapter{started: started, release: release}
	p := NewPipeline(s, []Chain{{Category: models.CategoryWorkers, Adapters: []sources.Adapter{slow}, Seed: sources.NewSeed()}})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := p.RunCategory(context.Background(), models.CategoryWorkers)
		assert.NoError(t, err)
	}()
	<-started

	_, err := p.RunCategory(context.Background(), models.CategoryWorkers)
	assert.ErrorIs(t, err, ErrRunInProgress)

	_, err = p.RunCategory(context.Background(), models.CategoryFacilities)
	assert.ErrorIs(t, err, store.ErrUnknownCategory)

	close(release)
	wg.Wait()
	_, err = p.RunCategory(context.Background(), models.CategoryWorkers)
	assert.NoError(t, err)
}

type blockingAdapter struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingAdapter) Name() string { return "blocking" }

func (b *blockingAdapter) Fetch(ctx context.Context, _ models.Category, _ sources.Query) (models.Batch, sources.Outcome) {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return models.Batch{}, sources.NetworkError
}

func TestEnsureInitialized(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	p := NewPipeline(s, seedChains())

	ran, err := p.EnsureInitialized(ctx)
	require.NoError(t, err)
	assert.True(t, ran)

	ran, err = p.EnsureInitialized(ctx)
	require.NoError(t, err)
	assert.False(t, ran)
}
