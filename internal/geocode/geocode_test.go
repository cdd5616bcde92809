package geocode

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/go-relief-pipeline/internal/models"
	"github.com/mr1hm/go-relief-pipeline/internal/repository"
)

// fakeProvider records calls and answers from search.
type fakeProvider struct {
	mu     sync.Mutex
	calls  int
	search func(call int, place string) (*models.Coordinates, error)
}

func (f *fakeProvider) Search(_ context.Context, place string) (*models.Coordinates, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.search(call, place)
}

func (f *fakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testConfig() Config {
	return Config{
		MinInterval: 0,
		BackoffStep: time.Millisecond,
		Retries:     2,
		Fallback:    true,
	}
}

// newTestGeocoder records backoff sleeps instead of sleeping.
func newTestGeocoder(p Provider, store repository.GeocodeCache, cfg Config) (*Geocoder, *[]time.Duration) {
	g := New(p, store, cfg)
	var sleeps []time.Duration
	g.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return g, &sleeps
}

var errOffline = errors.New("network unreachable")

func offline(int, string) (*models.Coordinates, error) {
	return nil, errors.Join(ErrTransient, errOffline)
}

func TestGeocode_EmptyPlace(t *testing.T) {
	p := &fakeProvider{search: offline}
	store := repository.NewMemoryStore()
	g, _ := newTestGeocoder(p, store, testConfig())

	assert.Nil(t, g.Geocode(context.Background(), ""))
	assert.Zero(t, p.Calls())
}

func TestGeocode_SuccessIsCached(t *testing.T) {
	p := &fakeProvider{search: func(int, string) (*models.Coordinates, error) {
		return &models.Coordinates{Latitude: 40.7, Longitude: -74.0}, nil
	}}
	store := repository.NewMemoryStore()
	g, _ := newTestGeocoder(p, store, testConfig())
	ctx := context.Background()

	first := g.Geocode(ctx, "Main St")
	require.NotNil(t, first)
	assert.Equal(t, 40.7, first.Latitude)

	second := g.Geocode(ctx, "Main St")
	require.NotNil(t, second)
	assert.Equal(t, *first, *second)
	assert.Equal(t, 1, p.Calls())

	cached, err := store.GetCachedGeocode(ctx, "Main St")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, *first, *cached)
}

func TestGeocode_PersistentCacheHit(t *testing.T) {
	p := &fakeProvider{search: offline}
	store := repository.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.CacheGeocode(ctx, "Harbor Rd", models.Coordinates{Latitude: 1, Longitude: 2}))

	g, _ := newTestGeocoder(p, store, testConfig())
	got := g.Geocode(ctx, "Harbor Rd")

	require.NotNil(t, got)
	assert.Equal(t, models.Coordinates{Latitude: 1, Longitude: 2}, *got)
	assert.Zero(t, p.Calls())
}

func TestGeocode_TransientRetriesThenFallback(t *testing.T) {
	p := &fakeProvider{search: offline}
	store := repository.NewMemoryStore()
	g, sleeps := newTestGeocoder(p, store, testConfig())
	ctx := context.Background()

	got := g.Geocode(ctx, "Nowhere-XYZ")
	require.NotNil(t, got)
	assert.Equal(t, StubCoordinates("Nowhere-XYZ"), *got)
	assert.Equal(t, 3, p.Calls(), "one attempt plus two retries")
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, *sleeps)

	again := g.Geocode(ctx, "Nowhere-XYZ")
	require.NotNil(t, again)
	assert.Equal(t, *got, *again)
	assert.Equal(t, 3, p.Calls(), "second lookup must be served from cache")
}

func TestGeocode_TransientRecovers(t *testing.T) {
	p := &fakeProvider{search: func(call int, _ string) (*models.Coordinates, error) {
		if call == 1 {
			return nil, ErrTransient
		}
		return &models.Coordinates{Latitude: 5, Longitude: 6}, nil
	}}
	g, sleeps := newTestGeocoder(p, nil, testConfig())

	got := g.Geocode(context.Background(), "Bridge")
	require.NotNil(t, got)
	assert.Equal(t, models.Coordinates{Latitude: 5, Longitude: 6}, *got)
	assert.Equal(t, 2, p.Calls())
	assert.Len(t, *sleeps, 1)
}

func TestGeocode_FatalErrorDoesNotRetry(t *testing.T) {
	p := &fakeProvider{search: func(int, string) (*models.Coordinates, error) {
		return nil, errors.New("bad request")
	}}
	g, sleeps := newTestGeocoder(p, nil, testConfig())

	got := g.Geocode(context.Background(), "???")
	require.NotNil(t, got)
	assert.Equal(t, StubCoordinates("???"), *got)
	assert.Equal(t, 1, p.Calls())
	assert.Empty(t, *sleeps)
}

func TestLookup_NoFallback(t *testing.T) {
	p := &fakeProvider{search: func(int, string) (*models.Coordinates, error) {
		return nil, nil
	}}
	g, _ := newTestGeocoder(p, nil, testConfig())
	ctx := context.Background()

	assert.Nil(t, g.Lookup(ctx, "Atlantis", Options{Retries: 2, Fallback: false}))
	assert.Equal(t, 1, p.Calls(), "no match is not retried")

	// Misses are not cached.
	assert.Nil(t, g.Lookup(ctx, "Atlantis", Options{Retries: 2, Fallback: false}))
	assert.Equal(t, 2, p.Calls())
}

func TestLookup_ZeroRetries(t *testing.T) {
	p := &fakeProvider{search: offline}
	g, sleeps := newTestGeocoder(p, nil, testConfig())

	assert.Nil(t, g.Lookup(context.Background(), "Offline", Options{Retries: 0, Fallback: false}))
	assert.Equal(t, 1, p.Calls())
	assert.Empty(t, *sleeps)
}

func TestGeocode_NilProviderFallsBack(t *testing.T) {
	g, _ := newTestGeocoder(nil, nil, testConfig())
	got := g.Geocode(context.Background(), "Main St")
	require.NotNil(t, got)
	assert.Equal(t, StubCoordinates("Main St"), *got)
}

func TestGeocode_RateLimitSpacesRequests(t *testing.T) {
	p := &fakeProvider{search: func(int, string) (*models.Coordinates, error) {
		return &models.Coordinates{Latitude: 1, Longitude: 1}, nil
	}}
	cfg := testConfig()
	cfg.MinInterval = 60 * time.Millisecond
	g := New(p, nil, cfg)
	ctx := context.Background()

	start := time.Now()
	g.Geocode(ctx, "first")
	g.Geocode(ctx, "second")
	elapsed := time.Since(start)

	assert.Equal(t, 2, p.Calls())
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
}

func TestGeocode_IntervalCountsFromEndOfRequest(t *testing.T) {
	var mu sync.Mutex
	var starts, ends []time.Time
	p := &fakeProvider{search: func(int, string) (*models.Coordinates, error) {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()

		time.Sleep(80 * time.Millisecond) // slower than the interval

		mu.Lock()
		ends = append(ends, time.Now())
		mu.Unlock()
		return &models.Coordinates{Latitude: 1, Longitude: 1}, nil
	}}
	cfg := testConfig()
	cfg.MinInterval = 60 * time.Millisecond
	g := New(p, nil, cfg)
	ctx := context.Background()

	g.Geocode(ctx, "first")
	g.Geocode(ctx, "second")

	require.Len(t, starts, 2)
	assert.GreaterOrEqual(t, starts[1].Sub(ends[0]), 50*time.Millisecond)
}

func TestGeocode_ConcurrentRequestsAreSerialized(t *testing.T) {
	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	p := &fakeProvider{search: func(int, string) (*models.Coordinates, error) {
		mu.Lock()
		inFlight++
		maxInFlight = max(maxInFlight, inFlight)
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return &models.Coordinates{Latitude: 1, Longitude: 1}, nil
	}}
	g := New(p, nil, testConfig())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g.Geocode(context.Background(), "place-"+strconv.Itoa(i))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8, p.Calls())
	assert.Equal(t, 1, maxInFlight)
}

func TestGeocode_CancelledContextFallsBack(t *testing.T) {
	p := &fakeProvider{search: offline}
	cfg := testConfig()
	cfg.BackoffStep = time.Hour
	g := New(p, nil, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := g.Geocode(ctx, "Somewhere")
	require.NotNil(t, got)
	assert.Equal(t, StubCoordinates("Somewhere"), *got)
}

func TestStubCoordinates_Deterministic(t *testing.T) {
	a := StubCoordinates("Nowhere-XYZ")
	b := StubCoordinates("Nowhere-XYZ")
	assert.Equal(t, a, b)

	assert.GreaterOrEqual(t, a.Latitude, 20.0)
	assert.Less(t, a.Latitude, 25.0)
	assert.GreaterOrEqual(t, a.Longitude, 72.0)
	assert.Less(t, a.Longitude, 77.0)
}

func TestGeocode_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	p := &fakeProvider{search: offline}
	g, _ := newTestGeocoder(p, nil, testConfig())
	g.WithMetrics(m)
	ctx := context.Background()

	g.Geocode(ctx, "Nowhere-XYZ")
	g.Geocode(ctx, "Nowhere-XYZ")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LookupsTotal.WithLabelValues(outcomeFallback)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LookupsTotal.WithLabelValues(outcomeCache)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RetriesTotal))
}
