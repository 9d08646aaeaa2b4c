package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dpup/saferoute/server/internal/cache"
	"github.com/dpup/saferoute/server/internal/lib/geo"
	"github.com/dpup/saferoute/server/internal/lib/hazard"
	"github.com/dpup/saferoute/server/internal/lib/places"
	"github.com/dpup/saferoute/server/internal/lib/routing"
)

type fakeSearcher struct {
	mu      sync.Mutex
	queries []places.Query
	records []places.Record
	err     error
}

func (f *fakeSearcher) Search(ctx context.Context, q places.Query) ([]places.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func (f *fakeSearcher) Queries() []places.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]places.Query, len(f.queries))
	copy(out, f.queries)
	return out
}

type fakeForward struct {
	mu      sync.Mutex
	calls   []string
	results map[string][]geo.Point
	err     error
}

func (f *fakeForward) Geocode(ctx context.Context, text string) ([]geo.Point, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	if f.err != nil {
		return nil, f.err
	}
	return f.results[text], nil
}

func (f *fakeForward) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

type fakeReverse struct {
	mu    sync.Mutex
	calls int
	label string
	err   error
}

func (f *fakeReverse) Reverse(ctx context.Context, p geo.Point) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.label, f.err
}

// fakeFetcher answers each call through respond. call counts from 1.
type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	respond func(ctx context.Context, call int) ([]routing.CandidateRoute, error)
}

func (f *fakeFetcher) FetchRoutes(ctx context.Context, from, to geo.Point) ([]routing.CandidateRoute, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	respond := f.respond
	f.mu.Unlock()
	return respond(ctx, call)
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func staticFetcher(routes []routing.CandidateRoute, err error) *fakeFetcher {
	return &fakeFetcher{respond: func(context.Context, int) ([]routing.CandidateRoute, error) {
		return routes, err
	}}
}

type recordingMetrics struct {
	mu       sync.Mutex
	reranks  map[string]int
	sessions int
	reports  int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{reranks: map[string]int{}}
}

func (m *recordingMetrics) ObserveRerank(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reranks[result]++
}

func (m *recordingMetrics) SetActiveSessions(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = n
}

func (m *recordingMetrics) SetHazardReports(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = n
}

func (m *recordingMetrics) Reranks(result string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reranks[result]
}

func (m *recordingMetrics) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions
}

type recordingViewport struct {
	mu     sync.Mutex
	fitted []routing.CandidateRoute
}

func (v *recordingViewport) FitRoute(sessionID string, route routing.CandidateRoute) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.fitted = append(v.fitted, route)
}

func (v *recordingViewport) Last() (routing.CandidateRoute, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.fitted) == 0 {
		return routing.CandidateRoute{}, false
	}
	return v.fitted[len(v.fitted)-1], true
}

var (
	guindy = geo.Point{Latitude: 13.0067, Longitude: 80.2206}
	marina = geo.Point{Latitude: 13.0500, Longitude: 80.2824}
)

// Route A passes 0.014 km from hazardH1 and takes 20 minutes. Route B keeps
// well clear of it and takes 30.
func routeA() routing.CandidateRoute {
	return routing.CandidateRoute{
		Polyline: []geo.Point{
			{Latitude: 13.0, Longitude: 80.2},
			{Latitude: 13.0501, Longitude: 80.2501},
			{Latitude: 13.1, Longitude: 80.3},
		},
		DistanceKm:  12.4,
		DurationMin: 20,
	}
}

func routeB() routing.CandidateRoute {
	return routing.CandidateRoute{
		Polyline: []geo.Point{
			{Latitude: 13.0, Longitude: 80.2},
			{Latitude: 12.9, Longitude: 80.0},
			{Latitude: 13.1, Longitude: 80.3},
		},
		DistanceKm:  18.9,
		DurationMin: 30,
	}
}

func hazardH1() hazard.Report {
	return hazard.Report{
		ID:        "H1",
		Location:  geo.Point{Latitude: 13.05, Longitude: 80.25},
		Category:  hazard.CategoryTraffic,
		PlaceName: "Anna Salai",
		Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

// nearB returns a pothole sitting on route B's middle vertex
func nearB(id string) hazard.Report {
	return hazard.Report{
		ID:        id,
		Location:  geo.Point{Latitude: 12.9, Longitude: 80.0},
		Category:  hazard.CategoryPothole,
		Timestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

type testEnv struct {
	store    *hazard.MemoryStore
	feed     *HazardFeed
	forward  *fakeForward
	reverse  *fakeReverse
	searcher *fakeSearcher
	fetcher  *fakeFetcher
	metrics  *recordingMetrics
	viewport *recordingViewport
	geocoder *Geocoder
	opts     SessionOptions
	ctx      context.Context
}

func newTestEnv(t *testing.T, fetcher *fakeFetcher, seed ...hazard.Report) *testEnv {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	env := &testEnv{
		store: hazard.NewMemoryStore(seed...),
		forward: &fakeForward{results: map[string][]geo.Point{
			"Guindy": {guindy},
			"Marina": {marina},
		}},
		reverse:  &fakeReverse{label: "Mylapore, Chennai"},
		searcher: &fakeSearcher{},
		fetcher:  fetcher,
		metrics:  newRecordingMetrics(),
		viewport: &recordingViewport{},
		ctx:      ctx,
	}
	env.feed = NewHazardFeed(env.store, 10*time.Millisecond, env.metrics)
	env.feed.Start(ctx)
	require.Eventually(t, func() bool {
		_, ok := env.feed.Latest()
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	env.geocoder = NewGeocoder(env.forward, env.reverse, cache.NewCache(), time.Hour, time.Second, []string{"my location", "current location"})
	env.opts = SessionOptions{
		Geocoder:        env.geocoder,
		Suggestions:     NewSuggestionEngine(env.searcher, 2, 8, "en", 0.72, time.Second),
		Fetcher:         fetcher,
		Scorer:          routing.NewScorer(0.3),
		Feed:            env.feed,
		Viewport:        env.viewport,
		Metrics:         env.metrics,
		Debounce:        20 * time.Millisecond,
		ProviderTimeout: time.Second,
	}
	return env
}

func (e *testEnv) session(t *testing.T) *Session {
	t.Helper()
	s := NewSession(e.ctx, "test-session", e.opts)
	t.Cleanup(s.Shutdown)
	return s
}

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond
