package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	perrors "github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/dpup/saferoute/server/internal/lib/geo"
	"github.com/dpup/saferoute/server/internal/lib/hazard"
	"github.com/dpup/saferoute/server/internal/lib/places"
	"github.com/dpup/saferoute/server/internal/lib/routing"
	"github.com/dpup/saferoute/server/internal/observability"
)

// ErrSearchCanceled is returned by a search that was superseded by a close
// or abandoned by its caller
var ErrSearchCanceled = errors.New("search canceled")

// ErrSuggestionNotFound is returned when selecting an unknown suggestion id
var ErrSuggestionNotFound = errors.New("suggestion not found")

// State is the route planning lifecycle of a session
type State string

const (
	StateIdle      State = "idle"
	StateSearching State = "searching"
	StateActive    State = "active"
)

// ResolutionStatus tracks how far an endpoint got in geocoding
type ResolutionStatus string

const (
	Unresolved ResolutionStatus = "unresolved"
	Resolving  ResolutionStatus = "resolving"
	Resolved   ResolutionStatus = "resolved"
	Failed     ResolutionStatus = "failed"
)

// Resolution is the geocoding outcome of an endpoint
type Resolution struct {
	Status   ResolutionStatus `json:"status"`
	Location *geo.Point       `json:"location,omitempty"`
	Reason   string           `json:"reason,omitempty"`
}

type endpointState struct {
	text        string
	cached      *geo.Point
	resolution  Resolution
	suggestions []places.Suggestion
	suggestSeq  uint64
	debouncer   *Debouncer
}

// SessionOptions holds the collaborators and policy of a session
type SessionOptions struct {
	Geocoder    *Geocoder
	Suggestions *SuggestionEngine
	Fetcher     routing.Fetcher
	Scorer      *routing.Scorer
	Feed        *HazardFeed
	Viewport    ViewportFitter
	Metrics     Metrics

	Debounce                time.Duration
	ProviderTimeout         time.Duration
	RefetchOnHazardUpdate   bool
	PreserveManualSelection bool

	Clock func() time.Time
}

// Session is one screen's route search. It owns the endpoint caches, the
// ranked route set and the hazard subscription that keeps the ranking live.
type Session struct {
	id   string
	opts SessionOptions

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	state        State
	endpoints    map[routing.Endpoint]*endpointState
	device       *geo.Point
	locationErr  error
	currentPlace string
	routes       routing.RouteSet
	raw          []routing.CandidateRoute
	from, to     geo.Point
	manual       bool
	viewport     *geo.BoundingBox
	lastErr      error
	seq          uint64
	searchCancel context.CancelFunc
	unsubscribe  func()
	rescore      chan struct{}
	closed       bool
	lastUsed     time.Time
}

// NewSession creates an idle session. parent bounds every background task
// the session starts.
func NewSession(parent context.Context, id string, opts SessionOptions) *Session {
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Scorer == nil {
		opts.Scorer = routing.NewScorer(0)
	}

	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		id:     id,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		state:  StateIdle,
		endpoints: map[routing.Endpoint]*endpointState{
			routing.From: {resolution: Resolution{Status: Unresolved}, debouncer: NewDebouncer(opts.Debounce)},
			routing.To:   {resolution: Resolution{Status: Unresolved}, debouncer: NewDebouncer(opts.Debounce)},
		},
		lastUsed: opts.Clock(),
		rescore:  make(chan struct{}, 1),
	}
	return s
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// LastUsed returns when the session was last driven by its client
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

func (s *Session) touchLocked() {
	s.lastUsed = s.opts.Clock()
}

// SetText records a manual edit of an endpoint field. The cached coordinate
// and suggestions are dropped and a debounced suggestion lookup is scheduled.
func (s *Session) SetText(field routing.Endpoint, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ep, err := s.endpointLocked(field)
	if err != nil {
		return err
	}
	s.touchLocked()

	ep.text = text
	ep.cached = nil
	ep.suggestions = nil
	ep.resolution = Resolution{Status: Unresolved}
	ep.suggestSeq++
	seq := ep.suggestSeq

	if s.opts.Suggestions == nil || !s.opts.Suggestions.Searchable(text) {
		ep.debouncer.Cancel()
		return nil
	}

	var bias *geo.Point
	if s.device != nil {
		p := *s.device
		bias = &p
	}

	ep.debouncer.Trigger(s.ctx, func(ctx context.Context) {
		results := s.opts.Suggestions.Suggest(ctx, text, bias)

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed || ctx.Err() != nil || ep.suggestSeq != seq {
			logging.Debugw(ctx, "Session: discarding stale suggestions", "session", s.id, "field", field, "query", text)
			return
		}
		ep.suggestions = results
	})
	return nil
}

// Suggestions returns the suggestions currently shown for a field
func (s *Session) Suggestions(field routing.Endpoint) ([]places.Suggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ep, err := s.endpointLocked(field)
	if err != nil {
		return nil, err
	}
	s.touchLocked()

	out := make([]places.Suggestion, len(ep.suggestions))
	copy(out, ep.suggestions)
	return out, nil
}

// SelectSuggestion promotes a suggestion into the endpoint's cached
// coordinate and clears the list
func (s *Session) SelectSuggestion(field routing.Endpoint, id string) (places.Suggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ep, err := s.endpointLocked(field)
	if err != nil {
		return places.Suggestion{}, err
	}
	s.touchLocked()

	sug, ok := places.Find(ep.suggestions, id)
	if !ok {
		return places.Suggestion{}, fmt.Errorf("%w: %s", ErrSuggestionNotFound, id)
	}

	loc := sug.Location
	ep.cached = &loc
	ep.text = sug.FullLabel
	ep.suggestions = nil
	ep.suggestSeq++
	ep.debouncer.Cancel()
	return sug, nil
}

// UpdateLocation records the device coordinate and reverse geocodes it. An
// empty From field is pre-filled with the place label.
func (s *Session) UpdateLocation(ctx context.Context, p geo.Point) error {
	if !geo.IsValid(p) {
		return fmt.Errorf("%w: coordinate out of range", ErrInvalidInput)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.touchLocked()
	s.device = &p
	s.locationErr = nil
	s.mu.Unlock()

	var label string
	if s.opts.Geocoder != nil {
		label = s.opts.Geocoder.PlaceLabel(ctx, p)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.device == nil || *s.device != p {
		// A newer fix arrived while this one was being labeled
		return nil
	}
	s.currentPlace = label

	from := s.endpoints[routing.From]
	if label != "" && from.cached == nil && strings.TrimSpace(from.text) == "" {
		from.text = label
	}
	return nil
}

// SetLocationError records that the device location could not be read
func (s *Session) SetLocationError(err error) error {
	if !errors.Is(err, routing.ErrPermissionDenied) && !errors.Is(err, routing.ErrLocationUnavailable) {
		return fmt.Errorf("%w: unsupported location error", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.touchLocked()
	s.device = nil
	s.currentPlace = ""
	s.locationErr = err
	return nil
}

// Submit resolves both endpoints, fetches and ranks routes and makes them
// current. On failure the previous route set is left untouched. If ctx ends
// before a failed search settles, the failure is not recorded and
// ErrSearchCanceled is returned.
func (s *Session) Submit(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.state == StateSearching {
		s.mu.Unlock()
		return routing.ErrSearchInProgress
	}
	s.touchLocked()

	previous := s.state
	s.seq++
	seq := s.seq
	s.state = StateSearching
	feedVersion := s.feedVersion()

	inputs := [2]ResolveInput{}
	var previousRes [2]Resolution
	for i, field := range []routing.Endpoint{routing.From, routing.To} {
		ep := s.endpoints[field]
		previousRes[i] = ep.resolution
		inputs[i] = ResolveInput{
			Text:         ep.text,
			Cached:       clonePoint(ep.cached),
			Device:       clonePoint(s.device),
			CurrentPlace: s.currentPlace,
		}
		ep.resolution = Resolution{Status: Resolving}
	}

	searchCtx, cancel := context.WithCancel(s.ctx)
	s.searchCancel = cancel
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	defer cancel()

	searchCtx, span := otel.Tracer(tracerName).Start(searchCtx, "session.search")
	span.SetAttributes(attribute.String("session.id", s.id))
	defer span.End()

	points, resolveErrs := s.resolveEndpoints(searchCtx, inputs)

	var (
		scored []routing.CandidateRoute
		raw    []routing.CandidateRoute
		err    error
	)
	switch {
	case resolveErrs[0] != nil:
		err = &routing.EndpointError{Endpoint: routing.From, Err: resolveErrs[0]}
	case resolveErrs[1] != nil:
		err = &routing.EndpointError{Endpoint: routing.To, Err: resolveErrs[1]}
	default:
		raw, err = s.fetch(searchCtx, points[0], points[1])
		if err == nil {
			scored = s.opts.Scorer.Score(raw, s.hazards(searchCtx))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.seq != seq {
		logging.Infow(ctx, "Session: search superseded", "session", s.id)
		return ErrSearchCanceled
	}
	s.searchCancel = nil

	abandoned := err != nil && ctx.Err() != nil
	for i, field := range []routing.Endpoint{routing.From, routing.To} {
		ep := s.endpoints[field]
		if resolveErrs[i] != nil && abandoned {
			ep.resolution = previousRes[i]
			continue
		}
		if resolveErrs[i] != nil {
			ep.resolution = Resolution{Status: Failed, Reason: routing.UserMessage(&routing.EndpointError{Endpoint: field, Err: resolveErrs[i]})}
			continue
		}
		p := points[i]
		ep.resolution = Resolution{Status: Resolved, Location: &p}
	}

	if abandoned {
		logging.Infow(ctx, "Session: search abandoned by caller", "session", s.id, "error", err)
		s.state = previous
		s.catchUpLocked(feedVersion)
		return ErrSearchCanceled
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, routing.Kind(err))
		logging.Warnw(ctx, "Session: search failed", "session", s.id, "kind", routing.Kind(err), "error", err)
		s.state = previous
		s.lastErr = err
		s.catchUpLocked(feedVersion)
		return err
	}

	s.state = StateActive
	s.raw = raw
	s.from, s.to = points[0], points[1]
	s.routes = routing.NewRouteSet(scored)
	s.manual = false
	s.lastErr = nil
	s.fitLocked()
	s.subscribeLocked()
	s.catchUpLocked(feedVersion)

	span.SetAttributes(attribute.Int("routes.count", len(scored)))
	logging.Infow(ctx, "Session: search complete", "session", s.id, "routes", len(scored))
	return nil
}

// resolveEndpoints geocodes From and To in parallel and waits for both
func (s *Session) resolveEndpoints(ctx context.Context, inputs [2]ResolveInput) ([2]geo.Point, [2]error) {
	var (
		points [2]geo.Point
		errs   [2]error
		g      errgroup.Group
	)
	for i := range inputs {
		g.Go(func() error {
			p, err := s.opts.Geocoder.Resolve(ctx, inputs[i])
			points[i], errs[i] = p, err
			return err
		})
	}
	_ = g.Wait()
	return points, errs
}

// fetch requests routes under the provider timeout
func (s *Session) fetch(ctx context.Context, from, to geo.Point) ([]routing.CandidateRoute, error) {
	timeout := s.opts.ProviderTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	routes, err := s.opts.Fetcher.FetchRoutes(fetchCtx, from, to)
	if err == nil {
		return routes, nil
	}
	if errors.Is(err, routing.ErrProviderTimeout) || errors.Is(err, routing.ErrProviderError) || errors.Is(err, routing.ErrNoRouteFound) {
		return nil, err
	}
	if errors.Is(fetchCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, fmt.Errorf("%w: %w", routing.ErrProviderTimeout, err)
	}
	if ctx.Err() != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %w", routing.ErrProviderError, err)
}

func (s *Session) hazards(ctx context.Context) []hazard.Report {
	if s.opts.Feed == nil {
		return nil
	}
	return s.opts.Feed.Current(ctx).Hazards()
}

func (s *Session) feedVersion() uint64 {
	if s.opts.Feed == nil {
		return 0
	}
	return s.opts.Feed.Version()
}

// catchUpLocked queues a re-rank when the feed published after a search read
// its hazards. Signals that arrive mid-search are dropped by rerank, so this
// is what applies them.
func (s *Session) catchUpLocked(version uint64) {
	if s.state != StateActive || s.unsubscribe == nil || s.feedVersion() == version {
		return
	}
	select {
	case s.rescore <- struct{}{}:
	default:
	}
}

// subscribeLocked starts the re-rank worker if it is not already running
func (s *Session) subscribeLocked() {
	if s.unsubscribe != nil || s.opts.Feed == nil {
		return
	}
	updates, unsubscribe := s.opts.Feed.Subscribe()
	s.unsubscribe = unsubscribe
	go s.rerankLoop(updates)
}

func (s *Session) rerankLoop(updates <-chan struct{}) {
	defer func() {
		if r := recover(); r != nil {
			err, _ := perrors.ParseStack(debug.Stack())
			logging.Errorw(s.ctx, "Re-rank worker panic recovered", "session", s.id, "error", r, "error.stack_trace", err.MinimalStack(3, 5))
		}
	}()

	for {
		select {
		case _, ok := <-updates:
			if !ok {
				return
			}
			s.rerank()
		case <-s.rescore:
			s.rerank()
		}
	}
}

// rerank re-scores the active search against the latest hazard snapshot.
// Results are dropped if the search changed while they were computed.
func (s *Session) rerank() {
	s.mu.Lock()
	if s.closed || s.state != StateActive {
		s.mu.Unlock()
		return
	}
	seq := s.seq
	routes := s.raw
	from, to := s.from, s.to
	ctx := s.ctx
	s.mu.Unlock()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "session.rerank")
	span.SetAttributes(attribute.String("session.id", s.id))
	defer span.End()

	if s.opts.RefetchOnHazardUpdate {
		fresh, err := s.fetch(ctx, from, to)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logging.Warnw(ctx, "Session: re-fetch failed, re-scoring cached routes", "session", s.id, "kind", routing.Kind(err), "error", err)
			s.opts.Metrics.ObserveRerank(observability.RerankFailed)
		} else {
			routes = fresh
		}
	}

	scored := s.opts.Scorer.Score(routes, s.hazards(ctx))

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.seq != seq || s.state != StateActive {
		logging.Debugw(ctx, "Session: discarding stale re-rank", "session", s.id)
		s.opts.Metrics.ObserveRerank(observability.RerankDiscarded)
		return
	}

	next, kept := routing.Carry(s.routes, s.manual, s.opts.PreserveManualSelection, scored)
	s.routes = next
	s.raw = routes
	s.manual = kept
	s.fitLocked()
	s.opts.Metrics.ObserveRerank(observability.RerankApplied)
}

// SelectRoute makes a route the active one at the user's request
func (s *Session) SelectRoute(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.touchLocked()

	next, err := s.routes.Select(index)
	if err != nil {
		return err
	}
	s.routes = next
	s.manual = true
	s.fitLocked()
	return nil
}

// fitLocked points the viewport at the selected route
func (s *Session) fitLocked() {
	route, ok := s.routes.Current()
	if !ok {
		s.viewport = nil
		return
	}
	if box, ok := geo.Bounds(route.Polyline); ok {
		s.viewport = &box
	} else {
		s.viewport = nil
	}
	if s.opts.Viewport != nil {
		s.opts.Viewport.FitRoute(s.id, route)
	}
}

// Close exits route planning. In-flight work is cancelled and can no longer
// change the session. Endpoint text and picked coordinates are kept so the
// user can search again.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	s.closeLocked()
}

func (s *Session) closeLocked() {
	s.seq++
	s.state = StateIdle
	s.routes = routing.RouteSet{}
	s.raw = nil
	s.manual = false
	s.viewport = nil
	s.lastErr = nil

	for _, ep := range s.endpoints {
		ep.resolution = Resolution{Status: Unresolved}
		ep.suggestions = nil
		ep.suggestSeq++
		ep.debouncer.Cancel()
	}
	if s.searchCancel != nil {
		s.searchCancel()
		s.searchCancel = nil
	}
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

// Shutdown closes the session for good. Every later call fails with
// ErrSessionClosed.
func (s *Session) Shutdown() {
	s.mu.Lock()
	if !s.closed {
		s.closeLocked()
		s.closed = true
	}
	s.mu.Unlock()
	s.cancel()
}

// Closed reports whether the session was shut down
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// State returns the lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Routes returns the current ranked route set
func (s *Session) Routes() routing.RouteSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.routes
}

// Err returns the error of the last failed search
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Session) endpointLocked(field routing.Endpoint) (*endpointState, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	ep, ok := s.endpoints[field]
	if !ok {
		return nil, fmt.Errorf("%w: unknown endpoint %q", ErrInvalidInput, field)
	}
	return ep, nil
}

func clonePoint(p *geo.Point) *geo.Point {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
