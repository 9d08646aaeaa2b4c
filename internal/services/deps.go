package services

import (
	"context"
	"errors"

	"github.com/dpup/saferoute/server/internal/lib/geo"
	"github.com/dpup/saferoute/server/internal/lib/routing"
)

const tracerName = "github.com/dpup/saferoute/server/internal/services"

// ErrInvalidInput marks a request rejected by validation
var ErrInvalidInput = errors.New("invalid input")

// ErrSessionClosed is returned by operations on a deleted session, and by a
// search whose result was superseded by a close or a newer search.
var ErrSessionClosed = errors.New("session closed")

// ForwardGeocoder resolves free text to coordinates, best match first
type ForwardGeocoder interface {
	Geocode(ctx context.Context, text string) ([]geo.Point, error)
}

// ReverseGeocoder labels a coordinate for display. An empty label means
// nothing was found.
type ReverseGeocoder interface {
	Reverse(ctx context.Context, p geo.Point) (string, error)
}

// ViewportFitter is told which route the map should frame
type ViewportFitter interface {
	FitRoute(sessionID string, route routing.CandidateRoute)
}

// Metrics receives planner observations; observability.Collector
// implements it.
type Metrics interface {
	ObserveRerank(result string)
	SetActiveSessions(n int)
	SetHazardReports(n int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveRerank(string)  {}
func (noopMetrics) SetActiveSessions(int) {}
func (noopMetrics) SetHazardReports(int)  {}
