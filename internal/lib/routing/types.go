package routing

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/dpup/saferoute/server/internal/lib/geo"
	"github.com/dpup/saferoute/server/internal/lib/hazard"
)

// CandidateRoute is one alternative path between two endpoints. Routes are
// never mutated once built; scoring produces new values.
type CandidateRoute struct {
	Polyline    []geo.Point     `json:"polyline"`
	DistanceKm  float64         `json:"distance_km"`
	DurationMin int             `json:"duration_min"`
	HazardCount int             `json:"hazard_count"`
	Hazards     []hazard.Report `json:"hazards"`
}

// Key identifies a route by its geometry so a selection can be matched
// across re-ranks.
func (r CandidateRoute) Key() string {
	h := fnv.New64a()
	var buf [8]byte
	for _, p := range r.Polyline {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(p.Latitude))
		h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(p.Longitude))
		h.Write(buf[:])
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// RouteSet is the ranked route list plus the active selection. Index 0 is
// the best route.
type RouteSet struct {
	Routes   []CandidateRoute `json:"routes"`
	Selected int              `json:"selected"`
}

// Empty reports whether there are no routes
func (s RouteSet) Empty() bool {
	return len(s.Routes) == 0
}

// Current returns the selected route
func (s RouteSet) Current() (CandidateRoute, bool) {
	if s.Selected < 0 || s.Selected >= len(s.Routes) {
		return CandidateRoute{}, false
	}
	return s.Routes[s.Selected], true
}

// Select returns a copy of the set with index selected
func (s RouteSet) Select(index int) (RouteSet, error) {
	if index < 0 || index >= len(s.Routes) {
		return s, fmt.Errorf("%w: route %d of %d", ErrOutOfRange, index, len(s.Routes))
	}
	return RouteSet{Routes: s.Routes, Selected: index}, nil
}

// IndexOf finds the route with the given geometry key
func (s RouteSet) IndexOf(key string) (int, bool) {
	for i, r := range s.Routes {
		if r.Key() == key {
			return i, true
		}
	}
	return 0, false
}

// Fetcher requests alternative routes from a directions provider
type Fetcher interface {
	// FetchRoutes returns unscored routes in provider order. It fails with
	// ErrNoRouteFound when the provider has no path and ErrProviderError on
	// transport or parse failure.
	FetchRoutes(ctx context.Context, from, to geo.Point) ([]CandidateRoute, error)
}

// KmFromMeters converts a provider distance to kilometers, one decimal place
func KmFromMeters(meters float64) float64 {
	return math.Round(meters/100) / 10
}

// MinutesFromSeconds converts a provider duration to whole minutes, rounding
// up.
func MinutesFromSeconds(seconds float64) int {
	if seconds <= 0 {
		return 0
	}
	return int(math.Ceil(seconds / 60))
}
