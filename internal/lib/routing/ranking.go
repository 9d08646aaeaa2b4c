package routing

import (
	"sort"
)

// Rank orders routes by hazard count, then duration. Equal routes keep
// provider order. The input is not modified.
func Rank(routes []CandidateRoute) []CandidateRoute {
	ranked := make([]CandidateRoute, len(routes))
	copy(ranked, routes)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].HazardCount != ranked[j].HazardCount {
			return ranked[i].HazardCount < ranked[j].HazardCount
		}
		return ranked[i].DurationMin < ranked[j].DurationMin
	})
	return ranked
}

// NewRouteSet ranks routes and selects the best one
func NewRouteSet(routes []CandidateRoute) RouteSet {
	return RouteSet{Routes: Rank(routes), Selected: 0}
}

// Carry builds the route set for a re-rank. With preserve set, a route the
// user picked manually stays selected if its geometry is still present, and
// the second return reports that it did. Otherwise the selection snaps to
// the new best route.
func Carry(previous RouteSet, manual bool, preserve bool, routes []CandidateRoute) (RouteSet, bool) {
	next := NewRouteSet(routes)
	if !preserve || !manual {
		return next, false
	}

	current, ok := previous.Current()
	if !ok {
		return next, false
	}
	i, found := next.IndexOf(current.Key())
	if found {
		next.Selected = i
	}
	return next, found
}
