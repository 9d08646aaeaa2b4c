package routing

import (
	"github.com/tidwall/rtree"

	"github.com/dpup/saferoute/server/internal/lib/geo"
	"github.com/dpup/saferoute/server/internal/lib/hazard"
)

// DefaultCorridorKm is the proximity radius for counting a hazard against a
// route.
const DefaultCorridorKm = 0.3

// Scorer counts hazards within the corridor of each route's vertices
type Scorer struct {
	corridorKm float64
}

// NewScorer creates a scorer. A non-positive radius uses DefaultCorridorKm.
func NewScorer(corridorKm float64) *Scorer {
	if corridorKm <= 0 {
		corridorKm = DefaultCorridorKm
	}
	return &Scorer{corridorKm: corridorKm}
}

// CorridorKm returns the configured radius
func (s *Scorer) CorridorKm() float64 {
	return s.corridorKm
}

// Score returns new routes annotated with the hazards near them. Only
// polyline vertices are tested; a hazard counts at most once per route.
// Hazards on each route keep the order of the hazards argument.
func (s *Scorer) Score(routes []CandidateRoute, hazards []hazard.Report) []CandidateRoute {
	var index rtree.RTreeG[int]
	for i, h := range hazards {
		pt := [2]float64{h.Location.Longitude, h.Location.Latitude}
		index.Insert(pt, pt, i)
	}

	scored := make([]CandidateRoute, len(routes))
	for ri, route := range routes {
		hit := make(map[int]bool)
		for _, vertex := range route.Polyline {
			box := geo.CorridorBox(vertex, s.corridorKm)
			index.Search(
				[2]float64{box.MinLongitude, box.MinLatitude},
				[2]float64{box.MaxLongitude, box.MaxLatitude},
				func(_, _ [2]float64, i int) bool {
					if !hit[i] && s.within(geo.FlatEarthKm(hazards[i].Location, vertex)) {
						hit[i] = true
					}
					return true
				},
			)
		}

		flagged := make([]hazard.Report, 0, len(hit))
		for i, h := range hazards {
			if hit[i] {
				flagged = append(flagged, h)
			}
		}

		scored[ri] = CandidateRoute{
			Polyline:    route.Polyline,
			DistanceKm:  route.DistanceKm,
			DurationMin: route.DurationMin,
			HazardCount: len(flagged),
			Hazards:     flagged,
		}
	}
	return scored
}

// within is the corridor test. The comparison is strict: a hazard exactly
// corridorKm away is not on the route.
func (s *Scorer) within(distanceKm float64) bool {
	return distanceKm < s.corridorKm
}
