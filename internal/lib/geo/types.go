package geo

// Point represents a geographic coordinate. Points are passed by value and
// never shared between routes, hazards and endpoints.
type Point struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// BoundingBox is an axis-aligned latitude/longitude box. MaxLongitude is
// above 180 when the box crosses the antimeridian.
type BoundingBox struct {
	MinLatitude  float64 `json:"min_lat"`
	MinLongitude float64 `json:"min_lng"`
	MaxLatitude  float64 `json:"max_lat"`
	MaxLongitude float64 `json:"max_lng"`
}

// Contains reports whether p lies inside the box, edges included
func (b BoundingBox) Contains(p Point) bool {
	if p.Latitude < b.MinLatitude || p.Latitude > b.MaxLatitude {
		return false
	}
	lng := p.Longitude
	if lng < b.MinLongitude && b.MaxLongitude > 180 {
		lng += 360
	}
	return lng >= b.MinLongitude && lng <= b.MaxLongitude
}

// Center returns the midpoint of the box
func (b BoundingBox) Center() Point {
	lng := (b.MinLongitude + b.MaxLongitude) / 2
	if lng > 180 {
		lng -= 360
	}
	return Point{
		Latitude:  (b.MinLatitude + b.MaxLatitude) / 2,
		Longitude: lng,
	}
}
