package geo

import (
	"errors"
	"math"

	"github.com/golang/geo/s2"
	"github.com/twpayne/go-polyline"
)

// KmPerDegree is the flat-earth conversion used for hazard proximity.
const KmPerDegree = 111.0

// minLongitudeScale keeps longitude deltas finite near the poles
const minLongitudeScale = 0.1

// FlatEarthKm approximates the distance in kilometers between a point and a
// route vertex. The longitude delta is scaled by the cosine of the vertex
// latitude, not the point's.
func FlatEarthKm(p, vertex Point) float64 {
	dLatKm := (p.Latitude - vertex.Latitude) * KmPerDegree
	dLngKm := (p.Longitude - vertex.Longitude) * KmPerDegree * math.Cos(toRadians(vertex.Latitude))
	return math.Sqrt(dLatKm*dLatKm + dLngKm*dLngKm)
}

// BiasBox builds a box centered on p that spans deltaDegrees of latitude on
// each side and the equivalent longitude span at p's latitude.
func BiasBox(p Point, deltaDegrees float64) BoundingBox {
	lngDelta := deltaDegrees / math.Max(math.Cos(toRadians(p.Latitude)), minLongitudeScale)
	return BoundingBox{
		MinLatitude:  p.Latitude - deltaDegrees,
		MinLongitude: p.Longitude - lngDelta,
		MaxLatitude:  p.Latitude + deltaDegrees,
		MaxLongitude: p.Longitude + lngDelta,
	}
}

// CorridorBox returns the box outside of which no point can be within
// radiusKm of vertex under FlatEarthKm.
func CorridorBox(vertex Point, radiusKm float64) BoundingBox {
	latDelta := radiusKm / KmPerDegree
	scale := math.Abs(math.Cos(toRadians(vertex.Latitude)))
	if scale < 1e-9 {
		return BoundingBox{
			MinLatitude:  vertex.Latitude - latDelta,
			MinLongitude: -180,
			MaxLatitude:  vertex.Latitude + latDelta,
			MaxLongitude: 180,
		}
	}
	lngDelta := radiusKm / (KmPerDegree * scale)
	return BoundingBox{
		MinLatitude:  vertex.Latitude - latDelta,
		MinLongitude: vertex.Longitude - lngDelta,
		MaxLatitude:  vertex.Latitude + latDelta,
		MaxLongitude: vertex.Longitude + lngDelta,
	}
}

// Bounds returns the bounding box of a point sequence. The second return is
// false for an empty sequence. A box crossing the antimeridian keeps
// MinLongitude <= MaxLongitude by letting MaxLongitude run past 180.
func Bounds(points []Point) (BoundingBox, bool) {
	if len(points) == 0 {
		return BoundingBox{}, false
	}

	rect := s2.EmptyRect()
	for _, p := range points {
		rect = rect.AddPoint(s2.LatLngFromDegrees(p.Latitude, p.Longitude))
	}

	lo, hi := rect.Lo(), rect.Hi()
	maxLng := hi.Lng.Degrees()
	if rect.Lng.IsInverted() {
		maxLng += 360
	}
	return BoundingBox{
		MinLatitude:  lo.Lat.Degrees(),
		MinLongitude: lo.Lng.Degrees(),
		MaxLatitude:  hi.Lat.Degrees(),
		MaxLongitude: maxLng,
	}, true
}

// FromLngLat converts a provider [longitude, latitude] pair
func FromLngLat(pair []float64) (Point, error) {
	if len(pair) < 2 {
		return Point{}, errors.New("coordinate pair must have longitude and latitude")
	}
	return NewPoint(pair[1], pair[0])
}

// DecodePolyline decodes Google polyline string to point sequence
func DecodePolyline(encoded string) ([]Point, error) {
	if encoded == "" {
		return nil, errors.New("encoded polyline string is empty")
	}

	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, errors.New("failed to decode polyline: " + err.Error())
	}

	points := make([]Point, len(coords))
	for i, coord := range coords {
		points[i] = Point{
			Latitude:  coord[0],
			Longitude: coord[1],
		}

		if !IsValid(points[i]) {
			return nil, errors.New("decoded polyline contains invalid coordinates")
		}
	}

	return points, nil
}

// NewPoint creates a Point from latitude and longitude values with validation
func NewPoint(latitude, longitude float64) (Point, error) {
	point := Point{Latitude: latitude, Longitude: longitude}
	if !IsValid(point) {
		return Point{}, errors.New("invalid coordinates: latitude must be [-90, 90], longitude must be [-180, 180]")
	}
	return point, nil
}

// IsValid validates latitude and longitude values
func IsValid(point Point) bool {
	return point.Latitude >= -90 && point.Latitude <= 90 &&
		point.Longitude >= -180 && point.Longitude <= 180 &&
		!math.IsNaN(point.Latitude) && !math.IsNaN(point.Longitude)
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
