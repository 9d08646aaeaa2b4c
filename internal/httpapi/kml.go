package httpapi

import (
	"fmt"
	"image/color"

	"github.com/twpayne/go-kml/v2"

	"github.com/dpup/saferoute/server/internal/lib/routing"
)

var (
	selectedRouteColor    = color.RGBA{R: 0x1E, G: 0x88, B: 0xE5, A: 0xFF}
	alternativeRouteColor = color.RGBA{R: 0x9E, G: 0x9E, B: 0x9E, A: 0xC0}
)

// RoutesKML renders a ranked route set as a KML document. Each route becomes
// a line placemark in rank order and each flagged hazard a point placemark.
func RoutesKML(set routing.RouteSet) *kml.CompoundElement {
	var children []kml.Element
	children = append(children, kml.Name("Ranked routes"))

	seen := make(map[string]bool)
	for i, route := range set.Routes {
		lineColor, width := alternativeRouteColor, 3.0
		if i == set.Selected {
			lineColor, width = selectedRouteColor, 5.0
		}

		coords := make([]kml.Coordinate, 0, len(route.Polyline))
		for _, p := range route.Polyline {
			coords = append(coords, kml.Coordinate{Lon: p.Longitude, Lat: p.Latitude})
		}

		children = append(children, kml.Placemark(
			kml.Name(fmt.Sprintf("Route %d", i+1)),
			kml.Description(fmt.Sprintf("%d hazards, %d min, %.1f km", route.HazardCount, route.DurationMin, route.DistanceKm)),
			kml.Style(
				kml.LineStyle(
					kml.Color(lineColor),
					kml.Width(width),
				),
			),
			kml.LineString(kml.Coordinates(coords...)),
		))

		for _, h := range route.Hazards {
			if seen[h.ID] {
				continue
			}
			seen[h.ID] = true

			name := h.Category.String()
			if h.PlaceName != "" {
				name += " - " + h.PlaceName
			}
			children = append(children, kml.Placemark(
				kml.Name(name),
				kml.Description(h.Timestamp.UTC().Format("2006-01-02 15:04 MST")),
				kml.Point(kml.Coordinates(kml.Coordinate{Lon: h.Location.Longitude, Lat: h.Location.Latitude})),
			))
		}
	}

	return kml.KML(kml.Document(children...))
}
