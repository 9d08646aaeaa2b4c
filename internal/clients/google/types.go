package google

// ComputeRoutesRequest is the computeRoutes request body
type ComputeRoutesRequest struct {
	Origin                   Waypoint `json:"origin"`
	Destination              Waypoint `json:"destination"`
	TravelMode               string   `json:"travelMode"`
	RoutingPreference        string   `json:"routingPreference"`
	ComputeAlternativeRoutes bool     `json:"computeAlternativeRoutes"`
}

type Waypoint struct {
	Location Location `json:"location"`
}

type Location struct {
	LatLng LatLng `json:"latLng"`
}

type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ComputeRoutesResponse represents the API response structure
type ComputeRoutesResponse struct {
	Routes []Route `json:"routes"`
}

// Route represents a single route in the response
type Route struct {
	Duration       string   `json:"duration"`
	DistanceMeters int32    `json:"distanceMeters"`
	Polyline       Polyline `json:"polyline"`
}

// Polyline represents the route polyline
type Polyline struct {
	EncodedPolyline string `json:"encodedPolyline"`
}
