package osrm

// RouteResponse is the body of an OSRM route request
type RouteResponse struct {
	Code    string  `json:"code"`
	Message string  `json:"message,omitempty"`
	Routes  []Route `json:"routes"`
}

// Route is one OSRM route with GeoJSON geometry
type Route struct {
	Geometry Geometry `json:"geometry"`
	Distance float64  `json:"distance"` // meters
	Duration float64  `json:"duration"` // seconds
}

// Geometry is a GeoJSON LineString; coordinates are [lng, lat]
type Geometry struct {
	Type        string      `json:"type"`
	Coordinates [][]float64 `json:"coordinates"`
}
