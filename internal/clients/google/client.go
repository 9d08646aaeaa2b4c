package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/dpup/saferoute/server/internal/clients/httpx"
	"github.com/dpup/saferoute/server/internal/lib/geo"
	"github.com/dpup/saferoute/server/internal/lib/routing"
)

// DefaultBaseURL is the Google Routes API v2 host
const DefaultBaseURL = "https://routes.googleapis.com"

// fieldMask is required by the Routes API; requests without one are rejected
const fieldMask = "routes.duration,routes.distanceMeters,routes.polyline.encodedPolyline"

// Client provides access to Google Routes API v2
type Client struct {
	apiKey     string
	httpClient httpx.HTTPDoer
	baseURL    string
}

// NewClient creates a new Google Routes API client
func NewClient(apiKey string) *Client {
	return NewClientWithHTTPDoer(apiKey, DefaultBaseURL, httpx.NewHTTPClient())
}

// NewClientWithHTTPDoer creates a client over a custom transport
func NewClientWithHTTPDoer(apiKey, baseURL string, doer httpx.HTTPDoer) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: doer,
	}
}

// FetchRoutes computes the primary route plus alternatives between two
// coordinates.
func (c *Client) FetchRoutes(ctx context.Context, from, to geo.Point) ([]routing.CandidateRoute, error) {
	requestBody := ComputeRoutesRequest{
		Origin:                   waypoint(from),
		Destination:              waypoint(to),
		TravelMode:               "DRIVE",
		RoutingPreference:        "TRAFFIC_AWARE",
		ComputeAlternativeRoutes: true,
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/directions/v2:computeRoutes", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, httpx.Classify(fmt.Errorf("failed to execute request: %w", err))
	}
	defer resp.Body.Close()

	if err := httpx.CheckStatus(resp); err != nil {
		return nil, err
	}

	var response ComputeRoutesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", routing.ErrProviderError, err)
	}

	// The API answers an unroutable pair with an empty object
	if len(response.Routes) == 0 {
		return nil, fmt.Errorf("%w: no routes found in response", routing.ErrNoRouteFound)
	}

	routes := make([]routing.CandidateRoute, 0, len(response.Routes))
	for i, r := range response.Routes {
		route, err := processRoute(r)
		if err != nil {
			return nil, fmt.Errorf("%w: route %d: %v", routing.ErrProviderError, i, err)
		}
		routes = append(routes, route)
	}
	return routes, nil
}

// processRoute converts a Google route to a candidate route
func processRoute(route Route) (routing.CandidateRoute, error) {
	seconds, err := parseDuration(route.Duration)
	if err != nil {
		return routing.CandidateRoute{}, fmt.Errorf("failed to parse duration: %w", err)
	}

	points, err := geo.DecodePolyline(route.Polyline.EncodedPolyline)
	if err != nil {
		return routing.CandidateRoute{}, err
	}

	return routing.CandidateRoute{
		Polyline:    points,
		DistanceKm:  routing.KmFromMeters(float64(route.DistanceMeters)),
		DurationMin: routing.MinutesFromSeconds(seconds),
	}, nil
}

// parseDuration parses Google's duration format like "450s" or "12.5s"
func parseDuration(durationStr string) (float64, error) {
	if durationStr == "" {
		return 0, fmt.Errorf("empty duration string")
	}
	return strconv.ParseFloat(strings.TrimSuffix(durationStr, "s"), 64)
}

func waypoint(p geo.Point) Waypoint {
	return Waypoint{Location: Location{LatLng: LatLng{Latitude: p.Latitude, Longitude: p.Longitude}}}
}
