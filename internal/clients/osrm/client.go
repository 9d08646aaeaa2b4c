package osrm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dpup/saferoute/server/internal/clients/httpx"
	"github.com/dpup/saferoute/server/internal/lib/geo"
	"github.com/dpup/saferoute/server/internal/lib/routing"
)

// DefaultBaseURL is the public OSRM demo server
const DefaultBaseURL = "https://router.project-osrm.org"

// Client requests alternative routes from an OSRM route service
type Client struct {
	baseURL    string
	profile    string
	httpClient httpx.HTTPDoer
}

// NewClient creates a new OSRM client
func NewClient(baseURL, profile string) *Client {
	return NewClientWithHTTPDoer(baseURL, profile, httpx.NewHTTPClient())
}

// NewClientWithHTTPDoer creates a client over a custom transport
func NewClientWithHTTPDoer(baseURL, profile string, doer httpx.HTTPDoer) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if profile == "" {
		profile = "driving"
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		profile:    profile,
		httpClient: doer,
	}
}

// FetchRoutes returns every alternative OSRM offers between from and to
func (c *Client) FetchRoutes(ctx context.Context, from, to geo.Point) ([]routing.CandidateRoute, error) {
	// OSRM takes lng,lat pairs
	coords := fmt.Sprintf("%f,%f;%f,%f", from.Longitude, from.Latitude, to.Longitude, to.Latitude)
	query := url.Values{}
	query.Set("alternatives", "true")
	query.Set("geometries", "geojson")
	query.Set("overview", "full")

	endpoint := fmt.Sprintf("%s/route/v1/%s/%s?%s", c.baseURL, url.PathEscape(c.profile), coords, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, httpx.Classify(fmt.Errorf("failed to execute request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, httpx.Classify(fmt.Errorf("failed to read response: %w", err))
	}

	// OSRM reports NoRoute with a 400 and a JSON body, so decode before
	// looking at the status.
	var response RouteResponse
	if err := json.Unmarshal(body, &response); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("%w: API error %d: %s", routing.ErrProviderError, resp.StatusCode, truncate(body))
		}
		return nil, fmt.Errorf("%w: failed to decode response: %v", routing.ErrProviderError, err)
	}

	switch response.Code {
	case "Ok":
	case "NoRoute", "NoSegment":
		return nil, fmt.Errorf("%w: %s", routing.ErrNoRouteFound, response.Message)
	default:
		return nil, fmt.Errorf("%w: OSRM %s (%d): %s", routing.ErrProviderError, response.Code, resp.StatusCode, response.Message)
	}

	if len(response.Routes) == 0 {
		return nil, routing.ErrNoRouteFound
	}

	routes := make([]routing.CandidateRoute, 0, len(response.Routes))
	for i, r := range response.Routes {
		route, err := r.toCandidate()
		if err != nil {
			return nil, fmt.Errorf("%w: route %d: %v", routing.ErrProviderError, i, err)
		}
		routes = append(routes, route)
	}
	return routes, nil
}

func (r Route) toCandidate() (routing.CandidateRoute, error) {
	points := make([]geo.Point, 0, len(r.Geometry.Coordinates))
	for _, pair := range r.Geometry.Coordinates {
		p, err := geo.FromLngLat(pair)
		if err != nil {
			return routing.CandidateRoute{}, err
		}
		points = append(points, p)
	}
	if len(points) == 0 {
		return routing.CandidateRoute{}, fmt.Errorf("route has no geometry")
	}

	return routing.CandidateRoute{
		Polyline:    points,
		DistanceKm:  routing.KmFromMeters(r.Distance),
		DurationMin: routing.MinutesFromSeconds(r.Duration),
	}, nil
}

func truncate(body []byte) string {
	if len(body) > 256 {
		return string(body[:256])
	}
	return string(body)
}
