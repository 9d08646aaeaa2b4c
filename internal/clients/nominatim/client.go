package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dpup/saferoute/server/internal/clients/httpx"
	"github.com/dpup/saferoute/server/internal/lib/geo"
	"github.com/dpup/saferoute/server/internal/lib/routing"
)

// DefaultBaseURL is the public OSM Nominatim instance
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// Client provides forward and reverse geocoding through Nominatim
type Client struct {
	baseURL    string
	userAgent  string
	httpClient httpx.HTTPDoer
}

// NewClient creates a new Nominatim client. Nominatim's usage policy
// requires an identifying user agent.
func NewClient(baseURL, userAgent string) *Client {
	return NewClientWithHTTPDoer(baseURL, userAgent, httpx.NewHTTPClient())
}

// NewClientWithHTTPDoer creates a client over a custom transport
func NewClientWithHTTPDoer(baseURL, userAgent string, doer httpx.HTTPDoer) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  userAgent,
		httpClient: doer,
	}
}

// Geocode returns the coordinates matching an address, best match first
func (c *Client) Geocode(ctx context.Context, text string) ([]geo.Point, error) {
	params := url.Values{}
	params.Set("format", "jsonv2")
	params.Set("q", text)
	params.Set("limit", "1")

	var results []SearchResult
	if err := c.get(ctx, "/search", params, &results); err != nil {
		return nil, err
	}

	points := make([]geo.Point, 0, len(results))
	for _, r := range results {
		lat, latErr := strconv.ParseFloat(r.Lat, 64)
		lon, lonErr := strconv.ParseFloat(r.Lon, 64)
		if latErr != nil || lonErr != nil {
			continue
		}
		if p, err := geo.NewPoint(lat, lon); err == nil {
			points = append(points, p)
		}
	}
	return points, nil
}

// Reverse returns a readable place name for p, or "" when there is none
func (c *Client) Reverse(ctx context.Context, p geo.Point) (string, error) {
	params := url.Values{}
	params.Set("format", "jsonv2")
	params.Set("lat", strconv.FormatFloat(p.Latitude, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(p.Longitude, 'f', -1, 64))

	var result ReverseResult
	if err := c.get(ctx, "/reverse", params, &result); err != nil {
		return "", err
	}
	if result.Error != "" {
		return "", nil
	}
	return PlaceLabel(result), nil
}

// PlaceLabel joins the distinct name, road, county, locality and state of a
// reverse result, falling back to the display name.
func PlaceLabel(r ReverseResult) string {
	candidates := []string{r.Name, r.Address.Road, r.Address.County, r.Address.Locality(), r.Address.State}

	seen := make(map[string]bool, len(candidates))
	parts := make([]string, 0, len(candidates))
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		parts = append(parts, c)
	}

	if len(parts) > 0 {
		return strings.Join(parts, ", ")
	}
	return r.DisplayName
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return httpx.Classify(fmt.Errorf("failed to execute request: %w", err))
	}
	defer resp.Body.Close()

	if err := httpx.CheckStatus(resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", routing.ErrProviderError, err)
	}
	return nil
}
