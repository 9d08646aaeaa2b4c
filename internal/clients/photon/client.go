package photon

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
	"github.com/dpup/saferoute/server/internal/lib/places"
	"github.com/dpup/saferoute/server/internal/lib/routing"
)

// DefaultBaseURL is the public Photon instance
const DefaultBaseURL = "https://photon.komoot.io"

// Client queries a Photon search-as-you-type service
type Client struct {
	baseURL    string
	httpClient httpx.HTTPDoer
}

// NewClient creates a new Photon client
func NewClient(baseURL string) *Client {
	return NewClientWithHTTPDoer(baseURL, httpx.NewHTTPClient())
}

// NewClientWithHTTPDoer creates a client over a custom transport
func NewClientWithHTTPDoer(baseURL string, doer httpx.HTTPDoer) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: doer}
}

// Search returns place records in provider order
func (c *Client) Search(ctx context.Context, q places.Query) ([]places.Record, error) {
	params := url.Values{}
	params.Set("q", q.Text)
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Language != "" {
		params.Set("lang", q.Language)
	}
	if q.Bias != nil {
		params.Set("lat", formatFloat(q.Bias.Latitude))
		params.Set("lon", formatFloat(q.Bias.Longitude))
	}
	if q.Box != nil {
		params.Set("bbox", strings.Join([]string{
			formatFloat(q.Box.MinLongitude),
			formatFloat(q.Box.MinLatitude),
			formatFloat(q.Box.MaxLongitude),
			formatFloat(q.Box.MaxLatitude),
		}, ","))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, httpx.Classify(fmt.Errorf("failed to execute request: %w", err))
	}
	defer resp.Body.Close()

	if err := httpx.CheckStatus(resp); err != nil {
		return nil, err
	}

	var collection FeatureCollection
	if err := json.NewDecoder(resp.Body).Decode(&collection); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", routing.ErrProviderError, err)
	}

	records := make([]places.Record, 0, len(collection.Features))
	for _, f := range collection.Features {
		if r, ok := f.toRecord(); ok {
			records = append(records, r)
		}
	}
	return records, nil
}

// toRecord drops features without a usable point geometry
func (f Feature) toRecord() (places.Record, bool) {
	location, err := geo.FromLngLat(f.Geometry.Coordinates)
	if err != nil {
		return places.Record{}, false
	}

	p := f.Properties
	id := p.OSMType + strconv.FormatInt(p.OSMID, 10)
	if p.OSMID == 0 {
		id = fmt.Sprintf("%s@%s,%s", p.Name, formatFloat(location.Latitude), formatFloat(location.Longitude))
	}

	return places.Record{
		ID:          id,
		Name:        p.Name,
		HouseNumber: p.HouseNumber,
		Street:      p.Street,
		District:    p.District,
		City:        p.City,
		County:      p.County,
		State:       p.State,
		Country:     p.Country,
		Postcode:    p.Postcode,
		Category:    p.OSMValue,
		Location:    location,
	}, true
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
