package photon

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dpup/saferoute/server/internal/lib/geo"
	"github.com/dpup/saferoute/server/internal/lib/places"
	"github.com/dpup/saferoute/server/internal/lib/routing"
)

// MockHTTPDoer is a mock implementation of HTTPDoer
type MockHTTPDoer struct {
	mock.Mock
}

func (m *MockHTTPDoer) Do(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	resp, _ := args.Get(0).(*http.Response)
	return resp, args.Error(1)
}

func loadTestFixture(t *testing.T, filename string) string {
	data, err := os.ReadFile("testdata/" + filename)
	require.NoError(t, err, "Failed to load test fixture %s", filename)
	return string(data)
}

func createMockResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestSearch_Success(t *testing.T) {
	var captured *http.Request
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Run(func(args mock.Arguments) {
		captured = args.Get(0).(*http.Request)
	}).Return(createMockResponse(200, loadTestFixture(t, "chennai.json")), nil)

	bias := geo.Point{Latitude: 13, Longitude: 80}
	box := geo.BoundingBox{MinLatitude: 12.5, MinLongitude: 79.5, MaxLatitude: 13.5, MaxLongitude: 80.5}

	client := NewClientWithHTTPDoer("https://photon.test", mockHTTP)
	records, err := client.Search(context.Background(), places.Query{
		Text:     "Chennai",
		Limit:    8,
		Language: "en",
		Bias:     &bias,
		Box:      &box,
	})
	require.NoError(t, err)

	require.NotNil(t, captured)
	assert.Equal(t, "/api", captured.URL.Path)
	query := captured.URL.Query()
	assert.Equal(t, "Chennai", query.Get("q"))
	assert.Equal(t, "8", query.Get("limit"))
	assert.Equal(t, "en", query.Get("lang"))
	assert.Equal(t, "13", query.Get("lat"))
	assert.Equal(t, "80", query.Get("lon"))
	assert.Equal(t, "79.5,12.5,80.5,13.5", query.Get("bbox"), "bbox is minLon,minLat,maxLon,maxLat")

	require.Len(t, records, 2, "feature without coordinates is dropped")
	assert.Equal(t, "R2599468", records[0].ID)
	assert.Equal(t, "Chennai", records[0].Name)
	assert.Equal(t, "city", records[0].Category)
	assert.Equal(t, geo.Point{Latitude: 13.0836939, Longitude: 80.2707184}, records[0].Location)

	assert.Equal(t, "Chennai Central", records[1].Name)
	assert.Equal(t, "Poonamallee High Road", records[1].Street)
	assert.Equal(t, "Chennai", records[1].City)
	assert.Equal(t, "600003", records[1].Postcode)
}

func TestSearch_NoBias(t *testing.T) {
	var captured *http.Request
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Run(func(args mock.Arguments) {
		captured = args.Get(0).(*http.Request)
	}).Return(createMockResponse(200, `{"type":"FeatureCollection","features":[]}`), nil)

	records, err := NewClientWithHTTPDoer("", mockHTTP).Search(context.Background(), places.Query{Text: "Che"})
	require.NoError(t, err)
	assert.Empty(t, records)

	assert.Equal(t, "photon.komoot.io", captured.URL.Host)
	assert.Empty(t, captured.URL.Query().Get("bbox"))
	assert.Empty(t, captured.URL.Query().Get("lat"))
}

func TestSearch_Errors(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.Anything).Return(createMockResponse(500, "oops"), nil).Once()
	mockHTTP.On("Do", mock.Anything).Return(createMockResponse(200, "not json"), nil).Once()
	mockHTTP.On("Do", mock.Anything).Return(nil, context.DeadlineExceeded).Once()

	client := NewClientWithHTTPDoer("", mockHTTP)

	_, err := client.Search(context.Background(), places.Query{Text: "x"})
	assert.True(t, errors.Is(err, routing.ErrProviderError))

	_, err = client.Search(context.Background(), places.Query{Text: "x"})
	assert.True(t, errors.Is(err, routing.ErrProviderError))

	_, err = client.Search(context.Background(), places.Query{Text: "x"})
	assert.True(t, errors.Is(err, routing.ErrProviderTimeout))
}
