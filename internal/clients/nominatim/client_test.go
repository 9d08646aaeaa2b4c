package nominatim

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

func TestGeocode_Success(t *testing.T) {
	var captured *http.Request
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Run(func(args mock.Arguments) {
		captured = args.Get(0).(*http.Request)
	}).Return(createMockResponse(200, loadTestFixture(t, "search_chennai.json")), nil)

	client := NewClientWithHTTPDoer("https://nominatim.test", "saferoute-test/1.0", mockHTTP)
	points, err := client.Geocode(context.Background(), "Chennai")
	require.NoError(t, err)

	require.Len(t, points, 1)
	assert.Equal(t, geo.Point{Latitude: 13.0836939, Longitude: 80.270186}, points[0])

	assert.Equal(t, "/search", captured.URL.Path)
	assert.Equal(t, "Chennai", captured.URL.Query().Get("q"))
	assert.Equal(t, "jsonv2", captured.URL.Query().Get("format"))
	assert.Equal(t, "1", captured.URL.Query().Get("limit"))
	assert.Equal(t, "saferoute-test/1.0", captured.Header.Get("User-Agent"))
}

func TestGeocode_NoResults(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.Anything).Return(createMockResponse(200, `[]`), nil)

	points, err := NewClientWithHTTPDoer("", "", mockHTTP).Geocode(context.Background(), "nowhere at all")
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestGeocode_SkipsUnparseable(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.Anything).Return(createMockResponse(200,
		`[{"lat":"abc","lon":"1"},{"lat":"95","lon":"1"},{"lat":"1.5","lon":"2.5"}]`), nil)

	points, err := NewClientWithHTTPDoer("", "", mockHTTP).Geocode(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []geo.Point{{Latitude: 1.5, Longitude: 2.5}}, points)
}

func TestGeocode_Errors(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.Anything).Return(nil, errors.New("dial tcp: no route to host")).Once()
	mockHTTP.On("Do", mock.Anything).Return(createMockResponse(503, "maintenance"), nil).Once()

	client := NewClientWithHTTPDoer("", "", mockHTTP)

	_, err := client.Geocode(context.Background(), "x")
	assert.True(t, errors.Is(err, routing.ErrProviderError))

	_, err = client.Geocode(context.Background(), "x")
	assert.True(t, errors.Is(err, routing.ErrProviderError))
	assert.Contains(t, err.Error(), "API error 503")
}

func TestReverse_Success(t *testing.T) {
	var captured *http.Request
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Run(func(args mock.Arguments) {
		captured = args.Get(0).(*http.Request)
	}).Return(createMockResponse(200, loadTestFixture(t, "reverse_chennai.json")), nil)

	label, err := NewClientWithHTTPDoer("", "", mockHTTP).Reverse(context.Background(),
		geo.Point{Latitude: 13.0827, Longitude: 80.2757})
	require.NoError(t, err)

	assert.Equal(t, "Chennai Central, Poonamallee High Road, Chennai District, Chennai, Tamil Nadu", label)
	assert.Equal(t, "/reverse", captured.URL.Path)
	assert.Equal(t, "13.0827", captured.URL.Query().Get("lat"))
	assert.Equal(t, "80.2757", captured.URL.Query().Get("lon"))
}

func TestReverse_NothingFound(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.Anything).Return(createMockResponse(200, `{"error":"Unable to geocode"}`), nil)

	label, err := NewClientWithHTTPDoer("", "", mockHTTP).Reverse(context.Background(), geo.Point{})
	require.NoError(t, err)
	assert.Empty(t, label)
}

func TestPlaceLabel(t *testing.T) {
	// Name equal to the road is not repeated
	label := PlaceLabel(ReverseResult{Name: "MG Road", Address: Address{Road: "MG Road", Town: "Kodaikanal"}})
	assert.Equal(t, "MG Road, Kodaikanal", label)

	label = PlaceLabel(ReverseResult{Address: Address{Village: "Mahabalipuram", State: "Tamil Nadu"}})
	assert.Equal(t, "Mahabalipuram, Tamil Nadu", label)

	label = PlaceLabel(ReverseResult{DisplayName: "Somewhere, India"})
	assert.Equal(t, "Somewhere, India", label)
}
