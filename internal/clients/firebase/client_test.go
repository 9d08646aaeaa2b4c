package firebase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpup/saferoute/server/internal/lib/geo"
	"github.com/dpup/saferoute/server/internal/lib/hazard"
	"github.com/dpup/saferoute/server/internal/lib/routing"
)

const collection = `{
  "r1": {"reportId": "r1", "type": "Traffic", "latitude": 13.05, "longitude": 80.25, "placeName": "Anna Salai", "timestamp": "2025-03-01T10:00:00Z"},
  "r2": {"reportId": "r2", "type": "Pothole", "latitude": "13.1", "longitude": "80.3", "placeName": "T Nagar", "timestamp": "2025-03-01T11:00:00Z"},
  "r3": {"reportId": "r3", "type": "Traffic", "placeName": "No coordinate"}
}`

type fakeDatabase struct {
	mu      sync.Mutex
	stream  string
	puts    map[string]hazard.Record
	queries []string
}

func (f *fakeDatabase) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.queries = append(f.queries, r.URL.RawQuery)
	f.mu.Unlock()

	switch {
	case r.Method == http.MethodPut:
		var rec hazard.Record
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.puts[r.URL.Path] = rec
		f.mu.Unlock()
		w.Write([]byte(`{}`))
	case r.Header.Get("Accept") == "text/event-stream":
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, f.stream)
	case r.URL.Path == "/reports.json":
		w.Write([]byte(collection))
	default:
		http.NotFound(w, r)
	}
}

func newFakeDatabase(stream string) *fakeDatabase {
	return &fakeDatabase{stream: stream, puts: map[string]hazard.Record{}}
}

func TestSnapshot(t *testing.T) {
	db := newFakeDatabase("")
	server := httptest.NewServer(db)
	defer server.Close()

	client := NewClientWithHTTPDoer(server.URL, "reports", "secret", server.Client())
	snap, err := client.Snapshot(context.Background())
	require.NoError(t, err)

	require.Len(t, snap, 2, "record without a coordinate is ignored")
	assert.Equal(t, hazard.CategoryTraffic, snap["r1"].Category)
	assert.Equal(t, geo.Point{Latitude: 13.1, Longitude: 80.3}, snap["r2"].Location)
	assert.Equal(t, "T Nagar", snap["r2"].PlaceName)

	assert.Equal(t, []string{"auth=secret"}, db.queries)
}

func TestSnapshot_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"Permission denied"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := NewClientWithHTTPDoer(server.URL, "", "", server.Client()).Snapshot(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, routing.ErrProviderError))
	assert.Contains(t, err.Error(), "Permission denied")
}

func TestWatch_RereadsOnChange(t *testing.T) {
	stream := "event: keep-alive\ndata: null\n\n" +
		"event: put\ndata: {\"path\":\"/\",\"data\":{}}\n\n" +
		"event: cancel\ndata: null\n\n" +
		"event: put\ndata: {\"path\":\"/r9\",\"data\":{}}\n\n"
	db := newFakeDatabase(stream)
	server := httptest.NewServer(db)
	defer server.Close()

	client := NewClientWithHTTPDoer(server.URL, "reports", "", server.Client())
	ch, err := client.Watch(context.Background())
	require.NoError(t, err)

	var received []hazard.Snapshot
	timeout := time.After(5 * time.Second)
	for done := false; !done; {
		select {
		case snap, ok := <-ch:
			if !ok {
				done = true
				continue
			}
			received = append(received, snap)
		case <-timeout:
			t.Fatal("stream did not close")
		}
	}

	require.Len(t, received, 1, "events after cancel are not processed")
	assert.Len(t, received[0], 2)
}

func TestWatch_OpenFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := NewClientWithHTTPDoer(server.URL, "", "", server.Client()).Watch(context.Background())
	assert.True(t, errors.Is(err, routing.ErrProviderError))
}

func TestSubmit(t *testing.T) {
	db := newFakeDatabase("")
	server := httptest.NewServer(db)
	defer server.Close()

	client := NewClientWithHTTPDoer(server.URL, "reports", "", server.Client())
	err := client.Submit(context.Background(), hazard.Submission{
		ID:        "abc-123",
		Location:  geo.Point{Latitude: 13.05, Longitude: 80.25},
		Category:  hazard.CategorySpeedBump,
		PlaceName: "Adyar",
		Timestamp: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		UserID:    "anon-1",
	})
	require.NoError(t, err)

	rec, ok := db.puts["/reports/abc-123.json"]
	require.True(t, ok, "written under its id: %v", db.puts)
	assert.Equal(t, "abc-123", rec.ReportID)
	assert.Equal(t, "Speed Bump", rec.Type)
	assert.Equal(t, "2025-03-01T10:00:00Z", rec.Timestamp)
	assert.Equal(t, "anon-1", rec.AnonymousUserID)
	assert.JSONEq(t, "13.05", string(rec.Latitude))

	assert.Error(t, client.Submit(context.Background(), hazard.Submission{}))
}

func TestReadEvents(t *testing.T) {
	input := ": comment\n" +
		"event: put\n" +
		"data: {\"a\":\n" +
		"data: 1}\n" +
		"\n" +
		"data: bare\n" +
		"\n" +
		"event: patch\n" +
		"data:nospace\n" +
		"\n"

	var events []event
	err := readEvents(strings.NewReader(input), func(ev event) bool {
		events = append(events, ev)
		return true
	})
	assert.True(t, errors.Is(err, io.EOF))

	require.Len(t, events, 3)
	assert.Equal(t, event{name: "put", data: "{\"a\":\n1}"}, events[0])
	assert.Equal(t, event{name: "message", data: "bare"}, events[1])
	assert.Equal(t, event{name: "patch", data: "nospace"}, events[2])

	count := 0
	err = readEvents(strings.NewReader(input), func(ev event) bool {
		count++
		return false
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, count, "handler can stop the stream")

	events = nil
	err = readEvents(strings.NewReader("event: put\r\ndata: crlf\r\n\r\nevent: keep-alive\r\ndata: null\r\n\r\n"), func(ev event) bool {
		events = append(events, ev)
		return true
	})
	assert.True(t, errors.Is(err, io.EOF))
	assert.Equal(t, []event{{name: "put", data: "crlf"}, {name: "keep-alive", data: "null"}}, events)
}

func TestURL(t *testing.T) {
	c := NewClientWithHTTPDoer("https://demo.firebaseio.com/", "/reports/", "a b", nil)
	assert.Equal(t, "https://demo.firebaseio.com/reports.json?auth=a+b", c.url(c.path))

	c = NewClientWithHTTPDoer("https://demo.firebaseio.com", "", "", nil)
	assert.Equal(t, "https://demo.firebaseio.com/reports/x.json", c.url(c.path+"/x"))
}
