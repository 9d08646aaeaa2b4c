package hazard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpup/saferoute/server/internal/lib/geo"
)

func TestParseCategory(t *testing.T) {
	cases := map[string]Category{
		"Traffic":    CategoryTraffic,
		" traffic ":  CategoryTraffic,
		"Accident":   CategoryAccident,
		"POTHOLE":    CategoryPothole,
		"Speed Bump": CategorySpeedBump,
		"speed_bump": CategorySpeedBump,
		"speed-bump": CategorySpeedBump,
		"":           CategoryUnknown,
		"Flood":      CategoryUnknown,
		"Roadworks":  CategoryUnknown,
	}
	for input, expected := range cases {
		assert.Equal(t, expected, ParseCategory(input), "input %q", input)
	}
}

func TestCategoryStyle_Exhaustive(t *testing.T) {
	seen := map[string]bool{}
	for _, c := range Categories {
		style := c.Style()
		assert.NotEqual(t, "Unknown", style.Label, "category %d has no style", c)
		assert.NotEmpty(t, style.Color)
		assert.False(t, seen[style.Label], "duplicate label %s", style.Label)
		seen[style.Label] = true

		// Labels round-trip through the parser
		assert.Equal(t, c, ParseCategory(c.String()))
	}
	assert.Equal(t, "Unknown", CategoryUnknown.Style().Label)
}

func TestParseCollection(t *testing.T) {
	payload := `{
		"r1": {"reportId": "r1", "type": "Traffic", "latitude": 13.05, "longitude": 80.25,
		       "placeName": "Anna Salai", "timestamp": "2025-03-01T10:00:00.000Z", "anonymousUserId": "u1"},
		"r2": {"type": "Pothole", "latitude": "12.97", "longitude": "77.59"},
		"r3": {"type": "Flood", "latitude": 12.0, "longitude": 77.0},
		"r4": {"type": "Accident", "placeName": "no coordinate"},
		"r5": {"type": "Accident", "latitude": 120.0, "longitude": 77.0},
		"r6": {"type": 5, "latitude": 13.0, "longitude": 80.0},
		"r7": "bare string",
		"r8": null
	}`

	snap, err := ParseCollection([]byte(payload))
	require.NoError(t, err)
	require.Len(t, snap, 3, "records that do not decode or lack a valid coordinate are dropped")

	r1 := snap["r1"]
	assert.Equal(t, CategoryTraffic, r1.Category)
	assert.Equal(t, geo.Point{Latitude: 13.05, Longitude: 80.25}, r1.Location)
	assert.Equal(t, "Anna Salai", r1.PlaceName)
	assert.Equal(t, "u1", r1.UserID)
	assert.Equal(t, 2025, r1.Timestamp.Year())

	assert.Equal(t, 12.97, snap["r2"].Location.Latitude, "numeric strings are accepted")
	assert.Equal(t, CategoryUnknown, snap["r3"].Category)

	hazards := snap.Hazards()
	require.Len(t, hazards, 2, "unknown categories are not hazards")
	assert.Equal(t, "r1", hazards[0].ID)
	assert.Equal(t, "r2", hazards[1].ID)
}

func TestParseCollection_Null(t *testing.T) {
	snap, err := ParseCollection([]byte("null"))
	require.NoError(t, err)
	assert.Empty(t, snap)

	_, err = ParseCollection([]byte("{not json"))
	assert.Error(t, err)
}

func TestToRecord_RoundTrip(t *testing.T) {
	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := ToRecord(Submission{
		ID:        "abc",
		Location:  geo.Point{Latitude: 12.5, Longitude: 77.25},
		Category:  CategorySpeedBump,
		PlaceName: "MG Road",
		Timestamp: ts,
		UserID:    "u9",
	})
	assert.Equal(t, "Speed Bump", rec.Type)
	assert.Equal(t, "2025-03-01T10:00:00Z", rec.Timestamp)

	report, ok := ParseRecord("abc", rec)
	require.True(t, ok)
	assert.Equal(t, CategorySpeedBump, report.Category)
	assert.Equal(t, geo.Point{Latitude: 12.5, Longitude: 77.25}, report.Location)
	assert.True(t, ts.Equal(report.Timestamp))
}

func TestSnapshot_Newest(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		"a": {ID: "a", Timestamp: base},
		"b": {ID: "b", Timestamp: base.Add(2 * time.Hour)},
		"c": {ID: "c", Timestamp: base.Add(time.Hour)},
	}
	newest := snap.Newest()
	require.Len(t, newest, 3)
	assert.Equal(t, []string{"b", "c", "a"}, []string{newest[0].ID, newest[1].ID, newest[2].ID})
}

func TestMemoryStore_Watch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewMemoryStore(Report{ID: "seed", Category: CategoryTraffic})
	ch, err := store.Watch(ctx)
	require.NoError(t, err)

	first := <-ch
	assert.Len(t, first, 1)

	require.NoError(t, store.Submit(ctx, Submission{ID: "new", Category: CategoryAccident}))
	store.Remove("seed")

	// Intermediate snapshots may be coalesced; the latest must arrive
	select {
	case snap := <-ch:
		assert.Contains(t, snap, "new")
		assert.NotContains(t, snap, "seed")
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}

	cancel()
	assert.Eventually(t, func() bool {
		_, open := <-ch
		return !open
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryStore_SubmitRequiresID(t *testing.T) {
	store := NewMemoryStore()
	assert.Error(t, store.Submit(context.Background(), Submission{}))
}
