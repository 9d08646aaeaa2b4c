package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpup/saferoute/server/internal/lib/geo"
	"github.com/dpup/saferoute/server/internal/lib/places"
	"github.com/dpup/saferoute/server/internal/lib/routing"
)

func TestSuggest_ShortQueryMakesNoCall(t *testing.T) {
	searcher := &fakeSearcher{}
	engine := NewSuggestionEngine(searcher, 2, 8, "en", 0.72, time.Second)

	assert.Empty(t, engine.Suggest(context.Background(), "a", nil))
	assert.Empty(t, engine.Suggest(context.Background(), "  a  ", nil))
	assert.Empty(t, searcher.Queries())
	assert.False(t, engine.Searchable("a"))
	assert.True(t, engine.Searchable("ab"))
}

func TestSuggest_BiasesAroundDevice(t *testing.T) {
	searcher := &fakeSearcher{}
	engine := NewSuggestionEngine(searcher, 2, 8, "en", 0.72, time.Second)
	device := geo.Point{Latitude: 13.08, Longitude: 80.27}

	engine.Suggest(context.Background(), " Chennai ", &device)

	queries := searcher.Queries()
	require.Len(t, queries, 1)
	q := queries[0]
	assert.Equal(t, "Chennai", q.Text)
	assert.Equal(t, 8, q.Limit)
	assert.Equal(t, "en", q.Language)
	require.NotNil(t, q.Bias)
	assert.Equal(t, device, *q.Bias)
	require.NotNil(t, q.Box)
	assert.Equal(t, geo.BiasBox(device, 0.72), *q.Box)
}

func TestSuggest_NoBiasWithoutDevice(t *testing.T) {
	searcher := &fakeSearcher{}
	engine := NewSuggestionEngine(searcher, 2, 8, "en", 0.72, time.Second)

	engine.Suggest(context.Background(), "Chennai", nil)

	queries := searcher.Queries()
	require.Len(t, queries, 1)
	assert.Nil(t, queries[0].Bias)
	assert.Nil(t, queries[0].Box)
}

func TestSuggest_DedupesAndLabels(t *testing.T) {
	searcher := &fakeSearcher{records: []places.Record{
		{ID: "N1", Name: "Chennai Central", Street: "Poonamallee High Road", City: "Chennai", State: "Tamil Nadu", Country: "India"},
		{ID: "N2", Name: "chennai central", City: "Chennai"},
		{ID: "N3", Name: "Chennai Central", City: "Kanchipuram"},
	}}
	engine := NewSuggestionEngine(searcher, 2, 8, "en", 0.72, time.Second)

	got := engine.Suggest(context.Background(), "chennai cen", nil)
	require.Len(t, got, 2)
	assert.Equal(t, "N1", got[0].ID)
	assert.Equal(t, "Chennai Central, Poonamallee High Road, Chennai", got[0].ShortLabel)
	assert.Equal(t, "Chennai Central, Poonamallee High Road, Chennai, Tamil Nadu, India", got[0].FullLabel)
	assert.Equal(t, "N3", got[1].ID)
}

func TestSuggest_ErrorYieldsEmpty(t *testing.T) {
	searcher := &fakeSearcher{err: routing.ErrProviderError}
	engine := NewSuggestionEngine(searcher, 2, 8, "en", 0.72, time.Second)

	got := engine.Suggest(context.Background(), "Chennai", nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
