package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dpup/prefab/logging"

	"github.com/dpup/saferoute/server/internal/lib/geo"
	"github.com/dpup/saferoute/server/internal/lib/places"
)

// SuggestionEngine turns partial input into labeled candidate places
type SuggestionEngine struct {
	searcher    places.Searcher
	minLength   int
	limit       int
	language    string
	biasDegrees float64
	timeout     time.Duration
}

// NewSuggestionEngine creates a suggestion engine
func NewSuggestionEngine(searcher places.Searcher, minLength, limit int, language string, biasDegrees float64, timeout time.Duration) *SuggestionEngine {
	return &SuggestionEngine{
		searcher:    searcher,
		minLength:   minLength,
		limit:       limit,
		language:    language,
		biasDegrees: biasDegrees,
		timeout:     timeout,
	}
}

// Searchable reports whether text is long enough to query
func (e *SuggestionEngine) Searchable(text string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(text)) >= e.minLength
}

// Suggest returns suggestions for text, biased toward bias when set. It
// never fails: errors are logged and produce an empty result.
func (e *SuggestionEngine) Suggest(ctx context.Context, text string, bias *geo.Point) []places.Suggestion {
	if !e.Searchable(text) {
		return []places.Suggestion{}
	}

	q := places.Query{
		Text:     strings.TrimSpace(text),
		Limit:    e.limit,
		Language: e.language,
	}
	if bias != nil {
		center := *bias
		box := geo.BiasBox(center, e.biasDegrees)
		q.Bias = &center
		q.Box = &box
	}

	searchCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	records, err := e.searcher.Search(searchCtx, q)
	if err != nil {
		if ctx.Err() == nil {
			logging.Warnw(ctx, "Suggestions: search failed", "query", q.Text, "error", err)
		}
		return []places.Suggestion{}
	}
	return places.Build(records)
}
