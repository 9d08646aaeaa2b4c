package places

import (
	"context"

	"github.com/dpup/saferoute/server/internal/lib/geo"
)

// Record is a place as returned by a search provider, with the coordinate
// already converted to latitude/longitude order.
type Record struct {
	ID          string
	Name        string
	HouseNumber string
	Street      string
	District    string
	City        string
	County      string
	State       string
	Country     string
	Postcode    string
	Category    string
	Location    geo.Point
}

// Suggestion is a labeled candidate place offered while the user types
type Suggestion struct {
	ID         string    `json:"id"`
	ShortLabel string    `json:"short_label"`
	FullLabel  string    `json:"full_label"`
	Location   geo.Point `json:"location"`
	Category   string    `json:"category,omitempty"`
}

// Query is a search request. Bias and Box are optional.
type Query struct {
	Text     string
	Limit    int
	Language string
	Bias     *geo.Point
	Box      *geo.BoundingBox
}

// Searcher is the autocomplete/search collaborator
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Record, error)
}
