package hazard

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/dpup/saferoute/server/internal/lib/geo"
)

// Category is the fixed set of road conditions a report can describe
type Category int

const (
	CategoryUnknown Category = iota
	CategoryTraffic
	CategoryAccident
	CategoryPothole
	CategorySpeedBump
)

// Categories lists every known category in display order
var Categories = []Category{CategoryTraffic, CategoryAccident, CategoryPothole, CategorySpeedBump}

// Style holds the display attributes of a category
type Style struct {
	Label string `json:"label"`
	Glyph string `json:"glyph"`
	Color string `json:"color"`
}

// Style returns the display attributes for c. Unknown categories get a
// neutral style so callers never need a nil check.
func (c Category) Style() Style {
	switch c {
	case CategoryTraffic:
		return Style{Label: "Traffic", Glyph: "🚗", Color: "#E8922A"}
	case CategoryAccident:
		return Style{Label: "Accident", Glyph: "💥", Color: "#D64541"}
	case CategoryPothole:
		return Style{Label: "Pothole", Glyph: "🕳️", Color: "#8E6E53"}
	case CategorySpeedBump:
		return Style{Label: "Speed Bump", Glyph: "〰️", Color: "#F2C94C"}
	default:
		return Style{Label: "Unknown", Glyph: "❔", Color: "#9E9E9E"}
	}
}

// String returns the label stored in the realtime database
func (c Category) String() string {
	return c.Style().Label
}

// Known reports whether c is one of the enumerated hazard categories
func (c Category) Known() bool {
	return c != CategoryUnknown
}

// MarshalText encodes the category as its store label
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText accepts any spelling ParseCategory understands
func (c *Category) UnmarshalText(text []byte) error {
	*c = ParseCategory(string(text))
	return nil
}

// ParseCategory maps a stored type string onto the enumeration.
// Unrecognized values map to CategoryUnknown.
func ParseCategory(s string) Category {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.NewReplacer("_", "", "-", "", " ", "").Replace(normalized)
	switch normalized {
	case "traffic", "trafficjam":
		return CategoryTraffic
	case "accident":
		return CategoryAccident
	case "pothole":
		return CategoryPothole
	case "speedbump", "speedbreaker":
		return CategorySpeedBump
	default:
		return CategoryUnknown
	}
}

// Report is a single user-submitted hazard
type Report struct {
	ID                string    `json:"id"`
	Location          geo.Point `json:"location"`
	Category          Category  `json:"category"`
	PlaceName         string    `json:"place_name"`
	Timestamp         time.Time `json:"timestamp"`
	EstimatedTimeText string    `json:"estimated_time_text,omitempty"`
	Comment           string    `json:"comment,omitempty"`
	UserID            string    `json:"user_id,omitempty"`
}

// Snapshot is a full, read-only copy of the report collection keyed by id.
// A new snapshot replaces the previous one wholesale.
type Snapshot map[string]Report

// Hazards returns the reports eligible for route scoring, ordered by id so
// scoring output is deterministic.
func (s Snapshot) Hazards() []Report {
	out := make([]Report, 0, len(s))
	for _, r := range s {
		if r.Category.Known() {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Newest returns every report, newest first
func (s Snapshot) Newest() []Report {
	out := make([]Report, 0, len(s))
	for _, r := range s {
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Submission is a new report as written by the producer side
type Submission struct {
	ID                string
	Location          geo.Point
	Category          Category
	PlaceName         string
	Timestamp         time.Time
	EstimatedTimeText string
	Comment           string
	UserID            string
	AppVersion        string
}

// Store is the continuously-subscribable report collection
type Store interface {
	// Snapshot reads the whole collection
	Snapshot(ctx context.Context) (Snapshot, error)

	// Watch delivers a full snapshot after every change. The channel closes
	// when ctx is cancelled or the underlying stream ends.
	Watch(ctx context.Context) (<-chan Snapshot, error)

	// Submit writes a new report under its id
	Submit(ctx context.Context, sub Submission) error
}
