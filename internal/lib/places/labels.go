package places

import (
	"strings"
)

// maxShortComponents is how many address components a short label shows
const maxShortComponents = 3

// Components returns the non-empty, non-repeated address parts of r in
// display order.
func Components(r Record) []string {
	street := strings.TrimSpace(r.Street)
	if street != "" && strings.TrimSpace(r.HouseNumber) != "" {
		street = strings.TrimSpace(r.HouseNumber) + " " + street
	}

	candidates := []string{r.Name, street, r.District, r.City, r.County, r.State, r.Postcode, r.Country}

	seen := make(map[string]bool, len(candidates))
	parts := make([]string, 0, len(candidates))
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" || seen[strings.ToLower(c)] {
			continue
		}
		seen[strings.ToLower(c)] = true
		parts = append(parts, c)
	}
	return parts
}

// ToSuggestion builds the short and full labels for a record
func ToSuggestion(r Record) Suggestion {
	parts := Components(r)

	short := parts
	if len(short) > maxShortComponents {
		short = short[:maxShortComponents]
	}

	return Suggestion{
		ID:         r.ID,
		ShortLabel: strings.Join(short, ", "),
		FullLabel:  strings.Join(parts, ", "),
		Location:   r.Location,
		Category:   r.Category,
	}
}

// Dedupe drops records whose (name, city) pair was already seen. The first
// occurrence wins and provider order is otherwise preserved.
func Dedupe(records []Record) []Record {
	type key struct{ name, city string }

	seen := make(map[key]bool, len(records))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		k := key{
			name: strings.ToLower(strings.TrimSpace(r.Name)),
			city: strings.ToLower(strings.TrimSpace(r.City)),
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}

// Build dedupes records and converts them to suggestions
func Build(records []Record) []Suggestion {
	deduped := Dedupe(records)
	out := make([]Suggestion, 0, len(deduped))
	for _, r := range deduped {
		out = append(out, ToSuggestion(r))
	}
	return out
}

// Find returns the suggestion with the given id
func Find(suggestions []Suggestion, id string) (Suggestion, bool) {
	for _, s := range suggestions {
		if s.ID == id {
			return s, true
		}
	}
	return Suggestion{}, false
}
