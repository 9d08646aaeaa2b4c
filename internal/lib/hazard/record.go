package hazard

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/dpup/saferoute/server/internal/lib/geo"
)

// Record is the stored shape of a report in the realtime database
type Record struct {
	ReportID          string          `json:"reportId,omitempty"`
	Type              string          `json:"type,omitempty"`
	Category          string          `json:"category,omitempty"`
	Latitude          json.RawMessage `json:"latitude,omitempty"`
	Longitude         json.RawMessage `json:"longitude,omitempty"`
	PlaceName         string          `json:"placeName,omitempty"`
	Timestamp         string          `json:"timestamp,omitempty"`
	EstimatedTimeText string          `json:"estimatedTimeText,omitempty"`
	Comment           string          `json:"comment,omitempty"`
	AnonymousUserID   string          `json:"anonymousUserId,omitempty"`
	AppVersion        string          `json:"appVersion,omitempty"`
}

// ParseRecord converts a stored record into a Report. Records without a
// usable coordinate are rejected; unrecognized types are kept with
// CategoryUnknown so listings still show them while scoring skips them.
func ParseRecord(key string, rec Record) (Report, bool) {
	lat, okLat := parseNumber(rec.Latitude)
	lng, okLng := parseNumber(rec.Longitude)
	if !okLat || !okLng {
		return Report{}, false
	}
	location, err := geo.NewPoint(lat, lng)
	if err != nil {
		return Report{}, false
	}

	category := ParseCategory(rec.Type)
	if category == CategoryUnknown && rec.Category != "" {
		category = ParseCategory(rec.Category)
	}

	id := key
	if id == "" {
		id = rec.ReportID
	}

	var ts time.Time
	if rec.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, rec.Timestamp); err == nil {
			ts = parsed
		}
	}

	return Report{
		ID:                id,
		Location:          location,
		Category:          category,
		PlaceName:         rec.PlaceName,
		Timestamp:         ts,
		EstimatedTimeText: rec.EstimatedTimeText,
		Comment:           rec.Comment,
		UserID:            rec.AnonymousUserID,
	}, true
}

// ParseCollection decodes a whole collection payload keyed by report id.
// A JSON null (empty collection) yields an empty snapshot. Records that do
// not decode are skipped like records without a coordinate.
func ParseCollection(data []byte) (Snapshot, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	snap := make(Snapshot, len(raw))
	for key, msg := range raw {
		var rec Record
		if err := json.Unmarshal(msg, &rec); err != nil {
			continue
		}
		if report, ok := ParseRecord(key, rec); ok {
			snap[report.ID] = report
		}
	}
	return snap, nil
}

// ToRecord converts a submission to its stored shape
func ToRecord(sub Submission) Record {
	return Record{
		ReportID:          sub.ID,
		Type:              sub.Category.String(),
		Latitude:          json.RawMessage(strconv.FormatFloat(sub.Location.Latitude, 'f', -1, 64)),
		Longitude:         json.RawMessage(strconv.FormatFloat(sub.Location.Longitude, 'f', -1, 64)),
		PlaceName:         sub.PlaceName,
		Timestamp:         sub.Timestamp.UTC().Format(time.RFC3339Nano),
		EstimatedTimeText: sub.EstimatedTimeText,
		Comment:           sub.Comment,
		AnonymousUserID:   sub.UserID,
		AppVersion:        sub.AppVersion,
	}
}

// parseNumber accepts both JSON numbers and numeric strings
func parseNumber(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
