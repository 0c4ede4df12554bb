package source

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// recordDateLayouts are tried in order against incoming date strings.
var recordDateLayouts = []string{
	"2006-01-02T15:04:05-0700",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000000",
	"2006-01-02 15:04:05",
}

var namedZonePattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2})([A-Z]{1,4})$`)

// namedZoneOffsets maps the timezone abbreviations that show up in source
// feeds to fixed UTC offsets in seconds.
var namedZoneOffsets = map[string]int{
	"Z":   0,
	"UTC": 0,
	"GMT": 0,
	"EST": -5 * 3600,
	"EDT": -4 * 3600,
	"CST": -6 * 3600,
	"CDT": -5 * 3600,
	"MST": -7 * 3600,
	"MDT": -6 * 3600,
	"PST": -8 * 3600,
	"PDT": -7 * 3600,
}

// ParseRecordDate converts a record date string into a UTC time. It accepts
// ISO8601 with numeric or well-known named timezones, a bare ISO8601 local
// form (treated as UTC), and the warehouse's own stored format.
func ParseRecordDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)

	for _, layout := range recordDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	if m := namedZonePattern.FindStringSubmatch(s); m != nil {
		if offset, ok := namedZoneOffsets[m[2]]; ok {
			t, err := time.Parse("2006-01-02T15:04:05", m[1])
			if err == nil {
				return t.Add(-time.Duration(offset) * time.Second).UTC(), nil
			}
		}
	}

	return time.Time{}, fmt.Errorf("couldn't parse date '%s'", raw)
}

// parseRecords decodes a data file payload, which is either a single JSON
// object or an array of objects.
func parseRecords(raw []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var records []Record
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, &ExtractError{Message: "could not parse data file", Err: err}
		}
		return records, nil
	}

	var record Record
	if err := json.Unmarshal(trimmed, &record); err != nil {
		return nil, &ExtractError{Message: "could not parse data file", Err: err}
	}
	return []Record{record}, nil
}

// createdOn pulls the record's creation date out of its created_on field.
func (r Record) createdOn() (time.Time, error) {
	v, ok := r["created_on"]
	if !ok {
		return time.Time{}, fmt.Errorf("record has no created_on date")
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("record created_on is not a string")
	}
	return ParseRecordDate(s)
}
