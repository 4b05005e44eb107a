package models

import (
	"encoding/json"
	"strings"
	"time"
)

// SupportedTimestampFormats lists formats we attempt to parse. The monitoring
// API emits naive ISO timestamps, which are read as UTC.
var SupportedTimestampFormats = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123,
	time.UnixDate,
}

// ParseTimestamp attempts to parse a timestamp string into time.Time
func ParseTimestamp(ts string) (time.Time, error) {
	ts = strings.TrimSpace(ts)

	for _, format := range SupportedTimestampFormats {
		if t, err := time.Parse(format, ts); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, ErrInvalidTimestamp
}

// UnmarshalJSON accepts any of SupportedTimestampFormats for the timestamp field.
// A missing or empty timestamp is left zero.
func (m *Metrics) UnmarshalJSON(data []byte) error {
	type plain Metrics
	var raw struct {
		plain
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*m = Metrics(raw.plain)
	m.Timestamp = time.Time{}
	if raw.Timestamp == "" {
		return nil
	}

	ts, err := ParseTimestamp(raw.Timestamp)
	if err != nil {
		return err
	}
	m.Timestamp = ts
	return nil
}
