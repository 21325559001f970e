// Package plugin defines the contract between a south plugin and the host
// service that polls it.
package plugin

import (
	"encoding/json"
	"time"
)

// TimestampLayout renders reading timestamps as ISO-8601 local time with
// microsecond precision and a numeric zone offset.
const TimestampLayout = "2006-01-02 15:04:05.000000-07:00"

// Plugin modes and types reported by Info.
const (
	ModePoll  = "poll"
	TypeSouth = "south"
)

// Info is the static metadata a plugin reports to the host.
type Info struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Mode      string   `json:"mode"`
	Type      string   `json:"type"`
	Interface string   `json:"interface"`
	Config    Category `json:"config"`
}

// Reading is a single sample emitted by a poll call.
type Reading struct {
	Asset     string
	Timestamp time.Time
	Readings  map[string]any
}

type readingJSON struct {
	Asset     string         `json:"asset"`
	Timestamp string         `json:"timestamp"`
	Readings  map[string]any `json:"readings"`
}

// MarshalJSON renders the reading in the host's wire shape.
func (r Reading) MarshalJSON() ([]byte, error) {
	return json.Marshal(readingJSON{
		Asset:     r.Asset,
		Timestamp: r.Timestamp.Local().Format(TimestampLayout),
		Readings:  r.Readings,
	})
}

// UnmarshalJSON parses the wire shape produced by MarshalJSON.
func (r *Reading) UnmarshalJSON(data []byte) error {
	var raw readingJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Asset = raw.Asset
	r.Readings = raw.Readings
	r.Timestamp = time.Time{}
	if raw.Timestamp == "" {
		return nil
	}
	ts, err := time.Parse(TimestampLayout, raw.Timestamp)
	if err != nil {
		return err
	}
	r.Timestamp = ts
	return nil
}
