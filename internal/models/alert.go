package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// AlertStatus is the lifecycle state of an SOS alert.
type AlertStatus string

const (
	StatusActive    AlertStatus = "active"
	StatusCancelled AlertStatus = "cancelled"
	StatusResolved  AlertStatus = "resolved"
)

func (s AlertStatus) Valid() bool {
	switch s {
	case StatusActive, StatusCancelled, StatusResolved:
		return true
	}
	return false
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Alert mirrors an sos_messages document. The dispatcher only reads it.
type Alert struct {
	ID                  string      `json:"id,omitempty"`
	SenderID            string      `json:"senderId"`
	SenderName          string      `json:"senderName"`
	SenderPhone         string      `json:"senderPhone,omitempty"`
	EmergencyContactIDs []string    `json:"emergencyContactIds"`
	Location            *Location   `json:"location,omitempty"`
	MapURL              string      `json:"googleMapsUrl,omitempty"`
	Message             string      `json:"message,omitempty"`
	Status              AlertStatus `json:"status"`
	CreatedAt           *Timestamp  `json:"createdAt,omitempty"`
}

// MapLink returns the stored map link, deriving one from the coordinates when it is absent.
func (a *Alert) MapLink() string {
	if a.MapURL != "" || a.Location == nil {
		return a.MapURL
	}
	return fmt.Sprintf("https://www.google.com/maps/search/?api=1&query=%s,%s",
		FormatCoordinate(a.Location.Latitude), FormatCoordinate(a.Location.Longitude))
}

// DisplayName falls back to the sender id so notification text is never blank.
func (a *Alert) DisplayName() string {
	if a.SenderName != "" {
		return a.SenderName
	}
	return a.SenderID
}

// FormatCoordinate renders a coordinate with the shortest exact representation.
func FormatCoordinate(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Timestamp accepts the createdAt shapes alert writers produce: RFC3339 strings, epoch
// milliseconds and {_seconds,_nanoseconds} objects. Unrecognised values decode to the zero time
// instead of failing the event.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	t.Time = time.Time{}

	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}

	switch x := v.(type) {
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, x); err == nil {
			t.Time = parsed
		}
	case float64:
		t.Time = time.UnixMilli(int64(x)).UTC()
	case map[string]interface{}:
		secs, ok := x["_seconds"].(float64)
		if !ok {
			secs, ok = x["seconds"].(float64)
		}
		if !ok {
			return nil
		}
		nanos, found := x["_nanoseconds"].(float64)
		if !found {
			nanos, _ = x["nanoseconds"].(float64)
		}
		t.Time = time.Unix(int64(secs), int64(nanos)).UTC()
	}
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time)
}
