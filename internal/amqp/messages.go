package amqp

import (
	"encoding/json"
	"time"
)

// Event types published by the dashboard.
const (
	EventRefreshed    = "refreshed"
	EventTabSwitched  = "tab_switched"
	EventDrilled      = "drilled"
	EventDrillBack    = "drill_back"
	EventUnauthorized = "unauthorized"
	EventImported     = "imported"
	EventFileDeleted  = "file_deleted"
	EventReset        = "reset"
)

// Event is a lightweight notification of a dashboard state change. It
// carries identifiers only; consumers fetch whatever data they need.
type Event struct {
	Type      string    `json:"type"`
	Tab       string    `json:"tab,omitempty"`
	Family    string    `json:"family,omitempty"`
	BucketID  string    `json:"bucket_id,omitempty"`
	Start     string    `json:"start_date,omitempty"`
	End       string    `json:"end_date,omitempty"`
	Count     int       `json:"count,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent creates an event of the given type stamped with the current time.
func NewEvent(eventType string) Event {
	return Event{Type: eventType, Timestamp: time.Now()}
}

// ChangesData reports whether the event means the backend data changed.
func (e Event) ChangesData() bool {
	switch e.Type {
	case EventImported, EventFileDeleted, EventReset:
		return true
	}
	return false
}

func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func EventFromJSON(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}
