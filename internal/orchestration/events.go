package orchestration

import (
	"time"

	"github.com/playmesh/playmesh/models"
)

// EventType classifies session events published to the websocket hub.
type EventType string

const (
	EventStateChanged EventType = "state_changed"
	EventSpendWarning EventType = "spend_warning"
	EventFleetDrain   EventType = "fleet_drain"
)

// Event is one session event delivered to websocket subscribers.
type Event struct {
	Type      EventType             `json:"type"`
	HostID    string                `json:"host_id,omitempty"`
	UserID    string                `json:"user_id,omitempty"`
	Platform  string                `json:"platform,omitempty"`
	PrevState models.LifecycleState `json:"prev_state,omitempty"`
	State     models.LifecycleState `json:"state,omitempty"`
	Message   string                `json:"message,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}

// EventSink receives session events. The websocket hub implements it; a nil
// sink is replaced with NopSink.
type EventSink interface {
	Publish(event Event)
}

type nopSink struct{}

func (nopSink) Publish(Event) {}

// NopSink discards every event.
func NopSink() EventSink {
	return nopSink{}
}

// StateEvent builds a state-transition event for a host.
func StateEvent(host *models.Host, prev models.LifecycleState) Event {
	return Event{
		Type:      EventStateChanged,
		HostID:    host.ID,
		UserID:    host.UserID,
		Platform:  host.Platform,
		PrevState: prev,
		State:     host.State,
		Timestamp: time.Now().UTC(),
	}
}
