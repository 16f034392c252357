package domain

import "time"

type EventType string

const (
	EventParticipantJoined EventType = "participant.joined"
	EventParticipantLeft   EventType = "participant.left"
	EventParticipantCount  EventType = "participants.count"
	EventCallConnected     EventType = "call.connected"
	EventCallFailed        EventType = "call.failed"
	EventCallEnded         EventType = "call.ended"
)

// Event is a relay roster change or a call lifecycle notification.
type Event struct {
	Type          EventType     `json:"type"`
	InstanceID    string        `json:"instance_id,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
	Relay         string        `json:"relay,omitempty"`
	ParticipantID ParticipantID `json:"participant_id,omitempty"`
	Username      string        `json:"username,omitempty"`
	Count         int           `json:"count,omitempty"`
	CallID        string        `json:"call_id,omitempty"`
	Reason        string        `json:"reason,omitempty"`
}
