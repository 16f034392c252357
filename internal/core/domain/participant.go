package domain

import "time"

// Participant is the roster entry for one relay connection.
type Participant struct {
	ID          ParticipantID `json:"id"`
	Relay       string        `json:"relay"`
	Username    string        `json:"username,omitempty"`
	RemoteAddr  string        `json:"remote_addr"`
	ConnectedAt time.Time     `json:"connected_at"`
}
