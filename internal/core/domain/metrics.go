package domain

import "time"

// RelayStats is a snapshot of one relay instance's counters.
type RelayStats struct {
	Relay              string    `json:"relay"`
	ConnectedClients   int       `json:"connected_clients"`
	TotalConnections   int64     `json:"total_connections"`
	FramesReceived     int64     `json:"frames_received"`
	FramesForwarded    int64     `json:"frames_forwarded"`
	BytesForwarded     int64     `json:"bytes_forwarded"`
	WriteFailures      int64     `json:"write_failures"`
	ProtocolViolations int64     `json:"protocol_violations"`
	RejectedClients    int64     `json:"rejected_clients"`
	Timestamp          time.Time `json:"timestamp"`
}
