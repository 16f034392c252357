package services

import (
	"sort"
	"sync"
	"time"

	"nexo/internal/core/domain"
	"nexo/internal/core/ports"
)

type relayCounters struct {
	connected          int
	totalConnections   int64
	framesReceived     int64
	framesForwarded    int64
	bytesForwarded     int64
	writeFailures      int64
	protocolViolations int64
	rejected           int64
}

// MetricsService keeps in-memory per-relay counters for the admin API and
// forwards every observation to an optional sink such as the Prometheus
// collector.
type MetricsService struct {
	mu     sync.RWMutex
	relays map[string]*relayCounters

	sink ports.RelayMetrics
}

func NewMetricsService(sink ports.RelayMetrics) *MetricsService {
	return &MetricsService{
		relays: make(map[string]*relayCounters),
		sink:   sink,
	}
}

// Register makes a relay visible in Stats before it sees any traffic.
func (m *MetricsService) Register(relay string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters(relay)
}

func (m *MetricsService) counters(relay string) *relayCounters {
	c, ok := m.relays[relay]
	if !ok {
		c = &relayCounters{}
		m.relays[relay] = c
	}
	return c
}

func (m *MetricsService) update(relay string, fn func(c *relayCounters)) {
	m.mu.Lock()
	fn(m.counters(relay))
	m.mu.Unlock()
}

func (m *MetricsService) ClientConnected(relay string) {
	m.update(relay, func(c *relayCounters) {
		c.connected++
		c.totalConnections++
	})
	if m.sink != nil {
		m.sink.ClientConnected(relay)
	}
}

func (m *MetricsService) ClientDisconnected(relay string) {
	m.update(relay, func(c *relayCounters) {
		if c.connected > 0 {
			c.connected--
		}
	})
	if m.sink != nil {
		m.sink.ClientDisconnected(relay)
	}
}

func (m *MetricsService) ClientRejected(relay string) {
	m.update(relay, func(c *relayCounters) { c.rejected++ })
	if m.sink != nil {
		m.sink.ClientRejected(relay)
	}
}

func (m *MetricsService) FrameReceived(relay string, bytes int) {
	m.update(relay, func(c *relayCounters) { c.framesReceived++ })
	if m.sink != nil {
		m.sink.FrameReceived(relay, bytes)
	}
}

func (m *MetricsService) FrameForwarded(relay string, bytes int) {
	m.update(relay, func(c *relayCounters) {
		c.framesForwarded++
		c.bytesForwarded += int64(bytes)
	})
	if m.sink != nil {
		m.sink.FrameForwarded(relay, bytes)
	}
}

func (m *MetricsService) WriteFailed(relay string) {
	m.update(relay, func(c *relayCounters) { c.writeFailures++ })
	if m.sink != nil {
		m.sink.WriteFailed(relay)
	}
}

func (m *MetricsService) ProtocolViolation(relay string) {
	m.update(relay, func(c *relayCounters) { c.protocolViolations++ })
	if m.sink != nil {
		m.sink.ProtocolViolation(relay)
	}
}

// Stats returns a snapshot for one relay.
func (m *MetricsService) Stats(relay string) (domain.RelayStats, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.relays[relay]
	if !ok {
		return domain.RelayStats{Relay: relay, Timestamp: time.Now()}, false
	}
	return snapshot(relay, c), true
}

// AllStats returns snapshots for every known relay, sorted by name.
func (m *MetricsService) AllStats() []domain.RelayStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.RelayStats, 0, len(m.relays))
	for name, c := range m.relays {
		out = append(out, snapshot(name, c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Relay < out[j].Relay })
	return out
}

func snapshot(relay string, c *relayCounters) domain.RelayStats {
	return domain.RelayStats{
		Relay:              relay,
		ConnectedClients:   c.connected,
		TotalConnections:   c.totalConnections,
		FramesReceived:     c.framesReceived,
		FramesForwarded:    c.framesForwarded,
		BytesForwarded:     c.bytesForwarded,
		WriteFailures:      c.writeFailures,
		ProtocolViolations: c.protocolViolations,
		RejectedClients:    c.rejected,
		Timestamp:          time.Now(),
	}
}
