package signal

import (
	"net/http"
	"sync"
	"time"

	"nexo/internal/core/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Subscriber is the event source a stream reads from.
type Subscriber interface {
	Subscribe(buffer int) (<-chan domain.Event, func())
}

// EventStreamServer pushes relay and call events to websocket watchers as
// JSON, one event per message.
type EventStreamServer struct {
	events Subscriber

	mu      sync.Mutex
	watches int

	pingInterval time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
	buffer       int

	logger *zap.SugaredLogger
}

func NewEventStreamServer(events Subscriber, logger *zap.SugaredLogger) *EventStreamServer {
	return &EventStreamServer{
		events:       events,
		pingInterval: 30 * time.Second,
		readTimeout:  60 * time.Second,
		writeTimeout: 10 * time.Second,
		buffer:       64,
		logger:       logger,
	}
}

func (s *EventStreamServer) SetPingInterval(interval time.Duration) {
	s.pingInterval = interval
	if s.readTimeout < 2*interval {
		s.readTimeout = 2 * interval
	}
}

// Watchers returns the number of open streams.
func (s *EventStreamServer) Watchers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watches
}

type eventFilter struct {
	relay     string
	eventType domain.EventType
}

func (f eventFilter) match(e domain.Event) bool {
	if f.relay != "" && e.Relay != f.relay {
		return false
	}
	if f.eventType != "" && e.Type != f.eventType {
		return false
	}
	return true
}

// HandleWebSocket upgrades the request and streams events until the peer
// goes away. Optional query parameters relay and type narrow the stream.
func (s *EventStreamServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	filter := eventFilter{
		relay:     r.URL.Query().Get("relay"),
		eventType: domain.EventType(r.URL.Query().Get("type")),
	}

	events, cancel := s.events.Subscribe(s.buffer)
	defer cancel()

	s.mu.Lock()
	s.watches++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.watches--
		s.mu.Unlock()
	}()

	s.logger.Infow("event watcher connected", "remote_addr", r.RemoteAddr, "relay", filter.relay, "type", filter.eventType)

	conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		return nil
	})

	// the reader only drains control frames and notices the close
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-gone:
			s.logger.Infow("event watcher disconnected", "remote_addr", r.RemoteAddr)
			return
		case e, ok := <-events:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(s.writeTimeout))
				return
			}
			if !filter.match(e) {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := conn.WriteJSON(e); err != nil {
				s.logger.Warnw("event write failed", "remote_addr", r.RemoteAddr, "error", err)
				return
			}
		case <-pingTicker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout)); err != nil {
				s.logger.Warnw("ping failed", "remote_addr", r.RemoteAddr, "error", err)
				return
			}
		}
	}
}
