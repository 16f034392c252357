package relay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"nexo/internal/core/domain"
	"nexo/internal/core/ports"
	"nexo/internal/infrastructure/wire"
	"nexo/pkg/config"
	"nexo/pkg/optimize"
	"nexo/pkg/tracing"
)

const (
	readBufferSize   = 64 * 1024
	writeBufferSize  = 64 * 1024
	maxPooledPayload = 64 * 1024
)

// Options configures one relay instance.
type Options struct {
	Name             string
	Address          string
	MaxPayload       int
	ReadUsername     bool
	BroadcastCount   bool
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
	SocketBuffer     int
}

// OptionsFromConfig maps a relay config section onto Options.
func OptionsFromConfig(name string, rc config.RelayConfig) Options {
	return Options{
		Name:             name,
		Address:          rc.Address,
		MaxPayload:       rc.MaxFrameBytes,
		ReadUsername:     rc.ReadUsername,
		BroadcastCount:   rc.BroadcastCount,
		WriteTimeout:     rc.WriteTimeout,
		HandshakeTimeout: 10 * time.Second,
		SocketBuffer:     rc.SocketBuffer,
	}
}

// Admission gates accepted connections before the handshake.
type Admission interface {
	Admit(addr net.Addr) bool
	Release()
}

// Deps are the optional collaborators of a relay. Nil fields are skipped.
type Deps struct {
	Roster    ports.RosterRepository
	Events    ports.EventPublisher
	Metrics   ports.RelayMetrics
	Admission Admission
}

// Server forwards every inbound frame to all other connected clients. It
// keeps no history and does no per-destination queuing: a destination that
// cannot take a write within WriteTimeout is dropped.
type Server struct {
	opts   Options
	deps   Deps
	pool   *optimize.BytePool
	logger *zap.SugaredLogger

	nextID atomic.Int32

	mu      sync.RWMutex
	clients map[domain.ParticipantID]*client
	conns   map[net.Conn]struct{}

	ln        net.Listener
	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewServer(opts Options, deps Deps, logger *zap.SugaredLogger) *Server {
	poolSize := opts.MaxPayload
	if poolSize > maxPooledPayload {
		poolSize = maxPooledPayload
	}
	return &Server{
		opts:    opts,
		deps:    deps,
		pool:    optimize.NewBytePool(poolSize),
		logger:  logger.With("relay", opts.Name),
		clients: make(map[domain.ParticipantID]*client),
		conns:   make(map[net.Conn]struct{}),
	}
}

// Name returns the relay instance name.
func (s *Server) Name() string {
	return s.opts.Name
}

// Listen binds the relay address.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return fmt.Errorf("%s relay listen on %s: %w", s.opts.Name, s.opts.Address, err)
	}
	s.ln = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve runs the accept loop until ctx is cancelled or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	s.logger.Infow("Relay listening", "address", s.ln.Addr().String(), "max_payload", s.opts.MaxPayload)
	if s.deps.Roster != nil {
		if err := s.deps.Roster.Clear(ctx, s.opts.Name); err != nil {
			s.logger.Warnw("Roster clear failed", "error", err)
		}
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-stop:
		}
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warnw("Accept failed", "error", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		if adm := s.deps.Admission; adm != nil && !adm.Admit(conn.RemoteAddr()) {
			s.logger.Warnw("Connection rejected by limiter", "remote_addr", conn.RemoteAddr().String())
			if s.deps.Metrics != nil {
				s.deps.Metrics.ClientRejected(s.opts.Name)
			}
			conn.Close()
			continue
		}

		if !s.track(conn) {
			conn.Close()
			if adm := s.deps.Admission; adm != nil {
				adm.Release()
			}
			return nil
		}
		go func() {
			defer s.untrack(conn)
			if adm := s.deps.Admission; adm != nil {
				defer adm.Release()
			}
			s.handle(ctx, conn)
		}()
	}
}

// Close stops accepting, drops every client and waits for their goroutines.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed.Store(true)
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
		if s.ln != nil {
			err = s.ln.Close()
		}
	})
	s.wg.Wait()
	return err
}

// ClientCount returns the number of registered clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Participants returns the registered clients ordered by identity.
func (s *Server) Participants() []domain.Participant {
	s.mu.RLock()
	out := make([]domain.Participant, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c.participant(s.opts.Name))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Server) tune(conn net.Conn) {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	tc.SetNoDelay(true)
	if s.opts.SocketBuffer > 0 {
		tc.SetReadBuffer(s.opts.SocketBuffer)
		tc.SetWriteBuffer(s.opts.SocketBuffer)
	}
}

// track records every accepted connection so Close can unblock handshakes
// as well as registered clients. It fails once the server is closed.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	s.tune(conn)

	c := &client{
		id:          domain.ParticipantID(s.nextID.Add(1)),
		remoteAddr:  conn.RemoteAddr().String(),
		connectedAt: time.Now(),
		conn:        conn,
		w:           bufio.NewWriterSize(conn, writeBufferSize),
	}
	r := bufio.NewReaderSize(conn, readBufferSize)

	if err := s.handshake(ctx, c, r); err != nil {
		s.logger.Warnw("Handshake failed",
			"participant_id", c.id,
			"remote_addr", c.remoteAddr,
			"error", err,
		)
		c.close()
		return
	}

	s.register(ctx, c)
	defer s.deregister(ctx, c)

	s.readLoop(c, r)
}

// handshake reads the optional username and replies with the identity. The
// reply goes out before the client is registered so no relayed frame can
// precede it.
func (s *Server) handshake(ctx context.Context, c *client, r io.Reader) error {
	_, span := tracing.TraceRelayHandshake(ctx, s.opts.Name, c.remoteAddr)
	defer span.End()

	if s.opts.ReadUsername {
		if s.opts.HandshakeTimeout > 0 {
			c.conn.SetReadDeadline(time.Now().Add(s.opts.HandshakeTimeout))
		}
		username, err := wire.ReadHello(r)
		if err != nil {
			span.RecordError(err)
			return err
		}
		c.conn.SetReadDeadline(time.Time{})
		c.username = username
		span.SetAttributes(tracing.UsernameKey.String(username))
	}

	span.SetAttributes(tracing.ParticipantIDKey.Int(int(c.id)))
	if err := c.send(s.opts.WriteTimeout, func(w io.Writer) error {
		return wire.WriteID(w, c.id)
	}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: sending identity: %v", domain.ErrHandshakeFailed, err)
	}
	return nil
}

func (s *Server) register(ctx context.Context, c *client) {
	s.mu.Lock()
	s.clients[c.id] = c
	count := len(s.clients)
	s.mu.Unlock()

	s.logger.Infow("Client registered",
		"participant_id", c.id,
		"username", c.username,
		"remote_addr", c.remoteAddr,
		"clients", count,
	)

	if s.deps.Metrics != nil {
		s.deps.Metrics.ClientConnected(s.opts.Name)
	}
	if s.deps.Roster != nil {
		p := c.participant(s.opts.Name)
		if err := s.deps.Roster.Add(ctx, &p); err != nil {
			s.logger.Warnw("Roster add failed", "participant_id", c.id, "error", err)
		}
	}
	s.publish(ctx, domain.Event{
		Type:          domain.EventParticipantJoined,
		ParticipantID: c.id,
		Username:      c.username,
		Count:         count,
	})
	s.broadcastCount(ctx)
}

func (s *Server) deregister(ctx context.Context, c *client) {
	s.mu.Lock()
	if s.clients[c.id] == c {
		delete(s.clients, c.id)
	}
	count := len(s.clients)
	s.mu.Unlock()

	c.close()

	s.logger.Infow("Client disconnected",
		"participant_id", c.id,
		"username", c.username,
		"clients", count,
	)

	if s.deps.Metrics != nil {
		s.deps.Metrics.ClientDisconnected(s.opts.Name)
	}
	if s.deps.Roster != nil {
		// ctx may already be cancelled during shutdown
		if err := s.deps.Roster.Remove(context.WithoutCancel(ctx), s.opts.Name, c.id); err != nil {
			s.logger.Warnw("Roster remove failed", "participant_id", c.id, "error", err)
		}
	}
	s.publish(ctx, domain.Event{
		Type:          domain.EventParticipantLeft,
		ParticipantID: c.id,
		Username:      c.username,
		Count:         count,
	})
	s.broadcastCount(ctx)
}

func (s *Server) readLoop(c *client, r io.Reader) {
	for {
		buf := s.pool.Get()
		payload, err := wire.ReadUpload(r, s.opts.MaxPayload, buf)
		if err != nil {
			s.pool.Put(buf)
			s.logReadError(c, err)
			return
		}
		if s.deps.Metrics != nil {
			s.deps.Metrics.FrameReceived(s.opts.Name, len(payload))
		}
		s.broadcast(c.id, payload)
		s.pool.Put(buf)
	}
}

func (s *Server) logReadError(c *client, err error) {
	switch {
	case errors.Is(err, domain.ErrProtocolViolation):
		if s.deps.Metrics != nil {
			s.deps.Metrics.ProtocolViolation(s.opts.Name)
		}
		s.logger.Warnw("Protocol violation, closing client", "participant_id", c.id, "error", err)
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), s.closed.Load():
		s.logger.Debugw("Client read ended", "participant_id", c.id, "error", err)
	default:
		s.logger.Infow("Client read failed", "participant_id", c.id, "error", err)
	}
}

func (s *Server) snapshot(exclude domain.ParticipantID) []*client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*client, 0, len(s.clients))
	for id, c := range s.clients {
		if id != exclude {
			out = append(out, c)
		}
	}
	return out
}

// broadcast relays payload from sender to every other client. A failed
// destination is closed; its own read loop then deregisters it.
func (s *Server) broadcast(sender domain.ParticipantID, payload []byte) {
	for _, dst := range s.snapshot(sender) {
		err := dst.send(s.opts.WriteTimeout, func(w io.Writer) error {
			return wire.WriteFrame(w, sender, payload)
		})
		if err != nil {
			s.dropOnWriteFailure(dst, err)
			continue
		}
		if s.deps.Metrics != nil {
			s.deps.Metrics.FrameForwarded(s.opts.Name, len(payload))
		}
	}
}

func (s *Server) broadcastCount(ctx context.Context) {
	if !s.opts.BroadcastCount || s.closed.Load() {
		return
	}
	targets := s.snapshot(domain.ControlSenderID)
	count := len(targets)
	for _, dst := range targets {
		if err := dst.send(s.opts.WriteTimeout, func(w io.Writer) error {
			return wire.WriteParticipantCount(w, count)
		}); err != nil {
			s.dropOnWriteFailure(dst, err)
		}
	}
	s.publish(ctx, domain.Event{Type: domain.EventParticipantCount, Count: count})
}

func (s *Server) dropOnWriteFailure(c *client, err error) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.WriteFailed(s.opts.Name)
	}
	s.logger.Infow("Write to client failed, dropping it", "participant_id", c.id, "error", err)
	c.close()
}

func (s *Server) publish(ctx context.Context, e domain.Event) {
	if s.deps.Events == nil {
		return
	}
	e.Relay = s.opts.Name
	e.Timestamp = time.Now()
	if err := s.deps.Events.Publish(context.WithoutCancel(ctx), e); err != nil {
		s.logger.Debugw("Event publish failed", "type", e.Type, "error", err)
	}
}
