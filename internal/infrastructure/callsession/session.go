// Package callsession implements one live call: a video pipeline and an
// audio pipeline, each talking to its own relay, torn down exactly once.
package callsession

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"nexo/internal/core/domain"
	"nexo/internal/core/ports"
	"nexo/internal/infrastructure/streaming"
	"nexo/pkg/audio"
	"nexo/pkg/config"
	apperrors "nexo/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	videoSocketBuffer = 128 * 1024
	audioSocketBuffer = 64 * 1024
	videoIOBuffer     = 64 * 1024
	audioIOBuffer     = 16 * 1024
)

// Deps are the collaborators a session drives.
type Deps struct {
	Lifecycle  ports.CallLifecycle
	Dispatcher ports.Dispatcher
	Presenter  ports.Presenter
	Camera     ports.Camera
	Microphone ports.Microphone
	Speaker    ports.Speaker
}

// Session is one call. It satisfies ports.CallSession.
type Session struct {
	id       string
	username string
	cfg      config.ClientConfig
	format   domain.AudioFormat
	deps     Deps
	logger   *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc

	live      atomic.Bool
	started   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup

	connMu sync.Mutex
	conns  []net.Conn
	reason string

	videoID atomic.Int32
	audioID atomic.Int32

	micMuted     atomic.Bool
	cameraMuted  atomic.Bool
	speakerMuted atomic.Bool

	videoSlot streaming.LatestSlot[[]byte]
	tiles     *TileSet
	queues    *audio.StreamQueues
}

// New prepares a session. Nothing connects until Start.
func New(username string, cfg config.ClientConfig, deps Deps, logger *zap.SugaredLogger) *Session {
	id := uuid.NewString()
	lg := logger.With("call_id", id)
	s := &Session{
		id:       id,
		username: username,
		cfg:      cfg,
		format: domain.AudioFormat{
			SampleRate:      cfg.Audio.SampleRate,
			FrameDurationMs: cfg.Audio.FrameDurationMs,
		},
		deps:   deps,
		logger: lg,
		done:   make(chan struct{}),
		tiles:  NewTileSet(deps.Dispatcher, deps.Presenter, cfg.Tiles.Timeout, lg),
		queues: audio.NewStreamQueues(cfg.Audio.QueueCapacity),
	}
	s.live.Store(true)
	return s
}

func (s *Session) ID() string { return s.id }

// Live reports whether the session has not been torn down yet. A prepared
// session counts as live so the coordinator never replaces it before Start.
func (s *Session) Live() bool { return s.live.Load() }

func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until teardown has finished.
func (s *Session) Wait() { <-s.done }

// Reason returns why the session was torn down, empty while live.
func (s *Session) Reason() string {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.reason
}

// VideoID and AudioID return the identities the relays assigned, 0 until
// the handshake completes.
func (s *Session) VideoID() domain.ParticipantID { return domain.ParticipantID(s.videoID.Load()) }
func (s *Session) AudioID() domain.ParticipantID { return domain.ParticipantID(s.audioID.Load()) }

// Tiles exposes the remote tile set.
func (s *Session) Tiles() *TileSet { return s.tiles }

func (s *Session) SetMicMuted(v bool)     { s.micMuted.Store(v) }
func (s *Session) SetCameraMuted(v bool)  { s.cameraMuted.Store(v) }
func (s *Session) SetSpeakerMuted(v bool) { s.speakerMuted.Store(v) }

func (s *Session) Muted() domain.MuteState {
	return domain.MuteState{
		Mic:     s.micMuted.Load(),
		Camera:  s.cameraMuted.Load(),
		Speaker: s.speakerMuted.Load(),
	}
}

func (s *Session) videoAddr() string {
	return net.JoinHostPort(s.cfg.ServerHost, strconv.Itoa(s.cfg.VideoPort))
}

func (s *Session) audioAddr() string {
	return net.JoinHostPort(s.cfg.ServerHost, strconv.Itoa(s.cfg.AudioPort))
}

// Start connects both pipelines in the background. It must be called once,
// after the coordinator accepted the session.
func (s *Session) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("call %s already started", s.id)
	}

	s.connMu.Lock()
	if !s.live.Load() {
		s.connMu.Unlock()
		return domain.ErrSessionClosed
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.connMu.Unlock()

	s.micMuted.Store(false)
	s.cameraMuted.Store(false)
	s.speakerMuted.Store(false)

	s.logger.Infow("Call session starting",
		"username", s.username,
		"video_addr", s.videoAddr(),
		"audio_addr", s.audioAddr(),
	)

	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		s.tiles.Run(s.ctx, s.cfg.Tiles.SweepInterval)
	}()
	go func() {
		defer s.wg.Done()
		s.runVideo()
	}()
	go func() {
		defer s.wg.Done()
		s.runAudio()
	}()
	return nil
}

// spawn runs fn as a tracked pipeline goroutine. Callers are themselves
// tracked, so the group counter is non-zero.
func (s *Session) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// Disconnect tears the session down. Only the first call does any work;
// Done closes once every pipeline goroutine has exited.
func (s *Session) Disconnect(reason string) {
	s.closeOnce.Do(func() {
		s.connMu.Lock()
		s.live.Store(false)
		if s.cancel != nil {
			s.cancel()
		}
		s.reason = reason
		conns := s.conns
		s.conns = nil
		s.connMu.Unlock()
		for _, c := range conns {
			c.Close()
		}

		s.tiles.Clear()
		s.deps.Dispatcher.PostUrgent(func() { s.deps.Presenter.SetStatus("Disconnected") })
		s.logger.Infow("Call session disconnected", "reason", reason)

		go func() {
			s.wg.Wait()
			close(s.done)
		}()
	})
}

// track registers conn for teardown. It refuses once teardown has begun.
func (s *Session) track(conn net.Conn) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if !s.live.Load() {
		return false
	}
	s.conns = append(s.conns, conn)
	return true
}

// setStatus posts a status line. Lines that reach the UI goroutine after
// teardown are dropped so "Disconnected" stays last.
func (s *Session) setStatus(status string) {
	s.deps.Dispatcher.Post(func() {
		if s.live.Load() {
			s.deps.Presenter.SetStatus(status)
		}
	})
}

// fail reports a failure to the coordinator, which tears the session down.
func (s *Session) fail(err error) {
	if !s.live.Load() {
		return
	}
	reason := apperrors.ReasonOf(err)
	s.logger.Warnw("Call failed", "reason", reason)
	s.setStatus("Connection failed: " + reason)
	if s.deps.Lifecycle != nil {
		s.deps.Lifecycle.CallFailed(s, reason)
		return
	}
	s.Disconnect(reason)
}

// streamEnded funnels a pipeline exit into teardown. A clean close by the
// relay ends the call; anything else fails it.
func (s *Session) streamEnded(pipeline string, err error) {
	if !s.live.Load() {
		return
	}
	switch {
	case errors.Is(err, io.EOF):
		s.Disconnect(pipeline + " relay closed the connection")
	case errors.Is(err, domain.ErrProtocolViolation):
		s.fail(apperrors.NewProtocolViolationError(pipeline+" stream violated framing", err))
	default:
		s.fail(apperrors.NewIOError(pipeline+" stream failed", err))
	}
}

// dial connects to a relay with the configured timeout and tunes the socket.
func (s *Session) dial(addr string, socketBuffer int) (net.Conn, error) {
	d := net.Dialer{Timeout: s.cfg.ConnectTimeout}
	conn, err := d.DialContext(s.ctx, "tcp", addr)
	if err != nil {
		return nil, apperrors.NewConnectError(addr, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
		tcp.SetReadBuffer(socketBuffer)
		tcp.SetWriteBuffer(socketBuffer)
	}
	if !s.track(conn) {
		conn.Close()
		return nil, domain.ErrSessionClosed
	}
	return conn, nil
}

// sleepCtx pauses for d or until the session is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
