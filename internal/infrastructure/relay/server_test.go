package relay

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"nexo/internal/core/domain"
	"nexo/internal/core/services"
	"nexo/internal/infrastructure/wire"
)

type recordingEvents struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recordingEvents) Publish(_ context.Context, e domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingEvents) types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type testClient struct {
	conn net.Conn
	r    *bufio.Reader
	id   domain.ParticipantID
}

func videoOptions() Options {
	return Options{
		Name:             "video",
		Address:          "127.0.0.1:0",
		MaxPayload:       50 * 1024 * 1024,
		ReadUsername:     true,
		BroadcastCount:   true,
		WriteTimeout:     time.Second,
		HandshakeTimeout: time.Second,
		SocketBuffer:     128 * 1024,
	}
}

func audioOptions() Options {
	return Options{
		Name:         "audio",
		Address:      "127.0.0.1:0",
		MaxPayload:   2 * 1024 * 1024,
		WriteTimeout: time.Second,
	}
}

func startServer(t *testing.T, opts Options, deps Deps) *Server {
	t.Helper()
	srv := NewServer(opts, deps, zaptest.NewLogger(t).Sugar())
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("relay did not shut down")
		}
	})
	return srv
}

func dial(t *testing.T, srv *Server, username *string) *testClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", srv.Addr().String(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	if username != nil {
		require.NoError(t, wire.WriteHello(conn, *username))
	}
	r := bufio.NewReader(conn)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	id, err := wire.ReadID(r)
	require.NoError(t, err)
	conn.SetReadDeadline(time.Time{})
	return &testClient{conn: conn, r: r, id: id}
}

func name(s string) *string { return &s }

func (c *testClient) send(t *testing.T, payload []byte) {
	t.Helper()
	require.NoError(t, wire.WriteUpload(c.conn, payload))
}

func (c *testClient) next(t *testing.T, timeout time.Duration) (domain.Frame, error) {
	t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(timeout))
	defer c.conn.SetReadDeadline(time.Time{})
	f, err := wire.ReadFrame(c.r, 50*1024*1024, nil)
	return f, err
}

// nextMedia skips participant-count frames.
func (c *testClient) nextMedia(t *testing.T) domain.Frame {
	t.Helper()
	for {
		f, err := c.next(t, 2*time.Second)
		require.NoError(t, err)
		if f.Kind == domain.FrameMedia {
			return f
		}
	}
}

func (c *testClient) awaitCount(t *testing.T, n int) {
	t.Helper()
	for {
		f, err := c.next(t, 2*time.Second)
		require.NoError(t, err)
		require.Equal(t, domain.FrameParticipantCount, f.Kind, "unexpected media frame while waiting for count")
		if f.Count == n {
			return
		}
	}
}

// assertSilent checks that no media frame arrives within the window.
func (c *testClient) assertSilent(t *testing.T, window time.Duration) {
	t.Helper()
	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		f, err := c.next(t, time.Until(deadline))
		if err != nil {
			var ne net.Error
			require.True(t, errors.As(err, &ne) && ne.Timeout(), "unexpected error %v", err)
			return
		}
		require.NotEqual(t, domain.FrameMedia, f.Kind, "client received media from %d", f.SenderID)
	}
}

func waitClients(t *testing.T, srv *Server, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return srv.ClientCount() == n }, 2*time.Second, 5*time.Millisecond)
}

func TestVideoRelay_ForwardsToOthersOnly(t *testing.T) {
	srv := startServer(t, videoOptions(), Deps{})

	a := dial(t, srv, name("alice"))
	a.awaitCount(t, 1)
	b := dial(t, srv, name("bob"))
	a.awaitCount(t, 2)
	b.awaitCount(t, 2)

	payload := bytes.Repeat([]byte{0xAB}, 800)
	payload[0], payload[799] = 0xFF, 0xD9
	a.send(t, payload)

	f := b.nextMedia(t)
	assert.Equal(t, a.id, f.SenderID)
	assert.Equal(t, payload, f.Payload)

	a.assertSilent(t, 200*time.Millisecond)
}

func TestVideoRelay_FanOutToEveryOtherClient(t *testing.T) {
	srv := startServer(t, videoOptions(), Deps{})

	clients := []*testClient{
		dial(t, srv, name("a")),
		dial(t, srv, name("b")),
		dial(t, srv, name("c")),
	}
	waitClients(t, srv, 3)

	clients[1].send(t, []byte("frame-from-b"))
	for i, c := range clients {
		if i == 1 {
			continue
		}
		f := c.nextMedia(t)
		assert.Equal(t, clients[1].id, f.SenderID)
		assert.Equal(t, []byte("frame-from-b"), f.Payload)
	}
	clients[1].assertSilent(t, 200*time.Millisecond)
}

func TestVideoRelay_PerSenderOrderPreserved(t *testing.T) {
	srv := startServer(t, videoOptions(), Deps{})
	a := dial(t, srv, name("a"))
	b := dial(t, srv, name("b"))
	waitClients(t, srv, 2)

	for i := 0; i < 50; i++ {
		a.send(t, []byte{byte(i)})
	}
	for i := 0; i < 50; i++ {
		f := b.nextMedia(t)
		require.Equal(t, []byte{byte(i)}, f.Payload)
	}
}

func TestRelay_IdentitiesMonotonicFromOne(t *testing.T) {
	srv := startServer(t, videoOptions(), Deps{})

	var prev domain.ParticipantID
	for i := 0; i < 3; i++ {
		c := dial(t, srv, name("user"))
		assert.Greater(t, c.id, prev)
		prev = c.id
		if i == 0 {
			assert.Equal(t, domain.ParticipantID(1), c.id)
		}
		c.conn.Close()
	}
	// identities are not reused after disconnects
	c := dial(t, srv, name("late"))
	assert.Equal(t, domain.ParticipantID(4), c.id)
}

func TestVideoRelay_DisconnectBroadcastsCount(t *testing.T) {
	events := &recordingEvents{}
	srv := startServer(t, videoOptions(), Deps{Events: events})

	a := dial(t, srv, name("a"))
	a.awaitCount(t, 1)
	b := dial(t, srv, name("b"))
	a.awaitCount(t, 2)

	b.conn.Close()
	a.awaitCount(t, 1)
	waitClients(t, srv, 1)

	assert.Contains(t, events.types(), domain.EventParticipantJoined)
	assert.Contains(t, events.types(), domain.EventParticipantLeft)
	assert.Contains(t, events.types(), domain.EventParticipantCount)
}

func TestRelay_ProtocolViolationClosesConnection(t *testing.T) {
	metrics := services.NewMetricsService(nil)
	opts := audioOptions()
	opts.MaxPayload = 3528
	srv := startServer(t, opts, Deps{Metrics: metrics})

	a := dial(t, srv, nil)
	b := dial(t, srv, nil)
	waitClients(t, srv, 2)

	a.send(t, make([]byte, 3529))

	_, err := a.next(t, 2*time.Second)
	assert.Error(t, err)
	waitClients(t, srv, 1)

	stats, _ := metrics.Stats("audio")
	assert.Equal(t, int64(1), stats.ProtocolViolations)

	// the survivor is unaffected
	c := dial(t, srv, nil)
	waitClients(t, srv, 2)
	c.send(t, make([]byte, 3528))
	f := b.nextMedia(t)
	assert.Equal(t, c.id, f.SenderID)
	assert.Len(t, f.Payload, 3528)
}

func TestRelay_ZeroLengthIsViolation(t *testing.T) {
	srv := startServer(t, audioOptions(), Deps{})
	a := dial(t, srv, nil)
	waitClients(t, srv, 1)

	_, err := a.conn.Write([]byte{0, 0, 0, 0})
	require.NoError(t, err)
	waitClients(t, srv, 0)
}

func TestAudioRelay_NoHandshakePayloadNoCountFrames(t *testing.T) {
	srv := startServer(t, audioOptions(), Deps{})

	a := dial(t, srv, nil)
	b := dial(t, srv, nil)
	waitClients(t, srv, 2)

	pcm := make([]byte, 3528)
	for i := range pcm {
		pcm[i] = byte(i)
	}
	a.send(t, pcm)

	f, err := b.next(t, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, domain.FrameMedia, f.Kind, "audio relay must not emit count frames")
	assert.Equal(t, a.id, f.SenderID)
	assert.Equal(t, pcm, f.Payload)
	a.assertSilent(t, 200*time.Millisecond)
}

func TestRelay_BrokenDestinationDoesNotAffectOthers(t *testing.T) {
	metrics := services.NewMetricsService(nil)
	srv := startServer(t, audioOptions(), Deps{Metrics: metrics})

	a := dial(t, srv, nil)
	broken := dial(t, srv, nil)
	c := dial(t, srv, nil)
	waitClients(t, srv, 3)

	broken.conn.Close()
	for i := 0; i < 20; i++ {
		a.send(t, []byte{byte(i), 1, 2, 3})
		f := c.nextMedia(t)
		require.Equal(t, byte(i), f.Payload[0])
	}
	waitClients(t, srv, 2)
}

func TestRelay_ParticipantsAndCount(t *testing.T) {
	srv := startServer(t, videoOptions(), Deps{})
	dial(t, srv, name("alice"))
	dial(t, srv, name("bob"))
	waitClients(t, srv, 2)

	ps := srv.Participants()
	require.Len(t, ps, 2)
	assert.Equal(t, "alice", ps[0].Username)
	assert.Equal(t, "bob", ps[1].Username)
	assert.Equal(t, "video", ps[0].Relay)
	assert.Less(t, ps[0].ID, ps[1].ID)
}

func TestRelay_HandshakeTimeout(t *testing.T) {
	opts := videoOptions()
	opts.HandshakeTimeout = 100 * time.Millisecond
	srv := startServer(t, opts, Deps{})

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = conn.Read(make([]byte, 4))
	assert.Error(t, err, "server closes a client that never sends its username")
	assert.Zero(t, srv.ClientCount())
}

type denyAll struct{}

func (denyAll) Admit(net.Addr) bool { return false }
func (denyAll) Release()            {}

func TestRelay_AdmissionRejects(t *testing.T) {
	metrics := services.NewMetricsService(nil)
	srv := startServer(t, audioOptions(), Deps{Admission: denyAll{}, Metrics: metrics})

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = wire.ReadID(conn)
	assert.Error(t, err)

	require.Eventually(t, func() bool {
		stats, _ := metrics.Stats("audio")
		return stats.RejectedClients == 1
	}, time.Second, 5*time.Millisecond)
}
