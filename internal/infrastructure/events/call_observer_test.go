package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nexo/internal/core/domain"
)

func TestCallObserver_PublishesLifecycle(t *testing.T) {
	hub := newHub()
	ch, cancel := hub.Subscribe(8)
	defer cancel()

	obs := NewCallObserver(hub, "alice", zap.NewNop().Sugar())
	obs.CallConnected("c1")
	obs.CallFailed("c1", "IO_ERROR: video stream lost")
	obs.CallEnded("c1")

	want := []domain.EventType{domain.EventCallConnected, domain.EventCallFailed, domain.EventCallEnded}
	for _, typ := range want {
		select {
		case e := <-ch:
			assert.Equal(t, typ, e.Type)
			assert.Equal(t, "c1", e.CallID)
			assert.Equal(t, "alice", e.Username)
			if typ == domain.EventCallFailed {
				assert.Equal(t, "IO_ERROR: video stream lost", e.Reason)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s not delivered", typ)
		}
	}
}

func TestCallObserver_RemoteFailureDoesNotPanic(t *testing.T) {
	hub := newHub()
	remote := &fakeRemote{err: context.DeadlineExceeded}
	hub.AttachRemote(remote, "nexo:relay:events")

	obs := NewCallObserver(hub, "bob", zap.NewNop().Sugar())
	obs.CallEnded("c2")

	remote.mu.Lock()
	defer remote.mu.Unlock()
	require.Len(t, remote.messages, 1)
	assert.Contains(t, string(remote.messages[0]), `"call.ended"`)
}
