package ports

import (
	"context"
	"image"

	"nexo/internal/core/domain"
)

// CallSession is one live call as seen by the Call Coordinator.
type CallSession interface {
	ID() string
	// Live reports whether the session is still presenting.
	Live() bool
	// Disconnect tears the session down. Safe to call repeatedly and from
	// several goroutines; cleanup runs once.
	Disconnect(reason string)
	// Done is closed exactly once when teardown has finished.
	Done() <-chan struct{}
}

// CallLifecycle is the subset of the coordinator a session reports into.
// A session passes itself so reports from a stale session are ignored.
type CallLifecycle interface {
	CallConnected(s CallSession)
	CallFailed(s CallSession, reason string)
}

// CallObserver receives call lifecycle notifications.
type CallObserver interface {
	CallConnected(callID string)
	CallFailed(callID, reason string)
	CallEnded(callID string)
}

// Dispatcher runs tasks on the single goroutine that owns presentation state.
type Dispatcher interface {
	// Post queues fn. It returns false when the dispatcher is stopped or its
	// queue is full and fn was dropped.
	Post(fn func()) bool
	// PostUrgent queues fn ahead of regular tasks without a size limit. It
	// returns false only when the dispatcher is stopped.
	PostUrgent(fn func()) bool
}

// Presenter owns the call window. All methods are invoked on the
// Dispatcher goroutine.
type Presenter interface {
	SetStatus(status string)
	ShowLocalPreview(pic *domain.Picture)
	AddTile(id domain.ParticipantID) Surface
	RemoveTile(id domain.ParticipantID)
}

// Surface is a render target for one remote participant.
type Surface interface {
	Render(pic *domain.Picture)
	Release()
}

type Camera interface {
	Open(width, height int) error
	Read(ctx context.Context) (image.Image, error)
	Close() error
}

type Microphone interface {
	Open(format domain.AudioFormat) error
	// Read fills buf with up to len(buf) samples and returns how many were
	// captured.
	Read(ctx context.Context, buf []int16) (int, error)
	Close() error
}

type Speaker interface {
	Open(format domain.AudioFormat) error
	Write(samples []int16) error
	Close() error
}

// RelayMetrics is fed by relay servers on every connection and frame.
type RelayMetrics interface {
	ClientConnected(relay string)
	ClientDisconnected(relay string)
	ClientRejected(relay string)
	FrameReceived(relay string, bytes int)
	FrameForwarded(relay string, bytes int)
	WriteFailed(relay string)
	ProtocolViolation(relay string)
}

// EventPublisher fans events out to subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}
