package events

import (
	"context"
	"time"

	"go.uber.org/zap"

	"nexo/internal/core/domain"
	"nexo/internal/core/ports"
)

const publishTimeout = 2 * time.Second

// CallObserver turns coordinator notifications into call.* events. It
// satisfies ports.CallObserver.
type CallObserver struct {
	pub      ports.EventPublisher
	username string
	logger   *zap.SugaredLogger
}

func NewCallObserver(pub ports.EventPublisher, username string, logger *zap.SugaredLogger) *CallObserver {
	return &CallObserver{pub: pub, username: username, logger: logger}
}

func (o *CallObserver) CallConnected(callID string) {
	o.publish(domain.Event{Type: domain.EventCallConnected, CallID: callID})
}

func (o *CallObserver) CallFailed(callID, reason string) {
	o.publish(domain.Event{Type: domain.EventCallFailed, CallID: callID, Reason: reason})
}

func (o *CallObserver) CallEnded(callID string) {
	o.publish(domain.Event{Type: domain.EventCallEnded, CallID: callID})
}

func (o *CallObserver) publish(e domain.Event) {
	e.Username = o.username
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := o.pub.Publish(ctx, e); err != nil {
		o.logger.Warnw("call event not forwarded", "type", e.Type, "call_id", e.CallID, "error", err)
	}
}
