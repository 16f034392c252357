package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"nexo/internal/core/domain"
	"nexo/pkg/circuitbreaker"
	"nexo/pkg/retry"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Remote is the Redis surface the hub forwards through.
type Remote interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// Hub fans relay and call events out to in-process subscribers and,
// when a Redis remote is attached, to other instances.
type Hub struct {
	instanceID string
	logger     *zap.SugaredLogger

	mu     sync.RWMutex
	subs   map[int]chan domain.Event
	nextID int
	closed bool

	remote  Remote
	channel string
	breaker *circuitbreaker.CircuitBreaker

	dropped atomic.Uint64
}

func NewHub(instanceID string, logger *zap.SugaredLogger) *Hub {
	return &Hub{
		instanceID: instanceID,
		logger:     logger,
		subs:       make(map[int]chan domain.Event),
	}
}

// AttachRemote forwards every published event to channel. Forwarding is
// suspended for a while after repeated failures so a dead Redis does not
// stall relay registration.
func (h *Hub) AttachRemote(remote Remote, channel string) {
	breaker := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold:    3,
		SuccessThreshold:    1,
		Timeout:             10 * time.Second,
		MaxRequestsHalfOpen: 1,
	})
	breaker.OnStateChange(func(from, to circuitbreaker.State) {
		h.logger.Warnw("remote event forwarding state changed", "from", from.String(), "to", to.String())
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	h.remote = remote
	h.channel = channel
	h.breaker = breaker
}

func (h *Hub) InstanceID() string {
	return h.instanceID
}

// Publish delivers event locally and forwards it to the remote if attached.
// Subscribers whose buffer is full miss the event.
func (h *Hub) Publish(ctx context.Context, event domain.Event) error {
	if event.InstanceID == "" {
		event.InstanceID = h.instanceID
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	h.deliver(event)

	h.mu.RLock()
	remote, channel, breaker := h.remote, h.channel, h.breaker
	h.mu.RUnlock()
	if remote == nil {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	err = breaker.Execute(ctx, func() error {
		return remote.Publish(ctx, channel, data).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	h.logger.Debugw("published event",
		"type", event.Type,
		"relay", event.Relay,
		"participant_id", event.ParticipantID,
	)
	return nil
}

func (h *Hub) deliver(event domain.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subs {
		select {
		case ch <- event:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribe returns a channel of events and a cancel func that closes it.
func (h *Hub) Subscribe(buffer int) (<-chan domain.Event, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan domain.Event, buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub)
			}
		})
	}
}

// Dropped is the number of deliveries skipped because a subscriber was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// RunRemote relays events published by other instances to local
// subscribers until ctx is cancelled. The subscription is retried with
// backoff until Redis confirms it.
func (h *Hub) RunRemote(ctx context.Context) error {
	h.mu.RLock()
	remote, channel := h.remote, h.channel
	h.mu.RUnlock()
	if remote == nil {
		return fmt.Errorf("no remote attached")
	}

	backoff := retry.Config{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		Jitter:       0.2,
	}
	var pubsub *redis.PubSub
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		ps := remote.Subscribe(ctx, channel)
		if _, err := ps.Receive(ctx); err != nil {
			ps.Close()
			h.logger.Warnw("remote subscribe failed", "channel", channel, "error", err)
			return err
		}
		pubsub = ps
		return nil
	})
	if err != nil {
		return err
	}
	defer pubsub.Close()
	h.logger.Infow("remote events subscribed", "channel", channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			event, foreign, err := h.decodeRemote(msg.Payload)
			if err != nil {
				h.logger.Warnw("failed to unmarshal event",
					"error", err,
					"payload", msg.Payload,
				)
				continue
			}
			if foreign {
				h.deliver(event)
			}
		}
	}
}

// decodeRemote parses a remote payload and reports whether it came from
// another instance.
func (h *Hub) decodeRemote(payload string) (domain.Event, bool, error) {
	var event domain.Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return domain.Event{}, false, err
	}
	return event, event.InstanceID != h.instanceID, nil
}

// Close closes every subscriber channel. Later publishes are local no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
