package services

import (
	"sync"

	"go.uber.org/zap"

	"nexo/internal/core/domain"
	"nexo/internal/core/ports"
)

// CallCoordinator enforces at most one active call per process. One instance
// is built at startup and shared by every call site.
type CallCoordinator struct {
	mu     sync.Mutex
	state  domain.CallState
	active ports.CallSession

	observer ports.CallObserver
	logger   *zap.SugaredLogger
}

// NewCallCoordinator creates a coordinator in the IDLE state. observer may be
// nil.
func NewCallCoordinator(observer ports.CallObserver, logger *zap.SugaredLogger) *CallCoordinator {
	return &CallCoordinator{
		state:    domain.CallIdle,
		observer: observer,
		logger:   logger,
	}
}

// StartCall registers s as the sole active session. It returns false, with no
// side effects, while another call is connecting, connected, ending, or a
// previous session is still presenting.
func (c *CallCoordinator) StartCall(s ports.CallSession) bool {
	c.mu.Lock()
	if !c.state.CanStart() {
		state := c.state
		c.mu.Unlock()
		c.logger.Infow("Call rejected", "state", state.String(), "call_id", s.ID())
		return false
	}

	stale := c.active
	if stale != nil && stale.Live() {
		c.mu.Unlock()
		c.logger.Infow("Call rejected, previous session still live",
			"call_id", s.ID(),
			"active_call_id", stale.ID(),
		)
		return false
	}

	c.active = s
	c.state = domain.CallConnecting
	c.mu.Unlock()

	if stale != nil {
		stale.Disconnect("superseded")
	}

	go c.watch(s)

	c.logger.Infow("Call starting", "call_id", s.ID())
	return true
}

// watch is the one-shot completion hook for s.
func (c *CallCoordinator) watch(s ports.CallSession) {
	<-s.Done()

	c.mu.Lock()
	if c.active == s {
		c.active = nil
		if c.state.IsActive() {
			c.state = domain.CallEnded
		}
	}
	c.mu.Unlock()

	c.logger.Infow("Call session closed", "call_id", s.ID())
	if c.observer != nil {
		c.observer.CallEnded(s.ID())
	}
}

// CallConnected moves CONNECTING to CONNECTED. s may be nil to mean the
// registered session; reports from any other session are ignored.
func (c *CallCoordinator) CallConnected(s ports.CallSession) {
	c.mu.Lock()
	if s != nil && s != c.active {
		c.mu.Unlock()
		return
	}
	if c.state != domain.CallConnecting || c.active == nil {
		c.mu.Unlock()
		return
	}
	c.state = domain.CallConnected
	id := c.active.ID()
	c.mu.Unlock()

	c.logger.Infow("Call connected", "call_id", id)
	if c.observer != nil {
		c.observer.CallConnected(id)
	}
}

// CallFailed marks the call FAILED and tears down the registered session.
// A failure reported by a session that is no longer registered only tears
// that session down.
func (c *CallCoordinator) CallFailed(s ports.CallSession, reason string) {
	c.mu.Lock()
	if s != nil && s != c.active {
		c.mu.Unlock()
		s.Disconnect(reason)
		return
	}
	c.state = domain.CallFailed
	target := c.active
	c.active = nil
	c.mu.Unlock()

	if target == nil {
		c.logger.Warnw("Call failed", "reason", reason)
		return
	}

	c.logger.Warnw("Call failed", "call_id", target.ID(), "reason", reason)
	target.Disconnect(reason)
	if c.observer != nil {
		c.observer.CallFailed(target.ID(), reason)
	}
}

// EndCall tears down the registered session and returns to IDLE.
func (c *CallCoordinator) EndCall() {
	c.mu.Lock()
	target := c.active
	if target == nil {
		// FAILED or ENDED with nothing left to tear down
		if c.state != domain.CallEnding {
			c.state = domain.CallIdle
		}
		c.mu.Unlock()
		return
	}
	c.active = nil
	c.state = domain.CallEnding
	c.mu.Unlock()

	target.Disconnect("call ended")

	c.mu.Lock()
	if c.state == domain.CallEnding && c.active == nil {
		c.state = domain.CallIdle
	}
	c.mu.Unlock()

	c.logger.Infow("Call ended", "call_id", target.ID())
}

// IsCallActive reports whether a call is connecting or connected with a live
// session. A registered session that closed silently is cleaned up here.
func (c *CallCoordinator) IsCallActive() bool {
	c.mu.Lock()
	s := c.active
	if s == nil {
		c.mu.Unlock()
		return false
	}
	if !s.Live() {
		c.active = nil
		c.state = domain.CallIdle
		c.mu.Unlock()
		s.Disconnect("session closed")
		return false
	}
	active := c.state.IsActive()
	c.mu.Unlock()
	return active
}

// ActiveCall returns the registered session while a call is active.
func (c *CallCoordinator) ActiveCall() ports.CallSession {
	if !c.IsCallActive() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// State returns the current call state.
func (c *CallCoordinator) State() domain.CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Reset forces teardown and returns to IDLE regardless of state.
func (c *CallCoordinator) Reset() {
	c.mu.Lock()
	s := c.active
	c.active = nil
	c.state = domain.CallIdle
	c.mu.Unlock()

	if s != nil {
		s.Disconnect("reset")
	}
	c.logger.Warnw("Call coordinator reset")
}
