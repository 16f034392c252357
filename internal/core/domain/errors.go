package domain

import "errors"

var (
	ErrCallBusy            = errors.New("a call is already active")
	ErrProtocolViolation   = errors.New("protocol violation")
	ErrHandshakeFailed     = errors.New("handshake failed")
	ErrDeviceUnavailable   = errors.New("device unavailable")
	ErrSessionClosed       = errors.New("session closed")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrRelayNotFound       = errors.New("relay not found")
)
