package domain

// CallState is the Call Coordinator state.
type CallState int32

const (
	CallIdle CallState = iota
	CallConnecting
	CallConnected
	CallEnding
	CallEnded
	CallFailed
)

func (s CallState) String() string {
	switch s {
	case CallIdle:
		return "idle"
	case CallConnecting:
		return "connecting"
	case CallConnected:
		return "connected"
	case CallEnding:
		return "ending"
	case CallEnded:
		return "ended"
	case CallFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CanStart reports whether a new call may be registered from this state.
func (s CallState) CanStart() bool {
	return s == CallIdle || s == CallEnded || s == CallFailed
}

// IsActive reports whether the state belongs to a live call.
func (s CallState) IsActive() bool {
	return s == CallConnecting || s == CallConnected
}

// MuteState is a snapshot of the three mute toggles of a call.
type MuteState struct {
	Mic     bool `json:"mic"`
	Camera  bool `json:"camera"`
	Speaker bool `json:"speaker"`
}
