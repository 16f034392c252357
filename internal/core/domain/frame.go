package domain

// ParticipantID is the numeric identity a relay assigns to a connection.
// Identities start at 1; 0 is reserved for relay control frames.
type ParticipantID int32

// ControlSenderID marks relay-originated control frames on the video relay.
const ControlSenderID ParticipantID = 0

type MediaKind string

const (
	MediaVideo MediaKind = "video"
	MediaAudio MediaKind = "audio"
)

// FrameKind discriminates media frames from relay control frames once a frame
// has been decoded off the wire.
type FrameKind uint8

const (
	FrameMedia FrameKind = iota
	FrameParticipantCount
)

func (k FrameKind) String() string {
	switch k {
	case FrameMedia:
		return "media"
	case FrameParticipantCount:
		return "participant_count"
	default:
		return "unknown"
	}
}

// Frame is one relayed unit: the sender identity plus an opaque payload.
// For FrameParticipantCount frames Count holds the decoded control value.
type Frame struct {
	SenderID ParticipantID
	Kind     FrameKind
	Payload  []byte
	Count    int
}

// Picture is a decoded remote (or local) video frame together with the JPEG
// bytes it was decoded from.
type Picture struct {
	JPEG   []byte
	Width  int
	Height int
}

// AudioFormat describes the fixed PCM16LE mono format used by both ends.
type AudioFormat struct {
	SampleRate      int
	FrameDurationMs int
}

// SamplesPerFrame returns the number of mono samples in one frame.
func (f AudioFormat) SamplesPerFrame() int {
	return f.SampleRate * f.FrameDurationMs / 1000
}

// BytesPerFrame returns the wire size of one PCM16LE frame.
func (f AudioFormat) BytesPerFrame() int {
	return f.SamplesPerFrame() * 2
}
