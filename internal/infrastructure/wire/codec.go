// Package wire implements the relay framing. All integers are big-endian
// int32.
//
//	client -> relay upload:   length, payload
//	relay  -> client frame:   senderId, length, payload
//	video handshake:          client sends length, username; relay replies id
//	audio handshake:          relay replies id
//
// The video relay announces the participant count with a control frame
// (senderId 0, length 4, count). Identities start at 1 so the two never
// collide; ReadFrame tags the decoded frame with its kind.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"nexo/internal/core/domain"
)

const (
	HeaderSize       = 8
	countPayloadSize = 4

	// MaxUsernameBytes bounds the handshake username.
	MaxUsernameBytes = 1024
)

func putHeader(b []byte, sender domain.ParticipantID, length int) {
	binary.BigEndian.PutUint32(b[0:4], uint32(sender))
	binary.BigEndian.PutUint32(b[4:8], uint32(int32(length)))
}

// WriteFrame writes one relayed frame. The caller flushes buffered writers.
func WriteFrame(w io.Writer, sender domain.ParticipantID, payload []byte) error {
	var hdr [HeaderSize]byte
	putHeader(hdr[:], sender, len(payload))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// WriteParticipantCount writes the video relay control frame.
func WriteParticipantCount(w io.Writer, count int) error {
	var b [HeaderSize + countPayloadSize]byte
	putHeader(b[:HeaderSize], domain.ControlSenderID, countPayloadSize)
	binary.BigEndian.PutUint32(b[HeaderSize:], uint32(int32(count)))
	_, err := w.Write(b[:])
	return err
}

// ReadFrame reads one relayed frame. The returned payload aliases buf when
// buf is large enough, so it is only valid until the next call.
func ReadFrame(r io.Reader, maxPayload int, buf []byte) (domain.Frame, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return domain.Frame{}, err
	}
	sender := domain.ParticipantID(int32(binary.BigEndian.Uint32(hdr[0:4])))
	length := int(int32(binary.BigEndian.Uint32(hdr[4:8])))

	if err := checkLength(length, maxPayload); err != nil {
		return domain.Frame{}, err
	}

	payload, err := readPayload(r, length, buf)
	if err != nil {
		return domain.Frame{}, err
	}

	if sender == domain.ControlSenderID {
		if length != countPayloadSize {
			return domain.Frame{}, fmt.Errorf("%w: control frame of %d bytes", domain.ErrProtocolViolation, length)
		}
		return domain.Frame{
			SenderID: sender,
			Kind:     domain.FrameParticipantCount,
			Payload:  payload,
			Count:    int(int32(binary.BigEndian.Uint32(payload))),
		}, nil
	}
	if sender < 0 {
		return domain.Frame{}, fmt.Errorf("%w: negative sender id %d", domain.ErrProtocolViolation, sender)
	}
	return domain.Frame{SenderID: sender, Kind: domain.FrameMedia, Payload: payload}, nil
}

// WriteUpload writes one client-to-relay frame.
func WriteUpload(w io.Writer, payload []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(int32(len(payload))))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadUpload reads one client-to-relay frame. Lengths outside
// (0, maxPayload] are protocol violations. The payload aliases buf when buf
// is large enough.
func ReadUpload(r io.Reader, maxPayload int, buf []byte) ([]byte, error) {
	length, err := readInt32(r)
	if err != nil {
		return nil, err
	}
	if err := checkLength(int(length), maxPayload); err != nil {
		return nil, err
	}
	return readPayload(r, int(length), buf)
}

// WriteHello sends the video relay handshake.
func WriteHello(w io.Writer, username string) error {
	if len(username) > MaxUsernameBytes {
		return fmt.Errorf("username of %d bytes exceeds %d", len(username), MaxUsernameBytes)
	}
	return WriteUpload(w, []byte(username))
}

// ReadHello reads the video relay handshake. An empty username is allowed.
func ReadHello(r io.Reader) (string, error) {
	length, err := readInt32(r)
	if err != nil {
		return "", fmt.Errorf("%w: reading username length: %v", domain.ErrHandshakeFailed, err)
	}
	if length < 0 || length > MaxUsernameBytes {
		return "", fmt.Errorf("%w: username length %d", domain.ErrHandshakeFailed, length)
	}
	b := make([]byte, length)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("%w: reading username: %v", domain.ErrHandshakeFailed, err)
	}
	return string(b), nil
}

// WriteID sends the identity reply.
func WriteID(w io.Writer, id domain.ParticipantID) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(id))
	_, err := w.Write(b[:])
	return err
}

// ReadID reads the identity reply. Missing or non-positive identities are
// handshake failures.
func ReadID(r io.Reader) (domain.ParticipantID, error) {
	v, err := readInt32(r)
	if err != nil {
		return 0, fmt.Errorf("%w: reading identity: %v", domain.ErrHandshakeFailed, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%w: invalid identity %d", domain.ErrHandshakeFailed, v)
	}
	return domain.ParticipantID(v), nil
}

func readInt32(r io.Reader) (int32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b[:])), nil
}

func checkLength(length, maxPayload int) error {
	if length <= 0 || length > maxPayload {
		return fmt.Errorf("%w: frame length %d outside (0, %d]", domain.ErrProtocolViolation, length, maxPayload)
	}
	return nil
}

func readPayload(r io.Reader, length int, buf []byte) ([]byte, error) {
	var payload []byte
	if cap(buf) >= length {
		payload = buf[:length]
	} else {
		payload = make([]byte, length)
	}
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
