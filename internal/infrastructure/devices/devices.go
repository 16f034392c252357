// Package devices provides the capture and playback backends a call session
// can be built with.
package devices

import (
	"context"
	"fmt"
	"image"

	"nexo/internal/core/domain"
	"nexo/internal/core/ports"
	"nexo/pkg/config"
)

// Set is the device triple handed to a call session.
type Set struct {
	Camera     ports.Camera
	Microphone ports.Microphone
	Speaker    ports.Speaker
}

// FromConfig builds the devices named in cfg. "none" yields a device whose
// Open always fails, so the session skips that capability.
func FromConfig(cfg config.DeviceConfig) Set {
	var set Set

	switch cfg.Camera {
	case "pattern":
		set.Camera = NewPatternCamera()
	default:
		set.Camera = UnavailableCamera{}
	}

	switch cfg.Microphone {
	case "tone":
		set.Microphone = NewToneMicrophone(cfg.ToneFrequency, 0.2)
	case "silence":
		set.Microphone = NewToneMicrophone(cfg.ToneFrequency, 0)
	default:
		set.Microphone = Unavailable{Name: "microphone"}
	}

	switch cfg.Speaker {
	case "null":
		set.Speaker = NewNullSpeaker()
	case "file":
		set.Speaker = NewPCMFileSpeaker(cfg.SpeakerFile)
	default:
		set.Speaker = Unavailable{Name: "speaker"}
	}
	return set
}

// Unavailable is a device that cannot be opened.
type Unavailable struct {
	Name string
}

func (u Unavailable) err() error {
	return fmt.Errorf("%s: %w", u.Name, domain.ErrDeviceUnavailable)
}

func (u Unavailable) Open(domain.AudioFormat) error { return u.err() }

func (u Unavailable) Read(ctx context.Context, buf []int16) (int, error) { return 0, u.err() }

func (u Unavailable) Write([]int16) error { return u.err() }

func (u Unavailable) Close() error { return nil }

// UnavailableCamera is the camera flavour of Unavailable.
type UnavailableCamera struct{}

func (UnavailableCamera) Open(width, height int) error {
	return fmt.Errorf("camera: %w", domain.ErrDeviceUnavailable)
}

func (UnavailableCamera) Read(ctx context.Context) (image.Image, error) {
	return nil, fmt.Errorf("camera: %w", domain.ErrDeviceUnavailable)
}

func (UnavailableCamera) Close() error { return nil }
