package callsession

import (
	"bufio"
	"time"

	"nexo/internal/infrastructure/wire"
	"nexo/pkg/audio"
	apperrors "nexo/pkg/errors"
	"nexo/pkg/tracing"
)

// runAudio connects to the audio relay, then runs capture, mixer and the
// relay read loop.
func (s *Session) runAudio() {
	addr := s.audioAddr()

	r, w, err := s.connectAudio(addr)
	if err != nil {
		s.fail(err)
		return
	}

	s.spawn(s.mixAudio)
	s.spawn(func() { s.captureAudio(w) })
	s.receiveAudio(r)
}

func (s *Session) connectAudio(addr string) (*bufio.Reader, *bufio.Writer, error) {
	_, span := tracing.TraceCallConnect(s.ctx, s.id, "audio", addr)
	defer span.End()

	conn, err := s.dial(addr, audioSocketBuffer)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}

	r := bufio.NewReaderSize(conn, audioIOBuffer)
	conn.SetReadDeadline(time.Now().Add(s.cfg.ConnectTimeout))
	id, err := wire.ReadID(r)
	if err != nil {
		span.RecordError(err)
		return nil, nil, apperrors.NewHandshakeError("audio", err)
	}
	conn.SetReadDeadline(time.Time{})

	s.audioID.Store(int32(id))
	span.SetAttributes(tracing.ParticipantIDKey.Int(int(id)))
	s.logger.Infow("Audio relay joined", "participant_id", id, "address", addr)
	return r, bufio.NewWriterSize(conn, audioIOBuffer), nil
}

// captureAudio reads one frame at a time from the microphone, runs the
// capture DSP chain and sends it. Capture cadence is the send cadence.
func (s *Session) captureAudio(w *bufio.Writer) {
	mic := s.deps.Microphone
	if err := mic.Open(s.format); err != nil {
		s.logger.Warnw("Microphone unavailable", "error", err)
		return
	}
	defer mic.Close()

	ac := s.cfg.Audio
	hp := audio.NewHighPass(ac.HighPassCutoff, ac.SampleRate)
	gate := audio.NewNoiseGate(ac.GateThreshold, ac.FadeSamples)

	samples := make([]int16, s.format.SamplesPerFrame())
	payload := make([]byte, s.format.BytesPerFrame())
	for {
		n, err := mic.Read(s.ctx, samples)
		if err != nil {
			if s.ctx.Err() == nil {
				s.logger.Warnw("Microphone read failed", "error", err)
			}
			return
		}
		audio.Zero(samples[n:])

		if s.micMuted.Load() {
			audio.Zero(samples)
		} else {
			hp.Process(samples)
			gate.Process(samples)
		}

		payload = audio.EncodePCM16LE(payload, samples)
		err = wire.WriteUpload(w, payload)
		if err == nil {
			err = w.Flush()
		}
		if err != nil {
			s.streamEnded("audio", err)
			return
		}
	}
}

// receiveAudio queues frames from every other sender for the mixer.
func (s *Session) receiveAudio(r *bufio.Reader) {
	self := s.AudioID()
	buf := make([]byte, s.format.BytesPerFrame())
	for {
		f, err := wire.ReadFrame(r, s.cfg.Audio.MaxFrameBytes, buf)
		if err != nil {
			s.streamEnded("audio", err)
			return
		}
		if cap(f.Payload) > cap(buf) {
			buf = f.Payload[:cap(f.Payload)]
		}
		if f.SenderID == self {
			continue
		}
		s.queues.Offer(int32(f.SenderID), audio.DecodePCM16LE(nil, f.Payload))
	}
}

// mixAudio plays one mixed frame per frame duration, silence when no
// sender had a frame ready.
func (s *Session) mixAudio() {
	spk := s.deps.Speaker
	if err := spk.Open(s.format); err != nil {
		s.logger.Warnw("Speaker unavailable", "error", err)
		return
	}
	defer spk.Close()

	mixer := audio.NewMixer(s.format.SamplesPerFrame())
	out := make([]int16, s.format.SamplesPerFrame())
	frames := make([][]int16, 0, 8)

	ticker := time.NewTicker(time.Duration(s.format.FrameDurationMs) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}

		frames = s.queues.Poll(frames[:0])
		mixer.Mix(out, frames)
		if s.speakerMuted.Load() {
			audio.Zero(out)
		}
		if err := spk.Write(out); err != nil {
			s.logger.Warnw("Speaker write failed", "error", err)
			return
		}
	}
}
