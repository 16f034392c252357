package devices

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"nexo/internal/core/domain"
	"nexo/pkg/audio"
)

// NullSpeaker discards audio and counts what it was given.
type NullSpeaker struct {
	frames  atomic.Uint64
	samples atomic.Uint64
}

func NewNullSpeaker() *NullSpeaker {
	return &NullSpeaker{}
}

func (s *NullSpeaker) Open(format domain.AudioFormat) error { return nil }

func (s *NullSpeaker) Write(samples []int16) error {
	s.frames.Add(1)
	s.samples.Add(uint64(len(samples)))
	return nil
}

func (s *NullSpeaker) Close() error { return nil }

// Frames returns the number of Write calls.
func (s *NullSpeaker) Frames() uint64 { return s.frames.Load() }

// PCMFileSpeaker appends raw PCM16LE mono to a file, playable with
// e.g. `ffplay -f s16le -ar 44100 -ac 1`.
type PCMFileSpeaker struct {
	path string

	mu  sync.Mutex
	f   *os.File
	w   *bufio.Writer
	buf []byte
}

func NewPCMFileSpeaker(path string) *PCMFileSpeaker {
	return &PCMFileSpeaker{path: path}
}

func (s *PCMFileSpeaker) Open(format domain.AudioFormat) error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %v: %w", s.path, err, domain.ErrDeviceUnavailable)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.f = f
	s.w = bufio.NewWriterSize(f, format.BytesPerFrame()*8)
	return nil
}

func (s *PCMFileSpeaker) Write(samples []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return fmt.Errorf("speaker not open: %w", domain.ErrDeviceUnavailable)
	}
	s.buf = audio.EncodePCM16LE(s.buf, samples)
	_, err := s.w.Write(s.buf)
	return err
}

func (s *PCMFileSpeaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	ferr := s.w.Flush()
	cerr := s.f.Close()
	s.f, s.w = nil, nil
	if ferr != nil {
		return ferr
	}
	return cerr
}
