package callsession

import (
	"bufio"
	"fmt"
	"time"

	"nexo/internal/core/domain"
	"nexo/internal/infrastructure/streaming"
	"nexo/internal/infrastructure/wire"
	apperrors "nexo/pkg/errors"
	"nexo/pkg/tracing"
)

// runVideo connects to the video relay, then runs capture, send and receive.
func (s *Session) runVideo() {
	addr := s.videoAddr()
	s.setStatus("Connecting to " + addr)

	r, w, err := s.connectVideo(addr)
	if err != nil {
		s.fail(err)
		return
	}

	s.setStatus(fmt.Sprintf("Connected (ID: %d)", s.VideoID()))
	if s.deps.Lifecycle != nil {
		s.deps.Lifecycle.CallConnected(s)
	}

	s.spawn(s.captureVideo)
	s.spawn(func() { s.sendVideo(w) })
	s.receiveVideo(r)
}

func (s *Session) connectVideo(addr string) (*bufio.Reader, *bufio.Writer, error) {
	_, span := tracing.TraceCallConnect(s.ctx, s.id, "video", addr)
	defer span.End()

	conn, err := s.dial(addr, videoSocketBuffer)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}

	r := bufio.NewReaderSize(conn, videoIOBuffer)
	w := bufio.NewWriterSize(conn, videoIOBuffer)

	conn.SetDeadline(time.Now().Add(s.cfg.ConnectTimeout))
	if err := wire.WriteHello(w, s.username); err == nil {
		err = w.Flush()
	}
	if err != nil {
		span.RecordError(err)
		return nil, nil, apperrors.NewHandshakeError("video", err)
	}
	id, err := wire.ReadID(r)
	if err != nil {
		span.RecordError(err)
		return nil, nil, apperrors.NewHandshakeError("video", err)
	}
	conn.SetDeadline(time.Time{})

	s.videoID.Store(int32(id))
	span.SetAttributes(tracing.ParticipantIDKey.Int(int(id)))
	s.logger.Infow("Video relay joined", "participant_id", id, "address", addr)
	return r, w, nil
}

// captureVideo grabs, mirrors and encodes a frame every FrameInterval and
// leaves it in the latest-frame slot for the sender.
func (s *Session) captureVideo() {
	vc := s.cfg.Video
	cam := s.deps.Camera
	if err := cam.Open(vc.Width, vc.Height); err != nil {
		s.logger.Warnw("Camera unavailable", "error", err)
		s.setStatus("Camera unavailable")
		return
	}
	defer cam.Close()

	ticker := time.NewTicker(vc.FrameInterval)
	defer ticker.Stop()

	var lastPreview time.Time
	for {
		img, err := cam.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() == nil {
				s.logger.Warnw("Camera read failed", "error", err)
				s.setStatus("Camera unavailable")
			}
			return
		}

		frame := streaming.Mirror(streaming.Scale(img, vc.Width, vc.Height))
		jpg, err := streaming.EncodeJPEG(frame, vc.JPEGQuality)
		if err != nil {
			s.logger.Warnw("JPEG encode failed", "error", err)
		} else {
			if !s.cameraMuted.Load() {
				s.videoSlot.Store(jpg)
			}
			if now := time.Now(); now.Sub(lastPreview) >= vc.PreviewInterval {
				lastPreview = now
				pic := &domain.Picture{JPEG: jpg, Width: vc.Width, Height: vc.Height}
				s.deps.Dispatcher.Post(func() { s.deps.Presenter.ShowLocalPreview(pic) })
			}
		}

		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// sendVideo drains the latest-frame slot. It never sends a frame that was
// superseded before it could be taken.
func (s *Session) sendVideo(w *bufio.Writer) {
	idle := s.cfg.Video.SendIdleSleep
	for {
		jpg, ok := s.videoSlot.Take()
		if !ok {
			if !sleepCtx(s.ctx, idle) {
				return
			}
			continue
		}
		err := wire.WriteUpload(w, jpg)
		if err == nil {
			err = w.Flush()
		}
		if err != nil {
			s.streamEnded("video", err)
			return
		}
	}
}

// receiveVideo reads relayed frames until the connection closes.
func (s *Session) receiveVideo(r *bufio.Reader) {
	buf := make([]byte, videoIOBuffer)
	for {
		f, err := wire.ReadFrame(r, s.cfg.Video.MaxFrameBytes, buf)
		if err != nil {
			s.streamEnded("video", err)
			return
		}
		if cap(f.Payload) > cap(buf) {
			buf = f.Payload[:cap(f.Payload)]
		}

		switch f.Kind {
		case domain.FrameParticipantCount:
			s.setStatus(fmt.Sprintf("Connected - %d participants", f.Count))
		case domain.FrameMedia:
			pic, err := decodePicture(f.Payload)
			if err != nil {
				s.logger.Debugw("Undecodable video frame", "participant_id", f.SenderID, "error", err)
				continue
			}
			s.tiles.Update(f.SenderID, pic)
		}
	}
}

// decodePicture copies payload and decodes it to learn the picture size.
func decodePicture(payload []byte) (*domain.Picture, error) {
	jpg := make([]byte, len(payload))
	copy(jpg, payload)
	img, err := streaming.DecodeJPEG(jpg)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	return &domain.Picture{JPEG: jpg, Width: b.Dx(), Height: b.Dy()}, nil
}
