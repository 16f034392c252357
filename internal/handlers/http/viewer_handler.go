package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"nexo/internal/core/domain"
	"nexo/internal/core/ports"
	apperrors "nexo/pkg/errors"
)

// Coordinator is the part of the call coordinator the viewer drives.
type Coordinator interface {
	StartCall(s ports.CallSession) bool
	EndCall()
	ActiveCall() ports.CallSession
	State() domain.CallState
}

// StartableSession is a prepared call that connects on Start.
type StartableSession interface {
	ports.CallSession
	Start(ctx context.Context) error
}

// Mutable is implemented by sessions that support mute toggles.
type Mutable interface {
	SetMicMuted(bool)
	SetCameraMuted(bool)
	SetSpeakerMuted(bool)
	Muted() domain.MuteState
}

// CallView is the read side of the presenter.
type CallView interface {
	Status() string
	Preview() (*domain.Picture, bool)
	Tile(id domain.ParticipantID) (*domain.Picture, bool)
	TileIDs() []domain.ParticipantID
}

// ViewerHandler exposes the local call window over HTTP.
type ViewerHandler struct {
	coordinator Coordinator
	view        CallView
	newSession  func() StartableSession
	events      http.HandlerFunc

	// calls outlive the request that started them
	base context.Context
}

func NewViewerHandler(
	base context.Context,
	coordinator Coordinator,
	view CallView,
	newSession func() StartableSession,
	events http.HandlerFunc,
) *ViewerHandler {
	return &ViewerHandler{
		coordinator: coordinator,
		view:        view,
		newSession:  newSession,
		events:      events,
		base:        base,
	}
}

func (h *ViewerHandler) SetupRoutes(router *gin.Engine) {
	call := router.Group("/call")
	{
		call.GET("/status", h.Status)
		call.GET("/tiles/:id", h.Tile)
		call.GET("/preview", h.Preview)
		call.POST("/mute", h.Mute)
		call.POST("/start", h.Start)
		call.POST("/hangup", h.Hangup)
		if h.events != nil {
			call.GET("/events", gin.WrapF(h.events))
		}
	}
}

func (h *ViewerHandler) Status(c *gin.Context) {
	resp := gin.H{
		"state":  h.coordinator.State().String(),
		"status": h.view.Status(),
		"tiles":  h.view.TileIDs(),
	}
	if s := h.coordinator.ActiveCall(); s != nil {
		resp["call_id"] = s.ID()
		if m, ok := s.(Mutable); ok {
			resp["muted"] = m.Muted()
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ViewerHandler) Tile(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil {
		c.Error(apperrors.NewInvalidInputError("tile id must be an integer"))
		return
	}
	pic, ok := h.view.Tile(domain.ParticipantID(id))
	if !ok {
		c.Error(apperrors.NewNotFoundError("tile").WithContext("id", id))
		return
	}
	c.Data(http.StatusOK, "image/jpeg", pic.JPEG)
}

func (h *ViewerHandler) Preview(c *gin.Context) {
	pic, ok := h.view.Preview()
	if !ok {
		c.Error(apperrors.NewNotFoundError("preview"))
		return
	}
	c.Data(http.StatusOK, "image/jpeg", pic.JPEG)
}

func (h *ViewerHandler) Mute(c *gin.Context) {
	var req struct {
		Mic     *bool `json:"mic"`
		Camera  *bool `json:"camera"`
		Speaker *bool `json:"speaker"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	s := h.coordinator.ActiveCall()
	if s == nil {
		c.Error(apperrors.NewNotFoundError("active call"))
		return
	}
	m, ok := s.(Mutable)
	if !ok {
		c.Error(apperrors.NewInvalidInputError("call does not support mute"))
		return
	}

	if req.Mic != nil {
		m.SetMicMuted(*req.Mic)
	}
	if req.Camera != nil {
		m.SetCameraMuted(*req.Camera)
	}
	if req.Speaker != nil {
		m.SetSpeakerMuted(*req.Speaker)
	}
	c.JSON(http.StatusOK, gin.H{"call_id": s.ID(), "muted": m.Muted()})
}

func (h *ViewerHandler) Start(c *gin.Context) {
	s := h.newSession()
	if !h.coordinator.StartCall(s) {
		c.Error(apperrors.NewCallBusyError().WithContext("state", h.coordinator.State().String()))
		return
	}
	if err := s.Start(h.base); err != nil {
		s.Disconnect("start failed")
		c.Error(apperrors.WrapError(err, apperrors.ErrCodeInternal, "call could not start", http.StatusInternalServerError))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"call_id": s.ID(),
		"state":   h.coordinator.State().String(),
	})
}

func (h *ViewerHandler) Hangup(c *gin.Context) {
	h.coordinator.EndCall()
	c.JSON(http.StatusOK, gin.H{"state": h.coordinator.State().String()})
}
