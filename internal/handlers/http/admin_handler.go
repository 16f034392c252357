package http

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"nexo/internal/core/domain"
	"nexo/internal/core/ports"
	apperrors "nexo/pkg/errors"
)

// RelayView is the read side of a running relay instance.
type RelayView interface {
	Name() string
	ClientCount() int
	Participants() []domain.Participant
}

// StatsSource returns counters for a relay by name.
type StatsSource interface {
	Stats(relay string) (domain.RelayStats, bool)
}

// Readiness reports whether every dependency answers.
type Readiness interface {
	IsReady(ctx context.Context) bool
}

// AdminOptions collects the optional collaborators of AdminHandler. Nil
// fields disable the routes that need them.
type AdminOptions struct {
	Roster  ports.RosterRepository
	Stats   StatsSource
	Ready   Readiness
	Metrics http.Handler
	Events  http.HandlerFunc
}

type AdminHandler struct {
	relays  map[string]RelayView
	opts    AdminOptions
	started time.Time
}

func NewAdminHandler(relays []RelayView, opts AdminOptions) *AdminHandler {
	byName := make(map[string]RelayView, len(relays))
	for _, r := range relays {
		byName[r.Name()] = r
	}
	return &AdminHandler{
		relays:  byName,
		opts:    opts,
		started: time.Now(),
	}
}

func (h *AdminHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)

	api := router.Group("/api/v1")
	{
		api.GET("/relays", h.ListRelays)
		api.GET("/relays/:relay/participants", h.ListParticipants)
	}

	if h.opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(h.opts.Metrics))
	}
	if h.opts.Events != nil {
		router.GET("/ws/events", gin.WrapF(h.opts.Events))
	}
}

func (h *AdminHandler) names() []string {
	names := make([]string, 0, len(h.relays))
	for name := range h.relays {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (h *AdminHandler) Health(c *gin.Context) {
	clients := make(map[string]int, len(h.relays))
	for name, r := range h.relays {
		clients[name] = r.ClientCount()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"uptime":  time.Since(h.started).Round(time.Second).String(),
		"clients": clients,
	})
}

func (h *AdminHandler) Ready(c *gin.Context) {
	if h.opts.Ready != nil && !h.opts.Ready.IsReady(c.Request.Context()) {
		c.Error(apperrors.NewServiceUnavailableError("dependencies not ready"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (h *AdminHandler) ListRelays(c *gin.Context) {
	relays := make([]domain.RelayStats, 0, len(h.relays))
	for _, name := range h.names() {
		var stats domain.RelayStats
		if h.opts.Stats != nil {
			stats, _ = h.opts.Stats.Stats(name)
		}
		stats.Relay = name
		stats.ConnectedClients = h.relays[name].ClientCount()
		if stats.Timestamp.IsZero() {
			stats.Timestamp = time.Now()
		}
		relays = append(relays, stats)
	}
	c.JSON(http.StatusOK, gin.H{"relays": relays})
}

func (h *AdminHandler) ListParticipants(c *gin.Context) {
	name := c.Param("relay")
	relay, ok := h.relays[name]
	if !ok {
		c.Error(apperrors.NewNotFoundError("relay").WithContext("relay", name))
		return
	}

	var participants []domain.Participant
	if h.opts.Roster != nil {
		list, err := h.opts.Roster.List(c.Request.Context(), name)
		if err != nil {
			c.Error(apperrors.WrapError(err, apperrors.ErrCodeInternal, "roster unavailable", http.StatusInternalServerError))
			return
		}
		participants = make([]domain.Participant, 0, len(list))
		for _, p := range list {
			participants = append(participants, *p)
		}
	} else {
		participants = relay.Participants()
	}

	c.JSON(http.StatusOK, gin.H{
		"relay":        name,
		"count":        len(participants),
		"participants": participants,
	})
}
