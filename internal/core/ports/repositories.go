package ports

import (
	"context"

	"nexo/internal/core/domain"
)

// RosterRepository tracks who is connected to each relay instance.
type RosterRepository interface {
	Add(ctx context.Context, p *domain.Participant) error
	Remove(ctx context.Context, relay string, id domain.ParticipantID) error
	List(ctx context.Context, relay string) ([]*domain.Participant, error)
	// Clear drops every entry of relay, used when a relay instance restarts
	// and its id space begins again at 1.
	Clear(ctx context.Context, relay string) error
	Ping(ctx context.Context) error
}
