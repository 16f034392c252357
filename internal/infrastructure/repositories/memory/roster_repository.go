package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"nexo/internal/core/domain"
	"nexo/internal/core/ports"
)

type MemoryRosterRepository struct {
	relays map[string]map[domain.ParticipantID]*domain.Participant
	mu     sync.RWMutex
}

func NewMemoryRosterRepository() ports.RosterRepository {
	return &MemoryRosterRepository{
		relays: make(map[string]map[domain.ParticipantID]*domain.Participant),
	}
}

func (r *MemoryRosterRepository) Add(ctx context.Context, p *domain.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	roster, ok := r.relays[p.Relay]
	if !ok {
		roster = make(map[domain.ParticipantID]*domain.Participant)
		r.relays[p.Relay] = roster
	}
	if _, exists := roster[p.ID]; exists {
		return fmt.Errorf("participant %d already registered on %s", p.ID, p.Relay)
	}

	cp := *p
	roster[p.ID] = &cp
	return nil
}

func (r *MemoryRosterRepository) Remove(ctx context.Context, relay string, id domain.ParticipantID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	roster, ok := r.relays[relay]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	if _, exists := roster[id]; !exists {
		return domain.ErrParticipantNotFound
	}

	delete(roster, id)
	if len(roster) == 0 {
		delete(r.relays, relay)
	}
	return nil
}

// List returns the relay's participants ordered by id.
func (r *MemoryRosterRepository) List(ctx context.Context, relay string) ([]*domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roster := r.relays[relay]
	out := make([]*domain.Participant, 0, len(roster))
	for _, p := range roster {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRosterRepository) Ping(ctx context.Context) error {
	return nil
}

func (r *MemoryRosterRepository) Clear(ctx context.Context, relay string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.relays, relay)
	return nil
}
