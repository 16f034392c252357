package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"nexo/internal/core/domain"
	"nexo/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// RedisRosterRepository keeps one hash per relay instance: field is the
// participant id, value is the JSON participant.
type RedisRosterRepository struct {
	client redis.Cmdable
	prefix string
}

func NewRedisRosterRepository(client redis.Cmdable) ports.RosterRepository {
	return &RedisRosterRepository{
		client: client,
		prefix: "nexo:relay:",
	}
}

func (r *RedisRosterRepository) rosterKey(relay string) string {
	return r.prefix + relay + ":participants"
}

func (r *RedisRosterRepository) Add(ctx context.Context, p *domain.Participant) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal participant: %w", err)
	}

	added, err := r.client.HSetNX(ctx, r.rosterKey(p.Relay), participantField(p.ID), data).Result()
	if err != nil {
		return fmt.Errorf("failed to add participant to Redis: %w", err)
	}
	if !added {
		return fmt.Errorf("participant %d already registered on %s", p.ID, p.Relay)
	}
	return nil
}

func (r *RedisRosterRepository) Remove(ctx context.Context, relay string, id domain.ParticipantID) error {
	n, err := r.client.HDel(ctx, r.rosterKey(relay), participantField(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to remove participant from Redis: %w", err)
	}
	if n == 0 {
		return domain.ErrParticipantNotFound
	}
	return nil
}

func (r *RedisRosterRepository) List(ctx context.Context, relay string) ([]*domain.Participant, error) {
	fields, err := r.client.HGetAll(ctx, r.rosterKey(relay)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list participants from Redis: %w", err)
	}
	return decodeRoster(fields)
}

func (r *RedisRosterRepository) Clear(ctx context.Context, relay string) error {
	if err := r.client.Del(ctx, r.rosterKey(relay)).Err(); err != nil {
		return fmt.Errorf("failed to clear roster in Redis: %w", err)
	}
	return nil
}

func (r *RedisRosterRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func participantField(id domain.ParticipantID) string {
	return strconv.FormatInt(int64(id), 10)
}

// decodeRoster turns HGETALL output into participants ordered by id.
func decodeRoster(fields map[string]string) ([]*domain.Participant, error) {
	out := make([]*domain.Participant, 0, len(fields))
	for field, data := range fields {
		var p domain.Participant
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal participant %s: %w", field, err)
		}
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
