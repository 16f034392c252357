package repositories

import (
	"context"
	"testing"

	"nexo/internal/core/domain"
	"nexo/internal/infrastructure/repositories/memory"
	"nexo/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRepositoryFactory_MemoryWhenRedisDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Redis.Enabled = false

	factory, err := NewRepositoryFactory(cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer factory.Close()

	assert.False(t, factory.UsingRedis())
	assert.Nil(t, factory.RedisClient())
	assert.NoError(t, factory.HealthCheck(context.Background()))

	roster := factory.CreateRosterRepository()
	_, ok := roster.(*memory.MemoryRosterRepository)
	assert.True(t, ok)
}

func TestRepositoryFactory_FallsBackWhenRedisUnreachable(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Address = "127.0.0.1:1"

	factory, err := NewRepositoryFactory(cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer factory.Close()

	assert.False(t, factory.UsingRedis())

	roster := factory.CreateRosterRepository()
	ctx := context.Background()
	require.NoError(t, roster.Add(ctx, &domain.Participant{ID: 1, Relay: "video"}))
	list, err := roster.List(ctx, "video")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
