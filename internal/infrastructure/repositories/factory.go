package repositories

import (
	"context"
	"time"

	"lexmeet/internal/core/ports"
	"lexmeet/internal/infrastructure/repositories/memory"
	redisrepo "lexmeet/internal/infrastructure/repositories/redis"
	"lexmeet/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// roomTTL bounds how long a room hash survives a relay crash.
const roomTTL = 24 * time.Hour

// RepositoryFactory creates Redis repositories when Redis is reachable and
// falls back to memory otherwise.
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) *RepositoryFactory {
	factory := &RepositoryFactory{
		useRedis: cfg.Redis.Enabled,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis repositories")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory repositories")
	}

	return factory
}

func (f *RepositoryFactory) CreateRoomRepository() ports.RoomRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisRoomRepository(f.redisClient, roomTTL)
	}
	return memory.NewMemoryRoomRepository()
}

// RedisClient returns the live client, or nil when running on memory.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	return f.redisClient
}

func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
