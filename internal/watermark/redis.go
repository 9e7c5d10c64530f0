package watermark

import (
	"context"

	"inventory-analytics/internal/redisclient"

	"go.uber.org/zap"
)

// RedisStore keeps the mapping in one Redis hash, shared by every host that
// runs the pipeline against the same sources.
type RedisStore struct {
	client *redisclient.Client
	key    string
	logger *zap.Logger
}

// NewRedisStore creates a store backed by the hash at key.
func NewRedisStore(client *redisclient.Client, key string, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		key:    key,
		logger: logger.With(zap.String("component", "watermark_redis")),
	}
}

func (s *RedisStore) Load(ctx context.Context) State {
	fields, err := s.client.GetHash(ctx, s.key)
	if err != nil {
		s.logger.Warn("Failed to read watermark state; starting fresh",
			zap.String("key", s.key), zap.Error(err))
		return State{}
	}
	return State(fields)
}

// Save replaces the hash inside MULTI/EXEC.
func (s *RedisStore) Save(ctx context.Context, state State) error {
	if err := s.client.ReplaceHash(ctx, s.key, state); err != nil {
		return err
	}
	s.logger.Info("Saved watermark state", zap.String("key", s.key), zap.Int("tables", len(state)))
	return nil
}
