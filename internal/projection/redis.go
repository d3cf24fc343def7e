package projection

import (
	"SLINK-Backend/internal/domain"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore keeps the projection in Redis hashes: HSET <prefix><domain>
// <lower(key)> <json record>.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	log    *zap.Logger
}

type RedisOption func(*RedisStore)

// WithKeyPrefix namespaces the domain hashes.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

func NewRedisStore(rdb redis.UniversalClient, log *zap.Logger, opts ...RedisOption) *RedisStore {
	s := &RedisStore{rdb: rdb, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) hashKey(linkDomain string) string {
	return s.prefix + strings.ToLower(linkDomain)
}

// Apply writes all upserts and deletions of the batch in one pipeline.
// Deletions are queued before upserts so that a batch renaming a slot onto
// itself with different casing keeps the record.
func (s *RedisStore) Apply(ctx context.Context, b *Batch) error {
	if b == nil || b.Len() == 0 {
		return nil
	}

	pipe := s.rdb.Pipeline()

	for d, keys := range b.Deletes() {
		pipe.HDel(ctx, s.hashKey(d), keys...)
	}

	for d, fields := range b.Sets() {
		values := make(map[string]any, len(fields))
		for k, rec := range fields {
			raw, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("failed to encode redirect record %s/%s: %w", d, k, err)
			}
			values[k] = raw
		}
		pipe.HSet(ctx, s.hashKey(d), values)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Error("failed to apply projection batch", zap.Int("ops", b.Len()), zap.Error(err))
		return fmt.Errorf("failed to apply projection batch: %w", err)
	}

	s.log.Debug("applied projection batch", zap.Int("ops", b.Len()))
	return nil
}

// Get reads the record stored for (linkDomain, lower(key)).
func (s *RedisStore) Get(ctx context.Context, linkDomain, key string) (*domain.RedirectRecord, error) {
	raw, err := s.rdb.HGet(ctx, s.hashKey(linkDomain), strings.ToLower(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read projection record: %w", err)
	}

	var rec domain.RedirectRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode projection record: %w", err)
	}
	return &rec, nil
}
