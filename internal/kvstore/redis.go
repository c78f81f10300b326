package kvstore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) Store {
	return &redisStore{client: client}
}

func (s *redisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %q: %w", key, err)
	}
	return val, true, nil
}

func (s *redisStore) Put(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}

func (s *redisStore) List(ctx context.Context, prefix, cursor string, limit int64) (*ListResult, error) {
	var scanCursor uint64
	if cursor != "" {
		parsed, err := strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid redis scan cursor %q: %w", cursor, err)
		}
		scanCursor = parsed
	}

	keys, next, err := s.client.Scan(ctx, scanCursor, prefix+"*", limit).Result()
	if err != nil {
		return nil, fmt.Errorf("redis scan %q: %w", prefix, err)
	}

	result := &ListResult{Entries: make([]Entry, 0, len(keys))}
	if len(keys) > 0 {
		vals, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("redis mget: %w", err)
		}
		for i, key := range keys {
			// A key can expire between SCAN and MGET.
			if vals[i] == nil {
				continue
			}
			val, ok := vals[i].(string)
			if !ok {
				continue
			}
			result.Entries = append(result.Entries, Entry{Key: key, Value: val})
		}
	}

	if next != 0 {
		result.NextCursor = strconv.FormatUint(next, 10)
	}
	return result, nil
}
