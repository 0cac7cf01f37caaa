package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis key layout (prefix "scanq:"):
//
//	scanq:job:{key}   hash — entry fields
//	scanq:due         zset — member {key}, score NextRunAt (unix ms)
//	scanq:completed   zset — member {key}, score completion time, capped
//	scanq:failed      zset — member {key}, score failure time, capped
const (
	jobKeyPrefix = "scanq:job:"
	dueKey       = "scanq:due"
	completedKey = "scanq:completed"
	failedKey    = "scanq:failed"
)

// RedisStore is the production Store backed by Redis.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore wraps an already-connected Redis client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Add(ctx context.Context, key string, payload []byte, opts Options) (*Entry, error) {
	now := time.Now().UTC()
	e := &Entry{
		Key:         key,
		ID:          uuid.NewString(),
		Payload:     payload,
		Status:      StatusWaiting,
		Attempts:    0,
		MaxAttempts: opts.MaxAttempts,
		Backoff:     opts.Backoff,
		NextRunAt:   now,
		CreatedAt:   now,
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, jobKeyPrefix+key, map[string]interface{}{
		"id":            e.ID,
		"payload":       string(payload),
		"status":        string(StatusWaiting),
		"attempts":      0,
		"max_attempts":  opts.MaxAttempts,
		"backoff_ms":    opts.Backoff.Milliseconds(),
		"completed_ttl": opts.CompletedTTL.Milliseconds(),
		"failed_ttl":    opts.FailedTTL.Milliseconds(),
		"next_run_at":   now.UnixMilli(),
		"created_at":    now.UnixMilli(),
		"last_error":    "",
	})
	// A fresh Add must not inherit a retention TTL from a previous entry
	// under the same key.
	pipe.Persist(ctx, jobKeyPrefix+key)
	pipe.ZAdd(ctx, dueKey, redis.Z{Score: float64(now.UnixMilli()), Member: key})
	pipe.ZRem(ctx, completedKey, key)
	pipe.ZRem(ctx, failedKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("queue add %q: %w", key, err)
	}
	return e, nil
}

func (s *RedisStore) GetByKey(ctx context.Context, key string) (*Entry, error) {
	fields, err := s.rdb.HGetAll(ctx, jobKeyPrefix+key).Result()
	if err != nil {
		return nil, fmt.Errorf("queue get %q: %w", key, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return entryFromFields(key, fields), nil
}

func (s *RedisStore) Remove(ctx context.Context, key string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, jobKeyPrefix+key)
	pipe.ZRem(ctx, dueKey, key)
	pipe.ZRem(ctx, completedKey, key)
	pipe.ZRem(ctx, failedKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue remove %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) DueJobs(ctx context.Context, n int) ([]*Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	now := time.Now().UTC().UnixMilli()
	keys, err := s.rdb.ZRangeByScore(ctx, dueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now, 10),
		Count: int64(n),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("queue due scan: %w", err)
	}

	var claimed []*Entry
	for _, key := range keys {
		// ZRem is the claim: only the caller that removes the member owns
		// the job, so concurrent drains never double-run an entry.
		removed, err := s.rdb.ZRem(ctx, dueKey, key).Result()
		if err != nil {
			return claimed, fmt.Errorf("queue claim %q: %w", key, err)
		}
		if removed == 0 {
			continue
		}
		if err := s.rdb.HSet(ctx, jobKeyPrefix+key, "status", string(StatusActive)).Err(); err != nil {
			return claimed, fmt.Errorf("queue activate %q: %w", key, err)
		}
		e, err := s.GetByKey(ctx, key)
		if err != nil {
			if err == ErrNotFound {
				continue // removed underneath us, nothing to run
			}
			return claimed, err
		}
		claimed = append(claimed, e)
	}
	return claimed, nil
}

func (s *RedisStore) MarkSucceeded(ctx context.Context, key string) error {
	ttl, err := s.hashDuration(ctx, key, "completed_ttl")
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, jobKeyPrefix+key, "status", string(StatusCompleted))
	pipe.Expire(ctx, jobKeyPrefix+key, ttl)
	pipe.ZAdd(ctx, completedKey, redis.Z{Score: float64(now.UnixMilli()), Member: key})
	pipe.ZRemRangeByRank(ctx, completedKey, 0, int64(-(RetainedCap + 1)))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue complete %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) MarkFailed(ctx context.Context, key string, reason string) error {
	e, err := s.GetByKey(ctx, key)
	if err != nil {
		return err
	}
	attempts := e.Attempts + 1

	if attempts < e.MaxAttempts {
		next := time.Now().UTC().Add(nextBackoff(e.Backoff, attempts))
		pipe := s.rdb.TxPipeline()
		pipe.HSet(ctx, jobKeyPrefix+key, map[string]interface{}{
			"status":      string(StatusDelayed),
			"attempts":    attempts,
			"next_run_at": next.UnixMilli(),
			"last_error":  reason,
		})
		pipe.ZAdd(ctx, dueKey, redis.Z{Score: float64(next.UnixMilli()), Member: key})
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("queue delay %q: %w", key, err)
		}
		return nil
	}

	ttl, err := s.hashDuration(ctx, key, "failed_ttl")
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, jobKeyPrefix+key, map[string]interface{}{
		"status":     string(StatusFailed),
		"attempts":   attempts,
		"last_error": reason,
	})
	pipe.Expire(ctx, jobKeyPrefix+key, ttl)
	pipe.ZAdd(ctx, failedKey, redis.Z{Score: float64(now.UnixMilli()), Member: key})
	pipe.ZRemRangeByRank(ctx, failedKey, 0, int64(-(RetainedCap + 1)))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue fail %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) State(ctx context.Context, key string) (Status, error) {
	status, err := s.rdb.HGet(ctx, jobKeyPrefix+key, "status").Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("queue state %q: %w", key, err)
	}
	return Status(status), nil
}

func (s *RedisStore) hashDuration(ctx context.Context, key, field string) (time.Duration, error) {
	ms, err := s.rdb.HGet(ctx, jobKeyPrefix+key, field).Int64()
	if err == redis.Nil {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("queue read %s of %q: %w", field, key, err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func entryFromFields(key string, fields map[string]string) *Entry {
	atoi := func(s string) int64 {
		v, _ := strconv.ParseInt(s, 10, 64)
		return v
	}
	return &Entry{
		Key:         key,
		ID:          fields["id"],
		Payload:     []byte(fields["payload"]),
		Status:      Status(fields["status"]),
		Attempts:    int(atoi(fields["attempts"])),
		MaxAttempts: int(atoi(fields["max_attempts"])),
		Backoff:     time.Duration(atoi(fields["backoff_ms"])) * time.Millisecond,
		NextRunAt:   time.UnixMilli(atoi(fields["next_run_at"])).UTC(),
		CreatedAt:   time.UnixMilli(atoi(fields["created_at"])).UTC(),
		LastError:   fields["last_error"],
	}
}
