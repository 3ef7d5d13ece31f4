package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mergegate/mergegate/core/engine/decide"
	"github.com/mergegate/mergegate/core/infra/redisutil"
)

const (
	defaultRedisURL = "redis://localhost:6379"
	// record TTL guards against unbounded Redis growth; configurable via env.
	defaultRecordTTL      = 30 * 24 * time.Hour
	defaultRedisOpTimeout = 2 * time.Second
	envRecordTTLInSeconds = "GATE_RECORD_TTL_SECONDS"
	envRecordTTLFallback  = "GATE_RECORD_TTL" // accepts ParseDuration values (e.g. 720h)
	approvalKeyPrefix     = "gate:approvals:"
	decisionKeyPrefix     = "gate:decision:"
)

// RedisStore implements Store using Redis.
type RedisStore struct {
	client    redis.UniversalClient
	recordTTL time.Duration
}

// NewRedisStore constructs a Redis-backed store from a redis:// URL.
func NewRedisStore(url string) (*RedisStore, error) {
	if url == "" {
		url = defaultRedisURL
	}

	ttl := defaultRecordTTL
	if ttlSeconds := os.Getenv(envRecordTTLInSeconds); ttlSeconds != "" {
		if secs, err := strconv.Atoi(ttlSeconds); err == nil && secs > 0 {
			ttl = time.Duration(secs) * time.Second
		}
	}
	if ttlEnv := os.Getenv(envRecordTTLFallback); ttlEnv != "" {
		if parsed, err := time.ParseDuration(ttlEnv); err == nil && parsed > 0 {
			ttl = parsed
		}
	}

	client, err := redisutil.NewClient(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	return &RedisStore{client: client, recordTTL: ttl}, nil
}

// ApprovalKey returns the Redis key holding a changeset's approvals.
func ApprovalKey(changesetID string) string {
	return approvalKeyPrefix + changesetID
}

// DecisionKey returns the Redis key holding a changeset's latest decision.
func DecisionKey(changesetID string) string {
	return decisionKeyPrefix + changesetID
}

func (s *RedisStore) PutApproval(ctx context.Context, changesetID string, ap decide.Approval) error {
	data, err := json.Marshal(ap)
	if err != nil {
		return fmt.Errorf("encode approval: %w", err)
	}
	key := ApprovalKey(changesetID)
	cctx, cancel := s.opContext(ctx)
	defer cancel()
	pipe := s.client.TxPipeline()
	pipe.RPush(cctx, key, data)
	pipe.Expire(cctx, key, s.recordTTL)
	_, err = pipe.Exec(cctx)
	return err
}

func (s *RedisStore) ListApprovals(ctx context.Context, changesetID string) ([]decide.Approval, error) {
	cctx, cancel := s.opContext(ctx)
	defer cancel()
	raw, err := s.client.LRange(cctx, ApprovalKey(changesetID), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]decide.Approval, 0, len(raw))
	for _, item := range raw {
		var ap decide.Approval
		if err := json.Unmarshal([]byte(item), &ap); err != nil {
			return nil, fmt.Errorf("decode approval: %w", err)
		}
		out = append(out, ap)
	}
	return out, nil
}

func (s *RedisStore) PutDecision(ctx context.Context, changesetID string, payload []byte) error {
	cctx, cancel := s.opContext(ctx)
	defer cancel()
	return s.client.Set(cctx, DecisionKey(changesetID), payload, s.recordTTL).Err()
}

func (s *RedisStore) GetDecision(ctx context.Context, changesetID string) ([]byte, error) {
	cctx, cancel := s.opContext(ctx)
	defer cancel()
	data, err := s.client.Get(cctx, DecisionKey(changesetID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, &ErrNotFound{ChangesetID: changesetID}
		}
		return nil, err
	}
	return data, nil
}

// Ping verifies the Redis connection, for health probes.
func (s *RedisStore) Ping(ctx context.Context) error {
	cctx, cancel := s.opContext(ctx)
	defer cancel()
	return s.client.Ping(cctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(context.WithoutCancel(ctx), defaultRedisOpTimeout)
}
