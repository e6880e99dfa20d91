package election

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Each election is a hash at "<prefix>:<election>" with fields participant, acquired_at and
// expires_at (unix milliseconds) and metadata (JSON). Expiry is decided against the caller's
// clock; the key TTL only garbage collects abandoned leases.
var (
	acquireScript = redis.NewScript(`
local now = tonumber(ARGV[2])
local acquired = now
local holder = redis.call("HGET", KEYS[1], "participant")
if holder then
	local expires = tonumber(redis.call("HGET", KEYS[1], "expires_at"))
	if expires > now then
		if holder ~= ARGV[1] then
			return false
		end
		acquired = tonumber(redis.call("HGET", KEYS[1], "acquired_at"))
	end
end
local expiresAt = now + tonumber(ARGV[3])
redis.call("HSET", KEYS[1], "participant", ARGV[1], "acquired_at", acquired, "expires_at", expiresAt, "metadata", ARGV[4])
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return {acquired, expiresAt, ARGV[4]}
`)

	renewScript = redis.NewScript(`
local now = tonumber(ARGV[2])
if redis.call("HGET", KEYS[1], "participant") ~= ARGV[1] then
	return false
end
local expires = tonumber(redis.call("HGET", KEYS[1], "expires_at"))
if expires <= now then
	return false
end
local expiresAt = now + tonumber(ARGV[3])
local metadata = ARGV[4]
if metadata == "" then
	metadata = redis.call("HGET", KEYS[1], "metadata")
end
redis.call("HSET", KEYS[1], "expires_at", expiresAt, "metadata", metadata)
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return {tonumber(redis.call("HGET", KEYS[1], "acquired_at")), expiresAt, metadata}
`)

	releaseScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "participant") == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)
)

// RedisStore keeps leases in Redis, using Lua scripts for the conditional writes.
type RedisStore struct {
	client redis.UniversalClient
	opts   storeOptions
}

var _ LeaseStore = (*RedisStore)(nil)

// NewRedisStore creates a store over client.
func NewRedisStore(client redis.UniversalClient, opts ...StoreOption) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}

	var o = defaultStoreOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &RedisStore{
		client: client,
		opts:   o,
	}, nil
}

func (s *RedisStore) key(election string) string {
	if s.opts.keyPrefix == "" {
		return election
	}
	return s.opts.keyPrefix + ":" + election
}

func (s *RedisStore) TryAcquireLease(ctx context.Context, election, participant string, duration time.Duration, metadata map[string]string) (*LeaderInfo, error) {
	if err := validateLeaseArgs(election, participant, duration); err != nil {
		return nil, err
	}

	var encoded, err = encodeRedisMetadata(metadata)
	if err != nil {
		return nil, err
	}
	if encoded == "" {
		encoded = "{}"
	}

	var now = s.opts.clock.Now()
	result, err := acquireScript.Run(ctx, s.client, []string{s.key(election)},
		participant, now.UnixMilli(), duration.Milliseconds(), encoded,
	).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lease: %w", err)
	}

	return parseScriptLease(participant, result)
}

func (s *RedisStore) TryRenewLease(ctx context.Context, election, participant string, duration time.Duration, metadata map[string]string) (*LeaderInfo, error) {
	if err := validateLeaseArgs(election, participant, duration); err != nil {
		return nil, err
	}

	var encoded, err = encodeRedisMetadata(metadata)
	if err != nil {
		return nil, err
	}

	var now = s.opts.clock.Now()
	result, err := renewScript.Run(ctx, s.client, []string{s.key(election)},
		participant, now.UnixMilli(), duration.Milliseconds(), encoded,
	).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to renew lease: %w", err)
	}

	return parseScriptLease(participant, result)
}

func (s *RedisStore) ReleaseLease(ctx context.Context, election, participant string) (bool, error) {
	if err := validateElection(election); err != nil {
		return false, err
	}
	if participant == "" {
		return false, ErrInvalidParticipant
	}

	var deleted, err = releaseScript.Run(ctx, s.client, []string{s.key(election)}, participant).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to release lease: %w", err)
	}

	return deleted > 0, nil
}

func (s *RedisStore) GetCurrentLease(ctx context.Context, election string) (*LeaderInfo, error) {
	if err := validateElection(election); err != nil {
		return nil, err
	}

	var values, err = s.client.HMGet(ctx, s.key(election), "participant", "acquired_at", "expires_at", "metadata").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get lease: %w", err)
	}

	var participant, ok = values[0].(string)
	if !ok || participant == "" {
		return nil, nil
	}

	acquiredAt, err := parseMillis(values[1])
	if err != nil {
		return nil, err
	}
	expiresAt, err := parseMillis(values[2])
	if err != nil {
		return nil, err
	}

	var rawMetadata, _ = values[3].(string)
	metadata, err := decodeRedisMetadata(rawMetadata)
	if err != nil {
		return nil, err
	}

	var lease = NewLeaderInfo(participant, acquiredAt, expiresAt, metadata)
	if !lease.IsValid(s.opts.clock.Now()) {
		return nil, nil
	}

	return &lease, nil
}

func (s *RedisStore) HasValidLease(ctx context.Context, election string) (bool, error) {
	var lease, err = s.GetCurrentLease(ctx, election)
	if err != nil {
		return false, err
	}
	return lease != nil, nil
}

func parseScriptLease(participant string, result any) (*LeaderInfo, error) {
	var fields, ok = result.([]any)
	if !ok || len(fields) != 3 {
		return nil, fmt.Errorf("unexpected lease script result: %v", result)
	}

	acquiredMs, ok := fields[0].(int64)
	if !ok {
		return nil, fmt.Errorf("unexpected acquired_at in lease script result: %v", fields[0])
	}
	expiresMs, ok := fields[1].(int64)
	if !ok {
		return nil, fmt.Errorf("unexpected expires_at in lease script result: %v", fields[1])
	}

	var rawMetadata, _ = fields[2].(string)
	var metadata, err = decodeRedisMetadata(rawMetadata)
	if err != nil {
		return nil, err
	}

	var lease = NewLeaderInfo(participant, time.UnixMilli(acquiredMs), time.UnixMilli(expiresMs), metadata)
	return &lease, nil
}

func parseMillis(value any) (time.Time, error) {
	var raw, ok = value.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("unexpected lease timestamp: %v", value)
	}

	var ms, err = strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse lease timestamp %q: %w", raw, err)
	}

	return time.UnixMilli(ms), nil
}

// encodeRedisMetadata returns "" for nil metadata so renewals keep the stored value.
func encodeRedisMetadata(metadata map[string]string) (string, error) {
	if metadata == nil {
		return "", nil
	}

	var raw, err = json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to encode lease metadata: %w", err)
	}

	return string(raw), nil
}

func decodeRedisMetadata(raw string) (map[string]string, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}

	var metadata map[string]string
	if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
		return nil, fmt.Errorf("failed to decode lease metadata: %w", err)
	}

	return metadata, nil
}
