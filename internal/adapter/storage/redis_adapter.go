package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/asset-ledger/internal/core/domain"
	"github.com/rl1809/asset-ledger/internal/port"
)

const (
	versionField = "v"
	bodyField    = "b"
)

var casScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'v')
if not current then
	return -1
end

if tonumber(current) ~= tonumber(ARGV[1]) then
	return 0
end

redis.call('HSET', KEYS[1], 'v', tonumber(current) + 1, 'b', ARGV[2])
return 1
`)

var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end

redis.call('HSET', KEYS[1], 'v', 0, 'b', ARGV[1])
redis.call('SADD', KEYS[2], ARGV[2])
return 1
`)

// RedisStore keeps each entity in a hash {v: version, b: CBOR body}. The
// version check and the write run inside one Lua script.
type RedisStore[T domain.Entity[T]] struct {
	client *redis.Client
	kind   string
	prefix string
}

func NewRedisStore[T domain.Entity[T]](client *redis.Client, kind string) *RedisStore[T] {
	return &RedisStore[T]{client: client, kind: kind, prefix: kind + ":"}
}

func (r *RedisStore[T]) key(id string) string { return r.prefix + "{" + id + "}" }
func (r *RedisStore[T]) indexKey() string     { return r.prefix + "ids" }

func (r *RedisStore[T]) Read(ctx context.Context, id string) (T, error) {
	var zero T

	values, err := r.client.HMGet(ctx, r.key(id), versionField, bodyField).Result()
	if err != nil {
		return zero, fmt.Errorf("read %s %s: %w", r.kind, id, err)
	}
	if len(values) != 2 || values[0] == nil || values[1] == nil {
		return zero, domain.NewNotFoundError(r.kind, id)
	}

	version, err := strconv.ParseInt(fmt.Sprint(values[0]), 10, 64)
	if err != nil {
		return zero, fmt.Errorf("read %s %s: bad version: %w", r.kind, id, err)
	}
	body, ok := values[1].(string)
	if !ok {
		return zero, fmt.Errorf("read %s %s: unexpected body type %T", r.kind, id, values[1])
	}

	var value T
	if err := decode([]byte(body), &value); err != nil {
		return zero, fmt.Errorf("decode %s %s: %w", r.kind, id, err)
	}
	return value.WithVersion(version), nil
}

func (r *RedisStore[T]) CompareAndSwap(ctx context.Context, expected, next T) (bool, error) {
	id := expected.EntityID()
	body, err := encode(next.WithVersion(expected.EntityVersion() + 1))
	if err != nil {
		return false, fmt.Errorf("encode %s %s: %w", r.kind, id, err)
	}

	result, err := casScript.Run(ctx, r.client, []string{r.key(id)}, expected.EntityVersion(), body).Int()
	if err != nil {
		return false, fmt.Errorf("compare and swap %s %s: %w", r.kind, id, err)
	}
	if result == -1 {
		return false, domain.NewNotFoundError(r.kind, id)
	}
	return result == 1, nil
}

func (r *RedisStore[T]) Create(ctx context.Context, value T) error {
	id := value.EntityID()
	body, err := encode(value.WithVersion(0))
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", r.kind, id, err)
	}

	result, err := createScript.Run(ctx, r.client, []string{r.key(id), r.indexKey()}, body, id).Int()
	if err != nil {
		return fmt.Errorf("create %s %s: %w", r.kind, id, err)
	}
	if result == 0 {
		return fmt.Errorf("%s %s: %w", r.kind, id, domain.ErrAlreadyExists)
	}
	return nil
}

func (r *RedisStore[T]) List(ctx context.Context) ([]T, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.kind, err)
	}
	sort.Strings(ids)

	result := make([]T, 0, len(ids))
	for _, id := range ids {
		value, err := r.Read(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		result = append(result, value)
	}
	return result, nil
}

var (
	_ port.InvariantStore[domain.Asset]      = (*RedisStore[domain.Asset])(nil)
	_ port.InvariantStore[domain.AssetGroup] = (*RedisStore[domain.AssetGroup])(nil)
)
