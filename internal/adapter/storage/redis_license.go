package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/asset-ledger/internal/core/domain"
	"github.com/rl1809/asset-ledger/internal/port"
)

const licenseKeyPrefix = "license:"

// Seats live in a real Redis set next to the license hash so that
// admission can check membership and cardinality in the same script.
var admitSeatScript = redis.NewScript(`
local total = redis.call('HGET', KEYS[1], 'total_seats')
if not total then
	return 3
end

if redis.call('SISMEMBER', KEYS[2], ARGV[1]) == 1 then
	return 1
end

if redis.call('SCARD', KEYS[2]) >= tonumber(total) then
	return 2
end

redis.call('SADD', KEYS[2], ARGV[1])
redis.call('HINCRBY', KEYS[1], 'v', 1)
redis.call('HSET', KEYS[1], 'updated_at', ARGV[2])
return 0
`)

var releaseSeatScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end

local removed = redis.call('SREM', KEYS[2], ARGV[1])
if removed == 1 then
	redis.call('HINCRBY', KEYS[1], 'v', 1)
	redis.call('HSET', KEYS[1], 'updated_at', ARGV[2])
end
return removed
`)

var readLicenseScript = redis.NewScript(`
local h = redis.call('HMGET', KEYS[1], 'v', 'name', 'total_seats', 'created_at', 'updated_at')
if not h[1] then
	return false
end
return {h, redis.call('SMEMBERS', KEYS[2])}
`)

var casLicenseScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'v')
if not current then
	return -1
end

if tonumber(current) ~= tonumber(ARGV[1]) then
	return 0
end

redis.call('HSET', KEYS[1], 'v', tonumber(current) + 1, 'name', ARGV[2], 'total_seats', ARGV[3], 'updated_at', ARGV[4])
redis.call('DEL', KEYS[2])
for i = 5, #ARGV do
	redis.call('SADD', KEYS[2], ARGV[i])
end
return 1
`)

var createLicenseScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end

redis.call('HSET', KEYS[1], 'v', 0, 'name', ARGV[1], 'total_seats', ARGV[2], 'created_at', ARGV[3], 'updated_at', ARGV[4])
redis.call('DEL', KEYS[2])
for i = 6, #ARGV do
	redis.call('SADD', KEYS[2], ARGV[i])
end
redis.call('SADD', KEYS[3], ARGV[5])
return 1
`)

// RedisLicenseStore stores licenses as a hash plus a member set and
// implements port.SeatAdmitter natively.
type RedisLicenseStore struct {
	client *redis.Client
}

var (
	_ port.InvariantStore[domain.License] = (*RedisLicenseStore)(nil)
	_ port.SeatAdmitter                   = (*RedisLicenseStore)(nil)
)

func NewRedisLicenseStore(client *redis.Client) *RedisLicenseStore {
	return &RedisLicenseStore{client: client}
}

func licenseKeys(id string) []string {
	base := licenseKeyPrefix + "{" + id + "}"
	return []string{base, base + ":users"}
}

func licenseIndexKey() string { return licenseKeyPrefix + "ids" }

func (r *RedisLicenseStore) Read(ctx context.Context, id string) (domain.License, error) {
	raw, err := readLicenseScript.Run(ctx, r.client, licenseKeys(id)).Slice()
	if errors.Is(err, redis.Nil) {
		return domain.License{}, domain.NewNotFoundError("license", id)
	}
	if err != nil {
		return domain.License{}, fmt.Errorf("read license %s: %w", id, err)
	}
	if len(raw) != 2 {
		return domain.License{}, fmt.Errorf("read license %s: unexpected reply of %d elements", id, len(raw))
	}

	fields, _ := raw[0].([]interface{})
	members, _ := raw[1].([]interface{})
	if len(fields) != 5 {
		return domain.License{}, fmt.Errorf("read license %s: unexpected hash reply", id)
	}

	str := func(v interface{}) string {
		s, _ := v.(string)
		return s
	}

	version, err := strconv.ParseInt(str(fields[0]), 10, 64)
	if err != nil {
		return domain.License{}, fmt.Errorf("read license %s: bad version: %w", id, err)
	}
	totalSeats, err := strconv.Atoi(str(fields[2]))
	if err != nil {
		return domain.License{}, fmt.Errorf("read license %s: bad total_seats: %w", id, err)
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, str(fields[3]))
	updatedAt, _ := time.Parse(time.RFC3339Nano, str(fields[4]))

	users := make([]string, 0, len(members))
	for _, m := range members {
		users = append(users, str(m))
	}

	return domain.License{
		ID:            id,
		Name:          str(fields[1]),
		TotalSeats:    totalSeats,
		AssignedUsers: domain.NewIDSet(users...),
		Version:       version,
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}, nil
}

func (r *RedisLicenseStore) CompareAndSwap(ctx context.Context, expected, next domain.License) (bool, error) {
	args := []interface{}{
		expected.Version,
		next.Name,
		next.TotalSeats,
		formatTime(next.UpdatedAt),
	}
	for _, user := range next.AssignedUsers {
		args = append(args, user)
	}

	result, err := casLicenseScript.Run(ctx, r.client, licenseKeys(expected.ID), args...).Int()
	if err != nil {
		return false, fmt.Errorf("compare and swap license %s: %w", expected.ID, err)
	}
	if result == -1 {
		return false, domain.NewNotFoundError("license", expected.ID)
	}
	return result == 1, nil
}

func (r *RedisLicenseStore) Create(ctx context.Context, l domain.License) error {
	args := []interface{}{
		l.Name,
		l.TotalSeats,
		formatTime(l.CreatedAt),
		formatTime(l.UpdatedAt),
		l.ID,
	}
	for _, user := range l.AssignedUsers {
		args = append(args, user)
	}

	keys := append(licenseKeys(l.ID), licenseIndexKey())
	result, err := createLicenseScript.Run(ctx, r.client, keys, args...).Int()
	if err != nil {
		return fmt.Errorf("create license %s: %w", l.ID, err)
	}
	if result == 0 {
		return fmt.Errorf("license %s: %w", l.ID, domain.ErrAlreadyExists)
	}
	return nil
}

func (r *RedisLicenseStore) List(ctx context.Context) ([]domain.License, error) {
	ids, err := r.client.SMembers(ctx, licenseIndexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list licenses: %w", err)
	}
	sort.Strings(ids)

	result := make([]domain.License, 0, len(ids))
	for _, id := range ids {
		l, err := r.Read(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, nil
}

func (r *RedisLicenseStore) Admit(ctx context.Context, poolID, memberID string) (port.AdmitResult, error) {
	result, err := admitSeatScript.Run(ctx, r.client, licenseKeys(poolID), memberID, formatTime(time.Now())).Int()
	if err != nil {
		return 0, err
	}

	switch result {
	case 0:
		return port.Admitted, nil
	case 1:
		return port.AdmitDuplicate, nil
	case 2:
		return port.AdmitFull, nil
	case 3:
		return port.AdmitNoPool, nil
	}
	return 0, fmt.Errorf("admit seat: unexpected script result %d", result)
}

func (r *RedisLicenseStore) Release(ctx context.Context, poolID, memberID string) (bool, error) {
	result, err := releaseSeatScript.Run(ctx, r.client, licenseKeys(poolID), memberID, formatTime(time.Now())).Int()
	if err != nil {
		return false, err
	}
	if result == -1 {
		return false, domain.NewNotFoundError("license", poolID)
	}
	return result == 1, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
