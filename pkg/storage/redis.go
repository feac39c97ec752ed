package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HatiCode/glucoguard/pkg/errs"
	"github.com/HatiCode/glucoguard/pkg/features"
	"github.com/HatiCode/glucoguard/pkg/models"
)

const defaultRedisPrefix = "glucoguard"

// RedisStore implements the Store interface using Redis as a backend.
// It lets several server instances share one prediction history.
//
// Layout under the key prefix:
//
//	{prefix}:seq             INCR counter for record ids
//	{prefix}:record:{member} record JSON
//	{prefix}:by_time         sorted set, score = unix seconds, member = padded id
//	{prefix}:by_id           sorted set, score = id, member = padded id
//
// Members are zero-padded so that equal timestamps order by id.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
	mu     sync.RWMutex
}

// NewRedisStore creates a new Redis-backed store.
//
// Parameters:
//   - addr: Redis server address (e.g., "localhost:6379")
//   - password: Redis password (empty string for no auth)
//   - db: Redis database number (typically 0)
//   - prefix: key prefix (empty uses "glucoguard")
//
// Returns an error if the connection to Redis fails or if parameters are invalid.
func NewRedisStore(addr, password string, db int, prefix string) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if db < 0 {
		return nil, errors.New("redis database number must be >= 0")
	}
	if prefix == "" {
		prefix = defaultRedisPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errs.Storage("open", fmt.Errorf("failed to connect to redis at %s: %w", addr, err))
	}

	return &RedisStore{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}, nil
}

func (r *RedisStore) key(parts ...string) string {
	k := r.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func member(id int64) string {
	return fmt.Sprintf("%020d", id)
}

var errRedisClosed = errors.New("redis store is closed")

// conn returns the live client, or an error once Close has run.
func (r *RedisStore) conn() (*redis.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.client == nil {
		return nil, errRedisClosed
	}
	return r.client, nil
}

// InitSchema verifies connectivity. Redis needs no schema.
func (r *RedisStore) InitSchema(ctx context.Context) error {
	return errs.Storage("init schema", r.Ping(ctx))
}

// Append assigns an id with INCR and writes the record and both index
// entries in one MULTI/EXEC transaction.
func (r *RedisStore) Append(ctx context.Context, raw features.RawInput, result models.Result) (Record, error) {
	client, err := r.conn()
	if err != nil {
		return Record{}, errs.Storage("append", err)
	}
	rec := NewRecord(raw, result, r.now())

	id, err := client.Incr(ctx, r.key("seq")).Result()
	if err != nil {
		return Record{}, errs.Storage("append", err)
	}
	rec.ID = id

	data, err := json.Marshal(rec)
	if err != nil {
		return Record{}, errs.Storage("append", fmt.Errorf("failed to marshal record: %w", err))
	}

	m := member(id)
	_, err = client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key("record", m), data, 0)
		pipe.ZAdd(ctx, r.key("by_time"), redis.Z{Score: float64(rec.Timestamp.Unix()), Member: m})
		pipe.ZAdd(ctx, r.key("by_id"), redis.Z{Score: float64(id), Member: m})
		return nil
	})
	if err != nil {
		return Record{}, errs.Storage("append", err)
	}

	return rec, nil
}

// Recent returns up to limit records, newest first.
func (r *RedisStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return []Record{}, nil
	}

	client, err := r.conn()
	if err != nil {
		return nil, errs.Storage("recent", err)
	}

	members, err := client.ZRevRange(ctx, r.key("by_time"), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, errs.Storage("recent", err)
	}

	out, err := r.load(ctx, client, members)
	if err != nil {
		return nil, errs.Storage("recent", err)
	}
	return out, nil
}

// Each walks the id index in batches, resuming each page after the last id
// read. Ids that commit below that point while the walk is running are not
// visited, and no record is visited twice.
func (r *RedisStore) Each(ctx context.Context, fn func(Record) error) error {
	client, err := r.conn()
	if err != nil {
		return errs.Storage("each", err)
	}

	var after int64
	for {
		members, err := client.ZRangeByScore(ctx, r.key("by_id"), &redis.ZRangeBy{
			Min:   "(" + strconv.FormatInt(after, 10),
			Max:   "+inf",
			Count: eachBatch,
		}).Result()
		if err != nil {
			return errs.Storage("each", err)
		}
		if len(members) == 0 {
			return nil
		}

		batch, err := r.load(ctx, client, members)
		if err != nil {
			return errs.Storage("each", err)
		}
		for _, rec := range batch {
			if err := fn(rec); err != nil {
				return err
			}
		}
		if len(members) < eachBatch {
			return nil
		}

		after, err = strconv.ParseInt(members[len(members)-1], 10, 64)
		if err != nil {
			return errs.Storage("each", fmt.Errorf("bad index member %q: %w", members[len(members)-1], err))
		}
	}
}

// load fetches record documents for members in order. Members whose
// document is missing are skipped.
func (r *RedisStore) load(ctx context.Context, client *redis.Client, members []string) ([]Record, error) {
	out := make([]Record, 0, len(members))
	if len(members) == 0 {
		return out, nil
	}

	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = r.key("record", m)
	}

	values, err := client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record %s: %w", members[i], err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Count returns the number of indexed records.
func (r *RedisStore) Count(ctx context.Context) (int64, error) {
	client, err := r.conn()
	if err != nil {
		return 0, errs.Storage("count", err)
	}
	n, err := client.ZCard(ctx, r.key("by_id")).Result()
	if err != nil {
		return 0, errs.Storage("count", err)
	}
	return n, nil
}

// Close closes the Redis client connection.
// It is safe to call multiple times (idempotent).
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}

	err := r.client.Close()
	r.client = nil
	if err != nil && err.Error() == "redis: client is closed" {
		return nil
	}

	return err
}

// Ping checks the Redis connection health.
// Returns an error if the connection is unavailable or the store is closed.
func (r *RedisStore) Ping(ctx context.Context) error {
	client, err := r.conn()
	if err != nil {
		return errs.Storage("ping", err)
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return errs.Storage("ping", err)
	}
	return nil
}
