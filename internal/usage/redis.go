package usage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "media-converter:usage:"
	// Keys outlive their day so a late reader near midnight still sees them.
	keyTTL = 48 * time.Hour

	fieldConversions = "conversions"
	fieldBytes       = "bytes"
)

// RedisStore keeps one hash per day in redis, shared by every instance.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the redis server at url (redis://...) and
// verifies the connection.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("could not parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("could not connect to redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func dayKey(day string) string { return keyPrefix + day }

// Add increments both counters in one transaction.
func (r *RedisStore) Add(ctx context.Context, day string, conversions, bytes int64) (Snapshot, error) {
	key := dayKey(day)

	var convCmd, bytesCmd *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		convCmd = pipe.HIncrBy(ctx, key, fieldConversions, conversions)
		bytesCmd = pipe.HIncrBy(ctx, key, fieldBytes, bytes)
		pipe.Expire(ctx, key, keyTTL)
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Day: day, Conversions: convCmd.Val(), Bytes: bytesCmd.Val()}, nil
}

// Get reads the counters of day.
func (r *RedisStore) Get(ctx context.Context, day string) (Snapshot, error) {
	fields, err := r.client.HGetAll(ctx, dayKey(day)).Result()
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Day: day}
	if v, ok := fields[fieldConversions]; ok {
		snap.Conversions, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := fields[fieldBytes]; ok {
		snap.Bytes, _ = strconv.ParseInt(v, 10, 64)
	}
	return snap, nil
}

// Close closes the client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
