package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/straddle_tracker/internal/models"
)

// RedisStorage keeps each record as a JSON string and the chronological
// index as a sorted set scored by date ordinal.
type RedisStorage struct {
	client *redis.Client
	keys   Keys
	logger logrus.FieldLogger
}

// NewRedisStorage connects to redisURL (redis://host:port/db) and verifies the
// connection with a 5 second ping.
func NewRedisStorage(ctx context.Context, redisURL, prefix string) (*RedisStorage, error) {
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, unavailable("connecting to redis at "+opts.Addr, err)
	}
	return NewRedisStorageWithClient(client, prefix), nil
}

// NewRedisStorageWithClient wraps an existing client.
func NewRedisStorageWithClient(client *redis.Client, prefix string) *RedisStorage {
	return &RedisStorage{
		client: client,
		keys:   Keys{Prefix: prefix},
		logger: logrus.StandardLogger(),
	}
}

// WithLogger sets the logger used for skipped index entries.
func (r *RedisStorage) WithLogger(l logrus.FieldLogger) *RedisStorage {
	if l != nil {
		r.logger = l
	}
	return r
}

// Put implements Interface. The record write and the index update commit in
// one MULTI/EXEC so readers never see an index entry without its record.
func (r *RedisStorage) Put(ctx context.Context, rec *models.StraddleRecord) error {
	if err := checkPut(rec); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	key := r.keys.Record(rec.Date)

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, 0)
		if rec.Status == models.StatusAvailable {
			pipe.ZAdd(ctx, r.keys.Index(), redis.Z{
				Score:  float64(models.DateOrdinal(rec.Date)),
				Member: key,
			})
		} else {
			pipe.ZRem(ctx, r.keys.Index(), key)
		}
		return nil
	})
	if err != nil {
		return unavailable("writing "+key, err)
	}
	return nil
}

// Get implements Interface.
func (r *RedisStorage) Get(ctx context.Context, date time.Time) (*models.StraddleRecord, error) {
	key := r.keys.Record(date)
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("reading "+key, err)
	}
	var rec models.StraddleRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}
	return &rec, nil
}

// Range implements Interface.
func (r *RedisStorage) Range(ctx context.Context, start, end time.Time) ([]models.StraddleRecord, error) {
	keys, err := r.client.ZRangeByScore(ctx, r.keys.Index(), &redis.ZRangeBy{
		Min: strconv.FormatInt(models.DateOrdinal(start), 10),
		Max: strconv.FormatInt(models.DateOrdinal(end), 10),
	}).Result()
	if err != nil {
		return nil, unavailable("reading index", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, unavailable("reading records", err)
	}

	out := make([]models.StraddleRecord, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			r.logger.WithField("key", keys[i]).Debug("Index entry without record, skipping")
			continue
		}
		var rec models.StraddleRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			r.logger.WithField("key", keys[i]).WithError(err).Warn("Corrupt record, skipping")
			continue
		}
		if !rec.IsAvailable() {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// PurgeOlderThan implements Interface. Failed records are not indexed, so
// the key space is scanned as well as the index.
func (r *RedisStorage) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	exclusive := "(" + strconv.FormatInt(models.DateOrdinal(cutoff), 10)
	indexed, err := r.client.ZRangeByScore(ctx, r.keys.Index(), &redis.ZRangeBy{Min: "-inf", Max: exclusive}).Result()
	if err != nil {
		return 0, unavailable("reading index", err)
	}

	victims := make(map[string]struct{}, len(indexed))
	for _, k := range indexed {
		victims[k] = struct{}{}
	}
	cutoff = models.CivilDate(cutoff)
	iter := r.client.Scan(ctx, 0, r.keys.RecordPattern(), 200).Iterator()
	for iter.Next(ctx) {
		d, err := r.keys.DateFromRecordKey(iter.Val())
		if err != nil {
			continue
		}
		if d.Before(cutoff) {
			victims[iter.Val()] = struct{}{}
		}
	}
	if err := iter.Err(); err != nil {
		return 0, unavailable("scanning records", err)
	}

	keys := make([]string, 0, len(victims))
	for k := range victims {
		keys = append(keys, k)
	}

	var deleted *redis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(keys) > 0 {
			deleted = pipe.Del(ctx, keys...)
		}
		pipe.ZRemRangeByScore(ctx, r.keys.Index(), "-inf", exclusive)
		return nil
	})
	if err != nil {
		return 0, unavailable("purging records", err)
	}
	if deleted == nil {
		return 0, nil
	}
	return int(deleted.Val()), nil
}

// Ping implements Interface.
func (r *RedisStorage) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close implements Interface.
func (r *RedisStorage) Close() error {
	return r.client.Close()
}
