// Package storage persists straddle records keyed by date together with a
// chronological index of available records.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/eddiefleurent/straddle_tracker/internal/models"
)

// Interface defines the contract for straddle record persistence.
//
// Implementations must be safe for concurrent use - callers can assume all methods
// are goroutine-safe and can safely call these methods from multiple goroutines.
//
// Only records with status available are present in the chronological index,
// so Range never returns pending, calculating or failed records.
type Interface interface {
	// Put writes rec under its date key, replacing any previous record for
	// that date, and indexes it when available.
	Put(ctx context.Context, rec *models.StraddleRecord) error
	// Get returns the record for date, or (nil, nil) when none exists.
	Get(ctx context.Context, date time.Time) (*models.StraddleRecord, error)
	// Range returns available records with start <= date <= end, ascending.
	// Index entries pointing at missing or corrupt records are skipped.
	Range(ctx context.Context, start, end time.Time) ([]models.StraddleRecord, error)
	// PurgeOlderThan removes records and index entries strictly older than
	// cutoff and returns the number of records removed.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// DefaultKeyPrefix namespaces keys for the SPX series.
const DefaultKeyPrefix = "spx_straddle"

// Keys derives storage keys for one series.
type Keys struct {
	Prefix string
}

// Record returns the per-date record key, e.g. spx_straddle:record:20240304.
func (k Keys) Record(date time.Time) string {
	return fmt.Sprintf("%s:record:%s", k.prefix(), date.Format(models.KeyLayout))
}

// Index returns the chronological index key.
func (k Keys) Index() string {
	return k.prefix() + ":chronological"
}

// RecordPattern matches every record key in the series.
func (k Keys) RecordPattern() string {
	return k.prefix() + ":record:*"
}

// DateFromRecordKey parses the date out of a record key.
func (k Keys) DateFromRecordKey(key string) (time.Time, error) {
	p := k.prefix() + ":record:"
	if len(key) != len(p)+len(models.KeyLayout) || key[:len(p)] != p {
		return time.Time{}, fmt.Errorf("not a record key: %q", key)
	}
	return time.ParseInLocation(models.KeyLayout, key[len(p):], time.UTC)
}

func (k Keys) prefix() string {
	if k.Prefix == "" {
		return DefaultKeyPrefix
	}
	return k.Prefix
}

// Config selects and configures a backend.
type Config struct {
	Backend     string // redis | json | postgres
	Path        string // json file path; empty keeps records in memory
	RedisURL    string
	PostgresDSN string
	KeyPrefix   string
}

// NewStorage creates the configured backend.
func NewStorage(ctx context.Context, cfg Config) (Interface, error) {
	switch cfg.Backend {
	case "", "redis":
		s, err := NewRedisStorage(ctx, cfg.RedisURL, cfg.KeyPrefix)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "json":
		s, err := NewJSONStorage(cfg.Path)
		if err != nil {
			return nil, err
		}
		s.keys = Keys{Prefix: cfg.KeyPrefix}
		return s, nil
	case "postgres":
		s, err := NewPostgresStorage(cfg.PostgresDSN, cfg.KeyPrefix)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// checkPut validates a record before it is written.
func checkPut(rec *models.StraddleRecord) error {
	if rec == nil {
		return fmt.Errorf("nil record")
	}
	return rec.Validate()
}

// unavailable wraps a backend error so callers can degrade on it.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, models.ErrStorageUnavailable, err)
}

// Ensure implementations satisfy Interface
var (
	_ Interface = (*JSONStorage)(nil)
	_ Interface = (*RedisStorage)(nil)
	_ Interface = (*PostgresStorage)(nil)
	_ Interface = (*MockStorage)(nil)
)
