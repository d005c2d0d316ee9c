package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/eddiefleurent/straddle_tracker/internal/models"
)

// JSONStorage keeps records in a single JSON file, rewritten atomically on
// every change. An empty path keeps everything in memory.
type JSONStorage struct {
	mu       sync.RWMutex
	filepath string
	keys     Keys
	data     *StorageData
}

// StorageData is the on-disk layout. Index mirrors the Redis sorted set:
// record key -> date ordinal, available records only.
type StorageData struct {
	Records     map[string]json.RawMessage `json:"records"`
	Index       map[string]int64           `json:"index"`
	LastUpdated time.Time                  `json:"last_updated"`
}

// NewJSONStorage opens or creates the store at filepath.
func NewJSONStorage(filepath string) (*JSONStorage, error) {
	s := &JSONStorage{
		filepath: filepath,
		data: &StorageData{
			Records: make(map[string]json.RawMessage),
			Index:   make(map[string]int64),
		},
	}

	if filepath == "" {
		return s, nil
	}
	if _, err := os.Stat(filepath); err == nil {
		if err := s.Load(); err != nil {
			return nil, fmt.Errorf("loading storage: %w", err)
		}
	}
	return s, nil
}

// Load reads the file into memory.
func (s *JSONStorage) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filepath) // #nosec G304 -- path comes from config
	if err != nil {
		return err
	}
	loaded := &StorageData{}
	if err := json.Unmarshal(data, loaded); err != nil {
		return err
	}
	if loaded.Records == nil {
		loaded.Records = make(map[string]json.RawMessage)
	}
	if loaded.Index == nil {
		loaded.Index = make(map[string]int64)
	}
	s.data = loaded
	return nil
}

// clone copies the maps so a change can be staged before it is saved.
func (d *StorageData) clone() *StorageData {
	out := &StorageData{
		Records:     make(map[string]json.RawMessage, len(d.Records)),
		Index:       make(map[string]int64, len(d.Index)),
		LastUpdated: d.LastUpdated,
	}
	for k, v := range d.Records {
		out.Records[k] = v
	}
	for k, v := range d.Index {
		out.Index[k] = v
	}
	return out
}

// commitLocked writes next and only then makes it the served state, so a
// failed write leaves memory matching the file. Callers must hold the write
// lock.
func (s *JSONStorage) commitLocked(next *StorageData) error {
	if err := s.save(next); err != nil {
		return err
	}
	s.data = next
	return nil
}

func (s *JSONStorage) save(d *StorageData) error {
	if s.filepath == "" {
		return nil
	}
	d.LastUpdated = time.Now().UTC()

	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}

	// Write to temp file first
	tmpFile := s.filepath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o600); err != nil {
		return unavailable("writing "+tmpFile, err)
	}

	// Atomic rename
	if err := os.Rename(tmpFile, s.filepath); err != nil {
		return unavailable("renaming "+tmpFile, err)
	}
	return nil
}

// Put implements Interface.
func (s *JSONStorage) Put(_ context.Context, rec *models.StraddleRecord) error {
	if err := checkPut(rec); err != nil {
		return err
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	key := s.keys.Record(rec.Date)

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.data.clone()
	next.Records[key] = raw
	if rec.Status == models.StatusAvailable {
		next.Index[key] = models.DateOrdinal(rec.Date)
	} else {
		delete(next.Index, key)
	}
	return s.commitLocked(next)
}

// Get implements Interface.
func (s *JSONStorage) Get(_ context.Context, date time.Time) (*models.StraddleRecord, error) {
	key := s.keys.Record(date)

	s.mu.RLock()
	raw, ok := s.data.Records[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	var rec models.StraddleRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}
	return &rec, nil
}

// Range implements Interface.
func (s *JSONStorage) Range(_ context.Context, start, end time.Time) ([]models.StraddleRecord, error) {
	lo, hi := models.DateOrdinal(start), models.DateOrdinal(end)

	s.mu.RLock()
	defer s.mu.RUnlock()

	type entry struct {
		key string
		ord int64
	}
	var entries []entry
	for k, ord := range s.data.Index {
		if ord >= lo && ord <= hi {
			entries = append(entries, entry{k, ord})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ord < entries[j].ord })

	out := make([]models.StraddleRecord, 0, len(entries))
	for _, e := range entries {
		raw, ok := s.data.Records[e.key]
		if !ok {
			continue
		}
		var rec models.StraddleRecord
		if err := json.Unmarshal(raw, &rec); err != nil || !rec.IsAvailable() {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// PurgeOlderThan implements Interface.
func (s *JSONStorage) PurgeOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	cutoffOrd := models.DateOrdinal(cutoff)

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.data.clone()
	removed := 0
	for key := range next.Records {
		d, err := s.keys.DateFromRecordKey(key)
		if err != nil {
			continue
		}
		if models.DateOrdinal(d) < cutoffOrd {
			delete(next.Records, key)
			removed++
		}
	}
	for key, ord := range next.Index {
		if ord < cutoffOrd {
			delete(next.Index, key)
		}
	}
	if removed == 0 {
		return 0, nil
	}
	if err := s.commitLocked(next); err != nil {
		return 0, err
	}
	return removed, nil
}

// Ping implements Interface.
func (s *JSONStorage) Ping(context.Context) error {
	return nil
}

// Close implements Interface.
func (s *JSONStorage) Close() error {
	return nil
}
