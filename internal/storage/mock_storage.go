package storage

import (
	"context"
	"sync"
	"time"

	"github.com/eddiefleurent/straddle_tracker/internal/models"
)

// MockStorage wraps an in-memory JSONStorage with injectable errors and call
// counters, for testing callers' degradation paths.
type MockStorage struct {
	mu        sync.Mutex
	inner     *JSONStorage
	PutError  error
	GetError  error
	RangeErr  error
	PurgeErr  error
	PingError error
	putCalls  int
	getCalls  int
}

// NewMockStorage creates a new mock storage for testing
func NewMockStorage() *MockStorage {
	inner, _ := NewJSONStorage("")
	return &MockStorage{inner: inner}
}

// Put implements Interface.
func (m *MockStorage) Put(ctx context.Context, rec *models.StraddleRecord) error {
	m.mu.Lock()
	m.putCalls++
	err := m.PutError
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.inner.Put(ctx, rec)
}

// Get implements Interface.
func (m *MockStorage) Get(ctx context.Context, date time.Time) (*models.StraddleRecord, error) {
	m.mu.Lock()
	m.getCalls++
	err := m.GetError
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.inner.Get(ctx, date)
}

// Range implements Interface.
func (m *MockStorage) Range(ctx context.Context, start, end time.Time) ([]models.StraddleRecord, error) {
	if m.RangeErr != nil {
		return nil, m.RangeErr
	}
	return m.inner.Range(ctx, start, end)
}

// PurgeOlderThan implements Interface.
func (m *MockStorage) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	if m.PurgeErr != nil {
		return 0, m.PurgeErr
	}
	return m.inner.PurgeOlderThan(ctx, cutoff)
}

// Ping implements Interface.
func (m *MockStorage) Ping(context.Context) error {
	return m.PingError
}

// Close implements Interface.
func (m *MockStorage) Close() error {
	return nil
}

// PutCalls returns how many times Put was called.
func (m *MockStorage) PutCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putCalls
}

// GetCalls returns how many times Get was called.
func (m *MockStorage) GetCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getCalls
}
