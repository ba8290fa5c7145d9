package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"cart-service/internal/models"
	"cart-service/internal/repository"
)

// MockExpiringStore is a mock implementation of repository.ExpiringStore
type MockExpiringStore struct {
	mock.Mock
}

func (m *MockExpiringStore) Load(ctx context.Context, key string) (*models.CartState, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CartState), args.Error(1)
}

func (m *MockExpiringStore) Save(ctx context.Context, key string, state *models.CartState) error {
	return m.Called(ctx, key, state).Error(0)
}

func (m *MockExpiringStore) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockExpiringStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

type evictorFunc func(cutoff time.Time) int

func (f evictorFunc) EvictIdle(cutoff time.Time) int { return f(cutoff) }

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestForceRun_DeletesAndEvicts(t *testing.T) {
	store := new(MockExpiringStore)
	store.On("DeleteExpired", mock.Anything, fixedNow).Return(int64(3), nil).Twice()

	var gotCutoff time.Time
	evictor := evictorFunc(func(cutoff time.Time) int {
		gotCutoff = cutoff
		return 2
	})

	w := NewCartExpirationWorker(store, evictor, time.Minute, quietLogger())
	w.now = func() time.Time { return fixedNow }
	w.SetIdleAge(10 * time.Minute)

	require.NoError(t, w.ForceRun(context.Background()))
	require.NoError(t, w.ForceRun(context.Background()))

	assert.Equal(t, fixedNow.Add(-10*time.Minute), gotCutoff)
	stats := w.Stats()
	assert.Equal(t, int64(3), stats.CartsDeleted)
	assert.Equal(t, int64(6), stats.TotalCartsDeleted)
	assert.Equal(t, 2, stats.LedgersEvicted)
	assert.Equal(t, fixedNow, stats.LastRunAt)
	store.AssertExpectations(t)
}

func TestForceRun_StoreError(t *testing.T) {
	store := new(MockExpiringStore)
	store.On("DeleteExpired", mock.Anything, mock.Anything).Return(int64(0), errors.New("db down"))

	w := NewCartExpirationWorker(store, nil, 0, quietLogger())

	err := w.ForceRun(context.Background())

	require.Error(t, err)
	assert.Equal(t, "db down", w.Status().LastError)
	assert.Equal(t, DefaultExpirationCheckInterval.String(), w.Status().Interval)
}

func TestForceRun_MemoryStore(t *testing.T) {
	store := repository.NewMemoryStore(time.Hour)
	require.NoError(t, store.Save(context.Background(), "cart:t1:u1", &models.CartState{}))

	w := NewCartExpirationWorker(store, nil, time.Minute, quietLogger())
	w.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	require.NoError(t, w.ForceRun(context.Background()))

	assert.Equal(t, int64(1), w.Stats().CartsDeleted)
	assert.Equal(t, 0, store.Len())
}

func TestStartStop(t *testing.T) {
	store := new(MockExpiringStore)
	store.On("DeleteExpired", mock.Anything, mock.Anything).Return(int64(0), nil)

	w := NewCartExpirationWorker(store, nil, time.Hour, quietLogger())
	w.Start()
	w.Start()
	assert.True(t, w.IsRunning())

	w.Stop()
	assert.False(t, w.IsRunning())
	w.Stop()
}
