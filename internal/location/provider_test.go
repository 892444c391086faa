package location

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritime/attendance-service/internal/config"
	"github.com/veritime/attendance-service/internal/models"
)

type memCache struct {
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = b
	return nil
}

func (c *memCache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	b, ok := c.data[key]
	if !ok {
		return redis.Nil
	}
	return json.Unmarshal(b, dest)
}

type countingProvider struct {
	calls int
	fix   models.GeoFix
	err   error
}

func (p *countingProvider) GetFix(ctx context.Context) (models.GeoFix, error) {
	p.calls++
	if p.err != nil {
		return models.GeoFix{}, p.err
	}
	return p.fix, nil
}

func testCfg() config.GeofenceConfig {
	return config.GeofenceConfig{FixTimeout: time.Second, FixMaxAge: time.Minute}
}

func TestCurrentFixCachesResult(t *testing.T) {
	provider := &countingProvider{fix: models.GeoFix{Latitude: 29.3759, Longitude: 47.9774, ObservedAt: time.Now().UTC()}}
	svc := NewFixService(provider, newMemCache(), testCfg())
	employeeID := uuid.New()

	first, err := svc.CurrentFix(context.Background(), employeeID)
	require.NoError(t, err)
	second, err := svc.CurrentFix(context.Background(), employeeID)
	require.NoError(t, err)

	assert.Equal(t, first.Latitude, second.Latitude)
	assert.Equal(t, 1, provider.calls, "second call should hit the cache")
}

func TestCurrentFixIgnoresStaleCache(t *testing.T) {
	cache := newMemCache()
	employeeID := uuid.New()

	stale := models.GeoFix{Latitude: 1, Longitude: 1, ObservedAt: time.Now().Add(-5 * time.Minute)}
	require.NoError(t, cache.SetJSON(context.Background(), fixKey(employeeID), stale, time.Minute))

	provider := &countingProvider{fix: models.GeoFix{Latitude: 29.3759, Longitude: 47.9774, ObservedAt: time.Now().UTC()}}
	svc := NewFixService(provider, cache, testCfg())

	fix, err := svc.CurrentFix(context.Background(), employeeID)
	require.NoError(t, err)
	assert.Equal(t, 29.3759, fix.Latitude)
	assert.Equal(t, 1, provider.calls)
}

func TestCurrentFixPermissionDenied(t *testing.T) {
	provider := &countingProvider{err: ErrPermissionDenied}
	svc := NewFixService(provider, newMemCache(), testCfg())

	_, err := svc.CurrentFix(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestCurrentFixTimeout(t *testing.T) {
	provider := &countingProvider{err: context.DeadlineExceeded}
	svc := NewFixService(provider, newMemCache(), testCfg())

	_, err := svc.CurrentFix(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrFixTimeout)
}
