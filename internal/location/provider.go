// Package location acquires device position fixes, with a short-lived cache
// so a punch immediately after a geofence check reuses the same fix.
package location

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/veritime/attendance-service/internal/config"
	"github.com/veritime/attendance-service/internal/models"
	"github.com/veritime/attendance-service/internal/util/logger"
)

var (
	ErrPermissionDenied  = errors.New("location permission denied")
	ErrDeviceUnavailable = errors.New("no positioning hardware available")
	ErrFixTimeout        = errors.New("timed out waiting for position fix")
)

// Provider abstracts the device positioning hardware.
type Provider interface {
	GetFix(ctx context.Context) (models.GeoFix, error)
}

type fixCache interface {
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest interface{}) error
}

// FixService wraps a Provider with timeout handling and fix caching.
type FixService struct {
	provider Provider
	cache    fixCache
	cfg      config.GeofenceConfig
}

func NewFixService(provider Provider, cache fixCache, cfg config.GeofenceConfig) *FixService {
	if cfg.FixTimeout == 0 {
		cfg.FixTimeout = 30 * time.Second
	}
	if cfg.FixMaxAge == 0 {
		cfg.FixMaxAge = 60 * time.Second
	}
	return &FixService{provider: provider, cache: cache, cfg: cfg}
}

func fixKey(employeeID uuid.UUID) string {
	return fmt.Sprintf("geofix:%s", employeeID)
}

// CurrentFix returns a cached fix no older than the configured max age, or
// waits for a fresh one within the fix timeout.
func (s *FixService) CurrentFix(ctx context.Context, employeeID uuid.UUID) (models.GeoFix, error) {
	var cached models.GeoFix
	err := s.cache.GetJSON(ctx, fixKey(employeeID), &cached)
	if err == nil && time.Since(cached.ObservedAt) <= s.cfg.FixMaxAge {
		return cached, nil
	}
	if err != nil && err != redis.Nil {
		logger.Warnf("geofix cache read for %s: %v", employeeID, err)
	}

	fixCtx, cancel := context.WithTimeout(ctx, s.cfg.FixTimeout)
	defer cancel()

	fix, err := s.provider.GetFix(fixCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		return models.GeoFix{}, ErrFixTimeout
	}
	if err != nil {
		return models.GeoFix{}, err
	}
	if fix.ObservedAt.IsZero() {
		fix.ObservedAt = time.Now().UTC()
	}

	if err := s.cache.SetJSON(ctx, fixKey(employeeID), fix, s.cfg.FixMaxAge); err != nil {
		logger.Warnf("geofix cache write for %s: %v", employeeID, err)
	}
	return fix, nil
}
