package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
)

var ErrProductionLockBusy = errors.New("production lock is held by another request")

const (
	productionLockTTL     = 30 * time.Second
	productionLockRetries = 20
)

// withProductionLock runs fn while holding a Redis lock for the manufacturer when the lock is
// enabled and a locker is configured. Row locks in the store remain the correctness guarantee.
func (s *Service) withProductionLock(ctx context.Context, manufacturerId string, fn func() error) error {
	if !s.Settings.ProductionLockEnabled || s.Locker == nil {
		return fn()
	}
	key := fmt.Sprintf("production:%s", manufacturerId)
	lock, err := s.Locker.Obtain(ctx, key, productionLockTTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.ExponentialBackoff(16*time.Millisecond, 512*time.Millisecond), productionLockRetries),
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return fmt.Errorf("%w: %s", ErrProductionLockBusy, manufacturerId)
		}
		return err
	}
	defer func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}()
	return fn()
}
