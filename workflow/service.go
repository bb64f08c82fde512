package workflow

import (
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/batchtrace_backend/config"
	"github.com/mmdatafocus/batchtrace_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Service runs catalog, ledger and production operations. Each operation opens its own unit of
// work on DB; there is no package-level connection.
type Service struct {
	DB       *gorm.DB
	Logger   *logrus.Logger
	Settings config.Settings
	// Now is the clock used for "today". Defaults to time.Now.
	Now func() time.Time
	// Locker is optional; when set and Settings.ProductionLockEnabled is true, batch recording
	// is serialized per manufacturer across instances.
	Locker *redislock.Client
	// RetryBackoff is the first sleep between unit-of-work retries.
	RetryBackoff time.Duration
}

func NewService(db *gorm.DB, logger *logrus.Logger, settings config.Settings) *Service {
	if logger == nil {
		logger = config.GetLogger()
	}
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	return &Service{
		DB:           db,
		Logger:       logger,
		Settings:     settings,
		Now:          time.Now,
		Locker:       config.GetRedisLock(),
		RetryBackoff: 50 * time.Millisecond,
	}
}

func (s *Service) today() time.Time {
	return utils.Today(s.Now, s.Settings.Location)
}
