package config

import (
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Settings holds the engine tunables. Zero values are never used directly; see LoadSettings.
type Settings struct {
	// ShelfLifeMinDays is the admission rule: expiration must be at least this many days after today.
	ShelfLifeMinDays int
	// AllocationTolerance bounds |required - supplied| per recipe line.
	AllocationTolerance decimal.Decimal
	NearExpiryDays      int
	TxMaxRetries        int
	// ProductionLockEnabled wraps batch recording in a Redis lock per manufacturer.
	ProductionLockEnabled bool
	Location              *time.Location
}

func DefaultSettings() Settings {
	return Settings{
		ShelfLifeMinDays:    90,
		AllocationTolerance: decimal.New(1, -6),
		NearExpiryDays:      10,
		TxMaxRetries:        3,
		Location:            time.UTC,
	}
}

// LoadSettings reads:
// - SHELF_LIFE_MIN_DAYS, ALLOCATION_TOLERANCE, NEAR_EXPIRY_DAYS, TX_MAX_RETRIES
// - PRODUCTION_LOCK_ENABLED=true
// - APP_TIMEZONE (IANA name)
func LoadSettings() Settings {
	s := DefaultSettings()
	s.ShelfLifeMinDays = intFromEnv("SHELF_LIFE_MIN_DAYS", s.ShelfLifeMinDays)
	s.NearExpiryDays = intFromEnv("NEAR_EXPIRY_DAYS", s.NearExpiryDays)
	s.TxMaxRetries = intFromEnv("TX_MAX_RETRIES", s.TxMaxRetries)
	s.ProductionLockEnabled = boolFromEnv("PRODUCTION_LOCK_ENABLED", false)
	if v := strings.TrimSpace(os.Getenv("ALLOCATION_TOLERANCE")); v != "" {
		if d, err := decimal.NewFromString(v); err == nil && !d.IsNegative() {
			s.AllocationTolerance = d
		}
	}
	if tz := strings.TrimSpace(os.Getenv("APP_TIMEZONE")); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			s.Location = loc
		}
	}
	return s
}
