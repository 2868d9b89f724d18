package scheduler

import (
	"time"

	"github.com/smallbiznis/scholara/internal/config"
)

const defaultLockKey = "scholara:scheduler:invoice_archive"

// Config controls the maintenance run loop.
type Config struct {
	RunInterval      time.Duration
	LockTTL          time.Duration
	LockKey          string
	PartitionTimeout time.Duration
	ArchiveTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:      24 * time.Hour,
		LockTTL:          2 * time.Hour,
		LockKey:          defaultLockKey,
		PartitionTimeout: time.Minute,
		ArchiveTimeout:   90 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.LockKey == "" {
		c.LockKey = defaults.LockKey
	}
	if c.PartitionTimeout <= 0 {
		c.PartitionTimeout = defaults.PartitionTimeout
	}
	if c.ArchiveTimeout <= 0 {
		c.ArchiveTimeout = defaults.ArchiveTimeout
	}
	// The archive job must finish before the lock can expire under it.
	if c.ArchiveTimeout > c.LockTTL {
		c.ArchiveTimeout = c.LockTTL
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: cfg.Scheduler.RunInterval,
		LockTTL:     cfg.Scheduler.LockTTL,
	}.withDefaults()
}
