// Package config holds the runtime tunables SPEC_FULL.md §4.6 calls for:
// knobs that affect behavior at mount time, not the on-disk format, so
// they don't collide with the mkfs/CLI non-goals. Loaded from
// SIMPLEFS_-prefixed environment variables via github.com/spf13/viper,
// the same library the pack's direktiv-vorteil config loader
// (pkg/vconvert/config.go) uses, generalized here to an instance instead
// of viper's package-level global so multiple mounts in one process don't
// share state.
package config

import (
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const envPrefix = "SIMPLEFS"

// Config carries the tunables read at Mount time.
type Config struct {
	// LogLevel is parsed via logrus.ParseLevel; defaults to "info".
	LogLevel string
	// InodeCacheSize caps how many materialized inodes a Store keeps
	// before it evicts the oldest (FIFO), via Store.SetCacheCap.
	InodeCacheSize int
	// BitmapWarnFillRatio logs a warning once a bitmap's population
	// count crosses this fraction of TotalUnits (0 disables the check).
	BitmapWarnFillRatio float64
}

// Load reads Config from the environment, applying defaults for any
// tunable left unset.
func Load() *Config {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log_level", "info")
	v.SetDefault("inode_cache_size", 1024)
	v.SetDefault("bitmap_warn_fill_ratio", 0.9)

	return &Config{
		LogLevel:            v.GetString("log_level"),
		InodeCacheSize:      v.GetInt("inode_cache_size"),
		BitmapWarnFillRatio: v.GetFloat64("bitmap_warn_fill_ratio"),
	}
}

// Logger builds a *logrus.Logger at the configured level, falling back to
// logrus.InfoLevel if LogLevel doesn't parse.
func (c *Config) Logger() *logrus.Logger {
	log := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}
