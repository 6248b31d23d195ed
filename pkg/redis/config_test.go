package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Alijeyrad/teleconsult/config"
)

func TestFromCentralConfig(t *testing.T) {
	t.Run("defaults fill unset values", func(t *testing.T) {
		cfg := FromCentralConfig(config.RedisConfig{Addr: "redis:6379"})

		assert.Equal(t, "redis:6379", cfg.Addr)
		assert.Equal(t, 10, cfg.PoolSize)
		assert.Equal(t, 5*time.Second, cfg.DialTimeout())
		assert.Equal(t, 10*time.Second, cfg.LockTTL)
		assert.Equal(t, 24*time.Hour, cfg.DedupeTTL)
	})

	t.Run("explicit values win", func(t *testing.T) {
		cfg := FromCentralConfig(config.RedisConfig{
			Addr:                  "redis:6379",
			PoolSize:              50,
			ReadTimeoutSeconds:    9,
			LockTTLSeconds:        30,
			WebhookDedupeTTLHours: 48,
		})

		assert.Equal(t, 50, cfg.PoolSize)
		assert.Equal(t, 9*time.Second, cfg.ReadTimeout())
		assert.Equal(t, 30*time.Second, cfg.LockTTL)
		assert.Equal(t, 48*time.Hour, cfg.DedupeTTL)
	})
}
