package redis

import (
	"time"

	"github.com/turtacn/OpenAD-Plugins/internal/config"
)

func configFor(addr string) config.RedisConfig {
	return config.RedisConfig{Enabled: true, Addr: addr, PoolSize: 2, DialTimeout: 200 * time.Millisecond}
}
