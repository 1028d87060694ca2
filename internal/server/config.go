package server

import "time"

// EnvConfig defines fields used for parsing from environment variables
type EnvConfig struct {
	Host string `env:"HOST" envDefault:"0.0.0.0"`
	Port uint16 `env:"PORT" envDefault:"9000"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`

	// PresenceTTL bounds how long a user stays online after their last
	// presence signal. Lost unload events go stale-offline after this.
	PresenceTTL time.Duration `env:"PRESENCE_TTL" envDefault:"60s"`
}
