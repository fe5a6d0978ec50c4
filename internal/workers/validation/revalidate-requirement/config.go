// internal/workers/validation/revalidate-requirement/config.go
package revalidaterequirement

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 5 * time.Minute,
	}
}
