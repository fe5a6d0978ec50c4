// internal/workers/validation/run-validation/config.go
package runvalidation

import "time"

// A full run makes one model call per requirement, so the job timeout
// has to cover rate-limited free-tier pacing across a large unit.
type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 45 * time.Minute,
	}
}
