package worker

import "time"

// Config contains configuration for batch processing. Every delay and limit
// the workers observe is listed here explicitly; there is no ambient tuning
// state anywhere else.
type Config struct {
	// Concurrency settings
	MaxConcurrentBatches int `json:"max_concurrent_batches"`
	SendConcurrency      int `json:"send_concurrency"`

	// Rate limiting
	RateLimitDelay time.Duration `json:"rate_limit_delay"`
	RatePerMinute  int           `json:"rate_per_minute"` // Emails per minute

	// Circuit breaker settings
	EnableCircuitBreaker    bool          `json:"enable_circuit_breaker"`
	CircuitBreakerThreshold int           `json:"circuit_breaker_threshold"`
	CircuitBreakerCooldown  time.Duration `json:"circuit_breaker_cooldown"`

	// Paused campaigns
	PauseRequeueDelay time.Duration `json:"pause_requeue_delay"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrentBatches:    3,
		SendConcurrency:         5,
		RateLimitDelay:          200 * time.Millisecond,
		RatePerMinute:           600, // 10 per second
		EnableCircuitBreaker:    true,
		CircuitBreakerThreshold: 5,
		CircuitBreakerCooldown:  1 * time.Minute,
		PauseRequeueDelay:       5 * time.Second,
	}
}
