package config

import "time"

// RateLimitConfig tunes the Redis token bucket in front of /api/auth.
// Every registration request sends an email, so the defaults allow a
// short burst and then one request every few seconds per client.
type RateLimitConfig struct {
	Enabled bool
	// Capacity is the bucket size. RATE_LIMIT_BURST overrides
	// RATE_LIMIT_CAPACITY when both are set.
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	// TTL bounds how long an idle bucket stays in Redis.
	TTL time.Duration
	// KeyStrategy names the parts of the bucket key, e.g. ip or ip_route.
	KeyStrategy string
	Prefix      string
	Debug       bool
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables.
func LoadRateLimitConfig() RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled:        envBool("RATE_LIMIT_ENABLED", true),
		Capacity:       envInt("RATE_LIMIT_BURST", envInt("RATE_LIMIT_CAPACITY", 20)),
		RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", 3*time.Second),
		TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy:    envStr("RATE_LIMIT_KEY_STRATEGY", "ip_route"),
		Prefix:         envStr("RATE_LIMIT_PREFIX", "rl"),
		Debug:          envBool("RATE_LIMIT_DEBUG", false),
	}
	return cfg.normalized()
}

// normalized replaces values the Lua script cannot work with. A bucket must
// outlive several refill intervals or it would reset to full between requests.
func (c RateLimitConfig) normalized() RateLimitConfig {
	c.Capacity = max(c.Capacity, 1)
	c.RefillTokens = max(c.RefillTokens, 1)
	if c.RefillInterval <= 0 {
		c.RefillInterval = time.Second
	}
	c.TTL = max(c.TTL, 5*c.RefillInterval)
	return c
}
