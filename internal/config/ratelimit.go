package config

import "time"

// RateLimitConfig throttles the hold and payment routes per holder and
// route with a token bucket kept in Redis.  A holder may send Burst
// requests back to back and regains one every Refill.
type RateLimitConfig struct {
    Enabled bool
    Burst   int           // RATE_LIMIT_BURST, default 20
    Refill  time.Duration // RATE_LIMIT_REFILL, default 500ms
    Prefix  string        // RATE_LIMIT_PREFIX, default transit:rl
}

func LoadRateLimitConfig() RateLimitConfig {
    cfg := RateLimitConfig{
        Enabled: envBool("RATE_LIMIT_ENABLED", true),
        Burst:   envInt("RATE_LIMIT_BURST", 20),
        Refill:  envDur("RATE_LIMIT_REFILL", 500*time.Millisecond),
        Prefix:  envStr("RATE_LIMIT_PREFIX", "transit:rl"),
    }
    if cfg.Burst < 1 {
        cfg.Burst = 1
    }
    if cfg.Refill < time.Millisecond {
        cfg.Refill = 500 * time.Millisecond
    }
    return cfg
}

// BucketTTL is how long an idle bucket is kept: past it the bucket would be
// full again anyway.
func (c RateLimitConfig) BucketTTL() time.Duration {
    return time.Duration(c.Burst)*c.Refill + time.Minute
}
