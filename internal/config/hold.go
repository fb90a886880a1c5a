package config

import "time"

// HoldConfig tunes the hold lifecycle and the background sweep.
//
// Fields:
//  TTL               – lifetime of a hold (HOLD_TTL, default 15m).
//  SweepInterval     – period of the background sweep (SWEEP_INTERVAL, default 60s).
//  SweepBatch        – maximum expired seats reclaimed per pass (SWEEP_BATCH, default 500).
//  MaxHoldsPerHolder – live holds one holder may own, 0 = unlimited (MAX_HOLDS_PER_HOLDER).
//  SweepLockKey      – Redis key electing a single sweeper across instances.
//  SweepLockTTL      – how long a sweeper keeps the election once won.
type HoldConfig struct {
    TTL               time.Duration
    SweepInterval     time.Duration
    SweepBatch        int
    MaxHoldsPerHolder int
    SweepLockKey      string
    SweepLockTTL      time.Duration
}

// LoadHoldConfig reads the hold settings.  Non-positive durations fall back
// to the defaults.
func LoadHoldConfig() HoldConfig {
    cfg := HoldConfig{
        TTL:               envDur("HOLD_TTL", 15*time.Minute),
        SweepInterval:     envDur("SWEEP_INTERVAL", 60*time.Second),
        SweepBatch:        envInt("SWEEP_BATCH", 500),
        MaxHoldsPerHolder: envInt("MAX_HOLDS_PER_HOLDER", 0),
        SweepLockKey:      envStr("SWEEP_LOCK_KEY", "transit:sweep:leader"),
    }
    if cfg.TTL <= 0 { cfg.TTL = 15 * time.Minute }
    if cfg.SweepInterval <= 0 { cfg.SweepInterval = 60 * time.Second }
    if cfg.SweepBatch < 1 { cfg.SweepBatch = 500 }
    if cfg.MaxHoldsPerHolder < 0 { cfg.MaxHoldsPerHolder = 0 }
    // the lock must lapse before the next tick so a crashed leader is replaced
    cfg.SweepLockTTL = envDur("SWEEP_LOCK_TTL", cfg.SweepInterval*9/10)
    if cfg.SweepLockTTL <= 0 || cfg.SweepLockTTL > cfg.SweepInterval { cfg.SweepLockTTL = cfg.SweepInterval * 9 / 10 }
    return cfg
}
