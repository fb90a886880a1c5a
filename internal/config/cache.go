package config

import "time"

// ListingCacheConfig configures the Redis copy of the public ticket
// listing.  Entries are keyed by a catalog version that every seat
// transition bumps, so TTL only bounds memory, not staleness.
type ListingCacheConfig struct {
    Enabled  bool
    TTL      time.Duration // LISTING_CACHE_TTL, default 1m
    Prefix   string        // LISTING_CACHE_PREFIX, default transit:listing
    MaxBytes int           // listings larger than this are not cached
}

func LoadListingCacheConfig() ListingCacheConfig {
    cfg := ListingCacheConfig{
        Enabled:  envBool("LISTING_CACHE_ENABLED", true),
        TTL:      envDur("LISTING_CACHE_TTL", time.Minute),
        Prefix:   envStr("LISTING_CACHE_PREFIX", "transit:listing"),
        MaxBytes: envInt("LISTING_CACHE_MAX_BYTES", 1<<20),
    }
    if cfg.TTL <= 0 {
        cfg.TTL = time.Minute
    }
    return cfg
}
