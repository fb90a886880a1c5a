package middleware

import (
    "bytes"
    "context"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/labstack/gommon/log"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/transit-seat-reservation/internal/config"
)

// ListingCache keeps rendered ticket listings in Redis under the current
// catalog version.  Every inventory change bumps the version, so a listing
// computed before a hold or payment is never served after it; old entries
// just age out.
type ListingCache struct {
    cfg    config.ListingCacheConfig
    rdb    *redis.Client
    logger *log.Logger
}

// NewListingCache returns nil when caching is disabled or Redis is missing.
// A nil *ListingCache is valid: its middleware passes through and
// InventoryChanged does nothing.
func NewListingCache(cfg config.ListingCacheConfig, rdb *redis.Client, logger *log.Logger) *ListingCache {
    if !cfg.Enabled || rdb == nil {
        return nil
    }
    if logger == nil {
        logger = log.New("listing-cache")
    }
    return &ListingCache{cfg: cfg, rdb: rdb, logger: logger}
}

// versionBumpTimeout bounds the Redis round trip added to a transition.
const versionBumpTimeout = 250 * time.Millisecond

func (lc *ListingCache) versionKey() string { return lc.cfg.Prefix + ":version" }

// InventoryChanged bumps the catalog version.  A failed bump is logged;
// entries stored under the old version then live until their TTL.
func (lc *ListingCache) InventoryChanged(ctx context.Context, ticketID uint64) {
    if lc == nil {
        return
    }
    ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), versionBumpTimeout)
    defer cancel()
    if err := lc.rdb.Incr(ctx, lc.versionKey()).Err(); err != nil {
        lc.logger.Warnj(log.JSON{"msg": "listing version bump failed", "ticket_id": ticketID, "error": err.Error()})
    }
}

// version returns the current catalog version; "0" before the first change.
func (lc *ListingCache) version(ctx context.Context) (string, error) {
    v, err := lc.rdb.Get(ctx, lc.versionKey()).Result()
    if err == redis.Nil {
        return "0", nil
    }
    return v, err
}

func (lc *ListingCache) entryKey(version string, c echo.Context) string {
    return lc.cfg.Prefix + ":v" + version + ":" + c.Request().URL.RequestURI()
}

// bodyRecorder tees the response body up to limit bytes.
type bodyRecorder struct {
    http.ResponseWriter
    buf      bytes.Buffer
    limit    int
    overflow bool
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
    if !r.overflow {
        if r.buf.Len()+len(b) > r.limit {
            r.overflow = true
            r.buf.Reset()
        } else {
            r.buf.Write(b)
        }
    }
    return r.ResponseWriter.Write(b)
}

// Middleware serves GET listings from Redis and stores successful ones.
// Responses carry X-Cache: HIT or MISS.  A listing is only stored if the
// version did not move while it was being computed.
func (lc *ListingCache) Middleware() echo.MiddlewareFunc {
    if lc == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if c.Request().Method != http.MethodGet {
                return next(c)
            }
            ctx := c.Request().Context()
            version, err := lc.version(ctx)
            if err != nil {
                c.Response().Header().Set("X-Cache", "BYPASS")
                return next(c)
            }
            key := lc.entryKey(version, c)

            if entry, err := lc.rdb.HGetAll(ctx, key).Result(); err == nil && entry["body"] != "" {
                c.Response().Header().Set("X-Cache", "HIT")
                return c.Blob(http.StatusOK, entry["type"], []byte(entry["body"]))
            }

            c.Response().Header().Set("X-Cache", "MISS")
            rec := &bodyRecorder{ResponseWriter: c.Response().Writer, limit: lc.cfg.MaxBytes}
            c.Response().Writer = rec
            if err := next(c); err != nil {
                return err
            }
            if c.Response().Status != http.StatusOK || rec.overflow || rec.buf.Len() == 0 {
                return nil
            }
            if now, err := lc.version(ctx); err != nil || now != version {
                return nil
            }
            _, err = lc.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
                p.HSet(ctx, key, "type", c.Response().Header().Get(echo.HeaderContentType), "body", rec.buf.String())
                p.Expire(ctx, key, lc.cfg.TTL)
                return nil
            })
            if err != nil {
                lc.logger.Warnj(log.JSON{"msg": "listing cache store failed", "key": key, "error": err.Error()})
            }
            return nil
        }
    }
}

