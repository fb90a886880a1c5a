package middleware

import (
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/labstack/gommon/log"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/transit-seat-reservation/internal/config"
)

// holderBucketScript refills continuously at one token per refill_ms, takes
// one token when a whole one is available and returns {allowed, wait_ms}.
var holderBucketScript = redis.NewScript(`
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[1])
local refill_ms = tonumber(ARGV[3])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(state[1]) or burst
local ts = tonumber(state[2]) or now
if now > ts then
    tokens = math.min(burst, tokens + (now - ts) / refill_ms)
    ts = now
end

local allowed, wait = 0, 0
if tokens >= 1 then
    allowed = 1
    tokens = tokens - 1
else
    wait = math.ceil((1 - tokens) * refill_ms)
end

redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'ts', ts)
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return {allowed, wait}
`)

// NewHolderRateLimit throttles each holder per route.  It must run after
// JWTAuth so the bucket is keyed by holder.  Without Redis, or when
// disabled, it is a pass-through; Redis errors let the request through.
func NewHolderRateLimit(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    burst := strconv.Itoa(cfg.Burst)
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := rateKey(cfg.Prefix, c)
            res, err := holderBucketScript.Run(c.Request().Context(), rdb, []string{key},
                time.Now().UnixMilli(), cfg.Burst, cfg.Refill.Milliseconds(), cfg.BucketTTL().Milliseconds()).Int64Slice()
            if err != nil || len(res) != 2 {
                c.Logger().Warnj(log.JSON{"msg": "rate limit skipped", "key": key, "error": errString(err)})
                return next(c)
            }

            c.Response().Header().Set("X-RateLimit-Limit", burst)
            if res[0] == 1 {
                return next(c)
            }
            secs := (res[1] + 999) / 1000
            c.Response().Header().Set("Retry-After", strconv.FormatInt(secs, 10))
            return c.JSON(http.StatusTooManyRequests, echo.Map{
                "error":       "rate limit exceeded",
                "retry_after": secs,
            })
        }
    }
}

// rateKey is prefix:holder:<id>:<METHOD route>.
func rateKey(prefix string, c echo.Context) string {
    return prefix + ":holder:" + holderKey(c) + ":" + c.Request().Method + " " + c.Path()
}

func errString(err error) string {
    if err == nil {
        return "unexpected script result"
    }
    return err.Error()
}
