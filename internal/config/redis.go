package config

import (
    "context"
    "crypto/tls"
    "os"
    "strconv"
    "strings"
    "time"

    "github.com/redis/go-redis/v9"
)

// NewRedisClient builds a Redis client for rate limiting, the listing cache
// and the sweep election.  Supported variables:
//   REDIS_URL – redis:// or rediss:// URL; takes precedence over the rest
//   REDIS_HOST and REDIS_PORT, or REDIS_ADDR (host:port)
//   REDIS_PASSWORD, REDIS_DB, REDIS_TLS ("true" or "1")
// It returns nil when the server cannot be reached; callers then run
// without caching, rate limiting or sweep election.
func NewRedisClient() *redis.Client {
    opts, err := redisOptions()
    if err != nil {
        return nil
    }
    client := redis.NewClient(opts)
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    if err := client.Ping(ctx).Err(); err != nil {
        _ = client.Close()
        return nil
    }
    return client
}

func redisOptions() (*redis.Options, error) {
    if u := os.Getenv("REDIS_URL"); u != "" {
        return redis.ParseURL(u)
    }
    addr := os.Getenv("REDIS_ADDR")
    if host, port := os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT"); host != "" && port != "" {
        addr = host + ":" + port
    }
    if addr == "" {
        addr = "localhost:6379"
    }
    dbNum := 0
    if n, err := strconv.Atoi(os.Getenv("REDIS_DB")); err == nil {
        dbNum = n
    }
    var tlsConf *tls.Config
    if v := os.Getenv("REDIS_TLS"); strings.EqualFold(v, "true") || v == "1" {
        tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
    }
    return &redis.Options{
        Addr:      addr,
        Password:  os.Getenv("REDIS_PASSWORD"),
        DB:        dbNum,
        TLSConfig: tlsConf,
    }, nil
}
