package config // package config loads application configuration from environment variables

import (
    "log"     // log is used to report configuration errors and halt execution
    "os"      // os provides access to environment variables
    "strings"

    "github.com/joho/godotenv"
)

// Store backends selectable through STORE_BACKEND.
const (
    BackendMySQL  = "mysql"
    BackendMemory = "memory"
)

// Config holds the core runtime configuration.  Each field corresponds to
// an environment variable.  Database fields are only required when the
// MySQL backend is selected.
type Config struct {
    Env          string // application environment (e.g. "dev", "prod")
    Port         string // HTTP port to listen on
    StoreBackend string // "mysql" (default) or "memory"
    DBUser       string // database username
    DBPass       string // database password (optional)
    DBHost       string // database host address
    DBPort       string // database port number
    DBName       string // database name
    DBMigrate    bool   // apply embedded migrations on startup
    JWTSecret    string // secret used to verify access tokens
}

// Load reads a .env file when present, then builds a Config from the
// environment.  Missing required variables cause the program to exit with a
// fatal log message.
func Load() Config {
    _ = godotenv.Load() // .env is optional; real env vars win
    cfg := Config{
        Env:          envStr("APP_ENV", "dev"),
        Port:         envStr("APP_PORT", "8080"),
        StoreBackend: strings.ToLower(envStr("STORE_BACKEND", BackendMySQL)),
        DBPass:       os.Getenv("DB_PASS"), // empty allowed
        DBMigrate:    envBool("DB_MIGRATE", true),
        JWTSecret:    must("JWT_SECRET"),
    }
    switch cfg.StoreBackend {
    case BackendMySQL:
        cfg.DBUser = must("DB_USER")
        cfg.DBHost = must("DB_HOST")
        cfg.DBPort = must("DB_PORT")
        cfg.DBName = must("DB_NAME")
    case BackendMemory:
    default:
        log.Fatalf("unknown STORE_BACKEND: %q", cfg.StoreBackend)
    }
    return cfg
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}
