// Package config loads daemon configuration from the environment, the
// way services/gateway/config did for the upstream gateway: env vars
// plus an optional .env file, with typed fallbacks for every field.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable the daemon's components read at startup.
type Config struct {
	Env             string
	GracefulTimeout time.Duration

	// Log Tailer (C2)
	WatchRoots     []string
	DebounceWindow time.Duration
	IngestChanCap  int

	// Persistence (C5)
	DataDir         string
	DBPath          string
	BatchSize       int
	FlushInterval   time.Duration
	RetentionDays   int
	RollupKeepDays  int
	VacuumThreshold int

	// Query Cache (C6)
	StatsCacheTTL time.Duration

	// Knowledge Store (C7)
	EmbeddingCacheSize int
	SearchTimeout      time.Duration

	// Control Plane (C9)
	Addr              string
	APIKeyHeader      string
	APIToken          string
	RateLimitEnabled  bool
	RateLimitRPM      int
	RateLimitBurst    int
	RequestTimeout    time.Duration
	MaxBodyBytes      int64
	MaxSSESubscribers int
	SSEInterval       time.Duration

	// Settings Emitter (C10)
	TempDirOverride  string
	UserNameOverride string

	// Supervisor (C11)
	MaxRestartsPerMinute int

	LogLevel string
}

// Load reads configuration from the environment and an optional .env
// file in the current directory.
func Load() *Config {
	_ = godotenv.Load()

	gracefulSec := getEnvInt("ORCHD_GRACEFUL_TIMEOUT_SEC", 15)

	dataDir := getEnv("ORCHD_DATA_DIR", defaultDataDir())

	return &Config{
		Env:             getEnv("ENV", "development"),
		GracefulTimeout: time.Duration(gracefulSec) * time.Second,

		WatchRoots:     splitList(getEnv("ORCHD_WATCH_ROOTS", defaultWatchRoot())),
		DebounceWindow: time.Duration(getEnvInt("ORCHD_DEBOUNCE_MS", 100)) * time.Millisecond,
		IngestChanCap:  getEnvInt("ORCHD_INGEST_CHAN_CAP", 1024),

		DataDir:         dataDir,
		DBPath:          getEnv("ORCHD_DB_PATH", dataDir+"/orchestrator.db"),
		BatchSize:       getEnvInt("ORCHD_BATCH_SIZE", 100),
		FlushInterval:   time.Duration(getEnvInt("ORCHD_FLUSH_INTERVAL_SEC", 5)) * time.Second,
		RetentionDays:   getEnvInt("ORCHD_RETENTION_DAYS", 30),
		RollupKeepDays:  getEnvInt("ORCHD_ROLLUP_KEEP_DAYS", 90),
		VacuumThreshold: getEnvInt("ORCHD_VACUUM_THRESHOLD", 5000),

		StatsCacheTTL: time.Duration(getEnvInt("ORCHD_STATS_CACHE_TTL_MS", 1000)) * time.Millisecond,

		EmbeddingCacheSize: getEnvInt("ORCHD_EMBEDDING_CACHE_SIZE", 1024),
		SearchTimeout:      time.Duration(getEnvInt("ORCHD_EMBEDDING_TIMEOUT_SEC", 5)) * time.Second,

		Addr:              getEnv("ORCHD_ADDR", "127.0.0.1:8765"),
		APIKeyHeader:      getEnv("ORCHD_API_KEY_HEADER", "Authorization"),
		APIToken:          getEnv("ORCHD_API_TOKEN", ""),
		RateLimitEnabled:  getEnvBool("ORCHD_RATE_LIMIT_ENABLED", true),
		RateLimitRPM:      getEnvInt("ORCHD_RATE_LIMIT_RPM", 100),
		RateLimitBurst:    getEnvInt("ORCHD_RATE_LIMIT_BURST", 10),
		RequestTimeout:    time.Duration(getEnvInt("ORCHD_REQUEST_TIMEOUT_SEC", 30)) * time.Second,
		MaxBodyBytes:      int64(getEnvInt("ORCHD_MAX_BODY_BYTES", 10*1024*1024)),
		MaxSSESubscribers: getEnvInt("ORCHD_MAX_SSE_SUBSCRIBERS", 64),
		SSEInterval:       time.Duration(getEnvInt("ORCHD_SSE_INTERVAL_SEC", 5)) * time.Second,

		TempDirOverride:  getEnv("ORCHD_TEMP_DIR", ""),
		UserNameOverride: getEnv("ORCHD_USER_OVERRIDE", ""),

		MaxRestartsPerMinute: getEnvInt("ORCHD_MAX_RESTARTS_PER_MIN", 5),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

func (c *Config) IsDevelopment() bool { return c.Env == "development" }

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".orchestratord"
	}
	return home + "/.orchestratord"
}

func defaultWatchRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home + "/.claude/projects"
}

func splitList(v string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' {
			if i > start {
				out = append(out, v[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
