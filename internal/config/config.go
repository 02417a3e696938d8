package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Server struct {
	Port              string `json:"port"`
	RequestTimeoutSec int    `json:"request_timeout_sec"`
}

type EODHD struct {
	APIToken             string `json:"api_token"`
	Endpoint             string `json:"endpoint"`
	LatestFromRealTime   bool   `json:"latest_from_realtime"`
	MaxRequestsPerMinute int    `json:"max_requests_per_minute"`
	Burst                int    `json:"burst"`
}

type Twitter struct {
	APIKey   string `json:"api_key"`
	Endpoint string `json:"endpoint"`
}

type Cache struct {
	Backend          string `json:"backend"` // "memory" or "redis"
	RedisAddr        string `json:"redis_addr"`
	RedisPassword    string `json:"redis_password"`
	RedisDB          int    `json:"redis_db"`
	MaxItems         int    `json:"max_items"`
	EntryTTLHours    int    `json:"entry_ttl_hours"`
	LatestTTLMinutes int    `json:"latest_ttl_minutes"`
	ProfileTTLHours  int    `json:"profile_ttl_hours"`
}

type Retry struct {
	MaxAttempts int   `json:"max_attempts"`
	DelaysMS    []int `json:"delays_ms"`
}

type Batch struct {
	MaxRequests    int `json:"max_requests"`
	MaxConcurrency int `json:"max_concurrency"`
}

type Config struct {
	Server  Server  `json:"server"`
	EODHD   EODHD   `json:"eodhd"`
	Twitter Twitter `json:"twitter"`
	Cache   Cache   `json:"cache"`
	Retry   Retry   `json:"retry"`
	Batch   Batch   `json:"batch"`
}

func Default() Config {
	return Config{
		Server: Server{Port: "8000", RequestTimeoutSec: 10},
		EODHD: EODHD{
			MaxRequestsPerMinute: 60,
			Burst:                5,
		},
		Cache: Cache{
			Backend:          "memory",
			MaxItems:         10000,
			EntryTTLHours:    336,
			LatestTTLMinutes: 240,
			ProfileTTLHours:  2160,
		},
		Retry: Retry{MaxAttempts: 3, DelaysMS: []int{500, 1000, 2000}},
		Batch: Batch{MaxRequests: 1000, MaxConcurrency: 4},
	}
}

// Load reads JSON config from path. If path is empty or the file does not
// exist, it returns defaults. Environment variables override select fields
// so secrets stay out of the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	envStr("PORT", &cfg.Server.Port)
	envInt("REQUEST_TIMEOUT_SEC", &cfg.Server.RequestTimeoutSec)

	envStr("EODHD_API_TOKEN", &cfg.EODHD.APIToken)
	envStr("EODHD_ENDPOINT", &cfg.EODHD.Endpoint)
	envBool("EODHD_LATEST_FROM_REALTIME", &cfg.EODHD.LatestFromRealTime)
	envInt("EODHD_MAX_RPM", &cfg.EODHD.MaxRequestsPerMinute)
	envInt("EODHD_BURST", &cfg.EODHD.Burst)

	envStr("TWITTER_API_KEY", &cfg.Twitter.APIKey)
	envStr("TWITTER_ENDPOINT", &cfg.Twitter.Endpoint)

	envStr("CACHE_BACKEND", &cfg.Cache.Backend)
	envStr("REDIS_ADDR", &cfg.Cache.RedisAddr)
	envStr("REDIS_PASSWORD", &cfg.Cache.RedisPassword)
	envInt("REDIS_DB", &cfg.Cache.RedisDB)
	envInt("CACHE_MAX_ITEMS", &cfg.Cache.MaxItems)
	envInt("ENTRY_TTL_HOURS", &cfg.Cache.EntryTTLHours)
	envInt("LATEST_TTL_MINUTES", &cfg.Cache.LatestTTLMinutes)
	envInt("PROFILE_TTL_HOURS", &cfg.Cache.ProfileTTLHours)

	envInt("RETRY_MAX_ATTEMPTS", &cfg.Retry.MaxAttempts)
	envInt("BATCH_MAX_REQUESTS", &cfg.Batch.MaxRequests)
	envInt("BATCH_MAX_CONCURRENCY", &cfg.Batch.MaxConcurrency)
}

func envStr(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if x, err := strconv.Atoi(v); err == nil {
			*dst = x
		}
	}
}

func envBool(name string, dst *bool) {
	switch strings.ToLower(os.Getenv(name)) {
	case "1", "true", "yes", "y":
		*dst = true
	case "0", "false", "no", "n":
		*dst = false
	}
}
