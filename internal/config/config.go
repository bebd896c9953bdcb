// Package config gathers reader settings from defaults, a .env file, the
// environment and command line flags, in that order of precedence.
package config

import (
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "HLSREAD_"

type Config struct {
	// RootPath is the directory bare paths are resolved against; empty means
	// the working directory.
	RootPath           string
	Concurrency        int
	PlaylistOnly       bool
	RawResponse        bool
	MasterPollInterval time.Duration
	OutputBuffer       int
	CacheBytes         int64
	CacheTTL           time.Duration
	HTTPTimeout        time.Duration
	UserAgent          string
	Referer            string
	DumpHTTP           bool
	LogLevel           string
	MetricsAddr        string
}

func Default() Config {
	return Config{
		Concurrency:        6,
		MasterPollInterval: 10 * time.Second,
		OutputBuffer:       64,
		CacheBytes:         64 * 1024 * 1024,
		CacheTTL:           time.Hour,
		UserAgent:          "hlsread/1.0",
		LogLevel:           "info",
	}
}

// Load reads .env files into the environment. A missing file is not an
// error for the default path.
func Load(paths ...string) error {
	if len(paths) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// FromEnv applies HLSREAD_* variables on top of the defaults.
func FromEnv() Config {
	c := Default()
	c.RootPath = GetEnv(envPrefix+"ROOT_PATH", c.RootPath)
	c.Concurrency = GetEnvInt(envPrefix+"CONCURRENCY", c.Concurrency)
	c.PlaylistOnly = GetEnvBool(envPrefix+"PLAYLIST_ONLY", c.PlaylistOnly)
	c.RawResponse = GetEnvBool(envPrefix+"RAW_RESPONSE", c.RawResponse)
	c.MasterPollInterval = GetEnvDuration(envPrefix+"MASTER_POLL_INTERVAL", c.MasterPollInterval)
	c.OutputBuffer = GetEnvInt(envPrefix+"OUTPUT_BUFFER", c.OutputBuffer)
	c.CacheBytes = int64(GetEnvInt(envPrefix+"CACHE_BYTES", int(c.CacheBytes)))
	c.CacheTTL = GetEnvDuration(envPrefix+"CACHE_TTL", c.CacheTTL)
	c.HTTPTimeout = GetEnvDuration(envPrefix+"HTTP_TIMEOUT", c.HTTPTimeout)
	c.UserAgent = GetEnv(envPrefix+"USER_AGENT", c.UserAgent)
	c.Referer = GetEnv(envPrefix+"REFERER", c.Referer)
	c.DumpHTTP = GetEnvBool(envPrefix+"DUMP_HTTP", c.DumpHTTP)
	c.LogLevel = GetEnv(envPrefix+"LOG_LEVEL", c.LogLevel)
	c.MetricsAddr = GetEnv(envPrefix+"METRICS_ADDR", c.MetricsAddr)
	return c
}

// RegisterFlags binds c's fields to fs, using the current values as defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.RootPath, "root", c.RootPath, "directory bare paths are resolved against")
	fs.IntVar(&c.Concurrency, "concurrency", c.Concurrency, "max simultaneous fetches")
	fs.BoolVar(&c.PlaylistOnly, "playlist-only", c.PlaylistOnly, "only read playlists, never fetch segments")
	fs.BoolVar(&c.RawResponse, "raw", c.RawResponse, "deliver segment bodies as streams instead of buffering")
	fs.DurationVar(&c.MasterPollInterval, "master-poll", c.MasterPollInterval, "master playlist reload interval")
	fs.IntVar(&c.OutputBuffer, "output-buffer", c.OutputBuffer, "items buffered before the reader blocks")
	fs.Int64Var(&c.CacheBytes, "cache-bytes", c.CacheBytes, "content cache size")
	fs.DurationVar(&c.CacheTTL, "cache-ttl", c.CacheTTL, "content cache entry lifetime")
	fs.DurationVar(&c.HTTPTimeout, "http-timeout", c.HTTPTimeout, "per request timeout, 0 for none")
	fs.StringVar(&c.UserAgent, "user-agent", c.UserAgent, "User-Agent header")
	fs.StringVar(&c.Referer, "referer", c.Referer, "Referer header")
	fs.BoolVar(&c.DumpHTTP, "dump-http", c.DumpHTTP, "dumps http headers")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "trace, debug, info, warn or error")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "serve prometheus metrics on this address")
}

// GetEnv returns the value of key, or fallback if unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

func GetEnvBool(key string, fallback bool) bool {
	if s := os.Getenv(key); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return fallback
}

func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return fallback
}
