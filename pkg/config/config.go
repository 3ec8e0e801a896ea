package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// RateLimitedSources are the sources that accept a <NAME>_RATE_* override.
var RateLimitedSources = []string{"bancor", "dydx", "zapper"}

// RateLimit is the pacing for one source. The three units are summed.
type RateLimit struct {
	PerSecond float64
	PerMinute float64
	PerHour   float64
	Jitter    float64
}

// Config holds the runtime configuration for the yield aggregator.
type Config struct {
	ServiceName string
	Env         string
	LogLevel    string
	Port        int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// Refresh loop
	RefreshInterval time.Duration
	CycleTimeout    time.Duration // 0 leaves a cycle unbounded

	// Fetch adapter and per-source pacing
	RequestTimeout time.Duration
	SourceRate     RateLimit
	SourceRates    map[string]RateLimit // only sources with an override

	// Record filtering
	MinAPY            float64
	DisallowedSymbols []string

	// Sources
	BancorBaseURL         string
	BancorMinLiquidityUSD float64
	DYDXBaseURL           string
	ZapperBaseURL         string
	ZapperAPIKey          string
	ZapperMinLiquidityUSD float64

	// Credentials
	SecretsBackend string // env | aws
	AWSRegion      string
	CacheTTL       time.Duration
	CleanupFreq    time.Duration

	// Optional sinks; an empty address disables the sink.
	RedisAddr       string
	RedisDB         int
	DatabaseURL     string
	NATSURL         string
	NATSStream      string
	RabbitMQURL     string
	RabbitMQQueue   string
	SnapshotSubject string
	SnapshotTTL     time.Duration

	PGMaxConns          int
	PGMinConns          int
	PGMaxConnLifetime   time.Duration
	PGMaxConnIdleTime   time.Duration
	PGHealthCheckPeriod time.Duration
}

// Load loads configuration from environment variables and optional .env file.
// Rate settings are parsed strictly; a malformed value is an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	sourceRate, err := loadSourceRate()
	if err != nil {
		return nil, err
	}
	sourceRates, err := loadSourceRates(sourceRate.Jitter)
	if err != nil {
		return nil, err
	}

	return &Config{
		ServiceName:      GetEnv("SERVICE_NAME", "yield-aggregator"),
		Env:              GetEnv("ENV", "dev"),
		LogLevel:         GetEnv("LOG_LEVEL", "info"),
		Port:             GetEnvInt("PORT", 7777),
		HTTPReadTimeout:  GetEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second),
		HTTPWriteTimeout: GetEnvDuration("HTTP_WRITE_TIMEOUT", 10*time.Second),
		HTTPIdleTimeout:  GetEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),

		RefreshInterval: GetEnvDuration("REFRESH_INTERVAL", time.Hour),
		CycleTimeout:    GetEnvDuration("CYCLE_TIMEOUT", 0),

		RequestTimeout: GetEnvDuration("REQUEST_TIMEOUT", 10*time.Second),
		SourceRate:     sourceRate,
		SourceRates:    sourceRates,

		MinAPY:            GetEnvFloat("MIN_APY", 0.01),
		DisallowedSymbols: GetEnvList("DISALLOWED_SYMBOLS", nil),

		BancorBaseURL:         GetEnv("BANCOR_BASE_URL", "https://api-v2.bancor.network/"),
		BancorMinLiquidityUSD: GetEnvFloat("BANCOR_MIN_LIQUIDITY_USD", 0),
		DYDXBaseURL:           GetEnv("DYDX_BASE_URL", "https://api.dydx.exchange/v1/"),
		ZapperBaseURL:         GetEnv("ZAPPER_BASE_URL", "https://api.zapper.fi/v1/"),
		ZapperAPIKey:          GetEnv("ZAPPER_API_KEY", ""),
		ZapperMinLiquidityUSD: GetEnvFloat("ZAPPER_MIN_LIQUIDITY_USD", 0),

		SecretsBackend: GetEnv("SECRETS_BACKEND", "env"),
		AWSRegion:      GetEnv("AWS_REGION", "us-east-2"),
		CacheTTL:       GetEnvDuration("CACHE_TTL", 24*time.Hour),
		CleanupFreq:    GetEnvDuration("CACHE_CLEANUP_FREQ", 10*time.Minute),

		RedisAddr:       GetEnv("REDIS_ADDR", ""),
		RedisDB:         GetEnvInt("REDIS_DB", 0),
		DatabaseURL:     GetEnv("DATABASE_URL", ""),
		NATSURL:         GetEnv("NATS_URL", ""),
		NATSStream:      GetEnv("NATS_STREAM", "YIELD_EVENTS"),
		RabbitMQURL:     GetEnv("RABBITMQ_URL", ""),
		RabbitMQQueue:   GetEnv("RABBITMQ_QUEUE", "yield.snapshot.refreshed"),
		SnapshotSubject: GetEnv("SNAPSHOT_SUBJECT", "evt.yield.snapshot.refreshed.v1"),
		SnapshotTTL:     GetEnvDuration("SNAPSHOT_TTL", 48*time.Hour),

		PGMaxConns:          GetEnvInt("PG_MAX_CONNS", 5),
		PGMinConns:          GetEnvInt("PG_MIN_CONNS", 1),
		PGMaxConnLifetime:   GetEnvDuration("PG_MAX_CONN_LIFETIME", 30*time.Minute),
		PGMaxConnIdleTime:   GetEnvDuration("PG_MAX_CONN_IDLE_TIME", 5*time.Minute),
		PGHealthCheckPeriod: GetEnvDuration("PG_HEALTH_CHECK_PERIOD", 1*time.Minute),
	}, nil
}

// loadSourceRate reads SOURCE_RATE_*. With no unit set the default is 1/s.
func loadSourceRate() (RateLimit, error) {
	rl, set, err := loadRateLimit("SOURCE_RATE")
	if err != nil {
		return RateLimit{}, err
	}
	if !set {
		rl.PerSecond = 1
	}
	return rl, nil
}

// loadSourceRates reads <NAME>_RATE_* for every rate-limited source. A source
// gets an entry only when at least one of its units is set; its jitter
// defaults to the global one.
func loadSourceRates(defaultJitter float64) (map[string]RateLimit, error) {
	out := make(map[string]RateLimit)
	for _, name := range RateLimitedSources {
		prefix := strings.ToUpper(name) + "_RATE"
		rl, set, err := loadRateLimit(prefix)
		if err != nil {
			return nil, err
		}
		if !set {
			continue
		}
		if _, ok, _ := LookupEnvFloat(prefix + "_JITTER"); !ok {
			rl.Jitter = defaultJitter
		}
		out[name] = rl
	}
	return out, nil
}

// loadRateLimit reads <prefix>_PER_SECOND|_PER_MINUTE|_PER_HOUR|_JITTER. set
// reports whether any of the three units was present.
func loadRateLimit(prefix string) (rl RateLimit, set bool, err error) {
	units := []struct {
		suffix string
		dst    *float64
	}{
		{"_PER_SECOND", &rl.PerSecond},
		{"_PER_MINUTE", &rl.PerMinute},
		{"_PER_HOUR", &rl.PerHour},
	}
	for _, u := range units {
		v, ok, err := LookupEnvFloat(prefix + u.suffix)
		if err != nil {
			return RateLimit{}, false, err
		}
		if ok {
			*u.dst = v
			set = true
		}
	}
	if rl.Jitter, _, err = LookupEnvFloat(prefix + "_JITTER"); err != nil {
		return RateLimit{}, false, err
	}
	if rl.Jitter < 0 {
		return RateLimit{}, false, fmt.Errorf("%w: %s_JITTER must not be negative", ErrInvalidConfig, prefix)
	}
	return rl, set, nil
}
