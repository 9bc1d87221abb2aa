package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type Config struct {
	Env           string
	Port          int
	APIPrefix     string
	StorageDriver string
	// MemoryBatches seeds the memory driver, each entry "batchId:scholarId[:name]".
	MemoryBatches []string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Live     LiveConfig
	Audit    AuditConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
	MaxAge         time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// LiveConfig tunes the co-reading presence, sync and aggregation timings.
type LiveConfig struct {
	HeartbeatInterval   time.Duration
	StaleAfter          time.Duration
	ScholarPollInterval time.Duration
	PositionDebounce    time.Duration
	DailySessionLimit   int
	LimitTimezone       string
	RosterFetchTimeout  time.Duration
	PresenceTTL         time.Duration
}

// AuditConfig sizes the asynchronous audit writer.
type AuditConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(v.GetString("STORAGE_DRIVER")))
	if cfg.StorageDriver != StorageDriverMemory {
		cfg.StorageDriver = StorageDriverPostgres
	}
	cfg.MemoryBatches = splitAndTrim(v.GetString("MEMORY_BATCHES"))

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:      v.GetString("REDIS_HOST"),
		Port:      v.GetInt("REDIS_PORT"),
		Password:  v.GetString("REDIS_PASSWORD"),
		DB:        v.GetInt("REDIS_DB"),
		KeyPrefix: v.GetString("REDIS_KEY_PREFIX"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{
		AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS")),
		MaxAge:         parseDuration(v.GetString("CORS_MAX_AGE"), 10*time.Minute),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Live = LiveConfig{
		HeartbeatInterval:   parseDuration(v.GetString("LIVE_HEARTBEAT_INTERVAL"), 10*time.Second),
		StaleAfter:          parseDuration(v.GetString("LIVE_STALE_AFTER"), 30*time.Second),
		ScholarPollInterval: parseDuration(v.GetString("LIVE_SCHOLAR_POLL_INTERVAL"), 2*time.Second),
		PositionDebounce:    parseDuration(v.GetString("LIVE_POSITION_DEBOUNCE"), 500*time.Millisecond),
		DailySessionLimit:   v.GetInt("LIVE_DAILY_SESSION_LIMIT"),
		LimitTimezone:       v.GetString("LIVE_LIMIT_TIMEZONE"),
		RosterFetchTimeout:  parseDuration(v.GetString("LIVE_ROSTER_FETCH_TIMEOUT"), 1500*time.Millisecond),
		PresenceTTL:         parseDuration(v.GetString("LIVE_PRESENCE_TTL"), 24*time.Hour),
	}
	if cfg.Live.DailySessionLimit < 0 {
		cfg.Live.DailySessionLimit = 0
	}

	cfg.Audit = AuditConfig{
		Workers:    v.GetInt("AUDIT_WORKERS"),
		BufferSize: v.GetInt("AUDIT_BUFFER"),
		MaxRetries: v.GetInt("AUDIT_MAX_RETRIES"),
	}

	return cfg, nil
}

// Location resolves the timezone used to bucket daily session counts.
func (c LiveConfig) Location() *time.Location {
	if c.LimitTimezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.LimitTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("STORAGE_DRIVER", StorageDriverPostgres)
	v.SetDefault("MEMORY_BATCHES", "")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "tilawah_live")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_KEY_PREFIX", "live")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("CORS_MAX_AGE", "10m")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("LIVE_HEARTBEAT_INTERVAL", "10s")
	v.SetDefault("LIVE_STALE_AFTER", "30s")
	v.SetDefault("LIVE_SCHOLAR_POLL_INTERVAL", "2s")
	v.SetDefault("LIVE_POSITION_DEBOUNCE", "500ms")
	v.SetDefault("LIVE_DAILY_SESSION_LIMIT", 3)
	v.SetDefault("LIVE_LIMIT_TIMEZONE", "UTC")
	v.SetDefault("LIVE_ROSTER_FETCH_TIMEOUT", "1500ms")
	v.SetDefault("LIVE_PRESENCE_TTL", "24h")

	v.SetDefault("AUDIT_WORKERS", 1)
	v.SetDefault("AUDIT_BUFFER", 64)
	v.SetDefault("AUDIT_MAX_RETRIES", 3)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
