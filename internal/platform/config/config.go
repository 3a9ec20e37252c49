package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full process configuration, read once at startup.
type Config struct {
	Server    Server
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Votes     VoteConfig
	Catalog   CatalogConfig
	RateLimit RateLimitConfig
	Kafka     KafkaConfig
	Backup    BackupConfig
	Log       LogConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	CORSOrigins     []string
}

// DatabaseConfig selects the SQL dialect and transaction policy.
type DatabaseConfig struct {
	Driver        string
	URL           string
	MaxOpenConns  int
	TxTimeout     time.Duration
	TxMaxAttempts int
}

// RedisConfig is optional; an empty URL keeps rate limiting in memory.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// AuthConfig holds Telegram and token settings.
type AuthConfig struct {
	BotToken           string
	TelegramMaxAuthAge time.Duration
	JWTSigningKey      string
	JWTIssuer          string
	JWTTTL             time.Duration
}

// VoteConfig tunes the vote engine and ranking cache.
type VoteConfig struct {
	MaxBulkEntities int
	RankingCacheTTL time.Duration
	HiddenJamLimit  int
}

// CatalogConfig points at the entity datasets. Empty paths use the embedded set.
type CatalogConfig struct {
	CitiesFile   string
	AirportsFile string
}

// RateLimitConfig sets per-IP request budgets per minute.
type RateLimitConfig struct {
	Disabled    bool
	ReadPerMin  int
	WritePerMin int
	AuthPerMin  int
}

// KafkaConfig enables the Kafka vote-event sink when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// BackupConfig selects where cmd/backup writes table exports. A non-empty
// S3Bucket wins over Dir.
type BackupConfig struct {
	Dir         string
	Prefix      string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3PathStyle bool
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string
	Format string
}

const devJWTSigningKey = "dev-secret-key-change-in-production"

// FromEnv builds the configuration from environment variables, after loading
// an optional .env file from the working directory.
func FromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	r := &reader{}

	cfg := Config{
		Server: Server{
			Addr:            r.str("CITYRATER_ADDR", ":8080"),
			ShutdownTimeout: r.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestTimeout:  r.duration("REQUEST_TIMEOUT", 30*time.Second),
			CORSOrigins:     r.list("CORS_ORIGINS"),
		},
		Database: DatabaseConfig{
			Driver:        r.str("DATABASE_DRIVER", "sqlite"),
			URL:           r.str("DATABASE_URL", "file:cityrater.db"),
			MaxOpenConns:  r.int("DATABASE_MAX_OPEN_CONNS", 10),
			TxTimeout:     r.duration("TX_TIMEOUT", 5*time.Second),
			TxMaxAttempts: r.int("TX_MAX_ATTEMPTS", 3),
		},
		Redis: RedisConfig{
			URL:          r.str("REDIS_URL", ""),
			PoolSize:     r.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: r.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  r.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  r.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: r.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Auth: AuthConfig{
			BotToken:           r.str("BOT_TOKEN", ""),
			TelegramMaxAuthAge: r.duration("TELEGRAM_MAX_AUTH_AGE", 24*time.Hour),
			JWTSigningKey:      r.str("JWT_SIGNING_KEY", devJWTSigningKey),
			JWTIssuer:          r.str("JWT_ISSUER", "cityrater"),
			JWTTTL:             r.duration("JWT_TTL", 30*24*time.Hour),
		},
		Votes: VoteConfig{
			MaxBulkEntities: r.int("MAX_BULK_ENTITIES", 500),
			RankingCacheTTL: r.duration("RANKING_CACHE_TTL", 30*time.Second),
			HiddenJamLimit:  r.int("HIDDEN_JAM_LIMIT", 0),
		},
		Catalog: CatalogConfig{
			CitiesFile:   r.str("CITIES_FILE", ""),
			AirportsFile: r.str("AIRPORTS_FILE", ""),
		},
		RateLimit: RateLimitConfig{
			Disabled:    r.bool("RATE_LIMIT_DISABLED", false),
			ReadPerMin:  r.int("RATE_LIMIT_READ_PER_MIN", 300),
			WritePerMin: r.int("RATE_LIMIT_WRITE_PER_MIN", 120),
			AuthPerMin:  r.int("RATE_LIMIT_AUTH_PER_MIN", 20),
		},
		Kafka: KafkaConfig{
			Brokers: r.list("KAFKA_BROKERS"),
			Topic:   r.str("KAFKA_TOPIC", "cityrater.votes"),
		},
		Backup: BackupConfig{
			Dir:         r.str("BACKUP_DIR", "vote_backups"),
			Prefix:      r.str("BACKUP_PREFIX", "votes"),
			S3Bucket:    r.str("BACKUP_S3_BUCKET", ""),
			S3Region:    r.str("BACKUP_S3_REGION", "us-east-1"),
			S3Endpoint:  r.str("BACKUP_S3_ENDPOINT", ""),
			S3PathStyle: r.bool("BACKUP_S3_PATH_STYLE", false),
		},
		Log: LogConfig{
			Level:  r.str("LOG_LEVEL", "info"),
			Format: r.str("LOG_FORMAT", "json"),
		},
	}
	if len(r.errs) > 0 {
		return Config{}, errors.Join(r.errs...)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite, got %q", c.Database.Driver))
	}
	if c.Database.TxMaxAttempts < 1 {
		errs = append(errs, errors.New("TX_MAX_ATTEMPTS must be at least 1"))
	}
	if c.Votes.MaxBulkEntities < 1 {
		errs = append(errs, errors.New("MAX_BULK_ENTITIES must be at least 1"))
	}
	if c.Votes.RankingCacheTTL <= 0 {
		errs = append(errs, errors.New("RANKING_CACHE_TTL must be positive"))
	}
	return errors.Join(errs...)
}

// UsingDevSigningKey reports whether JWT_SIGNING_KEY was left at its default.
func (c Config) UsingDevSigningKey() bool {
	return c.Auth.JWTSigningKey == devJWTSigningKey
}

type reader struct {
	errs []error
}

func (r *reader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (r *reader) int(key string, def int) int {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (r *reader) bool(key string, def bool) bool {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (r *reader) list(key string) []string {
	v := r.str(key, "")
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
