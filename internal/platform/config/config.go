// Package config loads engine configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full runtime configuration.
type Config struct {
	Server   Server
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	KMS      KMSConfig
	Keystore KeystoreConfig
	Blob     BlobConfig
	Audit    AuditConfig
	Sweep    SweepConfig
	Logging  LoggingConfig
	Tracing  TracingConfig
	Orgs     OrgsConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	JWTSigningKey   string
	JWTIssuer       string
	AdminToken      string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig selects Postgres persistence. An empty URL selects the
// in-memory stores.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// RedisConfig backs the re-wrap dispatcher's idempotency keys. An empty URL
// selects the in-memory deduper.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	DedupeTTL    time.Duration
	ClaimLease   time.Duration
}

// KafkaConfig enables the ledger mirror and the grant event consumer. No
// brokers means the no-op ledger client and no consumer.
type KafkaConfig struct {
	Brokers           []string
	TransactionsTopic string
	EventsTopic       string
	ConsumerGroup     string
	EchoEvents        bool
	CreateTopics      bool
	ProduceTimeout    time.Duration
}

// KMSConfig enables the remote wrapping backend. An empty URL means local
// wrapping only.
type KMSConfig struct {
	URL              string
	Token            string
	Timeout          time.Duration
	FailureThreshold int
	Cooldown         time.Duration
}

// KeystoreConfig locates the local backend's private keys. An empty Dir keeps
// keys in memory.
type KeystoreConfig struct {
	Dir          string
	MasterSecret string
	RSABits      int
}

// BlobConfig selects MinIO object storage. An empty Endpoint selects the
// in-memory blob store.
type BlobConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type AuditConfig struct {
	BufferSize int
}

type SweepConfig struct {
	Interval time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

// TracingConfig enables OTLP span export. An empty endpoint keeps the
// no-op tracer provider.
type TracingConfig struct {
	Endpoint    string
	Protocol    string
	ServiceName string
	Sampler     string
	SamplerArg  float64
}

// OrgsConfig controls the organization directory seed.
type OrgsConfig struct {
	SeedDefaults bool
}

const devSecret = "dev-secret-key-change-in-production"

// Load reads .env (if present) and then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	var errs []error
	r := reader{errs: &errs}

	cfg := Config{
		Server: Server{
			Addr:            r.text("MEDBLOCK_ADDR", ":8080"),
			JWTSigningKey:   r.text("JWT_SIGNING_KEY", devSecret),
			JWTIssuer:       r.text("JWT_ISSUER", ""),
			AdminToken:      r.text("ADMIN_API_TOKEN", ""),
			RequestTimeout:  r.duration("REQUEST_TIMEOUT", 30*time.Second),
			ShutdownTimeout: r.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			URL:             r.text("DATABASE_URL", ""),
			MaxOpenConns:    r.integer("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    r.integer("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: r.duration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
			AutoMigrate:     r.boolean("DATABASE_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			URL:          r.text("REDIS_URL", ""),
			PoolSize:     r.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: r.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  r.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  r.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: r.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			DedupeTTL:    r.duration("REWRAP_DEDUPE_TTL", 7*24*time.Hour),
			ClaimLease:   r.duration("REWRAP_CLAIM_LEASE", 2*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:           r.list("KAFKA_BROKERS"),
			TransactionsTopic: r.text("LEDGER_TRANSACTIONS_TOPIC", "medblock.ledger.transactions"),
			EventsTopic:       r.text("LEDGER_EVENTS_TOPIC", "medblock.ledger.events"),
			ConsumerGroup:     r.text("REWRAP_CONSUMER_GROUP", "medblock-rewrap"),
			EchoEvents:        r.boolean("LEDGER_ECHO_EVENTS", true),
			CreateTopics:      r.boolean("KAFKA_CREATE_TOPICS", true),
			ProduceTimeout:    r.duration("LEDGER_PRODUCE_TIMEOUT", 5*time.Second),
		},
		KMS: KMSConfig{
			URL:              r.text("KMS_URL", ""),
			Token:            r.text("KMS_TOKEN", ""),
			Timeout:          r.duration("KMS_TIMEOUT", 5*time.Second),
			FailureThreshold: r.integer("KMS_FAILURE_THRESHOLD", 5),
			Cooldown:         r.duration("KMS_COOLDOWN", 30*time.Second),
		},
		Keystore: KeystoreConfig{
			Dir:          r.text("KEYSTORE_DIR", ""),
			MasterSecret: r.text("KEYSTORE_MASTER_SECRET", devSecret),
			RSABits:      r.integer("KEYSTORE_RSA_BITS", 2048),
		},
		Blob: BlobConfig{
			Endpoint:  r.text("MINIO_ENDPOINT", ""),
			AccessKey: r.text("MINIO_ACCESS_KEY", ""),
			SecretKey: r.text("MINIO_SECRET_KEY", ""),
			Bucket:    r.text("MINIO_BUCKET", "medblock-records"),
			UseSSL:    r.boolean("MINIO_USE_SSL", false),
		},
		Audit: AuditConfig{
			BufferSize: r.integer("AUDIT_BUFFER_SIZE", 1024),
		},
		Sweep: SweepConfig{
			Interval: r.duration("GRANT_SWEEP_INTERVAL", time.Minute),
		},
		Logging: LoggingConfig{
			Level:  r.text("LOG_LEVEL", "info"),
			Format: r.text("LOG_FORMAT", "json"),
		},
		Tracing: TracingConfig{
			Endpoint:    r.text("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Protocol:    r.text("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"),
			ServiceName: r.text("OTEL_SERVICE_NAME", "medblock"),
			Sampler:     r.text("OTEL_TRACES_SAMPLER", "parentbased_traceidratio"),
			SamplerArg:  r.number("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
		Orgs: OrgsConfig{
			SeedDefaults: r.boolean("ORG_SEED_DEFAULTS", true),
		},
	}

	if cfg.Keystore.RSABits < 2048 {
		errs = append(errs, fmt.Errorf("KEYSTORE_RSA_BITS must be at least 2048, got %d", cfg.Keystore.RSABits))
	}
	if cfg.Tracing.SamplerArg < 0 || cfg.Tracing.SamplerArg > 1 {
		errs = append(errs, fmt.Errorf("OTEL_TRACES_SAMPLER_ARG must be within [0, 1], got %g", cfg.Tracing.SamplerArg))
	}
	if cfg.Audit.BufferSize <= 0 {
		errs = append(errs, errors.New("AUDIT_BUFFER_SIZE must be positive"))
	}
	return cfg, errors.Join(errs...)
}

// UsesDevSecrets reports whether any secret still has its development value.
func (c Config) UsesDevSecrets() bool {
	return c.Server.JWTSigningKey == devSecret || c.Keystore.MasterSecret == devSecret
}

type reader struct {
	errs *[]error
}

func (r reader) text(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func (r reader) integer(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*r.errs = append(*r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (r reader) number(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*r.errs = append(*r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}

func (r reader) boolean(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*r.errs = append(*r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (r reader) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*r.errs = append(*r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (r reader) list(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
