package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the server needs from the environment so main
// stays lean. Zero values mean "not configured" and select in-memory or
// disabled implementations.
type Config struct {
	Addr          string
	JWTSigningKey string
	JWTIssuer     string

	// Bootstrap quorum. Used only when the durable store holds no owner set
	// yet; afterwards the governance path is the single mutation route.
	Owners           []string
	MinConfirmations int

	PostgresURL string
	Redis       RedisConfig
	Kafka       KafkaConfig

	// ExecTimeout bounds a single webhook invocation.
	ExecTimeout time.Duration
}

// RedisConfig holds connection settings for the transaction read cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CacheTTL     time.Duration
}

// KafkaConfig holds producer settings for the notification stream.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	cfg := Config{
		Addr:             getenv("QUORUMGATE_ADDR", ":8080"),
		JWTSigningKey:    getenv("QUORUMGATE_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:        getenv("QUORUMGATE_JWT_ISSUER", "quorumgate"),
		Owners:           splitList(os.Getenv("QUORUMGATE_OWNERS")),
		MinConfirmations: getenvInt("QUORUMGATE_MIN_CONFIRMATIONS", 1),
		PostgresURL:      os.Getenv("QUORUMGATE_POSTGRES_URL"),
		ExecTimeout:      getenvDuration("QUORUMGATE_EXEC_TIMEOUT", 10*time.Second),
	}

	cfg.Redis = RedisConfig{
		URL:          os.Getenv("QUORUMGATE_REDIS_URL"),
		PoolSize:     getenvInt("QUORUMGATE_REDIS_POOL_SIZE", 10),
		MinIdleConns: getenvInt("QUORUMGATE_REDIS_MIN_IDLE", 2),
		DialTimeout:  getenvDuration("QUORUMGATE_REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  getenvDuration("QUORUMGATE_REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: getenvDuration("QUORUMGATE_REDIS_WRITE_TIMEOUT", 3*time.Second),
		CacheTTL:     getenvDuration("QUORUMGATE_REDIS_CACHE_TTL", time.Minute),
	}

	cfg.Kafka = KafkaConfig{
		Brokers: splitList(os.Getenv("QUORUMGATE_KAFKA_BROKERS")),
		Topic:   getenv("QUORUMGATE_KAFKA_TOPIC", "quorumgate.events"),
	}

	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
