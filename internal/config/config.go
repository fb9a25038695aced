package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server      ServerConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Database    DatabaseConfig
	Reservation ReservationConfig
	Auth        AuthConfig
}

type ServerConfig struct {
	Port           string
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
	Topics  TopicConfig
	Enabled bool
}

type TopicConfig struct {
	ReservationEvents string
	OrderEvents       string
	PaymentSucceeded  string
	PaymentFailed     string
	PaymentConflicts  string
}

type DatabaseConfig struct {
	DSN           string
	MaxOpenConns  int
	MaxIdleConns  int
	MaxLifetime   time.Duration
	MigrationsDir string
	AutoMigrate   bool
}

type ReservationConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
	MaxAttempts   int
	BonusTiers    []BonusTier
}

type AuthConfig struct {
	JWTSecret   string
	OIDCIssuer  string
	QRSecretKey string
}

// BonusTier grants Bonus free tickets when a purchase reaches Threshold.
type BonusTier struct {
	Threshold int
	Bonus     int
}

const defaultBonusTiers = "10:1,15:2,20:3,50:5"

func Load() *Config {
	tiers, err := ParseBonusTiers(getEnv("BONUS_TIERS", defaultBonusTiers))
	if err != nil {
		tiers, _ = ParseBonusTiers(defaultBonusTiers)
	}

	return &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", ":8084"),
			AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
			IdleTimeout:    60 * time.Second,
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "raffle"),
		},
		Database: DatabaseConfig{
			DSN:           getEnv("POSTGRES_DSN", ""),
			MaxOpenConns:  getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:   time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			MigrationsDir: getEnv("MIGRATIONS_DIR", "./migrations"),
			AutoMigrate:   getEnvBool("AUTO_MIGRATE", true),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			GroupID: getEnv("KAFKA_GROUP_ID", "raffle-service"),
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				ReservationEvents: getEnv("KAFKA_TOPIC_RESERVATIONS", "raffle.reservations"),
				OrderEvents:       getEnv("KAFKA_TOPIC_ORDERS", "raffle.orders"),
				PaymentSucceeded:  getEnv("KAFKA_TOPIC_PAYMENT_SUCCEEDED", "raffle.payment.succeeded"),
				PaymentFailed:     getEnv("KAFKA_TOPIC_PAYMENT_FAILED", "raffle.payment.failed"),
				PaymentConflicts:  getEnv("KAFKA_TOPIC_PAYMENT_CONFLICTS", "raffle.payment.conflicts"),
			},
		},
		Reservation: ReservationConfig{
			TTL:           getEnvDuration("RESERVATION_TTL", 15*time.Minute),
			SweepInterval: getEnvDuration("SWEEP_INTERVAL", 30*time.Second),
			MaxAttempts:   getEnvInt("ALLOCATION_MAX_ATTEMPTS", 5),
			BonusTiers:    tiers,
		},
		Auth: AuthConfig{
			JWTSecret:   getEnv("JWT_SECRET", ""),
			OIDCIssuer:  getEnv("OIDC_ISSUER", ""),
			QRSecretKey: getEnv("QR_SECRET_KEY", ""),
		},
	}
}

// ParseBonusTiers reads "threshold:bonus" pairs separated by commas and
// returns them sorted by ascending threshold.
func ParseBonusTiers(raw string) ([]BonusTier, error) {
	tiers := []BonusTier{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pieces := strings.SplitN(part, ":", 2)
		if len(pieces) != 2 {
			return nil, fmt.Errorf("bonus tier %q: expected threshold:bonus", part)
		}
		threshold, err := strconv.Atoi(strings.TrimSpace(pieces[0]))
		if err != nil {
			return nil, fmt.Errorf("bonus tier %q: invalid threshold: %w", part, err)
		}
		bonus, err := strconv.Atoi(strings.TrimSpace(pieces[1]))
		if err != nil {
			return nil, fmt.Errorf("bonus tier %q: invalid bonus: %w", part, err)
		}
		if threshold <= 0 || bonus < 0 {
			return nil, fmt.Errorf("bonus tier %q: threshold must be positive and bonus non-negative", part)
		}
		tiers = append(tiers, BonusTier{Threshold: threshold, Bonus: bonus})
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Threshold < tiers[j].Threshold })
	return tiers, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("90s", "15m").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

// All lists every topic the service produces to or consumes from.
func (t TopicConfig) All() []string {
	return []string{t.ReservationEvents, t.OrderEvents, t.PaymentSucceeded, t.PaymentFailed, t.PaymentConflicts}
}
