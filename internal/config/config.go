package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/trogers1052/portfolio-ledger/internal/store"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Kafka     KafkaConfig
	Redis     RedisConfig
	Quotes    QuotesConfig
	Auth      AuthConfig
	Portfolio PortfolioConfig
	Log       LogConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string
	Host            string
	ShutdownTimeout time.Duration
}

// Addr renders the listen address in host:port form
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	Migrate        bool
	MigrationsPath string
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	EventsTopic  string
	TradesTopic  string
	GroupID      string
	DefaultOwner string
}

// RedisConfig holds cache configuration. An empty Addr disables Redis.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	QuoteTTL    time.Duration
	HoldingsTTL time.Duration
}

// QuotesConfig holds market data provider configuration
type QuotesConfig struct {
	YahooBaseURL        string
	AlphaVantageBaseURL string
	AlphaVantageAPIKey  string
	AlphaVantagePerMin  int
	Timeout             time.Duration
	MaxRetries          uint
	Concurrency         int
	RefreshInterval     time.Duration
	HistoryRetention    time.Duration
}

// AuthConfig holds request identity configuration
type AuthConfig struct {
	JWTSecret string
}

// PortfolioConfig holds market conventions
type PortfolioConfig struct {
	SymbolSuffix   string
	Currency       string
	FallbackPolicy store.Policy
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	var p parser

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ShutdownTimeout: p.getDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", "postgres"),
			DBName:         getEnv("DB_NAME", "portfolio"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			Migrate:        p.getBool("DB_MIGRATE", true),
			MigrationsPath: getEnv("DB_MIGRATIONS_PATH", "db/migrations"),
		},
		Kafka: KafkaConfig{
			Enabled:      p.getBool("KAFKA_ENABLED", false),
			Brokers:      splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			EventsTopic:  getEnv("KAFKA_EVENTS_TOPIC", "portfolio-events"),
			TradesTopic:  getEnv("KAFKA_TRADES_TOPIC", "trading.orders"),
			GroupID:      getEnv("KAFKA_GROUP_ID", "portfolio-ledger"),
			DefaultOwner: getEnv("KAFKA_DEFAULT_OWNER", ""),
		},
		Redis: RedisConfig{
			Addr:        getEnv("REDIS_ADDR", ""),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          p.getInt("REDIS_DB", 0),
			QuoteTTL:    p.getDuration("REDIS_QUOTE_TTL", 30*time.Second),
			HoldingsTTL: p.getDuration("REDIS_HOLDINGS_TTL", 24*time.Hour),
		},
		Quotes: QuotesConfig{
			YahooBaseURL:        getEnv("YAHOO_BASE_URL", ""),
			AlphaVantageBaseURL: getEnv("ALPHAVANTAGE_BASE_URL", ""),
			AlphaVantageAPIKey:  getEnv("ALPHAVANTAGE_API_KEY", ""),
			AlphaVantagePerMin:  p.getInt("ALPHAVANTAGE_REQUESTS_PER_MINUTE", 5),
			Timeout:             p.getDuration("QUOTES_TIMEOUT", 10*time.Second),
			MaxRetries:          uint(p.getInt("QUOTES_MAX_RETRIES", 3)),
			Concurrency:         p.getInt("QUOTES_CONCURRENCY", 4),
			RefreshInterval:     p.getDuration("QUOTES_REFRESH_INTERVAL", 30*time.Second),
			HistoryRetention:    p.getDuration("PRICE_HISTORY_RETENTION", 0),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Portfolio: PortfolioConfig{
			SymbolSuffix: getEnv("SYMBOL_SUFFIX", ".NS"),
			Currency:     strings.ToUpper(getEnv("PORTFOLIO_CURRENCY", "INR")),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	policy, err := store.ParsePolicy(getEnv("HOLDINGS_FALLBACK_POLICY", string(store.PolicyRemoteWins)))
	if err != nil {
		p.fail("HOLDINGS_FALLBACK_POLICY", err)
	}
	cfg.Portfolio.FallbackPolicy = policy

	if p.err != nil {
		return nil, p.err
	}
	if cfg.Quotes.MaxRetries == 0 {
		return nil, errors.New("QUOTES_MAX_RETRIES must be at least 1")
	}
	return cfg, nil
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
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

// parser keeps the first parse failure so Load can report it once
type parser struct {
	err error
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("parse %s: %w", key, err)
	}
}

func (p *parser) getInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, err)
		return def
	}
	if v < 0 {
		p.fail(key, fmt.Errorf("must not be negative, got %d", v))
		return def
	}
	return v
}

func (p *parser) getBool(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}

func (p *parser) getDuration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}
