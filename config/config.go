package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Auction  AuctionDefaults
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `mapstructure:"SERVER_HOST"`
	Port         int           `mapstructure:"SERVER_PORT"`
	ReadTimeout  time.Duration `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `mapstructure:"SERVER_IDLE_TIMEOUT"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `mapstructure:"POSTGRES_HOST"`
	Port     int    `mapstructure:"POSTGRES_PORT"`
	User     string `mapstructure:"POSTGRES_USER"`
	Password string `mapstructure:"POSTGRES_PASSWORD"`
	DBName   string `mapstructure:"POSTGRES_DB"`
	SSLMode  string `mapstructure:"POSTGRES_SSLMODE"`
	MaxConns int32  `mapstructure:"POSTGRES_MAX_CONNS"`
	MinConns int32  `mapstructure:"POSTGRES_MIN_CONNS"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host     string `mapstructure:"REDIS_HOST"`
	Port     int    `mapstructure:"REDIS_PORT"`
	Password string `mapstructure:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"REDIS_DB"`
	PoolSize int    `mapstructure:"REDIS_POOL_SIZE"`
}

// AuctionDefaults seeds the hot-reloadable settings keys (see
// internal/settings) with their first values on process start.
type AuctionDefaults struct {
	DefaultBiddingWindowHours int     `mapstructure:"AUCTION_DEFAULT_BIDDING_WINDOW_HOURS"`
	ReturnBiddingWindowHours  int     `mapstructure:"AUCTION_RETURN_BIDDING_WINDOW_HOURS"`
	AcceptanceWindowMinutes   int     `mapstructure:"AUCTION_ACCEPTANCE_WINDOW_MINUTES"`
	MinBidPercent             float64 `mapstructure:"AUCTION_MIN_BID_PERCENT"`
	MaxBidPercent             float64 `mapstructure:"AUCTION_MAX_BID_PERCENT"`
	PostcodeFilteringEnabled  bool    `mapstructure:"AUCTION_POSTCODE_FILTERING_ENABLED"`
}

// DSN returns the PostgreSQL connection string.
func (p *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode,
	)
}

// Addr returns the Redis address in host:port format.
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// ServerAddr returns the HTTP listen address in host:port format.
func (s *ServerConfig) ServerAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads configuration from environment variables and .env file.
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// ── Defaults ────────────────────────────────────────
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", 8080)
	viper.SetDefault("SERVER_READ_TIMEOUT", "5s")
	viper.SetDefault("SERVER_WRITE_TIMEOUT", "10s")
	viper.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	viper.SetDefault("POSTGRES_HOST", "localhost")
	viper.SetDefault("POSTGRES_PORT", 5432)
	viper.SetDefault("POSTGRES_USER", "transfercore")
	viper.SetDefault("POSTGRES_PASSWORD", "transfercore_secret")
	viper.SetDefault("POSTGRES_DB", "transfercore_db")
	viper.SetDefault("POSTGRES_SSLMODE", "disable")
	viper.SetDefault("POSTGRES_MAX_CONNS", 50)
	viper.SetDefault("POSTGRES_MIN_CONNS", 10)

	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", 6379)
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("REDIS_POOL_SIZE", 100)

	viper.SetDefault("AUCTION_DEFAULT_BIDDING_WINDOW_HOURS", 24)
	viper.SetDefault("AUCTION_RETURN_BIDDING_WINDOW_HOURS", 12)
	viper.SetDefault("AUCTION_ACCEPTANCE_WINDOW_MINUTES", 30)
	viper.SetDefault("AUCTION_MIN_BID_PERCENT", 0.40)
	viper.SetDefault("AUCTION_MAX_BID_PERCENT", 0.95)
	viper.SetDefault("AUCTION_POSTCODE_FILTERING_ENABLED", true)

	// Try to read .env file. If it doesn't exist (e.g., inside a container),
	// env vars injected by the deployment platform are used instead.
	_ = viper.ReadInConfig()

	cfg := &Config{}

	// ── Server ──────────────────────────────────────────
	cfg.Server = ServerConfig{
		Host:         viper.GetString("SERVER_HOST"),
		Port:         viper.GetInt("SERVER_PORT"),
		ReadTimeout:  viper.GetDuration("SERVER_READ_TIMEOUT"),
		WriteTimeout: viper.GetDuration("SERVER_WRITE_TIMEOUT"),
		IdleTimeout:  viper.GetDuration("SERVER_IDLE_TIMEOUT"),
	}

	// ── Postgres ────────────────────────────────────────
	cfg.Postgres = PostgresConfig{
		Host:     viper.GetString("POSTGRES_HOST"),
		Port:     viper.GetInt("POSTGRES_PORT"),
		User:     viper.GetString("POSTGRES_USER"),
		Password: viper.GetString("POSTGRES_PASSWORD"),
		DBName:   viper.GetString("POSTGRES_DB"),
		SSLMode:  viper.GetString("POSTGRES_SSLMODE"),
		MaxConns: viper.GetInt32("POSTGRES_MAX_CONNS"),
		MinConns: viper.GetInt32("POSTGRES_MIN_CONNS"),
	}

	// ── Redis ───────────────────────────────────────────
	cfg.Redis = RedisConfig{
		Host:     viper.GetString("REDIS_HOST"),
		Port:     viper.GetInt("REDIS_PORT"),
		Password: viper.GetString("REDIS_PASSWORD"),
		DB:       viper.GetInt("REDIS_DB"),
		PoolSize: viper.GetInt("REDIS_POOL_SIZE"),
	}

	// ── Auction defaults (seed values for the settings provider) ──
	cfg.Auction = AuctionDefaults{
		DefaultBiddingWindowHours: viper.GetInt("AUCTION_DEFAULT_BIDDING_WINDOW_HOURS"),
		ReturnBiddingWindowHours:  viper.GetInt("AUCTION_RETURN_BIDDING_WINDOW_HOURS"),
		AcceptanceWindowMinutes:   viper.GetInt("AUCTION_ACCEPTANCE_WINDOW_MINUTES"),
		MinBidPercent:             viper.GetFloat64("AUCTION_MIN_BID_PERCENT"),
		MaxBidPercent:             viper.GetFloat64("AUCTION_MAX_BID_PERCENT"),
		PostcodeFilteringEnabled:  viper.GetBool("AUCTION_POSTCODE_FILTERING_ENABLED"),
	}

	return cfg, nil
}
