package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full runtime configuration, read from the environment.
type Config struct {
	Port        string `env:"PORT" envDefault:"5200"`
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Timezone    string `env:"TIMEZONE" envDefault:"UTC"`

	AdminToken   string `env:"ADMIN_TOKEN,required,notEmpty"`
	WebhookToken string `env:"WEBHOOK_TOKEN,required,notEmpty"`

	ChallengeTTL time.Duration `env:"CHALLENGE_TTL" envDefault:"48h"`
	ScheduleTTL  time.Duration `env:"SCHEDULE_TTL" envDefault:"48h"`
	MaxRankGap   int           `env:"MAX_RANK_GAP" envDefault:"10"`

	// Zero means unlimited.
	MonthlySendCap   int `env:"MONTHLY_SEND_CAP" envDefault:"0"`
	MonthlyAcceptCap int `env:"MONTHLY_ACCEPT_CAP" envDefault:"0"`

	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"1m"`
	ExportInterval    time.Duration `env:"EXPORT_INTERVAL" envDefault:"24h"`

	RedisURL     string        `env:"REDIS_URL"`
	RankCacheTTL time.Duration `env:"RANK_CACHE_TTL" envDefault:"5m"`

	KafkaBrokers     []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaNotifyTopic string   `env:"KAFKA_NOTIFY_TOPIC" envDefault:"ladder.notifications"`

	R2 R2Config
}

// R2Config is optional; the report sink stays disabled unless Bucket is set.
type R2Config struct {
	AccountID       string `env:"CLOUDFLARE_ACCOUNT_ID"`
	AccessKeyID     string `env:"R2_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"R2_SECRET_ACCESS_KEY"`
	Bucket          string `env:"R2_BUCKET"`
	PublicBaseURL   string `env:"R2_PUBLIC_BASE_URL"`
}

func (r R2Config) Enabled() bool { return r.Bucket != "" }

// Load reads .env if present, then parses and validates the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}
	return Parse()
}

// Parse reads the process environment without touching .env.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Location is the zone schedule options are read in. Call after Validate.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) Validate() error {
	if c.ChallengeTTL <= 0 {
		return fmt.Errorf("CHALLENGE_TTL must be positive, got %s", c.ChallengeTTL)
	}
	if c.ScheduleTTL <= 0 {
		return fmt.Errorf("SCHEDULE_TTL must be positive, got %s", c.ScheduleTTL)
	}
	if c.MaxRankGap < 0 {
		return fmt.Errorf("MAX_RANK_GAP must not be negative, got %d", c.MaxRankGap)
	}
	if c.MonthlySendCap < 0 || c.MonthlyAcceptCap < 0 {
		return fmt.Errorf("monthly caps must not be negative")
	}
	if c.ReconcileInterval <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must be positive, got %s", c.ReconcileInterval)
	}
	if c.R2.Enabled() && (c.R2.AccountID == "" || c.R2.AccessKeyID == "" || c.R2.SecretAccessKey == "") {
		return fmt.Errorf("R2_BUCKET is set but R2 credentials are incomplete")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE: %w", err)
	}
	for i, b := range c.KafkaBrokers {
		c.KafkaBrokers[i] = strings.TrimSpace(b)
	}
	return nil
}
