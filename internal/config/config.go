package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/commentgig/backend/internal/withdrawal"
)

const defaultJWTSecret = "supersecretmvp"

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	// Server
	Port        int      `env:"PORT" envDefault:"8080"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	// Storage
	Storage     string `env:"STORAGE" envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"10"`

	// Auth
	JWTSecret string      `env:"JWT_SECRET" envDefault:"supersecretmvp"`
	AdminIDs  []uuid.UUID `env:"ADMIN_IDS" envSeparator:","`

	// Orders and submissions
	CatalogFile        string        `env:"CATALOG_FILE"`
	MaxParticipants    int           `env:"MAX_PARTICIPANTS" envDefault:"1000"`
	ClaimTimeout       time.Duration `env:"CLAIM_TIMEOUT" envDefault:"3m"`
	ClaimSweepInterval time.Duration `env:"CLAIM_SWEEP_INTERVAL" envDefault:"1m"`

	// Earnings
	CommissionRate decimal.Decimal `env:"COMMISSION_RATE" envDefault:"0.05"`

	// Withdrawals
	WithdrawalMin      decimal.Decimal `env:"WITHDRAWAL_MIN" envDefault:"1"`
	WithdrawalMax      decimal.Decimal `env:"WITHDRAWAL_MAX" envDefault:"5000"`
	WithdrawalFixedFee decimal.Decimal `env:"WITHDRAWAL_FIXED_FEE" envDefault:"0"`
	WithdrawalFeeRate  decimal.Decimal `env:"WITHDRAWAL_FEE_RATE" envDefault:"0"`
	WithdrawalDays     string          `env:"WITHDRAWAL_ALLOWED_DAYS"`

	// Notifications
	NotifySinks      []string `env:"NOTIFY_SINK" envSeparator:"," envDefault:"log"`
	KafkaBrokers     []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopicPrefix string   `env:"KAFKA_TOPIC_PREFIX" envDefault:"commentgig"`
	NotifyWebhookURL string   `env:"NOTIFY_WEBHOOK_URL"`

	// Idempotency
	RedisURL       string        `env:"REDIS_URL"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required with STORAGE=postgres"))
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("STORAGE must be postgres or memory, got %q", c.Storage))
	}
	if c.MaxParticipants < 1 {
		errs = append(errs, errors.New("MAX_PARTICIPANTS must be at least 1"))
	}
	if c.CommissionRate.IsNegative() || c.CommissionRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, errors.New("COMMISSION_RATE must be in [0, 1)"))
	}
	if !c.WithdrawalMax.IsZero() && c.WithdrawalMax.LessThan(c.WithdrawalMin) {
		errs = append(errs, errors.New("WITHDRAWAL_MAX must not be below WITHDRAWAL_MIN"))
	}
	if _, err := withdrawal.ParseDays(c.WithdrawalDays); err != nil {
		errs = append(errs, fmt.Errorf("WITHDRAWAL_ALLOWED_DAYS: %w", err))
	}
	for _, sink := range c.NotifySinks {
		switch sink {
		case "log":
		case "kafka":
			if len(c.KafkaBrokers) == 0 {
				errs = append(errs, errors.New("KAFKA_BROKERS is required with NOTIFY_SINK=kafka"))
			}
		case "webhook":
			if c.NotifyWebhookURL == "" {
				errs = append(errs, errors.New("NOTIFY_WEBHOOK_URL is required with NOTIFY_SINK=webhook"))
			}
			if c.Storage != StoragePostgres {
				errs = append(errs, errors.New("NOTIFY_SINK=webhook needs STORAGE=postgres for its job queue"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown NOTIFY_SINK %q", sink))
		}
	}
	return errors.Join(errs...)
}

// WithdrawalPolicy builds the policy from the WITHDRAWAL_* variables.
func (c *Config) WithdrawalPolicy() withdrawal.Policy {
	days, _ := withdrawal.ParseDays(c.WithdrawalDays)
	return withdrawal.Policy{
		MinAmount:   c.WithdrawalMin,
		MaxAmount:   c.WithdrawalMax,
		FixedFee:    c.WithdrawalFixedFee,
		FeeRate:     c.WithdrawalFeeRate,
		AllowedDays: days,
	}
}

func (c *Config) SinkEnabled(name string) bool {
	return slices.Contains(c.NotifySinks, name)
}

func (c *Config) IsAdmin(id uuid.UUID) bool {
	return slices.Contains(c.AdminIDs, id)
}

// DefaultSecret reports whether JWT_SECRET was left at its development value.
func (c *Config) DefaultSecret() bool {
	return c.JWTSecret == defaultJWTSecret
}
