package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	JWT        JWTConfig        `yaml:"jwt"`
	Log        LogConfig        `yaml:"log"`
	Payout     PayoutConfig     `yaml:"payout"`
	Stripe     StripeConfig     `yaml:"stripe"`
	Procedures ProceduresConfig `yaml:"procedures"`
	Redis      RedisConfig      `yaml:"redis"`
	AMQP       AMQPConfig       `yaml:"amqp"`
	Firebase   FirebaseConfig   `yaml:"firebase"`
	Sweep      SweepConfig      `yaml:"sweep"`
}

type ServerConfig struct {
	Port           string        `yaml:"port"`
	Env            string        `yaml:"env"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps"`
	RateLimitBurst int           `yaml:"rate_limit_burst"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type JWTConfig struct {
	AccessSecret string        `yaml:"access_secret"`
	AccessExpiry time.Duration `yaml:"access_expiry"`
	Issuer       string        `yaml:"issuer"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// PayoutConfig carries the revenue-share policy. MechanicShare is a fraction
// of the plan price (0.70 = 70%); Prices are minor currency units per plan.
type PayoutConfig struct {
	MechanicShare float64          `yaml:"mechanic_share"`
	Currency      string           `yaml:"currency"`
	Prices        map[string]int64 `yaml:"prices"`
}

type StripeConfig struct {
	SecretKey string `yaml:"secret_key"`
}

// ProceduresConfig points at the RPC endpoint hosting end_session_semantic
// and record_session_earnings.
type ProceduresConfig struct {
	BaseURL    string        `yaml:"base_url"`
	ServiceKey string        `yaml:"service_key"`
	Timeout    time.Duration `yaml:"timeout"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AMQPConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type FirebaseConfig struct {
	ServiceAccountPath string `yaml:"service_account_path"`
}

type SweepConfig struct {
	MaxDuration time.Duration `yaml:"max_duration"`
	BatchSize   int           `yaml:"batch_size"`
}

// Load builds the configuration from defaults, an optional YAML file named by
// CONFIG_FILE, and environment overrides, in that order.
func Load() (*Config, error) {
	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8099",
			Env:            "development",
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   30 * time.Second,
			RateLimitRPS:   5,
			RateLimitBurst: 20,
		},
		Database: DatabaseConfig{
			DSN:             "garagelink:garagelink@tcp(localhost:3306)/garagelink?charset=utf8mb4&parseTime=True&loc=UTC",
			MaxIdleConns:    10,
			MaxOpenConns:    100,
			ConnMaxLifetime: time.Hour,
		},
		JWT: JWTConfig{
			AccessSecret: "change-me-in-production",
			AccessExpiry: 15 * time.Minute,
			Issuer:       "garagelink",
		},
		Log: LogConfig{Level: "info"},
		Payout: PayoutConfig{
			MechanicShare: 0.70,
			Currency:      "usd",
			Prices: map[string]int64{
				"free":       0,
				"trial":      0,
				"quick":      999,
				"standard":   2999,
				"extended":   4999,
				"diagnostic": 3999,
			},
		},
		Procedures: ProceduresConfig{
			BaseURL: "http://localhost:54321",
			Timeout: 10 * time.Second,
		},
		AMQP: AMQPConfig{Exchange: "session.ended"},
		Sweep: SweepConfig{
			MaxDuration: 3 * time.Hour,
			BatchSize:   50,
		},
	}
}

func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.Port, "PORT")
	setString(&c.Server.Env, "APP_ENV")
	setString(&c.Database.DSN, "DATABASE_DSN")
	setString(&c.JWT.AccessSecret, "JWT_ACCESS_SECRET")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Stripe.SecretKey, "STRIPE_SECRET_KEY")
	setString(&c.Procedures.BaseURL, "PROCEDURE_BASE_URL")
	setString(&c.Procedures.ServiceKey, "PROCEDURE_SERVICE_KEY")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.AMQP.URL, "AMQP_URL")
	setString(&c.Firebase.ServiceAccountPath, "FIREBASE_SERVICE_ACCOUNT_PATH")
	if v := os.Getenv("MECHANIC_SHARE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Payout.MechanicShare = f
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate rejects configurations the payout pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Payout.MechanicShare <= 0 || c.Payout.MechanicShare > 1 {
		return fmt.Errorf("payout.mechanic_share must be in (0,1], got %v", c.Payout.MechanicShare)
	}
	for plan, price := range c.Payout.Prices {
		if price < 0 {
			return fmt.Errorf("payout.prices[%s] is negative", plan)
		}
	}
	if c.Payout.Currency == "" {
		return errors.New("payout.currency is required")
	}
	if c.Sweep.MaxDuration <= 0 {
		return errors.New("sweep.max_duration must be positive")
	}
	return nil
}
