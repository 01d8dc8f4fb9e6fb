package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/kiliankoe/albumnight/internal/game"
)

type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	// StoreDriver is one of memory, sqlite, postgres, mysql.
	StoreDriver  string        `env:"STORE_DRIVER" envDefault:"memory"`
	DatabaseURL  string        `env:"DATABASE_URL"`
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	ReadRetries  uint          `env:"READ_RETRIES" envDefault:"3"`

	RedisURL     string   `env:"REDIS_URL"`
	RedisChannel string   `env:"REDIS_CHANNEL" envDefault:"albumnight:changes"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"album-night-events"`

	DeviceTokenSecret string        `env:"DEVICE_TOKEN_SECRET"`
	DeviceTokenTTL    time.Duration `env:"DEVICE_TOKEN_TTL" envDefault:"12h"`
	GMUser            string        `env:"GM_USER"`
	GMPass            string        `env:"GM_PASS"`

	DefaultTitle string   `env:"DEFAULT_TITLE" envDefault:"Album Night"`
	RosterNames  []string `env:"ROSTER_NAMES" envSeparator:"," envDefault:"James,Lee,Ben,Steph"`
	StrictLock   bool     `env:"STRICT_LOCK" envDefault:"false"`

	ExportEnabled bool   `env:"EXPORT_ENABLED" envDefault:"false"`
	ExportFile    string `env:"EXPORT_FILE" envDefault:"exports/album-night.txt"`

	LogLevel    string   `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string   `env:"LOG_FORMAT" envDefault:"console"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
}

// Load reads an optional .env file, then the environment.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && len(files) > 0 {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) validate() error {
	switch c.StoreDriver {
	case "memory":
	case "sqlite", "postgres", "mysql":
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required for store driver %q", c.StoreDriver)
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if len(c.RosterNames) != game.RosterSize {
		return fmt.Errorf("ROSTER_NAMES needs exactly %d names, got %d", game.RosterSize, len(c.RosterNames))
	}
	for _, n := range c.RosterNames {
		if strings.TrimSpace(n) == "" {
			return errors.New("ROSTER_NAMES must not contain empty names")
		}
	}
	return nil
}

// Roster returns the configured display names in roster order.
func (c Config) Roster() [game.RosterSize]string {
	var out [game.RosterSize]string
	for i := range out {
		out[i] = strings.TrimSpace(c.RosterNames[i])
	}
	return out
}

// GameOptions maps the config onto the service options.
func (c Config) GameOptions() game.Options {
	opts := game.DefaultOptions()
	opts.StoreTimeout = c.StoreTimeout
	opts.ReadRetries = c.ReadRetries
	opts.StrictLock = c.StrictLock
	opts.DefaultTitle = c.DefaultTitle
	opts.RosterNames = c.Roster()
	if c.ExportEnabled {
		opts.ExportFile = c.ExportFile
	}
	return opts
}
