package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// Config holds runtime wiring options for building the app.
type Config struct {
	Home      string        `env:"MASKID_HOME" mapstructure:"home"`             // data directory, e.g. $HOME/.maskid
	Store     string        `env:"MASKID_STORE" mapstructure:"store"`           // memory, file or sqlite
	RedisURL  string        `env:"MASKID_REDIS_URL" mapstructure:"redis_url"`   // optional avatar cache
	AvatarTTL time.Duration `env:"MASKID_AVATAR_TTL" mapstructure:"avatar_ttl"` // Redis avatar expiry
	LogLevel  string        `env:"MASKID_LOG_LEVEL" mapstructure:"log_level"`
	LogFormat string        `env:"MASKID_LOG_FORMAT" mapstructure:"log_format"` // text or json
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() Config {
	home := ".maskid"
	if dir, err := os.UserHomeDir(); err == nil {
		home = filepath.Join(dir, ".maskid")
	}
	return Config{
		Home:      home,
		Store:     StoreSQLite,
		AvatarTTL: 24 * time.Hour,
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// LoadConfig resolves configuration. Later sources win: defaults, config.yaml
// in the home directory, the process environment (after merging .env from the
// home directory), and finally home when non-empty.
func LoadConfig(home string) (Config, error) {
	cfg := DefaultConfig()
	if v := os.Getenv("MASKID_HOME"); v != "" {
		cfg.Home = v
	}
	if home != "" {
		cfg.Home = home
	}

	if err := godotenv.Load(filepath.Join(cfg.Home, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	if err := readConfigFile(cfg.Home, &cfg); err != nil {
		return Config{}, err
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if home != "" {
		cfg.Home = home
	}
	return cfg, cfg.Validate()
}

// readConfigFile merges config.yaml from dir into cfg when it exists.
func readConfigFile(dir string, cfg *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("decode config file: %w", err)
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Home == "" && c.Store != StoreMemory {
		return errors.New("home directory is required")
	}
	switch c.Store {
	case StoreMemory, StoreFile, StoreSQLite:
	default:
		return fmt.Errorf("unknown store %q (want memory, file or sqlite)", c.Store)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", c.LogFormat)
	}
	return nil
}
