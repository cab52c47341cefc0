package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
		Host string `yaml:"host"`
	} `yaml:"server"`

	App struct {
		Env     string `yaml:"env"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"app"`

	Storage StorageConfig `yaml:"storage"`

	Pixel struct {
		Path string `yaml:"path"`
	} `yaml:"pixel"`

	Ping PingConfig `yaml:"ping"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
	} `yaml:"smtp"`

	Notify struct {
		Enabled bool   `yaml:"enabled"`
		To      string `yaml:"to"`
		// Rate caps notifications across all recipients, e.g. "30-H".
		Rate string `yaml:"rate"`
	} `yaml:"notify"`

	Limiter struct {
		Rate string `yaml:"rate"`
	} `yaml:"limiter"`

	Logger LoggerConfig `yaml:"logger"`
}

type StorageConfig struct {
	// Driver is one of csv, sqlite, mysql or postgres.
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	SendPath string `yaml:"send_path"`
	DSN      string `yaml:"dsn"`
}

type PingConfig struct {
	URL      string        `yaml:"url"`
	Interval time.Duration `yaml:"interval"`
}

type LoggerConfig struct {
	Level string           `yaml:"level"`
	File  LoggerFileConfig `yaml:"file"`
}

type LoggerFileConfig struct {
	Enable     bool   `yaml:"enable"`
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"maxsize"`
	MaxBackups int    `yaml:"maxbackups"`
	MaxAge     int    `yaml:"maxage"`
	Compress   bool   `yaml:"compress"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	c.Server.Host = "0.0.0.0"
	c.Server.Port = "8080"
	c.App.Env = "development"
	c.Storage.Driver = "sqlite"
	c.Storage.Path = "./email_logs.db"
	c.Storage.SendPath = "./send_logs.csv"
	c.Ping.Interval = 5 * time.Minute
	c.SMTP.Port = 587
	c.Notify.Rate = "30-H"
	c.Limiter.Rate = "30-M"
	c.Logger.Level = "info"
	return c
}

func LoadConfig(configPath string) (*Config, error) {
	config := Default()

	// Load .env first so the overrides below can see it
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if configPath != "" {
		file, err := os.Open(configPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
			log.Warn().Str("path", configPath).Msg("config file not found, using defaults")
		case err != nil:
			return nil, err
		default:
			defer file.Close()
			decoder := yaml.NewDecoder(file)
			if err := decoder.Decode(config); err != nil {
				return nil, fmt.Errorf("parse %s: %w", configPath, err)
			}
		}
	}

	if err := config.overrideWithEnvVars(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) overrideWithEnvVars() error {
	// Server settings
	if port := GetEnv("PORT", ""); port != "" {
		c.Server.Port = port
	}
	if host := GetEnv("HOST", ""); host != "" {
		c.Server.Host = host
	}

	if env := GetEnv("APP_ENV", ""); env != "" {
		c.App.Env = env
	}
	if baseURL := GetEnv("BASE_URL", ""); baseURL != "" {
		c.App.BaseURL = baseURL
	}

	// Storage
	if driver := GetEnv("STORAGE_DRIVER", ""); driver != "" {
		c.Storage.Driver = driver
	}
	if path := GetEnv("STORAGE_PATH", ""); path != "" {
		c.Storage.Path = path
	}
	if path := GetEnv("SEND_LOG_PATH", ""); path != "" {
		c.Storage.SendPath = path
	}
	if dsn := GetEnv("DATABASE_URL", ""); dsn != "" {
		c.Storage.DSN = dsn
		// DATABASE_URL alone implies postgres, as on most hosting platforms
		if GetEnv("STORAGE_DRIVER", "") == "" && strings.HasPrefix(dsn, "postgres") {
			c.Storage.Driver = "postgres"
		}
	}

	if pixel := GetEnv("PIXEL_PATH", ""); pixel != "" {
		c.Pixel.Path = pixel
	}

	// Liveness pinger
	if url := GetEnv("PING_URL", ""); url != "" {
		c.Ping.URL = url
	}
	if interval := GetEnv("PING_INTERVAL", ""); interval != "" {
		d, err := time.ParseDuration(interval)
		if err != nil {
			return fmt.Errorf("invalid PING_INTERVAL %q: %w", interval, err)
		}
		c.Ping.Interval = d
	}

	if addr := GetEnv("REDIS_ADDR", ""); addr != "" {
		c.Redis.Addr = addr
	}

	if smtpHost := GetEnv("SMTP_HOST", ""); smtpHost != "" {
		c.SMTP.Host = smtpHost
	}
	if smtpPort := GetEnv("SMTP_PORT", ""); smtpPort != "" {
		p, err := strconv.Atoi(smtpPort)
		if err != nil {
			return fmt.Errorf("invalid SMTP_PORT %q: %w", smtpPort, err)
		}
		c.SMTP.Port = p
	}
	if user := GetEnv("SMTP_USERNAME", ""); user != "" {
		c.SMTP.Username = user
	}
	if pass := GetEnv("SMTP_PASSWORD", ""); pass != "" {
		c.SMTP.Password = pass
	}
	if from := GetEnv("SMTP_FROM", ""); from != "" {
		c.SMTP.From = from
	}
	if to := GetEnv("NOTIFY_TO", ""); to != "" {
		c.Notify.To = to
		c.Notify.Enabled = true
	}
	if rate := GetEnv("NOTIFY_RATE", ""); rate != "" {
		c.Notify.Rate = rate
	}

	if level := GetEnv("LOG_LEVEL", ""); level != "" {
		c.Logger.Level = level
	}

	return nil
}

// Validate checks the combinations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "csv", "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path required for driver %s", c.Storage.Driver)
		}
		if c.Storage.Driver == "csv" && c.Storage.SendPath == "" {
			return errors.New("storage.send_path required for driver csv")
		}
	case "mysql", "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn required for driver %s", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if c.Ping.URL != "" && c.Ping.Interval <= 0 {
		return errors.New("ping.interval must be positive")
	}
	if c.Notify.Enabled && (c.Notify.To == "" || c.SMTP.Host == "") {
		return errors.New("notify requires notify.to and smtp.host")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func MustLoadConfig(configPath string) *Config {
	config, err := LoadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	return config
}

func (c *Config) GetBaseURL(requestHost string) string {
	if c.App.BaseURL != "" {
		return c.App.BaseURL
	}

	if requestHost != "" {
		scheme := "http://"
		if c.IsProduction() {
			scheme = "https://"
		}
		return scheme + requestHost
	}

	return "http://localhost:" + c.Server.Port
}
