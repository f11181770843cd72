package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Digest   DigestConfig   `yaml:"digest"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Server   ServerConfig   `yaml:"server"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Environment string `yaml:"environment"`
	Level       string `yaml:"level"`
}

// DatabaseConfig configures the relational store.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "postgres" or "sqlite"
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
	Path     string `yaml:"path"` // sqlite file

	MaxOpenConns   int           `yaml:"max_open_conns"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// DSN returns the connection string for the configured driver.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite"
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Name, d.User, d.Password, d.SSLMode)
}

// StorageConfig configures the object storage bucket holding collector output.
type StorageConfig struct {
	Kind      string        `yaml:"kind"` // "gcs" or "local"
	Bucket    string        `yaml:"bucket"`
	LocalRoot string        `yaml:"local_root"`
	Retry     RetryConfig   `yaml:"retry"`
	Timeout   time.Duration `yaml:"timeout"`
}

// RetryConfig bounds exponential backoff on blob reads.
type RetryConfig struct {
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	MaxElapsedTime  time.Duration `yaml:"max_elapsed_time"`
}

// PipelineConfig configures the migration pipeline.
type PipelineConfig struct {
	Sources         []string `yaml:"sources"`
	Mode            string   `yaml:"mode"`
	DownloadWorkers int      `yaml:"download_workers"`
	BatchSize       int      `yaml:"batch_size"`
}

// DigestConfig configures digest files and generation.
type DigestConfig struct {
	OutputDir    string        `yaml:"output_dir"`
	ItemsPerPart int           `yaml:"items_per_section"`
	Window       time.Duration `yaml:"window"` // how far back social and news items count
}

// ScheduleConfig configures daemon intervals.
type ScheduleConfig struct {
	MigrateInterval string `yaml:"migrate_interval"`
	DigestInterval  string `yaml:"digest_interval"`
}

// ParseMigrateInterval returns the migrate interval as time.Duration.
func (s ScheduleConfig) ParseMigrateInterval() time.Duration {
	d, err := time.ParseDuration(s.MigrateInterval)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}

// ParseDigestInterval returns the digest interval as time.Duration.
func (s ScheduleConfig) ParseDigestInterval() time.Duration {
	d, err := time.ParseDuration(s.DigestInterval)
	if err != nil {
		return 6 * time.Hour
	}
	return d
}

// AlertsConfig configures alert destinations.
type AlertsConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook alerts.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook alerts.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook alerts.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port      int     `yaml:"port"`
	BaseURL   string  `yaml:"base_url"` // public URL used in notification links
	StaticDir string  `yaml:"static_dir"`
	RPSLimit  float64 `yaml:"rps_limit"`
	RPSBurst  int     `yaml:"rps_burst"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Log: LogConfig{Environment: "production", Level: "info"},
		Database: DatabaseConfig{
			Driver:         "postgres",
			Host:           "localhost",
			Port:           5432,
			Name:           "degen_digest",
			User:           "postgres",
			Password:       "postgres",
			SSLMode:        "disable",
			Path:           "./degendigest.db",
			MaxOpenConns:   10,
			ConnectTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Kind:      "gcs",
			Bucket:    "degen-digest-data",
			LocalRoot: "./data",
			Retry: RetryConfig{
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     10 * time.Second,
				MaxElapsedTime:  time.Minute,
			},
			Timeout: 60 * time.Second,
		},
		Pipeline: PipelineConfig{
			Sources:         []string{"twitter", "reddit", "news", "crypto", "dexscreener", "dexpaprika"},
			Mode:            "files",
			DownloadWorkers: 4,
			BatchSize:       16,
		},
		Digest: DigestConfig{
			OutputDir:    "./output",
			ItemsPerPart: 5,
			Window:       48 * time.Hour,
		},
		Schedule: ScheduleConfig{
			MigrateInterval: "30m",
			DigestInterval:  "6h",
		},
		Server: ServerConfig{
			Port:      8080,
			StaticDir: "./static",
			RPSLimit:  20,
			RPSBurst:  40,
		},
	}
}

// Load reads .env files, the YAML config file and env var overrides, in
// that order of increasing precedence.
func Load(path string) (*Config, error) {
	loadEnv(filepath.Dir(path))

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnv loads .env then .env.local from dir; later files win. Missing
// files are ignored.
func loadEnv(dir string) {
	for _, name := range []string{".env", ".env.local"} {
		_ = godotenv.Overload(filepath.Join(dir, name))
	}
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse DB_PORT %q: %w", v, err)
		}
		cfg.Database.Port = port
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("GCS_BUCKET"); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := os.Getenv("STORAGE_KIND"); v != "" {
		cfg.Storage.Kind = v
	}
	if v := os.Getenv("DIGEST_OUTPUT_DIR"); v != "" {
		cfg.Digest.OutputDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		cfg.Log.Environment = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("PUBLIC_URL"); v != "" {
		cfg.Server.BaseURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
	return nil
}
