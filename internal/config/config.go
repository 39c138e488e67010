package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Fato07/runway-music-video-generator/pkg/orchestrator"
	"github.com/Fato07/runway-music-video-generator/pkg/security"
)

// Config holds all application configuration
type Config struct {
	// Database paths
	SQLitePath string `mapstructure:"sqlite-path"`
	FSMDBPath  string `mapstructure:"fsm-db-path"`

	// Local artifact store
	ResultsDir string `mapstructure:"results-dir"`

	// Generation provider
	RunwayAPIKey     string        `mapstructure:"runway-api-key"`
	RunwayBaseURL    string        `mapstructure:"runway-base-url"`
	RunwayModel      string        `mapstructure:"runway-model"`
	RunwayAPIVersion string        `mapstructure:"runway-api-version"`
	HTTPTimeout      time.Duration `mapstructure:"http-timeout"`

	// Input validation. An empty proxy URL means images are fetched directly.
	ImageProxyURL string `mapstructure:"image-proxy-url"`
	MaxImageSize  int64  `mapstructure:"max-image-size"`

	// Run policy
	PollInterval    time.Duration `mapstructure:"poll-interval"`
	MaxPollAttempts int           `mapstructure:"max-poll-attempts"`
	DownloadRetries int           `mapstructure:"download-retries"`
	DownloadBackoff time.Duration `mapstructure:"download-backoff"`

	// S3 artifact mirror (disabled when bucket is empty)
	S3Bucket   string `mapstructure:"s3-bucket"`
	S3Region   string `mapstructure:"s3-region"`
	S3Prefix   string `mapstructure:"s3-prefix"`
	S3Endpoint string `mapstructure:"s3-endpoint"`

	// HTTP server
	ListenAddr         string `mapstructure:"listen-addr"`
	RateLimitPerMinute int    `mapstructure:"rate-limit-per-minute"`

	// Logging
	AppEnv   string `mapstructure:"app-env"`
	LogLevel string `mapstructure:"log-level"`

	// FSM configuration
	FSMMaxRetries int `mapstructure:"fsm-max-retries"`
}

// Load reads configuration from .env files, environment, config file, and defaults
func Load() (*Config, error) {
	// Missing .env files are fine.
	_ = godotenv.Load(".env", ".env.local")

	// Set defaults
	viper.SetDefault("sqlite-path", ".artifacts/generations.db")
	viper.SetDefault("fsm-db-path", ".artifacts/fsm")
	viper.SetDefault("results-dir", "public/results")
	viper.SetDefault("runway-base-url", "https://api.dev.runwayml.com")
	viper.SetDefault("runway-model", "gen3a_turbo")
	viper.SetDefault("runway-api-version", "2024-11-06")
	viper.SetDefault("http-timeout", 30*time.Second)
	viper.SetDefault("image-proxy-url", "")
	viper.SetDefault("max-image-size", security.DefaultMaxImageSize)
	viper.SetDefault("poll-interval", 2*time.Second)
	viper.SetDefault("max-poll-attempts", 30)
	viper.SetDefault("download-retries", 3)
	viper.SetDefault("download-backoff", 2*time.Second)
	viper.SetDefault("s3-bucket", "")
	viper.SetDefault("s3-region", "us-east-1")
	viper.SetDefault("s3-prefix", "videos")
	viper.SetDefault("s3-endpoint", "")
	viper.SetDefault("listen-addr", ":8080")
	viper.SetDefault("rate-limit-per-minute", 60)
	viper.SetDefault("app-env", "development")
	viper.SetDefault("log-level", "")
	viper.SetDefault("fsm-max-retries", 5)

	// Environment variables (will be MUSICVIDEO_RESULTS_DIR, etc.)
	viper.SetEnvPrefix("MUSICVIDEO")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	// The provider's own variable name is honoured as well.
	_ = viper.BindEnv("runway-api-key", "MUSICVIDEO_RUNWAY_API_KEY", "RUNWAYML_API_SECRET")
	_ = viper.BindEnv("app-env", "MUSICVIDEO_APP_ENV", "APP_ENV")

	// Config file (optional)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.musicvideo")

	// Read config file (ignore if not found)
	_ = viper.ReadInConfig()

	// Unmarshal into config struct
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.SQLitePath == "" {
		return fmt.Errorf("sqlite-path cannot be empty")
	}
	if c.FSMDBPath == "" {
		return fmt.Errorf("fsm-db-path cannot be empty")
	}
	if c.ResultsDir == "" {
		return fmt.Errorf("results-dir cannot be empty")
	}
	if c.MaxImageSize <= 0 {
		return fmt.Errorf("max-image-size must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll-interval must be positive")
	}
	if c.MaxPollAttempts <= 0 {
		return fmt.Errorf("max-poll-attempts must be positive")
	}
	if c.DownloadRetries <= 0 {
		return fmt.Errorf("download-retries must be positive")
	}
	if c.DownloadBackoff < 0 {
		return fmt.Errorf("download-backoff must be non-negative")
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("rate-limit-per-minute must be non-negative")
	}
	if c.FSMMaxRetries < 0 {
		return fmt.Errorf("fsm-max-retries must be non-negative")
	}
	return nil
}

// RequireProvider checks the settings needed to talk to the generation API.
func (c *Config) RequireProvider() error {
	if strings.TrimSpace(c.RunwayAPIKey) == "" {
		return fmt.Errorf("runway-api-key is required (set RUNWAYML_API_SECRET)")
	}
	return nil
}

// Policy returns the orchestrator limits.
func (c *Config) Policy() orchestrator.Policy {
	return orchestrator.Policy{
		PollInterval:    c.PollInterval,
		MaxPollAttempts: c.MaxPollAttempts,
		DownloadRetries: c.DownloadRetries,
		DownloadBackoff: c.DownloadBackoff,
	}
}

// MirrorEnabled reports whether finished artifacts are copied to S3.
func (c *Config) MirrorEnabled() bool {
	return c.S3Bucket != ""
}

// ServerProxyURL is the image proxy used while serving: the configured
// one, or this server's own /api/proxy-image derived from ListenAddr.
func (c *Config) ServerProxyURL() string {
	if c.ImageProxyURL != "" {
		return c.ImageProxyURL
	}
	host, port, err := net.SplitHostPort(c.ListenAddr)
	if err != nil {
		return ""
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/api/proxy-image"
}
