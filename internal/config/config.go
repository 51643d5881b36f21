// Package config loads settings for the server and the CLI client from
// ASSETFLOW_* environment variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every variable name.
const EnvPrefix = "ASSETFLOW"

// Server holds configuration for the assetflow server.
type Server struct {
	DBPath           string        `mapstructure:"DB_PATH"`
	Addr             string        `mapstructure:"ADDR"`
	LogPath          string        `mapstructure:"LOG_PATH"`
	AdminUser        string        `mapstructure:"ADMIN_USER"`
	AMQPURL          string        `mapstructure:"AMQP_URL"`
	NotifyExchange   string        `mapstructure:"NOTIFY_EXCHANGE"`
	RedisAddr        string        `mapstructure:"REDIS_ADDR"`
	ResendLimit      int           `mapstructure:"RESEND_LIMIT"`
	ResendWindow     time.Duration `mapstructure:"RESEND_WINDOW"`
	ReminderSchedule string        `mapstructure:"REMINDER_SCHEDULE"`
	ReminderAfter    time.Duration `mapstructure:"REMINDER_AFTER"`
	CORSOrigins      []string      `mapstructure:"CORS_ORIGINS"`
	MaxAttachmentMB  int           `mapstructure:"MAX_ATTACHMENT_MB"`
}

// MaxAttachmentBytes returns the upload limit in bytes.
func (c *Server) MaxAttachmentBytes() int64 {
	return int64(c.MaxAttachmentMB) << 20
}

// Client holds configuration for assetctl.
type Client struct {
	ServerURL string `mapstructure:"SERVER_URL"`
	Username  string `mapstructure:"USERNAME"`
	Token     string `mapstructure:"TOKEN"`
}

var serverKeys = []string{
	"DB_PATH", "ADDR", "LOG_PATH", "ADMIN_USER", "AMQP_URL", "NOTIFY_EXCHANGE", "REDIS_ADDR",
	"RESEND_LIMIT", "RESEND_WINDOW", "REMINDER_SCHEDULE", "REMINDER_AFTER", "CORS_ORIGINS",
	"MAX_ATTACHMENT_MB",
}

var clientKeys = []string{"SERVER_URL", "USERNAME", "TOKEN"}

// LoadDotEnv loads variables from path into the environment without
// overriding ones already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func bind(keys []string) {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Bind explicitly so the keys appear in Unmarshal.
	for _, k := range keys {
		_ = viper.BindEnv(k)
	}
}

// LoadServer reads server configuration from the environment.
func LoadServer() (*Server, error) {
	viper.SetDefault("DB_PATH", "assetflow.sqlite3")
	viper.SetDefault("ADDR", ":8080")
	viper.SetDefault("ADMIN_USER", "admin")
	viper.SetDefault("NOTIFY_EXCHANGE", "assetflow.notifications")
	viper.SetDefault("RESEND_LIMIT", 3)
	viper.SetDefault("RESEND_WINDOW", "1h")
	viper.SetDefault("REMINDER_SCHEDULE", "0 8 * * *") // Daily at 08:00.
	viper.SetDefault("REMINDER_AFTER", "72h")
	viper.SetDefault("MAX_ATTACHMENT_MB", 10)
	bind(serverKeys)

	var cfg Server
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding server config: %w", err)
	}
	cfg.CORSOrigins = splitList(cfg.CORSOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Server) Validate() error {
	switch {
	case strings.TrimSpace(c.DBPath) == "":
		return fmt.Errorf("%s_DB_PATH must not be empty", EnvPrefix)
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%s_ADDR must not be empty", EnvPrefix)
	case c.ResendLimit < 0:
		return fmt.Errorf("%s_RESEND_LIMIT must not be negative", EnvPrefix)
	case c.ResendLimit > 0 && c.ResendWindow <= 0:
		return fmt.Errorf("%s_RESEND_WINDOW must be positive when resends are limited", EnvPrefix)
	case c.ReminderAfter < 0:
		return fmt.Errorf("%s_REMINDER_AFTER must not be negative", EnvPrefix)
	case c.MaxAttachmentMB <= 0:
		return fmt.Errorf("%s_MAX_ATTACHMENT_MB must be positive", EnvPrefix)
	}
	return nil
}

// LoadClient reads client configuration from the environment.
func LoadClient() (*Client, error) {
	viper.SetDefault("SERVER_URL", "http://localhost:8080")
	bind(clientKeys)

	var cfg Client
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding client config: %w", err)
	}
	cfg.ServerURL = strings.TrimSuffix(strings.TrimSpace(cfg.ServerURL), "/")
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("%s_SERVER_URL must not be empty", EnvPrefix)
	}
	return &cfg, nil
}

// splitList flattens comma-separated entries and drops blanks.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
