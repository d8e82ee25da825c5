package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
)

type Config struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Database DatabaseConfig `mapstructure:"database"`
	Session  SessionConfig  `mapstructure:"session"`
	Quota    QuotaConfig    `mapstructure:"quota"`
	HTTP     HTTPConfig     `mapstructure:"http"`
}

type TelegramConfig struct {
	Token         string `mapstructure:"token"`
	Mode          string `mapstructure:"mode"`
	WebhookURL    string `mapstructure:"webhook_url"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// ChatConfig points at an OpenAI-compatible streaming endpoint. BotID is sent
// as the model name.
type ChatConfig struct {
	Token   string `mapstructure:"token"`
	BaseURL string `mapstructure:"base_url"`
	BotID   string `mapstructure:"bot_id"`
}

type DatabaseConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	UseInMemory bool   `mapstructure:"use_in_memory"`
}

type SessionConfig struct {
	Store      string `mapstructure:"store"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type QuotaConfig struct {
	BaseTierName  string `mapstructure:"base_tier_name"`
	BaseTierLimit int    `mapstructure:"base_tier_limit"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, nil
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("telegram.mode", ModePolling)
	v.SetDefault("chat.base_url", "https://api.coze.cn/v1")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.use_in_memory", false)
	v.SetDefault("session.store", "memory")
	v.SetDefault("session.sqlite_path", "./data/sessions.db")
	v.SetDefault("quota.base_tier_name", "免费用户")
	v.SetDefault("quota.base_tier_limit", 3)
	v.SetDefault("http.addr", ":8080")

	// Enable environment variable support
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		config.Database = dbConfig
	}

	if token := v.GetString("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
	}
	if token := v.GetString("CHAT_TOKEN"); token != "" {
		config.Chat.Token = token
	}
	if botID := v.GetString("CHAT_BOT_ID"); botID != "" {
		config.Chat.BotID = botID
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks that the settings needed to talk to Telegram and the chat
// backend are present.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return errors.New("telegram token is required")
	}
	if c.Chat.Token == "" {
		return errors.New("chat token is required")
	}
	if c.Chat.BotID == "" {
		return errors.New("chat bot id is required")
	}
	switch c.Telegram.Mode {
	case ModePolling:
	case ModeWebhook:
		if c.Telegram.WebhookURL == "" {
			return errors.New("telegram webhook_url is required in webhook mode")
		}
	default:
		return fmt.Errorf("unknown telegram mode %q", c.Telegram.Mode)
	}
	if c.Quota.BaseTierLimit < 0 {
		return errors.New("quota base_tier_limit must be >= 0")
	}
	return nil
}
