package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "evsehub/libs/config"
)

// Storage backends.
const (
	StorageFile     = "file"
	StoragePostgres = "postgres"
)

// HTTPConfig holds listener settings.
type HTTPConfig struct {
	Port string `yaml:"port" env:"HTTP_PORT"`
}

// RedisConfig points at the bus broker.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

// BusConfig names the topics shared with the bridge.
type BusConfig struct {
	// TopicPrefix is the bridge's publish prefix, typically
	// "evse/<charger-serial>".
	TopicPrefix string `yaml:"topicPrefix" env:"BUS_TOPIC_PREFIX"`
	// CommandTopic overrides the outbound command topic; defaults to
	// TopicPrefix + "/command".
	CommandTopic string `yaml:"commandTopic" env:"BUS_COMMAND_TOPIC"`
}

// StorageConfig selects and tunes the document store.
type StorageConfig struct {
	Backend      string `yaml:"backend" env:"STORAGE_BACKEND"`
	Dir          string `yaml:"dir" env:"STORAGE_DIR"`
	DSN          string `yaml:"dsn" env:"STORAGE_POSTGRES_DSN"`
	MaxSessions  int    `yaml:"maxSessions" env:"STORAGE_MAX_SESSIONS"`
	OverflowFile string `yaml:"overflowFile" env:"STORAGE_OVERFLOW_FILE"`
}

// AuthConfig holds the shared PIN and signing secret.
type AuthConfig struct {
	PIN    string `yaml:"pin" env:"AUTH_PIN"`
	Secret string `yaml:"secret" env:"AUTH_SECRET"`
}

// DetectorConfig tunes the session state machine.
type DetectorConfig struct {
	FallbackUser string        `yaml:"fallbackUser" env:"DETECTOR_FALLBACK_USER"`
	MaxSampleGap time.Duration `yaml:"maxSampleGap" env:"DETECTOR_MAX_SAMPLE_GAP"`
	StaleAfter   time.Duration `yaml:"staleAfter" env:"DETECTOR_STALE_AFTER"`
}

// TelegramConfig holds notification credentials.
type TelegramConfig struct {
	BotToken       string `yaml:"botToken" env:"TELEGRAM_BOT_TOKEN"`
	ChatID         string `yaml:"chatId" env:"TELEGRAM_CHAT_ID"`
	BackupSchedule string `yaml:"backupSchedule" env:"TELEGRAM_BACKUP_SCHEDULE"`
}

// BridgeConfig names the bridge's systemd unit for the pause action.
type BridgeConfig struct {
	Unit string `yaml:"unit" env:"BRIDGE_UNIT"`
}

// Config defines the dashboard configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Redis    RedisConfig    `yaml:"redis"`
	Bus      BusConfig      `yaml:"bus"`
	Storage  StorageConfig  `yaml:"storage"`
	Auth     AuthConfig     `yaml:"auth"`
	Detector DetectorConfig `yaml:"detector"`
	Telegram TelegramConfig `yaml:"telegram"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Timezone string         `yaml:"timezone" env:"TIMEZONE"`
}

// Load reads configuration via the shared helper and applies defaults.
func Load() (*Config, error) {
	cfg := &Config{
		HTTP:  HTTPConfig{Port: "8080"},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Bus:   BusConfig{TopicPrefix: "evse/charger"},
		Storage: StorageConfig{
			Backend:      StorageFile,
			Dir:          "./data",
			MaxSessions:  500,
			OverflowFile: "./data/sessions_overflow.jsonl",
		},
		Auth: AuthConfig{PIN: "1234"},
		Detector: DetectorConfig{
			FallbackUser: "Unknown",
			MaxSampleGap: 5 * time.Minute,
			StaleAfter:   60 * time.Second,
		},
		Bridge: BridgeConfig{Unit: "evseMQTT"},
	}

	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Auth.PIN) == "" {
		return nil, errors.New("config: auth pin required")
	}
	if strings.TrimSpace(cfg.Bus.TopicPrefix) == "" {
		return nil, errors.New("config: bus topic prefix required")
	}
	switch cfg.Storage.Backend {
	case StorageFile:
		if strings.TrimSpace(cfg.Storage.Dir) == "" {
			return nil, errors.New("config: storage dir required")
		}
	case StoragePostgres:
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			return nil, errors.New("config: postgres dsn required")
		}
	default:
		return nil, fmt.Errorf("config: unknown storage backend %q", cfg.Storage.Backend)
	}

	if cfg.Bus.CommandTopic == "" {
		cfg.Bus.CommandTopic = cfg.Bus.TopicPrefix + "/command"
	}
	return cfg, nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// SubscribeTopics returns the bridge topics the backend listens on.
func (c *Config) SubscribeTopics() []string {
	prefix := strings.TrimSuffix(c.Bus.TopicPrefix, "/")
	return []string{
		prefix + "/availability",
		prefix + "/state/charge",
		prefix + "/state/config",
	}
}

// Location resolves the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
