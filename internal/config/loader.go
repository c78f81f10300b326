package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("$HOME/.go-telegram-relay-bot")

	// Set default values
	setDefaults()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate config
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("bot.token", "")
	viper.SetDefault("bot.operator_id", int64(0))
	viper.SetDefault("bot.mode", "polling")

	viper.SetDefault("webhook.listen_addr", ":8443")
	viper.SetDefault("webhook.url_path", "/endpoint")
	viper.SetDefault("webhook.public_url", "")
	viper.SetDefault("webhook.secret", "")

	viper.SetDefault("store.backend", "memory")
	viper.SetDefault("store.redis.address", "localhost:6379")
	viper.SetDefault("store.redis.password", "")
	viper.SetDefault("store.redis.db", 0)
	viper.SetDefault("store.database.type", "sqlite")
	viper.SetDefault("store.database.dsn", "relay.db")

	viper.SetDefault("notify.enabled", true)
	viper.SetDefault("notify.interval_seconds", 3600)
	viper.SetDefault("notify.template_url", "")
	viper.SetDefault("notify.fallback_text", "New message from a guest.")

	viper.SetDefault("fraud.denylist_url", "")

	viper.SetDefault("greeting.url", "")
	viper.SetDefault("greeting.fallback_text", "Hello! Send me a message and I will pass it on.")

	viper.SetDefault("limits.message_chunk", 4000)
	viper.SetDefault("limits.list_page", int64(1000))
	viper.SetDefault("limits.list_max", 5000)
	viper.SetDefault("limits.history_max", 5000)

	viper.SetDefault("rate_limit.guest_message", 1)

	viper.SetDefault("fetch.timeout_seconds", 10)

	viper.SetDefault("log.level", "debug")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.file_path", "relay.log")

	viper.SetDefault("proxy.enabled", false)
	viper.SetDefault("proxy.url", "")
	viper.SetDefault("proxy.username", "")
	viper.SetDefault("proxy.password", "")
}

func validate(cfg *Config) error {
	if cfg.Bot.Token == "" {
		return fmt.Errorf("bot.token is required")
	}

	if cfg.Bot.OperatorID == 0 {
		return fmt.Errorf("bot.operator_id is required")
	}

	if cfg.Bot.Mode != ModePolling && cfg.Bot.Mode != ModeWebhook {
		return fmt.Errorf("bot.mode must be one of: polling, webhook")
	}

	if cfg.Bot.Mode == ModeWebhook {
		if cfg.Webhook.PublicURL == "" {
			return fmt.Errorf("webhook.public_url is required when bot.mode is webhook")
		}
		if cfg.Webhook.Secret == "" {
			return fmt.Errorf("webhook.secret is required when bot.mode is webhook")
		}
	}

	switch cfg.Store.Backend {
	case "redis":
		if cfg.Store.Redis.Address == "" {
			return fmt.Errorf("store.redis.address is required when store.backend is redis")
		}
	case "database":
		if cfg.Store.Database.Type == "" {
			return fmt.Errorf("store.database.type is required when store.backend is database")
		}
		if cfg.Store.Database.DSN == "" {
			return fmt.Errorf("store.database.dsn is required when store.backend is database")
		}
	case "memory":
		// Nothing to validate; state is lost on restart.
	default:
		return fmt.Errorf("store.backend must be one of: redis, database, memory")
	}

	if cfg.Notify.IntervalSeconds <= 0 {
		return fmt.Errorf("notify.interval_seconds must be greater than 0")
	}

	if cfg.Limits.MessageChunk <= 0 {
		return fmt.Errorf("limits.message_chunk must be greater than 0")
	}

	if cfg.Limits.ListPage <= 0 {
		return fmt.Errorf("limits.list_page must be greater than 0")
	}

	if cfg.Limits.ListMax <= 0 {
		return fmt.Errorf("limits.list_max must be greater than 0")
	}

	if cfg.Limits.HistoryMax <= 0 {
		return fmt.Errorf("limits.history_max must be greater than 0")
	}

	if cfg.RateLimit.GuestMessage <= 0 {
		return fmt.Errorf("rate_limit.guest_message must be greater than 0")
	}

	if cfg.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be greater than 0")
	}

	if cfg.Proxy.Enabled && cfg.Proxy.URL == "" {
		return fmt.Errorf("proxy.url is required when proxy is enabled")
	}

	// Validate log output
	validOutputs := map[string]bool{
		"stdout": true,
		"file":   true,
		"both":   true,
	}
	if !validOutputs[cfg.Log.Output] {
		return fmt.Errorf("log.output must be one of: stdout, file, both")
	}

	// If output is file or both, file_path is required
	if (cfg.Log.Output == "file" || cfg.Log.Output == "both") && cfg.Log.FilePath == "" {
		return fmt.Errorf("log.file_path is required when log.output is file or both")
	}

	return nil
}

func LoadFromFile(filePath string) (*Config, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("error getting absolute path: %w", err)
	}

	viper.SetConfigFile(absPath)

	// Set defaults
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func SaveExampleConfig(filePath string) error {
	exampleConfig := `bot:
  token: "YOUR_BOT_TOKEN"
  operator_id: 123456789
  mode: "polling"

webhook:
  listen_addr: ":8443"
  url_path: "/endpoint"
  public_url: "https://bot.example.com"
  secret: "CHANGE_ME"

store:
  backend: "redis"
  redis:
    address: "localhost:6379"
    password: ""
    db: 0
  database:
    type: "sqlite"
    dsn: "relay.db"

notify:
  enabled: true
  interval_seconds: 3600
  template_url: "https://example.com/notification.txt"
  fallback_text: "New message from a guest."

fraud:
  denylist_url: "https://example.com/fraud.db"

greeting:
  url: "https://example.com/startMessage.md"
  fallback_text: "Hello! Send me a message and I will pass it on."

limits:
  message_chunk: 4000
  list_page: 1000
  list_max: 5000
  history_max: 5000

rate_limit:
  guest_message: 1

fetch:
  timeout_seconds: 10

log:
  level: "debug"
  output: "stdout"
  file_path: "relay.log"
`

	return os.WriteFile(filePath, []byte(exampleConfig), 0644)
}
