package config

import "time"

// Update delivery modes.
const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
)

type Config struct {
	Bot       BotConfig       `mapstructure:"bot"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Store     StoreConfig     `mapstructure:"store"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Fraud     FraudConfig     `mapstructure:"fraud"`
	Greeting  GreetingConfig  `mapstructure:"greeting"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Log       LogConfig       `mapstructure:"log"`
	Proxy     ProxyConfig     `mapstructure:"proxy"`
}

type BotConfig struct {
	Token      string `mapstructure:"token"`
	OperatorID int64  `mapstructure:"operator_id"`
	Mode       string `mapstructure:"mode"` // "polling" or "webhook"
}

type WebhookConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	URLPath    string `mapstructure:"url_path"`
	PublicURL  string `mapstructure:"public_url"`
	Secret     string `mapstructure:"secret"`
}

type StoreConfig struct {
	Backend  string         `mapstructure:"backend"` // "redis", "database" or "memory"
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DatabaseConfig struct {
	Type string `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"`
}

type NotifyConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	IntervalSeconds int    `mapstructure:"interval_seconds"`
	TemplateURL     string `mapstructure:"template_url"`
	FallbackText    string `mapstructure:"fallback_text"`
}

func (n NotifyConfig) Interval() time.Duration {
	return time.Duration(n.IntervalSeconds) * time.Second
}

type FraudConfig struct {
	DenylistURL string `mapstructure:"denylist_url"`
}

type GreetingConfig struct {
	URL          string `mapstructure:"url"`
	FallbackText string `mapstructure:"fallback_text"`
}

type LimitsConfig struct {
	MessageChunk int   `mapstructure:"message_chunk"` // max characters per outbound message
	ListPage     int64 `mapstructure:"list_page"`     // store page size for prefix scans
	ListMax      int   `mapstructure:"list_max"`      // cap on guests merged by /list
	HistoryMax   int   `mapstructure:"history_max"`   // cap on history entries replayed
}

type RateLimitConfig struct {
	GuestMessage int `mapstructure:"guest_message"` // inbound messages per guest per second
}

type FetchConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

func (f FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

type ProxyConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`      // Proxy URL, e.g., "http://127.0.0.1:7890" or "socks5://127.0.0.1:1080"
	Username string `mapstructure:"username"` // Optional: proxy username
	Password string `mapstructure:"password"` // Optional: proxy password
}
