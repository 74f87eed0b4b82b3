package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // market.timezone must resolve on hosts without zoneinfo

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"stock-alerts/internal/logging"
)

// maxWindow mirrors the largest rolling window a rule can evaluate.
const maxWindow = 2 * time.Hour

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Market   MarketConfig   `mapstructure:"market"`
	Quotes   QuotesConfig   `mapstructure:"quotes"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig selects the shared fast cache.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig holds the two quote cache TTLs.
type CacheConfig struct {
	FastTTL    time.Duration `mapstructure:"fast_ttl"`
	DurableTTL time.Duration `mapstructure:"durable_ttl"`
}

// MarketConfig describes the exchange session in local time.
type MarketConfig struct {
	Timezone    string `mapstructure:"timezone"`
	WeekendDays []int  `mapstructure:"weekend_days"`
	PreOpen     string `mapstructure:"pre_open"`
	Open        string `mapstructure:"open"`
	Close       string `mapstructure:"close"`
	PostClose   string `mapstructure:"post_close"`
}

// QuotesConfig captures remote quote provider connectivity.
type QuotesConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	UserAgent       string        `mapstructure:"user_agent"`
	ExchangeSuffix  string        `mapstructure:"exchange_suffix"`
	ExchangeSymbols []string      `mapstructure:"exchange_symbols"`
}

// MonitorConfig governs tick cadence, retries and the alert cooldown.
type MonitorConfig struct {
	SnapshotInterval   time.Duration `mapstructure:"snapshot_interval"`
	GapInterval        time.Duration `mapstructure:"gap_interval"`
	WindowInterval     time.Duration `mapstructure:"window_interval"`
	GapCheckWindow     time.Duration `mapstructure:"gap_check_window"`
	Cooldown           time.Duration `mapstructure:"cooldown"`
	SnapshotHorizon    time.Duration `mapstructure:"snapshot_horizon"`
	MaxRetries         int           `mapstructure:"max_retries"`
	SnapshotRetryDelay time.Duration `mapstructure:"snapshot_retry_delay"`
	GapRetryDelay      time.Duration `mapstructure:"gap_retry_delay"`
	WindowRetryDelay   time.Duration `mapstructure:"window_retry_delay"`
	FetchConcurrency   int           `mapstructure:"fetch_concurrency"`
	AdvisoryLockKey    int64         `mapstructure:"advisory_lock_key"`
	DeliveryTimeout    time.Duration `mapstructure:"delivery_timeout"`
	StartupDelay       time.Duration `mapstructure:"startup_delay"`
}

// NotifyConfig defines the outbound message transport.
type NotifyConfig struct {
	Transport      string         `mapstructure:"transport"`
	CurrencySymbol string         `mapstructure:"currency_symbol"`
	Twilio         TwilioConfig   `mapstructure:"twilio"`
	Telegram       TelegramConfig `mapstructure:"telegram"`
}

// TwilioConfig holds WhatsApp-over-Twilio credentials.
type TwilioConfig struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	FromNumber string `mapstructure:"from_number"`
	APIBase    string `mapstructure:"api_base"`
}

// TelegramConfig describes the Telegram bot transport.
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	APIBase  string `mapstructure:"api_base"`
}

// WebhookConfig controls the inbound HTTP server.
type WebhookConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// DefaultExchangeSymbols are listed on the primary exchange and get its suffix.
var DefaultExchangeSymbols = []string{
	"TCS", "INFY", "RELIANCE", "HDFCBANK", "ICICIBANK", "SBIN", "BHARTIARTL",
	"HINDUNILVR", "ITC", "LT", "KOTAKBANK", "ASIANPAINT", "AXISBANK",
	"MARUTI", "TITAN", "BAJFINANCE", "WIPRO", "ULTRACEMCO", "SUNPHARMA",
	"NESTLEIND", "TECHM", "HCLTECH", "POWERGRID", "NTPC", "ONGC",
	"TATASTEEL", "TATAMOTORS", "M&M", "ADANIPORTS", "JSWSTEEL",
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STOCKALERT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "stockalert")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("cache.fast_ttl", "60s")
	v.SetDefault("cache.durable_ttl", "300s")

	v.SetDefault("market.timezone", "Asia/Kolkata")
	v.SetDefault("market.weekend_days", []int{6, 0})
	v.SetDefault("market.pre_open", "09:00")
	v.SetDefault("market.open", "09:15")
	v.SetDefault("market.close", "15:30")
	v.SetDefault("market.post_close", "16:00")

	v.SetDefault("quotes.base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("quotes.request_timeout", "10s")
	v.SetDefault("quotes.user_agent", "")
	v.SetDefault("quotes.exchange_suffix", ".NS")
	v.SetDefault("quotes.exchange_symbols", DefaultExchangeSymbols)

	v.SetDefault("monitor.snapshot_interval", "1m")
	v.SetDefault("monitor.gap_interval", "5m")
	v.SetDefault("monitor.window_interval", "1m")
	v.SetDefault("monitor.gap_check_window", "10m")
	v.SetDefault("monitor.cooldown", "1h")
	v.SetDefault("monitor.snapshot_horizon", "2h")
	v.SetDefault("monitor.max_retries", 3)
	v.SetDefault("monitor.snapshot_retry_delay", "60s")
	v.SetDefault("monitor.gap_retry_delay", "300s")
	v.SetDefault("monitor.window_retry_delay", "60s")
	v.SetDefault("monitor.fetch_concurrency", 4)
	v.SetDefault("monitor.advisory_lock_key", int64(0))
	v.SetDefault("monitor.delivery_timeout", "10s")
	v.SetDefault("monitor.startup_delay", "0s")

	v.SetDefault("notify.transport", "log")
	v.SetDefault("notify.currency_symbol", "₹")
	// credentials need a default so AutomaticEnv picks them up on Unmarshal
	v.SetDefault("notify.twilio.account_sid", "")
	v.SetDefault("notify.twilio.auth_token", "")
	v.SetDefault("notify.twilio.from_number", "")
	v.SetDefault("notify.twilio.api_base", "https://api.twilio.com")
	v.SetDefault("notify.telegram.bot_token", "")
	v.SetDefault("notify.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("webhook.enabled", true)
	v.SetDefault("webhook.listen_addr", ":8080")

	v.SetDefault("export.max_data_points", 10000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
		dc.WeaklyTypedInput = true
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Cache.FastTTL <= 0 || c.Cache.DurableTTL <= 0 {
		return fmt.Errorf("cache.fast_ttl and cache.durable_ttl must be greater than zero")
	}

	m := c.Monitor
	if m.SnapshotInterval <= 0 || m.GapInterval <= 0 || m.WindowInterval <= 0 {
		return fmt.Errorf("monitor intervals must be greater than zero")
	}
	if m.Cooldown < 0 || m.GapCheckWindow < 0 {
		return fmt.Errorf("monitor.cooldown and monitor.gap_check_window cannot be negative")
	}
	if m.SnapshotHorizon < maxWindow {
		return fmt.Errorf("monitor.snapshot_horizon must be at least %s", maxWindow)
	}
	if m.MaxRetries < 0 {
		return fmt.Errorf("monitor.max_retries cannot be negative")
	}
	if m.FetchConcurrency <= 0 {
		return fmt.Errorf("monitor.fetch_concurrency must be greater than zero")
	}

	if _, err := time.LoadLocation(c.Market.Timezone); err != nil {
		return fmt.Errorf("market.timezone: %w", err)
	}
	if _, err := c.Market.Weekdays(); err != nil {
		return err
	}
	if _, err := c.Market.Session(); err != nil {
		return err
	}

	switch strings.ToLower(c.Notify.Transport) {
	case "log":
	case "twilio":
		t := c.Notify.Twilio
		if t.AccountSID == "" || t.AuthToken == "" || t.FromNumber == "" {
			return fmt.Errorf("notify.twilio.account_sid, auth_token and from_number are required")
		}
	case "telegram":
		if c.Notify.Telegram.BotToken == "" {
			return fmt.Errorf("notify.telegram.bot_token is required")
		}
	default:
		return fmt.Errorf("unsupported notify.transport %q", c.Notify.Transport)
	}
	return nil
}

// Weekdays converts weekend_days into time.Weekday values.
func (m MarketConfig) Weekdays() ([]time.Weekday, error) {
	days := make([]time.Weekday, 0, len(m.WeekendDays))
	for _, d := range m.WeekendDays {
		if d < 0 || d > 6 {
			return nil, fmt.Errorf("market.weekend_days: %d is not a weekday number (0=Sunday..6=Saturday)", d)
		}
		days = append(days, time.Weekday(d))
	}
	return days, nil
}

// Session parses the four HH:MM boundaries into offsets from midnight.
func (m MarketConfig) Session() ([4]time.Duration, error) {
	var out [4]time.Duration
	for i, raw := range []string{m.PreOpen, m.Open, m.Close, m.PostClose} {
		parsed, err := time.Parse("15:04", strings.TrimSpace(raw))
		if err != nil {
			return out, fmt.Errorf("market session time %q: %w", raw, err)
		}
		out[i] = time.Duration(parsed.Hour())*time.Hour + time.Duration(parsed.Minute())*time.Minute
	}
	if !(out[0] <= out[1] && out[1] < out[2] && out[2] <= out[3]) {
		return out, fmt.Errorf("market session boundaries must be ordered pre_open <= open < close <= post_close")
	}
	return out, nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
