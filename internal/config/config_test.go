package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 60*time.Second, cfg.Cache.FastTTL)
	assert.Equal(t, 300*time.Second, cfg.Cache.DurableTTL)
	assert.Equal(t, time.Hour, cfg.Monitor.Cooldown)
	assert.Equal(t, 2*time.Hour, cfg.Monitor.SnapshotHorizon)
	assert.Equal(t, 3, cfg.Monitor.MaxRetries)
	assert.Equal(t, 300*time.Second, cfg.Monitor.GapRetryDelay)
	assert.Equal(t, "Asia/Kolkata", cfg.Market.Timezone)
	assert.Contains(t, cfg.Quotes.ExchangeSymbols, "TCS")

	days, err := cfg.Market.Weekdays()
	require.NoError(t, err)
	assert.ElementsMatch(t, []time.Weekday{time.Saturday, time.Sunday}, days)

	session, err := cfg.Market.Session()
	require.NoError(t, err)
	assert.Equal(t, 9*time.Hour+15*time.Minute, session[1])
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("STOCKALERT_MONITOR_COOLDOWN", "30m")
	t.Setenv("STOCKALERT_NOTIFY_TRANSPORT", "telegram")
	t.Setenv("STOCKALERT_NOTIFY_TELEGRAM_BOT_TOKEN", "token")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cfg.Monitor.Cooldown)
	assert.Equal(t, "telegram", cfg.Notify.Transport)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte(`
market:
  timezone: America/New_York
  weekend_days: [0, 6]
  pre_open: "04:00"
  open: "09:30"
  close: "16:00"
  post_close: "20:00"
monitor:
  fetch_concurrency: 8
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", cfg.Market.Timezone)
	assert.Equal(t, 8, cfg.Monitor.FetchConcurrency)
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	cases := map[string]func(c *Config){
		"short horizon":    func(c *Config) { c.Monitor.SnapshotHorizon = time.Hour },
		"zero fast ttl":    func(c *Config) { c.Cache.FastTTL = 0 },
		"bad weekday":      func(c *Config) { c.Market.WeekendDays = []int{7} },
		"bad session time": func(c *Config) { c.Market.Open = "9am" },
		"session order":    func(c *Config) { c.Market.Close = "09:00" },
		"twilio creds":     func(c *Config) { c.Notify.Transport = "twilio" },
		"unknown channel":  func(c *Config) { c.Notify.Transport = "pigeon" },
		"bad timezone":     func(c *Config) { c.Market.Timezone = "Mars/Olympus" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := *base
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
