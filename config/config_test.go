package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/etnz/holdings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hld.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "files:holdings", cfg.Store)
	assert.Equal(t, "TRY", cfg.Pivot)
	assert.Equal(t, holdings.Policy{}, cfg.Policy())
	assert.Len(t, cfg.Schedule.Rates, 3)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
store: sqlite:/tmp/h.db
reportCurrency: USD
oversell: reject
includeFees: true
prices:
  url: https://example.com/quote?isin={symbol}
  path: $.last
  currency: EUR
server:
  addr: 127.0.0.1:9000
schedule:
  prices: []
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite:/tmp/h.db", cfg.Store)
	assert.Equal(t, "USD", cfg.ReportCurrency)
	assert.Equal(t, holdings.Policy{Oversell: holdings.OversellReject, IncludeFees: true}, cfg.Policy())
	assert.Equal(t, "EUR", cfg.Prices.Currency)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Empty(t, cfg.Schedule.Prices)
	assert.Len(t, cfg.Schedule.Rates, 3, "defaults survive when not overridden")
}

func TestEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeFile(t, "store: memory\nlog: {level: info}\n")
	t.Setenv("HLD_STORE", "files:/data")
	t.Setenv("HLD_LOG_LEVEL", "debug")
	t.Setenv("HLD_INCLUDE_FEES", "true")
	t.Setenv("HLD_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("HLD_SCHEDULE_PRICES", "-")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "files:/data", cfg.Store)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.IncludeFees)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Nil(t, cfg.Schedule.Prices)
}

func TestDotEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, os.WriteFile(".env", []byte("HLD_REPORT_CURRENCY=EUR\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("HLD_REPORT_CURRENCY") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "EUR", cfg.ReportCurrency)
}

func TestInvalid(t *testing.T) {
	testCases := map[string]string{
		"pivot":          "pivot: try\n",
		"report":         "reportCurrency: $\n",
		"oversell":       "oversell: maybe\n",
		"price url":      "prices: {url: 'https://x', path: $.a, currency: EUR}\n",
		"price path":     "prices: {url: 'https://x/{symbol}', currency: EUR}\n",
		"price currency": "prices: {url: 'https://x/{symbol}', path: $.a}\n",
		"cron":           "schedule: {rates: ['at noon']}\n",
		"yaml":           "store: [\n",
	}
	for name, content := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
