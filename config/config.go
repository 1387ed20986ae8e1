// Package config loads the settings of the hld command and server.
//
// Settings are read, in order of increasing priority, from built-in
// defaults, a YAML file, a .env file and HLD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/etnz/holdings"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file read when none is given and it
// exists.
const DefaultPath = "hld.yaml"

// Config holds application configuration.
type Config struct {
	// Store is a store spec, see store.Open.
	Store          string `yaml:"store"`
	Pivot          string `yaml:"pivot"`
	ReportCurrency string `yaml:"reportCurrency"`
	Oversell       string `yaml:"oversell"`
	IncludeFees    bool   `yaml:"includeFees"`
	CacheDir       string `yaml:"cacheDir"`

	Rates    Rates    `yaml:"rates"`
	Prices   Prices   `yaml:"prices"`
	Server   Server   `yaml:"server"`
	Log      Log      `yaml:"log"`
	Schedule Schedule `yaml:"schedule"`
}

// Rates selects the rate source: File when set, the quote document
// otherwise.
type Rates struct {
	QuotesURL string `yaml:"quotesURL"`
	File      string `yaml:"file"`
}

// Prices configures the JSONPath price source. It is disabled when URL is
// empty.
type Prices struct {
	URL      string `yaml:"url"`
	Path     string `yaml:"path"`
	Currency string `yaml:"currency"`
}

type Server struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type Log struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Schedule holds cron specs for the refresh jobs. An empty list disables the
// job.
type Schedule struct {
	Rates  []string `yaml:"rates"`
	Prices []string `yaml:"prices"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Store:          "files:holdings",
		Pivot:          holdings.DefaultPivot,
		ReportCurrency: holdings.DefaultPivot,
		Oversell:       holdings.OversellAllow.String(),
		Server:         Server{Addr: ":8080", AllowedOrigins: []string{"*"}},
		Log:            Log{Level: "info"},
		Schedule: Schedule{
			// quote documents are updated through the trading day.
			Rates:  []string{"0 10 * * *", "30 13 * * *", "0 17 * * *"},
			Prices: []string{"15 17 * * 1-5"},
		},
	}
}

// Load reads configuration from path, then from the environment. When path
// is empty, HLD_CONFIG is used, then DefaultPath.
//
// A missing file is an error, except for DefaultPath which is optional.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("HLD_CONFIG")
	}
	if path == "" {
		path = DefaultPath
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("could not read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("could not parse config %s: %w", path, err)
		}
	}

	// Load .env file if it exists
	_ = godotenv.Load()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Store = getEnv("HLD_STORE", c.Store)
	c.Pivot = getEnv("HLD_PIVOT", c.Pivot)
	c.ReportCurrency = getEnv("HLD_REPORT_CURRENCY", c.ReportCurrency)
	c.Oversell = getEnv("HLD_OVERSELL", c.Oversell)
	c.IncludeFees = getEnvAsBool("HLD_INCLUDE_FEES", c.IncludeFees)
	c.CacheDir = getEnv("HLD_CACHE_DIR", c.CacheDir)
	c.Rates.QuotesURL = getEnv("HLD_QUOTES_URL", c.Rates.QuotesURL)
	c.Rates.File = getEnv("HLD_RATE_FILE", c.Rates.File)
	c.Prices.URL = getEnv("HLD_PRICE_URL", c.Prices.URL)
	c.Prices.Path = getEnv("HLD_PRICE_PATH", c.Prices.Path)
	c.Prices.Currency = getEnv("HLD_PRICE_CURRENCY", c.Prices.Currency)
	c.Server.Addr = getEnv("HLD_ADDR", c.Server.Addr)
	c.Server.AllowedOrigins = getEnvAsList("HLD_ALLOWED_ORIGINS", c.Server.AllowedOrigins)
	c.Log.Level = getEnv("HLD_LOG_LEVEL", c.Log.Level)
	c.Log.Pretty = getEnvAsBool("HLD_LOG_PRETTY", c.Log.Pretty)
	c.Schedule.Rates = getEnvAsList("HLD_SCHEDULE_RATES", c.Schedule.Rates)
	c.Schedule.Prices = getEnvAsList("HLD_SCHEDULE_PRICES", c.Schedule.Prices)
}

// Validate checks every setting and reports all the problems found.
func (c *Config) Validate() error {
	var errs []error
	if c.Store == "" {
		errs = append(errs, errors.New("store is required"))
	}
	if err := holdings.ValidateCurrency(c.Pivot); err != nil {
		errs = append(errs, fmt.Errorf("pivot: %w", err))
	}
	if c.ReportCurrency != "" {
		if err := holdings.ValidateCurrency(c.ReportCurrency); err != nil {
			errs = append(errs, fmt.Errorf("reportCurrency: %w", err))
		}
	}
	if _, err := holdings.ParseOversellPolicy(c.Oversell); err != nil {
		errs = append(errs, err)
	}
	if c.Prices.URL != "" {
		if !strings.Contains(c.Prices.URL, "{symbol}") {
			errs = append(errs, fmt.Errorf("prices.url %q has no {symbol} placeholder", c.Prices.URL))
		}
		if c.Prices.Path == "" {
			errs = append(errs, errors.New("prices.path is required with prices.url"))
		}
		if err := holdings.ValidateCurrency(c.Prices.Currency); err != nil {
			errs = append(errs, fmt.Errorf("prices.currency: %w", err))
		}
	}
	for _, spec := range append(append([]string{}, c.Schedule.Rates...), c.Schedule.Prices...) {
		if _, err := cron.ParseStandard(spec); err != nil {
			errs = append(errs, fmt.Errorf("schedule %q: %w", spec, err))
		}
	}
	return errors.Join(errs...)
}

// Policy returns the aggregation policy.
func (c *Config) Policy() holdings.Policy {
	p, _ := holdings.ParseOversellPolicy(c.Oversell)
	return holdings.Policy{Oversell: p, IncludeFees: c.IncludeFees}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value. "-" means an empty list.
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	switch value {
	case "":
		return defaultValue
	case "-":
		return nil
	}
	var res []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			res = append(res, v)
		}
	}
	return res
}
