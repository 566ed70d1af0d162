// Package config loads and validates crawler configuration via Viper.
//
// Keys are read from the environment under their upper-case names (BASE_URL,
// DATABASE_URL, ...), from an optional .env file, and from an optional YAML
// file named by CONFIG_FILE. The environment wins over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/schedule-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/schedule-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/schedule-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/schedule-crawler/internal/storage/postgres"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Fetcher backends.
const (
	FetcherChromedp = "chromedp"
	FetcherStatic   = "static"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	BaseURL     string `mapstructure:"base_url"`
	DatabaseURL string `mapstructure:"database_url"`
	Store       string `mapstructure:"store"`
	// EventsToProcess caps the crawl; zero means every listed event.
	EventsToProcess int    `mapstructure:"events_to_process"`
	Headless        bool   `mapstructure:"headless"`
	Fetcher         string `mapstructure:"fetcher"`
	UserAgent       string `mapstructure:"user_agent"`
	RespectRobots   bool   `mapstructure:"respect_robots"`
	// RenderSettleMs is how long the browser waits after the ready selector.
	RenderSettleMs int `mapstructure:"render_settle_ms"`

	DelayBetweenSpeakersMs int `mapstructure:"delay_between_speakers"`
	DelayBetweenEventsMs   int `mapstructure:"delay_between_events"`
	CalendarTimeoutMs      int `mapstructure:"calendar_timeout_ms"`
	SessionTimeoutMs       int `mapstructure:"session_timeout_ms"`
	ProfileTimeoutMs       int `mapstructure:"profile_timeout_ms"`

	LogDevelopment bool   `mapstructure:"log_development"`
	MetricsAddr    string `mapstructure:"metrics_addr"`
}

// Load builds a Config from an optional dotenv file, an optional YAML file
// named by CONFIG_FILE, and the environment. A missing dotenv file is not an error.
func Load(dotenv string) (Config, error) {
	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", dotenv, err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("config_file", "")
	v.SetDefault("base_url", "")
	v.SetDefault("database_url", "")
	v.SetDefault("store", StorePostgres)
	v.SetDefault("events_to_process", 0)
	v.SetDefault("headless", true)
	v.SetDefault("fetcher", FetcherChromedp)
	v.SetDefault("user_agent", "schedule-crawler/0.1")
	v.SetDefault("respect_robots", false)
	v.SetDefault("render_settle_ms", 500)
	v.SetDefault("delay_between_speakers", 2000)
	v.SetDefault("delay_between_events", 2000)
	v.SetDefault("calendar_timeout_ms", 30000)
	v.SetDefault("session_timeout_ms", 5000)
	v.SetDefault("profile_timeout_ms", 30000)
	v.SetDefault("log_development", false)
	v.SetDefault("metrics_addr", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("BASE_URL must be set")
	}
	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("BASE_URL %q must be an absolute url", c.BaseURL)
	}
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set when STORE=%s", StorePostgres)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store)
	}
	switch c.Fetcher {
	case FetcherChromedp, FetcherStatic:
	default:
		return fmt.Errorf("FETCHER must be %q or %q, got %q", FetcherChromedp, FetcherStatic, c.Fetcher)
	}
	if c.EventsToProcess < 0 {
		return fmt.Errorf("EVENTS_TO_PROCESS must be >= 0")
	}
	if c.DelayBetweenSpeakersMs < 0 || c.DelayBetweenEventsMs < 0 {
		return fmt.Errorf("DELAY_BETWEEN_SPEAKERS and DELAY_BETWEEN_EVENTS must be >= 0")
	}
	if c.RenderSettleMs < 0 {
		return fmt.Errorf("RENDER_SETTLE_MS must be >= 0")
	}
	if c.CalendarTimeoutMs <= 0 || c.SessionTimeoutMs <= 0 || c.ProfileTimeoutMs <= 0 {
		return fmt.Errorf("page timeouts must be > 0")
	}
	return nil
}

// Crawler converts the config into the orchestrator's settings.
func (c Config) Crawler() crawler.Config {
	return crawler.Config{
		BaseURL:         c.BaseURL,
		EventLimit:      c.EventsToProcess,
		SpeakerDelay:    millis(c.DelayBetweenSpeakersMs),
		EventDelay:      millis(c.DelayBetweenEventsMs),
		CalendarTimeout: millis(c.CalendarTimeoutMs),
		SessionTimeout:  millis(c.SessionTimeoutMs),
		ProfileTimeout:  millis(c.ProfileTimeoutMs),
	}
}

// Chromedp returns the browser fetcher settings.
func (c Config) Chromedp() headless.Config {
	return headless.Config{
		Headless:       c.Headless,
		UserAgent:      c.UserAgent,
		DefaultTimeout: millis(c.CalendarTimeoutMs),
		SettleDelay:    millis(c.RenderSettleMs),
	}
}

// Static returns the plain HTTP fetcher settings.
func (c Config) Static() collyfetcher.Config {
	return collyfetcher.Config{
		UserAgent:      c.UserAgent,
		RespectRobots:  c.RespectRobots,
		DefaultTimeout: millis(c.CalendarTimeoutMs),
	}
}

// Postgres returns the store connection settings.
func (c Config) Postgres() postgres.Config {
	return postgres.Config{DSN: c.DatabaseURL, MaxConns: 4}
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
