package crawler

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config captures every knob that influences a crawl run.
type Config struct {
	// BaseURL is the root of the schedule site, e.g. https://sites.grenadine.co/sites/acme/en/conf2024.
	BaseURL string
	// EventLimit caps how many listed events are crawled; zero means all.
	EventLimit      int
	SpeakerDelay    time.Duration
	EventDelay      time.Duration
	CalendarTimeout time.Duration
	SessionTimeout  time.Duration
	ProfileTimeout  time.Duration
}

// Validate checks for obviously bad configuration combinations.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base url must be set")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base url %q must be absolute", c.BaseURL)
	}
	if c.EventLimit < 0 {
		return fmt.Errorf("event limit must be >= 0")
	}
	if c.SpeakerDelay < 0 || c.EventDelay < 0 {
		return fmt.Errorf("pacing delays must be >= 0")
	}
	if c.CalendarTimeout <= 0 || c.SessionTimeout <= 0 || c.ProfileTimeout <= 0 {
		return fmt.Errorf("page timeouts must be > 0")
	}
	return nil
}

// CalendarURL is the schedule overview listing every session.
func (c Config) CalendarURL() string {
	return c.root() + "/schedule?date=all"
}

// SessionURL is the detail page for one session.
func (c Config) SessionURL(sessionID string) string {
	return c.root() + "/schedule/" + url.PathEscape(sessionID) + "/"
}

func (c Config) root() string {
	return strings.TrimRight(c.BaseURL, "/")
}
