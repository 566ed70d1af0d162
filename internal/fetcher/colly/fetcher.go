// Package collyfetcher implements schedule.PageFetcher with plain HTTP via gocolly.
// It does not run JavaScript, so it only suits server-rendered mirrors of a
// schedule site and local fixtures.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/schedule-crawler/internal/schedule"
)

// Config controls collector behavior.
type Config struct {
	UserAgent      string
	RespectRobots  bool
	DefaultTimeout time.Duration
}

// Fetcher implements schedule.PageFetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnHTML(string, colly.HTMLCallback)
	OnError(colly.ErrorCallback)
}

// fetchState collects what the hooks observe during one visit.
type fetchState struct {
	body     []byte
	status   int
	matched  bool
	fetchErr error
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch performs one GET and checks that the request's wait selector is present.
// Errors wrap schedule.ErrFetch.
func (f *Fetcher) Fetch(ctx context.Context, request schedule.FetchRequest) ([]byte, error) {
	state := &fetchState{}
	collector := f.buildCollector(request)
	f.configureCollectorHooks(collector, request, state)

	if err := f.runCollector(ctx, collector, request.URL, state); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", schedule.ErrFetch, request.URL, err)
	}
	if request.WaitSelector != "" && !state.matched {
		return nil, fmt.Errorf("%w: %s: selector %q not present", schedule.ErrFetch, request.URL, request.WaitSelector)
	}
	return state.body, nil
}

func (f *Fetcher) buildCollector(request schedule.FetchRequest) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	collector.SetRequestTimeout(f.timeout(request))
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, request schedule.FetchRequest, state *fetchState) {
	hooks.OnResponse(func(r *colly.Response) {
		state.status = r.StatusCode
		state.body = append([]byte(nil), r.Body...)
	})
	if request.WaitSelector != "" {
		hooks.OnHTML(request.WaitSelector, func(_ *colly.HTMLElement) {
			state.matched = true
		})
	}
	hooks.OnError(func(_ *colly.Response, err error) {
		state.fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, state *fetchState) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if state.fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", state.fetchErr)
		}
		return nil
	}
}

func (f *Fetcher) timeout(request schedule.FetchRequest) time.Duration {
	if request.Timeout > 0 {
		return request.Timeout
	}
	if f.cfg.DefaultTimeout > 0 {
		return f.cfg.DefaultTimeout
	}
	return 15 * time.Second
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
