// Package headless contains page fetchers that execute JavaScript via browsers.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/schedule-crawler/internal/schedule"
)

const defaultTimeout = 30 * time.Second

// Config controls the behavior of the headless fetcher.
type Config struct {
	// Headless runs Chrome without a window; false opens a visible browser.
	Headless       bool
	UserAgent      string
	DefaultTimeout time.Duration
	// SettleDelay lets client-side rendering finish after the ready selector
	// appears. Zero disables it.
	SettleDelay time.Duration
}

// Fetcher implements schedule.PageFetcher using chromedp. One browser process
// serves the whole run; every Fetch opens its own tab and closes it on return.
type Fetcher struct {
	cfg         Config
	logger      *zap.Logger
	slot        chan struct{}
	allocCancel context.CancelFunc
	browser     context.Context
	browserStop context.CancelFunc

	startOnce sync.Once
	startErr  error
}

// NewChromedp creates a headless fetcher. The browser starts on first use.
func NewChromedp(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultTimeout
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserStop := chromedp.NewContext(allocCtx)

	return &Fetcher{
		cfg:         cfg,
		logger:      logger,
		slot:        make(chan struct{}, 1),
		allocCancel: allocCancel,
		browser:     browserCtx,
		browserStop: browserStop,
	}
}

// Close shuts down the browser process.
func (f *Fetcher) Close() {
	f.browserStop()
	f.allocCancel()
}

// Fetch navigates to the URL in a fresh tab, waits for the request's selector,
// and returns the rendered DOM. Errors wrap schedule.ErrFetch.
func (f *Fetcher) Fetch(ctx context.Context, request schedule.FetchRequest) ([]byte, error) {
	if err := f.acquire(ctx); err != nil {
		return nil, err
	}
	defer f.release()

	if err := f.start(); err != nil {
		return nil, err
	}

	tabCtx, closeTab := chromedp.NewContext(f.browser)
	defer closeTab()

	taskCtx, cancel := context.WithTimeout(tabCtx, f.timeout(request))
	defer cancel()

	stopForward := forwardCancel(ctx, cancel)
	defer stopForward()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	start := time.Now()
	html, err := f.run(taskCtx, request)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", schedule.ErrFetch, request.URL, err)
	}
	if status := meta.statusCode(); status >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: %s: status %d", schedule.ErrFetch, request.URL, status)
	}
	f.logger.Debug("page rendered",
		zap.String("url", request.URL),
		zap.Duration("duration", time.Since(start)),
		zap.Int("bytes", len(html)))
	return []byte(html), nil
}

func (f *Fetcher) start() error {
	f.startOnce.Do(func() {
		if err := chromedp.Run(f.browser); err != nil {
			f.startErr = fmt.Errorf("%w: start browser: %w", schedule.ErrFetch, err)
		}
	})
	return f.startErr
}

func (f *Fetcher) run(ctx context.Context, request schedule.FetchRequest) (string, error) {
	waitFor := request.WaitSelector
	if waitFor == "" {
		waitFor = "body"
	}
	var html string
	if err := chromedp.Run(ctx, f.tasks(request.URL, waitFor, &html)); err != nil {
		return "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, nil
}

func (f *Fetcher) tasks(url, waitFor string, html *string) chromedp.Tasks {
	tasks := chromedp.Tasks{
		f.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady(waitFor, chromedp.ByQuery),
	}
	if f.cfg.SettleDelay > 0 {
		tasks = append(tasks, chromedp.Sleep(f.cfg.SettleDelay))
	}
	return append(tasks, chromedp.OuterHTML("html", html, chromedp.ByQuery))
}

func (f *Fetcher) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	select {
	case f.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: browser slot wait canceled: %w", schedule.ErrFetch, ctx.Err())
	}
}

func (f *Fetcher) release() {
	select {
	case <-f.slot:
	default:
	}
}

func (f *Fetcher) timeout(request schedule.FetchRequest) time.Duration {
	if request.Timeout > 0 {
		return request.Timeout
	}
	if f.cfg.DefaultTimeout > 0 {
		return f.cfg.DefaultTimeout
	}
	return defaultTimeout
}

// responseMeta records the status of the main document response.
type responseMeta struct {
	mu     sync.Mutex
	status int
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	if m.status == 0 {
		m.status = int(resp.Response.Status)
	}
	m.mu.Unlock()
}

func (m *responseMeta) statusCode() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
