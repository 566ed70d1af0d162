package headless

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/schedule-crawler/internal/schedule"
)

func TestNewChromedpDefaults(t *testing.T) {
	t.Parallel()

	fetcher := NewChromedp(Config{Headless: true}, nil)
	defer fetcher.Close()

	require.Equal(t, defaultTimeout, fetcher.cfg.DefaultTimeout)
	require.Equal(t, 1, cap(fetcher.slot), "one page is open at a time")
}

func TestFetcherTimeoutSelection(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{}
	require.Equal(t, defaultTimeout, fetcher.timeout(schedule.FetchRequest{}))

	fetcher.cfg.DefaultTimeout = time.Second
	require.Equal(t, time.Second, fetcher.timeout(schedule.FetchRequest{}))
	require.Equal(t, 5*time.Second, fetcher.timeout(schedule.FetchRequest{Timeout: 5 * time.Second}))
}

func TestTasksIncludeSettleDelay(t *testing.T) {
	t.Parallel()

	var html string
	fetcher := &Fetcher{}
	require.Len(t, fetcher.tasks("https://example.com", "body", &html), 4)

	fetcher.cfg.SettleDelay = 500 * time.Millisecond
	tasks := fetcher.tasks("https://example.com", "body", &html)
	require.Len(t, tasks, 5)
	require.Equal(t, fmt.Sprintf("%T", chromedp.Sleep(time.Millisecond)), fmt.Sprintf("%T", tasks[3]))
}

func TestAcquireHonorsContext(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{slot: make(chan struct{}, 1)}
	require.NoError(t, fetcher.acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := fetcher.acquire(ctx)
	require.ErrorIs(t, err, schedule.ErrFetch)
	require.ErrorIs(t, err, context.Canceled)

	fetcher.release()
	require.NoError(t, fetcher.acquire(context.Background()))
}

func TestResponseMetaKeepsFirstDocumentStatus(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 500},
	})
	require.Zero(t, meta.statusCode())

	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 404},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 200},
	})
	require.Equal(t, 404, meta.statusCode())
}

func TestForwardCancel(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()

	stop := forwardCancel(parent, cancelChild)
	defer stop()

	cancelParent()
	select {
	case <-child.Done():
	case <-time.After(time.Second):
		t.Fatal("parent cancellation was not forwarded")
	}
}

func TestFetchRendersScriptContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<!doctype html><html><body><script>
setTimeout(function () {
  var d = document.createElement('div');
  d.setAttribute('data-session-id', '1001');
  d.textContent = 'late content';
  document.body.appendChild(d);
}, 50);
</script></body></html>`)
	}))
	defer srv.Close()

	fetcher := NewChromedp(Config{Headless: true, UserAgent: "TestAgent"}, zap.NewNop())
	defer fetcher.Close()

	body, err := fetcher.Fetch(context.Background(), schedule.FetchRequest{
		URL:          srv.URL,
		WaitSelector: "[data-session-id]",
		Timeout:      10 * time.Second,
	})
	if err != nil {
		t.Skipf("chromedp unavailable: %v", err)
	}
	require.True(t, strings.Contains(string(body), "late content"))
}
