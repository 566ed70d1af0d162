package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/schedule-crawler/internal/reconcile"
	"github.com/JakeFAU/schedule-crawler/internal/schedule"
)

const testBase = "https://sites.example/sites/acme/en/conf2024"

// siteFetcher serves canned pages by URL.
type siteFetcher struct {
	mu       sync.Mutex
	pages    map[string]string
	failures map[string]error
	requests []schedule.FetchRequest
	onFetch  func(req schedule.FetchRequest)
}

func newSiteFetcher() *siteFetcher {
	return &siteFetcher{pages: map[string]string{}, failures: map[string]error{}}
}

func (f *siteFetcher) Fetch(ctx context.Context, req schedule.FetchRequest) ([]byte, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	hook := f.onFetch
	f.mu.Unlock()
	if hook != nil {
		hook(req)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", schedule.ErrFetch, err)
	}
	if err, ok := f.failures[req.URL]; ok {
		return nil, err
	}
	body, ok := f.pages[req.URL]
	if !ok {
		return nil, fmt.Errorf("%w: no page for %s", schedule.ErrFetch, req.URL)
	}
	return []byte(body), nil
}

func (f *siteFetcher) urls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.requests))
	for _, r := range f.requests {
		out = append(out, r.URL)
	}
	return out
}

type recordingPauser struct {
	delays []time.Duration
}

func (p *recordingPauser) Pause(_ context.Context, delay time.Duration) {
	p.delays = append(p.delays, delay)
}

func (p *recordingPauser) count(delay time.Duration) int {
	n := 0
	for _, d := range p.delays {
		if d == delay {
			n++
		}
	}
	return n
}

type testSpeaker struct {
	id   string
	name string
	role string
}

func calendarPage(ids ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, id := range ids {
		fmt.Fprintf(&b, `<div data-session-id="%s"><a class="card-title">Session %s</a>`+
			`<span class="time-muted">10:00 AM - 11:00 AM | 1 hour</span>`+
			`<div class="text-small"><a>Room %s</a></div></div>`, id, id, id)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func sessionPage(date string, speakers ...testSpeaker) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<html><body><p class="time-muted">10:00 AM - 11:00 AM, %s (1 hour)</p>`, date)
	b.WriteString(`<div class="d-flex flex-wrap justify-content-center my-5">`)
	for _, s := range speakers {
		b.WriteString("<div>")
		if s.id != "" {
			fmt.Fprintf(&b, `<a href="/sites/acme/en/conf2024/people/%s"><img src="/img/%s.png"></a>`, s.id, s.id)
		}
		fmt.Fprintf(&b, `<p class="text-dark text-small mb-0">%s</p><span class="badge">%s</span></div>`, s.name, s.role)
	}
	b.WriteString("</div></body></html>")
	return b.String()
}

func testConfig() Config {
	return Config{
		BaseURL:         testBase + "/",
		SpeakerDelay:    2 * time.Second,
		EventDelay:      3 * time.Second,
		CalendarTimeout: time.Second,
		SessionTimeout:  time.Second,
		ProfileTimeout:  time.Second,
	}
}

func newTestOrchestrator(t *testing.T, cfg Config, fetcher schedule.PageFetcher, speakers SpeakerSet) (*Orchestrator, *recordingPauser) {
	t.Helper()
	o, err := NewOrchestrator(cfg, fetcher, speakers, zap.NewNop())
	require.NoError(t, err)
	pauser := &recordingPauser{}
	o.pauser = pauser
	return o, pauser
}

// fiveEventSite lists five sessions; 1003 fails to load and 1004 has an unparseable date.
func fiveEventSite() *siteFetcher {
	cfg := testConfig()
	f := newSiteFetcher()
	f.pages[cfg.CalendarURL()] = calendarPage("1001", "1002", "1003", "1004", "1005")
	ada := testSpeaker{id: "77", name: "Ada Lovelace", role: "Moderator"}
	grace := testSpeaker{id: "88", name: "Grace Hopper", role: "Speaker"}
	f.pages[cfg.SessionURL("1001")] = sessionPage("Friday 4 Oct 2024", ada, grace)
	f.pages[cfg.SessionURL("1002")] = sessionPage("Friday 4 Oct 2024", ada)
	f.failures[cfg.SessionURL("1003")] = fmt.Errorf("%w: timeout", schedule.ErrFetch)
	f.pages[cfg.SessionURL("1004")] = sessionPage("sometime soon", grace)
	f.pages[cfg.SessionURL("1005")] = sessionPage("Saturday 5 Oct 2024", testSpeaker{name: "Guest", role: "Panelist"})
	return f
}

func TestRunIsolatesFailedEvents(t *testing.T) {
	fetcher := fiveEventSite()
	o, _ := newTestOrchestrator(t, testConfig(), fetcher, reconcile.New(nil, zap.NewNop()))

	res, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Events, 5)

	first := res.Events[0]
	require.True(t, first.Resolved())
	require.Empty(t, first.SessionTime)
	require.Equal(t, time.Date(2024, 10, 4, 10, 0, 0, 0, time.UTC), first.Schedule.StartTime)
	require.Equal(t, time.Date(2024, 10, 4, 11, 0, 0, 0, time.UTC), first.Schedule.EndTime)
	require.Equal(t, []schedule.SpeakerRole{
		{SpeakerID: "77", Role: "Moderator"},
		{SpeakerID: "88", Role: "Speaker"},
	}, first.Speakers)

	failed := res.Events[2]
	require.False(t, failed.Resolved())
	require.Equal(t, "10:00 AM - 11:00 AM | 1 hour", failed.SessionTime)
	require.Nil(t, failed.Speakers)

	require.True(t, res.Events[4].Resolved(), "events after a failure are still crawled")

	require.Equal(t, 5, res.Stats.Listed)
	require.Equal(t, 5, res.Stats.Crawled)
	require.Equal(t, 3, res.Stats.Resolved)
	require.Equal(t, 1, res.Stats.RawTime)
	require.Equal(t, 1, res.Stats.Failed)
	require.Equal(t, 5, res.Stats.Observations)
}

func TestRunReconcilesSpeakersAcrossEvents(t *testing.T) {
	o, _ := newTestOrchestrator(t, testConfig(), fiveEventSite(), reconcile.New(nil, zap.NewNop()))

	res, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Speakers, 3)
	require.Equal(t, 3, res.Stats.Speakers)

	ada, grace, guest := res.Speakers[0], res.Speakers[1], res.Speakers[2]
	require.Equal(t, "77", ada.Key.ID)
	require.Equal(t, []string{"1001", "1002"}, ada.Sessions())
	require.Equal(t, "https://sites.example/img/77.png", ada.PhotoURL)
	require.Equal(t, "88", grace.Key.ID)
	require.Equal(t, []string{"1001", "1004"}, grace.Sessions())
	require.False(t, guest.Key.Valid)
	require.Equal(t, []string{"1005"}, guest.Sessions())
}

func TestRunKeepsRolesWhenTimeIsNotNormalized(t *testing.T) {
	o, _ := newTestOrchestrator(t, testConfig(), fiveEventSite(), reconcile.New(nil, zap.NewNop()))

	res, err := o.Run(context.Background())
	require.NoError(t, err)

	raw := res.Events[3]
	require.Nil(t, raw.Schedule)
	require.Equal(t, "10:00 AM - 11:00 AM | 1 hour", raw.SessionTime)
	require.Equal(t, []schedule.SpeakerRole{{SpeakerID: "88", Role: "Speaker"}}, raw.Speakers)
}

func TestRunPacesBetweenEventsAndSpeakers(t *testing.T) {
	cfg := testConfig()
	o, pauser := newTestOrchestrator(t, cfg, fiveEventSite(), reconcile.New(nil, zap.NewNop()))

	_, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, pauser.count(cfg.EventDelay), "one pause between each pair of events")
	require.Equal(t, 1, pauser.count(cfg.SpeakerDelay), "only 1001 has more than one speaker")
}

func TestRunAppliesEventLimit(t *testing.T) {
	cfg := testConfig()
	cfg.EventLimit = 2
	fetcher := fiveEventSite()
	o, _ := newTestOrchestrator(t, cfg, fetcher, reconcile.New(nil, zap.NewNop()))

	res, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Events, 2)
	require.Equal(t, 5, res.Stats.Listed)
	require.Equal(t, []string{cfg.CalendarURL(), cfg.SessionURL("1001"), cfg.SessionURL("1002")}, fetcher.urls())
}

func TestRunUsesPageSpecificRequests(t *testing.T) {
	cfg := testConfig()
	cfg.CalendarTimeout = 7 * time.Second
	cfg.SessionTimeout = 5 * time.Second
	cfg.EventLimit = 1
	fetcher := fiveEventSite()
	o, _ := newTestOrchestrator(t, cfg, fetcher, reconcile.New(nil, zap.NewNop()))

	_, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, fetcher.requests, 2)
	require.Equal(t, testBase+"/schedule?date=all", fetcher.requests[0].URL)
	require.Equal(t, "[data-session-id]", fetcher.requests[0].WaitSelector)
	require.Equal(t, 7*time.Second, fetcher.requests[0].Timeout)
	require.Equal(t, testBase+"/schedule/1001/", fetcher.requests[1].URL)
	require.Equal(t, ".d-flex.flex-wrap.justify-content-center.my-5", fetcher.requests[1].WaitSelector)
	require.Equal(t, 5*time.Second, fetcher.requests[1].Timeout)
}

func TestRunCalendarFailureYieldsEmptyResult(t *testing.T) {
	fetcher := newSiteFetcher()
	o, _ := newTestOrchestrator(t, testConfig(), fetcher, reconcile.New(nil, zap.NewNop()))

	res, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, res.Events)
	require.Empty(t, res.Speakers)
	require.Len(t, fetcher.requests, 1)
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	cfg := testConfig()
	fetcher := fiveEventSite()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fetcher.onFetch = func(req schedule.FetchRequest) {
		if req.URL == cfg.SessionURL("1002") {
			cancel()
		}
	}
	o, _ := newTestOrchestrator(t, cfg, fetcher, reconcile.New(nil, zap.NewNop()))

	res, err := o.Run(ctx)
	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))
	require.Empty(t, res.Events)
	require.NotContains(t, fetcher.urls(), cfg.SessionURL("1003"))
}

// MockSpeakerSet is a testify mock of SpeakerSet.
type MockSpeakerSet struct {
	mock.Mock
}

func (m *MockSpeakerSet) Observe(ctx context.Context, partial schedule.PartialSpeaker, sessionID string) reconcile.Outcome {
	args := m.Called(ctx, partial, sessionID)
	return args.Get(0).(reconcile.Outcome)
}

func (m *MockSpeakerSet) Speakers() []*schedule.Speaker {
	args := m.Called()
	return args.Get(0).([]*schedule.Speaker)
}

func (m *MockSpeakerSet) Len() int {
	return m.Called().Int(0)
}

func TestRunObservesSpeakersInDocumentOrder(t *testing.T) {
	cfg := testConfig()
	cfg.EventLimit = 1
	set := &MockSpeakerSet{}
	var order []string
	set.On("Observe", mock.Anything, mock.AnythingOfType("schedule.PartialSpeaker"), "1001").
		Run(func(args mock.Arguments) {
			order = append(order, args.Get(1).(schedule.PartialSpeaker).Name)
		}).
		Return(reconcile.Outcome{Created: true, SessionsAdded: 1}).Twice()
	set.On("Speakers").Return([]*schedule.Speaker{}).Once()

	o, _ := newTestOrchestrator(t, cfg, fiveEventSite(), set)
	core, logs := observer.New(zapcore.DebugLevel)
	o.logger = zap.New(core)
	res, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"Ada Lovelace", "Grace Hopper"}, order)
	set.AssertExpectations(t)

	observed := logs.FilterMessage("speaker observed").All()
	require.Len(t, observed, 2)
	require.Equal(t, int64(1), observed[0].ContextMap()["sessions_added"])
	require.Equal(t, true, observed[0].ContextMap()["created"])

	finished := logs.FilterMessage("crawl finished").All()
	require.Len(t, finished, 1)
	require.Equal(t, int64(res.Stats.Observations), finished[0].ContextMap()["observations"])
}

func TestNewOrchestratorValidates(t *testing.T) {
	_, err := NewOrchestrator(Config{}, newSiteFetcher(), reconcile.New(nil, nil), nil)
	require.Error(t, err)

	_, err = NewOrchestrator(testConfig(), nil, reconcile.New(nil, nil), nil)
	require.Error(t, err)

	_, err = NewOrchestrator(testConfig(), newSiteFetcher(), nil, nil)
	require.Error(t, err)
}

func TestProfileFetcher(t *testing.T) {
	fetcher := newSiteFetcher()
	profileURL := testBase + "/people/77"
	fetcher.pages[profileURL] = `<html><body>
		<div class="person-published-bio">Mathematician.</div>
		<div class="social-media-container"><a class="twitter" href="https://twitter.com/ada"></a></div>
		<div class="timeline-item"><a class="card-title" href="/sites/acme/en/conf2024/schedule/1009/x">x</a></div>
	</body></html>`

	profiles := NewProfileFetcher(fetcher, 30*time.Second)
	profile, err := profiles.FetchProfile(context.Background(), profileURL)
	require.NoError(t, err)
	require.Equal(t, "Mathematician.", profile.Biography)
	require.Equal(t, "https://twitter.com/ada", profile.SocialLinks.Twitter)
	require.Equal(t, []string{"1009"}, profile.SessionIDs)
	require.Equal(t, 30*time.Second, fetcher.requests[0].Timeout)
	require.Equal(t, "body", fetcher.requests[0].WaitSelector)

	_, err = profiles.FetchProfile(context.Background(), testBase+"/people/404")
	require.ErrorIs(t, err, schedule.ErrFetch)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, testConfig().Validate())

	tests := map[string]func(*Config){
		"missing base":     func(c *Config) { c.BaseURL = "" },
		"relative base":    func(c *Config) { c.BaseURL = "/sites/acme" },
		"negative limit":   func(c *Config) { c.EventLimit = -1 },
		"negative delay":   func(c *Config) { c.SpeakerDelay = -time.Second },
		"zero timeout":     func(c *Config) { c.ProfileTimeout = 0 },
		"negative timeout": func(c *Config) { c.CalendarTimeout = -time.Second },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestConfigURLs(t *testing.T) {
	cfg := Config{BaseURL: "https://sites.example/conf///"}
	require.Equal(t, "https://sites.example/conf/schedule?date=all", cfg.CalendarURL())
	require.Equal(t, "https://sites.example/conf/schedule/42/", cfg.SessionURL("42"))
}

type stepClock struct {
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

func TestRunStampsStats(t *testing.T) {
	cfg := testConfig()
	cfg.EventLimit = 1
	o, _ := newTestOrchestrator(t, cfg, fiveEventSite(), reconcile.New(nil, zap.NewNop()))
	start := time.Date(2024, 10, 4, 8, 0, 0, 0, time.UTC)
	o.clock = &stepClock{now: start, step: 90 * time.Second}

	res, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, start, res.Stats.StartedAt)
	require.Equal(t, 90*time.Second, res.Stats.Duration())
}
