package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := pageFetchesTotal
	Init()
	if pageFetchesTotal != first {
		t.Fatal("Init() replaced collectors on second call")
	}
	if eventsTotal == nil || speakerObservationsTotal == nil || canonicalSpeakers == nil || persistedRecordsTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObservePageFetch(t *testing.T) {
	Init()
	okBefore := testutil.ToFloat64(pageFetchesTotal.WithLabelValues(PageSession, "ok"))
	errBefore := testutil.ToFloat64(pageFetchesTotal.WithLabelValues(PageSession, "error"))

	ObservePageFetch(PageSession, nil, 10*time.Millisecond)
	ObservePageFetch(PageSession, errors.New("timeout"), time.Second)

	if got := testutil.ToFloat64(pageFetchesTotal.WithLabelValues(PageSession, "ok")) - okBefore; got != 1 {
		t.Errorf("expected one ok fetch, got %v", got)
	}
	if got := testutil.ToFloat64(pageFetchesTotal.WithLabelValues(PageSession, "error")) - errBefore; got != 1 {
		t.Errorf("expected one failed fetch, got %v", got)
	}
}

func TestObserveSpeaker(t *testing.T) {
	Init()
	created := testutil.ToFloat64(speakerObservationsTotal.WithLabelValues("created"))
	merged := testutil.ToFloat64(speakerObservationsTotal.WithLabelValues("merged"))
	enriched := testutil.ToFloat64(speakerObservationsTotal.WithLabelValues("enriched"))

	ObserveSpeaker(true, true)
	ObserveSpeaker(false, false)

	if got := testutil.ToFloat64(speakerObservationsTotal.WithLabelValues("created")) - created; got != 1 {
		t.Errorf("created delta = %v", got)
	}
	if got := testutil.ToFloat64(speakerObservationsTotal.WithLabelValues("merged")) - merged; got != 1 {
		t.Errorf("merged delta = %v", got)
	}
	if got := testutil.ToFloat64(speakerObservationsTotal.WithLabelValues("enriched")) - enriched; got != 1 {
		t.Errorf("enriched delta = %v", got)
	}
}

func TestGaugesAndCounters(t *testing.T) {
	Init()
	SetCanonicalSpeakers(12)
	if got := testutil.ToFloat64(canonicalSpeakers); got != 12 {
		t.Errorf("canonical speakers = %v", got)
	}

	before := testutil.ToFloat64(persistedRecordsTotal.WithLabelValues("events"))
	ObservePersisted("events", 5)
	if got := testutil.ToFloat64(persistedRecordsTotal.WithLabelValues("events")) - before; got != 5 {
		t.Errorf("persisted delta = %v", got)
	}

	before = testutil.ToFloat64(eventsTotal.WithLabelValues("resolved"))
	ObserveEvent("resolved")
	if got := testutil.ToFloat64(eventsTotal.WithLabelValues("resolved")) - before; got != 1 {
		t.Errorf("events delta = %v", got)
	}
}

func TestRouter(t *testing.T) {
	Init()
	ObserveEvent("resolved")

	ts := httptest.NewServer(Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "schedule_events_total") {
		t.Fatal("metrics output missing schedule_events_total")
	}
}
