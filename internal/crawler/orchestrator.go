package crawler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/schedule-crawler/internal/clock/system"
	"github.com/JakeFAU/schedule-crawler/internal/extract"
	"github.com/JakeFAU/schedule-crawler/internal/metrics"
	"github.com/JakeFAU/schedule-crawler/internal/normalize"
	"github.com/JakeFAU/schedule-crawler/internal/reconcile"
	"github.com/JakeFAU/schedule-crawler/internal/schedule"
)

// Event status labels.
const (
	statusResolved   = "resolved"
	statusUnresolved = "unresolved"
	statusRawTime    = "raw_time"
)

// SpeakerSet is the canonical speaker collection the orchestrator feeds.
type SpeakerSet interface {
	Observe(ctx context.Context, partial schedule.PartialSpeaker, sessionID string) reconcile.Outcome
	Speakers() []*schedule.Speaker
	Len() int
}

// Clock stamps run start and finish times.
type Clock interface {
	Now() time.Time
}

// Stats counts what happened during a run.
type Stats struct {
	Listed       int
	Crawled      int
	Resolved     int
	RawTime      int
	Failed       int
	Observations int
	Speakers     int
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Duration of the run.
func (s Stats) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Result is the complete output of a crawl, ready for persistence.
type Result struct {
	Events   []schedule.Event    `json:"events"`
	Speakers []*schedule.Speaker `json:"speakers"`
	Stats    Stats               `json:"stats"`
}

// Orchestrator drives the calendar, session, and profile phases of a crawl.
type Orchestrator struct {
	cfg      Config
	fetcher  schedule.PageFetcher
	speakers SpeakerSet
	logger   *zap.Logger
	pauser   pauseController
	clock    Clock
}

// NewOrchestrator wires a crawl run.
func NewOrchestrator(cfg Config, fetcher schedule.PageFetcher, speakers SpeakerSet, logger *zap.Logger) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid crawler config: %w", err)
	}
	if fetcher == nil {
		return nil, fmt.Errorf("page fetcher is required")
	}
	if speakers == nil {
		return nil, fmt.Errorf("speaker set is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Orchestrator{
		cfg:      cfg,
		fetcher:  fetcher,
		speakers: speakers,
		logger:   logger,
		pauser:   &timerPauseController{},
		clock:    system.New(),
	}, nil
}

// Run executes the crawl. A failed page never aborts the run; a cancelled
// context does, and the partial result must not be persisted.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	stats := Stats{StartedAt: o.clock.Now()}

	events := o.listEvents(ctx)
	stats.Listed = len(events)
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("crawl cancelled during calendar fetch: %w", err)
	}
	if o.cfg.EventLimit > 0 && len(events) > o.cfg.EventLimit {
		o.logger.Info("event cap applied",
			zap.Int("listed", len(events)),
			zap.Int("limit", o.cfg.EventLimit))
		events = events[:o.cfg.EventLimit]
	}

	for i := range events {
		if i > 0 {
			o.pauser.Pause(ctx, o.cfg.EventDelay)
		}
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("crawl cancelled before event %s: %w", events[i].SessionID, err)
		}

		o.logger.Info("processing event",
			zap.Int("index", i+1),
			zap.Int("total", len(events)),
			zap.String("session_id", events[i].SessionID),
			zap.String("title", events[i].Title))

		status, observed := o.processEvent(ctx, &events[i])
		metrics.ObserveEvent(status)
		stats.Crawled++
		stats.Observations += observed
		switch status {
		case statusResolved:
			stats.Resolved++
		case statusRawTime:
			stats.RawTime++
		default:
			stats.Failed++
		}

		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("crawl cancelled during event %s: %w", events[i].SessionID, err)
		}
	}

	speakers := o.speakers.Speakers()
	stats.Speakers = len(speakers)
	stats.FinishedAt = o.clock.Now()
	metrics.SetCanonicalSpeakers(len(speakers))

	o.logger.Info("crawl finished",
		zap.Int("events", len(events)),
		zap.Int("resolved", stats.Resolved),
		zap.Int("raw_time", stats.RawTime),
		zap.Int("failed", stats.Failed),
		zap.Int("observations", stats.Observations),
		zap.Int("speakers", stats.Speakers),
		zap.Duration("duration", stats.Duration()))

	return Result{Events: events, Speakers: speakers, Stats: stats}, nil
}

// listEvents runs the calendar phase. Failures yield an empty list.
func (o *Orchestrator) listEvents(ctx context.Context) []schedule.Event {
	calendarURL := o.cfg.CalendarURL()
	body, err := fetchPage(ctx, o.fetcher, metrics.PageCalendar, schedule.FetchRequest{
		URL:          calendarURL,
		WaitSelector: extract.CalendarReadySelector,
		Timeout:      o.cfg.CalendarTimeout,
	})
	if err != nil {
		o.logger.Error("calendar fetch failed", zap.String("url", calendarURL), zap.Error(err))
		return nil
	}
	events, err := extract.Calendar(body)
	if err != nil {
		o.logger.Error("calendar extraction failed", zap.String("url", calendarURL), zap.Error(err))
		return nil
	}
	o.logger.Info("calendar listed", zap.Int("events", len(events)))
	return events
}

// processEvent runs the session phase for one event and feeds its speakers to
// the speaker set. It returns the event status and the number of observations.
func (o *Orchestrator) processEvent(ctx context.Context, event *schedule.Event) (string, int) {
	log := o.logger.With(zap.String("session_id", event.SessionID))
	sessionURL := o.cfg.SessionURL(event.SessionID)

	body, err := fetchPage(ctx, o.fetcher, metrics.PageSession, schedule.FetchRequest{
		URL:          sessionURL,
		WaitSelector: extract.SessionReadySelector,
		Timeout:      o.cfg.SessionTimeout,
	})
	if err != nil {
		log.Warn("session fetch failed; keeping raw event", zap.String("url", sessionURL), zap.Error(err))
		return statusUnresolved, 0
	}
	detail, err := extract.Session(body, sessionURL)
	if err != nil {
		log.Warn("session extraction failed; keeping raw event", zap.String("url", sessionURL), zap.Error(err))
		return statusUnresolved, 0
	}

	status := statusResolved
	sched, err := normalize.Normalize(detail.DateText, event.SessionTime)
	if err != nil {
		log.Warn("session time not normalized; keeping raw text",
			zap.String("date", detail.DateText),
			zap.String("time", event.SessionTime),
			zap.Error(err))
		status = statusRawTime
	} else {
		event.Schedule = &sched
		event.SessionTime = ""
	}

	event.Speakers = make([]schedule.SpeakerRole, 0, len(detail.Speakers))
	for _, partial := range detail.Speakers {
		event.Speakers = append(event.Speakers, schedule.SpeakerRole{SpeakerID: partial.Key.ID, Role: partial.Role})
	}

	observed := 0
	for j, partial := range detail.Speakers {
		if j > 0 {
			o.pauser.Pause(ctx, o.cfg.SpeakerDelay)
		}
		if ctx.Err() != nil {
			break
		}
		out := o.speakers.Observe(ctx, partial, event.SessionID)
		metrics.ObserveSpeaker(out.Created, out.Enriched)
		log.Debug("speaker observed",
			zap.Stringer("speaker_id", partial.Key),
			zap.Bool("created", out.Created),
			zap.Bool("enriched", out.Enriched),
			zap.Int("sessions_added", out.SessionsAdded))
		observed++
	}
	log.Debug("event processed",
		zap.String("status", status),
		zap.Int("speakers", len(detail.Speakers)))
	return status, observed
}
