// Package persist writes a crawl result to a schedule.Store, translating
// natural session ids into the surrogate ids the store assigns to events.
package persist

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/schedule-crawler/internal/metrics"
	"github.com/JakeFAU/schedule-crawler/internal/schedule"
)

// Mapper performs the two-phase write: events first, then speakers whose
// session lists reference the stored events.
type Mapper struct {
	store  schedule.Store
	logger *zap.Logger
}

// Summary reports what a Persist call wrote.
type Summary struct {
	Events   int
	Speakers int
	// DroppedSessions counts speaker session references with no stored event.
	DroppedSessions int
}

// NewMapper creates a Mapper.
func NewMapper(store schedule.Store, logger *zap.Logger) *Mapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Mapper{store: store, logger: logger}
}

// Reset empties both collections. Speakers go first since they reference events.
func (m *Mapper) Reset(ctx context.Context) error {
	for _, c := range []schedule.Collection{schedule.CollectionSpeakers, schedule.CollectionEvents} {
		if err := m.store.DeleteAll(ctx, c); err != nil {
			return fmt.Errorf("%w: clear %s: %w", schedule.ErrPersist, c, err)
		}
	}
	m.logger.Info("store cleared")
	return nil
}

// Persist inserts events and speakers. Speaker sessions that name an event
// that was never stored are dropped.
func (m *Mapper) Persist(ctx context.Context, events []schedule.Event, speakers []*schedule.Speaker) (Summary, error) {
	stored, err := m.store.InsertEvents(ctx, events)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: insert events: %w", schedule.ErrPersist, err)
	}
	if len(stored) != len(events) {
		return Summary{}, fmt.Errorf("%w: store returned %d events for %d inserted", schedule.ErrPersist, len(stored), len(events))
	}
	metrics.ObservePersisted(string(schedule.CollectionEvents), len(stored))

	surrogates := SurrogateIndex(stored)
	rows, dropped := m.rewrite(speakers, surrogates)

	inserted, err := m.store.InsertSpeakers(ctx, rows)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: insert speakers: %w", schedule.ErrPersist, err)
	}
	metrics.ObservePersisted(string(schedule.CollectionSpeakers), len(inserted))

	summary := Summary{Events: len(stored), Speakers: len(inserted), DroppedSessions: dropped}
	m.logger.Info("crawl result persisted",
		zap.Int("events", summary.Events),
		zap.Int("speakers", summary.Speakers),
		zap.Int("dropped_sessions", summary.DroppedSessions))
	return summary, nil
}

// SurrogateIndex maps each stored event's session id to its surrogate id.
func SurrogateIndex(stored []schedule.StoredEvent) map[string]string {
	index := make(map[string]string, len(stored))
	for _, e := range stored {
		index[e.SessionID] = e.ID
	}
	return index
}

func (m *Mapper) rewrite(speakers []*schedule.Speaker, surrogates map[string]string) ([]schedule.StoredSpeaker, int) {
	rows := make([]schedule.StoredSpeaker, 0, len(speakers))
	dropped := 0
	for _, s := range speakers {
		sessions := make([]string, 0, len(s.Sessions()))
		for _, sessionID := range s.Sessions() {
			id, ok := surrogates[sessionID]
			if !ok {
				dropped++
				m.logger.Debug("dropping session reference with no stored event",
					zap.Stringer("speaker_id", s.Key),
					zap.String("session_id", sessionID))
				continue
			}
			sessions = append(sessions, id)
		}
		rows = append(rows, schedule.StoredSpeaker{
			SpeakerID:   s.Key.ID,
			Name:        s.Name,
			PhotoURL:    s.PhotoURL,
			Biography:   s.Biography,
			SocialLinks: s.SocialLinks,
			Sessions:    sessions,
		})
	}
	return rows, dropped
}
