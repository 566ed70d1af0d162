// Package memory provides an in-process schedule.Store for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/schedule-crawler/internal/id/uuid"
	"github.com/JakeFAU/schedule-crawler/internal/schedule"
)

// Store keeps events and speakers in memory and assigns UUID7 surrogate ids.
type Store struct {
	mu       sync.RWMutex
	ids      uuid.Generator
	events   []schedule.StoredEvent
	speakers []schedule.StoredSpeaker
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{ids: uuid.New()}
}

// InsertEvents stores events in order and returns them with their new ids.
func (s *Store) InsertEvents(ctx context.Context, events []schedule.Event) ([]schedule.StoredEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]schedule.StoredEvent, 0, len(events))
	for _, e := range events {
		id, err := s.ids.NewID()
		if err != nil {
			return nil, err
		}
		e.Speakers = append([]schedule.SpeakerRole(nil), e.Speakers...)
		if e.Schedule != nil {
			sched := *e.Schedule
			e.Schedule = &sched
		}
		out = append(out, schedule.StoredEvent{ID: id, Event: e})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, out...)
	return append([]schedule.StoredEvent(nil), out...), nil
}

// InsertSpeakers stores speakers. Every session must name a stored event.
func (s *Store) InsertSpeakers(ctx context.Context, speakers []schedule.StoredSpeaker) ([]schedule.StoredSpeaker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	known := make(map[string]struct{}, len(s.events))
	for _, e := range s.events {
		known[e.ID] = struct{}{}
	}
	out := make([]schedule.StoredSpeaker, 0, len(speakers))
	for _, sp := range speakers {
		for _, ref := range sp.Sessions {
			if _, ok := known[ref]; !ok {
				return nil, fmt.Errorf("speaker %q references unknown event %q", sp.Name, ref)
			}
		}
		id, err := s.ids.NewID()
		if err != nil {
			return nil, err
		}
		sp.ID = id
		sp.Sessions = append([]string{}, sp.Sessions...)
		out = append(out, sp)
	}
	s.speakers = append(s.speakers, out...)
	return append([]schedule.StoredSpeaker(nil), out...), nil
}

// DeleteAll empties one collection.
func (s *Store) DeleteAll(ctx context.Context, collection schedule.Collection) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch collection {
	case schedule.CollectionEvents:
		s.events = nil
	case schedule.CollectionSpeakers:
		s.speakers = nil
	default:
		return fmt.Errorf("unknown collection %q", collection)
	}
	return nil
}

// Events returns a copy of the stored events.
func (s *Store) Events() []schedule.StoredEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]schedule.StoredEvent(nil), s.events...)
}

// Speakers returns a copy of the stored speakers.
func (s *Store) Speakers() []schedule.StoredSpeaker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]schedule.StoredSpeaker(nil), s.speakers...)
}
