// Package schedule defines the core types shared across the crawl, reconcile,
// and persistence subsystems.
package schedule

import (
	"encoding/json"
	"sort"
	"time"
)

// Collection names a persisted entity set.
type Collection string

// Persisted collections. Both are wiped before every run.
const (
	CollectionEvents   Collection = "events"
	CollectionSpeakers Collection = "speakers"
)

// SpeakerKey is the natural identity of a speaker, parsed from the profile URL.
// The zero value means the speaker has no usable identity.
type SpeakerKey struct {
	ID    string
	Valid bool
}

// NewSpeakerKey returns a valid key for a non-empty id and the absent key otherwise.
func NewSpeakerKey(id string) SpeakerKey {
	if id == "" {
		return SpeakerKey{}
	}
	return SpeakerKey{ID: id, Valid: true}
}

// String renders the key for logs.
func (k SpeakerKey) String() string {
	if !k.Valid {
		return "<none>"
	}
	return k.ID
}

// SpeakerRole links a speaker to an event. The role belongs to the event, not the speaker.
type SpeakerRole struct {
	SpeakerID string `json:"id"`
	Role      string `json:"role"`
}

// Schedule holds the resolved timestamps of an event.
type Schedule struct {
	Date      time.Time `json:"date"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// Event is one session listed on the calendar page.
//
// SessionTime carries the raw time-range text until the detail page resolves
// it into Schedule; an event whose detail fetch failed keeps the raw text and
// a nil Schedule.
type Event struct {
	SessionID   string        `json:"session_id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Location    string        `json:"location"`
	SessionTime string        `json:"session_time,omitempty"`
	Schedule    *Schedule     `json:"schedule,omitempty"`
	Speakers    []SpeakerRole `json:"speakers"`
}

// Resolved reports whether the detail page has been applied to the event.
func (e Event) Resolved() bool {
	return e.Schedule != nil
}

// SocialLinks are the optional profile links published for a speaker.
type SocialLinks struct {
	Facebook  string `json:"facebook"`
	Twitter   string `json:"twitter"`
	Instagram string `json:"instagram"`
	Website   string `json:"website"`
}

// PartialSpeaker is a speaker as observed on a session detail page.
type PartialSpeaker struct {
	Key        SpeakerKey
	Name       string
	PhotoURL   string
	Role       string
	ProfileURL string
}

// Profile is the enrichment data scraped from a speaker profile page.
type Profile struct {
	Biography   string
	SocialLinks SocialLinks
	SessionIDs  []string
}

// Speaker is the canonical record for one person across a crawl run.
type Speaker struct {
	Key         SpeakerKey
	Name        string
	PhotoURL    string
	Biography   string
	SocialLinks SocialLinks
	sessions    map[string]struct{}
}

// NewSpeaker seeds a canonical speaker from a partial observation.
func NewSpeaker(partial PartialSpeaker) *Speaker {
	return &Speaker{
		Key:      partial.Key,
		Name:     partial.Name,
		PhotoURL: partial.PhotoURL,
		sessions: make(map[string]struct{}),
	}
}

// AddSessions unions the given session ids into the speaker's set.
// Empty ids are ignored. It returns the number of ids that were new.
func (s *Speaker) AddSessions(ids ...string) int {
	if s.sessions == nil {
		s.sessions = make(map[string]struct{})
	}
	added := 0
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := s.sessions[id]; ok {
			continue
		}
		s.sessions[id] = struct{}{}
		added++
	}
	return added
}

// Sessions returns the session ids in sorted order.
func (s *Speaker) Sessions() []string {
	out := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ApplyProfile copies profile enrichment onto the speaker and unions its sessions.
func (s *Speaker) ApplyProfile(p Profile) {
	s.Biography = p.Biography
	s.SocialLinks = p.SocialLinks
	s.AddSessions(p.SessionIDs...)
}

// MarshalJSON renders the speaker for log dumps, with its natural id and sorted sessions.
func (s *Speaker) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID          string      `json:"id,omitempty"`
		Name        string      `json:"name"`
		PhotoURL    string      `json:"photo_url,omitempty"`
		Biography   string      `json:"biography,omitempty"`
		SocialLinks SocialLinks `json:"social_links"`
		Sessions    []string    `json:"sessions"`
	}{s.Key.ID, s.Name, s.PhotoURL, s.Biography, s.SocialLinks, s.Sessions()})
}

// StoredEvent is an event after insertion, carrying its store-assigned id.
type StoredEvent struct {
	ID string `json:"id"`
	Event
}

// StoredSpeaker is a speaker as written to the store. Sessions holds surrogate
// event ids, not natural session ids.
type StoredSpeaker struct {
	ID          string      `json:"id"`
	SpeakerID   string      `json:"speaker_id,omitempty"`
	Name        string      `json:"name"`
	PhotoURL    string      `json:"photo_url"`
	Biography   string      `json:"biography"`
	SocialLinks SocialLinks `json:"social_links"`
	Sessions    []string    `json:"sessions"`
}
