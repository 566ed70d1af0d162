// Package reconcile merges repeated, partial speaker observations into one
// canonical record per speaker for the lifetime of a crawl run.
package reconcile

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/schedule-crawler/internal/schedule"
)

// ProfileSource loads the enrichment data behind a speaker profile URL.
type ProfileSource interface {
	FetchProfile(ctx context.Context, profileURL string) (schedule.Profile, error)
}

// Outcome describes what a single observation did to the canonical set.
type Outcome struct {
	Created  bool
	Enriched bool
	// SessionsAdded counts session ids that were new to the record.
	SessionsAdded int
}

// Reconciler owns the canonical speaker set. It is not safe for concurrent use;
// the crawl drives it from a single goroutine.
type Reconciler struct {
	profiles ProfileSource
	logger   *zap.Logger
	byKey    map[string]*schedule.Speaker
	ordered  []*schedule.Speaker
}

// New creates an empty Reconciler.
func New(profiles ProfileSource, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		profiles: profiles,
		logger:   logger,
		byKey:    make(map[string]*schedule.Speaker),
	}
}

// Observe merges one partial speaker seen on the given session into the canonical set.
//
// A speaker without a key is always appended as a new record. Enrichment from
// the profile page happens while the record's biography is empty; a failed
// fetch leaves it empty so a later observation may try again.
func (r *Reconciler) Observe(ctx context.Context, partial schedule.PartialSpeaker, sessionID string) Outcome {
	log := r.logger.With(
		zap.String("speaker", partial.Name),
		zap.Stringer("speaker_id", partial.Key),
		zap.String("session_id", sessionID),
	)

	existing := r.lookup(partial.Key)
	if existing == nil {
		speaker := schedule.NewSpeaker(partial)
		out := Outcome{Created: true, SessionsAdded: speaker.AddSessions(sessionID)}
		if !partial.Key.Valid {
			log.Warn("speaker has no identity key; recording as its own entry",
				zap.String("url", partial.ProfileURL))
		}
		out.Enriched = r.enrich(ctx, speaker, partial.ProfileURL, log)
		r.insert(speaker)
		log.Debug("new speaker recorded", zap.Bool("enriched", out.Enriched))
		return out
	}

	out := Outcome{SessionsAdded: existing.AddSessions(sessionID)}
	if existing.Biography == "" {
		out.Enriched = r.enrich(ctx, existing, partial.ProfileURL, log)
	} else {
		log.Debug("speaker already enriched")
	}
	return out
}

// Speakers returns the canonical records in first-observation order.
func (r *Reconciler) Speakers() []*schedule.Speaker {
	return append([]*schedule.Speaker(nil), r.ordered...)
}

// Len returns the number of canonical records.
func (r *Reconciler) Len() int {
	return len(r.ordered)
}

func (r *Reconciler) lookup(key schedule.SpeakerKey) *schedule.Speaker {
	if !key.Valid {
		return nil
	}
	return r.byKey[key.ID]
}

func (r *Reconciler) insert(speaker *schedule.Speaker) {
	if speaker.Key.Valid {
		r.byKey[speaker.Key.ID] = speaker
	}
	r.ordered = append(r.ordered, speaker)
}

func (r *Reconciler) enrich(ctx context.Context, speaker *schedule.Speaker, profileURL string, log *zap.Logger) bool {
	if profileURL == "" || r.profiles == nil {
		return false
	}
	profile, err := r.profiles.FetchProfile(ctx, profileURL)
	if err != nil {
		log.Warn("speaker profile fetch failed", zap.String("url", profileURL), zap.Error(err))
		return false
	}
	speaker.ApplyProfile(profile)
	log.Info("speaker profile merged",
		zap.Int("profile_sessions", len(profile.SessionIDs)),
		zap.Bool("has_biography", profile.Biography != ""))
	return true
}
