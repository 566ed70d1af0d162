// Package postgres provides the Postgres-backed schedule.Store.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/schedule-crawler/internal/schedule"
)

//go:embed schema.sql
var schemaSQL string

const (
	insertEventSQL = `
INSERT INTO events (
	session_id,
	title,
	description,
	location,
	session_time,
	date,
	start_time,
	end_time,
	speakers
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
) RETURNING id::text`

	insertSpeakerSQL = `
INSERT INTO speakers (
	speaker_id,
	name,
	photo_url,
	biography,
	social_links,
	sessions
) VALUES (
	$1,$2,$3,$4,$5,$6::uuid[]
) RETURNING id::text`
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Store writes events and speakers into Postgres.
type Store struct {
	pool pool
}

// NewStore connects to Postgres using the provided config.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database url is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: p}, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStoreWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the events and speakers tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// InsertEvents inserts all events in one transaction and returns them with
// their generated ids, in input order.
func (s *Store) InsertEvents(ctx context.Context, events []schedule.Event) ([]schedule.StoredEvent, error) {
	out := make([]schedule.StoredEvent, 0, len(events))
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		for _, e := range events {
			args, err := eventArgs(e)
			if err != nil {
				return err
			}
			var id string
			if err := tx.QueryRow(ctx, insertEventSQL, args...).Scan(&id); err != nil {
				return fmt.Errorf("insert event %s: %w", e.SessionID, err)
			}
			out = append(out, schedule.StoredEvent{ID: id, Event: e})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// InsertSpeakers inserts all speakers in one transaction.
func (s *Store) InsertSpeakers(ctx context.Context, speakers []schedule.StoredSpeaker) ([]schedule.StoredSpeaker, error) {
	out := make([]schedule.StoredSpeaker, 0, len(speakers))
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		for _, sp := range speakers {
			args, err := speakerArgs(sp)
			if err != nil {
				return err
			}
			if err := tx.QueryRow(ctx, insertSpeakerSQL, args...).Scan(&sp.ID); err != nil {
				return fmt.Errorf("insert speaker %q: %w", sp.Name, err)
			}
			out = append(out, sp)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteAll removes every row of one collection.
func (s *Store) DeleteAll(ctx context.Context, collection schedule.Collection) error {
	var query string
	switch collection {
	case schedule.CollectionEvents:
		query = "DELETE FROM events"
	case schedule.CollectionSpeakers:
		query = "DELETE FROM speakers"
	default:
		return fmt.Errorf("unknown collection %q", collection)
	}
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("delete %s: %w", collection, err)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("postgres store is not configured")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func eventArgs(e schedule.Event) ([]any, error) {
	roles := e.Speakers
	if roles == nil {
		roles = []schedule.SpeakerRole{}
	}
	rolesJSON, err := json.Marshal(roles)
	if err != nil {
		return nil, fmt.Errorf("marshal speaker roles: %w", err)
	}
	var sessionTime, date, start, end any
	if e.SessionTime != "" {
		sessionTime = e.SessionTime
	}
	if e.Schedule != nil {
		date, start, end = e.Schedule.Date, e.Schedule.StartTime, e.Schedule.EndTime
	}
	return []any{
		e.SessionID,
		e.Title,
		e.Description,
		e.Location,
		sessionTime,
		date,
		start,
		end,
		rolesJSON,
	}, nil
}

func speakerArgs(sp schedule.StoredSpeaker) ([]any, error) {
	linksJSON, err := json.Marshal(sp.SocialLinks)
	if err != nil {
		return nil, fmt.Errorf("marshal social links: %w", err)
	}
	var speakerID any
	if sp.SpeakerID != "" {
		speakerID = sp.SpeakerID
	}
	sessions := sp.Sessions
	if sessions == nil {
		sessions = []string{}
	}
	return []any{
		speakerID,
		sp.Name,
		sp.PhotoURL,
		sp.Biography,
		linksJSON,
		sessions,
	}, nil
}
