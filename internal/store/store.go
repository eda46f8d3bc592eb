// Kerygma - Speaker Recommendation Engine for Sermon Directories
// Copyright 2026 Kerygma Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerygma-labs/kerygma

// Package store persists speakers, swipe feedback, and per-user
// recommendation records in DuckDB. The recommendation record is written
// with a single wholesale upsert per recomputation; concurrent writers for
// the same user serialize on the row and the last write wins.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // DuckDB database driver
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/kerygma-labs/kerygma/internal/logging"
	"github.com/kerygma-labs/kerygma/internal/recommend"
)

// Config controls the DuckDB connection.
type Config struct {
	// Path is the database file. Empty means in-memory.
	Path string

	// Threads for DuckDB's execution engine. 0 uses runtime.NumCPU().
	Threads int
}

// Store is a DuckDB-backed implementation of recommend.RecordStore.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS speakers (
    id            BIGINT PRIMARY KEY,
    name          TEXT NOT NULL,
    bio           TEXT DEFAULT '',
    traits        JSON DEFAULT '[]',
    curated       BOOLEAN DEFAULT FALSE,
    servable      BOOLEAN DEFAULT TRUE,
    display_order INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS swipes (
    user_id    BIGINT NOT NULL,
    speaker_id BIGINT NOT NULL,
    rating     DOUBLE NOT NULL,
    created_at TIMESTAMP DEFAULT now(),
    UNIQUE (user_id, speaker_id)
);

CREATE TABLE IF NOT EXISTS recommendations (
    user_id     BIGINT NOT NULL UNIQUE,
    speaker_ids JSON NOT NULL,
    scores      JSON,
    updated_at  TIMESTAMP NOT NULL
);
`

// Open connects to DuckDB, verifies the connection, and applies the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	connStr := ""
	if cfg.Path != "" {
		connStr = fmt.Sprintf("%s?access_mode=read_write&threads=%d", cfg.Path, threads)
	}

	db, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db.SetMaxOpenConns(runtime.NumCPU())
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{
		db:  db,
		log: logging.With().Str("component", "store").Logger(),
	}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertSpeaker writes or replaces a speaker row.
func (s *Store) UpsertSpeaker(ctx context.Context, sp recommend.Speaker, displayOrder int) error {
	traits, err := json.Marshal(sp.Traits)
	if err != nil {
		return fmt.Errorf("marshal traits: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO speakers (id, name, bio, traits, curated, servable, display_order)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			bio = excluded.bio,
			traits = excluded.traits,
			curated = excluded.curated,
			servable = excluded.servable,
			display_order = excluded.display_order`,
		sp.ID, sp.Name, sp.Bio, string(traits), sp.Curated, sp.Servable, displayOrder)
	if err != nil {
		return fmt.Errorf("upsert speaker %d: %w", sp.ID, err)
	}
	return nil
}

// RecordSwipe writes or replaces one feedback event. A listener re-rating
// the same speaker overwrites the prior rating.
func (s *Store) RecordSwipe(ctx context.Context, userID int64, sw recommend.Swipe) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO swipes (user_id, speaker_id, rating, created_at)
		VALUES (?, ?, ?, now())
		ON CONFLICT (user_id, speaker_id) DO UPDATE SET
			rating = excluded.rating,
			created_at = excluded.created_at`,
		userID, sw.ItemID, sw.Rating)
	if err != nil {
		return fmt.Errorf("record swipe: %w", err)
	}
	return nil
}

// Swipes implements recommend.RecordStore.
func (s *Store) Swipes(ctx context.Context, userID int64) ([]recommend.Swipe, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT speaker_id, rating FROM swipes
		WHERE user_id = ?
		ORDER BY created_at, speaker_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query swipes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []recommend.Swipe
	for rows.Next() {
		var sw recommend.Swipe
		if err := rows.Scan(&sw.ItemID, &sw.Rating); err != nil {
			return nil, fmt.Errorf("scan swipe: %w", err)
		}
		out = append(out, sw)
	}
	return out, rows.Err()
}

// Record implements recommend.RecordStore. Returns nil when the listener
// has no stored record.
func (s *Store) Record(ctx context.Context, userID int64) (*recommend.Record, error) {
	var (
		rec       recommend.Record
		idsJSON   string
		scoreJSON sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, CAST(speaker_ids AS VARCHAR), CAST(scores AS VARCHAR), updated_at
		FROM recommendations WHERE user_id = ?`, userID).
		Scan(&rec.UserID, &idsJSON, &scoreJSON, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query recommendation record: %w", err)
	}

	if err := json.Unmarshal([]byte(idsJSON), &rec.SpeakerIDs); err != nil {
		return nil, fmt.Errorf("decode speaker ids: %w", err)
	}
	if scoreJSON.Valid && scoreJSON.String != "" {
		if err := json.Unmarshal([]byte(scoreJSON.String), &rec.Scores); err != nil {
			return nil, fmt.Errorf("decode scores: %w", err)
		}
	}
	return &rec, nil
}

// UpsertRecord implements recommend.RecordStore. The whole record is
// replaced in one statement.
func (s *Store) UpsertRecord(ctx context.Context, rec recommend.Record) error {
	idsJSON, err := json.Marshal(rec.SpeakerIDs)
	if err != nil {
		return fmt.Errorf("marshal speaker ids: %w", err)
	}
	var scoreJSON interface{}
	if len(rec.Scores) > 0 {
		b, err := json.Marshal(rec.Scores)
		if err != nil {
			return fmt.Errorf("marshal scores: %w", err)
		}
		scoreJSON = string(b)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO recommendations (user_id, speaker_ids, scores, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			speaker_ids = excluded.speaker_ids,
			scores = excluded.scores,
			updated_at = excluded.updated_at`,
		rec.UserID, string(idsJSON), scoreJSON, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert recommendation record: %w", err)
	}
	return nil
}

// StaleRecordUsers returns listeners whose stored recommendation record
// was last updated before the cutoff, used by the background sweep.
func (s *Store) StaleRecordUsers(ctx context.Context, olderThan time.Time) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM recommendations
		WHERE updated_at < ? ORDER BY updated_at`, olderThan)
	if err != nil {
		return nil, fmt.Errorf("query stale records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale record: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Speakers implements recommend.RecordStore, returning servable speakers.
func (s *Store) Speakers(ctx context.Context) ([]recommend.Speaker, error) {
	return s.querySpeakers(ctx, `
		SELECT id, name, bio, CAST(traits AS VARCHAR), curated, servable FROM speakers
		WHERE servable ORDER BY id`)
}

// CuratedSpeakers implements recommend.RecordStore. Order is the curated
// display order, which fixes the synthetic fallback scores.
func (s *Store) CuratedSpeakers(ctx context.Context) ([]recommend.Speaker, error) {
	return s.querySpeakers(ctx, `
		SELECT id, name, bio, CAST(traits AS VARCHAR), curated, servable FROM speakers
		WHERE curated AND servable ORDER BY display_order, id`)
}

func (s *Store) querySpeakers(ctx context.Context, query string) ([]recommend.Speaker, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query speakers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []recommend.Speaker
	for rows.Next() {
		var (
			sp         recommend.Speaker
			traitsJSON string
		)
		if err := rows.Scan(&sp.ID, &sp.Name, &sp.Bio, &traitsJSON, &sp.Curated, &sp.Servable); err != nil {
			return nil, fmt.Errorf("scan speaker: %w", err)
		}
		if traitsJSON != "" {
			if err := json.Unmarshal([]byte(traitsJSON), &sp.Traits); err != nil {
				return nil, fmt.Errorf("decode traits for speaker %d: %w", sp.ID, err)
			}
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

// SpeakerNames implements recommend.RecordStore.
func (s *Store) SpeakerNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	// DuckDB lacks array bind parameters in database/sql; a per-id query
	// keeps this simple and the id lists are small.
	stmt, err := s.db.PrepareContext(ctx, `SELECT name FROM speakers WHERE id = ?`)
	if err != nil {
		return nil, fmt.Errorf("prepare name lookup: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, id := range ids {
		var name string
		err := stmt.QueryRowContext(ctx, id).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lookup speaker %d: %w", id, err)
		}
		out[id] = name
	}
	return out, nil
}
