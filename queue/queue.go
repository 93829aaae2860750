/*
 * gwpump - Copyright (C) 2026 gwpump contributors.
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 2, and only
 * version 2 as published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program; if not, write to the Free Software
 * Foundation, Inc., 59 Temple Place, Suite 330, Boston, MA  02111-1307  USA
 */

package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Store persists migration queue records in a SQLite database. Workers in
// other processes open the same file; counter updates are single relative
// UPDATE statements, so concurrent completions never lose increments.
type Store struct {
	db *sqlx.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS migrator_queue (
	id            TEXT PRIMARY KEY,
	jobs_started  INTEGER NOT NULL DEFAULT 0,
	jobs_finished INTEGER NOT NULL DEFAULT 0,
	data          TEXT NOT NULL
)`

// Open opens (or creates) the queue database at path and bootstraps the
// schema.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening queue db: %w", err)
	}

	// WAL lets pollers read while workers write; the busy timeout covers
	// worker processes contending for the write lock.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configuring queue db: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating queue schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Find returns the record with the given id, or nil when it does not exist.
func (s *Store) Find(ctx context.Context, id string) (*Record, error) {
	var rec Record
	err := s.db.GetContext(ctx, &rec, "SELECT id, jobs_started, jobs_finished, data FROM migrator_queue WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding queue record: %w", err)
	}
	return &rec, nil
}

// Create inserts a fresh record with zeroed counters.
func (s *Store) Create(ctx context.Context, id string, data Data) (*Record, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("serializing queue data: %w", err)
	}

	_, err = s.db.ExecContext(ctx, "INSERT INTO migrator_queue (id, jobs_started, jobs_finished, data) VALUES (?, 0, 0, ?)", id, raw)
	if err != nil {
		return nil, fmt.Errorf("creating queue record: %w", err)
	}

	return &Record{ID: id, RawData: raw}, nil
}

// Delete removes the record. Counter bumps from jobs that were already
// dispatched against it will hit zero rows, which is the accepted
// cancellation semantic.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM migrator_queue WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting queue record: %w", err)
	}
	return nil
}

// Refresh reloads the record's counters from the store.
func (s *Store) Refresh(ctx context.Context, rec *Record) error {
	fresh, err := s.Find(ctx, rec.ID)
	if err != nil {
		return err
	}
	if fresh == nil {
		return fmt.Errorf("queue record %s disappeared", rec.ID)
	}
	*rec = *fresh
	return nil
}

// BumpJobsStarted adds n to the started counter in a single relative
// update. Never read-modify-write: many workers bump concurrently.
func (s *Store) BumpJobsStarted(ctx context.Context, id string, n uint) error {
	_, err := s.db.ExecContext(ctx, "UPDATE migrator_queue SET jobs_started = jobs_started + ? WHERE id = ?", n, id)
	if err != nil {
		return fmt.Errorf("bumping jobs_started: %w", err)
	}
	return nil
}

// BumpJobsFinished adds n to the finished counter in a single relative
// update.
func (s *Store) BumpJobsFinished(ctx context.Context, id string, n uint) error {
	_, err := s.db.ExecContext(ctx, "UPDATE migrator_queue SET jobs_finished = jobs_finished + ? WHERE id = ?", n, id)
	if err != nil {
		return fmt.Errorf("bumping jobs_finished: %w", err)
	}
	return nil
}
