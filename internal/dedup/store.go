// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dedup is the at-most-once GUID store the Broker Adapter
// consults before re-dispatching a received command locally. The
// cluster exchange is fire-and-forget (spec §4.5: "exactly-once is
// not required; the receiver is expected to tolerate duplicates"),
// but re-running a reload or recompile twice in quick succession is
// still wasted work worth skipping when cheaply detectable.
package dedup

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	sqlite3drv "github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

var registerOnce sync.Once

// Store tracks which command GUIDs have already been dispatched
// locally. A single *sql.DB backs it; sqlite does not multithread
// well so the connection pool is capped at one, matching the
// teacher's dbConnection.go rationale for the same driver.
type Store struct {
	db *sqlx.DB
}

// Open creates (if necessary) and opens the sqlite-backed dedup
// database at path.
func Open(path string) (*Store, error) {
	registerOnce.Do(func() {
		sql.Register("sqlite3WithHooks_dedup", sqlhooks.Wrap(&sqlite3drv.SQLiteDriver{}, &queryHooks{}))
	})

	db, err := sqlx.Open("sqlite3WithHooks_dedup", fmt.Sprintf("%s?_foreign_keys=on", path))
	if err != nil {
		return nil, fmt.Errorf("open dedup store: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrateSchema(db.DB); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// migrateSchema brings seen_guids up to date via golang-migrate,
// mirroring the teacher's repository.checkDBVersion/MigrateDB: an
// embedded iofs source applied through the sqlite3 database driver,
// rather than a hand-rolled CREATE TABLE IF NOT EXISTS string.
func migrateSchema(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("dedup migration driver: %w", err)
	}
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("dedup migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("dedup migrate: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("dedup migrate up: %w", err)
	}
	return nil
}

// CheckAndRemember reports whether guid has been seen before; if not,
// it atomically records it as seen. A duplicate broker delivery of
// the same command will see alreadySeen=true on the second call.
func (s *Store) CheckAndRemember(guid string) (alreadySeen bool, err error) {
	res, err := s.db.Exec(
		`INSERT INTO seen_guids (guid, seen_at) VALUES (?, ?) ON CONFLICT(guid) DO NOTHING`,
		guid, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("record guid: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record guid: %w", err)
	}
	return n == 0, nil
}

// Prune removes GUID records older than olderThan, called
// periodically so the table does not grow without bound.
func (s *Store) Prune(olderThan time.Duration) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM seen_guids WHERE seen_at < ?`, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("prune dedup store: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
