// Package store persists install records and job history to SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/battlewithbytes/manage/internal/engine"
	"github.com/battlewithbytes/manage/internal/registry"
)

// Store is a SQLite-backed registry.Persistence and engine.JobStore.
type Store struct {
	db *sql.DB
}

var (
	_ registry.Persistence = (*Store)(nil)
	_ engine.JobStore      = (*Store)(nil)
)

// New opens (or creates) the SQLite database at the given path.
func New(dbPath string) (*Store, error) {
	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite has a single writer; queue in Go rather than on the file lock.
	db.SetMaxOpenConns(4)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS installs (
			package_id   INTEGER PRIMARY KEY,
			release_id   INTEGER NOT NULL,
			repository   TEXT NOT NULL DEFAULT '',
			installed_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS jobs (
			id           TEXT PRIMARY KEY,
			type         TEXT NOT NULL,
			state        TEXT NOT NULL,
			package_id   INTEGER NOT NULL DEFAULT 0,
			repository   TEXT NOT NULL DEFAULT '',
			release_id   INTEGER NOT NULL DEFAULT 0,
			error        TEXT NOT NULL DEFAULT '',
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL,
			completed_at TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS job_logs (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id    TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			level     TEXT NOT NULL,
			message   TEXT NOT NULL,
			FOREIGN KEY (job_id) REFERENCES jobs(id)
		);

		CREATE INDEX IF NOT EXISTS idx_job_logs_job_id ON job_logs(job_id);
	`)
	return err
}

// --- install records ---

func (s *Store) Find(ctx context.Context, packageID int64) (registry.Record, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT package_id, release_id, repository, installed_at FROM installs WHERE package_id=?`, packageID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.Record{}, false, nil
	}
	if err != nil {
		return registry.Record{}, false, err
	}
	return rec, true, nil
}

func (s *Store) Upsert(ctx context.Context, rec registry.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO installs (package_id, release_id, repository, installed_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(package_id) DO UPDATE SET
			release_id=excluded.release_id,
			repository=excluded.repository,
			installed_at=excluded.installed_at`,
		rec.PackageID, rec.ReleaseID, rec.Repository, rec.InstalledAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *Store) Remove(ctx context.Context, packageID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM installs WHERE package_id=?`, packageID)
	return err
}

func (s *Store) List(ctx context.Context) ([]registry.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT package_id, release_id, repository, installed_at FROM installs ORDER BY package_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []registry.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (registry.Record, error) {
	var rec registry.Record
	var installedAt string
	if err := row.Scan(&rec.PackageID, &rec.ReleaseID, &rec.Repository, &installedAt); err != nil {
		return registry.Record{}, err
	}
	rec.InstalledAt, _ = time.Parse(time.RFC3339Nano, installedAt)
	return rec, nil
}
