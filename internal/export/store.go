package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jfmyers9/firstscrobbles/internal/firsts"
	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned for a run ID the store does not know.
var ErrRunNotFound = errors.New("export: run not found")

// Store keeps the results of past runs in SQLite.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the result store at dbPath. ":memory:"
// gives a throwaway store.
func OpenStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection keeps :memory: databases consistent.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA journal_mode = WAL",
		"PRAGMA temp_store = MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			total_pages INTEGER NOT NULL,
			pages_fetched INTEGER NOT NULL,
			missing_pages TEXT NOT NULL DEFAULT '',
			events_seen INTEGER NOT NULL DEFAULT 0,
			events_accepted INTEGER NOT NULL DEFAULT 0,
			total_artists INTEGER NOT NULL,
			fatal_error TEXT,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);

		CREATE TABLE IF NOT EXISTS first_scrobbles (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			idx INTEGER NOT NULL,
			artist TEXT NOT NULL,
			first_track TEXT NOT NULL,
			first_album TEXT NOT NULL,
			first_scrobbled INTEGER NOT NULL,
			PRIMARY KEY (run_id, idx)
		);

		CREATE INDEX IF NOT EXISTS idx_runs_finished ON runs(finished_at);
		CREATE INDEX IF NOT EXISTS idx_runs_username ON runs(username, finished_at);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveRun stores a run summary and its rows in one transaction.
func (s *Store) SaveRun(ctx context.Context, summary firsts.Summary, rows []Row) error {
	if _, err := uuid.Parse(summary.RunID); err != nil {
		return fmt.Errorf("invalid run id %q: %w", summary.RunID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, username, total_pages, pages_fetched, missing_pages,
			events_seen, events_accepted, total_artists, fatal_error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		summary.RunID,
		summary.Username,
		summary.TotalPages,
		summary.PagesFetched,
		joinPages(summary.MissingPages),
		summary.EventsSeen,
		summary.EventsAccepted,
		summary.TotalArtists,
		nullString(summary.FatalError),
		summary.StartedAt.Unix(),
		summary.FinishedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO first_scrobbles (run_id, idx, artist, first_track, first_album, first_scrobbled)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		_, err := stmt.ExecContext(ctx, summary.RunID, r.Index, r.Artist, r.FirstTrack, r.FirstAlbum, r.FirstScrobbled.Unix())
		if err != nil {
			return fmt.Errorf("failed to insert row %d: %w", r.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListRuns returns stored runs, newest first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]firsts.Summary, error) {
	query := `
		SELECT id, username, total_pages, pages_fetched, missing_pages,
			events_seen, events_accepted, total_artists, COALESCE(fatal_error, ''),
			started_at, finished_at
		FROM runs
		ORDER BY finished_at DESC, created_at DESC
	`

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []firsts.Summary
	for rows.Next() {
		var run firsts.Summary
		var missing string
		var startedAt, finishedAt int64

		err := rows.Scan(
			&run.RunID,
			&run.Username,
			&run.TotalPages,
			&run.PagesFetched,
			&missing,
			&run.EventsSeen,
			&run.EventsAccepted,
			&run.TotalArtists,
			&run.FatalError,
			&startedAt,
			&finishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		run.MissingPages, err = splitPages(missing)
		if err != nil {
			return nil, fmt.Errorf("run %s: %w", run.RunID, err)
		}
		run.StartedAt = time.Unix(startedAt, 0).UTC()
		run.FinishedAt = time.Unix(finishedAt, 0).UTC()

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// RunRows returns the rows of a stored run in index order, with times in
// UTC.
func (s *Store) RunRows(ctx context.Context, runID string) ([]Row, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs WHERE id = ?", runID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to look up run: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, artist, first_track, first_album, first_scrobbled
		FROM first_scrobbles
		WHERE run_id = ?
		ORDER BY idx ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rows: %w", err)
	}
	defer rows.Close()

	var result []Row
	for rows.Next() {
		var r Row
		var ts int64
		if err := rows.Scan(&r.Index, &r.Artist, &r.FirstTrack, &r.FirstAlbum, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.FirstScrobbled = time.Unix(ts, 0).UTC()
		result = append(result, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return result, nil
}

// Cleanup removes runs that finished more than maxAge ago, along with
// their rows.
func (s *Store) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).Unix()

	result, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE finished_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old runs: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return deleted, nil
}

// RunWriter is a Writer that saves the rows it receives as one run
// when closed.
type RunWriter struct {
	ctx     context.Context
	store   *Store
	summary firsts.Summary
	rows    []Row
}

// NewRunWriter returns a Writer that stores rows under summary's run.
func (s *Store) NewRunWriter(ctx context.Context, summary firsts.Summary) *RunWriter {
	return &RunWriter{ctx: ctx, store: s, summary: summary}
}

func (w *RunWriter) WriteHeader() error { return nil }

func (w *RunWriter) WriteRow(r Row) error {
	w.rows = append(w.rows, r)
	return nil
}

func (w *RunWriter) Close() error {
	return w.store.SaveRun(w.ctx, w.summary, w.rows)
}

func joinPages(pages []int) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}

func splitPages(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	pages := make([]int, 0, len(parts))
	for _, part := range parts {
		p, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("bad missing page %q: %w", part, err)
		}
		pages = append(pages, p)
	}
	return pages, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
