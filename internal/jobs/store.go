package jobs

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/or7nge/sheet-music-transcriber/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; existing databases must be cleared afterwards.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the
// expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// ErrJobNotFound indicates the requested job id is not in the registry.
var ErrJobNotFound = errors.New("job not found")

// Store manages job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the job database inside the jobs root.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.JobsDir, "jobs.db"))
}

// OpenPath connects to the job database at an explicit path.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

// Put upserts the full job record.
func (s *Store) Put(ctx context.Context, job *Job) error {
	if job == nil || job.ID == "" {
		return errors.New("job id is required")
	}
	if _, ok := stageSet[job.Stage]; !ok {
		return fmt.Errorf("unknown stage %q", job.Stage)
	}

	filesJSON, err := json.Marshal(job.Files)
	if err != nil {
		return fmt.Errorf("marshal files: %w", err)
	}
	logsJSON, err := json.Marshal(job.Logs)
	if err != nil {
		return fmt.Errorf("marshal logs: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (
			id, original_name, stem, dir, upload_path, stage, progress,
			message, error, abc, concise, files_json, logs_json,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			stage = excluded.stage,
			progress = excluded.progress,
			message = excluded.message,
			error = excluded.error,
			abc = excluded.abc,
			concise = excluded.concise,
			files_json = excluded.files_json,
			logs_json = excluded.logs_json,
			updated_at = excluded.updated_at`,
		job.ID,
		job.OriginalName,
		job.Stem,
		job.Dir,
		job.UploadPath,
		string(job.Stage),
		job.Progress,
		job.Message,
		job.Error,
		job.ABC,
		job.Concise,
		string(filesJSON),
		string(logsJSON),
		job.CreatedAt.UTC().Format(time.RFC3339Nano),
		job.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert job %s: %w", job.ID, err)
	}
	return nil
}

const jobColumns = `id, original_name, stem, dir, upload_path, stage, progress,
	message, error, abc, concise, files_json, logs_json, created_at, updated_at`

// Get returns the job with the given id or ErrJobNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	return job, nil
}

// Delete removes the job row. Removing the job directory is the caller's
// responsibility and must happen after the row is gone.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM jobs WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

// ActiveCount reports how many jobs are still processing.
func (s *Store) ActiveCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM jobs WHERE stage NOT IN (?, ?)",
		string(StageComplete), string(StageError),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active jobs: %w", err)
	}
	return count, nil
}

// Stale returns jobs whose updated_at is older than the cutoff.
func (s *Store) Stale(ctx context.Context, cutoff time.Time) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+jobColumns+" FROM jobs WHERE updated_at < ? ORDER BY updated_at ASC",
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("query stale jobs: %w", err)
	}
	defer rows.Close()

	var stale []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		stale = append(stale, job)
	}
	return stale, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job       Job
		stage     string
		filesJSON string
		logsJSON  string
		createdAt string
		updatedAt string
	)
	err := row.Scan(
		&job.ID,
		&job.OriginalName,
		&job.Stem,
		&job.Dir,
		&job.UploadPath,
		&stage,
		&job.Progress,
		&job.Message,
		&job.Error,
		&job.ABC,
		&job.Concise,
		&filesJSON,
		&logsJSON,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Stage = Stage(stage)
	if err := json.Unmarshal([]byte(filesJSON), &job.Files); err != nil {
		return nil, fmt.Errorf("decode files for %s: %w", job.ID, err)
	}
	if err := json.Unmarshal([]byte(logsJSON), &job.Logs); err != nil {
		return nil, fmt.Errorf("decode logs for %s: %w", job.ID, err)
	}
	if job.Files == nil {
		job.Files = map[string]string{}
	}
	if job.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at for %s: %w", job.ID, err)
	}
	if job.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at for %s: %w", job.ID, err)
	}
	return &job, nil
}
