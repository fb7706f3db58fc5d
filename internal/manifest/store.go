package manifest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"milprep/internal/config"
)

// Store persists preparation runs in SQLite.
type Store struct {
	db       *sql.DB
	path     string
	lockPath string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
	writerLockRetryDelay    = 50 * time.Millisecond
	writerLockTimeout       = 5 * time.Second

	// timestampLayout is fixed width so created_at sorts lexically.
	timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// ErrLocked indicates another process holds the manifest writer lock.
var ErrLocked = errors.New("manifest is locked by another writer")

// ErrRunNotFound indicates no run with the requested id exists.
var ErrRunNotFound = errors.New("run not found")

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// Open initializes or connects to the manifest configured in cfg.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	path := cfg.Manifest.Path
	if strings.TrimSpace(path) == "" {
		path = filepath.Join(cfg.Paths.OutputDir, "manifest.db")
	}
	return OpenPath(path)
}

// OpenPath initializes or connects to the manifest database at path.
func OpenPath(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create manifest directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
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

	store := &Store{db: db, path: path, lockPath: path + ".lock"}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// withWriterLock runs fn while holding the cross-process writer lock.
func (s *Store) withWriterLock(ctx context.Context, fn func() error) error {
	lock := flock.New(s.lockPath)
	lockCtx, cancel := context.WithTimeout(ctx, writerLockTimeout)
	defer cancel()
	ok, err := lock.TryLockContext(lockCtx, writerLockRetryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrLocked, s.lockPath)
		}
		return fmt.Errorf("acquire manifest lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLocked, s.lockPath)
	}
	defer func() { _ = lock.Unlock() }()
	return fn()
}

// RecordRun stores run with its categories, assignments and diagnostics in
// one transaction.
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(run.ID) == "" {
		return errors.New("run id is required")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	return s.withWriterLock(ctx, func() error {
		return retryOnBusy(ctx, func() error { return s.insertRun(ctx, run) })
	})
}

func (s *Store) insertRun(ctx context.Context, run Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO runs
		(id, created_at, config_digest, mode, bag_size, dim_features, valid_fraction, split_seed, train_patients, valid_patients)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.UTC().Format(timestampLayout), run.ConfigDigest, run.Mode,
		run.BagSize, run.DimFeatures, run.ValidFraction, int64(run.SplitSeed),
		run.countPartition(PartitionTrain), run.countPartition(PartitionValid),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i, cat := range run.Categories {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO categories (run_id, position, name, count, weight) VALUES (?, ?, ?, ?, ?)",
			run.ID, i, cat.Name, cat.Count, cat.Weight,
		); err != nil {
			return fmt.Errorf("insert category %q: %w", cat.Name, err)
		}
	}

	for _, a := range run.Assignments {
		var truth sql.NullString
		if a.GroundTruth != nil {
			truth = sql.NullString{String: *a.GroundTruth, Valid: true}
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO assignments (run_id, patient_id, partition, ground_truth, slides) VALUES (?, ?, ?, ?, ?)",
			run.ID, a.Patient, string(a.Partition), truth, a.Slides,
		); err != nil {
			return fmt.Errorf("insert assignment %q: %w", a.Patient, err)
		}
	}

	for _, d := range run.Diagnostics {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO diagnostics (run_id, kind, subject) VALUES (?, ?, ?)",
			run.ID, d.Kind, d.Subject,
		); err != nil {
			return fmt.Errorf("insert diagnostic: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// Categories returns the category order stored for runID.
func (s *Store) Categories(ctx context.Context, runID string) ([]Category, error) {
	ctx = ensureContext(ctx)
	if _, err := s.run(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, count, weight FROM categories WHERE run_id = ? ORDER BY position", runID)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.Name, &c.Count, &c.Weight); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Assignments returns the partition of every patient in runID, ordered by patient.
func (s *Store) Assignments(ctx context.Context, runID string) ([]Assignment, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		"SELECT patient_id, partition, ground_truth, slides FROM assignments WHERE run_id = ? ORDER BY patient_id", runID)
	if err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		var (
			a         Assignment
			partition string
			truth     sql.NullString
		)
		if err := rows.Scan(&a.Patient, &partition, &truth, &a.Slides); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		a.Partition = Partition(partition)
		if truth.Valid {
			value := truth.String
			a.GroundTruth = &value
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Diagnostics returns the diagnostics recorded for runID.
func (s *Store) Diagnostics(ctx context.Context, runID string) ([]Diagnostic, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		"SELECT kind, subject FROM diagnostics WHERE run_id = ? ORDER BY kind, subject", runID)
	if err != nil {
		return nil, fmt.Errorf("query diagnostics: %w", err)
	}
	defer rows.Close()

	var out []Diagnostic
	for rows.Next() {
		var d Diagnostic
		if err := rows.Scan(&d.Kind, &d.Subject); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// LatestRun returns the most recently recorded run.
func (s *Store) LatestRun(ctx context.Context) (RunSummary, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, "SELECT "+summaryColumns+" FROM runs ORDER BY created_at DESC, rowid DESC LIMIT 1")
	summary, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunSummary{}, ErrRunNotFound
	}
	return summary, err
}

// Runs lists recorded runs, newest first. limit <= 0 returns all.
func (s *Store) Runs(ctx context.Context, limit int) ([]RunSummary, error) {
	ctx = ensureContext(ctx)
	query := "SELECT " + summaryColumns + " FROM runs ORDER BY created_at DESC, rowid DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

func (s *Store) run(ctx context.Context, runID string) (RunSummary, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+summaryColumns+" FROM runs WHERE id = ?", runID)
	summary, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunSummary{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return summary, err
}

const summaryColumns = "id, created_at, config_digest, mode, bag_size, dim_features, valid_fraction, split_seed, train_patients, valid_patients"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSummary(row rowScanner) (RunSummary, error) {
	var (
		s       RunSummary
		created string
		seed    int64
	)
	if err := row.Scan(&s.ID, &created, &s.ConfigDigest, &s.Mode, &s.BagSize, &s.DimFeatures,
		&s.ValidFraction, &seed, &s.TrainPatients, &s.ValidPatients); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunSummary{}, err
		}
		return RunSummary{}, fmt.Errorf("scan run: %w", err)
	}
	s.SplitSeed = uint64(seed)
	if ts, err := time.Parse(timestampLayout, created); err == nil {
		s.CreatedAt = ts
	}
	return s, nil
}
