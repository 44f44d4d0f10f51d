package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"go.uber.org/zap"
)

// State is one step of a document's ingestion lifecycle.
type State string

const (
	StateDownloading State = "downloading"
	StateEnqueued    State = "enqueued"
	StateProcessing  State = "processing"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// IsTerminal reports whether the state ends the lifecycle. Terminal rows
// are retained for a bounded window and then pruned.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

const schema = `
CREATE TABLE IF NOT EXISTS file_states (
	file_id    TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	detail     TEXT NOT NULL DEFAULT '',
	signature  TEXT NOT NULL DEFAULT '',
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_file_states_updated_at ON file_states(updated_at);
`

// Tracker records which files are mid-ingestion so that concurrent sweeps
// never process the same file twice. All transitions are transactional:
// a claim reads and writes the row under one SQLite transaction.
type Tracker struct {
	db  *sql.DB
	log *zap.Logger
	now func() time.Time
}

// NewTracker opens (or creates) the tracker database at path.
func NewTracker(path string, log *zap.Logger) (*Tracker, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating state directory: %w", err)
		}
	}

	// WAL mode keeps the worker's claims cheap under concurrent sweeps.
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating state schema: %w", err)
	}

	return &Tracker{db: db, log: log, now: time.Now}, nil
}

// Close closes the database connection.
func (t *Tracker) Close() error {
	return t.db.Close()
}

// Claim marks fileID as owned by the caller in the given non-terminal
// state, recording the content signature of the source object. It
// returns false when the file is already mid-ingestion, or when the file
// completed with the same signature and so has nothing new to ingest.
// Failed files and files with a changed signature can always be claimed
// again.
func (t *Tracker) Claim(ctx context.Context, fileID string, to State, signature string) (bool, error) {
	if to.IsTerminal() {
		return false, fmt.Errorf("cannot claim into terminal state %q", to)
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin claim: %w", err)
	}
	defer tx.Rollback()

	var current, lastSignature string
	err = tx.QueryRowContext(ctx,
		`SELECT state, signature FROM file_states WHERE file_id = ?`, fileID).
		Scan(&current, &lastSignature)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// First sighting, claimable.
	case err != nil:
		return false, fmt.Errorf("read state: %w", err)
	default:
		if !State(current).IsTerminal() {
			return false, nil
		}
		if State(current) == StateCompleted && signature != "" && lastSignature == signature {
			return false, nil
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO file_states (file_id, state, detail, signature, updated_at)
		VALUES (?, ?, '', ?, ?)
		ON CONFLICT(file_id) DO UPDATE SET
			state = excluded.state,
			detail = excluded.detail,
			signature = excluded.signature,
			updated_at = excluded.updated_at`,
		fileID, string(to), signature, t.now().Unix()); err != nil {
		return false, fmt.Errorf("write state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit claim: %w", err)
	}
	return true, nil
}

// Set transitions fileID to the given state unconditionally, keeping
// the signature recorded at claim time. Detail carries the failure
// reason for StateFailed and is empty otherwise.
func (t *Tracker) Set(ctx context.Context, fileID string, to State, detail string) error {
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO file_states (file_id, state, detail, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(file_id) DO UPDATE SET
			state = excluded.state,
			detail = excluded.detail,
			updated_at = excluded.updated_at`,
		fileID, string(to), detail, t.now().Unix())
	if err != nil {
		return fmt.Errorf("set state: %w", err)
	}
	return nil
}

// Get returns the current state of fileID, or ok=false when untracked.
func (t *Tracker) Get(ctx context.Context, fileID string) (State, bool, error) {
	var current string
	err := t.db.QueryRowContext(ctx,
		`SELECT state FROM file_states WHERE file_id = ?`, fileID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read state: %w", err)
	}
	return State(current), true, nil
}

// PruneTerminal deletes completed and failed rows older than retention.
// Active rows are never pruned regardless of age.
func (t *Tracker) PruneTerminal(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := t.now().Add(-retention).Unix()
	res, err := t.db.ExecContext(ctx, `
		DELETE FROM file_states
		WHERE state IN (?, ?) AND updated_at < ?`,
		string(StateCompleted), string(StateFailed), cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune states: %w", err)
	}
	pruned, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if pruned > 0 {
		t.log.Debug("pruned terminal file states", zap.Int64("count", pruned))
	}
	return pruned, nil
}
