// Package storage persists framework state snapshots.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/XiaoConstantine/ace-go/pkg/ace"
	"github.com/XiaoConstantine/ace-go/pkg/errors"
	"github.com/XiaoConstantine/ace-go/pkg/logging"
)

// SnapshotInfo describes one stored snapshot without its payload.
type SnapshotInfo struct {
	ManualID  string    `json:"manual_id"`
	Version   int       `json:"version"`
	SavedAt   time.Time `json:"saved_at"`
	SizeBytes int       `json:"size_bytes"`
}

// SQLiteStore keeps versioned framework state snapshots in SQLite.
// Snapshots are keyed by (manual_id, manual version); saving the same
// version twice overwrites it.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string

	initialized sync.Once
}

// NewSQLiteStore opens or creates the snapshot database at path. Use
// ":memory:" for an in-memory store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.Unknown, "failed to open SQLite database"),
			errors.Fields{"path": path},
		)
	}

	store := &SQLiteStore{
		db:   db,
		path: path,
	}
	if err := store.ensureInitialized(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) ensureInitialized() error {
	var initErr error
	s.initialized.Do(func() {
		// WAL mode for better concurrency
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			initErr = errors.Wrap(err, errors.Unknown, "failed to enable WAL mode")
			return
		}

		query := `
        CREATE TABLE IF NOT EXISTS manual_snapshots (
            manual_id TEXT NOT NULL,
            version INTEGER NOT NULL,
            state TEXT NOT NULL,
            saved_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            PRIMARY KEY (manual_id, version)
        );

        CREATE INDEX IF NOT EXISTS idx_manual_snapshots_saved_at
        ON manual_snapshots(saved_at);
        `
		if _, err := s.db.Exec(query); err != nil {
			initErr = errors.Wrap(err, errors.Unknown, "failed to initialize snapshot table")
			return
		}
	})
	return initErr
}

// SaveSnapshot stores the framework state under its manual's id and
// current version.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, state *ace.FrameworkState) error {
	if err := s.ensureInitialized(); err != nil {
		return err
	}
	if state == nil || state.Manual == nil {
		return errors.New(errors.InvalidInput, "state has no manual to snapshot")
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, errors.SerializationFailed, "failed to marshal snapshot")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
        INSERT INTO manual_snapshots (manual_id, version, state, saved_at)
        VALUES (?, ?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT(manual_id, version) DO UPDATE SET
            state = excluded.state,
            saved_at = excluded.saved_at`,
		state.Manual.ManualID, state.Manual.Version, string(payload))
	if err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.Unknown, "failed to save snapshot"),
			errors.Fields{"manual_id": state.Manual.ManualID, "version": state.Manual.Version},
		)
	}

	logging.GetLogger().Debug(ctx, "saved snapshot %s v%d (%d bytes)",
		state.Manual.ManualID, state.Manual.Version, len(payload))
	return nil
}

// LoadLatest returns the highest-versioned snapshot for a manual.
func (s *SQLiteStore) LoadLatest(ctx context.Context, manualID string) (*ace.FrameworkState, error) {
	if err := s.ensureInitialized(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
        SELECT state FROM manual_snapshots
        WHERE manual_id = ?
        ORDER BY version DESC
        LIMIT 1`, manualID)
	return scanState(row, manualID, -1)
}

// LoadVersion returns one specific snapshot.
func (s *SQLiteStore) LoadVersion(ctx context.Context, manualID string, version int) (*ace.FrameworkState, error) {
	if err := s.ensureInitialized(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
        SELECT state FROM manual_snapshots
        WHERE manual_id = ? AND version = ?`, manualID, version)
	return scanState(row, manualID, version)
}

func scanState(row *sql.Row, manualID string, version int) (*ace.FrameworkState, error) {
	var payload string
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.WithFields(
				errors.New(errors.ResourceNotFound, "snapshot not found"),
				errors.Fields{"manual_id": manualID, "version": version},
			)
		}
		return nil, errors.Wrap(err, errors.Unknown, "failed to read snapshot")
	}

	var state ace.FrameworkState
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return nil, errors.Wrap(err, errors.SerializationFailed, "failed to decode snapshot")
	}
	return &state, nil
}

// ListVersions returns snapshot descriptors for a manual, newest
// version first.
func (s *SQLiteStore) ListVersions(ctx context.Context, manualID string) ([]SnapshotInfo, error) {
	if err := s.ensureInitialized(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
        SELECT version, saved_at, LENGTH(state) FROM manual_snapshots
        WHERE manual_id = ?
        ORDER BY version DESC`, manualID)
	if err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "failed to list snapshots")
	}
	defer rows.Close()

	var infos []SnapshotInfo
	for rows.Next() {
		info := SnapshotInfo{ManualID: manualID}
		if err := rows.Scan(&info.Version, &info.SavedAt, &info.SizeBytes); err != nil {
			return nil, errors.Wrap(err, errors.Unknown, "failed to scan snapshot row")
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "failed to iterate snapshots")
	}
	return infos, nil
}

// Prune deletes all but the newest keep versions of a manual's
// snapshots. keep <= 0 is a no-op.
func (s *SQLiteStore) Prune(ctx context.Context, manualID string, keep int) error {
	if keep <= 0 {
		return nil
	}
	if err := s.ensureInitialized(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
        DELETE FROM manual_snapshots
        WHERE manual_id = ? AND version NOT IN (
            SELECT version FROM manual_snapshots
            WHERE manual_id = ?
            ORDER BY version DESC
            LIMIT ?
        )`, manualID, manualID, keep)
	if err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to prune snapshots")
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to close database")
	}
	return nil
}
