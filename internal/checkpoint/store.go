// Package checkpoint implements the durable, TTL-bounded store of
// "last known good" session states. Two views are kept: an append-only
// per-session history ordered by write time, and a latest-per-story
// pointer that survives across sessions so a replacement session can
// resume work a dead one left behind.
package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/harrison/sentinel/internal/logger"
	"github.com/harrison/sentinel/internal/models"
)

// Store is the checkpoint store contract. The store is the single source
// of truth for resumability: a new session consults it, and only it, to
// decide its starting point.
type Store interface {
	// CreateCheckpoint records a verified commit for a session, renews
	// the TTL on the session's whole history, and overwrites the
	// story-level latest pointer.
	CreateCheckpoint(ctx context.Context, params models.CreateCheckpointParams) (*models.Checkpoint, error)

	// GetLatestCheckpoint returns the most recent unexpired checkpoint
	// for a session, or nil if none.
	GetLatestCheckpoint(ctx context.Context, sessionID string) (*models.Checkpoint, error)

	// GetSessionCheckpoints returns a session's unexpired history,
	// newest first.
	GetSessionCheckpoints(ctx context.Context, sessionID string) ([]*models.Checkpoint, error)

	// GetLatestStoryCheckpoint returns the newest checkpoint ever
	// written for a story, regardless of which session wrote it, or nil.
	GetLatestStoryCheckpoint(ctx context.Context, workspaceID, storyID string) (*models.Checkpoint, error)

	// DeleteSessionCheckpoints drops a session's history. The story
	// pointer is left untouched; it is only ever overwritten by newer
	// writes.
	DeleteSessionCheckpoints(ctx context.Context, sessionID string) error

	// Close releases the underlying storage.
	Close() error
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS session_checkpoints (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_checkpoints_session
	ON session_checkpoints(session_id, created_at);
CREATE INDEX IF NOT EXISTS idx_session_checkpoints_expiry
	ON session_checkpoints(expires_at);

CREATE TABLE IF NOT EXISTS story_checkpoints (
	workspace_id TEXT NOT NULL,
	story_id TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	payload TEXT NOT NULL,
	PRIMARY KEY (workspace_id, story_id)
);
`

// SQLiteStore implements Store on a SQLite database. Checkpoints are
// stored as JSON payloads scored by creation time, with a per-key
// expiry column standing in for the TTL of the whole history.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
	log logger.Logger
	now func() time.Time
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and
// initializes the schema. ttl bounds how long histories and story
// pointers live; log may be nil.
func NewSQLiteStore(dbPath string, ttl time.Duration, log logger.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = logger.Nop()
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// busy_timeout first so subsequent statements wait on locks.
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &SQLiteStore{
		db:  db,
		ttl: ttl,
		log: log,
		now: time.Now,
	}, nil
}

// execWithRetry executes a statement with exponential backoff on
// "database is locked" errors that can occur during concurrent
// initialization of the same database file.
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		lastErr = err
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// CreateCheckpoint records a checkpoint. Safe to call concurrently for
// different sessions; concurrent writes for the same session are
// append-only and need no mutual exclusion beyond the transaction.
func (s *SQLiteStore) CreateCheckpoint(ctx context.Context, params models.CreateCheckpointParams) (*models.Checkpoint, error) {
	now := s.now()
	cp := &models.Checkpoint{
		ID:            models.NewCheckpointID(),
		SessionID:     params.SessionID,
		AgentType:     params.AgentType,
		ProjectID:     params.ProjectID,
		WorkspaceID:   params.WorkspaceID,
		StoryID:       params.StoryID,
		CommitHash:    params.CommitHash,
		Branch:        params.Branch,
		FilesModified: params.FilesModified,
		TestsPassed:   params.TestsPassed,
		Description:   params.Description,
		CreatedAt:     now,
	}

	payload, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint: %w", err)
	}

	expiresAt := now.Add(s.ttl).UnixNano()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO session_checkpoints (id, session_id, created_at, expires_at, payload)
		 VALUES (?, ?, ?, ?, ?)`,
		cp.ID, cp.SessionID, now.UnixNano(), expiresAt, string(payload))
	if err != nil {
		return nil, fmt.Errorf("insert checkpoint: %w", err)
	}

	// A new write renews the TTL of the session's entire history.
	_, err = tx.ExecContext(ctx,
		`UPDATE session_checkpoints SET expires_at = ? WHERE session_id = ?`,
		expiresAt, cp.SessionID)
	if err != nil {
		return nil, fmt.Errorf("renew history ttl: %w", err)
	}

	// The story pointer keeps the greatest-timestamped checkpoint ever
	// written, whichever session wrote it.
	_, err = tx.ExecContext(ctx,
		`INSERT INTO story_checkpoints (workspace_id, story_id, updated_at, expires_at, payload)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(workspace_id, story_id) DO UPDATE SET
			updated_at = excluded.updated_at,
			expires_at = excluded.expires_at,
			payload = excluded.payload
		 WHERE excluded.updated_at >= story_checkpoints.updated_at`,
		cp.WorkspaceID, cp.StoryID, now.UnixNano(), expiresAt, string(payload))
	if err != nil {
		return nil, fmt.Errorf("update story checkpoint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit checkpoint: %w", err)
	}

	s.log.Debugf("checkpoint %s recorded for session %s (story %s, commit %s)",
		cp.ID, cp.SessionID, cp.StoryID, cp.CommitHash)
	return cp, nil
}

// GetLatestCheckpoint returns the newest unexpired checkpoint for a
// session, or nil if the session has none.
func (s *SQLiteStore) GetLatestCheckpoint(ctx context.Context, sessionID string) (*models.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM session_checkpoints
		 WHERE session_id = ? AND expires_at > ?
		 ORDER BY created_at DESC`,
		sessionID, s.now().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query latest checkpoint: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan checkpoint row: %w", err)
		}
		if cp := s.decode(payload); cp != nil {
			return cp, nil
		}
		// Corrupt payload: skip to the next-newest entry.
	}
	return nil, rows.Err()
}

// GetSessionCheckpoints returns a session's unexpired history, newest
// first. Corrupt entries are logged and skipped.
func (s *SQLiteStore) GetSessionCheckpoints(ctx context.Context, sessionID string) ([]*models.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM session_checkpoints
		 WHERE session_id = ? AND expires_at > ?
		 ORDER BY created_at DESC`,
		sessionID, s.now().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query session checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []*models.Checkpoint
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan checkpoint row: %w", err)
		}
		if cp := s.decode(payload); cp != nil {
			checkpoints = append(checkpoints, cp)
		}
	}
	return checkpoints, rows.Err()
}

// GetLatestStoryCheckpoint returns the story's latest pointer, or nil if
// absent, expired, or unreadable.
func (s *SQLiteStore) GetLatestStoryCheckpoint(ctx context.Context, workspaceID, storyID string) (*models.Checkpoint, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM story_checkpoints
		 WHERE workspace_id = ? AND story_id = ? AND expires_at > ?`,
		workspaceID, storyID, s.now().UnixNano()).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query story checkpoint: %w", err)
	}
	return s.decode(payload), nil
}

// DeleteSessionCheckpoints drops a session's history.
func (s *SQLiteStore) DeleteSessionCheckpoints(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM session_checkpoints WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session checkpoints: %w", err)
	}
	return nil
}

// PurgeExpired removes rows whose TTL has elapsed. Reads already filter
// on expiry, so this is housekeeping, not correctness.
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int64, error) {
	now := s.now().UnixNano()
	var purged int64

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM session_checkpoints WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, fmt.Errorf("purge session checkpoints: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		purged += n
	}

	res, err = s.db.ExecContext(ctx,
		`DELETE FROM story_checkpoints WHERE expires_at <= ?`, now)
	if err != nil {
		return purged, fmt.Errorf("purge story checkpoints: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		purged += n
	}
	return purged, nil
}

// decode unmarshals a stored payload. A corrupt record degrades to nil
// so checkpoint loss means "start fresh", never a crashed caller.
func (s *SQLiteStore) decode(payload string) *models.Checkpoint {
	var cp models.Checkpoint
	if err := json.Unmarshal([]byte(payload), &cp); err != nil {
		s.log.Warnf("discarding unreadable checkpoint record: %v", err)
		return nil
	}
	return &cp
}

var _ Store = (*SQLiteStore)(nil)
