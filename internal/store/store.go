// Package store persists the source tree to SQLite. The whole tree is
// serialized as one path→content object under a single fixed key; factory
// reset deletes that key.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"ouro/internal/logging"
)

// snapshotKey is the single row the tree lives under.
const snapshotKey = "tree"

// SnapshotStore reads and writes tree snapshots.
type SnapshotStore struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// Open initializes the SQLite database at the given path.
func Open(path string) (*SnapshotStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &SnapshotStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Store("snapshot store ready at %s", path)
	return s, nil
}

func (s *SnapshotStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		key TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Save writes the full tree snapshot. Persistence runs synchronously after
// every mutation; callers treat failure as a warning, never fatal, because
// the in-memory tree already reflects the change.
func (s *SnapshotStore) Save(files map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(files)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO snapshots (key, payload, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, updated_at = CURRENT_TIMESTAMP
	`, snapshotKey, string(payload))
	if err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	logging.StoreDebug("snapshot saved: %d files, %d bytes", len(files), len(payload))
	return nil
}

// Load returns the persisted tree, or ok=false when no snapshot exists.
func (s *SnapshotStore) Load() (map[string]string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var payload string
	err := s.db.QueryRow(`SELECT payload FROM snapshots WHERE key = ?`, snapshotKey).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var files map[string]string
	if err := json.Unmarshal([]byte(payload), &files); err != nil {
		return nil, false, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	logging.Store("snapshot loaded: %d files", len(files))
	return files, true, nil
}

// Reset deletes the persisted snapshot. The next boot starts from the
// built-in seed tree.
func (s *SnapshotStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM snapshots WHERE key = ?`, snapshotKey); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	logging.Store("snapshot deleted (factory reset)")
	return nil
}

// Close releases the database handle.
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}
