// Package quarantine isolates infected files. Each quarantined file is moved
// into a vault directory under a random name with owner-only permissions,
// and a SQLite row records where it came from so it can be restored.
package quarantine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/slaythrax/clamui-sub000/internal/events"
)

// ErrNotFound is returned for an unknown entry id.
var ErrNotFound = errors.New("quarantine: entry not found")

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id             TEXT PRIMARY KEY,
	original_path  TEXT NOT NULL,
	signature      TEXT NOT NULL,
	size           INTEGER NOT NULL,
	quarantined_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_quarantined_at ON entries(quarantined_at);
`

// Entry is one quarantined file.
type Entry struct {
	ID            string
	OriginalPath  string
	Signature     string
	Size          int64
	QuarantinedAt time.Time
}

// Store is the quarantine database plus its on-disk vault.
type Store struct {
	db       *sql.DB
	vaultDir string
	log      zerolog.Logger
	bus      *events.Bus
}

// Open opens (creating if needed) the quarantine at dbPath with files vaulted
// under vaultDir. bus may be nil.
func Open(dbPath, vaultDir string, log zerolog.Logger, bus *events.Bus) (*Store, error) {
	if err := os.MkdirAll(vaultDir, 0700); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("create quarantine dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open quarantine db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init quarantine schema: %w", err)
	}

	return &Store{db: db, vaultDir: vaultDir, log: log, bus: bus}, nil
}

// Close closes the database. Vaulted files stay on disk.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add moves the file at path into the vault and records it. On any failure
// after the move, the file is moved back so nothing is silently lost.
func (s *Store) Add(ctx context.Context, path, signature string) (*Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat infected file: %w", err)
	}

	entry := &Entry{
		ID:            uuid.NewString(),
		OriginalPath:  path,
		Signature:     signature,
		Size:          info.Size(),
		QuarantinedAt: time.Now().UTC(),
	}

	vaultPath := s.vaultPath(entry.ID)
	if err := moveFile(path, vaultPath); err != nil {
		return nil, fmt.Errorf("vault infected file: %w", err)
	}
	if err := os.Chmod(vaultPath, 0600); err != nil {
		s.log.Warn().Err(err).Str("id", entry.ID).Msg("could not restrict vault file permissions")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entries (id, original_path, signature, size, quarantined_at) VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.OriginalPath, entry.Signature, entry.Size, entry.QuarantinedAt,
	)
	if err != nil {
		if mvErr := moveFile(vaultPath, path); mvErr != nil {
			s.log.Error().Err(mvErr).Str("path", path).Msg("failed to roll back vault move")
		}
		return nil, fmt.Errorf("record quarantine entry: %w", err)
	}

	s.log.Info().
		Str("id", entry.ID).
		Str("path", path).
		Str("signature", signature).
		Msg("file quarantined")
	s.publishChange(ctx)
	return entry, nil
}

// Restore moves a quarantined file back to its original location and removes
// the entry.
func (s *Store) Restore(ctx context.Context, id string) error {
	entry, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(entry.OriginalPath), 0755); err != nil {
		return fmt.Errorf("recreate original dir: %w", err)
	}
	if err := moveFile(s.vaultPath(id), entry.OriginalPath); err != nil {
		return fmt.Errorf("restore file: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id); err != nil {
		return fmt.Errorf("remove quarantine entry: %w", err)
	}

	s.log.Info().Str("id", id).Str("path", entry.OriginalPath).Msg("file restored")
	s.publishChange(ctx)
	return nil
}

// Delete permanently removes a quarantined file and its entry.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	if err := os.Remove(s.vaultPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove vault file: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id); err != nil {
		return fmt.Errorf("remove quarantine entry: %w", err)
	}

	s.log.Info().Str("id", id).Msg("quarantined file deleted")
	s.publishChange(ctx)
	return nil
}

// Get returns one entry by id.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, original_path, signature, size, quarantined_at FROM entries WHERE id = ?`, id)

	var e Entry
	err := row.Scan(&e.ID, &e.OriginalPath, &e.Signature, &e.Size, &e.QuarantinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load quarantine entry: %w", err)
	}
	return &e, nil
}

// List returns all entries, newest first.
func (s *Store) List(ctx context.Context) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, original_path, signature, size, quarantined_at FROM entries ORDER BY quarantined_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list quarantine entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.OriginalPath, &e.Signature, &e.Size, &e.QuarantinedAt); err != nil {
			return nil, fmt.Errorf("scan quarantine entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Count returns the number of quarantined files.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count quarantine entries: %w", err)
	}
	return n, nil
}

func (s *Store) vaultPath(id string) string {
	return filepath.Join(s.vaultDir, id)
}

func (s *Store) publishChange(ctx context.Context) {
	if s.bus == nil {
		return
	}
	count, err := s.Count(ctx)
	if err != nil {
		return
	}
	s.bus.Publish(&events.QuarantineChangedEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventQuarantineChanged, Time: time.Now()},
		Count:     count,
	})
}

// moveFile renames src to dst, falling back to copy-and-remove when they sit
// on different filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}
