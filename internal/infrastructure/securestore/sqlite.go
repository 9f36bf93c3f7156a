package securestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps sealed items in a single SQLite table.
type SQLiteStore struct {
	db     *sql.DB
	sealer Sealer
}

// NewSQLiteStore opens or creates the database at path and runs migrations.
func NewSQLiteStore(path string, sealer Sealer) (*SQLiteStore, error) {
	if sealer == nil {
		return nil, errors.New("sqlite store requires a sealer")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db, sealer: sealer}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS secure_items (
			service TEXT NOT NULL,
			account TEXT NOT NULL,
			sealed BLOB NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (service, account)
		)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Read(ctx context.Context, service, account string) ([]byte, error) {
	var sealed []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT sealed FROM secure_items WHERE service = ? AND account = ?`,
		service, account,
	).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query secure item: %w", err)
	}
	return s.sealer.Open(sealed, label(service, account))
}

func (s *SQLiteStore) Write(ctx context.Context, service, account string, data []byte) error {
	sealed, err := s.sealer.Seal(data, label(service, account))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO secure_items (service, account, sealed, updated_at)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(service, account) DO UPDATE SET sealed = excluded.sealed, updated_at = excluded.updated_at`,
		service, account, sealed,
	)
	if err != nil {
		return fmt.Errorf("upsert secure item: %w", err)
	}
	return nil
}
