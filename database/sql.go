/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package database

import (
	"context"
	"database/sql"
	"embed"
	"path"
	"time"

	"github.com/pkg/errors"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/sirupsen/logrus"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect names double as database/sql driver names and sql-migrate dialects,
// except postgres which both call "postgres".
const (
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
	DialectSQLite   = "sqlite3"
)

// SQLStore keeps documents in a single snapshots table keyed by name.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

func NewSQLStore(db *sql.DB, dialect string) (*SQLStore, error) {
	switch dialect {
	case DialectPostgres, DialectMySQL, DialectSQLite:
	default:
		return nil, errors.Errorf("unsupported sql dialect %q", dialect)
	}
	return &SQLStore{db: db, dialect: dialect}, nil
}

// ConnectDB opens and pings a database/sql handle for the dialect.
func ConnectDB(dialect, dsn string) (*sql.DB, error) {
	db, err := sql.Open(dialect, dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		logrus.Errorf("database connection error: %v", err)
		db.Close()
		return nil, err
	}
	return db, nil
}

func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Dialect() string {
	return s.dialect
}

func (s *SQLStore) Get(ctx context.Context, name string) ([]byte, error) {
	var body string
	err := s.db.QueryRowContext(ctx, s.selectQuery(), name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(body), nil
}

func (s *SQLStore) Put(ctx context.Context, name string, data []byte) error {
	_, err := s.db.ExecContext(ctx, s.upsertQuery(), name, string(data), time.Now().UTC())
	return err
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) selectQuery() string {
	if s.dialect == DialectPostgres {
		return `SELECT body FROM snapshots WHERE name = $1`
	}
	return `SELECT body FROM snapshots WHERE name = ?`
}

func (s *SQLStore) upsertQuery() string {
	switch s.dialect {
	case DialectPostgres:
		return `INSERT INTO snapshots (name, body, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`
	case DialectMySQL:
		return `INSERT INTO snapshots (name, body, updated_at) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE body = VALUES(body), updated_at = VALUES(updated_at)`
	default:
		return `INSERT INTO snapshots (name, body, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`
	}
}

// Migrate applies the migrations under root/<dialect> (postgres, mysql, sqlite3).
func (s *SQLStore) Migrate(files embed.FS, root string, direction migrate.MigrationDirection) (int, error) {
	source := migrate.EmbedFileSystemMigrationSource{
		FileSystem: files,
		Root:       path.Join(root, s.dialect),
	}
	n, err := migrate.Exec(s.db, s.dialect, source, direction)
	if err != nil {
		return n, errors.Wrap(err, "run migrations")
	}
	return n, nil
}
