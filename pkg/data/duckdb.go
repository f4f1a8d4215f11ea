package data

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/marcboeker/go-duckdb/v2"
)

const schema = `
CREATE SEQUENCE IF NOT EXISTS download_tasks_id_seq START 1;
CREATE TABLE IF NOT EXISTS download_tasks (
	id          BIGINT PRIMARY KEY DEFAULT nextval('download_tasks_id_seq'),
	kind        VARCHAR NOT NULL,
	status      VARCHAR NOT NULL,
	local_path  VARCHAR NOT NULL,
	descriptor  VARCHAR NOT NULL,
	url         VARCHAR NOT NULL,
	author      VARCHAR NOT NULL,
	comic_name  VARCHAR NOT NULL,
	progress    VARCHAR NOT NULL,
	total_count INTEGER NOT NULL,
	done_count  INTEGER NOT NULL,
	error_list  VARCHAR NOT NULL,
	done        BOOLEAN NOT NULL
);
`

// InitDuckDB opens (creating if needed) the task database at path.
func InitDuckDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, err
	}
	// One connection: every statement is a short point query, and a single
	// writer keeps DuckDB free of write conflicts.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return db, nil
}

type Repository struct {
	mu sync.Mutex
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// OpenRepository is InitDuckDB followed by NewRepository.
func OpenRepository(path string) (*Repository, error) {
	db, err := InitDuckDB(path)
	if err != nil {
		return nil, err
	}
	return NewRepository(db), nil
}

func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.db.Close()
}
