// File path: internal/catalog/catalog.go
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/agrisense/farmchat/internal/common"
)

// ErrNotFound marks a lookup for a file the catalog does not track.
var ErrNotFound = errors.New("catalog: file not found")

// ErrDuplicate marks an insert whose content hash is already registered.
var ErrDuplicate = errors.New("catalog: file already ingested")

const schema = `
CREATE TABLE IF NOT EXISTS files (
	id         TEXT PRIMARY KEY,
	filename   TEXT NOT NULL,
	hash       TEXT NOT NULL UNIQUE,
	kind       TEXT NOT NULL,
	chunks     INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_files_created_at ON files(created_at);
`

// File is one ingested upload tracked by the catalog.
type File struct {
	ID        string    `db:"id" json:"id"`
	Filename  string    `db:"filename" json:"filename"`
	Hash      string    `db:"hash" json:"hash"`
	Kind      string    `db:"kind" json:"kind"`
	Chunks    int       `db:"chunks" json:"chunks"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Catalog is the relational index over ingested files. The vector store holds
// the chunks; the catalog answers "what files exist" and powers dedupe.
type Catalog struct {
	db *sqlx.DB
}

func Open(path string) (*Catalog, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply catalog schema: %w", err)
	}
	common.Logger().Info("catalog: opened", "path", path)
	return &Catalog{db: db}, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

// Insert registers an ingested file and returns its generated ID. A hash
// collision with an existing row yields ErrDuplicate.
func (c *Catalog) Insert(ctx context.Context, filename, hash, kind string, chunks int) (File, error) {
	exists, err := c.HasHash(ctx, hash)
	if err != nil {
		return File{}, err
	}
	if exists {
		return File{}, ErrDuplicate
	}
	file := File{
		ID:        uuid.NewString(),
		Filename:  filename,
		Hash:      hash,
		Kind:      kind,
		Chunks:    chunks,
		CreatedAt: time.Now().UTC(),
	}
	_, err = c.db.NamedExecContext(ctx,
		`INSERT INTO files (id, filename, hash, kind, chunks, created_at)
		 VALUES (:id, :filename, :hash, :kind, :chunks, :created_at)`, file)
	if err != nil {
		return File{}, fmt.Errorf("insert catalog row: %w", err)
	}
	return file, nil
}

func (c *Catalog) List(ctx context.Context) ([]File, error) {
	files := []File{}
	err := c.db.SelectContext(ctx, &files,
		`SELECT id, filename, hash, kind, chunks, created_at FROM files ORDER BY created_at DESC, filename`)
	if err != nil {
		return nil, fmt.Errorf("list catalog rows: %w", err)
	}
	return files, nil
}

func (c *Catalog) Get(ctx context.Context, id string) (File, error) {
	var file File
	err := c.db.GetContext(ctx, &file,
		`SELECT id, filename, hash, kind, chunks, created_at FROM files WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return File{}, ErrNotFound
	}
	if err != nil {
		return File{}, fmt.Errorf("get catalog row: %w", err)
	}
	return file, nil
}

func (c *Catalog) Delete(ctx context.Context, id string) error {
	result, err := c.db.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete catalog row: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete catalog row: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *Catalog) HasHash(ctx context.Context, hash string) (bool, error) {
	var count int
	err := c.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM files WHERE hash = ?`, hash)
	if err != nil {
		return false, fmt.Errorf("check catalog hash: %w", err)
	}
	return count > 0, nil
}
