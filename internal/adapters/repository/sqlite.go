package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

//go:embed schema.sql
var schema string

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const maxCloneAttempts = 1000

// SQLiteStore is a Store backed by a SQLite database file.
type SQLiteStore struct {
	db    *sql.DB
	now   func() time.Time
	newID func() string
}

var _ Store = (*SQLiteStore)(nil)

// Open opens (creating if needed) the SQLite database at path and applies
// the schema. Use MemoryPath for a throwaway store.
func Open(path string, opts ...Option) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrNoPath
	}
	dsn := path
	if path != MemoryPath {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection keeps writes serialized and an in-memory database alive.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &SQLiteStore{
		db:    db,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func titleKey(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, a Artifact) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	if strings.TrimSpace(a.UserGUID) == "" {
		return Artifact{}, ErrUserRequired
	}
	a.Title = strings.TrimSpace(a.Title)
	if a.Title == "" {
		return Artifact{}, ErrTitleRequired
	}
	a.Timestamp = s.now().UTC()
	a.ArtifactSize = ArtifactSize{Nodes: len(a.Nodes), Edges: len(a.Edges), Batches: len(a.Batches)}

	nodes, edges, batches, err := encodeGraph(a)
	if err != nil {
		return Artifact{}, err
	}

	if a.ID == "" {
		a.ID = s.newID()
		a.Name = "dag_execution_" + a.ID
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO dag_artifacts (
			   id, user_guid, title, title_key, name, created_at,
			   nodes_json, edges_json, batches_json, document,
			   nodes_count, edges_count, batches_count
			 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.UserGUID, a.Title, titleKey(a.Title), a.Name, a.Timestamp.UnixMilli(),
			nodes, edges, batches, a.Document,
			a.ArtifactSize.Nodes, a.ArtifactSize.Edges, a.ArtifactSize.Batches,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return Artifact{}, fmt.Errorf("%w: %s", ErrTitleExists, a.Title)
			}
			return Artifact{}, fmt.Errorf("insert artifact: %w", err)
		}
		return a, nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE dag_artifacts SET
		   title = ?, title_key = ?, created_at = ?,
		   nodes_json = ?, edges_json = ?, batches_json = ?, document = ?,
		   nodes_count = ?, edges_count = ?, batches_count = ?
		 WHERE user_guid = ? AND id = ?`,
		a.Title, titleKey(a.Title), a.Timestamp.UnixMilli(),
		nodes, edges, batches, a.Document,
		a.ArtifactSize.Nodes, a.ArtifactSize.Edges, a.ArtifactSize.Batches,
		a.UserGUID, a.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Artifact{}, fmt.Errorf("%w: %s", ErrTitleExists, a.Title)
		}
		return Artifact{}, fmt.Errorf("update artifact: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Artifact{}, fmt.Errorf("%w: %s", ErrNotFound, a.ID)
	}
	a.Name = "dag_execution_" + a.ID
	return a, nil
}

func encodeGraph(a Artifact) (nodes, edges, batches string, err error) {
	enc := func(v any) (string, error) {
		raw, err := json.Marshal(v)
		return string(raw), err
	}
	if nodes, err = enc(a.Nodes); err != nil {
		return "", "", "", fmt.Errorf("encode nodes: %w", err)
	}
	if edges, err = enc(a.Edges); err != nil {
		return "", "", "", fmt.Errorf("encode edges: %w", err)
	}
	if batches, err = enc(a.Batches); err != nil {
		return "", "", "", fmt.Errorf("encode batches: %w", err)
	}
	return nodes, edges, batches, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, userGUID string) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at, nodes_count, edges_count, batches_count
		   FROM dag_artifacts
		  WHERE user_guid = ?
		  ORDER BY created_at DESC, id DESC`,
		userGUID,
	)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var (
			sum Summary
			ms  int64
		)
		if err := rows.Scan(&sum.ID, &sum.Title, &ms, &sum.Nodes, &sum.Edges, &sum.Batches); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		sum.Timestamp = time.UnixMilli(ms).UTC()
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	return out, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, userGUID, id string) (Artifact, error) {
	var (
		a                     Artifact
		ms                    int64
		nodes, edges, batches string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_guid, title, name, created_at, nodes_json, edges_json, batches_json,
		        document, nodes_count, edges_count, batches_count
		   FROM dag_artifacts
		  WHERE user_guid = ? AND id = ?`,
		userGUID, id,
	).Scan(&a.ID, &a.UserGUID, &a.Title, &a.Name, &ms, &nodes, &edges, &batches,
		&a.Document, &a.ArtifactSize.Nodes, &a.ArtifactSize.Edges, &a.ArtifactSize.Batches)
	if errors.Is(err, sql.ErrNoRows) {
		return Artifact{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Artifact{}, fmt.Errorf("get artifact: %w", err)
	}
	a.Timestamp = time.UnixMilli(ms).UTC()
	if err := json.Unmarshal([]byte(nodes), &a.Nodes); err != nil {
		return Artifact{}, fmt.Errorf("decode nodes: %w", err)
	}
	if err := json.Unmarshal([]byte(edges), &a.Edges); err != nil {
		return Artifact{}, fmt.Errorf("decode edges: %w", err)
	}
	if err := json.Unmarshal([]byte(batches), &a.Batches); err != nil {
		return Artifact{}, fmt.Errorf("decode batches: %w", err)
	}
	return a, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, userGUID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dag_artifacts WHERE user_guid = ? AND id = ?`, userGUID, id)
	if err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// FindByTitle implements Store. Titles compare case-insensitively after trimming.
func (s *SQLiteStore) FindByTitle(ctx context.Context, userGUID, title string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM dag_artifacts WHERE user_guid = ? AND title_key = ?`,
		userGUID, titleKey(title),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, title)
	}
	if err != nil {
		return "", fmt.Errorf("find artifact: %w", err)
	}
	return id, nil
}

// Clone implements Store.
func (s *SQLiteStore) Clone(ctx context.Context, userGUID, id string, prepare func(*Artifact) error) (Artifact, error) {
	src, err := s.Get(ctx, userGUID, id)
	if err != nil {
		return Artifact{}, err
	}
	for i := 1; i <= maxCloneAttempts; i++ {
		title := CopyTitle(src.Title, i)
		if _, err := s.FindByTitle(ctx, userGUID, title); err == nil {
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return Artifact{}, err
		}
		cp := src
		cp.ID, cp.Name, cp.Title = "", "", title
		if prepare != nil {
			if err := prepare(&cp); err != nil {
				return Artifact{}, fmt.Errorf("prepare copy: %w", err)
			}
		}
		return s.Save(ctx, cp)
	}
	return Artifact{}, fmt.Errorf("%w: no free copy title for %q", ErrTitleExists, src.Title)
}

// CopyTitle is the title of the n-th copy of an artifact.
func CopyTitle(title string, n int) string {
	return fmt.Sprintf("%s - copy %d", title, n)
}
