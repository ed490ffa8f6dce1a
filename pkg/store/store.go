// Package store implements the primary content store on SQLite. It is the
// authoritative record of what exists; the vector index is derived state.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/recallhq/recall/engine/content"
)

// DB wraps the SQLite handle.
type DB struct {
	db *sql.DB
}

// Open opens or creates the database, enables WAL for concurrent readers
// and initializes the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	s := &DB{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS content_items (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		type        TEXT NOT NULL,
		title       TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		content     TEXT NOT NULL DEFAULT '',
		url         TEXT NOT NULL DEFAULT '',
		image_url   TEXT NOT NULL DEFAULT '',
		summary     TEXT NOT NULL DEFAULT '',
		metadata    TEXT NOT NULL DEFAULT '{}',
		meta_tags   TEXT NOT NULL DEFAULT '{}',
		labels      TEXT NOT NULL DEFAULT '[]',
		created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_content_type ON content_items(type);
	CREATE INDEX IF NOT EXISTS idx_content_created ON content_items(created_at);
	`
	_, err := d.db.Exec(schema)
	return err
}

const recordColumns = `id, type, title, description, content, url, image_url,
	summary, metadata, meta_tags, labels, created_at, updated_at`

// Insert persists a new record and returns it with the assigned ID and
// server timestamps.
func (d *DB) Insert(ctx context.Context, r content.Record) (content.Record, error) {
	metadata, metaTags, labels, err := encodeJSONFields(r)
	if err != nil {
		return content.Record{}, err
	}

	res, err := d.db.ExecContext(ctx, `
		INSERT INTO content_items (
			type, title, description, content, url, image_url,
			summary, metadata, meta_tags, labels
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Type, r.Title, r.Description, r.Content, r.URL, r.ImageURL,
		r.Summary, metadata, metaTags, labels,
	)
	if err != nil {
		return content.Record{}, fmt.Errorf("insert content: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return content.Record{}, fmt.Errorf("last insert id: %w", err)
	}

	created, err := d.GetByID(ctx, id)
	if err != nil {
		return content.Record{}, err
	}
	if created == nil {
		return content.Record{}, fmt.Errorf("inserted row %d vanished", id)
	}
	return *created, nil
}

// GetByID returns a record, or nil when the ID is unknown.
func (d *DB) GetByID(ctx context.Context, id int64) (*content.Record, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM content_items WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetByIDs hydrates a batch of records in one query. Missing IDs are simply
// absent from the result; callers must not rely on return order.
func (d *DB) GetByIDs(ctx context.Context, ids []int64) ([]content.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM content_items WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("get by ids: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// List returns records matching the filter, newest first. Label filtering
// is any-match: a record qualifies when its label set intersects the
// requested set.
func (d *DB) List(ctx context.Context, f content.ListFilter) ([]content.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM content_items WHERE 1=1`
	var args []any

	if f.Type != "" {
		query += ` AND type = ?`
		args = append(args, f.Type)
	}
	if len(f.Labels) > 0 {
		placeholders := strings.Repeat("?,", len(f.Labels)-1) + "?"
		query += ` AND EXISTS (
			SELECT 1 FROM json_each(content_items.labels)
			WHERE json_each.value IN (` + placeholders + `))`
		for _, l := range f.Labels {
			args = append(args, l)
		}
	}

	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	if f.Offset > 0 {
		if f.Limit <= 0 {
			query += ` LIMIT -1`
		}
		query += ` OFFSET ?`
		args = append(args, f.Offset)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list content: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// Update applies only the fields set on the patch and bumps updated_at.
// Returns nil when the ID is unknown.
func (d *DB) Update(ctx context.Context, id int64, p content.Patch) (*content.Record, error) {
	var sets []string
	var args []any

	addSet := func(column string, v any) {
		sets = append(sets, column+" = ?")
		args = append(args, v)
	}

	if p.Type != nil {
		addSet("type", *p.Type)
	}
	if p.Title != nil {
		addSet("title", *p.Title)
	}
	if p.Description != nil {
		addSet("description", *p.Description)
	}
	if p.Content != nil {
		addSet("content", *p.Content)
	}
	if p.URL != nil {
		addSet("url", *p.URL)
	}
	if p.ImageURL != nil {
		addSet("image_url", *p.ImageURL)
	}
	if p.Metadata != nil {
		encoded, err := json.Marshal(*p.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
		addSet("metadata", string(encoded))
	}
	if p.Labels != nil {
		encoded, err := json.Marshal(*p.Labels)
		if err != nil {
			return nil, fmt.Errorf("encode labels: %w", err)
		}
		addSet("labels", string(encoded))
	}

	if len(sets) == 0 {
		return d.GetByID(ctx, id)
	}

	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	res, err := d.db.ExecContext(ctx,
		`UPDATE content_items SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("update content %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, nil
	}

	return d.GetByID(ctx, id)
}

// Delete removes a record, reporting whether it existed.
func (d *DB) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM content_items WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete content %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Count returns the number of stored records.
func (d *DB) Count(ctx context.Context) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM content_items`).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*content.Record, error) {
	var (
		rec      content.Record
		metadata string
		metaTags string
		labels   string
	)
	err := row.Scan(
		&rec.ID, &rec.Type, &rec.Title, &rec.Description, &rec.Content,
		&rec.URL, &rec.ImageURL, &rec.Summary, &metadata, &metaTags, &labels,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(metadata), &rec.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata for %d: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(metaTags), &rec.MetaTags); err != nil {
		return nil, fmt.Errorf("decode meta_tags for %d: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(labels), &rec.Labels); err != nil {
		return nil, fmt.Errorf("decode labels for %d: %w", rec.ID, err)
	}
	return &rec, nil
}

func collectRecords(rows *sql.Rows) ([]content.Record, error) {
	var recs []content.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

func encodeJSONFields(r content.Record) (metadata, metaTags, labels string, err error) {
	m := r.Metadata
	if m == nil {
		m = map[string]any{}
	}
	mt := r.MetaTags
	if mt == nil {
		mt = map[string]any{}
	}
	l := r.Labels
	if l == nil {
		l = []string{}
	}

	mb, err := json.Marshal(m)
	if err != nil {
		return "", "", "", fmt.Errorf("encode metadata: %w", err)
	}
	tb, err := json.Marshal(mt)
	if err != nil {
		return "", "", "", fmt.Errorf("encode meta_tags: %w", err)
	}
	lb, err := json.Marshal(l)
	if err != nil {
		return "", "", "", fmt.Errorf("encode labels: %w", err)
	}
	return string(mb), string(tb), string(lb), nil
}
