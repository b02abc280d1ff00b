package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/plateful/plateful/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS recipe_cache (
    id                 TEXT PRIMARY KEY,
    source_type        TEXT NOT NULL,
    source_key         TEXT UNIQUE,
    parent_id          TEXT REFERENCES recipe_cache(id),
    change_description TEXT,
    data               TEXT NOT NULL,
    embedding          TEXT,
    created_at         TEXT NOT NULL,
    last_processed_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_recipe_cache_source_key ON recipe_cache (source_key) WHERE source_key IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_recipe_cache_parent_id ON recipe_cache (parent_id) WHERE parent_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS saved_pointers (
    id             TEXT PRIMARY KEY,
    user_id        TEXT NOT NULL,
    record_id      TEXT NOT NULL REFERENCES recipe_cache(id),
    display_title  TEXT NOT NULL,
    change_summary TEXT,
    updated_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_saved_pointers_user ON saved_pointers (user_id);
`

// SQLiteStore is a single-file store for local development and tests.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path. Use ":memory:"
// for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "store: open sqlite")
	}
	// WAL keeps readers unblocked during embedding writes; the busy
	// timeout covers the brief write lock that remains.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "store: %s", p)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return eris.Wrap(err, "store: migrate sqlite")
	}
	return nil
}

func (s *SQLiteStore) Insert(ctx context.Context, rec *model.CacheRecord) error {
	data, embedding, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO recipe_cache (id, source_type, source_key, parent_id, change_description, data, embedding, created_at, last_processed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.SourceType), nullableSourceKey(rec), nullableParentID(rec), nullableChangeDescription(rec),
		string(data), nullableText(embedding),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano), rec.LastProcessedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return eris.Wrap(ErrDuplicateSourceKey, rec.SourceKey())
		}
		return eris.Wrap(err, "store: insert record")
	}
	return nil
}

func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*model.CacheRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM recipe_cache WHERE id = ?`, id)
	rec, err := scanSQLiteRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrap(ErrNotFound, id)
		}
		return nil, eris.Wrap(err, "store: get record by id")
	}
	return rec, nil
}

func (s *SQLiteStore) GetBySourceKey(ctx context.Context, key string) (*model.CacheRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM recipe_cache WHERE source_key = ?`, key)
	rec, err := scanSQLiteRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "store: get record by source key")
	}
	return rec, nil
}

func (s *SQLiteStore) UpdateData(ctx context.Context, id string, data model.CanonicalRecipe) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return eris.Wrap(err, "store: marshal recipe data")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE recipe_cache SET data = ?, last_processed_at = ? WHERE id = ?`,
		string(raw), time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return eris.Wrap(err, "store: update record data")
	}
	return requireRow(res, id)
}

func (s *SQLiteStore) TouchProcessed(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE recipe_cache SET last_processed_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), id); err != nil {
		return eris.Wrap(err, "store: touch record")
	}
	return nil
}

func (s *SQLiteStore) SetEmbedding(ctx context.Context, id string, vec []float32) error {
	raw, err := json.Marshal(vec)
	if err != nil {
		return eris.Wrap(err, "store: marshal embedding")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE recipe_cache SET embedding = ? WHERE id = ?`, string(raw), id)
	if err != nil {
		return eris.Wrap(err, "store: set embedding")
	}
	return requireRow(res, id)
}

func (s *SQLiteStore) SearchSimilar(ctx context.Context, query []float32, threshold float64, limit int) ([]model.MatchCandidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM recipe_cache
		 WHERE source_type = ? AND embedding IS NOT NULL`,
		string(model.SourceOriginal))
	if err != nil {
		return nil, eris.Wrap(err, "store: search similar")
	}
	defer rows.Close()

	recs, err := collectSQLiteRecords(rows)
	if err != nil {
		return nil, err
	}
	return rankCandidates(recs, query, threshold, limit), nil
}

func (s *SQLiteStore) ListRecords(ctx context.Context, limit, offset int) ([]model.CacheRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM recipe_cache ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, eris.Wrap(err, "store: list records")
	}
	defer rows.Close()
	return collectSQLiteRecords(rows)
}

func (s *SQLiteStore) GetPointer(ctx context.Context, id string) (*model.SavedPointer, error) {
	var (
		p       model.SavedPointer
		summary sql.NullString
		updated string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, record_id, display_title, change_summary, updated_at
		 FROM saved_pointers WHERE id = ?`, id).
		Scan(&p.ID, &p.UserID, &p.RecordID, &p.DisplayTitle, &summary, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrap(ErrNotFound, id)
		}
		return nil, eris.Wrap(err, "store: get pointer")
	}
	p.ChangeSummary = summary.String
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &p, nil
}

func (s *SQLiteStore) RepointPointer(ctx context.Context, pointerID, recordID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE saved_pointers SET record_id = ?, updated_at = ? WHERE id = ?`,
		recordID, time.Now().UTC().Format(time.RFC3339Nano), pointerID)
	if err != nil {
		return eris.Wrap(err, "store: repoint pointer")
	}
	return requireRow(res, pointerID)
}

func (s *SQLiteStore) UpdatePointerTitle(ctx context.Context, pointerID, title string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE saved_pointers SET display_title = ?, updated_at = ? WHERE id = ?`,
		title, time.Now().UTC().Format(time.RFC3339Nano), pointerID)
	if err != nil {
		return eris.Wrap(err, "store: update pointer title")
	}
	return requireRow(res, pointerID)
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InsertPointer seeds a saved pointer. Used by tests and the migrate
// command's demo fixtures.
func (s *SQLiteStore) InsertPointer(ctx context.Context, p *model.SavedPointer) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO saved_pointers (id, user_id, record_id, display_title, change_summary, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.RecordID, p.DisplayTitle, p.ChangeSummary,
		p.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return eris.Wrap(err, "store: insert pointer")
	}
	return nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "store: rows affected")
	}
	if n == 0 {
		return eris.Wrap(ErrNotFound, id)
	}
	return nil
}

func nullableText(b []byte) *string {
	if len(b) == 0 {
		return nil
	}
	s := string(b)
	return &s
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row rowScanner) (*model.CacheRecord, error) {
	var (
		rec        model.CacheRecord
		sourceType string
		sourceKey  sql.NullString
		parentID   sql.NullString
		changeDesc sql.NullString
		data       string
		embedding  sql.NullString
		created    string
		processed  string
	)
	err := row.Scan(&rec.ID, &sourceType, &sourceKey, &parentID, &changeDesc,
		&data, &embedding, &created, &processed)
	if err != nil {
		return nil, err
	}
	rec.SourceType = model.SourceType(sourceType)
	if err := json.Unmarshal([]byte(data), &rec.Data); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal recipe data")
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	rec.LastProcessedAt, _ = time.Parse(time.RFC3339Nano, processed)
	switch rec.SourceType {
	case model.SourceOriginal:
		meta := &model.OriginalMeta{SourceKey: sourceKey.String}
		if embedding.Valid && embedding.String != "" {
			if err := json.Unmarshal([]byte(embedding.String), &meta.Embedding); err != nil {
				return nil, eris.Wrap(err, "store: unmarshal embedding")
			}
		}
		rec.Original = meta
	case model.SourceUserModified:
		rec.Fork = &model.ForkMeta{
			ParentID:          parentID.String,
			ChangeDescription: changeDesc.String,
		}
	}
	return &rec, nil
}

func collectSQLiteRecords(rows *sql.Rows) ([]model.CacheRecord, error) {
	var recs []model.CacheRecord
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan record row")
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate record rows")
	}
	return recs, nil
}
