package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/plateful/plateful/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS recipe_cache (
    id                 TEXT PRIMARY KEY,
    source_type        TEXT NOT NULL,
    source_key         TEXT UNIQUE,
    parent_id          TEXT REFERENCES recipe_cache(id),
    change_description TEXT,
    data               JSONB NOT NULL,
    embedding          JSONB,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_processed_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_recipe_cache_source_key ON recipe_cache (source_key) WHERE source_key IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_recipe_cache_parent_id ON recipe_cache (parent_id) WHERE parent_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS saved_pointers (
    id             TEXT PRIMARY KEY,
    user_id        TEXT NOT NULL,
    record_id      TEXT NOT NULL REFERENCES recipe_cache(id),
    display_title  TEXT NOT NULL,
    change_summary TEXT,
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_saved_pointers_user ON saved_pointers (user_id);
`

const recordColumns = `id, source_type, source_key, parent_id, change_description, data, embedding, created_at, last_processed_at`

// pgPool is the subset of pgxpool.Pool the store uses. Tests substitute a
// pgxmock pool.
type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore persists records in PostgreSQL via pgx.
type PostgresStore struct {
	pool pgPool
}

// NewPostgresStore connects to the given DSN and verifies the connection.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, eris.Wrap(err, "store: parse postgres dsn")
	}
	cfg.MaxConns = 10
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "store: connect postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "store: ping postgres")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return eris.Wrap(err, "store: migrate postgres")
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, rec *model.CacheRecord) error {
	data, embedding, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO recipe_cache (id, source_type, source_key, parent_id, change_description, data, embedding, created_at, last_processed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, string(rec.SourceType), nullableSourceKey(rec), nullableParentID(rec), nullableChangeDescription(rec),
		data, embedding, rec.CreatedAt, rec.LastProcessedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return eris.Wrap(ErrDuplicateSourceKey, rec.SourceKey())
		}
		return eris.Wrap(err, "store: insert record")
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*model.CacheRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM recipe_cache WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrap(ErrNotFound, id)
		}
		return nil, eris.Wrap(err, "store: get record by id")
	}
	return rec, nil
}

func (s *PostgresStore) GetBySourceKey(ctx context.Context, key string) (*model.CacheRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM recipe_cache WHERE source_key = $1`, key)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "store: get record by source key")
	}
	return rec, nil
}

func (s *PostgresStore) UpdateData(ctx context.Context, id string, data model.CanonicalRecipe) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return eris.Wrap(err, "store: marshal recipe data")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE recipe_cache SET data = $1, last_processed_at = now() WHERE id = $2`,
		raw, id)
	if err != nil {
		return eris.Wrap(err, "store: update record data")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrap(ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) TouchProcessed(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE recipe_cache SET last_processed_at = now() WHERE id = $1`, id); err != nil {
		return eris.Wrap(err, "store: touch record")
	}
	return nil
}

func (s *PostgresStore) SetEmbedding(ctx context.Context, id string, vec []float32) error {
	raw, err := json.Marshal(vec)
	if err != nil {
		return eris.Wrap(err, "store: marshal embedding")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE recipe_cache SET embedding = $1 WHERE id = $2`, raw, id)
	if err != nil {
		return eris.Wrap(err, "store: set embedding")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrap(ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) SearchSimilar(ctx context.Context, query []float32, threshold float64, limit int) ([]model.MatchCandidate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM recipe_cache
		 WHERE source_type = $1 AND embedding IS NOT NULL`,
		string(model.SourceOriginal))
	if err != nil {
		return nil, eris.Wrap(err, "store: search similar")
	}
	defer rows.Close()

	var recs []model.CacheRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan similar row")
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate similar rows")
	}
	return rankCandidates(recs, query, threshold, limit), nil
}

func (s *PostgresStore) ListRecords(ctx context.Context, limit, offset int) ([]model.CacheRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM recipe_cache ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, eris.Wrap(err, "store: list records")
	}
	defer rows.Close()

	var recs []model.CacheRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
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

func (s *PostgresStore) GetPointer(ctx context.Context, id string) (*model.SavedPointer, error) {
	var p model.SavedPointer
	var summary *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, record_id, display_title, change_summary, updated_at
		 FROM saved_pointers WHERE id = $1`, id).
		Scan(&p.ID, &p.UserID, &p.RecordID, &p.DisplayTitle, &summary, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrap(ErrNotFound, id)
		}
		return nil, eris.Wrap(err, "store: get pointer")
	}
	if summary != nil {
		p.ChangeSummary = *summary
	}
	return &p, nil
}

func (s *PostgresStore) RepointPointer(ctx context.Context, pointerID, recordID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE saved_pointers SET record_id = $1, updated_at = now() WHERE id = $2`,
		recordID, pointerID)
	if err != nil {
		return eris.Wrap(err, "store: repoint pointer")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrap(ErrNotFound, pointerID)
	}
	return nil
}

func (s *PostgresStore) UpdatePointerTitle(ctx context.Context, pointerID, title string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE saved_pointers SET display_title = $1, updated_at = now() WHERE id = $2`,
		title, pointerID)
	if err != nil {
		return eris.Wrap(err, "store: update pointer title")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrap(ErrNotFound, pointerID)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// encodeRecord marshals the JSON columns of a record.
func encodeRecord(rec *model.CacheRecord) (data []byte, embedding []byte, err error) {
	data, err = json.Marshal(rec.Data)
	if err != nil {
		return nil, nil, eris.Wrap(err, "store: marshal recipe data")
	}
	if rec.Original != nil && len(rec.Original.Embedding) > 0 {
		embedding, err = json.Marshal(rec.Original.Embedding)
		if err != nil {
			return nil, nil, eris.Wrap(err, "store: marshal embedding")
		}
	}
	return data, embedding, nil
}

func nullableSourceKey(rec *model.CacheRecord) *string {
	if rec.Original == nil || rec.Original.SourceKey == "" {
		return nil
	}
	return &rec.Original.SourceKey
}

func nullableParentID(rec *model.CacheRecord) *string {
	if rec.Fork == nil || rec.Fork.ParentID == "" {
		return nil
	}
	return &rec.Fork.ParentID
}

func nullableChangeDescription(rec *model.CacheRecord) *string {
	if rec.Fork == nil || rec.Fork.ChangeDescription == "" {
		return nil
	}
	return &rec.Fork.ChangeDescription
}

// scanRecord decodes one recipe_cache row.
func scanRecord(row pgx.Row) (*model.CacheRecord, error) {
	var (
		rec        model.CacheRecord
		sourceType string
		sourceKey  *string
		parentID   *string
		changeDesc *string
		data       []byte
		embedding  []byte
	)
	err := row.Scan(&rec.ID, &sourceType, &sourceKey, &parentID, &changeDesc,
		&data, &embedding, &rec.CreatedAt, &rec.LastProcessedAt)
	if err != nil {
		return nil, err
	}
	rec.SourceType = model.SourceType(sourceType)
	if err := json.Unmarshal(data, &rec.Data); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal recipe data")
	}
	switch rec.SourceType {
	case model.SourceOriginal:
		meta := &model.OriginalMeta{}
		if sourceKey != nil {
			meta.SourceKey = *sourceKey
		}
		if len(embedding) > 0 {
			if err := json.Unmarshal(embedding, &meta.Embedding); err != nil {
				return nil, eris.Wrap(err, "store: unmarshal embedding")
			}
		}
		rec.Original = meta
	case model.SourceUserModified:
		meta := &model.ForkMeta{}
		if parentID != nil {
			meta.ParentID = *parentID
		}
		if changeDesc != nil {
			meta.ChangeDescription = *changeDesc
		}
		rec.Fork = meta
	}
	return &rec, nil
}
