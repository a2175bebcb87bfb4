package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite" // pure Go SQLite driver, no cgo

	coreerrors "github.com/ragsmith/ragsmith/internal/errors"
)

const (
	storeFileName = "store.db"
	lockFileName  = ".ragsmith.lock"
)

// Repository is the sole entry point onto the knowledge store: the SQLite
// metadata schema, the chunks_fts full-text index and the per-model HNSW
// vector stores. No other package touches the database file directly.
type Repository struct {
	mu  sync.RWMutex
	db  *sql.DB
	dir string

	lock *flock.Flock

	stopWords map[string]struct{}

	vecMu   sync.Mutex
	vectors map[string]VectorStore
	vecMeta map[string]VectorIndexMeta

	closed bool
}

// Open acquires the store's single-writer lock and opens (migrating if
// necessary) the SQLite database at dir/store.db. It returns a
// *CoreError with ErrCodeStoreLocked if another process already holds the
// lock, per the single-writer process model.
func Open(dir string) (*Repository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, coreerrors.IOError(fmt.Sprintf("create store directory %s", dir), err)
	}

	lock := flock.New(filepath.Join(dir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, coreerrors.New(coreerrors.ErrCodeStoreLocked, fmt.Sprintf("acquire store lock: %v", err), err)
	}
	if !locked {
		return nil, coreerrors.New(coreerrors.ErrCodeStoreLocked,
			"another process already holds the write lock for this store", nil).
			WithSuggestion("only one ragsmith process may write to a project's store at a time")
	}

	dbPath := filepath.Join(dir, storeFileName)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		_ = lock.Unlock()
		return nil, coreerrors.IOError("open store database", err)
	}

	// Single writer connection; WAL mode lets concurrent readers proceed
	// while the Repository holds it, matching sqlite_bm25.go's own pattern.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, coreerrors.IOError("configure store database", err)
		}
	}

	repo := &Repository{
		db:        db,
		dir:       dir,
		lock:      lock,
		stopWords: BuildStopWordMap(DefaultStopWords),
		vectors:   make(map[string]VectorStore),
		vecMeta:   make(map[string]VectorIndexMeta),
	}

	ctx := context.Background()
	if err := repo.migrate(ctx); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}
	if err := repo.loadVectorIndexMeta(ctx); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}

	return repo, nil
}

// Close flushes any open vector stores, closes the database and releases
// the write lock.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	r.vecMu.Lock()
	for slug, vs := range r.vectors {
		if err := vs.Close(); err != nil {
			slog.Warn("vector_store_close_failed", slog.String("slug", slug), slog.String("error", err.Error()))
		}
	}
	r.vecMu.Unlock()

	if err := r.db.Close(); err != nil {
		_ = r.lock.Unlock()
		return coreerrors.IOError("close store database", err)
	}
	return r.lock.Unlock()
}

// migrationStep is one statement in the append-only migration list. Several
// steps may share a version; they are applied together in one transaction.
type migrationStep struct {
	version int
	stmt    string
}

var schemaMigrations = []migrationStep{
	{1, `CREATE TABLE IF NOT EXISTS sources (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		digest TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		ingested_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`},
	{1, `CREATE TABLE IF NOT EXISTS chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id TEXT NOT NULL REFERENCES sources(id),
		source_path TEXT NOT NULL,
		ordinal INTEGER NOT NULL,
		text TEXT NOT NULL,
		raw_text TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		embedding_dim INTEGER NOT NULL DEFAULT 0,
		model TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(source_id, ordinal)
	)`},
	{1, `CREATE INDEX IF NOT EXISTS idx_chunks_source_id ON chunks(source_id)`},
	{1, `CREATE TABLE IF NOT EXISTS source_summaries (
		source_id TEXT PRIMARY KEY REFERENCES sources(id),
		summary TEXT NOT NULL,
		model TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`},
	{1, `CREATE TABLE IF NOT EXISTS vector_indices (
		slug TEXT PRIMARY KEY,
		model TEXT NOT NULL,
		dimensions INTEGER NOT NULL,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	)`},
	{1, `CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		chunk_id UNINDEXED,
		content,
		tokenize='unicode61'
	)`},
}

// migrate runs every migration step whose version exceeds the recorded
// schema version, grouping same-version steps into one transaction.
// Running it twice is a no-op.
func (r *Repository) migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return coreerrors.StoreIntegrityError("create schema_version table", err)
	}

	var current int
	if err := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return coreerrors.StoreIntegrityError("read schema version", err)
	}

	byVersion := make(map[int][]string)
	var versions []int
	for _, step := range schemaMigrations {
		if _, seen := byVersion[step.version]; !seen {
			versions = append(versions, step.version)
		}
		byVersion[step.version] = append(byVersion[step.version], step.stmt)
	}
	sort.Ints(versions)

	for _, v := range versions {
		if v <= current {
			continue
		}
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return coreerrors.StoreIntegrityError("begin migration transaction", err)
		}
		for _, stmt := range byVersion[v] {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return coreerrors.StoreIntegrityError(fmt.Sprintf("apply schema migration %d", v), err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_version (version, applied_at) VALUES (?, ?)`, v, time.Now().UTC()); err != nil {
			_ = tx.Rollback()
			return coreerrors.StoreIntegrityError(fmt.Sprintf("record schema migration %d", v), err)
		}
		if err := tx.Commit(); err != nil {
			return coreerrors.StoreIntegrityError(fmt.Sprintf("commit schema migration %d", v), err)
		}
		slog.Info("store_migration_applied", slog.Int("version", v))
	}
	return nil
}

var slugNonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// SlugForModel derives the per-model vector index slug: lowercase, with any
// run of non-alphanumeric characters collapsed to a single underscore.
func SlugForModel(model string) string {
	lower := strings.ToLower(model)
	return strings.Trim(slugNonAlnum.ReplaceAllString(lower, "_"), "_")
}

func (r *Repository) vectorPath(slug string) string {
	return filepath.Join(r.dir, fmt.Sprintf("vectors_%s.hnsw", slug))
}

func (r *Repository) loadVectorIndexMeta(ctx context.Context) error {
	rows, err := r.db.QueryContext(ctx, `SELECT slug, model, dimensions, chunk_count, updated_at FROM vector_indices`)
	if err != nil {
		return coreerrors.StoreIntegrityError("list vector indices", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m VectorIndexMeta
		var updatedAt time.Time
		if err := rows.Scan(&m.Slug, &m.Model, &m.Dimensions, &m.ChunkCount, &updatedAt); err != nil {
			return coreerrors.StoreIntegrityError("scan vector index row", err)
		}
		m.UpdatedAt = updatedAt
		r.vecMeta[m.Slug] = m
	}
	return rows.Err()
}

// vectorStore returns the already-open or lazily loaded HNSWStore for slug.
// The caller must already know the index exists (via vecMeta).
func (r *Repository) vectorStore(slug string) (VectorStore, error) {
	r.vecMu.Lock()
	defer r.vecMu.Unlock()

	if vs, ok := r.vectors[slug]; ok {
		return vs, nil
	}

	meta, ok := r.vecMeta[slug]
	if !ok {
		return nil, coreerrors.InternalError(fmt.Sprintf("vector index %q has no recorded metadata", slug), nil)
	}

	vs, err := NewHNSWStore(DefaultVectorStoreConfig(meta.Dimensions))
	if err != nil {
		return nil, coreerrors.StoreIntegrityError(fmt.Sprintf("create vector store for %q", slug), err)
	}

	path := r.vectorPath(slug)
	if _, statErr := os.Stat(path); statErr == nil {
		if err := vs.Load(path); err != nil {
			return nil, coreerrors.StoreIntegrityError(fmt.Sprintf("load vector store %q", slug), err)
		}
	}

	r.vectors[slug] = vs
	return vs, nil
}

// VectorIndexInfo returns the recorded metadata for model's vector index, if
// one has been created. Callers use this to fail fast when a query asks for
// an embedding model that was never used at ingest time.
func (r *Repository) VectorIndexInfo(model string) (VectorIndexMeta, bool) {
	slug := SlugForModel(model)
	r.vecMu.Lock()
	defer r.vecMu.Unlock()
	meta, ok := r.vecMeta[slug]
	return meta, ok
}

// SourceByPath returns the source recorded at path, or nil if none exists.
func (r *Repository) SourceByPath(ctx context.Context, path string) (*Source, error) {
	return r.sourceByPath(ctx, r.db, path)
}

// SourceIDForPath returns the content-addressable ID a source at path would
// have, without requiring it to already exist in the store.
func SourceIDForPath(path string) string {
	return sourceID(path)
}

// EnsureVectorIndex creates the named per-model vector index if it does not
// already exist. A dimension mismatch against an existing index is fatal.
func (r *Repository) EnsureVectorIndex(ctx context.Context, model string, dimension int) error {
	slug := SlugForModel(model)

	r.vecMu.Lock()
	if meta, ok := r.vecMeta[slug]; ok {
		r.vecMu.Unlock()
		if meta.Dimensions != dimension {
			return ErrDimensionMismatch{Expected: meta.Dimensions, Got: dimension}
		}
		return nil
	}
	r.vecMu.Unlock()

	vs, err := NewHNSWStore(DefaultVectorStoreConfig(dimension))
	if err != nil {
		return coreerrors.StoreIntegrityError(fmt.Sprintf("create vector index for %q", model), err)
	}

	now := time.Now().UTC()
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO vector_indices (slug, model, dimensions, chunk_count, updated_at) VALUES (?, ?, ?, 0, ?)`,
		slug, model, dimension, now); err != nil {
		return coreerrors.StoreIntegrityError(fmt.Sprintf("record vector index %q", slug), err)
	}

	r.vecMu.Lock()
	r.vectors[slug] = vs
	r.vecMeta[slug] = VectorIndexMeta{Slug: slug, Model: model, Dimensions: dimension, UpdatedAt: now}
	r.vecMu.Unlock()
	return nil
}

// UpsertSource inserts a new Source or, if path exists with a different
// digest, atomically purges the old revision's dependents and replaces the
// row. If (path, digest) is unchanged it returns the existing Source with
// alreadyPresent=true and does no work.
func (r *Repository) UpsertSource(ctx context.Context, path string, sourceType SourceType, digest string, sizeBytes int64) (src *Source, alreadyPresent bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.sourceByPath(ctx, r.db, path)
	if err != nil {
		return nil, false, err
	}

	if existing != nil && existing.Digest == digest {
		return existing, true, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, coreerrors.StoreIntegrityError("begin source upsert transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()

	if existing != nil {
		if err := r.purgeSourceDependents(ctx, tx, existing.ID); err != nil {
			return nil, false, err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE sources SET type = ?, digest = ?, size_bytes = ?, chunk_count = 0, updated_at = ? WHERE id = ?`,
			string(sourceType), digest, sizeBytes, now, existing.ID); err != nil {
			return nil, false, coreerrors.StoreIntegrityError("update revised source", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, false, coreerrors.StoreIntegrityError("commit source revision", err)
		}
		existing.Type = sourceType
		existing.Digest = digest
		existing.SizeBytes = sizeBytes
		existing.ChunkCount = 0
		existing.UpdatedAt = now
		return existing, false, nil
	}

	id := sourceID(path)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sources (id, path, type, digest, size_bytes, chunk_count, ingested_at, updated_at) VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		id, path, string(sourceType), digest, sizeBytes, now, now); err != nil {
		return nil, false, coreerrors.StoreIntegrityError("insert source", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, coreerrors.StoreIntegrityError("commit source insert", err)
	}

	return &Source{
		ID:         id,
		Path:       path,
		Type:       sourceType,
		Digest:     digest,
		SizeBytes:  sizeBytes,
		IngestedAt: now,
		UpdatedAt:  now,
	}, false, nil
}

func sourceID(path string) string {
	sum := sha256.Sum256([]byte(path))
	return fmt.Sprintf("%x", sum)
}

func (r *Repository) sourceByPath(ctx context.Context, q querier, path string) (*Source, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, path, type, digest, size_bytes, chunk_count, ingested_at, updated_at FROM sources WHERE path = ?`, path)

	var s Source
	var sourceType string
	if err := row.Scan(&s.ID, &s.Path, &sourceType, &s.Digest, &s.SizeBytes, &s.ChunkCount, &s.IngestedAt, &s.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, coreerrors.StoreIntegrityError("query source by path", err)
	}
	s.Type = SourceType(sourceType)
	return &s, nil
}

// purgeSourceDependents deletes every chunk, FTS row, vector entry and
// summary for sourceID, within tx.
func (r *Repository) purgeSourceDependents(ctx context.Context, tx *sql.Tx, sourceID string) error {
	rows, err := tx.QueryContext(ctx, `SELECT id, model FROM chunks WHERE source_id = ?`, sourceID)
	if err != nil {
		return coreerrors.StoreIntegrityError("list chunks to purge", err)
	}
	var ids []int64
	byModel := make(map[string][]string)
	for rows.Next() {
		var id int64
		var model string
		if err := rows.Scan(&id, &model); err != nil {
			rows.Close()
			return coreerrors.StoreIntegrityError("scan chunk to purge", err)
		}
		ids = append(ids, id)
		if model != "" {
			byModel[model] = append(byModel[model], strconv.FormatInt(id, 10))
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return coreerrors.StoreIntegrityError("iterate chunks to purge", err)
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks_fts WHERE chunk_id = ?`, strconv.FormatInt(id, 10)); err != nil {
			return coreerrors.StoreIntegrityError("delete fts row", err)
		}
	}

	for model, chunkIDs := range byModel {
		vs, err := r.vectorStore(SlugForModel(model))
		if err != nil {
			continue // index may not be open/backed yet; nothing to purge there
		}
		if err := vs.Delete(ctx, chunkIDs); err != nil {
			return coreerrors.StoreIntegrityError("delete vector entries", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE source_id = ?`, sourceID); err != nil {
		return coreerrors.StoreIntegrityError("delete chunks", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM source_summaries WHERE source_id = ?`, sourceID); err != nil {
		return coreerrors.StoreIntegrityError("delete source summary", err)
	}
	return nil
}

// PurgeSource removes a Source and cascades to all of its dependents in one
// transaction.
func (r *Repository) PurgeSource(ctx context.Context, sourceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return coreerrors.StoreIntegrityError("begin purge transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := r.purgeSourceDependents(ctx, tx, sourceID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, sourceID); err != nil {
		return coreerrors.StoreIntegrityError("delete source", err)
	}
	return tx.Commit()
}

// InsertChunks inserts every chunk for one Source in a single transaction,
// assigning each its autoincrement ID in input order, and updates the
// source's chunk_count. Failure rolls back the entire batch.
func (r *Repository) InsertChunks(ctx context.Context, sourceID string, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return coreerrors.StoreIntegrityError("begin chunk insert transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks
		(source_id, source_path, ordinal, text, raw_text, metadata, embedding_dim, model, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return coreerrors.StoreIntegrityError("prepare chunk insert", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, c := range chunks {
		metaJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return coreerrors.ValidationError("marshal chunk metadata", err)
		}
		res, err := stmt.ExecContext(ctx, sourceID, c.SourcePath, c.Ordinal, c.Text, c.RawText,
			string(metaJSON), c.EmbeddingDim, c.Model, now, now)
		if err != nil {
			return coreerrors.StoreIntegrityError(fmt.Sprintf("insert chunk ordinal %d", c.Ordinal), err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return coreerrors.StoreIntegrityError("read assigned chunk id", err)
		}
		c.ID = id
		c.SourceID = sourceID
		c.CreatedAt = now
		c.UpdatedAt = now
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sources SET chunk_count = chunk_count + ?, updated_at = ? WHERE id = ?`,
		len(chunks), now, sourceID); err != nil {
		return coreerrors.StoreIntegrityError("update source chunk count", err)
	}

	return tx.Commit()
}

// chunkExists reports whether id is a known chunk, the referential-integrity
// check required before any vector or full-text write.
func (r *Repository) chunkExists(ctx context.Context, id int64) (bool, error) {
	var exists int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM chunks WHERE id = ?`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, coreerrors.StoreIntegrityError("check chunk existence", err)
	}
	return true, nil
}

// WriteVector inserts a chunk's embedding into the model-specific index.
// chunkID must already exist.
func (r *Repository) WriteVector(ctx context.Context, chunkID int64, model string, vector []float32) error {
	ok, err := r.chunkExists(ctx, chunkID)
	if err != nil {
		return err
	}
	if !ok {
		return coreerrors.ValidationError(fmt.Sprintf("vector write rejected: chunk %d does not exist", chunkID), nil)
	}

	vs, err := r.vectorStore(SlugForModel(model))
	if err != nil {
		return err
	}
	idStr := strconv.FormatInt(chunkID, 10)
	if err := vs.Add(ctx, []string{idStr}, [][]float32{vector}); err != nil {
		return coreerrors.StoreIntegrityError("write vector entry", err)
	}

	if _, err := r.db.ExecContext(ctx,
		`UPDATE chunks SET embedding_dim = ?, model = ?, updated_at = ? WHERE id = ?`,
		len(vector), model, time.Now().UTC(), chunkID); err != nil {
		return coreerrors.StoreIntegrityError("record chunk embedding metadata", err)
	}
	return nil
}

// WriteFullText inserts the context-prefixed searchable text for a chunk.
// chunkID must already exist.
func (r *Repository) WriteFullText(ctx context.Context, chunkID int64, text string) error {
	ok, err := r.chunkExists(ctx, chunkID)
	if err != nil {
		return err
	}
	if !ok {
		return coreerrors.ValidationError(fmt.Sprintf("full-text write rejected: chunk %d does not exist", chunkID), nil)
	}

	idStr := strconv.FormatInt(chunkID, 10)
	tokens := FilterStopWords(TokenizeChunkText(text), r.stopWords)
	processed := strings.Join(tokens, " ")

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM chunks_fts WHERE chunk_id = ?`, idStr); err != nil {
		return coreerrors.StoreIntegrityError("clear existing fts row", err)
	}
	if _, err := r.db.ExecContext(ctx, `INSERT INTO chunks_fts(chunk_id, content) VALUES (?, ?)`, idStr, processed); err != nil {
		return coreerrors.StoreIntegrityError("write fts row", err)
	}
	return nil
}

// SearchBM25 runs a BM25-ranked full-text search over chunks_fts.
func (r *Repository) SearchBM25(ctx context.Context, query string, limit int) ([]BM25Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	tokens := FilterStopWords(TokenizeChunkText(query), r.stopWords)
	if len(tokens) == 0 {
		return nil, nil
	}
	processed := strings.Join(tokens, " ")

	rows, err := r.db.QueryContext(ctx, `
		SELECT chunk_id, bm25(chunks_fts) as score
		FROM chunks_fts
		WHERE content MATCH ?
		ORDER BY score
		LIMIT ?`, processed, limit)
	if err != nil {
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return nil, nil
		}
		return nil, coreerrors.New(coreerrors.ErrCodeSearchFailed, "bm25 search failed", err)
	}
	defer rows.Close()

	var results []BM25Result
	for rows.Next() {
		var docID string
		var score float64
		if err := rows.Scan(&docID, &score); err != nil {
			return nil, coreerrors.New(coreerrors.ErrCodeSearchFailed, "scan bm25 result", err)
		}
		results = append(results, BM25Result{DocID: docID, Score: score})
	}
	return results, rows.Err()
}

// SearchVector runs a nearest-neighbor search against one model's index.
func (r *Repository) SearchVector(ctx context.Context, model string, query []float32, k int) ([]*VectorResult, error) {
	slug := SlugForModel(model)
	r.vecMu.Lock()
	_, known := r.vecMeta[slug]
	r.vecMu.Unlock()
	if !known {
		return nil, coreerrors.ValidationError(fmt.Sprintf("no vector index for model %q", model), nil)
	}

	vs, err := r.vectorStore(slug)
	if err != nil {
		return nil, err
	}
	results, err := vs.Search(ctx, query, k)
	if err != nil {
		return nil, coreerrors.New(coreerrors.ErrCodeSearchFailed, "vector search failed", err)
	}
	return results, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Hydrate returns full Chunk records, including source path, for the given
// chunk IDs (accepted as the string form returned by search results).
func (r *Repository) Hydrate(ctx context.Context, chunkIDs []string) ([]*Chunk, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(chunkIDs))
	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`SELECT id, source_id, source_path, ordinal, text, raw_text, metadata,
		embedding_dim, model, created_at, updated_at FROM chunks WHERE id IN (%s)`, strings.Join(placeholders, ","))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, coreerrors.StoreIntegrityError("hydrate chunks", err)
	}
	defer rows.Close()

	byID := make(map[int64]*Chunk, len(chunkIDs))
	for rows.Next() {
		c := &Chunk{}
		var metaJSON string
		if err := rows.Scan(&c.ID, &c.SourceID, &c.SourcePath, &c.Ordinal, &c.Text, &c.RawText, &metaJSON,
			&c.EmbeddingDim, &c.Model, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, coreerrors.StoreIntegrityError("scan hydrated chunk", err)
		}
		if metaJSON != "" {
			if err := json.Unmarshal([]byte(metaJSON), &c.Metadata); err != nil {
				return nil, coreerrors.StoreIntegrityError("unmarshal chunk metadata", err)
			}
		}
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, coreerrors.StoreIntegrityError("iterate hydrated chunks", err)
	}

	out := make([]*Chunk, 0, len(chunkIDs))
	for _, idStr := range chunkIDs {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			continue
		}
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// UpsertSummary writes or replaces the 1:1 summary for a Source.
func (r *Repository) UpsertSummary(ctx context.Context, summary *SourceSummary) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `INSERT INTO source_summaries (source_id, summary, model, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(source_id) DO UPDATE SET summary = excluded.summary, model = excluded.model, created_at = excluded.created_at`,
		summary.SourceID, summary.Summary, summary.Model, now)
	if err != nil {
		return coreerrors.StoreIntegrityError("upsert source summary", err)
	}
	summary.CreatedAt = now
	return nil
}

// FetchSummary returns a Source's summary, or nil if none has been written.
func (r *Repository) FetchSummary(ctx context.Context, sourceID string) (*SourceSummary, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT source_id, summary, model, created_at FROM source_summaries WHERE source_id = ?`, sourceID)
	var s SourceSummary
	if err := row.Scan(&s.SourceID, &s.Summary, &s.Model, &s.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, coreerrors.StoreIntegrityError("fetch source summary", err)
	}
	return &s, nil
}

// Stats summarizes the store's current contents.
func (r *Repository) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sources`).Scan(&s.SourceCount); err != nil {
		return nil, coreerrors.StoreIntegrityError("count sources", err)
	}
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&s.ChunkCount); err != nil {
		return nil, coreerrors.StoreIntegrityError("count chunks", err)
	}

	r.vecMu.Lock()
	for _, m := range r.vecMeta {
		s.VectorIndices = append(s.VectorIndices, m)
	}
	r.vecMu.Unlock()
	sort.Slice(s.VectorIndices, func(i, j int) bool { return s.VectorIndices[i].Slug < s.VectorIndices[j].Slug })

	s.SchemaVersion = CurrentSchemaVersion
	return &s, nil
}

// ConsistencyCheck cross-checks that every chunk has a chunks_fts row and,
// if embedded, an entry in its model's vector index, and that no FTS row or
// vector entry lacks a chunk, surfacing any divergence without repairing it.
// Duplicate entries for one chunk are not counted.
func (r *Repository) ConsistencyCheck(ctx context.Context) (*ConsistencyReport, error) {
	start := time.Now()
	report := &ConsistencyReport{}

	rows, err := r.db.QueryContext(ctx, `SELECT id, model FROM chunks`)
	if err != nil {
		return nil, coreerrors.StoreIntegrityError("list chunks for consistency check", err)
	}
	chunkModel := make(map[string]string)
	for rows.Next() {
		var id int64
		var model string
		if err := rows.Scan(&id, &model); err != nil {
			rows.Close()
			return nil, coreerrors.StoreIntegrityError("scan chunk for consistency check", err)
		}
		chunkModel[strconv.FormatInt(id, 10)] = model
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, coreerrors.StoreIntegrityError("iterate chunks for consistency check", err)
	}
	report.ChunksChecked = len(chunkModel)

	ftsRows, err := r.db.QueryContext(ctx, `SELECT chunk_id FROM chunks_fts`)
	if err != nil {
		return nil, coreerrors.StoreIntegrityError("list fts rows for consistency check", err)
	}
	ftsIDs := make(map[string]struct{})
	for ftsRows.Next() {
		var id string
		if err := ftsRows.Scan(&id); err != nil {
			ftsRows.Close()
			return nil, coreerrors.StoreIntegrityError("scan fts row for consistency check", err)
		}
		ftsIDs[id] = struct{}{}
	}
	ftsRows.Close()
	if err := ftsRows.Err(); err != nil {
		return nil, coreerrors.StoreIntegrityError("iterate fts rows for consistency check", err)
	}

	for id := range chunkModel {
		if _, ok := ftsIDs[id]; !ok {
			report.Issues = append(report.Issues, ConsistencyIssue{Type: IssueMissingFTS, ChunkID: id})
		}
	}
	for id := range ftsIDs {
		if _, ok := chunkModel[id]; !ok {
			report.Issues = append(report.Issues, ConsistencyIssue{Type: IssueOrphanFTS, ChunkID: id})
		}
	}

	byModel := make(map[string][]string)
	for id, model := range chunkModel {
		if model != "" {
			byModel[model] = append(byModel[model], id)
		}
	}

	for model, ids := range byModel {
		slug := SlugForModel(model)
		r.vecMu.Lock()
		_, known := r.vecMeta[slug]
		r.vecMu.Unlock()
		if !known {
			for _, id := range ids {
				report.Issues = append(report.Issues, ConsistencyIssue{
					Type: IssueMissingVector, ChunkID: id, Details: fmt.Sprintf("no vector index for model %q", model)})
			}
			continue
		}
		vs, err := r.vectorStore(slug)
		if err != nil {
			return nil, err
		}
		present := make(map[string]struct{})
		for _, id := range vs.AllIDs() {
			present[id] = struct{}{}
		}
		for _, id := range ids {
			if _, ok := present[id]; !ok {
				report.Issues = append(report.Issues, ConsistencyIssue{Type: IssueMissingVector, ChunkID: id})
			}
		}
		for id := range present {
			if _, ok := chunkModel[id]; !ok {
				report.Issues = append(report.Issues, ConsistencyIssue{Type: IssueOrphanVector, ChunkID: id})
			}
		}
	}

	report.Duration = time.Since(start)
	return report, nil
}

// SaveVectorIndices persists every open per-model vector store to disk and
// records its current chunk count. Callers should call this after a batch
// of WriteVector calls, mirroring HNSWStore's own atomic temp+rename Save.
func (r *Repository) SaveVectorIndices(ctx context.Context) error {
	r.vecMu.Lock()
	defer r.vecMu.Unlock()

	for slug, vs := range r.vectors {
		if err := vs.Save(r.vectorPath(slug)); err != nil {
			return coreerrors.StoreIntegrityError(fmt.Sprintf("save vector index %q", slug), err)
		}
		meta := r.vecMeta[slug]
		meta.ChunkCount = vs.Count()
		meta.UpdatedAt = time.Now().UTC()
		r.vecMeta[slug] = meta

		if _, err := r.db.ExecContext(ctx,
			`UPDATE vector_indices SET chunk_count = ?, updated_at = ? WHERE slug = ?`,
			meta.ChunkCount, meta.UpdatedAt, slug); err != nil {
			return coreerrors.StoreIntegrityError(fmt.Sprintf("record vector index %q size", slug), err)
		}
	}
	return nil
}
