package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb" // DuckDB driver

	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/logging"
	"github.com/kyleking/askdb/internal/monitor"
)

// Options tunes a Store
type Options struct {
	// DisableAcceleration skips loading vss and always searches by brute force
	DisableAcceleration bool
	Logger              *logging.Logger
}

// Store is the file-backed schema index. The DuckDB handle is opened lazily
// on first use and shared for the life of the process; every operation holds
// mu, so one Store is safe for concurrent callers. Nothing coordinates
// separate processes writing the same file.
type Store struct {
	path   string
	opts   Options
	logger *logging.Logger

	mu          sync.Mutex
	db          *sql.DB
	accelerated bool
	vectorDim   int // dimension of the table_vectors mirror, 0 when not built
}

// New returns a Store for path without touching the filesystem
func New(path string, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger()
	}

	return &Store{
		path:   path,
		opts:   opts,
		logger: logger.WithField("component", "vector_store"),
	}
}

// Open creates (or opens) the index file at path and checks for vector
// acceleration. Failures are store errors.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	s := New(path, opts)
	if err := s.Open(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

// Open eagerly opens the handle, creating the file if needed
func (s *Store) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.handle(ctx, true)

	return err
}

// Path returns the index file location
func (s *Store) Path() string {
	return s.path
}

// UsingAcceleratedSearch reports whether searches go through the vss index
func (s *Store) UsingAcceleratedSearch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.accelerated
}

// handle returns the open database. With create false and no file on disk it
// returns (nil, nil) so read paths stay side-effect free. Caller holds mu.
func (s *Store) handle(ctx context.Context, create bool) (*sql.DB, error) {
	if s.db != nil {
		return s.db, nil
	}

	if !create {
		if _, err := os.Stat(s.path); err != nil {
			return nil, nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeStore, "failed to create index directory for %s", s.path)
	}

	db, err := sql.Open("duckdb", s.path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeStore, "failed to open index %s", s.path)
	}

	// Loaded extensions and session settings belong to a connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, errors.ErrTypeStore, "failed to open index %s", s.path)
	}

	if err := NewMigrationManager(db, s.logger).MigrateUp(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, errors.ErrTypeStore, "failed to initialize index %s", s.path)
	}

	s.db = db
	s.accelerated = false
	s.vectorDim = 0

	if !s.opts.DisableAcceleration {
		s.loadAcceleration(ctx)
	}

	return db, nil
}

// loadAcceleration loads the vss extension. Absence only leaves the brute
// force path in charge.
func (s *Store) loadAcceleration(ctx context.Context) {
	if _, err := s.db.ExecContext(ctx, "LOAD vss"); err != nil {
		s.logger.WithError(err).Debug("vss extension unavailable, using brute-force search")
		return
	}

	if _, err := s.db.ExecContext(ctx, "SET hnsw_enable_experimental_persistence = true"); err != nil {
		s.logger.WithError(err).Debug("hnsw persistence unavailable, using brute-force search")
		return
	}

	s.accelerated = true

	if status, ok := s.readStatus(ctx); ok && status.Dimension > 0 {
		if err := s.syncMirror(ctx, status.Dimension); err != nil {
			s.disableAcceleration(err)
		}
	}

	s.logger.WithField("path", s.path).Debug("vss acceleration enabled")
}

func (s *Store) disableAcceleration(err error) {
	s.logger.WithError(err).Warn("disabling accelerated search")
	s.accelerated = false
	s.vectorDim = 0
}

// syncMirror makes table_vectors hold exactly the stored embeddings of the
// given dimension. Each mirrored row keeps the encoded embedding it was built
// from, so rows rewritten by a process without acceleration are detected
// even when the row counts still agree.
func (s *Store) syncMirror(ctx context.Context, dim int) error {
	if err := s.dropLegacyMirror(ctx); err != nil {
		return err
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS table_vectors (
			table_name VARCHAR NOT NULL,
			embedding FLOAT[%d] NOT NULL,
			source VARCHAR NOT NULL
		)`, dim),
		`CREATE INDEX IF NOT EXISTS idx_table_vectors_hnsw
			ON table_vectors USING HNSW (embedding) WITH (metric = 'cosine')`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create vector mirror: %w", err)
		}
	}

	var stale int

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM table_embeddings e
		FULL OUTER JOIN table_vectors v
			ON v.table_name = e.table_name AND v.source = e.embedding
		WHERE e.table_name IS NULL OR v.table_name IS NULL`,
	).Scan(&stale)
	if err != nil {
		return fmt.Errorf("failed to compare vector mirror: %w", err)
	}

	if stale > 0 {
		s.logger.WithField("stale_rows", stale).Debug("rebuilding vector mirror")

		records, err := s.loadEmbeddings(ctx)
		if err != nil {
			return err
		}

		if _, err := s.db.ExecContext(ctx, "DELETE FROM table_vectors"); err != nil {
			return fmt.Errorf("failed to reset vector mirror: %w", err)
		}

		if err := s.writeMirror(ctx, records, dim); err != nil {
			return err
		}
	}

	s.vectorDim = dim

	return nil
}

// dropLegacyMirror removes a mirror built without the source column. The
// HNSW index blocks ALTER TABLE, and the mirror is derived data anyway.
func (s *Store) dropLegacyMirror(ctx context.Context) error {
	var tables, sourceCols int

	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM information_schema.tables WHERE table_name = 'table_vectors'),
			(SELECT COUNT(*) FROM information_schema.columns WHERE table_name = 'table_vectors' AND column_name = 'source')`,
	).Scan(&tables, &sourceCols)
	if err != nil {
		return fmt.Errorf("failed to inspect vector mirror: %w", err)
	}

	if tables == 0 || sourceCols > 0 {
		return nil
	}

	if _, err := s.db.ExecContext(ctx, "DROP TABLE table_vectors"); err != nil {
		return fmt.Errorf("failed to drop legacy vector mirror: %w", err)
	}

	return nil
}

func (s *Store) loadEmbeddings(ctx context.Context) ([]TableRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT table_name, embedding FROM table_embeddings")
	if err != nil {
		return nil, fmt.Errorf("failed to read embeddings: %w", err)
	}
	defer rows.Close()

	var records []TableRecord

	for rows.Next() {
		var name, raw string
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}

		vec, err := decodeEmbedding(raw)
		if err != nil {
			return nil, err
		}

		records = append(records, TableRecord{TableName: name, Embedding: vec})
	}

	return records, rows.Err()
}

func (s *Store) writeMirror(ctx context.Context, records []TableRecord, dim int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	insertSQL := fmt.Sprintf("INSERT INTO table_vectors (table_name, embedding, source) VALUES (?, ?::FLOAT[%d], ?)", dim)

	for _, rec := range records {
		source, err := encodeEmbedding(rec.Embedding)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM table_vectors WHERE table_name = ?", rec.TableName); err != nil {
			return fmt.Errorf("failed to replace mirrored vector for %s: %w", rec.TableName, err)
		}

		if _, err := tx.ExecContext(ctx, insertSQL, rec.TableName, arrayLiteral(rec.Embedding), source); err != nil {
			return fmt.Errorf("failed to mirror vector for %s: %w", rec.TableName, err)
		}
	}

	return tx.Commit()
}

// Upsert replaces the stored row for one table
func (s *Store) Upsert(ctx context.Context, record TableRecord) error {
	return s.UpsertBatch(ctx, []TableRecord{record})
}

// UpsertBatch replaces the rows for every record in a single transaction:
// either all of them commit or none do.
func (s *Store) UpsertBatch(ctx context.Context, records []TableRecord) error {
	if len(records) == 0 {
		return nil
	}

	dim := len(records[0].Embedding)
	for _, rec := range records {
		if len(rec.Embedding) == 0 || len(rec.Embedding) != dim {
			return errors.Newf(errors.ErrTypeValidation,
				"embedding for %s has dimension %d, batch expects %d", rec.TableName, len(rec.Embedding), dim)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.handle(ctx, true)
	if err != nil {
		return err
	}

	if err := s.writeBatch(ctx, db, records, dim); err != nil {
		return errors.Wrap(err, errors.ErrTypeStore, "failed to write index batch")
	}

	if s.accelerated {
		var mirrorErr error
		if s.vectorDim != dim {
			mirrorErr = s.syncMirror(ctx, dim)
		} else {
			mirrorErr = s.writeMirror(ctx, records, dim)
		}

		if mirrorErr != nil {
			s.disableAcceleration(mirrorErr)
		}
	}

	return nil
}

func (s *Store) writeBatch(ctx context.Context, db *sql.DB, records []TableRecord, dim int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()

	for _, rec := range records {
		createdAt := now

		err := tx.QueryRowContext(ctx,
			"SELECT created_at FROM table_metadata WHERE table_name = ? LIMIT 1", rec.TableName,
		).Scan(&createdAt)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to read existing row for %s: %w", rec.TableName, err)
		}

		embedding, err := encodeEmbedding(rec.Embedding)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM table_metadata WHERE table_name = ?", rec.TableName); err != nil {
			return fmt.Errorf("failed to delete metadata for %s: %w", rec.TableName, err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM table_embeddings WHERE table_name = ?", rec.TableName); err != nil {
			return fmt.Errorf("failed to delete embedding for %s: %w", rec.TableName, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO table_metadata (table_name, compact_schema, description, content_hash, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			rec.TableName, rec.CompactSchema, rec.Description, rec.ContentHash, createdAt, now)
		if err != nil {
			return fmt.Errorf("failed to insert metadata for %s: %w", rec.TableName, err)
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO table_embeddings (table_name, embedding, dimension) VALUES (?, ?, ?)",
			rec.TableName, embedding, dim)
		if err != nil {
			return fmt.Errorf("failed to insert embedding for %s: %w", rec.TableName, err)
		}
	}

	return tx.Commit()
}

// GetHash returns the stored content hash for a table. Any failure reads as
// not found, which makes the caller re-embed.
func (s *Store) GetHash(ctx context.Context, tableName string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.handle(ctx, false)
	if err != nil || db == nil {
		return "", false
	}

	var hash string

	err = db.QueryRowContext(ctx,
		"SELECT content_hash FROM table_metadata WHERE table_name = ? LIMIT 1", tableName,
	).Scan(&hash)
	if err != nil {
		return "", false
	}

	return hash, true
}

// Search returns up to topK stored tables ordered by descending cosine
// similarity to queryVector.
func (s *Store) Search(ctx context.Context, queryVector []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.handle(ctx, false)
	if err != nil {
		return nil, err
	}

	if db == nil {
		return nil, nil
	}

	if s.accelerated && s.vectorDim == len(queryVector) {
		matches, err := s.searchAccelerated(ctx, db, queryVector, topK)
		if err == nil {
			monitor.ObserveVectorSearch(true)
			return matches, nil
		}

		s.logger.WithError(err).Warn("accelerated search failed, falling back to brute force")
	}

	monitor.ObserveVectorSearch(false)

	return s.searchBruteForce(ctx, db, queryVector, topK)
}

func (s *Store) searchAccelerated(ctx context.Context, db *sql.DB, queryVector []float32, topK int) ([]Match, error) {
	query := fmt.Sprintf(`
		SELECT v.table_name, m.compact_schema, COALESCE(m.description, ''),
			array_cosine_distance(v.embedding, ?::FLOAT[%d]) AS distance
		FROM table_vectors v
		JOIN table_metadata m ON m.table_name = v.table_name
		ORDER BY distance
		LIMIT ?`, len(queryVector))

	rows, err := db.QueryContext(ctx, query, arrayLiteral(queryVector), topK)
	if err != nil {
		return nil, fmt.Errorf("accelerated search failed: %w", err)
	}
	defer rows.Close()

	var matches []Match

	for rows.Next() {
		var (
			m        Match
			distance sql.NullFloat64
		)

		if err := rows.Scan(&m.TableName, &m.CompactSchema, &m.Description, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}

		if distance.Valid && !math.IsNaN(distance.Float64) {
			m.Score = 1 - distance.Float64
		}

		matches = append(matches, m)
	}

	return matches, rows.Err()
}

func (s *Store) searchBruteForce(ctx context.Context, db *sql.DB, queryVector []float32, topK int) ([]Match, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT m.table_name, m.compact_schema, COALESCE(m.description, ''), e.embedding
		FROM table_metadata m
		JOIN table_embeddings e ON e.table_name = m.table_name`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeStore, "failed to scan index")
	}
	defer rows.Close()

	var matches []Match

	for rows.Next() {
		var (
			m   Match
			raw string
		)

		if err := rows.Scan(&m.TableName, &m.CompactSchema, &m.Description, &raw); err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeStore, "failed to scan index row")
		}

		vec, err := decodeEmbedding(raw)
		if err != nil {
			s.logger.WithField("table", m.TableName).WithError(err).Warn("skipping unreadable embedding")
			continue
		}

		m.Score = CosineSimilarity(queryVector, vec)
		matches = append(matches, m)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeStore, "failed to scan index")
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}

	return matches, nil
}

// ListAll returns every indexed table sorted by name
func (s *Store) ListAll(ctx context.Context) ([]TableInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.handle(ctx, false)
	if err != nil || db == nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT table_name, compact_schema, COALESCE(description, ''), content_hash, created_at, updated_at
		FROM table_metadata
		ORDER BY table_name`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeStore, "failed to list indexed tables")
	}
	defer rows.Close()

	var tables []TableInfo

	for rows.Next() {
		var info TableInfo
		if err := rows.Scan(&info.TableName, &info.CompactSchema, &info.Description,
			&info.ContentHash, &info.CreatedAt, &info.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeStore, "failed to scan indexed table")
		}

		tables = append(tables, info)
	}

	return tables, rows.Err()
}

// RecordStatus overwrites the singleton index status
func (s *Store) RecordStatus(ctx context.Context, status IndexStatus) error {
	if status.LastUpdated.IsZero() {
		status.LastUpdated = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.handle(ctx, true)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeStore, "failed to begin transaction")
	}

	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM index_status"); err != nil {
		return errors.Wrap(err, errors.ErrTypeStore, "failed to reset index status")
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO index_status (tables_count, dimension, model_name, last_updated, run_id)
		VALUES (?, ?, ?, ?, ?)`,
		status.TablesCount, status.Dimension, status.ModelName, status.LastUpdated, status.RunID)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeStore, "failed to record index status")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrTypeStore, "failed to record index status")
	}

	return nil
}

// Status returns the recorded index status; false means "not indexed",
// including when the file is missing or unreadable.
func (s *Store) Status(ctx context.Context) (*IndexStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.handle(ctx, false)
	if err != nil || db == nil {
		return nil, false
	}

	return s.readStatus(ctx)
}

func (s *Store) readStatus(ctx context.Context) (*IndexStatus, bool) {
	var st IndexStatus

	err := s.db.QueryRowContext(ctx, `
		SELECT tables_count, dimension, model_name, last_updated, COALESCE(run_id, '')
		FROM index_status
		ORDER BY last_updated DESC
		LIMIT 1`,
	).Scan(&st.TablesCount, &st.Dimension, &st.ModelName, &st.LastUpdated, &st.RunID)
	if err != nil {
		return nil, false
	}

	return &st, true
}

// HasData reports whether the index file exists and holds at least one table.
// It never fails; any problem reads as false.
func (s *Store) HasData(ctx context.Context) bool {
	if _, err := os.Stat(s.path); err != nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.handle(ctx, false)
	if err != nil || db == nil {
		return false
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM table_metadata").Scan(&count); err != nil {
		return false
	}

	return count > 0
}

// SizeBytes returns the on-disk size of the index, including its WAL
func (s *Store) SizeBytes() int64 {
	var total int64

	for _, p := range []string{s.path, s.path + ".wal"} {
		if info, err := os.Stat(p); err == nil {
			total += info.Size()
		}
	}

	return total
}

// Clear closes the handle and deletes the index file. Later calls recreate
// it lazily.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.closeLocked(); err != nil {
		s.logger.WithError(err).Warn("failed to close index before clearing")
	}

	for _, p := range []string{s.path, s.path + ".wal"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, errors.ErrTypeStore, "failed to remove %s", p)
		}
	}

	return nil
}

// Close releases the handle. The store stays usable and reopens on demand.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closeLocked()
}

func (s *Store) closeLocked() error {
	s.accelerated = false
	s.vectorDim = 0

	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil

	return err
}
