// Package sqlitevec provides the durable chunk store backed by SQLite with
// the sqlite-vec extension for approximate nearest-neighbor search.
//
// The structured chunks table is the source of truth. The vec0 virtual
// table is an acceleration layer: if it cannot be created, fails its
// self-test, or errors at query time, it is marked unavailable for the
// remainder of the process and every search degrades to a brute-force scan
// over the structured rows. Degradation is per-process and sticky to avoid
// repeated noisy failures.
package sqlitevec

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/halfmoonlabs/engram/pkg/vector"
)

// Config holds configuration for the SQLite vec driver.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// Dimensions is the number of dimensions for the embedding vectors.
	Dimensions uint

	// DisableIndex skips the vec0 extension entirely, forcing every search
	// onto the brute-force path. Used by tests and as an escape hatch.
	DisableIndex bool
}

// Driver implements vector.Driver using SQLite with sqlite-vec.
type Driver struct {
	db     *sql.DB
	dims   uint
	logger *zap.Logger

	// indexOK goes false permanently on the first vec0 failure.
	indexOK atomic.Bool
}

// New creates a new SQLite chunk driver backed by sqlite-vec.
func New(c Config, logger *zap.Logger) (*Driver, error) {
	// enable connection to have sqlite-vec extension
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("embedding dimensions cannot be 0, must be configured")
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", vector.ErrConnection, err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS chunks (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			chunk_id TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			source_name TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			text TEXT NOT NULL,
			embedding BLOB,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at INTEGER NOT NULL,
			UNIQUE(owner_id, source_name, chunk_index)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating chunks table: %w", err)
	}

	d := &Driver{
		db:     db,
		dims:   c.Dimensions,
		logger: logger,
	}

	if !c.DisableIndex {
		d.indexOK.Store(d.initIndex())
	}

	logger.Info("sqlite-vec chunk driver initialized",
		zap.String("db_path", c.DBPath),
		zap.Uint("dimensions", c.Dimensions),
		zap.Bool("index_available", d.indexOK.Load()),
	)

	return d, nil
}

// initIndex creates the vec0 virtual table and runs a self-test
// insert/delete against it. Any failure leaves the index unavailable.
func (d *Driver) initIndex() bool {
	createVec := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS vec_chunks USING vec0(embedding float[%d])`,
		d.dims,
	)
	if _, err := d.db.Exec(createVec); err != nil {
		d.logger.Warn("vec0 table unavailable, searches will use brute-force scan",
			zap.Error(err),
		)
		return false
	}

	// Self-test: a probe vector must round-trip through the index.
	probe := vector.SerializeFloat32(make([]float32, d.dims))
	const probeRowID = int64(1) << 62
	if _, err := d.db.Exec(
		`INSERT INTO vec_chunks(rowid, embedding) VALUES (?, ?)`, probeRowID, probe,
	); err != nil {
		d.logger.Warn("vec0 self-test insert failed, searches will use brute-force scan",
			zap.Error(err),
		)
		return false
	}
	if _, err := d.db.Exec(
		`DELETE FROM vec_chunks WHERE rowid = ?`, probeRowID,
	); err != nil {
		d.logger.Warn("vec0 self-test delete failed, searches will use brute-force scan",
			zap.Error(err),
		)
		return false
	}

	return true
}

// IndexAvailable reports whether the ANN index is still in use.
func (d *Driver) IndexAvailable() bool {
	return d.indexOK.Load()
}

// markIndexUnavailable permanently degrades to brute-force search.
// Logged once; subsequent calls are silent.
func (d *Driver) markIndexUnavailable(err error) {
	if d.indexOK.CompareAndSwap(true, false) {
		d.logger.Warn("similarity index failed, degrading to brute-force scan for the rest of the process",
			zap.Error(err),
		)
	}
}

// Upsert writes or replaces chunks keyed by (owner, source, index).
// Row failures are caught per-row: a chunk that cannot be vector-indexed is
// still marked completed in the structured table so brute-force search can
// see it. A single bad row never fails the batch.
func (d *Driver) Upsert(ctx context.Context, chunks []vector.Chunk) error {
	for i := range chunks {
		if err := d.upsertOne(ctx, &chunks[i]); err != nil {
			d.logger.Warn("chunk upsert failed, skipping row",
				zap.String("owner_id", chunks[i].OwnerID),
				zap.String("source_name", chunks[i].SourceName),
				zap.Int("chunk_index", chunks[i].SequenceIndex),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (d *Driver) upsertOne(ctx context.Context, chunk *vector.Chunk) error {
	var embBlob []byte
	status := vector.StatusPending
	if chunk.Embedding != nil {
		if err := vector.ValidateDims(chunk.Embedding, d.dims); err != nil {
			return err
		}
		embBlob = vector.SerializeFloat32(chunk.Embedding)
		status = vector.StatusCompleted
	}
	if chunk.Status != "" {
		status = chunk.Status
	}

	createdAt := chunk.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO chunks(chunk_id, owner_id, source_name, chunk_index, text, embedding, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, source_name, chunk_index) DO UPDATE SET
			chunk_id = excluded.chunk_id,
			text = excluded.text,
			embedding = excluded.embedding,
			status = excluded.status,
			created_at = excluded.created_at
	`, chunk.ID, chunk.OwnerID, chunk.SourceName, chunk.SequenceIndex,
		chunk.Text, embBlob, string(status), createdAt.Unix())
	if err != nil {
		return fmt.Errorf("upserting chunk: %w", err)
	}

	var rowID int64
	err = d.db.QueryRowContext(ctx,
		`SELECT rowid FROM chunks WHERE owner_id = ? AND source_name = ? AND chunk_index = ?`,
		chunk.OwnerID, chunk.SourceName, chunk.SequenceIndex,
	).Scan(&rowID)
	if err != nil {
		return fmt.Errorf("resolving chunk rowid: %w", err)
	}

	// Best-effort mirror into the similarity index. vec0 rejects replace
	// semantics, so conflicts are handled as delete-then-insert.
	if d.indexOK.Load() && embBlob != nil {
		if _, err := d.db.ExecContext(ctx,
			`DELETE FROM vec_chunks WHERE rowid = ?`, rowID,
		); err != nil {
			d.markIndexUnavailable(err)
			return nil
		}
		if _, err := d.db.ExecContext(ctx,
			`INSERT INTO vec_chunks(rowid, embedding) VALUES (?, ?)`, rowID, embBlob,
		); err != nil {
			d.markIndexUnavailable(err)
		}
	}

	return nil
}

// Search finds the topK most similar completed chunks for the owner. The
// ANN path runs a k-nearest query joined back to the structured table; on
// any query-time failure the index is retired and the brute-force path
// takes over, for this call and all subsequent ones.
func (d *Driver) Search(ctx context.Context, ownerID string, query []float32, queryText string, topK int) ([]vector.Result, error) {
	if topK <= 0 {
		topK = 10
	}
	if err := vector.ValidateDims(query, d.dims); err != nil {
		return nil, err
	}

	if d.indexOK.Load() {
		results, err := d.searchIndex(ctx, ownerID, query, topK)
		if err != nil {
			d.markIndexUnavailable(err)
		} else if len(results) > 0 {
			return results, nil
		}
	}

	return d.searchScan(ctx, ownerID, query, queryText, topK)
}

// searchIndex is the vec0 KNN path. Orphaned index rows (deleted owners)
// never surface because results join through the structured table.
func (d *Driver) searchIndex(ctx context.Context, ownerID string, query []float32, topK int) ([]vector.Result, error) {
	queryBlob := vector.SerializeFloat32(query)

	rows, err := d.db.QueryContext(ctx, `
		SELECT c.chunk_id, c.owner_id, c.source_name, c.chunk_index, c.text, c.created_at, v.distance
		FROM vec_chunks v
		INNER JOIN chunks c ON c.rowid = v.rowid
		WHERE v.embedding MATCH ?
			AND v.k = ?
			AND c.owner_id = ?
			AND c.status = 'completed'
		ORDER BY v.distance
	`, queryBlob, topK, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying similarity index: %w", err)
	}
	defer rows.Close()

	var results []vector.Result
	for rows.Next() {
		var r vector.Result
		var createdAt int64
		var distance float64
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.SourceName, &r.SequenceIndex,
			&r.Text, &createdAt, &distance); err != nil {
			return nil, fmt.Errorf("scanning index result: %w", err)
		}
		r.Status = vector.StatusCompleted
		r.CreatedAt = time.Unix(createdAt, 0)
		// Convert distance to similarity score: lower distance = higher similarity
		r.Score = float32(1.0 - distance)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating index results: %w", err)
	}

	return results, nil
}

// searchScan is the brute-force fallback: score every completed row for the
// owner by dot product (vectors arrive pre-normalized, so dot product
// approximates cosine similarity) plus a small lexical bonus per matching
// query term. Rows with malformed embedding blobs are skipped.
func (d *Driver) searchScan(ctx context.Context, ownerID string, query []float32, queryText string, topK int) ([]vector.Result, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT chunk_id, owner_id, source_name, chunk_index, text, embedding, created_at
		FROM chunks
		WHERE owner_id = ? AND status = 'completed'
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("scanning chunks: %w", err)
	}
	defer rows.Close()

	terms := queryTerms(queryText)

	var results []vector.Result
	for rows.Next() {
		var r vector.Result
		var embBlob []byte
		var createdAt int64
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.SourceName, &r.SequenceIndex,
			&r.Text, &embBlob, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}

		emb, err := vector.DeserializeFloat32(embBlob, d.dims)
		if err != nil {
			d.logger.Debug("skipping chunk with malformed embedding",
				zap.String("chunk_id", r.ID),
				zap.Int("blob_bytes", len(embBlob)),
			)
			continue
		}

		r.Status = vector.StatusCompleted
		r.CreatedAt = time.Unix(createdAt, 0)
		r.Score = dotProduct(query, emb) + lexicalBonus(r.Text, terms)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}

	return results, nil
}

// ListByStatus returns the owner's chunks in the given status. Chunks with
// malformed embedding blobs still appear, with a nil embedding, so callers
// can see rows the similarity paths excluded.
func (d *Driver) ListByStatus(ctx context.Context, ownerID string, status vector.Status) ([]vector.Chunk, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT chunk_id, owner_id, source_name, chunk_index, text, embedding, status, created_at
		FROM chunks
		WHERE owner_id = ? AND status = ?
		ORDER BY source_name, chunk_index
	`, ownerID, string(status))
	if err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}
	defer rows.Close()

	var chunks []vector.Chunk
	for rows.Next() {
		var c vector.Chunk
		var embBlob []byte
		var st string
		var createdAt int64
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.SourceName, &c.SequenceIndex,
			&c.Text, &embBlob, &st, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		c.Status = vector.Status(st)
		c.CreatedAt = time.Unix(createdAt, 0)
		if emb, err := vector.DeserializeFloat32(embBlob, d.dims); err == nil {
			c.Embedding = emb
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	return chunks, nil
}

// DeleteOwner removes the owner's structured rows and their index entries.
// Index rows left behind after an index failure are orphans: they never
// surface because searches join through the structured table.
func (d *Driver) DeleteOwner(ctx context.Context, ownerID string) error {
	if d.indexOK.Load() {
		rows, err := d.db.QueryContext(ctx,
			`SELECT rowid FROM chunks WHERE owner_id = ?`, ownerID,
		)
		if err != nil {
			return fmt.Errorf("querying rowids for deletion: %w", err)
		}

		var rowIDs []int64
		for rows.Next() {
			var rowID int64
			if err := rows.Scan(&rowID); err != nil {
				rows.Close()
				return fmt.Errorf("scanning rowid: %w", err)
			}
			rowIDs = append(rowIDs, rowID)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterating rowids: %w", err)
		}

		for _, rowID := range rowIDs {
			if _, err := d.db.ExecContext(ctx,
				`DELETE FROM vec_chunks WHERE rowid = ?`, rowID,
			); err != nil {
				d.markIndexUnavailable(err)
				break
			}
		}
	}

	if _, err := d.db.ExecContext(ctx,
		`DELETE FROM chunks WHERE owner_id = ?`, ownerID,
	); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}

	d.logger.Debug("deleted owner chunks", zap.String("owner_id", ownerID))
	return nil
}

// Meta computes per-owner aggregates on demand.
func (d *Driver) Meta(ctx context.Context, ownerID string) (count int, totalBytes int64, err error) {
	err = d.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(LENGTH(text) + LENGTH(COALESCE(embedding, ''))), 0)
		FROM chunks WHERE owner_id = ?
	`, ownerID).Scan(&count, &totalBytes)
	if err != nil {
		return 0, 0, fmt.Errorf("computing owner meta: %w", err)
	}
	return count, totalBytes, nil
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	return d.db.Close()
}

func dotProduct(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// lexicalBonus adds a small boost per distinct query term present in the
// chunk text. It breaks ties between near-equal vector scores in favor of
// chunks sharing surface vocabulary with the query.
const termBonus = 0.05

func lexicalBonus(text string, terms []string) float32 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	var bonus float32
	for _, term := range terms {
		if strings.Contains(lower, term) {
			bonus += termBonus
		}
	}
	return bonus
}

func queryTerms(queryText string) []string {
	fields := strings.Fields(strings.ToLower(queryText))
	seen := make(map[string]struct{}, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 3 {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}

// Ensure Driver implements vector.Driver
var _ vector.Driver = (*Driver)(nil)
