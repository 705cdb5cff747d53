package vecstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/reviewhound/dupindex/pkg/types"
)

const (
	// ColumnCode is the code-modality vector column
	ColumnCode = "vector"
	// ColumnNLP is the NLP-modality vector column
	ColumnNLP = "nlp_vector"
)

var (
	// ErrNotFound indicates the requested card does not exist
	ErrNotFound = errors.New("function card not found")

	// ErrDimensionMismatch indicates a vector of the wrong length was passed in
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// querier abstracts *sql.DB and *sql.Tx so operations compose inside
// or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store persists function cards and their dual-modality embeddings in
// SQLite. All vector math runs in Go over deserialized blobs, so the
// same semantics hold under both driver builds.
type Store struct {
	db        *sql.DB
	path      string
	dimension int
	rebuilt   bool
	logger    *slog.Logger
}

// Open opens (creating if necessary) the store at path for vectors of
// the given dimension. If the existing table holds vectors of a
// different dimension, the table is dropped and recreated; the caller
// must treat a rebuilt store as empty and reset any content-hash cache.
func Open(ctx context.Context, path string, dimension int, logger *slog.Logger) (*Store, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension %d", dimension)
	}
	if logger == nil {
		logger = slog.Default()
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: WAL plus one writer keeps the store safe for
	// concurrent readers without busy-handler tuning.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if err := ApplyMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	s := &Store{
		db:        db,
		path:      path,
		dimension: dimension,
		logger:    logger,
	}

	if err := s.checkDimension(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// checkDimension samples one stored vector and rebuilds the table when
// its length disagrees with the configured dimension.
func (s *Store) checkDimension(ctx context.Context) error {
	var blob []byte
	err := s.db.QueryRowContext(ctx, "SELECT vector FROM function_cards LIMIT 1").Scan(&blob)
	if err == sql.ErrNoRows {
		return nil // Empty store, nothing to verify
	}
	if err != nil {
		return fmt.Errorf("failed to sample stored vector: %w", err)
	}

	stored := len(blob) / 4
	if stored == s.dimension {
		return nil
	}

	s.logger.Warn("embedding dimension changed, rebuilding vector table",
		"stored_dimension", stored,
		"configured_dimension", s.dimension)

	if _, err := s.db.ExecContext(ctx, "DROP TABLE function_cards"); err != nil {
		return fmt.Errorf("failed to drop stale vector table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM schema_version"); err != nil {
		return fmt.Errorf("failed to reset schema version: %w", err)
	}
	if err := ApplyMigrations(ctx, s.db); err != nil {
		return fmt.Errorf("failed to recreate vector table: %w", err)
	}

	s.rebuilt = true
	return nil
}

// RebuiltOnOpen reports whether Open dropped and recreated the table
// because of a dimension mismatch. Callers owning a content-hash cache
// must reset it when this returns true, then call AckRebuild.
func (s *Store) RebuiltOnOpen() bool {
	return s.rebuilt
}

// AckRebuild clears the rebuild flag once the caller has invalidated
// dependent state, so later consumers of the same store do not
// invalidate it again.
func (s *Store) AckRebuild() {
	s.rebuilt = false
}

// Dimension returns the configured embedding dimension
func (s *Store) Dimension() int {
	return s.dimension
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert inserts or replaces a card and its vectors. Replacement is
// delete-then-insert in one transaction, so re-indexing the same id is
// idempotent and never duplicates rows.
func (s *Store) Upsert(ctx context.Context, card types.FunctionCard, codeVec, nlpVec []float32) error {
	if err := card.Validate(); err != nil {
		return err
	}
	if len(codeVec) != s.dimension {
		return fmt.Errorf("%w: code vector has %d elements, want %d", ErrDimensionMismatch, len(codeVec), s.dimension)
	}
	if len(nlpVec) != s.dimension {
		return fmt.Errorf("%w: nlp vector has %d elements, want %d", ErrDimensionMismatch, len(nlpVec), s.dimension)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.upsertWithQuerier(ctx, tx, card, codeVec, nlpVec); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert: %w", err)
	}
	return nil
}

// UpsertBatch writes multiple cards in a single transaction
func (s *Store) UpsertBatch(ctx context.Context, cards []types.FunctionCard, codeVecs, nlpVecs [][]float32) error {
	if len(cards) != len(codeVecs) || len(cards) != len(nlpVecs) {
		return fmt.Errorf("mismatched batch lengths: %d cards, %d code vectors, %d nlp vectors",
			len(cards), len(codeVecs), len(nlpVecs))
	}
	if len(cards) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, card := range cards {
		if err := card.Validate(); err != nil {
			return fmt.Errorf("card %d: %w", i, err)
		}
		if len(codeVecs[i]) != s.dimension || len(nlpVecs[i]) != s.dimension {
			return fmt.Errorf("card %d: %w", i, ErrDimensionMismatch)
		}
		if err := s.upsertWithQuerier(ctx, tx, card, codeVecs[i], nlpVecs[i]); err != nil {
			return fmt.Errorf("card %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch upsert: %w", err)
	}
	return nil
}

func (s *Store) upsertWithQuerier(ctx context.Context, q querier, card types.FunctionCard, codeVec, nlpVec []float32) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM function_cards WHERE id = ?", card.ID); err != nil {
		return fmt.Errorf("failed to delete existing card %s: %w", card.ID, err)
	}

	concepts, err := json.Marshal(card.KeyConcepts)
	if err != nil {
		return fmt.Errorf("failed to marshal key concepts: %w", err)
	}
	internals, err := json.Marshal(card.CalledInternals)
	if err != nil {
		return fmt.Errorf("failed to marshal called internals: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO function_cards
			(id, file_path, name, summary, key_concepts, signature,
			 behavioral_profile, complexity_score, called_internals,
			 last_indexed, vector, nlp_vector)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		card.ID, card.FilePath, card.Name, card.Summary, string(concepts),
		card.Signature, string(card.BehavioralProfile), card.ComplexityScore,
		string(internals), card.LastIndexed,
		serializeVector(codeVec), serializeVector(nlpVec))
	if err != nil {
		return fmt.Errorf("failed to insert card %s: %w", card.ID, err)
	}
	return nil
}

// Get retrieves a single card by id
func (s *Store) Get(ctx context.Context, id string) (types.FunctionCard, error) {
	if err := ValidateFunctionID(id); err != nil {
		return types.FunctionCard{}, err
	}

	row := s.db.QueryRowContext(ctx, selectCardColumns+" FROM function_cards WHERE id = ?", id)
	card, err := scanCard(row)
	if err == sql.ErrNoRows {
		return types.FunctionCard{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return types.FunctionCard{}, fmt.Errorf("failed to get card %s: %w", id, err)
	}
	return card, nil
}

// IDsByFile returns the ids of all cards indexed under a file path
func (s *Store) IDsByFile(ctx context.Context, filePath string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM function_cards WHERE file_path = ?", filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list ids for %s: %w", filePath, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteByFile removes every card indexed under the given file path
// and returns the number of rows removed.
func (s *Store) DeleteByFile(ctx context.Context, filePath string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM function_cards WHERE file_path = ?", filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to delete cards for %s: %w", filePath, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted rows: %w", err)
	}
	return n, nil
}

// ListIndexedFiles returns the distinct file paths in the store with
// per-file card counts, sorted by path.
func (s *Store) ListIndexedFiles(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT file_path, COUNT(*) FROM function_cards GROUP BY file_path ORDER BY file_path")
	if err != nil {
		return nil, fmt.Errorf("failed to list indexed files: %w", err)
	}
	defer rows.Close()

	files := make(map[string]int)
	for rows.Next() {
		var path string
		var count int
		if err := rows.Scan(&path, &count); err != nil {
			return nil, fmt.Errorf("failed to scan file row: %w", err)
		}
		files[path] = count
	}
	return files, rows.Err()
}

// HasDualEmbedding reports whether any card carries a real (non-zero)
// NLP vector. A store populated without semantic summaries holds only
// zero sentinels in nlp_vector and cannot serve NLP-weighted search.
func (s *Store) HasDualEmbedding(ctx context.Context) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM function_cards WHERE nlp_vector <> zeroblob(?)",
		s.dimension*4).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check dual embedding: %w", err)
	}
	return n > 0, nil
}

// Stats summarizes the store contents
type Stats struct {
	TotalCards       int     `json:"total_cards"`
	TotalFiles       int     `json:"total_files"`
	Dimension        int     `json:"dimension"`
	HasDualEmbedding bool    `json:"has_dual_embedding"`
	IndexSizeMB      float64 `json:"index_size_mb"`
	BuildMode        string  `json:"build_mode"`
}

// GetStats returns aggregate statistics for the store
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	st := Stats{Dimension: s.dimension, BuildMode: BuildMode}

	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM function_cards").Scan(&st.TotalCards)
	if err != nil {
		return st, fmt.Errorf("failed to count cards: %w", err)
	}
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT file_path) FROM function_cards").Scan(&st.TotalFiles)
	if err != nil {
		return st, fmt.Errorf("failed to count files: %w", err)
	}

	st.HasDualEmbedding, err = s.HasDualEmbedding(ctx)
	if err != nil {
		return st, err
	}

	var pageCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err == nil {
			st.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
		}
	}

	return st, nil
}
