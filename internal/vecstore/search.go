package vecstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/reviewhound/dupindex/pkg/types"
)

const (
	// DefaultLimit caps search results when the caller passes limit <= 0
	DefaultLimit = 10

	// channelFloor is the relaxed per-channel minimum a candidate must
	// reach on at least one modality to enter hybrid scoring. Final
	// filtering happens on the blended score, so a candidate strong on
	// one channel and silent on the other gets in but scores dampened.
	channelFloor = 0.5
)

const selectCardColumns = `SELECT id, file_path, name, summary, key_concepts,
	signature, behavioral_profile, complexity_score, called_internals, last_indexed`

type rowScanner interface {
	Scan(dest ...any) error
}

// parseJSONList is the single deserialize boundary for the JSON-array
// columns. A malformed value degrades to an empty list; it never
// surfaces a parse error through query results.
func parseJSONList(raw string) []string {
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return []string{}
	}
	return out
}

func scanCard(row rowScanner) (types.FunctionCard, error) {
	var card types.FunctionCard
	var concepts, internals string
	var lastIndexed sql.NullTime
	err := row.Scan(&card.ID, &card.FilePath, &card.Name, &card.Summary,
		&concepts, &card.Signature, &card.BehavioralProfile,
		&card.ComplexityScore, &internals, &lastIndexed)
	if err != nil {
		return card, err
	}
	card.KeyConcepts = parseJSONList(concepts)
	card.CalledInternals = parseJSONList(internals)
	if lastIndexed.Valid {
		card.LastIndexed = lastIndexed.Time
	}
	return card, nil
}

func isZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// candidate pairs a card with both of its stored vectors during a scan
type candidate struct {
	card    types.FunctionCard
	codeVec []float32
	nlpVec  []float32
}

// scanCandidates loads every card with its vectors, excluding excludeID
// (pass "" to exclude nothing).
func (s *Store) scanCandidates(ctx context.Context, excludeID string) ([]candidate, error) {
	query := selectCardColumns + ", vector, nlp_vector FROM function_cards"
	var args []any
	if excludeID != "" {
		query += " WHERE id <> ?"
		args = append(args, excludeID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to scan candidates: %w", err)
	}
	defer rows.Close()

	var out []candidate
	for rows.Next() {
		var c candidate
		var concepts, internals string
		var lastIndexed sql.NullTime
		var codeBlob, nlpBlob []byte
		err := rows.Scan(&c.card.ID, &c.card.FilePath, &c.card.Name,
			&c.card.Summary, &concepts, &c.card.Signature,
			&c.card.BehavioralProfile, &c.card.ComplexityScore,
			&internals, &lastIndexed, &codeBlob, &nlpBlob)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate row: %w", err)
		}
		c.card.KeyConcepts = parseJSONList(concepts)
		c.card.CalledInternals = parseJSONList(internals)
		if lastIndexed.Valid {
			c.card.LastIndexed = lastIndexed.Time
		}
		c.codeVec = deserializeVector(codeBlob)
		c.nlpVec = deserializeVector(nlpBlob)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Search finds the cards nearest to the query vector on the given
// column (ColumnCode or ColumnNLP), sorted by descending similarity.
// Rows holding a zero sentinel on the requested column are skipped.
func (s *Store) Search(ctx context.Context, vector []float32, column string, limit int, minScore float64) ([]types.SimilarityResult, error) {
	if err := validateColumn(column); err != nil {
		return nil, err
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query vector has %d elements, want %d", ErrDimensionMismatch, len(vector), s.dimension)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	cands, err := s.scanCandidates(ctx, "")
	if err != nil {
		return nil, err
	}

	var results []types.SimilarityResult
	for _, c := range cands {
		v := c.codeVec
		if column == ColumnNLP {
			v = c.nlpVec
		}
		if isZeroVector(v) {
			continue
		}
		score := DistanceToSimilarity(squaredL2(vector, v))
		if score < minScore {
			continue
		}
		results = append(results, types.SimilarityResult{Card: c.card, Score: score})
	}

	sortAndTrim(&results, limit)
	return results, nil
}

// SearchByID finds the functions most similar to the one identified by
// id, using code vectors only. The query function itself is excluded,
// as is any row sharing its (file_path, name) pair: re-indexed copies
// of the same function under a stale id must not report themselves as
// duplicates.
func (s *Store) SearchByID(ctx context.Context, id string, limit int, minScore float64) ([]types.SimilarityResult, error) {
	if err := ValidateFunctionID(id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	query, err := s.getCandidate(ctx, id)
	if err != nil {
		return nil, err
	}

	cands, err := s.scanCandidates(ctx, id)
	if err != nil {
		return nil, err
	}

	var results []types.SimilarityResult
	for _, c := range cands {
		if c.card.FilePath == query.card.FilePath && c.card.Name == query.card.Name {
			continue
		}
		score := DistanceToSimilarity(squaredL2(query.codeVec, c.codeVec))
		if score < minScore {
			continue
		}
		results = append(results, types.SimilarityResult{Card: c.card, Score: score})
	}

	sortAndTrim(&results, limit)
	return results, nil
}

// SearchByIDHybrid blends code and NLP similarity:
//
//	combined = codeWeight*code + (1-codeWeight)*nlp
//
// Each channel is searched independently under the relaxed channel
// floor and the candidate sets are unioned; a channel the candidate did
// not qualify on contributes zero to the blend. When the query function
// has no NLP embedding (zero sentinel) the search degrades to code-only
// SearchByID rather than failing.
func (s *Store) SearchByIDHybrid(ctx context.Context, id string, codeWeight float64, limit int, minScore float64) ([]types.SimilarityResult, error) {
	if err := ValidateFunctionID(id); err != nil {
		return nil, err
	}
	if codeWeight < 0 || codeWeight > 1 {
		return nil, fmt.Errorf("code weight %.2f out of range [0, 1]", codeWeight)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	query, err := s.getCandidate(ctx, id)
	if err != nil {
		return nil, err
	}

	if isZeroVector(query.nlpVec) {
		s.logger.Debug("query function has no nlp embedding, using code-only search", "id", id)
		return s.SearchByID(ctx, id, limit, minScore)
	}

	cands, err := s.scanCandidates(ctx, id)
	if err != nil {
		return nil, err
	}

	var results []types.SimilarityResult
	for _, c := range cands {
		if c.card.FilePath == query.card.FilePath && c.card.Name == query.card.Name {
			continue
		}

		codeSim := DistanceToSimilarity(squaredL2(query.codeVec, c.codeVec))
		nlpSim := 0.0
		if !isZeroVector(c.nlpVec) {
			nlpSim = DistanceToSimilarity(squaredL2(query.nlpVec, c.nlpVec))
		}

		// Union of the two per-channel searches; a channel below its
		// floor contributes nothing to the blend
		if codeSim < channelFloor {
			codeSim = 0
		}
		if nlpSim < channelFloor {
			nlpSim = 0
		}
		if codeSim == 0 && nlpSim == 0 {
			continue
		}

		score := codeWeight*codeSim + (1-codeWeight)*nlpSim
		if score < minScore {
			continue
		}
		results = append(results, types.SimilarityResult{Card: c.card, Score: score})
	}

	sortAndTrim(&results, limit)
	return results, nil
}

// getCandidate loads one card with both vectors
func (s *Store) getCandidate(ctx context.Context, id string) (candidate, error) {
	row := s.db.QueryRowContext(ctx,
		selectCardColumns+", vector, nlp_vector FROM function_cards WHERE id = ?", id)

	var c candidate
	var concepts, internals string
	var lastIndexed sql.NullTime
	var codeBlob, nlpBlob []byte
	err := row.Scan(&c.card.ID, &c.card.FilePath, &c.card.Name,
		&c.card.Summary, &concepts, &c.card.Signature,
		&c.card.BehavioralProfile, &c.card.ComplexityScore,
		&internals, &lastIndexed, &codeBlob, &nlpBlob)
	if err == sql.ErrNoRows {
		return c, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return c, fmt.Errorf("failed to load card %s: %w", id, err)
	}
	c.card.KeyConcepts = parseJSONList(concepts)
	c.card.CalledInternals = parseJSONList(internals)
	if lastIndexed.Valid {
		c.card.LastIndexed = lastIndexed.Time
	}
	c.codeVec = deserializeVector(codeBlob)
	c.nlpVec = deserializeVector(nlpBlob)
	return c, nil
}

func sortAndTrim(results *[]types.SimilarityResult, limit int) {
	sort.SliceStable(*results, func(i, j int) bool {
		return (*results)[i].Score > (*results)[j].Score
	})
	if len(*results) > limit {
		*results = (*results)[:limit]
	}
}
