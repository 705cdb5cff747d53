package integration

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/reviewhound/dupindex/internal/indexer"
	"github.com/reviewhound/dupindex/internal/ragcache"
	"github.com/reviewhound/dupindex/internal/vecstore"
	"github.com/reviewhound/dupindex/pkg/types"
)

const mockDimension = 64

const authSource = `export async function validateToken(token) {
  if (!token) {
    return null;
  }
  const payload = decode(token);
  return payload && payload.exp > now() ? payload : null;
}

export async function checkToken(token) {
  if (!token) {
    return null;
  }
  const data = decode(token);
  return data && data.exp > now() ? data : null;
}

function decode(token) {
  return JSON.parse(atob(token));
}

function now() {
  return Date.now() / 1000;
}
`

const utilSource = `export function formatDate(d) {
  return d.toISOString().slice(0, 10);
}
`

// IndexingTestSuite exercises the whole pipeline: task -> cards ->
// embeddings -> store -> duplicate search, against a real SQLite store
// and the deterministic mock embedder.
type IndexingTestSuite struct {
	suite.Suite
	ctx      context.Context
	dir      string
	store    *vecstore.Store
	cache    *ragcache.Cache
	embedder *MockEmbedder
	indexer  *indexer.Indexer
	tasks    []types.Task
}

func (s *IndexingTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.dir = s.T().TempDir()

	authPath := filepath.Join(s.dir, "auth.ts")
	utilPath := filepath.Join(s.dir, "util.ts")
	s.Require().NoError(os.WriteFile(authPath, []byte(authSource), 0o644))
	s.Require().NoError(os.WriteFile(utilPath, []byte(utilSource), 0o644))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.embedder = NewMockEmbedder(mockDimension)

	store, err := vecstore.Open(s.ctx, filepath.Join(s.dir, "index.db"), mockDimension, logger)
	s.Require().NoError(err)
	s.store = store

	s.cache = ragcache.Load(filepath.Join(s.dir, "ragcache.json"))

	idx, err := indexer.New(s.store, s.embedder, s.cache, logger, indexer.Config{Workers: 2})
	s.Require().NoError(err)
	s.indexer = idx

	s.tasks = []types.Task{
		{File: authPath, Hash: "auth-v1", Symbols: []types.Symbol{
			{Name: "validateToken", Kind: types.KindFunction, Exported: true, LineStart: 1, LineEnd: 7},
			{Name: "checkToken", Kind: types.KindFunction, Exported: true, LineStart: 9, LineEnd: 15},
			{Name: "decode", Kind: types.KindFunction, LineStart: 17, LineEnd: 19},
			{Name: "now", Kind: types.KindFunction, LineStart: 21, LineEnd: 23},
		}},
		{File: utilPath, Hash: "util-v1", Symbols: []types.Symbol{
			{Name: "formatDate", Kind: types.KindFunction, Exported: true, LineStart: 1, LineEnd: 3},
		}},
	}
}

func (s *IndexingTestSuite) TearDownTest() {
	if s.store != nil {
		_ = s.store.Close()
	}
}

func (s *IndexingTestSuite) TestFullPass() {
	stats, err := s.indexer.Run(s.ctx, s.tasks, nil)
	s.Require().NoError(err)

	s.Equal(2, stats.FilesScanned)
	s.Equal(5, stats.FunctionsEmbedded)
	s.Zero(stats.FilesErrored)
	s.Equal(5, stats.Store.TotalCards)
	s.Equal(2, stats.Store.TotalFiles)
	s.LessOrEqual(stats.PeakConcurrency, 2)
}

func (s *IndexingTestSuite) TestIncrementalSecondPass() {
	_, err := s.indexer.Run(s.ctx, s.tasks, nil)
	s.Require().NoError(err)

	stats, err := s.indexer.Run(s.ctx, s.tasks, nil)
	s.Require().NoError(err)
	s.Zero(stats.FunctionsEmbedded)
	s.Equal(5, stats.FunctionsReused)
}

func (s *IndexingTestSuite) TestDuplicateDetection() {
	_, err := s.indexer.Run(s.ctx, s.tasks, nil)
	s.Require().NoError(err)

	ids, err := s.store.IDsByFile(s.ctx, s.tasks[0].File)
	s.Require().NoError(err)
	s.Require().Len(ids, 4)

	// Locate validateToken's id
	var queryID string
	for _, id := range ids {
		card, err := s.store.Get(s.ctx, id)
		s.Require().NoError(err)
		if card.Name == "validateToken" {
			queryID = id
		}
	}
	s.Require().NotEmpty(queryID)

	results, err := s.store.SearchByID(s.ctx, queryID, 10, -1)
	s.Require().NoError(err)

	// The query function itself never appears
	for _, r := range results {
		s.NotEqual(queryID, r.Card.ID)
	}
}

func (s *IndexingTestSuite) TestHybridDegradesWithoutSemantics() {
	_, err := s.indexer.Run(s.ctx, s.tasks, nil)
	s.Require().NoError(err)

	dual, err := s.store.HasDualEmbedding(s.ctx)
	s.Require().NoError(err)
	s.False(dual)

	ids, err := s.store.IDsByFile(s.ctx, s.tasks[1].File)
	s.Require().NoError(err)
	s.Require().Len(ids, 1)

	// No semantics anywhere: hybrid must still answer via code-only
	_, err = s.store.SearchByIDHybrid(s.ctx, ids[0], 0.7, 10, -1)
	s.NoError(err)
}

func (s *IndexingTestSuite) TestSemanticsEnableHybrid() {
	semantics := map[string]map[string]types.SemanticFields{
		s.tasks[0].File: {
			"validateToken": {
				Summary:           "Validates a JWT and returns its payload",
				KeyConcepts:       []string{"jwt", "auth"},
				BehavioralProfile: "pure",
			},
			"checkToken": {
				Summary:           "Validates a JWT and returns its payload",
				KeyConcepts:       []string{"jwt", "auth"},
				BehavioralProfile: "pure",
			},
		},
	}

	_, err := s.indexer.Run(s.ctx, s.tasks, semantics)
	s.Require().NoError(err)

	dual, err := s.store.HasDualEmbedding(s.ctx)
	s.Require().NoError(err)
	s.True(dual)

	var queryID string
	ids, err := s.store.IDsByFile(s.ctx, s.tasks[0].File)
	s.Require().NoError(err)
	for _, id := range ids {
		card, err := s.store.Get(s.ctx, id)
		s.Require().NoError(err)
		if card.Name == "validateToken" {
			queryID = id
		}
	}
	s.Require().NotEmpty(queryID)

	// Identical summaries embed identically, so checkToken clears the
	// NLP channel floor; whether it clears the code floor depends on
	// the mock's dispersion, so only the well-formedness is asserted
	results, err := s.store.SearchByIDHybrid(s.ctx, queryID, 0.3, 10, -1)
	s.Require().NoError(err)
	for _, r := range results {
		s.GreaterOrEqual(r.Score, -1.0)
		s.LessOrEqual(r.Score, 1.0)
		s.NotEqual(queryID, r.Card.ID)
	}
}

func (s *IndexingTestSuite) TestDeleteFileEndToEnd() {
	_, err := s.indexer.Run(s.ctx, s.tasks, nil)
	s.Require().NoError(err)

	n, err := s.indexer.DeleteFile(s.ctx, s.tasks[0].File)
	s.Require().NoError(err)
	s.Equal(int64(4), n)

	files, err := s.store.ListIndexedFiles(s.ctx)
	s.Require().NoError(err)
	s.NotContains(files, s.tasks[0].File)
	s.Contains(files, s.tasks[1].File)

	// Deleted functions re-embed on the next pass
	stats, err := s.indexer.Run(s.ctx, s.tasks, nil)
	s.Require().NoError(err)
	s.Equal(4, stats.FunctionsEmbedded)
	s.Equal(1, stats.FunctionsReused)
}

func (s *IndexingTestSuite) TestPersistenceAcrossReopen() {
	_, err := s.indexer.Run(s.ctx, s.tasks, nil)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Close())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store2, err := vecstore.Open(s.ctx, filepath.Join(s.dir, "index.db"), mockDimension, logger)
	s.Require().NoError(err)
	s.store = store2

	s.False(store2.RebuiltOnOpen())
	stats, err := store2.GetStats(s.ctx)
	s.Require().NoError(err)
	s.Equal(5, stats.TotalCards)
}

func TestIndexingTestSuite(t *testing.T) {
	suite.Run(t, new(IndexingTestSuite))
}
