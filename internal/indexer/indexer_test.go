package indexer

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewhound/dupindex/internal/embedder"
	"github.com/reviewhound/dupindex/internal/ragcache"
	"github.com/reviewhound/dupindex/internal/vecstore"
	"github.com/reviewhound/dupindex/pkg/types"
)

const fileASource = `function add(a, b) {
  return a + b;
}

function mul(a, b) {
  return a * b;
}
`

// Same name, signature, and body as fileA's add, in another file
const fileBSource = `function add(a, b) {
  return a + b;
}
`

const fileCSource = `interface Shape {
  area: number;
}
`

type fixture struct {
	dir     string
	store   *vecstore.Store
	emb     embedder.Embedder
	cache   *ragcache.Cache
	indexer *Indexer
	tasks   []types.Task
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	dir := t.TempDir()

	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}
	fileA := write("a.ts", fileASource)
	fileB := write("b.ts", fileBSource)
	fileC := write("c.ts", fileCSource)

	emb, err := embedder.NewLocalProvider(embedder.NewCache(128))
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := vecstore.Open(context.Background(), ":memory:", emb.Dimension(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cache := ragcache.Load(filepath.Join(dir, "ragcache.json"))

	idx, err := New(store, emb, cache, logger, cfg)
	require.NoError(t, err)

	tasks := []types.Task{
		{File: fileA, Hash: "hash-a1", Symbols: []types.Symbol{
			{Name: "add", Kind: types.KindFunction, LineStart: 1, LineEnd: 3},
			{Name: "mul", Kind: types.KindFunction, LineStart: 5, LineEnd: 7},
		}},
		{File: fileB, Hash: "hash-b1", Symbols: []types.Symbol{
			{Name: "add", Kind: types.KindFunction, LineStart: 1, LineEnd: 3},
		}},
		{File: fileC, Hash: "hash-c1", Symbols: []types.Symbol{
			{Name: "Shape", Kind: types.KindInterface, LineStart: 1, LineEnd: 3},
		}},
	}

	return &fixture{dir: dir, store: store, emb: emb, cache: cache, indexer: idx, tasks: tasks}
}

func TestRunIndexesFunctions(t *testing.T) {
	f := newFixture(t, Config{Workers: 2})
	ctx := context.Background()

	stats, err := f.indexer.Run(ctx, f.tasks, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.FilesScanned, "type-only file is filtered before the pool")
	assert.Equal(t, 1, stats.FilesSkipped)
	assert.Equal(t, 3, stats.FunctionsEmbedded)
	assert.Zero(t, stats.FunctionsReused)
	assert.Zero(t, stats.FilesErrored)
	assert.False(t, stats.Interrupted)
	assert.Equal(t, 3, stats.Store.TotalCards)
	assert.Equal(t, 2, stats.Store.TotalFiles)

	// The cache was flushed and is loadable by a fresh process
	reloaded := ragcache.Load(f.cache.Path())
	assert.Equal(t, 3, reloaded.Len())
}

func TestRunSecondPassReusesEverything(t *testing.T) {
	f := newFixture(t, Config{Workers: 2})
	ctx := context.Background()

	_, err := f.indexer.Run(ctx, f.tasks, nil)
	require.NoError(t, err)

	stats, err := f.indexer.Run(ctx, f.tasks, nil)
	require.NoError(t, err)
	assert.Zero(t, stats.FunctionsEmbedded)
	assert.Equal(t, 3, stats.FunctionsReused)
}

func TestRunReembedsOnHashChange(t *testing.T) {
	f := newFixture(t, Config{Workers: 2})
	ctx := context.Background()

	_, err := f.indexer.Run(ctx, f.tasks, nil)
	require.NoError(t, err)

	// fileB's content hash changes; its single function re-embeds while
	// fileA's two are reused
	f.tasks[1].Hash = "hash-b2"
	stats, err := f.indexer.Run(ctx, f.tasks, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FunctionsEmbedded)
	assert.Equal(t, 2, stats.FunctionsReused)
}

func TestRunFindsCrossFileDuplicate(t *testing.T) {
	f := newFixture(t, Config{Workers: 2})
	ctx := context.Background()

	_, err := f.indexer.Run(ctx, f.tasks, nil)
	require.NoError(t, err)

	// fileB's add is byte-identical to fileA's, so their canonical code
	// texts match and the deterministic embedder yields identical vectors
	ids, err := f.store.IDsByFile(ctx, f.tasks[1].File)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	results, err := f.store.SearchByID(ctx, ids[0], 10, 0.99)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, f.tasks[0].File, results[0].Card.FilePath)
	assert.Equal(t, "add", results[0].Card.Name)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
}

func TestRunWithSemantics(t *testing.T) {
	f := newFixture(t, Config{Workers: 2})
	ctx := context.Background()

	semantics := map[string]map[string]types.SemanticFields{
		f.tasks[0].File: {
			"add": {
				Summary:           "Adds two numbers",
				KeyConcepts:       []string{"arithmetic"},
				BehavioralProfile: "pure",
			},
		},
	}

	_, err := f.indexer.Run(ctx, f.tasks, semantics)
	require.NoError(t, err)

	dual, err := f.store.HasDualEmbedding(ctx)
	require.NoError(t, err)
	assert.True(t, dual, "the summarized function carries a real nlp vector")

	ids, err := f.store.IDsByFile(ctx, f.tasks[0].File)
	require.NoError(t, err)
	var summarized bool
	for _, id := range ids {
		card, err := f.store.Get(ctx, id)
		require.NoError(t, err)
		if card.Name == "add" {
			assert.Equal(t, "Adds two numbers", card.Summary)
			assert.Equal(t, types.ProfilePure, card.BehavioralProfile)
			summarized = true
		}
	}
	assert.True(t, summarized)
}

func TestRunExcludePatterns(t *testing.T) {
	f := newFixture(t, Config{Workers: 2, Exclude: []string{"**/b.ts"}})
	ctx := context.Background()

	stats, err := f.indexer.Run(ctx, f.tasks, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesExcluded)
	assert.Equal(t, 2, stats.FunctionsEmbedded)

	files, err := f.store.ListIndexedFiles(ctx)
	require.NoError(t, err)
	assert.NotContains(t, files, f.tasks[1].File)
}

func TestNewRejectsBadExcludePattern(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := New(f.store, f.emb, f.cache, nil, Config{Exclude: []string{"[unclosed"}})
	assert.Error(t, err)
}

func TestRunMissingFileErrorsThatJobOnly(t *testing.T) {
	f := newFixture(t, Config{Workers: 2})
	ctx := context.Background()

	f.tasks = append(f.tasks, types.Task{
		File: filepath.Join(f.dir, "ghost.ts"),
		Hash: "hash-g1",
		Symbols: []types.Symbol{
			{Name: "haunt", Kind: types.KindFunction, LineStart: 1, LineEnd: 2},
		},
	})

	stats, err := f.indexer.Run(ctx, f.tasks, nil)
	require.NoError(t, err, "a single unreadable file never aborts the pass")
	assert.Equal(t, 1, stats.FilesErrored)
	assert.Equal(t, 3, stats.FunctionsEmbedded)
}

func TestRunCancelledContext(t *testing.T) {
	f := newFixture(t, Config{Workers: 2})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := f.indexer.Run(ctx, f.tasks, nil)
	require.NoError(t, err)
	assert.True(t, stats.Interrupted)
	assert.Zero(t, stats.FunctionsEmbedded)
	assert.Equal(t, 2, stats.FilesInterrupted)
}

func TestDeleteFile(t *testing.T) {
	f := newFixture(t, Config{Workers: 2})
	ctx := context.Background()

	_, err := f.indexer.Run(ctx, f.tasks, nil)
	require.NoError(t, err)
	require.Equal(t, 3, f.cache.Len())

	n, err := f.indexer.DeleteFile(ctx, f.tasks[0].File)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 1, f.cache.Len(), "cache entries follow their cards out")

	// Unknown file deletes nothing
	n, err = f.indexer.DeleteFile(ctx, filepath.Join(f.dir, "never.ts"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRebuildResetsCacheBeforeAnyPass(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.ts")
	require.NoError(t, os.WriteFile(path, []byte(fileASource), 0o644))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dbPath := filepath.Join(dir, "test.db")
	cachePath := filepath.Join(dir, "ragcache.json")

	emb, err := embedder.NewLocalProvider(nil)
	require.NoError(t, err)

	tasks := []types.Task{
		{File: path, Hash: "hash-a1", Symbols: []types.Symbol{
			{Name: "add", Kind: types.KindFunction, LineStart: 1, LineEnd: 3},
			{Name: "mul", Kind: types.KindFunction, LineStart: 5, LineEnd: 7},
		}},
	}

	// First process: index at the provider's dimension
	store, err := vecstore.Open(context.Background(), dbPath, emb.Dimension(), logger)
	require.NoError(t, err)
	cache := ragcache.Load(cachePath)
	idx, err := New(store, emb, cache, logger, Config{})
	require.NoError(t, err)
	_, err = idx.Run(context.Background(), tasks, nil)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Second process opens at half the dimension, triggering a rebuild,
	// then exits without ever running a pass
	halfEmb := halfDimEmbedder{emb}
	store2, err := vecstore.Open(context.Background(), dbPath, halfEmb.Dimension(), logger)
	require.NoError(t, err)
	require.True(t, store2.RebuiltOnOpen())

	cache2 := ragcache.Load(cachePath)
	require.Equal(t, 2, cache2.Len())
	_, err = New(store2, halfEmb, cache2, logger, Config{})
	require.NoError(t, err)
	assert.False(t, store2.RebuiltOnOpen(), "rebuild acknowledged at construction")
	assert.Zero(t, cache2.Len())
	require.NoError(t, store2.Close())

	// Third process sees no rebuild, but the reset already reached disk,
	// so nothing is wrongly reused over the emptied store
	store3, err := vecstore.Open(context.Background(), dbPath, halfEmb.Dimension(), logger)
	require.NoError(t, err)
	defer store3.Close()
	require.False(t, store3.RebuiltOnOpen())

	cache3 := ragcache.Load(cachePath)
	require.Zero(t, cache3.Len(), "the cache reset was flushed at construction")

	idx3, err := New(store3, halfEmb, cache3, logger, Config{})
	require.NoError(t, err)
	stats, err := idx3.Run(context.Background(), tasks, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FunctionsEmbedded, "nothing is reused after a rebuild")
	assert.Zero(t, stats.FunctionsReused)
	assert.Equal(t, 2, stats.Store.TotalCards)
}

// halfDimEmbedder truncates the wrapped provider's vectors so a store
// opened at half the dimension accepts them
type halfDimEmbedder struct {
	embedder.Embedder
}

func (h halfDimEmbedder) Dimension() int {
	return h.Embedder.Dimension() / 2
}

func (h halfDimEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := h.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return embedder.Normalize(v[:len(v)/2]), nil
}
