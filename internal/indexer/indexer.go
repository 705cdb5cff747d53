package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/glob"

	"github.com/reviewhound/dupindex/internal/card"
	"github.com/reviewhound/dupindex/internal/embedder"
	"github.com/reviewhound/dupindex/internal/pool"
	"github.com/reviewhound/dupindex/internal/ragcache"
	"github.com/reviewhound/dupindex/internal/vecstore"
	"github.com/reviewhound/dupindex/pkg/types"
)

const (
	// DefaultWorkers bounds concurrent file jobs when unconfigured
	DefaultWorkers = 4
)

// Config controls an indexing pass
type Config struct {
	// Workers is the maximum number of files processed concurrently
	Workers int

	// Exclude holds glob patterns for file paths to skip entirely,
	// e.g. "**/*_test.go" or "vendor/**"
	Exclude []string
}

// Statistics summarizes one indexing pass
type Statistics struct {
	FilesScanned      int            `json:"files_scanned"`
	FilesExcluded     int            `json:"files_excluded"`
	FilesSkipped      int            `json:"files_skipped"`
	FilesErrored      int            `json:"files_errored"`
	FilesInterrupted  int            `json:"files_interrupted"`
	FunctionsEmbedded int            `json:"functions_embedded"`
	FunctionsReused   int            `json:"functions_reused"`
	FunctionsDegraded int            `json:"functions_degraded"`
	FunctionsFailed   int            `json:"functions_failed"`
	PeakConcurrency   int            `json:"peak_concurrency"`
	Interrupted       bool           `json:"interrupted"`
	Duration          time.Duration  `json:"duration"`
	Store             vecstore.Stats `json:"store"`
}

// Indexer drives incremental indexing passes: it fans file tasks out to
// a bounded worker pool, embeds only the functions whose file content
// changed, and persists cards plus the content-hash cache at the end of
// the pass.
type Indexer struct {
	store  *vecstore.Store
	emb    embedder.Embedder
	cache  *ragcache.Cache
	logger *slog.Logger

	workers int
	exclude []glob.Glob

	interrupted atomic.Bool
}

// New creates an indexer. Exclude patterns are compiled eagerly so a
// bad pattern fails construction, not the middle of a pass.
func New(store *vecstore.Store, emb embedder.Embedder, cache *ragcache.Cache, logger *slog.Logger, cfg Config) (*Indexer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = DefaultWorkers
	}

	excludes := make([]glob.Glob, 0, len(cfg.Exclude))
	for _, pattern := range cfg.Exclude {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		excludes = append(excludes, g)
	}

	// A dimension rebuild invalidated every stored vector, so the
	// content-hash cache must not claim anything is current. The reset
	// is flushed to disk here, at construction: deferring it to the next
	// pass would leave a stale on-disk cache over an empty store if the
	// process exits first. Acknowledging the rebuild keeps indexers
	// built later in the same process from wiping a repopulated cache.
	if store.RebuiltOnOpen() {
		logger.Info("vector store was rebuilt, resetting content-hash cache")
		cache.Reset()
		if err := cache.Save(); err != nil {
			return nil, fmt.Errorf("flush content-hash cache after rebuild: %w", err)
		}
		store.AckRebuild()
	}

	return &Indexer{
		store:   store,
		emb:     emb,
		cache:   cache,
		logger:  logger,
		workers: workers,
		exclude: excludes,
	}, nil
}

// Interrupt requests cooperative cancellation of the current pass.
// In-flight file jobs finish the function they are embedding and stop;
// queued jobs are skipped. Work already embedded is still persisted.
func (i *Indexer) Interrupt() {
	i.interrupted.Store(true)
}

// embeddedCard is a fully embedded card awaiting the end-of-pass upsert
type embeddedCard struct {
	card    types.FunctionCard
	codeVec []float32
	nlpVec  []float32
	hash    string
}

// Run executes one indexing pass over tasks. semantics optionally
// carries LLM-derived fields, keyed by file path then symbol name.
//
// The pass is incremental: a function is re-embedded only when its file
// content hash differs from the one recorded in the cache. Per-function
// failures degrade or skip that function; they never abort the pass.
// The cache is flushed to disk once, after all upserts.
func (i *Indexer) Run(ctx context.Context, tasks []types.Task, semantics map[string]map[string]types.SemanticFields) (Statistics, error) {
	start := time.Now()
	i.interrupted.Store(false)

	var stats Statistics

	var kept []types.Task
	for _, t := range tasks {
		if i.excluded(t.File) {
			stats.FilesExcluded++
			continue
		}
		if !t.HasFunctions() {
			stats.FilesSkipped++
			continue
		}
		kept = append(kept, t)
	}
	stats.FilesScanned = len(kept)

	var (
		mu       sync.Mutex
		embedded []embeddedCard
		reused   atomic.Int64
		degraded atomic.Int64
		failed   atomic.Int64
	)

	jobs := make([]pool.Job, len(kept))
	for idx, task := range kept {
		task := task
		jobs[idx] = func(ctx context.Context) error {
			source, err := os.ReadFile(task.File)
			if err != nil {
				return fmt.Errorf("read %s: %w", task.File, err)
			}

			cards := card.BuildCards(task, string(source), semantics[task.File])
			for _, c := range cards {
				if ctx.Err() != nil || i.interrupted.Load() {
					// Partial results for this file are kept; the
					// untouched functions stay stale in the cache and
					// get picked up next pass.
					return nil
				}
				if !i.cache.NeedsReindex(c.ID, task.Hash) {
					reused.Add(1)
					continue
				}

				body := card.BodyText(string(source), c.LineStart, c.LineEnd)
				codeVec, err := i.emb.Embed(ctx, embedder.BuildCodeText(c, body))
				if err != nil {
					failed.Add(1)
					i.logger.Warn("code embedding failed, skipping function",
						"file", task.File, "function", c.Name, "error", err)
					continue
				}

				nlpVec := embedder.ZeroVector(i.emb.Dimension())
				if text := embedder.BuildNLPText(c); text != "" {
					v, err := i.emb.Embed(ctx, text)
					if err != nil {
						degraded.Add(1)
						i.logger.Warn("nlp embedding failed, storing zero sentinel",
							"file", task.File, "function", c.Name, "error", err)
					} else {
						nlpVec = v
					}
				}

				c.LastIndexed = time.Now().UTC()
				mu.Lock()
				embedded = append(embedded, embeddedCard{card: c, codeVec: codeVec, nlpVec: nlpVec, hash: task.Hash})
				mu.Unlock()
			}
			return nil
		}
	}

	outcome := pool.Run(ctx, i.workers, i.interrupted.Load, jobs)

	stats.FilesErrored = outcome.Errored
	stats.FilesInterrupted = outcome.Skipped
	stats.PeakConcurrency = outcome.Peak
	stats.FunctionsReused = int(reused.Load())
	stats.FunctionsDegraded = int(degraded.Load())
	stats.FunctionsFailed = int(failed.Load())
	stats.Interrupted = ctx.Err() != nil || i.interrupted.Load()

	for idx, r := range outcome.Results {
		if r.Status == pool.StatusErrored {
			i.logger.Error("file job failed", "file", kept[idx].File, "error", r.Err)
		}
	}

	// Persistence is single-threaded after the pool drains: one batch
	// transaction, then the cache entries, then one atomic cache flush.
	if len(embedded) > 0 {
		cards := make([]types.FunctionCard, len(embedded))
		codeVecs := make([][]float32, len(embedded))
		nlpVecs := make([][]float32, len(embedded))
		for j, e := range embedded {
			cards[j] = e.card
			codeVecs[j] = e.codeVec
			nlpVecs[j] = e.nlpVec
		}
		if err := i.store.UpsertBatch(ctx, cards, codeVecs, nlpVecs); err != nil {
			return stats, fmt.Errorf("persist embedded cards: %w", err)
		}
		for _, e := range embedded {
			i.cache.Set(e.card.ID, e.hash)
		}
	}
	stats.FunctionsEmbedded = len(embedded)

	if err := i.cache.Save(); err != nil {
		return stats, fmt.Errorf("flush content-hash cache: %w", err)
	}

	storeStats, err := i.store.GetStats(ctx)
	if err != nil {
		i.logger.Warn("failed to collect store statistics", "error", err)
	} else {
		stats.Store = storeStats
	}

	stats.Duration = time.Since(start)
	i.logger.Info("indexing pass finished",
		"files", stats.FilesScanned,
		"embedded", stats.FunctionsEmbedded,
		"reused", stats.FunctionsReused,
		"degraded", stats.FunctionsDegraded,
		"failed", stats.FunctionsFailed,
		"errored", stats.FilesErrored,
		"interrupted", stats.Interrupted,
		"duration", stats.Duration)

	return stats, nil
}

// DeleteFile removes a file's cards from the store and its entries from
// the content-hash cache, flushing the cache afterwards.
func (i *Indexer) DeleteFile(ctx context.Context, filePath string) (int64, error) {
	ids, err := i.store.IDsByFile(ctx, filePath)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	n, err := i.store.DeleteByFile(ctx, filePath)
	if err != nil {
		return 0, err
	}

	for _, id := range ids {
		i.cache.Delete(id)
	}
	if err := i.cache.Save(); err != nil {
		return n, fmt.Errorf("flush content-hash cache: %w", err)
	}
	return n, nil
}

func (i *Indexer) excluded(path string) bool {
	for _, g := range i.exclude {
		if g.Match(path) {
			return true
		}
	}
	return false
}
