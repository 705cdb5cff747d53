// Package indexer orchestrates incremental indexing passes.
//
// A pass takes pre-parsed file tasks (path, content hash, symbols),
// filters excluded and function-free files, and fans the rest out to a
// bounded worker pool. Each file job builds function cards, consults
// the content-hash cache to skip unchanged functions, and embeds the
// rest on both modalities. Persistence is deferred until the pool
// drains: one batch upsert, then a single atomic cache flush, so an
// interrupted pass loses at most the work of that pass, never the
// cache of previous ones.
package indexer
