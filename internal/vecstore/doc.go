// Package vecstore persists function cards and their dual-modality
// embeddings in SQLite and serves similarity search over them.
//
// Vectors are stored as little-endian float32 blobs and compared in Go
// with squared-L2 distance; since all stored vectors are unit-length,
// distance converts losslessly to cosine similarity via
// DistanceToSimilarity. This keeps search semantics identical across
// the cgo (mattn/go-sqlite3) and pure-Go (modernc.org/sqlite) builds,
// selected with the sqlite_cgo build tag.
//
// The store recovers from embedding-provider changes on its own: Open
// samples one stored vector and, when its dimension disagrees with the
// configured one, drops and recreates the table instead of serving
// garbage similarities. RebuiltOnOpen tells the caller to reset any
// content-hash cache so the next pass re-embeds everything.
package vecstore
