// Package embedder generates the vectors behind duplicate detection.
//
// Every function is embedded along two independent modalities: a code
// vector built from its structural identity and body, and an NLP vector
// built from LLM-derived semantic fields. Both channels share one
// Embedder; the modality is chosen by the canonical text builder
// (BuildCodeText vs BuildNLPText).
//
// All vectors are L2-normalized, so dot product equals cosine
// similarity and the store's squared-L2 distance converts linearly to a
// similarity score.
//
// # Providers
//
// Three providers are supported:
//   - openai: text-embedding-3-small over HTTPS (1536 dims)
//   - jina: jina-embeddings-v3 over HTTPS (1024 dims)
//   - local: deterministic hash-derived vectors (256 dims), used when no
//     API key is configured and in tests
//
// Remote providers retry with exponential backoff and cache results in
// an LRU keyed by content hash.
//
// # Failure isolation
//
// Embedding calls are isolated per function. A failed NLP embedding
// degrades that one function to the zero-vector sentinel (code-only
// duplicate detection); it never aborts the batch or the indexing pass.
package embedder
