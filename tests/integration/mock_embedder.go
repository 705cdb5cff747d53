package integration

import (
	"context"
	"crypto/sha256"
	"encoding/binary"

	"github.com/reviewhound/dupindex/internal/embedder"
)

// MockEmbedder provides a fake embedder for testing. It generates
// deterministic unit vectors from the text hash, with an optional
// override table so a test can force two texts to embed identically.
type MockEmbedder struct {
	dimension int
	overrides map[string]string // text -> alias text to embed instead
}

// NewMockEmbedder creates a new mock embedder
func NewMockEmbedder(dimension int) *MockEmbedder {
	return &MockEmbedder{
		dimension: dimension,
		overrides: make(map[string]string),
	}
}

// Alias makes `text` embed to the same vector as `as`
func (m *MockEmbedder) Alias(text, as string) {
	m.overrides[text] = as
}

// Embed generates a deterministic fake embedding
func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, embedder.ErrEmptyText
	}
	if alias, ok := m.overrides[text]; ok {
		text = alias
	}

	hash := sha256.Sum256([]byte(text))
	vector := make([]float32, m.dimension)
	for i := 0; i < m.dimension; i++ {
		idx := (i * 4) % 28
		val := binary.BigEndian.Uint32(hash[idx : idx+4])
		vector[i] = (float32(val)/float32(1<<31))*1 - 1
	}
	return embedder.Normalize(vector), nil
}

// Dimension returns the embedding dimension
func (m *MockEmbedder) Dimension() int {
	return m.dimension
}

// Provider returns the provider name
func (m *MockEmbedder) Provider() string {
	return "mock"
}

// Model returns the model name
func (m *MockEmbedder) Model() string {
	return "mock-v1"
}

// Close releases resources (no-op for mock)
func (m *MockEmbedder) Close() error {
	return nil
}
