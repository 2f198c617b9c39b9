package testutils

import (
	"context"

	"github.com/halfmoonlabs/engram/pkg/vector"
)

// MockVectorDriver is a test vector driver
type MockVectorDriver struct {
	Chunks  []vector.Chunk
	Results []vector.Result
}

func NewMockVectorDriver() *MockVectorDriver {
	return &MockVectorDriver{
		Chunks:  make([]vector.Chunk, 0),
		Results: make([]vector.Result, 0),
	}
}

func (m *MockVectorDriver) Upsert(_ context.Context, chunks []vector.Chunk) error {
	m.Chunks = append(m.Chunks, chunks...)
	return nil
}

func (m *MockVectorDriver) Search(_ context.Context, _ string, _ []float32, _ string, topK int) ([]vector.Result, error) {
	if len(m.Results) < topK {
		return m.Results, nil
	}
	return m.Results[:topK], nil
}

func (m *MockVectorDriver) ListByStatus(_ context.Context, ownerID string, status vector.Status) ([]vector.Chunk, error) {
	var out []vector.Chunk
	for _, c := range m.Chunks {
		if c.OwnerID == ownerID && c.Status == status {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MockVectorDriver) DeleteOwner(_ context.Context, ownerID string) error {
	kept := m.Chunks[:0]
	for _, c := range m.Chunks {
		if c.OwnerID != ownerID {
			kept = append(kept, c)
		}
	}
	m.Chunks = kept
	return nil
}

func (m *MockVectorDriver) Close() error {
	return nil
}
