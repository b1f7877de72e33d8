package database

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/tieubaoca/knowledge-be/types"
)

// MemoryStore is an in-process vector collection using brute-force cosine
// distance. Nothing survives a restart.
type MemoryStore struct {
	mu        sync.RWMutex
	created   bool
	dimension int
	records   map[string]types.StoredRecord
}

var _ VectorBackend = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]types.StoredRecord)}
}

func (s *MemoryStore) EnsureCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = true
	return nil
}

func (s *MemoryStore) Upsert(ctx context.Context, records []types.StoredRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dimension
	if len(s.records) == 0 {
		dim = 0
	}
	for _, r := range records {
		if dim == 0 {
			dim = len(r.Embedding)
		}
		if len(r.Embedding) != dim {
			return fmt.Errorf("record %s has dimension %d, collection uses %d", r.ID, len(r.Embedding), dim)
		}
	}
	for _, r := range records {
		r.Embedding = append([]float32(nil), r.Embedding...)
		s.records[r.ID] = r
	}
	s.dimension = dim
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, vector []float32, k int) ([]types.ScoredRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := make([]types.ScoredRecord, 0, len(s.records))
	for _, r := range s.records {
		if len(r.Embedding) != len(vector) {
			return nil, fmt.Errorf("query has dimension %d, collection uses %d", len(vector), len(r.Embedding))
		}
		rec := r
		rec.Embedding = nil
		hits = append(hits, types.ScoredRecord{StoredRecord: rec, Distance: cosineDistance(r.Embedding, vector)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]types.StoredRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.StoredRecord, 0, len(s.records))
	for _, r := range s.records {
		r.Embedding = nil
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.records, id)
	}
	if len(s.records) == 0 {
		s.dimension = 0
	}
	return nil
}

func (s *MemoryStore) Dimension(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) == 0 {
		return 0, nil
	}
	return s.dimension, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// cosineDistance returns 1 - cosine similarity. Zero vectors are at
// distance 1 from everything.
func cosineDistance(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return float32(1 - dot/(math.Sqrt(na)*math.Sqrt(nb)))
}
