package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode"

	"github.com/tieubaoca/knowledge-be/database"
	"github.com/tieubaoca/knowledge-be/types"
)

// letterProvider embeds a text as its letter histogram, which is enough to
// make texts about different things land far apart.
type letterProvider struct {
	mu        sync.Mutex
	calls     int
	batches   [][]string
	maxBatch  int
	fixed     map[string][]float32
	err       error
	dimension int
}

func newLetterProvider() *letterProvider {
	return &letterProvider{maxBatch: 100, fixed: map[string][]float32{}, dimension: 26}
}

func (p *letterProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	p.calls++
	p.batches = append(p.batches, append([]string(nil), texts...))
	err := p.err
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if vec, ok := p.fixed[text]; ok {
			out[i] = vec
			continue
		}
		vec := make([]float32, p.dimension)
		for _, r := range strings.ToLower(text) {
			if r >= 'a' && r <= 'z' && int(r-'a') < p.dimension {
				vec[r-'a']++
			} else if unicode.IsDigit(r) {
				vec[0] += 0.5
			}
		}
		vec[p.dimension-1] += 0.01
		out[i] = vec
	}
	return out, nil
}

func (p *letterProvider) MaxBatchSize() int { return p.maxBatch }

type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	answer  string
	err     error
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

// flakyBackend wraps a MemoryStore and fails selected calls.
type flakyBackend struct {
	*database.MemoryStore
	mu          sync.Mutex
	ensureCalls int
	ensureErr   error
	upsertErr   error
	listErr     error
	queryErr    error
	deleted     [][]string
}

func newFlakyBackend() *flakyBackend {
	return &flakyBackend{MemoryStore: database.NewMemoryStore()}
}

func (b *flakyBackend) EnsureCollection(ctx context.Context) error {
	b.mu.Lock()
	b.ensureCalls++
	err := b.ensureErr
	b.mu.Unlock()
	if err != nil {
		return err
	}
	return b.MemoryStore.EnsureCollection(ctx)
}

func (b *flakyBackend) Upsert(ctx context.Context, records []types.StoredRecord) error {
	if b.upsertErr != nil {
		return b.upsertErr
	}
	return b.MemoryStore.Upsert(ctx, records)
}

func (b *flakyBackend) Query(ctx context.Context, vector []float32, k int) ([]types.ScoredRecord, error) {
	if b.queryErr != nil {
		return nil, b.queryErr
	}
	return b.MemoryStore.Query(ctx, vector, k)
}

func (b *flakyBackend) List(ctx context.Context) ([]types.StoredRecord, error) {
	if b.listErr != nil {
		return nil, b.listErr
	}
	return b.MemoryStore.List(ctx)
}

func (b *flakyBackend) Delete(ctx context.Context, ids []string) error {
	b.mu.Lock()
	b.deleted = append(b.deleted, append([]string(nil), ids...))
	b.mu.Unlock()
	return b.MemoryStore.Delete(ctx, ids)
}

var errUnavailable = errors.New("connection refused")
