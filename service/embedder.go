package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tieubaoca/knowledge-be/types"
)

// Embedder turns texts into vectors, one per input and in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingProvider is a remote embedding model.
type EmbeddingProvider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	MaxBatchSize() int
}

// BatchEmbedder splits requests into provider sized batches and runs them
// concurrently.
type BatchEmbedder struct {
	provider    EmbeddingProvider
	batchSize   int
	concurrency int
	timeout     time.Duration
	logger      *zap.Logger
}

type BatchEmbedderOption func(*BatchEmbedder)

func WithBatchSize(n int) BatchEmbedderOption {
	return func(e *BatchEmbedder) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

func WithConcurrency(n int) BatchEmbedderOption {
	return func(e *BatchEmbedder) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithEmbedTimeout bounds every sub-batch call.
func WithEmbedTimeout(d time.Duration) BatchEmbedderOption {
	return func(e *BatchEmbedder) {
		e.timeout = d
	}
}

func WithEmbedderLogger(logger *zap.Logger) BatchEmbedderOption {
	return func(e *BatchEmbedder) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func NewBatchEmbedder(provider EmbeddingProvider, opts ...BatchEmbedderOption) *BatchEmbedder {
	e := &BatchEmbedder{
		provider:    provider,
		batchSize:   provider.MaxBatchSize(),
		concurrency: 4,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if limit := provider.MaxBatchSize(); limit > 0 && e.batchSize > limit {
		e.batchSize = limit
	}
	if e.batchSize <= 0 {
		e.batchSize = 1
	}
	return e
}

func (e *BatchEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		start := start
		g.Go(func() error {
			return e.embedBatch(gctx, texts[start:end], out[start:end])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dim := len(out[0])
	for i, vec := range out {
		if len(vec) != dim {
			return nil, types.NewError("embedder.embed", types.ErrEmbedding,
				fmt.Errorf("vector %d has dimension %d, expected %d", i, len(vec), dim))
		}
	}
	return out, nil
}

func (e *BatchEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *BatchEmbedder) embedBatch(ctx context.Context, texts []string, dst [][]float32) error {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	vecs, err := e.provider.EmbedBatch(ctx, texts)
	if err != nil {
		e.logger.Warn("embedding batch failed", zap.Int("size", len(texts)), zap.Error(err))
		if errors.Is(err, types.ErrEmbedding) {
			return err
		}
		return types.NewError("embedder.embed", types.ErrEmbedding, err)
	}
	if len(vecs) != len(texts) {
		return types.NewError("embedder.embed", types.ErrEmbedding,
			fmt.Errorf("provider returned %d vectors for %d texts", len(vecs), len(texts)))
	}
	for i, vec := range vecs {
		if len(vec) == 0 {
			return types.NewError("embedder.embed", types.ErrEmbedding, fmt.Errorf("empty vector at position %d", i))
		}
		dst[i] = vec
	}
	return nil
}
