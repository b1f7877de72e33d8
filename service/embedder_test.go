package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tieubaoca/knowledge-be/types"
)

type providerFunc func(ctx context.Context, texts []string) ([][]float32, error)

func (f providerFunc) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return f(ctx, texts)
}

func (f providerFunc) MaxBatchSize() int { return 2 }

func TestBatchEmbedder_PreservesOrderAcrossBatches(t *testing.T) {
	provider := providerFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, text := range texts {
			var n float32
			fmt.Sscanf(text, "t%f", &n)
			// later batches answer first
			time.Sleep(time.Duration(10-int(n)) * time.Millisecond)
			out[i] = []float32{n, 1}
		}
		return out, nil
	})
	e := NewBatchEmbedder(provider, WithConcurrency(4))

	texts := make([]string, 9)
	for i := range texts {
		texts[i] = fmt.Sprintf("t%d", i)
	}
	vecs, err := e.Embed(context.Background(), texts)

	require.NoError(t, err)
	require.Len(t, vecs, 9)
	for i, vec := range vecs {
		assert.Equal(t, float32(i), vec[0])
	}
}

func TestBatchEmbedder_RespectsProviderLimit(t *testing.T) {
	p := newLetterProvider()
	p.maxBatch = 3
	e := NewBatchEmbedder(p, WithBatchSize(10), WithConcurrency(1))

	_, err := e.Embed(context.Background(), []string{"a", "b", "c", "d", "e", "f", "g"})

	require.NoError(t, err)
	assert.Equal(t, 3, p.calls)
	for _, batch := range p.batches {
		assert.LessOrEqual(t, len(batch), 3)
	}
}

func TestBatchEmbedder_Empty(t *testing.T) {
	p := newLetterProvider()
	e := NewBatchEmbedder(p)

	vecs, err := e.Embed(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, vecs)
	assert.Zero(t, p.calls)
}

func TestBatchEmbedder_EmbedOne(t *testing.T) {
	p := newLetterProvider()
	e := NewBatchEmbedder(p)

	one, err := e.EmbedOne(context.Background(), "abc")
	require.NoError(t, err)
	many, err := e.Embed(context.Background(), []string{"abc"})
	require.NoError(t, err)

	assert.Equal(t, many[0], one)
}

func TestBatchEmbedder_Failures(t *testing.T) {
	tests := []struct {
		name     string
		provider providerFunc
	}{
		{
			name: "provider error",
			provider: func(ctx context.Context, texts []string) ([][]float32, error) {
				return nil, errUnavailable
			},
		},
		{
			name: "count mismatch",
			provider: func(ctx context.Context, texts []string) ([][]float32, error) {
				return [][]float32{{1}}, nil
			},
		},
		{
			name: "empty vector",
			provider: func(ctx context.Context, texts []string) ([][]float32, error) {
				return [][]float32{{1, 2}, {}}, nil
			},
		},
		{
			name: "mixed dimensions",
			provider: func(ctx context.Context, texts []string) ([][]float32, error) {
				out := make([][]float32, len(texts))
				for i, text := range texts {
					if text == "c" {
						out[i] = []float32{1, 2, 3}
					} else {
						out[i] = []float32{1, 2}
					}
				}
				return out, nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewBatchEmbedder(tt.provider)
			_, err := e.Embed(context.Background(), []string{"a", "b", "c"})
			assert.ErrorIs(t, err, types.ErrEmbedding)
			assert.True(t, types.IsRetryable(err))
		})
	}
}

func TestBatchEmbedder_Timeout(t *testing.T) {
	provider := providerFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	e := NewBatchEmbedder(provider, WithEmbedTimeout(20*time.Millisecond))

	_, err := e.Embed(context.Background(), []string{"a"})

	assert.ErrorIs(t, err, types.ErrEmbedding)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
