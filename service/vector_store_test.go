package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tieubaoca/knowledge-be/types"
)

func newTestStore(t *testing.T, backend *flakyBackend, provider *letterProvider) *VectorStore {
	t.Helper()
	return NewVectorStore(backend, NewBatchEmbedder(provider), WithStoreLogger(zaptest.NewLogger(t)))
}

func chunk(text, file, fileType string, idx int) types.DocumentChunk {
	return types.DocumentChunk{
		Content: text,
		Metadata: types.RecordMetadata{
			FileName:    file,
			FileType:    fileType,
			ChunkIndex:  idx,
			ProcessedAt: time.Date(2025, 5, 1, 10, idx, 0, 0, time.UTC),
		},
	}
}

func TestVectorStore_InitializeOnceUnderConcurrency(t *testing.T) {
	backend := newFlakyBackend()
	s := newTestStore(t, backend, newLetterProvider())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Initialize(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, backend.ensureCalls)
}

func TestVectorStore_InitializeRetriesAfterFailure(t *testing.T) {
	backend := newFlakyBackend()
	backend.ensureErr = errUnavailable
	s := newTestStore(t, backend, newLetterProvider())

	err := s.Initialize(context.Background())
	assert.ErrorIs(t, err, types.ErrStorage)

	backend.ensureErr = nil
	require.NoError(t, s.Initialize(context.Background()))
	assert.Equal(t, 2, backend.ensureCalls)
}

func TestVectorStore_AddDocuments(t *testing.T) {
	backend := newFlakyBackend()
	provider := newLetterProvider()
	s := newTestStore(t, backend, provider)
	ctx := context.Background()

	n, err := s.AddDocuments(ctx, []types.DocumentChunk{
		chunk("alpha text", "a.txt", "text/plain", 0),
		chunk("   ", "a.txt", "text/plain", 1),
		chunk("beta text", "a.txt", "text/plain", 2),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, provider.calls, "all chunks embed in one call")

	records, err := backend.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.NotEqual(t, records[0].ID, records[1].ID)
	assert.Equal(t, "alpha text", records[0].Text, "ids sort in insertion order")
}

func TestVectorStore_AddDocuments_UniqueIDsUnderConcurrency(t *testing.T) {
	backend := newFlakyBackend()
	s := newTestStore(t, backend, newLetterProvider())
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AddDocuments(context.Background(), []types.DocumentChunk{
				chunk("one", "f", "text/plain", 0),
				chunk("two", "f", "text/plain", 1),
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	records, err := backend.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 20)
}

func TestVectorStore_AddDocuments_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("no valid documents", func(t *testing.T) {
		provider := newLetterProvider()
		s := newTestStore(t, newFlakyBackend(), provider)

		_, err := s.AddDocuments(ctx, []types.DocumentChunk{chunk(" ", "a", "text/plain", 0), chunk("", "a", "text/plain", 1)})

		assert.ErrorIs(t, err, types.ErrNoValidDocuments)
		assert.Zero(t, provider.calls)
	})

	t.Run("embedding failure stores nothing", func(t *testing.T) {
		backend := newFlakyBackend()
		provider := newLetterProvider()
		provider.err = errUnavailable
		s := newTestStore(t, backend, provider)

		_, err := s.AddDocuments(ctx, []types.DocumentChunk{chunk("x", "a", "text/plain", 0)})

		assert.ErrorIs(t, err, types.ErrEmbedding)
		records, _ := backend.List(ctx)
		assert.Empty(t, records)
	})

	t.Run("insert failure rolls back", func(t *testing.T) {
		backend := newFlakyBackend()
		backend.upsertErr = errUnavailable
		s := newTestStore(t, backend, newLetterProvider())

		_, err := s.AddDocuments(ctx, []types.DocumentChunk{chunk("x", "a", "text/plain", 0), chunk("y", "a", "text/plain", 1)})

		assert.ErrorIs(t, err, types.ErrStorage)
		assert.ErrorIs(t, err, errUnavailable)
		require.Len(t, backend.deleted, 1)
		assert.Len(t, backend.deleted[0], 2)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		backend := newFlakyBackend()
		provider := newLetterProvider()
		s := newTestStore(t, backend, provider)
		_, err := s.AddDocuments(ctx, []types.DocumentChunk{chunk("x", "a", "text/plain", 0)})
		require.NoError(t, err)

		provider.dimension = 8
		_, err = s.AddDocuments(ctx, []types.DocumentChunk{chunk("y", "b", "text/plain", 0)})

		assert.ErrorIs(t, err, types.ErrDimensionMismatch)
	})
}

func TestVectorStore_QueryDocuments(t *testing.T) {
	backend := newFlakyBackend()
	provider := newLetterProvider()
	provider.fixed = map[string][]float32{
		"record one":   {1, 0, 0},
		"record two":   {0, 1, 0},
		"record three": {0, 0, 1},
		"question two": {0, 1, 0},
	}
	s := newTestStore(t, backend, provider)
	ctx := context.Background()

	_, err := s.AddDocuments(ctx, []types.DocumentChunk{
		chunk("record one", "a", "text/plain", 0),
		chunk("record two", "a", "text/plain", 1),
		chunk("record three", "a", "text/plain", 2),
	})
	require.NoError(t, err)

	t.Run("identical vector ranks first", func(t *testing.T) {
		res, err := s.QueryDocuments(ctx, "question two", 3)
		require.NoError(t, err)

		require.Equal(t, 3, res.Len())
		assert.Equal(t, "record two", res.Contexts[0])
		assert.InDelta(t, 0, res.Distances[0], 1e-6)
		assert.Equal(t, 1, res.Metadatas[0].ChunkIndex)
		// the other two are equidistant and ordered by id
		assert.Equal(t, "record one", res.Contexts[1])
		assert.Equal(t, "record three", res.Contexts[2])
	})

	t.Run("k larger than collection", func(t *testing.T) {
		res, err := s.QueryDocuments(ctx, "question two", 10)
		require.NoError(t, err)

		assert.Equal(t, 3, res.Len())
		assert.True(t, sort.SliceIsSorted(res.Distances, func(i, j int) bool { return res.Distances[i] < res.Distances[j] }))
	})

	t.Run("k below one", func(t *testing.T) {
		_, err := s.QueryDocuments(ctx, "question two", 0)
		assert.ErrorIs(t, err, types.ErrInvalidInput)
	})

	t.Run("storage failure", func(t *testing.T) {
		backend.queryErr = errUnavailable
		defer func() { backend.queryErr = nil }()

		_, err := s.QueryDocuments(ctx, "question two", 1)
		assert.ErrorIs(t, err, types.ErrStorage)
	})
}

func TestVectorStore_GetStats(t *testing.T) {
	backend := newFlakyBackend()
	s := newTestStore(t, backend, newLetterProvider())
	ctx := context.Background()

	empty := s.GetStats(ctx)
	assert.Equal(t, types.StatusOK, empty.Status)
	assert.Zero(t, empty.TotalDocuments)
	assert.True(t, empty.LastUpdated.IsZero())

	_, err := s.AddDocuments(ctx, []types.DocumentChunk{
		chunk("a", "a.pdf", "application/pdf", 0),
		chunk("b", "a.pdf", "application/pdf", 1),
		chunk("c", "c.txt", "text/plain", 3),
	})
	require.NoError(t, err)

	stats := s.GetStats(ctx)
	assert.Equal(t, 3, stats.TotalDocuments)
	assert.Equal(t, map[string]int{"application/pdf": 2, "text/plain": 1}, stats.DocumentTypes)
	assert.Equal(t, time.Date(2025, 5, 1, 10, 3, 0, 0, time.UTC), stats.LastUpdated)

	backend.listErr = errUnavailable
	failed := s.GetStats(ctx)
	assert.Equal(t, types.StatusError, failed.Status)
	assert.Zero(t, failed.TotalDocuments)
	assert.NotEmpty(t, failed.Error)
}

func TestVectorStore_GetStatsUninitialized(t *testing.T) {
	backend := newFlakyBackend()
	backend.ensureErr = errUnavailable
	s := newTestStore(t, backend, newLetterProvider())

	stats := s.GetStats(context.Background())

	assert.Equal(t, types.StatusError, stats.Status)
	assert.Zero(t, stats.TotalDocuments)
	assert.NotNil(t, stats.DocumentTypes)
}

func TestVectorStore_FileRegistry(t *testing.T) {
	s := newTestStore(t, newFlakyBackend(), newLetterProvider())
	ctx := context.Background()

	ok, err := s.IsFileUploaded(ctx, "a.pdf")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.RecordFileUpload(ctx, "a.pdf"))
	assert.ErrorIs(t, s.RecordFileUpload(ctx, "a.pdf"), types.ErrDuplicateFile)

	ok, _ = s.IsFileUploaded(ctx, "a.pdf")
	assert.True(t, ok)

	require.NoError(t, s.ReleaseFileUpload(ctx, "a.pdf"))
	ok, _ = s.IsFileUploaded(ctx, "a.pdf")
	assert.False(t, ok)
}

func TestVectorStore_ClearAllData(t *testing.T) {
	backend := newFlakyBackend()
	s := newTestStore(t, backend, newLetterProvider())
	ctx := context.Background()

	n, err := s.ClearAllData(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, s.RecordFileUpload(ctx, "a.txt"))
	_, err = s.AddDocuments(ctx, []types.DocumentChunk{chunk("a", "a.txt", "text/plain", 0), chunk("b", "a.txt", "text/plain", 1)})
	require.NoError(t, err)

	n, err = s.ClearAllData(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, s.GetStats(ctx).TotalDocuments)
	ok, _ := s.IsFileUploaded(ctx, "a.txt")
	assert.False(t, ok)

	backend.listErr = errUnavailable
	_, err = s.ClearAllData(ctx)
	assert.ErrorIs(t, err, types.ErrStorage)
}
