package service

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tieubaoca/knowledge-be/types"
)

type knowledgeFixture struct {
	backend   *flakyBackend
	provider  *letterProvider
	generator *fakeGenerator
	store     *VectorStore
	service   *KnowledgeService
}

func newKnowledgeFixture(t *testing.T) *knowledgeFixture {
	t.Helper()
	chunker, err := NewChunker(types.ChunkerConfig{ChunkSize: 1000, ChunkOverlap: 200})
	require.NoError(t, err)

	f := &knowledgeFixture{
		backend:   newFlakyBackend(),
		provider:  newLetterProvider(),
		generator: &fakeGenerator{answer: "generated answer"},
	}
	logger := zaptest.NewLogger(t)
	f.store = NewVectorStore(f.backend, NewBatchEmbedder(f.provider), WithStoreLogger(logger))
	f.service = NewKnowledgeService(NewDocumentService(logger), chunker, f.store, f.generator, WithLogger(logger))
	return f
}

func textFile(name, content string) types.UploadedFile {
	return types.UploadedFile{FileName: name, FileType: "text/plain", Content: []byte(content)}
}

func policyText() string {
	return strings.TrimSpace(strings.Repeat(strings.Repeat("a", 98)+". ", 18))
}

func TestKnowledgeService_IngestAndRejectDuplicate(t *testing.T) {
	f := newKnowledgeFixture(t)
	ctx := context.Background()

	res, err := f.service.Ingest(ctx, textFile("policy.txt", policyText()))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.ChunkCount)
	assert.Equal(t, "policy.txt", res.Metadata.FileName)
	assert.Equal(t, "text/plain", res.Metadata.FileType)

	records, err := f.backend.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	first, second := records[0], records[1]
	assert.Equal(t, 0, first.Metadata.ChunkIndex)
	assert.Equal(t, 1, second.Metadata.ChunkIndex)
	assert.True(t, strings.HasPrefix(second.Text, first.Text[len(first.Text)-199:]))
	assert.False(t, first.Metadata.ProcessedAt.IsZero())

	calls := f.provider.calls
	_, err = f.service.Ingest(ctx, textFile("policy.txt", policyText()))
	assert.ErrorIs(t, err, types.ErrDuplicateFile)
	assert.Equal(t, calls, f.provider.calls, "duplicates are rejected before embedding")
	assert.Equal(t, 2, f.service.Stats(ctx).TotalDocuments)
}

func TestKnowledgeService_IngestReportsDocument(t *testing.T) {
	f := newKnowledgeFixture(t)
	uploadedAt := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	f.service.now = func() time.Time { return uploadedAt }

	res, err := f.service.Ingest(context.Background(), textFile("policy.txt", policyText()))
	require.NoError(t, err)

	assert.Equal(t, types.Document{FileName: "policy.txt", FileType: "text/plain", UploadedAt: uploadedAt}, res.Document)
}

func TestSourceChunks(t *testing.T) {
	processedAt := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	meta := types.DocumentMetadata{
		FileName:    "guide.pdf",
		FileType:    MIMEPDF,
		ProcessedAt: processedAt,
		Pages:       []types.PageSpan{{Number: 1, Offset: 0}, {Number: 2, Offset: 50}},
	}
	chunks := []types.Chunk{
		{Text: "first page", ChunkIndex: 0, Offset: 0},
		{Text: "second page", ChunkIndex: 1, Offset: 60},
	}

	records := sourceChunks(chunks, meta)

	require.Len(t, records, 2)
	for i, chunk := range chunks {
		assert.Equal(t, "guide.pdf", chunk.SourceFileName)
		assert.Equal(t, processedAt, chunk.CreatedAt)
		assert.Equal(t, i+1, chunk.PageNumber)

		md := records[i].Metadata
		assert.Equal(t, chunk.Text, records[i].Content)
		assert.Equal(t, types.RecordMetadata{
			FileName:    "guide.pdf",
			FileType:    MIMEPDF,
			ChunkIndex:  i,
			ProcessedAt: processedAt,
			PageNumber:  i + 1,
		}, md)
	}
}

func TestKnowledgeService_FailedIngestCanBeRetried(t *testing.T) {
	f := newKnowledgeFixture(t)
	ctx := context.Background()

	t.Run("extraction failure", func(t *testing.T) {
		_, err := f.service.Ingest(ctx, textFile("empty.txt", "   "))
		assert.ErrorIs(t, err, types.ErrExtraction)

		_, err = f.service.Ingest(ctx, textFile("empty.txt", "now with text"))
		assert.NoError(t, err)
	})

	t.Run("embedding failure", func(t *testing.T) {
		f.provider.err = errUnavailable
		_, err := f.service.Ingest(ctx, textFile("later.txt", "some content"))
		assert.ErrorIs(t, err, types.ErrEmbedding)
		assert.True(t, types.IsRetryable(err))

		f.provider.err = nil
		_, err = f.service.Ingest(ctx, textFile("later.txt", "some content"))
		assert.NoError(t, err)
	})

	t.Run("storage failure", func(t *testing.T) {
		f.backend.upsertErr = errUnavailable
		_, err := f.service.Ingest(ctx, textFile("store.txt", "stored content"))
		assert.ErrorIs(t, err, types.ErrStorage)

		f.backend.upsertErr = nil
		uploaded, err := f.store.IsFileUploaded(ctx, "store.txt")
		require.NoError(t, err)
		assert.False(t, uploaded)
	})

	t.Run("unsupported type", func(t *testing.T) {
		_, err := f.service.Ingest(ctx, types.UploadedFile{FileName: "x.png", FileType: "image/png", Content: []byte{0x89, 'P', 'N', 'G'}})
		assert.ErrorIs(t, err, types.ErrUnsupportedType)
	})
}

func TestKnowledgeService_ConcurrentSameNameIngest(t *testing.T) {
	f := newKnowledgeFixture(t)

	var ok, dup int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Ingest(context.Background(), textFile("race.txt", "concurrent upload body"))
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case assert.ErrorIs(t, err, types.ErrDuplicateFile):
				atomic.AddInt32(&dup, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok)
	assert.Equal(t, int32(7), dup)
	assert.Equal(t, 1, f.service.Stats(context.Background()).TotalDocuments)
}

func TestKnowledgeService_AnswerUsesBestAvailableContext(t *testing.T) {
	f := newKnowledgeFixture(t)
	ctx := context.Background()
	_, err := f.service.Ingest(ctx, textFile("menu.txt", "Cafeteria menu. Monday: lentil soup. Tuesday: grilled fish."))
	require.NoError(t, err)

	res, err := f.service.Answer(ctx, "What is the refund policy?")
	require.NoError(t, err)

	assert.Equal(t, "generated answer", res.Answer)
	assert.False(t, res.Degraded)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, "menu.txt", res.Sources[0].FileName)
	assert.Equal(t, "text/plain", res.Sources[0].FileType)

	require.Len(t, f.generator.prompts, 1)
	prompt := f.generator.prompts[0]
	assert.Contains(t, prompt, "Cafeteria menu. Monday: lentil soup.")
	assert.Contains(t, prompt, "Question: What is the refund policy?")
	assert.Empty(t, NewPromptAssembler().Unresolved(prompt, nil))
}

func TestKnowledgeService_AnswerJoinsContextsInRankOrder(t *testing.T) {
	f := newKnowledgeFixture(t)
	ctx := context.Background()
	_, err := f.service.Ingest(ctx, textFile("a.txt", "zzzz zzzz"))
	require.NoError(t, err)
	_, err = f.service.Ingest(ctx, textFile("b.txt", "refund refund policy"))
	require.NoError(t, err)

	res, err := f.service.Answer(ctx, "refund policy")
	require.NoError(t, err)

	require.Len(t, res.Sources, 2)
	assert.Equal(t, "b.txt", res.Sources[0].FileName)
	assert.Contains(t, f.generator.prompts[0], "refund refund policy\n\nzzzz zzzz")
}

func TestKnowledgeService_AnswerWithEmptyStore(t *testing.T) {
	f := newKnowledgeFixture(t)

	res, err := f.service.Answer(context.Background(), "Anything?")
	require.NoError(t, err)

	assert.Equal(t, "generated answer", res.Answer)
	assert.Empty(t, res.Sources)
	require.Len(t, f.generator.prompts, 1)
	assert.Contains(t, f.generator.prompts[0], "Context:\n\n\nQuestion: Anything?")
}

func TestKnowledgeService_AnswerFallback(t *testing.T) {
	ctx := context.Background()

	t.Run("generation failure", func(t *testing.T) {
		f := newKnowledgeFixture(t)
		f.generator.err = errUnavailable

		res, err := f.service.Answer(ctx, "question")
		require.NoError(t, err)
		assert.Equal(t, FallbackAnswer, res.Answer)
		assert.True(t, res.Degraded)
		assert.Empty(t, res.Sources)
	})

	t.Run("embedding failure", func(t *testing.T) {
		f := newKnowledgeFixture(t)
		f.provider.err = errUnavailable

		res, err := f.service.Answer(ctx, "question")
		require.NoError(t, err)
		assert.Equal(t, FallbackAnswer, res.Answer)
		assert.Empty(t, f.generator.prompts)
	})

	t.Run("storage failure propagates", func(t *testing.T) {
		f := newKnowledgeFixture(t)
		f.backend.queryErr = errUnavailable

		_, err := f.service.Answer(ctx, "question")
		assert.ErrorIs(t, err, types.ErrStorage)
	})

	t.Run("empty question", func(t *testing.T) {
		f := newKnowledgeFixture(t)

		_, err := f.service.Answer(ctx, "  ")
		assert.ErrorIs(t, err, types.ErrInvalidInput)
	})
}

func TestKnowledgeService_Summarize(t *testing.T) {
	f := newKnowledgeFixture(t)
	f.generator.answer = "short summary"
	ctx := context.Background()

	res, err := f.service.Summarize(ctx, "Long document body.")
	require.NoError(t, err)
	assert.Equal(t, "short summary", res.Summary)
	assert.Contains(t, f.generator.prompts[0], "Long document body.")

	res, err = f.service.SummarizeFile(ctx, textFile("doc.txt", "File body."))
	require.NoError(t, err)
	assert.Equal(t, "short summary", res.Summary)
	assert.Zero(t, f.service.Stats(ctx).TotalDocuments, "summaries are not stored")

	f.generator.err = errUnavailable
	_, err = f.service.Summarize(ctx, "body")
	assert.ErrorIs(t, err, types.ErrGeneration)
}

func TestKnowledgeService_ClearAllData(t *testing.T) {
	f := newKnowledgeFixture(t)
	ctx := context.Background()
	_, err := f.service.Ingest(ctx, textFile("policy.txt", policyText()))
	require.NoError(t, err)

	res, err := f.service.ClearAllData(ctx)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.DeletedCount)
	assert.Zero(t, f.service.Stats(ctx).TotalDocuments)

	_, err = f.service.Ingest(ctx, textFile("policy.txt", policyText()))
	assert.NoError(t, err, "clearing forgets uploaded names")
}
