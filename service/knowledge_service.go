package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tieubaoca/knowledge-be/types"
)

const DefaultTopK = 5

// KnowledgeService runs ingestion and question answering.
type KnowledgeService struct {
	extractor DocumentExtractor
	chunker   *Chunker
	store     *VectorStore
	generator GenerationProvider
	prompts   *PromptAssembler
	topK      int
	timeout   time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

type KnowledgeOption func(*KnowledgeService)

func WithTopK(k int) KnowledgeOption {
	return func(s *KnowledgeService) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithGenerateTimeout bounds each generation call.
func WithGenerateTimeout(d time.Duration) KnowledgeOption {
	return func(s *KnowledgeService) {
		s.timeout = d
	}
}

func WithLogger(logger *zap.Logger) KnowledgeOption {
	return func(s *KnowledgeService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewKnowledgeService(
	extractor DocumentExtractor,
	chunker *Chunker,
	store *VectorStore,
	generator GenerationProvider,
	opts ...KnowledgeOption,
) *KnowledgeService {
	s := &KnowledgeService{
		extractor: extractor,
		chunker:   chunker,
		store:     store,
		generator: generator,
		prompts:   NewPromptAssembler(),
		topK:      DefaultTopK,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest extracts, chunks and stores a file. The file name is reserved before
// any work starts so two concurrent uploads of the same name cannot both
// succeed. The reservation is released when ingestion fails.
func (s *KnowledgeService) Ingest(ctx context.Context, file types.UploadedFile) (result *types.IngestResult, err error) {
	if strings.TrimSpace(file.FileName) == "" {
		return nil, types.NewError("knowledge.ingest", types.ErrInvalidInput, errors.New("file name is required"))
	}
	logger := s.logger.With(zap.String("file", file.FileName))
	uploadedAt := s.now()

	if err := s.store.RecordFileUpload(ctx, file.FileName); err != nil {
		return nil, err
	}
	defer func() {
		if err == nil {
			return
		}
		if rerr := s.store.ReleaseFileUpload(context.WithoutCancel(ctx), file.FileName); rerr != nil {
			logger.Error("failed to release upload reservation", zap.Error(rerr))
		}
	}()

	doc, err := s.extractor.Extract(ctx, file.Content, file.FileType, file.FileName)
	if err != nil {
		logger.Warn("extraction failed", zap.Error(err))
		return nil, err
	}

	chunks := s.chunker.Split(doc.Text)
	records := sourceChunks(chunks, doc.Metadata)

	count, err := s.store.AddDocuments(ctx, records)
	if err != nil {
		logger.Error("failed to store chunks", zap.Error(err))
		return nil, err
	}

	logger.Info("ingested document", zap.Int("chunks", count), zap.String("type", doc.Metadata.FileType))
	return &types.IngestResult{
		Success:    true,
		ChunkCount: count,
		Document: types.Document{
			FileName:   doc.Metadata.FileName,
			FileType:   doc.Metadata.FileType,
			UploadedAt: uploadedAt,
		},
		Metadata: doc.Metadata,
	}, nil
}

// sourceChunks stamps each chunk with its file, page and creation time and
// returns the records to store.
func sourceChunks(chunks []types.Chunk, meta types.DocumentMetadata) []types.DocumentChunk {
	records := make([]types.DocumentChunk, len(chunks))
	for i := range chunks {
		c := &chunks[i]
		c.SourceFileName = meta.FileName
		c.PageNumber = meta.PageAt(c.Offset)
		c.CreatedAt = meta.ProcessedAt
		records[i] = types.DocumentChunk{
			Content: c.Text,
			Metadata: types.RecordMetadata{
				FileName:    c.SourceFileName,
				FileType:    meta.FileType,
				ChunkIndex:  c.ChunkIndex,
				ProcessedAt: c.CreatedAt,
				PageNumber:  c.PageNumber,
			},
		}
	}
	return records
}

// Answer retrieves the closest contexts and asks the model once. Embedding
// and generation failures produce the fallback answer instead of an error.
func (s *KnowledgeService) Answer(ctx context.Context, question string) (*types.AnswerResult, error) {
	return s.AnswerTopK(ctx, question, s.topK)
}

func (s *KnowledgeService) AnswerTopK(ctx context.Context, question string, k int) (*types.AnswerResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, types.NewError("knowledge.answer", types.ErrInvalidInput, errors.New("question is required"))
	}

	res, err := s.store.QueryDocuments(ctx, question, k)
	if err != nil {
		return s.fallback(err)
	}

	prompt := s.prompts.Fill(AnswerTemplate, map[string]string{
		"context":  strings.Join(res.Contexts, "\n\n"),
		"question": question,
	})
	answer, err := s.generate(ctx, prompt)
	if err != nil {
		return s.fallback(err)
	}

	sources := make([]types.Source, len(res.Metadatas))
	for i, m := range res.Metadatas {
		sources[i] = types.Source{FileName: m.FileName, FileType: m.FileType, ProcessedAt: m.ProcessedAt}
	}
	return &types.AnswerResult{Answer: answer, Sources: sources}, nil
}

func (s *KnowledgeService) fallback(err error) (*types.AnswerResult, error) {
	if errors.Is(err, types.ErrEmbedding) || errors.Is(err, types.ErrGeneration) {
		s.logger.Error("answer degraded to fallback", zap.Error(err))
		return &types.AnswerResult{Answer: FallbackAnswer, Sources: []types.Source{}, Degraded: true}, nil
	}
	return nil, err
}

func (s *KnowledgeService) generate(ctx context.Context, prompt string) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	text, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return "", types.NewError("knowledge.generate", types.ErrGeneration, err)
	}
	return text, nil
}

// Summarize asks the model for a summary of content. Unlike Answer it
// reports generation failures to the caller.
func (s *KnowledgeService) Summarize(ctx context.Context, content string) (*types.SummaryResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, types.NewError("knowledge.summarize", types.ErrInvalidInput, errors.New("content is required"))
	}
	prompt := s.prompts.Fill(SummaryTemplate, map[string]string{"content": content})
	summary, err := s.generate(ctx, prompt)
	if err != nil {
		s.logger.Error("summary failed", zap.Error(err))
		return nil, err
	}
	return &types.SummaryResult{Summary: summary}, nil
}

// SummarizeFile extracts a file without storing it and summarizes the text.
func (s *KnowledgeService) SummarizeFile(ctx context.Context, file types.UploadedFile) (*types.SummaryResult, error) {
	doc, err := s.extractor.Extract(ctx, file.Content, file.FileType, file.FileName)
	if err != nil {
		return nil, err
	}
	return s.Summarize(ctx, doc.Text)
}

func (s *KnowledgeService) Stats(ctx context.Context) types.Stats {
	return s.store.GetStats(ctx)
}

func (s *KnowledgeService) ClearAllData(ctx context.Context) (*types.ClearResult, error) {
	n, err := s.store.ClearAllData(ctx)
	if err != nil {
		return nil, err
	}
	return &types.ClearResult{Success: true, DeletedCount: n}, nil
}
