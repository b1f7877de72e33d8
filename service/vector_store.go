package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tieubaoca/knowledge-be/database"
	"github.com/tieubaoca/knowledge-be/types"
)

// VectorStore adds id assignment, embedding and consistency checks on top
// of a VectorBackend.
type VectorStore struct {
	backend  database.VectorBackend
	embedder Embedder
	registry database.UploadRegistry
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu          sync.Mutex
	initialized bool

	seq atomic.Uint64
}

type VectorStoreOption func(*VectorStore)

// WithStoreTimeout bounds every backend call.
func WithStoreTimeout(d time.Duration) VectorStoreOption {
	return func(s *VectorStore) {
		s.timeout = d
	}
}

func WithStoreLogger(logger *zap.Logger) VectorStoreOption {
	return func(s *VectorStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithRegistry(registry database.UploadRegistry) VectorStoreOption {
	return func(s *VectorStore) {
		if registry != nil {
			s.registry = registry
		}
	}
}

func NewVectorStore(backend database.VectorBackend, embedder Embedder, opts ...VectorStoreOption) *VectorStore {
	s := &VectorStore{
		backend:  backend,
		embedder: embedder,
		registry: database.NewMemoryRegistry(),
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *VectorStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

func storageError(op string, err error) error {
	if errors.Is(err, types.ErrStorage) {
		return err
	}
	return types.NewError(op, types.ErrStorage, err)
}

// Initialize gets or creates the collection. Concurrent callers wait for the
// first one; a failed attempt is retried by the next caller.
func (s *VectorStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}

	cctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.backend.EnsureCollection(cctx); err != nil {
		return storageError("vectorstore.initialize", err)
	}
	s.initialized = true
	s.logger.Info("vector store initialized")
	return nil
}

// nextID returns ids that sort in insertion order within the process.
func (s *VectorStore) nextID() string {
	return fmt.Sprintf("doc_%013d_%010d", s.now().UnixMilli(), s.seq.Add(1))
}

// AddDocuments embeds and stores the chunks in one batch. Blank chunks are
// skipped. On a failed insert the ids written by this call are removed.
func (s *VectorStore) AddDocuments(ctx context.Context, docs []types.DocumentChunk) (int, error) {
	if err := s.Initialize(ctx); err != nil {
		return 0, err
	}

	valid := make([]types.DocumentChunk, 0, len(docs))
	for i, doc := range docs {
		if strings.TrimSpace(doc.Content) == "" {
			s.logger.Warn("skipping empty chunk", zap.Int("position", i), zap.String("file", doc.Metadata.FileName))
			continue
		}
		valid = append(valid, doc)
	}
	if len(valid) == 0 {
		return 0, types.NewError("vectorstore.add", types.ErrNoValidDocuments, nil)
	}

	texts := make([]string, len(valid))
	for i, doc := range valid {
		texts[i] = doc.Content
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, err
	}

	if err := s.checkDimension(ctx, len(vectors[0])); err != nil {
		return 0, err
	}

	records := make([]types.StoredRecord, len(valid))
	ids := make([]string, len(valid))
	for i, doc := range valid {
		ids[i] = s.nextID()
		records[i] = types.StoredRecord{
			ID:        ids[i],
			Embedding: vectors[i],
			Text:      doc.Content,
			Metadata:  doc.Metadata,
		}
	}

	cctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.backend.Upsert(cctx, records); err != nil {
		s.rollback(ids)
		return 0, storageError("vectorstore.add", err)
	}

	s.logger.Info("added documents", zap.Int("count", len(records)))
	return len(records), nil
}

func (s *VectorStore) checkDimension(ctx context.Context, dim int) error {
	cctx, cancel := s.withTimeout(ctx)
	defer cancel()
	existing, err := s.backend.Dimension(cctx)
	if err != nil {
		return storageError("vectorstore.dimension", err)
	}
	if existing != 0 && existing != dim {
		return types.NewError("vectorstore.add", types.ErrDimensionMismatch,
			fmt.Errorf("collection uses %d, embedder returned %d", existing, dim))
	}
	return nil
}

// rollback runs detached from the request context, which may be the reason
// the insert failed.
func (s *VectorStore) rollback(ids []string) {
	ctx, cancel := s.withTimeout(context.Background())
	defer cancel()
	if err := s.backend.Delete(ctx, ids); err != nil {
		s.logger.Error("rollback after failed insert", zap.Int("count", len(ids)), zap.Error(err))
	}
}

// QueryDocuments returns the k records closest to question, nearest first.
// Equal distances are ordered by id.
func (s *VectorStore) QueryDocuments(ctx context.Context, question string, k int) (*types.QueryResult, error) {
	if k < 1 {
		return nil, types.NewError("vectorstore.query", types.ErrInvalidInput, fmt.Errorf("k must be at least 1, got %d", k))
	}
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}

	vector, err := s.embedder.EmbedOne(ctx, question)
	if err != nil {
		return nil, err
	}

	cctx, cancel := s.withTimeout(ctx)
	defer cancel()
	hits, err := s.backend.Query(cctx, vector, k)
	if err != nil {
		return nil, storageError("vectorstore.query", err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}

	result := &types.QueryResult{
		IDs:       make([]string, 0, len(hits)),
		Contexts:  make([]string, 0, len(hits)),
		Metadatas: make([]types.RecordMetadata, 0, len(hits)),
		Distances: make([]float32, 0, len(hits)),
	}
	for _, hit := range hits {
		result.IDs = append(result.IDs, hit.ID)
		result.Contexts = append(result.Contexts, hit.Text)
		result.Metadatas = append(result.Metadatas, hit.Metadata)
		result.Distances = append(result.Distances, hit.Distance)
	}
	return result, nil
}

// GetStats never fails. Backend errors are reported in the Status field.
func (s *VectorStore) GetStats(ctx context.Context) types.Stats {
	stats := types.Stats{
		DocumentTypes: map[string]int{},
		Status:        types.StatusOK,
	}

	records, err := s.list(ctx)
	if err != nil {
		s.logger.Error("failed to collect stats", zap.Error(err))
		stats.Status = types.StatusError
		stats.Error = err.Error()
		return stats
	}

	stats.TotalDocuments = len(records)
	for _, r := range records {
		stats.DocumentTypes[r.Metadata.FileType]++
		if r.Metadata.ProcessedAt.After(stats.LastUpdated) {
			stats.LastUpdated = r.Metadata.ProcessedAt
		}
	}
	return stats
}

func (s *VectorStore) list(ctx context.Context) ([]types.StoredRecord, error) {
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}
	cctx, cancel := s.withTimeout(ctx)
	defer cancel()
	records, err := s.backend.List(cctx)
	if err != nil {
		return nil, storageError("vectorstore.list", err)
	}
	return records, nil
}

func (s *VectorStore) IsFileUploaded(ctx context.Context, fileName string) (bool, error) {
	ok, err := s.registry.Contains(ctx, fileName)
	if err != nil {
		return false, storageError("vectorstore.registry", err)
	}
	return ok, nil
}

// RecordFileUpload reserves fileName. It returns ErrDuplicateFile when the
// name is already taken.
func (s *VectorStore) RecordFileUpload(ctx context.Context, fileName string) error {
	added, err := s.registry.Add(ctx, fileName)
	if err != nil {
		return storageError("vectorstore.registry", err)
	}
	if !added {
		return types.NewError("vectorstore.registry", types.ErrDuplicateFile, fmt.Errorf("%s", fileName))
	}
	return nil
}

func (s *VectorStore) ReleaseFileUpload(ctx context.Context, fileName string) error {
	if err := s.registry.Remove(ctx, fileName); err != nil {
		return storageError("vectorstore.registry", err)
	}
	return nil
}

// ClearAllData deletes every record and forgets every uploaded file name.
func (s *VectorStore) ClearAllData(ctx context.Context) (int, error) {
	records, err := s.list(ctx)
	if err != nil {
		return 0, err
	}

	if len(records) > 0 {
		ids := make([]string, len(records))
		for i, r := range records {
			ids[i] = r.ID
		}
		cctx, cancel := s.withTimeout(ctx)
		defer cancel()
		if err := s.backend.Delete(cctx, ids); err != nil {
			return 0, storageError("vectorstore.clear", err)
		}
	}

	if err := s.registry.Reset(ctx); err != nil {
		return 0, storageError("vectorstore.clear", err)
	}
	s.logger.Info("cleared all data", zap.Int("deleted", len(records)))
	return len(records), nil
}
