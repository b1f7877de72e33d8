package database

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/fault"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.uber.org/zap"

	"github.com/tieubaoca/knowledge-be/config"
	"github.com/tieubaoca/knowledge-be/types"
)

const (
	BATCH_SIZE = 200
	LIST_PAGE  = 500

	DefaultWeaviateClass = "CompanyKnowledge"
)

// recordNamespace derives stable object UUIDs from record ids.
var recordNamespace = uuid.MustParse("6f1c6c1e-7d4a-4c53-9a55-3f0b8f1e2a90")

// WeaviateStore keeps records in one Weaviate class. Vectors are supplied by
// the caller, the class has no vectorizer.
type WeaviateStore struct {
	client    *weaviate.Client
	className string
	logger    *zap.Logger
}

var _ VectorBackend = (*WeaviateStore)(nil)

func NewWeaviateStore(cfg config.WeaviateConfig, className string, logger *zap.Logger) (*WeaviateStore, error) {
	var scheme string
	if strings.HasPrefix(cfg.Host, "https") {
		scheme = "https"
	} else {
		scheme = "http"
	}
	host := strings.TrimPrefix(cfg.Host, scheme+"://")
	wcfg := weaviate.Config{
		Host:   host,
		Scheme: scheme,
	}
	if cfg.APIKey != "" {
		wcfg.AuthConfig = auth.ApiKey{
			Value: cfg.APIKey,
		}
		wcfg.Headers = map[string]string{
			"X-Weaviate-Api-Key":     cfg.APIKey,
			"X-Weaviate-Cluster-Url": fmt.Sprintf("%s://%s", scheme, host),
		}
	}
	client, err := weaviate.NewClient(wcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}
	if className == "" {
		className = DefaultWeaviateClass
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WeaviateStore{
		client:    client,
		className: className,
		logger:    logger,
	}, nil
}

func (s *WeaviateStore) classObject() *models.Class {
	return &models.Class{
		Class: s.className,
		Properties: []*models.Property{
			{Name: "recordId", DataType: []string{"text"}},
			{Name: "content", DataType: []string{"text"}},
			{Name: "fileName", DataType: []string{"text"}},
			{Name: "fileType", DataType: []string{"text"}},
			{Name: "chunkIndex", DataType: []string{"int"}},
			{Name: "pageNumber", DataType: []string{"int"}},
			{Name: "processedAt", DataType: []string{"date"}},
		},
		Vectorizer:      "none",
		VectorIndexType: "hnsw",
		VectorIndexConfig: map[string]interface{}{
			"distance": "cosine",
		},
	}
}

func (s *WeaviateStore) EnsureCollection(ctx context.Context) error {
	exists, err := s.client.Schema().ClassExistenceChecker().WithClassName(s.className).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to check class %s: %w", s.className, err)
	}
	if exists {
		return nil
	}
	err = s.client.Schema().ClassCreator().WithClass(s.classObject()).Do(ctx)
	if err != nil {
		// Another instance may have created it in the meantime.
		if exists, cerr := s.client.Schema().ClassExistenceChecker().WithClassName(s.className).Do(ctx); cerr == nil && exists {
			return nil
		}
		return fmt.Errorf("failed to create class %s: %w", s.className, err)
	}
	s.logger.Info("created weaviate class", zap.String("class", s.className))
	return nil
}

func objectID(recordID string) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(recordNamespace, []byte(recordID)).String())
}

func (s *WeaviateStore) Upsert(ctx context.Context, records []types.StoredRecord) error {
	total := len(records)
	for i := 0; i < total; i += BATCH_SIZE {
		end := i + BATCH_SIZE
		if end > total {
			end = total
		}

		batcher := s.client.Batch().ObjectsBatcher()
		for _, r := range records[i:end] {
			batcher = batcher.WithObjects(&models.Object{
				Class: s.className,
				ID:    objectID(r.ID),
				Properties: map[string]interface{}{
					"recordId":    r.ID,
					"content":     r.Text,
					"fileName":    r.Metadata.FileName,
					"fileType":    r.Metadata.FileType,
					"chunkIndex":  r.Metadata.ChunkIndex,
					"pageNumber":  r.Metadata.PageNumber,
					"processedAt": r.Metadata.ProcessedAt.UTC().Format(time.RFC3339Nano),
				},
				Vector: r.Embedding,
			})
		}

		resp, err := batcher.Do(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert batch %d-%d: %w", i, end, err)
		}
		for _, obj := range resp {
			if obj.Result != nil && obj.Result.Errors != nil && len(obj.Result.Errors.Error) > 0 {
				return fmt.Errorf("failed to insert object %s: %s", obj.ID, obj.Result.Errors.Error[0].Message)
			}
		}
		s.logger.Debug("inserted batch", zap.Int("from", i), zap.Int("to", end), zap.Int("total", total))
	}
	return nil
}

func (s *WeaviateStore) fields(additional ...string) []graphql.Field {
	extra := make([]graphql.Field, 0, len(additional))
	for _, name := range additional {
		extra = append(extra, graphql.Field{Name: name})
	}
	return []graphql.Field{
		{Name: "recordId"},
		{Name: "content"},
		{Name: "fileName"},
		{Name: "fileType"},
		{Name: "chunkIndex"},
		{Name: "pageNumber"},
		{Name: "processedAt"},
		{Name: "_additional", Fields: extra},
	}
}

func (s *WeaviateStore) Query(ctx context.Context, vector []float32, k int) ([]types.ScoredRecord, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vector)
	result, err := s.client.GraphQL().Get().
		WithClassName(s.className).
		WithFields(s.fields("id", "distance")...).
		WithNearVector(nearVector).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("search failed: %s", result.Errors[0].Message)
	}

	items := s.items(result.Data)
	hits := make([]types.ScoredRecord, 0, len(items))
	for _, item := range items {
		hit := types.ScoredRecord{StoredRecord: parseRecord(item)}
		if additional, ok := item["_additional"].(map[string]interface{}); ok {
			if d, ok := additional["distance"].(float64); ok {
				hit.Distance = float32(d)
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// List pages through the class with an id cursor.
func (s *WeaviateStore) List(ctx context.Context) ([]types.StoredRecord, error) {
	var (
		out   []types.StoredRecord
		after string
	)
	for {
		get := s.client.GraphQL().Get().
			WithClassName(s.className).
			WithFields(s.fields("id")...).
			WithLimit(LIST_PAGE)
		if after != "" {
			get = get.WithAfter(after)
		}
		result, err := get.Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("list failed: %w", err)
		}
		if len(result.Errors) > 0 {
			return nil, fmt.Errorf("list failed: %s", result.Errors[0].Message)
		}

		items := s.items(result.Data)
		for _, item := range items {
			out = append(out, parseRecord(item))
			if additional, ok := item["_additional"].(map[string]interface{}); ok {
				after, _ = additional["id"].(string)
			}
		}
		if len(items) < LIST_PAGE {
			return out, nil
		}
	}
}

func (s *WeaviateStore) Delete(ctx context.Context, ids []string) error {
	for _, id := range ids {
		err := s.client.Data().Deleter().
			WithClassName(s.className).
			WithID(objectID(id).String()).
			Do(ctx)
		if err != nil && !isNotFound(err) {
			return fmt.Errorf("failed to delete %s: %w", id, err)
		}
	}
	return nil
}

func (s *WeaviateStore) Dimension(ctx context.Context) (int, error) {
	result, err := s.client.GraphQL().Get().
		WithClassName(s.className).
		WithFields(s.fields("id", "vector")...).
		WithLimit(1).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("dimension lookup failed: %w", err)
	}
	if len(result.Errors) > 0 {
		return 0, fmt.Errorf("dimension lookup failed: %s", result.Errors[0].Message)
	}
	for _, item := range s.items(result.Data) {
		if additional, ok := item["_additional"].(map[string]interface{}); ok {
			if vec, ok := additional["vector"].([]interface{}); ok {
				return len(vec), nil
			}
		}
	}
	return 0, nil
}

func (s *WeaviateStore) Close() error {
	return nil
}

func (s *WeaviateStore) items(data map[string]models.JSONObject) []map[string]interface{} {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := get[s.className].([]interface{})
	if !ok {
		return nil
	}
	items := make([]map[string]interface{}, 0, len(raw))
	for _, r := range raw {
		if item, ok := r.(map[string]interface{}); ok {
			items = append(items, item)
		}
	}
	return items
}

func parseRecord(item map[string]interface{}) types.StoredRecord {
	rec := types.StoredRecord{
		ID:   parseString(item["recordId"]),
		Text: parseString(item["content"]),
		Metadata: types.RecordMetadata{
			FileName:   parseString(item["fileName"]),
			FileType:   parseString(item["fileType"]),
			ChunkIndex: parseInt(item["chunkIndex"]),
			PageNumber: parseInt(item["pageNumber"]),
		},
	}
	if ts, err := time.Parse(time.RFC3339Nano, parseString(item["processedAt"])); err == nil {
		rec.Metadata.ProcessedAt = ts
	}
	return rec
}

// Helper functions
func parseString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func parseInt(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}

func isNotFound(err error) bool {
	var clientErr *fault.WeaviateClientError
	return errors.As(err, &clientErr) && clientErr.StatusCode == http.StatusNotFound
}
