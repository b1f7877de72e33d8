package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const (
	DefaultGeminiModel          = "gemini-2.0-flash"
	DefaultGeminiEmbeddingModel = "text-embedding-004"

	geminiMaxBatchSize = 100
)

// GeminiService talks to the Gemini API. Requests failing with one key are
// retried once with the next configured key.
type GeminiService struct {
	apiKeys        []string
	currentKey     int
	client         *genai.Client
	modelName      string
	embeddingModel string
	logger         *zap.Logger
	mu             sync.Mutex
}

var _ AIService = (*GeminiService)(nil)

func NewGeminiService(apiKeys []string, modelName, embeddingModel string, logger *zap.Logger) (*GeminiService, error) {
	if len(apiKeys) == 0 {
		return nil, errors.New("no API keys provided")
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}
	if embeddingModel == "" {
		embeddingModel = DefaultGeminiEmbeddingModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	service := &GeminiService{
		apiKeys:        apiKeys,
		modelName:      modelName,
		embeddingModel: embeddingModel,
		logger:         logger,
	}
	if err := service.initClient(); err != nil {
		return nil, err
	}
	return service, nil
}

// initClient must be called with mu held.
func (s *GeminiService) initClient() error {
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(s.apiKeys[s.currentKey]))
	if err != nil {
		return fmt.Errorf("failed to create gemini client: %w", err)
	}
	s.client = client
	return nil
}

// rotateAPIKey switches to the next key unless another caller already did.
func (s *GeminiService) rotateAPIKey(failed *genai.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != failed || len(s.apiKeys) == 1 {
		return nil
	}
	s.currentKey = (s.currentKey + 1) % len(s.apiKeys)
	s.logger.Warn("rotating gemini api key", zap.Int("key_index", s.currentKey))
	if err := s.client.Close(); err != nil {
		s.logger.Warn("failed to close gemini client", zap.Error(err))
	}
	return s.initClient()
}

func (s *GeminiService) currentClient() *genai.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// withRotation runs fn and retries it once on a fresh key.
func (s *GeminiService) withRotation(ctx context.Context, fn func(*genai.Client) error) error {
	client := s.currentClient()
	err := fn(client)
	if err == nil || ctx.Err() != nil {
		return err
	}
	if rerr := s.rotateAPIKey(client); rerr != nil {
		return errors.Join(err, rerr)
	}
	return fn(s.currentClient())
}

func (s *GeminiService) Generate(ctx context.Context, prompt string) (string, error) {
	var resp *genai.GenerateContentResponse
	err := s.withRotation(ctx, func(client *genai.Client) error {
		var err error
		resp, err = client.GenerativeModel(s.modelName).GenerateContent(ctx, genai.Text(prompt))
		return err
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", errors.New("no response generated")
	}

	var content strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				content.WriteString(string(text))
			}
		}
	}
	return content.String(), nil
}

func (s *GeminiService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var res *genai.BatchEmbedContentsResponse
	err := s.withRotation(ctx, func(client *genai.Client) error {
		em := client.EmbeddingModel(s.embeddingModel)
		batch := em.NewBatch()
		for _, text := range texts {
			batch.AddContent(genai.Text(text))
		}
		var err error
		res, err = em.BatchEmbedContents(ctx, batch)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}

	vectors := make([][]float32, len(res.Embeddings))
	for i, emb := range res.Embeddings {
		if emb != nil {
			vectors[i] = emb.Values
		}
	}
	return vectors, nil
}

func (s *GeminiService) MaxBatchSize() int {
	return geminiMaxBatchSize
}

func (s *GeminiService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.Close()
}
