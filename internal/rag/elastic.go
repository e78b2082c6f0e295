package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/embedding/dashscope"
	"github.com/cloudwego/eino-ext/components/retriever/es8"
	"github.com/cloudwego/eino-ext/components/retriever/es8/search_mode"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/elastic/go-elasticsearch/v8"
)

type ElasticConfig struct {
	URL         string
	Username    string
	Password    string
	Index       string
	VectorField string
	TopK        int

	EmbeddingAPIKey string
	EmbeddingModel  string
}

// NewElasticRetriever builds a dense-vector retriever over the legal corpus
// index. Documents are expected to carry a "source" metadata field.
func NewElasticRetriever(ctx context.Context, cfg ElasticConfig) (retriever.Retriever, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("elasticsearch url not configured")
	}
	if cfg.EmbeddingAPIKey == "" {
		return nil, fmt.Errorf("embedding api key not configured")
	}

	embedder, err := dashscope.NewEmbedder(ctx, &dashscope.EmbeddingConfig{
		APIKey:  cfg.EmbeddingAPIKey,
		Model:   cfg.EmbeddingModel,
		Timeout: 30 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("create es client: %w", err)
	}

	topK := cfg.TopK
	if topK <= 0 {
		topK = 5
	}
	r, err := es8.NewRetriever(ctx, &es8.RetrieverConfig{
		Client:     client,
		Index:      cfg.Index,
		TopK:       topK,
		SearchMode: search_mode.SearchModeDenseVectorSimilarity(search_mode.DenseVectorSimilarityTypeCosineSimilarity, cfg.VectorField),
		Embedding:  embedder,
	})
	if err != nil {
		return nil, fmt.Errorf("create retriever: %w", err)
	}
	return r, nil
}
