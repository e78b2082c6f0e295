package ai

import (
	"context"
	"errors"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
)

// NewOpenAIFactory serves OpenAI and any OpenAI-compatible endpoint
// (OpenRouter, DeepSeek, DashScope compatible mode) through baseURL.
func NewOpenAIFactory(apiKey, baseURL string, temperature float32) ModelFactory {
	return func(ctx context.Context, modelName string) (model.BaseChatModel, error) {
		if apiKey == "" {
			return nil, errors.New("openai: api key is required")
		}
		if modelName == "" {
			modelName = "gpt-4o"
		}
		t := temperature
		cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      apiKey,
			BaseURL:     baseURL,
			Model:       modelName,
			Temperature: &t,
		})
		if err != nil {
			return nil, err
		}
		return cm, nil
	}
}
