package deepseek

import (
	"github.com/Rrens/bi-genie/internal/llm"
	"github.com/Rrens/bi-genie/internal/llm/openai"
)

// NewProvider creates a DeepSeek provider; the API is OpenAI-compatible
func NewProvider(apiKey, defaultModel string) llm.Provider {
	if defaultModel == "" {
		defaultModel = "deepseek-chat"
	}
	return openai.New(openai.Options{
		Name:         "deepseek",
		APIKey:       apiKey,
		DefaultModel: defaultModel,
		BaseURL:      "https://api.deepseek.com/v1",
		Models:       []string{"deepseek-chat", "deepseek-reasoner"},
	})
}
