package ark

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/Rrens/bi-genie/internal/config"
	"github.com/Rrens/bi-genie/internal/llm"
)

type chatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Provider implements llm.Provider on Volcengine Ark through eino
type Provider struct {
	model     string
	chatModel chatModel
}

// NewProvider builds the eino Ark chat model from configuration
func NewProvider(ctx context.Context, cfg config.ArkConfig) (*Provider, error) {
	var temperature float32 = 0
	maxTokens := 2048

	cm, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     cfg.BaseURL,
		Region:      cfg.Region,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ark chat model: %w", err)
	}
	return &Provider{model: cfg.Model, chatModel: cm}, nil
}

func (p *Provider) Name() string {
	return "ark"
}

func (p *Provider) AvailableModels() []string {
	if p.model == "" {
		return nil
	}
	return []string{p.model}
}

func (p *Provider) DefaultModel() string {
	return p.model
}

func (p *Provider) IsConfigured() bool {
	return p.chatModel != nil && p.model != ""
}

// GenerateProposal sends system and user messages to the Ark endpoint.
// The endpoint is bound to one model at construction, so model is informational.
func (p *Provider) GenerateProposal(ctx context.Context, req llm.Request, model string) (*llm.Response, error) {
	if model == "" {
		model = p.model
	}

	messages := []*schema.Message{
		schema.SystemMessage(llm.SystemPrompt(req)),
		schema.UserMessage(llm.UserPrompt(req)),
	}

	start := time.Now()
	msg, err := p.chatModel.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("ark generation error: %w", err)
	}
	if msg == nil || msg.Content == "" {
		return nil, fmt.Errorf("empty response from ark")
	}

	tokens := 0
	if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
		tokens = msg.ResponseMeta.Usage.TotalTokens
	}

	return &llm.Response{
		Content:    msg.Content,
		Model:      model,
		TokensUsed: tokens,
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}
