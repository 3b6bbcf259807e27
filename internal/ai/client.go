package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/dpxrk/Pactwise-sub001/internal/config"

	openai "github.com/sashabaranov/go-openai"
)

// Client 模型调用客户端
// Worker 端的 Agent 执行器通过它访问底层模型。
type Client struct {
	client     *openai.Client
	model      string
	maxRetries int
}

// NewClient 创建模型客户端
func NewClient(cfg *config.OpenAIConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API Key 不能为空")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	return &Client{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      model,
		maxRetries: maxRetries,
	}, nil
}

// Complete 对话补全（非流式），带指数退避重试
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: float32(temperature),
		MaxTokens:   maxTokens,
	}

	var resp openai.ChatCompletionResponse
	var err error
	for i := 0; i <= c.maxRetries; i++ {
		resp, err = c.client.CreateChatCompletion(ctx, req)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		// 指数退避
		if i < c.maxRetries {
			backoff := time.Duration(1<<uint(i)) * time.Second
			time.Sleep(backoff)
		}
	}
	if err != nil {
		return "", fmt.Errorf("模型调用失败: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("模型返回为空")
	}
	return resp.Choices[0].Message.Content, nil
}
