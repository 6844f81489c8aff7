// Package openai implements the ai boundaries on top of OpenAI-compatible APIs
// (OpenAI, Groq, Ollama, LM Studio) with github.com/openai/openai-go.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"

	"github.com/TomkerDev/Al-Moussaid/internal/logger"
	"github.com/TomkerDev/Al-Moussaid/internal/utils"
)

const (
	defaultChatModel      = "llama-3.1-8b-instant"
	defaultEmbeddingModel = "text-embedding-3-small"
	defaultMaxLogLength   = 200
)

type chatAPI interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

type embeddingsAPI interface {
	New(ctx context.Context, body openai.EmbeddingNewParams, opts ...option.RequestOption) (*openai.CreateEmbeddingResponse, error)
}

// Config configures the client. BaseURL selects a compatible endpoint such as
// https://api.groq.com/openai/v1.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	MaxRetries   int
	MaxTokens    int
	MaxLogLength int
}

// NewClient builds the SDK client shared by Generator and Embedder.
// SDK-level retries are disabled; retries happen in utils.Retry.
func NewClient(cfg Config) (*openai.Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}

	client := openai.NewClient(opts...)
	return &client, nil
}

// Generator sends single-turn chat completions.
type Generator struct {
	chat      chatAPI
	modelName string
	maxTokens int64
	backoff   utils.Backoff
	maxLogLen int
	logger    *zap.Logger
}

// NewGenerator wires a Generator to client.
func NewGenerator(client *openai.Client, cfg Config, log *zap.Logger) (*Generator, error) {
	if client == nil {
		return nil, errors.New("openai client is required")
	}
	return newGenerator(&client.Chat.Completions, cfg, log), nil
}

func newGenerator(chat chatAPI, cfg Config, log *zap.Logger) *Generator {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultChatModel
	}

	maxLogLen := cfg.MaxLogLength
	if maxLogLen <= 0 {
		maxLogLen = defaultMaxLogLength
	}

	return &Generator{
		chat:      chat,
		modelName: model,
		maxTokens: int64(cfg.MaxTokens),
		backoff:   backoffFor(cfg.MaxRetries),
		maxLogLen: maxLogLen,
		logger:    logger.WithCommonFields(log, "openai", model),
	}
}

// GenerateContent sends prompt as a user message and returns the first choice.
func (g *Generator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(g.modelName),
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
	}
	if g.maxTokens > 0 {
		params.MaxTokens = openai.Int(g.maxTokens)
	}

	g.logger.Debug("chat completion request",
		zap.Int("prompt_length", len(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, g.maxLogLen)),
	)

	var resp *openai.ChatCompletion
	err := utils.Retry(ctx, g.backoff, isRetryable, func(ctx context.Context) error {
		var err error
		resp, err = g.chat.New(ctx, params)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	output := strings.TrimSpace(resp.Choices[0].Message.Content)
	if output == "" {
		return "", errors.New("chat completion returned empty content")
	}

	g.logger.Debug("chat completion response",
		zap.Int("response_length", len(output)),
		zap.String("response_preview", utils.TruncateForLog(output, g.maxLogLen)),
	)

	return output, nil
}

// Model returns the chat model name.
func (g *Generator) Model() string {
	return g.modelName
}

func isRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *openai.Error
	if !errors.As(err, &apiErr) || apiErr == nil {
		return false
	}

	switch apiErr.StatusCode {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func backoffFor(maxRetries int) utils.Backoff {
	policy := utils.DefaultBackoff
	if maxRetries > 0 {
		policy.Attempts = maxRetries
	}
	return policy
}
