package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/TomkerDev/Al-Moussaid/internal/logger"
	"github.com/TomkerDev/Al-Moussaid/internal/utils"
)

const (
	defaultModel          = "gemini-2.5-flash"
	defaultEmbeddingModel = "gemini-embedding-001"
	defaultMaxLogLength   = 200
)

// modelsAPI is the subset of *genai.Models used here.
type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Config configures a Gemini client.
type Config struct {
	APIKey     string
	Model      string
	MaxRetries int
	// MaxLogLength bounds prompt and response previews in debug logs.
	MaxLogLength int
}

// NewModels creates the Gemini API backend shared by Generator and Embedder.
func NewModels(ctx context.Context, apiKey string) (*genai.Models, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return client.Models, nil
}

// Generator wraps the Gemini models API to provide simple prompt-based interactions.
type Generator struct {
	models    modelsAPI
	modelName string
	backoff   utils.Backoff
	maxLogLen int
	logger    *zap.Logger
}

// NewGenerator creates a Generator on top of an initialized models API.
func NewGenerator(models modelsAPI, cfg Config, log *zap.Logger) (*Generator, error) {
	if models == nil {
		return nil, errors.New("gemini models api is required")
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	return &Generator{
		models:    models,
		modelName: model,
		backoff:   backoffFor(cfg.MaxRetries),
		maxLogLen: maxLogLength(cfg.MaxLogLength),
		logger:    logger.WithCommonFields(log, "gemini", model),
	}, nil
}

// GenerateContent sends the prompt to Gemini and returns the concatenated text parts.
func (g *Generator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	if g == nil || g.models == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	g.logger.Debug("gemini generate content request",
		zap.Int("prompt_length", len(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, g.maxLogLen)),
	)

	var resp *genai.GenerateContentResponse
	err := utils.Retry(ctx, g.backoff, isRetryable, func(ctx context.Context) error {
		var err error
		resp, err = g.models.GenerateContent(ctx, g.modelName, genai.Text(prompt), nil)
		if err != nil && isRetryable(err) {
			g.logger.Warn("gemini request failed, retrying", zap.Error(err))
		}
		return err
	})
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	output := responseText(resp)
	if output == "" {
		return "", errors.New("gemini api returned empty response")
	}

	g.logger.Debug("gemini generate content response",
		zap.Int("response_length", len(output)),
		zap.String("response_preview", utils.TruncateForLog(output, g.maxLogLen)),
	)

	return output, nil
}

// Model returns the configured model name.
func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.modelName
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	return strings.TrimSpace(builder.String())
}

// isRetryable treats rate limiting and server-side failures as temporary.
func isRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var (
		code    int
		message string
	)
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code, message = apiErr.Code, apiErr.Message
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		code, message = apiErrPtr.Code, apiErrPtr.Message
	default:
		return errors.Is(err, context.DeadlineExceeded)
	}

	if code == http.StatusTooManyRequests && quotaExhausted(message) {
		return false
	}

	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// quotaExhausted spots daily quota errors, which a short backoff cannot fix.
func quotaExhausted(message string) bool {
	return strings.Contains(strings.ToLower(message), "quota")
}

func backoffFor(maxRetries int) utils.Backoff {
	policy := utils.DefaultBackoff
	if maxRetries > 0 {
		policy.Attempts = maxRetries
	}
	return policy
}

func maxLogLength(v int) int {
	if v <= 0 {
		return defaultMaxLogLength
	}
	return v
}
