package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/nainovate/Evaluation-UI-sub000/internal/metrics"
	"github.com/nainovate/Evaluation-UI-sub000/pkg/circuitbreaker"
	"github.com/nainovate/Evaluation-UI-sub000/pkg/logger"
	"github.com/nainovate/Evaluation-UI-sub000/pkg/retry"
)

var ErrEmptyCompletion = errors.New("completion returned no choices")

type Client struct {
	client      *openai.Client
	judgeModel  string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

type Options struct {
	APIKey      string
	BaseURL     string
	JudgeModel  string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

type CompletionRequest struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

func NewClient(opts Options) *Client {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}

	cb := circuitbreaker.NewCircuitBreaker("llm", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OnStateChange: func(name string, _ circuitbreaker.State, to circuitbreaker.State) {
			metrics.CircuitState.WithLabelValues(name).Set(float64(to))
		},
		Logger: logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("LLM client initialized",
		zap.String("judge_model", opts.JudgeModel),
		zap.String("base_url", cfg.BaseURL),
	)

	return &Client{
		client:      openai.NewClientWithConfig(cfg),
		judgeModel:  opts.JudgeModel,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		timeout:     opts.Timeout,
		cb:          cb,
		retryConfig: retryConfig,
	}
}

func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	model := req.Model
	if model == "" {
		model = c.judgeModel
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	var messages []openai.ChatCompletionMessage
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.UserPrompt,
	})

	var result *CompletionResponse

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model:       model,
					Messages:    messages,
					Temperature: temperature,
					MaxTokens:   maxTokens,
				},
			)
			if err != nil {
				err = fmt.Errorf("failed to create completion: %w", err)
				if isClientError(err) {
					return retry.Permanent(err)
				}
				return err
			}
			if len(resp.Choices) == 0 {
				return ErrEmptyCompletion
			}

			metrics.LLMTokensUsed.WithLabelValues(model, "prompt").Add(float64(resp.Usage.PromptTokens))
			metrics.LLMTokensUsed.WithLabelValues(model, "completion").Add(float64(resp.Usage.CompletionTokens))

			logger.Debug("LLM completion generated",
				zap.String("model", model),
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			result = &CompletionResponse{
				Content: resp.Choices[0].Message.Content,
				Usage: Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				},
			}

			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return result, nil
}

// Generate produces a deployment's answer for one dataset row.
func (c *Client) Generate(ctx context.Context, model, prompt string) (string, error) {
	resp, err := c.Complete(ctx, CompletionRequest{
		Model:      model,
		UserPrompt: prompt,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}
	return resp.Content, nil
}

// isClientError reports 4xx responses other than rate limiting; resending
// the same request cannot succeed.
func isClientError(err error) bool {
	status := 0

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	return status >= 400 && status < 500 && status != http.StatusTooManyRequests
}

// extractJSON returns the first {...} object in content, tolerating code
// fences and prose around it.
func extractJSON(content string) (string, bool) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return content[start : end+1], true
}

func decodeJSON(content string, v any) error {
	raw, ok := extractJSON(content)
	if !ok {
		return fmt.Errorf("no JSON object in response: %q", truncate(content, 120))
	}
	return json.Unmarshal([]byte(raw), v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
