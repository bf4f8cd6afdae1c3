package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/relaymesh/aibroker/internal/catalogue"
	"github.com/relaymesh/aibroker/internal/models"
)

const deepseekDefaultBaseURL = "https://api.deepseek.com/v1"

// deepseekWireModel is the provider-side model name; the catalogue id
// stays deepseek-v3.
const deepseekWireModel = "deepseek-coder"

// DeepSeekClient talks to the DeepSeek chat completions API.
type DeepSeekClient struct {
	cfg        Config
	httpClient *http.Client
	limits     *rateLimitState
	logger     *zap.Logger
}

func NewDeepSeekClient(cfg Config, log *zap.Logger) *DeepSeekClient {
	cfg = cfg.withDefaults(deepseekDefaultBaseURL)
	return &DeepSeekClient{
		cfg:        cfg,
		httpClient: newHTTPClient(cfg.RequestTimeout),
		limits:     newRateLimitState(cfg.RateLimitThreshold, cfg.RateLimitSleepCap),
		logger:     log.With(zap.String("provider", "deepseek")),
	}
}

func (c *DeepSeekClient) Model() models.ModelID {
	return models.ModelDeepSeekV3
}

type deepseekMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type deepseekRequest struct {
	Model            string            `json:"model"`
	Messages         []deepseekMessage `json:"messages"`
	Temperature      float64           `json:"temperature"`
	MaxTokens        int               `json:"max_tokens"`
	TopP             float64           `json:"top_p"`
	FrequencyPenalty float64           `json:"frequency_penalty"`
	PresencePenalty  float64           `json:"presence_penalty"`
	Stream           bool              `json:"stream"`
}

type deepseekResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *DeepSeekClient) Generate(ctx context.Context, req models.Request) (*models.Response, error) {
	if err := c.limits.wait(ctx, c.logger); err != nil {
		return nil, err
	}

	opts := deriveOptions(req)
	payload := deepseekRequest{
		Model: deepseekWireModel,
		Messages: []deepseekMessage{
			{Role: "system", Content: systemPromptFor(req.TaskType)},
			{Role: "user", Content: req.Content},
		},
		Temperature:      opts.Temperature,
		MaxTokens:        opts.MaxTokens,
		TopP:             0.95,
		FrequencyPenalty: 0.0,
		PresencePenalty:  0.0,
		Stream:           false,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.limits.updateFromHeaders(resp.Header)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return c.parseResponse(respBody, req, start)
	case http.StatusTooManyRequests:
		return nil, &RateLimitError{RetryAfter: retryAfter(resp.Header, 60*time.Second)}
	case http.StatusUnauthorized:
		return nil, ErrInvalidCredentials
	case http.StatusBadRequest:
		return nil, &BadRequestError{Detail: apiErrorDetail(respBody)}
	default:
		return nil, &ProtocolError{StatusCode: resp.StatusCode, Detail: truncateBody(respBody)}
	}
}

func (c *DeepSeekClient) parseResponse(body []byte, req models.Request, start time.Time) (*models.Response, error) {
	var parsed deepseekResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &ProtocolError{Detail: fmt.Sprintf("decode response: %v", err)}
	}
	if len(parsed.Choices) == 0 {
		return nil, &ProtocolError{Detail: "no choices in response"}
	}

	content := parsed.Choices[0].Message.Content
	inputTokens := parsed.Usage.PromptTokens
	outputTokens := parsed.Usage.CompletionTokens
	if inputTokens == 0 {
		inputTokens = estimateInputTokens(req.Content)
	}
	if outputTokens == 0 {
		outputTokens = estimateInputTokens(content)
	}

	out := &models.Response{
		Content:        content,
		Model:          models.ModelDeepSeekV3,
		InputTokens:    inputTokens,
		OutputTokens:   outputTokens,
		Cost:           catalogue.Price(models.ModelDeepSeekV3, inputTokens, outputTokens, 0),
		QualityScore:   assessQuality(content, req.TaskType, leanQualityProfile),
		ProcessingTime: time.Since(start).Seconds(),
		Timestamp:      time.Now().UTC(),
	}
	logGenerateResult(c.logger, out.Model, out)
	return out, nil
}

func (c *DeepSeekClient) EstimateCost(content string, task models.TaskType) CostEstimate {
	in, out := catalogue.EstimateTokens(content, task)
	return CostEstimate{
		Model:         models.ModelDeepSeekV3,
		InputTokens:   in,
		OutputTokens:  out,
		EstimatedCost: catalogue.Price(models.ModelDeepSeekV3, in, out, 0),
	}
}

func (c *DeepSeekClient) TestConnection(ctx context.Context) ConnectionStatus {
	return probeConnection(ctx, c, c.limits.snapshot())
}

// retryAfter parses the Retry-After header, falling back to a default.
func retryAfter(h http.Header, fallback time.Duration) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}

// apiErrorDetail extracts the provider's error message from an error body.
func apiErrorDetail(body []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return truncateBody(body)
}

func truncateBody(body []byte) string {
	const limit = 200
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
