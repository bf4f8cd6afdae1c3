package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/relaymesh/aibroker/internal/catalogue"
	"github.com/relaymesh/aibroker/internal/models"
)

const (
	claudeDefaultBaseURL = "https://api.anthropic.com/v1"
	claudeWireModel      = "claude-3-5-sonnet-20241022"
	anthropicVersion     = "2023-06-01"
)

// ClaudeClient talks to the Anthropic Messages API.
type ClaudeClient struct {
	cfg        Config
	httpClient *http.Client
	limits     *rateLimitState
	logger     *zap.Logger
}

func NewClaudeClient(cfg Config, log *zap.Logger) *ClaudeClient {
	cfg = cfg.withDefaults(claudeDefaultBaseURL)
	return &ClaudeClient{
		cfg:        cfg,
		httpClient: newHTTPClient(cfg.RequestTimeout),
		limits:     newRateLimitState(cfg.RateLimitThreshold, cfg.RateLimitSleepCap),
		logger:     log.With(zap.String("provider", "claude")),
	}
}

func (c *ClaudeClient) Model() models.ModelID {
	return models.ModelClaudeSonnet
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
	System      string          `json:"system,omitempty"`
	Messages    []claudeMessage `json:"messages"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	StopReason string `json:"stop_reason"`
}

func (c *ClaudeClient) Generate(ctx context.Context, req models.Request) (*models.Response, error) {
	if err := c.limits.wait(ctx, c.logger); err != nil {
		return nil, err
	}

	opts := deriveOptions(req)
	payload := claudeRequest{
		Model:       claudeWireModel,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		System:      systemPromptFor(req.TaskType),
		Messages: []claudeMessage{
			{Role: "user", Content: req.Content},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
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
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrInvalidCredentials
	case http.StatusBadRequest:
		return nil, &BadRequestError{Detail: apiErrorDetail(respBody)}
	default:
		return nil, &ProtocolError{StatusCode: resp.StatusCode, Detail: truncateBody(respBody)}
	}
}

func (c *ClaudeClient) parseResponse(body []byte, req models.Request, start time.Time) (*models.Response, error) {
	var parsed claudeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &ProtocolError{Detail: fmt.Sprintf("decode response: %v", err)}
	}

	var content string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			content = block.Text
			break
		}
	}
	if content == "" {
		return nil, &ProtocolError{Detail: "no text content in response"}
	}

	inputTokens := parsed.Usage.InputTokens
	outputTokens := parsed.Usage.OutputTokens
	if inputTokens == 0 {
		inputTokens = estimateInputTokens(req.Content)
	}
	if outputTokens == 0 {
		outputTokens = estimateInputTokens(content)
	}

	quality := assessQuality(content, req.TaskType, richQualityProfile)
	if parsed.StopReason == "max_tokens" {
		quality *= 0.8
	}

	out := &models.Response{
		Content:        content,
		Model:          models.ModelClaudeSonnet,
		InputTokens:    inputTokens,
		OutputTokens:   outputTokens,
		Cost:           catalogue.Price(models.ModelClaudeSonnet, inputTokens, outputTokens, 0),
		QualityScore:   quality,
		ProcessingTime: time.Since(start).Seconds(),
		Timestamp:      time.Now().UTC(),
	}
	logGenerateResult(c.logger, out.Model, out)
	return out, nil
}

func (c *ClaudeClient) EstimateCost(content string, task models.TaskType) CostEstimate {
	in, out := catalogue.EstimateTokens(content, task)
	return CostEstimate{
		Model:         models.ModelClaudeSonnet,
		InputTokens:   in,
		OutputTokens:  out,
		EstimatedCost: catalogue.Price(models.ModelClaudeSonnet, in, out, 0),
	}
}

func (c *ClaudeClient) TestConnection(ctx context.Context) ConnectionStatus {
	return probeConnection(ctx, c, c.limits.snapshot())
}
