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

const openaiDefaultBaseURL = "https://api.openai.com/v1"

// openaiVariants maps catalogue ids to provider-side model names.
var openaiVariants = map[models.ModelID]string{
	models.ModelGPT4Turbo:  "gpt-4-turbo",
	models.ModelGPT4Vision: "gpt-4-turbo", // vision merged into turbo upstream; billed separately here
}

// OpenAIClient talks to the OpenAI chat completions API. One client
// serves one catalogue model (turbo or vision).
type OpenAIClient struct {
	cfg        Config
	model      models.ModelID
	wireModel  string
	httpClient *http.Client
	limits     *rateLimitState
	logger     *zap.Logger
}

func NewOpenAIClient(cfg Config, model models.ModelID, log *zap.Logger) (*OpenAIClient, error) {
	wireModel, ok := openaiVariants[model]
	if !ok {
		return nil, fmt.Errorf("not an openai model: %s", model)
	}
	cfg = cfg.withDefaults(openaiDefaultBaseURL)
	return &OpenAIClient{
		cfg:        cfg,
		model:      model,
		wireModel:  wireModel,
		httpClient: newHTTPClient(cfg.RequestTimeout),
		limits:     newRateLimitState(cfg.RateLimitThreshold, cfg.RateLimitSleepCap),
		logger:     log.With(zap.String("provider", "openai"), zap.String("model", string(model))),
	}, nil
}

func (c *OpenAIClient) Model() models.ModelID {
	return c.model
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
	TopP        float64         `json:"top_p"`
	Stream      bool            `json:"stream"`
}

type openaiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *OpenAIClient) Generate(ctx context.Context, req models.Request) (*models.Response, error) {
	if err := c.limits.wait(ctx, c.logger); err != nil {
		return nil, err
	}

	opts := deriveOptions(req)
	payload := openaiRequest{
		Model: c.wireModel,
		Messages: []openaiMessage{
			{Role: "system", Content: systemPromptFor(req.TaskType)},
			{Role: "user", Content: req.Content},
		},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		TopP:        0.95,
		Stream:      false,
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
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrInvalidCredentials
	case http.StatusBadRequest:
		return nil, &BadRequestError{Detail: apiErrorDetail(respBody)}
	default:
		return nil, &ProtocolError{StatusCode: resp.StatusCode, Detail: truncateBody(respBody)}
	}
}

func (c *OpenAIClient) parseResponse(body []byte, req models.Request, start time.Time) (*models.Response, error) {
	var parsed openaiResponse
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

	images := 0
	if c.model == models.ModelGPT4Vision && req.RequiresVision {
		images = 1
	}

	quality := assessQuality(content, req.TaskType, richQualityProfile)
	if parsed.Choices[0].FinishReason == "length" {
		quality *= 0.8
	}

	out := &models.Response{
		Content:        content,
		Model:          c.model,
		InputTokens:    inputTokens,
		OutputTokens:   outputTokens,
		Cost:           catalogue.Price(c.model, inputTokens, outputTokens, images),
		QualityScore:   quality,
		ProcessingTime: time.Since(start).Seconds(),
		Timestamp:      time.Now().UTC(),
	}
	logGenerateResult(c.logger, out.Model, out)
	return out, nil
}

func (c *OpenAIClient) EstimateCost(content string, task models.TaskType) CostEstimate {
	in, out := catalogue.EstimateTokens(content, task)
	images := 0
	if c.model == models.ModelGPT4Vision {
		images = 1
	}
	return CostEstimate{
		Model:         c.model,
		InputTokens:   in,
		OutputTokens:  out,
		EstimatedCost: catalogue.Price(c.model, in, out, images),
	}
}

func (c *OpenAIClient) TestConnection(ctx context.Context) ConnectionStatus {
	return probeConnection(ctx, c, c.limits.snapshot())
}
