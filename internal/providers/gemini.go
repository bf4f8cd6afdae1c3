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

const geminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1"

// geminiRequestsPerMinute is a local estimate: the API does not report
// quota in response headers, so the client keeps its own window.
const geminiRequestsPerMinute = 60

// geminiVariants maps catalogue ids to provider-side model names.
var geminiVariants = map[models.ModelID]string{
	models.ModelGeminiFlash: "gemini-1.5-flash",
	models.ModelGeminiPro:   "gemini-1.5-pro",
}

// GeminiClient talks to the Google Generative Language API. One client
// serves one variant (flash or pro).
type GeminiClient struct {
	cfg        Config
	model      models.ModelID
	variant    string
	httpClient *http.Client
	limits     *rateLimitState
	logger     *zap.Logger
}

func NewGeminiClient(cfg Config, model models.ModelID, log *zap.Logger) (*GeminiClient, error) {
	variant, ok := geminiVariants[model]
	if !ok {
		return nil, fmt.Errorf("not a gemini model: %s", model)
	}
	cfg = cfg.withDefaults(geminiDefaultBaseURL)
	return &GeminiClient{
		cfg:        cfg,
		model:      model,
		variant:    variant,
		httpClient: newHTTPClient(cfg.RequestTimeout),
		limits:     newRateLimitState(cfg.RateLimitThreshold, cfg.RateLimitSleepCap),
		logger:     log.With(zap.String("provider", "gemini"), zap.String("variant", variant)),
	}, nil
}

func (c *GeminiClient) Model() models.ModelID {
	return c.model
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
	CandidateCount  int     `json:"candidateCount"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
	SafetySettings   []geminiSafetySetting  `json:"safetySettings"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// moderate filtering for business use
var geminiSafetySettings = []geminiSafetySetting{
	{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
	{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
	{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
	{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
}

func (c *GeminiClient) Generate(ctx context.Context, req models.Request) (*models.Response, error) {
	if err := c.limits.wait(ctx, c.logger); err != nil {
		return nil, err
	}

	opts := deriveOptions(req)
	payload := geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: combinedPrompt(req)}}},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     opts.Temperature,
			TopP:            0.95,
			TopK:            40,
			CandidateCount:  1,
			MaxOutputTokens: opts.MaxTokens,
		},
		SafetySettings: geminiSafetySettings,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.cfg.BaseURL, c.variant, c.cfg.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.limits.consumeLocal(geminiRequestsPerMinute)

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

func (c *GeminiClient) parseResponse(body []byte, req models.Request, start time.Time) (*models.Response, error) {
	var parsed geminiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &ProtocolError{Detail: fmt.Sprintf("decode response: %v", err)}
	}
	if len(parsed.Candidates) == 0 {
		return nil, &ProtocolError{Detail: "no candidates in response"}
	}
	candidate := parsed.Candidates[0]
	if len(candidate.Content.Parts) == 0 || candidate.Content.Parts[0].Text == "" {
		return nil, &ProtocolError{Detail: "empty content in response"}
	}
	content := candidate.Content.Parts[0].Text

	inputTokens := parsed.UsageMetadata.PromptTokenCount
	outputTokens := parsed.UsageMetadata.CandidatesTokenCount
	if inputTokens == 0 {
		inputTokens = estimateInputTokens(req.Content)
	}
	if outputTokens == 0 {
		outputTokens = estimateInputTokens(content)
	}

	quality := assessQuality(content, req.TaskType, richQualityProfile)
	if candidate.FinishReason == "SAFETY" {
		c.logger.Warn("response blocked by safety filters")
		quality *= 0.5
	}

	out := &models.Response{
		Content:        content,
		Model:          c.model,
		InputTokens:    inputTokens,
		OutputTokens:   outputTokens,
		Cost:           catalogue.Price(c.model, inputTokens, outputTokens, 0),
		QualityScore:   quality,
		ProcessingTime: time.Since(start).Seconds(),
		Timestamp:      time.Now().UTC(),
	}
	logGenerateResult(c.logger, out.Model, out)
	return out, nil
}

func (c *GeminiClient) EstimateCost(content string, task models.TaskType) CostEstimate {
	in, out := catalogue.EstimateTokens(content, task)
	return CostEstimate{
		Model:         c.model,
		InputTokens:   in,
		OutputTokens:  out,
		EstimatedCost: catalogue.Price(c.model, in, out, 0),
	}
}

func (c *GeminiClient) TestConnection(ctx context.Context) ConnectionStatus {
	return probeConnection(ctx, c, c.limits.snapshot())
}
