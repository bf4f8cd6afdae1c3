// Package providers contains the upstream LLM clients. Every client
// speaks its provider's native wire format over plain HTTP, maps error
// statuses onto one shared typed error set, and normalises responses
// into models.Response so the rest of the broker never sees
// provider-specific shapes.
package providers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/relaymesh/aibroker/internal/models"
)

// Client is one upstream model endpoint.
type Client interface {
	// Model returns the catalogue id this client serves.
	Model() models.ModelID

	// Generate runs one completion call. The returned response always has
	// Cost, QualityScore and ProcessingTime populated.
	Generate(ctx context.Context, req models.Request) (*models.Response, error)

	// EstimateCost predicts what Generate would cost, without calling out.
	EstimateCost(content string, task models.TaskType) CostEstimate

	// TestConnection runs a minimal live call and reports health.
	TestConnection(ctx context.Context) ConnectionStatus
}

// CostEstimate is a pre-flight prediction of a call's token usage and cost.
type CostEstimate struct {
	Model         models.ModelID `json:"model"`
	InputTokens   int            `json:"input_tokens"`
	OutputTokens  int            `json:"output_tokens"`
	EstimatedCost float64        `json:"estimated_cost"`
}

// ConnectionStatus is the result of a health probe against one provider.
type ConnectionStatus struct {
	Model              models.ModelID `json:"model"`
	Success            bool           `json:"success"`
	ResponseTime       float64        `json:"response_time,omitempty"` // seconds
	Cost               float64        `json:"cost,omitempty"`
	RateLimitRemaining int            `json:"rate_limit_remaining,omitempty"`
	Error              string         `json:"error,omitempty"`
}

// Config is the per-provider wiring a client needs.
type Config struct {
	APIKey             string
	BaseURL            string
	RequestTimeout     time.Duration
	RateLimitThreshold int
	RateLimitSleepCap  time.Duration
}

func (c Config) withDefaults(defaultBaseURL string) Config {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 60 * time.Second
	}
	if c.RateLimitThreshold <= 0 {
		c.RateLimitThreshold = 5
	}
	if c.RateLimitSleepCap <= 0 {
		c.RateLimitSleepCap = 60 * time.Second
	}
	return c
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// probeConnection implements TestConnection on top of Generate, shared by
// all clients.
func probeConnection(ctx context.Context, c Client, remaining int) ConnectionStatus {
	probe := models.Request{
		TaskType:   models.TaskSummarization,
		Complexity: models.MinComplexity,
		Content:    "Respond with OK if you can see this message.",
		UserTier:   models.TierFree,
	}

	start := time.Now()
	resp, err := c.Generate(ctx, probe)
	if err != nil {
		return ConnectionStatus{
			Model:   c.Model(),
			Success: false,
			Error:   err.Error(),
		}
	}
	return ConnectionStatus{
		Model:              c.Model(),
		Success:            true,
		ResponseTime:       time.Since(start).Seconds(),
		Cost:               resp.Cost,
		RateLimitRemaining: remaining,
	}
}

func logGenerateResult(log *zap.Logger, model models.ModelID, resp *models.Response) {
	log.Debug("provider call completed",
		zap.String("model", string(model)),
		zap.Int("input_tokens", resp.InputTokens),
		zap.Int("output_tokens", resp.OutputTokens),
		zap.Float64("cost", resp.Cost),
		zap.Float64("quality_score", resp.QualityScore),
		zap.Float64("processing_time", resp.ProcessingTime),
	)
}
