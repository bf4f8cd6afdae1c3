package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relaymesh/aibroker/internal/models"
)

func testConfig(baseURL string) Config {
	return Config{
		APIKey:             "test-key",
		BaseURL:            baseURL,
		RequestTimeout:     5 * time.Second,
		RateLimitThreshold: 5,
		RateLimitSleepCap:  time.Second,
	}
}

func TestDeepSeekGenerate(t *testing.T) {
	t.Run("successful completion", func(t *testing.T) {
		var gotPayload deepseekRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/chat/completions", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))

			w.Header().Set("x-ratelimit-remaining", "42")
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"choices": []map[string]any{
					{"message": map[string]any{"content": "func main() { fmt.Println(\"hello\") }"}},
				},
				"usage": map[string]any{"prompt_tokens": 120, "completion_tokens": 80},
			})
		}))
		defer server.Close()

		client := NewDeepSeekClient(testConfig(server.URL), zap.NewNop())
		resp, err := client.Generate(context.Background(), models.Request{
			TaskType:   models.TaskCodeGeneration,
			Complexity: 5,
			Content:    "write a hello world program",
			UserTier:   models.TierCreator,
		})
		require.NoError(t, err)

		assert.Equal(t, models.ModelDeepSeekV3, resp.Model)
		assert.Equal(t, 120, resp.InputTokens)
		assert.Equal(t, 80, resp.OutputTokens)
		assert.InDelta(t, 120.0/1e6*0.14+80.0/1e6*0.28, resp.Cost, 1e-12)
		assert.Greater(t, resp.QualityScore, 0.5)
		assert.Equal(t, 42, client.limits.snapshot())

		// wire payload shape
		assert.Equal(t, deepseekWireModel, gotPayload.Model)
		require.Len(t, gotPayload.Messages, 2)
		assert.Equal(t, "system", gotPayload.Messages[0].Role)
		assert.Equal(t, "user", gotPayload.Messages[1].Role)
		assert.Equal(t, 0.95, gotPayload.TopP)
		assert.False(t, gotPayload.Stream)
		// code tasks run at reduced temperature
		assert.InDelta(t, 0.3, gotPayload.Temperature, 1e-9)
		assert.Equal(t, 4000, gotPayload.MaxTokens)
	})

	t.Run("rate limited", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		client := NewDeepSeekClient(testConfig(server.URL), zap.NewNop())
		_, err := client.Generate(context.Background(), models.Request{
			TaskType: models.TaskAnalysis,
			Content:  "analyze this",
			UserTier: models.TierFree,
		})

		var rateErr *RateLimitError
		require.ErrorAs(t, err, &rateErr)
		assert.Equal(t, 30*time.Second, rateErr.RetryAfter)
		assert.False(t, IsRetryable(err))
	})

	t.Run("invalid credentials", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		client := NewDeepSeekClient(testConfig(server.URL), zap.NewNop())
		_, err := client.Generate(context.Background(), models.Request{
			TaskType: models.TaskAnalysis,
			Content:  "analyze this",
			UserTier: models.TierFree,
		})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("bad request carries provider detail", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"context length exceeded"}}`))
		}))
		defer server.Close()

		client := NewDeepSeekClient(testConfig(server.URL), zap.NewNop())
		_, err := client.Generate(context.Background(), models.Request{
			TaskType: models.TaskAnalysis,
			Content:  "analyze this",
			UserTier: models.TierFree,
		})

		var badReq *BadRequestError
		require.ErrorAs(t, err, &badReq)
		assert.Equal(t, "context length exceeded", badReq.Detail)
	})

	t.Run("empty choices is a protocol error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		}))
		defer server.Close()

		client := NewDeepSeekClient(testConfig(server.URL), zap.NewNop())
		_, err := client.Generate(context.Background(), models.Request{
			TaskType: models.TaskAnalysis,
			Content:  "analyze this",
			UserTier: models.TierFree,
		})

		var protoErr *ProtocolError
		assert.ErrorAs(t, err, &protoErr)
	})

	t.Run("network error is retryable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close() // force connection refused

		client := NewDeepSeekClient(testConfig(server.URL), zap.NewNop())
		_, err := client.Generate(context.Background(), models.Request{
			TaskType: models.TaskAnalysis,
			Content:  "analyze this",
			UserTier: models.TierFree,
		})
		require.Error(t, err)
		assert.True(t, IsRetryable(err))
	})

	t.Run("missing usage falls back to estimates", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"choices": []map[string]any{
					{"message": map[string]any{"content": "four words of output here."}},
				},
			})
		}))
		defer server.Close()

		client := NewDeepSeekClient(testConfig(server.URL), zap.NewNop())
		resp, err := client.Generate(context.Background(), models.Request{
			TaskType: models.TaskSummarization,
			Content:  "summarize these ten words of input text for me please",
			UserTier: models.TierFree,
		})
		require.NoError(t, err)
		assert.Equal(t, int(10*1.3), resp.InputTokens)
		assert.Greater(t, resp.OutputTokens, 0)
	})
}

func TestDeepSeekEstimateCost(t *testing.T) {
	client := NewDeepSeekClient(testConfig("http://unused"), zap.NewNop())
	est := client.EstimateCost("one two three four five six seven eight nine ten", models.TaskCodeGeneration)

	assert.Equal(t, models.ModelDeepSeekV3, est.Model)
	assert.Equal(t, 13, est.InputTokens)   // 10 words x 1.3
	assert.Equal(t, 26, est.OutputTokens)  // code multiplier 2.0
	assert.InDelta(t, 13.0/1e6*0.14+26.0/1e6*0.28, est.EstimatedCost, 1e-12)
}

func TestClassifyTransportError(t *testing.T) {
	assert.ErrorIs(t, classifyTransportError(context.DeadlineExceeded), ErrTimeout)

	var netErr *NetworkError
	assert.ErrorAs(t, classifyTransportError(errors.New("connection refused")), &netErr)
}
