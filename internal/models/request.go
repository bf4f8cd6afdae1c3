package models

import (
	"time"

	"github.com/google/uuid"
)

// Request is the immutable input to the broker. It is passed by value
// through the pipeline; derived requests (budget downgrades, fallbacks)
// are fresh copies, never mutations.
type Request struct {
	TaskType       TaskType `json:"task_type"`
	Complexity     int      `json:"complexity"` // 1-10
	Content        string   `json:"content"`
	UserTier       UserTier `json:"user_tier"`
	MaxCost        *float64 `json:"max_cost,omitempty"`
	RequiresVision bool     `json:"requires_vision"`
	ContextLength  int      `json:"context_length,omitempty"`
	AllowFallback  bool     `json:"allow_fallback"`
}

// Response is what a provider client returns after one generation call.
type Response struct {
	Content        string            `json:"content"`
	Model          ModelID           `json:"model_used"`
	InputTokens    int               `json:"input_tokens"`
	OutputTokens   int               `json:"output_tokens"`
	Cost           float64           `json:"cost"`
	QualityScore   float64           `json:"quality_score"`
	ProcessingTime float64           `json:"processing_time"` // seconds
	Timestamp      time.Time         `json:"timestamp"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Selection is the router's verdict for one request.
type Selection struct {
	Model         ModelID   `json:"model"`
	Confidence    float64   `json:"confidence"` // 0-1
	Reason        string    `json:"reason"`
	EstimatedCost float64   `json:"estimated_cost"`
	Fallbacks     []ModelID `json:"fallbacks"` // at most 2, ranked
}

// User is the narrow view of an account the broker core needs.
type User struct {
	ID   uuid.UUID `json:"id"`
	Tier UserTier  `json:"tier"`
}
