package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// UsageRecord is the append-only durable record of one billed request.
// Records are never mutated after creation; monthly aggregation and
// analytics read them back by (user_id, created_at).
type UsageRecord struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID      `gorm:"type:uuid;not null;index:idx_usage_user_created" json:"user_id"`
	Model          string         `gorm:"not null;index:idx_usage_model_task" json:"model"`
	TaskType       string         `gorm:"not null;index:idx_usage_model_task" json:"task_type"`
	InputTokens    int            `gorm:"not null;check:input_tokens >= 0" json:"input_tokens"`
	OutputTokens   int            `gorm:"not null;check:output_tokens >= 0" json:"output_tokens"`
	Cost           float64        `gorm:"not null;check:cost >= 0" json:"cost"`
	ProcessingTime float64        `json:"processing_time"`
	QualityScore   float64        `json:"quality_score"`
	UserTier       string         `gorm:"not null" json:"user_tier"`
	Metadata       datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;index:idx_usage_user_created" json:"created_at"`
}

func (UsageRecord) TableName() string {
	return "usage_records"
}

// DailyUsage is one point of a usage trend, aggregated per calendar day.
type DailyUsage struct {
	Date     string  `json:"date"` // YYYY-MM-DD
	Cost     float64 `json:"cost"`
	Requests int     `json:"requests"`
}

// UsageSummary aggregates a user's usage over a trailing window.
type UsageSummary struct {
	TotalCost         float64                      `json:"total_cost"`
	TotalRequests     int                          `json:"total_requests"`
	AvgCostPerRequest float64                      `json:"avg_cost_per_request"`
	ModelBreakdown    map[string]*BreakdownBucket  `json:"model_breakdown"`
	TaskBreakdown     map[string]*BreakdownBucket  `json:"task_breakdown"`
	DailyTrend        []DailyUsage                 `json:"daily_trend"`
}

// BreakdownBucket accumulates count and cost for one model or task type.
type BreakdownBucket struct {
	Count   int     `json:"count"`
	Cost    float64 `json:"cost"`
	AvgCost float64 `json:"avg_cost"`
}
