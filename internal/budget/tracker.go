// Package budget enforces per-tier monthly spending caps. Every billed
// request lands in the durable usage ledger; a key-value store, when
// configured, carries short-lived counters for real-time dashboards.
package budget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/relaymesh/aibroker/internal/config"
	"github.com/relaymesh/aibroker/internal/models"
)

// AlertType identifies which budget threshold fired.
type AlertType string

const (
	AlertWarning           AlertType = "warning"
	AlertCritical          AlertType = "critical"
	AlertExceeded          AlertType = "exceeded"
	AlertProjectionWarning AlertType = "projection_warning"
)

// Severity ranks alerts for notification routing.
type Severity string

const (
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert is raised when a user's spend crosses a budget threshold. At
// most one alert is returned per tracked request, carrying the highest
// applicable severity.
type Alert struct {
	Type             AlertType       `json:"type"`
	Severity         Severity        `json:"severity"`
	UserID           uuid.UUID       `json:"user_id"`
	Tier             models.UserTier `json:"tier"`
	CurrentUsage     float64         `json:"current_usage"`
	Limit            float64         `json:"limit"`
	PercentUsed      float64         `json:"percent_used"`
	ProjectedOverage float64         `json:"projected_overage,omitempty"`
	Message          string          `json:"message"`
	Timestamp        time.Time       `json:"timestamp"`
}

// Check is the pre-flight budget verdict for one estimated cost.
type Check struct {
	CanProceed      bool    `json:"can_proceed"`
	CurrentUsage    float64 `json:"current_usage"`
	EstimatedCost   float64 `json:"estimated_cost"`
	Limit           float64 `json:"limit"`
	RemainingBudget float64 `json:"remaining_budget"`
	PercentUsed     float64 `json:"percent_used"`
}

// Status is a user's month-to-date budget picture.
type Status struct {
	Tier             models.UserTier `json:"tier"`
	Limit            float64         `json:"limit"`
	CurrentUsage     float64         `json:"current_usage"`
	RemainingBudget  float64         `json:"remaining_budget"`
	PercentUsed      float64         `json:"percent_used"`
	DaysRemaining    int             `json:"days_remaining"`
	ProjectedSpend   float64         `json:"projected_spend"`
	ProjectedOverage float64         `json:"projected_overage"`
}

// RealTimeMetrics is the counter view served from the key-value store.
type RealTimeMetrics struct {
	HourlyCost    float64 `json:"hourly_cost"`
	DailyCost     float64 `json:"daily_cost"`
	MonthlyCost   float64 `json:"monthly_cost"`
	DailyRequests int64   `json:"daily_requests"`
}

// Tracker records usage and answers budget questions. rdb may be nil;
// real-time counters are then skipped.
type Tracker struct {
	store  UsageStore
	rdb    redis.UniversalClient
	cfg    config.BudgetConfig
	logger *zap.Logger
}

func NewTracker(store UsageStore, rdb redis.UniversalClient, cfg config.BudgetConfig, log *zap.Logger) *Tracker {
	return &Tracker{
		store:  store,
		rdb:    rdb,
		cfg:    cfg,
		logger: log.Named("budget"),
	}
}

// Track appends the usage record for a completed request, refreshes the
// real-time counters, and returns an alert if the spend crossed a
// threshold.
func (t *Tracker) Track(ctx context.Context, user models.User, req models.Request, resp *models.Response, sel *models.Selection) (*Alert, error) {
	record := &models.UsageRecord{
		ID:             uuid.New(),
		UserID:         user.ID,
		Model:          string(resp.Model),
		TaskType:       string(req.TaskType),
		InputTokens:    resp.InputTokens,
		OutputTokens:   resp.OutputTokens,
		Cost:           resp.Cost,
		ProcessingTime: resp.ProcessingTime,
		QualityScore:   resp.QualityScore,
		UserTier:       string(user.Tier),
		CreatedAt:      time.Now().UTC(),
	}
	if sel != nil {
		meta, err := json.Marshal(map[string]any{
			"selection_reason": sel.Reason,
			"confidence":       sel.Confidence,
			"estimated_cost":   sel.EstimatedCost,
		})
		if err == nil {
			record.Metadata = datatypes.JSON(meta)
		}
	}

	if err := t.store.Append(ctx, record); err != nil {
		return nil, fmt.Errorf("append usage record: %w", err)
	}

	t.bumpCounters(ctx, user.ID, resp.Cost)

	status, err := t.Status(ctx, user)
	if err != nil {
		return nil, err
	}
	return t.evaluateAlert(user, status), nil
}

// Check decides whether an estimated cost fits the user's remaining
// monthly budget.
func (t *Tracker) Check(ctx context.Context, user models.User, estimatedCost float64) (Check, error) {
	limit := t.cfg.TierLimit(user.Tier)
	current, err := t.store.SumCostSince(ctx, user.ID, monthStart(time.Now().UTC()))
	if err != nil {
		return Check{}, fmt.Errorf("sum month usage: %w", err)
	}

	remaining := limit - current
	if remaining < 0 {
		remaining = 0
	}

	return Check{
		CanProceed:      current+estimatedCost <= limit,
		CurrentUsage:    current,
		EstimatedCost:   estimatedCost,
		Limit:           limit,
		RemainingBudget: remaining,
		PercentUsed:     percent(current, limit),
	}, nil
}

// Status reports month-to-date usage plus a projection of month-end
// spend from the trailing 7-day daily average.
func (t *Tracker) Status(ctx context.Context, user models.User) (*Status, error) {
	now := time.Now().UTC()
	limit := t.cfg.TierLimit(user.Tier)

	current, err := t.store.SumCostSince(ctx, user.ID, monthStart(now))
	if err != nil {
		return nil, fmt.Errorf("sum month usage: %w", err)
	}

	trailing, err := t.store.SumCostSince(ctx, user.ID, now.AddDate(0, 0, -7))
	if err != nil {
		return nil, fmt.Errorf("sum trailing usage: %w", err)
	}

	days := daysUntilNextMonth(now)
	projected := trailing / 7 * float64(days)
	overage := current + projected - limit
	if overage < 0 {
		overage = 0
	}

	remaining := limit - current
	if remaining < 0 {
		remaining = 0
	}

	return &Status{
		Tier:             user.Tier,
		Limit:            limit,
		CurrentUsage:     current,
		RemainingBudget:  remaining,
		PercentUsed:      percent(current, limit),
		DaysRemaining:    days,
		ProjectedSpend:   projected,
		ProjectedOverage: overage,
	}, nil
}

// UsageSummary aggregates a user's records over a trailing window of
// days: totals, per-model and per-task breakdowns, and the daily trend.
func (t *Tracker) UsageSummary(ctx context.Context, user models.User, days int) (*models.UsageSummary, error) {
	since := time.Now().UTC().AddDate(0, 0, -days)

	records, err := t.store.RecordsSince(ctx, user.ID, since)
	if err != nil {
		return nil, fmt.Errorf("load usage records: %w", err)
	}

	summary := &models.UsageSummary{
		ModelBreakdown: make(map[string]*models.BreakdownBucket),
		TaskBreakdown:  make(map[string]*models.BreakdownBucket),
	}
	for _, rec := range records {
		summary.TotalCost += rec.Cost
		summary.TotalRequests++
		bumpBucket(summary.ModelBreakdown, rec.Model, rec.Cost)
		bumpBucket(summary.TaskBreakdown, rec.TaskType, rec.Cost)
	}
	if summary.TotalRequests > 0 {
		summary.AvgCostPerRequest = summary.TotalCost / float64(summary.TotalRequests)
	}

	trend, err := t.store.DailyCosts(ctx, user.ID, since)
	if err != nil {
		return nil, fmt.Errorf("load daily trend: %w", err)
	}
	summary.DailyTrend = trend
	return summary, nil
}

// RealTime returns the counter snapshot for a user, or zeroes when no
// key-value store is configured.
func (t *Tracker) RealTime(ctx context.Context, userID uuid.UUID) (*RealTimeMetrics, error) {
	if t.rdb == nil {
		return &RealTimeMetrics{}, nil
	}

	now := time.Now().UTC()
	pipe := t.rdb.Pipeline()
	hourly := pipe.Get(ctx, hourlyKey(userID, now))
	daily := pipe.Get(ctx, dailyKey(userID, now))
	monthly := pipe.Get(ctx, monthlyKey(userID, now))
	requests := pipe.Get(ctx, requestsKey(userID, now))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	return &RealTimeMetrics{
		HourlyCost:    floatResult(hourly),
		DailyCost:     floatResult(daily),
		MonthlyCost:   floatResult(monthly),
		DailyRequests: intResult(requests),
	}, nil
}

func (t *Tracker) bumpCounters(ctx context.Context, userID uuid.UUID, cost float64) {
	if t.rdb == nil {
		return
	}

	now := time.Now().UTC()
	pipe := t.rdb.Pipeline()

	pipe.IncrByFloat(ctx, hourlyKey(userID, now), cost)
	pipe.Expire(ctx, hourlyKey(userID, now), 24*time.Hour)

	pipe.IncrByFloat(ctx, dailyKey(userID, now), cost)
	pipe.Expire(ctx, dailyKey(userID, now), 7*24*time.Hour)

	pipe.IncrByFloat(ctx, monthlyKey(userID, now), cost)
	pipe.Expire(ctx, monthlyKey(userID, now), 32*24*time.Hour)

	pipe.Incr(ctx, requestsKey(userID, now))
	pipe.Expire(ctx, requestsKey(userID, now), 7*24*time.Hour)

	if _, err := pipe.Exec(ctx); err != nil {
		t.logger.Warn("failed to update cost counters",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
	}
}

// evaluateAlert applies the threshold ladder: exceeded beats critical
// beats warning; a pure projection overshoot gets its own alert type.
func (t *Tracker) evaluateAlert(user models.User, status *Status) *Alert {
	ratio := status.CurrentUsage / status.Limit

	alert := &Alert{
		UserID:           user.ID,
		Tier:             user.Tier,
		CurrentUsage:     status.CurrentUsage,
		Limit:            status.Limit,
		PercentUsed:      status.PercentUsed,
		ProjectedOverage: status.ProjectedOverage,
		Timestamp:        time.Now().UTC(),
	}

	switch {
	case ratio >= t.cfg.ExceededThreshold:
		alert.Type = AlertExceeded
		alert.Severity = SeverityCritical
		alert.Message = fmt.Sprintf("Monthly budget exceeded: $%.2f of $%.2f used", status.CurrentUsage, status.Limit)
	case ratio >= t.cfg.CriticalThreshold:
		alert.Type = AlertCritical
		alert.Severity = SeverityHigh
		alert.Message = fmt.Sprintf("Monthly budget critical: %.0f%% of $%.2f used", status.PercentUsed, status.Limit)
	case ratio >= t.cfg.WarningThreshold:
		alert.Type = AlertWarning
		alert.Severity = SeverityMedium
		alert.Message = fmt.Sprintf("Monthly budget warning: %.0f%% of $%.2f used", status.PercentUsed, status.Limit)
	case status.ProjectedOverage > 0:
		alert.Type = AlertProjectionWarning
		alert.Severity = SeverityMedium
		alert.Message = fmt.Sprintf("Projected to exceed monthly budget by $%.2f", status.ProjectedOverage)
	default:
		return nil
	}

	t.logger.Warn("budget alert raised",
		zap.String("user_id", user.ID.String()),
		zap.String("type", string(alert.Type)),
		zap.String("severity", string(alert.Severity)),
		zap.Float64("percent_used", status.PercentUsed),
	)
	return alert
}

func monthStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func daysUntilNextMonth(now time.Time) int {
	firstOfNext := monthStart(now).AddDate(0, 1, 0)
	return int(firstOfNext.Sub(now).Hours() / 24)
}

func percent(current, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return current / limit * 100
}

func bumpBucket(buckets map[string]*models.BreakdownBucket, key string, cost float64) {
	bucket, ok := buckets[key]
	if !ok {
		bucket = &models.BreakdownBucket{}
		buckets[key] = bucket
	}
	bucket.Count++
	bucket.Cost += cost
	bucket.AvgCost = bucket.Cost / float64(bucket.Count)
}

func hourlyKey(userID uuid.UUID, now time.Time) string {
	return fmt.Sprintf("cost:hourly:%s:%s", userID, now.Format("2006-01-02-15"))
}

func dailyKey(userID uuid.UUID, now time.Time) string {
	return fmt.Sprintf("cost:daily:%s:%s", userID, now.Format("2006-01-02"))
}

func monthlyKey(userID uuid.UUID, now time.Time) string {
	return fmt.Sprintf("cost:monthly:%s:%s", userID, now.Format("2006-01"))
}

func requestsKey(userID uuid.UUID, now time.Time) string {
	return fmt.Sprintf("requests:daily:%s:%s", userID, now.Format("2006-01-02"))
}

func floatResult(cmd *redis.StringCmd) float64 {
	v, err := strconv.ParseFloat(cmd.Val(), 64)
	if err != nil {
		return 0
	}
	return v
}

func intResult(cmd *redis.StringCmd) int64 {
	v, err := strconv.ParseInt(cmd.Val(), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
