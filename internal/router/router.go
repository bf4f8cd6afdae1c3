// Package router picks the cheapest model that can actually do the job.
// Scoring blends estimated cost, task suitability, observed performance
// and subscription-tier fit, then a load-balancing factor keeps any one
// model from absorbing all traffic.
package router

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/relaymesh/aibroker/internal/catalogue"
	"github.com/relaymesh/aibroker/internal/config"
	"github.com/relaymesh/aibroker/internal/models"
)

// referenceCost is the dollar cost treated as "expensive" when scoring:
// a request estimated at this or more scores zero on cost.
const referenceCost = 0.10

// scoreWeights for the four scoring factors.
const (
	weightCost        = 0.4
	weightSuitability = 0.3
	weightPerformance = 0.2
	weightTier        = 0.1
)

// SelectionRecord is one entry of the in-memory selection history.
type SelectionRecord struct {
	Timestamp     time.Time       `json:"timestamp"`
	TaskType      models.TaskType `json:"task_type"`
	Complexity    int             `json:"complexity"`
	UserTier      models.UserTier `json:"user_tier"`
	Model         models.ModelID  `json:"model"`
	Confidence    float64         `json:"confidence"`
	EstimatedCost float64         `json:"estimated_cost"`
	ContentLength int             `json:"content_length"`
}

// Router scores catalogue models per request and keeps the rolling
// selection history and per-model performance metrics. Safe for
// concurrent use.
type Router struct {
	cfg     config.RouterConfig
	logger  *zap.Logger
	metrics *metricsTable

	mu      sync.Mutex
	history []SelectionRecord
}

func New(cfg config.RouterConfig, log *zap.Logger) *Router {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 1000
	}
	if cfg.LoadBalanceWindow <= 0 {
		cfg.LoadBalanceWindow = 100
	}
	return &Router{
		cfg:     cfg,
		logger:  log.Named("router"),
		metrics: newMetricsTable(catalogue.Order),
	}
}

// Select picks the best model for a request.
func (r *Router) Select(req models.Request) models.Selection {
	req = preOptimize(req)

	candidates := r.candidates(req)
	if len(candidates) == 0 {
		return r.fallbackSelection(req)
	}

	type scored struct {
		id       models.ModelID
		order    int
		raw      float64
		adjusted float64
		cost     float64
	}

	loadCounts := r.recentLoadCounts()
	ranked := make([]scored, 0, len(candidates))
	for i, id := range candidates {
		raw := r.score(id, req)
		cost := estimateRequestCost(id, req)
		ranked = append(ranked, scored{
			id:       id,
			order:    i,
			raw:      raw,
			adjusted: raw * loadFactor(loadCounts[id]),
			cost:     cost,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].adjusted != ranked[j].adjusted {
			return ranked[i].adjusted > ranked[j].adjusted
		}
		if ranked[i].cost != ranked[j].cost {
			return ranked[i].cost < ranked[j].cost
		}
		return ranked[i].order < ranked[j].order
	})

	best := ranked[0]
	confidence := best.raw / 100
	if confidence > 1 {
		confidence = 1
	}
	if len(ranked) > 1 {
		margin := 0.5 + (best.adjusted-ranked[1].adjusted)/100
		if margin < confidence {
			confidence = margin
		}
	}

	fallbacks := make([]models.ModelID, 0, 2)
	for _, s := range ranked[1:] {
		fallbacks = append(fallbacks, s.id)
		if len(fallbacks) == 2 {
			break
		}
	}

	selection := models.Selection{
		Model:         best.id,
		Confidence:    confidence,
		Reason:        explainSelection(best.id, req, best.adjusted),
		EstimatedCost: best.cost,
		Fallbacks:     fallbacks,
	}

	r.recordSelection(req, selection)

	r.logger.Debug("model selected",
		zap.String("model", string(selection.Model)),
		zap.String("task_type", string(req.TaskType)),
		zap.Int("complexity", req.Complexity),
		zap.Float64("confidence", selection.Confidence),
		zap.Float64("estimated_cost", selection.EstimatedCost),
	)
	return selection
}

// candidates filters the catalogue by complexity and vision capability.
// Task suitability affects scoring only.
func (r *Router) candidates(req models.Request) []models.ModelID {
	out := make([]models.ModelID, 0, len(catalogue.Order))
	for _, id := range catalogue.Order {
		cap := catalogue.MustLookup(id).Capability
		if cap.MaxComplexity < req.Complexity {
			continue
		}
		if req.RequiresVision && !cap.Vision {
			continue
		}
		out = append(out, id)
	}
	return out
}

func (r *Router) score(id models.ModelID, req models.Request) float64 {
	return r.costScore(id, req)*weightCost +
		suitabilityScore(id, req)*weightSuitability +
		r.performanceScore(id)*weightPerformance +
		tierScore(id, req.UserTier)*weightTier
}

func (r *Router) costScore(id models.ModelID, req models.Request) float64 {
	cost := estimateRequestCost(id, req)
	if req.MaxCost != nil && cost > *req.MaxCost {
		return 0
	}
	score := 100 - (cost/referenceCost)*100
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func suitabilityScore(id models.ModelID, req models.Request) float64 {
	cap := catalogue.MustLookup(id).Capability

	var base float64
	switch {
	case cap.HasStrength(req.TaskType):
		base = 90
	case req.Complexity <= cap.MaxComplexity:
		base = 70
	default:
		base = 30
	}

	complexityMatch := float64(cap.MaxComplexity) / float64(req.Complexity)
	if complexityMatch > 1 {
		complexityMatch = 1
	}
	base += complexityMatch * 10

	qualityBonus := map[models.QualityTier]float64{
		models.QualityBasic:      0,
		models.QualityGood:       5,
		models.QualityHigh:       10,
		models.QualityPremium:    15,
		models.QualityEnterprise: 20,
	}
	base += qualityBonus[cap.QualityTier]

	if base > 100 {
		return 100
	}
	return base
}

func (r *Router) performanceScore(id models.ModelID) float64 {
	m := r.metrics.get(id)

	efficiency := m.CostEfficiency
	if efficiency > 2.0 {
		efficiency = 2.0
	}

	score := 100 * (0.4*m.SuccessRate + 0.4*m.AvgQuality + 0.2*efficiency)
	if score > 100 {
		return 100
	}
	return score
}

func tierScore(id models.ModelID, tier models.UserTier) float64 {
	for i, preferred := range catalogue.TierPreferences[tier] {
		if preferred == id {
			score := 100 - 20*float64(i)
			if score < 0 {
				return 0
			}
			return score
		}
	}
	if tier == models.TierFree && catalogue.PremiumModels[id] {
		return 10
	}
	return 50
}

// recentLoadCounts tallies model usage over the load-balancing window.
func (r *Router) recentLoadCounts() map[models.ModelID]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	window := r.history
	if len(window) > r.cfg.LoadBalanceWindow {
		window = window[len(window)-r.cfg.LoadBalanceWindow:]
	}

	counts := make(map[models.ModelID]int)
	for _, rec := range window {
		counts[rec.Model]++
	}
	return counts
}

func loadFactor(count int) float64 {
	switch {
	case count <= 20:
		return 1.0
	case count <= 30:
		return 0.9
	case count <= 40:
		return 0.8
	default:
		return 0.7
	}
}

// fallbackSelection handles an empty candidate set: vision requests force
// the vision model, very complex requests force a model that can take
// them, everything else lands on the tier default.
func (r *Router) fallbackSelection(req models.Request) models.Selection {
	var id models.ModelID
	var reason string
	switch {
	case req.RequiresVision:
		id = models.ModelGPT4Vision
		reason = "Fallback selection - vision capability required"
	case req.Complexity > 7:
		id = models.ModelClaudeSonnet
		reason = "Fallback selection - high complexity requires premium model"
	default:
		id = catalogue.TierDefault[req.UserTier]
		if id == "" {
			id = models.ModelGeminiFlash
		}
		reason = "Fallback selection - no optimal candidates found"
	}

	r.logger.Warn("no suitable candidates, using fallback model",
		zap.String("model", string(id)),
		zap.String("task_type", string(req.TaskType)),
		zap.Int("complexity", req.Complexity),
	)

	selection := models.Selection{
		Model:         id,
		Confidence:    0.5,
		Reason:        reason,
		EstimatedCost: estimateRequestCost(id, req),
		Fallbacks:     nil,
	}
	r.recordSelection(req, selection)
	return selection
}

func (r *Router) recordSelection(req models.Request, sel models.Selection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.history = append(r.history, SelectionRecord{
		Timestamp:     time.Now().UTC(),
		TaskType:      req.TaskType,
		Complexity:    req.Complexity,
		UserTier:      req.UserTier,
		Model:         sel.Model,
		Confidence:    sel.Confidence,
		EstimatedCost: sel.EstimatedCost,
		ContentLength: len(req.Content),
	})
	if len(r.history) > r.cfg.HistoryWindow {
		r.history = r.history[len(r.history)-r.cfg.HistoryWindow:]
	}
}

// RecordOutcome folds an observed response into the model's performance
// metrics. success is optional: nil leaves the success rate untouched.
func (r *Router) RecordOutcome(resp *models.Response, success *bool) {
	m := r.metrics.observe(resp, success)
	r.logger.Debug("performance metrics updated",
		zap.String("model", string(resp.Model)),
		zap.Float64("avg_quality", m.AvgQuality),
		zap.Float64("success_rate", m.SuccessRate),
		zap.Float64("cost_efficiency", m.CostEfficiency),
	)
}

// MetricsFor returns the current metrics snapshot for a model.
func (r *Router) MetricsFor(id models.ModelID) ModelMetrics {
	return r.metrics.get(id)
}

// History returns a copy of the retained selection records, oldest first.
func (r *Router) History() []SelectionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SelectionRecord, len(r.history))
	copy(out, r.history)
	return out
}

// Recommendations ranks the top models for a task type and tier at
// medium complexity.
func (r *Router) Recommendations(task models.TaskType, tier models.UserTier) []models.ModelID {
	probe := models.Request{
		TaskType:   task,
		Complexity: 5,
		Content:    "Sample content for analysis",
		UserTier:   tier,
	}

	candidates := r.candidates(probe)
	sort.SliceStable(candidates, func(i, j int) bool {
		return r.score(candidates[i], probe) > r.score(candidates[j], probe)
	})

	if len(candidates) > 3 {
		candidates = candidates[:3]
	}
	return candidates
}

// CostAnalysis estimates per-model cost for a hypothetical request of
// the given word count.
func (r *Router) CostAnalysis(contentWords int, task models.TaskType) map[models.ModelID]float64 {
	probe := models.Request{
		TaskType:   task,
		Complexity: 5,
		Content:    strings.TrimSpace(strings.Repeat("x ", contentWords)),
		UserTier:   models.TierBusiness,
	}

	out := make(map[models.ModelID]float64, len(catalogue.Order))
	for _, id := range catalogue.Order {
		out[id] = estimateRequestCost(id, probe)
	}
	return out
}

func estimateRequestCost(id models.ModelID, req models.Request) float64 {
	return catalogue.EstimateCost(id, req.Content, req.TaskType, req.RequiresVision)
}

func explainSelection(id models.ModelID, req models.Request, score float64) string {
	cost := estimateRequestCost(id, req)
	cap := catalogue.MustLookup(id).Capability

	reasons := make([]string, 0, 4)
	switch {
	case cost < 0.001:
		reasons = append(reasons, "ultra-low cost")
	case cost < 0.01:
		reasons = append(reasons, "cost-effective")
	case cost < 0.05:
		reasons = append(reasons, "balanced cost/quality")
	default:
		reasons = append(reasons, "premium quality justified")
	}

	if cap.HasStrength(req.TaskType) {
		reasons = append(reasons, fmt.Sprintf("optimized for %s", req.TaskType))
	}
	if req.Complexity <= cap.MaxComplexity {
		reasons = append(reasons, "complexity match")
	}
	for _, preferred := range catalogue.TierPreferences[req.UserTier] {
		if preferred == id {
			reasons = append(reasons, fmt.Sprintf("tier-appropriate for %s", req.UserTier))
			break
		}
	}

	return fmt.Sprintf("Selected %s (score: %.1f) - %s", id, score, strings.Join(reasons, ", "))
}
