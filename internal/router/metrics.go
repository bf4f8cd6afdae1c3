package router

import (
	"sync"
	"time"

	"github.com/relaymesh/aibroker/internal/models"
)

// ModelMetrics is the exponentially weighted view of one model's
// observed behaviour. Fresh models start from optimistic defaults so a
// new deployment does not starve any model of traffic.
type ModelMetrics struct {
	SuccessRate     float64   `json:"success_rate"`
	AvgQuality      float64   `json:"avg_quality"`
	AvgResponseTime float64   `json:"avg_response_time"` // seconds
	CostEfficiency  float64   `json:"cost_efficiency"`
	LastUpdated     time.Time `json:"last_updated"`
}

func defaultMetrics() ModelMetrics {
	return ModelMetrics{
		SuccessRate:     0.95,
		AvgQuality:      0.8,
		AvgResponseTime: 5.0,
		CostEfficiency:  1.0,
		LastUpdated:     time.Now().UTC(),
	}
}

// metricsTable is the concurrent store of per-model metrics.
type metricsTable struct {
	mu      sync.RWMutex
	byModel map[models.ModelID]ModelMetrics
}

func newMetricsTable(ids []models.ModelID) *metricsTable {
	t := &metricsTable{byModel: make(map[models.ModelID]ModelMetrics, len(ids))}
	for _, id := range ids {
		t.byModel[id] = defaultMetrics()
	}
	return t
}

func (t *metricsTable) get(id models.ModelID) ModelMetrics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if m, ok := t.byModel[id]; ok {
		return m
	}
	return defaultMetrics()
}

// observe folds a completed response into the model's metrics. Quality,
// response time and efficiency decay at 0.9/0.1; the success rate moves
// slower at 0.95/0.05 and only when an outcome flag is supplied.
func (t *metricsTable) observe(resp *models.Response, success *bool) ModelMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.byModel[resp.Model]
	if !ok {
		m = defaultMetrics()
	}

	m.AvgQuality = m.AvgQuality*0.9 + resp.QualityScore*0.1
	m.AvgResponseTime = m.AvgResponseTime*0.9 + resp.ProcessingTime*0.1

	if totalTokens := resp.InputTokens + resp.OutputTokens; totalTokens > 0 {
		costPerToken := resp.Cost / float64(totalTokens)
		if costPerToken < 1e-6 {
			costPerToken = 1e-6
		}
		m.CostEfficiency = m.CostEfficiency*0.9 + (1.0/costPerToken)*0.1
	}

	if success != nil {
		flag := 0.0
		if *success {
			flag = 1.0
		}
		m.SuccessRate = m.SuccessRate*0.95 + flag*0.05
	}

	m.LastUpdated = time.Now().UTC()
	t.byModel[resp.Model] = m
	return m
}
