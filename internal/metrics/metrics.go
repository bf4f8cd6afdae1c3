// Package metrics exposes the broker's Prometheus instrumentation.
// Collectors are registered once at init via promauto; the pipeline and
// CLI record through the helper functions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aibroker_requests_total",
			Help: "Total number of brokered requests",
		},
		[]string{"model", "task_type", "status"}, // status: success, fallback, cache_hit, error
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aibroker_request_duration_seconds",
			Help:    "Provider request latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"model"},
	)

	requestCost = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aibroker_request_cost_dollars_total",
			Help: "Cumulative provider spend in dollars",
		},
		[]string{"model", "user_tier"},
	)

	tokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aibroker_tokens_total",
			Help: "Total number of tokens used",
		},
		[]string{"model", "type"}, // type: input, output
	)

	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aibroker_cache_lookups_total",
			Help: "Cache lookup outcomes",
		},
		[]string{"result"}, // result: hit, miss
	)

	costSaved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aibroker_cache_cost_saved_dollars_total",
			Help: "Dollars not spent thanks to cache hits",
		},
	)

	budgetAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aibroker_budget_alerts_total",
			Help: "Budget alerts raised, by type and severity",
		},
		[]string{"type", "severity"},
	)

	budgetRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aibroker_budget_rejections_total",
			Help: "Requests refused because no affordable selection existed",
		},
	)

	fallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aibroker_fallbacks_total",
			Help: "Degraded fallback dispatches after a primary provider failure",
		},
		[]string{"primary_model"},
	)

	providerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aibroker_provider_errors_total",
			Help: "Provider call failures by error kind",
		},
		[]string{"model", "kind"},
	)
)

// RecordRequest records one completed brokered request.
func RecordRequest(model, taskType, status string, durationSeconds float64) {
	requestsTotal.WithLabelValues(model, taskType, status).Inc()
	if status == "success" || status == "fallback" {
		requestDuration.WithLabelValues(model).Observe(durationSeconds)
	}
}

// RecordSpend records token usage and dollar cost for a provider call.
func RecordSpend(model, userTier string, inputTokens, outputTokens int, cost float64) {
	tokensUsed.WithLabelValues(model, "input").Add(float64(inputTokens))
	tokensUsed.WithLabelValues(model, "output").Add(float64(outputTokens))
	requestCost.WithLabelValues(model, userTier).Add(cost)
}

// RecordCacheHit records a cache hit and the spend it avoided.
func RecordCacheHit(saved float64) {
	cacheLookups.WithLabelValues("hit").Inc()
	costSaved.Add(saved)
}

// RecordCacheMiss records a cache miss.
func RecordCacheMiss() {
	cacheLookups.WithLabelValues("miss").Inc()
}

// RecordBudgetAlert records a raised budget alert.
func RecordBudgetAlert(alertType, severity string) {
	budgetAlerts.WithLabelValues(alertType, severity).Inc()
}

// RecordBudgetRejection records a request refused for lack of budget.
func RecordBudgetRejection() {
	budgetRejections.Inc()
}

// RecordFallback records a degraded dispatch after a primary failure.
func RecordFallback(primaryModel string) {
	fallbacksTotal.WithLabelValues(primaryModel).Inc()
}

// RecordProviderError records a failed provider call by error kind.
func RecordProviderError(model, kind string) {
	providerErrors.WithLabelValues(model, kind).Inc()
}
