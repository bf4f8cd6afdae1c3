package cache

import (
	"time"

	"github.com/relaymesh/aibroker/internal/models"
)

// maxTTL is the ceiling any entry's TTL can reach through hit extension.
const maxTTL = 30 * 24 * time.Hour

// policy is the per-task-kind caching behaviour: how long entries live,
// how similar a fuzzy candidate must be, and whether fuzzy matching is
// allowed at all.
type policy struct {
	TTL                 time.Duration
	SimilarityThreshold float64
	Fuzzy               bool
}

// Deterministic code output tolerates no fuzz; prose-like tasks reuse
// near-duplicates aggressively.
var taskPolicies = map[models.TaskType]policy{
	models.TaskCodeGeneration:      {TTL: 14 * 24 * time.Hour, SimilarityThreshold: 0.95, Fuzzy: false},
	models.TaskComponentGeneration: {TTL: 30 * 24 * time.Hour, SimilarityThreshold: 0.90, Fuzzy: true},
	models.TaskContentWriting:      {TTL: 7 * 24 * time.Hour, SimilarityThreshold: 0.80, Fuzzy: true},
	models.TaskAnalysis:            {TTL: 3 * 24 * time.Hour, SimilarityThreshold: 0.75, Fuzzy: true},
}

var defaultPolicy = policy{TTL: 7 * 24 * time.Hour, SimilarityThreshold: 0.85, Fuzzy: false}

func policyFor(task models.TaskType) policy {
	if p, ok := taskPolicies[task]; ok {
		return p
	}
	return defaultPolicy
}

// extendTTL doubles the current TTL, clamped to the 30-day ceiling.
func extendTTL(current time.Duration) time.Duration {
	extended := 2 * current
	if extended > maxTTL {
		return maxTTL
	}
	return extended
}
