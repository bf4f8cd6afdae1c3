package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/relaymesh/aibroker/internal/models"
)

// Fingerprint derives the cache key for a request: SHA-256 over the
// canonical JSON form of the significant request fields. Content is
// lowercased and trimmed first so requests differing only in case or
// surrounding whitespace hash identically. json.Marshal sorts map keys,
// which gives the canonical encoding.
func Fingerprint(req models.Request, userID uuid.UUID) string {
	payload := map[string]any{
		"task_type":       string(req.TaskType),
		"content":         normalizeContent(req.Content),
		"complexity":      req.Complexity,
		"user_tier":       string(req.UserTier),
		"requires_vision": req.RequiresVision,
		"user_id":         userID.String(),
	}

	encoded, _ := json.Marshal(payload)
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

func normalizeContent(content string) string {
	return strings.ToLower(strings.TrimSpace(content))
}

// jaccardSimilarity measures word-set overlap of two normalised
// contents. Both inputs are whitespace-tokenised; the result is
// |intersection| / |union| in [0,1].
func jaccardSimilarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0.0
	}

	intersection := 0
	for token := range setA {
		if _, ok := setB[token]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, token := range strings.Fields(strings.ToLower(s)) {
		out[token] = struct{}{}
	}
	return out
}
