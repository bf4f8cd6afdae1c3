package providers

import (
	"strings"

	"github.com/relaymesh/aibroker/internal/models"
)

// qualityProfile tunes the response-quality heuristic per provider.
// Providers with stronger baseline output start higher and use longer
// length thresholds.
type qualityProfile struct {
	Base              float64
	LengthBonusAt     int
	LongLengthBonusAt int
	CompletenessBonus bool
}

var (
	leanQualityProfile = qualityProfile{
		Base:              0.70,
		LengthBonusAt:     100,
		LongLengthBonusAt: 500,
	}
	richQualityProfile = qualityProfile{
		Base:              0.75,
		LengthBonusAt:     200,
		LongLengthBonusAt: 1000,
		CompletenessBonus: true,
	}
)

// assessQuality scores a response on cheap textual signals. It is a
// heuristic, not a judgment: the score only feeds routing metrics and
// cache admission, never user-facing output.
func assessQuality(content string, task models.TaskType, profile qualityProfile) float64 {
	if len(strings.TrimSpace(content)) < 10 {
		return 0.1
	}

	score := profile.Base
	lower := strings.ToLower(content)

	switch task {
	case models.TaskCodeGeneration, models.TaskComponentGeneration:
		if containsAny(content, "import", "export", "function", "const", "=>") {
			score += 0.1
		}
		if containsAny(content, "interface", ": ", "TypeScript") {
			score += 0.05
		}
		if strings.Contains(content, "{") && strings.Contains(content, "}") {
			score += 0.05
		}
	case models.TaskContentWriting:
		if strings.Count(content, "\n\n") > 1 {
			score += 0.1
		}
		if containsAny(content, "##", "**", "1.", "- ") {
			score += 0.05
		}
	case models.TaskAnalysis, models.TaskCampaignAnalysis:
		if containsAny(lower, "analysis", "findings", "recommendation", "conclusion") {
			score += 0.1
		}
		if strings.Count(content, "\n") > 3 {
			score += 0.05
		}
	}

	if len(content) > profile.LengthBonusAt {
		score += 0.05
	}
	if len(content) > profile.LongLengthBonusAt {
		score += 0.05
	}

	if profile.CompletenessBonus && endsComplete(content) {
		score += 0.05
	}

	if score > 1.0 {
		return 1.0
	}
	return score
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// endsComplete guesses whether the response was truncated mid-thought.
func endsComplete(content string) bool {
	trimmed := strings.TrimRight(content, " \n\t")
	for _, suffix := range []string{".", "!", "?", "```", "}", ");"} {
		if strings.HasSuffix(trimmed, suffix) {
			return true
		}
	}
	return false
}
