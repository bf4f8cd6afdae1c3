package providers

import (
	"strings"

	"github.com/relaymesh/aibroker/internal/models"
)

// generationOptions are the tunables derived from a request before it is
// serialised into a provider payload.
type generationOptions struct {
	Temperature float64
	MaxTokens   int
}

// deriveOptions picks sampling parameters from the request shape. Code
// tasks run cooler for determinism, and simple requests are cooled
// further so cheap calls stay predictable.
func deriveOptions(req models.Request) generationOptions {
	temp := 0.7
	switch req.TaskType {
	case models.TaskCodeGeneration, models.TaskComponentGeneration:
		temp = 0.3
	}
	if req.Complexity <= 3 {
		temp *= 0.8
	}

	return generationOptions{
		Temperature: temp,
		MaxTokens:   deriveMaxTokens(req),
	}
}

func deriveMaxTokens(req models.Request) int {
	switch req.TaskType {
	case models.TaskSummarization:
		return 1000
	case models.TaskCodeGeneration, models.TaskComponentGeneration:
		return 4000
	}

	words := len(strings.Fields(req.Content))
	estimated := int(2 * float64(words) * 1.3)
	if estimated > 4000 {
		return 4000
	}
	return estimated
}

// estimateInputTokens approximates the token count of a prompt. The
// word-count heuristic is deliberately the same one the pricing tables
// use so estimates and recorded costs agree.
func estimateInputTokens(content string) int {
	return int(float64(len(strings.Fields(content))) * 1.3)
}
