package router

import (
	"strings"

	"github.com/relaymesh/aibroker/internal/models"
)

var codeKeywords = []string{
	"component", "function", "react", "javascript", "typescript", "css", "html", "api",
}

var analysisKeywords = []string{
	"analyze", "review", "compare", "evaluate", "assess", "audit",
}

// preOptimize normalises a request before scoring: short prompts with
// inflated complexity are nudged down, long prompts up, and obviously
// mislabelled tasks are retagged from their content. Operates on a copy;
// the caller's request is never mutated.
func preOptimize(req models.Request) models.Request {
	contentLen := len(req.Content)

	if contentLen < 50 && req.Complexity > 3 {
		req.Complexity--
		if req.Complexity < 2 {
			req.Complexity = 2
		}
	}
	if contentLen > 2000 && req.Complexity < 6 {
		req.Complexity++
		if req.Complexity > 8 {
			req.Complexity = 8
		}
	}

	lower := strings.ToLower(req.Content)

	if req.TaskType == models.TaskContentWriting || req.TaskType == models.TaskAnalysis {
		if containsAnyKeyword(lower, codeKeywords) {
			req.TaskType = models.TaskCodeGeneration
			return req
		}
	}
	if req.TaskType == models.TaskContentWriting && containsAnyKeyword(lower, analysisKeywords) {
		req.TaskType = models.TaskAnalysis
	}

	return req
}

func containsAnyKeyword(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
