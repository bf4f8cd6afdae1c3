package router

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/relaymesh/aibroker/internal/models"
)

func TestPreOptimize(t *testing.T) {
	t.Run("short content lowers inflated complexity", func(t *testing.T) {
		req := preOptimize(models.Request{
			TaskType:   models.TaskSummarization,
			Complexity: 6,
			Content:    "short prompt",
		})
		assert.Equal(t, 5, req.Complexity)
	})

	t.Run("complexity floor of 2 on short content", func(t *testing.T) {
		req := preOptimize(models.Request{
			TaskType:   models.TaskSummarization,
			Complexity: 4,
			Content:    "tiny",
		})
		assert.Equal(t, 3, req.Complexity)

		req = preOptimize(models.Request{
			TaskType:   models.TaskSummarization,
			Complexity: 2,
			Content:    "tiny",
		})
		assert.Equal(t, 2, req.Complexity)
	})

	t.Run("long content raises complexity with ceiling 8", func(t *testing.T) {
		long := strings.Repeat("a detailed requirement sentence. ", 100)
		req := preOptimize(models.Request{
			TaskType:   models.TaskSummarization,
			Complexity: 4,
			Content:    long,
		})
		assert.Equal(t, 5, req.Complexity)

		req = preOptimize(models.Request{
			TaskType:   models.TaskSummarization,
			Complexity: 7,
			Content:    long,
		})
		assert.Equal(t, 7, req.Complexity, "complexity >= 6 is left alone")
	})

	t.Run("code keywords retag content tasks", func(t *testing.T) {
		req := preOptimize(models.Request{
			TaskType:   models.TaskContentWriting,
			Complexity: 5,
			Content:    "write a landing page with a React component and some CSS styling for the hero section",
		})
		assert.Equal(t, models.TaskCodeGeneration, req.TaskType)
	})

	t.Run("code keywords retag analysis tasks", func(t *testing.T) {
		req := preOptimize(models.Request{
			TaskType:   models.TaskAnalysis,
			Complexity: 5,
			Content:    "look at this TypeScript function and tell me what it does in plain words please",
		})
		assert.Equal(t, models.TaskCodeGeneration, req.TaskType)
	})

	t.Run("analysis keywords retag content tasks", func(t *testing.T) {
		req := preOptimize(models.Request{
			TaskType:   models.TaskContentWriting,
			Complexity: 5,
			Content:    "please compare these two pricing plans and evaluate which one fits a small team better",
		})
		assert.Equal(t, models.TaskAnalysis, req.TaskType)
	})

	t.Run("unrelated tasks are never retagged", func(t *testing.T) {
		req := preOptimize(models.Request{
			TaskType:   models.TaskTranslation,
			Complexity: 5,
			Content:    "translate this API documentation into German and review the terminology for accuracy",
		})
		assert.Equal(t, models.TaskTranslation, req.TaskType)
	})

	t.Run("caller request is not mutated", func(t *testing.T) {
		original := models.Request{
			TaskType:   models.TaskContentWriting,
			Complexity: 6,
			Content:    "short html",
		}
		_ = preOptimize(original)
		assert.Equal(t, models.TaskContentWriting, original.TaskType)
		assert.Equal(t, 6, original.Complexity)
	})
}
