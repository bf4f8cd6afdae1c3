package cache

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/relaymesh/aibroker/internal/models"
)

func TestFingerprint(t *testing.T) {
	base := models.Request{
		TaskType:   models.TaskComponentGeneration,
		Complexity: 3,
		Content:    "blue submit button",
		UserTier:   models.TierCreator,
	}
	userID := uuid.New()

	t.Run("case and whitespace variants hash identically", func(t *testing.T) {
		variant := base
		variant.Content = "  Blue SUBMIT button  "
		assert.Equal(t, Fingerprint(base, userID), Fingerprint(variant, userID))
	})

	t.Run("different users hash differently", func(t *testing.T) {
		assert.NotEqual(t, Fingerprint(base, userID), Fingerprint(base, uuid.New()))
	})

	t.Run("every significant field matters", func(t *testing.T) {
		byComplexity := base
		byComplexity.Complexity = 4
		assert.NotEqual(t, Fingerprint(base, userID), Fingerprint(byComplexity, userID))

		byTask := base
		byTask.TaskType = models.TaskCodeGeneration
		assert.NotEqual(t, Fingerprint(base, userID), Fingerprint(byTask, userID))

		byVision := base
		byVision.RequiresVision = true
		assert.NotEqual(t, Fingerprint(base, userID), Fingerprint(byVision, userID))

		byTier := base
		byTier.UserTier = models.TierAgency
		assert.NotEqual(t, Fingerprint(base, userID), Fingerprint(byTier, userID))
	})

	t.Run("stable across calls", func(t *testing.T) {
		assert.Equal(t, Fingerprint(base, userID), Fingerprint(base, userID))
	})
}

func TestJaccardSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, jaccardSimilarity("blue submit button", "blue submit button"))
	assert.Equal(t, 1.0, jaccardSimilarity("", ""))
	assert.Equal(t, 0.0, jaccardSimilarity("blue submit button", ""))
	assert.InDelta(t, 0.75, jaccardSimilarity("blue submit button", "large blue submit button"), 1e-9)
	assert.Equal(t, 0.0, jaccardSimilarity("alpha beta", "gamma delta"))

	// word order and repetition are ignored
	assert.Equal(t, 1.0, jaccardSimilarity("button submit blue", "blue blue submit button"))
}
