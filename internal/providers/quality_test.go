package providers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/relaymesh/aibroker/internal/models"
)

func TestAssessQuality(t *testing.T) {
	t.Run("near-empty content scores 0.1", func(t *testing.T) {
		assert.Equal(t, 0.1, assessQuality("  ok \n", models.TaskAnalysis, leanQualityProfile))
	})

	t.Run("code markers raise code task score", func(t *testing.T) {
		plain := assessQuality("here is a plain text answer without markers", models.TaskCodeGeneration, leanQualityProfile)
		code := assessQuality("import React from 'react'\nexport const App = () => { return null }", models.TaskCodeGeneration, leanQualityProfile)
		assert.Greater(t, code, plain)
	})

	t.Run("analysis structure bonus", func(t *testing.T) {
		flat := assessQuality("it looks fine to me overall", models.TaskAnalysis, leanQualityProfile)
		structured := assessQuality("Key findings:\n- latency\n- cost\n\nRecommendation: batch the writes\nConclusion: viable", models.TaskAnalysis, leanQualityProfile)
		assert.Greater(t, structured, flat)
	})

	t.Run("length bonuses respect profile thresholds", func(t *testing.T) {
		content := strings.Repeat("steady output sentence. ", 15) // ~360 chars
		lean := assessQuality(content, models.TaskTranslation, leanQualityProfile)
		rich := assessQuality(content, models.TaskTranslation, richQualityProfile)
		// lean: base 0.70 + length bonus; rich: base 0.75 + length bonus
		// + completeness bonus; neither crosses its long threshold
		assert.InDelta(t, 0.75, lean, 1e-9)
		assert.InDelta(t, 0.85, rich, 1e-9)
	})

	t.Run("score capped at 1.0", func(t *testing.T) {
		content := "import { x } from 'y'\nexport function f(): string { return x }\n" +
			strings.Repeat("const more = () => ({});\n", 60)
		assert.LessOrEqual(t, assessQuality(content, models.TaskComponentGeneration, richQualityProfile), 1.0)
	})
}

func TestDeriveOptions(t *testing.T) {
	t.Run("code tasks run cool", func(t *testing.T) {
		opts := deriveOptions(models.Request{TaskType: models.TaskCodeGeneration, Complexity: 7})
		assert.InDelta(t, 0.3, opts.Temperature, 1e-9)
		assert.Equal(t, 4000, opts.MaxTokens)
	})

	t.Run("low complexity cools further", func(t *testing.T) {
		opts := deriveOptions(models.Request{TaskType: models.TaskContentWriting, Complexity: 2, Content: "short"})
		assert.InDelta(t, 0.56, opts.Temperature, 1e-9)
	})

	t.Run("summarization capped at 1000 tokens", func(t *testing.T) {
		opts := deriveOptions(models.Request{TaskType: models.TaskSummarization, Complexity: 5, Content: strings.Repeat("word ", 5000)})
		assert.Equal(t, 1000, opts.MaxTokens)
	})

	t.Run("default budget scales with input", func(t *testing.T) {
		opts := deriveOptions(models.Request{TaskType: models.TaskAnalysis, Complexity: 5, Content: strings.Repeat("word ", 100)})
		assert.Equal(t, int(2*100*1.3), opts.MaxTokens)

		opts = deriveOptions(models.Request{TaskType: models.TaskAnalysis, Complexity: 5, Content: strings.Repeat("word ", 5000)})
		assert.Equal(t, 4000, opts.MaxTokens)
	})
}
