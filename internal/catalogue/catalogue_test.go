package catalogue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/aibroker/internal/models"
)

func TestPrice(t *testing.T) {
	t.Run("token pricing", func(t *testing.T) {
		// 1M input + 1M output at deepseek rates
		assert.InDelta(t, 0.14+0.28, Price(models.ModelDeepSeekV3, 1_000_000, 1_000_000, 0), 1e-9)
		// small calls stay fractional
		assert.InDelta(t, 100.0/1e6*1.25+200.0/1e6*5.00, Price(models.ModelGeminiPro, 100, 200, 0), 1e-12)
	})

	t.Run("image surcharge only where priced", func(t *testing.T) {
		base := Price(models.ModelGPT4Vision, 1000, 1000, 0)
		assert.InDelta(t, base+2*0.00765, Price(models.ModelGPT4Vision, 1000, 1000, 2), 1e-12)

		// models without vision pricing ignore the image count
		assert.Equal(t, Price(models.ModelGPT4Turbo, 1000, 1000, 0), Price(models.ModelGPT4Turbo, 1000, 1000, 2))
	})

	t.Run("zero usage costs nothing", func(t *testing.T) {
		assert.Equal(t, 0.0, Price(models.ModelClaudeSonnet, 0, 0, 0))
	})
}

func TestCatalogueConsistency(t *testing.T) {
	t.Run("order covers every entry exactly once", func(t *testing.T) {
		require.Len(t, Order, len(entries))
		seen := map[models.ModelID]bool{}
		for _, id := range Order {
			_, ok := Lookup(id)
			require.True(t, ok, "ordered model %s missing from entries", id)
			assert.False(t, seen[id])
			seen[id] = true
		}
	})

	t.Run("tier preferences point at real models", func(t *testing.T) {
		for tier, prefs := range TierPreferences {
			require.NotEmpty(t, prefs, "tier %s", tier)
			for _, id := range prefs {
				_, ok := Lookup(id)
				assert.True(t, ok, "tier %s prefers unknown model %s", tier, id)
			}
		}
		for tier, id := range TierDefault {
			_, ok := Lookup(id)
			assert.True(t, ok, "tier %s defaults to unknown model %s", tier, id)
		}
	})

	t.Run("vision flag matches image pricing", func(t *testing.T) {
		for id, e := range entries {
			if e.Cost.PerImage > 0 {
				assert.True(t, e.Capability.Vision, "%s prices images but is not vision-capable", id)
			}
		}
	})

	t.Run("lookup misses on unknown model", func(t *testing.T) {
		_, ok := Lookup(models.ModelID("gpt-5"))
		assert.False(t, ok)
	})
}

func TestHasStrength(t *testing.T) {
	e := MustLookup(models.ModelDeepSeekV3)
	assert.True(t, e.Capability.HasStrength(models.TaskCodeGeneration))
	assert.False(t, e.Capability.HasStrength(models.TaskDesignReview))

	// gpt-4-turbo is a generalist with no declared strengths
	assert.False(t, MustLookup(models.ModelGPT4Turbo).Capability.HasStrength(models.TaskAnalysis))
}

func TestEstimateTokens(t *testing.T) {
	t.Run("word count heuristic", func(t *testing.T) {
		in, out := EstimateTokens("one two three four five six seven eight nine ten", models.TaskTranslation)
		assert.Equal(t, 13, in) // 10 words x 1.3
		assert.Equal(t, 13, out)
	})

	t.Run("output multiplier per task", func(t *testing.T) {
		_, code := EstimateTokens("ten words in here for the multiplier check right now", models.TaskCodeGeneration)
		_, component := EstimateTokens("ten words in here for the multiplier check right now", models.TaskComponentGeneration)
		assert.Equal(t, 26, code)      // x2.0
		assert.Equal(t, 32, component) // int(13 * 2.5)
	})

	t.Run("empty content", func(t *testing.T) {
		in, out := EstimateTokens("", models.TaskAnalysis)
		assert.Zero(t, in)
		assert.Zero(t, out)
	})
}

func TestEstimateCost(t *testing.T) {
	content := "review the attached dashboard screenshot for accessibility problems"
	withImage := EstimateCost(models.ModelGPT4Vision, content, models.TaskDesignReview, true)
	withoutImage := EstimateCost(models.ModelGPT4Vision, content, models.TaskDesignReview, false)
	assert.InDelta(t, 0.00765, withImage-withoutImage, 1e-12)
}
