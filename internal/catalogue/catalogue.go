// Package catalogue holds the static model tables: what each model costs,
// what it is good at, and which models each subscription tier prefers.
// The tables are process-wide read-only state initialised at startup.
package catalogue

import (
	"strings"

	"github.com/relaymesh/aibroker/internal/models"
)

// Cost is the price structure for one model, per 1M tokens.
type Cost struct {
	InputPer1M  float64 // $ per 1M input tokens
	OutputPer1M float64 // $ per 1M output tokens
	PerImage    float64 // $ per image, 0 when the model has no vision pricing
}

// Price computes the dollar cost of a call.
func (c Cost) Price(inputTokens, outputTokens, images int) float64 {
	cost := (float64(inputTokens)/1e6)*c.InputPer1M + (float64(outputTokens)/1e6)*c.OutputPer1M
	if c.PerImage > 0 && images > 0 {
		cost += float64(images) * c.PerImage
	}
	return cost
}

// Capability describes what a model can handle.
type Capability struct {
	Strengths     []models.TaskType
	MaxComplexity int
	ContextWindow int
	QualityTier   models.QualityTier
	Vision        bool
}

// HasStrength reports whether task is one of the model's declared strengths.
func (c Capability) HasStrength(task models.TaskType) bool {
	for _, s := range c.Strengths {
		if s == task {
			return true
		}
	}
	return false
}

// Entry pairs a model's cost and capability.
type Entry struct {
	ID         models.ModelID
	Cost       Cost
	Capability Capability
}

// Order is the declaration order of the catalogue. Iterating it is the
// deterministic tie-break of last resort for the router.
var Order = []models.ModelID{
	models.ModelDeepSeekV3,
	models.ModelGeminiFlash,
	models.ModelGeminiPro,
	models.ModelClaudeSonnet,
	models.ModelGPT4Turbo,
	models.ModelGPT4Vision,
}

// Prices as of December 2024.
var entries = map[models.ModelID]Entry{
	models.ModelDeepSeekV3: {
		ID:   models.ModelDeepSeekV3,
		Cost: Cost{InputPer1M: 0.14, OutputPer1M: 0.28},
		Capability: Capability{
			Strengths:     []models.TaskType{models.TaskCodeGeneration, models.TaskAnalysis, models.TaskOptimization},
			MaxComplexity: 4,
			ContextWindow: 32000,
			QualityTier:   models.QualityBasic,
		},
	},
	models.ModelGeminiFlash: {
		ID:   models.ModelGeminiFlash,
		Cost: Cost{InputPer1M: 0.075, OutputPer1M: 0.30},
		Capability: Capability{
			Strengths:     []models.TaskType{models.TaskSummarization, models.TaskTranslation, models.TaskContentWriting},
			MaxComplexity: 3,
			ContextWindow: 32000,
			QualityTier:   models.QualityGood,
		},
	},
	models.ModelGeminiPro: {
		ID:   models.ModelGeminiPro,
		Cost: Cost{InputPer1M: 1.25, OutputPer1M: 5.00},
		Capability: Capability{
			Strengths:     []models.TaskType{models.TaskAnalysis, models.TaskOptimization, models.TaskComponentGeneration},
			MaxComplexity: 6,
			ContextWindow: 128000,
			QualityTier:   models.QualityHigh,
		},
	},
	models.ModelClaudeSonnet: {
		ID:   models.ModelClaudeSonnet,
		Cost: Cost{InputPer1M: 3.00, OutputPer1M: 15.00},
		Capability: Capability{
			Strengths:     []models.TaskType{models.TaskContentWriting, models.TaskCampaignAnalysis, models.TaskDesignReview},
			MaxComplexity: 8,
			ContextWindow: 200000,
			QualityTier:   models.QualityPremium,
		},
	},
	models.ModelGPT4Turbo: {
		ID:   models.ModelGPT4Turbo,
		Cost: Cost{InputPer1M: 10.00, OutputPer1M: 30.00},
		Capability: Capability{
			MaxComplexity: 10,
			ContextWindow: 128000,
			QualityTier:   models.QualityEnterprise,
		},
	},
	models.ModelGPT4Vision: {
		ID:   models.ModelGPT4Vision,
		Cost: Cost{InputPer1M: 10.00, OutputPer1M: 30.00, PerImage: 0.00765},
		Capability: Capability{
			Strengths:     []models.TaskType{models.TaskDesignReview},
			MaxComplexity: 10,
			ContextWindow: 128000,
			QualityTier:   models.QualityEnterprise,
			Vision:        true,
		},
	},
}

// Lookup returns the catalogue entry for id. The second result is false
// for unknown models.
func Lookup(id models.ModelID) (Entry, bool) {
	e, ok := entries[id]
	return e, ok
}

// MustLookup returns the catalogue entry for id, panicking on unknown
// models. Use only with ids that came out of the catalogue itself.
func MustLookup(id models.ModelID) Entry {
	e, ok := entries[id]
	if !ok {
		panic("catalogue: unknown model " + string(id))
	}
	return e
}

// Price computes the cost of a call against model id.
func Price(id models.ModelID, inputTokens, outputTokens, images int) float64 {
	return MustLookup(id).Cost.Price(inputTokens, outputTokens, images)
}

// TierPreferences is the ordered model preference list per subscription
// tier. Earlier entries score higher for that tier.
var TierPreferences = map[models.UserTier][]models.ModelID{
	models.TierFree:     {models.ModelDeepSeekV3, models.ModelGeminiFlash},
	models.TierCreator:  {models.ModelGeminiFlash, models.ModelGeminiPro, models.ModelDeepSeekV3},
	models.TierBusiness: {models.ModelGeminiPro, models.ModelClaudeSonnet, models.ModelGeminiFlash},
	models.TierAgency:   {models.ModelClaudeSonnet, models.ModelGPT4Turbo, models.ModelGeminiPro},
}

// TierDefault is the fallback model per tier when no candidate survives
// filtering.
var TierDefault = map[models.UserTier]models.ModelID{
	models.TierFree:     models.ModelGeminiFlash,
	models.TierCreator:  models.ModelGeminiFlash,
	models.TierBusiness: models.ModelGeminiPro,
	models.TierAgency:   models.ModelClaudeSonnet,
}

// PremiumModels are penalised for the free tier when scoring.
var PremiumModels = map[models.ModelID]bool{
	models.ModelClaudeSonnet: true,
	models.ModelGPT4Turbo:    true,
	models.ModelGPT4Vision:   true,
}

// outputMultipliers scale estimated output tokens by task type.
var outputMultipliers = map[models.TaskType]float64{
	models.TaskCodeGeneration:      2.0,
	models.TaskContentWriting:      1.5,
	models.TaskAnalysis:            1.2,
	models.TaskOptimization:        1.3,
	models.TaskComponentGeneration: 2.5,
	models.TaskCampaignAnalysis:    1.8,
}

// EstimateTokens approximates input and output token counts for a request
// body. The word-count heuristic (words x 1.3) is deliberately crude; it
// only has to be consistent between routing estimates and recorded costs.
func EstimateTokens(content string, task models.TaskType) (inputTokens, outputTokens int) {
	in := float64(len(strings.Fields(content))) * 1.3
	mult, ok := outputMultipliers[task]
	if !ok {
		mult = 1.0
	}
	return int(in), int(in * mult)
}

// EstimateCost predicts the dollar cost of running a request on a model.
func EstimateCost(id models.ModelID, content string, task models.TaskType, vision bool) float64 {
	in, out := EstimateTokens(content, task)
	images := 0
	if vision {
		images = 1
	}
	return Price(id, in, out, images)
}
