package models

// TaskType classifies what kind of generation work a request asks for.
type TaskType string

const (
	TaskCodeGeneration      TaskType = "code_generation"
	TaskComponentGeneration TaskType = "component_generation"
	TaskContentWriting      TaskType = "content_writing"
	TaskAnalysis            TaskType = "analysis"
	TaskOptimization        TaskType = "optimization"
	TaskSummarization       TaskType = "summarization"
	TaskTranslation         TaskType = "translation"
	TaskCampaignAnalysis    TaskType = "campaign_analysis"
	TaskDesignReview        TaskType = "design_review"
)

// TaskTypes lists every valid task type, for validation and CHECK constraints.
var TaskTypes = []TaskType{
	TaskCodeGeneration,
	TaskComponentGeneration,
	TaskContentWriting,
	TaskAnalysis,
	TaskOptimization,
	TaskSummarization,
	TaskTranslation,
	TaskCampaignAnalysis,
	TaskDesignReview,
}

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	for _, known := range TaskTypes {
		if t == known {
			return true
		}
	}
	return false
}

// UserTier is the subscription bucket that determines monthly spend caps
// and model preferences.
type UserTier string

const (
	TierFree     UserTier = "free"
	TierCreator  UserTier = "creator"
	TierBusiness UserTier = "business"
	TierAgency   UserTier = "agency"
)

// ModelID identifies a routable model in the catalogue.
type ModelID string

const (
	ModelDeepSeekV3   ModelID = "deepseek-v3"
	ModelGeminiFlash  ModelID = "gemini-1.5-flash"
	ModelGeminiPro    ModelID = "gemini-1.5-pro"
	ModelClaudeSonnet ModelID = "claude-3.5-sonnet"
	ModelGPT4Turbo    ModelID = "gpt-4-turbo"
	ModelGPT4Vision   ModelID = "gpt-4-vision"
)

// QualityTier ranks the expected output quality of a model.
type QualityTier string

const (
	QualityBasic      QualityTier = "basic"
	QualityGood       QualityTier = "good"
	QualityHigh       QualityTier = "high"
	QualityPremium    QualityTier = "premium"
	QualityEnterprise QualityTier = "enterprise"
)

// Complexity bounds. Requests carry an integer complexity on a 1-10 scale.
const (
	MinComplexity = 1
	MaxComplexity = 10
)
