package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/relaymesh/aibroker/internal/logger"
	"github.com/relaymesh/aibroker/internal/models"
)

type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Budget    BudgetConfig    `mapstructure:"budget"`
	Router    RouterConfig    `mapstructure:"router"`
	Logging   logger.Config   `mapstructure:"logging"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MaxIdleConns    int           `mapstructure:"max_idle_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// ProviderConfig is one upstream LLM endpoint.
type ProviderConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type ProvidersConfig struct {
	DeepSeek ProviderConfig `mapstructure:"deepseek"`
	Gemini   ProviderConfig `mapstructure:"gemini"`
	Claude   ProviderConfig `mapstructure:"claude"`
	OpenAI   ProviderConfig `mapstructure:"openai"`

	// RateLimitThreshold is the remaining-request floor below which a
	// client sleeps until the limit window resets.
	RateLimitThreshold int `mapstructure:"rate_limit_threshold"`
	// RateLimitSleepCap bounds that sleep so cancellation latency stays
	// bounded.
	RateLimitSleepCap time.Duration `mapstructure:"rate_limit_sleep_cap"`
}

type CacheConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	DefaultTTL          time.Duration `mapstructure:"default_ttl"`
	SimilarityThreshold float64       `mapstructure:"similarity_threshold"`
	QualityFloor        float64       `mapstructure:"quality_floor"`
}

type BudgetConfig struct {
	// TierMonthlyLimits maps tier name to the monthly dollar cap.
	TierMonthlyLimits map[string]float64 `mapstructure:"tier_monthly_limits"`
	WarningThreshold  float64            `mapstructure:"warning_threshold"`
	CriticalThreshold float64            `mapstructure:"critical_threshold"`
	ExceededThreshold float64            `mapstructure:"exceeded_threshold"`
}

// TierLimit returns the monthly cap for a tier, falling back to the free
// tier for unknown values.
func (b BudgetConfig) TierLimit(tier models.UserTier) float64 {
	if limit, ok := b.TierMonthlyLimits[string(tier)]; ok {
		return limit
	}
	return b.TierMonthlyLimits[string(models.TierFree)]
}

type RouterConfig struct {
	// HistoryWindow is how many past selections are retained in memory.
	HistoryWindow int `mapstructure:"history_window"`
	// LoadBalanceWindow is how many recent selections feed the
	// load-balancing factor.
	LoadBalanceWindow int `mapstructure:"load_balance_window"`
}

func Load(configPath string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.AddConfigPath(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/aibroker")
	}

	setDefaults()

	viper.AutomaticEnv()
	bindEnvVars()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.max_idle_connections", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")

	viper.SetDefault("redis.url", "redis://localhost:6379")
	viper.SetDefault("redis.pool_size", 10)

	viper.SetDefault("providers.deepseek.base_url", "https://api.deepseek.com/v1")
	viper.SetDefault("providers.gemini.base_url", "https://generativelanguage.googleapis.com/v1")
	viper.SetDefault("providers.claude.base_url", "https://api.anthropic.com/v1")
	viper.SetDefault("providers.openai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("providers.deepseek.request_timeout", "60s")
	viper.SetDefault("providers.gemini.request_timeout", "60s")
	viper.SetDefault("providers.claude.request_timeout", "60s")
	viper.SetDefault("providers.openai.request_timeout", "60s")
	viper.SetDefault("providers.rate_limit_threshold", 5)
	viper.SetDefault("providers.rate_limit_sleep_cap", "60s")

	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.default_ttl", "168h") // 7 days
	viper.SetDefault("cache.similarity_threshold", 0.85)
	viper.SetDefault("cache.quality_floor", 0.7)

	viper.SetDefault("budget.tier_monthly_limits", map[string]float64{
		"free":     1.00,
		"creator":  8.82,
		"business": 23.84,
		"agency":   131.67,
	})
	viper.SetDefault("budget.warning_threshold", 0.75)
	viper.SetDefault("budget.critical_threshold", 0.90)
	viper.SetDefault("budget.exceeded_threshold", 1.0)

	viper.SetDefault("router.history_window", 1000)
	viper.SetDefault("router.load_balance_window", 100)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output_path", "stdout")
}

func bindEnvVars() {
	_ = viper.BindEnv("database.url", "DATABASE_URL")
	_ = viper.BindEnv("redis.url", "REDIS_URL")
	_ = viper.BindEnv("providers.deepseek.api_key", "DEEPSEEK_API_KEY")
	_ = viper.BindEnv("providers.gemini.api_key", "GEMINI_API_KEY")
	_ = viper.BindEnv("providers.claude.api_key", "ANTHROPIC_API_KEY")
	_ = viper.BindEnv("providers.openai.api_key", "OPENAI_API_KEY")
	_ = viper.BindEnv("logging.level", "LOG_LEVEL")
}
