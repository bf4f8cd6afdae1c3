// Package commands holds the broker CLI subcommands and the shared
// wiring they need: config, logger, and lazily opened database, redis
// and provider connections.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/relaymesh/aibroker/internal/budget"
	"github.com/relaymesh/aibroker/internal/config"
	"github.com/relaymesh/aibroker/internal/logger"
	"github.com/relaymesh/aibroker/internal/providers"
)

var (
	cfg        *config.Config
	log        *zap.Logger
	outputJSON bool
)

func SetConfig(c *config.Config) { cfg = c }

func SetLogger(l *zap.Logger) { log = l }

func SetOutputJSON(v bool) { outputJSON = v }

func openDB() (*gorm.DB, error) {
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("database URL not configured (set DATABASE_URL)")
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.URL), &gorm.Config{
		Logger: gormlogger.New(logger.NewGormLogger(log), gormlogger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      gormlogger.Warn,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxConnections)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	return db, nil
}

func openRedis(ctx context.Context) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	if cfg.Redis.PoolSize > 0 {
		opts.PoolSize = cfg.Redis.PoolSize
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func buildRegistry() (*providers.Registry, error) {
	p := cfg.Providers
	return providers.NewRegistry(providers.RegistryConfig{
		DeepSeek: providerConfig(p.DeepSeek),
		Gemini:   providerConfig(p.Gemini),
		Claude:   providerConfig(p.Claude),
		OpenAI:   providerConfig(p.OpenAI),
	}, log)
}

func providerConfig(pc config.ProviderConfig) providers.Config {
	return providers.Config{
		APIKey:             pc.APIKey,
		BaseURL:            pc.BaseURL,
		RequestTimeout:     pc.RequestTimeout,
		RateLimitThreshold: cfg.Providers.RateLimitThreshold,
		RateLimitSleepCap:  cfg.Providers.RateLimitSleepCap,
	}
}

func buildTracker(rdb redis.UniversalClient) (*budget.Tracker, error) {
	db, err := openDB()
	if err != nil {
		return nil, err
	}
	store := budget.NewGormStore(db)
	if err := store.Migrate(); err != nil {
		return nil, fmt.Errorf("migrate usage store: %w", err)
	}
	return budget.NewTracker(store, rdb, cfg.Budget, log), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTable(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for i, h := range headers {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, h)
	}
	fmt.Fprintln(w)
	for _, row := range rows {
		for i, cell := range row {
			if i > 0 {
				fmt.Fprint(w, "\t")
			}
			fmt.Fprint(w, cell)
		}
		fmt.Fprintln(w)
	}
	_ = w.Flush()
}
