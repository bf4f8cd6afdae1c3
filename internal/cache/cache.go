// Package cache is the fingerprint response cache: identical (and, for
// prose-like tasks, near-identical) requests are served from the
// key-value store instead of paying a provider again. Cache failures are
// never fatal; every error path degrades to a miss.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/relaymesh/aibroker/internal/config"
	"github.com/relaymesh/aibroker/internal/models"
)

const (
	entryPrefix = "ai_cache:"
	metaPrefix  = "ai_cache:meta:"
	statsPrefix = "ai_cache_stats:"

	statsExpiry = 30 * 24 * time.Hour

	// entries bigger than this are reported as compression candidates
	compressionThreshold = 10 * 1024

	// unused entries older than this are removed by Optimize
	unusedMaxAge = 24 * time.Hour
)

// Entry is one cached response plus its reuse bookkeeping.
type Entry struct {
	Response  models.Response `json:"response"`
	CachedAt  time.Time       `json:"cached_at"`
	HitCount  int64           `json:"hit_count"`
	CostSaved float64         `json:"cost_saved"`
}

// entryMeta is the sidecar used for fuzzy matching and filtered
// invalidation without deserialising full entries. It carries the
// normalised request content, since similarity is measured between
// request contents, not response bodies.
type entryMeta struct {
	TaskType       models.TaskType `json:"task_type"`
	Complexity     int             `json:"complexity"`
	UserID         string          `json:"user_id"`
	Content        string          `json:"content"`
	ContentLength  int             `json:"content_length"`
	RequiresVision bool            `json:"requires_vision"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Stats is the counter snapshot for one scope (global or per-user).
type Stats struct {
	TotalRequests   int64   `json:"total_requests"`
	Hits            int64   `json:"hits"`
	Misses          int64   `json:"misses"`
	HitRate         float64 `json:"hit_rate"` // percent
	CostSaved       float64 `json:"cost_saved"`
	AvgResponseTime float64 `json:"avg_response_time"` // seconds
	StorageBytes    int64   `json:"storage_bytes"`
}

// OptimizeReport summarises one maintenance sweep.
type OptimizeReport struct {
	Scanned               int `json:"scanned"`
	CorruptRemoved        int `json:"corrupt_removed"`
	UnusedRemoved         int `json:"unused_removed"`
	CompressionCandidates int `json:"compression_candidates"`
}

// Cache is safe for concurrent use; atomicity is delegated to the
// key-value store.
type Cache struct {
	rdb    redis.UniversalClient
	cfg    config.CacheConfig
	logger *zap.Logger

	// tracks in-flight asynchronous hit recordings for graceful shutdown
	wg sync.WaitGroup
}

func New(rdb redis.UniversalClient, cfg config.CacheConfig, log *zap.Logger) *Cache {
	if cfg.QualityFloor <= 0 {
		cfg.QualityFloor = 0.7
	}
	return &Cache{
		rdb:    rdb,
		cfg:    cfg,
		logger: log.Named("cache"),
	}
}

// Lookup returns the cached response for a request, or nil on miss.
// Exact fingerprint match is tried first; task kinds with fuzzy matching
// enabled fall back to a similarity scan over the caller's own entries.
func (c *Cache) Lookup(ctx context.Context, req models.Request, userID uuid.UUID) *models.Response {
	if !c.cfg.Enabled {
		return nil
	}

	fp := Fingerprint(req, userID)
	entry, ok := c.getEntry(ctx, fp)
	if ok {
		c.onHit(fp, entry, userID)
		return &entry.Response
	}

	if pol := policyFor(req.TaskType); pol.Fuzzy {
		if resp := c.fuzzyLookup(ctx, req, userID, pol); resp != nil {
			return resp
		}
	}

	c.bumpStats(ctx, userID, map[string]float64{"total_requests": 1, "cache_misses": 1})
	return nil
}

// Store caches a response when its quality clears the floor. Returns
// whether the entry was written.
func (c *Cache) Store(ctx context.Context, req models.Request, resp *models.Response, userID uuid.UUID) bool {
	if !c.cfg.Enabled || resp == nil {
		return false
	}
	if resp.QualityScore <= c.cfg.QualityFloor {
		return false
	}

	fp := Fingerprint(req, userID)
	pol := policyFor(req.TaskType)

	entry := Entry{Response: *resp, CachedAt: time.Now().UTC()}
	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn("failed to serialise cache entry", zap.Error(err))
		return false
	}

	meta := entryMeta{
		TaskType:       req.TaskType,
		Complexity:     req.Complexity,
		UserID:         userID.String(),
		Content:        normalizeContent(req.Content),
		ContentLength:  len(req.Content),
		RequiresVision: req.RequiresVision,
		CreatedAt:      entry.CachedAt,
	}
	metaData, err := json.Marshal(meta)
	if err != nil {
		c.logger.Warn("failed to serialise cache metadata", zap.Error(err))
		return false
	}

	pipe := c.rdb.Pipeline()
	pipe.Set(ctx, entryPrefix+fp, data, pol.TTL)
	pipe.Set(ctx, metaPrefix+fp, metaData, pol.TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("failed to write cache entry", zap.Error(err))
		return false
	}

	c.bumpStats(ctx, userID, map[string]float64{"storage_bytes": float64(len(data))})

	c.logger.Debug("response cached",
		zap.String("fingerprint", fp[:12]),
		zap.String("task_type", string(req.TaskType)),
		zap.Duration("ttl", pol.TTL),
	)
	return true
}

// Invalidate deletes entries matching the optional user and task-kind
// filters. Entries whose metadata cannot be read are treated as corrupt
// and deleted regardless. Returns the number of entries removed.
func (c *Cache) Invalidate(ctx context.Context, userID *uuid.UUID, task *models.TaskType) (int, error) {
	deleted := 0
	err := c.scanKeys(ctx, metaPrefix+"*", func(metaKey string) error {
		fp := strings.TrimPrefix(metaKey, metaPrefix)

		raw, err := c.rdb.Get(ctx, metaKey).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		var meta entryMeta
		corrupt := err != nil || json.Unmarshal(raw, &meta) != nil

		matches := corrupt
		if !corrupt {
			matches = true
			if userID != nil && meta.UserID != userID.String() {
				matches = false
			}
			if task != nil && meta.TaskType != *task {
				matches = false
			}
		}

		if matches {
			if err := c.deleteEntry(ctx, fp); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// Optimize sweeps the cache: corrupt entries are deleted, entries that
// were never hit within a day are evicted, and oversized entries are
// counted as compression candidates.
func (c *Cache) Optimize(ctx context.Context) (OptimizeReport, error) {
	var report OptimizeReport
	now := time.Now().UTC()

	err := c.scanKeys(ctx, entryPrefix+"*", func(key string) error {
		if strings.HasPrefix(key, metaPrefix) || strings.HasPrefix(key, statsPrefix) {
			return nil
		}
		report.Scanned++
		fp := strings.TrimPrefix(key, entryPrefix)

		raw, err := c.rdb.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}

		var entry Entry
		if json.Unmarshal(raw, &entry) != nil {
			report.CorruptRemoved++
			return c.deleteEntry(ctx, fp)
		}

		if entry.HitCount == 0 && now.Sub(entry.CachedAt) > unusedMaxAge {
			report.UnusedRemoved++
			return c.deleteEntry(ctx, fp)
		}

		if len(raw) > compressionThreshold {
			report.CompressionCandidates++
		}
		return nil
	})

	if err == nil {
		c.logger.Info("cache optimisation sweep completed",
			zap.Int("scanned", report.Scanned),
			zap.Int("corrupt_removed", report.CorruptRemoved),
			zap.Int("unused_removed", report.UnusedRemoved),
			zap.Int("compression_candidates", report.CompressionCandidates),
		)
	}
	return report, err
}

// Wait blocks until in-flight asynchronous hit recordings have
// finished. Called during graceful shutdown.
func (c *Cache) Wait() {
	c.wg.Wait()
}

// GlobalStats returns the cross-user counter snapshot.
func (c *Cache) GlobalStats(ctx context.Context) (*Stats, error) {
	return c.readStats(ctx, "global")
}

// UserStats returns one user's counter snapshot.
func (c *Cache) UserStats(ctx context.Context, userID uuid.UUID) (*Stats, error) {
	return c.readStats(ctx, userID.String())
}

func (c *Cache) getEntry(ctx context.Context, fp string) (Entry, bool) {
	raw, err := c.rdb.Get(ctx, entryPrefix+fp).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false
	}
	if err != nil {
		c.logger.Warn("cache read failed", zap.Error(err))
		return Entry{}, false
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		// corrupt entry: drop it and treat as miss
		c.logger.Warn("corrupt cache entry removed", zap.String("fingerprint", fp[:12]))
		_ = c.deleteEntry(ctx, fp)
		return Entry{}, false
	}
	return entry, true
}

// onHit records the hit asynchronously: bumping counters and extending
// the entry's TTL must not sit on the request path.
func (c *Cache) onHit(fp string, entry Entry, userID uuid.UUID) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		currentTTL, err := c.rdb.TTL(ctx, entryPrefix+fp).Result()
		if err != nil || currentTTL <= 0 {
			currentTTL = defaultPolicy.TTL
		}
		newTTL := extendTTL(currentTTL)

		entry.HitCount++
		entry.CostSaved += entry.Response.Cost

		data, err := json.Marshal(entry)
		if err != nil {
			return
		}

		pipe := c.rdb.Pipeline()
		pipe.Set(ctx, entryPrefix+fp, data, newTTL)
		pipe.Expire(ctx, metaPrefix+fp, newTTL)
		if _, err := pipe.Exec(ctx); err != nil {
			c.logger.Warn("failed to record cache hit", zap.Error(err))
			return
		}

		c.bumpStats(ctx, userID, map[string]float64{
			"total_requests":      1,
			"cache_hits":          1,
			"cost_saved":          entry.Response.Cost,
			"response_time_total": entry.Response.ProcessingTime,
		})
	}()
}

// fuzzyLookup scans the caller's metadata sidecars for the most similar
// stored request of the same task kind. Ties go to the most recent entry.
func (c *Cache) fuzzyLookup(ctx context.Context, req models.Request, userID uuid.UUID, pol policy) *models.Response {
	incoming := normalizeContent(req.Content)
	uid := userID.String()

	var bestFP string
	var bestSim float64
	var bestCreated time.Time

	err := c.scanKeys(ctx, metaPrefix+"*", func(metaKey string) error {
		raw, err := c.rdb.Get(ctx, metaKey).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}

		fp := strings.TrimPrefix(metaKey, metaPrefix)
		var meta entryMeta
		if json.Unmarshal(raw, &meta) != nil {
			return c.deleteEntry(ctx, fp)
		}
		if meta.TaskType != req.TaskType || meta.UserID != uid {
			return nil
		}

		sim := jaccardSimilarity(meta.Content, incoming)
		if sim < pol.SimilarityThreshold {
			return nil
		}
		if sim > bestSim || (sim == bestSim && meta.CreatedAt.After(bestCreated)) {
			bestFP, bestSim, bestCreated = fp, sim, meta.CreatedAt
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("fuzzy cache scan failed", zap.Error(err))
		return nil
	}
	if bestFP == "" {
		return nil
	}

	entry, ok := c.getEntry(ctx, bestFP)
	if !ok {
		return nil
	}

	c.logger.Debug("fuzzy cache hit",
		zap.String("fingerprint", bestFP[:12]),
		zap.Float64("similarity", bestSim),
	)
	c.onHit(bestFP, entry, userID)
	return &entry.Response
}

func (c *Cache) deleteEntry(ctx context.Context, fp string) error {
	return c.rdb.Del(ctx, entryPrefix+fp, metaPrefix+fp).Err()
}

func (c *Cache) scanKeys(ctx context.Context, pattern string, fn func(key string) error) error {
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return err
		}
		for _, key := range keys {
			if err := fn(key); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// bumpStats increments counters in both the global and per-user scopes.
func (c *Cache) bumpStats(ctx context.Context, userID uuid.UUID, fields map[string]float64) {
	for _, scope := range []string{"global", userID.String()} {
		key := statsPrefix + scope
		pipe := c.rdb.Pipeline()
		for field, delta := range fields {
			pipe.HIncrByFloat(ctx, key, field, delta)
		}
		pipe.Expire(ctx, key, statsExpiry)
		if _, err := pipe.Exec(ctx); err != nil {
			c.logger.Warn("failed to update cache stats", zap.Error(err))
		}
	}
}

func (c *Cache) readStats(ctx context.Context, scope string) (*Stats, error) {
	fields, err := c.rdb.HGetAll(ctx, statsPrefix+scope).Result()
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		TotalRequests: int64(statField(fields, "total_requests")),
		Hits:          int64(statField(fields, "cache_hits")),
		Misses:        int64(statField(fields, "cache_misses")),
		CostSaved:     statField(fields, "cost_saved"),
		StorageBytes:  int64(statField(fields, "storage_bytes")),
	}
	if stats.TotalRequests > 0 {
		stats.HitRate = float64(stats.Hits) / float64(stats.TotalRequests) * 100
	}
	if stats.Hits > 0 {
		stats.AvgResponseTime = statField(fields, "response_time_total") / float64(stats.Hits)
	}
	return stats, nil
}

func statField(fields map[string]string, name string) float64 {
	raw, ok := fields[name]
	if !ok {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return v
}
