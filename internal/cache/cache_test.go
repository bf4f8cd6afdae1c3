package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relaymesh/aibroker/internal/config"
	"github.com/relaymesh/aibroker/internal/models"
)

func setupCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := New(client, config.CacheConfig{
		Enabled:             true,
		DefaultTTL:          7 * 24 * time.Hour,
		SimilarityThreshold: 0.85,
		QualityFloor:        0.7,
	}, zap.NewNop())
	return c, mr
}

func sampleResponse(model models.ModelID, quality float64) *models.Response {
	return &models.Response{
		Content:        "const Button = () => <button className=\"bg-blue-500\">Submit</button>",
		Model:          model,
		InputTokens:    10,
		OutputTokens:   40,
		Cost:           0.0004,
		QualityScore:   quality,
		ProcessingTime: 1.2,
		Timestamp:      time.Now().UTC().Truncate(time.Second),
	}
}

func TestStoreAndLookup(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	req := models.Request{
		TaskType:   models.TaskComponentGeneration,
		Complexity: 3,
		Content:    "blue submit button",
		UserTier:   models.TierCreator,
	}

	t.Run("exact roundtrip", func(t *testing.T) {
		c, _ := setupCache(t)
		resp := sampleResponse(models.ModelGeminiFlash, 0.9)
		require.True(t, c.Store(ctx, req, resp, userID))

		got := c.Lookup(ctx, req, userID)
		require.NotNil(t, got)
		assert.Equal(t, resp.Content, got.Content)
		assert.Equal(t, resp.Model, got.Model)
		assert.Equal(t, resp.Cost, got.Cost)
		assert.True(t, resp.Timestamp.Equal(got.Timestamp), "timestamps must round-trip")
		c.Wait()
	})

	t.Run("normalised variants hit the same entry", func(t *testing.T) {
		c, _ := setupCache(t)
		require.True(t, c.Store(ctx, req, sampleResponse(models.ModelGeminiFlash, 0.9), userID))

		variant := req
		variant.Content = "  Blue SUBMIT button  "
		got := c.Lookup(ctx, variant, userID)
		require.NotNil(t, got)
		c.Wait()
	})

	t.Run("quality floor rejects storage", func(t *testing.T) {
		c, _ := setupCache(t)
		assert.False(t, c.Store(ctx, req, sampleResponse(models.ModelGeminiFlash, 0.7), userID))
		assert.Nil(t, c.Lookup(ctx, req, userID))
	})

	t.Run("different user misses", func(t *testing.T) {
		c, _ := setupCache(t)
		require.True(t, c.Store(ctx, req, sampleResponse(models.ModelGeminiFlash, 0.9), userID))
		assert.Nil(t, c.Lookup(ctx, req, uuid.New()))
	})

	t.Run("disabled cache is inert", func(t *testing.T) {
		c, _ := setupCache(t)
		c.cfg.Enabled = false
		assert.False(t, c.Store(ctx, req, sampleResponse(models.ModelGeminiFlash, 0.9), userID))
		assert.Nil(t, c.Lookup(ctx, req, userID))
	})
}

func TestHitRecording(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	req := models.Request{
		TaskType:   models.TaskComponentGeneration,
		Complexity: 3,
		Content:    "blue submit button",
		UserTier:   models.TierCreator,
	}

	t.Run("hit doubles the TTL and bumps counters", func(t *testing.T) {
		c, mr := setupCache(t)
		resp := sampleResponse(models.ModelGeminiFlash, 0.9)
		require.True(t, c.Store(ctx, req, resp, userID))

		fp := Fingerprint(req, userID)
		assert.Equal(t, 30*24*time.Hour, mr.TTL(entryPrefix+fp))

		// shrink so doubling is observable below the 30-day ceiling
		mr.SetTTL(entryPrefix+fp, 7*24*time.Hour)

		require.NotNil(t, c.Lookup(ctx, req, userID))
		c.Wait()

		assert.Equal(t, 14*24*time.Hour, mr.TTL(entryPrefix+fp))

		raw, err := mr.Get(entryPrefix + fp)
		require.NoError(t, err)
		var entry Entry
		require.NoError(t, json.Unmarshal([]byte(raw), &entry))
		assert.Equal(t, int64(1), entry.HitCount)
		assert.InDelta(t, resp.Cost, entry.CostSaved, 1e-12)
	})

	t.Run("TTL extension clamps at 30 days", func(t *testing.T) {
		c, mr := setupCache(t)
		require.True(t, c.Store(ctx, req, sampleResponse(models.ModelGeminiFlash, 0.9), userID))

		fp := Fingerprint(req, userID)
		mr.SetTTL(entryPrefix+fp, 20*24*time.Hour)

		require.NotNil(t, c.Lookup(ctx, req, userID))
		c.Wait()

		assert.Equal(t, 30*24*time.Hour, mr.TTL(entryPrefix+fp))
	})

	t.Run("stats accumulate per scope", func(t *testing.T) {
		c, _ := setupCache(t)
		resp := sampleResponse(models.ModelGeminiFlash, 0.9)
		require.True(t, c.Store(ctx, req, resp, userID))

		require.NotNil(t, c.Lookup(ctx, req, userID)) // hit
		c.Wait()
		miss := req
		miss.Content = "completely different navigation sidebar widget"
		assert.Nil(t, c.Lookup(ctx, miss, userID)) // miss

		global, err := c.GlobalStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), global.TotalRequests)
		assert.Equal(t, int64(1), global.Hits)
		assert.Equal(t, int64(1), global.Misses)
		assert.InDelta(t, 50.0, global.HitRate, 1e-9)
		assert.InDelta(t, resp.Cost, global.CostSaved, 1e-12)
		assert.Greater(t, global.StorageBytes, int64(0))

		user, err := c.UserStats(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), user.Hits)
	})
}

func TestFuzzyLookup(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	stored := models.Request{
		TaskType:   models.TaskContentWriting,
		Complexity: 4,
		Content:    "write a product launch announcement for our new analytics dashboard release today",
		UserTier:   models.TierBusiness,
	}

	t.Run("similar content matches above threshold", func(t *testing.T) {
		c, _ := setupCache(t)
		resp := sampleResponse(models.ModelClaudeSonnet, 0.95)
		require.True(t, c.Store(ctx, stored, resp, userID))

		// 9 of 10 words shared: similarity 0.9 >= 0.80 threshold
		near := stored
		near.Content = "write a product launch announcement for our new analytics dashboard release now"
		got := c.Lookup(ctx, near, userID)
		require.NotNil(t, got)
		assert.Equal(t, resp.Content, got.Content)
		c.Wait()
	})

	t.Run("dissimilar content misses", func(t *testing.T) {
		c, _ := setupCache(t)
		require.True(t, c.Store(ctx, stored, sampleResponse(models.ModelClaudeSonnet, 0.95), userID))

		far := stored
		far.Content = "draft a quarterly earnings summary email"
		assert.Nil(t, c.Lookup(ctx, far, userID))
	})

	t.Run("fuzzy disabled for deterministic tasks", func(t *testing.T) {
		c, _ := setupCache(t)
		codeReq := stored
		codeReq.TaskType = models.TaskCodeGeneration
		require.True(t, c.Store(ctx, codeReq, sampleResponse(models.ModelDeepSeekV3, 0.95), userID))

		near := codeReq
		near.Content = codeReq.Content + " please"
		assert.Nil(t, c.Lookup(ctx, near, userID))
	})

	t.Run("never crosses users", func(t *testing.T) {
		c, _ := setupCache(t)
		require.True(t, c.Store(ctx, stored, sampleResponse(models.ModelClaudeSonnet, 0.95), userID))

		near := stored
		near.Content = stored.Content + " now"
		assert.Nil(t, c.Lookup(ctx, near, uuid.New()))
	})
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	seed := func(c *Cache) {
		reqA := models.Request{TaskType: models.TaskContentWriting, Complexity: 3, Content: "write alice a newsletter", UserTier: models.TierCreator}
		reqB := models.Request{TaskType: models.TaskAnalysis, Complexity: 3, Content: "analyze alice metrics", UserTier: models.TierCreator}
		reqC := models.Request{TaskType: models.TaskContentWriting, Complexity: 3, Content: "write bob a newsletter", UserTier: models.TierCreator}
		require.True(t, c.Store(ctx, reqA, sampleResponse(models.ModelGeminiFlash, 0.9), alice))
		require.True(t, c.Store(ctx, reqB, sampleResponse(models.ModelGeminiFlash, 0.9), alice))
		require.True(t, c.Store(ctx, reqC, sampleResponse(models.ModelGeminiFlash, 0.9), bob))
	}

	t.Run("by user", func(t *testing.T) {
		c, _ := setupCache(t)
		seed(c)
		n, err := c.Invalidate(ctx, &alice, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("by task kind", func(t *testing.T) {
		c, _ := setupCache(t)
		seed(c)
		task := models.TaskContentWriting
		n, err := c.Invalidate(ctx, nil, &task)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("by user and task", func(t *testing.T) {
		c, _ := setupCache(t)
		seed(c)
		task := models.TaskContentWriting
		n, err := c.Invalidate(ctx, &alice, &task)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("corrupt metadata is swept regardless of filter", func(t *testing.T) {
		c, mr := setupCache(t)
		seed(c)
		req := models.Request{TaskType: models.TaskContentWriting, Complexity: 3, Content: "write alice a newsletter", UserTier: models.TierCreator}
		fp := Fingerprint(req, alice)
		mr.Set(metaPrefix+fp, "{not json")

		n, err := c.Invalidate(ctx, &bob, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, n) // bob's entry plus the corrupt one
	})
}

func TestOptimize(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("unused old entries are evicted, fresh ones kept", func(t *testing.T) {
		c, mr := setupCache(t)
		req := models.Request{TaskType: models.TaskAnalysis, Complexity: 3, Content: "analyze churn for the quarter", UserTier: models.TierBusiness}
		require.True(t, c.Store(ctx, req, sampleResponse(models.ModelGeminiPro, 0.9), userID))

		// age the entry past the unused horizon
		fp := Fingerprint(req, userID)
		raw, err := mr.Get(entryPrefix + fp)
		require.NoError(t, err)
		var entry Entry
		require.NoError(t, json.Unmarshal([]byte(raw), &entry))
		entry.CachedAt = time.Now().UTC().Add(-48 * time.Hour)
		aged, err := json.Marshal(entry)
		require.NoError(t, err)
		mr.Set(entryPrefix+fp, string(aged))

		fresh := models.Request{TaskType: models.TaskAnalysis, Complexity: 3, Content: "analyze signup conversion funnel", UserTier: models.TierBusiness}
		require.True(t, c.Store(ctx, fresh, sampleResponse(models.ModelGeminiPro, 0.9), userID))

		report, err := c.Optimize(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, report.Scanned)
		assert.Equal(t, 1, report.UnusedRemoved)

		assert.Nil(t, c.Lookup(ctx, req, userID))
		require.NotNil(t, c.Lookup(ctx, fresh, userID))
		c.Wait()
	})

	t.Run("corrupt entries are removed", func(t *testing.T) {
		c, mr := setupCache(t)
		mr.Set(entryPrefix+"deadbeefdeadbeef", "{broken")

		report, err := c.Optimize(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, report.CorruptRemoved)
	})
}
