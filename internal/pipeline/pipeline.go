// Package pipeline runs a request end to end: cache lookup, model
// selection, budget enforcement, provider dispatch with degraded
// fallback, usage recording and cache fill.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/relaymesh/aibroker/internal/budget"
	"github.com/relaymesh/aibroker/internal/cache"
	"github.com/relaymesh/aibroker/internal/metrics"
	"github.com/relaymesh/aibroker/internal/models"
	"github.com/relaymesh/aibroker/internal/providers"
	"github.com/relaymesh/aibroker/internal/router"
)

// The degraded retry always goes to DeepSeek: cheapest per token, and
// capping complexity keeps the request within what it can serve.
const (
	fallbackModel         = models.ModelDeepSeekV3
	fallbackMaxComplexity = 3
)

// InsufficientBudgetError means no affordable selection existed even
// after downgrading.
type InsufficientBudgetError struct {
	Need float64
	Have float64
}

func (e *InsufficientBudgetError) Error() string {
	return fmt.Sprintf("insufficient budget: need $%.4f, have $%.4f remaining", e.Need, e.Have)
}

// Config tunes the pipeline's optional behaviour.
type Config struct {
	// EnforceBudget enables the pre-dispatch budget check and downgrade
	// path.
	EnforceBudget bool
	// OnAlert, when set, receives budget alerts raised while recording
	// usage. Called synchronously; keep it cheap.
	OnAlert func(*budget.Alert)
}

// Pipeline is safe for concurrent use; one instance serves all requests.
type Pipeline struct {
	cfg      Config
	router   *router.Router
	registry *providers.Registry
	cache    *cache.Cache    // nil disables caching
	tracker  *budget.Tracker // nil disables usage recording and budget checks
	logger   *zap.Logger
}

func New(cfg Config, r *router.Router, reg *providers.Registry, c *cache.Cache, t *budget.Tracker, log *zap.Logger) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		router:   r,
		registry: reg,
		cache:    c,
		tracker:  t,
		logger:   log.Named("pipeline"),
	}
}

// Process runs one request for a user and returns the response, served
// either from cache or from a provider.
func (p *Pipeline) Process(ctx context.Context, user models.User, req models.Request) (*models.Response, error) {
	start := time.Now()

	if p.cache != nil {
		if cached := p.cache.Lookup(ctx, req, user.ID); cached != nil {
			metrics.RecordCacheHit(cached.Cost)
			metrics.RecordRequest(string(cached.Model), string(req.TaskType), "cache_hit", 0)
			p.logger.Debug("served from cache",
				zap.String("model", string(cached.Model)),
				zap.String("task_type", string(req.TaskType)),
			)
			return cached, nil
		}
		metrics.RecordCacheMiss()
	}

	sel := p.router.Select(req)

	if p.cfg.EnforceBudget && p.tracker != nil {
		constrained, constrainedSel, err := p.applyBudget(ctx, user, req, sel)
		if err != nil {
			return nil, err
		}
		req, sel = constrained, constrainedSel
	}

	resp, status, err := p.dispatch(ctx, req, sel)
	if err != nil {
		metrics.RecordRequest(string(sel.Model), string(req.TaskType), "error", 0)
		return nil, err
	}

	p.recordUsage(ctx, user, req, resp, &sel)
	p.router.RecordOutcome(resp, nil)

	if p.cache != nil {
		p.cache.Store(ctx, req, resp, user.ID)
	}

	resp.ProcessingTime = time.Since(start).Seconds()
	metrics.RecordRequest(string(resp.Model), string(req.TaskType), status, resp.ProcessingTime)
	metrics.RecordSpend(string(resp.Model), string(user.Tier), resp.InputTokens, resp.OutputTokens, resp.Cost)
	return resp, nil
}

// applyBudget checks the selection against the user's remaining budget
// and, when it does not fit, retries the selection with a downgraded
// request constrained to what is left.
func (p *Pipeline) applyBudget(ctx context.Context, user models.User, req models.Request, sel models.Selection) (models.Request, models.Selection, error) {
	check, err := p.tracker.Check(ctx, user, sel.EstimatedCost)
	if err != nil {
		return req, sel, fmt.Errorf("budget check: %w", err)
	}
	if check.CanProceed {
		return req, sel, nil
	}

	downgraded := req
	if downgraded.Complexity > models.MinComplexity {
		downgraded.Complexity--
	}
	remaining := check.RemainingBudget
	downgraded.MaxCost = &remaining

	cheaper := p.router.Select(downgraded)
	if cheaper.EstimatedCost > remaining {
		metrics.RecordBudgetRejection()
		p.logger.Warn("request refused: no affordable selection",
			zap.String("user_id", user.ID.String()),
			zap.Float64("estimated_cost", cheaper.EstimatedCost),
			zap.Float64("remaining_budget", remaining),
		)
		return req, sel, &InsufficientBudgetError{Need: cheaper.EstimatedCost, Have: remaining}
	}

	p.logger.Info("request downgraded to fit budget",
		zap.String("user_id", user.ID.String()),
		zap.String("original_model", string(sel.Model)),
		zap.String("downgraded_model", string(cheaper.Model)),
		zap.Int("complexity", downgraded.Complexity),
		zap.Float64("remaining_budget", remaining),
	)
	return downgraded, cheaper, nil
}

// dispatch calls the selected provider, falling back once onto the
// cheapest model for recoverable failures when the request allows it.
func (p *Pipeline) dispatch(ctx context.Context, req models.Request, sel models.Selection) (*models.Response, string, error) {
	client, ok := p.registry.Client(sel.Model)
	if !ok {
		return nil, "", fmt.Errorf("no configured client for model %s", sel.Model)
	}

	resp, err := client.Generate(ctx, req)
	if err == nil {
		return resp, "success", nil
	}

	metrics.RecordProviderError(string(sel.Model), errorKind(err))

	if !providers.IsRetryable(err) || !req.AllowFallback {
		return nil, "", err
	}

	fbClient, ok := p.registry.Client(fallbackModel)
	if !ok {
		return nil, "", err
	}

	fbReq := req
	if fbReq.Complexity > fallbackMaxComplexity {
		fbReq.Complexity = fallbackMaxComplexity
	}
	fbReq.RequiresVision = false

	p.logger.Warn("primary provider failed, dispatching fallback",
		zap.String("primary_model", string(sel.Model)),
		zap.String("fallback_model", string(fallbackModel)),
		zap.Error(err),
	)

	fbResp, fbErr := fbClient.Generate(ctx, fbReq)
	if fbErr != nil {
		metrics.RecordProviderError(string(fallbackModel), errorKind(fbErr))
		// surface the original failure, not the fallback's
		return nil, "", err
	}

	metrics.RecordFallback(string(sel.Model))
	return fbResp, "fallback", nil
}

// recordUsage appends the usage record and propagates any budget alert.
// Recording failures are logged, never fatal: the cost is already spent
// and the response is already in hand.
func (p *Pipeline) recordUsage(ctx context.Context, user models.User, req models.Request, resp *models.Response, sel *models.Selection) {
	if p.tracker == nil {
		return
	}

	alert, err := p.tracker.Track(ctx, user, req, resp, sel)
	if err != nil {
		p.logger.Warn("failed to record usage",
			zap.String("user_id", user.ID.String()),
			zap.Error(err),
		)
		return
	}
	if alert != nil {
		metrics.RecordBudgetAlert(string(alert.Type), string(alert.Severity))
		p.logger.Warn("budget alert",
			zap.String("user_id", user.ID.String()),
			zap.String("type", string(alert.Type)),
			zap.String("severity", string(alert.Severity)),
			zap.String("message", alert.Message),
		)
		if p.cfg.OnAlert != nil {
			p.cfg.OnAlert(alert)
		}
	}
}

func errorKind(err error) string {
	var rateErr *providers.RateLimitError
	var badReq *providers.BadRequestError
	var netErr *providers.NetworkError
	var protoErr *providers.ProtocolError

	switch {
	case errors.Is(err, providers.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, providers.ErrTimeout):
		return "timeout"
	case errors.As(err, &rateErr):
		return "rate_limited"
	case errors.As(err, &badReq):
		return "bad_request"
	case errors.As(err, &netErr):
		return "network"
	case errors.As(err, &protoErr):
		return "protocol"
	default:
		return "other"
	}
}
