package providers

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/relaymesh/aibroker/internal/models"
)

// Registry holds one client per catalogue model.
type Registry struct {
	clients map[models.ModelID]Client
}

// RegistryConfig carries the per-provider wiring used to build the full
// client set.
type RegistryConfig struct {
	DeepSeek Config
	Gemini   Config
	Claude   Config
	OpenAI   Config
}

// NewRegistry builds clients for every model whose provider has an API
// key configured. Models without credentials are simply absent; the
// router treats them as unroutable.
func NewRegistry(cfg RegistryConfig, log *zap.Logger) (*Registry, error) {
	clients := make(map[models.ModelID]Client)

	if cfg.DeepSeek.APIKey != "" {
		clients[models.ModelDeepSeekV3] = NewDeepSeekClient(cfg.DeepSeek, log)
	}
	if cfg.Gemini.APIKey != "" {
		for _, id := range []models.ModelID{models.ModelGeminiFlash, models.ModelGeminiPro} {
			c, err := NewGeminiClient(cfg.Gemini, id, log)
			if err != nil {
				return nil, fmt.Errorf("gemini client: %w", err)
			}
			clients[id] = c
		}
	}
	if cfg.Claude.APIKey != "" {
		clients[models.ModelClaudeSonnet] = NewClaudeClient(cfg.Claude, log)
	}
	if cfg.OpenAI.APIKey != "" {
		for _, id := range []models.ModelID{models.ModelGPT4Turbo, models.ModelGPT4Vision} {
			c, err := NewOpenAIClient(cfg.OpenAI, id, log)
			if err != nil {
				return nil, fmt.Errorf("openai client: %w", err)
			}
			clients[id] = c
		}
	}

	if len(clients) == 0 {
		return nil, fmt.Errorf("no provider API keys configured")
	}
	return &Registry{clients: clients}, nil
}

// NewRegistryFromClients wraps an explicit client set. Used by tests and
// anywhere clients are constructed manually.
func NewRegistryFromClients(clients map[models.ModelID]Client) *Registry {
	return &Registry{clients: clients}
}

// Client returns the client for a model, or false when the provider is
// not configured.
func (r *Registry) Client(id models.ModelID) (Client, bool) {
	c, ok := r.clients[id]
	return c, ok
}

// Available lists the models that have a configured client.
func (r *Registry) Available() []models.ModelID {
	out := make([]models.ModelID, 0, len(r.clients))
	for id := range r.clients {
		out = append(out, id)
	}
	return out
}

// Has reports whether a client exists for the model.
func (r *Registry) Has(id models.ModelID) bool {
	_, ok := r.clients[id]
	return ok
}
