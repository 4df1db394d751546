package processor

import (
	"log/slog"
	"time"

	errors "github.com/frahmantamala/crypto-gateway/internal"
	"github.com/frahmantamala/crypto-gateway/internal/tenant"
)

// Clients holds one configured client per tenant category.
type Clients struct {
	clients map[tenant.Category]*Client
}

type ClientsConfig struct {
	BaseURL        string
	SandboxBaseURL string
	Timeout        time.Duration
}

func NewClients(registry *tenant.Registry, cfg ClientsConfig, logger *slog.Logger) *Clients {
	clients := make(map[tenant.Category]*Client)
	for _, tc := range registry.All() {
		clients[tc.Category] = NewClient(Config{
			BaseURL:        cfg.BaseURL,
			SandboxBaseURL: cfg.SandboxBaseURL,
			APIKey:         tc.APIKey,
			Sandbox:        tc.Sandbox,
			Timeout:        cfg.Timeout,
		}, logger.With("component", "processor_client", "category", string(tc.Category)))
	}
	return &Clients{clients: clients}
}

func (c *Clients) For(category tenant.Category) (API, error) {
	client, ok := c.clients[category]
	if !ok {
		return nil, errors.NewValidationError("unknown tenant category", errors.ErrCodeInvalidCategory)
	}
	return client, nil
}
