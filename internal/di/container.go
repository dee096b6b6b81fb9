// Package di assembles the runtime object graph. All wiring is explicit:
// constructors receive their collaborators as arguments and nothing is
// resolved through package-level state.
package di

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/skyward-labs/ndc-gateway/internal/backend"
	"github.com/skyward-labs/ndc-gateway/internal/components"
	domain "github.com/skyward-labs/ndc-gateway/internal/domain"
	"github.com/skyward-labs/ndc-gateway/internal/metadata"
	"github.com/skyward-labs/ndc-gateway/internal/payments"
	"github.com/skyward-labs/ndc-gateway/internal/platform/config"
	"github.com/skyward-labs/ndc-gateway/internal/provider"
	"github.com/skyward-labs/ndc-gateway/internal/repositories"
	"github.com/skyward-labs/ndc-gateway/internal/rules"
	"github.com/skyward-labs/ndc-gateway/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Offers services.OfferService
	Orders services.OrderService
	System services.SystemService
}

// Deps carries the externally constructed collaborators the container wires
// into services. Tests supply stubs; main supplies real clients.
type Deps struct {
	Registry   repositories.Registry
	Providers  map[string]services.ProviderClient
	Rules      services.RulesEngine
	Guarantees payments.GuaranteeService
	Charges    services.ChargeManager
	Components components.Notifier
	Logger     *zap.Logger
	Clock      func() time.Time
	Build      services.BuildInfo
	NewOrderID func() string
}

// Container holds the assembled runtime dependencies.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the service layer from configuration and the
// supplied collaborators.
func NewContainer(cfg config.Config, deps Deps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("di: repositories registry is required")
	}
	if len(deps.Providers) == 0 {
		return nil, errors.New("di: at least one provider is required")
	}
	if deps.Rules == nil {
		return nil, errors.New("di: rules engine is required")
	}
	if deps.Guarantees == nil {
		return nil, errors.New("di: guarantee service is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	offerSvc, err := services.NewOfferService(services.OfferServiceDeps{
		Providers:     deps.Providers,
		Rules:         deps.Rules,
		Offers:        deps.Registry.Offers(),
		Logger:        logger,
		Clock:         deps.Clock,
		SearchTimeout: cfg.Search.Timeout,
	})
	if err != nil {
		return nil, err
	}

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Providers:  deps.Providers,
		Rules:      deps.Rules,
		Offers:     deps.Registry.Offers(),
		Orders:     deps.Registry.Orders(),
		Guarantees: deps.Guarantees,
		Charges:    deps.Charges,
		Components: deps.Components,
		Logger:     logger,
		Clock:      deps.Clock,
		NewOrderID: deps.NewOrderID,
	})
	if err != nil {
		return nil, err
	}

	systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: deps.Registry.Health(),
		Clock:            deps.Clock,
		Build:            deps.Build,
	})
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: deps.Registry,
		Services: Services{
			Offers: offerSvc,
			Orders: orderSvc,
			System: systemSvc,
		},
	}, nil
}

// NewRulesEngine converts configured policy profiles into a rules engine.
func NewRulesEngine(cfg config.RulesConfig) (*rules.Engine, error) {
	profiles := make([]rules.Profile, 0, len(cfg.Profiles))
	for _, p := range cfg.Profiles {
		profile := rules.Profile{
			OrgID:     p.OrgID,
			Providers: p.Providers,
			Guarantee: domain.GuaranteeType(p.Guarantee),
		}
		if fee := p.BookingFee; fee != nil {
			profile.BookingFee = &rules.FeePolicy{
				Amount:         fee.Amount,
				Currency:       fee.Currency,
				ChargeProvider: fee.ChargeProvider,
			}
		}
		profiles = append(profiles, profile)
	}
	return rules.NewEngine(profiles)
}

// NewProviderClients constructs one pipeline provider per configured
// endpoint, all sharing the context store and archiver.
func NewProviderClients(cfg config.Config, contexts metadata.Store, archiver provider.Archiver, logger *zap.Logger, clock func() time.Time) (map[string]services.ProviderClient, error) {
	providers := make(map[string]services.ProviderClient, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		client, err := backend.NewHTTPClient(backend.HTTPClientConfig{
			Endpoint: pc.Endpoint,
			APIKey:   pc.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("di: provider %s: %w", pc.ID, err)
		}

		p, err := provider.New(provider.Deps{
			ID:                    pc.ID,
			AirlineCode:           pc.AirlineCode,
			SupportsOrderRetrieve: pc.SupportsOrderRetrieve,
			Client:                client,
			Contexts:              contexts,
			Archiver:              archiver,
			Logger:                logger,
			Clock:                 clock,
		})
		if err != nil {
			return nil, fmt.Errorf("di: provider %s: %w", pc.ID, err)
		}
		providers[pc.ID] = p
	}
	return providers, nil
}
