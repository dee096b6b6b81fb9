package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/skyward-labs/ndc-gateway/internal/platform/firestore"
	"github.com/skyward-labs/ndc-gateway/internal/repositories"
)

// Registry wires the Firestore-backed repositories behind the
// repositories.Registry contract consumed by the service layer.
type Registry struct {
	provider *pfirestore.Provider

	offers   *OfferRepository
	orders   *OrderRepository
	contexts *ContextRepository
	health   repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs every repository against the shared provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry: firestore provider is required")
	}

	offers, err := NewOfferRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	contexts, err := NewContextRepository(provider)
	if err != nil {
		return nil, err
	}
	health, err := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{
			Name: "firestore",
			Check: func(ctx context.Context) error {
				_, err := provider.Client(ctx)
				return err
			},
		},
	})
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider: provider,
		offers:   offers,
		orders:   orders,
		contexts: contexts,
		health:   health,
	}, nil
}

func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Offers() repositories.OfferRepository { return r.offers }

func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

func (r *Registry) Contexts() repositories.ContextRepository { return r.contexts }

func (r *Registry) Health() repositories.HealthRepository { return r.health }
