package repositories

import (
	"context"
	"time"

	domain "github.com/skyward-labs/ndc-gateway/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Offers() OfferRepository
	Orders() OrderRepository
	Contexts() ContextRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OfferRepository persists client-visible offer summaries. Offers are
// append-only: re-pricing an offer writes a new record under the new
// offer id rather than mutating the old one.
type OfferRepository interface {
	Save(ctx context.Context, offer domain.OfferRecord) error
	// FindCurrent returns the most recent unexpired record for the offer id.
	// A missing or expired offer surfaces as a not-found repository error.
	FindCurrent(ctx context.Context, offerID string, now time.Time) (domain.OfferRecord, error)
}

// OrderRepository persists order-creation attempts keyed by offer id.
type OrderRepository interface {
	// Create inserts the record only if no record exists for its offer id.
	// A concurrent or prior attempt surfaces as a conflict repository
	// error; this conditional insert is the saga's idempotency guard.
	Create(ctx context.Context, order domain.OrderRecord) error
	Update(ctx context.Context, order domain.OrderRecord) error
	FindByOfferID(ctx context.Context, offerID string) (domain.OrderRecord, error)
	FindByOrderID(ctx context.Context, orderID string) (domain.OrderRecord, error)
}

// ContextRepository persists the append-only pipeline context records.
type ContextRepository interface {
	// Insert stores the record and returns it with its assigned context id.
	Insert(ctx context.Context, record domain.ContextRecord) (domain.ContextRecord, error)
	// FindByIdentifier returns every record of the given provider and type
	// indexed by the identifier, in unspecified order.
	FindByIdentifier(ctx context.Context, providerID string, recordType domain.ContextRecordType, identifier string) ([]domain.ContextRecord, error)
	FindByContextID(ctx context.Context, contextID string) (domain.ContextRecord, error)
}

// HealthRepository aggregates dependency probes for readiness reporting.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
