package services

import (
	"context"

	"github.com/skyward-labs/ndc-gateway/internal/backend"
	domain "github.com/skyward-labs/ndc-gateway/internal/domain"
	"github.com/skyward-labs/ndc-gateway/internal/payments"
	"github.com/skyward-labs/ndc-gateway/internal/rules"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	SessionContext      = domain.SessionContext
	SearchCriteria      = domain.SearchCriteria
	SearchResults       = domain.SearchResults
	Offer               = domain.Offer
	PricedOffer         = domain.PricedOffer
	OptionSelection     = domain.OptionSelection
	SeatMap             = domain.SeatMap
	SeatMapRequest      = domain.SeatMapRequest
	Passenger           = domain.Passenger
	OrderConfirmation   = domain.OrderConfirmation
	OrderStatusResponse = domain.OrderStatusResponse
	SystemHealthReport  = domain.SystemHealthReport
)

// ProviderFailure records one provider's failure during a fan-out search.
type ProviderFailure struct {
	ProviderID string           `json:"providerId"`
	Code       domain.ErrorCode `json:"code"`
	Message    string           `json:"message"`
}

// SearchOutcome carries merged results alongside per-provider failures. A
// partial failure is not an error; all providers failing is.
type SearchOutcome struct {
	Results  SearchResults     `json:"results"`
	Failures []ProviderFailure `json:"failures,omitempty"`
}

// CreateOrderRequest is the client's booking instruction for a priced offer.
type CreateOrderRequest struct {
	OfferID     string
	GuaranteeID string
	Passengers  map[string]Passenger
}

// OfferService orchestrates shopping across providers and follow-up offer
// operations against the provider that issued the offer.
type OfferService interface {
	Search(ctx context.Context, session SessionContext, criteria SearchCriteria) (SearchOutcome, error)
	Price(ctx context.Context, session SessionContext, offerIDs []string, selections []OptionSelection) (PricedOffer, error)
	SeatMap(ctx context.Context, session SessionContext, offerIDs []string, req SeatMapRequest) (SeatMap, error)
}

// OrderService runs the order-creation saga and order lookups.
type OrderService interface {
	Create(ctx context.Context, session SessionContext, req CreateOrderRequest) (OrderConfirmation, error)
	Status(ctx context.Context, session SessionContext, offerID string) (OrderStatusResponse, error)
	Retrieve(ctx context.Context, session SessionContext, orderID string) (OrderConfirmation, error)
}

// SystemService aggregates utility endpoints (health checks).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// ProviderClient is the pipeline surface the services drive. Implemented by
// the provider package; narrowed to an interface so tests can stub it.
type ProviderClient interface {
	ID() string
	SupportsOrderRetrieve() bool
	Search(ctx context.Context, criteria domain.SearchCriteria) (domain.SearchResults, error)
	Price(ctx context.Context, offerIDs []string, selections []domain.OptionSelection) (domain.PricedOffer, error)
	SeatMap(ctx context.Context, offerIDs []string, req domain.SeatMapRequest) (domain.SeatMap, error)
	CreateOrder(ctx context.Context, offerID string, passengers map[string]domain.Passenger, payment backend.PaymentInstrument) (*backend.OrderReply, error)
	RetrieveOrder(ctx context.Context, providerOrderID string) (*backend.OrderReply, error)
	ConfirmationFromReply(reply *backend.OrderReply) (domain.Order, error)
}

// RulesEngine answers per-organisation policy questions.
type RulesEngine interface {
	EligibleProviders(session domain.SessionContext) ([]string, error)
	GuaranteeType(session domain.SessionContext, providerID string) (domain.GuaranteeType, error)
	BookingFee(session domain.SessionContext, providerID string) (*rules.FeePolicy, error)
}

// ChargeManager routes booking-fee charge operations to a PSP.
type ChargeManager interface {
	Authorize(ctx context.Context, providerKey string, req payments.AuthorizeRequest) (payments.Charge, error)
	Capture(ctx context.Context, providerKey string, req payments.CaptureRequest) (payments.Charge, error)
	Revert(ctx context.Context, providerKey string, req payments.RevertRequest) (payments.Charge, error)
}
