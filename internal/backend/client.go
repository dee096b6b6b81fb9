// Package backend defines the contract with an airline's NDC endpoint. The
// gateway never touches the wire format itself; a Client implementation owns
// request encoding, transport, and reply decoding, and hands back decoded
// replies that still speak the airline's native vocabulary (native ids, raw
// minor-unit amounts, per-response currency exponent tables).
package backend

import "context"

// Client executes NDC transactions against a single airline endpoint.
type Client interface {
	// AirShopping runs a flight availability search.
	AirShopping(ctx context.Context, req SearchRequest) (*ShoppingReply, error)
	// OfferPrice re-prices previously shopped offers, optionally with
	// ancillary selections applied.
	OfferPrice(ctx context.Context, req PriceRequest) (*PricingReply, error)
	// SeatAvailability retrieves seat maps for a priced offer.
	SeatAvailability(ctx context.Context, req SeatMapRequest) (*SeatMapReply, error)
	// OrderCreate books a priced offer.
	OrderCreate(ctx context.Context, req OrderCreateRequest) (*OrderReply, error)
	// OrderRetrieve loads the live state of an existing order. Endpoints
	// without retrieval support return ErrUnsupportedOperation.
	OrderRetrieve(ctx context.Context, req OrderRetrieveRequest) (*OrderReply, error)
}
