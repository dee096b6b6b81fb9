package provider

import (
	domain "github.com/skyward-labs/ndc-gateway/internal/domain"
)

// shoppingContext is the persisted state of an AirShopping transaction:
// everything a follow-up price or seat map call needs to resume the
// stateless NDC session.
type shoppingContext struct {
	ResponseID string            `json:"responseId"`
	Mapping    map[string]string `json:"mapping"`
	Decimals   map[string]int    `json:"decimals"`
}

// pricingContext is the persisted state of an OfferPrice transaction. It
// additionally remembers which shopping offers it was priced from and the
// ancillary selections applied, so order creation can rebuild the exact
// priced product.
type pricingContext struct {
	ResponseID       string                   `json:"responseId"`
	Mapping          map[string]string        `json:"mapping"`
	Decimals         map[string]int           `json:"decimals"`
	NativeOfferID    string                   `json:"nativeOfferId"`
	ShoppingOfferIDs []string                 `json:"shoppingOfferIds"`
	Selections       []domain.OptionSelection `json:"selections,omitempty"`
}

// seatPrice is one purchasable seat option price in backend minor units.
type seatPrice struct {
	Raw      int64  `json:"raw"`
	Currency string `json:"currency"`
}

// seatMapContext is the persisted state of a SeatAvailability transaction.
// Seat option prices are kept so a later pricing call can fold selected
// seats into the offer total.
type seatMapContext struct {
	ResponseID string               `json:"responseId"`
	Mapping    map[string]string    `json:"mapping"`
	Decimals   map[string]int       `json:"decimals"`
	SeatPrices map[string]seatPrice `json:"seatPrices"`
}
