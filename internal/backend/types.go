package backend

import (
	"time"

	domain "github.com/skyward-labs/ndc-gateway/internal/domain"
)

// Money is an undivided amount as the endpoint reported it: minor units plus
// the currency code. The exponent needed to scale it lives in the reply's
// CurrencyDecimals table.
type Money struct {
	Raw      int64
	Currency string
}

// SearchRequest carries the canonical search criteria to the endpoint.
type SearchRequest struct {
	Criteria domain.SearchCriteria
}

// Offer is one bookable unit in a shopping reply, keyed by native id in
// ShoppingReply.Offers.
type Offer struct {
	Expiration           time.Time
	Total                Money
	PricePlansReferences map[string][]string
}

// ShoppingReply is a decoded AirShopping response. All map keys are the
// endpoint's native identifiers; translation to client identifiers happens
// upstream.
type ShoppingReply struct {
	ResponseID       string
	CurrencyDecimals map[string]int
	Offers           map[string]Offer
	Segments         map[string]domain.Segment
	Combinations     map[string][]string
	Passengers       map[string]domain.Passenger
	PricePlans       map[string]domain.PricePlan
	Raw              []byte
}

// PriceRequest re-prices shopped offers within the stateless session
// identified by ResponseID.
type PriceRequest struct {
	ResponseID string
	OfferIDs   []string
	Selections []OptionSelection
}

// OptionSelection is a chosen ancillary expressed in native identifiers.
type OptionSelection struct {
	Code        string
	SegmentID   string
	PassengerID string
	SeatNumber  string
}

// FareItem is one fare component with its amount still in minor units.
type FareItem struct {
	Type        domain.FareItemType
	Amount      Money
	Description string
}

// PricedItem groups fare components by the native passenger ids they apply to.
type PricedItem struct {
	PassengerIDs []string
	Fare         []FareItem
}

// PricingReply is a decoded OfferPrice response.
type PricingReply struct {
	ResponseID       string
	OfferID          string
	Expiration       time.Time
	Total            Money
	CurrencyDecimals map[string]int
	PricedItems      []PricedItem
	Raw              []byte
}

// SeatMapRequest asks for seat availability within a priced session.
type SeatMapRequest struct {
	ResponseID string
	OfferIDs   []string
	Passengers map[string]domain.Passenger
}

// Seat mirrors domain.Seat with the price still in minor units.
type Seat struct {
	Number     string
	Available  bool
	OptionCode string
	Price      *Money
	Traits     []string
}

// SeatRow is one row of seats in a cabin.
type SeatRow struct {
	Number int
	Seats  []Seat
}

// CabinMap is one cabin's layout for a native segment id.
type CabinMap struct {
	Name        string
	Layout      string
	FirstRow    int
	LastRow     int
	Rows        []SeatRow
	AisleColumn []string
}

// SeatMapReply is a decoded SeatAvailability response keyed by native
// segment ids.
type SeatMapReply struct {
	ResponseID       string
	CurrencyDecimals map[string]int
	Segments         map[string][]CabinMap
	Raw              []byte
}

// PaymentInstrument carries the settlement details forwarded on booking.
// For token guarantees the card fields hold the detokenised pan alias data;
// for deposit guarantees only the guarantee id is set.
type PaymentInstrument struct {
	GuaranteeID     string
	CardBrand       string
	CardNumber      string
	CardExpiryMonth string
	CardExpiryYear  string
	CardHolderName  string
	BillingAddress  string
}

// OrderCreateRequest books a priced offer within its stateless session.
type OrderCreateRequest struct {
	ResponseID string
	OfferID    string
	Passengers map[string]domain.Passenger
	Payment    PaymentInstrument
}

// OrderRetrieveRequest loads an order by the endpoint's own order id.
type OrderRetrieveRequest struct {
	OrderID string
}

// OrderReply is a decoded OrderCreate or OrderRetrieve response.
type OrderReply struct {
	OrderID          string
	BookingReference []domain.BookingReference
	Status           string
	Total            Money
	CurrencyDecimals map[string]int
	Passengers       map[string]domain.Passenger
	Raw              []byte
}
