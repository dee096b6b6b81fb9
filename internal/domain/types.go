package domain

import (
	"time"
)

// SessionContext identifies the calling organisation for a single request.
// It is established by the authentication layer and passed down unchanged.
type SessionContext struct {
	OrgID      string
	ClientName string
	RequestID  string
}

// PassengerType is the canonical passenger category shared across providers.
type PassengerType string

const (
	PassengerTypeAdult  PassengerType = "ADT"
	PassengerTypeChild  PassengerType = "CHD"
	PassengerTypeInfant PassengerType = "INF"
)

// Price is a decimal amount in a named currency. Amounts are expressed in
// main currency units after normalisation from backend minor units.
type Price struct {
	Public   float64 `firestore:"public" json:"public"`
	Currency string  `firestore:"currency" json:"currency"`
}

// Location is an IATA coded airport or city.
type Location struct {
	IATACode     string `firestore:"iataCode" json:"iataCode"`
	LocationType string `firestore:"locationType" json:"locationType"`
}

// Operator describes the carrier flying a segment. When the operating and
// marketing carriers differ the segment is a codeshare.
type Operator struct {
	IATACode          string `firestore:"iataCode" json:"iataCode"`
	MarketingIATACode string `firestore:"iataCodeM,omitempty" json:"iataCodeM,omitempty"`
	FlightNumber      string `firestore:"flightNumber" json:"flightNumber"`
}

// Segment is one flight leg keyed by a client identifier in search results.
type Segment struct {
	Origin        Location  `firestore:"origin" json:"origin"`
	Destination   Location  `firestore:"destination" json:"destination"`
	DepartureTime time.Time `firestore:"departureTime" json:"departureTime"`
	ArrivalTime   time.Time `firestore:"arrivalTime" json:"arrivalTime"`
	Operator      Operator  `firestore:"operator" json:"operator"`
}

// Passenger is a traveller as exposed to the client.
type Passenger struct {
	Type        PassengerType `firestore:"type" json:"type"`
	FirstNames  []string      `firestore:"firstnames,omitempty" json:"firstnames,omitempty"`
	LastNames   []string      `firestore:"lastnames,omitempty" json:"lastnames,omitempty"`
	Civility    string        `firestore:"civility,omitempty" json:"civility,omitempty"`
	BirthDate   string        `firestore:"birthdate,omitempty" json:"birthdate,omitempty"`
	ContactInfo []string      `firestore:"contactInformation,omitempty" json:"contactInformation,omitempty"`
}

// PricePlan is a named fare product shared by one or more segments.
type PricePlan struct {
	Name             string   `firestore:"name" json:"name"`
	Amenities        []string `firestore:"amenities,omitempty" json:"amenities,omitempty"`
	CheckedBaggages  int      `firestore:"checkedBaggages" json:"checkedBaggages"`
	PriceCurrency    string   `firestore:"priceCurrency,omitempty" json:"priceCurrency,omitempty"`
	MarketingCarrier string   `firestore:"marketingCarrier,omitempty" json:"marketingCarrier,omitempty"`
}

// Offer is a bookable itinerary-plus-price unit. PricePlansReferences maps a
// price plan identifier to the itinerary combinations it covers.
type Offer struct {
	Expiration           time.Time           `firestore:"expiration" json:"expiration"`
	Price                Price               `firestore:"price" json:"price"`
	Provider             string              `firestore:"provider" json:"provider"`
	PricePlansReferences map[string][]string `firestore:"pricePlansReferences,omitempty" json:"pricePlansReferences,omitempty"`
}

// Itineraries groups flight segments and their valid combinations, both
// keyed by client identifiers.
type Itineraries struct {
	Segments     map[string]Segment  `json:"segments"`
	Combinations map[string][]string `json:"combinations"`
}

// SearchResults is the merged, client-facing outcome of a search. Every map
// key is a client identifier minted by the identity mapper of the provider
// call that produced the entry.
type SearchResults struct {
	Offers      map[string]Offer     `json:"offers"`
	Itineraries Itineraries          `json:"itineraries"`
	Passengers  map[string]Passenger `json:"passengers"`
	PricePlans  map[string]PricePlan `json:"pricePlans"`
}

// NewSearchResults returns an empty result set with all maps initialised.
func NewSearchResults() SearchResults {
	return SearchResults{
		Offers: map[string]Offer{},
		Itineraries: Itineraries{
			Segments:     map[string]Segment{},
			Combinations: map[string][]string{},
		},
		Passengers: map[string]Passenger{},
		PricePlans: map[string]PricePlan{},
	}
}

// Merge unions another provider's results into this one. Identifiers are
// minted per provider call, so keys from distinct providers never collide.
func (r *SearchResults) Merge(other SearchResults) {
	for k, v := range other.Offers {
		r.Offers[k] = v
	}
	for k, v := range other.Itineraries.Segments {
		r.Itineraries.Segments[k] = v
	}
	for k, v := range other.Itineraries.Combinations {
		r.Itineraries.Combinations[k] = v
	}
	for k, v := range other.Passengers {
		r.Passengers[k] = v
	}
	for k, v := range other.PricePlans {
		r.PricePlans[k] = v
	}
}

// FareItemType classifies one component of a priced fare.
type FareItemType string

const (
	FareItemTypeBase      FareItemType = "base"
	FareItemTypeSurcharge FareItemType = "surcharge"
	FareItemTypeTax       FareItemType = "tax"
)

// FareItem is a single fare component of a priced item.
type FareItem struct {
	Type        FareItemType `firestore:"usage" json:"usage"`
	Amount      float64      `firestore:"amount" json:"amount"`
	Description string       `firestore:"description,omitempty" json:"description,omitempty"`
}

// PricedItem groups the fare components applying to a set of passengers.
type PricedItem struct {
	PassengerIDs []string   `firestore:"passengerReferences,omitempty" json:"passengerReferences,omitempty"`
	Fare         []FareItem `firestore:"fare" json:"fare"`
}

// PricedOffer is the re-quoted form of an offer returned before booking.
// OfferID is a fresh client identifier; the shopping offer identifiers it
// was priced from travel in the stored pricing context, not here.
type PricedOffer struct {
	OfferID     string       `json:"offerId"`
	Expiration  time.Time    `json:"expiration"`
	Price       Price        `json:"price"`
	PricedItems []PricedItem `json:"pricedItems"`
}

// OptionSelection is a client-chosen option (today: a seat) to include when
// re-pricing an offer.
type OptionSelection struct {
	Code        string `json:"code"`
	SegmentID   string `json:"segmentId"`
	PassengerID string `json:"passengerId"`
	SeatNumber  string `json:"seatNumber,omitempty"`
}

// Seat is one selectable seat in a seat map row.
type Seat struct {
	Number     string   `json:"number"`
	Available  bool     `json:"available"`
	OptionCode string   `json:"optionCode,omitempty"`
	Price      *Price   `json:"price,omitempty"`
	Traits     []string `json:"characteristics,omitempty"`
}

// SeatRow is one physical row of a cabin.
type SeatRow struct {
	Number int    `json:"number"`
	Seats  []Seat `json:"seats"`
}

// CabinMap describes the seating layout of one cabin on one segment.
type CabinMap struct {
	Name        string    `json:"name"`
	Layout      string    `json:"layout"`
	FirstRow    int       `json:"firstRow"`
	LastRow     int       `json:"lastRow"`
	Rows        []SeatRow `json:"rows"`
	AisleColumn []string  `json:"aisleColumns,omitempty"`
}

// SeatMap maps client segment identifiers to cabin layouts.
type SeatMap struct {
	Segments map[string][]CabinMap `json:"seatmaps"`
}

// SeatMapRequest optionally narrows a seat map query to known passengers.
type SeatMapRequest struct {
	Passengers map[string]Passenger `json:"passengers,omitempty"`
}

// SearchCriteria is the logical search request fanned out to providers.
type SearchCriteria struct {
	Itinerary  ItineraryCriteria
	Passengers []PassengerCriteria
}

// ItineraryCriteria lists the requested travel legs.
type ItineraryCriteria struct {
	Segments []SegmentCriteria `json:"segments"`
}

// SegmentCriteria is one requested leg of travel.
type SegmentCriteria struct {
	Origin        Location  `json:"origin"`
	Destination   Location  `json:"destination"`
	DepartureTime time.Time `json:"departureTime"`
}

// PassengerCriteria is the requested passenger mix.
type PassengerCriteria struct {
	Type  PassengerType `json:"type"`
	Count int           `json:"count"`
}
