package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/skyward-labs/ndc-gateway/internal/backend"
	domain "github.com/skyward-labs/ndc-gateway/internal/domain"
	"github.com/skyward-labs/ndc-gateway/internal/metadata"
)

type stubBackend struct {
	airShoppingFn      func(ctx context.Context, req backend.SearchRequest) (*backend.ShoppingReply, error)
	offerPriceFn       func(ctx context.Context, req backend.PriceRequest) (*backend.PricingReply, error)
	seatAvailabilityFn func(ctx context.Context, req backend.SeatMapRequest) (*backend.SeatMapReply, error)
	orderCreateFn      func(ctx context.Context, req backend.OrderCreateRequest) (*backend.OrderReply, error)
	orderRetrieveFn    func(ctx context.Context, req backend.OrderRetrieveRequest) (*backend.OrderReply, error)
}

func (s *stubBackend) AirShopping(ctx context.Context, req backend.SearchRequest) (*backend.ShoppingReply, error) {
	if s.airShoppingFn == nil {
		return nil, errors.New("unexpected AirShopping call")
	}
	return s.airShoppingFn(ctx, req)
}

func (s *stubBackend) OfferPrice(ctx context.Context, req backend.PriceRequest) (*backend.PricingReply, error) {
	if s.offerPriceFn == nil {
		return nil, errors.New("unexpected OfferPrice call")
	}
	return s.offerPriceFn(ctx, req)
}

func (s *stubBackend) SeatAvailability(ctx context.Context, req backend.SeatMapRequest) (*backend.SeatMapReply, error) {
	if s.seatAvailabilityFn == nil {
		return nil, errors.New("unexpected SeatAvailability call")
	}
	return s.seatAvailabilityFn(ctx, req)
}

func (s *stubBackend) OrderCreate(ctx context.Context, req backend.OrderCreateRequest) (*backend.OrderReply, error) {
	if s.orderCreateFn == nil {
		return nil, errors.New("unexpected OrderCreate call")
	}
	return s.orderCreateFn(ctx, req)
}

func (s *stubBackend) OrderRetrieve(ctx context.Context, req backend.OrderRetrieveRequest) (*backend.OrderReply, error) {
	if s.orderRetrieveFn == nil {
		return nil, errors.New("unexpected OrderRetrieve call")
	}
	return s.orderRetrieveFn(ctx, req)
}

type memoryRecord struct {
	record  domain.ContextRecord
	payload []byte
}

// memoryStore keeps context records in memory so pipeline stages can round
// trip within one test.
type memoryStore struct {
	records []memoryRecord
	seq     int
}

func (m *memoryStore) Store(_ context.Context, providerID string, recordType domain.ContextRecordType, identifiers []string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	m.seq++
	contextID := fmt.Sprintf("ctx-%d", m.seq)
	m.records = append(m.records, memoryRecord{
		record: domain.ContextRecord{
			ContextID:   contextID,
			ProviderID:  providerID,
			Type:        recordType,
			Identifiers: identifiers,
			CreatedAt:   time.Now().UTC(),
		},
		payload: body,
	})
	return contextID, nil
}

func (m *memoryStore) Find(_ context.Context, providerID string, recordType domain.ContextRecordType, identifier string, out any) (domain.ContextRecord, error) {
	for i := len(m.records) - 1; i >= 0; i-- {
		entry := m.records[i]
		if entry.record.ProviderID != providerID || entry.record.Type != recordType {
			continue
		}
		for _, id := range entry.record.Identifiers {
			if id == identifier {
				if out != nil {
					if err := json.Unmarshal(entry.payload, out); err != nil {
						return domain.ContextRecord{}, err
					}
				}
				return entry.record, nil
			}
		}
	}
	return domain.ContextRecord{}, metadata.ErrContextNotFound
}

func (m *memoryStore) find(recordType domain.ContextRecordType) []memoryRecord {
	var matches []memoryRecord
	for _, entry := range m.records {
		if entry.record.Type == recordType {
			matches = append(matches, entry)
		}
	}
	return matches
}

func shoppingReply() *backend.ShoppingReply {
	departure := time.Date(2026, 9, 14, 8, 0, 0, 0, time.UTC)
	return &backend.ShoppingReply{
		ResponseID:       "rsp-shop",
		CurrencyDecimals: map[string]int{"USD": 2},
		Offers: map[string]backend.Offer{
			"offer-native-1": {
				Expiration: departure.Add(-24 * time.Hour),
				Total:      backend.Money{Raw: 41220, Currency: "USD"},
				PricePlansReferences: map[string][]string{
					"plan-native": {"combo-native"},
				},
			},
		},
		Segments: map[string]domain.Segment{
			"seg-native": {
				Origin:        domain.Location{IATACode: "CDG"},
				Destination:   domain.Location{IATACode: "JFK"},
				DepartureTime: departure,
				ArrivalTime:   departure.Add(8 * time.Hour),
				Operator:      domain.Operator{IATACode: "AF", FlightNumber: "008"},
			},
		},
		Combinations: map[string][]string{
			"combo-native": {"seg-native"},
		},
		Passengers: map[string]domain.Passenger{
			"pax-native": {Type: domain.PassengerTypeAdult},
		},
		PricePlans: map[string]domain.PricePlan{
			"plan-native": {Name: "Economy Flex", CheckedBaggages: 1},
		},
		Raw: []byte("<AirShoppingRS/>"),
	}
}

func TestSearchTranslatesIdentifiersAndPersistsContext(t *testing.T) {
	store := &memoryStore{}
	client := &stubBackend{
		airShoppingFn: func(_ context.Context, req backend.SearchRequest) (*backend.ShoppingReply, error) {
			return shoppingReply(), nil
		},
	}
	p, err := New(Deps{ID: "aa", Client: client, Contexts: store})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	results, err := p.Search(context.Background(), domain.SearchCriteria{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if len(results.Offers) != 1 {
		t.Fatalf("expected 1 offer, got %d", len(results.Offers))
	}
	var offerID string
	var offer domain.Offer
	for id, o := range results.Offers {
		offerID, offer = id, o
	}
	if offerID == "offer-native-1" {
		t.Fatal("native offer id leaked to client results")
	}
	if offer.Price.Public != 412.20 || offer.Price.Currency != "USD" {
		t.Fatalf("unexpected normalised price: %+v", offer.Price)
	}
	if offer.Provider != "aa" {
		t.Fatalf("unexpected provider tag: %q", offer.Provider)
	}

	for planID, combos := range offer.PricePlansReferences {
		if planID == "plan-native" {
			t.Fatal("native plan id leaked into price plan references")
		}
		for _, comboID := range combos {
			if comboID == "combo-native" {
				t.Fatal("native combination id leaked into price plan references")
			}
			if _, ok := results.Itineraries.Combinations[comboID]; !ok {
				t.Fatalf("price plan references unknown combination %q", comboID)
			}
		}
	}
	for _, segmentIDs := range results.Itineraries.Combinations {
		for _, segmentID := range segmentIDs {
			if _, ok := results.Itineraries.Segments[segmentID]; !ok {
				t.Fatalf("combination references unknown segment %q", segmentID)
			}
		}
	}

	contexts := store.find(domain.ContextShopping)
	if len(contexts) != 1 {
		t.Fatalf("expected 1 shopping context, got %d", len(contexts))
	}
	record := contexts[0].record
	if len(record.Identifiers) != 1 || record.Identifiers[0] != offerID {
		t.Fatalf("context not keyed by minted offer id: %v", record.Identifiers)
	}

	var stored shoppingContext
	if err := json.Unmarshal(contexts[0].payload, &stored); err != nil {
		t.Fatalf("unmarshal context payload: %v", err)
	}
	if stored.ResponseID != "rsp-shop" {
		t.Fatalf("unexpected stored response id: %q", stored.ResponseID)
	}
	if stored.Mapping["offer-native-1"] != offerID {
		t.Fatalf("stored mapping does not cover the offer: %v", stored.Mapping)
	}
	if stored.Decimals["USD"] != 2 {
		t.Fatalf("stored decimals lost: %v", stored.Decimals)
	}
}

func TestSearchDropsOfferWithoutCurrencyMetadata(t *testing.T) {
	store := &memoryStore{}
	reply := shoppingReply()
	reply.Offers["offer-native-2"] = backend.Offer{
		Total: backend.Money{Raw: 9900, Currency: "XXX"},
	}
	client := &stubBackend{
		airShoppingFn: func(context.Context, backend.SearchRequest) (*backend.ShoppingReply, error) {
			return reply, nil
		},
	}
	p, err := New(Deps{ID: "aa", Client: client, Contexts: store})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	results, err := p.Search(context.Background(), domain.SearchCriteria{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results.Offers) != 1 {
		t.Fatalf("expected the unnormalisable offer to be dropped, got %d offers", len(results.Offers))
	}
}

func TestSearchSameNativeIDsAcrossProvidersStayDisjoint(t *testing.T) {
	client := &stubBackend{
		airShoppingFn: func(context.Context, backend.SearchRequest) (*backend.ShoppingReply, error) {
			return shoppingReply(), nil
		},
	}
	first, err := New(Deps{ID: "aa", Client: client, Contexts: &memoryStore{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	second, err := New(Deps{ID: "ba", Client: client, Contexts: &memoryStore{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resultsA, err := first.Search(context.Background(), domain.SearchCriteria{})
	if err != nil {
		t.Fatalf("Search aa: %v", err)
	}
	resultsB, err := second.Search(context.Background(), domain.SearchCriteria{})
	if err != nil {
		t.Fatalf("Search ba: %v", err)
	}

	// Both backends answered with the same native identifiers. The minted
	// client identifiers must still be disjoint so a merged result set
	// cannot overwrite one provider's offer with another's.
	for offerID := range resultsA.Offers {
		if _, clash := resultsB.Offers[offerID]; clash {
			t.Fatalf("offer id %q was minted by both providers", offerID)
		}
	}
	for segmentID := range resultsA.Itineraries.Segments {
		if _, clash := resultsB.Itineraries.Segments[segmentID]; clash {
			t.Fatalf("segment id %q was minted by both providers", segmentID)
		}
	}
}

func TestPriceRoundTripsThroughStoredContext(t *testing.T) {
	store := &memoryStore{}
	var pricedRequest backend.PriceRequest
	client := &stubBackend{
		airShoppingFn: func(context.Context, backend.SearchRequest) (*backend.ShoppingReply, error) {
			return shoppingReply(), nil
		},
		offerPriceFn: func(_ context.Context, req backend.PriceRequest) (*backend.PricingReply, error) {
			pricedRequest = req
			return &backend.PricingReply{
				ResponseID:       "rsp-price",
				OfferID:          "offer-native-priced",
				Expiration:       time.Date(2026, 9, 13, 8, 0, 0, 0, time.UTC),
				Total:            backend.Money{Raw: 43000, Currency: "USD"},
				CurrencyDecimals: map[string]int{"USD": 2},
				PricedItems: []backend.PricedItem{{
					PassengerIDs: []string{"pax-native"},
					Fare: []backend.FareItem{
						{Type: domain.FareItemTypeBase, Amount: backend.Money{Raw: 40000, Currency: "USD"}},
						{Type: domain.FareItemTypeTax, Amount: backend.Money{Raw: 3000, Currency: "USD"}, Description: "Taxes"},
					},
				}},
			}, nil
		},
	}
	p, err := New(Deps{ID: "aa", Client: client, Contexts: store})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	results, err := p.Search(context.Background(), domain.SearchCriteria{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	var offerID string
	for id := range results.Offers {
		offerID = id
	}

	priced, err := p.Price(context.Background(), []string{offerID}, nil)
	if err != nil {
		t.Fatalf("Price: %v", err)
	}

	if pricedRequest.ResponseID != "rsp-shop" {
		t.Fatalf("pricing did not resume the shopping session: %q", pricedRequest.ResponseID)
	}
	if len(pricedRequest.OfferIDs) != 1 || pricedRequest.OfferIDs[0] != "offer-native-1" {
		t.Fatalf("pricing did not reverse-map the offer id: %v", pricedRequest.OfferIDs)
	}
	if priced.OfferID == "" || priced.OfferID == "offer-native-priced" {
		t.Fatalf("priced offer id must be a fresh client id, got %q", priced.OfferID)
	}
	if priced.Price.Public != 430.00 {
		t.Fatalf("unexpected priced total: %v", priced.Price.Public)
	}
	if len(priced.PricedItems) != 1 || len(priced.PricedItems[0].Fare) != 2 {
		t.Fatalf("unexpected priced items: %+v", priced.PricedItems)
	}

	contexts := store.find(domain.ContextPricing)
	if len(contexts) != 1 {
		t.Fatalf("expected 1 pricing context, got %d", len(contexts))
	}
	var stored pricingContext
	if err := json.Unmarshal(contexts[0].payload, &stored); err != nil {
		t.Fatalf("unmarshal pricing context: %v", err)
	}
	if stored.NativeOfferID != "offer-native-priced" {
		t.Fatalf("pricing context lost native offer id: %q", stored.NativeOfferID)
	}
	if len(stored.ShoppingOfferIDs) != 1 || stored.ShoppingOfferIDs[0] != offerID {
		t.Fatalf("pricing context lost shopping offer ids: %v", stored.ShoppingOfferIDs)
	}
}

func TestPriceUnknownOfferID(t *testing.T) {
	p, err := New(Deps{ID: "aa", Client: &stubBackend{}, Contexts: &memoryStore{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = p.Price(context.Background(), []string{"never-issued"}, nil)
	var be *domain.Error
	if !errors.As(err, &be) || be.Code != domain.CodeOfferNotFound {
		t.Fatalf("expected offer-not-found error, got %v", err)
	}
}

func TestPriceFoldsSelectedSeatPrices(t *testing.T) {
	store := &memoryStore{}
	client := &stubBackend{
		airShoppingFn: func(context.Context, backend.SearchRequest) (*backend.ShoppingReply, error) {
			return shoppingReply(), nil
		},
		offerPriceFn: func(context.Context, backend.PriceRequest) (*backend.PricingReply, error) {
			return &backend.PricingReply{
				ResponseID:       "rsp-price",
				OfferID:          "offer-native-priced",
				Total:            backend.Money{Raw: 43000, Currency: "USD"},
				CurrencyDecimals: map[string]int{"USD": 2},
			}, nil
		},
		seatAvailabilityFn: func(context.Context, backend.SeatMapRequest) (*backend.SeatMapReply, error) {
			return &backend.SeatMapReply{
				ResponseID:       "rsp-seats",
				CurrencyDecimals: map[string]int{"USD": 2},
				Segments: map[string][]backend.CabinMap{
					"seg-native": {{
						Name: "Economy",
						Rows: []backend.SeatRow{{
							Number: 12,
							Seats: []backend.Seat{{
								Number:     "12A",
								Available:  true,
								OptionCode: "SEAT-12A",
								Price:      &backend.Money{Raw: 2500, Currency: "USD"},
							}},
						}},
					}},
				},
			}, nil
		},
	}
	p, err := New(Deps{ID: "aa", Client: client, Contexts: store})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	results, err := p.Search(context.Background(), domain.SearchCriteria{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	var offerID string
	for id := range results.Offers {
		offerID = id
	}

	if _, err := p.SeatMap(context.Background(), []string{offerID}, domain.SeatMapRequest{}); err != nil {
		t.Fatalf("SeatMap: %v", err)
	}

	priced, err := p.Price(context.Background(), []string{offerID}, []domain.OptionSelection{
		{Code: "SEAT-12A", SeatNumber: "12A"},
	})
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if priced.Price.Public != 455.00 {
		t.Fatalf("expected seat price folded into total, got %v", priced.Price.Public)
	}

	var surcharge *domain.FareItem
	for _, item := range priced.PricedItems {
		for i := range item.Fare {
			if item.Fare[i].Type == domain.FareItemTypeSurcharge {
				surcharge = &item.Fare[i]
			}
		}
	}
	if surcharge == nil || surcharge.Amount != 25.00 {
		t.Fatalf("expected seat surcharge fare item, got %+v", priced.PricedItems)
	}
}

func TestSeatMapUsesClientSegmentIdentifiers(t *testing.T) {
	store := &memoryStore{}
	client := &stubBackend{
		airShoppingFn: func(context.Context, backend.SearchRequest) (*backend.ShoppingReply, error) {
			return shoppingReply(), nil
		},
		offerPriceFn: func(context.Context, backend.PriceRequest) (*backend.PricingReply, error) {
			return &backend.PricingReply{
				ResponseID:       "rsp-price",
				OfferID:          "offer-native-priced",
				Total:            backend.Money{Raw: 43000, Currency: "USD"},
				CurrencyDecimals: map[string]int{"USD": 2},
			}, nil
		},
		seatAvailabilityFn: func(context.Context, backend.SeatMapRequest) (*backend.SeatMapReply, error) {
			return &backend.SeatMapReply{
				ResponseID:       "rsp-seats",
				CurrencyDecimals: map[string]int{"USD": 2},
				Segments: map[string][]backend.CabinMap{
					"seg-native": {{Name: "Economy"}},
				},
			}, nil
		},
	}
	p, err := New(Deps{ID: "aa", Client: client, Contexts: store})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	results, err := p.Search(context.Background(), domain.SearchCriteria{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	var offerID string
	for id := range results.Offers {
		offerID = id
	}
	var segmentID string
	for id := range results.Itineraries.Segments {
		segmentID = id
	}

	seatMap, err := p.SeatMap(context.Background(), []string{offerID}, domain.SeatMapRequest{})
	if err != nil {
		t.Fatalf("SeatMap: %v", err)
	}
	if _, ok := seatMap.Segments[segmentID]; !ok {
		t.Fatalf("seat map not keyed by the search segment id: %v", seatMap.Segments)
	}
	if _, ok := seatMap.Segments["seg-native"]; ok {
		t.Fatal("native segment id leaked into seat map")
	}
}

func TestCreateOrderRequiresPricingContext(t *testing.T) {
	p, err := New(Deps{ID: "aa", Client: &stubBackend{}, Contexts: &memoryStore{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = p.CreateOrder(context.Background(), "unknown-offer", nil, backend.PaymentInstrument{})
	var be *domain.Error
	if !errors.As(err, &be) || be.Code != domain.CodeOfferNotFound {
		t.Fatalf("expected offer-not-found error, got %v", err)
	}
}

func TestCreateOrderResumesPricedSession(t *testing.T) {
	store := &memoryStore{}
	var orderRequest backend.OrderCreateRequest
	client := &stubBackend{
		airShoppingFn: func(context.Context, backend.SearchRequest) (*backend.ShoppingReply, error) {
			return shoppingReply(), nil
		},
		offerPriceFn: func(context.Context, backend.PriceRequest) (*backend.PricingReply, error) {
			return &backend.PricingReply{
				ResponseID:       "rsp-price",
				OfferID:          "offer-native-priced",
				Total:            backend.Money{Raw: 43000, Currency: "USD"},
				CurrencyDecimals: map[string]int{"USD": 2},
			}, nil
		},
		orderCreateFn: func(_ context.Context, req backend.OrderCreateRequest) (*backend.OrderReply, error) {
			orderRequest = req
			return &backend.OrderReply{
				OrderID:          "provider-order-1",
				BookingReference: []domain.BookingReference{{CarrierCode: "AF", Reference: "ABC123"}},
				Status:           "CONFIRMED",
				Total:            backend.Money{Raw: 43000, Currency: "USD"},
				CurrencyDecimals: map[string]int{"USD": 2},
			}, nil
		},
	}
	p, err := New(Deps{ID: "aa", Client: client, Contexts: store})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	results, err := p.Search(context.Background(), domain.SearchCriteria{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	var offerID string
	for id := range results.Offers {
		offerID = id
	}
	priced, err := p.Price(context.Background(), []string{offerID}, nil)
	if err != nil {
		t.Fatalf("Price: %v", err)
	}

	reply, err := p.CreateOrder(context.Background(), priced.OfferID, map[string]domain.Passenger{
		"pax-booking": {Type: domain.PassengerTypeAdult, LastNames: []string{"Martin"}},
	}, backend.PaymentInstrument{GuaranteeID: "guar-1"})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if orderRequest.ResponseID != "rsp-price" {
		t.Fatalf("order did not resume the priced session: %q", orderRequest.ResponseID)
	}
	if orderRequest.OfferID != "offer-native-priced" {
		t.Fatalf("order did not use the native priced offer id: %q", orderRequest.OfferID)
	}
	if reply.OrderID != "provider-order-1" {
		t.Fatalf("unexpected order id: %q", reply.OrderID)
	}

	order, err := p.ConfirmationFromReply(reply)
	if err != nil {
		t.Fatalf("ConfirmationFromReply: %v", err)
	}
	if order.Price.Public != 430.00 || len(order.BookingReferences) != 1 {
		t.Fatalf("unexpected confirmation: %+v", order)
	}
}

func TestRetrieveOrderHonoursCapabilityFlag(t *testing.T) {
	p, err := New(Deps{ID: "aa", Client: &stubBackend{}, Contexts: &memoryStore{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = p.RetrieveOrder(context.Background(), "provider-order-1")
	if !errors.Is(err, backend.ErrUnsupportedOperation) {
		t.Fatalf("expected ErrUnsupportedOperation, got %v", err)
	}
}
