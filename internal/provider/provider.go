// Package provider runs the NDC transaction pipeline for one configured
// airline endpoint: backend call, identity translation, price normalisation,
// and context persistence. One Provider value serves all organisations; what
// differs per airline lives in configuration, not in code.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/skyward-labs/ndc-gateway/internal/backend"
	domain "github.com/skyward-labs/ndc-gateway/internal/domain"
	"github.com/skyward-labs/ndc-gateway/internal/identity"
	"github.com/skyward-labs/ndc-gateway/internal/metadata"
	"github.com/skyward-labs/ndc-gateway/internal/pricing"
)

// Archiver stores raw wire messages for audit. Archiving is best-effort and
// must never fail a transaction.
type Archiver interface {
	Archive(ctx context.Context, kind, reference string, payload []byte) error
}

// Deps bundles collaborators required to construct a Provider.
type Deps struct {
	ID                    string
	AirlineCode           string
	SupportsOrderRetrieve bool
	Client                backend.Client
	Contexts              metadata.Store
	Archiver              Archiver
	Logger                *zap.Logger
	Clock                 func() time.Time
}

// Provider executes pipeline operations against one airline endpoint.
type Provider struct {
	id                    string
	airlineCode           string
	supportsOrderRetrieve bool
	client                backend.Client
	contexts              metadata.Store
	archiver              Archiver
	logger                *zap.Logger
	clock                 func() time.Time
}

// New constructs a Provider from its dependencies.
func New(deps Deps) (*Provider, error) {
	if deps.ID == "" {
		return nil, errors.New("provider: id is required")
	}
	if deps.Client == nil {
		return nil, errors.New("provider: backend client is required")
	}
	if deps.Contexts == nil {
		return nil, errors.New("provider: context store is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Provider{
		id:                    deps.ID,
		airlineCode:           deps.AirlineCode,
		supportsOrderRetrieve: deps.SupportsOrderRetrieve,
		client:                deps.Client,
		contexts:              deps.Contexts,
		archiver:              deps.Archiver,
		logger:                logger.Named("provider").With(zap.String("providerId", deps.ID)),
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

// ID returns the provider identifier used in routing and persistence.
func (p *Provider) ID() string { return p.id }

// SupportsOrderRetrieve reports whether the endpoint implements live order
// retrieval.
func (p *Provider) SupportsOrderRetrieve() bool { return p.supportsOrderRetrieve }

// Search runs AirShopping, translates the reply into client identifiers and
// normalised prices, and persists the shopping context under every offer id
// it minted.
func (p *Provider) Search(ctx context.Context, criteria domain.SearchCriteria) (domain.SearchResults, error) {
	reply, err := p.client.AirShopping(ctx, backend.SearchRequest{Criteria: criteria})
	if err != nil {
		return domain.SearchResults{}, err
	}
	p.archive(ctx, "airshopping", reply.ResponseID, reply.Raw)

	mapper := identity.NewMapper()
	normalizer := pricing.NewNormalizer(reply.CurrencyDecimals)

	results := domain.NewSearchResults()

	for nativeID, segment := range reply.Segments {
		results.Itineraries.Segments[mapper.Map(nativeID)] = segment
	}
	for nativeID, combination := range reply.Combinations {
		segmentIDs := make([]string, 0, len(combination))
		for _, segmentID := range combination {
			segmentIDs = append(segmentIDs, mapper.Map(segmentID))
		}
		results.Itineraries.Combinations[mapper.Map(nativeID)] = segmentIDs
	}
	for nativeID, passenger := range reply.Passengers {
		results.Passengers[mapper.Map(nativeID)] = passenger
	}
	for nativeID, plan := range reply.PricePlans {
		results.PricePlans[mapper.Map(nativeID)] = plan
	}

	offerIDs := make([]string, 0, len(reply.Offers))
	for nativeID, offer := range reply.Offers {
		price, err := normalizer.Price(offer.Total.Raw, offer.Total.Currency)
		if err != nil {
			// Drops the one offer, not the reply.
			p.logger.Warn("offer price not normalisable",
				zap.String("nativeOfferId", nativeID),
				zap.Error(err))
			continue
		}
		references := make(map[string][]string, len(offer.PricePlansReferences))
		for planID, combinations := range offer.PricePlansReferences {
			combinationIDs := make([]string, 0, len(combinations))
			for _, combinationID := range combinations {
				combinationIDs = append(combinationIDs, mapper.Map(combinationID))
			}
			references[mapper.Map(planID)] = combinationIDs
		}
		clientID := mapper.Map(nativeID)
		results.Offers[clientID] = domain.Offer{
			Expiration:           offer.Expiration,
			Price:                price,
			Provider:             p.id,
			PricePlansReferences: references,
		}
		offerIDs = append(offerIDs, clientID)
	}

	if len(offerIDs) == 0 {
		return domain.SearchResults{}, domain.NewError(domain.CodeNoSearchResults, http.StatusNotFound, "provider %s returned no bookable offers", p.id)
	}

	_, err = p.contexts.Store(ctx, p.id, domain.ContextShopping, offerIDs, shoppingContext{
		ResponseID: reply.ResponseID,
		Mapping:    mapper.Export(),
		Decimals:   normalizer.Decimals(),
	})
	if err != nil {
		return domain.SearchResults{}, fmt.Errorf("provider %s: persist shopping context: %w", p.id, err)
	}

	return results, nil
}

// Price re-quotes shopped offers, folding any previously selected seat
// prices into the total, and persists the pricing context under a freshly
// minted priced-offer id.
func (p *Provider) Price(ctx context.Context, offerIDs []string, selections []domain.OptionSelection) (domain.PricedOffer, error) {
	if len(offerIDs) == 0 {
		return domain.PricedOffer{}, domain.NewError(domain.CodeOfferNotFound, http.StatusBadRequest, "no offer ids supplied")
	}

	var shopping shoppingContext
	if _, err := p.contexts.Find(ctx, p.id, domain.ContextShopping, offerIDs[0], &shopping); err != nil {
		if errors.Is(err, metadata.ErrContextNotFound) {
			return domain.PricedOffer{}, domain.ErrOfferNotFound(offerIDs[0])
		}
		return domain.PricedOffer{}, err
	}

	mapper := identity.NewMapperFromExport(shopping.Mapping)

	nativeOfferIDs := make([]string, 0, len(offerIDs))
	for _, offerID := range offerIDs {
		nativeID, err := mapper.Reverse(offerID)
		if err != nil {
			return domain.PricedOffer{}, domain.ErrOfferNotFound(offerID)
		}
		nativeOfferIDs = append(nativeOfferIDs, nativeID)
	}

	nativeSelections, err := translateSelections(mapper, selections)
	if err != nil {
		return domain.PricedOffer{}, err
	}

	reply, err := p.client.OfferPrice(ctx, backend.PriceRequest{
		ResponseID: shopping.ResponseID,
		OfferIDs:   nativeOfferIDs,
		Selections: nativeSelections,
	})
	if err != nil {
		return domain.PricedOffer{}, err
	}
	p.archive(ctx, "offerprice", reply.ResponseID, reply.Raw)

	normalizer := pricing.NewNormalizer(reply.CurrencyDecimals)
	total, err := normalizer.Price(reply.Total.Raw, reply.Total.Currency)
	if err != nil {
		return domain.PricedOffer{}, domain.WrapError(domain.CodeInvalidResponse, http.StatusBadGateway, err, "provider %s: priced offer not normalisable", p.id)
	}

	pricedItems, err := translatePricedItems(mapper, normalizer, reply.PricedItems)
	if err != nil {
		return domain.PricedOffer{}, domain.WrapError(domain.CodeInvalidResponse, http.StatusBadGateway, err, "provider %s: priced items not normalisable", p.id)
	}

	// Endpoints quote seats in the seat map transaction, not in OfferPrice,
	// so selected seats are charged by folding their stored prices in here.
	seatTotal, err := p.seatSelectionTotal(ctx, offerIDs[0], total.Currency, selections)
	if err != nil {
		return domain.PricedOffer{}, err
	}
	if seatTotal > 0 {
		total.Public += seatTotal
		pricedItems = append(pricedItems, domain.PricedItem{
			Fare: []domain.FareItem{{
				Type:        domain.FareItemTypeSurcharge,
				Amount:      seatTotal,
				Description: "Seat selection",
			}},
		})
	}

	pricedOfferID := mapper.Map(reply.OfferID)

	_, err = p.contexts.Store(ctx, p.id, domain.ContextPricing, []string{pricedOfferID}, pricingContext{
		ResponseID:       reply.ResponseID,
		Mapping:          mapper.Export(),
		Decimals:         normalizer.Decimals(),
		NativeOfferID:    reply.OfferID,
		ShoppingOfferIDs: offerIDs,
		Selections:       selections,
	})
	if err != nil {
		return domain.PricedOffer{}, fmt.Errorf("provider %s: persist pricing context: %w", p.id, err)
	}

	return domain.PricedOffer{
		OfferID:     pricedOfferID,
		Expiration:  reply.Expiration,
		Price:       total,
		PricedItems: pricedItems,
	}, nil
}

// SeatMap re-prices the offer to open a priced session, retrieves seat
// availability, and persists the seat map context under the shopping offer
// ids so a later pricing call can find the seat prices.
func (p *Provider) SeatMap(ctx context.Context, offerIDs []string, req domain.SeatMapRequest) (domain.SeatMap, error) {
	if len(offerIDs) == 0 {
		return domain.SeatMap{}, domain.NewError(domain.CodeOfferNotFound, http.StatusBadRequest, "no offer ids supplied")
	}

	var shopping shoppingContext
	if _, err := p.contexts.Find(ctx, p.id, domain.ContextShopping, offerIDs[0], &shopping); err != nil {
		if errors.Is(err, metadata.ErrContextNotFound) {
			return domain.SeatMap{}, domain.ErrOfferNotFound(offerIDs[0])
		}
		return domain.SeatMap{}, err
	}

	mapper := identity.NewMapperFromExport(shopping.Mapping)

	nativeOfferIDs := make([]string, 0, len(offerIDs))
	for _, offerID := range offerIDs {
		nativeID, err := mapper.Reverse(offerID)
		if err != nil {
			return domain.SeatMap{}, domain.ErrOfferNotFound(offerID)
		}
		nativeOfferIDs = append(nativeOfferIDs, nativeID)
	}

	priced, err := p.client.OfferPrice(ctx, backend.PriceRequest{
		ResponseID: shopping.ResponseID,
		OfferIDs:   nativeOfferIDs,
	})
	if err != nil {
		return domain.SeatMap{}, err
	}

	reply, err := p.client.SeatAvailability(ctx, backend.SeatMapRequest{
		ResponseID: priced.ResponseID,
		OfferIDs:   []string{priced.OfferID},
		Passengers: req.Passengers,
	})
	if err != nil {
		return domain.SeatMap{}, err
	}
	p.archive(ctx, "seatavailability", reply.ResponseID, reply.Raw)

	normalizer := pricing.NewNormalizer(reply.CurrencyDecimals)

	seatMap := domain.SeatMap{Segments: map[string][]domain.CabinMap{}}
	seatPrices := map[string]seatPrice{}
	for nativeSegmentID, cabins := range reply.Segments {
		mapped := make([]domain.CabinMap, 0, len(cabins))
		for _, cabin := range cabins {
			rows := make([]domain.SeatRow, 0, len(cabin.Rows))
			for _, row := range cabin.Rows {
				seats := make([]domain.Seat, 0, len(row.Seats))
				for _, seat := range row.Seats {
					mappedSeat := domain.Seat{
						Number:     seat.Number,
						Available:  seat.Available,
						OptionCode: seat.OptionCode,
						Traits:     seat.Traits,
					}
					if seat.Price != nil {
						price, err := normalizer.Price(seat.Price.Raw, seat.Price.Currency)
						if err != nil {
							return domain.SeatMap{}, domain.WrapError(domain.CodeInvalidResponse, http.StatusBadGateway, err, "provider %s: seat price not normalisable", p.id)
						}
						mappedSeat.Price = &price
						if seat.OptionCode != "" {
							seatPrices[seat.OptionCode] = seatPrice{Raw: seat.Price.Raw, Currency: seat.Price.Currency}
						}
					}
					seats = append(seats, mappedSeat)
				}
				rows = append(rows, domain.SeatRow{Number: row.Number, Seats: seats})
			}
			mapped = append(mapped, domain.CabinMap{
				Name:        cabin.Name,
				Layout:      cabin.Layout,
				FirstRow:    cabin.FirstRow,
				LastRow:     cabin.LastRow,
				Rows:        rows,
				AisleColumn: cabin.AisleColumn,
			})
		}
		seatMap.Segments[mapper.Map(nativeSegmentID)] = mapped
	}

	_, err = p.contexts.Store(ctx, p.id, domain.ContextSeatMap, offerIDs, seatMapContext{
		ResponseID: reply.ResponseID,
		Mapping:    mapper.Export(),
		Decimals:   normalizer.Decimals(),
		SeatPrices: seatPrices,
	})
	if err != nil {
		return domain.SeatMap{}, fmt.Errorf("provider %s: persist seat map context: %w", p.id, err)
	}

	return seatMap, nil
}

// CreateOrder books the priced offer within its stored session.
func (p *Provider) CreateOrder(ctx context.Context, offerID string, passengers map[string]domain.Passenger, payment backend.PaymentInstrument) (*backend.OrderReply, error) {
	var pricingCtx pricingContext
	if _, err := p.contexts.Find(ctx, p.id, domain.ContextPricing, offerID, &pricingCtx); err != nil {
		if errors.Is(err, metadata.ErrContextNotFound) {
			return nil, domain.ErrOfferNotFound(offerID)
		}
		return nil, err
	}

	mapper := identity.NewMapperFromExport(pricingCtx.Mapping)

	nativePassengers := make(map[string]domain.Passenger, len(passengers))
	for passengerID, passenger := range passengers {
		nativeID, err := mapper.Reverse(passengerID)
		if err != nil {
			// Passengers added at booking time carry no prior mapping.
			nativeID = passengerID
		}
		nativePassengers[nativeID] = passenger
	}

	reply, err := p.client.OrderCreate(ctx, backend.OrderCreateRequest{
		ResponseID: pricingCtx.ResponseID,
		OfferID:    pricingCtx.NativeOfferID,
		Passengers: nativePassengers,
		Payment:    payment,
	})
	if err != nil {
		return nil, err
	}
	p.archive(ctx, "ordercreate", reply.OrderID, reply.Raw)
	return reply, nil
}

// RetrieveOrder loads the live order state from the endpoint.
func (p *Provider) RetrieveOrder(ctx context.Context, providerOrderID string) (*backend.OrderReply, error) {
	if !p.supportsOrderRetrieve {
		return nil, backend.ErrUnsupportedOperation
	}
	reply, err := p.client.OrderRetrieve(ctx, backend.OrderRetrieveRequest{OrderID: providerOrderID})
	if err != nil {
		return nil, err
	}
	p.archive(ctx, "orderretrieve", reply.OrderID, reply.Raw)
	return reply, nil
}

// ConfirmationFromReply normalises a backend order reply into the
// client-facing order shape.
func (p *Provider) ConfirmationFromReply(reply *backend.OrderReply) (domain.Order, error) {
	if reply == nil {
		return domain.Order{}, errors.New("provider: nil order reply")
	}
	normalizer := pricing.NewNormalizer(reply.CurrencyDecimals)
	price, err := normalizer.Price(reply.Total.Raw, reply.Total.Currency)
	if err != nil {
		return domain.Order{}, domain.WrapError(domain.CodeInvalidResponse, http.StatusBadGateway, err, "provider %s: order total not normalisable", p.id)
	}
	return domain.Order{
		Price:             price,
		BookingReferences: reply.BookingReference,
		Passengers:        reply.Passengers,
		Status:            reply.Status,
	}, nil
}

// seatSelectionTotal sums the normalised prices of selected seats from the
// stored seat map context. Selections without a stored seat map cost nothing.
func (p *Provider) seatSelectionTotal(ctx context.Context, shoppingOfferID, currency string, selections []domain.OptionSelection) (float64, error) {
	seatSelections := 0
	for _, selection := range selections {
		if selection.SeatNumber != "" || selection.Code != "" {
			seatSelections++
		}
	}
	if seatSelections == 0 {
		return 0, nil
	}

	var seatCtx seatMapContext
	if _, err := p.contexts.Find(ctx, p.id, domain.ContextSeatMap, shoppingOfferID, &seatCtx); err != nil {
		if errors.Is(err, metadata.ErrContextNotFound) {
			return 0, nil
		}
		return 0, err
	}

	normalizer := pricing.NewNormalizer(seatCtx.Decimals)
	var total float64
	for _, selection := range selections {
		price, ok := seatCtx.SeatPrices[selection.Code]
		if !ok {
			continue
		}
		amount, err := normalizer.Convert(price.Raw, price.Currency)
		if err != nil {
			return 0, domain.WrapError(domain.CodeInvalidResponse, http.StatusBadGateway, err, "provider %s: seat price not normalisable", p.id)
		}
		if price.Currency != "" && currency != "" && price.Currency != currency {
			p.logger.Warn("seat price currency differs from offer currency",
				zap.String("seatCurrency", price.Currency),
				zap.String("offerCurrency", currency))
		}
		total += amount
	}
	return total, nil
}

func (p *Provider) archive(ctx context.Context, kind, reference string, payload []byte) {
	if p.archiver == nil || len(payload) == 0 {
		return
	}
	if err := p.archiver.Archive(ctx, kind, reference, payload); err != nil {
		p.logger.Warn("archive wire message failed",
			zap.String("kind", kind),
			zap.String("reference", reference),
			zap.Error(err))
	}
}

func translateSelections(mapper *identity.Mapper, selections []domain.OptionSelection) ([]backend.OptionSelection, error) {
	if len(selections) == 0 {
		return nil, nil
	}
	out := make([]backend.OptionSelection, 0, len(selections))
	for _, selection := range selections {
		native := backend.OptionSelection{
			Code:       selection.Code,
			SeatNumber: selection.SeatNumber,
		}
		if selection.SegmentID != "" {
			segmentID, err := mapper.Reverse(selection.SegmentID)
			if err != nil {
				return nil, domain.NewError(domain.CodeOfferNotFound, http.StatusBadRequest, "unknown segment in selection: %s", selection.SegmentID)
			}
			native.SegmentID = segmentID
		}
		if selection.PassengerID != "" {
			passengerID, err := mapper.Reverse(selection.PassengerID)
			if err != nil {
				return nil, domain.NewError(domain.CodeOfferNotFound, http.StatusBadRequest, "unknown passenger in selection: %s", selection.PassengerID)
			}
			native.PassengerID = passengerID
		}
		out = append(out, native)
	}
	return out, nil
}

func translatePricedItems(mapper *identity.Mapper, normalizer *pricing.Normalizer, items []backend.PricedItem) ([]domain.PricedItem, error) {
	out := make([]domain.PricedItem, 0, len(items))
	for _, item := range items {
		passengerIDs := make([]string, 0, len(item.PassengerIDs))
		for _, nativeID := range item.PassengerIDs {
			passengerIDs = append(passengerIDs, mapper.Map(nativeID))
		}
		fare := make([]domain.FareItem, 0, len(item.Fare))
		for _, component := range item.Fare {
			amount, err := normalizer.Convert(component.Amount.Raw, component.Amount.Currency)
			if err != nil {
				return nil, err
			}
			fare = append(fare, domain.FareItem{
				Type:        component.Type,
				Amount:      amount,
				Description: component.Description,
			})
		}
		out = append(out, domain.PricedItem{PassengerIDs: passengerIDs, Fare: fare})
	}
	return out, nil
}
