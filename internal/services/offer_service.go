package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/skyward-labs/ndc-gateway/internal/backend"
	domain "github.com/skyward-labs/ndc-gateway/internal/domain"
	"github.com/skyward-labs/ndc-gateway/internal/pricing"
	"github.com/skyward-labs/ndc-gateway/internal/repositories"
)

const defaultSearchTimeout = 60 * time.Second

// ErrOfferInvalidInput indicates the caller supplied invalid offer parameters.
var ErrOfferInvalidInput = errors.New("offers: invalid input")

// OfferServiceDeps bundles collaborators required to construct an offer service instance.
type OfferServiceDeps struct {
	Providers     map[string]ProviderClient
	Rules         RulesEngine
	Offers        repositories.OfferRepository
	Logger        *zap.Logger
	Clock         func() time.Time
	SearchTimeout time.Duration
}

type offerService struct {
	providers     map[string]ProviderClient
	rules         RulesEngine
	offers        repositories.OfferRepository
	logger        *zap.Logger
	clock         func() time.Time
	searchTimeout time.Duration
}

// NewOfferService constructs the search orchestrator over the configured providers.
func NewOfferService(deps OfferServiceDeps) (OfferService, error) {
	if len(deps.Providers) == 0 {
		return nil, errors.New("offer service: at least one provider is required")
	}
	if deps.Rules == nil {
		return nil, errors.New("offer service: rules engine is required")
	}
	if deps.Offers == nil {
		return nil, errors.New("offer service: offer repository is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	timeout := deps.SearchTimeout
	if timeout <= 0 {
		timeout = defaultSearchTimeout
	}

	return &offerService{
		providers: deps.Providers,
		rules:     deps.Rules,
		offers:    deps.Offers,
		logger:    logger.Named("offers"),
		clock: func() time.Time {
			return clock().UTC()
		},
		searchTimeout: timeout,
	}, nil
}

type providerSearchResult struct {
	providerID string
	results    domain.SearchResults
	err        error
}

func (s *offerService) Search(ctx context.Context, session SessionContext, criteria SearchCriteria) (SearchOutcome, error) {
	eligible, err := s.rules.EligibleProviders(session)
	if err != nil {
		return SearchOutcome{}, err
	}

	targets := make([]ProviderClient, 0, len(eligible))
	for _, providerID := range eligible {
		if p, ok := s.providers[providerID]; ok {
			targets = append(targets, p)
		} else {
			s.logger.Warn("eligible provider not registered", zap.String("providerId", providerID))
		}
	}
	if len(targets) == 0 {
		return SearchOutcome{}, domain.NewError(domain.CodeNoSearchResults, http.StatusNotFound, "no providers eligible for organisation %s", session.OrgID)
	}

	resultCh := make(chan providerSearchResult, len(targets))
	var wg sync.WaitGroup
	wg.Add(len(targets))
	for _, target := range targets {
		target := target
		go func() {
			defer wg.Done()

			providerCtx, cancel := context.WithTimeout(ctx, s.searchTimeout)
			defer cancel()

			results, err := target.Search(providerCtx, criteria)
			resultCh <- providerSearchResult{providerID: target.ID(), results: results, err: err}
		}()
	}
	wg.Wait()
	close(resultCh)

	outcome := SearchOutcome{Results: domain.NewSearchResults()}
	succeeded := 0
	for result := range resultCh {
		if result.err != nil {
			failure := ProviderFailure{
				ProviderID: result.providerID,
				Code:       searchFailureCode(result.err),
				Message:    result.err.Error(),
			}
			outcome.Failures = append(outcome.Failures, failure)
			s.logger.Warn("provider search failed",
				zap.String("providerId", result.providerID),
				zap.String("code", string(failure.Code)),
				zap.Error(result.err))
			continue
		}
		outcome.Results.Merge(result.results)
		succeeded++
	}

	if succeeded == 0 {
		return outcome, domain.NewError(domain.CodeNoSearchResults, http.StatusNotFound, "no results for search criteria")
	}

	if err := s.persistOfferRecords(ctx, outcome.Results.Offers); err != nil {
		return SearchOutcome{}, fmt.Errorf("offer service: persist offer records: %w", err)
	}
	return outcome, nil
}

func (s *offerService) Price(ctx context.Context, session SessionContext, offerIDs []string, selections []OptionSelection) (PricedOffer, error) {
	if len(offerIDs) == 0 {
		return PricedOffer{}, fmt.Errorf("%w: at least one offer id is required", ErrOfferInvalidInput)
	}

	record, provider, err := s.resolveOffer(ctx, offerIDs[0])
	if err != nil {
		return PricedOffer{}, err
	}

	priced, err := provider.Price(ctx, offerIDs, selections)
	if err != nil {
		return PricedOffer{}, err
	}

	fee, err := s.rules.BookingFee(session, record.ProviderID)
	if err != nil {
		return PricedOffer{}, err
	}
	if fee != nil {
		amount := pricing.ConvertAmount(fee.Amount, 2)
		if fee.Currency != priced.Price.Currency {
			s.logger.Warn("booking fee currency differs from offer currency",
				zap.String("feeCurrency", fee.Currency),
				zap.String("offerCurrency", priced.Price.Currency))
		}
		priced.Price.Public += amount
		priced.PricedItems = append(priced.PricedItems, domain.PricedItem{
			Fare: []domain.FareItem{{
				Type:        domain.FareItemTypeSurcharge,
				Amount:      amount,
				Description: "Booking fee",
			}},
		})
	}

	err = s.offers.Save(ctx, domain.OfferRecord{
		OfferID:    priced.OfferID,
		ProviderID: record.ProviderID,
		Price:      priced.Price.Public,
		Currency:   priced.Price.Currency,
		Expiration: priced.Expiration,
		CreatedAt:  s.clock(),
	})
	if err != nil {
		return PricedOffer{}, fmt.Errorf("offer service: persist priced offer: %w", err)
	}

	return priced, nil
}

func (s *offerService) SeatMap(ctx context.Context, session SessionContext, offerIDs []string, req SeatMapRequest) (SeatMap, error) {
	if len(offerIDs) == 0 {
		return SeatMap{}, fmt.Errorf("%w: at least one offer id is required", ErrOfferInvalidInput)
	}

	_, provider, err := s.resolveOffer(ctx, offerIDs[0])
	if err != nil {
		return SeatMap{}, err
	}
	return provider.SeatMap(ctx, offerIDs, req)
}

// resolveOffer routes a client offer id to its stored record and the
// provider that issued it.
func (s *offerService) resolveOffer(ctx context.Context, offerID string) (domain.OfferRecord, ProviderClient, error) {
	record, err := s.offers.FindCurrent(ctx, offerID, s.clock())
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.OfferRecord{}, nil, domain.ErrOfferNotFound(offerID)
		}
		return domain.OfferRecord{}, nil, err
	}
	provider, ok := s.providers[record.ProviderID]
	if !ok {
		return domain.OfferRecord{}, nil, domain.NewError(domain.CodeInvalidConfiguration, http.StatusInternalServerError, "offer %s references unknown provider %s", offerID, record.ProviderID)
	}
	return record, provider, nil
}

func (s *offerService) persistOfferRecords(ctx context.Context, offers map[string]domain.Offer) error {
	now := s.clock()
	for offerID, offer := range offers {
		err := s.offers.Save(ctx, domain.OfferRecord{
			OfferID:    offerID,
			ProviderID: offer.Provider,
			Price:      offer.Price.Public,
			Currency:   offer.Price.Currency,
			Expiration: offer.Expiration,
			CreatedAt:  now,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func searchFailureCode(err error) domain.ErrorCode {
	if backend.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return domain.CodeThirdPartyTimeout
	}
	var be *domain.Error
	if errors.As(err, &be) {
		return be.Code
	}
	return domain.CodeUnknownError
}
