package di

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/skyward-labs/ndc-gateway/internal/backend"
	domain "github.com/skyward-labs/ndc-gateway/internal/domain"
	"github.com/skyward-labs/ndc-gateway/internal/payments"
	"github.com/skyward-labs/ndc-gateway/internal/platform/config"
	"github.com/skyward-labs/ndc-gateway/internal/repositories"
	"github.com/skyward-labs/ndc-gateway/internal/rules"
	"github.com/skyward-labs/ndc-gateway/internal/services"
)

type stubOfferRepo struct{}

func (stubOfferRepo) Save(context.Context, domain.OfferRecord) error { return nil }

func (stubOfferRepo) FindCurrent(context.Context, string, time.Time) (domain.OfferRecord, error) {
	return domain.OfferRecord{}, errors.New("not implemented")
}

type stubOrderRepo struct{}

func (stubOrderRepo) Create(context.Context, domain.OrderRecord) error { return nil }

func (stubOrderRepo) Update(context.Context, domain.OrderRecord) error { return nil }

func (stubOrderRepo) FindByOfferID(context.Context, string) (domain.OrderRecord, error) {
	return domain.OrderRecord{}, errors.New("not implemented")
}

func (stubOrderRepo) FindByOrderID(context.Context, string) (domain.OrderRecord, error) {
	return domain.OrderRecord{}, errors.New("not implemented")
}

type stubContextRepo struct{}

func (stubContextRepo) Insert(_ context.Context, record domain.ContextRecord) (domain.ContextRecord, error) {
	return record, nil
}

func (stubContextRepo) FindByIdentifier(context.Context, string, domain.ContextRecordType, string) ([]domain.ContextRecord, error) {
	return nil, nil
}

func (stubContextRepo) FindByContextID(context.Context, string) (domain.ContextRecord, error) {
	return domain.ContextRecord{}, errors.New("not implemented")
}

type stubHealthRepo struct{}

func (stubHealthRepo) Collect(context.Context) (domain.SystemHealthReport, error) {
	return domain.SystemHealthReport{Status: domain.HealthStatusOK}, nil
}

type stubRegistry struct{}

func (stubRegistry) Close(context.Context) error { return nil }

func (stubRegistry) Offers() repositories.OfferRepository { return stubOfferRepo{} }

func (stubRegistry) Orders() repositories.OrderRepository { return stubOrderRepo{} }

func (stubRegistry) Contexts() repositories.ContextRepository { return stubContextRepo{} }

func (stubRegistry) Health() repositories.HealthRepository { return stubHealthRepo{} }

type stubProvider struct{ id string }

func (s stubProvider) ID() string { return s.id }

func (stubProvider) SupportsOrderRetrieve() bool { return false }

func (stubProvider) Search(context.Context, domain.SearchCriteria) (domain.SearchResults, error) {
	return domain.SearchResults{}, nil
}

func (stubProvider) Price(context.Context, []string, []domain.OptionSelection) (domain.PricedOffer, error) {
	return domain.PricedOffer{}, errors.New("not implemented")
}

func (stubProvider) SeatMap(context.Context, []string, domain.SeatMapRequest) (domain.SeatMap, error) {
	return domain.SeatMap{}, errors.New("not implemented")
}

func (stubProvider) CreateOrder(context.Context, string, map[string]domain.Passenger, backend.PaymentInstrument) (*backend.OrderReply, error) {
	return nil, errors.New("not implemented")
}

func (stubProvider) RetrieveOrder(context.Context, string) (*backend.OrderReply, error) {
	return nil, errors.New("not implemented")
}

func (stubProvider) ConfirmationFromReply(*backend.OrderReply) (domain.Order, error) {
	return domain.Order{}, errors.New("not implemented")
}

type stubRules struct{}

func (stubRules) EligibleProviders(domain.SessionContext) ([]string, error) {
	return []string{"aa"}, nil
}

func (stubRules) GuaranteeType(domain.SessionContext, string) (domain.GuaranteeType, error) {
	return domain.GuaranteeTypeDeposit, nil
}

func (stubRules) BookingFee(domain.SessionContext, string) (*rules.FeePolicy, error) {
	return nil, nil
}

type stubGuarantees struct{}

func (stubGuarantees) RetrieveToken(context.Context, string) (payments.CardToken, error) {
	return payments.CardToken{}, payments.ErrTokenNotFound
}

func (stubGuarantees) GetGuarantee(context.Context, string) (payments.Guarantee, error) {
	return payments.Guarantee{}, payments.ErrGuaranteeNotFound
}

func testConfig() config.Config {
	return config.Config{
		Search: config.SearchConfig{Timeout: time.Minute},
	}
}

func TestNewContainerAssemblesServices(t *testing.T) {
	container, err := NewContainer(testConfig(), Deps{
		Registry:   stubRegistry{},
		Providers:  map[string]services.ProviderClient{"aa": stubProvider{id: "aa"}},
		Rules:      stubRules{},
		Guarantees: stubGuarantees{},
	})
	if err != nil {
		t.Fatalf("NewContainer returned error: %v", err)
	}
	if container.Services.Offers == nil || container.Services.Orders == nil || container.Services.System == nil {
		t.Fatalf("expected all services assembled: %+v", container.Services)
	}
}

func TestNewContainerValidatesDeps(t *testing.T) {
	cases := []struct {
		name string
		deps Deps
	}{
		{name: "missing registry", deps: Deps{
			Providers:  map[string]services.ProviderClient{"aa": stubProvider{id: "aa"}},
			Rules:      stubRules{},
			Guarantees: stubGuarantees{},
		}},
		{name: "missing providers", deps: Deps{
			Registry:   stubRegistry{},
			Rules:      stubRules{},
			Guarantees: stubGuarantees{},
		}},
		{name: "missing rules", deps: Deps{
			Registry:   stubRegistry{},
			Providers:  map[string]services.ProviderClient{"aa": stubProvider{id: "aa"}},
			Guarantees: stubGuarantees{},
		}},
		{name: "missing guarantees", deps: Deps{
			Registry:  stubRegistry{},
			Providers: map[string]services.ProviderClient{"aa": stubProvider{id: "aa"}},
			Rules:     stubRules{},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewContainer(testConfig(), tc.deps); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestNewRulesEngineFromConfig(t *testing.T) {
	engine, err := NewRulesEngine(config.RulesConfig{
		Profiles: []config.OrgProfileConfig{
			{
				OrgID:     "did:orgid:0x1234",
				Providers: []string{"aa"},
				Guarantee: "TOKEN",
				BookingFee: &config.BookingFeeConfig{
					Amount:         550,
					Currency:       "USD",
					ChargeProvider: "stripe",
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("NewRulesEngine returned error: %v", err)
	}

	session := domain.SessionContext{OrgID: "did:orgid:0x1234"}
	providers, err := engine.EligibleProviders(session)
	if err != nil {
		t.Fatalf("EligibleProviders returned error: %v", err)
	}
	if len(providers) != 1 || providers[0] != "aa" {
		t.Errorf("unexpected providers: %v", providers)
	}
	guarantee, err := engine.GuaranteeType(session, "aa")
	if err != nil {
		t.Fatalf("GuaranteeType returned error: %v", err)
	}
	if guarantee != domain.GuaranteeTypeToken {
		t.Errorf("unexpected guarantee type: %s", guarantee)
	}
	fee, err := engine.BookingFee(session, "aa")
	if err != nil {
		t.Fatalf("BookingFee returned error: %v", err)
	}
	if fee == nil || fee.Amount != 550 {
		t.Fatalf("unexpected fee policy: %+v", fee)
	}
}

func TestNewRulesEngineRejectsUnknownGuarantee(t *testing.T) {
	_, err := NewRulesEngine(config.RulesConfig{
		Profiles: []config.OrgProfileConfig{
			{OrgID: "did:orgid:0x1234", Guarantee: "PREPAID"},
		},
	})
	if err == nil {
		t.Fatalf("expected guarantee validation error")
	}
}
